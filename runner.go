package travelmate

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// RunState represents the execution state of a run. One state machine per
// invocation; terminal states are RunCompleted and RunFailed.
type RunState int32

const (
	// RunStarted indicates the first agent invocation is in progress.
	RunStarted RunState = iota
	// RunAwaitingAuthorization indicates the run is blocked on the user
	// completing the browser authorization.
	RunAwaitingAuthorization
	// RunAuthorized indicates the access token was resolved.
	RunAuthorized
	// RunRetrying indicates the single authorized re-invocation is in progress.
	RunRetrying
	// RunCompleted indicates the run finished and pushed its final message.
	RunCompleted
	// RunFailed indicates the run terminated with an error status.
	RunFailed
)

// String returns the state name.
func (s RunState) String() string {
	switch s {
	case RunStarted:
		return "started"
	case RunAwaitingAuthorization:
		return "awaiting-authorization"
	case RunAuthorized:
		return "authorized"
	case RunRetrying:
		return "retrying"
	case RunCompleted:
		return "completed"
	case RunFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the state is final.
func (s RunState) IsTerminal() bool {
	return s == RunCompleted || s == RunFailed
}

// Runner drives authorization-aware agent runs. It invokes the agent,
// classifies the response, triggers the identity exchange when needed,
// retries exactly once with the resolved token, and always terminates the
// event stream with a single End.
type Runner struct {
	agent    Agent
	resolver TokenResolver
	detector Detector
	provider string
	scopes   []string
	logger   *slog.Logger
	tracer   Tracer
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// RunnerLogger sets the structured logger for run lifecycle events.
func RunnerLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// RunnerTracer sets the tracer for run spans.
func RunnerTracer(t Tracer) RunnerOption {
	return func(r *Runner) { r.tracer = t }
}

// RunnerDetector sets the fallback authorization detector consulted when
// the agent response does not carry the structured flag (default:
// KeywordDetector).
func RunnerDetector(d Detector) RunnerOption {
	return func(r *Runner) { r.detector = d }
}

// RunnerProvider names the identity provider and scopes passed to Resolve.
func RunnerProvider(name string, scopes ...string) RunnerOption {
	return func(r *Runner) {
		r.provider = name
		r.scopes = scopes
	}
}

// NewRunner creates a Runner over the given agent and token resolver.
func NewRunner(agent Agent, resolver TokenResolver, opts ...RunnerOption) *Runner {
	r := &Runner{
		agent:    agent,
		resolver: resolver,
		detector: &KeywordDetector{},
		logger:   nopLogger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunHandle tracks one background run. All methods are safe for concurrent
// use. The event queue is single-consumer; drain it from one goroutine.
type RunHandle struct {
	id     string
	queue  *Queue
	state  atomic.Int32
	err    error
	done   chan struct{}
	cancel context.CancelFunc
}

// Run launches the agent task in a background goroutine and returns
// immediately with a handle whose queue streams progress. The parent ctx
// controls the run's lifetime.
//
// The token resolved for an authorized retry lives only in the retried
// Task; it is never retained on the Runner or the handle.
func (r *Runner) Run(ctx context.Context, task Task) *RunHandle {
	ctx, cancel := context.WithCancel(ctx)
	h := &RunHandle{
		id:     NewID(),
		queue:  NewQueue(),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	h.state.Store(int32(RunStarted))

	r.logger.Info("run started", "agent", r.agent.Name(), "run_id", h.id)

	go func() {
		defer cancel()
		// The stream must end exactly once no matter how the task exits,
		// panic included. Finish is idempotent; the deferred call is the
		// safety net for the paths below.
		defer h.queue.Finish()
		defer close(h.done)
		defer func() {
			if p := recover(); p != nil {
				r.logger.Error("run panic", "agent", r.agent.Name(), "run_id", h.id, "panic", fmt.Sprintf("%v", p))
				h.err = fmt.Errorf("run panic: %v", p)
				h.state.Store(int32(RunFailed))
				h.queue.Push(StreamEvent{Type: EventStatus, Text: fmt.Sprintf("Error: %v", p)})
			}
		}()
		r.execute(ctx, h, task)
	}()

	return h
}

// execute is the run body: invoke, classify, authorize, retry once.
func (r *Runner) execute(ctx context.Context, h *RunHandle, task Task) {
	start := time.Now()
	var span Span
	if r.tracer != nil {
		ctx, span = r.tracer.Start(ctx, "runner.execute",
			StringAttr("agent", r.agent.Name()),
			StringAttr("run_id", h.id))
		defer span.End()
	}

	resp, err := r.agent.Invoke(ctx, task)
	if err != nil {
		r.fail(h, span, fmt.Errorf("agent invocation: %w", err))
		return
	}

	if r.needsAuthorization(resp) {
		h.state.Store(int32(RunAwaitingAuthorization))
		h.queue.Push(StreamEvent{Type: EventStatus, Text: "Authorization required. Starting authorization flow..."})
		r.logger.Info("authorization required", "agent", r.agent.Name(), "run_id", h.id, "provider", r.provider)
		if span != nil {
			span.Event("awaiting-authorization", StringAttr("provider", r.provider))
		}

		token, err := r.resolver.Resolve(ctx, r.provider, r.scopes, func(url string) {
			h.queue.Push(StreamEvent{Type: EventAuthURL, Text: url})
		})
		if err != nil {
			r.fail(h, span, fmt.Errorf("authorization failed: %w", err))
			return
		}

		h.state.Store(int32(RunAuthorized))
		h.queue.Push(StreamEvent{Type: EventStatus, Text: "Authorization successful. Retrying your request..."})

		// Exactly one retry. The retried response is pushed verbatim even
		// if it signals authorization again.
		h.state.Store(int32(RunRetrying))
		retryTask := task
		retryTask.AccessToken = token
		resp, err = r.agent.Invoke(ctx, retryTask)
		if err != nil {
			r.fail(h, span, fmt.Errorf("authorized retry: %w", err))
			return
		}
	}

	h.queue.Push(StreamEvent{Type: EventAgentMessage, Text: resp.Text})
	h.state.Store(int32(RunCompleted))
	r.logger.Info("run completed", "agent", r.agent.Name(), "run_id", h.id, "duration", time.Since(start))
}

// needsAuthorization prefers the structured flag and falls back to the
// configured detector on the response text.
func (r *Runner) needsAuthorization(resp Response) bool {
	if resp.NeedsAuthorization {
		return true
	}
	return r.detector != nil && r.detector.NeedsAuthorization(resp.Text)
}

// fail records the error, pushes the human-readable explanation, and moves
// the run to its failed terminal state. The deferred Finish in Run emits
// the End event.
func (r *Runner) fail(h *RunHandle, span Span, err error) {
	r.logger.Error("run failed", "agent", r.agent.Name(), "run_id", h.id, "error", err)
	if span != nil {
		span.Error(err)
	}
	h.err = err
	h.state.Store(int32(RunFailed))
	h.queue.Push(StreamEvent{Type: EventStatus, Text: fmt.Sprintf("Error: %v", err)})
}

// ID returns the unique run identifier (UUIDv7, time-sortable).
func (h *RunHandle) ID() string { return h.id }

// Events returns the run's event queue. Single consumer only.
func (h *RunHandle) Events() *Queue { return h.queue }

// State returns the current run state. If the state is terminal, State
// blocks until Done() is closed so Err() is valid afterwards.
func (h *RunHandle) State() RunState {
	s := RunState(h.state.Load())
	if s.IsTerminal() {
		<-h.done
	}
	return s
}

// Done returns a channel closed when the run reaches a terminal state.
func (h *RunHandle) Done() <-chan struct{} { return h.done }

// Await blocks until the run finishes or ctx is cancelled, then returns
// the run error (nil on success).
func (h *RunHandle) Await(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the run error. Only meaningful after Done() is closed.
func (h *RunHandle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Cancel requests cancellation. Non-blocking; the run observes a cancelled
// context and terminates through its failure path.
func (h *RunHandle) Cancel() { h.cancel() }
