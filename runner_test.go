package travelmate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

// stubAgent returns canned responses per call and records the tasks it saw.
type stubAgent struct {
	mu        sync.Mutex
	responses []Response
	errs      []error
	tasks     []Task
	panicMsg  string
}

func (a *stubAgent) Name() string { return "stub" }

func (a *stubAgent) Invoke(_ context.Context, task Task) (Response, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.panicMsg != "" {
		panic(a.panicMsg)
	}
	a.tasks = append(a.tasks, task)
	i := len(a.tasks) - 1
	var err error
	if i < len(a.errs) {
		err = a.errs[i]
	}
	var resp Response
	if i < len(a.responses) {
		resp = a.responses[i]
	}
	return resp, err
}

func (a *stubAgent) seenTasks() []Task {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Task(nil), a.tasks...)
}

// stubResolver resolves with a fixed token or error, invoking onAuthURL
// first when a URL is configured.
type stubResolver struct {
	url   string
	token string
	err   error
	block time.Duration
}

func (r *stubResolver) Resolve(ctx context.Context, _ string, _ []string, onAuthURL func(string)) (string, error) {
	if r.url != "" {
		onAuthURL(r.url)
	}
	if r.block > 0 {
		select {
		case <-time.After(r.block):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if r.err != nil {
		return "", r.err
	}
	return r.token, nil
}

func runAndDrain(t *testing.T, r *Runner, task Task) (*RunHandle, []StreamEvent) {
	t.Helper()
	h := r.Run(context.Background(), task)
	events := drain(t, h.Events())
	if err := h.Await(context.Background()); err != nil && h.State() == RunCompleted {
		t.Fatalf("completed run has error: %v", err)
	}
	return h, events
}

func eventTypes(events []StreamEvent) []StreamEventType {
	out := make([]StreamEventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func TestRunNoAuthorization(t *testing.T) {
	agent := &stubAgent{responses: []Response{{Text: "Day 1: Colosseum at 9am."}}}
	r := NewRunner(agent, &stubResolver{})

	h, events := runAndDrain(t, r, Task{Prompt: "plan rome"})

	want := []StreamEventType{EventAgentMessage, EventEnd}
	got := eventTypes(events)
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("event sequence = %v, want %v", got, want)
	}
	if events[0].Text != "Day 1: Colosseum at 9am." {
		t.Errorf("agent message = %q", events[0].Text)
	}
	if h.State() != RunCompleted {
		t.Errorf("State = %v, want %v", h.State(), RunCompleted)
	}
	if tasks := agent.seenTasks(); len(tasks) != 1 {
		t.Errorf("agent invoked %d times, want 1", len(tasks))
	}
}

func TestRunAuthorizationSuccess(t *testing.T) {
	agent := &stubAgent{responses: []Response{
		{Text: "", NeedsAuthorization: true},
		{Text: "Itinerary saved to your drive."},
	}}
	resolver := &stubResolver{url: "https://auth.example/start?session_id=s1", token: "tok-xyz"}
	r := NewRunner(agent, resolver, RunnerProvider("drive-provider", "files.write"))

	h, events := runAndDrain(t, r, Task{Prompt: "plan rome and save it"})

	want := []StreamEventType{EventStatus, EventAuthURL, EventStatus, EventAgentMessage, EventEnd}
	got := eventTypes(events)
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("event sequence = %v, want %v", got, want)
	}
	if !strings.Contains(events[0].Text, "Authorization required") {
		t.Errorf("first status = %q, want authorization-required line", events[0].Text)
	}
	if events[1].Text != resolver.url {
		t.Errorf("auth url = %q, want %q", events[1].Text, resolver.url)
	}
	if !strings.Contains(events[2].Text, "successful") {
		t.Errorf("second status = %q, want success line", events[2].Text)
	}
	if events[3].Text != "Itinerary saved to your drive." {
		t.Errorf("retry message = %q", events[3].Text)
	}
	if h.State() != RunCompleted {
		t.Errorf("State = %v, want %v", h.State(), RunCompleted)
	}

	tasks := agent.seenTasks()
	if len(tasks) != 2 {
		t.Fatalf("agent invoked %d times, want 2", len(tasks))
	}
	if tasks[0].AccessToken != "" {
		t.Error("first invocation carried a token")
	}
	if tasks[1].AccessToken != "tok-xyz" {
		t.Errorf("retry token = %q, want %q", tasks[1].AccessToken, "tok-xyz")
	}
	if tasks[1].Prompt != tasks[0].Prompt {
		t.Error("retry prompt differs from original")
	}
}

func TestRunAuthorizationTimeout(t *testing.T) {
	agent := &stubAgent{responses: []Response{{NeedsAuthorization: true}}}
	resolver := &stubResolver{url: "https://auth.example/start", err: fmt.Errorf("resolve: %w", ErrAuthorizationTimeout)}
	r := NewRunner(agent, resolver)

	h, events := runAndDrain(t, r, Task{Prompt: "plan rome and save it"})

	// Failed path: status lines and End only, no AgentMessage after timeout.
	for _, ev := range events {
		if ev.Type == EventAgentMessage {
			t.Fatalf("AgentMessage present after timeout: %+v", events)
		}
	}
	last := events[len(events)-2]
	if last.Type != EventStatus || !strings.Contains(last.Text, "timed out") {
		t.Errorf("failure status = %+v, want status mentioning timeout", last)
	}
	if h.State() != RunFailed {
		t.Errorf("State = %v, want %v", h.State(), RunFailed)
	}
	if !errors.Is(h.Err(), ErrAuthorizationTimeout) {
		t.Errorf("Err = %v, want ErrAuthorizationTimeout", h.Err())
	}
	if tasks := agent.seenTasks(); len(tasks) != 1 {
		t.Errorf("agent invoked %d times after timeout, want 1", len(tasks))
	}
}

func TestRunSingleRetryEvenIfStillUnauthorized(t *testing.T) {
	agent := &stubAgent{responses: []Response{
		{NeedsAuthorization: true},
		{Text: "still need authentication", NeedsAuthorization: true},
	}}
	r := NewRunner(agent, &stubResolver{token: "tok"})

	_, events := runAndDrain(t, r, Task{Prompt: "p"})

	// The retried response is pushed verbatim; no second authorization flow.
	var msgs int
	for _, ev := range events {
		if ev.Type == EventAgentMessage {
			msgs++
		}
	}
	if msgs != 1 {
		t.Errorf("agent messages = %d, want 1", msgs)
	}
	if tasks := agent.seenTasks(); len(tasks) != 2 {
		t.Errorf("agent invoked %d times, want exactly 2", len(tasks))
	}
}

func TestRunKeywordFallbackDetection(t *testing.T) {
	agent := &stubAgent{responses: []Response{
		{Text: "Google Drive authentication is required. Please wait."},
		{Text: "done"},
	}}
	r := NewRunner(agent, &stubResolver{token: "tok"})

	_, events := runAndDrain(t, r, Task{Prompt: "p"})
	if events[0].Type != EventStatus || !strings.Contains(events[0].Text, "Authorization required") {
		t.Errorf("prose-only signal not detected: %+v", events)
	}
}

func TestRunAgentError(t *testing.T) {
	wantErr := errors.New("backend down")
	agent := &stubAgent{errs: []error{wantErr}}
	r := NewRunner(agent, &stubResolver{})

	h, events := runAndDrain(t, r, Task{Prompt: "p"})

	if h.State() != RunFailed {
		t.Errorf("State = %v, want %v", h.State(), RunFailed)
	}
	if !errors.Is(h.Err(), wantErr) {
		t.Errorf("Err = %v, want %v", h.Err(), wantErr)
	}
	if events[0].Type != EventStatus || !strings.Contains(events[0].Text, "backend down") {
		t.Errorf("failure explanation missing: %+v", events)
	}
	if events[len(events)-1].Type != EventEnd {
		t.Error("stream did not end with End")
	}
}

func TestRunPanicStillEndsStream(t *testing.T) {
	agent := &stubAgent{panicMsg: "boom"}
	r := NewRunner(agent, &stubResolver{})

	h := r.Run(context.Background(), Task{Prompt: "p"})
	events := drain(t, h.Events())

	if events[len(events)-1].Type != EventEnd {
		t.Error("stream did not end after panic")
	}
	if h.State() != RunFailed {
		t.Errorf("State = %v, want %v", h.State(), RunFailed)
	}
	if h.Err() == nil || !strings.Contains(h.Err().Error(), "boom") {
		t.Errorf("Err = %v, want panic error", h.Err())
	}
}

func TestRunExactlyOneEndAcrossBranches(t *testing.T) {
	cases := []struct {
		name     string
		agent    *stubAgent
		resolver *stubResolver
	}{
		{"no auth", &stubAgent{responses: []Response{{Text: "ok"}}}, &stubResolver{}},
		{"auth success", &stubAgent{responses: []Response{{NeedsAuthorization: true}, {Text: "ok"}}}, &stubResolver{token: "t"}},
		{"auth denied", &stubAgent{responses: []Response{{NeedsAuthorization: true}}}, &stubResolver{err: ErrAuthorizationDenied}},
		{"agent error", &stubAgent{errs: []error{errors.New("x")}}, &stubResolver{}},
		{"panic", &stubAgent{panicMsg: "y"}, &stubResolver{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewRunner(tc.agent, tc.resolver)
			h := r.Run(context.Background(), Task{Prompt: "p"})
			events := drain(t, h.Events())
			ends := 0
			for _, ev := range events {
				if ev.Type == EventEnd {
					ends++
				}
			}
			if ends != 1 || events[len(events)-1].Type != EventEnd {
				t.Errorf("End count = %d, last = %v", ends, events[len(events)-1].Type)
			}
		})
	}
}

func TestRunCancel(t *testing.T) {
	agent := &stubAgent{responses: []Response{{NeedsAuthorization: true}}}
	resolver := &stubResolver{block: 5 * time.Second}
	r := NewRunner(agent, resolver)

	h := r.Run(context.Background(), Task{Prompt: "p"})
	time.Sleep(20 * time.Millisecond)
	h.Cancel()

	events := drain(t, h.Events())
	if events[len(events)-1].Type != EventEnd {
		t.Error("stream did not end after cancel")
	}
	if h.State() != RunFailed {
		t.Errorf("State = %v, want %v", h.State(), RunFailed)
	}
}

// recordingTracer captures spans opened through the Tracer facade.
type recordingTracer struct {
	mu    sync.Mutex
	spans []*recordedSpan
}

type recordedSpan struct {
	name   string
	attrs  []SpanAttr
	events []string
	err    error
	ended  bool
}

func (t *recordingTracer) Start(ctx context.Context, name string, attrs ...SpanAttr) (context.Context, Span) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := &recordedSpan{name: name, attrs: attrs}
	t.spans = append(t.spans, s)
	return ctx, s
}

func (s *recordedSpan) SetAttr(attrs ...SpanAttr)        { s.attrs = append(s.attrs, attrs...) }
func (s *recordedSpan) Event(name string, _ ...SpanAttr) { s.events = append(s.events, name) }
func (s *recordedSpan) Error(err error)                  { s.err = err }
func (s *recordedSpan) End()                             { s.ended = true }

func TestRunTracerSpan(t *testing.T) {
	agent := &stubAgent{responses: []Response{{NeedsAuthorization: true}, {Text: "ok"}}}
	tracer := &recordingTracer{}
	r := NewRunner(agent, &stubResolver{url: "https://auth.example/start", token: "tok"},
		RunnerTracer(tracer), RunnerProvider("drive-provider"))

	runAndDrain(t, r, Task{Prompt: "p"})

	if len(tracer.spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(tracer.spans))
	}
	s := tracer.spans[0]
	if s.name != "runner.execute" {
		t.Errorf("span name = %q, want runner.execute", s.name)
	}
	if !s.ended {
		t.Error("span not ended")
	}
	if len(s.events) != 1 || s.events[0] != "awaiting-authorization" {
		t.Errorf("span events = %v, want [awaiting-authorization]", s.events)
	}
	if s.err != nil {
		t.Errorf("span error = %v, want none", s.err)
	}
}

func TestRunTracerSpanRecordsFailure(t *testing.T) {
	agent := &stubAgent{responses: []Response{{NeedsAuthorization: true}}}
	tracer := &recordingTracer{}
	r := NewRunner(agent, &stubResolver{err: ErrAuthorizationDenied}, RunnerTracer(tracer))

	runAndDrain(t, r, Task{Prompt: "p"})

	if len(tracer.spans) != 1 || !errors.Is(tracer.spans[0].err, ErrAuthorizationDenied) {
		t.Fatalf("span error not recorded: %+v", tracer.spans)
	}
}

func TestRunStateString(t *testing.T) {
	states := map[RunState]string{
		RunStarted:               "started",
		RunAwaitingAuthorization: "awaiting-authorization",
		RunAuthorized:            "authorized",
		RunRetrying:              "retrying",
		RunCompleted:             "completed",
		RunFailed:                "failed",
		RunState(99):             "unknown",
	}
	for s, want := range states {
		if s.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", s, s.String(), want)
		}
	}
	if RunStarted.IsTerminal() || !RunCompleted.IsTerminal() || !RunFailed.IsTerminal() {
		t.Error("IsTerminal misclassified a state")
	}
}
