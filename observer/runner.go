package observer

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/shyam-menon/travelmate"
)

// TaskRunner is the surface ObservedRunner wraps; *travelmate.Runner
// satisfies it.
type TaskRunner interface {
	Run(ctx context.Context, task travelmate.Task) *travelmate.RunHandle
}

// ObservedRunner wraps a runner to record one run.count increment and a
// run.duration sample per run, tagged with the terminal state. Spans are
// not duplicated here; the runner opens its own runner.execute span when
// given a tracer.
type ObservedRunner struct {
	inner TaskRunner
	inst  *Instruments
}

// WrapRunner returns a runner that records run metrics.
func WrapRunner(inner TaskRunner, inst *Instruments) *ObservedRunner {
	return &ObservedRunner{inner: inner, inst: inst}
}

// Run delegates to the inner runner and records the metrics once the run
// reaches its terminal state. The handle is returned immediately; the
// recording goroutine waits on it in the background.
func (o *ObservedRunner) Run(ctx context.Context, task travelmate.Task) *travelmate.RunHandle {
	start := time.Now()
	h := o.inner.Run(ctx, task)
	go func() {
		<-h.Done()
		state := h.State().String()
		durationMs := float64(time.Since(start).Milliseconds())
		attrs := metric.WithAttributes(attribute.String("state", state))
		o.inst.Runs.Add(context.Background(), 1, attrs)
		o.inst.RunDuration.Record(context.Background(), durationMs, attrs)
	}()
	return h
}

// compile-time checks
var (
	_ TaskRunner = (*ObservedRunner)(nil)
	_ TaskRunner = (*travelmate.Runner)(nil)
)
