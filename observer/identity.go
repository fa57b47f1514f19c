package observer

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/shyam-menon/travelmate"
)

// ObservedResolver wraps a TokenResolver to record one
// authorization.flows increment per flow, tagged with its outcome, and an
// authorization.wait sample covering the time the run was blocked on the
// browser.
type ObservedResolver struct {
	inner travelmate.TokenResolver
	inst  *Instruments
}

// WrapResolver returns a resolver that records authorization flow metrics.
func WrapResolver(inner travelmate.TokenResolver, inst *Instruments) *ObservedResolver {
	return &ObservedResolver{inner: inner, inst: inst}
}

func (o *ObservedResolver) Resolve(ctx context.Context, provider string, scopes []string, onAuthURL func(string)) (string, error) {
	start := time.Now()
	token, err := o.inner.Resolve(ctx, provider, scopes, onAuthURL)
	waitMs := float64(time.Since(start).Milliseconds())

	o.inst.AuthFlows.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("outcome", flowOutcome(err)),
	))
	o.inst.AuthWait.Record(ctx, waitMs, metric.WithAttributes(
		attribute.String("provider", provider),
	))
	return token, err
}

// flowOutcome maps a Resolve error onto the outcome attribute value.
func flowOutcome(err error) string {
	switch {
	case err == nil:
		return "resolved"
	case errors.Is(err, travelmate.ErrAuthorizationTimeout):
		return "timeout"
	case errors.Is(err, travelmate.ErrAuthorizationDenied):
		return "denied"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}

// ObservedCompleter wraps an AuthorizationCompleter to count the
// completions relayed through the callback route.
type ObservedCompleter struct {
	inner travelmate.AuthorizationCompleter
	inst  *Instruments
}

// WrapCompleter returns a completer that records completion metrics.
func WrapCompleter(inner travelmate.AuthorizationCompleter, inst *Instruments) *ObservedCompleter {
	return &ObservedCompleter{inner: inner, inst: inst}
}

func (o *ObservedCompleter) CompleteAuthorization(ctx context.Context, sessionID string, d travelmate.TokenDescriptor) error {
	err := o.inner.CompleteAuthorization(ctx, sessionID, d)
	outcome := "completed"
	if err != nil {
		outcome = "error"
	}
	o.inst.CallbackCompletions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
	return err
}

// compile-time checks
var (
	_ travelmate.TokenResolver          = (*ObservedResolver)(nil)
	_ travelmate.AuthorizationCompleter = (*ObservedCompleter)(nil)
)
