package observer

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/shyam-menon/travelmate/travel"
)

// ObservedGateway wraps the partner-tool gateway to record one
// gateway.requests increment and a gateway.duration sample per tool call.
type ObservedGateway struct {
	inner travel.Gateway
	inst  *Instruments
}

// WrapGateway returns a gateway that records per-tool metrics.
func WrapGateway(inner travel.Gateway, inst *Instruments) *ObservedGateway {
	return &ObservedGateway{inner: inner, inst: inst}
}

func (o *ObservedGateway) SearchFlights(ctx context.Context, origin, destination, date string) (json.RawMessage, error) {
	return o.call(ctx, "flight-search", func() (json.RawMessage, error) {
		return o.inner.SearchFlights(ctx, origin, destination, date)
	})
}

func (o *ObservedGateway) CurrentWeather(ctx context.Context, city string) (json.RawMessage, error) {
	return o.call(ctx, "current-weather", func() (json.RawMessage, error) {
		return o.inner.CurrentWeather(ctx, city)
	})
}

func (o *ObservedGateway) ConvertCurrency(ctx context.Context, from, to string, amount float64) (json.RawMessage, error) {
	return o.call(ctx, "convert-currency", func() (json.RawMessage, error) {
		return o.inner.ConvertCurrency(ctx, from, to, amount)
	})
}

func (o *ObservedGateway) call(ctx context.Context, tool string, fn func() (json.RawMessage, error)) (json.RawMessage, error) {
	start := time.Now()
	result, err := fn()
	status := "ok"
	if err != nil {
		status = "error"
	}

	o.inst.GatewayRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("status", status),
	))
	o.inst.GatewayDuration.Record(ctx, float64(time.Since(start).Milliseconds()), metric.WithAttributes(
		attribute.String("tool", tool),
	))
	return result, err
}

// compile-time check
var _ travel.Gateway = (*ObservedGateway)(nil)
