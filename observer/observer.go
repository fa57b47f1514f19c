// Package observer provides OTEL-based observability for the authorization
// flow and its collaborators.
//
// Init wires trace and metric providers with OTLP HTTP exporters; export
// targets come from the standard OTEL env vars
// (OTEL_EXPORTER_OTLP_ENDPOINT, etc.). Application logs stay on log/slog.
package observer

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/shyam-menon/travelmate/observer"

// Instruments holds all OTEL instruments used across the flow. The
// wrappers in this package (WrapRunner, WrapResolver, WrapCompleter,
// WrapGateway) record to them around the real components.
type Instruments struct {
	Tracer trace.Tracer
	Meter  metric.Meter

	// Counters
	Runs                metric.Int64Counter
	AuthFlows           metric.Int64Counter
	CallbackCompletions metric.Int64Counter
	GatewayRequests     metric.Int64Counter

	// Histograms
	RunDuration     metric.Float64Histogram
	AuthWait        metric.Float64Histogram
	GatewayDuration metric.Float64Histogram
}

// Init sets up OTEL trace and metric providers with OTLP HTTP exporters.
// Returns a shutdown function that must be called on application exit.
func Init(ctx context.Context) (*Instruments, func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName("travelmate")),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, nil, err
	}

	// Trace provider
	traceExp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	// Metric provider
	metricExp, err := otlpmetrichttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	inst, err := newInstruments()
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, nil, err
	}

	shutdown := func(ctx context.Context) error {
		return errors.Join(
			tp.Shutdown(ctx),
			mp.Shutdown(ctx),
		)
	}

	return inst, shutdown, nil
}

func newInstruments() (*Instruments, error) {
	tracer := otel.Tracer(scopeName)
	meter := otel.Meter(scopeName)

	runs, err := meter.Int64Counter("run.count",
		metric.WithDescription("Agent run count by terminal state"),
		metric.WithUnit("{run}"))
	if err != nil {
		return nil, err
	}

	authFlows, err := meter.Int64Counter("authorization.flows",
		metric.WithDescription("Authorization flows started, by outcome"),
		metric.WithUnit("{flow}"))
	if err != nil {
		return nil, err
	}

	callbackCompletions, err := meter.Int64Counter("callback.completions",
		metric.WithDescription("Authorization completions relayed by the callback route, by outcome"),
		metric.WithUnit("{completion}"))
	if err != nil {
		return nil, err
	}

	gatewayRequests, err := meter.Int64Counter("gateway.requests",
		metric.WithDescription("Gateway tool call count"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}

	runDuration, err := meter.Float64Histogram("run.duration",
		metric.WithDescription("End-to-end run duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	authWait, err := meter.Float64Histogram("authorization.wait",
		metric.WithDescription("Time blocked waiting for browser authorization"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	gatewayDuration, err := meter.Float64Histogram("gateway.duration",
		metric.WithDescription("Gateway tool call duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	return &Instruments{
		Tracer:              tracer,
		Meter:               meter,
		Runs:                runs,
		AuthFlows:           authFlows,
		CallbackCompletions: callbackCompletions,
		GatewayRequests:     gatewayRequests,
		RunDuration:         runDuration,
		AuthWait:            authWait,
		GatewayDuration:     gatewayDuration,
	}, nil
}
