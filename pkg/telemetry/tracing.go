package telemetry

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"fleetdispatch/pkg/config"
)

// InitTracing installs a batching OTLP tracer provider. Spans created before
// or without it go to the global no-op provider.
func InitTracing(cfg config.TelemetryConfig) (func(), error) {
	if !cfg.TracingEnabled {
		slog.Debug("OpenTelemetry tracing disabled")
		return func() {}, nil
	}

	exporter, err := NewTraceExporter(context.Background(), ExporterConfigFrom(cfg, SignalTraces))
	if err != nil {
		slog.Warn("failed to create OTLP trace exporter, tracing stays no-op", "error", err)
		return func() {}, nil
	}

	res, err := NewResource()
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			slog.Error("error shutting down tracer provider", "error", err)
		}
	}, nil
}
