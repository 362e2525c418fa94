package metrics

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"fleetdispatch/pkg/config"
	"fleetdispatch/pkg/telemetry"
)

const meterName = "fleetdispatch"

// Init installs the OTLP meter provider when metrics are enabled. The
// returned shutdown func flushes pending exports.
func Init(cfg config.TelemetryConfig) (func(), error) {
	if !cfg.MetricsEnabled {
		slog.Debug("OpenTelemetry metrics disabled")
		return func() {}, nil
	}

	ctx := context.Background()
	exporter, err := telemetry.NewMetricExporter(ctx, telemetry.ExporterConfigFrom(cfg, telemetry.SignalMetrics))
	if err != nil {
		slog.Warn("failed to create OTLP metric exporter, metrics stay no-op", "error", err)
		return func() {}, nil
	}

	res, err := telemetry.NewResource()
	if err != nil {
		slog.Warn("failed to create resource, metrics stay no-op", "error", err)
		return func() {}, nil
	}

	interval := cfg.ExportInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
		sdkmetric.WithResource(res),
	)
	otelapi.SetMeterProvider(provider)

	if err := registerRuntimeMetrics(provider.Meter(meterName)); err != nil {
		slog.Warn("failed to register runtime metrics", "error", err)
	}

	slog.Info("OpenTelemetry metrics initialized", "endpoint", cfg.Endpoint, "protocol", cfg.Protocol)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			slog.Error("error shutting down meter provider", "error", err)
		}
	}, nil
}

func registerRuntimeMetrics(m metric.Meter) error {
	_, err := m.Int64ObservableGauge(
		"runtime.go.goroutines",
		metric.WithDescription("Number of goroutines"),
		metric.WithUnit("{goroutine}"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(runtime.NumGoroutine()))
			return nil
		}),
	)
	if err != nil {
		return err
	}

	_, err = m.Int64ObservableGauge(
		"runtime.go.mem.heap_alloc",
		metric.WithDescription("Heap memory allocated"),
		metric.WithUnit("By"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			var ms runtime.MemStats
			runtime.ReadMemStats(&ms)
			o.Observe(int64(ms.HeapAlloc))
			return nil
		}),
	)
	return err
}
