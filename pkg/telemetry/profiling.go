package telemetry

import (
	"log/slog"

	"github.com/grafana/pyroscope-go"
)

// InitProfiling starts continuous profiling when a Pyroscope server is set.
func InitProfiling(serverAddress string) (func(), error) {
	if serverAddress == "" {
		slog.Debug("Pyroscope profiling disabled")
		return func() {}, nil
	}

	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: ServiceName,
		ServerAddress:   serverAddress,
		Logger:          pyroscope.StandardLogger,
		Tags:            map[string]string{"service": ServiceName, "version": Version},
	})
	if err != nil {
		slog.Warn("failed to start Pyroscope profiler", "error", err)
		return func() {}, nil
	}

	slog.Debug("Pyroscope profiling started", "server", serverAddress)
	return func() {
		if err := profiler.Stop(); err != nil {
			slog.Error("error stopping Pyroscope profiler", "error", err)
		}
	}, nil
}
