package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"fleetdispatch/pkg/config"
)

func TestExporterConfigFrom(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.TelemetryConfig
		signal   SignalType
		endpoint string
		insecure bool
	}{
		{
			name:     "http default",
			cfg:      config.TelemetryConfig{Protocol: "http/protobuf"},
			signal:   SignalMetrics,
			endpoint: "http://localhost:4318/v1/metrics",
			insecure: true,
		},
		{
			name:     "http endpoint without scheme defaults to tls",
			cfg:      config.TelemetryConfig{Protocol: "http/protobuf", Endpoint: "otel.example.com"},
			signal:   SignalMetrics,
			endpoint: "https://otel.example.com/v1/metrics",
		},
		{
			name:     "http base endpoint gets signal path",
			cfg:      config.TelemetryConfig{Protocol: "http/protobuf", Endpoint: "http://collector:4318/"},
			signal:   SignalTraces,
			endpoint: "http://collector:4318/v1/traces",
			insecure: true,
		},
		{
			name:     "grpc strips scheme and path",
			cfg:      config.TelemetryConfig{Protocol: "grpc", Endpoint: "https://collector:4317/ignored"},
			signal:   SignalMetrics,
			endpoint: "collector:4317",
		},
		{
			name:     "grpc plaintext scheme is insecure",
			cfg:      config.TelemetryConfig{Protocol: "grpc", Endpoint: "http://collector:4317"},
			signal:   SignalTraces,
			endpoint: "collector:4317",
			insecure: true,
		},
		{
			name:     "grpc default",
			cfg:      config.TelemetryConfig{Protocol: "grpc", Insecure: true},
			signal:   SignalTraces,
			endpoint: "localhost:4317",
			insecure: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExporterConfigFrom(tt.cfg, tt.signal)
			assert.Equal(t, tt.endpoint, got.Endpoint)
			assert.Equal(t, tt.insecure, got.Insecure)
		})
	}
}
