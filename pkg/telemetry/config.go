package telemetry

import "time"

// LoggingConfig controls the zerolog-backed logger.
type LoggingConfig struct {
	// Level is one of trace, debug, info, warn, error, fatal.
	Level string `json:"level" yaml:"level"`

	// Format is "json" or "console".
	Format string `json:"format" yaml:"format"`

	// Output is "stdout", "stderr" or a file path.
	Output string `json:"output" yaml:"output"`

	// EnableCaller adds caller information to each entry.
	EnableCaller bool `json:"enable_caller" yaml:"enable_caller"`
}

// DefaultLoggingConfig returns the logging defaults.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:  "info",
		Format: "console",
		Output: "stderr",
	}
}

// MetricsConfig controls the Prometheus collector.
type MetricsConfig struct {
	// Enabled turns metric collection on.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Namespace prefixes all metric names.
	Namespace string `json:"namespace" yaml:"namespace"`

	// ListenAddr, when set, serves /metrics on this address.
	ListenAddr string `json:"listen_addr" yaml:"listen_addr"`
}

// DefaultMetricsConfig returns the metrics defaults.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   false,
		Namespace: "slothlet",
	}
}

// TracingConfig controls the OpenTelemetry tracer.
type TracingConfig struct {
	// Enabled turns span export on.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Exporter is "otlp", "stdout" or "none".
	Exporter string `json:"exporter" yaml:"exporter"`

	// Endpoint is the OTLP gRPC collector endpoint.
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// Insecure disables TLS for the OTLP exporter.
	Insecure bool `json:"insecure" yaml:"insecure"`

	// SamplingRate is the trace sampling ratio in [0,1].
	SamplingRate float64 `json:"sampling_rate" yaml:"sampling_rate"`

	// ExportTimeout bounds one export batch.
	ExportTimeout time.Duration `json:"export_timeout" yaml:"export_timeout"`
}

// DefaultTracingConfig returns the tracing defaults.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		Enabled:       false,
		Exporter:      "none",
		SamplingRate:  1.0,
		ExportTimeout: 30 * time.Second,
	}
}
