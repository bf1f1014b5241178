package config

import (
	"github.com/slothlet/slothlet/pkg/telemetry"
)

// Mount binds an API key to a source path, either a single unit file
// or a directory tree to scan.
type Mount struct {
	Key  string `json:"key" yaml:"key" validate:"required"`
	Path string `json:"path" yaml:"path" validate:"required"`
}

// StoreConfig configures the namespaced config store.
type StoreConfig struct {
	// Defaults is a YAML file seeding the core and public namespaces.
	Defaults string `json:"defaults" yaml:"defaults"`

	// Store is the SQLite database path for module-namespace
	// persistence. Empty disables persistence.
	Store string `json:"store" yaml:"store"`

	// Watch reloads the store when the defaults file changes.
	Watch bool `json:"watch" yaml:"watch"`
}

// Config is the full runtime bootstrap configuration.
type Config struct {
	// Dir mounts a whole directory tree at the API root.
	Dir string `json:"dir" yaml:"dir"`

	// Mounts are explicit key-to-path bindings merged into the API.
	Mounts []Mount `json:"mounts" yaml:"mounts" validate:"dive"`

	// Lazy defers unit loading until first access.
	Lazy bool `json:"lazy" yaml:"lazy"`

	Store   StoreConfig             `json:"store_config" yaml:"store_config"`
	Logging telemetry.LoggingConfig `json:"logging" yaml:"logging"`
	Metrics telemetry.MetricsConfig `json:"metrics" yaml:"metrics"`
	Tracing telemetry.TracingConfig `json:"tracing" yaml:"tracing"`
}

// DefaultConfig returns a configuration with all defaults applied.
func DefaultConfig() Config {
	return Config{
		Lazy:    true,
		Logging: telemetry.DefaultLoggingConfig(),
		Metrics: telemetry.DefaultMetricsConfig(),
		Tracing: telemetry.DefaultTracingConfig(),
	}
}
