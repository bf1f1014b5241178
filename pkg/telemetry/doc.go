// Package telemetry provides structured logging, Prometheus metrics and
// OpenTelemetry tracing for the slothlet runtime. All collectors are
// optional: nil receivers and disabled configs degrade to no-ops so the
// engine can be embedded without any observability wiring.
package telemetry
