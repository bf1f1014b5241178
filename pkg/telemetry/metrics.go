package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the runtime. A nil *Metrics
// is a valid no-op collector.
type Metrics struct {
	config   MetricsConfig
	registry *prometheus.Registry

	unitLoads        *prometheus.CounterVec
	materializations prometheus.Counter
	flattenDecisions *prometheus.CounterVec
	collisions       prometheus.Counter
	configOps        *prometheus.CounterVec
	configReloads    prometheus.Counter
}

// NewMetrics creates a metrics collector. When cfg.Enabled is false it
// returns nil, which every method accepts.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "slothlet"
	}
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		unitLoads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "unit_loads_total",
				Help:      "Total unit loads by format and status",
			},
			[]string{"format", "status"},
		),
		materializations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lazy_materializations_total",
				Help:      "Total deferred subtrees materialized",
			},
		),
		flattenDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "flatten_decisions_total",
				Help:      "Total mount shape classifications",
			},
			[]string{"shape"},
		),
		collisions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "namespace_collisions_total",
				Help:      "Total shadowed sibling keys reported during flatten",
			},
		),
		configOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_ops_total",
				Help:      "Total config store operations by kind and status",
			},
			[]string{"op", "status"},
		),
		configReloads: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reloads_total",
				Help:      "Total atomic config reloads",
			},
		),
	}

	registry.MustRegister(
		m.unitLoads,
		m.materializations,
		m.flattenDecisions,
		m.collisions,
		m.configOps,
		m.configReloads,
	)
	return m, nil
}

// UnitLoad records one unit load attempt.
func (m *Metrics) UnitLoad(format string, ok bool) {
	if m == nil {
		return
	}
	m.unitLoads.WithLabelValues(format, statusLabel(ok)).Inc()
}

// Materialization records one deferred subtree materialization.
func (m *Metrics) Materialization() {
	if m == nil {
		return
	}
	m.materializations.Inc()
}

// FlattenDecision records one mount shape classification.
func (m *Metrics) FlattenDecision(shape string) {
	if m == nil {
		return
	}
	m.flattenDecisions.WithLabelValues(shape).Inc()
}

// Collision records one shadowed sibling key.
func (m *Metrics) Collision() {
	if m == nil {
		return
	}
	m.collisions.Inc()
}

// ConfigOp records one config store operation.
func (m *Metrics) ConfigOp(op string, ok bool) {
	if m == nil {
		return
	}
	m.configOps.WithLabelValues(op, statusLabel(ok)).Inc()
}

// ConfigReload records one atomic reload.
func (m *Metrics) ConfigReload() {
	if m == nil {
		return
	}
	m.configReloads.Inc()
}

// Handler returns an HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func statusLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
