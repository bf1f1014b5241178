package telemetry

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLoggerRespectsLevelAndFormat(t *testing.T) {
	cfg := DefaultLoggingConfig()
	cfg.Level = "warn"
	cfg.Format = "json"

	logger, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	if logger.GetLevel() != zerolog.WarnLevel {
		t.Errorf("level = %s, want warn", logger.GetLevel())
	}
}

func TestNewLoggerRejectsUnknownOutput(t *testing.T) {
	cfg := DefaultLoggingConfig()
	cfg.Output = "/nonexistent-dir/for-sure/app.log"
	if _, err := NewLogger(cfg); err == nil {
		t.Error("expected error for unwritable output path")
	}
}

func TestComponentLogger(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)
	cl := ComponentLogger(base, "scanner")
	cl.Info().Msg("hi")
	if !strings.Contains(buf.String(), `"component":"scanner"`) {
		t.Errorf("missing component field: %s", buf.String())
	}
}

func TestNilMetricsAreNoOps(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}
	if m != nil {
		t.Fatal("disabled metrics should be nil")
	}
	// None of these may panic on the nil receiver.
	m.UnitLoad("starlark", true)
	m.Materialization()
	m.FlattenDecision("single_match")
	m.Collision()
	m.ConfigOp("get", true)
	m.ConfigReload()
}

func TestMetricsExposition(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: true, Namespace: "slothlet"})
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}
	m.UnitLoad("starlark", true)
	m.FlattenDecision("single_match")
	m.ConfigReload()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	for _, want := range []string{
		"slothlet_unit_loads_total",
		"slothlet_flatten_decisions_total",
		"slothlet_config_reloads_total",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %s", want)
		}
	}
}

func TestNilTracerIsNoOp(t *testing.T) {
	tr, err := NewTracer(TracingConfig{Enabled: false}, "slothlet", "test")
	if err != nil {
		t.Fatalf("NewTracer failed: %v", err)
	}
	if tr != nil {
		t.Fatal("disabled tracer should be nil")
	}

	ctx, span := tr.StartSpan(context.Background(), "noop")
	if ctx == nil || span == nil {
		t.Fatal("nil tracer must still return a usable context and span")
	}
	span.End()
	if err := tr.Shutdown(context.Background()); err != nil {
		t.Errorf("nil tracer shutdown failed: %v", err)
	}
}
