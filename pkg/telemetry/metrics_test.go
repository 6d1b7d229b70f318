package telemetry

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/wavectl/wavectl/pkg/engine"
)

// The collector must satisfy the engine's measurement interface.
var _ engine.Instruments = (*Metrics)(nil)

func enabledMetrics() *Metrics {
	return NewMetrics(MetricsConfig{
		Enabled:   true,
		Namespace: "wavectl",
		Path:      "/metrics",
	})
}

func TestMetrics_DisabledIsNoop(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})

	// None of these may panic on the nil collectors.
	m.RunStarted()
	m.RunCompleted(engine.RunStatusSucceeded, time.Second)
	m.ComponentResolved(engine.StateHealthy, true)
	m.ProbeObserved(engine.OutcomeRetryable)
	m.TeardownObserved(true)
}

func TestMetrics_CountsRunLifecycle(t *testing.T) {
	m := enabledMetrics()

	m.RunStarted()
	if got := testutil.ToFloat64(m.activeRuns); got != 1 {
		t.Errorf("expected 1 active run, got %v", got)
	}

	m.RunCompleted(engine.RunStatusRolledBack, 3*time.Second)
	if got := testutil.ToFloat64(m.activeRuns); got != 0 {
		t.Errorf("expected 0 active runs, got %v", got)
	}
	if got := testutil.ToFloat64(m.runsCompleted.WithLabelValues("rolled_back")); got != 1 {
		t.Errorf("expected 1 rolled back run, got %v", got)
	}
}

func TestMetrics_CountsComponentOutcomes(t *testing.T) {
	m := enabledMetrics()

	m.ComponentResolved(engine.StateHealthy, true)
	m.ComponentResolved(engine.StateHealthy, true)
	m.ComponentResolved(engine.StateFailed, false)
	m.ProbeObserved(engine.OutcomeRetryable)
	m.ProbeObserved(engine.OutcomeHealthy)
	m.TeardownObserved(false)

	if got := testutil.ToFloat64(m.componentsResolved.WithLabelValues("healthy", "true")); got != 2 {
		t.Errorf("expected 2 healthy required components, got %v", got)
	}
	if got := testutil.ToFloat64(m.componentsResolved.WithLabelValues("failed", "false")); got != 1 {
		t.Errorf("expected 1 failed optional component, got %v", got)
	}
	if got := testutil.ToFloat64(m.probes.WithLabelValues("retryable")); got != 1 {
		t.Errorf("expected 1 retryable probe, got %v", got)
	}
	if got := testutil.ToFloat64(m.teardowns.WithLabelValues("failure")); got != 1 {
		t.Errorf("expected 1 failed teardown, got %v", got)
	}
}

func TestLogger_FieldHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	child := ComponentLogger(logger, "scheduler")
	child = RunLogger(child, "run-1")
	child = WaveLogger(child, 2)
	child.Info().Msg("wave started")

	line := buf.String()
	for _, want := range []string{`"component":"scheduler"`, `"run_id":"run-1"`, `"wave":2`} {
		if !strings.Contains(line, want) {
			t.Errorf("expected log line to contain %s, got %s", want, line)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config must validate, got %v", err)
	}

	bad := DefaultConfig()
	bad.Logging.Level = "loud"
	if err := bad.Validate(); err == nil {
		t.Error("expected invalid log level to be rejected")
	}

	bad = DefaultConfig()
	bad.Tracing.Enabled = true
	bad.Tracing.Exporter = "carrier-pigeon"
	if err := bad.Validate(); err == nil {
		t.Error("expected invalid exporter to be rejected")
	}

	bad = DefaultConfig()
	bad.Metrics.Enabled = true
	bad.Metrics.ListenAddress = ""
	if err := bad.Validate(); err == nil {
		t.Error("expected missing listen address to be rejected")
	}
}
