package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/wavectl/wavectl/pkg/engine"
)

// Metrics provides Prometheus metrics for wavectl. It implements
// engine.Instruments; a disabled collector degrades to a no-op so the
// scheduler never checks whether metrics are on.
type Metrics struct {
	config MetricsConfig

	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec

	componentsResolved *prometheus.CounterVec
	probes             *prometheus.CounterVec
	teardowns          *prometheus.CounterVec

	activeRuns prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) *Metrics {
	if !cfg.Enabled {
		return &Metrics{config: cfg}
	}

	namespace := cfg.Namespace
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		runsStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_started_total",
				Help:      "Total number of deployment runs started",
			},
		),
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of deployment runs completed",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of deployment runs in seconds",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
			},
			[]string{"status"},
		),
		componentsResolved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "components_resolved_total",
				Help:      "Total number of components reaching a terminal state",
			},
			[]string{"state", "required"},
		),
		probes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "health_probes_total",
				Help:      "Total number of health probes by outcome",
			},
			[]string{"outcome"},
		),
		teardowns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rollback_teardowns_total",
				Help:      "Total number of rollback teardowns by result",
			},
			[]string{"result"},
		),
		activeRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_runs",
				Help:      "Current number of active deployment runs",
			},
		),
	}

	registry.MustRegister(
		m.runsStarted,
		m.runsCompleted,
		m.runDuration,
		m.componentsResolved,
		m.probes,
		m.teardowns,
		m.activeRuns,
	)

	return m
}

// RunStarted implements engine.Instruments.
func (m *Metrics) RunStarted() {
	if m.runsStarted == nil {
		return
	}
	m.runsStarted.Inc()
	m.activeRuns.Inc()
}

// RunCompleted implements engine.Instruments.
func (m *Metrics) RunCompleted(status engine.RunStatus, duration time.Duration) {
	if m.runsCompleted == nil {
		return
	}
	m.runsCompleted.WithLabelValues(string(status)).Inc()
	m.runDuration.WithLabelValues(string(status)).Observe(duration.Seconds())
	m.activeRuns.Dec()
}

// ComponentResolved implements engine.Instruments.
func (m *Metrics) ComponentResolved(state engine.ComponentState, required bool) {
	if m.componentsResolved == nil {
		return
	}
	requiredLabel := "false"
	if required {
		requiredLabel = "true"
	}
	m.componentsResolved.WithLabelValues(string(state), requiredLabel).Inc()
}

// ProbeObserved implements engine.Instruments.
func (m *Metrics) ProbeObserved(outcome engine.HealthOutcome) {
	if m.probes == nil {
		return
	}
	m.probes.WithLabelValues(string(outcome)).Inc()
}

// TeardownObserved implements engine.Instruments.
func (m *Metrics) TeardownObserved(ok bool) {
	if m.teardowns == nil {
		return
	}
	result := "failure"
	if ok {
		result = "success"
	}
	m.teardowns.WithLabelValues(result).Inc()
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Serve exposes the metrics endpoint until ctx is cancelled. It returns
// immediately when metrics are disabled.
func (m *Metrics) Serve(ctx context.Context, logger zerolog.Logger) {
	if !m.config.Enabled {
		return
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	go func() {
		logger.Info().Str("addr", m.config.ListenAddress).Msg("metrics endpoint listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()
}
