package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for flotilla.
type Metrics struct {
	config MetricsConfig

	// Play metrics
	playsStarted   *prometheus.CounterVec
	playsCompleted *prometheus.CounterVec
	playDuration   *prometheus.HistogramVec

	// Transition metrics
	transitions        *prometheus.CounterVec
	transitionDuration *prometheus.HistogramVec

	// Lifecycle check metrics
	checksRun     *prometheus.CounterVec
	checkAttempts *prometheus.HistogramVec

	// Daemon metrics
	daemonCalls  *prometheus.CounterVec
	daemonErrors *prometheus.CounterVec

	// System metrics
	activePlays prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector. When disabled, all
// record methods are no-ops.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		playsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "plays_started_total",
				Help:      "Total number of plays started",
			},
			[]string{"op"},
		),
		playsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "plays_completed_total",
				Help:      "Total number of plays completed",
			},
			[]string{"op", "status"},
		),
		playDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "play_duration_seconds",
				Help:      "Play duration in seconds",
				Buckets:   buckets,
			},
			[]string{"op"},
		),

		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transitions_total",
				Help:      "Total number of instance transitions by outcome",
			},
			[]string{"op", "outcome"},
		),
		transitionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "transition_duration_seconds",
				Help:      "Instance transition duration in seconds",
				Buckets:   buckets,
			},
			[]string{"op"},
		),

		checksRun: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "checks_total",
				Help:      "Total number of lifecycle checks by result",
			},
			[]string{"kind", "result"},
		),
		checkAttempts: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "check_attempts",
				Help:      "Number of attempts each lifecycle check took",
				Buckets:   []float64{1, 2, 3, 5, 10, 20, 30, 60},
			},
			[]string{"kind"},
		),

		daemonCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "daemon_calls_total",
				Help:      "Total number of Docker daemon calls",
			},
			[]string{"ship", "operation"},
		),
		daemonErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "daemon_errors_total",
				Help:      "Total number of failed Docker daemon calls",
			},
			[]string{"ship", "operation"},
		),

		activePlays: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_plays",
				Help:      "Current number of active plays",
			},
		),
	}

	registry.MustRegister(
		m.playsStarted,
		m.playsCompleted,
		m.playDuration,
		m.transitions,
		m.transitionDuration,
		m.checksRun,
		m.checkAttempts,
		m.daemonCalls,
		m.daemonErrors,
		m.activePlays,
	)

	return m, nil
}

// RecordPlayStarted increments the counter for started plays.
func (m *Metrics) RecordPlayStarted(op string) {
	if m.playsStarted == nil {
		return
	}
	m.playsStarted.WithLabelValues(op).Inc()
	m.activePlays.Inc()
}

// RecordPlayCompleted records a completed play with its status and duration.
func (m *Metrics) RecordPlayCompleted(op, status string, duration time.Duration) {
	if m.playsCompleted == nil {
		return
	}
	m.playsCompleted.WithLabelValues(op, status).Inc()
	m.playDuration.WithLabelValues(op).Observe(duration.Seconds())
	m.activePlays.Dec()
}

// RecordTransition records one instance transition outcome.
func (m *Metrics) RecordTransition(op, outcome string, duration time.Duration) {
	if m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(op, outcome).Inc()
	m.transitionDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordCheck records a lifecycle check result and how many attempts
// it took.
func (m *Metrics) RecordCheck(kind, result string, attempts int) {
	if m.checksRun == nil {
		return
	}
	m.checksRun.WithLabelValues(kind, result).Inc()
	m.checkAttempts.WithLabelValues(kind).Observe(float64(attempts))
}

// RecordDaemonCall records a Docker daemon call.
func (m *Metrics) RecordDaemonCall(ship, operation string) {
	if m.daemonCalls == nil {
		return
	}
	m.daemonCalls.WithLabelValues(ship, operation).Inc()
}

// RecordDaemonError records a failed Docker daemon call.
func (m *Metrics) RecordDaemonError(ship, operation string) {
	if m.daemonErrors == nil {
		return
	}
	m.daemonErrors.WithLabelValues(ship, operation).Inc()
}

// StartMetricsServer starts the metrics HTTP server if enabled. It
// serves in a background goroutine.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled || m.registry == nil {
		return nil
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}

// Registry exposes the underlying registry for testing.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Timer measures elapsed time for metric observations.
type Timer struct {
	start time.Time
}

// NewTimer starts a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
