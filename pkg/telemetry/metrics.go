package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the conversion engine.
type Metrics struct {
	config MetricsConfig

	// Planning metrics
	plansRequested *prometheus.CounterVec
	plansFound     *prometheus.CounterVec
	planDuration   *prometheus.HistogramVec
	planSteps      *prometheus.HistogramVec

	// Step execution metrics
	stepsExecuted *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec

	// Converter metrics
	converterCalls    *prometheus.CounterVec
	converterDuration *prometheus.HistogramVec
	converterErrors   *prometheus.CounterVec

	// Error metrics
	errorsByKind *prometheus.CounterVec

	// Memory budget metrics
	memoryReservations *prometheus.CounterVec
	memoryInUse        prometheus.Gauge
	memoryDenied       prometheus.Counter

	// System metrics
	activeExecutions prometheus.Gauge
	queuedJobs       prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
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

		plansRequested: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "plans_requested_total", Help: "Total number of plan searches requested"},
			[]string{"optimize_target"},
		),
		plansFound: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "plans_found_total", Help: "Total number of plan searches by outcome"},
			[]string{"outcome"},
		),
		planDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Namespace: namespace, Name: "plan_search_duration_seconds", Help: "Duration of planner searches", Buckets: buckets},
			[]string{"outcome"},
		),
		planSteps: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Namespace: namespace, Name: "plan_steps", Help: "Number of steps in found plans", Buckets: []float64{0, 1, 2, 3, 5, 8, 10}},
			[]string{"optimize_target"},
		),

		stepsExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "steps_executed_total", Help: "Total number of plan steps executed"},
			[]string{"converter", "status"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Namespace: namespace, Name: "step_duration_seconds", Help: "Duration of individual step execution", Buckets: buckets},
			[]string{"converter"},
		),

		converterCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "converter_calls_total", Help: "Total number of converter invocations"},
			[]string{"converter", "entrypoint"},
		),
		converterDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Namespace: namespace, Name: "converter_call_duration_seconds", Help: "Duration of converter invocations", Buckets: buckets},
			[]string{"converter", "entrypoint"},
		),
		converterErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "converter_errors_total", Help: "Total number of converter errors"},
			[]string{"converter", "kind"},
		),

		errorsByKind: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "errors_total", Help: "Total number of executor errors by kind"},
			[]string{"kind"},
		),

		memoryReservations: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "memory_reservations_total", Help: "Total number of memory budget reservation attempts"},
			[]string{"outcome"},
		),
		memoryInUse: prometheus.NewGauge(
			prometheus.GaugeOpts{Namespace: namespace, Name: "memory_in_use_bytes", Help: "Current bytes reserved against the memory budget"},
		),
		memoryDenied: prometheus.NewCounter(
			prometheus.CounterOpts{Namespace: namespace, Name: "memory_denied_total", Help: "Total number of reservations denied for exceeding the limit"},
		),

		activeExecutions: prometheus.NewGauge(
			prometheus.GaugeOpts{Namespace: namespace, Name: "active_executions", Help: "Current number of in-flight plan executions"},
		),
		queuedJobs: prometheus.NewGauge(
			prometheus.GaugeOpts{Namespace: namespace, Name: "queued_jobs", Help: "Current number of jobs queued for parallel execution"},
		),
	}

	registry.MustRegister(
		m.plansRequested, m.plansFound, m.planDuration, m.planSteps,
		m.stepsExecuted, m.stepDuration,
		m.converterCalls, m.converterDuration, m.converterErrors,
		m.errorsByKind,
		m.memoryReservations, m.memoryInUse, m.memoryDenied,
		m.activeExecutions, m.queuedJobs,
	)

	return m, nil
}

// RecordPlanSearch records the outcome of a planner.Plan call.
func (m *Metrics) RecordPlanSearch(optimizeTarget, outcome string, duration time.Duration, steps int) {
	if m.plansRequested == nil {
		return
	}
	m.plansRequested.WithLabelValues(optimizeTarget).Inc()
	m.plansFound.WithLabelValues(outcome).Inc()
	m.planDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	if outcome == "found" {
		m.planSteps.WithLabelValues(optimizeTarget).Observe(float64(steps))
	}
}

// RecordStepExecution records one executed plan step.
func (m *Metrics) RecordStepExecution(converterID, status string, duration time.Duration) {
	if m.stepsExecuted == nil {
		return
	}
	m.stepsExecuted.WithLabelValues(converterID, status).Inc()
	m.stepDuration.WithLabelValues(converterID).Observe(duration.Seconds())
}

// RecordConverterCall records one converter entry-point invocation.
func (m *Metrics) RecordConverterCall(converterID, entrypoint string, duration time.Duration) {
	if m.converterCalls == nil {
		return
	}
	m.converterCalls.WithLabelValues(converterID, entrypoint).Inc()
	m.converterDuration.WithLabelValues(converterID, entrypoint).Observe(duration.Seconds())
}

// RecordConverterError records a converter-layer error.
func (m *Metrics) RecordConverterError(converterID, kind string) {
	if m.converterErrors == nil {
		return
	}
	m.converterErrors.WithLabelValues(converterID, kind).Inc()
}

// RecordError records an executor-layer error by kind.
func (m *Metrics) RecordError(kind string) {
	if m.errorsByKind == nil {
		return
	}
	m.errorsByKind.WithLabelValues(kind).Inc()
}

// RecordMemoryReservation records a memory budget reservation attempt and
// updates the current in-use gauge.
func (m *Metrics) RecordMemoryReservation(granted bool, inUse uint64) {
	if m.memoryReservations == nil {
		return
	}
	if granted {
		m.memoryReservations.WithLabelValues("granted").Inc()
	} else {
		m.memoryReservations.WithLabelValues("denied").Inc()
		m.memoryDenied.Inc()
	}
	m.memoryInUse.Set(float64(inUse))
}

// SetActiveExecutions sets the current number of in-flight executions.
func (m *Metrics) SetActiveExecutions(count float64) {
	if m.activeExecutions == nil {
		return
	}
	m.activeExecutions.Set(count)
}

// SetQueuedJobs sets the current number of queued parallel jobs.
func (m *Metrics) SetQueuedJobs(count float64) {
	if m.queuedJobs == nil {
		return
	}
	m.queuedJobs.Set(count)
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration is a helper to time an operation and record it.
func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(t.Duration().Seconds())
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

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
