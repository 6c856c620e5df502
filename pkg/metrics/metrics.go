// Package metrics holds the Prometheus collectors exported on /metrics.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "oraclegate"

// Circuit state gauge values.
const (
	CircuitClosed   = 0
	CircuitOpen     = 1
	CircuitHalfOpen = 2
)

type Metrics struct {
	workflowTotal      *prometheus.CounterVec
	workflowDuration   prometheus.Histogram
	stepDuration       *prometheus.HistogramVec
	circuitState       *prometheus.GaugeVec
	circuitTransitions *prometheus.CounterVec
	retryAttempts      *prometheus.CounterVec
	rateLimitRejected  prometheus.Counter
	fallbackTotal      *prometheus.CounterVec
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

// New registers all collectors with reg. Passing prometheus.DefaultRegisterer
// exposes them through promhttp.Handler().
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		workflowTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "executions_total",
			Help:      "Workflow executions by outcome and error type.",
		}, []string{"status", "error_type"}),
		workflowDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "duration_seconds",
			Help:      "End-to-end workflow duration in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),
		stepDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "step_duration_seconds",
			Help:      "Workflow step duration in seconds.",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"step", "status"}),
		circuitState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "circuit",
			Name:      "state",
			Help:      "Circuit state (0 closed, 1 open, 2 half-open).",
		}, []string{"name"}),
		circuitTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "circuit",
			Name:      "transitions_total",
			Help:      "Circuit state transitions by target state.",
		}, []string{"name", "to"}),
		retryAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retry",
			Name:      "attempts_total",
			Help:      "Retries performed after a failed attempt.",
		}, []string{"operation"}),
		rateLimitRejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rate_limit",
			Name:      "rejections_total",
			Help:      "Requests rejected by the per-key rate limiter.",
		}),
		fallbackTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_total",
			Help:      "Times a fallback provider or signer served a request.",
		}, []string{"kind", "name"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by operation and status code.",
		}, []string{"operation", "code"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   []float64{0.005, 0.05, 0.1, 0.5, 1, 5, 30, 120, 300},
		}, []string{"operation"}),
	}
}

func (m *Metrics) ObserveWorkflow(success bool, errorType string, seconds float64) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "failed"
	}
	m.workflowTotal.WithLabelValues(status, errorType).Inc()
	m.workflowDuration.Observe(seconds)
}

func (m *Metrics) ObserveStep(step, status string, seconds float64) {
	if m == nil {
		return
	}
	m.stepDuration.WithLabelValues(step, status).Observe(seconds)
}

// SetCircuitState records the current state of a breaker and counts the
// transition when changed is true.
func (m *Metrics) SetCircuitState(name string, state int, to string, changed bool) {
	if m == nil {
		return
	}
	m.circuitState.WithLabelValues(name).Set(float64(state))
	if changed {
		m.circuitTransitions.WithLabelValues(name, to).Inc()
	}
}

func (m *Metrics) IncRetry(operation string) {
	if m == nil {
		return
	}
	m.retryAttempts.WithLabelValues(operation).Inc()
}

func (m *Metrics) IncRateLimitRejected() {
	if m == nil {
		return
	}
	m.rateLimitRejected.Inc()
}

func (m *Metrics) IncFallback(kind, name string) {
	if m == nil {
		return
	}
	m.fallbackTotal.WithLabelValues(kind, name).Inc()
}

func (m *Metrics) ObserveHTTP(operation string, code int, seconds float64) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(operation, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(operation).Observe(seconds)
}
