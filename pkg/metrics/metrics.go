// Package metrics defines the Prometheus metric collectors used across the
// pipeline and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the pipeline. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestsInFlight  prometheus.Gauge
	SpansTotal            *prometheus.CounterVec
	ClassifierCallsTotal  *prometheus.CounterVec
	ClassifierLatency     *prometheus.HistogramVec
	ClassifierFailures    *prometheus.CounterVec
	LabelCacheHitsTotal   prometheus.Counter
	LabelCacheMissesTotal prometheus.Counter
	DocumentsTotal        *prometheus.CounterVec
	CircuitBreakerState   *prometheus.GaugeVec
}

// New creates all collectors and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates all collectors and registers them with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SpansTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "structurer_spans_total",
				Help: "Spans produced by the clusterer, by stage and label.",
			},
			[]string{"stage", "label"},
		),
		ClassifierCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "classifier_calls_total",
				Help: "Classifier invocations by stage.",
			},
			[]string{"stage"},
		),
		ClassifierLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "classifier_latency_seconds",
				Help:    "Classifier call latency in seconds.",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"stage"},
		),
		ClassifierFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "classifier_failures_total",
				Help: "Failed or misaligned classifier calls by stage.",
			},
			[]string{"stage"},
		),
		LabelCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "label_cache_hits_total",
				Help: "Total number of classifier label cache hits.",
			},
		),
		LabelCacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "label_cache_misses_total",
				Help: "Total number of classifier label cache misses.",
			},
		),
		DocumentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "documents_processed_total",
				Help: "Documents processed by outcome (ok, failed).",
			},
			[]string{"status"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SpansTotal,
		m.ClassifierCallsTotal,
		m.ClassifierLatency,
		m.ClassifierFailures,
		m.LabelCacheHitsTotal,
		m.LabelCacheMissesTotal,
		m.DocumentsTotal,
		m.CircuitBreakerState,
	)

	return m
}

func (m *Metrics) ObserveSpan(stage, label string) {
	if m == nil {
		return
	}
	m.SpansTotal.WithLabelValues(stage, label).Inc()
}

func (m *Metrics) ObserveClassifierCall(stage string, took time.Duration, err error) {
	if m == nil {
		return
	}
	m.ClassifierCallsTotal.WithLabelValues(stage).Inc()
	m.ClassifierLatency.WithLabelValues(stage).Observe(took.Seconds())
	if err != nil {
		m.ClassifierFailures.WithLabelValues(stage).Inc()
	}
}

func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.LabelCacheHitsTotal.Inc()
		return
	}
	m.LabelCacheMissesTotal.Inc()
}

func (m *Metrics) ObserveDocument(status string) {
	if m == nil {
		return
	}
	m.DocumentsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) SetBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
