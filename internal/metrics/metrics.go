// Package metrics exposes Prometheus collectors for the planner, its
// caches, the event bus and the HTTP surface.
package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/reelquery/reelquery/internal/pkg/errors"
)

const namespace = "reelquery"

// Metrics holds all application metrics on a private registry.
type Metrics struct {
	// Planner metrics
	Answers        *prometheus.CounterVec   // labels: final_state
	AnswerDuration *prometheus.HistogramVec // labels: final_state
	AnswerResults  prometheus.Histogram
	AnswerErrors   *prometheus.CounterVec   // labels: code
	StageDuration  *prometheus.HistogramVec // labels: stage
	Relaxations    *prometheus.CounterVec   // labels: to
	EndpointChosen *prometheus.CounterVec   // labels: endpoint

	// Cache metrics
	CacheHits   *prometheus.CounterVec // labels: type
	CacheMisses *prometheus.CounterVec // labels: type
	CacheSize   *prometheus.GaugeVec   // labels: type

	// Bus metrics
	BusEventsPublished *prometheus.CounterVec   // labels: topic
	BusEventLatency    *prometheus.HistogramVec // labels: topic
	BusErrors          *prometheus.CounterVec   // labels: topic

	// HTTP metrics
	HTTPRequests         *prometheus.CounterVec   // labels: method, path, status
	HTTPDuration         *prometheus.HistogramVec // labels: method, path
	HTTPRequestsInFlight prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a metrics instance with every collector registered on a
// fresh registry, together with the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		Answers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_total",
			Help:      "Total number of answered queries by final relaxation state.",
		}, []string{"final_state"}),
		AnswerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "answer_duration_seconds",
			Help:      "End to end answer latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"final_state"}),
		AnswerResults: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "answer_results",
			Help:      "Number of entries per answer.",
			Buckets:   []float64{0, 1, 3, 5, 10, 20, 50, 100},
		}),
		AnswerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answer_errors_total",
			Help:      "Total number of queries that failed with an error.",
		}, []string{"code"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"stage"}),
		Relaxations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relaxations_total",
			Help:      "Total number of relaxation transitions by target state.",
		}, []string{"to"}),
		EndpointChosen: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "endpoint_selected_total",
			Help:      "Total number of times each endpoint was executed.",
		}, []string{"endpoint"}),

		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of lookup cache hits.",
		}, []string{"type"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of lookup cache misses.",
		}, []string{"type"}),
		CacheSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_size",
			Help:      "Current lookup cache size.",
		}, []string{"type"}),

		BusEventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_events_published_total",
			Help:      "Total number of events published to the bus.",
		}, []string{"topic"}),
		BusEventLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bus_event_latency_seconds",
			Help:      "Event bus publish latency in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, []string{"topic"}),
		BusErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_errors_total",
			Help:      "Total number of event bus publish errors.",
		}, []string{"topic"}),

		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"method", "path"}),
		HTTPRequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Number of HTTP requests currently being processed.",
		}),

		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.Answers, m.AnswerDuration, m.AnswerResults, m.AnswerErrors,
		m.StageDuration, m.Relaxations, m.EndpointChosen,
		m.CacheHits, m.CacheMisses, m.CacheSize,
		m.BusEventsPublished, m.BusEventLatency, m.BusErrors,
		m.HTTPRequests, m.HTTPDuration, m.HTTPRequestsInFlight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordAnswer records one finished query.
func (m *Metrics) RecordAnswer(finalState string, results int, latency time.Duration) {
	m.Answers.WithLabelValues(finalState).Inc()
	m.AnswerDuration.WithLabelValues(finalState).Observe(latency.Seconds())
	m.AnswerResults.Observe(float64(results))
}

// RecordAnswerError records a query aborted by err.
func (m *Metrics) RecordAnswerError(err error) {
	m.AnswerErrors.WithLabelValues(errorCode(err)).Inc()
}

// RecordStage records the duration of a pipeline stage.
func (m *Metrics) RecordStage(stage string, latency time.Duration) {
	m.StageDuration.WithLabelValues(stage).Observe(latency.Seconds())
}

// RecordRelaxation records a transition into state to.
func (m *Metrics) RecordRelaxation(to string) {
	m.Relaxations.WithLabelValues(to).Inc()
}

// RecordEndpoint records an executed endpoint.
func (m *Metrics) RecordEndpoint(path string) {
	m.EndpointChosen.WithLabelValues(path).Inc()
}

// RecordBusPublish records event bus publish metrics.
func (m *Metrics) RecordBusPublish(topic string, latency time.Duration, err error) {
	m.BusEventsPublished.WithLabelValues(topic).Inc()
	m.BusEventLatency.WithLabelValues(topic).Observe(latency.Seconds())
	if err != nil {
		m.BusErrors.WithLabelValues(topic).Inc()
	}
}

// RecordCacheHit records a cache hit.
func (m *Metrics) RecordCacheHit(cacheType string) {
	m.CacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss records a cache miss.
func (m *Metrics) RecordCacheMiss(cacheType string) {
	m.CacheMisses.WithLabelValues(cacheType).Inc()
}

// UpdateCacheSize updates the cache size.
func (m *Metrics) UpdateCacheSize(cacheType string, size int) {
	m.CacheSize.WithLabelValues(cacheType).Set(float64(size))
}

// RecordHTTP records HTTP request metrics. It is called by the middleware.
func (m *Metrics) RecordHTTP(method, path string, status int, latency time.Duration) {
	normalized := normalizePath(path)
	m.HTTPRequests.WithLabelValues(method, normalized, statusCode(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, normalized).Observe(latency.Seconds())
}

// errorCode maps err onto a low-cardinality label.
func errorCode(err error) string {
	if err == nil {
		return "none"
	}
	if code := errors.CodeOf(err); code != "" {
		return strings.ToLower(code)
	}
	return "unknown"
}
