// Package metrics instruments the draft workflow with Prometheus metrics
// and OpenTelemetry spans.
//
// Metrics collected (namespace "jobtrail" by default):
//   - ingest_total{outcome}: ingestion calls by resulting draft status
//   - ingest_duration_seconds: ingestion call latency
//   - save_total{outcome}: persistence calls by outcome
//   - save_duration_seconds: persistence call latency
//   - rollbacks_total: optimistic removals undone after a failed save
//   - fetch_page_total{outcome}: listings table page fetches by outcome
//   - active_sessions: open page sessions
//   - websocket_errors_total{type}: browser socket errors
//   - http_requests_total{method,route,code} and http_request_duration_seconds{route}
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeStale   = "stale"
)

// Config configures the metric set.
type Config struct {
	// Namespace is the metrics namespace (default: "jobtrail").
	Namespace string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for call durations.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registerer receives the metrics. Default: prometheus.DefaultRegisterer
	Registerer prometheus.Registerer

	// Gatherer backs Handler. Default: prometheus.DefaultGatherer
	Gatherer prometheus.Gatherer
}

// Option configures the metric set.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry registers into and gathers from reg.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(c *Config) {
		c.Registerer = reg
		c.Gatherer = reg
	}
}

func defaultConfig() Config {
	return Config{
		Namespace:  "jobtrail",
		Buckets:    prometheus.DefBuckets,
		Registerer: prometheus.DefaultRegisterer,
		Gatherer:   prometheus.DefaultGatherer,
	}
}

// Metrics holds the registered collectors.
type Metrics struct {
	ingestTotal    *prometheus.CounterVec
	ingestDuration prometheus.Histogram
	saveTotal      *prometheus.CounterVec
	saveDuration   prometheus.Histogram
	rollbacksTotal prometheus.Counter
	fetchPageTotal *prometheus.CounterVec
	activeSessions prometheus.Gauge
	wsErrors       *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	gatherer       prometheus.Gatherer
}

// New registers the metric set. Registering twice into the same registry
// panics, as with promauto.
func New(opts ...Option) *Metrics {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registerer)

	return &Metrics{
		ingestTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "ingest_total",
			Help:        "Total number of listing ingestion calls by resulting draft status",
			ConstLabels: config.ConstLabels,
		}, []string{"outcome"}),

		ingestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Name:        "ingest_duration_seconds",
			Help:        "Listing ingestion call duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),

		saveTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "save_total",
			Help:        "Total number of listing save calls by outcome",
			ConstLabels: config.ConstLabels,
		}, []string{"outcome"}),

		saveDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Name:        "save_duration_seconds",
			Help:        "Listing save call duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),

		rollbacksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "rollbacks_total",
			Help:        "Total number of optimistic removals rolled back after a failed save",
			ConstLabels: config.ConstLabels,
		}),

		fetchPageTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "fetch_page_total",
			Help:        "Total number of listings page fetches by outcome",
			ConstLabels: config.ConstLabels,
		}, []string{"outcome"}),

		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Name:        "active_sessions",
			Help:        "Number of open page sessions",
			ConstLabels: config.ConstLabels,
		}),

		wsErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "websocket_errors_total",
			Help:        "Total WebSocket errors by type",
			ConstLabels: config.ConstLabels,
		}, []string{"type"}),

		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "http_requests_total",
			Help:        "Total HTTP requests by method, route and status code",
			ConstLabels: config.ConstLabels,
		}, []string{"method", "route", "code"}),

		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Name:        "http_request_duration_seconds",
			Help:        "HTTP request duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"route"}),

		gatherer: config.Gatherer,
	}
}

// Handler serves the gathered metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveIngest records one ingestion call.
func (m *Metrics) ObserveIngest(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ingestTotal.WithLabelValues(outcome).Inc()
	m.ingestDuration.Observe(d.Seconds())
}

// ObserveSave records one persistence call.
func (m *Metrics) ObserveSave(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.saveTotal.WithLabelValues(outcome).Inc()
	m.saveDuration.Observe(d.Seconds())
}

// RecordRollback records one rolled-back optimistic removal.
func (m *Metrics) RecordRollback() {
	if m == nil {
		return
	}
	m.rollbacksTotal.Inc()
}

// ObserveFetchPage records one listings page fetch.
func (m *Metrics) ObserveFetchPage(outcome string) {
	if m == nil {
		return
	}
	m.fetchPageTotal.WithLabelValues(outcome).Inc()
}

// RecordSessionOpen records a new page session.
func (m *Metrics) RecordSessionOpen() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

// RecordSessionClose records a closed page session.
func (m *Metrics) RecordSessionClose() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

// RecordWebSocketError records a browser socket error.
func (m *Metrics) RecordWebSocketError(errorType string) {
	if m == nil {
		return
	}
	m.wsErrors.WithLabelValues(errorType).Inc()
}
