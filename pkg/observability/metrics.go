package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Check results
const (
	CheckResultAllow = "allow"
	CheckResultDeny  = "deny"
	CheckResultError = "error"
)

// Consumer outcomes
const (
	OutcomeAcked        = "acked"
	OutcomeMalformed    = "malformed"
	OutcomeDeadLettered = "dead_lettered"
)

// Operation statuses
const (
	StatusOK    = "ok"
	StatusError = "error"
	StatusStale = "stale"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Authorization metrics
	ChecksTotal       *prometheus.CounterVec
	CheckDuration     prometheus.Histogram
	CacheLookupsTotal *prometheus.CounterVec

	// Cache write path metrics
	PopulationsTotal   *prometheus.CounterVec
	InvalidationsTotal *prometheus.CounterVec

	// Broker metrics
	PublishTotal           *prometheus.CounterVec
	ConsumerMessagesTotal  *prometheus.CounterVec
	ConsumerRetriesTotal   *prometheus.CounterVec
	ConsumerHandleDuration *prometheus.HistogramVec
	DeadLetterDepth        *prometheus.GaugeVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		ChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "permcache_checks_total",
				Help: "Total number of permission checks by result",
			},
			[]string{"result"},
		),
		CheckDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "permcache_check_duration_seconds",
				Help:    "Permission check duration in seconds",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
			},
		),
		CacheLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "permcache_cache_lookups_total",
				Help: "Total number of permission cache lookups by outcome",
			},
			[]string{"outcome"},
		),
		PopulationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "permcache_populations_total",
				Help: "Total number of login-time permission cache populations",
			},
			[]string{"status"},
		),
		InvalidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "permcache_invalidations_total",
				Help: "Total number of permission cache invalidations",
			},
			[]string{"status"},
		),
		PublishTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "permcache_publish_total",
				Help: "Total number of messages published to the broker",
			},
			[]string{"exchange", "status"},
		),
		ConsumerMessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "permcache_consumer_messages_total",
				Help: "Total number of consumed messages by final outcome",
			},
			[]string{"queue", "outcome"},
		),
		ConsumerRetriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "permcache_consumer_retries_total",
				Help: "Total number of handler retries",
			},
			[]string{"queue"},
		),
		ConsumerHandleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "permcache_consumer_handle_duration_seconds",
				Help:    "Time spent handling one message, retries included",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"queue"},
		),
		DeadLetterDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "permcache_dead_letter_depth",
				Help: "Number of messages waiting in a dead-letter queue",
			},
			[]string{"queue"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "permcache_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "permcache_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	if registry != nil {
		registry.MustRegister(
			m.ChecksTotal,
			m.CheckDuration,
			m.CacheLookupsTotal,
			m.PopulationsTotal,
			m.InvalidationsTotal,
			m.PublishTotal,
			m.ConsumerMessagesTotal,
			m.ConsumerRetriesTotal,
			m.ConsumerHandleDuration,
			m.DeadLetterDepth,
			m.HTTPRequestsTotal,
			m.HTTPRequestDuration,
		)
	}

	return m
}

// RecordCheck records the outcome of one permission check
func (m *Metrics) RecordCheck(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ChecksTotal.WithLabelValues(result).Inc()
	m.CheckDuration.Observe(duration.Seconds())
}

// RecordCacheLookup records a cache hit or miss
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.CacheLookupsTotal.WithLabelValues(outcome).Inc()
}

// RecordPopulation records a login-time cache write
func (m *Metrics) RecordPopulation(status string) {
	if m == nil {
		return
	}
	m.PopulationsTotal.WithLabelValues(status).Inc()
}

// RecordInvalidation records a cache invalidation
func (m *Metrics) RecordInvalidation(status string) {
	if m == nil {
		return
	}
	m.InvalidationsTotal.WithLabelValues(status).Inc()
}

// RecordPublish records a broker publish
func (m *Metrics) RecordPublish(exchange, status string) {
	if m == nil {
		return
	}
	m.PublishTotal.WithLabelValues(exchange, status).Inc()
}

// RecordConsumed records the final outcome of a delivered message
func (m *Metrics) RecordConsumed(queue, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ConsumerMessagesTotal.WithLabelValues(queue, outcome).Inc()
	m.ConsumerHandleDuration.WithLabelValues(queue).Observe(duration.Seconds())
}

// RecordRetry records one handler retry
func (m *Metrics) RecordRetry(queue string) {
	if m == nil {
		return
	}
	m.ConsumerRetriesTotal.WithLabelValues(queue).Inc()
}

// SetDeadLetterDepth sets the observed depth of a dead-letter queue
func (m *Metrics) SetDeadLetterDepth(queue string, depth int) {
	if m == nil {
		return
	}
	m.DeadLetterDepth.WithLabelValues(queue).Set(float64(depth))
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// MetricsHandler returns an HTTP handler exposing the registry
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
