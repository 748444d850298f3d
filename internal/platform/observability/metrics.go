package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the relay's Prometheus collectors. A nil *Metrics is valid and
// records nothing.
//
// Metrics:
//   - <ns>_http_requests_total: inbound requests by method, route, status
//   - <ns>_http_request_duration_seconds: inbound request latency
//   - <ns>_upstream_requests_total: upstream calls by outcome
//   - <ns>_upstream_request_duration_seconds: upstream call latency
//   - <ns>_upstream_response_shapes_total: normalized responses by detected shape
type Metrics struct {
	registry         *prometheus.Registry
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	upstreamRequests *prometheus.CounterVec
	upstreamDuration prometheus.Histogram
	responseShapes   *prometheus.CounterVec
}

// NewMetrics creates and registers the relay collectors on a private registry.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of inbound HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of inbound HTTP requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		upstreamRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "upstream",
				Name:      "requests_total",
				Help:      "Total number of upstream vectorization calls by outcome",
			},
			[]string{"outcome", "status"},
		),
		upstreamDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "upstream",
				Name:      "request_duration_seconds",
				Help:      "Duration of upstream vectorization calls in seconds",
				Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80, 120},
			},
		),
		responseShapes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "upstream",
				Name:      "response_shapes_total",
				Help:      "Normalized upstream responses by detected body shape",
			},
			[]string{"shape"},
		),
	}

	m.registry.MustRegister(
		m.httpRequests,
		m.httpDuration,
		m.upstreamRequests,
		m.upstreamDuration,
		m.responseShapes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns the Prometheus exposition handler.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHTTP records one inbound request.
func (m *Metrics) ObserveHTTP(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveUpstream records one upstream call. status is 0 when no response was received.
func (m *Metrics) ObserveUpstream(outcome string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.upstreamRequests.WithLabelValues(outcome, strconv.Itoa(status)).Inc()
	m.upstreamDuration.Observe(duration.Seconds())
}

// ObserveShape records which body shape the normalizer detected.
func (m *Metrics) ObserveShape(shape string) {
	if m == nil {
		return
	}
	m.responseShapes.WithLabelValues(shape).Inc()
}
