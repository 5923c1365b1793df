package httpx

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var histogramBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}

// apiMetrics exposes the agent's own request instrumentation through a
// dedicated registry, so a host app with its own default-registry
// collectors never collides with ours.
type apiMetrics struct {
	registry       *prometheus.Registry
	requestTotal   *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	observers      prometheus.Gauge
}

func newAPIMetrics() *apiMetrics {
	m := &apiMetrics{registry: prometheus.NewRegistry()}
	m.requestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "obskit",
		Subsystem: "agent",
		Name:      "http_requests_total",
		Help:      "Count of processed HTTP requests",
	}, []string{"method", "route", "status"})
	m.requestLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "obskit",
		Subsystem: "agent",
		Name:      "http_request_duration_seconds",
		Help:      "Latency distribution of HTTP handlers",
		Buckets:   histogramBuckets,
	}, []string{"method", "route", "status"})
	m.observers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "obskit",
		Subsystem: "agent",
		Name:      "stream_observers",
		Help:      "Number of attached dashboard observers",
	})
	m.registry.MustRegister(m.requestTotal, m.requestLatency, m.observers)
	return m
}

func (m *apiMetrics) observe(method, route string, status int, duration time.Duration) {
	labels := prometheus.Labels{
		"method": method,
		"route":  route,
		"status": strconv.Itoa(status),
	}
	m.requestTotal.With(labels).Inc()
	m.requestLatency.With(labels).Observe(duration.Seconds())
}

// handler serves the dedicated registry in Prometheus exposition format.
func (m *apiMetrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
