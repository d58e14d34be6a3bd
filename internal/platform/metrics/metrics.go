// Package metrics holds the Prometheus collectors exported by the server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all collectors on a private registry so tests can create
// as many instances as they like.
type Metrics struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorsTotal         *prometheus.CounterVec

	healthChecksTotal *prometheus.CounterVec
	dbUp              prometheus.Gauge

	registry *prometheus.Registry
}

// New creates the collectors and registers them together with the Go
// runtime and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verily_http_requests_total",
				Help: "Total number of HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "verily_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verily_errors_total",
				Help: "Application errors by wire discriminant and origin",
			},
			[]string{"type", "source"},
		),
		healthChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verily_db_health_checks_total",
				Help: "Database health checks by result",
			},
			[]string{"result"},
		),
		dbUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "verily_db_up",
			Help: "1 when the last database health check succeeded",
		}),
		registry: registry,
	}

	registry.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.errorsTotal,
		m.healthChecksTotal,
		m.dbUp,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// RecordHTTPRequest counts a finished request.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordError counts an error by its discriminant. source is "http" for
// responses and "health" for background checks.
func (m *Metrics) RecordError(errorType, source string) {
	m.errorsTotal.WithLabelValues(errorType, source).Inc()
}

// RecordHealthCheck records the outcome of a database health check.
func (m *Metrics) RecordHealthCheck(ok bool) {
	if ok {
		m.healthChecksTotal.WithLabelValues("ok").Inc()
		m.dbUp.Set(1)
		return
	}
	m.healthChecksTotal.WithLabelValues("error").Inc()
	m.dbUp.Set(0)
}

// Handler returns the Prometheus exposition handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
