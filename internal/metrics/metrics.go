// Package metrics owns the Prometheus collectors of the server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "planetterp"

// Metrics groups the collectors registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inFlight        prometheus.Gauge
	rateLimited     prometheus.Counter
	panics          prometheus.Counter
	mailSent        *prometheus.CounterVec
	passwordUpgrade *prometheus.CounterVec
}

// New registers every collector, plus the Go and process collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code",
		}, []string{"method", "route", "code"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Requests currently being served",
		}),
		rateLimited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_rate_limited_total",
			Help:      "Requests rejected by the rate limiter",
		}),
		panics: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_panics_total",
			Help:      "Handler panics recovered",
		}),
		mailSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mail_messages_total",
			Help:      "Email messages by backend and outcome",
		}, []string{"backend", "outcome"}), // outcome=sent|failed
		passwordUpgrade: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "password_hash_upgrades_total",
			Help:      "Stored password hashes re-encoded with the preferred hasher",
		}, []string{"algorithm"}),
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRequest records a finished request.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// RequestStarted and RequestFinished track in-flight requests.
func (m *Metrics) RequestStarted() {
	if m != nil {
		m.inFlight.Inc()
	}
}

func (m *Metrics) RequestFinished() {
	if m != nil {
		m.inFlight.Dec()
	}
}

// RecordRateLimited counts a rejected request.
func (m *Metrics) RecordRateLimited() {
	if m != nil {
		m.rateLimited.Inc()
	}
}

// RecordPanic counts a recovered panic.
func (m *Metrics) RecordPanic() {
	if m != nil {
		m.panics.Inc()
	}
}

// RecordMail counts one delivery attempt.
func (m *Metrics) RecordMail(backend string, err error) {
	if m == nil {
		return
	}
	outcome := "sent"
	if err != nil {
		outcome = "failed"
	}
	m.mailSent.WithLabelValues(backend, outcome).Inc()
}

// RecordPasswordUpgrade counts a re-encoded password hash.
func (m *Metrics) RecordPasswordUpgrade(algorithm string) {
	if m != nil {
		m.passwordUpgrade.WithLabelValues(algorithm).Inc()
	}
}
