package api

import (
	"context"
	"database/sql"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/gray-logic-identity/internal/auth"
)

// metricsNamespace prefixes every exported series.
const metricsNamespace = "identity"

// Metrics holds the Prometheus collectors exported on /metrics.
//
// Metrics implements auth.ActivitySink so account flows are counted by kind
// and outcome.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	AuthEventsTotal     *prometheus.CounterVec
	RateLimitedTotal    *prometheus.CounterVec

	watchOnce sync.Once
}

// NewMetrics creates the collectors on a private registry, together with
// the Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		AuthEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "auth_events_total",
				Help:      "Account flows by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		RateLimitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "rate_limited_total",
				Help:      "Requests rejected by the rate limiter",
			},
			[]string{"route"},
		),
	}

	m.registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthEventsTotal,
		m.RateLimitedTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRequest records one completed HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RateLimited counts a rejected request on route.
func (m *Metrics) RateLimited(route string) {
	m.RateLimitedTotal.WithLabelValues(route).Inc()
}

// Record counts an account flow.
func (m *Metrics) Record(_ context.Context, ev auth.ActivityEvent) {
	m.AuthEventsTotal.WithLabelValues(string(ev.Kind), ev.Outcome).Inc()
}

// watch registers gauges over the WebSocket hub and the connection pool.
// Only the first call has an effect.
func (m *Metrics) watch(hub *Hub, db *sql.DB) {
	m.watchOnce.Do(func() {
		if hub != nil {
			m.registry.MustRegister(prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Namespace: metricsNamespace,
					Name:      "activity_clients",
					Help:      "Connected activity feed clients",
				},
				func() float64 { return float64(hub.ClientCount()) },
			))
		}
		if db != nil {
			m.registry.MustRegister(collectors.NewDBStatsCollector(db, metricsNamespace))
		}
	})
}
