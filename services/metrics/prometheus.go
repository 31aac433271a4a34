package metricsvc

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the API Prometheus metrics
type Metrics struct {
	gatherer prometheus.Gatherer

	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Tenancy metrics
	HostResolutions *prometheus.CounterVec
	GuardRejections *prometheus.CounterVec
	HandoffsTotal   *prometheus.CounterVec

	// Auth metrics
	LoginsTotal      *prometheus.CounterVec
	RateLimitedTotal *prometheus.CounterVec
}

// NewMetrics creates and registers the metrics with `reg`.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		gatherer: reg,

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edapp_http_requests_total",
				Help: "Total number of HTTP requests processed",
			},
			[]string{"method", "route", "code"},
		),

		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "edapp_http_request_duration_seconds",
				Help:    "Duration of HTTP request processing",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		HostResolutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edapp_host_resolutions_total",
				Help: "Total number of resolved request hosts, by site kind",
			},
			[]string{"kind"},
		),

		GuardRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edapp_tenant_guard_rejections_total",
				Help: "Total number of requests rejected by the tenant isolation guard",
			},
			[]string{"reason"},
		),

		HandoffsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edapp_handoffs_total",
				Help: "Total number of session handoff operations",
			},
			[]string{"operation", "status"},
		),

		LoginsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edapp_logins_total",
				Help: "Total number of login attempts",
			},
			[]string{"status"},
		),

		RateLimitedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edapp_rate_limited_total",
				Help: "Total number of rate limited requests",
			},
			[]string{"route"},
		),
	}
}

// NewDefaultMetrics registers the metrics, with the Go & process collectors, in a new registry.
func NewDefaultMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return NewMetrics(reg)
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
