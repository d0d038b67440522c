package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics bundles the shared registry with the counters the billing core
// increments on its hot paths.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	RegistrationsStarted   prometheus.Counter
	RegistrationsSucceeded prometheus.Counter
	RegistrationsFailed    prometheus.Counter
	ExchangeRequests       *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		Registry: reg,
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "billinghub_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "billinghub_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		RegistrationsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "billinghub_registrations_started_total",
			Help: "Billing-auth registrations initiated.",
		}),
		RegistrationsSucceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "billinghub_registrations_succeeded_total",
			Help: "Billing-auth registrations completed with a stored payment method.",
		}),
		RegistrationsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "billinghub_registrations_failed_total",
			Help: "Billing-auth registrations that ended in a failed state.",
		}),
		ExchangeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "billinghub_exchange_requests_total",
			Help: "authKey exchange calls by outcome (issued, replayed, vendor_rejected, error).",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.HTTPRequests,
		m.HTTPDuration,
		m.RegistrationsStarted,
		m.RegistrationsSucceeded,
		m.RegistrationsFailed,
		m.ExchangeRequests,
	)

	return m
}

// GinMiddleware records request counts and latency per route template.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
