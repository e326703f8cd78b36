// Package metrics exposes application instruments on the prometheus
// registry behind /metrics.
package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/fx"
)

var Module = fx.Module("observability.metrics",
	fx.Provide(New),
)

// HTTPMetrics instruments the request path. Labels stay low-cardinality:
// route templates only, never raw paths.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec

	loginAttempts  *prometheus.CounterVec
	tokenRefreshes *prometheus.CounterVec
	rateLimited    *prometheus.CounterVec
}

func New() *HTTPMetrics {
	return &HTTPMetrics{
		requests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "farmgate_http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		duration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "farmgate_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		loginAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "farmgate_login_attempts_total",
			Help: "Login attempts by outcome.",
		}, []string{"outcome"}),
		tokenRefreshes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "farmgate_token_refreshes_total",
			Help: "Refresh rotations by outcome.",
		}, []string{"outcome"}),
		rateLimited: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "farmgate_rate_limited_total",
			Help: "Requests rejected by the auth rate limiter.",
		}, []string{"endpoint"}),
	}
}

// RecordLogin counts a login attempt; outcome is "ok" or "failed".
func (m *HTTPMetrics) RecordLogin(outcome string) {
	if m == nil {
		return
	}
	m.loginAttempts.WithLabelValues(outcome).Inc()
}

// RecordRefresh counts a refresh rotation; outcome is "ok" or "failed".
func (m *HTTPMetrics) RecordRefresh(outcome string) {
	if m == nil {
		return
	}
	m.tokenRefreshes.WithLabelValues(outcome).Inc()
}

// RecordRateLimited counts a throttled request.
func (m *HTTPMetrics) RecordRateLimited(endpoint string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(endpoint).Inc()
}

// GinMiddleware observes every request against the route template.
func GinMiddleware(m *HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if strings.TrimSpace(route) == "" {
			route = "unknown"
		}
		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())

		m.requests.WithLabelValues(route, method, status).Inc()
		m.duration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
	}
}
