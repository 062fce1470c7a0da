// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file exposes Prometheus instrumentation for HTTP traffic under the
// "companionbot_http" prefix. Labels:
//
//   - method: HTTP method verb
//   - path:   the registered Gin route (e.g. /api/v1/companions/:id), or
//     "unmatched" when no route matched so scanners cannot blow up cardinality
//   - status: numeric status code as a string
//
// Webhook traffic dominates request counts; rejected updates (bad secret,
// malformed JSON) show up as 401/500 on the webhook route.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "companionbot"
	metricsSubsystem = "http"

	// unmatchedPath labels requests that matched no route.
	unmatchedPath = "unmatched"
)

var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			// Webhook acks are fast; the login upsert touches the DB.
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"method", "path"},
	)

	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "requests_inflight",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpPanics = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "panics_total",
			Help:      "Handler panics recovered, by route.",
		},
		[]string{"path"},
	)

	httpRespSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "response_size_bytes",
			Help:      "Size of HTTP responses in bytes.",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 7), // 64B..256KiB
		},
		[]string{"method", "path"},
	)
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, httpPanics, httpRespSize)
}

// Metrics returns a Gin middleware that instruments requests with Prometheus.
// Requests for which any skip function returns true (e.g. the /metrics
// scrape itself, via SkipPaths) are not recorded.
//
// Usage:
//
//	r.Use(middleware.Metrics(middleware.SkipPaths("/metrics")))
//	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
func Metrics(skip ...func(*gin.Context) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, s := range skip {
			if s(c) {
				c.Next()
				return
			}
		}

		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = unmatchedPath
		}
		method := c.Request.Method

		httpReqs.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpLat.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		// Size is -1 when nothing was written.
		if size := c.Writer.Size(); size >= 0 {
			httpRespSize.WithLabelValues(method, path).Observe(float64(size))
		}
	}
}
