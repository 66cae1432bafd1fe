package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "databoard_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "databoard_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Tabular parsing, by kind (csv, xls, xlsx) and outcome.
	FileParses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "databoard_file_parses_total",
			Help: "Total number of tabular payload parses",
		},
		[]string{"kind", "outcome"},
	)

	ChartRenders = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "databoard_chart_renders_total",
			Help: "Total number of chart images rendered",
		},
		[]string{"chart_type", "outcome"},
	)

	// Reports
	ReportDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "databoard_report_generation_duration_seconds",
			Help:    "Time spent composing report PDFs",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	ReportFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "databoard_report_generation_failures_total",
			Help: "Total number of report compositions that failed",
		},
	)

	// AI assistant outcomes: ok, error, circuit_open.
	AIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "databoard_ai_requests_total",
			Help: "Total number of AI model requests",
		},
		[]string{"outcome"},
	)
)

// Middleware records request counts and latency per matched route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the default registry.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
