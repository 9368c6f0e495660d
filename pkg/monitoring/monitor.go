package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	// 查询中继指标：channel=bolt/http/mock，status=ok/error/blocked
	QueryExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_query_executions_total",
			Help: "Total number of relayed query executions",
		},
		[]string{"channel", "status"},
	)

	// 归一化失败（响应形状无法识别）计数，区别于合法的空结果
	UnrecognizedShapes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_unrecognized_shapes_total",
			Help: "Responses no normalization strategy could match",
		},
	)

	GradingResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grading_results_total",
			Help: "Grading outcomes by question type",
		},
		[]string{"type", "correct"},
	)
)

func Init() {
	prometheus.MustRegister(RequestCounter)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(QueryExecutions)
	prometheus.MustRegister(UnrecognizedShapes)
	prometheus.MustRegister(GradingResults)
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
