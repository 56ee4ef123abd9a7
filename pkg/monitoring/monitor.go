package monitoring

import (
	"strconv"
	"sync"
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

	HeartbeatCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playstats_heartbeats_total",
			Help: "Heartbeats by resulting session state",
		},
		[]string{"state"},
	)

	SubmissionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playstats_submissions_total",
			Help: "Result submissions by outcome",
		},
		[]string{"outcome"},
	)

	QueueMessageCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playstats_queue_messages_total",
			Help: "Work queue message transitions",
		},
		[]string{"type", "outcome"},
	)

	QueueHandlerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "playstats_queue_handler_duration_seconds",
			Help:    "Duration of work queue handlers",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)
)

var initOnce sync.Once

func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(RequestCounter)
		prometheus.MustRegister(RequestDuration)
		prometheus.MustRegister(HeartbeatCounter)
		prometheus.MustRegister(SubmissionCounter)
		prometheus.MustRegister(QueueMessageCounter)
		prometheus.MustRegister(QueueHandlerDuration)
	})
}

// MetricsMiddleware 以路由模板为 endpoint 标签，未匹配的路径合并为 "unmatched"
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		RequestCounter.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
		RequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
