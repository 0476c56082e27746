package httpapi

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ledgerRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "svwen_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	ledgerRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "svwen_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	ledgerTransfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "svwen_transfers_total",
		Help: "Total transfer attempts by result.",
	}, []string{"result"})

	ledgerLoginsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "svwen_logins_total",
		Help: "Total successful logins.",
	})

	ledgerChainValid = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "svwen_chain_valid",
		Help: "1 when the last integrity check passed, 0 otherwise.",
	})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		ledgerRequestsTotal.WithLabelValues(method, path, status).Inc()
		ledgerRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

func recordTransfer(success bool) {
	if success {
		ledgerTransfersTotal.WithLabelValues("success").Inc()
	} else {
		ledgerTransfersTotal.WithLabelValues("failure").Inc()
	}
}

func recordLogin() {
	ledgerLoginsTotal.Inc()
}

func setChainValidGauge(valid bool) {
	if valid {
		ledgerChainValid.Set(1)
	} else {
		ledgerChainValid.Set(0)
	}
}
