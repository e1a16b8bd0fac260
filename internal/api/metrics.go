package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/memoryledger/internal/applier"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ledgerRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	ledgerRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	ledgerTransactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_transactions_total",
		Help: "Total transactions by operation and result code (ok when applied).",
	}, []string{"op", "code"})

	ledgerTransactionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_transaction_duration_seconds",
		Help:    "Time spent verifying and applying one transaction.",
		Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, 1, 5, 10},
	}, []string{"op"})

	ledgerEventsAppended = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_events_appended_total",
		Help: "Total events appended to the event log.",
	})

	ledgerHealthChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_health_checks_total",
		Help: "Total dependency probes by probe and result.",
	}, []string{"probe", "result"})
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
			path = "unmatched"
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

// ObserveTransaction records a transaction outcome. It has the signature of
// applier.Observer.
func ObserveTransaction(op applier.Op, code applier.Code, elapsed time.Duration) {
	label := string(code)
	if code == "" {
		label = "ok"
		ledgerEventsAppended.Inc()
	}
	ledgerTransactionsTotal.WithLabelValues(string(op), label).Inc()
	ledgerTransactionDuration.WithLabelValues(string(op)).Observe(elapsed.Seconds())
}

// RecordHealthCheck records a dependency probe result.
func RecordHealthCheck(probe string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	ledgerHealthChecksTotal.WithLabelValues(probe, result).Inc()
}
