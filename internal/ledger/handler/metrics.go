package handler

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/produce-escrow/internal/ledger/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	escrowOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_operations_total",
		Help: "Total lifecycle engine operations by operation and result.",
	}, []string{"op", "result"})

	escrowFundsHeld = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "escrow_funds_held_wei",
		Help: "Approximate wei currently held in escrow.",
	})

	escrowIncentivePointsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "escrow_incentive_points_total",
		Help: "Total incentive points awarded to farmers.",
	})

	escrowRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	escrowRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "escrow_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	escrowAuditEntriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "escrow_audit_entries_total",
		Help: "Total audit log entries appended.",
	})

	escrowWebhookDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_webhook_deliveries_total",
		Help: "Total webhook deliveries by success status.",
	}, []string{"status"})

	escrowDependencyUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "escrow_dependency_up",
		Help: "Whether the last probe of a backing service succeeded (1) or failed (0).",
	}, []string{"dependency"})
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

		escrowRequestsTotal.WithLabelValues(method, path, status).Inc()
		escrowRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordOperation records one engine operation. It matches
// service.OperationRecorder.
func RecordOperation(op string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	escrowOperationsTotal.WithLabelValues(op, result).Inc()
}

// RecordAuditAppend records an audit log append.
func RecordAuditAppend() {
	escrowAuditEntriesTotal.Inc()
}

// RecordWebhookDelivery records a webhook delivery attempt.
func RecordWebhookDelivery(success bool) {
	if success {
		escrowWebhookDeliveriesTotal.WithLabelValues("success").Inc()
	} else {
		escrowWebhookDeliveriesTotal.WithLabelValues("failure").Inc()
	}
}

// RecordDependencyCheck records a backing-service probe result.
func RecordDependencyCheck(name string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	escrowDependencyUp.WithLabelValues(name).Set(v)
}

// MetricsEmitter tracks escrow balances and incentive awards from engine
// events. It satisfies service.Emitter.
type MetricsEmitter struct{}

// Emit implements service.Emitter.
func (MetricsEmitter) Emit(_ context.Context, evt model.Event) {
	switch d := evt.Data.(type) {
	case model.EscrowFunded:
		escrowFundsHeld.Add(d.Amount.Float64())
	case model.Released:
		escrowFundsHeld.Sub(d.Amount.Float64())
	case model.Refunded:
		escrowFundsHeld.Sub(d.Amount.Float64())
	case model.IncentiveAwarded:
		escrowIncentivePointsTotal.Add(float64(d.Points))
	}
}
