// Package metrics exposes Prometheus instrumentation for the billing engine.
//
// Metrics registered here:
//
//	vpnbill_provisioning_requests_total         counter: panel calls by operation and outcome
//	vpnbill_provisioning_request_duration_secs  histogram: panel call latency by operation
//	vpnbill_reconciliation_ticks_total          counter: scheduler ticks by result
//	vpnbill_reconciliation_outcomes_total       counter: per-invoice tick outcomes
//	vpnbill_payment_events_total                counter: intake events by type
//	vpnbill_operator_alerts_total               counter: operator alerts by delivery result
//	vpnbill_expiry_reminders_total              counter: expiry reminders by result
//	vpnbill_http_requests_total                 counter: API requests by method/route/status
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ProvisioningRequests counts panel calls. outcome is the HTTP status or an error kind.
var ProvisioningRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "vpnbill_provisioning_requests_total",
	Help: "Provisioning panel calls by operation and outcome.",
}, []string{"method", "operation", "outcome"})

// ProvisioningDuration tracks full call latency, retries included.
var ProvisioningDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "vpnbill_provisioning_request_duration_seconds",
	Help:    "Provisioning panel call latency in seconds, retries included.",
	Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
}, []string{"method", "operation"})

// ReconciliationTicks counts scheduler ticks by result (ok, error).
var ReconciliationTicks = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "vpnbill_reconciliation_ticks_total",
	Help: "Reconciliation ticks by result.",
}, []string{"result"})

// ReconciliationOutcomes counts per-invoice outcomes (completed, retried, skipped, failed).
var ReconciliationOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "vpnbill_reconciliation_outcomes_total",
	Help: "Per-invoice reconciliation outcomes.",
}, []string{"outcome"})

// PaymentEvents counts payment intake events (confirmed, duplicate, delivered, delayed).
var PaymentEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "vpnbill_payment_events_total",
	Help: "Payment intake events by type.",
}, []string{"event"})

// OperatorAlerts counts alert deliveries per operator (sent, failed, dropped).
var OperatorAlerts = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "vpnbill_operator_alerts_total",
	Help: "Operator alert deliveries by result.",
}, []string{"result"})

// ExpiryReminders counts expiry reminders by result (sent, failed).
var ExpiryReminders = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "vpnbill_expiry_reminders_total",
	Help: "Expiry reminders by result.",
}, []string{"result"})

// HTTPRequests counts API requests.
var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "vpnbill_http_requests_total",
	Help: "Total HTTP requests handled.",
}, []string{"method", "route", "status"})

// HTTPDuration tracks API latency.
var HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "vpnbill_http_request_duration_seconds",
	Help:    "HTTP request latency in seconds.",
	Buckets: prometheus.DefBuckets,
}, []string{"method", "route"})

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// GinMiddleware records request counts and latency using the matched route template.
func GinMiddleware() gin.HandlerFunc {
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

// ObserveProvisioning records one logical panel call.
func ObserveProvisioning(method, operation, outcome string, elapsed time.Duration) {
	ProvisioningRequests.WithLabelValues(method, operation, outcome).Inc()
	ProvisioningDuration.WithLabelValues(method, operation).Observe(elapsed.Seconds())
}
