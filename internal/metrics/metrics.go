// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tourbook_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tourbook_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	BookingOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tourbook_booking_operations_total",
		Help: "Committed booking writes by operation and resource type.",
	}, []string{"operation", "type"})

	LedgerRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tourbook_ledger_rejections_total",
		Help: "Reservations refused by the inventory ledger.",
	}, []string{"type", "reason"})

	PaymentOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tourbook_payment_outcomes_total",
		Help: "Payment status changes by resulting status and source.",
	}, []string{"status", "source"})

	GatewayDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tourbook_gateway_request_duration_seconds",
		Help:    "Payment gateway call latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "outcome"})

	ExpiredBookings = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tourbook_expired_bookings_total",
		Help: "Pending bookings cancelled by the expiry job.",
	})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
