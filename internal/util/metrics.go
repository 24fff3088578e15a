package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CheckoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_checkouts_total",
		Help: "Checkout attempts by kind and result code",
	}, []string{"kind", "result"})

	CheckoutLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pos_checkout_latency_seconds",
		Help:    "Latency of checkout operations",
		Buckets: prometheus.DefBuckets,
	})

	SaleAmount = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pos_sale_amount",
		Help:    "Total paid per recorded sale",
		Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	}, []string{"payment_method"})

	CascadeFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_checkout_cascade_failures_total",
		Help: "Best-effort checkout side effects that failed after the sale was recorded",
	}, []string{"step"})

	ShiftsOpenedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_shifts_opened_total",
		Help: "Total number of cash shifts opened",
	})

	ShiftsClosedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_shifts_closed_total",
		Help: "Total number of cash shifts closed",
	})

	DiscountUsesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_discount_uses_total",
		Help: "Discount usage increments by outcome",
	}, []string{"outcome"})

	StockEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_stock_events_total",
		Help: "Order status events seen by the stock reactor by outcome",
	}, []string{"outcome"})

	ProductsSuspendedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_products_suspended_total",
		Help: "Products taken off the menu because an ingredient fell below its minimum",
	})

	OutboxMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_outbox_messages_total",
		Help: "Outbox messages handled by the relay by result",
	}, []string{"result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
