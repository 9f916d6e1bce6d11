package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CheckoutSessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_sessions_total",
		Help: "Checkout session requests by result",
	}, []string{"result"})

	CheckoutOrphanedOrdersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_orphaned_orders_total",
		Help: "Pending orders persisted whose payment session could not be created",
	})

	CheckoutLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "checkout_latency_seconds",
		Help:    "Latency of checkout session creation",
		Buckets: prometheus.DefBuckets,
	})

	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhook_events_total",
		Help: "Payment webhook deliveries by outcome",
	}, []string{"outcome"})

	PaymentLookupLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "payment_lookup_latency_seconds",
		Help:    "Latency of authoritative payment lookups against the processor",
		Buckets: prometheus.DefBuckets,
	})

	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	})

	OrdersPaidTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_paid_total",
		Help: "Total number of orders transitioned to PAID",
	})

	OrdersCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_cancelled_total",
		Help: "Total number of orders transitioned to CANCELLED",
	})

	EmailsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_emails_total",
		Help: "Order notification emails by kind and result",
	}, []string{"kind", "result"})

	StockCacheUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_cache_updates_total",
		Help: "Stock cache evictions driven by order events",
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
