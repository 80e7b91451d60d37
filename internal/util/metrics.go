package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersSettledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_settled_total",
		Help: "Total number of orders settled",
	})

	OrdersReversedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_reversed_total",
		Help: "Total number of orders reversed",
	})

	SettlementsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlements_failed_total",
		Help: "Total number of failed settlement operations",
	}, []string{"reason"})

	SettlementRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_retries_total",
		Help: "Total number of settlement retries after lock contention",
	})

	StockConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_conflicts_total",
		Help: "Total number of insufficient-stock rejections",
	})

	SettlementLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "settlement_latency_seconds",
		Help:    "Latency of order settlement operations",
		Buckets: prometheus.DefBuckets,
	})

	AuditAppendFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audit_append_failures_total",
		Help: "Total number of failed audit log appends",
	})

	LowStockProductsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "low_stock_alerts_total",
		Help: "Total number of low stock alerts emitted",
	})

	RateLimitedRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rate_limited_requests_total",
		Help: "Total number of requests rejected by the rate limiter",
	})

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
