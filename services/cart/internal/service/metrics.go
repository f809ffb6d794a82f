package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Purchase results recorded in checkoutPurchases.
const (
	purchaseResultSuccess            = "success"
	purchaseResultNotificationFailed = "notification_failed"
	purchaseResultUnreconciled       = "unreconciled"
	purchaseResultTicketFailed       = "ticket_failed"
	purchaseResultDuplicate          = "duplicate"
)

var (
	checkoutPurchases = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_purchases_total",
		Help: "Total number of purchase attempts by result",
	}, []string{"result"})

	checkoutPurchaseDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "checkout_purchase_duration_seconds",
		Help:    "Duration of the purchase pipeline in seconds",
		Buckets: prometheus.DefBuckets,
	})

	checkoutReconcileAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_reconcile_attempts_total",
		Help: "Total number of cart reconciliation attempts by result",
	}, []string{"result"})
)
