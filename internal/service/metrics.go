package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ledgerCreditsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_credits_total",
			Help: "Virtual credits recorded, by result",
		},
		[]string{"result"}, // created, replayed
	)

	ledgerCreditedAmount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_credited_amount_total",
			Help: "Sum of virtual credit amounts in minor units",
		},
	)

	settlementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_batches_total",
			Help: "Settlement batches reaching a terminal state",
		},
		[]string{"trigger", "status"},
	)

	settlementBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "settlement_batch_size",
			Help:    "Virtual transactions folded into one settlement",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
		},
	)

	settlementFeesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "settlement_fees_total",
			Help: "Fees paid on settled batches in minor units",
		},
	)

	gatewayCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_call_duration_seconds",
			Help:    "Duration of gateway operations including retries",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10},
		},
		[]string{"provider", "operation", "result"},
	)

	gatewayAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_attempts_total",
			Help: "Individual provider attempts, by outcome",
		},
		[]string{"provider", "operation", "outcome"}, // success, rejected, transient
	)

	eventPublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "settlement_event_publish_errors_total",
			Help: "Settlement events that could not be published",
		},
	)
)
