package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SettlementStatus is the state of one consolidation attempt.
type SettlementStatus string

const (
	SettlementStatusBatched SettlementStatus = "BATCHED"
	SettlementStatusSettled SettlementStatus = "SETTLED"
	SettlementStatusFailed  SettlementStatus = "FAILED"
)

// BatchSettlement is one attempt to move a user's pending credits through the
// gateway. A retry is a new record; failed records are never reused.
type BatchSettlement struct {
	ID               uuid.UUID        `json:"id"`
	UserID           string           `json:"user_id"`
	GrossAmount      int64            `json:"gross_amount"`
	FeeAmount        int64            `json:"fee_amount"`
	NetAmount        int64            `json:"net_amount"`
	TransactionCount int              `json:"transaction_count"`
	Provider         Provider         `json:"provider"`
	ExternalTxnID    *string          `json:"external_txn_id,omitempty"`
	Status           SettlementStatus `json:"status"`
	FailureReason    *string          `json:"failure_reason,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	ExecutedAt       *time.Time       `json:"executed_at,omitempty"`
}

// IsTerminal returns true once the attempt has been reconciled.
func (s *BatchSettlement) IsTerminal() bool {
	return s.Status == SettlementStatusSettled || s.Status == SettlementStatusFailed
}

// ComputeFee returns floor(gross * rate) and the remaining net amount.
func ComputeFee(gross int64, rate decimal.Decimal) (fee, net int64) {
	fee = decimal.NewFromInt(gross).Mul(rate).Floor().IntPart()
	return fee, gross - fee
}

// SettlementOutcome is the stable contract reported for every attempt.
type SettlementOutcome struct {
	SettlementID         uuid.UUID        `json:"settlement_id"`
	UserID               string           `json:"user_id"`
	GrossAmount          int64            `json:"gross_amount"`
	FeeAmount            int64            `json:"fee_amount"`
	NetAmount            int64            `json:"net_amount"`
	TransactionsSettled  int              `json:"transactions_settled"`
	Provider             Provider         `json:"provider"`
	ExternalTxnID        string           `json:"external_txn_id,omitempty"`
	Status               SettlementStatus `json:"status"`
	Error                string           `json:"error,omitempty"`
	FeeSavingsPercentage float64          `json:"fee_savings_percentage,omitempty"`
}

// NewOutcome builds an outcome from a reconciled settlement.
func NewOutcome(s *BatchSettlement) *SettlementOutcome {
	o := &SettlementOutcome{
		SettlementID:        s.ID,
		UserID:              s.UserID,
		GrossAmount:         s.GrossAmount,
		FeeAmount:           s.FeeAmount,
		NetAmount:           s.NetAmount,
		TransactionsSettled: s.TransactionCount,
		Provider:            s.Provider,
		Status:              s.Status,
	}
	if s.ExternalTxnID != nil {
		o.ExternalTxnID = *s.ExternalTxnID
	}
	if s.FailureReason != nil {
		o.Error = *s.FailureReason
	}
	if s.Status == SettlementStatusSettled && s.TransactionCount > 0 {
		pct := decimal.NewFromInt(1).
			Sub(decimal.NewFromInt(1).Div(decimal.NewFromInt(int64(s.TransactionCount)))).
			Mul(decimal.NewFromInt(100)).
			Round(1)
		o.FeeSavingsPercentage = pct.InexactFloat64()
	}
	return o
}

// SettlementStats aggregates SETTLED batches.
type SettlementStats struct {
	TotalSettledBatches int64   `json:"total_settled_batches"`
	TotalVolume         int64   `json:"total_volume"`
	TotalFees           int64   `json:"total_fees"`
	TotalTransactions   int64   `json:"total_transactions"`
	FeesSavedVsNaive    int64   `json:"fees_saved_vs_naive"`
	AvgBatchSize        float64 `json:"avg_batch_size"`
}

// ErrSettlementNotBatched is returned when reconciling a settlement that has
// already left BATCHED.
var ErrSettlementNotBatched = errors.New("settlement is not in BATCHED state")
