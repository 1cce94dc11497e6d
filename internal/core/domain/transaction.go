package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransactionStatus represents the lifecycle state of a virtual transaction.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusBatched   TransactionStatus = "BATCHED"
	TransactionStatusSettled   TransactionStatus = "SETTLED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
	TransactionStatusCancelled TransactionStatus = "CANCELLED"
)

// VirtualTransaction is one notional credit. BatchID is a weak reference to
// the settlement that currently claims it.
type VirtualTransaction struct {
	ID           uuid.UUID         `json:"id"`
	WalletID     uuid.UUID         `json:"wallet_id"`
	UserID       string            `json:"user_id"`
	Amount       int64             `json:"amount"`
	TriggerRef   *string           `json:"trigger_ref,omitempty"`
	TriggerLabel *string           `json:"trigger_label,omitempty"`
	Status       TransactionStatus `json:"status"`
	BatchID      *uuid.UUID        `json:"batch_id,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	SettledAt    *time.Time        `json:"settled_at,omitempty"`
}

// IsTerminal returns true if the transaction is in a final state.
func (t *VirtualTransaction) IsTerminal() bool {
	return t.Status == TransactionStatusSettled ||
		t.Status == TransactionStatusFailed ||
		t.Status == TransactionStatusCancelled
}

// SumAmounts totals the amounts of txns.
func SumAmounts(txns []VirtualTransaction) int64 {
	var total int64
	for i := range txns {
		total += txns[i].Amount
	}
	return total
}

// CreditResult is returned by a successful credit.
type CreditResult struct {
	TransactionID     uuid.UUID         `json:"transaction_id"`
	Amount            int64             `json:"amount"`
	NewVirtualBalance int64             `json:"new_virtual_balance"`
	TriggerLabel      *string           `json:"trigger_label,omitempty"`
	Status            TransactionStatus `json:"status"`
}
