package domain

import (
	"time"
)

// Provider identifies a mobile-money network.
type Provider string

const (
	ProviderMTN    Provider = "MTN"
	ProviderOrange Provider = "ORANGE"
)

// ParseProvider normalises a provider name; ok is false for unknown names.
func ParseProvider(s string) (Provider, bool) {
	switch Provider(s) {
	case ProviderMTN, ProviderOrange:
		return Provider(s), true
	}
	return "", false
}

// TransferOperation distinguishes pulls from pushes.
type TransferOperation string

const (
	OperationDebit        TransferOperation = "DEBIT"
	OperationDisbursement TransferOperation = "DISBURSEMENT"
)

// TransferRequest asks a provider to move money for a user. Reference is the
// caller's idempotency key (the settlement or loan id).
type TransferRequest struct {
	UserID      string   `json:"user_id"`
	Amount      int64    `json:"amount"`
	Reference   string   `json:"reference"`
	Provider    Provider `json:"provider"`
	PhoneNumber string   `json:"phone_number,omitempty"`
}

// TransferResult reports the provider's verdict. Success=false with a nil
// Go error is a rejection and is never retried.
type TransferResult struct {
	Success       bool              `json:"success"`
	ExternalTxnID string            `json:"external_txn_id,omitempty"`
	Operation     TransferOperation `json:"operation"`
	Provider      Provider          `json:"provider"`
	Reference     string            `json:"reference"`
	Amount        int64             `json:"amount"`
	Error         string            `json:"error,omitempty"`
	Attempts      int               `json:"attempts"`
	CompletedAt   time.Time         `json:"completed_at"`
}

// ExternalState is the provider-side status of a submitted transfer.
type ExternalState string

const (
	ExternalStatePending    ExternalState = "PENDING"
	ExternalStateSuccessful ExternalState = "SUCCESSFUL"
	ExternalStateFailed     ExternalState = "FAILED"
	ExternalStateUnknown    ExternalState = "UNKNOWN"
)

// ExternalStatus answers an out-of-band status query.
type ExternalStatus struct {
	Reference     string        `json:"reference"`
	ExternalTxnID string        `json:"external_txn_id,omitempty"`
	State         ExternalState `json:"status"`
	Reason        string        `json:"reason,omitempty"`
}

// CallbackAck acknowledges an asynchronous provider notification.
type CallbackAck struct {
	Received      bool     `json:"received"`
	Provider      Provider `json:"provider"`
	TransactionID string   `json:"transaction_id"`
	Status        string   `json:"status"`
}

// CollectorBalance is the balance of the platform's collection account.
type CollectorBalance struct {
	Provider Provider `json:"provider"`
	Balance  int64    `json:"balance"`
	Currency string   `json:"currency"`
}
