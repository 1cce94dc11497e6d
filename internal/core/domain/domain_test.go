package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestVirtualTransaction_IsTerminal(t *testing.T) {
	tests := []struct {
		name   string
		status TransactionStatus
		want   bool
	}{
		{"pending", TransactionStatusPending, false},
		{"batched", TransactionStatusBatched, false},
		{"settled", TransactionStatusSettled, true},
		{"failed", TransactionStatusFailed, true},
		{"cancelled", TransactionStatusCancelled, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := &VirtualTransaction{Status: tt.status}
			assert.Equal(t, tt.want, tx.IsTerminal())
		})
	}
}

func TestWallet_ApplyCredit(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	w := NewWallet("user-1", now)
	w.LongestStreakDays = 2

	w.ApplyCredit(1000, now)
	assert.Equal(t, int64(1000), w.VirtualBalance)
	assert.Equal(t, int64(1000), w.TotalSaved)
	assert.Equal(t, 1, w.CurrentStreakDays)
	assert.Equal(t, 2, w.LongestStreakDays)

	later := now.Add(time.Hour)
	w.ApplyCredit(500, later)
	w.ApplyCredit(500, later)
	assert.Equal(t, int64(2000), w.VirtualBalance)
	assert.Equal(t, 3, w.CurrentStreakDays)
	assert.Equal(t, 3, w.LongestStreakDays)
	assert.Equal(t, later, *w.LastCreditAt)
	assert.Equal(t, int64(0), w.ConfirmedBalance)
}

func TestComputeFee(t *testing.T) {
	rate := decimal.RequireFromString("0.01")
	tests := []struct {
		gross   int64
		wantFee int64
		wantNet int64
	}{
		{5000, 50, 4950},
		{500, 5, 495},
		{99, 0, 99},
		{12345, 123, 12222},
	}

	for _, tt := range tests {
		fee, net := ComputeFee(tt.gross, rate)
		assert.Equal(t, tt.wantFee, fee, "gross=%d", tt.gross)
		assert.Equal(t, tt.wantNet, net, "gross=%d", tt.gross)
		assert.Equal(t, tt.gross, fee+net)
	}
}

func TestNewOutcome(t *testing.T) {
	ext := "MOMO_MTN_abc"
	s := &BatchSettlement{
		ID:               uuid.New(),
		UserID:           "user-1",
		GrossAmount:      5000,
		FeeAmount:        50,
		NetAmount:        4950,
		TransactionCount: 3,
		Provider:         ProviderMTN,
		ExternalTxnID:    &ext,
		Status:           SettlementStatusSettled,
	}

	o := NewOutcome(s)
	assert.Equal(t, s.ID, o.SettlementID)
	assert.Equal(t, 3, o.TransactionsSettled)
	assert.Equal(t, ext, o.ExternalTxnID)
	assert.Equal(t, 66.7, o.FeeSavingsPercentage)
	assert.Empty(t, o.Error)

	reason := "insufficient balance"
	s.Status = SettlementStatusFailed
	s.ExternalTxnID = nil
	s.FailureReason = &reason
	o = NewOutcome(s)
	assert.Equal(t, SettlementStatusFailed, o.Status)
	assert.Equal(t, reason, o.Error)
	assert.Zero(t, o.FeeSavingsPercentage)
}

func TestNewOutcome_SingleTransactionSavesNothing(t *testing.T) {
	o := NewOutcome(&BatchSettlement{TransactionCount: 1, Status: SettlementStatusSettled})
	assert.Zero(t, o.FeeSavingsPercentage)
}

func TestParseProvider(t *testing.T) {
	p, ok := ParseProvider("MTN")
	assert.True(t, ok)
	assert.Equal(t, ProviderMTN, p)

	p, ok = ParseProvider("ORANGE")
	assert.True(t, ok)
	assert.Equal(t, ProviderOrange, p)

	_, ok = ParseProvider("AIRTEL")
	assert.False(t, ok)
	_, ok = ParseProvider("mtn")
	assert.False(t, ok)
}

func TestIdempotencyKeys(t *testing.T) {
	assert.Equal(t, "user-1:credit:abc", BuildCreditIdempotencyKey("user-1", "abc"))
	assert.Equal(t, "gateway:DEBIT:ref-1", BuildGatewayCacheKey(OperationDebit, "ref-1"))
}

func TestSumAmounts(t *testing.T) {
	txns := []VirtualTransaction{{Amount: 2500}, {Amount: 1500}, {Amount: 1000}}
	assert.Equal(t, int64(5000), SumAmounts(txns))
	assert.Zero(t, SumAmounts(nil))
}
