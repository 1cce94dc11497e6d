package gateway

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"savings-ledger/internal/core/domain"
	"savings-ledger/pkg/clock"
)

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func TestSandbox_RequestToPay_Deterministic(t *testing.T) {
	p := NewSandboxProvider(domain.ProviderMTN, 0, 0, clock.NewFake(t0))
	req := domain.TransferRequest{UserID: "u1", Amount: 4950, Reference: "stl-1", Provider: domain.ProviderMTN}

	first, err := p.RequestToPay(context.Background(), req)
	require.NoError(t, err)
	second, err := p.RequestToPay(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, first.Success)
	assert.Equal(t, first.ExternalTxnID, second.ExternalTxnID)
	assert.True(t, strings.HasPrefix(first.ExternalTxnID, "MOMO_MTN_"))
	assert.Len(t, first.ExternalTxnID, len("MOMO_MTN_")+12)
	assert.Equal(t, domain.OperationDebit, first.Operation)
	assert.Equal(t, int64(4950), first.Amount)
	assert.Equal(t, t0, first.CompletedAt)
}

func TestSandbox_Transfer_UsesDisbursementPrefix(t *testing.T) {
	p := NewSandboxProvider(domain.ProviderOrange, 0, 0, clock.NewFake(t0))

	res, err := p.Transfer(context.Background(), domain.TransferRequest{Amount: 100, Reference: "loan-9"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, SandboxExternalID("DISB", domain.ProviderOrange, "loan-9"), res.ExternalTxnID)
	assert.Equal(t, domain.OperationDisbursement, res.Operation)
}

func TestSandbox_RejectAbove(t *testing.T) {
	p := NewSandboxProvider(domain.ProviderMTN, 0, 10_000, clock.NewFake(t0))

	res, err := p.RequestToPay(context.Background(), domain.TransferRequest{Amount: 10_001, Reference: "big"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "insufficient balance", res.Error)

	status, err := p.TransactionStatus(context.Background(), "big")
	require.NoError(t, err)
	assert.Equal(t, domain.ExternalStateUnknown, status.State)
}

func TestSandbox_TransactionStatus(t *testing.T) {
	p := NewSandboxProvider(domain.ProviderMTN, 0, 0, clock.NewFake(t0))

	unknown, err := p.TransactionStatus(context.Background(), "never-sent")
	require.NoError(t, err)
	assert.Equal(t, domain.ExternalStateUnknown, unknown.State)

	res, err := p.RequestToPay(context.Background(), domain.TransferRequest{Amount: 10, Reference: "r1"})
	require.NoError(t, err)

	status, err := p.TransactionStatus(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.ExternalStateSuccessful, status.State)
	assert.Equal(t, res.ExternalTxnID, status.ExternalTxnID)
}

func TestSandbox_Balance(t *testing.T) {
	p := NewSandboxProvider(domain.ProviderOrange, 0, 0, clock.NewFake(t0))

	bal, err := p.Balance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SandboxBalance, bal.Balance)
	assert.Equal(t, "XAF", bal.Currency)
	assert.Equal(t, domain.ProviderOrange, bal.Provider)
}

func TestSandbox_LatencyHonoursContext(t *testing.T) {
	p := NewSandboxProvider(domain.ProviderMTN, time.Hour, 0, clock.NewFake(t0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.RequestToPay(ctx, domain.TransferRequest{Amount: 10, Reference: "r"})
	assert.ErrorIs(t, err, context.Canceled)
}
