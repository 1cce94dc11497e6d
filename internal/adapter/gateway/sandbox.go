package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"savings-ledger/internal/core/domain"
	"savings-ledger/internal/core/ports"
)

// SandboxBalance is the collector balance every sandbox provider reports.
const SandboxBalance int64 = 5_000_000

// SandboxProvider simulates a mobile-money network. Identical references
// always produce identical external ids.
type SandboxProvider struct {
	name        domain.Provider
	latency     time.Duration
	rejectAbove int64
	clock       ports.Clock

	mu   sync.Mutex
	seen map[string]string // reference -> external id
}

// NewSandboxProvider builds a sandbox adapter. rejectAbove <= 0 disables
// the insufficient-balance rejection.
func NewSandboxProvider(name domain.Provider, latency time.Duration, rejectAbove int64, clock ports.Clock) *SandboxProvider {
	return &SandboxProvider{
		name:        name,
		latency:     latency,
		rejectAbove: rejectAbove,
		clock:       clock,
		seen:        make(map[string]string),
	}
}

func (p *SandboxProvider) Name() domain.Provider { return p.name }

func (p *SandboxProvider) RequestToPay(ctx context.Context, req domain.TransferRequest) (*domain.TransferResult, error) {
	return p.submit(ctx, req, domain.OperationDebit, "MOMO")
}

func (p *SandboxProvider) Transfer(ctx context.Context, req domain.TransferRequest) (*domain.TransferResult, error) {
	return p.submit(ctx, req, domain.OperationDisbursement, "DISB")
}

func (p *SandboxProvider) submit(ctx context.Context, req domain.TransferRequest, op domain.TransferOperation, prefix string) (*domain.TransferResult, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}

	result := &domain.TransferResult{
		Operation:   op,
		Provider:    p.name,
		Reference:   req.Reference,
		Amount:      req.Amount,
		CompletedAt: p.clock.Now(),
	}
	if p.rejectAbove > 0 && req.Amount > p.rejectAbove {
		result.Error = "insufficient balance"
		return result, nil
	}

	result.Success = true
	result.ExternalTxnID = SandboxExternalID(prefix, p.name, req.Reference)

	p.mu.Lock()
	p.seen[req.Reference] = result.ExternalTxnID
	p.mu.Unlock()

	return result, nil
}

func (p *SandboxProvider) TransactionStatus(ctx context.Context, reference string) (*domain.ExternalStatus, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}

	p.mu.Lock()
	ext, ok := p.seen[reference]
	p.mu.Unlock()

	if !ok {
		return &domain.ExternalStatus{Reference: reference, State: domain.ExternalStateUnknown}, nil
	}
	return &domain.ExternalStatus{
		Reference:     reference,
		ExternalTxnID: ext,
		State:         domain.ExternalStateSuccessful,
	}, nil
}

func (p *SandboxProvider) Balance(ctx context.Context) (*domain.CollectorBalance, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	return &domain.CollectorBalance{Provider: p.name, Balance: SandboxBalance, Currency: "XAF"}, nil
}

func (p *SandboxProvider) wait(ctx context.Context) error {
	if p.latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(p.latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SandboxExternalID derives the sandbox transaction id for a reference.
func SandboxExternalID(prefix string, provider domain.Provider, reference string) string {
	sum := sha256.Sum256([]byte(reference))
	return fmt.Sprintf("%s_%s_%s", prefix, provider, hex.EncodeToString(sum[:])[:12])
}
