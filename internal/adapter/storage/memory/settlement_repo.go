package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"savings-ledger/internal/core/domain"
	"savings-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SettlementRepo implements ports.SettlementRepository.
type SettlementRepo struct {
	s *Store
}

func NewSettlementRepo(s *Store) *SettlementRepo {
	return &SettlementRepo{s: s}
}

func (r *SettlementRepo) Create(_ context.Context, tx pgx.Tx, b *domain.BatchSettlement) error {
	mt, err := r.s.tx(tx)
	if err != nil {
		return err
	}
	if _, ok := r.s.settlements[b.ID]; ok {
		return fmt.Errorf("insert settlement: duplicate id %s", b.ID)
	}
	cp := *b
	r.s.settlements[b.ID] = &cp
	r.s.settleOrder = append(r.s.settleOrder, b.ID)
	n := len(r.s.settleOrder) - 1
	mt.onRollback(func() {
		delete(r.s.settlements, b.ID)
		r.s.settleOrder = r.s.settleOrder[:n]
	})
	return nil
}

func (r *SettlementRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.BatchSettlement, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	b, ok := r.s.settlements[id]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (r *SettlementRepo) MarkSettled(_ context.Context, tx pgx.Tx, id uuid.UUID, externalTxnID string, at time.Time) error {
	return r.finalize(tx, id, func(b *domain.BatchSettlement) {
		ext := externalTxnID
		b.Status = domain.SettlementStatusSettled
		b.ExternalTxnID = &ext
		b.ExecutedAt = &at
	})
}

func (r *SettlementRepo) MarkFailed(_ context.Context, tx pgx.Tx, id uuid.UUID, reason string, at time.Time) error {
	return r.finalize(tx, id, func(b *domain.BatchSettlement) {
		msg := reason
		b.Status = domain.SettlementStatusFailed
		b.FailureReason = &msg
		b.ExecutedAt = &at
	})
}

func (r *SettlementRepo) finalize(tx pgx.Tx, id uuid.UUID, apply func(*domain.BatchSettlement)) error {
	mt, err := r.s.tx(tx)
	if err != nil {
		return err
	}
	b, ok := r.s.settlements[id]
	if !ok || b.Status != domain.SettlementStatusBatched {
		return domain.ErrSettlementNotBatched
	}
	prev := *b
	apply(b)
	mt.onRollback(func() { *b = prev })
	return nil
}

func (r *SettlementRepo) ListByUser(_ context.Context, userID string, limit int) ([]domain.BatchSettlement, error) {
	out := r.collect(func(b *domain.BatchSettlement) bool { return b.UserID == userID })
	// Later inserts win ties.
	slices.Reverse(out)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *SettlementRepo) ListStale(_ context.Context, before time.Time, limit int) ([]domain.BatchSettlement, error) {
	out := r.collect(func(b *domain.BatchSettlement) bool {
		return b.Status == domain.SettlementStatusBatched && b.CreatedAt.Before(before)
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *SettlementRepo) Stats(_ context.Context) (*ports.SettledAggregate, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	agg := &ports.SettledAggregate{}
	for _, b := range r.s.settlements {
		if b.Status != domain.SettlementStatusSettled {
			continue
		}
		agg.Batches++
		agg.Volume += b.GrossAmount
		agg.Fees += b.FeeAmount
		agg.Transactions += int64(b.TransactionCount)
	}
	return agg, nil
}

func (r *SettlementRepo) collect(keep func(*domain.BatchSettlement) bool) []domain.BatchSettlement {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.BatchSettlement
	for _, id := range r.s.settleOrder {
		if b := r.s.settlements[id]; keep(b) {
			out = append(out, *b)
		}
	}
	return out
}
