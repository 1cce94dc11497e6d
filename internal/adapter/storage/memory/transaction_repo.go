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

// TransactionRepo implements ports.VirtualTransactionRepository.
type TransactionRepo struct {
	s *Store
}

func NewTransactionRepo(s *Store) *TransactionRepo {
	return &TransactionRepo{s: s}
}

func (r *TransactionRepo) Create(_ context.Context, tx pgx.Tx, t *domain.VirtualTransaction) error {
	mt, err := r.s.tx(tx)
	if err != nil {
		return err
	}
	if _, ok := r.s.txns[t.ID]; ok {
		return fmt.Errorf("insert virtual transaction: duplicate id %s", t.ID)
	}
	cp := *t
	r.s.txns[t.ID] = &cp
	r.s.txnOrder = append(r.s.txnOrder, t.ID)
	n := len(r.s.txnOrder) - 1
	mt.onRollback(func() {
		delete(r.s.txns, t.ID)
		r.s.txnOrder = r.s.txnOrder[:n]
	})
	return nil
}

func (r *TransactionRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.VirtualTransaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.txns[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *TransactionRepo) ListByUser(_ context.Context, userID string, limit, offset int) ([]domain.VirtualTransaction, error) {
	r.s.mu.RLock()
	out := r.filter(func(t *domain.VirtualTransaction) bool { return t.UserID == userID })
	r.s.mu.RUnlock()

	slices.Reverse(out)
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *TransactionRepo) ListPendingByUser(_ context.Context, userID string) ([]domain.VirtualTransaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.filter(func(t *domain.VirtualTransaction) bool {
		return t.UserID == userID && t.Status == domain.TransactionStatusPending
	}), nil
}

func (r *TransactionRepo) PendingTotals(_ context.Context) ([]ports.PendingTotal, error) {
	r.s.mu.RLock()
	byUser := make(map[string]*ports.PendingTotal)
	for _, t := range r.s.txns {
		if t.Status != domain.TransactionStatusPending {
			continue
		}
		p, ok := byUser[t.UserID]
		if !ok {
			p = &ports.PendingTotal{UserID: t.UserID}
			byUser[t.UserID] = p
		}
		p.Amount += t.Amount
		p.Count++
	}
	r.s.mu.RUnlock()

	totals := make([]ports.PendingTotal, 0, len(byUser))
	for _, p := range byUser {
		totals = append(totals, *p)
	}
	sort.Slice(totals, func(i, j int) bool { return totals[i].UserID < totals[j].UserID })
	return totals, nil
}

func (r *TransactionRepo) CountInFlight(_ context.Context, tx pgx.Tx, userID string) (int, error) {
	if _, err := r.s.tx(tx); err != nil {
		return 0, err
	}
	n := 0
	for _, t := range r.s.txns {
		if t.UserID == userID && t.Status == domain.TransactionStatusBatched {
			n++
		}
	}
	return n, nil
}

func (r *TransactionRepo) ClaimPending(_ context.Context, tx pgx.Tx, userID string, batchID uuid.UUID) ([]domain.VirtualTransaction, error) {
	mt, err := r.s.tx(tx)
	if err != nil {
		return nil, err
	}
	var claimed []domain.VirtualTransaction
	for _, id := range r.s.txnOrder {
		t := r.s.txns[id]
		if t.UserID != userID || t.Status != domain.TransactionStatusPending {
			continue
		}
		prev := *t
		id := batchID
		t.Status = domain.TransactionStatusBatched
		t.BatchID = &id
		mt.onRollback(func() { *t = prev })
		claimed = append(claimed, *t)
	}
	return claimed, nil
}

func (r *TransactionRepo) MarkSettled(_ context.Context, tx pgx.Tx, batchID uuid.UUID, at time.Time) (int64, error) {
	return r.transitionBatch(tx, batchID, func(t *domain.VirtualTransaction) {
		settledAt := at
		t.Status = domain.TransactionStatusSettled
		t.SettledAt = &settledAt
	})
}

func (r *TransactionRepo) Release(_ context.Context, tx pgx.Tx, batchID uuid.UUID) (int64, error) {
	return r.transitionBatch(tx, batchID, func(t *domain.VirtualTransaction) {
		t.Status = domain.TransactionStatusPending
		t.BatchID = nil
	})
}

func (r *TransactionRepo) transitionBatch(tx pgx.Tx, batchID uuid.UUID, apply func(*domain.VirtualTransaction)) (int64, error) {
	mt, err := r.s.tx(tx)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, t := range r.s.txns {
		if t.Status != domain.TransactionStatusBatched || t.BatchID == nil || *t.BatchID != batchID {
			continue
		}
		prev := *t
		apply(t)
		mt.onRollback(func() { *t = prev })
		n++
	}
	return n, nil
}

// filter returns matches oldest first. Must be called with the store lock held.
func (r *TransactionRepo) filter(keep func(*domain.VirtualTransaction) bool) []domain.VirtualTransaction {
	var out []domain.VirtualTransaction
	for _, id := range r.s.txnOrder {
		if t := r.s.txns[id]; keep(t) {
			out = append(out, *t)
		}
	}
	return out
}
