package memory

import (
	"context"
	"fmt"
	"time"

	"savings-ledger/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	s *Store
}

func NewWalletRepo(s *Store) *WalletRepo {
	return &WalletRepo{s: s}
}

func (r *WalletRepo) Create(_ context.Context, tx pgx.Tx, w *domain.Wallet) error {
	mt, err := r.s.tx(tx)
	if err != nil {
		return err
	}
	if _, ok := r.s.wallets[w.UserID]; ok {
		return nil
	}
	cp := *w
	r.s.wallets[w.UserID] = &cp
	mt.onRollback(func() { delete(r.s.wallets, w.UserID) })
	return nil
}

func (r *WalletRepo) GetByUserID(_ context.Context, userID string) (*domain.Wallet, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.copyOf(userID), nil
}

func (r *WalletRepo) GetByUserIDForUpdate(_ context.Context, tx pgx.Tx, userID string) (*domain.Wallet, error) {
	if _, err := r.s.tx(tx); err != nil {
		return nil, err
	}
	return r.copyOf(userID), nil
}

func (r *WalletRepo) ApplyCredit(_ context.Context, tx pgx.Tx, userID string, amount int64, at time.Time) (*domain.Wallet, error) {
	mt, err := r.s.tx(tx)
	if err != nil {
		return nil, err
	}
	w, ok := r.s.wallets[userID]
	if !ok {
		return nil, nil
	}
	prev := *w
	w.ApplyCredit(amount, at)
	mt.onRollback(func() { *w = prev })
	cp := *w
	return &cp, nil
}

func (r *WalletRepo) AddConfirmed(_ context.Context, tx pgx.Tx, userID string, net int64, at time.Time) error {
	mt, err := r.s.tx(tx)
	if err != nil {
		return err
	}
	w, ok := r.s.wallets[userID]
	if !ok {
		return fmt.Errorf("wallet not found: %s", userID)
	}
	prev := *w
	w.ConfirmedBalance += net
	w.UpdatedAt = at
	mt.onRollback(func() { *w = prev })
	return nil
}

// copyOf must be called with the store lock held.
func (r *WalletRepo) copyOf(userID string) *domain.Wallet {
	w, ok := r.s.wallets[userID]
	if !ok {
		return nil
	}
	cp := *w
	return &cp
}
