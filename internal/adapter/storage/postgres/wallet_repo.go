package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"savings-ledger/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

const walletColumns = `id, user_id, virtual_balance, confirmed_balance, total_saved,
	current_streak_days, longest_streak_days, last_credit_at, created_at, updated_at`

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

// Create inserts a wallet, leaving an existing wallet for the same user untouched.
func (r *WalletRepo) Create(ctx context.Context, tx pgx.Tx, w *domain.Wallet) error {
	query := `INSERT INTO wallets (` + walletColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id) DO NOTHING`

	_, err := tx.Exec(ctx, query,
		w.ID, w.UserID, w.VirtualBalance, w.ConfirmedBalance, w.TotalSaved,
		w.CurrentStreakDays, w.LongestStreakDays, w.LastCreditAt, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

// GetByUserID fetches a wallet without locking.
func (r *WalletRepo) GetByUserID(ctx context.Context, userID string) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = $1`

	w, err := scanWallet(r.pool.QueryRow(ctx, query, userID))
	if err != nil {
		return nil, fmt.Errorf("get wallet by user id: %w", err)
	}
	return w, nil
}

// GetByUserIDForUpdate fetches a wallet with pessimistic locking.
// This MUST be called within a transaction.
func (r *WalletRepo) GetByUserIDForUpdate(ctx context.Context, tx pgx.Tx, userID string) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = $1 FOR UPDATE`

	w, err := scanWallet(tx.QueryRow(ctx, query, userID))
	if err != nil {
		return nil, fmt.Errorf("get wallet for update: %w", err)
	}
	return w, nil
}

// ApplyCredit increments the notional totals and streak in one statement so
// concurrent credits for the same user cannot lose updates.
func (r *WalletRepo) ApplyCredit(ctx context.Context, tx pgx.Tx, userID string, amount int64, at time.Time) (*domain.Wallet, error) {
	query := `UPDATE wallets SET
			virtual_balance = virtual_balance + $1,
			total_saved = total_saved + $1,
			current_streak_days = current_streak_days + 1,
			longest_streak_days = GREATEST(longest_streak_days, current_streak_days + 1),
			last_credit_at = $2,
			updated_at = $2
		WHERE user_id = $3
		RETURNING ` + walletColumns

	w, err := scanWallet(tx.QueryRow(ctx, query, amount, at, userID))
	if err != nil {
		return nil, fmt.Errorf("apply credit: %w", err)
	}
	return w, nil
}

// AddConfirmed moves net settled funds into the confirmed balance.
func (r *WalletRepo) AddConfirmed(ctx context.Context, tx pgx.Tx, userID string, net int64, at time.Time) error {
	query := `UPDATE wallets SET confirmed_balance = confirmed_balance + $1, updated_at = $2 WHERE user_id = $3`

	tag, err := tx.Exec(ctx, query, net, at, userID)
	if err != nil {
		return fmt.Errorf("add confirmed balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found: %s", userID)
	}
	return nil
}

// scanWallet returns (nil, nil) when no row matched.
func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	w := &domain.Wallet{}
	err := row.Scan(
		&w.ID, &w.UserID, &w.VirtualBalance, &w.ConfirmedBalance, &w.TotalSaved,
		&w.CurrentStreakDays, &w.LongestStreakDays, &w.LastCreditAt, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return w, nil
}
