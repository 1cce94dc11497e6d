package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"savings-ledger/internal/core/domain"
	"savings-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const txnColumns = `id, wallet_id, user_id, amount, trigger_ref, trigger_label, status, batch_id, created_at, settled_at`

// TransactionRepo implements ports.VirtualTransactionRepository.
type TransactionRepo struct {
	pool Pool
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(pool Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

// Create inserts a new virtual transaction within a database transaction.
func (r *TransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.VirtualTransaction) error {
	query := `INSERT INTO virtual_transactions (` + txnColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := tx.Exec(ctx, query,
		t.ID, t.WalletID, t.UserID, t.Amount, t.TriggerRef, t.TriggerLabel,
		t.Status, t.BatchID, t.CreatedAt, t.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("insert virtual transaction: %w", err)
	}
	return nil
}

// GetByID fetches a transaction by UUID.
func (r *TransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.VirtualTransaction, error) {
	query := `SELECT ` + txnColumns + ` FROM virtual_transactions WHERE id = $1`

	t := &domain.VirtualTransaction{}
	err := r.pool.QueryRow(ctx, query, id).Scan(txnScanDest(t)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get virtual transaction: %w", err)
	}
	return t, nil
}

// ListByUser returns a page of the user's transactions, newest first.
func (r *TransactionRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.VirtualTransaction, error) {
	query := `SELECT ` + txnColumns + ` FROM virtual_transactions
		WHERE user_id = $1 ORDER BY created_at DESC, seq DESC LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list virtual transactions: %w", err)
	}
	return collectTxns(rows)
}

// ListPendingByUser returns the user's unclaimed transactions, oldest first.
func (r *TransactionRepo) ListPendingByUser(ctx context.Context, userID string) ([]domain.VirtualTransaction, error) {
	query := `SELECT ` + txnColumns + ` FROM virtual_transactions
		WHERE user_id = $1 AND status = 'PENDING' ORDER BY created_at, seq`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list pending transactions: %w", err)
	}
	return collectTxns(rows)
}

// PendingTotals aggregates PENDING transactions per user.
func (r *TransactionRepo) PendingTotals(ctx context.Context) ([]ports.PendingTotal, error) {
	query := `SELECT user_id, COALESCE(SUM(amount), 0), COUNT(*) FROM virtual_transactions
		WHERE status = 'PENDING' GROUP BY user_id ORDER BY user_id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("pending totals: %w", err)
	}
	defer rows.Close()

	var totals []ports.PendingTotal
	for rows.Next() {
		var p ports.PendingTotal
		if err := rows.Scan(&p.UserID, &p.Amount, &p.Count); err != nil {
			return nil, fmt.Errorf("scan pending total: %w", err)
		}
		totals = append(totals, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending totals: %w", err)
	}
	return totals, nil
}

// CountInFlight counts the user's transactions currently claimed by a batch.
func (r *TransactionRepo) CountInFlight(ctx context.Context, tx pgx.Tx, userID string) (int, error) {
	query := `SELECT COUNT(*) FROM virtual_transactions WHERE user_id = $1 AND status = 'BATCHED'`

	var n int
	if err := tx.QueryRow(ctx, query, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count in-flight transactions: %w", err)
	}
	return n, nil
}

// ClaimPending atomically moves the user's PENDING transactions into the batch.
func (r *TransactionRepo) ClaimPending(ctx context.Context, tx pgx.Tx, userID string, batchID uuid.UUID) ([]domain.VirtualTransaction, error) {
	query := `UPDATE virtual_transactions SET status = 'BATCHED', batch_id = $1
		WHERE user_id = $2 AND status = 'PENDING'
		RETURNING ` + txnColumns

	rows, err := tx.Query(ctx, query, batchID, userID)
	if err != nil {
		return nil, fmt.Errorf("claim pending transactions: %w", err)
	}
	return collectTxns(rows)
}

// MarkSettled finalizes every transaction claimed by the batch.
func (r *TransactionRepo) MarkSettled(ctx context.Context, tx pgx.Tx, batchID uuid.UUID, at time.Time) (int64, error) {
	query := `UPDATE virtual_transactions SET status = 'SETTLED', settled_at = $1
		WHERE batch_id = $2 AND status = 'BATCHED'`

	tag, err := tx.Exec(ctx, query, at, batchID)
	if err != nil {
		return 0, fmt.Errorf("mark transactions settled: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Release returns the batch's transactions to PENDING so a later batch can claim them.
func (r *TransactionRepo) Release(ctx context.Context, tx pgx.Tx, batchID uuid.UUID) (int64, error) {
	query := `UPDATE virtual_transactions SET status = 'PENDING', batch_id = NULL
		WHERE batch_id = $1 AND status = 'BATCHED'`

	tag, err := tx.Exec(ctx, query, batchID)
	if err != nil {
		return 0, fmt.Errorf("release batched transactions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func txnScanDest(t *domain.VirtualTransaction) []any {
	return []any{
		&t.ID, &t.WalletID, &t.UserID, &t.Amount, &t.TriggerRef, &t.TriggerLabel,
		&t.Status, &t.BatchID, &t.CreatedAt, &t.SettledAt,
	}
}

func collectTxns(rows pgx.Rows) ([]domain.VirtualTransaction, error) {
	defer rows.Close()

	var txns []domain.VirtualTransaction
	for rows.Next() {
		t := domain.VirtualTransaction{}
		if err := rows.Scan(txnScanDest(&t)...); err != nil {
			return nil, fmt.Errorf("scan virtual transaction: %w", err)
		}
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate virtual transactions: %w", err)
	}
	return txns, nil
}
