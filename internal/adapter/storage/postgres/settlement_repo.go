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

const settlementColumns = `id, user_id, gross_amount, fee_amount, net_amount, transaction_count,
	provider, external_txn_id, status, failure_reason, created_at, executed_at`

// SettlementRepo implements ports.SettlementRepository.
type SettlementRepo struct {
	pool Pool
}

// NewSettlementRepo creates a new SettlementRepo.
func NewSettlementRepo(pool Pool) *SettlementRepo {
	return &SettlementRepo{pool: pool}
}

// Create inserts a settlement record within a database transaction.
func (r *SettlementRepo) Create(ctx context.Context, tx pgx.Tx, s *domain.BatchSettlement) error {
	query := `INSERT INTO batch_settlements (` + settlementColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := tx.Exec(ctx, query,
		s.ID, s.UserID, s.GrossAmount, s.FeeAmount, s.NetAmount, s.TransactionCount,
		s.Provider, s.ExternalTxnID, s.Status, s.FailureReason, s.CreatedAt, s.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("insert settlement: %w", err)
	}
	return nil
}

// GetByID fetches a settlement by UUID.
func (r *SettlementRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.BatchSettlement, error) {
	query := `SELECT ` + settlementColumns + ` FROM batch_settlements WHERE id = $1`

	s := &domain.BatchSettlement{}
	err := r.pool.QueryRow(ctx, query, id).Scan(settlementScanDest(s)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get settlement: %w", err)
	}
	return s, nil
}

// MarkSettled records the gateway confirmation.
func (r *SettlementRepo) MarkSettled(ctx context.Context, tx pgx.Tx, id uuid.UUID, externalTxnID string, at time.Time) error {
	query := `UPDATE batch_settlements SET status = 'SETTLED', external_txn_id = $1, executed_at = $2
		WHERE id = $3 AND status = 'BATCHED'`

	tag, err := tx.Exec(ctx, query, externalTxnID, at, id)
	if err != nil {
		return fmt.Errorf("mark settlement settled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSettlementNotBatched
	}
	return nil
}

// MarkFailed records a failed attempt with its reason.
func (r *SettlementRepo) MarkFailed(ctx context.Context, tx pgx.Tx, id uuid.UUID, reason string, at time.Time) error {
	query := `UPDATE batch_settlements SET status = 'FAILED', failure_reason = $1, executed_at = $2
		WHERE id = $3 AND status = 'BATCHED'`

	tag, err := tx.Exec(ctx, query, reason, at, id)
	if err != nil {
		return fmt.Errorf("mark settlement failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSettlementNotBatched
	}
	return nil
}

// ListByUser returns the user's settlements, newest first.
func (r *SettlementRepo) ListByUser(ctx context.Context, userID string, limit int) ([]domain.BatchSettlement, error) {
	query := `SELECT ` + settlementColumns + ` FROM batch_settlements
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list settlements: %w", err)
	}
	return collectSettlements(rows)
}

// ListStale returns BATCHED settlements created before the cutoff.
func (r *SettlementRepo) ListStale(ctx context.Context, before time.Time, limit int) ([]domain.BatchSettlement, error) {
	query := `SELECT ` + settlementColumns + ` FROM batch_settlements
		WHERE status = 'BATCHED' AND created_at < $1 ORDER BY created_at LIMIT $2`

	rows, err := r.pool.Query(ctx, query, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale settlements: %w", err)
	}
	return collectSettlements(rows)
}

// Stats aggregates SETTLED batches.
func (r *SettlementRepo) Stats(ctx context.Context) (*ports.SettledAggregate, error) {
	query := `SELECT COUNT(*), COALESCE(SUM(gross_amount), 0), COALESCE(SUM(fee_amount), 0),
		COALESCE(SUM(transaction_count), 0)
		FROM batch_settlements WHERE status = 'SETTLED'`

	agg := &ports.SettledAggregate{}
	err := r.pool.QueryRow(ctx, query).Scan(&agg.Batches, &agg.Volume, &agg.Fees, &agg.Transactions)
	if err != nil {
		return nil, fmt.Errorf("settlement stats: %w", err)
	}
	return agg, nil
}

func settlementScanDest(s *domain.BatchSettlement) []any {
	return []any{
		&s.ID, &s.UserID, &s.GrossAmount, &s.FeeAmount, &s.NetAmount, &s.TransactionCount,
		&s.Provider, &s.ExternalTxnID, &s.Status, &s.FailureReason, &s.CreatedAt, &s.ExecutedAt,
	}
}

func collectSettlements(rows pgx.Rows) ([]domain.BatchSettlement, error) {
	defer rows.Close()

	var out []domain.BatchSettlement
	for rows.Next() {
		s := domain.BatchSettlement{}
		if err := rows.Scan(settlementScanDest(&s)...); err != nil {
			return nil, fmt.Errorf("scan settlement: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settlements: %w", err)
	}
	return out, nil
}
