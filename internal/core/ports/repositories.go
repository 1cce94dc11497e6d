package ports

import (
	"context"
	"time"

	"savings-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// WalletRepository defines persistence operations for wallets.
// Methods accepting pgx.Tx are used inside transaction blocks for pessimistic locking.
type WalletRepository interface {
	// Create inserts the wallet unless one already exists for the user.
	Create(ctx context.Context, tx pgx.Tx, wallet *domain.Wallet) error
	GetByUserID(ctx context.Context, userID string) (*domain.Wallet, error)
	GetByUserIDForUpdate(ctx context.Context, tx pgx.Tx, userID string) (*domain.Wallet, error)
	// ApplyCredit adds amount to the virtual balance and lifetime total and
	// advances the streak, returning the updated wallet.
	ApplyCredit(ctx context.Context, tx pgx.Tx, userID string, amount int64, at time.Time) (*domain.Wallet, error)
	AddConfirmed(ctx context.Context, tx pgx.Tx, userID string, net int64, at time.Time) error
}

// VirtualTransactionRepository defines persistence operations for virtual transactions.
type VirtualTransactionRepository interface {
	Create(ctx context.Context, tx pgx.Tx, txn *domain.VirtualTransaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.VirtualTransaction, error)
	// ListByUser returns the user's transactions, newest first.
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.VirtualTransaction, error)
	ListPendingByUser(ctx context.Context, userID string) ([]domain.VirtualTransaction, error)
	// PendingTotals groups PENDING transactions by user.
	PendingTotals(ctx context.Context) ([]PendingTotal, error)
	CountInFlight(ctx context.Context, tx pgx.Tx, userID string) (int, error)
	// ClaimPending moves every PENDING transaction of the user to BATCHED
	// under batchID and returns the claimed rows.
	ClaimPending(ctx context.Context, tx pgx.Tx, userID string, batchID uuid.UUID) ([]domain.VirtualTransaction, error)
	MarkSettled(ctx context.Context, tx pgx.Tx, batchID uuid.UUID, at time.Time) (int64, error)
	// Release returns the batch's transactions to PENDING.
	Release(ctx context.Context, tx pgx.Tx, batchID uuid.UUID) (int64, error)
}

// PendingTotal is a per-user aggregate of unclaimed credits.
type PendingTotal struct {
	UserID string
	Amount int64
	Count  int
}

// SettlementRepository defines persistence operations for batch settlements.
type SettlementRepository interface {
	Create(ctx context.Context, tx pgx.Tx, s *domain.BatchSettlement) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.BatchSettlement, error)
	// MarkSettled and MarkFailed only transition records still in BATCHED.
	// They return domain.ErrSettlementNotBatched otherwise.
	MarkSettled(ctx context.Context, tx pgx.Tx, id uuid.UUID, externalTxnID string, at time.Time) error
	MarkFailed(ctx context.Context, tx pgx.Tx, id uuid.UUID, reason string, at time.Time) error
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.BatchSettlement, error)
	// ListStale returns BATCHED settlements created before the cutoff, oldest first.
	ListStale(ctx context.Context, before time.Time, limit int) ([]domain.BatchSettlement, error)
	Stats(ctx context.Context) (*SettledAggregate, error)
}

// SettledAggregate holds raw sums over SETTLED batches.
type SettledAggregate struct {
	Batches      int64
	Volume       int64
	Fees         int64
	Transactions int64
}

// IdempotencyRepository defines persistence for idempotency logs (DB backup).
type IdempotencyRepository interface {
	Create(ctx context.Context, tx pgx.Tx, log *domain.IdempotencyLog) error
	Get(ctx context.Context, key string) (*domain.IdempotencyLog, error)
}

// AuditRepository persists audit entries.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
	ListByResource(ctx context.Context, resourceType, resourceID string, limit int) ([]domain.AuditLog, error)
}

// NotificationRepository records outcome notification delivery attempts.
type NotificationRepository interface {
	Create(ctx context.Context, log *domain.NotificationDeliveryLog) error
	Update(ctx context.Context, log *domain.NotificationDeliveryLog) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
