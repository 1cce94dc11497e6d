// Package memory is a process-local storage backend. It backs the
// storage.driver=memory mode and the service-level tests.
package memory

import (
	"context"
	"errors"
	"sync"

	"savings-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var errForeignTx = errors.New("memory: transaction was not started by this store")

// Store holds every table in maps guarded by one RWMutex.
//
// A transaction returned by Begin owns the write lock until Commit or
// Rollback, so transactional repository calls run serially and can be undone.
// Non-transactional calls must not be made while the same goroutine holds an
// open transaction.
type Store struct {
	mu sync.RWMutex

	wallets       map[string]*domain.Wallet
	txns          map[uuid.UUID]*domain.VirtualTransaction
	txnOrder      []uuid.UUID // insertion order
	settlements   map[uuid.UUID]*domain.BatchSettlement
	settleOrder   []uuid.UUID
	idempotency   map[string]*domain.IdempotencyLog
	audit         []domain.AuditLog
	notifications map[uuid.UUID]*domain.NotificationDeliveryLog
}

// New creates an empty store.
func New() *Store {
	return &Store{
		wallets:       make(map[string]*domain.Wallet),
		txns:          make(map[uuid.UUID]*domain.VirtualTransaction),
		settlements:   make(map[uuid.UUID]*domain.BatchSettlement),
		idempotency:   make(map[string]*domain.IdempotencyLog),
		notifications: make(map[uuid.UUID]*domain.NotificationDeliveryLog),
	}
}

// Begin implements ports.DBTransactor.
func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	return &memTx{store: s}, nil
}

// Ping implements ports.HealthChecker.
func (s *Store) Ping(_ context.Context) error { return nil }

// Name implements ports.HealthChecker.
func (s *Store) Name() string { return "memory" }

// tx unwraps a transaction handed back by a service.
func (s *Store) tx(tx pgx.Tx) (*memTx, error) {
	mt, ok := tx.(*memTx)
	if !ok || mt.store != s {
		return nil, errForeignTx
	}
	if mt.done {
		return nil, pgx.ErrTxClosed
	}
	return mt, nil
}

// memTx is a pgx.Tx whose only real operations are Commit and Rollback.
type memTx struct {
	store *Store
	undo  []func()
	done  bool
}

func (t *memTx) onRollback(fn func()) { t.undo = append(t.undo, fn) }

func (t *memTx) Commit(_ context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.undo = nil
	t.store.mu.Unlock()
	return nil
}

func (t *memTx) Rollback(_ context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.done = true
	t.undo = nil
	t.store.mu.Unlock()
	return nil
}

func (t *memTx) Begin(_ context.Context) (pgx.Tx, error) {
	return nil, errors.New("memory: nested transactions are not supported")
}

func (t *memTx) CopyFrom(_ context.Context, _ pgx.Identifier, _ []string, _ pgx.CopyFromSource) (int64, error) {
	return 0, errors.ErrUnsupported
}

func (t *memTx) SendBatch(_ context.Context, _ *pgx.Batch) pgx.BatchResults { return nil }
func (t *memTx) LargeObjects() pgx.LargeObjects                           { return pgx.LargeObjects{} }

func (t *memTx) Prepare(_ context.Context, _, _ string) (*pgconn.StatementDescription, error) {
	return nil, errors.ErrUnsupported
}

func (t *memTx) Exec(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), errors.ErrUnsupported
}

func (t *memTx) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	return nil, errors.ErrUnsupported
}

func (t *memTx) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row { return nil }
func (t *memTx) Conn() *pgx.Conn                                       { return nil }
