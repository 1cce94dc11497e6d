package ports

import (
	"context"
	"time"

	"savings-ledger/internal/core/domain"
)

// Clock abstracts wall time.
type Clock interface {
	Now() time.Time
}

// SignatureService handles HMAC-SHA256 signing and verification.
type SignatureService interface {
	Sign(secretKey string, payload string) string
	Verify(secretKey string, payload string, signature string) bool
	BuildCanonicalString(method, path string, timestamp int64, nonce string, body string) string
}

// TokenService handles JWT token operations for operator endpoints.
type TokenService interface {
	Generate(subject, role string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	Subject string
	Role    string
}

// IdempotencyCache is the Redis-layer idempotency check (fast path).
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached value or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// NonceStore manages nonce uniqueness for replay attack prevention.
type NonceStore interface {
	// CheckAndSet atomically checks if nonce exists, sets it if not.
	// Returns true if nonce is new (valid), false if already used.
	CheckAndSet(ctx context.Context, scope string, nonce string, ttl time.Duration) (bool, error)
}

// UserLocker provides per-user mutual exclusion for settlement.
type UserLocker interface {
	// TryLock does not block. ok is false when another holder owns the lock.
	TryLock(ctx context.Context, userID string, ttl time.Duration) (token string, ok bool, err error)
	// Unlock releases the lock only if token still owns it.
	Unlock(ctx context.Context, userID, token string) error
}

// AuditService records audited actions.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}

// Notifier pushes settlement outcomes to a downstream consumer.
type Notifier interface {
	NotifySettlement(ctx context.Context, outcome *domain.SettlementOutcome) error
}

// --- Service Ports (Business Logic) ---

// LedgerService defines the virtual ledger.
type LedgerService interface {
	GetOrCreateWallet(ctx context.Context, userID string) (*domain.Wallet, error)
	Credit(ctx context.Context, req CreditRequest) (*domain.CreditResult, error)
	Balance(ctx context.Context, userID string) (*domain.Balance, error)
	History(ctx context.Context, userID string, limit, offset int) ([]domain.VirtualTransaction, error)
	PendingBatchStatus(ctx context.Context, userID string) (*domain.PendingBatchStatus, error)
}

// CreditRequest holds validated input for a credit.
type CreditRequest struct {
	UserID         string
	Amount         int64
	TriggerRef     *string
	TriggerLabel   *string
	IdempotencyKey string // optional
}

// SettlementEngine defines batch settlement.
type SettlementEngine interface {
	// ScanAndSettle settles every user whose pending total reaches the threshold.
	ScanAndSettle(ctx context.Context) ([]domain.SettlementOutcome, error)
	// ForceSettle returns (nil, nil) when the user has nothing pending.
	ForceSettle(ctx context.Context, userID string) (*domain.SettlementOutcome, error)
	SweepAll(ctx context.Context) ([]domain.SettlementOutcome, error)
	RecoverStale(ctx context.Context) ([]domain.SettlementOutcome, error)
	BatchHistory(ctx context.Context, userID string, limit int) ([]domain.BatchSettlement, error)
	BatchStats(ctx context.Context) (*domain.SettlementStats, error)
}
