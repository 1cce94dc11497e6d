package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"savings-ledger/internal/core/domain"
	"savings-ledger/internal/core/ports"
	"savings-ledger/pkg/apperror"
)

// LedgerConfig controls credit idempotency and read behaviour.
type LedgerConfig struct {
	Threshold           int64
	Strict              bool
	HistoryDefaultLimit int
	HistoryMaxLimit     int
	IdempotencyTTL      time.Duration
}

// LedgerServiceImpl implements ports.LedgerService.
type LedgerServiceImpl struct {
	walletRepo ports.WalletRepository
	txRepo     ports.VirtualTransactionRepository
	idempRepo  ports.IdempotencyRepository
	idempCache ports.IdempotencyCache
	transactor ports.DBTransactor
	clock      ports.Clock
	cfg        LedgerConfig
	log        zerolog.Logger
}

// NewLedgerService creates a new LedgerServiceImpl.
func NewLedgerService(
	walletRepo ports.WalletRepository,
	txRepo ports.VirtualTransactionRepository,
	idempRepo ports.IdempotencyRepository,
	idempCache ports.IdempotencyCache,
	transactor ports.DBTransactor,
	clock ports.Clock,
	cfg LedgerConfig,
	log zerolog.Logger,
) *LedgerServiceImpl {
	if cfg.HistoryDefaultLimit <= 0 {
		cfg.HistoryDefaultLimit = 50
	}
	if cfg.HistoryMaxLimit <= 0 {
		cfg.HistoryMaxLimit = 200
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 24 * time.Hour
	}
	return &LedgerServiceImpl{
		walletRepo: walletRepo,
		txRepo:     txRepo,
		idempRepo:  idempRepo,
		idempCache: idempCache,
		transactor: transactor,
		clock:      clock,
		cfg:        cfg,
		log:        log,
	}
}

// GetOrCreateWallet returns the user's wallet, creating an empty one on first use.
func (s *LedgerServiceImpl) GetOrCreateWallet(ctx context.Context, userID string) (*domain.Wallet, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperror.Validation("user_id is required")
	}

	wallet, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet != nil {
		return wallet, nil
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.walletRepo.Create(ctx, dbTx, domain.NewWallet(userID, s.clock.Now())); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create wallet: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	// Re-read: a concurrent creator may have won the insert.
	wallet, err = s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.InternalError(fmt.Errorf("wallet for %s missing after create", userID))
	}

	s.log.Info().Str("user_id", userID).Msg("wallet created")
	return wallet, nil
}

// Credit records a PENDING virtual transaction and bumps the wallet's
// notional totals and streak in one database transaction.
func (s *LedgerServiceImpl) Credit(ctx context.Context, req ports.CreditRequest) (*domain.CreditResult, error) {
	if req.Amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if strings.TrimSpace(req.UserID) == "" {
		return nil, apperror.Validation("user_id is required")
	}

	var idempKey string
	if req.IdempotencyKey != "" {
		idempKey = domain.BuildCreditIdempotencyKey(req.UserID, req.IdempotencyKey)
		if res, err := s.replay(ctx, idempKey); res != nil || err != nil {
			return res, err
		}
	}

	now := s.clock.Now()

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.walletRepo.Create(ctx, dbTx, domain.NewWallet(req.UserID, now)); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("ensure wallet: %w", err))
	}

	wallet, err := s.walletRepo.ApplyCredit(ctx, dbTx, req.UserID, req.Amount, now)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("apply credit: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("wallet")
	}

	txn := &domain.VirtualTransaction{
		ID:           uuid.New(),
		WalletID:     wallet.ID,
		UserID:       req.UserID,
		Amount:       req.Amount,
		TriggerRef:   req.TriggerRef,
		TriggerLabel: req.TriggerLabel,
		Status:       domain.TransactionStatusPending,
		CreatedAt:    now,
	}
	if err := s.txRepo.Create(ctx, dbTx, txn); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create transaction: %w", err))
	}

	result := &domain.CreditResult{
		TransactionID:     txn.ID,
		Amount:            txn.Amount,
		NewVirtualBalance: wallet.VirtualBalance,
		TriggerLabel:      txn.TriggerLabel,
		Status:            txn.Status,
	}

	var respJSON []byte
	if idempKey != "" {
		respJSON, err = json.Marshal(result)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("marshal response: %w", err))
		}
		entry := &domain.IdempotencyLog{
			Key:           idempKey,
			TransactionID: txn.ID,
			ResponseJSON:  respJSON,
			CreatedAt:     now,
		}
		if err := s.idempRepo.Create(ctx, dbTx, entry); err != nil {
			if !errors.Is(err, domain.ErrIdempotencyKeyTaken) {
				return nil, apperror.InternalError(fmt.Errorf("save idempotency log: %w", err))
			}
			// A concurrent request with the same key committed first.
			_ = dbTx.Rollback(ctx)
			if res, rerr := s.replay(ctx, idempKey); res != nil || rerr != nil {
				return res, rerr
			}
			return nil, apperror.InternalError(fmt.Errorf("idempotency key %s taken but not readable", idempKey))
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	if idempKey != "" && s.idempCache != nil {
		if err := s.idempCache.Set(ctx, idempKey, respJSON, s.cfg.IdempotencyTTL); err != nil {
			s.log.Warn().Err(err).Str("key", idempKey).Msg("failed to cache idempotency in redis")
		}
	}

	ledgerCreditsTotal.WithLabelValues("created").Inc()
	ledgerCreditedAmount.Add(float64(req.Amount))

	s.log.Info().
		Str("tx_id", txn.ID.String()).
		Str("user_id", req.UserID).
		Int64("amount", req.Amount).
		Int64("virtual_balance", wallet.VirtualBalance).
		Msg("credit recorded")

	return result, nil
}

// replay returns the stored result for a keyed credit, checking Redis first
// and the database second. (nil, nil) means the key is unused.
func (s *LedgerServiceImpl) replay(ctx context.Context, key string) (*domain.CreditResult, error) {
	if s.idempCache != nil {
		cached, err := s.idempCache.Get(ctx, key)
		if err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("redis idempotency check failed, falling through to DB")
		}
		if cached != nil {
			return s.decodeReplay(cached)
		}
	}

	log, err := s.idempRepo.Get(ctx, key)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("db idempotency check: %w", err))
	}
	if log == nil {
		return nil, nil
	}
	return s.decodeReplay(log.ResponseJSON)
}

func (s *LedgerServiceImpl) decodeReplay(raw []byte) (*domain.CreditResult, error) {
	var res domain.CreditResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("unmarshal cached credit: %w", err))
	}
	ledgerCreditsTotal.WithLabelValues("replayed").Inc()
	return &res, nil
}

// wallet resolves the wallet for a read, honouring strict mode.
func (s *LedgerServiceImpl) wallet(ctx context.Context, userID string) (*domain.Wallet, error) {
	if !s.cfg.Strict {
		return s.GetOrCreateWallet(ctx, userID)
	}
	wallet, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("wallet")
	}
	return wallet, nil
}

// ensureKnown rejects unknown users in strict mode and never writes.
func (s *LedgerServiceImpl) ensureKnown(ctx context.Context, userID string) error {
	if !s.cfg.Strict {
		return nil
	}
	wallet, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return apperror.ErrNotFound("wallet")
	}
	return nil
}

// Balance reports the wallet totals; PendingSettlement is summed from the
// user's PENDING transactions on every call.
func (s *LedgerServiceImpl) Balance(ctx context.Context, userID string) (*domain.Balance, error) {
	wallet, err := s.wallet(ctx, userID)
	if err != nil {
		return nil, err
	}

	pending, err := s.txRepo.ListPendingByUser(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list pending: %w", err))
	}

	return &domain.Balance{
		UserID:            userID,
		VirtualBalance:    wallet.VirtualBalance,
		ConfirmedBalance:  wallet.ConfirmedBalance,
		PendingSettlement: domain.SumAmounts(pending),
		TotalSaved:        wallet.TotalSaved,
		CurrentStreakDays: wallet.CurrentStreakDays,
		LongestStreakDays: wallet.LongestStreakDays,
	}, nil
}

// PendingBatchStatus previews whether the next scan would settle the user.
// It is a pure read: an unknown user gets a zero status.
func (s *LedgerServiceImpl) PendingBatchStatus(ctx context.Context, userID string) (*domain.PendingBatchStatus, error) {
	if err := s.ensureKnown(ctx, userID); err != nil {
		return nil, err
	}

	pending, err := s.txRepo.ListPendingByUser(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list pending: %w", err))
	}

	amount := domain.SumAmounts(pending)
	return &domain.PendingBatchStatus{
		UserID:        userID,
		PendingAmount: amount,
		Threshold:     s.cfg.Threshold,
		Ready:         amount >= s.cfg.Threshold,
		Count:         len(pending),
	}, nil
}

// History lists the user's transactions, newest first.
func (s *LedgerServiceImpl) History(ctx context.Context, userID string, limit, offset int) ([]domain.VirtualTransaction, error) {
	if limit < 0 || offset < 0 {
		return nil, apperror.Validation("limit and offset must not be negative")
	}
	if limit == 0 {
		limit = s.cfg.HistoryDefaultLimit
	}
	if limit > s.cfg.HistoryMaxLimit {
		limit = s.cfg.HistoryMaxLimit
	}

	if err := s.ensureKnown(ctx, userID); err != nil {
		return nil, err
	}

	txns, err := s.txRepo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list transactions: %w", err))
	}
	if txns == nil {
		txns = []domain.VirtualTransaction{}
	}
	return txns, nil
}
