package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"savings-ledger/internal/core/domain"
	"savings-ledger/internal/core/ports"
	"savings-ledger/pkg/apperror"
)

// Settlement triggers, used for metrics labels and audit actions.
const (
	TriggerScan    = "scan"
	TriggerForce   = "force"
	TriggerSweep   = "sweep"
	TriggerRecover = "recover"
)

var triggerActions = map[string]domain.AuditAction{
	TriggerScan:    domain.AuditActionSettleScan,
	TriggerForce:   domain.AuditActionSettleForce,
	TriggerSweep:   domain.AuditActionSettleSweep,
	TriggerRecover: domain.AuditActionRecover,
}

// SettlementConfig holds batching parameters.
type SettlementConfig struct {
	Threshold       int64
	FeeRate         decimal.Decimal
	NaiveUnitAmount int64
	Provider        domain.Provider
	LockTTL         time.Duration
	StaleAfter      time.Duration
	RecoveryBatch   int
}

// SettlementDeps wires the engine. Publisher, Notifier and Audit are optional.
type SettlementDeps struct {
	Wallets      ports.WalletRepository
	Transactions ports.VirtualTransactionRepository
	Settlements  ports.SettlementRepository
	Transactor   ports.DBTransactor
	Gateway      ports.GatewayClient
	Locker       ports.UserLocker
	Publisher    ports.EventPublisher
	Notifier     ports.Notifier
	Audit        ports.AuditService
	Clock        ports.Clock
}

// SettlementEngineImpl implements ports.SettlementEngine.
//
// A user's pending credits are claimed (PENDING -> BATCHED) together with
// the BATCHED settlement row in one transaction before the gateway is called,
// and the per-user lock is held until the outcome is reconciled. At most one
// settlement per user is ever in flight.
type SettlementEngineImpl struct {
	deps SettlementDeps
	cfg  SettlementConfig
	log  zerolog.Logger
}

func NewSettlementEngine(deps SettlementDeps, cfg SettlementConfig, log zerolog.Logger) *SettlementEngineImpl {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 10 * time.Minute
	}
	if cfg.RecoveryBatch <= 0 {
		cfg.RecoveryBatch = 50
	}
	return &SettlementEngineImpl{deps: deps, cfg: cfg, log: log}
}

// ScanAndSettle settles every user whose pending total reaches the threshold.
// Users that are locked or already have a batch in flight are skipped.
func (e *SettlementEngineImpl) ScanAndSettle(ctx context.Context) ([]domain.SettlementOutcome, error) {
	return e.settleAll(ctx, TriggerScan, e.cfg.Threshold)
}

// SweepAll settles every user with at least one pending credit.
func (e *SettlementEngineImpl) SweepAll(ctx context.Context) ([]domain.SettlementOutcome, error) {
	return e.settleAll(ctx, TriggerSweep, 1)
}

func (e *SettlementEngineImpl) settleAll(ctx context.Context, trigger string, minAmount int64) ([]domain.SettlementOutcome, error) {
	totals, err := e.deps.Transactions.PendingTotals(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("pending totals: %w", err))
	}

	outcomes := make([]domain.SettlementOutcome, 0)
	for _, total := range totals {
		if total.Amount < minAmount {
			continue
		}
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}

		outcome, err := e.settleUser(ctx, total.UserID, trigger)
		switch {
		case err == nil && outcome != nil:
			outcomes = append(outcomes, *outcome)
		case err == nil:
			// claimed set was empty; credits moved between the scan and the claim
		case apperror.Is(err, apperror.CodeConcurrencyConflict):
			e.log.Debug().Str("user_id", total.UserID).Str("trigger", trigger).Msg("settlement in progress, skipping user")
		default:
			e.log.Error().Err(err).Str("user_id", total.UserID).Str("trigger", trigger).Msg("settlement failed")
		}
	}

	e.log.Info().
		Str("trigger", trigger).
		Int("candidates", len(totals)).
		Int("settled", countStatus(outcomes, domain.SettlementStatusSettled)).
		Int("failed", countStatus(outcomes, domain.SettlementStatusFailed)).
		Msg("settlement run finished")

	return outcomes, nil
}

// ForceSettle settles one user regardless of the threshold. It returns
// (nil, nil) when there is nothing pending.
func (e *SettlementEngineImpl) ForceSettle(ctx context.Context, userID string) (*domain.SettlementOutcome, error) {
	return e.settleUser(ctx, userID, TriggerForce)
}

func (e *SettlementEngineImpl) settleUser(ctx context.Context, userID, trigger string) (*domain.SettlementOutcome, error) {
	token, err := e.lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer e.unlock(ctx, userID, token)

	settlement, err := e.claim(ctx, userID)
	if err != nil || settlement == nil {
		return nil, err
	}

	res, err := e.deps.Gateway.RequestDebit(ctx, domain.TransferRequest{
		UserID:    userID,
		Amount:    settlement.GrossAmount,
		Reference: settlement.ID.String(),
		Provider:  settlement.Provider,
	})
	if err != nil {
		res = &domain.TransferResult{Error: err.Error()}
	}
	if res == nil {
		res = &domain.TransferResult{Error: "gateway returned no result"}
	}

	// The provider has answered; the verdict is recorded even if the caller
	// has gone away.
	detached := context.WithoutCancel(ctx)
	if err := e.reconcile(detached, settlement, res.Success, res.ExternalTxnID, res.Error); err != nil {
		// Left BATCHED; RecoverStale picks it up once it is older than stale_after.
		return nil, apperror.InternalError(fmt.Errorf("reconcile settlement %s: %w", settlement.ID, err))
	}

	outcome := domain.NewOutcome(settlement)
	e.afterSettle(detached, outcome, trigger)
	return outcome, nil
}

func (e *SettlementEngineImpl) lock(ctx context.Context, userID string) (string, error) {
	token, ok, err := e.deps.Locker.TryLock(ctx, userID, e.cfg.LockTTL)
	if err != nil {
		return "", apperror.ErrLockTimeout(err)
	}
	if !ok {
		return "", apperror.ErrConcurrencyConflict(userID)
	}
	return token, nil
}

func (e *SettlementEngineImpl) unlock(ctx context.Context, userID, token string) {
	if err := e.deps.Locker.Unlock(context.WithoutCancel(ctx), userID, token); err != nil {
		e.log.Warn().Err(err).Str("user_id", userID).Msg("failed to release settlement lock")
	}
}

// claim moves the user's PENDING credits into a new BATCHED settlement.
// It returns (nil, nil) when there is nothing to claim.
func (e *SettlementEngineImpl) claim(ctx context.Context, userID string) (*domain.BatchSettlement, error) {
	dbTx, err := e.deps.Transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := e.deps.Wallets.GetByUserIDForUpdate(ctx, dbTx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("wallet")
	}

	inFlight, err := e.deps.Transactions.CountInFlight(ctx, dbTx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("count in-flight: %w", err))
	}
	if inFlight > 0 {
		return nil, apperror.ErrConcurrencyConflict(userID)
	}

	id := uuid.New()
	claimed, err := e.deps.Transactions.ClaimPending(ctx, dbTx, userID, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("claim pending: %w", err))
	}
	if len(claimed) == 0 {
		return nil, nil
	}

	gross := domain.SumAmounts(claimed)
	fee, net := domain.ComputeFee(gross, e.cfg.FeeRate)
	settlement := &domain.BatchSettlement{
		ID:               id,
		UserID:           userID,
		GrossAmount:      gross,
		FeeAmount:        fee,
		NetAmount:        net,
		TransactionCount: len(claimed),
		Provider:         e.cfg.Provider,
		Status:           domain.SettlementStatusBatched,
		CreatedAt:        e.deps.Clock.Now(),
	}
	if err := e.deps.Settlements.Create(ctx, dbTx, settlement); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create settlement: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	return settlement, nil
}

// reconcile applies the gateway verdict. On success the claimed credits are
// settled and net is added to the confirmed balance; on failure they return
// to PENDING. settlement is updated in place.
func (e *SettlementEngineImpl) reconcile(ctx context.Context, settlement *domain.BatchSettlement, success bool, externalTxnID, reason string) error {
	now := e.deps.Clock.Now()

	dbTx, err := e.deps.Transactor.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if success {
		if err := e.deps.Settlements.MarkSettled(ctx, dbTx, settlement.ID, externalTxnID, now); err != nil {
			return fmt.Errorf("mark settlement settled: %w", err)
		}
		n, err := e.deps.Transactions.MarkSettled(ctx, dbTx, settlement.ID, now)
		if err != nil {
			return fmt.Errorf("mark transactions settled: %w", err)
		}
		if n != int64(settlement.TransactionCount) {
			return fmt.Errorf("settled %d transactions, batch holds %d", n, settlement.TransactionCount)
		}
		if err := e.deps.Wallets.AddConfirmed(ctx, dbTx, settlement.UserID, settlement.NetAmount, now); err != nil {
			return fmt.Errorf("add confirmed: %w", err)
		}
	} else {
		if reason == "" {
			reason = "gateway declined"
		}
		if err := e.deps.Settlements.MarkFailed(ctx, dbTx, settlement.ID, reason, now); err != nil {
			return fmt.Errorf("mark settlement failed: %w", err)
		}
		if _, err := e.deps.Transactions.Release(ctx, dbTx, settlement.ID); err != nil {
			return fmt.Errorf("release transactions: %w", err)
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	settlement.ExecutedAt = &now
	if success {
		settlement.Status = domain.SettlementStatusSettled
		settlement.ExternalTxnID = &externalTxnID
	} else {
		settlement.Status = domain.SettlementStatusFailed
		settlement.FailureReason = &reason
	}
	return nil
}

// afterSettle runs the best-effort side effects of a terminal outcome.
func (e *SettlementEngineImpl) afterSettle(ctx context.Context, outcome *domain.SettlementOutcome, trigger string) {
	settlementsTotal.WithLabelValues(trigger, string(outcome.Status)).Inc()
	if outcome.Status == domain.SettlementStatusSettled {
		settlementBatchSize.Observe(float64(outcome.TransactionsSettled))
		settlementFeesTotal.Add(float64(outcome.FeeAmount))
	}

	ev := e.log.Info()
	if outcome.Status == domain.SettlementStatusFailed {
		ev = e.log.Warn().Str("error", outcome.Error)
	}
	ev.Str("settlement_id", outcome.SettlementID.String()).
		Str("user_id", outcome.UserID).
		Str("trigger", trigger).
		Int64("gross", outcome.GrossAmount).
		Int64("fee", outcome.FeeAmount).
		Int64("net", outcome.NetAmount).
		Int("count", outcome.TransactionsSettled).
		Str("status", string(outcome.Status)).
		Msg("settlement reconciled")

	if e.deps.Publisher != nil {
		if err := e.deps.Publisher.PublishSettlement(ctx, outcome); err != nil {
			eventPublishErrors.Inc()
			e.log.Warn().Err(err).Str("settlement_id", outcome.SettlementID.String()).Msg("failed to publish settlement event")
		}
	}

	if e.deps.Notifier != nil {
		if err := e.deps.Notifier.NotifySettlement(ctx, outcome); err != nil {
			e.log.Warn().Err(err).Str("settlement_id", outcome.SettlementID.String()).Msg("failed to queue settlement notification")
		}
	}

	if e.deps.Audit != nil {
		details, _ := json.Marshal(outcome)
		userID := outcome.UserID
		e.deps.Audit.Log(ctx, &domain.AuditLog{
			UserID:       &userID,
			Action:       triggerActions[trigger],
			ResourceType: "settlement",
			ResourceID:   outcome.SettlementID.String(),
			Details:      string(details),
		})
	}
}

// RecoverStale reconciles settlements stuck in BATCHED past stale_after
// (a crash between claim and reconciliation) by asking the provider.
func (e *SettlementEngineImpl) RecoverStale(ctx context.Context) ([]domain.SettlementOutcome, error) {
	cutoff := e.deps.Clock.Now().Add(-e.cfg.StaleAfter)
	stale, err := e.deps.Settlements.ListStale(ctx, cutoff, e.cfg.RecoveryBatch)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list stale settlements: %w", err))
	}

	outcomes := make([]domain.SettlementOutcome, 0)
	for i := range stale {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		outcome, err := e.recoverOne(ctx, &stale[i])
		if err != nil {
			e.log.Warn().Err(err).Str("settlement_id", stale[i].ID.String()).Msg("stale settlement not recovered")
			continue
		}
		if outcome != nil {
			outcomes = append(outcomes, *outcome)
		}
	}
	return outcomes, nil
}

func (e *SettlementEngineImpl) recoverOne(ctx context.Context, settlement *domain.BatchSettlement) (*domain.SettlementOutcome, error) {
	token, err := e.lock(ctx, settlement.UserID)
	if err != nil {
		return nil, err
	}
	defer e.unlock(ctx, settlement.UserID, token)

	status, err := e.deps.Gateway.CheckStatus(ctx, settlement.Provider, settlement.ID.String())
	if err != nil {
		return nil, err
	}

	var success bool
	var reason string
	switch status.State {
	case domain.ExternalStateSuccessful:
		success = true
	case domain.ExternalStateFailed, domain.ExternalStateUnknown:
		reason = fmt.Sprintf("recovered: provider reported %s", status.State)
		if status.Reason != "" {
			reason += ": " + status.Reason
		}
	default:
		e.log.Info().Str("settlement_id", settlement.ID.String()).Msg("stale settlement still pending at provider")
		return nil, nil
	}

	ext := status.ExternalTxnID
	if success && ext == "" {
		ext = settlement.ID.String()
	}
	detached := context.WithoutCancel(ctx)
	if err := e.reconcile(detached, settlement, success, ext, reason); err != nil {
		if errors.Is(err, domain.ErrSettlementNotBatched) {
			return nil, nil
		}
		return nil, err
	}

	outcome := domain.NewOutcome(settlement)
	e.afterSettle(detached, outcome, TriggerRecover)
	return outcome, nil
}

// BatchHistory lists the user's settlements, most recent first.
func (e *SettlementEngineImpl) BatchHistory(ctx context.Context, userID string, limit int) ([]domain.BatchSettlement, error) {
	if limit < 0 {
		return nil, apperror.Validation("limit must not be negative")
	}
	if limit == 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	list, err := e.deps.Settlements.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list settlements: %w", err))
	}
	if list == nil {
		list = []domain.BatchSettlement{}
	}
	return list, nil
}

// BatchStats aggregates SETTLED batches and compares the fees paid with
// charging the fee on every credit individually.
func (e *SettlementEngineImpl) BatchStats(ctx context.Context) (*domain.SettlementStats, error) {
	agg, err := e.deps.Settlements.Stats(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("settlement stats: %w", err))
	}

	naiveFee, _ := domain.ComputeFee(e.cfg.NaiveUnitAmount, e.cfg.FeeRate)
	stats := &domain.SettlementStats{
		TotalSettledBatches: agg.Batches,
		TotalVolume:         agg.Volume,
		TotalFees:           agg.Fees,
		TotalTransactions:   agg.Transactions,
		FeesSavedVsNaive:    agg.Transactions*naiveFee - agg.Fees,
	}
	if agg.Batches > 0 {
		stats.AvgBatchSize = math.Round(float64(agg.Transactions)/float64(agg.Batches)*10) / 10
	}
	return stats, nil
}

func countStatus(outcomes []domain.SettlementOutcome, status domain.SettlementStatus) int {
	n := 0
	for i := range outcomes {
		if outcomes[i].Status == status {
			n++
		}
	}
	return n
}
