package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"savings-ledger/internal/adapter/storage/memory"
	"savings-ledger/internal/core/domain"
	"savings-ledger/internal/core/ports"
	"savings-ledger/internal/core/ports/mocks"
	"savings-ledger/pkg/apperror"
	"savings-ledger/pkg/clock"
)

// scriptedGateway answers debits from a queue of verdicts; an empty queue
// succeeds.
type scriptedGateway struct {
	mu       sync.Mutex
	verdicts []bool
	debits   []domain.TransferRequest
	statuses map[string]*domain.ExternalStatus
	block    chan struct{}
	entered  chan struct{}
	calls    atomic.Int32
}

func newScriptedGateway() *scriptedGateway {
	return &scriptedGateway{statuses: make(map[string]*domain.ExternalStatus)}
}

func (g *scriptedGateway) RequestDebit(ctx context.Context, req domain.TransferRequest) (*domain.TransferResult, error) {
	g.calls.Add(1)
	if g.entered != nil {
		g.entered <- struct{}{}
	}
	if g.block != nil {
		<-g.block
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.debits = append(g.debits, req)
	ok := true
	if len(g.verdicts) > 0 {
		ok = g.verdicts[0]
		g.verdicts = g.verdicts[1:]
	}
	res := &domain.TransferResult{
		Success:   ok,
		Operation: domain.OperationDebit,
		Provider:  req.Provider,
		Reference: req.Reference,
		Amount:    req.Amount,
		Attempts:  1,
	}
	if ok {
		res.ExternalTxnID = "EXT-" + req.Reference[:8]
	} else {
		res.Error = "insufficient balance"
	}
	return res, nil
}

func (g *scriptedGateway) Disburse(ctx context.Context, req domain.TransferRequest) (*domain.TransferResult, error) {
	return nil, errors.New("not used")
}

func (g *scriptedGateway) CheckStatus(_ context.Context, _ domain.Provider, reference string) (*domain.ExternalStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if st, ok := g.statuses[reference]; ok {
		return st, nil
	}
	return &domain.ExternalStatus{Reference: reference, State: domain.ExternalStateUnknown}, nil
}

func (g *scriptedGateway) HandleCallback(context.Context, domain.Provider, map[string]any) (*domain.CallbackAck, error) {
	return nil, errors.New("not used")
}

func (g *scriptedGateway) CollectorBalance(context.Context, domain.Provider) (*domain.CollectorBalance, error) {
	return nil, errors.New("not used")
}

// grantingLocker always hands out the lock, leaving exclusivity to the
// in-flight check.
type grantingLocker struct{}

func (grantingLocker) TryLock(context.Context, string, time.Duration) (string, bool, error) {
	return "t", true, nil
}
func (grantingLocker) Unlock(context.Context, string, string) error { return nil }

type engineFixture struct {
	store   *memory.Store
	clock   *clock.Fake
	gateway *scriptedGateway
	locker  *memory.Locker
	ledger  *LedgerServiceImpl
	engine  *SettlementEngineImpl
	wallets *memory.WalletRepo
	txns    *memory.TransactionRepo
	setts   *memory.SettlementRepo
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	store := memory.New()
	clk := clock.NewFake(t0)
	f := &engineFixture{
		store:   store,
		clock:   clk,
		gateway: newScriptedGateway(),
		locker:  memory.NewLocker(clk),
		wallets: memory.NewWalletRepo(store),
		txns:    memory.NewTransactionRepo(store),
		setts:   memory.NewSettlementRepo(store),
	}
	f.ledger = NewLedgerService(f.wallets, f.txns, memory.NewIdempotencyRepo(store), nil, store, clk,
		LedgerConfig{Threshold: 5000}, newTestLogger())
	f.engine = f.newEngine(f.locker)
	return f
}

func (f *engineFixture) newEngine(locker ports.UserLocker) *SettlementEngineImpl {
	return f.newEngineWith(locker, f.gateway)
}

func (f *engineFixture) newEngineWith(locker ports.UserLocker, gateway ports.GatewayClient) *SettlementEngineImpl {
	return NewSettlementEngine(SettlementDeps{
		Wallets:      f.wallets,
		Transactions: f.txns,
		Settlements:  f.setts,
		Transactor:   f.store,
		Gateway:      gateway,
		Locker:       locker,
		Clock:        f.clock,
	}, SettlementConfig{
		Threshold:       5000,
		FeeRate:         decimal.RequireFromString("0.01"),
		NaiveUnitAmount: 500,
		Provider:        domain.ProviderMTN,
		StaleAfter:      10 * time.Minute,
	}, newTestLogger())
}

func (f *engineFixture) credit(t *testing.T, userID string, amounts ...int64) {
	t.Helper()
	for _, a := range amounts {
		_, err := f.ledger.Credit(context.Background(), ports.CreditRequest{UserID: userID, Amount: a})
		require.NoError(t, err)
	}
}

// assertLedgerInvariants checks confirmed <= virtual and that the virtual
// balance equals the sum of every credit ever recorded.
func (f *engineFixture) assertLedgerInvariants(t *testing.T, userID string) {
	t.Helper()
	w, err := f.wallets.GetByUserID(context.Background(), userID)
	require.NoError(t, err)
	require.NotNil(t, w)
	all, err := f.txns.ListByUser(context.Background(), userID, 1000, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.SumAmounts(all), w.VirtualBalance)
	assert.LessOrEqual(t, w.ConfirmedBalance, w.VirtualBalance)
}

func TestSettlementEngine_ForceSettleSingleCredit(t *testing.T) {
	f := newEngineFixture(t)
	f.credit(t, "user-1", 5000)

	out, err := f.engine.ForceSettle(context.Background(), "user-1")
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, domain.SettlementStatusSettled, out.Status)
	assert.Equal(t, int64(5000), out.GrossAmount)
	assert.Equal(t, int64(50), out.FeeAmount)
	assert.Equal(t, int64(4950), out.NetAmount)
	assert.Equal(t, 1, out.TransactionsSettled)
	assert.Equal(t, float64(0), out.FeeSavingsPercentage)

	require.Len(t, f.gateway.debits, 1)
	assert.Equal(t, int64(5000), f.gateway.debits[0].Amount)
	assert.Equal(t, out.SettlementID.String(), f.gateway.debits[0].Reference)
	f.assertLedgerInvariants(t, "user-1")
}

func TestSettlementEngine_ScanSettlesUsersAtThreshold(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.credit(t, "user-1", 2500, 2500)
	f.credit(t, "user-2", 4999)

	outcomes, err := f.engine.ScanAndSettle(ctx)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)

	out := outcomes[0]
	assert.Equal(t, "user-1", out.UserID)
	assert.Equal(t, domain.SettlementStatusSettled, out.Status)
	assert.Equal(t, 2, out.TransactionsSettled)
	assert.Equal(t, int64(50), out.FeeAmount)
	assert.Equal(t, int64(4950), out.NetAmount)
	assert.Equal(t, 50.0, out.FeeSavingsPercentage)
	assert.NotEmpty(t, out.ExternalTxnID)

	bal, err := f.ledger.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), bal.VirtualBalance)
	assert.Equal(t, int64(4950), bal.ConfirmedBalance)
	assert.Equal(t, int64(0), bal.PendingSettlement)

	history, err := f.ledger.History(ctx, "user-1", 0, 0)
	require.NoError(t, err)
	for _, txn := range history {
		assert.Equal(t, domain.TransactionStatusSettled, txn.Status)
		require.NotNil(t, txn.BatchID)
		assert.Equal(t, out.SettlementID, *txn.BatchID)
		assert.NotNil(t, txn.SettledAt)
	}

	// user-2 is below the threshold and untouched.
	bal2, err := f.ledger.Balance(ctx, "user-2")
	require.NoError(t, err)
	assert.Equal(t, int64(4999), bal2.PendingSettlement)
	assert.Equal(t, int32(1), f.gateway.calls.Load())

	f.assertLedgerInvariants(t, "user-1")
	f.assertLedgerInvariants(t, "user-2")
}

func TestSettlementEngine_FailureLeavesPendingSetIntact(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.credit(t, "user-1", 3000, 2500)
	before, err := f.txns.ListPendingByUser(ctx, "user-1")
	require.NoError(t, err)

	f.gateway.verdicts = []bool{false}
	failed, err := f.engine.ForceSettle(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, failed)
	assert.Equal(t, domain.SettlementStatusFailed, failed.Status)
	assert.Equal(t, "insufficient balance", failed.Error)

	after, err := f.txns.ListPendingByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].ID, after[i].ID)
		assert.Equal(t, before[i].Amount, after[i].Amount)
		assert.Nil(t, after[i].BatchID)
	}
	bal, err := f.ledger.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal.ConfirmedBalance)
	assert.Equal(t, int64(5500), bal.PendingSettlement)

	// The next attempt is a new record and settles exactly the same set.
	settled, err := f.engine.ForceSettle(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, settled)
	assert.Equal(t, domain.SettlementStatusSettled, settled.Status)
	assert.NotEqual(t, failed.SettlementID, settled.SettlementID)
	assert.Equal(t, int64(5500), settled.GrossAmount)
	assert.Equal(t, 2, settled.TransactionsSettled)

	f.clock.Advance(time.Second)
	history, err := f.engine.BatchHistory(ctx, "user-1", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	statuses := []domain.SettlementStatus{history[0].Status, history[1].Status}
	assert.ElementsMatch(t, []domain.SettlementStatus{domain.SettlementStatusSettled, domain.SettlementStatusFailed}, statuses)

	f.assertLedgerInvariants(t, "user-1")
}

func TestSettlementEngine_CancelledCallerStillReconciles(t *testing.T) {
	f := newEngineFixture(t)
	f.credit(t, "user-1", 5000)

	f.gateway.block = make(chan struct{})
	f.gateway.entered = make(chan struct{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		out *domain.SettlementOutcome
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := f.engine.ForceSettle(ctx, "user-1")
		done <- result{out, err}
	}()
	<-f.gateway.entered

	// The debit goes through after the caller has given up.
	cancel()
	close(f.gateway.block)

	r := <-done
	require.NoError(t, r.err)
	require.NotNil(t, r.out)
	assert.Equal(t, domain.SettlementStatusSettled, r.out.Status)

	bg := context.Background()
	bal, err := f.ledger.Balance(bg, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(4950), bal.ConfirmedBalance)
	assert.Equal(t, int64(0), bal.PendingSettlement)

	txns, err := f.txns.ListByUser(bg, "user-1", 10, 0)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, domain.TransactionStatusSettled, txns[0].Status)

	setts, err := f.engine.BatchHistory(bg, "user-1", 0)
	require.NoError(t, err)
	require.Len(t, setts, 1)
	assert.Equal(t, domain.SettlementStatusSettled, setts[0].Status)

	// The lease was released on the detached context too.
	_, ok, err := f.locker.TryLock(bg, "user-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	f.assertLedgerInvariants(t, "user-1")
}

func TestSettlementEngine_GatewayRetriesExhaustedFailsBatch(t *testing.T) {
	f := newEngineFixture(t)
	ctrl := gomock.NewController(t)
	provider := mocks.NewMockPaymentProvider(ctrl)
	provider.EXPECT().Name().Return(domain.ProviderMTN).AnyTimes()
	provider.EXPECT().RequestToPay(gomock.Any(), gomock.Any()).
		Return(nil, errors.New("connection reset")).Times(3)

	var sleeps []time.Duration
	client := NewGatewayClient(
		[]ports.PaymentProvider{provider},
		nil,
		nil,
		f.clock,
		GatewayConfig{MaxRetries: 3, BaseDelay: time.Second},
		newTestLogger(),
	).WithSleeper(func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	})
	engine := f.newEngineWith(f.locker, client)

	ctx := context.Background()
	f.credit(t, "user-1", 5000)

	outcomes, err := engine.ScanAndSettle(ctx)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, domain.SettlementStatusFailed, outcomes[0].Status)
	assert.Contains(t, outcomes[0].Error, "max retries reached")
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeps)

	pending, err := f.txns.ListPendingByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, domain.TransactionStatusPending, pending[0].Status)
	assert.Nil(t, pending[0].BatchID)

	bal, err := f.ledger.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal.ConfirmedBalance)
	assert.Equal(t, int64(5000), bal.PendingSettlement)
	f.assertLedgerInvariants(t, "user-1")
}

func TestSettlementEngine_ForceSettleNothingPending(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	_, err := f.ledger.GetOrCreateWallet(ctx, "user-1")
	require.NoError(t, err)

	out, err := f.engine.ForceSettle(ctx, "user-1")
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Equal(t, int32(0), f.gateway.calls.Load())

	_, err = f.engine.ForceSettle(ctx, "ghost")
	assertAppError(t, err, apperror.CodeNotFound)
}

func TestSettlementEngine_LockHeldIsConflict(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.credit(t, "user-1", 6000)

	_, ok, err := f.locker.TryLock(ctx, "user-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.engine.ForceSettle(ctx, "user-1")
	assertAppError(t, err, apperror.CodeConcurrencyConflict)

	// Scans skip the locked user instead of failing.
	outcomes, err := f.engine.ScanAndSettle(ctx)
	require.NoError(t, err)
	assert.Empty(t, outcomes)
	assert.Equal(t, int32(0), f.gateway.calls.Load())

	// Leases expire.
	f.clock.Advance(2 * time.Minute)
	outcomes, err = f.engine.ScanAndSettle(ctx)
	require.NoError(t, err)
	assert.Len(t, outcomes, 1)
}

func TestSettlementEngine_OneInFlightPerUser(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.credit(t, "user-1", 2000, 3000)

	f.gateway.block = make(chan struct{})
	f.gateway.entered = make(chan struct{}, 1)

	done := make(chan *domain.SettlementOutcome, 1)
	go func() {
		out, err := f.engine.ForceSettle(ctx, "user-1")
		assert.NoError(t, err)
		done <- out
	}()
	<-f.gateway.entered

	// Credits arriving mid-flight stay PENDING for the next batch.
	f.credit(t, "user-1", 700)

	_, err := f.engine.ForceSettle(ctx, "user-1")
	assertAppError(t, err, apperror.CodeConcurrencyConflict)

	// Even without the lock the in-flight batch blocks a second claim.
	_, err = f.newEngine(grantingLocker{}).ForceSettle(ctx, "user-1")
	assertAppError(t, err, apperror.CodeConcurrencyConflict)

	close(f.gateway.block)
	out := <-done
	require.NotNil(t, out)
	assert.Equal(t, int64(5000), out.GrossAmount)
	assert.Equal(t, int32(1), f.gateway.calls.Load())

	bal, err := f.ledger.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(700), bal.PendingSettlement)
	assert.Equal(t, int64(4950), bal.ConfirmedBalance)
	f.assertLedgerInvariants(t, "user-1")
}

func TestSettlementEngine_ConcurrentForceSettleDebitsOnce(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.credit(t, "user-1", 5000)

	var wg sync.WaitGroup
	var settled atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := f.engine.ForceSettle(ctx, "user-1")
			if err == nil && out != nil && out.Status == domain.SettlementStatusSettled {
				settled.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), settled.Load())
	assert.Equal(t, int32(1), f.gateway.calls.Load())
	f.assertLedgerInvariants(t, "user-1")
}

func TestSettlementEngine_SweepIgnoresThreshold(t *testing.T) {
	f := newEngineFixture(t)
	f.credit(t, "user-1", 100)
	f.credit(t, "user-2", 250, 250)

	outcomes, err := f.engine.SweepAll(context.Background())
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, "user-1", outcomes[0].UserID)
	assert.Equal(t, int64(1), outcomes[0].FeeAmount)
	assert.Equal(t, "user-2", outcomes[1].UserID)
	assert.Equal(t, int64(5), outcomes[1].FeeAmount)
	assert.Equal(t, int64(495), outcomes[1].NetAmount)
}

func TestSettlementEngine_RecoverStale(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.credit(t, "ok", 5000)
	f.credit(t, "ko", 6000)
	f.credit(t, "wait", 7000)

	// Simulate a crash between claim and reconciliation.
	claimed := map[string]*domain.BatchSettlement{}
	for _, u := range []string{"ok", "ko", "wait"} {
		s, err := f.engine.claim(ctx, u)
		require.NoError(t, err)
		require.NotNil(t, s)
		claimed[u] = s
	}
	f.gateway.statuses[claimed["ok"].ID.String()] = &domain.ExternalStatus{State: domain.ExternalStateSuccessful, ExternalTxnID: "EXT-OK"}
	f.gateway.statuses[claimed["ko"].ID.String()] = &domain.ExternalStatus{State: domain.ExternalStateFailed, Reason: "payer declined"}
	f.gateway.statuses[claimed["wait"].ID.String()] = &domain.ExternalStatus{State: domain.ExternalStatePending}

	// Nothing is stale yet.
	outcomes, err := f.engine.RecoverStale(ctx)
	require.NoError(t, err)
	assert.Empty(t, outcomes)

	f.clock.Advance(11 * time.Minute)
	outcomes, err = f.engine.RecoverStale(ctx)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	byUser := map[string]domain.SettlementOutcome{}
	for _, o := range outcomes {
		byUser[o.UserID] = o
	}
	assert.Equal(t, domain.SettlementStatusSettled, byUser["ok"].Status)
	assert.Equal(t, "EXT-OK", byUser["ok"].ExternalTxnID)
	assert.Equal(t, domain.SettlementStatusFailed, byUser["ko"].Status)
	assert.Equal(t, "recovered: provider reported FAILED: payer declined", byUser["ko"].Error)

	okBal, err := f.ledger.Balance(ctx, "ok")
	require.NoError(t, err)
	assert.Equal(t, int64(4950), okBal.ConfirmedBalance)

	koPending, err := f.txns.ListPendingByUser(ctx, "ko")
	require.NoError(t, err)
	assert.Len(t, koPending, 1)

	wait, err := f.setts.GetByID(ctx, claimed["wait"].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementStatusBatched, wait.Status)

	// Unknown at the provider is treated as never submitted.
	delete(f.gateway.statuses, claimed["wait"].ID.String())
	outcomes, err = f.engine.RecoverStale(ctx)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "recovered: provider reported UNKNOWN", outcomes[0].Error)

	for _, u := range []string{"ok", "ko", "wait"} {
		f.assertLedgerInvariants(t, u)
	}
	assert.Equal(t, int32(0), f.gateway.calls.Load())
}

func TestSettlementEngine_BatchStats(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	stats, err := f.engine.BatchStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.TotalSettledBatches)
	assert.Equal(t, 0.0, stats.AvgBatchSize)

	f.credit(t, "user-1", 1000, 1000, 1000, 1000, 1000)
	f.credit(t, "user-2", 5000)
	f.credit(t, "user-3", 2500, 2500)
	f.gateway.verdicts = []bool{true, true, false}
	_, err = f.engine.ScanAndSettle(ctx)
	require.NoError(t, err)

	stats, err = f.engine.BatchStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalSettledBatches)
	assert.Equal(t, int64(10000), stats.TotalVolume)
	assert.Equal(t, int64(100), stats.TotalFees)
	assert.Equal(t, int64(6), stats.TotalTransactions)
	assert.Equal(t, int64(6*5-100), stats.FeesSavedVsNaive)
	assert.Equal(t, 3.0, stats.AvgBatchSize)
}

func TestSettlementEngine_BatchHistoryLimits(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	list, err := f.engine.BatchHistory(ctx, "nobody", 0)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	_, err = f.engine.BatchHistory(ctx, "nobody", -1)
	assertAppError(t, err, apperror.CodeValidation)

	f.gateway.verdicts = []bool{false, false, false}
	f.credit(t, "user-1", 10)
	for i := 0; i < 3; i++ {
		_, err := f.engine.ForceSettle(ctx, "user-1")
		require.NoError(t, err)
		f.clock.Advance(time.Second)
	}
	list, err = f.engine.BatchHistory(ctx, "user-1", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list[0].CreatedAt.After(list[1].CreatedAt))
}

func TestSettlementEngine_SideEffects(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newEngineFixture(t)
	publisher := mocks.NewMockEventPublisher(ctrl)
	notifier := mocks.NewMockNotifier(ctrl)
	audit := mocks.NewMockAuditService(ctrl)

	engine := NewSettlementEngine(SettlementDeps{
		Wallets:      f.wallets,
		Transactions: f.txns,
		Settlements:  f.setts,
		Transactor:   f.store,
		Gateway:      f.gateway,
		Locker:       f.locker,
		Publisher:    publisher,
		Notifier:     notifier,
		Audit:        audit,
		Clock:        f.clock,
	}, SettlementConfig{Threshold: 5000, FeeRate: decimal.RequireFromString("0.01"), Provider: domain.ProviderMTN}, newTestLogger())

	f.credit(t, "user-1", 5000)

	publisher.EXPECT().PublishSettlement(gomock.Any(), gomock.Any()).Return(errors.New("broker down"))
	notifier.EXPECT().NotifySettlement(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, o *domain.SettlementOutcome) error {
		assert.Equal(t, int64(4950), o.NetAmount)
		return nil
	})
	audit.EXPECT().Log(gomock.Any(), gomock.Any()).Do(func(_ context.Context, entry *domain.AuditLog) {
		assert.Equal(t, domain.AuditActionSettleForce, entry.Action)
		assert.Equal(t, "settlement", entry.ResourceType)
	})

	// A publish failure does not undo the settlement.
	out, err := engine.ForceSettle(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementStatusSettled, out.Status)
}
