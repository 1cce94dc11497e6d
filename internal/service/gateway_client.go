package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"savings-ledger/internal/core/domain"
	"savings-ledger/internal/core/ports"
	"savings-ledger/pkg/apperror"
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// ContextSleeper is the production Sleeper.
func ContextSleeper(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// GatewayConfig tunes retries and result caching.
type GatewayConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	CacheTTL   time.Duration
}

// GatewayClient retries transient provider failures with exponential
// backoff and replays successful results for a repeated reference.
type GatewayClient struct {
	providers map[domain.Provider]ports.PaymentProvider
	cache     ports.IdempotencyCache // optional
	audit     ports.AuditService     // optional
	clock     ports.Clock
	sleep     Sleeper
	cfg       GatewayConfig
	log       zerolog.Logger
}

func NewGatewayClient(
	providers []ports.PaymentProvider,
	cache ports.IdempotencyCache,
	audit ports.AuditService,
	clock ports.Clock,
	cfg GatewayConfig,
	log zerolog.Logger,
) *GatewayClient {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	registry := make(map[domain.Provider]ports.PaymentProvider, len(providers))
	for _, p := range providers {
		registry[p.Name()] = p
	}
	return &GatewayClient{
		providers: registry,
		cache:     cache,
		audit:     audit,
		clock:     clock,
		sleep:     ContextSleeper,
		cfg:       cfg,
		log:       log,
	}
}

// WithSleeper replaces the backoff sleeper. Tests use it to skip real waits.
func (c *GatewayClient) WithSleeper(s Sleeper) *GatewayClient {
	c.sleep = s
	return c
}

type providerCall func(ctx context.Context, p ports.PaymentProvider, req domain.TransferRequest) (*domain.TransferResult, error)

// RequestDebit pulls req.Amount from the user's mobile-money account.
func (c *GatewayClient) RequestDebit(ctx context.Context, req domain.TransferRequest) (*domain.TransferResult, error) {
	return c.execute(ctx, domain.OperationDebit, req,
		func(ctx context.Context, p ports.PaymentProvider, req domain.TransferRequest) (*domain.TransferResult, error) {
			return p.RequestToPay(ctx, req)
		})
}

// Disburse pushes req.Amount to the user's mobile-money account.
func (c *GatewayClient) Disburse(ctx context.Context, req domain.TransferRequest) (*domain.TransferResult, error) {
	return c.execute(ctx, domain.OperationDisbursement, req,
		func(ctx context.Context, p ports.PaymentProvider, req domain.TransferRequest) (*domain.TransferResult, error) {
			return p.Transfer(ctx, req)
		})
}

func (c *GatewayClient) execute(ctx context.Context, op domain.TransferOperation, req domain.TransferRequest, call providerCall) (*domain.TransferResult, error) {
	start := c.clock.Now()
	failed := func(msg string, attempts int) *domain.TransferResult {
		return &domain.TransferResult{
			Operation:   op,
			Provider:    req.Provider,
			Reference:   req.Reference,
			Amount:      req.Amount,
			Error:       msg,
			Attempts:    attempts,
			CompletedAt: c.clock.Now(),
		}
	}

	provider, ok := c.providers[req.Provider]
	if !ok {
		return failed(apperror.ErrUnknownProvider(string(req.Provider)).Message, 0), nil
	}

	cacheKey := domain.BuildGatewayCacheKey(op, req.Reference)
	if cached := c.cached(ctx, cacheKey); cached != nil {
		c.log.Info().
			Str("reference", req.Reference).
			Str("operation", string(op)).
			Str("external_txn_id", cached.ExternalTxnID).
			Msg("gateway result replayed from cache")
		return cached, nil
	}

	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		res, err := call(ctx, provider, req)
		if err == nil && res != nil {
			c.normalize(res, op, req, attempt+1)
			if res.Success {
				gatewayAttemptsTotal.WithLabelValues(string(req.Provider), string(op), "success").Inc()
				c.observe(req.Provider, op, "success", start)
				c.remember(ctx, cacheKey, res)
				c.record(ctx, op, req, res)
				return res, nil
			}
			gatewayAttemptsTotal.WithLabelValues(string(req.Provider), string(op), "rejected").Inc()
			c.observe(req.Provider, op, "rejected", start)
			c.log.Warn().
				Str("reference", req.Reference).
				Str("provider", string(req.Provider)).
				Str("reason", res.Error).
				Msg("gateway rejected request")
			return res, nil
		}
		if err == nil {
			err = fmt.Errorf("provider %s returned no result", req.Provider)
		}

		lastErr = err
		gatewayAttemptsTotal.WithLabelValues(string(req.Provider), string(op), "transient").Inc()
		c.log.Warn().Err(err).
			Str("reference", req.Reference).
			Str("provider", string(req.Provider)).
			Int("attempt", attempt+1).
			Msg("gateway attempt failed")

		if attempt < c.cfg.MaxRetries-1 {
			delay := c.cfg.BaseDelay * time.Duration(1<<attempt)
			if err := c.sleep(ctx, delay); err != nil {
				c.observe(req.Provider, op, "aborted", start)
				return failed(fmt.Sprintf("retry aborted: %v (last error: %v)", err, lastErr), attempt+1), nil
			}
		}
	}

	c.observe(req.Provider, op, "exhausted", start)
	return failed(fmt.Sprintf("max retries reached: %v", lastErr), c.cfg.MaxRetries), nil
}

func (c *GatewayClient) normalize(res *domain.TransferResult, op domain.TransferOperation, req domain.TransferRequest, attempts int) {
	res.Operation = op
	res.Attempts = attempts
	if res.Provider == "" {
		res.Provider = req.Provider
	}
	if res.Reference == "" {
		res.Reference = req.Reference
	}
	if res.Amount == 0 {
		res.Amount = req.Amount
	}
	if res.CompletedAt.IsZero() {
		res.CompletedAt = c.clock.Now()
	}
}

func (c *GatewayClient) cached(ctx context.Context, key string) *domain.TransferResult {
	if c.cache == nil {
		return nil
	}
	raw, err := c.cache.Get(ctx, key)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("gateway cache read failed")
		return nil
	}
	if raw == nil {
		return nil
	}
	var res domain.TransferResult
	if err := json.Unmarshal(raw, &res); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("gateway cache entry unreadable")
		return nil
	}
	return &res
}

func (c *GatewayClient) remember(ctx context.Context, key string, res *domain.TransferResult) {
	if c.cache == nil {
		return
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, raw, c.cfg.CacheTTL); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("gateway cache write failed")
	}
}

func (c *GatewayClient) record(ctx context.Context, op domain.TransferOperation, req domain.TransferRequest, res *domain.TransferResult) {
	if c.audit == nil {
		return
	}
	action := domain.AuditActionDebit
	if op == domain.OperationDisbursement {
		action = domain.AuditActionDisburse
	}
	details, _ := json.Marshal(map[string]any{
		"provider":        res.Provider,
		"amount":          res.Amount,
		"external_txn_id": res.ExternalTxnID,
		"attempts":        res.Attempts,
	})

	entry := &domain.AuditLog{
		Action:       action,
		ResourceType: "gateway",
		ResourceID:   req.Reference,
		Details:      string(details),
	}
	if req.UserID != "" {
		userID := req.UserID
		entry.UserID = &userID
	}
	c.audit.Log(ctx, entry)
}

func (c *GatewayClient) observe(p domain.Provider, op domain.TransferOperation, result string, start time.Time) {
	gatewayCallDuration.WithLabelValues(string(p), string(op), result).Observe(c.clock.Now().Sub(start).Seconds())
}

func (c *GatewayClient) provider(name domain.Provider) (ports.PaymentProvider, error) {
	p, ok := c.providers[name]
	if !ok {
		return nil, apperror.ErrUnknownProvider(string(name))
	}
	return p, nil
}

// CheckStatus asks the provider for the state of a previously submitted reference.
func (c *GatewayClient) CheckStatus(ctx context.Context, provider domain.Provider, reference string) (*domain.ExternalStatus, error) {
	p, err := c.provider(provider)
	if err != nil {
		return nil, err
	}
	status, err := p.TransactionStatus(ctx, reference)
	if err != nil {
		return nil, apperror.ErrGatewayTransient(err)
	}
	return status, nil
}

// HandleCallback acknowledges an asynchronous provider notification. It is
// recorded in the audit log and does not change ledger state.
func (c *GatewayClient) HandleCallback(ctx context.Context, provider domain.Provider, payload map[string]any) (*domain.CallbackAck, error) {
	if _, err := c.provider(provider); err != nil {
		return nil, err
	}

	txID := stringField(payload, "externalId")
	if txID == "" {
		txID = stringField(payload, "transactionId")
	}
	status := stringField(payload, "status")
	if status == "" {
		status = string(domain.ExternalStateUnknown)
	}

	if c.audit != nil {
		details, _ := json.Marshal(payload)
		c.audit.Log(ctx, &domain.AuditLog{
			Action:       domain.AuditActionCallback,
			ResourceType: "gateway",
			ResourceID:   txID,
			Details:      string(details),
		})
	}

	c.log.Info().
		Str("provider", string(provider)).
		Str("transaction_id", txID).
		Str("status", status).
		Msg("gateway callback received")

	return &domain.CallbackAck{
		Received:      true,
		Provider:      provider,
		TransactionID: txID,
		Status:        status,
	}, nil
}

// CollectorBalance returns the platform collection account balance.
func (c *GatewayClient) CollectorBalance(ctx context.Context, provider domain.Provider) (*domain.CollectorBalance, error) {
	p, err := c.provider(provider)
	if err != nil {
		return nil, err
	}
	bal, err := p.Balance(ctx)
	if err != nil {
		return nil, apperror.ErrGatewayTransient(err)
	}
	return bal, nil
}

func stringField(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
