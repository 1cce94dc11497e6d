package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"savings-ledger/config"
	"savings-ledger/internal/adapter/events"
	"savings-ledger/internal/adapter/gateway"
	httpHandler "savings-ledger/internal/adapter/http/handler"
	"savings-ledger/internal/adapter/storage/memory"
	pgStorage "savings-ledger/internal/adapter/storage/postgres"
	redisStorage "savings-ledger/internal/adapter/storage/redis"
	"savings-ledger/internal/core/domain"
	"savings-ledger/internal/core/ports"
	"savings-ledger/internal/service"
	"savings-ledger/internal/worker"
	"savings-ledger/pkg/clock"
	"savings-ledger/pkg/logger"
)

// repositories bundles the storage driver's ports.
type repositories struct {
	wallets       ports.WalletRepository
	transactions  ports.VirtualTransactionRepository
	settlements   ports.SettlementRepository
	idempotency   ports.IdempotencyRepository
	audit         ports.AuditRepository
	notifications ports.NotificationRepository
	transactor    ports.DBTransactor
	health        ports.HealthChecker
	close         func()
}

func openStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*repositories, error) {
	if cfg.Storage.Driver == "memory" {
		log.Warn().Msg("Using in-memory storage, data is lost on restart")
		store := memory.New()
		return &repositories{
			wallets:       memory.NewWalletRepo(store),
			transactions:  memory.NewTransactionRepo(store),
			settlements:   memory.NewSettlementRepo(store),
			idempotency:   memory.NewIdempotencyRepo(store),
			audit:         memory.NewAuditRepo(store),
			notifications: memory.NewNotificationRepo(store),
			transactor:    store,
			health:        store,
			close:         func() {},
		}, nil
	}

	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}
	log.Info().Msg("PostgreSQL connected")
	return &repositories{
		wallets:       pgStorage.NewWalletRepo(pool),
		transactions:  pgStorage.NewTransactionRepo(pool),
		settlements:   pgStorage.NewSettlementRepo(pool),
		idempotency:   pgStorage.NewIdempotencyRepo(pool),
		audit:         pgStorage.NewAuditRepo(pool),
		notifications: pgStorage.NewNotificationRepo(pool),
		transactor:    pgStorage.NewTransactor(pool),
		health:        pgStorage.NewHealthCheck(pool),
		close:         pool.Close,
	}, nil
}

func buildProviders(cfg config.GatewayConfig, clk ports.Clock, log zerolog.Logger) []ports.PaymentProvider {
	var mtn ports.PaymentProvider
	if !cfg.Sandbox && cfg.MTN.Configured() {
		mtn = gateway.NewMTNProvider(gateway.MTNConfig{
			BaseURL:           cfg.MTN.BaseURL,
			SubscriptionKey:   cfg.MTN.SubscriptionKey,
			APIUser:           cfg.MTN.APIUser,
			APIKey:            cfg.MTN.APIKey,
			TargetEnvironment: cfg.MTN.TargetEnvironment,
			Currency:          cfg.MTN.Currency,
			PayerPrefix:       cfg.MTN.PayerPrefix,
			Timeout:           cfg.RequestTimeout,
		}, clk)
		log.Info().Str("base_url", cfg.MTN.BaseURL).Msg("MTN MoMo provider enabled")
	} else {
		if !cfg.Sandbox {
			log.Warn().Msg("MTN credentials missing, falling back to sandbox")
		}
		mtn = gateway.NewSandboxProvider(domain.ProviderMTN, cfg.SandboxLatency, cfg.SandboxRejectAbove, clk)
	}
	// No live Orange Money adapter exists; it always runs in sandbox.
	orange := gateway.NewSandboxProvider(domain.ProviderOrange, cfg.SandboxLatency, cfg.SandboxRejectAbove, clk)
	return []ports.PaymentProvider{mtn, orange}
}

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)
	gin.SetMode(cfg.Server.Mode)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Str("storage", cfg.Storage.Driver).
		Msg("Starting Savings Ledger")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := clock.System{}

	repos, err := openStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer repos.close()
	healthCheckers := []ports.HealthChecker{repos.health}

	// Redis-backed stores, or process-local ones when Redis is disabled
	var (
		idempotencyCache ports.IdempotencyCache
		nonceStore       ports.NonceStore
		locker           ports.UserLocker
		rateLimitStore   *redisStorage.RateLimitStore
	)
	if cfg.Redis.Enabled {
		rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()

		cache := redisStorage.NewCache(rdb)
		idempotencyCache = cache
		nonceStore = cache
		locker = redisStorage.NewUserLocker(rdb)
		rateLimitStore = redisStorage.NewRateLimitStore(rdb, clk)
		healthCheckers = append(healthCheckers, redisStorage.NewHealthCheck(rdb))
	} else {
		log.Warn().Msg("Redis disabled, using process-local cache and locks")
		cache := memory.NewCache(clk)
		idempotencyCache = cache
		nonceStore = cache
		locker = memory.NewLocker(clk)
	}

	// Core services
	sigSvc := service.NewHMACSignatureService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer, clk)
	auditSvc := service.NewAuditService(repos.audit, clk, logger.Component(log, "audit"))

	gatewayClient := service.NewGatewayClient(
		buildProviders(cfg.Gateway, clk, log),
		idempotencyCache,
		auditSvc,
		clk,
		service.GatewayConfig{
			MaxRetries: cfg.Gateway.MaxRetries,
			BaseDelay:  cfg.Gateway.BaseDelay,
			CacheTTL:   cfg.Gateway.IdempotencyTTL,
		},
		logger.Component(log, "gateway"),
	)

	ledgerSvc := service.NewLedgerService(
		repos.wallets,
		repos.transactions,
		repos.idempotency,
		idempotencyCache,
		repos.transactor,
		clk,
		service.LedgerConfig{
			Threshold:           cfg.Settlement.Threshold,
			Strict:              cfg.Ledger.Strict,
			HistoryDefaultLimit: cfg.Ledger.HistoryDefaultLimit,
			HistoryMaxLimit:     cfg.Ledger.HistoryMaxLimit,
		},
		logger.Component(log, "ledger"),
	)

	var publisher ports.EventPublisher
	if cfg.Kafka.Enabled {
		publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, clk, log)
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("Kafka publisher enabled")
	}

	notifier := service.NewHTTPNotifier(
		cfg.Notify.URL,
		cfg.Notify.Secret,
		repos.notifications,
		sigSvc,
		&http.Client{Timeout: 10 * time.Second},
		clk,
		logger.Component(log, "notifier"),
	)

	feeRate, err := cfg.Settlement.FeeRateDecimal()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid fee rate")
	}
	provider, ok := domain.ParseProvider(strings.ToUpper(cfg.Settlement.Provider))
	if !ok {
		log.Fatal().Str("provider", cfg.Settlement.Provider).Msg("Unknown settlement provider")
	}

	engine := service.NewSettlementEngine(service.SettlementDeps{
		Wallets:      repos.wallets,
		Transactions: repos.transactions,
		Settlements:  repos.settlements,
		Transactor:   repos.transactor,
		Gateway:      gatewayClient,
		Locker:       locker,
		Publisher:    publisher,
		Notifier:     notifier,
		Audit:        auditSvc,
		Clock:        clk,
	}, service.SettlementConfig{
		Threshold:       cfg.Settlement.Threshold,
		FeeRate:         feeRate,
		NaiveUnitAmount: cfg.Settlement.NaiveUnitAmount,
		Provider:        provider,
		LockTTL:         cfg.Settlement.LockTTL,
		StaleAfter:      cfg.Settlement.StaleAfter,
		RecoveryBatch:   cfg.Settlement.RecoveryBatch,
	}, logger.Component(log, "settlement"))

	// Background settlement scheduler
	var settlementWorker *worker.SettlementWorker
	if cfg.Settlement.WorkerEnabled {
		settlementWorker = worker.NewSettlementWorker(engine, worker.Config{
			ScanInterval:  cfg.Settlement.ScanInterval,
			SweepInterval: cfg.Settlement.SweepInterval,
			RunTimeout:    cfg.Settlement.RunTimeout,
		}, logger.Component(log, "settlement_worker"))
		go settlementWorker.Start(ctx)
	}

	if cfg.Gateway.CallbackSecret == "" {
		log.Warn().Msg("gateway.callback_secret is empty, provider callbacks will be rejected")
	}

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		Ledger:         ledgerSvc,
		Engine:         engine,
		Gateway:        gatewayClient,
		SigSvc:         sigSvc,
		TokenSvc:       tokenSvc,
		NonceStore:     nonceStore,
		RateLimitStore: rateLimitStore,
		HealthCheckers: healthCheckers,
		AuditSvc:       auditSvc,
		CallbackSecret: cfg.Gateway.CallbackSecret,
		Clock:          clk,
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if settlementWorker != nil {
		settlementWorker.Stop()
	}
	notifier.Wait()
	auditSvc.Wait()
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close Kafka publisher")
		}
	}

	log.Info().Msg("Server exited")
}
