package handler

import (
	"savings-ledger/internal/adapter/http/middleware"
	redisStore "savings-ledger/internal/adapter/storage/redis"
	"savings-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// maxBodyBytes caps every request body.
const maxBodyBytes = 1 << 20

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	Ledger         ports.LedgerService
	Engine         ports.SettlementEngine
	Gateway        ports.GatewayClient
	SigSvc         ports.SignatureService
	TokenSvc       ports.TokenService
	NonceStore     ports.NonceStore
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	AuditSvc       ports.AuditService // nil = audit logging disabled
	CallbackSecret string
	Clock          ports.Clock
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(maxBodyBytes))

	// Audit logging (after response)
	if deps.AuditSvc != nil {
		r.Use(middleware.AuditLog(deps.AuditSvc))
	}

	r.GET("/health", HealthCheck(deps.HealthCheckers...))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	v1 := r.Group("/api/v1")

	// --- Ledger routes, called by the trusted upstream ---
	walletHandler := NewWalletHandler(deps.Ledger, deps.Engine)
	wallets := v1.Group("/wallets/:user_id")
	{
		wallets.POST("/credits", rl("credits"), walletHandler.Credit)
		wallets.GET("/balance", rl("reads"), walletHandler.Balance)
		wallets.GET("/history", rl("reads"), walletHandler.History)
		wallets.GET("/batch-status", rl("reads"), walletHandler.BatchStatus)
		wallets.GET("/settlements", rl("reads"), walletHandler.Settlements)
	}

	// --- Operator routes (JWT) ---
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)
	settlementHandler := NewSettlementHandler(deps.Engine)
	settlements := v1.Group("/settlements", jwtAuth, rl("admin"))
	{
		settlements.POST("/run", settlementHandler.Run)
		settlements.POST("/sweep", settlementHandler.Sweep)
		settlements.POST("/recover", settlementHandler.Recover)
		settlements.POST("/users/:user_id", settlementHandler.ForceUser)
		settlements.GET("/stats", settlementHandler.Stats)
	}

	gatewayHandler := NewGatewayHandler(deps.Gateway)
	gateway := v1.Group("/gateway")
	{
		gateway.GET("/:provider/balance", jwtAuth, rl("admin"), gatewayHandler.CollectorBalance)
		gateway.POST("/disbursements", jwtAuth, rl("admin"), gatewayHandler.Disburse)

		// --- Provider callbacks (HMAC) ---
		callbackAuth := middleware.CallbackAuth(deps.CallbackSecret, deps.SigSvc, deps.NonceStore, deps.Clock, deps.Logger)
		gateway.POST("/callbacks/:provider", rl("callbacks"), callbackAuth, gatewayHandler.Callback)
	}

	return r
}
