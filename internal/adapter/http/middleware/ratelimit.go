package middleware

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	redisStore "savings-ledger/internal/adapter/storage/redis"
	"savings-ledger/pkg/apperror"
	"savings-ledger/pkg/response"
)

// RateLimitRule defines a rate limit for an endpoint group.
type RateLimitRule struct {
	Limit  int64
	Window time.Duration
}

// DefaultRateLimitRules returns the limits per endpoint group.
func DefaultRateLimitRules() map[string]RateLimitRule {
	return map[string]RateLimitRule{
		"credits":   {Limit: 120, Window: time.Minute},
		"reads":     {Limit: 120, Window: time.Minute},
		"admin":     {Limit: 30, Window: time.Minute},
		"callbacks": {Limit: 300, Window: time.Minute},
	}
}

// RateLimiter creates a rate-limiting middleware for a given endpoint group.
// Store errors let the request through.
func RateLimiter(store *redisStore.RateLimitStore, group string, rule RateLimitRule, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("%s:%s", extractIdentifier(c), group)

		q, err := store.Allow(c.Request.Context(), key, rule.Limit, rule.Window)
		if err != nil {
			log.Warn().Err(err).Str("group", group).Msg("rate limit check failed, allowing request (degraded mode)")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(q.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(q.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(q.ResetAt.Unix(), 10))

		if !q.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(q.RetryAfter.Round(time.Second)/time.Second)))
			response.Error(c, apperror.ErrRateLimitExceeded())
			c.Abort()
			return
		}

		c.Next()
	}
}

// extractIdentifier keys the limit by operator, then user, then client IP.
func extractIdentifier(c *gin.Context) string {
	if sub := c.GetString(CtxSubject); sub != "" {
		return "op:" + sub
	}
	if uid := c.Param("user_id"); uid != "" {
		return "user:" + uid
	}
	return "ip:" + c.ClientIP()
}
