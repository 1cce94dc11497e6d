package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"savings-ledger/internal/core/ports"
)

const rateLimitPrefix = "svl:ratelimit:"

// RateLimitStore counts requests per caller in fixed windows shared by all
// replicas.
type RateLimitStore struct {
	client *goredis.Client
	clock  ports.Clock
}

func NewRateLimitStore(client *goredis.Client, clock ports.Clock) *RateLimitStore {
	return &RateLimitStore{client: client, clock: clock}
}

// Quota is what is left of a caller's window after one request.
type Quota struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration // zero while Allowed
}

// Allow counts one request against key in the window containing now.
func (s *RateLimitStore) Allow(ctx context.Context, key string, limit int64, window time.Duration) (Quota, error) {
	if window < time.Second {
		window = time.Second
	}
	now := s.clock.Now()
	start := now.Truncate(window)
	bucket := fmt.Sprintf("%s%s:%d", rateLimitPrefix, key, start.Unix())

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, bucket)
	pipe.ExpireNX(ctx, bucket, window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return Quota{}, fmt.Errorf("redis rate limit: %w", err)
	}

	q := Quota{
		Allowed:   incr.Val() <= limit,
		Limit:     limit,
		Remaining: max(limit-incr.Val(), 0),
		ResetAt:   start.Add(window),
	}
	if !q.Allowed {
		q.RetryAfter = max(q.ResetAt.Sub(now), time.Second)
	}
	return q, nil
}
