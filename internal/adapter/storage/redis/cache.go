package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	resultPrefix = "svl:result:"
	noncePrefix  = "svl:nonce:"
)

// Cache backs both ports.IdempotencyCache and ports.NonceStore, so every
// replica sees the same replay and result state.
type Cache struct {
	client *goredis.Client
}

func NewCache(client *goredis.Client) *Cache {
	return &Cache{client: client}
}

// Get returns nil, nil on a miss.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, resultPrefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis result get: %w", err)
	}
	return val, nil
}

// Set records a result only if none is stored yet; the first outcome for
// an idempotency key is the one every retry replays.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := c.client.SetArgs(ctx, resultPrefix+key, value, goredis.SetArgs{Mode: "NX", TTL: ttl}).Err()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return fmt.Errorf("redis result set: %w", err)
	}
	return nil
}

// CheckAndSet reports true the first time a nonce is seen within scope.
func (c *Cache) CheckAndSet(ctx context.Context, scope, nonce string, ttl time.Duration) (bool, error) {
	res, err := c.client.SetArgs(ctx, noncePrefix+scope+":"+nonce, 1, goredis.SetArgs{Mode: "NX", TTL: ttl}).Result()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis nonce check: %w", err)
	}
	return res == "OK", nil
}
