package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if it still holds the caller's token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// UserLocker implements ports.UserLocker with a token-owned SET NX PX key,
// so exclusion holds across every replica sharing the Redis instance.
type UserLocker struct {
	client *goredis.Client
	prefix string
}

// NewUserLocker creates a Redis-backed settlement lock.
func NewUserLocker(client *goredis.Client) *UserLocker {
	return &UserLocker{
		client: client,
		prefix: "settlement:lock:",
	}
}

// TryLock acquires the user's lock without blocking.
func (l *UserLocker) TryLock(ctx context.Context, userID string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	_, err := l.client.SetArgs(ctx, l.prefix+userID, token, goredis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis lock acquire: %w", err)
	}
	return token, true, nil
}

// Unlock releases the lock if token still owns it. An expired or stolen lock
// is left alone.
func (l *UserLocker) Unlock(ctx context.Context, userID, token string) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.prefix + userID}, token).Err(); err != nil {
		return fmt.Errorf("redis lock release: %w", err)
	}
	return nil
}
