package memory

import (
	"context"
	"sync"
	"time"

	"savings-ledger/internal/core/ports"

	"github.com/google/uuid"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Cache is an in-process ports.IdempotencyCache used when Redis is disabled.
type Cache struct {
	mu    sync.Mutex
	clock ports.Clock
	items map[string]entry
}

func NewCache(clock ports.Clock) *Cache {
	return &Cache{clock: clock, items: make(map[string]entry)}
}

func (c *Cache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if !ok {
		return nil, nil
	}
	if !c.clock.Now().Before(e.expiresAt) {
		delete(c.items, key)
		return nil, nil
	}
	return e.value, nil
}

// Set keeps the first live value for a key, matching the Redis cache.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	if e, ok := c.items[key]; ok && now.Before(e.expiresAt) {
		return nil
	}
	c.items[key] = entry{value: value, expiresAt: now.Add(ttl)}
	return nil
}

// CheckAndSet implements ports.NonceStore on the same expiring map.
func (c *Cache) CheckAndSet(_ context.Context, scope, nonce string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := "nonce:" + scope + ":" + nonce
	now := c.clock.Now()
	if e, ok := c.items[key]; ok && now.Before(e.expiresAt) {
		return false, nil
	}
	c.items[key] = entry{expiresAt: now.Add(ttl)}
	return true, nil
}

type lease struct {
	token     string
	expiresAt time.Time
}

// Locker is an in-process ports.UserLocker. Leases expire after their TTL
// like the Redis lock does.
type Locker struct {
	mu     sync.Mutex
	clock  ports.Clock
	leases map[string]lease
}

func NewLocker(clock ports.Clock) *Locker {
	return &Locker{clock: clock, leases: make(map[string]lease)}
}

func (l *Locker) TryLock(_ context.Context, userID string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock.Now()
	if cur, ok := l.leases[userID]; ok && now.Before(cur.expiresAt) {
		return "", false, nil
	}
	token := uuid.NewString()
	l.leases[userID] = lease{token: token, expiresAt: now.Add(ttl)}
	return token, true, nil
}

func (l *Locker) Unlock(_ context.Context, userID, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.leases[userID]; ok && cur.token == token {
		delete(l.leases, userID)
	}
	return nil
}
