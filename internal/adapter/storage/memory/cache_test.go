package memory

import (
	"context"
	"testing"
	"time"

	"savings-ledger/pkg/clock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_Expiry(t *testing.T) {
	clk := clock.NewFake(t0)
	c := NewCache(clk)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "gateway:DEBIT:ref-1", []byte("ok"), time.Minute))
	require.NoError(t, c.Set(ctx, "gateway:DEBIT:ref-1", []byte("later"), time.Minute))
	v, err := c.Get(ctx, "gateway:DEBIT:ref-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), v)

	clk.Advance(time.Minute)
	v, err = c.Get(ctx, "gateway:DEBIT:ref-1")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestCache_Nonce(t *testing.T) {
	clk := clock.NewFake(t0)
	c := NewCache(clk)
	ctx := context.Background()

	ok, _ := c.CheckAndSet(ctx, "callback:MTN", "n1", time.Minute)
	assert.True(t, ok)
	ok, _ = c.CheckAndSet(ctx, "callback:MTN", "n1", time.Minute)
	assert.False(t, ok)
	ok, _ = c.CheckAndSet(ctx, "callback:ORANGE", "n1", time.Minute)
	assert.True(t, ok)

	clk.Advance(2 * time.Minute)
	ok, _ = c.CheckAndSet(ctx, "callback:MTN", "n1", time.Minute)
	assert.True(t, ok)
}

func TestLocker(t *testing.T) {
	clk := clock.NewFake(t0)
	l := NewLocker(clk)
	ctx := context.Background()

	tok, ok, err := l.TryLock(ctx, "user-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, _ = l.TryLock(ctx, "user-1", time.Minute)
	assert.False(t, ok)

	require.NoError(t, l.Unlock(ctx, "user-1", "not-the-owner"))
	_, ok, _ = l.TryLock(ctx, "user-1", time.Minute)
	assert.False(t, ok, "foreign token must not release the lease")

	require.NoError(t, l.Unlock(ctx, "user-1", tok))
	tok2, ok, _ := l.TryLock(ctx, "user-1", time.Minute)
	require.True(t, ok)

	clk.Advance(2 * time.Minute)
	_, ok, _ = l.TryLock(ctx, "user-1", time.Minute)
	assert.True(t, ok, "expired lease can be taken over")

	require.NoError(t, l.Unlock(ctx, "user-1", tok2))
	_, ok, _ = l.TryLock(ctx, "user-1", time.Minute)
	assert.False(t, ok, "stale owner must not release the new lease")
}
