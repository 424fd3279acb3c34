package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*BalanceCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewBalanceCache(client, time.Minute), mr
}

func TestBalanceCacheRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	_, ok := cache.Get(ctx, 1)
	require.False(t, ok)

	cache.Set(ctx, 1, decimal.RequireFromString("123.45"))
	got, ok := cache.Get(ctx, 1)
	require.True(t, ok)
	require.True(t, got.Equal(decimal.RequireFromString("123.45")))

	cache.Invalidate(ctx, 1)
	_, ok = cache.Get(ctx, 1)
	require.False(t, ok)
}

func TestBalanceCacheExpires(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	cache.Set(ctx, 7, decimal.RequireFromString("-12.30"))
	mr.FastForward(2 * time.Minute)

	_, ok := cache.Get(ctx, 7)
	require.False(t, ok)
}

func TestBalanceCacheIgnoresGarbage(t *testing.T) {
	cache, mr := newTestCache(t)
	require.NoError(t, mr.Set("billing:owner:9:balance", "not-a-number"))

	_, ok := cache.Get(context.Background(), 9)
	require.False(t, ok)
}

func TestNilCacheIsSafe(t *testing.T) {
	var cache *BalanceCache
	ctx := context.Background()

	_, ok := cache.Get(ctx, 1)
	require.False(t, ok)
	cache.Set(ctx, 1, decimal.Zero)
	cache.Invalidate(ctx, 1)
}
