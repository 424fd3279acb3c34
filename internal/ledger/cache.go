package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// BalanceCache keeps owner balance lookups off the database for the read
// endpoints. It is never consulted inside engine transactions; the engine
// only invalidates it after a commit.
type BalanceCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewBalanceCache constructs a cache with the given TTL.
func NewBalanceCache(client *redis.Client, ttl time.Duration) *BalanceCache {
	return &BalanceCache{client: client, ttl: ttl}
}

func balanceKey(ownerID int64) string {
	return fmt.Sprintf("billing:owner:%d:balance", ownerID)
}

// Get returns the cached balance, or ok=false on miss or error.
func (c *BalanceCache) Get(ctx context.Context, ownerID int64) (decimal.Decimal, bool) {
	if c == nil || c.client == nil {
		return decimal.Zero, false
	}
	raw, err := c.client.Get(ctx, balanceKey(ownerID)).Result()
	if err != nil {
		return decimal.Zero, false
	}
	balance, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false
	}
	return balance, true
}

// Set stores the balance for the cache TTL. Failures are ignored; the cache
// is an optimisation, not a source of truth.
func (c *BalanceCache) Set(ctx context.Context, ownerID int64, balance decimal.Decimal) {
	if c == nil || c.client == nil {
		return
	}
	_ = c.client.Set(ctx, balanceKey(ownerID), balance.String(), c.ttl).Err()
}

// Invalidate drops the cached balance after an engine write.
func (c *BalanceCache) Invalidate(ctx context.Context, ownerID int64) {
	if c == nil || c.client == nil {
		return
	}
	_ = c.client.Del(ctx, balanceKey(ownerID)).Err()
}
