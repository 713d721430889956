package cache

import (
	"context"
	"testing"
	"time"

	"github.com/25x8/coinledger/internal/coinledger/models"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func setupCache(t *testing.T) (*RedisBalanceCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewRedisBalanceCache(RedisConfig{Addr: mr.Addr(), TTL: time.Minute})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestRedisBalanceCacheRoundTrip(t *testing.T) {
	c, _ := setupCache(t)
	ctx := context.Background()

	got, gen, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	require.Nil(t, got)
	require.Zero(t, gen)

	row := &models.AccountBalance{UserID: "u1", Balance: 70, TotalEarned: 100, TotalSpent: 30, Tier: models.TierBronze, ReferralCode: "AAAA1111"}
	stored, err := c.Set(ctx, row, gen)
	require.NoError(t, err)
	require.True(t, stored)

	got, _, err = c.Get(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, row.Balance, got.Balance)
	require.Equal(t, row.ReferralCode, got.ReferralCode)

	require.NoError(t, c.Invalidate(ctx, "u1", "u2"))
	got, gen, err = c.Get(ctx, "u1")
	require.NoError(t, err)
	require.Nil(t, got)
	require.Equal(t, int64(1), gen)
}

func TestRedisBalanceCacheRefusesStaleFill(t *testing.T) {
	c, mr := setupCache(t)
	ctx := context.Background()

	_, gen, err := c.Get(ctx, "u1")
	require.NoError(t, err)

	// a write commits between the miss and the fill
	require.NoError(t, c.Invalidate(ctx, "u1"))

	stored, err := c.Set(ctx, &models.AccountBalance{UserID: "u1", Balance: 0}, gen)
	require.NoError(t, err)
	require.False(t, stored)
	require.False(t, mr.Exists(keyPrefix+"u1"))

	// a fill with the current generation goes through
	got, gen, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	require.Nil(t, got)
	stored, err = c.Set(ctx, &models.AccountBalance{UserID: "u1", Balance: 70}, gen)
	require.NoError(t, err)
	require.True(t, stored)
}

func TestRedisBalanceCacheExpires(t *testing.T) {
	c, mr := setupCache(t)
	ctx := context.Background()

	_, err := c.Set(ctx, &models.AccountBalance{UserID: "u1", Balance: 5}, 0)
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)

	got, _, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestNewRedisBalanceCacheUnreachable(t *testing.T) {
	_, err := NewRedisBalanceCache(RedisConfig{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond})
	require.Error(t, err)
}
