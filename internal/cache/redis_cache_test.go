package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilora/veil-oracle-go/internal/models"
)

func newTestRedisCache(t *testing.T, ttl time.Duration) (*RedisConsensusCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewRedisConsensusCache(client, ttl, logger), mr
}

func TestRedisCache_RoundTrip(t *testing.T) {
	c, _ := newTestRedisCache(t, 30*time.Second)
	ctx := context.Background()

	c.Set(ctx, sampleResult("ETH/USD", time.Now()))

	got, ok := c.Get(ctx, models.PriceQuery{FeedID: "ETH/USD", AllowCached: true, MaxStaleness: time.Minute})
	require.True(t, ok)
	assert.Equal(t, "ETH/USD", got.FeedID)
	assert.True(t, got.Price.Equal(decimal.RequireFromString("3400.30")))

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Sets)
}

func TestRedisCache_MissOnUnknownFeed(t *testing.T) {
	c, _ := newTestRedisCache(t, 30*time.Second)

	_, ok := c.Get(context.Background(), models.PriceQuery{FeedID: "BTC/USD", AllowCached: true})
	assert.False(t, ok)
	assert.Equal(t, int64(1), c.Stats().Misses)
}

func TestRedisCache_ExpiresWithTTL(t *testing.T) {
	c, mr := newTestRedisCache(t, 5*time.Second)
	ctx := context.Background()

	c.Set(ctx, sampleResult("ETH/USD", time.Now()))
	mr.FastForward(6 * time.Second)

	_, ok := c.Get(ctx, models.PriceQuery{FeedID: "ETH/USD", AllowCached: true})
	assert.False(t, ok)
}

func TestRedisCache_Clear(t *testing.T) {
	c, _ := newTestRedisCache(t, 30*time.Second)
	ctx := context.Background()

	c.Set(ctx, sampleResult("ETH/USD", time.Now()))
	c.Set(ctx, sampleResult("BTC/USD", time.Now()))

	require.NoError(t, c.Clear(ctx))

	_, ok := c.Get(ctx, models.PriceQuery{FeedID: "ETH/USD", AllowCached: true})
	assert.False(t, ok)
}
