package cache

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilora/veil-oracle-go/internal/models"
)

func sampleResult(feedID string, computedAt time.Time) *models.ConsensusResult {
	return &models.ConsensusResult{
		FeedID:               feedID,
		Price:                decimal.RequireFromString("3400.30"),
		Decimals:             8,
		Confidence:           92.5,
		ParticipatingSources: []string{"alpha", "beta", "gamma"},
		QualityScore:         88.0,
		ConsensusReached:     true,
		ComputedAt:           computedAt,
	}
}

func TestMemoryCache_HitWithinTTL(t *testing.T) {
	c := NewMemoryConsensusCache(30 * time.Second)
	ctx := context.Background()

	c.Set(ctx, sampleResult("ETH/USD", time.Now()))

	got, ok := c.Get(ctx, models.PriceQuery{FeedID: "ETH/USD", AllowCached: true, MaxStaleness: time.Minute})
	require.True(t, ok)
	assert.Equal(t, "ETH/USD", got.FeedID)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Sets)
}

func TestMemoryCache_MissWhenCachingDisallowed(t *testing.T) {
	c := NewMemoryConsensusCache(30 * time.Second)
	ctx := context.Background()

	c.Set(ctx, sampleResult("ETH/USD", time.Now()))

	_, ok := c.Get(ctx, models.PriceQuery{FeedID: "ETH/USD", AllowCached: false})
	assert.False(t, ok)
}

func TestMemoryCache_MissAfterTTL(t *testing.T) {
	c := NewMemoryConsensusCache(10 * time.Second)
	ctx := context.Background()

	base := time.Now()
	c.now = func() time.Time { return base }
	c.Set(ctx, sampleResult("ETH/USD", base))

	c.now = func() time.Time { return base.Add(11 * time.Second) }
	_, ok := c.Get(ctx, models.PriceQuery{FeedID: "ETH/USD", AllowCached: true})
	assert.False(t, ok)
}

func TestMemoryCache_StalenessBoundary(t *testing.T) {
	c := NewMemoryConsensusCache(time.Hour)
	ctx := context.Background()

	base := time.Now()
	c.now = func() time.Time { return base }
	c.Set(ctx, sampleResult("ETH/USD", base))

	// Age exactly equal to MaxStaleness still passes.
	c.now = func() time.Time { return base.Add(30 * time.Second) }
	_, ok := c.Get(ctx, models.PriceQuery{FeedID: "ETH/USD", AllowCached: true, MaxStaleness: 30 * time.Second})
	assert.True(t, ok)

	// One nanosecond beyond the bound is a miss.
	c.now = func() time.Time { return base.Add(30*time.Second + time.Nanosecond) }
	_, ok = c.Get(ctx, models.PriceQuery{FeedID: "ETH/USD", AllowCached: true, MaxStaleness: 30 * time.Second})
	assert.False(t, ok)
}

func TestMemoryCache_LastWriterWins(t *testing.T) {
	c := NewMemoryConsensusCache(time.Hour)
	ctx := context.Background()

	first := sampleResult("ETH/USD", time.Now())
	second := sampleResult("ETH/USD", time.Now())
	second.Price = decimal.RequireFromString("3500.00")

	c.Set(ctx, first)
	c.Set(ctx, second)

	got, ok := c.Get(ctx, models.PriceQuery{FeedID: "ETH/USD", AllowCached: true})
	require.True(t, ok)
	assert.True(t, got.Price.Equal(second.Price))
}

func TestMemoryCache_FeedsAreIndependent(t *testing.T) {
	c := NewMemoryConsensusCache(time.Hour)
	ctx := context.Background()

	c.Set(ctx, sampleResult("ETH/USD", time.Now()))

	_, ok := c.Get(ctx, models.PriceQuery{FeedID: "BTC/USD", AllowCached: true})
	assert.False(t, ok)
}
