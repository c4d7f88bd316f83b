package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilora/veil-oracle-go/internal/cache"
	"github.com/veilora/veil-oracle-go/internal/models"
)

func newTestOracle(minSources int, sources ...ObservationSource) *OracleService {
	logger := quietLogger()
	collector := NewObservationCollector(sources, testCollectorConfig(), logger)
	aggregator := NewAggregationEngine(AggregationConfig{
		OutlierThresholdBps: 500,
		MinSources:          minSources,
		Weighting:           WeightingConfidence,
		SourcePriorities:    collector.SourcePriorities(),
	}, logger)
	validator := NewConsensusValidator(minSources, logger)
	return NewOracleService(collector, aggregator, validator,
		cache.NewMemoryConsensusCache(30*time.Second), []models.FeedConfig{testFeed}, logger)
}

func TestOracleService_FullPipeline(t *testing.T) {
	oracle := newTestOracle(3,
		priceSource("alpha", "3400.10", 90),
		priceSource("beta", "3400.50", 95),
		priceSource("gamma", "3400.30", 92),
	)

	response, err := oracle.GetPublicPrice(context.Background(), models.PriceQuery{
		FeedID:       "ETH/USD",
		MaxStaleness: time.Minute,
		AllowCached:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, "ETH/USD", response.FeedID)
	assert.Len(t, response.Consensus.ParticipatingSources, 3)
	assert.True(t, response.Consensus.ConsensusReached)
}

func TestOracleService_CacheShortCircuitsSources(t *testing.T) {
	alpha := priceSource("alpha", "3400.10", 90)
	beta := priceSource("beta", "3400.50", 95)
	gamma := priceSource("gamma", "3400.30", 92)
	oracle := newTestOracle(3, alpha, beta, gamma)
	query := models.PriceQuery{FeedID: "ETH/USD", MaxStaleness: time.Minute, AllowCached: true}

	first, err := oracle.GetPublicPrice(context.Background(), query)
	require.NoError(t, err)
	second, err := oracle.GetPublicPrice(context.Background(), query)
	require.NoError(t, err)

	// The second call is served from cache: one fetch per source in total.
	assert.Equal(t, int64(1), alpha.calls.Load())
	assert.Equal(t, int64(1), beta.calls.Load())
	assert.Equal(t, int64(1), gamma.calls.Load())
	assert.True(t, first.Price.Equal(second.Price))
}

func TestOracleService_AllowCachedFalseForcesRefetch(t *testing.T) {
	alpha := priceSource("alpha", "3400.10", 90)
	beta := priceSource("beta", "3400.50", 95)
	gamma := priceSource("gamma", "3400.30", 92)
	oracle := newTestOracle(3, alpha, beta, gamma)
	query := models.PriceQuery{FeedID: "ETH/USD", AllowCached: false}

	_, err := oracle.GetPublicPrice(context.Background(), query)
	require.NoError(t, err)
	_, err = oracle.GetPublicPrice(context.Background(), query)
	require.NoError(t, err)

	assert.Equal(t, int64(2), alpha.calls.Load())
}

func TestOracleService_QuorumFailure(t *testing.T) {
	oracle := newTestOracle(3,
		priceSource("alpha", "3400.10", 90),
		priceSource("beta", "3400.50", 95),
	)

	_, err := oracle.GetPublicPrice(context.Background(), models.PriceQuery{FeedID: "ETH/USD"})
	require.Error(t, err)
	code, _ := models.CodeOf(err)
	assert.Equal(t, models.ErrConsensusNotReached, code)
}

func TestOracleService_UnknownFeed(t *testing.T) {
	oracle := newTestOracle(3, priceSource("alpha", "3400.10", 90))

	_, err := oracle.GetPublicPrice(context.Background(), models.PriceQuery{FeedID: "DOGE/USD"})
	require.Error(t, err)
	code, _ := models.CodeOf(err)
	assert.Equal(t, models.ErrInvalidQuery, code)
}

func TestOracleService_FeedIDCaseInsensitive(t *testing.T) {
	oracle := newTestOracle(3,
		priceSource("alpha", "3400.10", 90),
		priceSource("beta", "3400.50", 95),
		priceSource("gamma", "3400.30", 92),
	)

	response, err := oracle.GetPublicPrice(context.Background(), models.PriceQuery{FeedID: "eth/usd"})
	require.NoError(t, err)
	assert.Equal(t, "ETH/USD", response.FeedID)
}

func TestOracleService_OutlierExcludedEndToEnd(t *testing.T) {
	oracle := newTestOracle(2,
		priceSource("alpha", "3400.10", 90),
		priceSource("beta", "3400.50", 95),
		priceSource("gamma", "3700.00", 92),
	)

	response, err := oracle.GetPublicPrice(context.Background(), models.PriceQuery{FeedID: "ETH/USD"})
	require.NoError(t, err)
	assert.Equal(t, []string{"gamma"}, response.Consensus.ExcludedOutliers)
	assert.True(t, response.Price.LessThan(decimal.RequireFromString("3500")))
}

func TestOracleService_SimulatedSourcesReachConsensus(t *testing.T) {
	base := map[string]decimal.Decimal{"ETH/USD": decimal.RequireFromString("3400.00")}
	oracle := newTestOracle(3,
		NewSimulatedSource("sim-a", 1, base, 20, 95),
		NewSimulatedSource("sim-b", 1, base, 20, 95),
		NewSimulatedSource("sim-c", 1, base, 20, 95),
	)

	response, err := oracle.GetPublicPrice(context.Background(), models.PriceQuery{FeedID: "ETH/USD"})
	require.NoError(t, err)
	assert.True(t, response.Consensus.ConsensusReached)
}
