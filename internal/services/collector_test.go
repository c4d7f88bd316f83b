package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilora/veil-oracle-go/internal/models"
)

// stubSource is a scriptable ObservationSource counting its fetch calls.
type stubSource struct {
	name     string
	priority int
	calls    atomic.Int64
	fetch    func(ctx context.Context, calls int64) (models.PriceObservation, error)
}

func (s *stubSource) Name() string  { return s.name }
func (s *stubSource) Priority() int { return s.priority }

func (s *stubSource) FetchPrice(ctx context.Context, _ models.FeedConfig) (models.PriceObservation, error) {
	return s.fetch(ctx, s.calls.Add(1))
}

func priceSource(name string, price string, confidence float64) *stubSource {
	return &stubSource{
		name:     name,
		priority: 1,
		fetch: func(_ context.Context, _ int64) (models.PriceObservation, error) {
			return models.PriceObservation{
				Price:      decimal.RequireFromString(price),
				Decimals:   8,
				Confidence: confidence,
				ObservedAt: time.Now().UTC(),
			}, nil
		},
	}
}

func failingSource(name string) *stubSource {
	return &stubSource{
		name:     name,
		priority: 1,
		fetch: func(_ context.Context, _ int64) (models.PriceObservation, error) {
			return models.PriceObservation{}, models.NewOracleError(models.ErrSourceUnavailable, "backend down")
		},
	}
}

func testCollectorConfig() CollectorConfig {
	return CollectorConfig{
		SourceTimeout:      200 * time.Millisecond,
		MaxRetries:         3,
		RetryInitialDelay:  time.Millisecond,
		RetryBackoffFactor: 2.0,
	}
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

var testFeed = models.FeedConfig{
	FeedID:                "ETH/USD",
	Decimals:              8,
	DeviationThresholdBps: 500,
	MinConfidence:         0,
}

func TestCollector_GathersFromAllSources(t *testing.T) {
	collector := NewObservationCollector([]ObservationSource{
		priceSource("beta", "3400.50", 95),
		priceSource("alpha", "3400.10", 90),
		priceSource("gamma", "3400.30", 92),
	}, testCollectorConfig(), quietLogger())

	observations, err := collector.Collect(context.Background(), testFeed)
	require.NoError(t, err)
	require.Len(t, observations, 3)

	// Sorted by source name so aggregation sees a stable order.
	assert.Equal(t, "alpha", observations[0].Source)
	assert.Equal(t, "beta", observations[1].Source)
	assert.Equal(t, "gamma", observations[2].Source)
	assert.Equal(t, "ETH/USD", observations[0].FeedID)
}

func TestCollector_RetriesTransientFailures(t *testing.T) {
	flaky := &stubSource{
		name:     "flaky",
		priority: 1,
		fetch: func(_ context.Context, calls int64) (models.PriceObservation, error) {
			if calls < 3 {
				return models.PriceObservation{}, models.NewOracleError(models.ErrSourceUnavailable, "transient")
			}
			return models.PriceObservation{Price: decimal.RequireFromString("3400.00"), Confidence: 90}, nil
		},
	}
	collector := NewObservationCollector([]ObservationSource{flaky}, testCollectorConfig(), quietLogger())

	observations, err := collector.Collect(context.Background(), testFeed)
	require.NoError(t, err)
	require.Len(t, observations, 1)
	assert.Equal(t, int64(3), flaky.calls.Load())
}

func TestCollector_PartialFailureStillReturns(t *testing.T) {
	collector := NewObservationCollector([]ObservationSource{
		priceSource("alpha", "3400.10", 90),
		failingSource("broken"),
		priceSource("gamma", "3400.30", 92),
	}, testCollectorConfig(), quietLogger())

	observations, err := collector.Collect(context.Background(), testFeed)
	require.NoError(t, err)
	assert.Len(t, observations, 2)
}

func TestCollector_AllSourcesFail(t *testing.T) {
	collector := NewObservationCollector([]ObservationSource{
		failingSource("a"),
		failingSource("b"),
	}, testCollectorConfig(), quietLogger())

	_, err := collector.Collect(context.Background(), testFeed)
	require.Error(t, err)
	code, ok := models.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, models.ErrSourceUnavailable, code)
}

func TestCollector_SlowSourceIsExcluded(t *testing.T) {
	slow := &stubSource{
		name:     "slow",
		priority: 1,
		fetch: func(ctx context.Context, _ int64) (models.PriceObservation, error) {
			select {
			case <-ctx.Done():
				return models.PriceObservation{}, ctx.Err()
			case <-time.After(time.Second):
				return models.PriceObservation{Price: decimal.RequireFromString("3400.00"), Confidence: 90}, nil
			}
		},
	}
	cfg := testCollectorConfig()
	cfg.SourceTimeout = 10 * time.Millisecond
	cfg.MaxRetries = 1
	collector := NewObservationCollector([]ObservationSource{
		slow,
		priceSource("fast", "3400.10", 90),
	}, cfg, quietLogger())

	observations, err := collector.Collect(context.Background(), testFeed)
	require.NoError(t, err)
	require.Len(t, observations, 1)
	assert.Equal(t, "fast", observations[0].Source)
}

func TestCollector_SourcePriorities(t *testing.T) {
	alpha := priceSource("alpha", "1", 90)
	alpha.priority = 3
	beta := priceSource("beta", "1", 90)
	beta.priority = 1
	collector := NewObservationCollector([]ObservationSource{alpha, beta}, testCollectorConfig(), quietLogger())

	assert.Equal(t, map[string]int{"alpha": 3, "beta": 1}, collector.SourcePriorities())
}
