package services

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/veilora/veil-oracle-go/internal/models"
)

// ObservationSource fetches one price observation for a feed. Implementations
// are swappable at construction time: production deployments register
// network-backed sources while tests and local development register fixtures
// such as SimulatedSource.
type ObservationSource interface {
	Name() string
	Priority() int
	FetchPrice(ctx context.Context, feed models.FeedConfig) (models.PriceObservation, error)
}

// CollectorConfig holds configuration for the observation collector.
type CollectorConfig struct {
	SourceTimeout      time.Duration
	MaxRetries         int
	RetryInitialDelay  time.Duration
	RetryBackoffFactor float64
}

// ObservationCollector fans a feed query out to all registered sources in
// parallel and gathers whatever observations come back. A slow or failing
// source never blocks the others; it is simply absent from the result set.
type ObservationCollector struct {
	sources []ObservationSource
	config  CollectorConfig
	logger  *logrus.Logger
}

// NewObservationCollector creates a collector over a fixed set of sources.
func NewObservationCollector(sources []ObservationSource, cfg CollectorConfig, logger *logrus.Logger) *ObservationCollector {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.SourceTimeout <= 0 {
		cfg.SourceTimeout = 5 * time.Second
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if cfg.RetryInitialDelay <= 0 {
		cfg.RetryInitialDelay = 100 * time.Millisecond
	}
	if cfg.RetryBackoffFactor < 1 {
		cfg.RetryBackoffFactor = 2.0
	}
	return &ObservationCollector{
		sources: sources,
		config:  cfg,
		logger:  logger,
	}
}

// SourcePriorities returns the configured priority per source name, used by
// the aggregation engine's priority weighting strategy.
func (c *ObservationCollector) SourcePriorities() map[string]int {
	priorities := make(map[string]int, len(c.sources))
	for _, source := range c.sources {
		priorities[source.Name()] = source.Priority()
	}
	return priorities
}

// Collect queries every source concurrently and returns the observations that
// arrived in time, sorted by source name for deterministic downstream math.
// It fails with SOURCE_UNAVAILABLE only when no source produced anything.
func (c *ObservationCollector) Collect(ctx context.Context, feed models.FeedConfig) ([]models.PriceObservation, error) {
	if len(c.sources) == 0 {
		return nil, models.NewOracleError(models.ErrSourceUnavailable, "no observation sources registered")
	}

	results := make(chan models.PriceObservation, len(c.sources))
	var wg sync.WaitGroup
	for _, source := range c.sources {
		wg.Add(1)
		go func(source ObservationSource) {
			defer wg.Done()
			obs, err := c.fetchWithRetry(ctx, source, feed)
			if err != nil {
				c.logger.WithError(err).WithFields(logrus.Fields{
					"source":  source.Name(),
					"feed_id": feed.FeedID,
				}).Warn("Source failed to produce an observation")
				return
			}
			results <- obs
		}(source)
	}
	wg.Wait()
	close(results)

	observations := make([]models.PriceObservation, 0, len(c.sources))
	for obs := range results {
		observations = append(observations, obs)
	}
	if len(observations) == 0 {
		return nil, models.NewOracleErrorf(models.ErrSourceUnavailable,
			"all %d sources failed for feed %s", len(c.sources), feed.FeedID)
	}

	sort.Slice(observations, func(i, j int) bool {
		return observations[i].Source < observations[j].Source
	})

	c.logger.WithFields(logrus.Fields{
		"feed_id":   feed.FeedID,
		"collected": len(observations),
		"sources":   len(c.sources),
	}).Debug("Observation collection complete")
	return observations, nil
}

// fetchWithRetry runs up to MaxRetries attempts against one source, each
// bounded by the per-source timeout, with jittered exponential backoff
// between attempts.
func (c *ObservationCollector) fetchWithRetry(ctx context.Context, source ObservationSource, feed models.FeedConfig) (models.PriceObservation, error) {
	var lastErr error
	delay := c.config.RetryInitialDelay

	for attempt := 1; attempt <= c.config.MaxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, c.config.SourceTimeout)
		obs, err := source.FetchPrice(attemptCtx, feed)
		cancel()
		if err == nil {
			obs.Source = source.Name()
			obs.FeedID = feed.FeedID
			if obs.ObservedAt.IsZero() {
				obs.ObservedAt = time.Now().UTC()
			}
			return obs, nil
		}
		lastErr = err

		if attempt == c.config.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return models.PriceObservation{}, ctx.Err()
		case <-time.After(jitter(delay)):
		}
		delay = time.Duration(float64(delay) * c.config.RetryBackoffFactor)
	}
	return models.PriceObservation{}, lastErr
}

// jitter spreads retries over [delay/2, delay) so sources recovering from an
// outage are not hammered in lockstep.
func jitter(delay time.Duration) time.Duration {
	half := delay / 2
	if half <= 0 {
		return delay
	}
	return half + time.Duration(rand.Int63n(int64(half)))
}
