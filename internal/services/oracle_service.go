package services

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/veilora/veil-oracle-go/internal/cache"
	"github.com/veilora/veil-oracle-go/internal/models"
)

// OracleService answers public price queries by driving the collect,
// aggregate, validate pipeline, with a consensus cache short-circuiting the
// first two stages when fresh data is available.
type OracleService struct {
	collector  *ObservationCollector
	aggregator *AggregationEngine
	validator  *ConsensusValidator
	cache      cache.ConsensusCache
	feeds      map[string]models.FeedConfig
	logger     *logrus.Logger
}

// NewOracleService creates an oracle service over the given feeds.
func NewOracleService(
	collector *ObservationCollector,
	aggregator *AggregationEngine,
	validator *ConsensusValidator,
	consensusCache cache.ConsensusCache,
	feeds []models.FeedConfig,
	logger *logrus.Logger,
) *OracleService {
	if logger == nil {
		logger = logrus.New()
	}
	feedMap := make(map[string]models.FeedConfig, len(feeds))
	for _, feed := range feeds {
		feedMap[normalizeFeedID(feed.FeedID)] = feed
	}
	return &OracleService{
		collector:  collector,
		aggregator: aggregator,
		validator:  validator,
		cache:      consensusCache,
		feeds:      feedMap,
		logger:     logger,
	}
}

// Feed resolves a feed configuration by id, case-insensitively.
func (s *OracleService) Feed(feedID string) (models.FeedConfig, bool) {
	feed, ok := s.feeds[normalizeFeedID(feedID)]
	return feed, ok
}

// Feeds returns the configured feeds.
func (s *OracleService) Feeds() []models.FeedConfig {
	feeds := make([]models.FeedConfig, 0, len(s.feeds))
	for _, feed := range s.feeds {
		feeds = append(feeds, feed)
	}
	return feeds
}

// CacheStats exposes the consensus cache counters for health reporting.
func (s *OracleService) CacheStats() cache.CacheStats {
	return s.cache.Stats()
}

// GetPublicPrice resolves a price query. A cached consensus that still
// satisfies the query is returned without touching the sources; otherwise
// the full pipeline runs and the fresh result is cached for the next caller.
func (s *OracleService) GetPublicPrice(ctx context.Context, query models.PriceQuery) (*models.PriceResponse, error) {
	if strings.TrimSpace(query.FeedID) == "" {
		return nil, models.NewOracleError(models.ErrInvalidQuery, "feed id is required")
	}
	feed, ok := s.Feed(query.FeedID)
	if !ok {
		return nil, models.NewOracleErrorf(models.ErrInvalidQuery, "unknown feed %q", query.FeedID)
	}
	query.FeedID = feed.FeedID

	if cached, hit := s.cache.Get(ctx, query); hit {
		if response, err := s.validator.Validate(cached, query); err == nil {
			s.logger.WithField("feed_id", feed.FeedID).Debug("Serving consensus from cache")
			return response, nil
		}
		// Cached result no longer satisfies this query; recompute.
	}

	if query.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, query.Timeout)
		defer cancel()
	}

	observations, err := s.collector.Collect(ctx, feed)
	if err != nil {
		return nil, err
	}

	result, err := s.aggregator.Aggregate(feed, observations)
	if err != nil {
		return nil, err
	}
	if result.ConsensusReached {
		s.cache.Set(ctx, result)
	}

	return s.validator.Validate(result, query)
}

func normalizeFeedID(feedID string) string {
	return strings.ToUpper(strings.TrimSpace(feedID))
}
