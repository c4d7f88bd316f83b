package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/veilora/veil-oracle-go/internal/models"
)

// redisEntry is the JSON shape stored per feed.
type redisEntry struct {
	Result   models.ConsensusResult `json:"result"`
	CachedAt time.Time              `json:"cached_at"`
}

// RedisConsensusCache implements ConsensusCache over Redis so multiple
// oracle replicas can share the last computed consensus per feed.
type RedisConsensusCache struct {
	redis  *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
	prefix string

	statsMu sync.Mutex
	stats   CacheStats
}

// NewRedisConsensusCache creates a Redis-backed consensus cache.
func NewRedisConsensusCache(redisClient *redis.Client, ttl time.Duration, logger *logrus.Logger) *RedisConsensusCache {
	if logger == nil {
		logger = logrus.New()
	}
	return &RedisConsensusCache{
		redis:  redisClient,
		ttl:    ttl,
		logger: logger,
		prefix: "consensus_cache:",
	}
}

// Get retrieves the cached consensus for a feed, applying the same TTL and
// staleness rules as the in-memory cache.
func (c *RedisConsensusCache) Get(ctx context.Context, query models.PriceQuery) (*models.ConsensusResult, bool) {
	if !query.AllowCached {
		c.miss()
		return nil, false
	}

	data, err := c.redis.Get(ctx, c.prefix+query.FeedID).Result()
	if err == redis.Nil {
		c.miss()
		return nil, false
	}
	if err != nil {
		c.logger.WithError(err).WithField("feed_id", query.FeedID).Warn("Redis error reading consensus cache")
		c.miss()
		return nil, false
	}

	var entry redisEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		c.logger.WithError(err).WithField("feed_id", query.FeedID).Warn("Failed to deserialize cached consensus")
		c.miss()
		return nil, false
	}

	now := time.Now()
	if now.Sub(entry.CachedAt) > c.ttl {
		c.miss()
		return nil, false
	}
	if query.MaxStaleness > 0 && entry.Result.Age(now) > query.MaxStaleness {
		c.miss()
		return nil, false
	}

	c.statsMu.Lock()
	c.stats.Hits++
	c.statsMu.Unlock()
	return &entry.Result, true
}

// Set stores a result with the cache TTL. The SET is a single atomic
// replace, so concurrent writers race with last-writer-wins semantics.
func (c *RedisConsensusCache) Set(ctx context.Context, result *models.ConsensusResult) {
	entry := redisEntry{Result: *result, CachedAt: time.Now()}
	data, err := json.Marshal(entry)
	if err != nil {
		c.logger.WithError(err).WithField("feed_id", result.FeedID).Error("Failed to serialize consensus result")
		return
	}

	if err := c.redis.Set(ctx, c.prefix+result.FeedID, data, c.ttl).Err(); err != nil {
		c.logger.WithError(err).WithField("feed_id", result.FeedID).Warn("Redis error writing consensus cache")
		return
	}

	c.statsMu.Lock()
	c.stats.Sets++
	c.statsMu.Unlock()
}

// Stats returns a snapshot of the cache counters.
func (c *RedisConsensusCache) Stats() CacheStats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

// Clear removes all cached consensus entries, used by tests and manual
// invalidation.
func (c *RedisConsensusCache) Clear(ctx context.Context) error {
	var keys []string
	iter := c.redis.Scan(ctx, 0, c.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("error scanning cache keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("error clearing cache: %w", err)
	}
	return nil
}

func (c *RedisConsensusCache) miss() {
	c.statsMu.Lock()
	c.stats.Misses++
	c.statsMu.Unlock()
}
