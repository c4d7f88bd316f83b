package cache

import (
	"context"
	"sync"
	"time"

	"github.com/veilora/veil-oracle-go/internal/models"
)

// ConsensusCache is a per-feed, TTL-bound store of the last computed
// consensus result. Implementations must be safe for concurrent use and must
// swap entries atomically so readers never observe a torn result.
type ConsensusCache interface {
	Get(ctx context.Context, query models.PriceQuery) (*models.ConsensusResult, bool)
	Set(ctx context.Context, result *models.ConsensusResult)
	Stats() CacheStats
}

// CacheStats tracks cache performance counters.
type CacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
}

type memoryEntry struct {
	result   *models.ConsensusResult
	cachedAt time.Time
}

// MemoryConsensusCache keeps consensus results in process memory. Writes
// replace the prior entry pointer, so concurrent same-feed queries race
// safely with last-writer-wins semantics.
type MemoryConsensusCache struct {
	ttl     time.Duration
	mu      sync.RWMutex
	entries map[string]*memoryEntry

	statsMu sync.Mutex
	stats   CacheStats

	// now is swappable for staleness boundary tests.
	now func() time.Time
}

// NewMemoryConsensusCache creates an in-memory consensus cache.
func NewMemoryConsensusCache(ttl time.Duration) *MemoryConsensusCache {
	return &MemoryConsensusCache{
		ttl:     ttl,
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

// Get returns the cached result only if the query allows cached data, the
// entry is within TTL, and the result itself still satisfies the query's
// staleness bound. Anything else is a miss.
func (c *MemoryConsensusCache) Get(_ context.Context, query models.PriceQuery) (*models.ConsensusResult, bool) {
	if !query.AllowCached {
		c.miss()
		return nil, false
	}

	c.mu.RLock()
	entry, ok := c.entries[query.FeedID]
	c.mu.RUnlock()
	if !ok {
		c.miss()
		return nil, false
	}

	now := c.now()
	if now.Sub(entry.cachedAt) > c.ttl {
		c.miss()
		return nil, false
	}
	if query.MaxStaleness > 0 && entry.result.Age(now) > query.MaxStaleness {
		c.miss()
		return nil, false
	}

	c.statsMu.Lock()
	c.stats.Hits++
	c.statsMu.Unlock()
	return entry.result, true
}

// Set stores a result, replacing any prior entry for the feed atomically.
func (c *MemoryConsensusCache) Set(_ context.Context, result *models.ConsensusResult) {
	entry := &memoryEntry{result: result, cachedAt: c.now()}

	c.mu.Lock()
	c.entries[result.FeedID] = entry
	c.mu.Unlock()

	c.statsMu.Lock()
	c.stats.Sets++
	c.statsMu.Unlock()
}

// Stats returns a snapshot of the cache counters.
func (c *MemoryConsensusCache) Stats() CacheStats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

func (c *MemoryConsensusCache) miss() {
	c.statsMu.Lock()
	c.stats.Misses++
	c.statsMu.Unlock()
}
