package retrieval

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/hrygo/recall/cache"
)

// ResultCache is the process-wide cache of completed searches, keyed by
// user and normalized query text. Entries belong to the cache: callers get
// read access to stored results but never take ownership.
type ResultCache struct {
	lru       *cache.LRU[string, *cacheEntry]
	totalHits atomic.Int64
}

type cacheEntry struct {
	result    *Result
	createdAt time.Time
	hits      atomic.Int64
}

// CacheStats reports cache occupancy and hit accounting.
type CacheStats struct {
	Entries   int
	TotalHits int64
}

// NewResultCache creates a result cache with the given capacity and TTL.
func NewResultCache(capacity int, ttl time.Duration) *ResultCache {
	return &ResultCache{
		lru: cache.NewLRU[string, *cacheEntry](capacity, ttl),
	}
}

// cacheKey combines user and normalized query. Results are never shared
// across users: vector search is scoped per user, so identical text from
// two users means two different result sets.
func cacheKey(userID, queryText string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(queryText)), " ")
	return userID + "\n" + normalized
}

// Get returns the cached result for (queryText, userID) within TTL,
// incrementing hit counters.
func (c *ResultCache) Get(queryText, userID string) (*Result, bool) {
	entry, ok := c.lru.Get(cacheKey(userID, queryText))
	if !ok {
		return nil, false
	}
	entry.hits.Add(1)
	c.totalHits.Add(1)
	return entry.result, true
}

// Set stores a completed search result.
func (c *ResultCache) Set(queryText, userID string, result *Result) {
	c.lru.Set(cacheKey(userID, queryText), &cacheEntry{
		result:    result,
		createdAt: time.Now(),
	})
}

// Clear drops all entries and resets hit accounting.
func (c *ResultCache) Clear() {
	c.lru.Clear()
	c.totalHits.Store(0)
}

// Stats reports the current entry count and cumulative hits.
func (c *ResultCache) Stats() CacheStats {
	return CacheStats{
		Entries:   c.lru.Len(),
		TotalHits: c.totalHits.Load(),
	}
}
