package search

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache defaults.
const (
	DefaultCacheTTL      = 300 * time.Second
	DefaultCacheCapacity = 100
)

// cacheEntry pairs cached results with their expiry. Expiry uses the
// monotonic clock embedded in time.Time, so wall-clock jumps do not
// extend or shorten entry lifetimes.
type cacheEntry struct {
	indexID string
	results []ScoredChunk
	expires time.Time
}

// queryCache is one LRU+TTL cache. The embedded lru.Cache is
// thread-safe; no lock is ever held across a search call — callers
// look up, search on miss, then store.
type queryCache struct {
	lru      *lru.Cache[string, *cacheEntry]
	ttl      time.Duration
	capacity int
}

func newQueryCache(ttl time.Duration, capacity int) (*queryCache, error) {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	// Capacity is enforced by evictOldestHalf before the LRU's own
	// eviction would trigger.
	c, err := lru.New[string, *cacheEntry](capacity + 1)
	if err != nil {
		return nil, err
	}
	return &queryCache{lru: c, ttl: ttl, capacity: capacity}, nil
}

func (c *queryCache) get(key string) ([]ScoredChunk, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	entry, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expires) {
		c.lru.Remove(key)
		return nil, false
	}
	return entry.results, true
}

func (c *queryCache) store(key, indexID string, results []ScoredChunk) {
	if c.ttl <= 0 {
		return
	}
	if c.lru.Len() >= c.capacity {
		c.evictOldestHalf()
	}
	c.lru.Add(key, &cacheEntry{
		indexID: indexID,
		results: results,
		expires: time.Now().Add(c.ttl),
	})
}

// evictOldestHalf drops the older half of the cache by recency order.
// Bulk eviction amortizes better than one-at-a-time under bursts of
// distinct queries.
func (c *queryCache) evictOldestHalf() {
	drop := c.capacity / 2
	if drop < 1 {
		drop = 1
	}
	for i := 0; i < drop; i++ {
		if _, _, ok := c.lru.RemoveOldest(); !ok {
			return
		}
	}
}

// invalidate removes entries touching indexID. Fan-out entries record
// a comma-joined index list; any segment match drops the entry.
func (c *queryCache) invalidate(indexID string) {
	if indexID == "" {
		c.lru.Purge()
		return
	}
	for _, key := range c.lru.Keys() {
		entry, ok := c.lru.Peek(key)
		if !ok {
			continue
		}
		for _, id := range strings.Split(entry.indexID, ",") {
			if id == indexID {
				c.lru.Remove(key)
				break
			}
		}
	}
}

// CacheManager owns the hybrid and image query caches. A TTL of zero
// disables caching entirely.
type CacheManager struct {
	hybrid *queryCache
	images *queryCache
}

// NewCacheManager creates both caches with shared TTL and capacity.
func NewCacheManager(ttl time.Duration, capacity int) (*CacheManager, error) {
	hybrid, err := newQueryCache(ttl, capacity)
	if err != nil {
		return nil, err
	}
	images, err := newQueryCache(ttl, capacity)
	if err != nil {
		return nil, err
	}
	return &CacheManager{hybrid: hybrid, images: images}, nil
}

// CacheKey derives the lookup key from everything that affects the
// result set.
func CacheKey(indexID, queryText string, k int, semanticWeight float64, filter Filter, minScore float64, alternate string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%d\x00%.6f\x00%s\x00%.6f\x00%s",
		indexID, queryText, k, semanticWeight, filterHash(filter), minScore, alternate)
	return hex.EncodeToString(h.Sum(nil))
}

func filterHash(f Filter) string {
	if f.IsZero() {
		return ""
	}
	ids := append([]string(nil), f.DocumentIDs...)
	sort.Strings(ids)
	return f.ContentType + "|" + strings.Join(ids, ",")
}

// GetHybrid looks up a hybrid search result.
func (m *CacheManager) GetHybrid(key string) ([]ScoredChunk, bool) {
	return m.hybrid.get(key)
}

// StoreHybrid caches a successful hybrid search result.
func (m *CacheManager) StoreHybrid(key, indexID string, results []ScoredChunk) {
	m.hybrid.store(key, indexID, results)
}

// GetImages looks up an image search result.
func (m *CacheManager) GetImages(key string) ([]ScoredChunk, bool) {
	return m.images.get(key)
}

// StoreImages caches a successful image search result.
func (m *CacheManager) StoreImages(key, indexID string, results []ScoredChunk) {
	m.images.store(key, indexID, results)
}

// Invalidate clears entries for one index, or everything when indexID
// is empty.
func (m *CacheManager) Invalidate(indexID string) {
	m.hybrid.invalidate(indexID)
	m.images.invalidate(indexID)
}

// Len reports total live entries across both caches.
func (m *CacheManager) Len() int {
	return m.hybrid.lru.Len() + m.images.lru.Len()
}
