package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedEmbedder wraps an Embedder with an LRU cache keyed by a hash
// of (model, text). Repeat queries and re-indexed documents skip the
// provider round trip. The lock is never held across a provider call.
type CachedEmbedder struct {
	inner Embedder

	mu    sync.Mutex
	cache *lru.Cache[string, []float32]

	hits   int64
	misses int64
}

// Verify interface implementation at compile time
var _ Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder wraps inner with a cache of the given capacity.
// Capacity <= 0 disables caching and returns passthrough behavior.
func NewCachedEmbedder(inner Embedder, capacity int) (*CachedEmbedder, error) {
	c := &CachedEmbedder{inner: inner}
	if capacity > 0 {
		cache, err := lru.New[string, []float32](capacity)
		if err != nil {
			return nil, err
		}
		c.cache = cache
	}
	return c, nil
}

// cacheKey hashes model and text so rotated models never collide.
func (c *CachedEmbedder) cacheKey(text string) string {
	h := sha256.New()
	h.Write([]byte(c.inner.ModelName()))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// EmbedQuery embeds a single query string, consulting the cache first.
func (c *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if c.cache == nil {
		return c.inner.EmbedQuery(ctx, text)
	}

	key := c.cacheKey(text)
	c.mu.Lock()
	if vec, ok := c.cache.Get(key); ok {
		c.hits++
		c.mu.Unlock()
		return vec, nil
	}
	c.misses++
	c.mu.Unlock()

	vec, err := c.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache.Add(key, vec)
	c.mu.Unlock()
	return vec, nil
}

// EmbedDocuments embeds a batch, fetching only the cache misses from
// the provider and stitching results back in input order.
func (c *CachedEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if c.cache == nil || len(texts) == 0 {
		return c.inner.EmbedDocuments(ctx, texts)
	}

	result := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int

	c.mu.Lock()
	for i, text := range texts {
		if vec, ok := c.cache.Get(c.cacheKey(text)); ok {
			c.hits++
			result[i] = vec
		} else {
			c.misses++
			missing = append(missing, text)
			missingIdx = append(missingIdx, i)
		}
	}
	c.mu.Unlock()

	if len(missing) == 0 {
		return result, nil
	}

	vectors, err := c.inner.EmbedDocuments(ctx, missing)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	for j, vec := range vectors {
		result[missingIdx[j]] = vec
		c.cache.Add(c.cacheKey(missing[j]), vec)
	}
	c.mu.Unlock()

	return result, nil
}

// Dimensions returns the inner embedder's dimension.
func (c *CachedEmbedder) Dimensions() int { return c.inner.Dimensions() }

// ModelName returns the inner embedder's model identifier.
func (c *CachedEmbedder) ModelName() string { return c.inner.ModelName() }

// Available delegates to the inner embedder.
func (c *CachedEmbedder) Available(ctx context.Context) bool { return c.inner.Available(ctx) }

// Stats returns cache hit/miss counters.
func (c *CachedEmbedder) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Purge clears the cache. Tests reset state with this.
func (c *CachedEmbedder) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cache != nil {
		c.cache.Purge()
	}
}

// Close closes the inner embedder.
func (c *CachedEmbedder) Close() error { return c.inner.Close() }
