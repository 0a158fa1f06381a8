package search

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarry-search/quarry/internal/store"
)

func cachedResult(id string) []ScoredChunk {
	return []ScoredChunk{{Chunk: &store.Chunk{ID: id, Text: id}, Score: 0.5}}
}

func TestCacheKeyDiscriminates(t *testing.T) {
	base := CacheKey("idx", "q", 5, 0.7, Filter{}, 0, "")
	assert.Equal(t, base, CacheKey("idx", "q", 5, 0.7, Filter{}, 0, ""))

	assert.NotEqual(t, base, CacheKey("other", "q", 5, 0.7, Filter{}, 0, ""))
	assert.NotEqual(t, base, CacheKey("idx", "q2", 5, 0.7, Filter{}, 0, ""))
	assert.NotEqual(t, base, CacheKey("idx", "q", 6, 0.7, Filter{}, 0, ""))
	assert.NotEqual(t, base, CacheKey("idx", "q", 5, 0.5, Filter{}, 0, ""))
	assert.NotEqual(t, base, CacheKey("idx", "q", 5, 0.7, Filter{ContentType: "image_ocr"}, 0, ""))
	assert.NotEqual(t, base, CacheKey("idx", "q", 5, 0.7, Filter{}, 0.2, ""))
	assert.NotEqual(t, base, CacheKey("idx", "q", 5, 0.7, Filter{}, 0, "frage"))
}

func TestCacheKeyFilterOrderInsensitive(t *testing.T) {
	a := CacheKey("idx", "q", 5, 0.7, Filter{DocumentIDs: []string{"d1", "d2"}}, 0, "")
	b := CacheKey("idx", "q", 5, 0.7, Filter{DocumentIDs: []string{"d2", "d1"}}, 0, "")
	assert.Equal(t, a, b)
}

func TestCacheStoreAndGet(t *testing.T) {
	m, err := NewCacheManager(time.Minute, 10)
	require.NoError(t, err)

	key := CacheKey("idx", "q", 5, 0.7, Filter{}, 0, "")
	_, ok := m.GetHybrid(key)
	assert.False(t, ok)

	m.StoreHybrid(key, "idx", cachedResult("a"))
	got, ok := m.GetHybrid(key)
	require.True(t, ok)
	assert.Equal(t, "a", got[0].Chunk.ID)

	// Hybrid and image caches are independent.
	_, ok = m.GetImages(key)
	assert.False(t, ok)
}

func TestCacheTTLExpiry(t *testing.T) {
	m, err := NewCacheManager(30*time.Millisecond, 10)
	require.NoError(t, err)

	key := CacheKey("idx", "q", 5, 0.7, Filter{}, 0, "")
	m.StoreHybrid(key, "idx", cachedResult("a"))

	_, ok := m.GetHybrid(key)
	require.True(t, ok)

	time.Sleep(50 * time.Millisecond)
	_, ok = m.GetHybrid(key)
	assert.False(t, ok, "entry must expire after TTL")
}

func TestCacheZeroTTLDisables(t *testing.T) {
	m, err := NewCacheManager(0, 10)
	require.NoError(t, err)

	key := CacheKey("idx", "q", 5, 0.7, Filter{}, 0, "")
	m.StoreHybrid(key, "idx", cachedResult("a"))
	_, ok := m.GetHybrid(key)
	assert.False(t, ok)
	assert.Zero(t, m.Len())
}

func TestCacheEvictsOldestHalfOnOverflow(t *testing.T) {
	m, err := NewCacheManager(time.Minute, 10)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		key := CacheKey("idx", fmt.Sprintf("q%d", i), 5, 0.7, Filter{}, 0, "")
		m.StoreHybrid(key, "idx", cachedResult(fmt.Sprintf("c%d", i)))
	}
	require.Equal(t, 10, m.Len())

	// The 11th insert trims the oldest half first.
	m.StoreHybrid(CacheKey("idx", "q10", 5, 0.7, Filter{}, 0, ""), "idx", cachedResult("c10"))
	assert.Equal(t, 6, m.Len())

	_, ok := m.GetHybrid(CacheKey("idx", "q0", 5, 0.7, Filter{}, 0, ""))
	assert.False(t, ok, "oldest entry evicted")
	_, ok = m.GetHybrid(CacheKey("idx", "q9", 5, 0.7, Filter{}, 0, ""))
	assert.True(t, ok, "newest surviving entry kept")
}

func TestCacheInvalidateByIndex(t *testing.T) {
	m, err := NewCacheManager(time.Minute, 10)
	require.NoError(t, err)

	keyA := CacheKey("idx-a", "q", 5, 0.7, Filter{}, 0, "")
	keyB := CacheKey("idx-b", "q", 5, 0.7, Filter{}, 0, "")
	m.StoreHybrid(keyA, "idx-a", cachedResult("a"))
	m.StoreHybrid(keyB, "idx-b", cachedResult("b"))
	m.StoreImages(keyA, "idx-a", cachedResult("img"))

	m.Invalidate("idx-a")

	_, ok := m.GetHybrid(keyA)
	assert.False(t, ok)
	_, ok = m.GetImages(keyA)
	assert.False(t, ok)
	_, ok = m.GetHybrid(keyB)
	assert.True(t, ok)
}

func TestCacheInvalidateAll(t *testing.T) {
	m, err := NewCacheManager(time.Minute, 10)
	require.NoError(t, err)

	m.StoreHybrid(CacheKey("a", "q", 5, 0.7, Filter{}, 0, ""), "a", cachedResult("a"))
	m.StoreImages(CacheKey("b", "q", 5, 0.7, Filter{}, 0, ""), "b", cachedResult("b"))

	m.Invalidate("")
	assert.Zero(t, m.Len())
}
