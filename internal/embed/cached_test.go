package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedEmbedder_QueryHitSkipsProvider(t *testing.T) {
	mock := NewMockEmbedder(8)
	cached, err := NewCachedEmbedder(mock, 10)
	require.NoError(t, err)
	ctx := context.Background()

	v1, err := cached.EmbedQuery(ctx, "vacation policy")
	require.NoError(t, err)
	assert.EqualValues(t, 1, mock.Calls())

	v2, err := cached.EmbedQuery(ctx, "vacation policy")
	require.NoError(t, err)
	assert.EqualValues(t, 1, mock.Calls(), "second call must be served from cache")
	assert.Equal(t, v1, v2)

	hits, misses := cached.Stats()
	assert.EqualValues(t, 1, hits)
	assert.EqualValues(t, 1, misses)
}

func TestCachedEmbedder_BatchPartialHit(t *testing.T) {
	mock := NewMockEmbedder(8)
	cached, err := NewCachedEmbedder(mock, 10)
	require.NoError(t, err)
	ctx := context.Background()

	warm, err := cached.EmbedQuery(ctx, "b")
	require.NoError(t, err)

	vectors, err := cached.EmbedDocuments(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, warm, vectors[1], "cached entry must keep its position")
	// 1 warmup + 2 misses; "b" never re-fetched.
	assert.EqualValues(t, 3, mock.Calls())
}

func TestCachedEmbedder_ZeroCapacityPassesThrough(t *testing.T) {
	mock := NewMockEmbedder(8)
	cached, err := NewCachedEmbedder(mock, 0)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = cached.EmbedQuery(ctx, "x")
	require.NoError(t, err)
	_, err = cached.EmbedQuery(ctx, "x")
	require.NoError(t, err)
	assert.EqualValues(t, 2, mock.Calls())
}

func TestCachedEmbedder_PurgeResets(t *testing.T) {
	mock := NewMockEmbedder(8)
	cached, err := NewCachedEmbedder(mock, 10)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = cached.EmbedQuery(ctx, "x")
	require.NoError(t, err)
	cached.Purge()
	_, err = cached.EmbedQuery(ctx, "x")
	require.NoError(t, err)
	assert.EqualValues(t, 2, mock.Calls())
}

func TestMockEmbedder_Deterministic(t *testing.T) {
	mock := NewMockEmbedder(16)
	ctx := context.Background()

	a1, err := mock.EmbedQuery(ctx, "same text")
	require.NoError(t, err)
	a2, err := mock.EmbedQuery(ctx, "same text")
	require.NoError(t, err)
	b, err := mock.EmbedQuery(ctx, "different text")
	require.NoError(t, err)

	assert.Equal(t, a1, a2)
	assert.NotEqual(t, a1, b)
	assert.Len(t, a1, 16)

	// Unit length after normalization.
	assert.InDelta(t, 1.0, CosineSimilarity(a1, a1), 1e-6)
}

func TestMockEmbedder_FixedVectors(t *testing.T) {
	mock := NewMockEmbedder(3)
	mock.Fixed = map[string][]float32{
		"query": {1, 0, 0},
		"near":  {0.9, 0.1, 0},
		"far":   {0, 1, 0},
	}
	ctx := context.Background()

	q, _ := mock.EmbedQuery(ctx, "query")
	near, _ := mock.EmbedQuery(ctx, "near")
	far, _ := mock.EmbedQuery(ctx, "far")

	assert.Greater(t, CosineSimilarity(q, near), CosineSimilarity(q, far))
}
