package search

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarry-search/quarry/internal/config"
)

// mapProvider serves pre-built executors by index name.
func mapProvider(execs map[string]*Executor) ExecutorProvider {
	return func(_ context.Context, indexID string) (*Executor, error) {
		exec, ok := execs[indexID]
		if !ok {
			return nil, fmt.Errorf("unknown index %q", indexID)
		}
		return exec, nil
	}
}

func TestSearchAcrossMergesShards(t *testing.T) {
	execs := map[string]*Executor{
		"shard-a": newTestExecutor(t,
			testChunk("a1", "doc-a", "refund policy for domestic orders", 0)),
		"shard-b": newTestExecutor(t,
			testChunk("b1", "doc-b", "shipping rates table", 1)),
	}

	f := NewFanout(mapProvider(execs), 0, 0, nil)
	results, err := f.SearchAcross(context.Background(), FanoutParams{
		Query:          "refund policy",
		Vector:         unitVec(0),
		IndexIDs:       []string{"shard-a", "shard-b"},
		K:              10,
		SemanticWeight: 0.7,
		KeywordWeight:  0.3,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	// The phrase match must outrank regardless of fused score.
	assert.Equal(t, "a1", results[0].Chunk.ID)
}

func TestSearchAcrossDedupByTextPrefix(t *testing.T) {
	sameText := "identical chunk text stored in two different indexes for the same document content"
	execs := map[string]*Executor{
		"shard-a": newTestExecutor(t, testChunk("a1", "doc-a", sameText, 0)),
		"shard-b": newTestExecutor(t, testChunk("b1", "doc-b", sameText, 0)),
	}

	f := NewFanout(mapProvider(execs), 0, 0, nil)
	results, err := f.SearchAcross(context.Background(), FanoutParams{
		Query:    "identical chunk",
		Vector:   unitVec(0),
		IndexIDs: []string{"shard-a", "shard-b"},
		K:        10,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a1", results[0].Chunk.ID, "first occurrence wins")
}

func TestSearchAcrossAbsorbsShardErrors(t *testing.T) {
	execs := map[string]*Executor{
		"good": newTestExecutor(t, testChunk("g1", "doc", "refund policy", 0)),
	}

	f := NewFanout(mapProvider(execs), 0, 0, nil)
	results, err := f.SearchAcross(context.Background(), FanoutParams{
		Query:    "refund policy",
		Vector:   unitVec(0),
		IndexIDs: []string{"broken", "good"},
		K:        5,
	})
	require.NoError(t, err, "one healthy shard is a success")
	require.Len(t, results, 1)
	assert.Equal(t, "g1", results[0].Chunk.ID)
}

func TestSearchAcrossTotalFailureReturnsEmpty(t *testing.T) {
	f := NewFanout(mapProvider(nil), 0, 0, nil)
	results, err := f.SearchAcross(context.Background(), FanoutParams{
		Query:    "q",
		Vector:   unitVec(0),
		IndexIDs: []string{"x", "y"},
		K:        5,
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchAcrossEmptyInputs(t *testing.T) {
	f := NewFanout(mapProvider(nil), 0, 0, nil)

	results, err := f.SearchAcross(context.Background(), FanoutParams{K: 5})
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = f.SearchAcross(context.Background(), FanoutParams{IndexIDs: []string{"a"}})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchAcrossTruncatesToK(t *testing.T) {
	shard := openSearchShard(t,
		testChunk("c1", "doc", "first chunk about contracts", 0),
		testChunk("c2", "doc", "second chunk about invoices", 1),
		testChunk("c3", "doc", "third chunk about receipts", 2),
	)
	execs := map[string]*Executor{
		"only": NewExecutor(shard, config.NewConfig(), nil),
	}

	f := NewFanout(mapProvider(execs), 0, 0, nil)
	results, err := f.SearchAcross(context.Background(), FanoutParams{
		Query:    "chunk",
		Vector:   unitVec(0),
		IndexIDs: []string{"only"},
		K:        2,
	})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestDedupKeyUsesPrefix(t *testing.T) {
	long := make([]byte, 150)
	for i := range long {
		long[i] = 'a'
	}
	a := string(long)
	b := a[:120] + "different tail"

	assert.Equal(t, dedupKey(a), dedupKey(b), "only the first 100 chars count")
	assert.NotEqual(t, dedupKey("abc"), dedupKey("abd"))
}
