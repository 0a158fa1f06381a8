package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarry-search/quarry/internal/store"
)

func TestNormalizeWeights(t *testing.T) {
	s, k := normalizeWeights(0.7, 0.3)
	assert.InDelta(t, 0.7, s, 1e-9)
	assert.InDelta(t, 0.3, k, 1e-9)

	s, k = normalizeWeights(2, 2)
	assert.InDelta(t, 0.5, s, 1e-9)
	assert.InDelta(t, 0.5, k, 1e-9)

	s, k = normalizeWeights(0, 0)
	assert.InDelta(t, 0.7, s, 1e-9)
	assert.InDelta(t, 0.3, k, 1e-9)

	s, k = normalizeWeights(-1, 1)
	assert.InDelta(t, 0.0, s, 1e-9)
	assert.InDelta(t, 1.0, k, 1e-9)
}

func TestFuseRRFBothLegsAccumulate(t *testing.T) {
	vector := []*store.VectorResult{
		{ID: "a", Score: 0.95},
		{ID: "b", Score: 0.80},
	}
	lexical := []*store.LexicalResult{
		{ID: "b", Score: 12.0},
		{ID: "c", Score: 4.0},
	}

	fused := fuseRRF(vector, lexical, 0.5, 0.5, 60)
	require.Len(t, fused, 3)

	// b appears in both lists: 0.5/62 + 0.5/61 beats a's 0.5/61.
	assert.Equal(t, "b", fused[0].ID)
	assert.InDelta(t, 0.5/62+0.5/61, fused[0].Score, 1e-12)
	require.NotNil(t, fused[0].VectorScore)
	require.NotNil(t, fused[0].LexicalScore)
	assert.InDelta(t, 0.80, *fused[0].VectorScore, 1e-9)
	assert.InDelta(t, 12.0, *fused[0].LexicalScore, 1e-9)

	assert.Equal(t, "a", fused[1].ID)
	assert.Nil(t, fused[1].LexicalScore)
	assert.Equal(t, "c", fused[2].ID)
	assert.Nil(t, fused[2].VectorScore)
}

func TestFuseRRFWeightsBias(t *testing.T) {
	vector := []*store.VectorResult{{ID: "v", Score: 0.9}}
	lexical := []*store.LexicalResult{{ID: "l", Score: 9.0}}

	fused := fuseRRF(vector, lexical, 0.9, 0.1, 60)
	require.Len(t, fused, 2)
	assert.Equal(t, "v", fused[0].ID, "semantic weight dominates")

	fused = fuseRRF(vector, lexical, 0.1, 0.9, 60)
	assert.Equal(t, "l", fused[0].ID, "keyword weight dominates")
}

func TestFuseRRFEmptyLegs(t *testing.T) {
	assert.Empty(t, fuseRRF(nil, nil, 0.7, 0.3, 60))

	fused := fuseRRF(nil, []*store.LexicalResult{{ID: "x", Score: 1}}, 0.7, 0.3, 60)
	require.Len(t, fused, 1)
	assert.Equal(t, "x", fused[0].ID)
}

func TestFuseRRFDeterministicTieBreak(t *testing.T) {
	vector := []*store.VectorResult{{ID: "z", Score: 0.5}}
	lexical := []*store.LexicalResult{{ID: "a", Score: 0.5}}

	// Equal weights, equal ranks: tie broken by ID for stable output.
	fused := fuseRRF(vector, lexical, 0.5, 0.5, 60)
	require.Len(t, fused, 2)
	assert.Equal(t, "a", fused[0].ID)
}
