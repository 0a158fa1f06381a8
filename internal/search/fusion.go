package search

import (
	"sort"

	"github.com/quarry-search/quarry/internal/store"
)

// DefaultRRFConstant is the k in weight/(k+rank). 60 is the value from
// the original RRF paper and works across corpus sizes.
const DefaultRRFConstant = 60

// fuseRRF combines a vector and a lexical result list with weighted
// reciprocal rank fusion. Ranks are 1-based; a chunk present in both
// lists accumulates both contributions. Raw per-leg scores ride along.
func fuseRRF(vector []*store.VectorResult, lexical []*store.LexicalResult,
	semanticWeight, keywordWeight float64, rrfK int) []*fusedHit {

	if rrfK <= 0 {
		rrfK = DefaultRRFConstant
	}

	hits := make(map[string]*fusedHit, len(vector)+len(lexical))

	for i, v := range vector {
		raw := float64(v.Score)
		hits[v.ID] = &fusedHit{
			ID:          v.ID,
			Score:       semanticWeight / float64(rrfK+i+1),
			VectorScore: &raw,
		}
	}

	for i, l := range lexical {
		contribution := keywordWeight / float64(rrfK+i+1)
		raw := l.Score
		if h, ok := hits[l.ID]; ok {
			h.Score += contribution
			h.LexicalScore = &raw
		} else {
			hits[l.ID] = &fusedHit{
				ID:           l.ID,
				Score:        contribution,
				LexicalScore: &raw,
			}
		}
	}

	out := make([]*fusedHit, 0, len(hits))
	for _, h := range hits {
		out = append(out, h)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// fusedHit is an ID-level result before chunk hydration.
type fusedHit struct {
	ID           string
	Score        float64
	VectorScore  *float64
	LexicalScore *float64
}

// normalizeWeights scales the pair to sum 1. Both zero falls back to
// the conventional 70/30 split.
func normalizeWeights(semantic, keyword float64) (float64, float64) {
	if semantic < 0 {
		semantic = 0
	}
	if keyword < 0 {
		keyword = 0
	}
	total := semantic + keyword
	if total == 0 {
		return 0.7, 0.3
	}
	return semantic / total, keyword / total
}
