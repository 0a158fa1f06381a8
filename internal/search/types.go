// Package search implements hybrid retrieval over one or many physical
// indexes: parallel vector and lexical legs fused with reciprocal rank
// fusion, a TTL query cache, and bounded multi-index fan-out.
package search

import (
	"github.com/quarry-search/quarry/internal/store"
)

// ScoredChunk is one retrieval result. Score is the fused score; the
// per-leg scores are kept for diagnostics and downstream ranking. Nil
// means the leg did not return this chunk.
type ScoredChunk struct {
	Chunk *store.Chunk

	Score float64

	VectorScore  *float64
	LexicalScore *float64
	RerankScore  *float64
}

// Filter restricts results after retrieval. Zero value matches all.
type Filter struct {
	DocumentIDs []string
	ContentType string
}

// Matches reports whether the chunk passes the filter.
func (f Filter) Matches(c *store.Chunk) bool {
	if f.ContentType != "" && string(c.ContentType) != f.ContentType {
		return false
	}
	if len(f.DocumentIDs) > 0 {
		found := false
		for _, id := range f.DocumentIDs {
			if c.DocumentID == id {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// IsZero reports whether the filter matches everything.
func (f Filter) IsZero() bool {
	return f.ContentType == "" && len(f.DocumentIDs) == 0
}

// HybridParams parameterizes one hybrid search against one index.
type HybridParams struct {
	QueryText   string
	QueryVector []float32
	K           int

	// SemanticWeight and KeywordWeight are normalized to sum 1.
	SemanticWeight float64
	KeywordWeight  float64

	Filter Filter

	// AlternateQuery is a secondary query variant (typically the
	// original-language text of a translated query) matched against the
	// original-language field with its own boosts.
	AlternateQuery string

	MinScore float64
}

// FanoutParams parameterizes a search across multiple indexes.
type FanoutParams struct {
	Query          string
	Vector         []float32
	IndexIDs       []string
	K              int
	SemanticWeight float64
	KeywordWeight  float64
	Filter         Filter
	AlternateQuery string
	MinScore       float64
}
