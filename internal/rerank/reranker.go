// Package rerank provides cross-encoder re-scoring of retrieval
// candidates. Cross-encoders jointly encode query-passage pairs for
// more accurate relevance than bi-encoders, at higher latency.
package rerank

import (
	"context"

	"github.com/quarry-search/quarry/internal/store"
)

// Reranked is one candidate with its cross-encoder score.
type Reranked struct {
	Chunk *store.Chunk

	// Score is the relevance score in [0, 1].
	Score float64
}

// Reranker re-scores candidates against a query.
type Reranker interface {
	// Rerank scores candidates and returns them sorted by score
	// descending, truncated to topK (topK <= 0 returns all).
	Rerank(ctx context.Context, query string, candidates []*store.Chunk, topK int) ([]Reranked, error)

	// Available checks whether the reranker service is reachable.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// NoOpReranker keeps the input order with decreasing synthetic scores.
// Used when reranking is disabled and in tests.
type NoOpReranker struct{}

// Verify interface implementation at compile time
var _ Reranker = (*NoOpReranker)(nil)

// Rerank returns candidates in input order.
func (n *NoOpReranker) Rerank(_ context.Context, _ string, candidates []*store.Chunk, topK int) ([]Reranked, error) {
	results := make([]Reranked, len(candidates))
	for i, c := range candidates {
		results[i] = Reranked{Chunk: c, Score: 1.0 - float64(i)*0.01}
	}
	if topK > 0 && topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

// Available always reports true.
func (n *NoOpReranker) Available(_ context.Context) bool { return true }

// Close is a no-op.
func (n *NoOpReranker) Close() error { return nil }
