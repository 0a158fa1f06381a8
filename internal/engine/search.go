package engine

import (
	"context"
	"strings"

	"github.com/quarry-search/quarry/internal/answer"
	"github.com/quarry-search/quarry/internal/cite"
	qerrors "github.com/quarry-search/quarry/internal/errors"
	"github.com/quarry-search/quarry/internal/search"
)

// Search runs retrieval only: fused search across the selected indexes
// with ranked citations, skipping answer generation entirely.
func (e *Engine) Search(ctx context.Context, query string, opts QueryOptions) ([]cite.Citation, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, qerrors.New(qerrors.ErrCodeQueryEmpty, "empty query", nil)
	}

	k := opts.K
	if k <= 0 {
		k = e.cfg.Search.DefaultK
	}
	if k > e.cfg.Search.MaxK {
		k = e.cfg.Search.MaxK
	}

	indexes := e.router.Resolve(opts.ActiveSources)
	if len(indexes) == 0 {
		return []cite.Citation{}, nil
	}

	vector, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, qerrors.Wrap(qerrors.ErrCodeEmbeddingFailed, err)
	}

	semantic, keyword := e.effectiveWeights(opts)
	chunks := e.cachedSearch(ctx, search.FanoutParams{
		Query:          query,
		Vector:         vector,
		IndexIDs:       indexes,
		K:              k,
		SemanticWeight: semantic,
		KeywordWeight:  keyword,
		AlternateQuery: alternateQuery(query, opts),
		MinScore:       e.effectiveMinScore(opts),
	}, e.cache.GetHybrid, e.cache.StoreHybrid)

	citations := e.buildCitations(ctx, chunks, query, vector, opts.ActiveSources)
	citations = answer.Dedup(citations)
	return e.ranker.Rank(citations, query), nil
}
