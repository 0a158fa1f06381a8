package search

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/quarry-search/quarry/internal/config"
	"github.com/quarry-search/quarry/internal/store"
)

// DefaultFetchMultiplier widens both legs before fusion so the fused
// top-k is drawn from a broad candidate pool.
const DefaultFetchMultiplier = 4

// Executor runs hybrid searches against one shard.
type Executor struct {
	shard  *store.Shard
	boosts config.BoostSchedule

	rrfConstant     int
	fetchMultiplier int

	logger *slog.Logger
}

// NewExecutor creates an executor over the shard using the search and
// ranking sections of the config.
func NewExecutor(shard *store.Shard, cfg *config.Config, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	rrfK := cfg.Search.RRFConstant
	if rrfK <= 0 {
		rrfK = DefaultRRFConstant
	}
	multiplier := cfg.Search.FetchMultiplier
	if multiplier <= 0 {
		multiplier = DefaultFetchMultiplier
	}
	return &Executor{
		shard:           shard,
		boosts:          cfg.Ranking.Boosts,
		rrfConstant:     rrfK,
		fetchMultiplier: multiplier,
		logger:          logger,
	}
}

// Shard exposes the underlying shard for dimension checks.
func (e *Executor) Shard() *store.Shard { return e.shard }

// buildClauses expands the query into the boosted lexical clause set.
// The alternate query, when present, targets the original-language
// field only.
func (e *Executor) buildClauses(query, alternate string) []store.Clause {
	b := e.boosts
	clauses := []store.Clause{
		{Kind: store.ClausePhrase, Text: query, Slop: 1, Boost: boostOr(b.PhraseSlop1, 10)},
		{Kind: store.ClausePhrase, Text: query, Slop: 3, Boost: boostOr(b.PhraseSlop3, 5)},
		{Kind: store.ClauseMulti, Text: query, Fuzziness: 1, Boost: boostOr(b.FuzzyMulti, 1.5)},
	}
	if alternate != "" && alternate != query {
		clauses = append(clauses,
			store.Clause{
				Kind:   store.ClausePhrase,
				Text:   alternate,
				Fields: []string{store.FieldText},
				Slop:   2,
				Boost:  boostOr(b.AltPhraseSlop2, 4),
			},
			store.Clause{
				Kind:   store.ClauseMulti,
				Text:   alternate,
				Fields: []string{store.FieldText},
				Boost:  boostOr(b.AltFuzzyMulti, 2),
			})
	}
	return clauses
}

func boostOr(v, fallback float64) float64 {
	if v > 0 {
		return v
	}
	return fallback
}

// HybridSearch runs the vector and lexical legs in parallel, fuses
// them with RRF, and returns the filtered top-k. A failed lexical leg
// degrades to semantic-only rather than failing the query.
func (e *Executor) HybridSearch(ctx context.Context, p HybridParams) ([]ScoredChunk, error) {
	if p.K <= 0 {
		return []ScoredChunk{}, nil
	}
	semantic, keyword := normalizeWeights(p.SemanticWeight, p.KeywordWeight)
	fetchK := p.K * e.fetchMultiplier
	clauses := e.buildClauses(p.QueryText, p.AlternateQuery)

	var vectorHits []*store.VectorResult
	var lexicalHits []*store.LexicalResult

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := e.shard.VectorSearch(gctx, p.QueryVector, fetchK)
		if err != nil {
			return err
		}
		vectorHits = hits
		return nil
	})
	g.Go(func() error {
		hits, err := e.shard.LexicalSearch(gctx, clauses, fetchK)
		if err != nil {
			return err
		}
		lexicalHits = hits
		return nil
	})

	if err := g.Wait(); err != nil {
		// One leg poisoned the group context; rerun each sequentially
		// so a healthy leg still contributes.
		e.logger.Warn("hybrid_parallel_failed", "index", e.shard.Name(), "error", err)

		var vErr, lErr error
		vectorHits, vErr = e.shard.VectorSearch(ctx, p.QueryVector, fetchK)
		lexicalHits, lErr = e.shard.LexicalSearch(ctx, clauses, fetchK)
		if vErr != nil && lErr != nil {
			return nil, vErr
		}
		if vErr != nil {
			vectorHits = nil
		}
		if lErr != nil {
			e.logger.Warn("lexical_leg_failed", "index", e.shard.Name(), "error", lErr)
			lexicalHits = nil
		}
	}

	fused := fuseRRF(vectorHits, lexicalHits, semantic, keyword, e.rrfConstant)
	return e.hydrate(ctx, fused, p.K, p.Filter, p.MinScore)
}

// SimilaritySearch is the semantic-only path.
func (e *Executor) SimilaritySearch(ctx context.Context, vector []float32, k int, filter Filter) ([]ScoredChunk, error) {
	if k <= 0 {
		return []ScoredChunk{}, nil
	}
	hits, err := e.shard.VectorSearch(ctx, vector, k*e.fetchMultiplier)
	if err != nil {
		return nil, err
	}

	fused := make([]*fusedHit, len(hits))
	for i, h := range hits {
		raw := float64(h.Score)
		fused[i] = &fusedHit{ID: h.ID, Score: raw, VectorScore: &raw}
	}
	return e.hydrate(ctx, fused, k, filter, 0)
}

// Count returns the number of chunks passing the filter.
func (e *Executor) Count(ctx context.Context, filter Filter) (int, error) {
	if filter.IsZero() {
		return e.shard.Count(ctx)
	}
	chunks, err := e.shard.ChunksByDocument(ctx, filter.DocumentIDs)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, c := range chunks {
		if filter.Matches(c) {
			n++
		}
	}
	return n, nil
}

// hydrate loads chunk rows for fused hits, applies the filter and
// minimum score, and truncates to k.
func (e *Executor) hydrate(ctx context.Context, fused []*fusedHit, k int, filter Filter, minScore float64) ([]ScoredChunk, error) {
	if len(fused) == 0 {
		return []ScoredChunk{}, nil
	}

	ids := make([]string, len(fused))
	byID := make(map[string]*fusedHit, len(fused))
	for i, h := range fused {
		ids[i] = h.ID
		byID[h.ID] = h
	}

	chunks, err := e.shard.GetChunks(ctx, ids)
	if err != nil {
		return nil, err
	}

	results := make([]ScoredChunk, 0, k)
	for _, c := range chunks {
		h := byID[c.ID]
		if h == nil {
			continue
		}
		if minScore > 0 && h.Score < minScore {
			continue
		}
		if !filter.Matches(c) {
			continue
		}
		results = append(results, ScoredChunk{
			Chunk:        c,
			Score:        h.Score,
			VectorScore:  h.VectorScore,
			LexicalScore: h.LexicalScore,
		})
		if len(results) == k {
			break
		}
	}
	return results, nil
}
