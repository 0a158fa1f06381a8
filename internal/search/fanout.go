package search

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"
)

// Fan-out bounds.
const (
	// DefaultMaxFanout caps concurrent per-index searches.
	DefaultMaxFanout = 10

	// DefaultShardKFloor is the minimum k asked of each index, so a
	// small global k still surfaces candidates from every index.
	DefaultShardKFloor = 10

	// dedupPrefixLen is how much chunk text feeds the dedup hash.
	// Chunks re-ingested into different indexes keep identical
	// openings even when trailing whitespace differs.
	dedupPrefixLen = 100
)

// ExecutorProvider opens (or returns a pooled) executor for an index.
type ExecutorProvider func(ctx context.Context, indexID string) (*Executor, error)

// Fanout runs one query across many indexes with a bounded worker
// pool and merges the results.
type Fanout struct {
	open        ExecutorProvider
	maxWorkers  int
	shardKFloor int
	logger      *slog.Logger
}

// NewFanout creates a fan-out searcher. Zero bounds use the defaults.
func NewFanout(open ExecutorProvider, maxWorkers, shardKFloor int, logger *slog.Logger) *Fanout {
	if maxWorkers <= 0 {
		maxWorkers = DefaultMaxFanout
	}
	if shardKFloor <= 0 {
		shardKFloor = DefaultShardKFloor
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{open: open, maxWorkers: maxWorkers, shardKFloor: shardKFloor, logger: logger}
}

// SearchAcross queries every index and merges: dedup by text prefix,
// stable sort by phrase-match score then fused score, top-k. Shard
// errors are absorbed; the merge succeeds if at least one shard
// responds, and total failure yields an empty list, not an error.
func (f *Fanout) SearchAcross(ctx context.Context, p FanoutParams) ([]ScoredChunk, error) {
	if len(p.IndexIDs) == 0 || p.K <= 0 {
		return []ScoredChunk{}, nil
	}

	perShardK := p.K
	if perShardK < f.shardKFloor {
		perShardK = f.shardKFloor
	}

	workers := len(p.IndexIDs)
	if workers > f.maxWorkers {
		workers = f.maxWorkers
	}

	// Slot per index keeps the merge deterministic regardless of
	// goroutine completion order.
	shardResults := make([][]ScoredChunk, len(p.IndexIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, indexID := range p.IndexIDs {
		g.Go(func() error {
			exec, err := f.open(gctx, indexID)
			if err != nil {
				f.logger.Warn("fanout_shard_open_failed", "index", indexID, "error", err)
				return nil
			}
			results, err := exec.HybridSearch(gctx, HybridParams{
				QueryText:      p.Query,
				QueryVector:    p.Vector,
				K:              perShardK,
				SemanticWeight: p.SemanticWeight,
				KeywordWeight:  p.KeywordWeight,
				Filter:         p.Filter,
				AlternateQuery: p.AlternateQuery,
				MinScore:       p.MinScore,
			})
			if err != nil {
				f.logger.Warn("fanout_shard_search_failed", "index", indexID, "error", err)
				return nil
			}
			shardResults[i] = results
			return nil
		})
	}
	g.Wait() //nolint:errcheck // workers never return errors

	merged := make([]ScoredChunk, 0, p.K)
	var phraseScores []float64
	seen := make(map[uint64]bool)
	for _, results := range shardResults {
		for _, r := range results {
			key := dedupKey(r.Chunk.Text)
			if seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, r)
			phraseScores = append(phraseScores, PhraseMatchScore(p.Query, r.Chunk.Text))
		}
	}

	order := make([]int, len(merged))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if phraseScores[a] != phraseScores[b] {
			return phraseScores[a] > phraseScores[b]
		}
		return merged[a].Score > merged[b].Score
	})
	sorted := make([]ScoredChunk, len(merged))
	for i, idx := range order {
		sorted[i] = merged[idx]
	}
	merged = sorted

	if len(merged) > p.K {
		merged = merged[:p.K]
	}
	return merged, nil
}

func dedupKey(text string) uint64 {
	if len(text) > dedupPrefixLen {
		text = text[:dedupPrefixLen]
	}
	h := fnv.New64a()
	h.Write([]byte(text))
	return h.Sum64()
}
