package engine

import (
	"context"
	"sort"

	"github.com/quarry-search/quarry/internal/embed"
	"github.com/quarry-search/quarry/internal/llm"
)

// IndexStat summarizes one physical index for status reporting.
type IndexStat struct {
	IndexID    string `json:"index_id"`
	Chunks     int    `json:"chunks"`
	Dimensions int    `json:"dimensions"`
}

// IndexStats opens every known index and reports its chunk count and
// vector dimensions. Unopenable indexes are logged and skipped.
func (e *Engine) IndexStats(ctx context.Context) []IndexStat {
	snap := e.watcher.Snapshot()
	seen := make(map[string]bool)
	var names []string
	for _, m := range []map[string]string{snap.Text, snap.Images} {
		for _, index := range m {
			if !seen[index] {
				seen[index] = true
				names = append(names, index)
			}
		}
	}
	sort.Strings(names)

	out := make([]IndexStat, 0, len(names))
	for _, name := range names {
		exec, err := e.openExecutor(ctx, name)
		if err != nil {
			e.logger.Warn("index_stats_open_failed", "index", name, "error", err)
			continue
		}
		count, err := exec.Shard().Count(ctx)
		if err != nil {
			e.logger.Warn("index_stats_count_failed", "index", name, "error", err)
		}
		out = append(out, IndexStat{
			IndexID:    name,
			Chunks:     count,
			Dimensions: exec.Shard().Dimensions(ctx),
		})
	}
	return out
}

// CacheLen reports live query cache entries.
func (e *Engine) CacheLen() int { return e.cache.Len() }

// Embedder exposes the embedding provider for health checks.
func (e *Engine) Embedder() embed.Embedder { return e.embedder }

// LLM exposes the chat client for health checks.
func (e *Engine) LLM() llm.Client { return e.client }
