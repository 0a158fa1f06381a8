package cite

import (
	"context"
	"log/slog"

	"github.com/quarry-search/quarry/internal/search"
)

// Builder assembles citations from retrieval results.
type Builder struct {
	snippeter *Snippeter
	logger    *slog.Logger
}

// NewBuilder creates a citation builder.
func NewBuilder(snippeter *Snippeter, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{snippeter: snippeter, logger: logger}
}

// BuildContext is the per-request information citation extraction
// validates against.
type BuildContext struct {
	Source SourceContext

	// PageCounts maps document name to page count (0 = unknown).
	PageCounts map[string]int

	// ChunkCounts maps document_id to total chunks, for the
	// proportional page heuristic.
	ChunkCounts map[string]int
}

// Build converts results to citations in order. IDs are provisional
// (1-based input order); ranking reassigns them.
func (b *Builder) Build(ctx context.Context, results []search.ScoredChunk, query string, queryVec []float32, bctx BuildContext) []Citation {
	citations := make([]Citation, 0, len(results))
	for i, r := range results {
		c := r.Chunk

		source, sourceConf := ExtractSource(c, bctx.Source)

		pageResult := ExtractPage(c, PageContext{
			PageCount:   bctx.PageCounts[source],
			TotalChunks: bctx.ChunkCounts[c.DocumentID],
		})
		if pageResult.Method == MethodFallback && bctx.PageCounts[source] > 1 {
			b.logger.Warn("page_fallback_on_multipage_document",
				"source", source, "chunk", c.ID)
		}

		snippet := c.Text
		if b.snippeter != nil {
			snippet = b.snippeter.Snippet(ctx, c, query, queryVec)
		}

		chunkIndex := c.ChunkIndex
		citation := Citation{
			ID:                   i + 1,
			Source:               source,
			DocumentID:           c.DocumentID,
			Page:                 pageResult.Page,
			Snippet:              snippet,
			FullText:             c.Text,
			SourceConfidence:     sourceConf,
			PageConfidence:       pageResult.Confidence,
			PageExtractionMethod: pageResult.Method,
			ContentType:          contentTypeOf(c),
			ImageRef:             c.ImageRef,
			ChunkIndex:           &chunkIndex,
		}

		score := r.Score
		citation.SimilarityScore = &score
		if r.RerankScore != nil {
			rs := *r.RerankScore
			citation.RerankScore = &rs
		}

		citations = append(citations, citation)
	}
	return citations
}
