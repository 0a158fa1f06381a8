package engine

import (
	"context"
	"hash/fnv"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quarry-search/quarry/internal/answer"
	"github.com/quarry-search/quarry/internal/cite"
	qerrors "github.com/quarry-search/quarry/internal/errors"
	"github.com/quarry-search/quarry/internal/plan"
	"github.com/quarry-search/quarry/internal/search"
	"github.com/quarry-search/quarry/internal/store"
)

// Search modes accepted by QueryOptions.SearchMode.
const (
	ModeHybrid   = "hybrid"
	ModeSemantic = "semantic"
	ModeKeyword  = "keyword"
)

// simpleQueryMaxLen routes short single-clause questions to the
// lightweight model.
const simpleQueryMaxLen = 60

// agenticDupBoost multiplies a chunk's score once per extra sub-query
// that retrieved it.
const agenticDupBoost = 1.1

// QueryOptions are per-request overrides; zero values fall back to the
// configured defaults.
type QueryOptions struct {
	K              int
	SearchMode     string
	SemanticWeight *float64
	KeywordWeight  *float64
	MinScore       *float64

	ActiveSources []string

	UseAgentic        *bool
	MaxSubQueries     int
	ChunksPerSubQuery int

	// RerankTopK caps how many candidates survive the cross-encoder
	// cut; zero uses the requested k.
	RerankTopK int

	// QueryLanguage declares the question's language. A non-English
	// question doubles as the alternate lexical query against the
	// original-language text field.
	QueryLanguage string

	// ResponseLanguage forces the answer language regardless of the
	// question's language.
	ResponseLanguage string

	Model       string
	Temperature *float64
	MaxTokens   int
}

// alternateQuery returns the cross-language lexical variant: a question
// declared non-English is matched verbatim against the original-language
// text field alongside the translated-field clauses.
func alternateQuery(question string, opts QueryOptions) string {
	lang := strings.ToLower(opts.QueryLanguage)
	if lang == "" || lang == "en" || strings.HasPrefix(lang, "en-") {
		return ""
	}
	return question
}

// Response is the engine's answer to one question.
type Response struct {
	RequestID string `json:"request_id"`
	Answer    string `json:"answer"`

	// Sources lists the documents that produced surviving citations.
	Sources   []string        `json:"sources"`
	Citations []cite.Citation `json:"citations"`

	NumChunksUsed int           `json:"num_chunks_used"`
	ResponseTime  time.Duration `json:"response_time"`

	ContextTokens  int `json:"context_tokens"`
	ResponseTokens int `json:"response_tokens"`
	TotalTokens    int `json:"total_tokens"`

	// SubQueries is set when agentic decomposition ran.
	SubQueries []string `json:"sub_queries,omitempty"`

	// Occurrences is set for occurrence queries.
	Occurrences *plan.OccurrenceResult `json:"occurrences,omitempty"`
}

// Query answers a question against the selected documents.
func (e *Engine) Query(ctx context.Context, question string, opts QueryOptions) (*Response, error) {
	started := time.Now()
	resp := &Response{RequestID: uuid.NewString()}

	question = strings.TrimSpace(question)
	if question == "" {
		return e.failed(resp, started, "The question is empty."),
			qerrors.New(qerrors.ErrCodeQueryEmpty, "empty query", nil)
	}

	knownDocs := e.knownDocuments()
	p := e.classifier.Classify(question, opts.K, opts.ActiveSources, knownDocs)
	if agentic := opts.UseAgentic; agentic != nil {
		p.Agentic = *agentic
	}

	if p.Type == plan.TypeOccurrence {
		return e.occurrenceResponse(ctx, resp, p, started)
	}

	indexes := e.router.Resolve(p.ActiveSources)
	if len(indexes) == 0 {
		// Empty selection is a valid answer, not an error.
		resp.Answer = "No indexed documents matched the selection."
		resp.Sources = []string{}
		resp.Citations = []cite.Citation{}
		resp.ResponseTime = time.Since(started)
		return resp, nil
	}

	vector, err := e.embedder.EmbedQuery(ctx, question)
	if err != nil {
		e.logger.Error("query_embedding_failed", "error", err)
		return e.failed(resp, started, "The embedding service is unavailable."),
			qerrors.Wrap(qerrors.ErrCodeEmbeddingFailed, err)
	}

	rerankWanted := e.cfg.Reranker.Enabled && !p.DisableRerank
	fetchK := p.K
	if rerankWanted {
		fetchK = p.K * e.cfg.Ranking.RerankExpansion
	}

	semantic, keyword := e.effectiveWeights(opts)

	var chunks []search.ScoredChunk
	if p.Agentic {
		chunks, resp.SubQueries = e.agenticSearch(ctx, p, vector, opts, semantic, keyword)
	} else {
		chunks = e.cachedSearch(ctx, search.FanoutParams{
			Query:          question,
			Vector:         vector,
			IndexIDs:       indexes,
			K:              fetchK,
			SemanticWeight: semantic,
			KeywordWeight:  keyword,
			AlternateQuery: alternateQuery(question, opts),
			MinScore:       e.effectiveMinScore(opts),
		}, e.cache.GetHybrid, e.cache.StoreHybrid)
	}

	if rerankWanted {
		topK := p.K
		if opts.RerankTopK > 0 {
			topK = opts.RerankTopK
		}
		chunks = e.rerankChunks(ctx, question, chunks, topK)
	}
	if len(chunks) > p.K {
		chunks = chunks[:p.K]
	}

	citations := e.buildCitations(ctx, chunks, question, vector, p.ActiveSources)
	citations = answer.Dedup(citations)
	citations = e.ranker.Rank(citations, question)

	if len(citations) == 0 {
		resp.Answer = "No relevant passages were found for this question."
		resp.Sources = []string{}
		resp.Citations = []cite.Citation{}
		resp.ResponseTime = time.Since(started)
		return resp, nil
	}

	packed := e.packer.Pack(citations)

	model := opts.Model
	if model == "" && len(question) <= simpleQueryMaxLen && p.Type == plan.TypeGeneral && !p.Agentic {
		model = e.cfg.LLM.SimpleModel
	}
	text, usage, err := e.generator.Generate(ctx, question, packed.Text, answer.GenerateOptions{
		Model:       model,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Language:    opts.ResponseLanguage,
	})
	if err != nil {
		e.logger.Error("answer_generation_failed", "error", err)
		return e.failed(resp, started, "The language model is unavailable."),
			qerrors.Wrap(qerrors.ErrCodeGenerationFailed, err)
	}

	resp.Answer = text
	resp.Citations = citations
	resp.Sources = citationSources(citations)
	resp.NumChunksUsed = len(citations)
	resp.ContextTokens = usage.PromptTokens
	resp.ResponseTokens = usage.CompletionTokens
	resp.TotalTokens = usage.TotalTokens
	resp.ResponseTime = time.Since(started)
	return resp, nil
}

// FindAllOccurrences enumerates literal matches of a term across the
// selected documents. No LLM is involved.
func (e *Engine) FindAllOccurrences(ctx context.Context, term string, activeSources []string, maxResults int) (*plan.OccurrenceResult, error) {
	if maxResults <= 0 {
		maxResults = e.cfg.Search.OccurrenceMaxResults
	}

	chunks, err := e.collectChunks(ctx, activeSources)
	if err != nil {
		return nil, err
	}
	result := plan.FindOccurrences(term, chunks, maxResults, e.cfg.Search.OccurrenceContext)
	return &result, nil
}

// SearchImages runs an image-only search and returns citations for the
// matching OCR chunks.
func (e *Engine) SearchImages(ctx context.Context, query string, activeSources []string, k int) ([]cite.Citation, error) {
	if k <= 0 {
		k = e.cfg.Search.DefaultK
	}
	indexes := e.router.ResolveImages(activeSources)
	if len(indexes) == 0 {
		return []cite.Citation{}, nil
	}

	vector, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, qerrors.Wrap(qerrors.ErrCodeEmbeddingFailed, err)
	}

	chunks := e.cachedSearch(ctx, search.FanoutParams{
		Query:          query,
		Vector:         vector,
		IndexIDs:       indexes,
		K:              k,
		SemanticWeight: e.cfg.Search.SemanticWeight,
		KeywordWeight:  e.cfg.Search.KeywordWeight,
	}, e.cache.GetImages, e.cache.StoreImages)

	citations := e.buildCitations(ctx, chunks, query, vector, activeSources)
	return answer.Dedup(citations), nil
}

// cachedSearch runs the fan-out behind the query cache. Errors are
// absorbed by the fan-out; only successful result sets are cached.
func (e *Engine) cachedSearch(ctx context.Context, p search.FanoutParams,
	get func(string) ([]search.ScoredChunk, bool),
	put func(string, string, []search.ScoredChunk)) []search.ScoredChunk {

	joined := strings.Join(p.IndexIDs, ",")
	key := search.CacheKey(joined, p.Query, p.K, p.SemanticWeight, p.Filter, p.MinScore, p.AlternateQuery)
	if cached, ok := get(key); ok {
		return cached
	}

	results, err := e.fanout.SearchAcross(ctx, p)
	if err != nil {
		e.logger.Warn("fanout_search_failed", "error", err)
		return []search.ScoredChunk{}
	}
	put(key, joined, results)
	return results
}

// agenticSearch decomposes the question, retrieves each sub-query
// independently, and merges with a duplicate boost.
func (e *Engine) agenticSearch(ctx context.Context, p plan.Plan, vector []float32,
	opts QueryOptions, semantic, keyword float64) ([]search.ScoredChunk, []string) {

	indexes := e.router.Resolve(p.ActiveSources)
	subQueries := e.decomposer.Decompose(ctx, p.Query)
	if max := opts.MaxSubQueries; max > 0 && len(subQueries) > max {
		subQueries = subQueries[:max]
	}

	perQuery := opts.ChunksPerSubQuery
	if perQuery <= 0 {
		perQuery = e.cfg.Search.ChunksPerSubQuery
	}

	type hit struct {
		chunk search.ScoredChunk
		count int
	}
	order := make([]uint64, 0, len(subQueries)*perQuery)
	merged := make(map[uint64]*hit)

	for _, sq := range subQueries {
		vec := vector
		if sq != p.Query {
			v, err := e.embedder.EmbedQuery(ctx, sq)
			if err != nil {
				e.logger.Warn("subquery_embedding_failed", "query", sq, "error", err)
				continue
			}
			vec = v
		}

		// The alternate-language leg only applies to the user's own
		// wording; decomposed sub-queries come from the LLM.
		alternate := ""
		if sq == p.Query {
			alternate = alternateQuery(sq, opts)
		}

		results := e.cachedSearch(ctx, search.FanoutParams{
			Query:          sq,
			Vector:         vec,
			IndexIDs:       indexes,
			K:              perQuery,
			SemanticWeight: semantic,
			KeywordWeight:  keyword,
			AlternateQuery: alternate,
			MinScore:       e.effectiveMinScore(opts),
		}, e.cache.GetHybrid, e.cache.StoreHybrid)

		for _, r := range results {
			key := contentKey(r.Chunk)
			if existing, ok := merged[key]; ok {
				existing.count++
				if r.Score > existing.chunk.Score {
					existing.chunk = r
				}
				continue
			}
			merged[key] = &hit{chunk: r, count: 1}
			order = append(order, key)
		}
	}

	out := make([]search.ScoredChunk, 0, len(order))
	for _, key := range order {
		h := merged[key]
		// A chunk surfacing under several sub-queries is probably
		// central to the question.
		for i := 1; i < h.count; i++ {
			h.chunk.Score *= agenticDupBoost
		}
		out = append(out, h.chunk)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })

	if limit := e.cfg.Search.MaxTotalChunks; limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, subQueries
}

// rerankChunks re-scores candidates with the cross-encoder, keeping the
// fused order on any failure.
func (e *Engine) rerankChunks(ctx context.Context, query string, chunks []search.ScoredChunk, topK int) []search.ScoredChunk {
	if len(chunks) == 0 {
		return chunks
	}
	candidates := make([]*store.Chunk, len(chunks))
	byID := make(map[string]search.ScoredChunk, len(chunks))
	for i, c := range chunks {
		candidates[i] = c.Chunk
		byID[c.Chunk.ID] = c
	}

	reranked, err := e.reranker.Rerank(ctx, query, candidates, topK)
	if err != nil {
		e.logger.Warn("rerank_failed_passthrough", "error", err)
		return chunks
	}

	out := make([]search.ScoredChunk, 0, len(reranked))
	for _, r := range reranked {
		sc, ok := byID[r.Chunk.ID]
		if !ok {
			continue
		}
		score := r.Score
		sc.RerankScore = &score
		out = append(out, sc)
	}
	return out
}

// buildCitations assembles citations with registry-backed validation
// context.
func (e *Engine) buildCitations(ctx context.Context, chunks []search.ScoredChunk,
	query string, vector []float32, activeSources []string) []cite.Citation {

	sctx := cite.SourceContext{
		KnownSources:    make(map[string]bool),
		DocumentSources: make(map[string]string),
	}
	if len(activeSources) > 0 {
		sctx.Fallback = activeSources[0]
	}

	pageCounts := make(map[string]int)
	if docs, err := e.registry.List(ctx); err == nil {
		for _, d := range docs {
			sctx.KnownSources[d.DocumentName] = true
			sctx.DocumentSources[d.DocumentID] = d.DocumentName
			pageCounts[d.DocumentName] = d.Pages
		}
	} else {
		e.logger.Warn("registry_list_failed", "error", err)
	}

	// Chunk totals for the proportional page heuristic come from the
	// highest chunk index seen, a lower bound that avoids a per-query
	// full scan.
	chunkCounts := make(map[string]int)
	for _, c := range chunks {
		if n := c.Chunk.ChunkIndex + 1; n > chunkCounts[c.Chunk.DocumentID] {
			chunkCounts[c.Chunk.DocumentID] = n
		}
	}

	return e.builder.Build(ctx, chunks, query, vector, cite.BuildContext{
		Source:      sctx,
		PageCounts:  pageCounts,
		ChunkCounts: chunkCounts,
	})
}

// occurrenceResponse handles occurrence queries: exhaustive term
// enumeration with synthesized answer, skipping the LLM entirely.
func (e *Engine) occurrenceResponse(ctx context.Context, resp *Response, p plan.Plan, started time.Time) (*Response, error) {
	result, err := e.FindAllOccurrences(ctx, p.Term, p.ActiveSources, e.cfg.Search.OccurrenceMaxResults)
	if err != nil {
		e.logger.Error("occurrence_search_failed", "term", p.Term, "error", err)
		return e.failed(resp, started, "The occurrence search failed."), err
	}

	citations := make([]cite.Citation, 0, len(result.Occurrences))
	sources := make(map[string]bool)
	for i, occ := range result.Occurrences {
		sources[occ.Source] = true
		citations = append(citations, cite.Citation{
			ID:               i + 1,
			Source:           occ.Source,
			DocumentID:       occ.DocumentID,
			Page:             occ.Page,
			Snippet:          occ.Context,
			SourceConfidence: cite.SourceConfValidated,
			PageConfidence:   cite.SourceConfValidated,
			ContentType:      cite.ContentText,
		})
	}

	resp.Answer = result.Answer
	resp.Occurrences = result
	resp.Citations = citations
	resp.Sources = citationSources(citations)
	resp.NumChunksUsed = len(citations)
	resp.ResponseTime = time.Since(started)
	return resp, nil
}

// collectChunks loads every chunk of the selected documents from the
// text and image indexes.
func (e *Engine) collectChunks(ctx context.Context, activeSources []string) ([]*store.Chunk, error) {
	docs, err := e.registry.List(ctx)
	if err != nil {
		return nil, qerrors.New(qerrors.ErrCodeRegistryUnavailable, "list documents", err)
	}

	selected := make(map[string]bool, len(activeSources))
	for _, s := range activeSources {
		selected[s] = true
	}
	var ids []string
	for _, d := range docs {
		if len(activeSources) == 0 || selected[d.DocumentName] {
			ids = append(ids, d.DocumentID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	indexes := e.router.Resolve(activeSources)
	indexes = append(indexes, e.router.ResolveImages(activeSources)...)

	var chunks []*store.Chunk
	for _, index := range indexes {
		exec, err := e.openExecutor(ctx, index)
		if err != nil {
			e.logger.Warn("occurrence_shard_open_failed", "index", index, "error", err)
			continue
		}
		cs, err := exec.Shard().ChunksByDocument(ctx, ids)
		if err != nil {
			e.logger.Warn("occurrence_chunk_scan_failed", "index", index, "error", err)
			continue
		}
		chunks = append(chunks, cs...)
	}
	return chunks, nil
}

// knownDocuments returns the registered document names from the
// watcher's snapshot.
func (e *Engine) knownDocuments() []string {
	snap := e.watcher.Snapshot()
	names := make([]string, 0, len(snap.Text)+len(snap.Images))
	seen := make(map[string]bool)
	for name := range snap.Text {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	for name := range snap.Images {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (e *Engine) effectiveWeights(opts QueryOptions) (float64, float64) {
	semantic := e.cfg.Search.SemanticWeight
	keyword := e.cfg.Search.KeywordWeight
	if opts.SemanticWeight != nil {
		semantic = *opts.SemanticWeight
	}
	if opts.KeywordWeight != nil {
		keyword = *opts.KeywordWeight
	}
	switch opts.SearchMode {
	case ModeSemantic:
		semantic, keyword = 1, 0
	case ModeKeyword:
		semantic, keyword = 0, 1
	}
	return semantic, keyword
}

func (e *Engine) effectiveMinScore(opts QueryOptions) float64 {
	if opts.MinScore != nil {
		return *opts.MinScore
	}
	return e.cfg.Search.MinScore
}

// failed shapes the user-visible failure response: a short message,
// no citations, no internals.
func (e *Engine) failed(resp *Response, started time.Time, message string) *Response {
	resp.Answer = message
	resp.Sources = []string{}
	resp.Citations = []cite.Citation{}
	resp.NumChunksUsed = 0
	resp.ResponseTime = time.Since(started)
	return resp
}

func citationSources(citations []cite.Citation) []string {
	seen := make(map[string]bool, len(citations))
	var out []string
	for _, c := range citations {
		if !seen[c.Source] {
			seen[c.Source] = true
			out = append(out, c.Source)
		}
	}
	if out == nil {
		out = []string{}
	}
	return out
}

// contentKey hashes a chunk's identity for cross-sub-query dedup.
func contentKey(c *store.Chunk) uint64 {
	h := fnv.New64a()
	h.Write([]byte(c.ID))
	text := c.Text
	if len(text) > 100 {
		text = text[:100]
	}
	h.Write([]byte(text))
	return h.Sum64()
}
