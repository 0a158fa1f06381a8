package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarry-search/quarry/internal/cite"
	"github.com/quarry-search/quarry/internal/config"
	"github.com/quarry-search/quarry/internal/llm"
	"github.com/quarry-search/quarry/internal/registry"
	"github.com/quarry-search/quarry/internal/rerank"
	"github.com/quarry-search/quarry/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Embeddings.Provider = "mock"
	cfg.Embeddings.Dimensions = 8
	cfg.LLM.Provider = "mock"
	return cfg
}

func newTestEngine(t *testing.T, cfg *config.Config, opts ...Option) (*Engine, *llm.MockClient) {
	t.Helper()
	mock := &llm.MockClient{Reply: "The valve torque is 25 Nm [Source 1]."}
	opts = append([]Option{
		WithLLMClient(mock),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)

	eng, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })
	return eng, mock
}

// ingestDocument registers a document and writes one chunk per text,
// each on its own page.
func ingestDocument(t *testing.T, eng *Engine, name, docID string, kind registry.IndexKind, texts []string) string {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, eng.registry.Put(ctx, registry.Document{
		DocumentID:   docID,
		DocumentName: name,
		Status:       registry.StatusIndexed,
		Pages:        len(texts),
	}))
	index, err := eng.router.Register(ctx, name, "", kind)
	require.NoError(t, err)

	exec, err := eng.openExecutor(ctx, index)
	require.NoError(t, err)

	chunks := make([]*store.Chunk, len(texts))
	for i, text := range texts {
		vec, err := eng.embedder.EmbedQuery(ctx, text)
		require.NoError(t, err)
		chunk := &store.Chunk{
			ID:         fmt.Sprintf("%s-%d", docID, i),
			DocumentID: docID,
			Source:     name,
			Text:       text,
			Vector:     vec,
			Page:       i + 1,
			ChunkIndex: i,
			StartChar:  i * 1000,
			EndChar:    (i + 1) * 1000,
		}
		if kind == registry.KindImages {
			chunk.ContentType = store.ContentTypeImageOCR
			chunk.ImageRef = &store.ImageRef{Page: i + 1, ImageIndex: 0}
		} else {
			chunk.ContentType = store.ContentTypeText
		}
		chunks[i] = chunk
	}
	require.NoError(t, exec.Shard().Add(ctx, chunks))
	eng.InvalidateCache("")
	return index
}

func TestQueryAnswersWithCitations(t *testing.T) {
	eng, _ := newTestEngine(t, testConfig(t))
	ingestDocument(t, eng, "manual.pdf", "doc-1", registry.KindText, []string{
		"The valve torque specification is 25 Nm for the intake assembly.",
		"Routine maintenance requires replacing the oil filter every 500 hours.",
		"The cooling system holds 12 liters of coolant mixed 50/50.",
	})

	resp, err := eng.Query(context.Background(), "What is the valve torque specification?", QueryOptions{})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, "The valve torque is 25 Nm [Source 1].", resp.Answer)
	require.NotEmpty(t, resp.Citations)

	assert.Equal(t, 100.0, resp.Citations[0].SimilarityPercentage)
	for i, c := range resp.Citations {
		assert.Equal(t, i+1, c.ID, "IDs are sequential from 1")
		assert.GreaterOrEqual(t, c.Page, 1)
		assert.NotEmpty(t, c.Source)
		assert.NotContains(t, c.Source, "/")
	}
	assert.Equal(t, []string{"manual.pdf"}, resp.Sources)
	assert.Equal(t, len(resp.Citations), resp.NumChunksUsed)
	assert.Positive(t, resp.TotalTokens)
	assert.Positive(t, resp.ResponseTime)
}

func TestQueryEmptyQuestion(t *testing.T) {
	eng, mock := newTestEngine(t, testConfig(t))

	resp, err := eng.Query(context.Background(), "   ", QueryOptions{})
	assert.Error(t, err)
	require.NotNil(t, resp)
	assert.NotEmpty(t, resp.Answer)
	assert.Empty(t, resp.Citations)
	assert.Empty(t, resp.Sources)
	assert.Zero(t, mock.CallCount())
}

func TestQueryNoDocuments(t *testing.T) {
	eng, mock := newTestEngine(t, testConfig(t))

	resp, err := eng.Query(context.Background(), "anything at all?", QueryOptions{})
	require.NoError(t, err)
	assert.Empty(t, resp.Citations)
	assert.Empty(t, resp.Sources)
	assert.Contains(t, resp.Answer, "No indexed documents")
	assert.Zero(t, mock.CallCount(), "no LLM call without retrieval")
}

func TestQueryActiveSourceScoping(t *testing.T) {
	eng, _ := newTestEngine(t, testConfig(t))
	ingestDocument(t, eng, "manual.pdf", "doc-1", registry.KindText, []string{
		"The valve torque specification is 25 Nm.",
	})
	ingestDocument(t, eng, "catalog.pdf", "doc-2", registry.KindText, []string{
		"The valve torque for legacy models is 30 Nm.",
	})

	resp, err := eng.Query(context.Background(), "What is the valve torque specification?", QueryOptions{
		ActiveSources: []string{"manual.pdf"},
	})
	require.NoError(t, err)
	for _, c := range resp.Citations {
		assert.Equal(t, "manual.pdf", c.Source)
	}
}

func TestQueryOccurrencePathSkipsLLM(t *testing.T) {
	eng, mock := newTestEngine(t, testConfig(t))
	ingestDocument(t, eng, "manual.pdf", "doc-1", registry.KindText, []string{
		"Open the valve slowly. The valve must seat fully.",
		"Valves require inspection each season.",
	})

	resp, err := eng.Query(context.Background(), "How many occurrences of valve?", QueryOptions{})
	require.NoError(t, err)

	require.NotNil(t, resp.Occurrences)
	assert.Equal(t, "valve", resp.Occurrences.Term)
	assert.Len(t, resp.Occurrences.Occurrences, 2, "whole-word match excludes 'Valves'")
	assert.Contains(t, resp.Answer, "Found 2 occurrence(s) of 'valve'")
	assert.Len(t, resp.Citations, 2)
	assert.Zero(t, mock.CallCount(), "occurrence queries never reach the LLM")
}

func TestFindAllOccurrencesSortsByPage(t *testing.T) {
	eng, _ := newTestEngine(t, testConfig(t))
	ingestDocument(t, eng, "manual.pdf", "doc-1", registry.KindText, []string{
		"nothing relevant on page one",
		"a filter lives here",
		"another filter here and a filter there",
	})

	result, err := eng.FindAllOccurrences(context.Background(), "filter", nil, 0)
	require.NoError(t, err)
	require.Len(t, result.Occurrences, 3)
	assert.Equal(t, 2, result.Occurrences[0].Page)
	assert.Equal(t, 3, result.Occurrences[1].Page)
	assert.False(t, result.Truncated)
}

func TestSearchImages(t *testing.T) {
	eng, _ := newTestEngine(t, testConfig(t))
	ingestDocument(t, eng, "manual.pdf", "doc-1", registry.KindText, []string{
		"Plain body text about the valve.",
	})
	ingestDocument(t, eng, "manual.pdf", "doc-1", registry.KindImages, []string{
		"OCR: drawer 4 contains torque wrench part 88-C",
	})

	citations, err := eng.SearchImages(context.Background(), "torque wrench drawer", nil, 5)
	require.NoError(t, err)
	require.NotEmpty(t, citations)
	assert.Equal(t, cite.ContentImage, citations[0].ContentType)
	assert.NotNil(t, citations[0].ImageRef)
}

func TestQueryCachesResults(t *testing.T) {
	cfg := testConfig(t)
	eng, _ := newTestEngine(t, cfg)
	ingestDocument(t, eng, "manual.pdf", "doc-1", registry.KindText, []string{
		"The valve torque specification is 25 Nm.",
	})

	_, err := eng.Query(context.Background(), "What is the valve torque specification?", QueryOptions{})
	require.NoError(t, err)
	assert.Positive(t, eng.cache.Len())

	eng.InvalidateCache("")
	assert.Zero(t, eng.cache.Len())
}

func TestQueryCacheDisabledByZeroTTL(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cache.TTLSeconds = 0
	eng, _ := newTestEngine(t, cfg)
	ingestDocument(t, eng, "manual.pdf", "doc-1", registry.KindText, []string{
		"The valve torque specification is 25 Nm.",
	})

	_, err := eng.Query(context.Background(), "What is the valve torque specification?", QueryOptions{})
	require.NoError(t, err)
	assert.Zero(t, eng.cache.Len(), "TTL zero never caches")
}

func TestQueryModelSelection(t *testing.T) {
	cfg := testConfig(t)
	eng, mock := newTestEngine(t, cfg)
	ingestDocument(t, eng, "manual.pdf", "doc-1", registry.KindText, []string{
		"The valve torque specification is 25 Nm.",
	})

	_, err := eng.Query(context.Background(), "valve torque?", QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, cfg.LLM.SimpleModel, mock.LastRequest().Model, "short lookups use the light model")

	_, err = eng.Query(context.Background(),
		"Considering the maintenance schedule, what valve torque applies to the intake assembly of this machine?",
		QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, cfg.LLM.DeepModel, mock.LastRequest().Model)

	_, err = eng.Query(context.Background(), "valve torque?", QueryOptions{Model: "custom-model"})
	require.NoError(t, err)
	assert.Equal(t, "custom-model", mock.LastRequest().Model, "explicit model wins")
}

func TestQueryAgenticDecomposition(t *testing.T) {
	cfg := testConfig(t)
	eng, mock := newTestEngine(t, cfg)
	mock.Responses = []string{
		"1. valve torque specification\n2. oil filter replacement interval",
		"The torque is 25 Nm and the filter changes every 500 hours [Source 1][Source 2].",
	}
	ingestDocument(t, eng, "manual.pdf", "doc-1", registry.KindText, []string{
		"The valve torque specification is 25 Nm.",
		"Replace the oil filter every 500 hours of operation.",
	})

	resp, err := eng.Query(context.Background(),
		"Compare the valve torque specification and the oil filter replacement interval", QueryOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"valve torque specification", "oil filter replacement interval"}, resp.SubQueries)
	assert.NotEmpty(t, resp.Citations)
	assert.Equal(t, 2, mock.CallCount(), "one decomposition call, one answer call")
}

type failingReranker struct{}

func (failingReranker) Rerank(context.Context, string, []*store.Chunk, int) ([]rerank.Reranked, error) {
	return nil, fmt.Errorf("reranker down")
}
func (failingReranker) Available(context.Context) bool { return false }
func (failingReranker) Close() error                   { return nil }

func TestQueryRerankFailurePassesThrough(t *testing.T) {
	cfg := testConfig(t)
	cfg.Reranker.Enabled = true
	cfg.Reranker.Endpoint = "http://localhost:1"
	eng, _ := newTestEngine(t, cfg, WithReranker(failingReranker{}))
	ingestDocument(t, eng, "manual.pdf", "doc-1", registry.KindText, []string{
		"The valve torque specification is 25 Nm.",
	})

	resp, err := eng.Query(context.Background(), "What is the valve torque specification?", QueryOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Citations, "fused ordering survives a reranker outage")
	for _, c := range resp.Citations {
		assert.Nil(t, c.RerankScore)
	}
}

type recordingReranker struct {
	rerank.NoOpReranker
	lastTopK int
}

func (r *recordingReranker) Rerank(ctx context.Context, query string, candidates []*store.Chunk, topK int) ([]rerank.Reranked, error) {
	r.lastTopK = topK
	return r.NoOpReranker.Rerank(ctx, query, candidates, topK)
}

func TestQueryRerankTopKOverride(t *testing.T) {
	cfg := testConfig(t)
	cfg.Reranker.Enabled = true
	cfg.Reranker.Endpoint = "http://localhost:1"
	rr := &recordingReranker{}
	eng, _ := newTestEngine(t, cfg, WithReranker(rr))
	ingestDocument(t, eng, "manual.pdf", "doc-1", registry.KindText, []string{
		"The valve torque specification is 25 Nm.",
		"Replace the oil filter every 500 hours.",
		"The cooling system holds 12 liters.",
	})

	_, err := eng.Query(context.Background(), "What is the valve torque specification?",
		QueryOptions{K: 5, RerankTopK: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, rr.lastTopK)

	_, err = eng.Query(context.Background(), "Which interval applies to the oil filter?",
		QueryOptions{K: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, rr.lastTopK, "zero falls back to the requested k")
}

func TestQueryResponseLanguage(t *testing.T) {
	eng, mock := newTestEngine(t, testConfig(t))
	ingestDocument(t, eng, "manual.pdf", "doc-1", registry.KindText, []string{
		"The valve torque specification is 25 Nm.",
	})

	_, err := eng.Query(context.Background(), "What is the valve torque specification?",
		QueryOptions{ResponseLanguage: "German"})
	require.NoError(t, err)

	req := mock.LastRequest()
	require.NotNil(t, req)
	assert.Contains(t, req.Messages[0].Content, "Answer in German regardless of the question's language.")
}

func TestAlternateQueryLanguageGate(t *testing.T) {
	q := "Wie hoch ist das Anzugsmoment?"

	assert.Empty(t, alternateQuery(q, QueryOptions{}))
	assert.Empty(t, alternateQuery(q, QueryOptions{QueryLanguage: "en"}))
	assert.Empty(t, alternateQuery(q, QueryOptions{QueryLanguage: "en-US"}))
	assert.Equal(t, q, alternateQuery(q, QueryOptions{QueryLanguage: "de"}))
	assert.Equal(t, q, alternateQuery(q, QueryOptions{QueryLanguage: "De"}), "language codes are case-insensitive")
}

func TestQueryLLMFailureShape(t *testing.T) {
	cfg := testConfig(t)
	eng, mock := newTestEngine(t, cfg)
	mock.Err = fmt.Errorf("upstream 500")
	ingestDocument(t, eng, "manual.pdf", "doc-1", registry.KindText, []string{
		"The valve torque specification is 25 Nm.",
	})

	resp, err := eng.Query(context.Background(), "What is the valve torque specification?", QueryOptions{})
	assert.Error(t, err)
	require.NotNil(t, resp)
	assert.Empty(t, resp.Citations)
	assert.Empty(t, resp.Sources)
	assert.Zero(t, resp.NumChunksUsed)
	assert.NotContains(t, resp.Answer, "upstream", "failure message never leaks internals")
}

func TestIndexesListsRegisteredIndexes(t *testing.T) {
	eng, _ := newTestEngine(t, testConfig(t))
	assert.Empty(t, eng.Indexes())

	ingestDocument(t, eng, "manual.pdf", "doc-1", registry.KindText, []string{"text"})
	indexes := eng.Indexes()
	require.Len(t, indexes, 1)
	assert.Equal(t, "manual-pdf", indexes[0])
}

func TestRegisterCollisionSuffix(t *testing.T) {
	eng, _ := newTestEngine(t, testConfig(t))
	ctx := context.Background()

	first, err := eng.router.Register(ctx, "my report.pdf", "", registry.KindText)
	require.NoError(t, err)
	assert.Equal(t, "my-report-pdf", first)

	second, err := eng.router.Register(ctx, "My Report.PDF", "", registry.KindText)
	require.NoError(t, err)
	assert.Equal(t, "my-report-pdf-1", second)
}
