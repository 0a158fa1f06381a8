// Package engine composes the retrieval pipeline: query planning,
// index routing, multi-index fan-out search, reranking, citation
// extraction, and answer assembly.
package engine

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/quarry-search/quarry/internal/answer"
	"github.com/quarry-search/quarry/internal/cite"
	"github.com/quarry-search/quarry/internal/config"
	"github.com/quarry-search/quarry/internal/embed"
	qerrors "github.com/quarry-search/quarry/internal/errors"
	"github.com/quarry-search/quarry/internal/llm"
	"github.com/quarry-search/quarry/internal/plan"
	"github.com/quarry-search/quarry/internal/registry"
	"github.com/quarry-search/quarry/internal/rerank"
	"github.com/quarry-search/quarry/internal/router"
	"github.com/quarry-search/quarry/internal/search"
	"github.com/quarry-search/quarry/internal/store"
	"github.com/quarry-search/quarry/internal/token"
)

// Engine owns the full retrieval pipeline. One engine serves many
// concurrent requests; per-request state never escapes a call.
type Engine struct {
	cfg    *config.Config
	logger *slog.Logger

	registry *registry.Registry
	watcher  *registry.Watcher
	router   *router.Router

	embedder embed.Embedder
	client   llm.Client
	reranker rerank.Reranker

	cache  *search.CacheManager
	fanout *search.Fanout

	classifier *plan.Classifier
	decomposer *plan.Decomposer

	builder   *cite.Builder
	packer    *answer.Packer
	generator *answer.Generator
	ranker    *answer.Ranker

	// Shard executors are pooled for the engine's lifetime; opening a
	// shard rebuilds derived indexes and is too expensive per request.
	mu        sync.Mutex
	executors map[string]*search.Executor
	closed    bool
}

// Option overrides a default dependency, mainly for tests and embedders
// the config cannot describe.
type Option func(*Engine)

// WithEmbedder replaces the configured embedding provider.
func WithEmbedder(e embed.Embedder) Option {
	return func(eng *Engine) { eng.embedder = e }
}

// WithLLMClient replaces the configured chat client.
func WithLLMClient(c llm.Client) Option {
	return func(eng *Engine) { eng.client = c }
}

// WithReranker replaces the configured reranker.
func WithReranker(r rerank.Reranker) Option {
	return func(eng *Engine) { eng.reranker = r }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(eng *Engine) { eng.logger = l }
}

// New builds an engine from the config. The registry is opened (and
// watched) immediately; providers are constructed but not contacted.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	eng := &Engine{
		cfg:       cfg,
		logger:    slog.Default(),
		executors: make(map[string]*search.Executor),
	}
	for _, opt := range opts {
		opt(eng)
	}

	reg, err := registry.Open(cfg.RegistryPath())
	if err != nil {
		return nil, qerrors.New(qerrors.ErrCodeRegistryUnavailable, "open document registry", err)
	}
	eng.registry = reg

	debounce := time.Duration(cfg.Registry.DebounceMS) * time.Millisecond
	watcher, err := registry.NewWatcher(reg, debounce, eng.logger)
	if err != nil {
		reg.Close()
		return nil, err
	}
	eng.watcher = watcher
	eng.router = router.New(watcher, reg, eng.logger)

	if eng.embedder == nil {
		embedder, err := embed.NewFromConfig(cfg)
		if err != nil {
			eng.closeCore()
			return nil, err
		}
		eng.embedder = embedder
	}

	if eng.client == nil {
		client, err := newLLMClient(cfg)
		if err != nil {
			eng.closeCore()
			return nil, err
		}
		eng.client = client
	}

	if eng.reranker == nil {
		eng.reranker = newReranker(cfg)
	}

	cache, err := search.NewCacheManager(
		time.Duration(cfg.Cache.TTLSeconds)*time.Second, cfg.Cache.Capacity)
	if err != nil {
		eng.closeCore()
		return nil, err
	}
	eng.cache = cache

	eng.fanout = search.NewFanout(eng.openExecutor,
		cfg.Search.MaxFanout, cfg.Search.ShardKFloor, eng.logger)

	eng.classifier = plan.NewClassifier(cfg)
	eng.decomposer = plan.NewDecomposer(eng.client, cfg.LLM.SimpleModel,
		cfg.Search.MaxSubQueries, eng.logger)

	snippeter := cite.NewSnippeter(eng.embedder, cfg.Ranking.SnippetMaxChars, eng.logger)
	eng.builder = cite.NewBuilder(snippeter, eng.logger)

	eng.packer = answer.NewPacker(token.NewCounter(cfg.LLM.DeepModel),
		cfg.LLM.ContextBudgetTokens, cfg.LLM.ReserveTokens)
	eng.generator = answer.NewGenerator(eng.client, cfg.LLM.DeepModel,
		cfg.LLM.Temperature, cfg.LLM.MaxTokens)
	eng.ranker = answer.NewRanker(cfg.Ranking, eng.logger)

	return eng, nil
}

func newLLMClient(cfg *config.Config) (llm.Client, error) {
	switch cfg.LLM.Provider {
	case "mock":
		return &llm.MockClient{Reply: "mock answer"}, nil
	default:
		return llm.NewOpenAIClient(llm.OpenAIConfig{
			BaseURL:   cfg.LLM.BaseURL,
			APIKeyEnv: cfg.LLM.APIKeyEnv,
			Timeout:   time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		})
	}
}

func newReranker(cfg *config.Config) rerank.Reranker {
	if !cfg.Reranker.Enabled {
		return &rerank.NoOpReranker{}
	}
	return rerank.NewHTTPReranker(rerank.HTTPConfig{
		Endpoint:     cfg.Reranker.Endpoint,
		Model:        cfg.Reranker.Model,
		APIKeyEnv:    cfg.Reranker.APIKeyEnv,
		Timeout:      time.Duration(cfg.Reranker.TimeoutSeconds) * time.Second,
		MaxFailures:  cfg.Reranker.MaxFailures,
		ResetTimeout: time.Duration(cfg.Reranker.ResetTimeoutSeconds) * time.Second,
	})
}

// openExecutor returns the pooled executor for an index, opening the
// shard on first use.
func (e *Engine) openExecutor(ctx context.Context, indexID string) (*search.Executor, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if exec, ok := e.executors[indexID]; ok {
		return exec, nil
	}

	dims := e.embedder.Dimensions()
	vcfg := store.DefaultVectorStoreConfig(dims)
	vcfg.EfSearch = e.cfg.Search.EfSearch

	dir := filepath.Join(e.cfg.IndexDir(), indexID)
	shard, err := store.OpenShard(ctx, dir, store.ShardOptions{
		LexicalBackend: e.cfg.Search.LexicalBackend,
		Vector:         vcfg,
		EmbeddingModel: e.cfg.Embeddings.Model,
	})
	if err != nil {
		return nil, err
	}

	if dims > 0 {
		if err := shard.ValidateDimensions(ctx, dims); err != nil {
			if !e.cfg.Search.RecreateOnMismatch {
				shard.Close()
				return nil, qerrors.New(qerrors.ErrCodeDimensionMismatch,
					"shard dimension disagrees with embedder", err)
			}
			e.logger.Warn("shard_recreated_on_dimension_mismatch",
				"index", indexID, "dimensions", dims)
			shard, err = shard.Recreate(ctx, dims)
			if err != nil {
				return nil, err
			}
		}
	}

	exec := search.NewExecutor(shard, e.cfg, e.logger)
	e.executors[indexID] = exec
	return exec, nil
}

// Registry exposes the document registry for status commands.
func (e *Engine) Registry() *registry.Registry { return e.registry }

// Router exposes the index router for ingestion-side registration.
func (e *Engine) Router() *router.Router { return e.router }

// Indexes lists the known text index names from the current snapshot.
func (e *Engine) Indexes() []string {
	snap := e.watcher.Snapshot()
	seen := make(map[string]bool, len(snap.Text))
	var out []string
	for _, index := range snap.Text {
		if !seen[index] {
			seen[index] = true
			out = append(out, index)
		}
	}
	return out
}

// InvalidateCache drops cached results for one index, or everything
// when indexID is empty. Ingestion calls this after writing a shard.
func (e *Engine) InvalidateCache(indexID string) {
	e.cache.Invalidate(indexID)
}

func (e *Engine) closeCore() {
	if e.watcher != nil {
		e.watcher.Close()
	}
	if e.registry != nil {
		e.registry.Close()
	}
}

// Close releases shards, the registry watcher, and provider clients.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	executors := e.executors
	e.executors = make(map[string]*search.Executor)
	e.mu.Unlock()

	var firstErr error
	for name, exec := range executors {
		if err := exec.Shard().Close(); err != nil {
			e.logger.Warn("shard_close_failed", "index", name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if e.reranker != nil {
		e.reranker.Close()
	}
	if e.embedder != nil {
		e.embedder.Close()
	}
	if e.client != nil {
		e.client.Close()
	}
	e.closeCore()
	return firstErr
}
