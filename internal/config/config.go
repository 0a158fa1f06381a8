// Package config manages quarry configuration: defaults, a single YAML
// config file, QUARRY_* environment overrides, and validation.
//
// Precedence (lowest to highest): built-in defaults, config file,
// environment variables. API keys are never read from the file; the
// api_key_env fields name the environment variable to consult.
package config

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	qerrors "github.com/quarry-search/quarry/internal/errors"
)

const (
	// ConfigVersion is the current config schema version.
	ConfigVersion = 1

	// DefaultDataDir is where indexes, the registry, and logs live.
	DefaultDataDir = "~/.quarry"

	// UserConfigDirName under XDG_CONFIG_HOME (or ~/.config).
	UserConfigDirName = "quarry"

	// UserConfigFileName inside the user config directory.
	UserConfigFileName = "config.yaml"
)

// Lexical backend names accepted by search.lexical_backend.
const (
	BackendBleve = "bleve"
	BackendFTS5  = "fts5"
)

// Config is the root configuration for the retrieval engine.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Ranking    RankingConfig    `yaml:"ranking" json:"ranking"`
	Cache      CacheConfig      `yaml:"cache" json:"cache"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	LLM        LLMConfig        `yaml:"llm" json:"llm"`
	Reranker   RerankerConfig   `yaml:"reranker" json:"reranker"`
	Registry   RegistryConfig   `yaml:"registry" json:"registry"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// PathsConfig locates on-disk state. Empty index_dir and registry_path
// derive from data_dir.
type PathsConfig struct {
	DataDir      string `yaml:"data_dir" json:"data_dir"`
	IndexDir     string `yaml:"index_dir" json:"index_dir"`
	RegistryPath string `yaml:"registry_path" json:"registry_path"`
}

// SearchConfig configures retrieval: hybrid weights, fusion, fan-out,
// and the query planner's limits.
// Weights are configurable via:
//  1. User config (~/.config/quarry/config.yaml)
//  2. Env vars (QUARRY_SEMANTIC_WEIGHT, QUARRY_KEYWORD_WEIGHT) - highest priority
type SearchConfig struct {
	// DefaultK is the result count when the caller passes k <= 0.
	DefaultK int `yaml:"default_k" json:"default_k"`

	// MaxK caps any requested k.
	MaxK int `yaml:"max_k" json:"max_k"`

	// SemanticWeight is the weight for vector similarity (0.0-1.0).
	// Must sum to 1.0 with KeywordWeight.
	SemanticWeight float64 `yaml:"semantic_weight" json:"semantic_weight"`

	// KeywordWeight is the weight for lexical matching (0.0-1.0).
	// Must sum to 1.0 with SemanticWeight.
	KeywordWeight float64 `yaml:"keyword_weight" json:"keyword_weight"`

	// RRFConstant is the k in weight/(k+rank) reciprocal rank fusion.
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`

	// FetchMultiplier widens both legs of a hybrid search: each leg
	// fetches k*FetchMultiplier candidates before fusion.
	FetchMultiplier int `yaml:"fetch_multiplier" json:"fetch_multiplier"`

	// EfSearch is the HNSW search beam width.
	EfSearch int `yaml:"ef_search" json:"ef_search"`

	// LexicalBackend selects "bleve" or "fts5".
	LexicalBackend string `yaml:"lexical_backend" json:"lexical_backend"`

	// MinScore drops fused results below this value. Zero keeps all.
	MinScore float64 `yaml:"min_score" json:"min_score"`

	// RecreateOnMismatch rebuilds an index whose stored vector
	// dimension disagrees with the embedder instead of failing.
	RecreateOnMismatch bool `yaml:"recreate_on_mismatch" json:"recreate_on_mismatch"`

	// MaxFanout bounds concurrent per-index searches when a query
	// spans multiple indexes.
	MaxFanout int `yaml:"max_fanout" json:"max_fanout"`

	// ShardKFloor is the minimum k requested from each index during
	// fan-out, so small k still surfaces candidates from every index.
	ShardKFloor int `yaml:"shard_k_floor" json:"shard_k_floor"`

	// Agentic enables LLM decomposition of complex questions.
	Agentic bool `yaml:"agentic" json:"agentic"`

	// MaxSubQueries caps decomposition width.
	MaxSubQueries int `yaml:"max_sub_queries" json:"max_sub_queries"`

	// ChunksPerSubQuery is the per-sub-query retrieval depth.
	ChunksPerSubQuery int `yaml:"chunks_per_subquery" json:"chunks_per_subquery"`

	// MaxTotalChunks caps the merged agentic result set.
	MaxTotalChunks int `yaml:"max_total_chunks" json:"max_total_chunks"`

	// SummaryKMultiplier and SummaryKMin widen retrieval for
	// summary-style questions.
	SummaryKMultiplier float64 `yaml:"summary_k_multiplier" json:"summary_k_multiplier"`
	SummaryKMin        int     `yaml:"summary_k_min" json:"summary_k_min"`

	// OccurrenceMaxResults caps exhaustive term enumeration;
	// OccurrenceContext is the context window in characters.
	OccurrenceMaxResults int `yaml:"occurrence_max_results" json:"occurrence_max_results"`
	OccurrenceContext    int `yaml:"occurrence_context_chars" json:"occurrence_context_chars"`
}

// RankingConfig holds the lexical boost schedule, rerank behavior, and
// the citation ranking heuristics.
type RankingConfig struct {
	Boosts    BoostSchedule    `yaml:"boosts" json:"boosts"`
	Relevance RelevanceWeights `yaml:"relevance" json:"relevance"`
	Regimes   RegimeThresholds `yaml:"regimes" json:"regimes"`

	// RerankExpansion multiplies top_k when fetching candidates for
	// the cross-encoder.
	RerankExpansion int `yaml:"rerank_expansion" json:"rerank_expansion"`

	// RerankCoverageMin is the fraction of citations that must carry
	// a rerank score before rerank ordering applies.
	RerankCoverageMin float64 `yaml:"rerank_coverage_min" json:"rerank_coverage_min"`

	// RerankFloorPct is the lowest similarity percentage assigned
	// under rerank ordering.
	RerankFloorPct float64 `yaml:"rerank_floor_pct" json:"rerank_floor_pct"`

	// SnippetMaxChars bounds citation snippets.
	SnippetMaxChars int `yaml:"snippet_max_chars" json:"snippet_max_chars"`
}

// BoostSchedule weights the lexical query clauses. PhraseSlop1 is the
// exact-phrase clause, PhraseSlop3 the loose phrase, FuzzyMulti the
// fuzzy multi-field clause; the Alt pair applies to the secondary
// query variant when the planner produces one. The bonus fields are
// added to fused scores when the query text appears in a result.
type BoostSchedule struct {
	PhraseSlop1    float64 `yaml:"phrase_slop1" json:"phrase_slop1"`
	PhraseSlop3    float64 `yaml:"phrase_slop3" json:"phrase_slop3"`
	FuzzyMulti     float64 `yaml:"fuzzy_multi" json:"fuzzy_multi"`
	AltPhraseSlop2 float64 `yaml:"alt_phrase_slop2" json:"alt_phrase_slop2"`
	AltFuzzyMulti  float64 `yaml:"alt_fuzzy_multi" json:"alt_fuzzy_multi"`

	PhraseBonus   float64 `yaml:"phrase_bonus" json:"phrase_bonus"`
	NearBonus     float64 `yaml:"near_bonus" json:"near_bonus"`
	PartialBonus  float64 `yaml:"partial_bonus" json:"partial_bonus"`
	CoverageBonus float64 `yaml:"coverage_bonus" json:"coverage_bonus"`
}

// RelevanceWeights score citation snippets against query keywords.
type RelevanceWeights struct {
	PhraseWeight  float64 `yaml:"phrase_weight" json:"phrase_weight"`
	ContextWeight float64 `yaml:"context_weight" json:"context_weight"`
	BareWeight    float64 `yaml:"bare_weight" json:"bare_weight"`

	// ContextWindow is the character distance within which two
	// keywords validate each other.
	ContextWindow int `yaml:"context_window" json:"context_window"`
}

// RegimeThresholds classify the similarity-score distribution so
// percentage display matches the scoring scheme that produced it.
type RegimeThresholds struct {
	// RRF-like: tiny scores with a tiny spread.
	RRFMaxScore  float64 `yaml:"rrf_max_score" json:"rrf_max_score"`
	RRFMaxSpread float64 `yaml:"rrf_max_spread" json:"rrf_max_spread"`

	// Mixed: wildly different magnitudes in one result set.
	MixedRatio    float64 `yaml:"mixed_ratio" json:"mixed_ratio"`
	MixedBestMin  float64 `yaml:"mixed_best_min" json:"mixed_best_min"`
	MixedWorstMax float64 `yaml:"mixed_worst_max" json:"mixed_worst_max"`

	// Packed: all scores within a narrow relative range.
	PackedRangePct float64 `yaml:"packed_range_pct" json:"packed_range_pct"`

	// Distance: lower is better, detected by magnitude.
	DistanceMaxMin   float64 `yaml:"distance_max_min" json:"distance_max_min"`
	DistanceWorstMin float64 `yaml:"distance_worst_min" json:"distance_worst_min"`
}

// CacheConfig bounds the in-memory query caches.
type CacheConfig struct {
	TTLSeconds int `yaml:"ttl_seconds" json:"ttl_seconds"`
	Capacity   int `yaml:"capacity" json:"capacity"`
}

// EmbeddingsConfig selects and tunes the embedding provider.
type EmbeddingsConfig struct {
	// Provider is "openai" or "ollama" ("mock" for tests).
	Provider string `yaml:"provider" json:"provider"`
	Model    string `yaml:"model" json:"model"`

	// Dimensions of the embedding vectors. Zero means probe the
	// provider with a test embedding.
	Dimensions int `yaml:"dimensions" json:"dimensions"`

	BatchSize int `yaml:"batch_size" json:"batch_size"`

	// CacheSize is the LRU capacity of the embedding cache.
	CacheSize int `yaml:"cache_size" json:"cache_size"`

	// BaseURL overrides the OpenAI-compatible endpoint.
	BaseURL    string `yaml:"base_url" json:"base_url"`
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`

	// APIKeyEnv names the environment variable holding the key.
	APIKeyEnv      string `yaml:"api_key_env" json:"api_key_env"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// LLMConfig selects and tunes answer generation.
type LLMConfig struct {
	Provider string `yaml:"provider" json:"provider"`

	// DeepModel answers full questions; SimpleModel handles short
	// lookups and query decomposition.
	DeepModel   string `yaml:"deep_model" json:"deep_model"`
	SimpleModel string `yaml:"simple_model" json:"simple_model"`

	Temperature float64 `yaml:"temperature" json:"temperature"`
	MaxTokens   int     `yaml:"max_tokens" json:"max_tokens"`

	// ContextBudgetTokens is the model window; ReserveTokens is held
	// back for the prompt scaffold and the response.
	ContextBudgetTokens int `yaml:"context_budget_tokens" json:"context_budget_tokens"`
	ReserveTokens       int `yaml:"reserve_tokens" json:"reserve_tokens"`

	BaseURL        string `yaml:"base_url" json:"base_url"`
	APIKeyEnv      string `yaml:"api_key_env" json:"api_key_env"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// RerankerConfig configures the optional cross-encoder service.
type RerankerConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	Model    string `yaml:"model" json:"model"`

	// APIKeyEnv names the environment variable holding the key.
	APIKeyEnv      string `yaml:"api_key_env" json:"api_key_env"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`

	// Circuit breaker: open after MaxFailures consecutive failures,
	// retry after ResetTimeoutSeconds.
	MaxFailures         int `yaml:"max_failures" json:"max_failures"`
	ResetTimeoutSeconds int `yaml:"reset_timeout_seconds" json:"reset_timeout_seconds"`
}

// RegistryConfig controls the document registry and its file watcher.
type RegistryConfig struct {
	Watch      bool `yaml:"watch" json:"watch"`
	DebounceMS int  `yaml:"debounce_ms" json:"debounce_ms"`
}

// ServerConfig bounds long-running operation.
type ServerConfig struct {
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds" json:"request_timeout_seconds"`
}

// LoggingConfig mirrors internal/logging.Config in YAML form.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`

	// File is the log path; empty uses the default under data_dir.
	File      string `yaml:"file" json:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
	Console   bool   `yaml:"console" json:"console"`
}

// NewConfig returns a Config populated with every default.
func NewConfig() *Config {
	return &Config{
		Version: ConfigVersion,
		Paths: PathsConfig{
			DataDir: DefaultDataDir,
		},
		Search: SearchConfig{
			DefaultK:           10,
			MaxK:               100,
			SemanticWeight:     0.65,
			KeywordWeight:      0.35,
			RRFConstant:        60,
			FetchMultiplier:    4,
			EfSearch:           512,
			LexicalBackend:     BackendBleve,
			MinScore:           0,
			RecreateOnMismatch: false,
			MaxFanout:          10,
			ShardKFloor:        10,

			Agentic:              true,
			MaxSubQueries:        3,
			ChunksPerSubQuery:    10,
			MaxTotalChunks:       30,
			SummaryKMultiplier:   2.0,
			SummaryKMin:          20,
			OccurrenceMaxResults: 200,
			OccurrenceContext:    80,
		},
		Ranking: RankingConfig{
			Boosts: BoostSchedule{
				PhraseSlop1:    10.0,
				PhraseSlop3:    5.0,
				FuzzyMulti:     1.5,
				AltPhraseSlop2: 4.0,
				AltFuzzyMulti:  2.0,
				PhraseBonus:    10.0,
				NearBonus:      3.0,
				PartialBonus:   1.5,
				CoverageBonus:  0.5,
			},
			Relevance: RelevanceWeights{
				PhraseWeight:  3.0,
				ContextWeight: 1.5,
				BareWeight:    0.5,
				ContextWindow: 30,
			},
			Regimes: RegimeThresholds{
				RRFMaxScore:      0.05,
				RRFMaxSpread:     0.01,
				MixedRatio:       50.0,
				MixedBestMin:     0.5,
				MixedWorstMax:    0.01,
				PackedRangePct:   0.15,
				DistanceMaxMin:   1.0,
				DistanceWorstMin: 0.5,
			},
			RerankExpansion:   4,
			RerankCoverageMin: 0.5,
			RerankFloorPct:    5.0,
			SnippetMaxChars:   500,
		},
		Cache: CacheConfig{
			TTLSeconds: 300,
			Capacity:   100,
		},
		Embeddings: EmbeddingsConfig{
			Provider:       "openai",
			Model:          "text-embedding-3-small",
			Dimensions:     0,
			BatchSize:      32,
			CacheSize:      1000,
			OllamaHost:     "http://localhost:11434",
			APIKeyEnv:      "OPENAI_API_KEY",
			TimeoutSeconds: 60,
		},
		LLM: LLMConfig{
			Provider:            "openai",
			DeepModel:           "gpt-4o",
			SimpleModel:         "gpt-4o-mini",
			Temperature:         0.1,
			MaxTokens:           2500,
			ContextBudgetTokens: 128000,
			ReserveTokens:       28000,
			APIKeyEnv:           "OPENAI_API_KEY",
			TimeoutSeconds:      120,
		},
		Reranker: RerankerConfig{
			Enabled:             false,
			Model:               "bge-reranker-v2-m3",
			APIKeyEnv:           "RERANK_API_KEY",
			TimeoutSeconds:      30,
			MaxFailures:         5,
			ResetTimeoutSeconds: 30,
		},
		Registry: RegistryConfig{
			Watch:      true,
			DebounceMS: 500,
		},
		Server: ServerConfig{
			RequestTimeoutSeconds: 120,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
			Console:   false,
		},
	}
}

// Load builds the effective configuration. With an empty path the user
// config file is used when present; otherwise defaults apply. A file
// at an explicit path must exist.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	switch {
	case path != "":
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	case UserConfigExists():
		if err := cfg.loadFile(GetUserConfigPath()); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, qerrors.New(qerrors.ErrCodeConfigInvalid, "invalid configuration", err).
			WithSuggestion("run 'quarry config show' to inspect the effective configuration")
	}

	return cfg, nil
}

// loadFile unmarshals a YAML file over the receiver, so absent keys
// keep their defaults.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return qerrors.New(qerrors.ErrCodeConfigNotFound,
				fmt.Sprintf("config file not found: %s", path), err).
				WithSuggestion("run 'quarry config init' to create one")
		}
		return qerrors.New(qerrors.ErrCodeConfigInvalid,
			fmt.Sprintf("failed to read config file %s", path), err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return qerrors.New(qerrors.ErrCodeConfigInvalid,
			fmt.Sprintf("failed to parse config file %s", path), err)
	}

	return nil
}

// applyEnvOverrides applies QUARRY_* environment variables on top of
// file values.
func (c *Config) applyEnvOverrides() {
	setString(&c.Paths.DataDir, "QUARRY_DATA_DIR")
	setString(&c.Paths.IndexDir, "QUARRY_INDEX_DIR")
	setString(&c.Paths.RegistryPath, "QUARRY_REGISTRY_PATH")

	setString(&c.Search.LexicalBackend, "QUARRY_LEXICAL_BACKEND")
	setFloat(&c.Search.SemanticWeight, "QUARRY_SEMANTIC_WEIGHT")
	setFloat(&c.Search.KeywordWeight, "QUARRY_KEYWORD_WEIGHT")
	setBool(&c.Search.Agentic, "QUARRY_AGENTIC")

	setInt(&c.Cache.TTLSeconds, "QUARRY_CACHE_TTL")

	setString(&c.Embeddings.Provider, "QUARRY_EMBEDDINGS_PROVIDER")
	setString(&c.Embeddings.Model, "QUARRY_EMBEDDINGS_MODEL")
	setString(&c.Embeddings.BaseURL, "QUARRY_EMBEDDINGS_BASE_URL")
	setString(&c.Embeddings.OllamaHost, "QUARRY_OLLAMA_HOST")

	setString(&c.LLM.Provider, "QUARRY_LLM_PROVIDER")
	setString(&c.LLM.DeepModel, "QUARRY_LLM_MODEL")
	setString(&c.LLM.BaseURL, "QUARRY_LLM_BASE_URL")

	setBool(&c.Reranker.Enabled, "QUARRY_RERANKER_ENABLED")
	setString(&c.Reranker.Endpoint, "QUARRY_RERANKER_ENDPOINT")

	setString(&c.Logging.Level, "QUARRY_LOG_LEVEL")
	if v := os.Getenv("QUARRY_DEBUG"); v == "1" || strings.EqualFold(v, "true") {
		c.Logging.Level = "debug"
		c.Logging.Console = true
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// Validate checks the configuration for contradictions. Field messages
// are terse; Load wraps them with the config-invalid code.
func (c *Config) Validate() error {
	if c.Version < 1 {
		return fmt.Errorf("version must be >= 1, got %d", c.Version)
	}

	s := &c.Search
	if s.SemanticWeight < 0 || s.SemanticWeight > 1 {
		return fmt.Errorf("search.semantic_weight must be between 0 and 1, got %f", s.SemanticWeight)
	}
	if s.KeywordWeight < 0 || s.KeywordWeight > 1 {
		return fmt.Errorf("search.keyword_weight must be between 0 and 1, got %f", s.KeywordWeight)
	}
	if sum := s.SemanticWeight + s.KeywordWeight; math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("search.semantic_weight + search.keyword_weight must equal 1.0, got %.2f", sum)
	}
	if s.DefaultK < 1 {
		return fmt.Errorf("search.default_k must be >= 1, got %d", s.DefaultK)
	}
	if s.MaxK < s.DefaultK {
		return fmt.Errorf("search.max_k must be >= search.default_k, got %d", s.MaxK)
	}
	if s.FetchMultiplier < 1 {
		return fmt.Errorf("search.fetch_multiplier must be >= 1, got %d", s.FetchMultiplier)
	}
	if s.RRFConstant < 1 {
		return fmt.Errorf("search.rrf_constant must be >= 1, got %d", s.RRFConstant)
	}
	if s.EfSearch < 1 {
		return fmt.Errorf("search.ef_search must be >= 1, got %d", s.EfSearch)
	}
	if s.LexicalBackend != BackendBleve && s.LexicalBackend != BackendFTS5 {
		return fmt.Errorf("search.lexical_backend must be %q or %q, got %q", BackendBleve, BackendFTS5, s.LexicalBackend)
	}
	if s.MaxFanout < 1 {
		return fmt.Errorf("search.max_fanout must be >= 1, got %d", s.MaxFanout)
	}
	if s.MaxSubQueries < 1 {
		return fmt.Errorf("search.max_sub_queries must be >= 1, got %d", s.MaxSubQueries)
	}
	if s.OccurrenceMaxResults < 1 {
		return fmt.Errorf("search.occurrence_max_results must be >= 1, got %d", s.OccurrenceMaxResults)
	}

	r := &c.Ranking
	if r.RerankExpansion < 1 {
		return fmt.Errorf("ranking.rerank_expansion must be >= 1, got %d", r.RerankExpansion)
	}
	if r.RerankCoverageMin <= 0 || r.RerankCoverageMin > 1 {
		return fmt.Errorf("ranking.rerank_coverage_min must be in (0, 1], got %f", r.RerankCoverageMin)
	}
	if r.Regimes.PackedRangePct <= 0 || r.Regimes.PackedRangePct >= 1 {
		return fmt.Errorf("ranking.regimes.packed_range_pct must be in (0, 1), got %f", r.Regimes.PackedRangePct)
	}
	if r.SnippetMaxChars < 50 {
		return fmt.Errorf("ranking.snippet_max_chars must be >= 50, got %d", r.SnippetMaxChars)
	}

	// TTL 0 is legal and disables caching entirely.
	if c.Cache.TTLSeconds < 0 {
		return fmt.Errorf("cache.ttl_seconds must be >= 0, got %d", c.Cache.TTLSeconds)
	}
	if c.Cache.Capacity < 1 {
		return fmt.Errorf("cache.capacity must be >= 1, got %d", c.Cache.Capacity)
	}

	switch c.Embeddings.Provider {
	case "openai", "ollama", "mock":
	default:
		return fmt.Errorf("embeddings.provider must be 'openai', 'ollama', or 'mock', got %q", c.Embeddings.Provider)
	}
	if c.Embeddings.Dimensions < 0 {
		return fmt.Errorf("embeddings.dimensions must be >= 0, got %d", c.Embeddings.Dimensions)
	}
	if c.Embeddings.BatchSize < 1 {
		return fmt.Errorf("embeddings.batch_size must be >= 1, got %d", c.Embeddings.BatchSize)
	}

	switch c.LLM.Provider {
	case "openai", "mock":
	default:
		return fmt.Errorf("llm.provider must be 'openai' or 'mock', got %q", c.LLM.Provider)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be between 0 and 2, got %f", c.LLM.Temperature)
	}
	if c.LLM.MaxTokens < 1 {
		return fmt.Errorf("llm.max_tokens must be >= 1, got %d", c.LLM.MaxTokens)
	}
	if c.LLM.ReserveTokens >= c.LLM.ContextBudgetTokens {
		return fmt.Errorf("llm.reserve_tokens (%d) must be < llm.context_budget_tokens (%d)",
			c.LLM.ReserveTokens, c.LLM.ContextBudgetTokens)
	}

	if c.Reranker.Enabled && c.Reranker.Endpoint == "" {
		return fmt.Errorf("reranker.endpoint is required when reranker.enabled is true")
	}

	if c.Registry.DebounceMS < 0 {
		return fmt.Errorf("registry.debounce_ms must be >= 0, got %d", c.Registry.DebounceMS)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %q", c.Logging.Level)
	}

	return nil
}

// DataDir returns the expanded data directory.
func (c *Config) DataDir() string {
	return expandPath(c.Paths.DataDir)
}

// IndexDir returns the expanded index directory, deriving it from the
// data directory when unset.
func (c *Config) IndexDir() string {
	if c.Paths.IndexDir != "" {
		return expandPath(c.Paths.IndexDir)
	}
	return filepath.Join(c.DataDir(), "indexes")
}

// RegistryPath returns the expanded registry database path, deriving
// it from the data directory when unset.
func (c *Config) RegistryPath() string {
	if c.Paths.RegistryPath != "" {
		return expandPath(c.Paths.RegistryPath)
	}
	return filepath.Join(c.DataDir(), "registry.db")
}

// LogFile returns the configured log path, deriving it from the data
// directory when unset.
func (c *Config) LogFile() string {
	if c.Logging.File != "" {
		return expandPath(c.Logging.File)
	}
	return filepath.Join(c.DataDir(), "logs", "engine.log")
}

// expandPath resolves a leading ~ to the home directory.
func expandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(path, "~"), "/"))
	}
	return path
}

// GetUserConfigDir returns the per-user config directory, honoring
// XDG_CONFIG_HOME.
func GetUserConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, UserConfigDirName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "."+UserConfigDirName)
	}
	return filepath.Join(home, ".config", UserConfigDirName)
}

// GetUserConfigPath returns the user config file path.
func GetUserConfigPath() string {
	return filepath.Join(GetUserConfigDir(), UserConfigFileName)
}

// UserConfigExists reports whether the user config file exists.
func UserConfigExists() bool {
	info, err := os.Stat(GetUserConfigPath())
	return err == nil && !info.IsDir()
}

// SaveUserConfig writes the config to the user config path, creating
// the directory as needed.
func (c *Config) SaveUserConfig() error {
	dir := GetUserConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(GetUserConfigPath())
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	return c.WriteYAML(f)
}

// WriteYAML writes the config as YAML.
func (c *Config) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return enc.Close()
}
