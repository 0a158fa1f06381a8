package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Edge cases around file loading and serialization that could fail
// silently: empty files, unknown keys, and round-trip fidelity.

func TestLoad_EmptyFile_KeepsDefaults(t *testing.T) {
	// Given: an empty config file
	clearQuarryEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(""), 0o644))

	// When: loading it explicitly
	cfg, err := Load(path)

	// Then: everything stays at defaults
	require.NoError(t, err)
	assert.Equal(t, NewConfig(), cfg)
}

func TestLoad_UnknownKeysIgnored(t *testing.T) {
	// Forward compatibility: newer configs may carry keys this build
	// does not know about.
	clearQuarryEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
search:
  default_k: 15
  some_future_knob: true
experimental:
  quantum: enabled
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 15, cfg.Search.DefaultK)
}

func TestLoad_PathIsDirectory_ReturnsError(t *testing.T) {
	clearQuarryEnv(t)
	_, err := Load(t.TempDir())
	assert.Error(t, err)
}

func TestLoad_IntegerWeightsParseAsFloats(t *testing.T) {
	clearQuarryEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "search:\n  semantic_weight: 1\n  keyword_weight: 0\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1.0, cfg.Search.SemanticWeight)
	assert.Equal(t, 0.0, cfg.Search.KeywordWeight)
}

func TestLoad_ExplicitZeroMinScoreIsValid(t *testing.T) {
	clearQuarryEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "search:\n  min_score: 0.0\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.0, cfg.Search.MinScore)
}

func TestWriteYAML_RoundTripPreservesEveryField(t *testing.T) {
	// Given: a config with non-default values in every section
	orig := NewConfig()
	orig.Paths.DataDir = "/srv/quarry"
	orig.Search.DefaultK = 17
	orig.Search.LexicalBackend = BackendFTS5
	orig.Search.RecreateOnMismatch = true
	orig.Search.Agentic = false
	orig.Ranking.Boosts.PhraseSlop1 = 12.5
	orig.Ranking.Regimes.PackedRangePct = 0.2
	orig.Cache.Capacity = 64
	orig.Embeddings.Provider = "ollama"
	orig.Embeddings.Model = "nomic-embed-text"
	orig.Embeddings.Dimensions = 768
	orig.LLM.DeepModel = "gpt-4.1"
	orig.LLM.Temperature = 0.3
	orig.Reranker.Enabled = true
	orig.Reranker.Endpoint = "http://localhost:9000/rerank"
	orig.Registry.DebounceMS = 250
	orig.Logging.Level = "warn"
	orig.Logging.Console = true

	// When: writing YAML and loading it back over fresh defaults
	var buf bytes.Buffer
	require.NoError(t, orig.WriteYAML(&buf))

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	loaded := NewConfig()
	require.NoError(t, loaded.loadFile(path))

	// Then: the structs are identical
	assert.Equal(t, orig, loaded)
}

func TestConfig_JSONUsesSnakeCaseKeys(t *testing.T) {
	data, err := json.Marshal(NewConfig())
	require.NoError(t, err)

	s := string(data)
	assert.Contains(t, s, `"semantic_weight"`)
	assert.Contains(t, s, `"lexical_backend"`)
	assert.Contains(t, s, `"ttl_seconds"`)
	assert.Contains(t, s, `"context_budget_tokens"`)
	assert.NotContains(t, s, `"SemanticWeight"`)
}

func TestLoad_RepeatedLoadsAreIndependent(t *testing.T) {
	// Load must not leak state between calls.
	clearQuarryEnv(t)
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("search:\n  default_k: 50\n"), 0o644))

	first, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 50, first.Search.DefaultK)

	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	second, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 10, second.Search.DefaultK)
}
