package embed

import (
	"fmt"
	"time"

	"github.com/quarry-search/quarry/internal/config"
)

// NewFromConfig constructs the configured embedding provider wrapped
// in the LRU cache. The provider is not contacted; reachability is a
// doctor/preflight concern.
func NewFromConfig(cfg *config.Config) (Embedder, error) {
	ec := cfg.Embeddings
	timeout := time.Duration(ec.TimeoutSeconds) * time.Second

	var inner Embedder
	switch ec.Provider {
	case "openai":
		e, err := NewOpenAIEmbedder(OpenAIConfig{
			Model:      ec.Model,
			BaseURL:    ec.BaseURL,
			APIKeyEnv:  ec.APIKeyEnv,
			Dimensions: ec.Dimensions,
			Timeout:    timeout,
		})
		if err != nil {
			return nil, err
		}
		inner = e
	case "ollama":
		inner = NewOllamaEmbedder(OllamaConfig{
			Host:       ec.OllamaHost,
			Model:      ec.Model,
			Dimensions: ec.Dimensions,
			Timeout:    timeout,
		})
	case "mock":
		dims := ec.Dimensions
		if dims == 0 {
			dims = 8
		}
		inner = NewMockEmbedder(dims)
	default:
		return nil, fmt.Errorf("unknown embeddings provider %q", ec.Provider)
	}

	return NewCachedEmbedder(inner, ec.CacheSize)
}
