package preflight

import (
	"context"
	"fmt"
	"os"
)

// Availability is the slice of a provider client the checker needs.
// Both the chat client and the reranker satisfy it.
type Availability interface {
	Available(ctx context.Context) bool
}

// EmbedderInfo describes the configured embedding provider.
type EmbedderInfo interface {
	Availability
	Dimensions() int
	ModelName() string
}

// Providers bundles the live clients for provider-side checks.
// Nil fields skip the corresponding check.
type Providers struct {
	Embedder EmbedderInfo
	LLM      Availability
	LLMModel string

	RerankerEnabled bool
	RerankerKeyEnv  string
}

// RunProviders checks that the configured remote providers are
// reachable. In offline mode every provider check is reported as
// skipped rather than contacted.
func (c *Checker) RunProviders(ctx context.Context, p Providers) []CheckResult {
	var results []CheckResult

	if p.Embedder != nil {
		results = append(results, c.CheckEmbedder(ctx, p.Embedder))
	}
	if p.LLM != nil {
		results = append(results, c.CheckLLM(ctx, p.LLM, p.LLMModel))
	}
	results = append(results, c.CheckReranker(p.RerankerEnabled, p.RerankerKeyEnv))

	return results
}

// CheckEmbedder verifies the embedding provider answers. Search cannot
// run without embeddings, so an unreachable provider is a hard failure.
func (c *Checker) CheckEmbedder(ctx context.Context, e EmbedderInfo) CheckResult {
	result := CheckResult{
		Name:     "embedder",
		Required: true,
	}

	if c.offline {
		result.Status = StatusWarn
		result.Message = "skipped (offline mode)"
		result.Required = false
		return result
	}

	if !e.Available(ctx) {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s unreachable", e.ModelName())
		result.Details = "Check the embeddings endpoint and API key in the config"
		return result
	}

	result.Status = StatusPass
	if dims := e.Dimensions(); dims > 0 {
		result.Message = fmt.Sprintf("%s ready (%d dimensions)", e.ModelName(), dims)
	} else {
		result.Message = fmt.Sprintf("%s ready (dimensions probed on first use)", e.ModelName())
	}
	return result
}

// CheckLLM verifies the chat provider answers. Retrieval still works
// without it, so this is a warning rather than a failure.
func (c *Checker) CheckLLM(ctx context.Context, client Availability, model string) CheckResult {
	result := CheckResult{
		Name:     "llm",
		Required: false,
	}

	if c.offline {
		result.Status = StatusWarn
		result.Message = "skipped (offline mode)"
		return result
	}

	if !client.Available(ctx) {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s unreachable (answers unavailable, search still works)", model)
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s ready", model)
	return result
}

// CheckReranker validates reranker configuration without contacting
// the service; the circuit breaker handles runtime failures.
func (c *Checker) CheckReranker(enabled bool, keyEnv string) CheckResult {
	result := CheckResult{
		Name:     "reranker",
		Required: false,
	}

	if !enabled {
		result.Status = StatusPass
		result.Message = "disabled"
		return result
	}

	if keyEnv != "" && os.Getenv(keyEnv) == "" {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("enabled but %s is not set", keyEnv)
		result.Details = "Requests will fall back to fused ordering after repeated failures"
		return result
	}

	result.Status = StatusPass
	result.Message = "enabled"
	return result
}
