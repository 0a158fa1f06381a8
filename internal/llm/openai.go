package llm

import (
	"context"
	"fmt"
	"os"
	"time"

	openai "github.com/sashabaranov/go-openai"

	qerrors "github.com/quarry-search/quarry/internal/errors"
)

// OpenAIConfig configures the OpenAI-compatible chat provider.
type OpenAIConfig struct {
	// BaseURL overrides the endpoint for OpenAI-compatible servers.
	BaseURL string

	// APIKeyEnv names the environment variable holding the key.
	APIKeyEnv string

	// Timeout bounds one completion request. Generation is the longest
	// step of a query; this is effectively the request ceiling.
	Timeout time.Duration
}

// OpenAIClient implements Client on the go-openai SDK.
type OpenAIClient struct {
	client  *openai.Client
	timeout time.Duration
}

// Verify interface implementation at compile time
var _ Client = (*OpenAIClient)(nil)

// NewOpenAIClient creates the provider. A missing API key is a
// configuration error and fails construction.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	keyEnv := cfg.APIKeyEnv
	if keyEnv == "" {
		keyEnv = "OPENAI_API_KEY"
	}
	apiKey := os.Getenv(keyEnv)
	if apiKey == "" {
		return nil, qerrors.New(qerrors.ErrCodeCredentialsMissing,
			fmt.Sprintf("LLM API key not set (env %s)", keyEnv), nil).
			WithSuggestion(fmt.Sprintf("export %s=<key>", keyEnv))
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}

	return &OpenAIClient{
		client:  openai.NewClientWithConfig(clientCfg),
		timeout: timeout,
	}, nil
}

// Chat executes one chat completion.
func (c *OpenAIClient) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
		Stop:        req.Stop,
	})
	if err != nil {
		return nil, qerrors.New(qerrors.ErrCodeGenerationFailed,
			"chat completion failed", err)
	}

	if len(resp.Choices) == 0 {
		return nil, qerrors.New(qerrors.ErrCodeGenerationFailed,
			"chat completion returned no choices", nil)
	}
	content := resp.Choices[0].Message.Content
	if content == "" {
		return nil, qerrors.New(qerrors.ErrCodeGenerationFailed,
			"chat completion returned empty content", nil)
	}

	return &ChatResponse{
		Content: content,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// Available probes the models endpoint.
func (c *OpenAIClient) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := c.client.ListModels(ctx)
	return err == nil
}

// Close releases resources.
func (c *OpenAIClient) Close() error { return nil }
