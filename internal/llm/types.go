// Package llm provides the chat-completion client the engine consumes
// for answer generation and query decomposition.
package llm

import "context"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    string
	Content string
}

// ChatRequest is a provider-neutral chat-completion request.
type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
	Stop        []string
}

// Usage reports token accounting from the provider.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ChatResponse carries the generated text and usage.
type ChatResponse struct {
	Content string
	Usage   Usage
}

// Client is the chat-completion interface. Implementations must return
// an error on empty choices or nil content rather than an empty string.
type Client interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	Available(ctx context.Context) bool
	Close() error
}
