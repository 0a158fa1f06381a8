// Package token counts tokens for context-budget packing.
package token

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Counter reports how many tokens a text occupies for a given model.
type Counter interface {
	Count(text string) int
}

// estimateDivisor approximates tokens for English-like text when no
// tokenizer is available.
const estimateDivisor = 4

// TiktokenCounter counts with the model's BPE encoding. Encoding data
// is fetched lazily; when it cannot be loaded (offline environments)
// the counter falls back to a bytes/4 estimate.
type TiktokenCounter struct {
	model string

	once sync.Once
	enc  *tiktoken.Tiktoken
}

// Verify interface implementation at compile time
var _ Counter = (*TiktokenCounter)(nil)

// NewCounter creates a counter for the model.
func NewCounter(model string) *TiktokenCounter {
	return &TiktokenCounter{model: model}
}

func (c *TiktokenCounter) encoding() *tiktoken.Tiktoken {
	c.once.Do(func() {
		enc, err := tiktoken.EncodingForModel(c.model)
		if err != nil {
			enc, err = tiktoken.GetEncoding("cl100k_base")
			if err != nil {
				return
			}
		}
		c.enc = enc
	})
	return c.enc
}

// Count returns the token count of text.
func (c *TiktokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	if enc := c.encoding(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return Estimate(text)
}

// Estimate is the tokenizer-free approximation used as fallback and in
// pre-flight sizing.
func Estimate(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / estimateDivisor
	if n == 0 {
		n = 1
	}
	return n
}

// EstimateCounter always uses the bytes/4 approximation. Tests and
// offline paths use it to keep counts deterministic.
type EstimateCounter struct{}

// Verify interface implementation at compile time
var _ Counter = (*EstimateCounter)(nil)

// Count returns the estimated token count of text.
func (EstimateCounter) Count(text string) int { return Estimate(text) }
