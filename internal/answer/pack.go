// Package answer assembles the final response: context packing under a
// token budget, LLM invocation, citation dedup, and citation ranking.
package answer

import (
	"fmt"
	"strings"

	"github.com/quarry-search/quarry/internal/cite"
	"github.com/quarry-search/quarry/internal/token"
)

// Packing defaults: a 128k window minus a reserve for the prompt
// scaffold and the response.
const (
	DefaultContextBudget = 128000
	DefaultReserveTokens = 28000

	blockSeparator = "\n\n---\n\n"

	imageSectionHeader = "IMAGE CONTENT (OCR TEXT EXTRACTED FROM IMAGES):\n\n"

	// boundarySearchPct: a truncation boundary is only taken when it
	// keeps at least this fraction of the hard limit.
	boundarySearchPct = 0.8
)

// truncationBoundaries, most preferred first.
var truncationBoundaries = []string{blockSeparator, "\n\n", ". ", "\n"}

// Packer renders citations into the LLM context under a token budget.
type Packer struct {
	counter token.Counter
	budget  int
}

// NewPacker creates a packer. budget is the usable token count after
// the reserve is subtracted.
func NewPacker(counter token.Counter, contextBudget, reserve int) *Packer {
	if contextBudget <= 0 {
		contextBudget = DefaultContextBudget
	}
	if reserve <= 0 {
		reserve = DefaultReserveTokens
	}
	budget := contextBudget - reserve
	if budget < 1000 {
		budget = 1000
	}
	if counter == nil {
		counter = token.EstimateCounter{}
	}
	return &Packer{counter: counter, budget: budget}
}

// Packed is the rendered context.
type Packed struct {
	Text      string
	Tokens    int
	Truncated bool
}

// Pack renders `[Source i: filename (Page p)]` blocks. Image chunks are
// grouped under a leading image section which survives truncation in
// full; the main text is cut from the tail at the nearest boundary.
func (p *Packer) Pack(citations []cite.Citation) Packed {
	var imageBlocks, textBlocks []string
	for _, c := range citations {
		block := fmt.Sprintf("[Source %d: %s (Page %d)]\n%s", c.ID, c.Source, c.Page, c.FullText)
		if c.ContentType == cite.ContentImage {
			imageBlocks = append(imageBlocks, block)
		} else {
			textBlocks = append(textBlocks, block)
		}
	}

	imageSection := ""
	if len(imageBlocks) > 0 {
		imageSection = imageSectionHeader + strings.Join(imageBlocks, blockSeparator) + blockSeparator
	}
	textSection := strings.Join(textBlocks, blockSeparator)

	full := imageSection + textSection
	if tokens := p.counter.Count(full); tokens <= p.budget {
		return Packed{Text: full, Tokens: tokens}
	}

	imageTokens := p.counter.Count(imageSection)
	if imageTokens > p.budget {
		// Even the image section alone overflows: uniform truncation.
		text := p.truncateToTokens(full, p.budget)
		return Packed{Text: text, Tokens: p.counter.Count(text), Truncated: true}
	}

	remaining := p.budget - imageTokens
	text := imageSection + p.truncateToTokens(textSection, remaining)
	return Packed{Text: text, Tokens: p.counter.Count(text), Truncated: true}
}

// truncateToTokens cuts text from the tail until it fits, snapping to
// the best boundary near the cut.
func (p *Packer) truncateToTokens(text string, maxTokens int) string {
	tokens := p.counter.Count(text)
	if tokens <= maxTokens {
		return text
	}

	charLimit := len(text) * maxTokens / tokens
	for charLimit > 0 {
		candidate := cutAtBoundary(text, charLimit)
		if p.counter.Count(candidate) <= maxTokens {
			return candidate
		}
		charLimit = charLimit * 9 / 10
	}
	return ""
}

// cutAtBoundary cuts at the latest occurrence of the most preferred
// boundary within the final stretch of the limit, falling back to a
// hard cut.
func cutAtBoundary(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	window := text[:limit]
	minPos := int(float64(limit) * boundarySearchPct)

	for _, boundary := range truncationBoundaries {
		if pos := strings.LastIndex(window, boundary); pos >= minPos {
			return strings.TrimSpace(window[:pos])
		}
	}
	return strings.TrimSpace(window)
}
