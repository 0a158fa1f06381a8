package answer

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/quarry-search/quarry/internal/llm"
)

// systemPrompt constrains the model to grounded, citation-tagged
// answers without letter-style framing.
const systemPrompt = `You answer questions strictly from the provided document excerpts.

Rules:
- Cite every claim with its source tag in the exact form [Source N]. Never invent sources or page numbers.
- If the excerpts do not contain the answer, say so plainly.
- No greetings, no signatures, no closing phrases.
- When the question concerns an image, drawing, drawer, tool, or part number, prefer the IMAGE CONTENT section.
- Synthesize across excerpts instead of quoting one block verbatim.
- Answer in the language of the question, including transliterated questions.`

// stopSequences cut letter-style closings at the provider.
var stopSequences = []string{
	"Best regards",
	"Thank you",
	"Please let me know",
	"If you have any other questions",
}

// closingPhrases are removed from the output when the provider's stop
// sequences miss (case differences, mid-stream flushes).
var closingPhrases = []string{
	"Best regards",
	"Kind regards",
	"Sincerely",
	"Thank you for",
	"Please let me know",
	"If you have any other questions",
	"I hope this helps",
}

var signatureBlockRe = regexp.MustCompile(`(?is)\n\s*(best regards|kind regards|sincerely)[,.]?\s*(\[your name\]|\n.*)?$`)

// GenerateOptions override the per-request generation parameters.
type GenerateOptions struct {
	Model       string
	Temperature *float64
	MaxTokens   int

	// Language forces the answer language; empty follows the question.
	Language string
}

// Generator produces the final answer from the packed context.
type Generator struct {
	client      llm.Client
	model       string
	temperature float64
	maxTokens   int
}

// NewGenerator creates a generator with the default model parameters.
func NewGenerator(client llm.Client, model string, temperature float64, maxTokens int) *Generator {
	if temperature == 0 {
		temperature = 0.1
	}
	if maxTokens <= 0 {
		maxTokens = 2500
	}
	return &Generator{client: client, model: model, temperature: temperature, maxTokens: maxTokens}
}

// Generate asks the model for an answer grounded in packedContext.
func (g *Generator) Generate(ctx context.Context, query, packedContext string, opts GenerateOptions) (string, llm.Usage, error) {
	model := g.model
	if opts.Model != "" {
		model = opts.Model
	}
	temperature := g.temperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	maxTokens := g.maxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}

	prompt := systemPrompt
	if opts.Language != "" {
		prompt = strings.Replace(prompt,
			"- Answer in the language of the question, including transliterated questions.",
			fmt.Sprintf("- Answer in %s regardless of the question's language.", opts.Language), 1)
	}

	resp, err := g.client.Chat(ctx, llm.ChatRequest{
		Model: model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: prompt},
			{Role: llm.RoleUser, Content: fmt.Sprintf("Document excerpts:\n\n%s\n\nQuestion: %s", packedContext, query)},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Stop:        stopSequences,
	})
	if err != nil {
		return "", llm.Usage{}, err
	}

	return PostProcess(resp.Content), resp.Usage, nil
}

// PostProcess strips letter-style closings the model slipped past the
// stop sequences.
func PostProcess(answer string) string {
	lower := strings.ToLower(answer)
	cut := len(answer)
	for _, phrase := range closingPhrases {
		if pos := strings.Index(lower, strings.ToLower(phrase)); pos >= 0 && pos < cut {
			cut = pos
		}
	}
	answer = answer[:cut]
	answer = signatureBlockRe.ReplaceAllString(answer, "")
	return strings.TrimSpace(strings.TrimRight(strings.TrimSpace(answer), ","))
}
