package cite

import (
	"context"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/quarry-search/quarry/internal/embed"
	"github.com/quarry-search/quarry/internal/search"
	"github.com/quarry-search/quarry/internal/store"
)

// DefaultSnippetMaxChars bounds display snippets.
const DefaultSnippetMaxChars = 500

// keywordStemLen: keywords at least this long also match by prefix, so
// "calibration" finds "calibrated".
const keywordStemLen = 5

var imageMarkerRe = regexp.MustCompile(`<!--\s*image\s*-->`)

func containsImageMarker(text string) bool {
	return imageMarkerRe.MatchString(text)
}

// Snippeter extracts display snippets. With an embedder it picks the
// sentences closest to the query; without one (or on failure) it falls
// back to a keyword-centered window.
type Snippeter struct {
	embedder embed.Embedder
	maxChars int
	logger   *slog.Logger
}

// NewSnippeter creates a snippeter. A nil embedder skips the semantic
// path entirely.
func NewSnippeter(embedder embed.Embedder, maxChars int, logger *slog.Logger) *Snippeter {
	if maxChars <= 0 {
		maxChars = DefaultSnippetMaxChars
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Snippeter{embedder: embedder, maxChars: maxChars, logger: logger}
}

// Snippet returns the display snippet for a chunk.
func (s *Snippeter) Snippet(ctx context.Context, c *store.Chunk, query string, queryVec []float32) string {
	text := snippetText(c, query)
	text = stripMarkers(text)

	if len(text) <= s.maxChars {
		return strings.TrimSpace(text)
	}

	if s.embedder != nil && len(queryVec) > 0 {
		if snippet, err := s.semanticSnippet(ctx, text, query, queryVec); err == nil && snippet != "" {
			return snippet
		} else if err != nil {
			s.logger.Debug("semantic_snippet_failed", "error", err)
		}
	}

	if snippet := s.keywordSnippet(text, query); snippet != "" {
		return snippet
	}
	return truncateAtBoundary(text, s.maxChars) + "..."
}

// snippetText prefers the English rendering for an English query over
// a non-English document.
func snippetText(c *store.Chunk, query string) string {
	if c.TextEnglish != "" && c.Language != "" && c.Language != "eng" && isMostlyASCII(query) {
		return c.TextEnglish
	}
	return c.Text
}

func isMostlyASCII(s string) bool {
	if s == "" {
		return true
	}
	for _, r := range s {
		if unicode.IsLetter(r) && r >= 128 {
			return false
		}
	}
	return true
}

func stripMarkers(text string) string {
	text = pageMarkerRe.ReplaceAllString(text, " ")
	text = imageMarkerRe.ReplaceAllString(text, " ")
	return strings.Join(strings.Fields(text), " ")
}

// semanticSnippet embeds each sentence and concatenates the best
// scoring ones, in document order, up to the limit.
func (s *Snippeter) semanticSnippet(ctx context.Context, text, query string, queryVec []float32) (string, error) {
	sentences := splitSentences(text)
	if len(sentences) < 2 {
		return "", nil
	}

	vectors, err := s.embedder.EmbedDocuments(ctx, sentences)
	if err != nil {
		return "", err
	}
	if len(vectors) != len(sentences) {
		return "", nil
	}

	keywords := search.Keywords(query)

	type scored struct {
		index int
		score float64
	}
	ranked := make([]scored, len(sentences))
	for i, sent := range sentences {
		score := embed.CosineSimilarity(queryVec, vectors[i])
		score += keywordBoost(sent, keywords)
		ranked[i] = scored{index: i, score: score}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	var picked []int
	used := 0
	for _, r := range ranked {
		cost := len(sentences[r.index]) + 1
		if used+cost > s.maxChars && len(picked) > 0 {
			continue
		}
		picked = append(picked, r.index)
		used += cost
		if used >= s.maxChars {
			break
		}
	}
	sort.Ints(picked)

	var parts []string
	for _, i := range picked {
		parts = append(parts, sentences[i])
	}
	snippet := strings.Join(parts, " ")
	if len(snippet) > s.maxChars {
		snippet = truncateAtBoundary(snippet, s.maxChars)
	}

	if len(picked) > 0 && picked[0] > 0 {
		snippet = "..." + snippet
	}
	if len(picked) > 0 && picked[len(picked)-1] < len(sentences)-1 {
		snippet += "..."
	}
	return snippet, nil
}

// keywordBoost adds up to +0.2 for keyword overlap, so lexically exact
// sentences win ties against merely similar ones.
func keywordBoost(sentence string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	lower := strings.ToLower(sentence)
	hits := 0
	for _, kw := range keywords {
		if keywordInText(lower, kw) {
			hits++
		}
	}
	boost := 0.05 * float64(hits)
	if boost > 0.2 {
		boost = 0.2
	}
	return boost
}

// keywordInText matches exactly, or by stem prefix for longer words.
func keywordInText(lowerText, keyword string) bool {
	if strings.Contains(lowerText, keyword) {
		return true
	}
	if len(keyword) >= keywordStemLen {
		return strings.Contains(lowerText, keyword[:keywordStemLen])
	}
	return false
}

// keywordSnippet centers a window on the median keyword occurrence and
// expands it to sentence boundaries.
func (s *Snippeter) keywordSnippet(text, query string) string {
	keywords := search.Keywords(query)
	if len(keywords) == 0 {
		return ""
	}

	lower := strings.ToLower(text)
	var positions []int
	for _, kw := range keywords {
		needle := kw
		if len(kw) >= keywordStemLen {
			needle = kw[:keywordStemLen]
		}
		offset := 0
		for {
			idx := strings.Index(lower[offset:], needle)
			if idx < 0 {
				break
			}
			positions = append(positions, offset+idx)
			offset += idx + len(needle)
		}
	}
	if len(positions) == 0 {
		return ""
	}
	sort.Ints(positions)
	center := positions[len(positions)/2]

	half := s.maxChars / 2
	start := center - half
	if start < 0 {
		start = 0
	}
	end := center + half
	if end > len(text) {
		end = len(text)
	}

	start = expandToSentenceStart(text, start)
	end = expandToSentenceEnd(text, end)
	if end-start > s.maxChars+100 {
		end = start + s.maxChars
	}

	snippet := strings.TrimSpace(text[start:end])
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(text) {
		snippet += "..."
	}
	return snippet
}

// splitSentences is abbreviation and decimal aware: a period followed
// by whitespace ends a sentence unless it terminates a single-letter
// abbreviation or sits inside a number.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue // decimal, URL, or mid-token period
		}
		if r == '.' && i >= 1 && unicode.IsUpper(runes[i-1]) &&
			(i < 2 || !unicode.IsLetter(runes[i-2])) {
			continue // single-letter abbreviation such as "J. Smith"
		}
		sentence := strings.TrimSpace(string(runes[start : i+1]))
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
		start = i + 1
	}
	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}

func expandToSentenceStart(text string, pos int) int {
	for i := pos; i > 0 && pos-i < 200; i-- {
		if text[i-1] == '.' || text[i-1] == '!' || text[i-1] == '?' || text[i-1] == '\n' {
			return i
		}
	}
	return pos
}

func expandToSentenceEnd(text string, pos int) int {
	for i := pos; i < len(text) && i-pos < 200; i++ {
		if text[i] == '.' || text[i] == '!' || text[i] == '?' {
			return i + 1
		}
	}
	return pos
}

// truncateAtBoundary cuts at the latest space before the limit.
func truncateAtBoundary(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	if text[limit] == ' ' {
		return strings.TrimSpace(text[:limit])
	}
	cut := strings.LastIndexByte(text[:limit], ' ')
	if cut < limit/2 {
		cut = limit
	}
	return strings.TrimSpace(text[:cut])
}
