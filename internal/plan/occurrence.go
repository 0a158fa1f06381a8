package plan

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/quarry-search/quarry/internal/store"
)

// Occurrence enumeration defaults.
const (
	DefaultOccurrenceMaxResults = 200
	DefaultOccurrenceContext    = 80
)

// Occurrence is one literal match of a term in a document.
type Occurrence struct {
	Source     string
	DocumentID string
	Page       int
	ImageIndex int
	StartChar  int
	Context    string
}

// OccurrenceResult is the exhaustive enumeration of a term.
type OccurrenceResult struct {
	Term        string
	Occurrences []Occurrence
	Truncated   bool
	Answer      string
}

// FindOccurrences enumerates every literal match of term across the
// chunks: whole-word for single tokens, substring for phrases, always
// case-insensitive. No LLM is involved; the answer is synthesized.
func FindOccurrences(term string, chunks []*store.Chunk, maxResults, contextChars int) OccurrenceResult {
	if maxResults <= 0 {
		maxResults = DefaultOccurrenceMaxResults
	}
	if contextChars <= 0 {
		contextChars = DefaultOccurrenceContext
	}

	needle := foldTerm(strings.TrimSpace(term))
	result := OccurrenceResult{Term: term}
	if needle == "" {
		result.Answer = "No search term given."
		return result
	}
	wholeWord := !strings.ContainsAny(needle, " \t")

	sources := map[string]bool{}
	for _, c := range chunks {
		haystack, origAt := foldText(c.Text)
		offset := 0
		for {
			idx := strings.Index(haystack[offset:], needle)
			if idx < 0 {
				break
			}
			pos := offset + idx
			offset = pos + len(needle)

			if wholeWord && !atWordBoundary(haystack, pos, len(needle)) {
				continue
			}

			// Byte positions in the folded text can drift from the
			// original when lowercasing changes a rune's width; map
			// the match back before slicing the original.
			origStart := origAt[pos]
			origLen := origAt[pos+len(needle)] - origStart

			imageIndex := 0
			if c.ImageRef != nil {
				imageIndex = c.ImageRef.ImageIndex
			}
			sources[c.Source] = true
			result.Occurrences = append(result.Occurrences, Occurrence{
				Source:     c.Source,
				DocumentID: c.DocumentID,
				Page:       pageAt(c, origStart),
				ImageIndex: imageIndex,
				StartChar:  c.StartChar + origStart,
				Context:    contextWindow(c.Text, origStart, origLen, contextChars),
			})
		}
	}

	sort.SliceStable(result.Occurrences, func(i, j int) bool {
		a, b := result.Occurrences[i], result.Occurrences[j]
		if a.Page != b.Page {
			return a.Page < b.Page
		}
		if a.ImageIndex != b.ImageIndex {
			return a.ImageIndex < b.ImageIndex
		}
		return a.StartChar < b.StartChar
	})

	if len(result.Occurrences) > maxResults {
		result.Occurrences = result.Occurrences[:maxResults]
		result.Truncated = true
	}

	result.Answer = occurrenceAnswer(term, len(result.Occurrences), result.Truncated, sources)
	return result
}

// pageAt maps a character position inside the chunk to a page using
// the chunk's page blocks, falling back to the chunk page.
func pageAt(c *store.Chunk, pos int) int {
	abs := c.StartChar + pos
	for _, b := range c.PageBlocks {
		if abs >= b.StartChar && abs < b.EndChar {
			return b.Page
		}
	}
	if c.Page >= 1 {
		return c.Page
	}
	return 1
}

// foldTerm lowercases a search term rune by rune.
func foldTerm(s string) string {
	return strings.Map(unicode.ToLower, s)
}

// foldText lowercases text rune by rune and returns a byte-offset map
// from every folded position back to the original text, plus one
// sentinel entry for the end.
func foldText(s string) (string, []int) {
	var b strings.Builder
	b.Grow(len(s))
	origAt := make([]int, 0, len(s)+1)
	for i, r := range s {
		low := unicode.ToLower(r)
		for j := 0; j < utf8.RuneLen(low); j++ {
			origAt = append(origAt, i)
		}
		b.WriteRune(low)
	}
	origAt = append(origAt, len(s))
	return b.String(), origAt
}

func atWordBoundary(text string, pos, length int) bool {
	if pos > 0 {
		if r, _ := utf8.DecodeLastRuneInString(text[:pos]); isWordChar(r) {
			return false
		}
	}
	if end := pos + length; end < len(text) {
		if r, _ := utf8.DecodeRuneInString(text[end:]); isWordChar(r) {
			return false
		}
	}
	return true
}

func isWordChar(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsNumber(r) || r == '_'
}

// contextWindow returns the match with surrounding characters, split
// evenly before and after.
func contextWindow(text string, pos, length, contextChars int) string {
	half := contextChars / 2
	start := pos - half
	if start < 0 {
		start = 0
	}
	end := pos + length + half
	if end > len(text) {
		end = len(text)
	}
	window := strings.TrimSpace(text[start:end])
	if start > 0 {
		window = "..." + window
	}
	if end < len(text) {
		window += "..."
	}
	return window
}

func occurrenceAnswer(term string, n int, truncated bool, sources map[string]bool) string {
	where := "the selected documents"
	if len(sources) == 1 {
		for s := range sources {
			where = s
		}
	}
	answer := fmt.Sprintf("Found %d occurrence(s) of '%s' in %s.", n, term, where)
	if truncated {
		answer += fmt.Sprintf(" Showing the first %d.", n)
	}
	return answer
}
