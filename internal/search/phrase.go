package search

import (
	"strings"
	"unicode"
)

// stopwords dropped before phrase scoring. English plus Spanish; the
// corpus is bilingual and queries arrive in either language.
var stopwords = map[string]bool{
	// English
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "can": true, "her": true,
	"was": true, "one": true, "our": true, "out": true, "his": true,
	"has": true, "had": true, "how": true, "who": true, "its": true,
	"did": true, "get": true, "may": true, "him": true, "she": true,
	"what": true, "which": true, "their": true, "will": true,
	"would": true, "there": true, "could": true, "other": true,
	"about": true, "this": true, "that": true, "with": true,
	"from": true, "they": true, "been": true, "have": true,
	"were": true, "when": true, "where": true, "does": true,
	// Spanish
	"los": true, "las": true, "una": true, "uno": true, "unos": true,
	"unas": true, "del": true, "con": true, "por": true, "para": true,
	"que": true, "como": true, "más": true, "pero": true, "sus": true,
	"les": true, "este": true, "esta": true, "estos": true,
	"estas": true, "ese": true, "esa": true, "son": true, "está": true,
	"donde": true, "cuando": true, "entre": true, "sobre": true,
	"también": true, "hay": true,
}

// Keywords tokenizes text and keeps the content words: longer than two
// chars, not stopwords, lowercased. Shared by fan-out ordering,
// snippet extraction, and citation ranking.
func Keywords(text string) []string {
	return contentWords(text)
}

// contentWords tokenizes text and keeps words longer than two chars
// that are not stopwords, lowercased.
func contentWords(text string) []string {
	var words []string
	for _, w := range tokenize(text) {
		if len(w) > 2 && !stopwords[w] {
			words = append(words, w)
		}
	}
	return words
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// PhraseMatchScore rates how literally the query appears in the text:
// full phrase +10, each adjacent bigram +3, each bigram with one
// intervening word +1.5, each content word present +0.5. Used as the
// primary sort key when merging fan-out results so exact matches beat
// higher fused scores from looser matches.
func PhraseMatchScore(query, text string) float64 {
	queryWords := contentWords(query)
	if len(queryWords) == 0 {
		return 0
	}

	textWords := tokenize(text)
	positions := make(map[string][]int, len(textWords))
	for i, w := range textWords {
		positions[w] = append(positions[w], i)
	}

	var score float64

	if len(queryWords) > 1 {
		phrase := strings.Join(queryWords, " ")
		if strings.Contains(strings.Join(textWords, " "), phrase) {
			score += 10
		}

		for i := 0; i < len(queryWords)-1; i++ {
			gap := bigramGap(positions, queryWords[i], queryWords[i+1])
			switch gap {
			case 1:
				score += 3
			case 2:
				score += 1.5
			}
		}
	}

	for _, w := range queryWords {
		if len(positions[w]) > 0 {
			score += 0.5
		}
	}
	return score
}

// bigramGap returns the smallest forward distance from an occurrence of
// a to an occurrence of b (1 = adjacent, 2 = one word between), 0 when
// neither arrangement exists. Position lists are ascending.
func bigramGap(positions map[string][]int, a, b string) int {
	bPos := positions[b]
	if len(bPos) == 0 {
		return 0
	}
	best := 0
	for _, pa := range positions[a] {
		for _, pb := range bPos {
			d := pb - pa
			if d == 1 {
				return 1
			}
			if d == 2 && best == 0 {
				best = 2
			}
		}
	}
	return best
}
