package answer

import (
	"strings"

	"github.com/quarry-search/quarry/internal/cite"
)

const mergedSnippetMax = 500

// Dedup collapses citations pointing at the same (source, page). The
// best-attributed representative survives; snippets merge. IDs are
// renumbered from 1. Running it twice yields the same result.
func Dedup(citations []cite.Citation) []cite.Citation {
	if len(citations) < 2 {
		return renumber(citations)
	}

	type key struct {
		source string
		page   int
	}

	order := make([]key, 0, len(citations))
	groups := make(map[key][]cite.Citation, len(citations))
	for _, c := range citations {
		k := key{c.Source, c.Page}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], c)
	}

	out := make([]cite.Citation, 0, len(order))
	for _, k := range order {
		group := groups[k]
		best := group[0]
		for _, c := range group[1:] {
			if betterRepresentative(c, best) {
				best = c
			}
		}
		best.Snippet = mergeSnippets(group)
		out = append(out, best)
	}
	return renumber(out)
}

// betterRepresentative prefers image-bearing citations, then the
// higher combined attribution confidence.
func betterRepresentative(a, b cite.Citation) bool {
	aImg, bImg := a.ImageRef != nil, b.ImageRef != nil
	if aImg != bImg {
		return aImg
	}
	return a.SourceConfidence+a.PageConfidence > b.SourceConfidence+b.PageConfidence
}

// mergeSnippets prefers a snippet that still carries location markers,
// else concatenates the distinct snippets up to the display limit.
func mergeSnippets(group []cite.Citation) string {
	if len(group) == 1 {
		return group[0].Snippet
	}

	for _, c := range group {
		if strings.Contains(c.Snippet, "--- Page") {
			return c.Snippet
		}
	}
	for _, c := range group {
		if strings.Contains(c.Snippet, "Image") && strings.Contains(c.Snippet, "Page") {
			return c.Snippet
		}
	}

	seen := make(map[string]bool, len(group))
	var merged string
	for _, c := range group {
		snippet := strings.TrimSpace(c.Snippet)
		if snippet == "" || seen[snippet] {
			continue
		}
		seen[snippet] = true
		if merged == "" {
			merged = snippet
			continue
		}
		if len(merged)+len(snippet)+5 > mergedSnippetMax {
			break
		}
		merged += " ... " + snippet
	}
	return merged
}

func renumber(citations []cite.Citation) []cite.Citation {
	out := make([]cite.Citation, len(citations))
	copy(out, citations)
	for i := range out {
		out[i].ID = i + 1
	}
	return out
}
