package cite

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/quarry-search/quarry/internal/store"
)

// Page markers and text patterns, ordered by specificity.
var (
	pageMarkerRe = regexp.MustCompile(`---\s*Page\s+(\d+)\s*---`)

	pageOfRe     = regexp.MustCompile(`(?i)\bPage\s+(\d+)\s+of\s+\d+\b`)
	pageRangeRe  = regexp.MustCompile(`(?i)\bPage\s+(\d+)\s*[-–]\s*\d+\b`)
	docPageRe    = regexp.MustCompile(`(?i)\b[\w.-]+\s+Page\s+(\d+)\b`)
	footerDashRe = regexp.MustCompile(`(?m)^\s*-\s*(\d+)\s*-\s*$`)
	pgAbbrevRe   = regexp.MustCompile(`(?i)\bpg\.?\s*(\d+)\b`)
	paginaRe     = regexp.MustCompile(`(?i)\bpágina\s+(\d+)\b`)
)

// Image fast-path thresholds: early chunks of a document that carry
// the first images are almost always page 1.
const (
	imagePageOneCharLimit = 2000
	previewChars          = 100
	blockPreviewChars     = 200
	jaccardThreshold      = 0.30
)

// PageContext carries what page extraction can validate against.
type PageContext struct {
	// PageCount is the document's page count, 0 when unknown.
	PageCount int

	// TotalChunks in the document, for the proportional heuristic.
	TotalChunks int

	// PageTexts optionally maps page number to page text, enabling the
	// bag-of-words tier. Usually nil.
	PageTexts map[int]string
}

// PageResult is the extracted page with its provenance.
type PageResult struct {
	Page       int
	Confidence float64
	Method     string
}

// ExtractPage recovers the page for a chunk via the tier chain. Every
// candidate is validated against the document's page count and the
// hard 1-10000 range; out-of-range candidates drop and the chain
// continues. The chain always produces a result: the final fallback is
// page 1 at 0.1.
func ExtractPage(c *store.Chunk, pctx PageContext) PageResult {
	signals := collectSignals(c)

	// Tier 1: explicit text marker.
	if m := pageMarkerRe.FindStringSubmatch(c.Text); m != nil {
		if page, ok := validPage(m[1], pctx); ok {
			return PageResult{Page: page, Confidence: 0.98, Method: MethodTextMarker}
		}
	}

	// Tier 2: ingestion page metadata, image fast-paths first.
	if r, ok := imageFastPath(c, pctx); ok {
		return r
	}
	if conf, ok := c.MetaFloat("page_confidence"); ok && conf >= 0.7 {
		if page := c.Page; pageInRange(page, pctx) {
			return PageResult{
				Page:       page,
				Confidence: crossValidate(page, conf, signals),
				Method:     MethodMetadata,
			}
		}
	}

	// Tier 3: char-position mapping over page blocks.
	if page, ok := pageFromBlocks(c); ok && pageInRange(page, pctx) {
		return PageResult{Page: page, Confidence: 1.0, Method: MethodCharPosition}
	}

	// Tier 4: explicit source_page metadata.
	if page, ok := c.MetaInt("source_page"); ok && pageInRange(page, pctx) {
		return PageResult{
			Page:       page,
			Confidence: crossValidate(page, 1.0, signals),
			Method:     MethodMetadata,
		}
	}

	// Tier 5: bag-of-words match against page texts.
	if page, ok := pageFromJaccard(c, pctx); ok {
		return PageResult{Page: page, Confidence: 0.9, Method: MethodHeuristic}
	}

	// Tier 6: page references in the text.
	if r, ok := pageFromPatterns(c.Text, pctx); ok {
		return r
	}

	// Tier 7: proportional position of the chunk in the document.
	if page, ok := proportionalPage(c, pctx); ok {
		return PageResult{Page: page, Confidence: 0.3, Method: MethodHeuristic}
	}

	// Tier 8: page 1.
	return PageResult{Page: 1, Confidence: 0.1, Method: MethodFallback}
}

// pageSignal is one corroborating source of a page number.
type pageSignal struct {
	page   int
	weight float64
}

// collectSignals gathers every independent page indication for
// cross-validation.
func collectSignals(c *store.Chunk) []pageSignal {
	var signals []pageSignal
	if page, ok := c.MetaInt("source_page"); ok && page >= MinPage {
		signals = append(signals, pageSignal{page, 1.0})
	}
	if c.Page >= MinPage {
		signals = append(signals, pageSignal{c.Page, 0.8})
	}
	if page, ok := pageFromBlocks(c); ok {
		signals = append(signals, pageSignal{page, 1.0})
	}
	if m := pageMarkerRe.FindStringSubmatch(c.Text); m != nil {
		if page, err := strconv.Atoi(m[1]); err == nil && page >= MinPage {
			signals = append(signals, pageSignal{page, 0.6})
		}
	}
	return signals
}

// crossValidate bumps confidence by 0.1 when at least two independent
// signals agree on the candidate, capped at 1.0.
func crossValidate(page int, conf float64, signals []pageSignal) float64 {
	agreeing := 0
	for _, s := range signals {
		if s.page == page {
			agreeing++
		}
	}
	if agreeing >= 2 {
		conf += 0.1
	}
	if conf > 1.0 {
		conf = 1.0
	}
	return conf
}

// imageFastPath resolves pages for OCR chunks from image metadata.
func imageFastPath(c *store.Chunk, pctx PageContext) (PageResult, bool) {
	if c.ContentType != store.ContentTypeImageOCR && c.ImageRef == nil {
		return PageResult{}, false
	}

	if c.ImageRef != nil && pageInRange(c.ImageRef.Page, pctx) {
		return PageResult{Page: c.ImageRef.Page, Confidence: 0.95, Method: MethodImageMetadata}, true
	}
	if page, ok := c.MetaInt("image_page"); ok && pageInRange(page, pctx) {
		return PageResult{Page: page, Confidence: 0.95, Method: MethodImageMetadata}, true
	}

	// First images of a document sit on page 1.
	imageIndex, hasIndex := c.MetaInt("image_index")
	if c.ImageRef != nil {
		imageIndex, hasIndex = c.ImageRef.ImageIndex, true
	}
	if c.StartChar < imagePageOneCharLimit || (hasIndex && imageIndex <= 1) {
		if pageInRange(1, pctx) {
			return PageResult{Page: 1, Confidence: 0.9, Method: MethodImageMetadata}, true
		}
	}
	return PageResult{}, false
}

// pageFromBlocks maps the chunk's char span to the page block with the
// largest overlap, requiring at least 10% of the span.
func pageFromBlocks(c *store.Chunk) (int, bool) {
	if len(c.PageBlocks) == 0 || c.EndChar <= c.StartChar {
		return 0, false
	}
	span := c.EndChar - c.StartChar

	bestPage, bestOverlap := 0, 0
	for _, b := range c.PageBlocks {
		lo, hi := max(c.StartChar, b.StartChar), min(c.EndChar, b.EndChar)
		if overlap := hi - lo; overlap > bestOverlap {
			bestOverlap = overlap
			bestPage = b.Page
		}
	}
	if bestPage < MinPage || bestOverlap*10 < span {
		return 0, false
	}
	return bestPage, true
}

// pageFromJaccard compares the chunk's opening against each page's
// opening with bag-of-words Jaccard similarity.
func pageFromJaccard(c *store.Chunk, pctx PageContext) (int, bool) {
	if len(pctx.PageTexts) == 0 {
		return 0, false
	}
	preview := wordSet(prefix(strings.ToLower(c.Text), previewChars))
	if len(preview) == 0 {
		return 0, false
	}

	bestPage, bestScore := 0, 0.0
	for page, text := range pctx.PageTexts {
		if !pageInRange(page, pctx) {
			continue
		}
		blockWords := wordSet(prefix(strings.ToLower(text), blockPreviewChars))
		if score := jaccard(preview, blockWords); score > bestScore {
			bestScore = score
			bestPage = page
		}
	}
	if bestScore > jaccardThreshold {
		return bestPage, true
	}
	return 0, false
}

// pageFromPatterns scans for page references, most specific first.
func pageFromPatterns(text string, pctx PageContext) (PageResult, bool) {
	patterns := []struct {
		re   *regexp.Regexp
		conf float64
	}{
		{pageOfRe, 0.85},
		{pageRangeRe, 0.75},
		{docPageRe, 0.65},
		{paginaRe, 0.6},
		{pgAbbrevRe, 0.5},
		{footerDashRe, 0.4},
	}
	for _, p := range patterns {
		if m := p.re.FindStringSubmatch(text); m != nil {
			if page, ok := validPage(m[1], pctx); ok {
				return PageResult{Page: page, Confidence: p.conf, Method: MethodHeuristic}, true
			}
		}
	}
	return PageResult{}, false
}

// proportionalPage spreads chunks evenly across the known page count.
func proportionalPage(c *store.Chunk, pctx PageContext) (int, bool) {
	if pctx.PageCount < 1 || pctx.TotalChunks < 1 || c.ChunkIndex < 0 {
		return 0, false
	}
	page := 1 + c.ChunkIndex*pctx.PageCount/pctx.TotalChunks
	if page > pctx.PageCount {
		page = pctx.PageCount
	}
	if !pageInRange(page, pctx) {
		return 0, false
	}
	return page, true
}

func validPage(digits string, pctx PageContext) (int, bool) {
	page, err := strconv.Atoi(digits)
	if err != nil || !pageInRange(page, pctx) {
		return 0, false
	}
	return page, true
}

func pageInRange(page int, pctx PageContext) bool {
	if page < MinPage || page > MaxPage {
		return false
	}
	if pctx.PageCount > 0 && page > pctx.PageCount {
		return false
	}
	return true
}

func prefix(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(s) {
		set[w] = true
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if b[w] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
