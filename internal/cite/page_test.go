package cite

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quarry-search/quarry/internal/store"
)

func TestExtractPageTextMarker(t *testing.T) {
	c := &store.Chunk{Text: "intro text\n--- Page 7 ---\nbody of page seven"}
	r := ExtractPage(c, PageContext{PageCount: 20})
	assert.Equal(t, 7, r.Page)
	assert.InDelta(t, 0.98, r.Confidence, 1e-9)
	assert.Equal(t, MethodTextMarker, r.Method)
}

func TestExtractPageMarkerOutOfRangeFallsThrough(t *testing.T) {
	c := &store.Chunk{Text: "--- Page 25 ---", Page: 3,
		Metadata: map[string]any{"page_confidence": 0.9}}
	r := ExtractPage(c, PageContext{PageCount: 10})
	assert.Equal(t, 3, r.Page, "marker beyond the page count is dropped")
	assert.Equal(t, MethodMetadata, r.Method)
}

func TestExtractPageIngestionConfidence(t *testing.T) {
	c := &store.Chunk{Page: 5, Metadata: map[string]any{"page_confidence": 0.88}}
	r := ExtractPage(c, PageContext{PageCount: 10})
	assert.Equal(t, 5, r.Page)
	assert.InDelta(t, 0.88, r.Confidence, 1e-9)
	assert.Equal(t, MethodMetadata, r.Method)
}

func TestExtractPageLowIngestionConfidenceSkipped(t *testing.T) {
	c := &store.Chunk{Page: 5, StartChar: 0, EndChar: 100,
		Metadata: map[string]any{"page_confidence": 0.4},
		PageBlocks: []store.PageBlock{
			{Page: 6, StartChar: 0, EndChar: 100},
		}}
	r := ExtractPage(c, PageContext{PageCount: 10})
	assert.Equal(t, 6, r.Page, "low stored confidence falls to char position")
	assert.Equal(t, MethodCharPosition, r.Method)
	assert.InDelta(t, 1.0, r.Confidence, 1e-9)
}

func TestExtractPageCharPositionOverlap(t *testing.T) {
	c := &store.Chunk{StartChar: 150, EndChar: 350,
		PageBlocks: []store.PageBlock{
			{Page: 2, StartChar: 0, EndChar: 200},
			{Page: 3, StartChar: 200, EndChar: 500},
		}}
	r := ExtractPage(c, PageContext{PageCount: 10})
	assert.Equal(t, 3, r.Page, "block with larger overlap wins")
	assert.Equal(t, MethodCharPosition, r.Method)
}

func TestExtractPageCharPositionRequiresMinOverlap(t *testing.T) {
	c := &store.Chunk{StartChar: 0, EndChar: 1000,
		PageBlocks: []store.PageBlock{
			{Page: 2, StartChar: 990, EndChar: 1000}, // 1% overlap
		}}
	r := ExtractPage(c, PageContext{PageCount: 10})
	assert.NotEqual(t, MethodCharPosition, r.Method)
}

func TestExtractPageSourcePageCrossValidated(t *testing.T) {
	// source_page agrees with the page field: two signals, +0.1 capped.
	c := &store.Chunk{Page: 4, Metadata: map[string]any{"source_page": 4}}
	r := ExtractPage(c, PageContext{PageCount: 10})
	assert.Equal(t, 4, r.Page)
	assert.Equal(t, MethodMetadata, r.Method)
	assert.InDelta(t, 1.0, r.Confidence, 1e-9)
}

func TestExtractPageImageFastPath(t *testing.T) {
	c := &store.Chunk{
		ContentType: store.ContentTypeImageOCR,
		ImageRef:    &store.ImageRef{Page: 6, ImageIndex: 2},
	}
	r := ExtractPage(c, PageContext{PageCount: 10})
	assert.Equal(t, 6, r.Page)
	assert.Equal(t, MethodImageMetadata, r.Method)
	assert.InDelta(t, 0.95, r.Confidence, 1e-9)
}

func TestExtractPageImagePageOneCorroborated(t *testing.T) {
	c := &store.Chunk{
		ContentType: store.ContentTypeImageOCR,
		StartChar:   120,
		Metadata:    map[string]any{"image_index": 0},
	}
	r := ExtractPage(c, PageContext{PageCount: 10})
	assert.Equal(t, 1, r.Page)
	assert.Equal(t, MethodImageMetadata, r.Method)
	assert.InDelta(t, 0.9, r.Confidence, 1e-9)
}

func TestExtractPageJaccard(t *testing.T) {
	c := &store.Chunk{Text: "hydraulic pump maintenance interval and fluid specification table"}
	r := ExtractPage(c, PageContext{
		PageCount: 5,
		PageTexts: map[int]string{
			1: "introduction and safety notes for the equipment",
			3: "hydraulic pump maintenance interval and fluid specification details",
		},
	})
	assert.Equal(t, 3, r.Page)
	assert.InDelta(t, 0.9, r.Confidence, 1e-9)
	assert.Equal(t, MethodHeuristic, r.Method)
}

func TestExtractPageTextPatterns(t *testing.T) {
	tests := []struct {
		text string
		page int
		conf float64
	}{
		{"see details on Page 3 of 12 in this manual", 3, 0.85},
		{"continued from Page 4-6 of the appendix", 4, 0.75},
		{"ver página 8 para más información", 8, 0.6},
		{"reference pg. 9 for the wiring diagram", 9, 0.5},
	}
	for _, tc := range tests {
		t.Run(tc.text, func(t *testing.T) {
			r := ExtractPage(&store.Chunk{Text: tc.text}, PageContext{PageCount: 20})
			assert.Equal(t, tc.page, r.Page)
			assert.InDelta(t, tc.conf, r.Confidence, 1e-9)
			assert.Equal(t, MethodHeuristic, r.Method)
		})
	}
}

func TestExtractPageProportional(t *testing.T) {
	c := &store.Chunk{ChunkIndex: 5}
	r := ExtractPage(c, PageContext{PageCount: 10, TotalChunks: 10})
	assert.Equal(t, 6, r.Page)
	assert.InDelta(t, 0.3, r.Confidence, 1e-9)
	assert.Equal(t, MethodHeuristic, r.Method)
}

func TestExtractPageFallback(t *testing.T) {
	r := ExtractPage(&store.Chunk{}, PageContext{})
	assert.Equal(t, 1, r.Page)
	assert.InDelta(t, 0.1, r.Confidence, 1e-9)
	assert.Equal(t, MethodFallback, r.Method)
}

func TestExtractPageHardRange(t *testing.T) {
	c := &store.Chunk{Text: "--- Page 99999 ---"}
	r := ExtractPage(c, PageContext{})
	assert.Equal(t, MethodFallback, r.Method, "pages above 10000 never pass")
}

func TestPageFromBlocksEmpty(t *testing.T) {
	_, ok := pageFromBlocks(&store.Chunk{})
	assert.False(t, ok)

	_, ok = pageFromBlocks(&store.Chunk{StartChar: 10, EndChar: 5,
		PageBlocks: []store.PageBlock{{Page: 1, StartChar: 0, EndChar: 100}}})
	assert.False(t, ok)
}
