package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBleveWithDocs(t *testing.T, docs []*LexicalDoc) *BleveLexicalIndex {
	t.Helper()
	idx, err := NewBleveLexicalIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	require.NoError(t, idx.Index(context.Background(), docs))
	return idx
}

func TestBleve_PhraseRanksAboveScattered(t *testing.T) {
	idx := newBleveWithDocs(t, []*LexicalDoc{
		{ID: "exact", Text: "our vacation policy allows twenty days per year"},
		{ID: "scattered", Text: "vacation requests follow the escalation policy chain"},
		{ID: "noise", Text: "quarterly financial report for shareholders"},
	})

	results, err := idx.Search(context.Background(), []Clause{
		{Kind: ClausePhrase, Text: "vacation policy", Slop: 1, Boost: 10},
		{Kind: ClauseMulti, Text: "vacation policy", Fuzziness: 1, Boost: 1.5},
	}, 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "exact", results[0].ID)
}

func TestBleve_MatchedTerms(t *testing.T) {
	idx := newBleveWithDocs(t, []*LexicalDoc{
		{ID: "a", Text: "kubernetes pod restart procedure"},
	})

	results, err := idx.Search(context.Background(), []Clause{
		{Kind: ClauseMulti, Text: "kubernetes restart"},
	}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.NotEmpty(t, results[0].MatchedTerms)
}

func TestBleve_DeleteAndStats(t *testing.T) {
	idx := newBleveWithDocs(t, []*LexicalDoc{
		{ID: "a", Text: "alpha"},
		{ID: "b", Text: "beta"},
	})
	ctx := context.Background()

	assert.Equal(t, 2, idx.Stats().DocumentCount)
	require.NoError(t, idx.Delete(ctx, []string{"a"}))
	assert.Equal(t, 1, idx.Stats().DocumentCount)

	ids, err := idx.AllIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids)
}

func TestBleve_CorruptedIndexIsRecreated(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bleve")
	ctx := context.Background()

	idx, err := NewBleveLexicalIndex(path)
	require.NoError(t, err)
	require.NoError(t, idx.Index(ctx, []*LexicalDoc{{ID: "a", Text: "alpha"}}))
	require.NoError(t, idx.Close())

	// Truncate the metadata file to simulate a crash mid-write.
	require.NoError(t, os.WriteFile(filepath.Join(path, "index_meta.json"), nil, 0644))

	idx2, err := NewBleveLexicalIndex(path)
	require.NoError(t, err)
	defer idx2.Close()

	// Recreated empty; the shard layer repopulates from chunks.db.
	assert.Equal(t, 0, idx2.Stats().DocumentCount)
}

func TestValidateBleveIntegrity(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bleve")

	// Absent index is fine.
	require.NoError(t, validateBleveIntegrity(path))

	// Directory without metadata is corrupt.
	require.NoError(t, os.MkdirAll(path, 0755))
	assert.Error(t, validateBleveIntegrity(path))

	// Valid JSON metadata passes.
	meta, _ := json.Marshal(map[string]any{"storage": "scorch"})
	require.NoError(t, os.WriteFile(filepath.Join(path, "index_meta.json"), meta, 0644))
	assert.NoError(t, validateBleveIntegrity(path))
}
