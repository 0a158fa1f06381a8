package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarry-search/quarry/internal/preflight"
)

// setTestEnv points quarry at temp directories and mock providers so
// commands run hermetically.
func setTestEnv(t *testing.T) string {
	t.Helper()
	dataDir := t.TempDir()
	t.Setenv("QUARRY_DATA_DIR", dataDir)
	t.Setenv("QUARRY_EMBEDDINGS_PROVIDER", "mock")
	t.Setenv("QUARRY_LLM_PROVIDER", "mock")
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	return dataDir
}

// executeCommand runs the root command with args and captures stdout.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCmd()
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// writeChunkFile writes a JSONL chunk file for load tests.
func writeChunkFile(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chunks.jsonl")
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestRootCmd_Version(t *testing.T) {
	setTestEnv(t)

	out, err := executeCommand(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "quarry version")
}

func TestVersionCmd_Short(t *testing.T) {
	setTestEnv(t)

	out, err := executeCommand(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, "dev\n", out)
}

func TestVersionCmd_JSON(t *testing.T) {
	setTestEnv(t)

	out, err := executeCommand(t, "version", "--json")
	require.NoError(t, err)

	var info map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "dev", info["version"])
	assert.Contains(t, info, "go_version")
}

func TestConfigPathCmd(t *testing.T) {
	setTestEnv(t)

	out, err := executeCommand(t, "config", "path")
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join("quarry", "config.yaml"))
}

func TestConfigInitCmd(t *testing.T) {
	setTestEnv(t)

	out, err := executeCommand(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Config written")

	// Second run without --force leaves the file alone.
	out, err = executeCommand(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")
}

func TestConfigInitCmd_ForceBacksUpAndRestores(t *testing.T) {
	setTestEnv(t)

	_, err := executeCommand(t, "config", "init")
	require.NoError(t, err)

	out, err := executeCommand(t, "config", "init", "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "backed up")

	out, err = executeCommand(t, "config", "restore", "--list")
	require.NoError(t, err)
	assert.Contains(t, out, ".bak")

	out, err = executeCommand(t, "config", "restore")
	require.NoError(t, err)
	assert.Contains(t, out, "Config restored")
}

func TestConfigShowCmd_YAML(t *testing.T) {
	setTestEnv(t)

	out, err := executeCommand(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "search:")
	assert.Contains(t, out, "embeddings:")
}

func TestIndexesListCmd_Empty(t *testing.T) {
	setTestEnv(t)

	out, err := executeCommand(t, "indexes", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No indexes registered")
}

func TestCommands_WritePreflightMarker(t *testing.T) {
	dataDir := setTestEnv(t)

	_, err := executeCommand(t, "indexes", "list")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dataDir, preflight.MarkerFile))
}

func TestLoadCmd_IngestsAndSearches(t *testing.T) {
	setTestEnv(t)

	path := writeChunkFile(t,
		`{"document_name": "manual.pdf", "text": "The valve torque specification is 25 Nm.", "page": 1}`,
		`{"document_name": "manual.pdf", "text": "The cooling system holds 12 liters of coolant.", "page": 2}`,
	)

	out, err := executeCommand(t, "load", path)
	require.NoError(t, err)
	assert.Contains(t, out, "manual-pdf")
	assert.Contains(t, out, "2 chunks")

	out, err = executeCommand(t, "search", "valve torque specification")
	require.NoError(t, err)
	assert.Contains(t, out, "manual.pdf")
	assert.Contains(t, out, "Page 1")
}

func TestLoadCmd_RejectsMissingDocumentName(t *testing.T) {
	setTestEnv(t)

	path := writeChunkFile(t, `{"text": "orphan chunk", "page": 1}`)

	_, err := executeCommand(t, "load", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "document_name")
}

func TestAskCmd_AnswersFromMockLLM(t *testing.T) {
	setTestEnv(t)

	path := writeChunkFile(t,
		`{"document_name": "manual.pdf", "text": "The valve torque specification is 25 Nm.", "page": 1}`,
	)
	_, err := executeCommand(t, "load", path)
	require.NoError(t, err)

	out, err := executeCommand(t, "ask", "What is the valve torque specification?")
	require.NoError(t, err)
	assert.Contains(t, out, "mock answer")
	assert.Contains(t, out, "manual.pdf")
}

func TestOccurrencesCmd(t *testing.T) {
	setTestEnv(t)

	path := writeChunkFile(t,
		`{"document_name": "manual.pdf", "text": "Check the valve. The valve must seat fully.", "page": 1}`,
	)
	_, err := executeCommand(t, "load", path)
	require.NoError(t, err)

	out, err := executeCommand(t, "occurrences", "valve")
	require.NoError(t, err)
	assert.Contains(t, out, "manual.pdf")
	assert.Contains(t, out, "Page 1")
}

func TestStatusCmd_ListsDocuments(t *testing.T) {
	setTestEnv(t)

	path := writeChunkFile(t,
		`{"document_name": "manual.pdf", "text": "Prime the pump before the first start.", "page": 1}`,
	)
	_, err := executeCommand(t, "load", path)
	require.NoError(t, err)

	out, err := executeCommand(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "manual.pdf")
	assert.Contains(t, out, "indexed")
	assert.Contains(t, out, "manual-pdf")
}

func TestIndexesResolveCmd(t *testing.T) {
	setTestEnv(t)

	path := writeChunkFile(t,
		`{"document_name": "manual.pdf", "text": "Prime the pump.", "page": 1}`,
	)
	_, err := executeCommand(t, "load", path)
	require.NoError(t, err)

	out, err := executeCommand(t, "indexes", "resolve", "manual.pdf")
	require.NoError(t, err)
	assert.Contains(t, out, "manual-pdf")

	out, err = executeCommand(t, "indexes", "resolve", "unknown.pdf")
	require.NoError(t, err)
	assert.Contains(t, out, "(none)")
}

func TestInvalidateCmd(t *testing.T) {
	setTestEnv(t)

	out, err := executeCommand(t, "invalidate")
	require.NoError(t, err)
	assert.Contains(t, out, "cache cleared")

	out, err = executeCommand(t, "invalidate", "manual-pdf")
	require.NoError(t, err)
	assert.Contains(t, out, "manual-pdf")
}

func TestDoctorCmd_MockProviders(t *testing.T) {
	setTestEnv(t)

	out, err := executeCommand(t, "doctor")
	require.NoError(t, err)
	assert.Contains(t, out, "Quarry System Check")
	assert.Contains(t, out, "embedder")
	assert.Contains(t, out, "Status: READY")
}

func TestDoctorCmd_JSON(t *testing.T) {
	setTestEnv(t)

	out, err := executeCommand(t, "doctor", "--json")
	require.NoError(t, err)

	var report doctorJSON
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.NotEmpty(t, report.Checks)

	names := make(map[string]bool)
	for _, c := range report.Checks {
		names[c.Name] = true
	}
	assert.True(t, names["config"])
	assert.True(t, names["registry"])
	assert.True(t, names["embedder"])
	assert.True(t, names["index_dimensions"])
}
