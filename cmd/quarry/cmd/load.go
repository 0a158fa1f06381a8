package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/quarry-search/quarry/internal/engine"
	"github.com/quarry-search/quarry/internal/output"
	"github.com/quarry-search/quarry/internal/registry"
)

// chunkRecord is one JSONL line of pre-parsed chunk input. Records are
// grouped by document name in arrival order; chunks without vectors are
// embedded during ingestion.
type chunkRecord struct {
	DocumentName string `json:"document_name"`
	DocumentID   string `json:"document_id,omitempty"`
	FileHash     string `json:"file_hash,omitempty"`
	ParserUsed   string `json:"parser_used,omitempty"`

	engine.IngestChunk
}

func newLoadCmd() *cobra.Command {
	var (
		kind       string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "load <chunks.jsonl>",
		Short: "Ingest pre-parsed document chunks",
		Long: `Load chunk records from a JSONL file into the index.

Each line is one chunk with at least "document_name", "text", and
"page". Chunks without a "vector" field are embedded via the configured
provider. Every distinct document gets its own index, named after the
sanitized document name.

Use "-" to read from stdin.

Examples:
  quarry load manual-chunks.jsonl
  parser --emit-jsonl manual.pdf | quarry load -
  quarry load diagrams.jsonl --kind images`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(cmd, args[0], kind, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "text", "Index kind: text, images")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runLoad(cmd *cobra.Command, path, kind string, jsonOutput bool) error {
	cleanup := setupCommandLogging()
	defer cleanup()

	indexKind := registry.KindText
	switch kind {
	case "text":
	case "images":
		indexKind = registry.KindImages
	default:
		return fmt.Errorf("unknown index kind %q (want text or images)", kind)
	}

	requests, err := readChunkFile(path, indexKind)
	if err != nil {
		return err
	}
	if len(requests) == 0 {
		return fmt.Errorf("no chunk records in %s", path)
	}

	eng, _, err := openEngine()
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	out := output.NewAuto(cmd.OutOrStdout())
	var results []*engine.IngestResult
	for _, req := range requests {
		res, err := eng.Ingest(cmd.Context(), req)
		if err != nil {
			return fmt.Errorf("ingest %s: %w", req.DocumentName, err)
		}
		results = append(results, res)
		if !jsonOutput {
			out.Successf("%s → %s (%d chunks, %d embedded)",
				req.DocumentName, res.IndexID, res.Chunks, res.Embedded)
		}
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	return nil
}

// readChunkFile parses the JSONL input into one ingest request per
// document, preserving first-seen document order.
func readChunkFile(path string, kind registry.IndexKind) ([]engine.IngestRequest, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var order []string
	byName := make(map[string]*engine.IngestRequest)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Bytes()
		if len(text) == 0 {
			continue
		}
		var rec chunkRecord
		if err := json.Unmarshal(text, &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if rec.DocumentName == "" {
			return nil, fmt.Errorf("line %d: missing document_name", line)
		}

		req, ok := byName[rec.DocumentName]
		if !ok {
			req = &engine.IngestRequest{
				DocumentName: rec.DocumentName,
				DocumentID:   rec.DocumentID,
				FileHash:     rec.FileHash,
				ParserUsed:   rec.ParserUsed,
				Kind:         kind,
			}
			byName[rec.DocumentName] = req
			order = append(order, rec.DocumentName)
		}
		req.Chunks = append(req.Chunks, rec.IngestChunk)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	out := make([]engine.IngestRequest, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	return out, nil
}
