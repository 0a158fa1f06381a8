package cmd

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quarry-search/quarry/internal/cite"
	"github.com/quarry-search/quarry/internal/engine"
	"github.com/quarry-search/quarry/internal/output"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	k       int
	sources []string
	mode    string
	images  bool
	format  string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Retrieve cited passages without generating an answer",
		Long: `Search the indexed documents and print the matching passages.

Combines keyword and semantic search with Reciprocal Rank Fusion, then
attributes each passage to its document and page. No language model is
involved.

Examples:
  quarry search "valve torque"
  quarry search "cooling system" --sources manual.pdf --k 5
  quarry search "wiring diagram" --images
  quarry search "maintenance" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearchCmd(cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.k, "k", "n", 0, "Number of passages to retrieve (default from config)")
	cmd.Flags().StringSliceVarP(&opts.sources, "sources", "s", nil, "Restrict to these documents (repeatable)")
	cmd.Flags().StringVarP(&opts.mode, "mode", "m", "hybrid", "Search mode: hybrid, semantic, keyword")
	cmd.Flags().BoolVar(&opts.images, "images", false, "Search image OCR indexes instead of text")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearchCmd(cmd *cobra.Command, query string, opts searchOptions) error {
	cleanup := setupCommandLogging()
	defer cleanup()

	eng, _, err := openEngine()
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	ctx := cmd.Context()
	citations, err := searchCitations(ctx, eng, query, opts)
	if err != nil {
		return err
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(citations)
	}

	out := output.NewAuto(cmd.OutOrStdout())
	if len(citations) == 0 {
		out.Statusf("", "No results found for %q", query)
		return nil
	}
	out.Statusf("🔍", "Found %d passages for %q:", len(citations), query)
	out.Newline()
	for _, c := range citations {
		renderCitation(out, c)
	}
	return nil
}

func searchCitations(ctx context.Context, eng *engine.Engine, query string, opts searchOptions) ([]cite.Citation, error) {
	if opts.images {
		return eng.SearchImages(ctx, query, opts.sources, opts.k)
	}
	return eng.Search(ctx, query, engine.QueryOptions{
		K:             opts.k,
		SearchMode:    opts.mode,
		ActiveSources: opts.sources,
	})
}
