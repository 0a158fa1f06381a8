package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/quarry-search/quarry/internal/output"
)

func newIndexesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "indexes",
		Short: "Inspect the document-to-index mapping",
	}

	cmd.AddCommand(newIndexesListCmd())
	cmd.AddCommand(newIndexesResolveCmd())

	return cmd
}

func newIndexesListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the known indexes with chunk counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIndexesList(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func newIndexesResolveCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "resolve [document...]",
		Short: "Show which indexes a document selection routes to",
		Long: `Resolve a document selection to physical index names.

With no arguments, every index is listed — an empty selection means
"search everything". Unknown document names resolve to nothing.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndexesResolve(cmd, args, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runIndexesList(cmd *cobra.Command, jsonOutput bool) error {
	cleanup := setupCommandLogging()
	defer cleanup()

	eng, _, err := openEngine()
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	stats := eng.IndexStats(cmd.Context())

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	out := output.NewAuto(cmd.OutOrStdout())
	if len(stats) == 0 {
		out.Status("", "No indexes registered. Run 'quarry load' to ingest documents.")
		return nil
	}
	for _, s := range stats {
		out.Statusf("", "%s  (%d chunks, %d dimensions)", s.IndexID, s.Chunks, s.Dimensions)
	}
	return nil
}

func runIndexesResolve(cmd *cobra.Command, sources []string, jsonOutput bool) error {
	cleanup := setupCommandLogging()
	defer cleanup()

	eng, _, err := openEngine()
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	resolved := struct {
		Text   []string `json:"text"`
		Images []string `json:"images"`
	}{
		Text:   eng.Router().Resolve(sources),
		Images: eng.Router().ResolveImages(sources),
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resolved)
	}

	out := output.NewAuto(cmd.OutOrStdout())
	out.Status("", "Text indexes:")
	for _, name := range resolved.Text {
		out.Status("", "  "+name)
	}
	if len(resolved.Text) == 0 {
		out.Status("", "  (none)")
	}
	out.Status("", "Image indexes:")
	for _, name := range resolved.Images {
		out.Status("", "  "+name)
	}
	if len(resolved.Images) == 0 {
		out.Status("", "  (none)")
	}
	return nil
}
