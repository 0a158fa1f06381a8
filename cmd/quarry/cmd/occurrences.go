package cmd

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quarry-search/quarry/internal/output"
)

func newOccurrencesCmd() *cobra.Command {
	var (
		sources    []string
		maxResults int
		format     string
	)

	cmd := &cobra.Command{
		Use:   "occurrences <term>",
		Short: "List every literal occurrence of a term",
		Long: `Enumerate every occurrence of a term across the selected documents.

Single words match whole words only; phrases match as substrings. The
scan is exhaustive and case-insensitive, and no language model is
involved.

Examples:
  quarry occurrences "torque"
  quarry occurrences "seal kit" --sources manual.pdf
  quarry occurrences "valve" --max 50 --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			term := strings.Join(args, " ")
			return runOccurrences(cmd, term, sources, maxResults, format)
		},
	}

	cmd.Flags().StringSliceVarP(&sources, "sources", "s", nil, "Restrict to these documents (repeatable)")
	cmd.Flags().IntVar(&maxResults, "max", 0, "Maximum occurrences to report (default from config)")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runOccurrences(cmd *cobra.Command, term string, sources []string, maxResults int, format string) error {
	cleanup := setupCommandLogging()
	defer cleanup()

	eng, _, err := openEngine()
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	result, err := eng.FindAllOccurrences(cmd.Context(), term, sources, maxResults)
	if err != nil {
		return err
	}

	if format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	out := output.NewAuto(cmd.OutOrStdout())
	out.Status("", result.Answer)
	out.Newline()
	for i, occ := range result.Occurrences {
		out.Statusf("", "%d. %s (Page %d)", i+1, occ.Source, occ.Page)
		if ctx := strings.TrimSpace(occ.Context); ctx != "" {
			out.Status("", "    ..."+ctx+"...")
		}
	}
	if result.Truncated {
		out.Newline()
		out.Warning("Result list truncated; raise --max to see more")
	}
	return nil
}
