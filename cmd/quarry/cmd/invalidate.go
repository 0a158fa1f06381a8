package cmd

import (
	"github.com/spf13/cobra"

	"github.com/quarry-search/quarry/internal/output"
)

func newInvalidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invalidate [index]",
		Short: "Drop cached query results",
		Long: `Drop cached query results for one index, or everything.

Ingestion invalidates automatically; use this after modifying a shard
out of band.

Examples:
  quarry invalidate             # drop the whole cache
  quarry invalidate manual-pdf  # drop entries touching one index`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInvalidate(cmd, args)
		},
	}

	return cmd
}

func runInvalidate(cmd *cobra.Command, args []string) error {
	cleanup := setupCommandLogging()
	defer cleanup()

	eng, _, err := openEngine()
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	indexID := ""
	if len(args) > 0 {
		indexID = args[0]
	}
	eng.InvalidateCache(indexID)

	out := output.NewAuto(cmd.OutOrStdout())
	if indexID == "" {
		out.Success("Query cache cleared")
	} else {
		out.Successf("Cache entries for %s dropped", indexID)
	}
	return nil
}
