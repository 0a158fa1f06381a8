package cmd

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/quarry-search/quarry/internal/engine"
	"github.com/quarry-search/quarry/internal/output"
	"github.com/quarry-search/quarry/internal/registry"
)

// statusInfo is the collected status snapshot.
type statusInfo struct {
	DataDir   string              `json:"data_dir"`
	Documents []documentStatus    `json:"documents"`
	Indexes   []engine.IndexStat  `json:"indexes"`
	Cache     cacheStatus         `json:"cache"`
	Embedder  embedderStatus      `json:"embedder"`
}

type documentStatus struct {
	Name    string    `json:"name"`
	Status  string    `json:"status"`
	Pages   int       `json:"pages"`
	Updated time.Time `json:"updated_at"`
}

type cacheStatus struct {
	Entries    int `json:"entries"`
	TTLSeconds int `json:"ttl_seconds"`
	Capacity   int `json:"capacity"`
}

type embedderStatus struct {
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
}

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show registry and index health",
		Long: `Display the current retrieval state:
  - Registered documents and their indexing status
  - Physical indexes with chunk counts and dimensions
  - Query cache configuration and live entries
  - Embedding provider and model`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStatus(cmd *cobra.Command, jsonOutput bool) error {
	cleanup := setupCommandLogging()
	defer cleanup()

	eng, cfg, err := openEngine()
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	ctx := cmd.Context()
	docs, err := eng.Registry().List(ctx)
	if err != nil {
		return err
	}

	info := statusInfo{
		DataDir: cfg.DataDir(),
		Indexes: eng.IndexStats(ctx),
		Cache: cacheStatus{
			Entries:    eng.CacheLen(),
			TTLSeconds: cfg.Cache.TTLSeconds,
			Capacity:   cfg.Cache.Capacity,
		},
		Embedder: embedderStatus{
			Provider:   cfg.Embeddings.Provider,
			Model:      eng.Embedder().ModelName(),
			Dimensions: eng.Embedder().Dimensions(),
		},
	}
	for _, d := range docs {
		info.Documents = append(info.Documents, documentStatus{
			Name:    d.DocumentName,
			Status:  string(d.Status),
			Pages:   d.Pages,
			Updated: d.UpdatedAt,
		})
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	return renderStatus(output.NewAuto(cmd.OutOrStdout()), info)
}

func renderStatus(out *output.Writer, info statusInfo) error {
	out.Statusf("", "Data directory: %s", info.DataDir)
	out.Newline()

	out.Statusf("", "Documents (%d):", len(info.Documents))
	for _, d := range info.Documents {
		icon := ""
		if d.Status == string(registry.StatusFailed) {
			icon = "❌"
		}
		out.Statusf(icon, "  %s  [%s]  %d pages", d.Name, d.Status, d.Pages)
	}
	if len(info.Documents) == 0 {
		out.Status("", "  (none)")
	}
	out.Newline()

	out.Statusf("", "Indexes (%d):", len(info.Indexes))
	for _, s := range info.Indexes {
		out.Statusf("", "  %s  %d chunks, %d dimensions", s.IndexID, s.Chunks, s.Dimensions)
	}
	if len(info.Indexes) == 0 {
		out.Status("", "  (none)")
	}
	out.Newline()

	out.Statusf("", "Cache: %d entries (ttl %ds, capacity %d)",
		info.Cache.Entries, info.Cache.TTLSeconds, info.Cache.Capacity)
	out.Statusf("", "Embedder: %s/%s (%d dimensions)",
		info.Embedder.Provider, info.Embedder.Model, info.Embedder.Dimensions)
	return nil
}
