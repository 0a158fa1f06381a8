package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/quarry-search/quarry/internal/engine"
	"github.com/quarry-search/quarry/internal/preflight"
)

func newDoctorCmd() *cobra.Command {
	var (
		verbose    bool
		jsonOutput bool
		offline    bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check system requirements and diagnose issues",
		Long: `Run diagnostics to ensure quarry can operate correctly.

Checks:
  - Configuration validity
  - Disk space under the data directory (100MB minimum)
  - Memory availability (1GB minimum)
  - Write permissions in the data directory
  - File descriptor limits (1024 minimum)
  - Registry reachability
  - Embedding provider reachability (critical)
  - Chat and reranker provider reachability (warnings)
  - Index vector dimensions against the embedder

Use --verbose for detailed diagnostic information.
Use --json for machine-readable output.
Use --offline to skip provider contact.`,
		Example: `  # Run diagnostics
  quarry doctor

  # Verbose output with details
  quarry doctor --verbose

  # JSON output for scripting
  quarry doctor --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, verbose, jsonOutput, offline)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed diagnostic info")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&offline, "offline", false, "Skip provider reachability checks")

	return cmd
}

func runDoctor(cmd *cobra.Command, verbose, jsonOutput, offline bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checker := preflight.New(
		preflight.WithOffline(offline),
		preflight.WithVerbose(verbose),
		preflight.WithOutput(cmd.OutOrStdout()),
	)

	var results []preflight.CheckResult

	cfg, err := loadConfig()
	if err != nil {
		results = append(results, preflight.CheckResult{
			Name:     "config",
			Status:   preflight.StatusFail,
			Message:  err.Error(),
			Required: true,
		})
		return finishDoctor(cmd, checker, results, jsonOutput, "")
	}
	results = append(results, preflight.CheckResult{
		Name:    "config",
		Status:  preflight.StatusPass,
		Message: "configuration valid",
		Details: "data directory: " + cfg.DataDir(),
	})

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		results = append(results, preflight.CheckResult{
			Name:     "data_dir",
			Status:   preflight.StatusFail,
			Message:  err.Error(),
			Required: true,
		})
		return finishDoctor(cmd, checker, results, jsonOutput, "")
	}

	results = append(results, checker.RunAll(ctx, cfg.DataDir())...)

	eng, err := engine.New(cfg, engine.WithLogger(slog.Default()))
	if err != nil {
		results = append(results, preflight.CheckResult{
			Name:     "registry",
			Status:   preflight.StatusFail,
			Message:  err.Error(),
			Required: true,
		})
		return finishDoctor(cmd, checker, results, jsonOutput, cfg.DataDir())
	}
	defer func() { _ = eng.Close() }()

	results = append(results, preflight.CheckResult{
		Name:    "registry",
		Status:  preflight.StatusPass,
		Message: "reachable",
		Details: "registry: " + cfg.RegistryPath(),
	})

	results = append(results, checker.RunProviders(ctx, preflight.Providers{
		Embedder:        eng.Embedder(),
		LLM:             eng.LLM(),
		LLMModel:        cfg.LLM.DeepModel,
		RerankerEnabled: cfg.Reranker.Enabled,
		RerankerKeyEnv:  cfg.Reranker.APIKeyEnv,
	})...)

	if !offline {
		results = append(results, checkIndexDimensions(ctx, eng))
	}

	return finishDoctor(cmd, checker, results, jsonOutput, cfg.DataDir())
}

// checkIndexDimensions verifies every shard's vector dimension agrees
// with the configured embedder. Mismatched shards either fail queries
// or trigger a rebuild, depending on search.recreate_on_mismatch.
func checkIndexDimensions(ctx context.Context, eng *engine.Engine) preflight.CheckResult {
	stats := eng.IndexStats(ctx)
	if len(stats) == 0 {
		return preflight.CheckResult{
			Name:    "index_dimensions",
			Status:  preflight.StatusPass,
			Message: "no indexes to check",
		}
	}

	want := eng.Embedder().Dimensions()
	var mismatched []string
	for _, st := range stats {
		if want > 0 && st.Dimensions > 0 && st.Dimensions != want {
			mismatched = append(mismatched, fmt.Sprintf("%s (%d != %d)", st.IndexID, st.Dimensions, want))
		}
	}
	if len(mismatched) > 0 {
		return preflight.CheckResult{
			Name:    "index_dimensions",
			Status:  preflight.StatusWarn,
			Message: fmt.Sprintf("%d of %d indexes disagree with the embedder", len(mismatched), len(stats)),
			Details: strings.Join(mismatched, ", ") + "; enable search.recreate_on_mismatch or re-ingest",
		}
	}
	return preflight.CheckResult{
		Name:    "index_dimensions",
		Status:  preflight.StatusPass,
		Message: fmt.Sprintf("%d indexes consistent with the embedder", len(stats)),
	}
}

// finishDoctor renders the results and maintains the preflight marker:
// a clean run lets other commands skip local checks, a failed run
// forces them to re-check.
func finishDoctor(cmd *cobra.Command, checker *preflight.Checker, results []preflight.CheckResult, jsonOutput bool, dataDir string) error {
	if jsonOutput {
		if err := outputDoctorJSON(cmd, checker, results); err != nil {
			return err
		}
	} else {
		checker.PrintResults(results)
	}

	if checker.HasCriticalFailures(results) {
		if dataDir != "" {
			_ = preflight.ClearMarker(dataDir)
		}
		return &doctorError{message: "system check failed"}
	}
	if dataDir != "" {
		_ = preflight.MarkPassed(dataDir)
	}
	return nil
}

// doctorError is a custom error for doctor command failures.
type doctorError struct {
	message string
}

func (e *doctorError) Error() string {
	return e.message
}

// doctorJSON is the structure for JSON output.
type doctorJSON struct {
	Status   string            `json:"status"`
	Checks   []doctorJSONCheck `json:"checks"`
	Warnings []string          `json:"warnings,omitempty"`
	Errors   []string          `json:"errors,omitempty"`
}

type doctorJSONCheck struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Message  string `json:"message"`
	Required bool   `json:"required"`
	Details  string `json:"details,omitempty"`
}

func outputDoctorJSON(cmd *cobra.Command, checker *preflight.Checker, results []preflight.CheckResult) error {
	out := doctorJSON{
		Status: checker.SummaryStatus(results),
		Checks: make([]doctorJSONCheck, len(results)),
	}

	for i, r := range results {
		out.Checks[i] = doctorJSONCheck{
			Name:     r.Name,
			Status:   statusToString(r.Status),
			Message:  r.Message,
			Required: r.Required,
			Details:  r.Details,
		}
		if r.IsCritical() {
			out.Errors = append(out.Errors, r.Name+": "+r.Message)
		} else if r.Status == preflight.StatusWarn {
			out.Warnings = append(out.Warnings, r.Name+": "+r.Message)
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

func statusToString(s preflight.CheckStatus) string {
	switch s {
	case preflight.StatusPass:
		return "pass"
	case preflight.StatusWarn:
		return "warn"
	case preflight.StatusFail:
		return "fail"
	default:
		return "unknown"
	}
}
