// Package cmd provides the CLI commands for quarry.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/quarry-search/quarry/internal/config"
	"github.com/quarry-search/quarry/internal/engine"
	"github.com/quarry-search/quarry/internal/logging"
	"github.com/quarry-search/quarry/internal/preflight"
	"github.com/quarry-search/quarry/internal/profiling"
	"github.com/quarry-search/quarry/pkg/version"
)

// Profiling flags
var (
	profileCPU   string
	profileMem   string
	profileTrace string
	profiler     = profiling.NewProfiler()
	cpuCleanup   func()
	traceCleanup func()
)

// Global flags
var (
	configPath     string
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the quarry CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quarry",
		Short: "Retrieval engine with grounded citations",
		Long: `Quarry answers questions over pre-indexed document collections.

It fans a query out across per-document indexes, fuses keyword and
semantic results, builds validated citations, and assembles an answer
with a language model.

Run 'quarry ask "your question"' to get started.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("quarry version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: user config)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.quarry/logs/")

	cmd.PersistentFlags().StringVar(&profileCPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileMem, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileTrace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newOccurrencesCmd())
	cmd.AddCommand(newIndexesCmd())
	cmd.AddCommand(newLoadCmd())
	cmd.AddCommand(newInvalidateCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startProfilingAndLogging starts CPU/trace profiling and debug logging if flags are set.
func startProfilingAndLogging(_ *cobra.Command, _ []string) error {
	var err error

	if debugMode {
		logger, cleanup, err := logging.Setup(logging.DebugConfig())
		if err != nil {
			return fmt.Errorf("failed to setup debug logging: %w", err)
		}
		loggingCleanup = cleanup
		slog.SetDefault(logger)
		slog.Info("Debug logging enabled",
			slog.String("log_file", logging.DefaultLogPath()))
	}

	if profileCPU != "" {
		cpuCleanup, err = profiler.StartCPU(profileCPU)
		if err != nil {
			return fmt.Errorf("failed to start CPU profile: %w", err)
		}
	}

	if profileTrace != "" {
		traceCleanup, err = profiler.StartTrace(profileTrace)
		if err != nil {
			if cpuCleanup != nil {
				cpuCleanup()
			}
			return fmt.Errorf("failed to start trace: %w", err)
		}
	}

	return nil
}

// stopProfilingAndLogging stops profiling and logging, writes memory profile if requested.
func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	if cpuCleanup != nil {
		cpuCleanup()
		cpuCleanup = nil
	}

	if traceCleanup != nil {
		traceCleanup()
		traceCleanup = nil
	}

	if profileMem != "" {
		if err := profiler.WriteHeap(profileMem); err != nil {
			return fmt.Errorf("failed to write memory profile: %w", err)
		}
	}

	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}

	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// loadConfig builds the effective configuration from the --config flag,
// the user config, and environment overrides.
func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

// setupCommandLogging initializes file logging for a CLI invocation.
// Stderr stays quiet unless --debug is set (the debug hook already
// installed a stderr-enabled logger in that case).
func setupCommandLogging() func() {
	if debugMode {
		return func() {}
	}
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return func() {}
	}
	slog.SetDefault(logger)
	return cleanup
}

// openEngine loads the config and constructs the engine for a command.
// Local system checks run once per data directory; the marker file
// skips them afterwards until 'quarry doctor' clears it.
func openEngine() (*engine.Engine, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if preflight.NeedsCheck(cfg.DataDir()) {
		if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
			return nil, nil, fmt.Errorf("create data directory: %w", err)
		}
		checker := preflight.New(preflight.WithOutput(io.Discard))
		results := checker.RunAll(context.Background(), cfg.DataDir())
		if checker.HasCriticalFailures(results) {
			return nil, nil, fmt.Errorf("system check failed; run 'quarry doctor' for details")
		}
		if err := preflight.MarkPassed(cfg.DataDir()); err != nil {
			slog.Warn("preflight_marker_write_failed", slog.String("error", err.Error()))
		}
	}
	eng, err := engine.New(cfg, engine.WithLogger(slog.Default()))
	if err != nil {
		return nil, nil, err
	}
	return eng, cfg, nil
}
