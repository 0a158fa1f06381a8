package cmd

import (
	"encoding/json"
	"fmt"

	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/quarry-search/quarry/configs"
	"github.com/quarry-search/quarry/internal/config"
	"github.com/quarry-search/quarry/internal/output"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage the quarry configuration file.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/quarry/config.yaml)
  3. --config flag
  4. Environment variables (QUARRY_*)`,
		Example: `  # Create user config from defaults
  quarry config init

  # Show effective configuration
  quarry config show

  # Print user config file path
  quarry config path`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())
	cmd.AddCommand(newConfigRestoreCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the user configuration file",
		Long: `Write the default configuration to the user config path.

The file is created at ~/.config/quarry/config.yaml (or under
$XDG_CONFIG_HOME when set). Edit it to point quarry at your embedding
and chat providers.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigInit(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Long: `Show the configuration after merging defaults, the config file,
and QUARRY_* environment overrides.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigShow(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the user config file path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), config.GetUserConfigPath())
			return err
		},
	}
}

func newConfigRestoreCmd() *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "restore [backup]",
		Short: "Restore the user config from a backup",
		Long: `Restore the user configuration from a backup created by
'quarry config init --force'. Without an argument the most recent
backup is restored. The current config is backed up first.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if list {
				return runConfigListBackups(cmd)
			}
			backup := ""
			if len(args) > 0 {
				backup = args[0]
			}
			return runConfigRestore(cmd, backup)
		},
	}

	cmd.Flags().BoolVar(&list, "list", false, "List available backups instead of restoring")

	return cmd
}

func runConfigListBackups(cmd *cobra.Command) error {
	backups, err := config.ListUserConfigBackups()
	if err != nil {
		return err
	}
	if len(backups) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No backups found")
		return nil
	}
	for _, b := range backups {
		fmt.Fprintln(cmd.OutOrStdout(), b)
	}
	return nil
}

func runConfigRestore(cmd *cobra.Command, backup string) error {
	out := output.NewAuto(cmd.OutOrStdout())

	if backup == "" {
		backups, err := config.ListUserConfigBackups()
		if err != nil {
			return err
		}
		if len(backups) == 0 {
			return fmt.Errorf("no config backups found")
		}
		backup = backups[0]
	}

	if err := config.RestoreUserConfig(backup); err != nil {
		return err
	}
	out.Successf("Config restored from %s", backup)
	return nil
}

func runConfigInit(cmd *cobra.Command, force bool) error {
	out := output.NewAuto(cmd.OutOrStdout())

	path := config.GetUserConfigPath()
	if config.UserConfigExists() {
		if !force {
			out.Warningf("Config already exists at %s (use --force to overwrite)", path)
			return nil
		}
		backup, err := config.BackupUserConfig()
		if err != nil {
			return err
		}
		out.Statusf("💾", "Existing config backed up to %s", backup)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(configs.DefaultConfigTemplate), 0644); err != nil {
		return err
	}
	out.Successf("Config written to %s", path)
	return nil
}

func runConfigShow(cmd *cobra.Command, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	}
	return cfg.WriteYAML(cmd.OutOrStdout())
}
