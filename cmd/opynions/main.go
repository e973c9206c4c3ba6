package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/opynions/internal/config"
	"github.com/nvandessel/opynions/internal/constants"
	"github.com/nvandessel/opynions/internal/logging"
	"github.com/nvandessel/opynions/internal/snapshot"
	"github.com/nvandessel/opynions/internal/store"
)

var version = "0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "opynions",
		Short: "Opinion dynamics on adaptive scale-free networks",
		Long: `opynions simulates bounded-confidence opinion dynamics on a
Barabási-Albert network that rewires while opinions evolve.

It runs single simulations, parallel epsilon x mu parameter sweeps with
repeated runs per point, and stores sweep results for later export.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("root", ".", "Project root directory")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: info, debug or trace (overrides config)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newInitCmd(),
		newSimulateCmd(),
		newSweepCmd(),
		newListCmd(),
		newShowCmd(),
		newDeleteCmd(),
		newExportCmd(),
		newGraphCmd(),
		newSnapshotCmd(),
		newValidateCmd(),
		newConfigCmd(),
		newMCPServerCmd(),
	)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return writeJSON(cmd, map[string]string{"version": version})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "opynions version %s\n", version)
			return nil
		},
	}
}

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the .opynions directory",
		Long: `Create the .opynions directory with a default config.yaml, the results
database and the snapshot directory.

Examples:
  opynions init             # Initialize ./.opynions
  opynions init --global    # Initialize ~/.opynions`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")
			globalInit, _ := cmd.Flags().GetBool("global")

			dir := store.LocalPath(root)
			configPath := config.LocalPath(root)
			if globalInit {
				var err error
				if dir, err = store.GlobalPath(); err != nil {
					return fmt.Errorf("failed to get global path: %w", err)
				}
				if configPath, err = config.GlobalPath(); err != nil {
					return fmt.Errorf("failed to get global config path: %w", err)
				}
			}

			if err := os.MkdirAll(filepath.Join(dir, constants.SnapshotDir), 0o700); err != nil {
				return fmt.Errorf("failed to create %s: %w", constants.DirName, err)
			}

			createdConfig := false
			if _, err := os.Stat(configPath); os.IsNotExist(err) {
				if err := config.SaveToFile(config.Default(), configPath); err != nil {
					return fmt.Errorf("failed to create config.yaml: %w", err)
				}
				createdConfig = true
			}

			dbPath := filepath.Join(dir, constants.DatabaseFile)
			s, err := store.NewSQLiteStore(dbPath)
			if err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}
			if err := s.Close(); err != nil {
				return fmt.Errorf("failed to close database: %w", err)
			}

			if jsonOut {
				return writeJSON(cmd, map[string]any{
					"status":         "initialized",
					"path":           dir,
					"config":         configPath,
					"config_created": createdConfig,
					"database":       dbPath,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Initialized %s\n", dir)
			if createdConfig {
				fmt.Fprintf(cmd.OutOrStdout(), "  config:   %s\n", configPath)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  database: %s\n", dbPath)
			return nil
		},
	}
	cmd.Flags().Bool("global", false, "Initialize ~/.opynions instead of the project directory")
	return cmd
}

// loadSettings loads the merged configuration for --root and applies
// --log-level.
func loadSettings(cmd *cobra.Command) (string, *config.OpynionsConfig, error) {
	root, _ := cmd.Flags().GetString("root")
	cfg, err := config.Load(root)
	if err != nil {
		return "", nil, fmt.Errorf("failed to load config: %w", err)
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if err := cfg.Validate(); err != nil {
		return "", nil, fmt.Errorf("invalid config: %w", err)
	}
	return root, cfg, nil
}

// newLogger returns the operational logger. Logs always go to stderr so
// stdout stays parseable.
func newLogger(cmd *cobra.Command, cfg *config.OpynionsConfig) *slog.Logger {
	return logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr())
}

// openStore opens the results database configured for root.
func openStore(root string, cfg *config.OpynionsConfig) (*store.SQLiteStore, error) {
	path := cfg.Storage.Path
	if path == "" {
		path = store.DatabasePath(root)
	}
	s, err := store.NewSQLiteStore(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open result store: %w", err)
	}
	return s, nil
}

// snapshotDir returns the project snapshot directory, or the global one
// when --global is set on cmd.
func snapshotDir(cmd *cobra.Command) (string, error) {
	if global, _ := cmd.Flags().GetBool("global"); global {
		dir, err := store.GlobalPath()
		if err != nil {
			return "", err
		}
		return filepath.Join(dir, constants.SnapshotDir), nil
	}
	root, _ := cmd.Flags().GetString("root")
	return snapshot.Dir(root), nil
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
