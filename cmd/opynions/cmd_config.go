package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/opynions/internal/config"
	"github.com/nvandessel/opynions/internal/constants"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage opynions configuration",
		Long: `View and modify opynions configuration settings.

Settings are merged from ~/.opynions/config.yaml, then
<root>/.opynions/config.yaml, then <root>/.env and OPYNIONS_* variables.

Examples:
  opynions config list                          # Show effective settings
  opynions config get sweep.runs                # Get a specific setting
  opynions config set sweep.runs 20             # Set in the project config
  opynions config set simulation.nodes 500 --scope global`,
	}

	cmd.AddCommand(
		newConfigListCmd(),
		newConfigGetCmd(),
		newConfigSetCmd(),
	)

	return cmd
}

func newConfigListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List effective configuration settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			root, _ := cmd.Flags().GetString("root")

			cfg, err := config.Load(root)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			if jsonOut {
				return writeJSON(cmd, cfg)
			}
			if asYAML, _ := cmd.Flags().GetBool("yaml"); asYAML {
				out, err := dumpConfig(cfg)
				if err != nil {
					return err
				}
				_, err = fmt.Fprint(cmd.OutOrStdout(), out)
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for _, key := range config.Keys() {
				value, _ := cfg.Get(key)
				if s, ok := value.(string); ok && s == "" {
					value = "(default)"
				}
				fmt.Fprintf(w, "%s\t%v\n", key, value)
			}
			return w.Flush()
		},
	}
	cmd.Flags().Bool("yaml", false, "Print the effective config as YAML")
	return cmd
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			root, _ := cmd.Flags().GetString("root")
			key := args[0]

			cfg, err := config.Load(root)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			value, err := cfg.Get(key)
			if err != nil {
				return fmt.Errorf("%w (known keys: run 'opynions config list')", err)
			}

			if jsonOut {
				return writeJSON(cmd, map[string]any{"key": key, "value": value})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", key, value)
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			root, _ := cmd.Flags().GetString("root")
			scopeFlag, _ := cmd.Flags().GetString("scope")
			key, value := args[0], args[1]

			scope := constants.Scope(scopeFlag)
			if !scope.Valid() {
				return fmt.Errorf("invalid scope %q (valid: local, global)", scopeFlag)
			}

			path := config.LocalPath(root)
			if scope == constants.ScopeGlobal {
				var err error
				if path, err = config.GlobalPath(); err != nil {
					return err
				}
			}

			// Only the target file is rewritten, never the merged view.
			cfg, err := config.LoadFromFile(path)
			if errors.Is(err, os.ErrNotExist) {
				cfg, err = config.Default(), nil
			}
			if err != nil {
				return err
			}

			if err := cfg.Set(key, value); err != nil {
				return err
			}
			if err := config.SaveToFile(cfg, path); err != nil {
				return err
			}

			if jsonOut {
				return writeJSON(cmd, map[string]any{
					"status": "saved",
					"key":    key,
					"value":  value,
					"scope":  scope.String(),
					"path":   path,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s in %s\n", key, value, path)
			return nil
		},
	}
	cmd.Flags().String("scope", string(constants.ScopeLocal), "Config file to write: local or global")
	return cmd
}

// dumpConfig renders cfg as YAML.
func dumpConfig(cfg *config.OpynionsConfig) (string, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
