package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/opynions/internal/mcp"
)

func newMCPServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-server",
		Short: "Serve opynions tools over MCP (stdio)",
		Long: `Start a Model Context Protocol server on stdin/stdout so agents can run
simulations and sweeps and read stored results.

Tools: opynions_simulate, opynions_sweep, opynions_list_sweeps,
opynions_show_sweep. Logs go to stderr; tool calls are recorded in
.opynions/audit.jsonl.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, cfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}

			server, err := mcp.NewServer(&mcp.Config{
				Name:     "opynions",
				Version:  version,
				Root:     root,
				Settings: cfg,
				Logger:   newLogger(cmd, cfg),
			})
			if err != nil {
				return fmt.Errorf("failed to start MCP server: %w", err)
			}
			ctx, cancel := withSignals(cmd.Context())
			defer cancel()
			return server.Run(ctx)
		},
	}
}
