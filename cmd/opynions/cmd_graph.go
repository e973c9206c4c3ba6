package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/opynions/internal/snapshot"
	"github.com/nvandessel/opynions/internal/visualization"
)

func newGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph [snapshot]",
		Short: "Render a saved network",
		Long: `Render a snapshot written by 'opynions simulate --save'. Without an
argument the newest project snapshot is used.

Node color encodes opinion and node size encodes PageRank.

Examples:
  opynions graph | neato -Tsvg > network.svg
  opynions graph .opynions/snapshots/snapshot-20250101-120000.000000.snap --format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")

			path := ""
			if len(args) == 1 {
				path = args[0]
			} else {
				dir, err := snapshotDir(cmd)
				if err != nil {
					return err
				}
				infos, err := snapshot.List(dir)
				if err != nil {
					return err
				}
				if len(infos) == 0 {
					return fmt.Errorf("no snapshots in %s; run 'opynions simulate --save' first", dir)
				}
				path = infos[0].Path
			}

			snap, err := snapshot.Read(path)
			if err != nil {
				return fmt.Errorf("failed to read snapshot: %w", err)
			}
			g, err := snap.Graph()
			if err != nil {
				return fmt.Errorf("invalid snapshot: %w", err)
			}

			switch visualization.Format(format) {
			case visualization.FormatDOT:
				_, err = fmt.Fprint(cmd.OutOrStdout(), visualization.RenderDOT(g))
				return err
			case visualization.FormatJSON:
				return writeJSON(cmd, visualization.RenderJSON(g))
			default:
				return fmt.Errorf("unknown format %q (valid: dot, json)", format)
			}
		},
	}
	cmd.Flags().String("format", string(visualization.FormatDOT), "Output format: dot or json")
	cmd.Flags().Bool("global", false, "Look in ~/.opynions/snapshots")
	return cmd
}
