package main

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nvandessel/opynions/internal/snapshot"
)

func newSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Manage saved network snapshots",
	}
	cmd.PersistentFlags().Bool("global", false, "Use ~/.opynions/snapshots")
	cmd.AddCommand(newSnapshotListCmd(), newSnapshotVerifyCmd(), newSnapshotPruneCmd())
	return cmd
}

func newSnapshotListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List snapshots with their parameters",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			dir, err := snapshotDir(cmd)
			if err != nil {
				return err
			}
			infos, err := snapshot.List(dir)
			if err != nil {
				return fmt.Errorf("failed to list snapshots: %w", err)
			}

			if jsonOut {
				if infos == nil {
					infos = []snapshot.Info{}
				}
				return writeJSON(cmd, map[string]any{
					"snapshots":   infos,
					"total_count": len(infos),
					"directory":   dir,
				})
			}

			out := cmd.OutOrStdout()
			if len(infos) == 0 {
				fmt.Fprintf(out, "No snapshots found in %s\n", dir)
				return nil
			}
			fmt.Fprintf(out, "Snapshots in %s:\n", dir)
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "FILE\tSIZE\tNODES\tEDGES\tMU\tEPSILON\tSEED\tCREATED")
			for _, info := range infos {
				if info.Header == nil {
					fmt.Fprintf(w, "%s\t%d\t?\t?\t?\t?\t?\t%s\n", filepath.Base(info.Path), info.Size, formatTime(info.CreatedAt))
					continue
				}
				h := info.Header
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%g\t%g\t%d\t%s\n",
					filepath.Base(info.Path), info.Size, h.NodeCount, h.EdgeCount,
					h.Params.Mu, h.Params.Epsilon, h.Seed, formatTime(h.CreatedAt))
			}
			return w.Flush()
		},
	}
}

func newSnapshotVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <file>",
		Short: "Verify a snapshot checksum",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			header, err := snapshot.Verify(args[0])
			if err != nil {
				if jsonOut {
					writeJSON(cmd, map[string]any{"path": args[0], "valid": false, "error": err.Error()})
				}
				return fmt.Errorf("verification failed: %w", err)
			}

			if jsonOut {
				return writeJSON(cmd, map[string]any{"path": args[0], "valid": true, "header": header})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "OK %s (%d nodes, %d edges, sha256 %s)\n",
				args[0], header.NodeCount, header.EdgeCount, header.Checksum)
			return nil
		},
	}
}

func newSnapshotPruneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old snapshots",
		Long: `Delete snapshots not kept by the retention policy. Policies count runs,
not files: the initial and final snapshot of one simulate --save are kept or
deleted together. A run is kept if it is among the --keep newest runs or its
newest snapshot is younger than --max-age. Unreadable snapshots are always
deleted.

Examples:
  opynions snapshot prune --keep 10
  opynions snapshot prune --keep 5 --max-age 30d`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			keep, _ := cmd.Flags().GetInt("keep")
			maxAge, _ := cmd.Flags().GetString("max-age")

			var policy snapshot.AnyPolicy
			if keep > 0 {
				policy = append(policy, &snapshot.CountPolicy{Runs: keep})
			}
			if maxAge != "" {
				d, err := snapshot.ParseDuration(maxAge)
				if err != nil {
					return err
				}
				policy = append(policy, &snapshot.AgePolicy{MaxAge: d})
			}
			if len(policy) == 0 {
				return fmt.Errorf("set --keep or --max-age")
			}

			dir, err := snapshotDir(cmd)
			if err != nil {
				return err
			}
			deleted, err := snapshot.ApplyRetention(dir, policy)
			if err != nil {
				return fmt.Errorf("failed to prune snapshots: %w", err)
			}

			if jsonOut {
				if deleted == nil {
					deleted = []string{}
				}
				return writeJSON(cmd, map[string]any{"deleted": deleted, "count": len(deleted)})
			}
			for _, path := range deleted {
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", filepath.Base(path))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d snapshot(s)\n", len(deleted))
			return nil
		},
	}
	cmd.Flags().Int("keep", 0, "Keep the N newest runs")
	cmd.Flags().String("max-age", "", "Keep snapshots younger than this (e.g. 72h, 30d, 2w)")
	return cmd
}
