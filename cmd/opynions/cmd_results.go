package main

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nvandessel/opynions/internal/analysis"
	"github.com/nvandessel/opynions/internal/export"
	"github.com/nvandessel/opynions/internal/store"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored sweeps, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			root, cfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			s, err := openStore(root, cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			infos, err := s.ListSweeps(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list sweeps: %w", err)
			}

			if jsonOut {
				if infos == nil {
					infos = []store.SweepInfo{}
				}
				return writeJSON(cmd, map[string]any{"sweeps": infos, "count": len(infos)})
			}

			out := cmd.OutOrStdout()
			if len(infos) == 0 {
				fmt.Fprintln(out, "No sweeps stored. Run 'opynions sweep grid' to create one.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tKIND\tPOINTS\tFAILED\tN\tT\tM\tRUNS\tSTARTED")
			for _, info := range infos {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\t%s\n",
					shortID(info.ID), info.Kind, info.Points, info.Failed,
					info.Settings.Nodes, info.Settings.Steps, info.Settings.Attachment, info.Settings.Runs,
					formatTime(info.Started))
			}
			return w.Flush()
		},
	}
}

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a stored sweep",
		Long: `Print one metric of a stored sweep as a mu x epsilon matrix. The id may
be any unique prefix.

Examples:
  opynions show 3f2a
  opynions show 3f2a --field neighbor_similarity
  opynions show 3f2a --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			field, _ := cmd.Flags().GetString("field")
			if !slices.Contains(analysis.FieldNames(), field) {
				return fmt.Errorf("field %q (known: %s): %w", field, strings.Join(analysis.FieldNames(), ", "), analysis.ErrUnknownField)
			}

			root, cfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			s, err := openStore(root, cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			report, err := s.LoadReport(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if jsonOut {
				return export.WriteJSON(cmd.OutOrStdout(), report)
			}
			printReport(cmd.OutOrStdout(), report, field)
			return nil
		},
	}
	cmd.Flags().String("field", analysis.FieldVariance, "Metric to print as a matrix")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a stored sweep",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			root, cfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			s, err := openStore(root, cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			report, err := s.LoadReport(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := s.DeleteSweep(cmd.Context(), report.ID); err != nil {
				return fmt.Errorf("failed to delete sweep: %w", err)
			}

			if jsonOut {
				return writeJSON(cmd, map[string]string{"status": "deleted", "id": report.ID})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted sweep %s\n", report.ID)
			return nil
		},
	}
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Export a stored sweep",
		Long: `Export a stored sweep for analysis elsewhere.

Formats:
  matrix  one field as CSV, a row per mu and a column per epsilon
  csv     one row per point with mean and std of every metric
  json    the full report
  arrow   Arrow IPC stream with one row per point

Examples:
  opynions export 3f2a > variance.csv
  opynions export 3f2a --format arrow -o sweep.arrow
  opynions export 3f2a --format matrix --field components`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			field, _ := cmd.Flags().GetString("field")
			output, _ := cmd.Flags().GetString("output")

			root, cfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			s, err := openStore(root, cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			report, err := s.LoadReport(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if output == "" || output == "-" {
				return export.Write(cmd.OutOrStdout(), report, format, field)
			}

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			if err := export.Write(f, report, format, field); err != nil {
				f.Close()
				os.Remove(output)
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("failed to close output file: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported sweep %s to %s\n", shortID(report.ID), output)
			return nil
		},
	}
	cmd.Flags().String("format", export.FormatMatrix, "Output format: "+strings.Join(export.Formats(), ", "))
	cmd.Flags().String("field", analysis.FieldVariance, "Metric for the matrix format")
	cmd.Flags().StringP("output", "o", "", "Output file (default stdout)")
	return cmd
}
