package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/opynions/internal/snapshot"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the results database and snapshots for corruption",
		Long: `Validate the project state.

This command checks:
  - SQLite integrity and foreign keys of the results database
  - The checksum of every snapshot in .opynions/snapshots

Examples:
  opynions validate
  opynions validate --json`,
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

			var problems []string
			if err := s.Validate(cmd.Context()); err != nil {
				problems = append(problems, fmt.Sprintf("%s: %v", s.Path(), err))
			}

			infos, err := snapshot.List(snapshot.Dir(root))
			if err != nil {
				return err
			}
			for _, info := range infos {
				if _, err := snapshot.Verify(info.Path); err != nil {
					problems = append(problems, fmt.Sprintf("%s: %v", info.Path, err))
				}
			}

			if jsonOut {
				if problems == nil {
					problems = []string{}
				}
				if err := writeJSON(cmd, map[string]any{
					"valid":     len(problems) == 0,
					"database":  s.Path(),
					"snapshots": len(infos),
					"problems":  problems,
				}); err != nil {
					return err
				}
			} else if len(problems) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "OK: database and %d snapshot(s) are valid\n", len(infos))
			} else {
				for _, p := range problems {
					fmt.Fprintln(cmd.OutOrStdout(), p)
				}
			}

			if len(problems) > 0 {
				return fmt.Errorf("validation found %d problem(s)", len(problems))
			}
			return nil
		},
	}
}
