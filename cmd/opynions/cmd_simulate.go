package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/opynions/internal/analysis"
	"github.com/nvandessel/opynions/internal/graph"
	"github.com/nvandessel/opynions/internal/simulation"
	"github.com/nvandessel/opynions/internal/snapshot"
	"github.com/nvandessel/opynions/internal/visualization"
)

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a single simulation",
		Long: `Run one simulation and print metrics of the initial and final network.

Unset flags fall back to the simulation section of the config.

Examples:
  opynions simulate --mu 0.3 --epsilon 0.25 --seed 42
  opynions simulate --nodes 500 --steps 200 --save
  opynions simulate --dot final.dot --metrics variance,components`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			root, cfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cmd, cfg)

			p := simulation.Params{
				Nodes:      cfg.Simulation.Nodes,
				Steps:      cfg.Simulation.Steps,
				Attachment: cfg.Simulation.Attachment,
				Mu:         cfg.Simulation.Mu,
				Epsilon:    cfg.Simulation.Epsilon,
			}
			flags := cmd.Flags()
			if flags.Changed("nodes") {
				p.Nodes, _ = flags.GetInt("nodes")
			}
			if flags.Changed("steps") {
				p.Steps, _ = flags.GetInt("steps")
			}
			if flags.Changed("attachment") {
				p.Attachment, _ = flags.GetInt("attachment")
			}
			if flags.Changed("mu") {
				p.Mu, _ = flags.GetFloat64("mu")
			}
			if flags.Changed("epsilon") {
				p.Epsilon, _ = flags.GetFloat64("epsilon")
			}
			if err := p.Validate(); err != nil {
				return err
			}

			analyzer := analysis.Standard()
			if names, _ := flags.GetStringSlice("metrics"); len(names) > 0 {
				if analyzer, err = analysis.Select(names...); err != nil {
					return err
				}
			}

			var opts []simulation.Option
			if trace, _ := flags.GetBool("trace"); trace {
				opts = append(opts, simulation.WithObserver(func(s simulation.StepStats, g *graph.Graph) {
					logger.Info("sweep", "step", s.Step, "interactions", s.Interactions,
						"rewires", s.Rewires, "skipped", s.Skipped, "variance", analysis.Variance(g))
				}))
			}

			ctx, cancel := withSignals(cmd.Context())
			defer cancel()

			seed, _ := flags.GetUint64("seed")
			rng, seed := simulation.NewRand(seed)
			start := time.Now()
			res, err := simulation.NewEngine(opts...).Run(ctx, p, rng)
			if err != nil {
				return fmt.Errorf("simulation failed: %w", err)
			}
			logger.Debug("simulation finished", "duration", time.Since(start), "seed", seed)

			initial, err := analyzer.Analyze(res.Initial)
			if err != nil {
				return fmt.Errorf("failed to analyze initial network: %w", err)
			}
			final, err := analyzer.Analyze(res.Final)
			if err != nil {
				return fmt.Errorf("failed to analyze final network: %w", err)
			}

			var saved []string
			if save, _ := flags.GetBool("save"); save {
				dir := snapshot.Dir(root)
				now := time.Now()
				for i, stage := range []struct {
					name string
					g    *graph.Graph
				}{{"initial", res.Initial}, {"final", res.Final}} {
					path := snapshot.GeneratePath(dir, now.Add(time.Duration(i)*time.Microsecond))
					if err := snapshot.Write(path, snapshot.FromGraph(stage.g, p, seed, stage.name)); err != nil {
						return fmt.Errorf("failed to save %s snapshot: %w", stage.name, err)
					}
					saved = append(saved, path)
				}
			}

			if dotPath, _ := flags.GetString("dot"); dotPath != "" {
				if err := os.WriteFile(dotPath, []byte(visualization.RenderDOT(res.Final)), 0o644); err != nil {
					return fmt.Errorf("failed to write DOT file: %w", err)
				}
			}

			if jsonOut {
				return writeJSON(cmd, map[string]any{
					"params":    p,
					"seed":      seed,
					"initial":   initial,
					"final":     final,
					"totals":    res.Totals,
					"snapshots": saved,
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "N=%d T=%d m=%d mu=%g epsilon=%g seed=%d\n",
				p.Nodes, p.Steps, p.Attachment, p.Mu, p.Epsilon, seed)
			fmt.Fprintf(out, "interactions=%d rewires=%d skipped=%d\n\n",
				res.Totals.Interactions, res.Totals.Rewires, res.Totals.Skipped)

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "METRIC\tINITIAL\tFINAL")
			for _, name := range analysis.Fields([]analysis.Record{final}) {
				fmt.Fprintf(w, "%s\t%.4f\t%.4f\n", name, initial[name], final[name])
			}
			w.Flush()

			for _, path := range saved {
				fmt.Fprintf(out, "\nSaved snapshot %s", path)
			}
			if len(saved) > 0 {
				fmt.Fprintln(out)
			}
			return nil
		},
	}

	cmd.Flags().Int("nodes", 0, "Number of agents")
	cmd.Flags().Int("steps", 0, "Number of sweeps over all agents")
	cmd.Flags().Int("attachment", 0, "Barabási-Albert attachment parameter m")
	cmd.Flags().Float64("mu", 0, "Convergence parameter in [0, 1]")
	cmd.Flags().Float64("epsilon", 0, "Tolerance in [0, 1]")
	cmd.Flags().Uint64("seed", 0, "Random seed (0 picks one and prints it)")
	cmd.Flags().StringSlice("metrics", nil, "Metrics to compute (default: all)")
	cmd.Flags().Bool("save", false, "Save initial and final snapshots under .opynions/snapshots")
	cmd.Flags().String("dot", "", "Write the final network as Graphviz DOT to this file")
	cmd.Flags().Bool("trace", false, "Log counters and variance after every sweep")

	return cmd
}
