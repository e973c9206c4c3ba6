package main

import (
	"fmt"
	"io"
	"math"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/opynions/internal/analysis"
	"github.com/nvandessel/opynions/internal/config"
	"github.com/nvandessel/opynions/internal/logging"
	"github.com/nvandessel/opynions/internal/store"
	"github.com/nvandessel/opynions/internal/sweep"
)

func newSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run parallel parameter sweeps",
		Long: `Run many simulations across a range of parameters on a worker pool.

Each point is simulated --runs times with independent seeds and the
metrics are averaged. Results are stored in the project database.

Examples:
  opynions sweep grid                                  # epsilon x mu from config
  opynions sweep grid --eps-points 21 --mu-points 21 --runs 20
  opynions sweep axis --mu 0.3 --eps-start 0 --eps-stop 0.5 --eps-points 26`,
	}

	cmd.AddCommand(newSweepGridCmd(), newSweepAxisCmd())
	return cmd
}

func newSweepGridCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grid",
		Short: "Sweep the epsilon x mu grid",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd, sweep.KindGrid)
		},
	}
	addSweepFlags(cmd)
	cmd.Flags().Float64("mu-start", 0, "First mu value")
	cmd.Flags().Float64("mu-stop", 0, "Last mu value")
	cmd.Flags().Int("mu-points", 0, "Number of mu values")
	return cmd
}

func newSweepAxisCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "axis",
		Short: "Sweep epsilon at a fixed mu",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd, sweep.KindAxis)
		},
	}
	addSweepFlags(cmd)
	cmd.Flags().Float64("mu", 0, "Fixed mu (default simulation.mu)")
	return cmd
}

func addSweepFlags(cmd *cobra.Command) {
	cmd.Flags().Float64("eps-start", 0, "First epsilon value")
	cmd.Flags().Float64("eps-stop", 0, "Last epsilon value")
	cmd.Flags().Int("eps-points", 0, "Number of epsilon values")
	cmd.Flags().Int("runs", 0, "Independent runs per point")
	cmd.Flags().Int("workers", 0, "Worker pool size (0 uses every CPU)")
	cmd.Flags().Uint64("seed", 0, "Base seed (0 picks one)")
	cmd.Flags().Int("nodes", 0, "Number of agents")
	cmd.Flags().Int("steps", 0, "Sweeps per run")
	cmd.Flags().Int("attachment", 0, "Barabási-Albert attachment parameter m")
	cmd.Flags().String("field", analysis.FieldVariance, "Metric to print as a matrix")
	cmd.Flags().Bool("no-save", false, "Do not store the report")
	cmd.Flags().Bool("quiet", false, "Suppress per-point progress")
}

// sweepRanges resolves the epsilon and mu values from flags over config.
func sweepRanges(cmd *cobra.Command, cfg *config.OpynionsConfig, kind sweep.Kind) (epsilons, mus []float64, err error) {
	flags := cmd.Flags()
	resolve := func(r config.RangeConfig, prefix string) config.RangeConfig {
		if flags.Changed(prefix + "-start") {
			r.Start, _ = flags.GetFloat64(prefix + "-start")
		}
		if flags.Changed(prefix + "-stop") {
			r.Stop, _ = flags.GetFloat64(prefix + "-stop")
		}
		if flags.Changed(prefix + "-points") {
			r.Points, _ = flags.GetInt(prefix + "-points")
		}
		return r
	}

	er := resolve(cfg.Sweep.Epsilon, "eps")
	if epsilons, err = sweep.Linspace(er.Start, er.Stop, er.Points); err != nil {
		return nil, nil, fmt.Errorf("epsilon range: %w", err)
	}

	if kind == sweep.KindAxis {
		mu := cfg.Simulation.Mu
		if flags.Changed("mu") {
			mu, _ = flags.GetFloat64("mu")
		}
		return epsilons, []float64{mu}, nil
	}

	mr := resolve(cfg.Sweep.Mu, "mu")
	if mus, err = sweep.Linspace(mr.Start, mr.Stop, mr.Points); err != nil {
		return nil, nil, fmt.Errorf("mu range: %w", err)
	}
	return epsilons, mus, nil
}

func runSweep(cmd *cobra.Command, kind sweep.Kind) error {
	jsonOut, _ := cmd.Flags().GetBool("json")
	root, cfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg)
	flags := cmd.Flags()

	field, _ := flags.GetString("field")
	if !slices.Contains(analysis.FieldNames(), field) {
		return fmt.Errorf("field %q (known: %s): %w", field, strings.Join(analysis.FieldNames(), ", "), analysis.ErrUnknownField)
	}

	epsilons, mus, err := sweepRanges(cmd, cfg, kind)
	if err != nil {
		return err
	}

	settings := sweep.Settings{
		Nodes:      cfg.Simulation.Nodes,
		Steps:      cfg.Simulation.Steps,
		Attachment: cfg.Simulation.Attachment,
		Runs:       cfg.Sweep.Runs,
	}
	if flags.Changed("nodes") {
		settings.Nodes, _ = flags.GetInt("nodes")
	}
	if flags.Changed("steps") {
		settings.Steps, _ = flags.GetInt("steps")
	}
	if flags.Changed("attachment") {
		settings.Attachment, _ = flags.GetInt("attachment")
	}
	if flags.Changed("runs") {
		settings.Runs, _ = flags.GetInt("runs")
	}
	workers := cfg.Sweep.Workers
	if flags.Changed("workers") {
		workers, _ = flags.GetInt("workers")
	}
	seed := cfg.Sweep.Seed
	if flags.Changed("seed") {
		seed, _ = flags.GetUint64("seed")
	}

	quiet, _ := flags.GetBool("quiet")
	progress := func(p sweep.Progress) {
		if quiet || jsonOut {
			return
		}
		status := "ok"
		if p.Result.Failed() {
			status = "FAILED: " + p.Result.Error
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "[%d/%d] mu=%.4g epsilon=%.4g %s\n",
			p.Done, p.Total, p.Result.Point.Mu, p.Result.Point.Epsilon, status)
	}

	orch, err := sweep.New(settings,
		sweep.WithWorkers(workers),
		sweep.WithSeed(seed),
		sweep.WithProgress(progress))
	if err != nil {
		return err
	}
	events := logging.NewEventLogger(store.LocalPath(root), cfg.Logging.Level)
	defer events.Close()
	orch.SetLogger(logger, events)

	ctx, cancel := withSignals(cmd.Context())
	defer cancel()

	var report *sweep.Report
	if kind == sweep.KindAxis {
		report, err = orch.Axis(ctx, epsilons, mus[0])
	} else {
		report, err = orch.Grid(ctx, epsilons, mus)
	}
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("sweep interrupted: %w", err)
		}
		return fmt.Errorf("sweep failed: %w", err)
	}

	if noSave, _ := flags.GetBool("no-save"); !noSave {
		s, err := openStore(root, cfg)
		if err != nil {
			return err
		}
		defer s.Close()
		if _, err := s.SaveReport(ctx, report); err != nil {
			return fmt.Errorf("failed to save sweep: %w", err)
		}
	}

	if jsonOut {
		return writeJSON(cmd, report)
	}
	printReport(cmd.OutOrStdout(), report, field)
	return nil
}

// printReport writes a header line, the field matrix and any failures.
func printReport(out io.Writer, r *sweep.Report, field string) {
	id := r.ID
	if id == "" {
		id = "(not saved)"
	}
	fmt.Fprintf(out, "Sweep %s: %s, N=%d T=%d m=%d runs=%d seed=%d\n",
		id, r.Kind, r.Settings.Nodes, r.Settings.Steps, r.Settings.Attachment, r.Settings.Runs, r.Seed)
	fmt.Fprintf(out, "%d of %d points succeeded, %s\n\n", r.Succeeded(), len(r.Points), r.Finished.Sub(r.Started).Round(time.Millisecond))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(w, "%s mu\\eps\t", field)
	for _, eps := range r.Epsilons {
		fmt.Fprintf(w, "%.3g\t", eps)
	}
	fmt.Fprintln(w)
	for row, values := range r.Matrix(field) {
		fmt.Fprintf(w, "%.3g\t", r.Mus[row])
		for _, v := range values {
			if math.IsNaN(v) {
				fmt.Fprint(w, "-\t")
			} else {
				fmt.Fprintf(w, "%.4f\t", v)
			}
		}
		fmt.Fprintln(w)
	}
	w.Flush()

	if failures := r.Failures(); len(failures) > 0 {
		fmt.Fprintf(out, "\nFailed points:\n")
		for _, f := range failures {
			fmt.Fprintf(out, "  mu=%g epsilon=%g: %s\n", f.Point.Mu, f.Point.Epsilon, f.Error)
		}
	}
}
