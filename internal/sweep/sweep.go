// Package sweep fans simulation runs for a grid of (epsilon, mu) points
// out over a bounded worker pool and collects per-point aggregates.
//
// Every (point, run) pair is an independent unit of work with its own
// random stream and its own graph. A failing or panicking run marks only its
// point as failed; the rest of the sweep completes.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nvandessel/opynions/internal/analysis"
	"github.com/nvandessel/opynions/internal/logging"
	"github.com/nvandessel/opynions/internal/simulation"
)

var (
	// ErrNoPoints is returned when a sweep has no epsilon or mu values.
	ErrNoPoints = errors.New("sweep has no parameter points")

	// ErrPool is returned when the worker pool cannot be configured.
	ErrPool = errors.New("worker pool unavailable")

	// ErrRunPanic wraps a panic recovered from a single run.
	ErrRunPanic = errors.New("run panicked")
)

// Runner executes one simulation run. *simulation.Engine satisfies it.
type Runner interface {
	Run(ctx context.Context, p simulation.Params, rng *rand.Rand) (*simulation.Result, error)
}

// Progress is reported each time a point finishes all of its runs.
type Progress struct {
	Done   int         `json:"done"`
	Total  int         `json:"total"`
	Result PointResult `json:"result"`
}

// Orchestrator runs sweeps. Configure it with New and options; an
// Orchestrator may run several sweeps one after another.
type Orchestrator struct {
	settings Settings
	runner   Runner
	analyzer analysis.Analyzer
	workers  int
	seed     uint64
	progress func(Progress)
	logger   *slog.Logger
	events   *logging.EventLogger
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithRunner replaces the default simulation engine.
func WithRunner(r Runner) Option { return func(o *Orchestrator) { o.runner = r } }

// WithAnalyzer replaces the default analysis.Standard analyzer.
func WithAnalyzer(a analysis.Analyzer) Option { return func(o *Orchestrator) { o.analyzer = a } }

// WithWorkers caps the pool size. Zero means runtime.NumCPU().
func WithWorkers(n int) Option { return func(o *Orchestrator) { o.workers = n } }

// WithSeed fixes the base seed. Zero draws a fresh one per sweep.
func WithSeed(seed uint64) Option { return func(o *Orchestrator) { o.seed = seed } }

// WithProgress installs a callback invoked once per finished point. Calls
// are serialized.
func WithProgress(fn func(Progress)) Option { return func(o *Orchestrator) { o.progress = fn } }

// New creates an Orchestrator for the given settings.
func New(settings Settings, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		settings: settings,
		runner:   simulation.NewEngine(),
		analyzer: analysis.Standard(),
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if settings.Runs < 1 {
		return nil, fmt.Errorf("runs must be at least 1, got %d: %w", settings.Runs, simulation.ErrInvalidParams)
	}
	if o.workers < 0 {
		return nil, fmt.Errorf("workers must be non-negative, got %d: %w", o.workers, ErrPool)
	}
	return o, nil
}

// SetLogger sets the operational logger and the event trace.
func (o *Orchestrator) SetLogger(logger *slog.Logger, events *logging.EventLogger) {
	if logger == nil {
		logger = logging.Discard()
	}
	o.logger = logger
	o.events = events
}

// Grid runs every epsilon x mu combination. The report has one row per mu
// and one column per epsilon, in input order.
func (o *Orchestrator) Grid(ctx context.Context, epsilons, mus []float64) (*Report, error) {
	return o.run(ctx, KindGrid, epsilons, mus)
}

// Axis runs every epsilon at a fixed mu. The report has a single row
// aligned with epsilons.
func (o *Orchestrator) Axis(ctx context.Context, epsilons []float64, mu float64) (*Report, error) {
	return o.run(ctx, KindAxis, epsilons, []float64{mu})
}

func (o *Orchestrator) params(pt Point) simulation.Params {
	return simulation.Params{
		Nodes:      o.settings.Nodes,
		Steps:      o.settings.Steps,
		Mu:         pt.Mu,
		Epsilon:    pt.Epsilon,
		Attachment: pt.Attachment,
	}
}

func (o *Orchestrator) run(ctx context.Context, kind Kind, epsilons, mus []float64) (*Report, error) {
	if len(epsilons) == 0 || len(mus) == 0 {
		return nil, fmt.Errorf("%s sweep with %d epsilons and %d mus: %w", kind, len(epsilons), len(mus), ErrNoPoints)
	}

	seed := o.seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	report := &Report{
		Kind:     kind,
		Settings: o.settings,
		Seed:     seed,
		Epsilons: append([]float64(nil), epsilons...),
		Mus:      append([]float64(nil), mus...),
		Points:   make([]PointResult, 0, len(epsilons)*len(mus)),
		Started:  time.Now().UTC(),
	}

	// Validate every point before any work starts.
	for row, mu := range mus {
		for col, eps := range epsilons {
			pt := Point{Epsilon: eps, Mu: mu, Attachment: o.settings.Attachment}
			if err := o.params(pt).Validate(); err != nil {
				return nil, fmt.Errorf("point (mu=%v, epsilon=%v): %w", mu, eps, err)
			}
			report.Points = append(report.Points, PointResult{Point: pt, Row: row, Col: col})
		}
	}

	runs := o.settings.Runs
	units := len(report.Points) * runs
	workers := o.workers
	if workers == 0 {
		workers = runtime.NumCPU()
	}
	workers = min(workers, units)

	o.logger.Info("sweep started", "kind", kind, "points", len(report.Points), "runs", runs, "workers", workers, "seed", seed)
	o.events.Log(map[string]any{
		"event": "sweep_started", "kind": string(kind), "points": len(report.Points),
		"runs": runs, "workers": workers, "seed": seed,
	})

	records := make([][]analysis.Record, len(report.Points))
	runErrs := make([][]error, len(report.Points))
	remaining := make([]int, len(report.Points))
	for i := range records {
		records[i] = make([]analysis.Record, runs)
		runErrs[i] = make([]error, runs)
		remaining[i] = runs
	}

	var (
		mu   sync.Mutex
		done int
	)
	finish := func(p int) {
		mu.Lock()
		defer mu.Unlock()
		remaining[p]--
		if remaining[p] > 0 {
			return
		}
		done++
		res := &report.Points[p]
		o.collect(res, records[p], runErrs[p])
		records[p] = nil
		if res.Failed() {
			o.logger.Warn("point failed", "mu", res.Point.Mu, "epsilon", res.Point.Epsilon, "error", res.Err)
		} else {
			o.logger.Debug("point done", "mu", res.Point.Mu, "epsilon", res.Point.Epsilon, "done", done, "total", len(report.Points))
		}
		o.events.Log(map[string]any{
			"event": "point_done", "mu": res.Point.Mu, "epsilon": res.Point.Epsilon,
			"failed": res.Failed(), "error": res.Error,
		})
		if o.progress != nil {
			o.progress(Progress{Done: done, Total: len(report.Points), Result: *res})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for p := range report.Points {
		for r := 0; r < runs; r++ {
			if gctx.Err() != nil {
				break
			}
			pt := report.Points[p].Point
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				rec, err := o.runOne(gctx, pt, runRNG(seed, p, r, runs))
				if err != nil && gctx.Err() != nil && errors.Is(err, gctx.Err()) {
					return err
				}
				records[p][r], runErrs[p][r] = rec, err
				finish(p)
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		o.logger.Warn("sweep cancelled", "error", err)
		return nil, fmt.Errorf("%s sweep cancelled: %w", kind, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s sweep cancelled: %w", kind, err)
	}

	report.Finished = time.Now().UTC()
	o.logger.Info("sweep finished", "kind", kind, "succeeded", report.Succeeded(), "failed", len(report.Failures()),
		"elapsed", report.Finished.Sub(report.Started))
	o.events.Log(map[string]any{
		"event": "sweep_finished", "kind": string(kind),
		"succeeded": report.Succeeded(), "failed": len(report.Failures()),
	})
	return report, nil
}

// runOne performs a single run and hands its final graph to the analyzer.
// The graph is unreachable once this returns.
func (o *Orchestrator) runOne(ctx context.Context, pt Point, rng *rand.Rand) (rec analysis.Record, err error) {
	defer func() {
		if v := recover(); v != nil {
			rec, err = nil, fmt.Errorf("%w: %v", ErrRunPanic, v)
		}
	}()

	res, err := o.runner.Run(ctx, o.params(pt), rng)
	if err != nil {
		return nil, err
	}
	if res == nil || res.Final == nil {
		return nil, errors.New("runner returned no final graph")
	}
	return o.analyzer.Analyze(res.Final)
}

// collect folds the run outcomes of one point into its result.
func (o *Orchestrator) collect(res *PointResult, recs []analysis.Record, errs []error) {
	for r, err := range errs {
		if err == nil {
			continue
		}
		res.FailedRuns++
		if res.Err == nil {
			res.Err = fmt.Errorf("point (mu=%v, epsilon=%v) run %d: %w", res.Point.Mu, res.Point.Epsilon, r, err)
		}
	}
	if res.Err != nil {
		res.Error = res.Err.Error()
		return
	}
	res.Summary = analysis.Aggregate(recs)
}
