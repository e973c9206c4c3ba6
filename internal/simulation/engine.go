package simulation

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/nvandessel/opynions/internal/graph"
	"github.com/nvandessel/opynions/internal/opinion"
)

// StepStats counts what happened during one sweep.
type StepStats struct {
	Step         int `json:"step"`
	Interactions int `json:"interactions"`
	Rewires      int `json:"rewires"`
	Skipped      int `json:"skipped"` // visited nodes with no neighbor
}

// Observer receives the graph and counters after every sweep. The graph
// must not be retained or mutated.
type Observer func(stats StepStats, g *graph.Graph)

// Result is the outcome of one run.
type Result struct {
	// Final is the graph after the last sweep.
	Final *graph.Graph

	// Initial is a deep copy taken right after initialization.
	Initial *graph.Graph

	// Totals sums StepStats over all sweeps; Totals.Step holds the sweep count.
	Totals StepStats
}

// Engine runs simulations. The zero value is not usable; use NewEngine.
type Engine struct {
	generator graph.Generator
	observer  Observer
}

// Option customizes an Engine.
type Option func(*Engine)

// WithGenerator replaces the scale-free generator used for initialization.
func WithGenerator(g graph.Generator) Option {
	return func(e *Engine) { e.generator = g }
}

// WithObserver installs a per-sweep callback.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// NewEngine creates an engine backed by the Barabási–Albert generator.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{generator: graph.BarabasiAlbert{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run validates p, builds the initial graph from rng and performs p.Steps
// sweeps. Cancellation is honored between sweeps only, never inside one.
func (e *Engine) Run(ctx context.Context, p Params, rng *rand.Rand) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	g, err := Initialize(p, e.generator, rng)
	if err != nil {
		return nil, err
	}

	res := &Result{Final: g, Initial: g.Clone()}
	for t := 0; t < p.Steps; t++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("run cancelled before sweep %d: %w", t, err)
		}

		stats, err := Sweep(g, rng.Perm(g.N()), p, rng)
		if err != nil {
			return nil, fmt.Errorf("sweep %d: %w", t, err)
		}
		stats.Step = t

		res.Totals.Interactions += stats.Interactions
		res.Totals.Rewires += stats.Rewires
		res.Totals.Skipped += stats.Skipped
		if e.observer != nil {
			e.observer(stats, g)
		}
	}
	res.Totals.Step = p.Steps

	return res, nil
}

// Initialize generates the topology and draws every opinion uniformly from [0, 1).
func Initialize(p Params, gen graph.Generator, rng *rand.Rand) (*graph.Graph, error) {
	g, err := gen.Generate(p.Nodes, p.Attachment, rng)
	if err != nil {
		return nil, fmt.Errorf("initialize graph: %w", err)
	}
	if g.N() != p.Nodes {
		return nil, fmt.Errorf("initialize graph: generator returned %d nodes, want %d", g.N(), p.Nodes)
	}
	for i := 0; i < g.N(); i++ {
		g.SetOpinion(i, rng.Float64())
	}
	return g, nil
}

// Sweep visits the nodes in order, mutating g in place. Only p.Mu and
// p.Epsilon are read.
func Sweep(g *graph.Graph, order []int, p Params, rng *rand.Rand) (StepStats, error) {
	var stats StepStats
	for _, node := range order {
		nb, ok := g.RandomNeighbor(node, rng)
		if !ok {
			stats.Skipped++
			continue
		}

		i, j, err := opinion.Adjust(g.Opinion(node), g.Opinion(nb), p.Mu, p.Epsilon)
		if err != nil {
			return stats, fmt.Errorf("node %d with neighbor %d: %w", node, nb, err)
		}
		g.SetOpinion(node, i)
		g.SetOpinion(nb, j)
		stats.Interactions++

		if math.Abs(i-j) > p.Epsilon {
			// The new partner may be the old one or an existing neighbor;
			// then the rewire leaves the edge set unchanged or shrinks it.
			w := g.RandomNodeExcept(node, rng)
			g.RemoveEdge(node, nb)
			if _, err := g.AddEdge(node, w); err != nil {
				return stats, fmt.Errorf("rewire node %d to %d: %w", node, w, err)
			}
			stats.Rewires++
		}
	}
	return stats, nil
}
