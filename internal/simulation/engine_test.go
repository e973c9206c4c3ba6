package simulation

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/nvandessel/opynions/internal/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func validParams() Params {
	return Params{Nodes: 100, Steps: 5, Mu: 0.3, Epsilon: 0.2, Attachment: 2}
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
		substr string
	}{
		{"one node", func(p *Params) { p.Nodes = 1 }, "nodes"},
		{"one step", func(p *Params) { p.Steps = 1 }, "steps"},
		{"negative mu", func(p *Params) { p.Mu = -0.01 }, "-0.01"},
		{"epsilon above one", func(p *Params) { p.Epsilon = 1.5 }, "1.5"},
		{"zero attachment", func(p *Params) { p.Attachment = 0 }, "attachment"},
		{"attachment too wide", func(p *Params) { p.Attachment = 100 }, "attachment"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validParams()
			tt.mutate(&p)
			err := p.Validate()
			require.ErrorIs(t, err, ErrInvalidParams)
			assert.Contains(t, err.Error(), tt.substr)
		})
	}
	assert.NoError(t, validParams().Validate())
}

func TestRun_InvalidParamsDoNoWork(t *testing.T) {
	called := false
	gen := graph.GeneratorFunc(func(n, m int, rng *rand.Rand) (*graph.Graph, error) {
		called = true
		return graph.New(n), nil
	})
	p := validParams()
	p.Steps = 0

	_, err := NewEngine(WithGenerator(gen)).Run(context.Background(), p, newRNG(1))
	assert.ErrorIs(t, err, ErrInvalidParams)
	assert.False(t, called, "generator must not run for invalid params")
}

func TestRun_InitialSnapshotIsPostInitialization(t *testing.T) {
	p := validParams()
	res, err := NewEngine().Run(context.Background(), p, newRNG(5))
	require.NoError(t, err)

	want, err := Initialize(p, graph.BarabasiAlbert{}, newRNG(5))
	require.NoError(t, err)
	assert.True(t, res.Initial.Equal(want), "initial snapshot must match the freshly initialized graph")
	assert.False(t, res.Final.Equal(res.Initial), "sweeps should have moved opinions")

	assert.Equal(t, p.Nodes, res.Final.N())
	assert.Equal(t, p.Steps, res.Totals.Step)
	assert.Equal(t, p.Nodes*p.Steps, res.Totals.Interactions+res.Totals.Skipped)
}

func TestRun_MuZeroKeepsOpinions(t *testing.T) {
	p := validParams()
	p.Mu = 0
	res, err := NewEngine().Run(context.Background(), p, newRNG(8))
	require.NoError(t, err)
	assert.Equal(t, res.Initial.Opinions(), res.Final.Opinions())
}

func TestRun_OpinionsStayInUnitInterval(t *testing.T) {
	p := Params{Nodes: 300, Steps: 20, Mu: 0.5, Epsilon: 0.1, Attachment: 3}
	res, err := NewEngine().Run(context.Background(), p, newRNG(13))
	require.NoError(t, err)
	for i, o := range res.Final.Opinions() {
		assert.True(t, o >= 0 && o <= 1, "node %d opinion %v", i, o)
	}
	assert.Greater(t, res.Totals.Rewires, 0)
}

func TestRun_Deterministic(t *testing.T) {
	p := validParams()
	a, err := NewEngine().Run(context.Background(), p, newRNG(21))
	require.NoError(t, err)
	b, err := NewEngine().Run(context.Background(), p, newRNG(21))
	require.NoError(t, err)
	assert.True(t, a.Final.Equal(b.Final))
}

func TestRun_ObserverSeesEverySweep(t *testing.T) {
	p := validParams()
	var steps []int
	eng := NewEngine(WithObserver(func(s StepStats, g *graph.Graph) {
		steps = append(steps, s.Step)
		assert.Equal(t, p.Nodes, g.N())
	}))
	_, err := eng.Run(context.Background(), p, newRNG(3))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, steps)
}

func TestRun_CancelledBetweenSweeps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := validParams()
	eng := NewEngine(WithObserver(func(s StepStats, _ *graph.Graph) {
		if s.Step == 1 {
			cancel()
		}
	}))
	_, err := eng.Run(ctx, p, newRNG(4))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRun_GeneratorFailure(t *testing.T) {
	boom := errors.New("boom")
	gen := graph.GeneratorFunc(func(n, m int, rng *rand.Rand) (*graph.Graph, error) {
		return nil, boom
	})
	_, err := NewEngine(WithGenerator(gen)).Run(context.Background(), validParams(), newRNG(1))
	assert.ErrorIs(t, err, boom)
}

func TestSweep_PathScenario(t *testing.T) {
	g, err := graph.FromEdges(4, []graph.Edge{{U: 0, V: 1}, {U: 1, V: 2}, {U: 2, V: 3}})
	require.NoError(t, err)
	for i, o := range []float64{0.1, 0.9, 0.5, 0.5} {
		g.SetOpinion(i, o)
	}
	p := Params{Mu: 0.5, Epsilon: 0.3}

	stats, err := Sweep(g, []int{0, 1, 2, 3}, p, newRNG(2))
	require.NoError(t, err)

	// Node 0 pulls node 1 across the wrap-around to 0.5; afterwards every
	// opinion is 0.5 and nothing rewires.
	for i, o := range g.Opinions() {
		assert.InDelta(t, 0.5, o, 1e-9, "node %d", i)
	}
	assert.Equal(t, 0, stats.Rewires)
	assert.Equal(t, 4, stats.Interactions)
	assert.Equal(t, []graph.Edge{{U: 0, V: 1}, {U: 1, V: 2}, {U: 2, V: 3}}, g.Edges())
}

func TestSweep_IsolatedNodeUnchanged(t *testing.T) {
	g, err := graph.FromEdges(4, []graph.Edge{{U: 0, V: 1}, {U: 1, V: 2}})
	require.NoError(t, err)
	for i, o := range []float64{0.2, 0.4, 0.6, 0.8} {
		g.SetOpinion(i, o)
	}
	p := Params{Mu: 0.5, Epsilon: 1}

	stats, err := Sweep(g, []int{3, 2, 1, 0}, p, newRNG(6))
	require.NoError(t, err)
	assert.Equal(t, 0.8, g.Opinion(3))
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 0, stats.Rewires)
}

func TestSweep_RewireKeepsNodeSet(t *testing.T) {
	g, err := graph.FromEdges(5, []graph.Edge{{U: 0, V: 1}})
	require.NoError(t, err)
	g.SetOpinion(0, 0.1)
	g.SetOpinion(1, 0.4)
	p := Params{Mu: 0.1, Epsilon: 0.05}

	stats, err := Sweep(g, []int{0}, p, newRNG(10))
	require.NoError(t, err)
	require.Equal(t, 1, stats.Rewires)
	assert.Equal(t, 5, g.N())
	assert.Equal(t, 1, g.Degree(0), "node 0 keeps exactly one tie after rewiring")
	assert.LessOrEqual(t, g.EdgeCount(), 1)
}
