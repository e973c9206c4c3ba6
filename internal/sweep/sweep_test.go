package sweep

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nvandessel/opynions/internal/analysis"
	"github.com/nvandessel/opynions/internal/graph"
	"github.com/nvandessel/opynions/internal/simulation"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func smallSettings() Settings {
	return Settings{Nodes: 20, Steps: 3, Attachment: 2, Runs: 1}
}

// runnerFunc adapts a function to Runner.
type runnerFunc func(ctx context.Context, p simulation.Params, rng *rand.Rand) (*simulation.Result, error)

func (f runnerFunc) Run(ctx context.Context, p simulation.Params, rng *rand.Rand) (*simulation.Result, error) {
	return f(ctx, p, rng)
}

// echoRunner returns a two-node graph whose opinions encode mu and epsilon,
// so the variance identifies the point that produced it.
func echoRunner() Runner {
	return runnerFunc(func(_ context.Context, p simulation.Params, _ *rand.Rand) (*simulation.Result, error) {
		g := graph.New(2)
		g.SetOpinion(0, p.Mu)
		g.SetOpinion(1, p.Epsilon)
		return &simulation.Result{Final: g, Initial: g.Clone()}, nil
	})
}

func TestGrid_KeyedByPoint(t *testing.T) {
	o, err := New(smallSettings(), WithSeed(7))
	require.NoError(t, err)

	report, err := o.Grid(context.Background(), []float64{0.1, 0.2}, []float64{0.3, 0.4})
	require.NoError(t, err)

	require.Len(t, report.Points, 4)
	assert.Equal(t, 2, report.Rows())
	assert.Equal(t, 2, report.Cols())
	for _, mu := range []float64{0.3, 0.4} {
		for _, eps := range []float64{0.1, 0.2} {
			p, ok := report.Lookup(mu, eps)
			require.True(t, ok, "missing (mu=%v, eps=%v)", mu, eps)
			assert.False(t, p.Failed())
			assert.Equal(t, 1, p.Summary.Runs)
			assert.Contains(t, p.Summary.Mean, analysis.FieldVariance)
		}
	}
	assert.Equal(t, uint64(7), report.Seed)
	assert.False(t, report.Finished.Before(report.Started))
}

func TestGrid_RowMajorLayout(t *testing.T) {
	a, err := analysis.Select(analysis.FieldVariance)
	require.NoError(t, err)
	o, err := New(Settings{Nodes: 2, Steps: 2, Attachment: 1, Runs: 2},
		WithRunner(echoRunner()), WithAnalyzer(a), WithWorkers(3))
	require.NoError(t, err)

	eps := []float64{0.0, 0.5, 1.0}
	mus := []float64{0.2, 0.6}
	report, err := o.Grid(context.Background(), eps, mus)
	require.NoError(t, err)

	for row, mu := range mus {
		for col, e := range eps {
			p := report.At(row, col)
			assert.Equal(t, mu, p.Point.Mu)
			assert.Equal(t, e, p.Point.Epsilon)
			assert.Equal(t, row, p.Row)
			assert.Equal(t, col, p.Col)
			d := (mu - e) / 2
			assert.InDelta(t, d*d, p.Summary.Mean[analysis.FieldVariance], 1e-12)
			assert.InDelta(t, 0, p.Summary.Std[analysis.FieldVariance], 1e-12)
		}
	}
	m := report.Matrix(analysis.FieldVariance)
	require.Len(t, m, 2)
	require.Len(t, m[0], 3)
}

func TestAxis_SeriesFollowsEpsilonOrder(t *testing.T) {
	a, err := analysis.Select(analysis.FieldVariance)
	require.NoError(t, err)
	o, err := New(Settings{Nodes: 2, Steps: 2, Attachment: 1, Runs: 3},
		WithRunner(echoRunner()), WithAnalyzer(a))
	require.NoError(t, err)

	eps := []float64{0.9, 0.1, 0.5}
	report, err := o.Axis(context.Background(), eps, 0.5)
	require.NoError(t, err)

	assert.Equal(t, KindAxis, report.Kind)
	assert.Equal(t, []float64{0.5}, report.Mus)
	series := report.Series(analysis.FieldVariance)
	require.Len(t, series, 3)
	for i, e := range eps {
		d := (0.5 - e) / 2
		assert.InDelta(t, d*d, series[i], 1e-12)
	}
}

func TestGrid_FailureIsolatedToPoint(t *testing.T) {
	boom := errors.New("boom")
	runner := runnerFunc(func(ctx context.Context, p simulation.Params, rng *rand.Rand) (*simulation.Result, error) {
		if p.Mu == 0.4 && p.Epsilon == 0.2 {
			return nil, boom
		}
		return echoRunner().Run(ctx, p, rng)
	})
	o, err := New(Settings{Nodes: 2, Steps: 2, Attachment: 1, Runs: 2}, WithRunner(runner))
	require.NoError(t, err)

	report, err := o.Grid(context.Background(), []float64{0.1, 0.2}, []float64{0.3, 0.4})
	require.NoError(t, err)

	failures := report.Failures()
	require.Len(t, failures, 1)
	f := failures[0]
	assert.Equal(t, 0.4, f.Point.Mu)
	assert.Equal(t, 0.2, f.Point.Epsilon)
	assert.ErrorIs(t, f.Err, boom)
	assert.Contains(t, f.Error, "mu=0.4")
	assert.Contains(t, f.Error, "epsilon=0.2")
	assert.Equal(t, 2, f.FailedRuns)
	assert.Equal(t, 3, report.Succeeded())
	assert.True(t, isNaN(report.Matrix(analysis.FieldVariance)[1][1]))
}

func TestGrid_PanicIsolated(t *testing.T) {
	runner := runnerFunc(func(ctx context.Context, p simulation.Params, rng *rand.Rand) (*simulation.Result, error) {
		if p.Epsilon == 0.1 {
			panic("bad run")
		}
		return echoRunner().Run(ctx, p, rng)
	})
	o, err := New(Settings{Nodes: 2, Steps: 2, Attachment: 1, Runs: 1}, WithRunner(runner))
	require.NoError(t, err)

	report, err := o.Axis(context.Background(), []float64{0.1, 0.2}, 0.3)
	require.NoError(t, err)
	assert.ErrorIs(t, report.At(0, 0).Err, ErrRunPanic)
	assert.False(t, report.At(0, 1).Failed())
}

func TestGrid_InvalidPointRejectedUpFront(t *testing.T) {
	var calls atomic.Int32
	runner := runnerFunc(func(ctx context.Context, p simulation.Params, rng *rand.Rand) (*simulation.Result, error) {
		calls.Add(1)
		return echoRunner().Run(ctx, p, rng)
	})
	o, err := New(smallSettings(), WithRunner(runner))
	require.NoError(t, err)

	_, err = o.Grid(context.Background(), []float64{0.1, 1.5}, []float64{0.3})
	assert.ErrorIs(t, err, simulation.ErrInvalidParams)
	assert.Zero(t, calls.Load())
}

func TestGrid_EmptyRange(t *testing.T) {
	o, err := New(smallSettings())
	require.NoError(t, err)
	_, err = o.Grid(context.Background(), nil, []float64{0.3})
	assert.ErrorIs(t, err, ErrNoPoints)
	_, err = o.Axis(context.Background(), []float64{}, 0.3)
	assert.ErrorIs(t, err, ErrNoPoints)
}

func TestNew_RejectsBadPool(t *testing.T) {
	_, err := New(smallSettings(), WithWorkers(-1))
	assert.ErrorIs(t, err, ErrPool)

	s := smallSettings()
	s.Runs = 0
	_, err = New(s)
	assert.ErrorIs(t, err, simulation.ErrInvalidParams)
}

func TestGrid_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var once sync.Once
	runner := runnerFunc(func(ctx context.Context, p simulation.Params, rng *rand.Rand) (*simulation.Result, error) {
		once.Do(cancel)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	o, err := New(Settings{Nodes: 2, Steps: 2, Attachment: 1, Runs: 4}, WithRunner(runner), WithWorkers(2))
	require.NoError(t, err)

	report, err := o.Grid(ctx, []float64{0.1, 0.2}, []float64{0.3, 0.4})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, report)
}

func TestGrid_DeterministicForSeed(t *testing.T) {
	run := func(workers int) *Report {
		o, err := New(smallSettings(), WithSeed(42), WithWorkers(workers))
		require.NoError(t, err)
		report, err := o.Grid(context.Background(), []float64{0.1, 0.3}, []float64{0.2, 0.5})
		require.NoError(t, err)
		return report
	}
	a, b := run(1), run(4)
	for i := range a.Points {
		assert.Equal(t, a.Points[i].Summary, b.Points[i].Summary)
	}
}

func TestGrid_ProgressPerPoint(t *testing.T) {
	var seen []Progress
	o, err := New(Settings{Nodes: 2, Steps: 2, Attachment: 1, Runs: 3},
		WithRunner(echoRunner()), WithProgress(func(p Progress) { seen = append(seen, p) }))
	require.NoError(t, err)

	_, err = o.Grid(context.Background(), []float64{0.1, 0.2}, []float64{0.3})
	require.NoError(t, err)
	require.Len(t, seen, 2)
	assert.Equal(t, 2, seen[1].Done)
	assert.Equal(t, 2, seen[1].Total)
}

func TestRunRNG_Independent(t *testing.T) {
	a := runRNG(1, 0, 0, 2).Uint64()
	b := runRNG(1, 0, 1, 2).Uint64()
	c := runRNG(1, 1, 0, 2).Uint64()
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, a, runRNG(1, 0, 0, 2).Uint64())
}

func TestLinspace(t *testing.T) {
	got, err := Linspace(0, 1, 5)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 0.25, 0.5, 0.75, 1}, got, 1e-12)

	one, err := Linspace(0.3, 0.9, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.3}, one)

	_, err = Linspace(0, 1, 0)
	assert.Error(t, err)

	// Oversized counts are rejected instead of attempting the allocation.
	_, err = Linspace(0, 1, 1<<62)
	assert.Error(t, err)
	full, err := Linspace(0, 1, MaxLinspaceCount)
	require.NoError(t, err)
	assert.Len(t, full, MaxLinspaceCount)
}

func isNaN(v float64) bool { return v != v }
