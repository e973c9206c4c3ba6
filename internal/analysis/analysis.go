// Package analysis reduces a finished run's graph to named scalar metrics
// and averages those metrics across repeated runs.
package analysis

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/nvandessel/opynions/internal/graph"
)

// Metric field names produced by the built-in analyzers.
const (
	FieldVariance           = "variance"
	FieldNeighborSimilarity = "neighbor_similarity"
	FieldCircularVariance   = "circular_variance"
	FieldComponents         = "components"
	FieldLargestComponent   = "largest_component"
	FieldIsolated           = "isolated_fraction"
	FieldMeanDegree         = "mean_degree"
	FieldHubOpinionGap      = "hub_opinion_gap"
)

var (
	// ErrUnknownField is returned when a metric name is not registered.
	ErrUnknownField = errors.New("unknown metric field")

	// ErrEmptyGraph is returned when asked to analyze a graph with no nodes.
	ErrEmptyGraph = errors.New("graph has no nodes")
)

// Record maps metric names to values for one run or one aggregated point.
type Record map[string]float64

// Analyzer turns a final graph into a Record. Implementations must not
// retain g.
type Analyzer interface {
	Analyze(g *graph.Graph) (Record, error)
}

// AnalyzerFunc adapts a function to the Analyzer interface.
type AnalyzerFunc func(g *graph.Graph) (Record, error)

// Analyze calls f(g).
func (f AnalyzerFunc) Analyze(g *graph.Graph) (Record, error) { return f(g) }

var metrics = map[string]func(*graph.Graph) float64{
	FieldVariance:           Variance,
	FieldNeighborSimilarity: NeighborSimilarity,
	FieldCircularVariance:   CircularVariance,
	FieldComponents: func(g *graph.Graph) float64 {
		count, _ := Components(g)
		return float64(count)
	},
	FieldLargestComponent: func(g *graph.Graph) float64 {
		_, largest := Components(g)
		return float64(largest) / float64(g.N())
	},
	FieldIsolated:      IsolatedFraction,
	FieldMeanDegree:    MeanDegree,
	FieldHubOpinionGap: HubOpinionGap,
}

// FieldNames lists every registered metric, sorted.
func FieldNames() []string {
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type selection []string

func (s selection) Analyze(g *graph.Graph) (Record, error) {
	if g == nil || g.N() == 0 {
		return nil, ErrEmptyGraph
	}
	rec := make(Record, len(s))
	for _, name := range s {
		v := metrics[name](g)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("metric %s is not finite: %v", name, v)
		}
		rec[name] = v
	}
	return rec, nil
}

// Standard returns an analyzer computing every registered metric.
func Standard() Analyzer {
	return selection(FieldNames())
}

// Select returns an analyzer restricted to the named metrics.
func Select(names ...string) (Analyzer, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("select metrics: no fields given: %w", ErrUnknownField)
	}
	out := make(selection, 0, len(names))
	for _, name := range names {
		if _, ok := metrics[name]; !ok {
			return nil, fmt.Errorf("select metrics: %q (known: %v): %w", name, FieldNames(), ErrUnknownField)
		}
		if !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	return out, nil
}
