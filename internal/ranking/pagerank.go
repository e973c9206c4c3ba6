// Package ranking scores agents by structural influence on the network.
package ranking

import (
	"math"

	"github.com/nvandessel/opynions/internal/graph"
)

// PageRankConfig holds configuration for PageRank computation.
type PageRankConfig struct {
	// DampingFactor (d) is the probability of following an edge vs. teleporting.
	// Standard value: 0.85.
	DampingFactor float64

	// MaxIterations is the maximum number of power iteration steps. Default: 100.
	MaxIterations int

	// Tolerance is the convergence threshold. Default: 1e-6.
	Tolerance float64
}

// DefaultPageRankConfig returns the default PageRank configuration.
func DefaultPageRankConfig() PageRankConfig {
	return PageRankConfig{
		DampingFactor: 0.85,
		MaxIterations: 100,
		Tolerance:     1e-6,
	}
}

// PageRank computes a score per node by power iteration over the undirected
// graph (each edge links both ways):
//
//	PR(v) = (1-d)/N + d * sum(PR(u)/deg(u)) for all neighbors u of v
//
// Iteration stops after MaxIterations or once the largest change falls
// below Tolerance. Isolated nodes only receive the teleport share, so the
// scores sum to at most 1.
func PageRank(g *graph.Graph, config PageRankConfig) []float64 {
	n := g.N()
	if n == 0 {
		return nil
	}

	d := config.DampingFactor
	nf := float64(n)
	scores := make([]float64, n)
	next := make([]float64, n)
	for i := range scores {
		scores[i] = 1.0 / nf
	}

	for iter := 0; iter < config.MaxIterations; iter++ {
		maxDelta := 0.0
		for v := 0; v < n; v++ {
			sum := 0.0
			for _, u := range g.Neighbors(v) {
				sum += scores[u] / float64(g.Degree(u))
			}
			next[v] = (1.0-d)/nf + d*sum
			maxDelta = math.Max(maxDelta, math.Abs(next[v]-scores[v]))
		}
		scores, next = next, scores
		if maxDelta < config.Tolerance {
			break
		}
	}
	return scores
}

// Normalize scales scores in place so the largest becomes 1.
func Normalize(scores []float64) {
	maxScore := 0.0
	for _, s := range scores {
		maxScore = math.Max(maxScore, s)
	}
	if maxScore == 0 {
		return
	}
	for i := range scores {
		scores[i] /= maxScore
	}
}
