package analysis

import (
	"math"
	"math/cmplx"

	"github.com/nvandessel/opynions/internal/graph"
	"github.com/nvandessel/opynions/internal/ranking"
)

// Variance is the population variance of all opinions.
func Variance(g *graph.Graph) float64 {
	n := float64(g.N())
	mean := 0.0
	for i := 0; i < g.N(); i++ {
		mean += g.Opinion(i)
	}
	mean /= n

	ss := 0.0
	for i := 0; i < g.N(); i++ {
		d := g.Opinion(i) - mean
		ss += d * d
	}
	return ss / n
}

// NeighborSimilarity averages 1-|o_i-o_j| over every ordered pair of
// neighbors. A graph without edges scores 0.
func NeighborSimilarity(g *graph.Graph) float64 {
	total, pairs := 0.0, 0
	for u := 0; u < g.N(); u++ {
		for _, v := range g.Neighbors(u) {
			total += 1 - math.Abs(g.Opinion(u)-g.Opinion(v))
			pairs++
		}
	}
	if pairs == 0 {
		return 0
	}
	return total / float64(pairs)
}

// CircularVariance treats opinions as angles on the periodic scale and
// returns 1 - |mean resultant vector|: 0 for consensus, near 1 for
// opinions spread evenly around the circle.
func CircularVariance(g *graph.Graph) float64 {
	var sum complex128
	for i := 0; i < g.N(); i++ {
		sum += cmplx.Exp(complex(0, 2*math.Pi*g.Opinion(i)))
	}
	return 1 - cmplx.Abs(sum)/float64(g.N())
}

// Components returns the number of connected components and the size of
// the largest one.
func Components(g *graph.Graph) (count, largest int) {
	seen := make([]bool, g.N())
	stack := make([]int, 0, 64)
	for s := range seen {
		if seen[s] {
			continue
		}
		count++
		size := 0
		seen[s] = true
		stack = append(stack[:0], s)
		for len(stack) > 0 {
			u := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			size++
			for _, v := range g.Neighbors(u) {
				if !seen[v] {
					seen[v] = true
					stack = append(stack, v)
				}
			}
		}
		largest = max(largest, size)
	}
	return count, largest
}

// IsolatedFraction is the share of nodes with no neighbors.
func IsolatedFraction(g *graph.Graph) float64 {
	isolated := 0
	for i := 0; i < g.N(); i++ {
		if g.Degree(i) == 0 {
			isolated++
		}
	}
	return float64(isolated) / float64(g.N())
}

// MeanDegree is 2E/N.
func MeanDegree(g *graph.Graph) float64 {
	return 2 * float64(g.EdgeCount()) / float64(g.N())
}

// HubOpinionGap is the absolute difference between the PageRank-weighted
// mean opinion and the plain mean, i.e. how far structurally central
// agents sit from the population.
func HubOpinionGap(g *graph.Graph) float64 {
	scores := ranking.PageRank(g, ranking.DefaultPageRankConfig())
	var weighted, weights, plain float64
	for i, s := range scores {
		weighted += s * g.Opinion(i)
		weights += s
		plain += g.Opinion(i)
	}
	plain /= float64(g.N())
	if weights == 0 {
		return 0
	}
	return math.Abs(weighted/weights - plain)
}
