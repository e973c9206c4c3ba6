package graph

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

// ErrAttachment is returned when the attachment width is invalid for n.
var ErrAttachment = errors.New("invalid attachment width")

// Generator produces the initial topology of a run.
type Generator interface {
	Generate(n, m int, rng *rand.Rand) (*Graph, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(n, m int, rng *rand.Rand) (*Graph, error)

// Generate calls f(n, m, rng).
func (f GeneratorFunc) Generate(n, m int, rng *rand.Rand) (*Graph, error) { return f(n, m, rng) }

// BarabasiAlbert grows a scale-free graph by preferential attachment.
//
// The construction starts from a star on m+1 nodes (hub 0). Each further
// node attaches to m distinct existing nodes sampled from a list in which
// every node appears once per incident edge, so targets are chosen with
// probability proportional to degree. The result is connected and has
// m*(n-m) edges.
type BarabasiAlbert struct{}

// Generate builds a Barabási–Albert graph on n nodes with attachment width m.
// Requires 1 <= m < n.
func (BarabasiAlbert) Generate(n, m int, rng *rand.Rand) (*Graph, error) {
	if m < 1 || m >= n {
		return nil, fmt.Errorf("barabasi-albert: m=%d must satisfy 1 <= m < n=%d: %w", m, n, ErrAttachment)
	}

	g := New(n)
	// Degree-weighted pool; the star contributes the hub m times and
	// every leaf once.
	repeated := make([]int, 0, 2*m*(n-m))
	for leaf := 1; leaf <= m; leaf++ {
		if _, err := g.AddEdge(0, leaf); err != nil {
			return nil, fmt.Errorf("barabasi-albert: seed star: %w", err)
		}
		repeated = append(repeated, 0, leaf)
	}

	targets := make([]int, 0, m)
	seen := make(map[int]struct{}, m)
	for source := m + 1; source < n; source++ {
		targets = targets[:0]
		clear(seen)
		for len(targets) < m {
			t := repeated[rng.IntN(len(repeated))]
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
			targets = append(targets, t)
		}
		for _, t := range targets {
			if _, err := g.AddEdge(source, t); err != nil {
				return nil, fmt.Errorf("barabasi-albert: attach %d: %w", source, err)
			}
		}
		repeated = append(repeated, targets...)
		for k := 0; k < m; k++ {
			repeated = append(repeated, source)
		}
	}
	return g, nil
}
