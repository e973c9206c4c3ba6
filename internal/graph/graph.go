// Package graph holds the mutable social network a simulation run evolves:
// a fixed set of agents 0..N-1, one opinion per agent, and a simple
// undirected edge set that rewiring changes in place.
//
// A Graph is owned by exactly one run at a time and is not safe for
// concurrent use.
package graph

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
)

var (
	// ErrNodeRange is returned when a node id is outside 0..N-1.
	ErrNodeRange = errors.New("node id out of range")

	// ErrSelfLoop is returned when an edge would connect a node to itself.
	ErrSelfLoop = errors.New("self-loop not allowed")
)

// Edge is an undirected edge with U < V.
type Edge struct {
	U int `json:"u"`
	V int `json:"v"`
}

// Graph is an undirected simple graph with an opinion attached to every node.
type Graph struct {
	opinions []float64
	adj      [][]int
	edges    int
}

// New creates a graph with n isolated nodes, all holding opinion 0.
func New(n int) *Graph {
	if n < 0 {
		n = 0
	}
	return &Graph{
		opinions: make([]float64, n),
		adj:      make([][]int, n),
	}
}

// FromEdges builds a graph with n nodes and the given edges. Duplicate
// edges collapse into one.
func FromEdges(n int, edges []Edge) (*Graph, error) {
	g := New(n)
	for _, e := range edges {
		if _, err := g.AddEdge(e.U, e.V); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// N returns the number of nodes.
func (g *Graph) N() int { return len(g.opinions) }

// EdgeCount returns the number of undirected edges.
func (g *Graph) EdgeCount() int { return g.edges }

// Opinion returns the opinion held by node i.
func (g *Graph) Opinion(i int) float64 { return g.opinions[i] }

// SetOpinion overwrites the opinion held by node i.
func (g *Graph) SetOpinion(i int, v float64) { g.opinions[i] = v }

// Opinions returns a copy of all opinions indexed by node id.
func (g *Graph) Opinions() []float64 { return slices.Clone(g.opinions) }

// Neighbors returns the current neighbors of node i. The slice is owned by
// the graph and is only valid until the next edge mutation.
func (g *Graph) Neighbors(i int) []int { return g.adj[i] }

// Degree returns the number of neighbors of node i.
func (g *Graph) Degree(i int) int { return len(g.adj[i]) }

// HasEdge reports whether u and v are adjacent.
func (g *Graph) HasEdge(u, v int) bool {
	if !g.valid(u) || !g.valid(v) {
		return false
	}
	// Scan the shorter list; hubs can carry hundreds of neighbors.
	a, b := g.adj[u], v
	if len(g.adj[v]) < len(a) {
		a, b = g.adj[v], u
	}
	return slices.Contains(a, b)
}

// AddEdge connects u and v. Adding an edge that already exists is a no-op
// and reports false.
func (g *Graph) AddEdge(u, v int) (bool, error) {
	if !g.valid(u) || !g.valid(v) {
		return false, fmt.Errorf("add edge (%d, %d) in graph of %d nodes: %w", u, v, g.N(), ErrNodeRange)
	}
	if u == v {
		return false, fmt.Errorf("add edge (%d, %d): %w", u, v, ErrSelfLoop)
	}
	if g.HasEdge(u, v) {
		return false, nil
	}
	g.adj[u] = append(g.adj[u], v)
	g.adj[v] = append(g.adj[v], u)
	g.edges++
	return true, nil
}

// RemoveEdge disconnects u and v and reports whether the edge existed.
func (g *Graph) RemoveEdge(u, v int) bool {
	if !g.valid(u) || !g.valid(v) || !g.HasEdge(u, v) {
		return false
	}
	g.adj[u] = removeValue(g.adj[u], v)
	g.adj[v] = removeValue(g.adj[v], u)
	g.edges--
	return true
}

// RandomNeighbor picks a neighbor of i uniformly at random. It reports
// false when i is isolated.
func (g *Graph) RandomNeighbor(i int, rng *rand.Rand) (int, bool) {
	nb := g.adj[i]
	if len(nb) == 0 {
		return 0, false
	}
	return nb[rng.IntN(len(nb))], true
}

// RandomNodeExcept draws a node uniformly from all nodes other than i,
// redrawing until it differs. The graph must have at least two nodes.
func (g *Graph) RandomNodeExcept(i int, rng *rand.Rand) int {
	for {
		w := rng.IntN(g.N())
		if w != i {
			return w
		}
	}
}

// Edges returns every edge once, ordered by (U, V).
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, g.edges)
	for u, nb := range g.adj {
		for _, v := range nb {
			if u < v {
				out = append(out, Edge{U: u, V: v})
			}
		}
	}
	slices.SortFunc(out, func(a, b Edge) int {
		if a.U != b.U {
			return a.U - b.U
		}
		return a.V - b.V
	})
	return out
}

// Clone returns a deep copy that shares no memory with g.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		opinions: slices.Clone(g.opinions),
		adj:      make([][]int, len(g.adj)),
		edges:    g.edges,
	}
	for i, nb := range g.adj {
		c.adj[i] = slices.Clone(nb)
	}
	return c
}

// Equal reports whether both graphs hold the same opinions and edge set.
func (g *Graph) Equal(o *Graph) bool {
	if g.N() != o.N() || g.edges != o.edges {
		return false
	}
	if !slices.Equal(g.opinions, o.opinions) {
		return false
	}
	return slices.Equal(g.Edges(), o.Edges())
}

func (g *Graph) valid(i int) bool { return i >= 0 && i < len(g.adj) }

// removeValue deletes the first occurrence of v by swapping in the tail.
// Neighbor order is not meaningful, only membership.
func removeValue(s []int, v int) []int {
	idx := slices.Index(s, v)
	if idx < 0 {
		return s
	}
	last := len(s) - 1
	s[idx] = s[last]
	return s[:last]
}
