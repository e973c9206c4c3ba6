// Package visualization renders opinion networks in various output formats.
package visualization

import (
	"fmt"
	"strings"

	"github.com/nvandessel/opynions/internal/graph"
	"github.com/nvandessel/opynions/internal/ranking"
)

// Format specifies the output format for graph rendering.
type Format string

const (
	FormatDOT  Format = "dot"
	FormatJSON Format = "json"
)

// Node sizes in inches, scaled by normalized PageRank.
const (
	minNodeWidth = 0.15
	maxNodeWidth = 0.6
)

// OpinionColor maps an opinion onto the HSV hue wheel. Opinions live on a
// periodic scale, so 0 and 1 get the same hue.
func OpinionColor(opinion float64) string {
	return fmt.Sprintf("%.3f 0.700 0.900", opinion)
}

// RenderDOT produces an undirected Graphviz DOT representation of g. Node
// fill encodes opinion; node width encodes PageRank.
func RenderDOT(g *graph.Graph) string {
	scores := ranking.PageRank(g, ranking.DefaultPageRankConfig())
	ranking.Normalize(scores)

	var b strings.Builder
	b.WriteString("graph opynions {\n")
	b.WriteString("  layout=neato;\n")
	b.WriteString("  overlap=false;\n")
	b.WriteString("  node [shape=circle, style=filled, label=\"\", fontname=\"Helvetica\"];\n")
	b.WriteString("  edge [color=\"#00000055\"];\n\n")

	for i := 0; i < g.N(); i++ {
		width := minNodeWidth + (maxNodeWidth-minNodeWidth)*scores[i]
		fmt.Fprintf(&b, "  %d [fillcolor=%q, width=%.3f, tooltip=\"opinion=%.4f degree=%d\"];\n",
			i, OpinionColor(g.Opinion(i)), width, g.Opinion(i), g.Degree(i))
	}
	b.WriteString("\n")

	for _, e := range g.Edges() {
		fmt.Fprintf(&b, "  %d -- %d;\n", e.U, e.V)
	}

	b.WriteString("}\n")
	return b.String()
}

// RenderJSON produces a JSON-ready graph representation with nodes and
// edges arrays.
func RenderJSON(g *graph.Graph) map[string]any {
	scores := ranking.PageRank(g, ranking.DefaultPageRankConfig())

	nodes := make([]map[string]any, 0, g.N())
	for i := 0; i < g.N(); i++ {
		nodes = append(nodes, map[string]any{
			"id":       i,
			"opinion":  g.Opinion(i),
			"degree":   g.Degree(i),
			"pagerank": scores[i],
			"color":    OpinionColor(g.Opinion(i)),
		})
	}

	edges := make([]map[string]any, 0, g.EdgeCount())
	for _, e := range g.Edges() {
		edges = append(edges, map[string]any{"source": e.U, "target": e.V})
	}

	return map[string]any{
		"nodes":      nodes,
		"edges":      edges,
		"node_count": len(nodes),
		"edge_count": len(edges),
	}
}
