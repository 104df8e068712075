package graph

import (
	"fmt"
	"strings"
)

// Visualize renders the graph as Graphviz DOT. Variables are ellipses,
// operators boxes; fetched variables get a double border.
func (g *Graph) Visualize() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "digraph %q {\n", g.name)
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [fontname=\"monospace\"];\n")

	for _, id := range g.varOrder {
		m := g.vars[id]
		attrs := fmt.Sprintf("shape=ellipse, label=%q", fmt.Sprintf("%s\n%s%v", id, m.DType, m.Shape))
		if g.IsFetch(id) {
			attrs += ", peripheries=2"
		}
		fmt.Fprintf(&sb, "  %q [%s];\n", id, attrs)
	}
	for _, n := range g.nodes {
		label := string(n.Op)
		if len(n.Attrs) > 0 {
			label += "\n" + n.Attrs.String()
		}
		if len(n.Fused) > 0 {
			steps := make([]string, len(n.Fused))
			for i, s := range n.Fused {
				steps[i] = string(s.Op)
			}
			label += "\n[" + strings.Join(steps, " > ") + "]"
		}
		fmt.Fprintf(&sb, "  %q [shape=box, label=%q];\n", n.ID, label)
	}
	for _, n := range g.nodes {
		for i, in := range n.Inputs {
			fmt.Fprintf(&sb, "  %q -> %q [label=\"%d\"];\n", in, n.ID, i)
		}
		for _, out := range n.Outputs {
			fmt.Fprintf(&sb, "  %q -> %q;\n", n.ID, out)
		}
	}
	sb.WriteString("}\n")
	return sb.String()
}
