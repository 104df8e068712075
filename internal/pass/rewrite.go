package pass

import (
	"slices"

	"github.com/born-ml/kiln/internal/graph"
	"github.com/born-ml/kiln/internal/ir"
)

// replace removes the nodes in old and adds repl in their place, keeping
// the metadata of every variable repl touches.
func replace(g *graph.Graph, old []string, repl graph.Node) (string, error) {
	type kept struct {
		id   string
		meta ir.Meta
	}
	var keep []kept
	for _, id := range slices.Concat(repl.Inputs, repl.Outputs) {
		if m, ok := g.Var(id); ok {
			keep = append(keep, kept{id, m})
		}
	}
	for _, id := range old {
		if err := g.RemoveNode(id); err != nil {
			return "", err
		}
	}
	for _, k := range keep {
		g.SetVar(k.id, k.meta)
	}
	return g.AddNode(repl)
}

// soleConsumer returns the only node reading id, if there is exactly one.
func soleConsumer(g *graph.Graph, id string) (graph.Node, bool) {
	cs := g.Consumers(id)
	if len(cs) != 1 {
		return graph.Node{}, false
	}
	return cs[0], true
}

func count(ids []string, id string) int {
	n := 0
	for _, x := range ids {
		if x == id {
			n++
		}
	}
	return n
}

func flag(n graph.Node, name string) bool {
	v, _ := n.Attrs.Bool(name, false)
	return v
}
