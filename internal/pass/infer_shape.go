package pass

import (
	"fmt"

	"github.com/born-ml/kiln/internal/graph"
	"github.com/born-ml/kiln/internal/ir"
)

// InferShape recomputes every variable's shape and dtype in topological
// order from the graph inputs, using the builder's shape rules.
type InferShape struct{}

// Name implements Pass.
func (InferShape) Name() string { return InferShapeName }

// Apply implements Pass.
func (InferShape) Apply(g *graph.Graph) (*graph.Graph, error) {
	out := g.Clone()
	order, err := out.TopoOrder()
	if err != nil {
		return nil, err
	}
	for _, n := range order {
		in := make([]ir.Meta, len(n.Inputs))
		for i, id := range n.Inputs {
			m, ok := out.Var(id)
			if !ok {
				return nil, fmt.Errorf("node %s: %w: %q", n.ID, graph.ErrUnknownVar, id)
			}
			in[i] = m
		}
		metas, err := ir.InferOutputs(n.Op, in, n.Attrs)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", n.ID, err)
		}
		if len(metas) != len(n.Outputs) {
			return nil, fmt.Errorf("node %s: %d outputs, shape rule gave %d", n.ID, len(n.Outputs), len(metas))
		}
		for i, id := range n.Outputs {
			out.SetVar(id, metas[i])
		}
	}
	out.MarkShapesInferred()
	return out, nil
}
