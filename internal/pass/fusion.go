package pass

import (
	"slices"

	"k8s.io/klog/v2"

	"github.com/born-ml/kiln/internal/graph"
	"github.com/born-ml/kiln/internal/ir"
)

// OpFusion merges chains of elementwise operators into fused_elementwise
// nodes. A producer is folded into its consumer when its output has that
// single consumer, is not fetched, and every operand of the consumer has
// the producer's shape and dtype.
type OpFusion struct{}

// Name implements Pass.
func (OpFusion) Name() string { return OpFusionName }

// Apply implements Pass.
func (OpFusion) Apply(g *graph.Graph) (*graph.Graph, error) {
	if err := requireShapes(g); err != nil {
		return nil, err
	}
	out := g.Clone()
	for {
		p, c, ok, err := nextFusion(out)
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		fused := fuse(p, c)
		id, err := replace(out, []string{c.ID, p.ID}, fused)
		if err != nil {
			return nil, err
		}
		klog.V(2).Infof("fused %s into %s as %s", p.ID, c.ID, id)
	}
}

// nextFusion finds the first fusible producer/consumer pair in topological order.
func nextFusion(g *graph.Graph) (graph.Node, graph.Node, bool, error) {
	order, err := g.TopoOrder()
	if err != nil {
		return graph.Node{}, graph.Node{}, false, err
	}
	for _, p := range order {
		if !ir.IsElementwise(p.Op) || len(p.Outputs) != 1 {
			continue
		}
		o := p.Outputs[0]
		if g.IsFetch(o) {
			continue
		}
		c, ok := soleConsumer(g, o)
		if !ok || !ir.IsElementwise(c.Op) || len(c.Outputs) != 1 {
			continue
		}
		if sameMeta(g, o, slices.Concat(c.Inputs, c.Outputs)) {
			return p, c, true, nil
		}
	}
	return graph.Node{}, graph.Node{}, false, nil
}

func sameMeta(g *graph.Graph, ref string, ids []string) bool {
	want, _ := g.Var(ref)
	for _, id := range ids {
		m, ok := g.Var(id)
		if !ok || !m.Equal(want) {
			return false
		}
	}
	return true
}

// steps returns n as a fused step list over n.Inputs.
func steps(n graph.Node) []graph.FusedStep {
	if n.Op == ir.OpFusedElementwise {
		return n.Fused
	}
	args := make([]graph.FusedArg, len(n.Inputs))
	for i := range n.Inputs {
		args[i] = graph.FusedArg{Index: i}
	}
	return []graph.FusedStep{{Op: n.Op, Args: args, Attrs: n.Attrs}}
}

// fuse builds the node computing c with p inlined.
func fuse(p, c graph.Node) graph.Node {
	o := p.Outputs[0]
	var inputs []string
	index := func(id string) int {
		if i := slices.Index(inputs, id); i >= 0 {
			return i
		}
		inputs = append(inputs, id)
		return len(inputs) - 1
	}

	ps := steps(p)
	var out []graph.FusedStep
	for _, s := range ps {
		args := make([]graph.FusedArg, len(s.Args))
		for i, a := range s.Args {
			if a.FromStep {
				args[i] = a
			} else {
				args[i] = graph.FusedArg{Index: index(p.Inputs[a.Index])}
			}
		}
		out = append(out, graph.FusedStep{Op: s.Op, Args: args, Attrs: s.Attrs.Clone()})
	}

	pres := len(ps) - 1
	for _, s := range steps(c) {
		args := make([]graph.FusedArg, len(s.Args))
		for i, a := range s.Args {
			switch {
			case a.FromStep:
				args[i] = graph.FusedArg{FromStep: true, Index: a.Index + len(ps)}
			case c.Inputs[a.Index] == o:
				args[i] = graph.FusedArg{FromStep: true, Index: pres}
			default:
				args[i] = graph.FusedArg{Index: index(c.Inputs[a.Index])}
			}
		}
		out = append(out, graph.FusedStep{Op: s.Op, Args: args, Attrs: s.Attrs.Clone()})
	}

	return graph.Node{
		Op:      ir.OpFusedElementwise,
		Inputs:  inputs,
		Outputs: slices.Clone(c.Outputs),
		Attrs:   ir.Attrs{},
		Fused:   out,
	}
}
