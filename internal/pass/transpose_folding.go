package pass

import (
	"slices"

	"k8s.io/klog/v2"

	"github.com/born-ml/kiln/internal/graph"
	"github.com/born-ml/kiln/internal/ir"
)

// operandFlags maps a matmul-like op to the flag names of its two
// contracted operands.
func operandFlags(op ir.OpType) (string, string, bool) {
	switch op {
	case ir.OpMatmul:
		return ir.AttrTransX, ir.AttrTransY, true
	case ir.OpGemm:
		return ir.AttrTransA, ir.AttrTransB, true
	}
	return "", "", false
}

// swapTranspose reports whether n is a transpose exchanging its last two axes.
func swapTranspose(n graph.Node) bool {
	if n.Op != ir.OpTranspose {
		return false
	}
	perm, err := n.Attrs.Ints(ir.AttrPerm)
	return err == nil && ir.SwapsLastTwo(perm)
}

// TransposeFoldingInput removes a last-two-axes transpose whose result is
// only read as a contracted operand of matmul or gemm, toggling the
// consumers' transpose flags instead.
type TransposeFoldingInput struct{}

// Name implements Pass.
func (TransposeFoldingInput) Name() string { return TransposeFoldingInputName }

// Apply implements Pass.
func (TransposeFoldingInput) Apply(g *graph.Graph) (*graph.Graph, error) {
	if err := requireShapes(g); err != nil {
		return nil, err
	}
	out := g.Clone()
	for _, n := range g.Nodes() {
		t, ok := out.Node(n.ID)
		if !ok || !swapTranspose(t) {
			continue
		}
		tv := t.Outputs[0]
		consumers := out.Consumers(tv)
		if out.IsFetch(tv) || len(consumers) == 0 || !foldableInto(consumers, tv) {
			continue
		}
		src := t.Inputs[0]
		for _, c := range consumers {
			fx, fy, _ := operandFlags(c.Op)
			for slot, name := range []string{fx, fy} {
				if c.Inputs[slot] == tv {
					if err := out.SetAttr(c.ID, name, ir.BoolAttr(!flag(c, name))); err != nil {
						return nil, err
					}
				}
			}
			if err := out.ReplaceInput(c.ID, tv, src); err != nil {
				return nil, err
			}
		}
		if err := out.RemoveNode(t.ID); err != nil {
			return nil, err
		}
		klog.V(2).Infof("folded %s into %d consumers", t.ID, len(consumers))
	}
	return out, nil
}

// foldableInto reports whether every read of v among consumers is one of
// the two contracted operands of a matmul or gemm.
func foldableInto(consumers []graph.Node, v string) bool {
	for _, c := range consumers {
		if _, _, ok := operandFlags(c.Op); !ok {
			return false
		}
		for slot, in := range c.Inputs {
			if in == v && slot > 1 {
				return false
			}
		}
	}
	return true
}

// TransposeFoldingOutput rewrites transpose(matmul(x, y)) over the last
// two axes as matmul(y, x) with both flags swapped and toggled.
type TransposeFoldingOutput struct{}

// Name implements Pass.
func (TransposeFoldingOutput) Name() string { return TransposeFoldingOutputName }

// Apply implements Pass.
func (TransposeFoldingOutput) Apply(g *graph.Graph) (*graph.Graph, error) {
	if err := requireShapes(g); err != nil {
		return nil, err
	}
	out := g.Clone()
	for _, n := range g.Nodes() {
		m, ok := out.Node(n.ID)
		if !ok || m.Op != ir.OpMatmul {
			continue
		}
		mv := m.Outputs[0]
		t, ok := soleConsumer(out, mv)
		if !ok || out.IsFetch(mv) || !swapTranspose(t) {
			continue
		}
		x, _ := out.Var(m.Inputs[0])
		y, _ := out.Var(m.Inputs[1])
		if x.Shape.Rank() < 2 || y.Shape.Rank() < 2 {
			continue
		}
		repl := graph.Node{
			Op:      ir.OpMatmul,
			Inputs:  []string{m.Inputs[1], m.Inputs[0]},
			Outputs: slices.Clone(t.Outputs),
			Attrs: ir.Attrs{
				ir.AttrTransX: ir.BoolAttr(!flag(m, ir.AttrTransY)),
				ir.AttrTransY: ir.BoolAttr(!flag(m, ir.AttrTransX)),
			},
		}
		id, err := replace(out, []string{t.ID, m.ID}, repl)
		if err != nil {
			return nil, err
		}
		klog.V(2).Infof("folded %s into %s as %s", t.ID, m.ID, id)
	}
	return out, nil
}
