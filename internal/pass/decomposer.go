package pass

import (
	"github.com/born-ml/kiln/internal/graph"
	"github.com/born-ml/kiln/internal/ir"
)

// Decomposer lowers composite operators into the base vocabulary so
// targets only need the primitive kernels:
//
//	relu(x)     -> max(x, fill(0))
//	scale(x)    -> add(mul(x, fill(s)), fill(b))   bias_after_scale
//	            -> mul(add(x, fill(b)), fill(s))   otherwise
//
// A zero bias drops the add.
type Decomposer struct{}

// Name implements Pass.
func (Decomposer) Name() string { return DecomposerName }

// Apply implements Pass.
func (Decomposer) Apply(g *graph.Graph) (*graph.Graph, error) {
	out := g.Clone()
	for _, n := range g.Nodes() {
		var err error
		switch n.Op {
		case ir.OpRelu:
			err = decomposeRelu(out, n)
		case ir.OpScale:
			err = decomposeScale(out, n)
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// fill adds a fill_constant shaped like ref and returns its output id.
func fill(g *graph.Graph, ref ir.Meta, value float64) (string, error) {
	id := g.NewVar(ref)
	_, err := g.AddNode(graph.Node{
		Op:      ir.OpFillConstant,
		Outputs: []string{id},
		Attrs: ir.Attrs{
			ir.AttrShape: ir.IntsAttr(ref.Shape),
			ir.AttrValue: ir.FloatAttr(value),
			ir.AttrDType: ir.StringAttr(ref.DType.String()),
		},
	})
	return id, err
}

func decomposeRelu(g *graph.Graph, n graph.Node) error {
	x := n.Inputs[0]
	meta, _ := g.Var(x)
	zero, err := fill(g, meta, 0)
	if err != nil {
		return err
	}
	_, err = replace(g, []string{n.ID}, graph.Node{
		Op:      ir.OpMax,
		Inputs:  []string{x, zero},
		Outputs: n.Outputs,
	})
	return err
}

func decomposeScale(g *graph.Graph, n graph.Node) error {
	scale, err := n.Attrs.Float(ir.AttrScale, 1)
	if err != nil {
		return err
	}
	bias, err := n.Attrs.Float(ir.AttrBias, 0)
	if err != nil {
		return err
	}
	after, err := n.Attrs.Bool(ir.AttrBiasAfterScale, true)
	if err != nil {
		return err
	}

	x, outVar := n.Inputs[0], n.Outputs[0]
	meta, _ := g.Var(x)
	if err := g.RemoveNode(n.ID); err != nil {
		return err
	}
	g.SetVar(outVar, meta)

	// emit applies op to (in, fill(value)) writing dst, or a fresh variable when dst is empty.
	emit := func(op ir.OpType, in string, value float64, dst string) (string, error) {
		c, err := fill(g, meta, value)
		if err != nil {
			return "", err
		}
		if dst == "" {
			dst = g.NewVar(meta)
		}
		_, err = g.AddNode(graph.Node{Op: op, Inputs: []string{in, c}, Outputs: []string{dst}})
		return dst, err
	}

	if bias == 0 {
		_, err = emit(ir.OpMul, x, scale, outVar)
		return err
	}
	first, second := ir.OpMul, ir.OpAdd
	firstVal, secondVal := scale, bias
	if !after {
		first, second = ir.OpAdd, ir.OpMul
		firstVal, secondVal = bias, scale
	}
	mid, err := emit(first, x, firstVal, "")
	if err != nil {
		return err
	}
	_, err = emit(second, mid, secondVal, outVar)
	return err
}
