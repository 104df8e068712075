package pass

import (
	"slices"

	"k8s.io/klog/v2"

	"github.com/born-ml/kiln/internal/graph"
	"github.com/born-ml/kiln/internal/ir"
	"github.com/born-ml/kiln/internal/tensor"
)

// GemmRewriter merges matmul followed by a bias add into one gemm node.
// It applies to float32 and float64 graphs only.
type GemmRewriter struct{}

// Name implements Pass.
func (GemmRewriter) Name() string { return GemmRewriterName }

// Apply implements Pass.
func (GemmRewriter) Apply(g *graph.Graph) (*graph.Graph, error) {
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
		meta, _ := out.Var(mv)
		if meta.DType != tensor.Float32 && meta.DType != tensor.Float64 {
			continue
		}
		add, ok := soleConsumer(out, mv)
		if !ok || out.IsFetch(mv) || add.Op != ir.OpAdd || count(add.Inputs, mv) != 1 {
			continue
		}
		bias := add.Inputs[0]
		if bias == mv {
			bias = add.Inputs[1]
		}
		bm, _ := out.Var(bias)
		if !ir.GemmBiasCompatible(meta.Shape, bm.Shape) {
			continue
		}
		repl := graph.Node{
			Op:      ir.OpGemm,
			Inputs:  []string{m.Inputs[0], m.Inputs[1], bias},
			Outputs: slices.Clone(add.Outputs),
			Attrs: ir.Attrs{
				ir.AttrTransA: ir.BoolAttr(flag(m, ir.AttrTransX)),
				ir.AttrTransB: ir.BoolAttr(flag(m, ir.AttrTransY)),
				ir.AttrAlpha:  ir.FloatAttr(1),
				ir.AttrBeta:   ir.FloatAttr(1),
			},
		}
		id, err := replace(out, []string{add.ID, m.ID}, repl)
		if err != nil {
			return nil, err
		}
		klog.V(2).Infof("rewrote %s + %s as %s", m.ID, add.ID, id)
	}
	return out, nil
}
