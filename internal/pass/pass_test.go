package pass

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/kiln/internal/graph"
	"github.com/born-ml/kiln/internal/ir"
	"github.com/born-ml/kiln/internal/target"
	"github.com/born-ml/kiln/internal/tensor"
)

type vars map[string]ir.Variable

// build runs emit against a fresh NetBuilder and returns the graph.
func build(t *testing.T, emit func(b *ir.NetBuilder, v vars), opts ...graph.Option) *graph.Graph {
	t.Helper()
	b := ir.NewNetBuilder(t.Name())
	v := vars{}
	emit(b, v)
	prog, err := b.Build()
	require.NoError(t, err)
	g, err := graph.New(prog, target.DefaultHostTarget(), opts...)
	require.NoError(t, err)
	return g
}

func input(t *testing.T, b *ir.NetBuilder, v vars, name string, shape ...int) {
	t.Helper()
	x, err := b.CreateInput(tensor.Float32, tensor.Shape(shape), name)
	require.NoError(t, err)
	v[name] = x
}

func def(t *testing.T, v vars, name string) func(ir.Variable, error) {
	return func(x ir.Variable, err error) {
		t.Helper()
		require.NoError(t, err)
		v[name] = x
	}
}

func ops(g *graph.Graph) []ir.OpType {
	var out []ir.OpType
	for _, n := range g.Nodes() {
		out = append(out, n.Op)
	}
	return out
}

func chain(t *testing.T) func(b *ir.NetBuilder, v vars) {
	return func(b *ir.NetBuilder, v vars) {
		input(t, b, v, "A", 2, 3)
		input(t, b, v, "B", 2, 3)
		def(t, v, "s")(b.Add(v["A"], v["B"]))
		def(t, v, "r")(b.Relu(v["s"]))
		def(t, v, "c")(b.Scale(v["r"], 2, 1, true))
	}
}

func linear(t *testing.T) func(b *ir.NetBuilder, v vars) {
	return func(b *ir.NetBuilder, v vars) {
		input(t, b, v, "x", 4, 8)
		input(t, b, v, "w", 16, 8)
		input(t, b, v, "bias", 4, 16)
		def(t, v, "wt")(b.Transpose(v["w"], []int{1, 0}))
		def(t, v, "xw")(b.Matmul(v["x"], v["wt"]))
		def(t, v, "h")(b.Add(v["xw"], v["bias"]))
	}
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{
		"Decomposer", "GemmRewriter", "InferShape", "OpFusion",
		"TransposeFoldingInput", "TransposeFoldingOutput",
	}, Names())
	assert.Equal(t, []string{"OpFusion"}, DefaultOpFusionPasses())
}

func TestApplyPassesUnknownName(t *testing.T) {
	g := build(t, chain(t))
	out, err := ApplyPasses(g, []string{InferShapeName, "ConstantFolding"})
	require.ErrorIs(t, err, ErrUnknownPassName)
	assert.Nil(t, out)
	assert.False(t, g.ShapesInferred())
}

func TestApplyPassesEmpty(t *testing.T) {
	g := build(t, chain(t))
	out, err := ApplyPasses(g, nil)
	require.NoError(t, err)
	assert.Same(t, g, out)
}

func TestShapesRequired(t *testing.T) {
	g := build(t, chain(t))
	for _, name := range []string{OpFusionName, TransposeFoldingInputName, TransposeFoldingOutputName, GemmRewriterName} {
		_, err := ApplyPasses(g, []string{name})
		assert.ErrorIs(t, err, ErrShapesNotInferred, name)
	}
}

func TestInferShapeIdempotent(t *testing.T) {
	g := build(t, linear(t))
	once, err := ApplyPasses(g, []string{InferShapeName})
	require.NoError(t, err)
	twice, err := ApplyPasses(once, []string{InferShapeName})
	require.NoError(t, err)

	assert.True(t, once.ShapesInferred())
	assert.False(t, g.ShapesInferred(), "input graph must not change")
	assert.Equal(t, once.Visualize(), twice.Visualize())

	m, ok := twice.Var(g.Fetches()[0])
	require.True(t, ok)
	assert.Equal(t, tensor.Shape{4, 16}, m.Shape)
}

func TestInferShapeRecomputesStaleMeta(t *testing.T) {
	g := build(t, chain(t))
	stale := g.Clone()
	stale.SetVar("var_1", ir.Meta{Shape: tensor.Shape{9}, DType: tensor.Float64})

	out, err := InferShape{}.Apply(stale)
	require.NoError(t, err)
	m, _ := out.Var("var_1")
	assert.Equal(t, ir.Meta{Shape: tensor.Shape{2, 3}, DType: tensor.Float32}, m)
}

func TestOpFusionChain(t *testing.T) {
	g := build(t, chain(t))
	out, err := ApplyPasses(g, []string{InferShapeName, OpFusionName})
	require.NoError(t, err)

	require.Equal(t, []ir.OpType{ir.OpFusedElementwise}, ops(out))
	n := out.Nodes()[0]
	assert.Equal(t, []string{"A", "B"}, n.Inputs)
	assert.Equal(t, g.Fetches(), n.Outputs)
	require.Len(t, n.Fused, 3)
	assert.Equal(t, []graph.FusedStep{
		{Op: ir.OpAdd, Args: []graph.FusedArg{{Index: 0}, {Index: 1}}, Attrs: ir.Attrs{}},
		{Op: ir.OpRelu, Args: []graph.FusedArg{{FromStep: true, Index: 0}}, Attrs: ir.Attrs{}},
		{Op: ir.OpScale, Args: []graph.FusedArg{{FromStep: true, Index: 1}}, Attrs: n.Fused[2].Attrs},
	}, n.Fused)
	s, err := n.Fused[2].Attrs.Float(ir.AttrScale, 0)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, s, 1e-12)

	_, ok := out.Var("var_0")
	assert.False(t, ok, "fused intermediates are dropped")
	assert.Equal(t, 3, g.Len(), "input graph must not change")
}

func TestOpFusionRespectsFetches(t *testing.T) {
	g := build(t, chain(t), graph.WithFetches("var_0", "var_2"))
	out, err := ApplyPasses(g, []string{InferShapeName, OpFusionName})
	require.NoError(t, err)

	assert.Equal(t, []ir.OpType{ir.OpAdd, ir.OpFusedElementwise}, ops(out))
	assert.Equal(t, []string{"var_0", "var_2"}, out.Fetches())
}

func TestOpFusionSkipsMultiConsumer(t *testing.T) {
	g := build(t, func(b *ir.NetBuilder, v vars) {
		input(t, b, v, "A", 4)
		def(t, v, "r")(b.Relu(v["A"]))
		def(t, v, "m")(b.Mul(v["r"], v["r"]))
		def(t, v, "t")(b.Transpose(v["r"], []int{0}))
		def(t, v, "o")(b.Add(v["m"], v["t"]))
	})
	out, err := ApplyPasses(g, []string{InferShapeName, OpFusionName})
	require.NoError(t, err)
	// relu feeds mul and transpose; only mul folds into add.
	assert.Equal(t, []ir.OpType{ir.OpRelu, ir.OpTranspose, ir.OpFusedElementwise}, ops(out))
}

func TestTransposeFoldingInput(t *testing.T) {
	g := build(t, linear(t))
	out, err := ApplyPasses(g, []string{InferShapeName, TransposeFoldingInputName})
	require.NoError(t, err)

	require.Equal(t, []ir.OpType{ir.OpMatmul, ir.OpAdd}, ops(out))
	mm := out.Nodes()[0]
	assert.Equal(t, []string{"x", "w"}, mm.Inputs)
	assert.True(t, flag(mm, ir.AttrTransY))
	assert.False(t, flag(mm, ir.AttrTransX))
	_, ok := out.Var("var_0")
	assert.False(t, ok)
}

func TestTransposeFoldingInputBlocked(t *testing.T) {
	g := build(t, func(b *ir.NetBuilder, v vars) {
		input(t, b, v, "x", 4, 8)
		input(t, b, v, "w", 16, 8)
		def(t, v, "wt")(b.Transpose(v["w"], []int{1, 0}))
		def(t, v, "xw")(b.Matmul(v["x"], v["wt"]))
		def(t, v, "r")(b.Relu(v["wt"]))
	})
	out, err := ApplyPasses(g, []string{InferShapeName, TransposeFoldingInputName})
	require.NoError(t, err)
	assert.Equal(t, ops(g), ops(out))
}

func TestTransposeFoldingOutput(t *testing.T) {
	g := build(t, func(b *ir.NetBuilder, v vars) {
		input(t, b, v, "a", 4, 8)
		input(t, b, v, "b", 8, 16)
		def(t, v, "m")(b.MatmulT(v["a"], v["b"], false, false))
		def(t, v, "t")(b.Transpose(v["m"], []int{1, 0}))
	})
	out, err := ApplyPasses(g, []string{InferShapeName, TransposeFoldingOutputName})
	require.NoError(t, err)

	require.Equal(t, []ir.OpType{ir.OpMatmul}, ops(out))
	mm := out.Nodes()[0]
	assert.Equal(t, []string{"b", "a"}, mm.Inputs)
	assert.Equal(t, []string{"var_1"}, mm.Outputs)
	assert.True(t, flag(mm, ir.AttrTransX))
	assert.True(t, flag(mm, ir.AttrTransY))
	m, _ := out.Var("var_1")
	assert.Equal(t, tensor.Shape{16, 4}, m.Shape)
}

func TestGemmRewriter(t *testing.T) {
	g := build(t, func(b *ir.NetBuilder, v vars) {
		input(t, b, v, "a", 4, 8)
		input(t, b, v, "b", 8, 16)
		input(t, b, v, "c", 4, 16)
		def(t, v, "m")(b.Matmul(v["a"], v["b"]))
		def(t, v, "o")(b.Add(v["c"], v["m"]))
	})
	out, err := ApplyPasses(g, []string{InferShapeName, GemmRewriterName})
	require.NoError(t, err)

	require.Equal(t, []ir.OpType{ir.OpGemm}, ops(out))
	n := out.Nodes()[0]
	assert.Equal(t, []string{"a", "b", "c"}, n.Inputs)
	assert.Equal(t, []string{"var_1"}, n.Outputs)

	fetched := build(t, func(b *ir.NetBuilder, v vars) {
		input(t, b, v, "a", 4, 8)
		input(t, b, v, "b", 8, 16)
		input(t, b, v, "c", 4, 16)
		def(t, v, "m")(b.Matmul(v["a"], v["b"]))
		def(t, v, "o")(b.Add(v["c"], v["m"]))
	}, graph.WithFetches("var_0", "var_1"))
	out, err = ApplyPasses(fetched, []string{InferShapeName, GemmRewriterName})
	require.NoError(t, err)
	assert.Equal(t, []ir.OpType{ir.OpMatmul, ir.OpAdd}, ops(out))
}

func TestFoldingSequence(t *testing.T) {
	g := build(t, linear(t))
	out, err := ApplyPasses(g, []string{
		InferShapeName,
		TransposeFoldingInputName, GemmRewriterName, TransposeFoldingOutputName, GemmRewriterName,
	})
	require.NoError(t, err)

	require.Equal(t, []ir.OpType{ir.OpGemm}, ops(out))
	n := out.Nodes()[0]
	assert.Equal(t, []string{"x", "w", "bias"}, n.Inputs)
	assert.True(t, flag(n, ir.AttrTransB))
	assert.False(t, flag(n, ir.AttrTransA))
	assert.Equal(t, g.Fetches(), out.Fetches())
}

func TestDecomposer(t *testing.T) {
	g := build(t, func(b *ir.NetBuilder, v vars) {
		input(t, b, v, "A", 2, 3)
		def(t, v, "r")(b.Relu(v["A"]))
		def(t, v, "s")(b.Scale(v["r"], 3, 0.5, false))
		def(t, v, "u")(b.Scale(v["s"], 2, 0, true))
	})
	out, err := ApplyPasses(g, []string{DecomposerName})
	require.NoError(t, err)

	assert.Equal(t, []ir.OpType{
		ir.OpFillConstant, ir.OpMax,
		ir.OpFillConstant, ir.OpAdd, ir.OpFillConstant, ir.OpMul,
		ir.OpFillConstant, ir.OpMul,
	}, ops(out))
	assert.Equal(t, g.Fetches(), out.Fetches())

	// The rewritten graph still satisfies the shape rules.
	_, err = ApplyPasses(out, []string{InferShapeName})
	require.NoError(t, err)
}

func TestPassesWithNothingToDo(t *testing.T) {
	g := build(t, func(b *ir.NetBuilder, v vars) {
		input(t, b, v, "a", 4, 8)
		input(t, b, v, "b", 8, 2)
		def(t, v, "m")(b.Matmul(v["a"], v["b"]))
		def(t, v, "c")(b.Concat(v["m"], v["m"], 0))
	})
	base, err := ApplyPasses(g, []string{InferShapeName})
	require.NoError(t, err)
	out, err := ApplyPasses(base, []string{
		OpFusionName, TransposeFoldingInputName, TransposeFoldingOutputName, GemmRewriterName, DecomposerName,
	})
	require.NoError(t, err)
	assert.Equal(t, base.Visualize(), out.Visualize())
}
