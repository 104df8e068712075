package pass_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/born-ml/kiln/internal/backend/cpu"
	"github.com/born-ml/kiln/internal/framework"
	"github.com/born-ml/kiln/internal/graph"
	"github.com/born-ml/kiln/internal/ir"
	"github.com/born-ml/kiln/internal/pass"
	"github.com/born-ml/kiln/internal/target"
	"github.com/born-ml/kiln/internal/tensor"
)

type emitter func(t *testing.T, b *ir.NetBuilder) []ir.Variable

func must(t *testing.T) func(ir.Variable, error) ir.Variable {
	return func(v ir.Variable, err error) ir.Variable {
		t.Helper()
		require.NoError(t, err)
		return v
	}
}

func in(t *testing.T, b *ir.NetBuilder, name string, shape ...int) ir.Variable {
	t.Helper()
	return must(t)(b.CreateInput(tensor.Float32, tensor.Shape(shape), name))
}

// execute compiles g for the host and runs it on feeds, returning every
// fetched tensor widened to float64.
func execute(t *testing.T, g *graph.Graph, feeds map[string]*tensor.RawTensor) map[string][]float64 {
	t.Helper()
	tg := g.Target()
	scope := framework.NewScope(tg, framework.WithMemoryLimit(0))
	prog, err := framework.NewGraphCompiler(tg, scope, g).Build()
	require.NoError(t, err)
	require.NoError(t, prog.ExecuteWith(feeds))

	out := make(map[string][]float64)
	for _, id := range g.Fetches() {
		x, err := scope.GetTensor(id)
		require.NoError(t, err)
		out[id] = x.Float64s()
	}
	return out
}

func randomFeeds(t *testing.T, g *graph.Graph) map[string]*tensor.RawTensor {
	t.Helper()
	rng := rand.New(rand.NewSource(7))
	feeds := make(map[string]*tensor.RawTensor)
	for _, id := range g.Inputs() {
		m, _ := g.Var(id)
		raw, err := tensor.NewRaw(m.Shape, m.DType, tensor.Host)
		require.NoError(t, err)
		tensor.FillUniform(raw, rng, -2, 2)
		feeds[id] = raw
	}
	return feeds
}

func TestPassesPreserveResults(t *testing.T) {
	tests := []struct {
		name   string
		emit   emitter
		passes []string
		want   []ir.OpType
	}{
		{
			name: "transpose folding into gemm",
			emit: func(t *testing.T, b *ir.NetBuilder) []ir.Variable {
				x, w, bias := in(t, b, "x", 4, 8), in(t, b, "w", 16, 8), in(t, b, "bias", 16)
				wt := must(t)(b.Transpose(w, []int{1, 0}))
				mm := must(t)(b.Matmul(x, wt))
				return []ir.Variable{must(t)(b.Add(mm, must(t)(b.BroadcastTo(bias, tensor.Shape{4, 16}, []int{1}))))}
			},
			passes: []string{"InferShape", "TransposeFoldingInput", "GemmRewriter", "TransposeFoldingOutput", "GemmRewriter"},
			want:   []ir.OpType{ir.OpBroadcastTo, ir.OpGemm},
		},
		{
			name: "shared transpose feeding two matmuls",
			emit: func(t *testing.T, b *ir.NetBuilder) []ir.Variable {
				x, y, w := in(t, b, "x", 16, 16), in(t, b, "y", 16, 16), in(t, b, "w", 16, 16)
				wt := must(t)(b.Transpose(w, []int{1, 0}))
				lhs := must(t)(b.Matmul(x, wt))
				rhs := must(t)(b.Matmul(wt, y))
				return []ir.Variable{must(t)(b.Add(lhs, rhs))}
			},
			passes: []string{
				"Decomposer", "InferShape", "TransposeFoldingInput", "GemmRewriter",
				"TransposeFoldingOutput", "GemmRewriter", "OpFusion", "InferShape",
			},
			want: []ir.OpType{ir.OpMatmul, ir.OpGemm},
		},
		{
			name: "transposed matmul output",
			emit: func(t *testing.T, b *ir.NetBuilder) []ir.Variable {
				x, y := in(t, b, "x", 3, 5), in(t, b, "y", 5, 2)
				mm := must(t)(b.Matmul(x, y))
				return []ir.Variable{must(t)(b.Transpose(mm, []int{1, 0}))}
			},
			passes: []string{"InferShape", "TransposeFoldingOutput"},
			want:   []ir.OpType{ir.OpMatmul},
		},
		{
			name: "elementwise fusion",
			emit: func(t *testing.T, b *ir.NetBuilder) []ir.Variable {
				x, y, z := in(t, b, "x", 64, 32), in(t, b, "y", 64, 32), in(t, b, "z", 64, 32)
				s := must(t)(b.Sub(x, y))
				r := must(t)(b.Relu(s))
				c := must(t)(b.Scale(r, 0.5, -1, false))
				return []ir.Variable{must(t)(b.Max(c, z))}
			},
			passes: append([]string{pass.InferShapeName}, pass.DefaultOpFusionPasses()...),
			want:   []ir.OpType{ir.OpFusedElementwise},
		},
		{
			name: "decomposed activations",
			emit: func(t *testing.T, b *ir.NetBuilder) []ir.Variable {
				x := in(t, b, "x", 5, 7)
				r := must(t)(b.Relu(x))
				return []ir.Variable{must(t)(b.Scale(r, 3, 0.25, true))}
			},
			passes: []string{"Decomposer"},
			want:   []ir.OpType{ir.OpFillConstant, ir.OpMax, ir.OpFillConstant, ir.OpMul, ir.OpFillConstant, ir.OpAdd},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := ir.NewNetBuilder(t.Name())
			tt.emit(t, b)
			prog, err := b.Build()
			require.NoError(t, err)
			g, err := graph.New(prog, target.DefaultHostTarget())
			require.NoError(t, err)

			opt, err := pass.ApplyPasses(g, tt.passes)
			require.NoError(t, err)
			var got []ir.OpType
			for _, n := range opt.Nodes() {
				got = append(got, n.Op)
			}
			assert.ElementsMatch(t, tt.want, got)

			feeds := randomFeeds(t, g)
			base := execute(t, g, feeds)
			optimized := execute(t, opt, feeds)
			require.Equal(t, len(base), len(optimized))
			for id, want := range base {
				assert.InDeltaSlice(t, want, optimized[id], 1e-4, id)
			}
		})
	}
}
