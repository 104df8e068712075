package framework_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/born-ml/kiln/internal/backend/cpu"
	"github.com/born-ml/kiln/internal/framework"
	"github.com/born-ml/kiln/internal/graph"
	"github.com/born-ml/kiln/internal/ir"
	"github.com/born-ml/kiln/internal/target"
	"github.com/born-ml/kiln/internal/tensor"
)

func TestExecuteElementwiseAdd(t *testing.T) {
	b := ir.NewNetBuilder("net_builder")
	x, err := b.CreateInput(tensor.Float32, tensor.Shape{32, 12}, "A")
	require.NoError(t, err)
	y, err := b.CreateInput(tensor.Float32, tensor.Shape{32, 12}, "B")
	require.NoError(t, err)
	c, err := b.Add(x, y)
	require.NoError(t, err)
	prog, err := b.Build()
	require.NoError(t, err)

	tg := target.DefaultHostTarget()
	g, err := graph.New(prog, tg)
	require.NoError(t, err)
	scope, err := framework.BuildScope(tg, g)
	require.NoError(t, err)
	runtime, err := framework.NewGraphCompiler(tg, scope, g).Build()
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(1))
	a, err := scope.GetTensor("A")
	require.NoError(t, err)
	bt, err := scope.GetTensor("B")
	require.NoError(t, err)
	tensor.FillUniform(a.Raw(), rng, -1, 1)
	tensor.FillUniform(bt.Raw(), rng, -1, 1)

	require.NoError(t, runtime.Execute())

	out, err := scope.GetTensor(c.ID)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{32, 12}, out.Shape())
	av, bv, cv := framework.Data[float32](a), framework.Data[float32](bt), framework.Data[float32](out)
	for i := range cv {
		assert.Equal(t, av[i]+bv[i], cv[i], "element %d", i)
	}
}

func TestExecuteLinearLayer(t *testing.T) {
	b := ir.NewNetBuilder("linear")
	x, err := b.CreateInput(tensor.Float64, tensor.Shape{2, 3}, "x")
	require.NoError(t, err)
	w, err := b.CreateInput(tensor.Float64, tensor.Shape{3, 2}, "w")
	require.NoError(t, err)
	mm, err := b.Matmul(x, w)
	require.NoError(t, err)
	bias, err := b.FillConstant(tensor.Shape{2, 2}, 0.5, tensor.Float64)
	require.NoError(t, err)
	sum, err := b.Add(mm, bias)
	require.NoError(t, err)
	y, err := b.Relu(sum)
	require.NoError(t, err)
	prog, err := b.Build()
	require.NoError(t, err)

	tg := target.DefaultHostTarget()
	g, err := graph.New(prog, tg)
	require.NoError(t, err)
	scope := framework.NewScope(tg)
	runtime, err := framework.NewGraphCompiler(tg, scope, g).Build()
	require.NoError(t, err)

	xv, err := tensor.FromSlice([]float64{1, 2, 3, -1, -2, -3}, tensor.Shape{2, 3})
	require.NoError(t, err)
	wv, err := tensor.FromSlice([]float64{1, 0, 0, 1, 1, 1}, tensor.Shape{3, 2})
	require.NoError(t, err)
	require.NoError(t, runtime.ExecuteWith(map[string]*tensor.RawTensor{"x": xv, "w": wv}))

	out, err := scope.GetTensor(y.ID)
	require.NoError(t, err)
	assert.Equal(t, []float64{4.5, 5.5, 0, 0}, out.Float64s())
}

func TestAcceleratorUnregisteredOperator(t *testing.T) {
	b := ir.NewNetBuilder("gpu")
	x, err := b.CreateInput(tensor.Float32, tensor.Shape{4}, "x")
	require.NoError(t, err)
	_, err = b.Relu(x)
	require.NoError(t, err)
	prog, err := b.Build()
	require.NoError(t, err)

	tg := target.DefaultAcceleratorTarget()
	g, err := graph.New(prog, tg)
	require.NoError(t, err)
	_, err = framework.NewGraphCompiler(tg, framework.NewScope(tg), g).Build()
	assert.ErrorIs(t, err, framework.ErrUnsupportedOperator)
}
