// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package framework_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/born-ml/kiln/backend/cpu"
	"github.com/born-ml/kiln/framework"
	"github.com/born-ml/kiln/internal/ir"
	"github.com/born-ml/kiln/tensor"
)

func scaledSum(t *testing.T) (*ir.Program, ir.Variable) {
	t.Helper()
	b := ir.NewNetBuilder("scaled_sum")
	x, err := b.CreateInput(tensor.Float32, tensor.Shape{2, 3}, "x")
	require.NoError(t, err)
	y, err := b.CreateInput(tensor.Float32, tensor.Shape{2, 3}, "y")
	require.NoError(t, err)
	s, err := b.Add(x, y)
	require.NoError(t, err)
	out, err := b.Scale(s, 2, 1, true)
	require.NoError(t, err)
	p, err := b.Build()
	require.NoError(t, err)
	return p, out
}

func TestCompile(t *testing.T) {
	p, out := scaledSum(t)
	passes := append([]string{"InferShape"}, framework.DefaultOpFusionPasses()...)
	prog, scope, err := framework.Compile(p, framework.DefaultHostTarget(), passes...)
	require.NoError(t, err)
	assert.Equal(t, 1, prog.Size(), "add and scale fuse into one instruction")

	x, err := scope.GetTensor("x")
	require.NoError(t, err)
	y, err := scope.GetTensor("y")
	require.NoError(t, err)
	copy(framework.Data[float32](x), []float32{1, 2, 3, 4, 5, 6})
	copy(framework.Data[float32](y), []float32{1, 1, 1, -1, -1, -1})

	require.NoError(t, prog.Execute())
	got, err := scope.GetTensor(out.ID)
	require.NoError(t, err)
	assert.Equal(t, []float32{5, 7, 9, 7, 9, 11}, framework.Data[float32](got))
}

func TestCompileErrors(t *testing.T) {
	p, _ := scaledSum(t)

	_, _, err := framework.Compile(p, framework.DefaultHostTarget(), "Nope")
	assert.ErrorIs(t, err, framework.ErrUnknownPassName)

	_, _, err = framework.Compile(p, framework.DefaultHostTarget(), "OpFusion")
	assert.ErrorIs(t, err, framework.ErrShapesNotInferred)

	_, _, err = framework.Compile(p, framework.DefaultAcceleratorTarget())
	assert.ErrorIs(t, err, framework.ErrUnsupportedOperator)
}

func TestParseTarget(t *testing.T) {
	tg, err := framework.ParseTarget("host")
	require.NoError(t, err)
	assert.Equal(t, framework.Host, tg.Kind)

	_, err = framework.ParseTarget("tpu")
	assert.Error(t, err)
}

func TestPassNames(t *testing.T) {
	assert.Contains(t, framework.PassNames(), "GemmRewriter")
	assert.Subset(t, framework.PassNames(), framework.DefaultOpFusionPasses())
}
