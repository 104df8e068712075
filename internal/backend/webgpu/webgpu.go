// Package webgpu implements accelerator kernels on WebGPU compute shaders.
// Uses go-webgpu (github.com/go-webgpu/webgpu) for zero-CGO WebGPU bindings.
//
// Only a subset of the vocabulary runs on the device: float32 add, sub,
// mul and div, rank-2 matmul and the rank-2 transpose. Compiling any other
// operator for target.Accelerator fails with framework.ErrUnsupportedOperator.
// Every kernel uploads its operands, dispatches one compute pass and reads
// the result back into the output tensor.
package webgpu

import (
	"errors"
	"fmt"
	"slices"

	"github.com/born-ml/kiln/internal/framework"
	"github.com/born-ml/kiln/internal/ir"
	"github.com/born-ml/kiln/internal/target"
	"github.com/born-ml/kiln/internal/tensor"
)

var (
	// ErrUnavailable means no WebGPU adapter could be opened on this system.
	ErrUnavailable = errors.New("webgpu: not available")

	// ErrUnsupportedOperand means the device kernel cannot handle an operand's
	// dtype, rank or attributes.
	ErrUnsupportedOperand = errors.New("webgpu: unsupported operand")
)

var ops = []ir.OpType{ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpDiv, ir.OpMatmul, ir.OpTranspose}

// Ops lists the operators with a device kernel.
func Ops() []ir.OpType { return slices.Clone(ops) }

// Register installs the device kernels into reg under target.Accelerator.
func (b *Backend) Register(reg *framework.KernelRegistry) error {
	kernels := b.Kernels()
	for _, op := range ops {
		if err := reg.Register(op, target.Accelerator, kernels[op]); err != nil {
			return err
		}
	}
	return nil
}

// Register opens the default adapter and installs its kernels into reg.
// The caller releases the returned backend once no program uses it.
func Register(reg *framework.KernelRegistry) (*Backend, error) {
	b, err := New()
	if err != nil {
		return nil, err
	}
	if err := b.Register(reg); err != nil {
		b.Release()
		return nil, err
	}
	return b, nil
}

func float32Operands(op ir.OpType, args *framework.KernelArgs, nIn int) ([]*tensor.RawTensor, *tensor.RawTensor, error) {
	if len(args.Inputs) != nIn || len(args.Outputs) != 1 {
		return nil, nil, fmt.Errorf("%s: got %d inputs and %d outputs", op, len(args.Inputs), len(args.Outputs))
	}
	out := args.Outputs[0].Raw()
	ins := make([]*tensor.RawTensor, nIn)
	for i, t := range args.Inputs {
		ins[i] = t.Raw()
		if ins[i].DType() != tensor.Float32 {
			return nil, nil, fmt.Errorf("%s: %w: only float32 is supported, got %s", op, ErrUnsupportedOperand, ins[i].DType())
		}
	}
	if out.DType() != tensor.Float32 {
		return nil, nil, fmt.Errorf("%s: %w: only float32 is supported, got %s", op, ErrUnsupportedOperand, out.DType())
	}
	return ins, out, nil
}

// binaryOperands checks an elementwise call: equal float32 layouts.
func binaryOperands(op ir.OpType, args *framework.KernelArgs) (x, y, out *tensor.RawTensor, err error) {
	ins, out, err := float32Operands(op, args, 2)
	if err != nil {
		return nil, nil, nil, err
	}
	for i, in := range ins {
		if !in.Shape().Equal(out.Shape()) {
			return nil, nil, nil, fmt.Errorf("%s: input %d shape %v, output %v", op, i, in.Shape(), out.Shape())
		}
	}
	return ins[0], ins[1], out, nil
}

// matmulDims are the uniform parameters of the matmul shader.
type matmulDims struct {
	m, k, n        int
	transA, transB bool
}

func matmulOperands(args *framework.KernelArgs) (x, y, out *tensor.RawTensor, d matmulDims, err error) {
	ins, out, err := float32Operands(ir.OpMatmul, args, 2)
	if err != nil {
		return nil, nil, nil, d, err
	}
	x, y = ins[0], ins[1]
	if x.Shape().Rank() != 2 || y.Shape().Rank() != 2 {
		return nil, nil, nil, d, fmt.Errorf("matmul: %w: requires 2D operands, got %v and %v",
			ErrUnsupportedOperand, x.Shape(), y.Shape())
	}
	if d.transA, err = args.Attrs.Bool(ir.AttrTransX, false); err != nil {
		return nil, nil, nil, d, err
	}
	if d.transB, err = args.Attrs.Bool(ir.AttrTransY, false); err != nil {
		return nil, nil, nil, d, err
	}
	want, err := ir.MatmulShape(ir.OpMatmul, x.Shape(), y.Shape(), d.transA, d.transB)
	if err != nil {
		return nil, nil, nil, d, err
	}
	if !want.Equal(out.Shape()) {
		return nil, nil, nil, d, fmt.Errorf("matmul: output shape %v, want %v", out.Shape(), want)
	}
	d.m, d.n = want[0], want[1]
	d.k = x.Shape()[1]
	if d.transA {
		d.k = x.Shape()[0]
	}
	return x, y, out, d, nil
}

func transposeOperands(args *framework.KernelArgs) (x, out *tensor.RawTensor, err error) {
	ins, out, err := float32Operands(ir.OpTranspose, args, 1)
	if err != nil {
		return nil, nil, err
	}
	x = ins[0]
	perm, err := args.Attrs.RequireInts(ir.OpTranspose, ir.AttrPerm)
	if err != nil {
		return nil, nil, err
	}
	if x.Shape().Rank() != 2 || !slices.Equal(perm, []int{1, 0}) {
		return nil, nil, fmt.Errorf("transpose: %w: only the 2D transpose is supported, got %v perm %v",
			ErrUnsupportedOperand, x.Shape(), perm)
	}
	if want := (tensor.Shape{x.Shape()[1], x.Shape()[0]}); !want.Equal(out.Shape()) {
		return nil, nil, fmt.Errorf("transpose: output shape %v, want %v", out.Shape(), want)
	}
	return x, out, nil
}
