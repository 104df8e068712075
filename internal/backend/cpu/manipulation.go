package cpu

import (
	"fmt"

	"github.com/born-ml/kiln/internal/framework"
	"github.com/born-ml/kiln/internal/ir"
	"github.com/born-ml/kiln/internal/tensor"
)

// concat joins its inputs along axis. Every input contributes one
// contiguous block per index of the axes before axis.
func (cpu *Backend) concat(args *framework.KernelArgs) error {
	ins, out, err := operands(ir.OpConcat, args, -1)
	if err != nil {
		return err
	}
	axis, err := args.Attrs.Int(ir.AttrAxis, 0)
	if err != nil {
		return err
	}
	shape := out.Shape()
	if axis < 0 {
		axis += shape.Rank()
	}
	if axis < 0 || axis >= shape.Rank() {
		return fmt.Errorf("concat: axis %d out of range for %v", axis, shape)
	}

	outer := tensor.Shape(shape[:axis]).NumElements()
	blocks := make([]int, len(ins))
	total := 0
	for i, in := range ins {
		if in.DType() != out.DType() || in.Shape().Rank() != shape.Rank() {
			return fmt.Errorf("concat: input %d is %s%v, output is %s%v", i, in.DType(), in.Shape(), out.DType(), shape)
		}
		if outer > 0 {
			blocks[i] = in.ByteSize() / outer
		}
		total += blocks[i]
	}
	if total*outer != out.ByteSize() {
		return fmt.Errorf("concat: inputs hold %d bytes, output %v needs %d", total*outer, shape, out.ByteSize())
	}

	dst := out.Data()
	for o := 0; o < outer; o++ {
		off := o * total
		for i, in := range ins {
			src := in.Data()[o*blocks[i] : (o+1)*blocks[i]]
			off += copy(dst[off:], src)
		}
	}
	return nil
}

func (cpu *Backend) transpose(args *framework.KernelArgs) error {
	ins, out, err := operands(ir.OpTranspose, args, 1)
	if err != nil {
		return err
	}
	perm, err := args.Attrs.RequireInts(ir.OpTranspose, ir.AttrPerm)
	if err != nil {
		return err
	}
	x := ins[0]
	if !ir.IsPermutation(perm, x.Shape().Rank()) {
		return fmt.Errorf("transpose: perm %v does not fit %v", perm, x.Shape())
	}
	shape := make(tensor.Shape, len(perm))
	strides := make([]int, len(perm))
	xStrides := x.Shape().ComputeStrides()
	for i, p := range perm {
		shape[i] = x.Shape()[p]
		strides[i] = xStrides[p]
	}
	if err := checkOutput(ir.OpTranspose, x, out, shape); err != nil {
		return err
	}
	gather(cpu.cfg, out.Data(), x.Data(), x.DType().Size(), shape, strides, 0)
	return nil
}

// slice resolves its bounds against the runtime input shape, so axes
// marked for inference follow the actual extent.
func (cpu *Backend) slice(args *framework.KernelArgs) error {
	ins, out, err := operands(ir.OpSlice, args, 1)
	if err != nil {
		return err
	}
	x := ins[0]
	spec, err := ir.ResolveSlice(ir.OpSlice, x.Shape(), args.Attrs)
	if err != nil {
		return err
	}
	if err := checkOutput(ir.OpSlice, x, out, spec.Squeezed); err != nil {
		return err
	}
	strides := x.Shape().ComputeStrides()
	base := 0
	for d, s := range spec.Starts {
		base += s * strides[d]
	}
	gather(cpu.cfg, out.Data(), x.Data(), x.DType().Size(), spec.Shape, strides, base)
	return nil
}

func checkOutput(op ir.OpType, x, out *tensor.RawTensor, want tensor.Shape) error {
	if out.DType() != x.DType() || !out.Shape().Equal(want) {
		return fmt.Errorf("%s: output is %s%v, want %s%v", op, out.DType(), out.Shape(), x.DType(), want)
	}
	return nil
}
