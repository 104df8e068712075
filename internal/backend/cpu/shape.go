package cpu

import (
	"fmt"

	"github.com/born-ml/kiln/internal/framework"
	"github.com/born-ml/kiln/internal/ir"
	"github.com/born-ml/kiln/internal/tensor"
)

// broadcastTo expands x to out_shape. Input axis i lands on output axis
// broadcast_axes[i]; extent-1 axes and unmapped output axes repeat.
func (cpu *Backend) broadcastTo(args *framework.KernelArgs) error {
	ins, out, err := operands(ir.OpBroadcastTo, args, 1)
	if err != nil {
		return err
	}
	axes, err := args.Attrs.RequireInts(ir.OpBroadcastTo, ir.AttrBroadcastAxes)
	if err != nil {
		return err
	}
	x := ins[0]
	shape := out.Shape()
	if out.DType() != x.DType() || len(axes) != x.Shape().Rank() {
		return fmt.Errorf("broadcast_to: cannot expand %s%v to %s%v along %v", x.DType(), x.Shape(), out.DType(), shape, axes)
	}
	strides := make([]int, shape.Rank())
	xStrides := x.Shape().ComputeStrides()
	for i, a := range axes {
		if a < 0 || a >= shape.Rank() {
			return fmt.Errorf("broadcast_to: axis %d out of range for %v", a, shape)
		}
		switch x.Shape()[i] {
		case 1:
		case shape[a]:
			strides[a] = xStrides[i]
		default:
			return fmt.Errorf("broadcast_to: dimension %d of %v does not match %v", i, x.Shape(), shape)
		}
	}
	gather(cpu.cfg, out.Data(), x.Data(), x.DType().Size(), shape, strides, 0)
	return nil
}

// reshape copies the buffer; only the shape changes.
func (cpu *Backend) reshape(args *framework.KernelArgs) error {
	ins, out, err := operands(ir.OpReshape, args, 1)
	if err != nil {
		return err
	}
	x := ins[0]
	if x.DType() != out.DType() || x.NumElements() != out.NumElements() {
		return fmt.Errorf("reshape: cannot view %s%v as %s%v", x.DType(), x.Shape(), out.DType(), out.Shape())
	}
	copy(out.Data(), x.Data())
	return nil
}

func (cpu *Backend) fillConstant(args *framework.KernelArgs) error {
	_, out, err := operands(ir.OpFillConstant, args, 0)
	if err != nil {
		return err
	}
	if _, ok := args.Attrs.Get(ir.AttrValue); !ok {
		return fmt.Errorf("fill_constant: %w %q", ir.ErrMissingAttribute, ir.AttrValue)
	}
	v, err := args.Attrs.Float(ir.AttrValue, 0)
	if err != nil {
		return err
	}
	tensor.Fill(out, v)
	return nil
}
