package opmapper

import (
	"fmt"

	"github.com/born-ml/kiln/internal/ir"
	"github.com/born-ml/kiln/internal/tensor"
)

// RegisterDefaults installs the built-in mappers into r.
func RegisterDefaults(r *Registry) {
	registerIOOps(r)
	registerElementwiseOps(r)
	registerMathOps(r)
	registerShapeOps(r)
	registerActivationOps(r)
}

func registerIOOps(r *Registry) {
	r.MustRegister("feed", feedMapper)
	r.MustRegister("fetch", fetchMapper)
	r.MustRegister("fill_constant", fillConstantMapper)
}

func registerElementwiseOps(r *Registry) {
	type binaryFn func(b *ir.NetBuilder, x, y ir.Variable) (ir.Variable, error)
	table := map[string]binaryFn{
		"elementwise_add": func(b *ir.NetBuilder, x, y ir.Variable) (ir.Variable, error) { return b.Add(x, y) },
		"elementwise_sub": func(b *ir.NetBuilder, x, y ir.Variable) (ir.Variable, error) { return b.Sub(x, y) },
		"elementwise_mul": func(b *ir.NetBuilder, x, y ir.Variable) (ir.Variable, error) { return b.Mul(x, y) },
		"elementwise_div": func(b *ir.NetBuilder, x, y ir.Variable) (ir.Variable, error) { return b.Div(x, y) },
		"elementwise_max": func(b *ir.NetBuilder, x, y ir.Variable) (ir.Variable, error) { return b.Max(x, y) },
		"elementwise_min": func(b *ir.NetBuilder, x, y ir.Variable) (ir.Variable, error) { return b.Min(x, y) },
	}
	for name, fn := range table {
		r.MustRegister(name, func(desc OpDesc, ctx *Context) error {
			x, err := inputVar(desc, ctx, "X")
			if err != nil {
				return err
			}
			y, err := inputVar(desc, ctx, "Y")
			if err != nil {
				return err
			}
			if axis, err := GetAttrOrDefault(desc, "axis", -1); err != nil {
				return err
			} else if axis != -1 && !x.Shape.Equal(y.Shape) {
				return &ir.OpError{Op: desc.Type(), Err: ir.ErrShapeMismatch,
					Details: fmt.Sprintf("implicit broadcast along axis %d is not supported, use broadcast_to", axis)}
			}
			out, err := fn(ctx.Builder(), x, y)
			if err != nil {
				return err
			}
			return bindOutput(desc, ctx, "Out", out)
		})
	}
}

func registerMathOps(r *Registry) {
	r.MustRegister("matmul", matmulMapper("transpose_X", "transpose_Y"))
	r.MustRegister("matmul_v2", matmulMapper("trans_x", "trans_y"))
	r.MustRegister("scale", scaleMapper)
}

func registerShapeOps(r *Registry) {
	r.MustRegister("transpose2", transposeMapper)
	r.MustRegister("concat", concatMapper)
	r.MustRegister("broadcast_to", broadcastToMapper)
	r.MustRegister("slice", sliceMapper)
	r.MustRegister("reshape2", reshapeMapper)
}

func registerActivationOps(r *Registry) {
	r.MustRegister("relu", reluMapper)
}

// inputVar resolves the single name bound to an input slot.
func inputVar(desc OpDesc, ctx *Context, slot string) (ir.Variable, error) {
	name, err := singleInput(desc, slot)
	if err != nil {
		return ir.Variable{}, err
	}
	return ctx.GetVar(name)
}

// bindOutput registers v under the single name of an output slot.
func bindOutput(desc OpDesc, ctx *Context, slot string, v ir.Variable) error {
	name, err := singleOutput(desc, slot)
	if err != nil {
		return err
	}
	if err := ctx.AddVar(name, v); err != nil {
		return err
	}
	ctx.AddVarModelToProgram(name, v.ID)
	return nil
}

func feedMapper(desc OpDesc, ctx *Context) error {
	name, err := singleOutput(desc, "Out")
	if err != nil {
		return err
	}
	shape, err := GetAttr[[]int](desc, "shape")
	if err != nil {
		return err
	}
	dtypeName, err := GetAttrOrDefault(desc, "dtype", "float32")
	if err != nil {
		return err
	}
	dt, err := tensor.ParseDataType(dtypeName)
	if err != nil {
		return &ir.OpError{Op: desc.Type(), Err: ir.ErrDtypeMismatch, Details: err.Error()}
	}
	v, err := ctx.Builder().CreateInput(dt, tensor.Shape(shape), name)
	if err != nil {
		return err
	}
	if err := ctx.AddVar(name, v); err != nil {
		return err
	}
	ctx.AddVarModelToProgram(name, v.ID)
	return nil
}

func fetchMapper(desc OpDesc, ctx *Context) error {
	name, err := singleInput(desc, "X")
	if err != nil {
		return err
	}
	return ctx.MarkFetch(name)
}

func fillConstantMapper(desc OpDesc, ctx *Context) error {
	shape, err := GetAttr[[]int](desc, "shape")
	if err != nil {
		return err
	}
	value, err := GetAttr[float64](desc, "value")
	if err != nil {
		return err
	}
	dtypeName, err := GetAttrOrDefault(desc, "dtype", "float32")
	if err != nil {
		return err
	}
	dt, err := tensor.ParseDataType(dtypeName)
	if err != nil {
		return &ir.OpError{Op: desc.Type(), Err: ir.ErrDtypeMismatch, Details: err.Error()}
	}
	out, err := ctx.Builder().FillConstant(tensor.Shape(shape), value, dt)
	if err != nil {
		return err
	}
	return bindOutput(desc, ctx, "Out", out)
}

func matmulMapper(transXName, transYName string) Mapper {
	return func(desc OpDesc, ctx *Context) error {
		x, err := inputVar(desc, ctx, "X")
		if err != nil {
			return err
		}
		y, err := inputVar(desc, ctx, "Y")
		if err != nil {
			return err
		}
		transX, err := GetAttrOrDefault(desc, transXName, false)
		if err != nil {
			return err
		}
		transY, err := GetAttrOrDefault(desc, transYName, false)
		if err != nil {
			return err
		}
		out, err := ctx.Builder().MatmulT(x, y, transX, transY)
		if err != nil {
			return err
		}
		return bindOutput(desc, ctx, "Out", out)
	}
}

func scaleMapper(desc OpDesc, ctx *Context) error {
	x, err := inputVar(desc, ctx, "X")
	if err != nil {
		return err
	}
	scale, err := GetAttrOrDefault(desc, "scale", 1.0)
	if err != nil {
		return err
	}
	bias, err := GetAttrOrDefault(desc, "bias", 0.0)
	if err != nil {
		return err
	}
	after, err := GetAttrOrDefault(desc, "bias_after_scale", true)
	if err != nil {
		return err
	}
	out, err := ctx.Builder().Scale(x, scale, bias, after)
	if err != nil {
		return err
	}
	return bindOutput(desc, ctx, "Out", out)
}

func transposeMapper(desc OpDesc, ctx *Context) error {
	x, err := inputVar(desc, ctx, "X")
	if err != nil {
		return err
	}
	perm, err := GetAttr[[]int](desc, "axis")
	if err != nil {
		return err
	}
	out, err := ctx.Builder().Transpose(x, perm)
	if err != nil {
		return err
	}
	return bindOutput(desc, ctx, "Out", out)
}

func concatMapper(desc OpDesc, ctx *Context) error {
	names, err := desc.Input("X")
	if err != nil {
		return err
	}
	inputs := make([]ir.Variable, len(names))
	for i, n := range names {
		if inputs[i], err = ctx.GetVar(n); err != nil {
			return err
		}
	}
	axis, err := GetAttrOrDefault(desc, "axis", 0)
	if err != nil {
		return err
	}
	outs, err := ctx.Builder().Append(ir.OpConcat, inputs, ir.Attrs{ir.AttrAxis: ir.IntAttr(axis)})
	if err != nil {
		return err
	}
	return bindOutput(desc, ctx, "Out", outs[0])
}

func broadcastToMapper(desc OpDesc, ctx *Context) error {
	x, err := inputVar(desc, ctx, "X")
	if err != nil {
		return err
	}
	outShape, err := GetAttr[[]int](desc, "out_shape")
	if err != nil {
		return err
	}
	axes, err := GetAttr[[]int](desc, "broadcast_axes")
	if err != nil {
		return err
	}
	out, err := ctx.Builder().BroadcastTo(x, tensor.Shape(outShape), axes)
	if err != nil {
		return err
	}
	return bindOutput(desc, ctx, "Out", out)
}

func sliceMapper(desc OpDesc, ctx *Context) error {
	x, err := inputVar(desc, ctx, "Input")
	if err != nil {
		return err
	}
	starts, err := GetAttr[[]int](desc, "starts")
	if err != nil {
		return err
	}
	ends, err := GetAttr[[]int](desc, "ends")
	if err != nil {
		return err
	}
	axes, err := GetAttr[[]int](desc, "axes")
	if err != nil {
		return err
	}
	inferFlags, err := GetAttrOrDefault(desc, "infer_flags", []int(nil))
	if err != nil {
		return err
	}
	decrease, err := GetAttrOrDefault(desc, "decrease_axis", []int(nil))
	if err != nil {
		return err
	}
	out, err := ctx.Builder().Slice(x, axes, starts, ends, inferFlags, decrease)
	if err != nil {
		return err
	}
	return bindOutput(desc, ctx, "Out", out)
}

func reshapeMapper(desc OpDesc, ctx *Context) error {
	x, err := inputVar(desc, ctx, "X")
	if err != nil {
		return err
	}
	shape, err := GetAttr[[]int](desc, "shape")
	if err != nil {
		return err
	}
	out, err := ctx.Builder().Reshape(x, shape)
	if err != nil {
		return err
	}
	return bindOutput(desc, ctx, "Out", out)
}

func reluMapper(desc OpDesc, ctx *Context) error {
	x, err := inputVar(desc, ctx, "X")
	if err != nil {
		return err
	}
	out, err := ctx.Builder().Relu(x)
	if err != nil {
		return err
	}
	return bindOutput(desc, ctx, "Out", out)
}
