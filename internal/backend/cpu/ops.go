package cpu

import (
	"fmt"

	"github.com/born-ml/kiln/internal/framework"
	"github.com/born-ml/kiln/internal/ir"
	"github.com/born-ml/kiln/internal/parallel"
	"github.com/born-ml/kiln/internal/tensor"
)

// number is the set of element types host arithmetic runs on. Float16
// is promoted to float32 before it reaches a typed loop.
type number interface {
	float32 | float64 | int32 | int64 | uint8
}

func isInteger[T number]() bool {
	var zero T
	switch any(zero).(type) {
	case float32, float64:
		return false
	}
	return true
}

// binaryFunc computes dst[i] = x[i] op y[i].
type binaryFunc[T number] func(dst, x, y []T) error

// unaryFunc computes dst[i] = op(x[i]).
type unaryFunc[T number] func(dst, x []T)

func binaryLoop[T number](op ir.OpType) (binaryFunc[T], error) {
	var f func(a, b T) T
	switch op {
	case ir.OpAdd:
		f = func(a, b T) T { return a + b }
	case ir.OpSub:
		f = func(a, b T) T { return a - b }
	case ir.OpMul:
		f = func(a, b T) T { return a * b }
	case ir.OpDiv:
		if isInteger[T]() {
			return divInteger[T], nil
		}
		f = func(a, b T) T { return a / b }
	case ir.OpMax:
		f = func(a, b T) T { return max(a, b) }
	case ir.OpMin:
		f = func(a, b T) T { return min(a, b) }
	default:
		return nil, fmt.Errorf("%s is not a binary elementwise operator", op)
	}
	return func(dst, x, y []T) error {
		for i := range dst {
			dst[i] = f(x[i], y[i])
		}
		return nil
	}, nil
}

func divInteger[T number](dst, x, y []T) error {
	for i := range dst {
		if y[i] == 0 {
			return ErrDivisionByZero
		}
		dst[i] = x[i] / y[i]
	}
	return nil
}

func unaryLoop[T number](op ir.OpType, attrs ir.Attrs) (unaryFunc[T], error) {
	switch op {
	case ir.OpRelu:
		return func(dst, x []T) {
			for i, v := range x {
				dst[i] = max(v, 0)
			}
		}, nil
	case ir.OpScale:
		scale, err := attrs.Float(ir.AttrScale, 1)
		if err != nil {
			return nil, err
		}
		bias, err := attrs.Float(ir.AttrBias, 0)
		if err != nil {
			return nil, err
		}
		after, err := attrs.Bool(ir.AttrBiasAfterScale, true)
		if err != nil {
			return nil, err
		}
		if !after {
			bias *= scale
		}
		return func(dst, x []T) {
			for i, v := range x {
				dst[i] = T(float64(v)*scale + bias)
			}
		}, nil
	}
	return nil, fmt.Errorf("%s is not a unary elementwise operator", op)
}

func (cpu *Backend) binary(op ir.OpType) framework.Kernel {
	return func(args *framework.KernelArgs) error {
		ins, out, err := operands(op, args, 2)
		if err != nil {
			return err
		}
		if err := sameLayout(op, ins, out); err != nil {
			return err
		}
		return promoted(ins, out, func(ins []*tensor.RawTensor, out *tensor.RawTensor) error {
			switch out.DType() {
			case tensor.Float32:
				return runBinary[float32](cpu.cfg, op, ins, out)
			case tensor.Float64:
				return runBinary[float64](cpu.cfg, op, ins, out)
			case tensor.Int32:
				return runBinary[int32](cpu.cfg, op, ins, out)
			case tensor.Int64:
				return runBinary[int64](cpu.cfg, op, ins, out)
			case tensor.Uint8:
				return runBinary[uint8](cpu.cfg, op, ins, out)
			}
			return unsupported(op, out.DType())
		})
	}
}

func runBinary[T number](cfg parallel.Config, op ir.OpType, ins []*tensor.RawTensor, out *tensor.RawTensor) error {
	f, err := binaryLoop[T](op)
	if err != nil {
		return err
	}
	x, y, dst := tensor.View[T](ins[0]), tensor.View[T](ins[1]), tensor.View[T](out)
	return parallel.ForRangeErr(len(dst), func(lo, hi int) error {
		return f(dst[lo:hi], x[lo:hi], y[lo:hi])
	}, cfg)
}

func (cpu *Backend) unary(op ir.OpType) framework.Kernel {
	return func(args *framework.KernelArgs) error {
		ins, out, err := operands(op, args, 1)
		if err != nil {
			return err
		}
		if err := sameLayout(op, ins, out); err != nil {
			return err
		}
		return promoted(ins, out, func(ins []*tensor.RawTensor, out *tensor.RawTensor) error {
			switch out.DType() {
			case tensor.Float32:
				return runUnary[float32](cpu.cfg, op, args.Attrs, ins[0], out)
			case tensor.Float64:
				return runUnary[float64](cpu.cfg, op, args.Attrs, ins[0], out)
			case tensor.Int32:
				return runUnary[int32](cpu.cfg, op, args.Attrs, ins[0], out)
			case tensor.Int64:
				return runUnary[int64](cpu.cfg, op, args.Attrs, ins[0], out)
			case tensor.Uint8:
				return runUnary[uint8](cpu.cfg, op, args.Attrs, ins[0], out)
			}
			return unsupported(op, out.DType())
		})
	}
}

func runUnary[T number](cfg parallel.Config, op ir.OpType, attrs ir.Attrs, in, out *tensor.RawTensor) error {
	f, err := unaryLoop[T](op, attrs)
	if err != nil {
		return err
	}
	x, dst := tensor.View[T](in), tensor.View[T](out)
	parallel.ForRange(len(dst), func(lo, hi int) {
		f(dst[lo:hi], x[lo:hi])
	}, cfg)
	return nil
}
