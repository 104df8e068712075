package cpu

import (
	"fmt"

	"github.com/born-ml/kiln/internal/framework"
	"github.com/born-ml/kiln/internal/graph"
	"github.com/born-ml/kiln/internal/ir"
	"github.com/born-ml/kiln/internal/parallel"
	"github.com/born-ml/kiln/internal/tensor"
)

type fusedStep[T number] struct {
	args   []graph.FusedArg
	unary  unaryFunc[T]
	binary binaryFunc[T]
}

// compileFused resolves each step to a typed loop and checks that every
// argument refers to a node input or an earlier step.
func compileFused[T number](steps []graph.FusedStep, nInputs int) ([]fusedStep[T], error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("%s: no steps", ir.OpFusedElementwise)
	}
	out := make([]fusedStep[T], len(steps))
	for s, st := range steps {
		for _, a := range st.Args {
			if (a.FromStep && (a.Index < 0 || a.Index >= s)) || (!a.FromStep && (a.Index < 0 || a.Index >= nInputs)) {
				return nil, fmt.Errorf("%s: step %d (%s) has a dangling argument %+v", ir.OpFusedElementwise, s, st.Op, a)
			}
		}
		out[s].args = st.Args
		var err error
		switch {
		case ir.IsBinaryElementwise(st.Op) && len(st.Args) == 2:
			out[s].binary, err = binaryLoop[T](st.Op)
		case ir.IsUnaryElementwise(st.Op) && len(st.Args) == 1:
			out[s].unary, err = unaryLoop[T](st.Op, st.Attrs)
		default:
			err = fmt.Errorf("%s: step %d: cannot run %s with %d arguments", ir.OpFusedElementwise, s, st.Op, len(st.Args))
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// fused evaluates the whole step list chunk by chunk, so intermediates
// never leave a chunk-sized scratch buffer.
func (cpu *Backend) fused(args *framework.KernelArgs) error {
	op := ir.OpFusedElementwise
	ins, out, err := operands(op, args, -1)
	if err != nil {
		return err
	}
	if err := sameLayout(op, ins, out); err != nil {
		return err
	}
	return promoted(ins, out, func(ins []*tensor.RawTensor, out *tensor.RawTensor) error {
		switch out.DType() {
		case tensor.Float32:
			return runFused[float32](cpu.cfg, args.Fused, ins, out)
		case tensor.Float64:
			return runFused[float64](cpu.cfg, args.Fused, ins, out)
		case tensor.Int32:
			return runFused[int32](cpu.cfg, args.Fused, ins, out)
		case tensor.Int64:
			return runFused[int64](cpu.cfg, args.Fused, ins, out)
		case tensor.Uint8:
			return runFused[uint8](cpu.cfg, args.Fused, ins, out)
		}
		return unsupported(op, out.DType())
	})
}

func runFused[T number](cfg parallel.Config, steps []graph.FusedStep, ins []*tensor.RawTensor, out *tensor.RawTensor) error {
	prog, err := compileFused[T](steps, len(ins))
	if err != nil {
		return err
	}
	srcs := make([][]T, len(ins))
	for i, in := range ins {
		srcs[i] = tensor.View[T](in)
	}
	dst := tensor.View[T](out)
	last := len(prog) - 1

	return parallel.ForRangeErr(len(dst), func(lo, hi int) error {
		results := make([][]T, len(prog))
		operand := func(a graph.FusedArg) []T {
			if a.FromStep {
				return results[a.Index]
			}
			return srcs[a.Index][lo:hi]
		}
		for s, st := range prog {
			buf := dst[lo:hi]
			if s != last {
				buf = make([]T, hi-lo)
			}
			if st.binary != nil {
				if err := st.binary(buf, operand(st.args[0]), operand(st.args[1])); err != nil {
					return err
				}
			} else {
				st.unary(buf, operand(st.args[0]))
			}
			results[s] = buf
		}
		return nil
	}, cfg)
}
