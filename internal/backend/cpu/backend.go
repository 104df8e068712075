// Package cpu implements the host kernels: elementwise arithmetic, the
// fused elementwise interpreter, data movement and BLAS-backed matrix
// products. Importing the package installs every kernel into
// framework.DefaultKernels for target.Host.
package cpu

import (
	"errors"
	"fmt"

	"github.com/born-ml/kiln/internal/framework"
	"github.com/born-ml/kiln/internal/ir"
	"github.com/born-ml/kiln/internal/parallel"
	"github.com/born-ml/kiln/internal/target"
	"github.com/born-ml/kiln/internal/tensor"
)

// Kernel errors.
var (
	// ErrDivisionByZero is returned by integer division with a zero divisor.
	ErrDivisionByZero = errors.New("integer division by zero")

	// ErrUnsupportedDType means a kernel has no implementation for an element type.
	ErrUnsupportedDType = errors.New("unsupported dtype")
)

// Backend holds the host kernels and the loop configuration they share.
type Backend struct {
	cfg parallel.Config
}

// New creates a CPU backend whose kernels split loops according to cfg.
func New(cfg parallel.Config) *Backend {
	return &Backend{cfg: cfg}
}

// Name returns the backend name.
func (cpu *Backend) Name() string {
	return "CPU"
}

// Kernels returns one kernel per operator.
func (cpu *Backend) Kernels() map[ir.OpType]framework.Kernel {
	return map[ir.OpType]framework.Kernel{
		ir.OpAdd:              cpu.binary(ir.OpAdd),
		ir.OpSub:              cpu.binary(ir.OpSub),
		ir.OpMul:              cpu.binary(ir.OpMul),
		ir.OpDiv:              cpu.binary(ir.OpDiv),
		ir.OpMax:              cpu.binary(ir.OpMax),
		ir.OpMin:              cpu.binary(ir.OpMin),
		ir.OpRelu:             cpu.unary(ir.OpRelu),
		ir.OpScale:            cpu.unary(ir.OpScale),
		ir.OpFusedElementwise: cpu.fused,
		ir.OpConcat:           cpu.concat,
		ir.OpBroadcastTo:      cpu.broadcastTo,
		ir.OpTranspose:        cpu.transpose,
		ir.OpSlice:            cpu.slice,
		ir.OpReshape:          cpu.reshape,
		ir.OpFillConstant:     cpu.fillConstant,
		ir.OpMatmul:           cpu.matmul,
		ir.OpGemm:             cpu.gemm,
	}
}

// Register installs a kernel for every known operator on target.Host.
func (cpu *Backend) Register(reg *framework.KernelRegistry) error {
	kernels := cpu.Kernels()
	for _, op := range ir.KnownOps() {
		k, ok := kernels[op]
		if !ok {
			return fmt.Errorf("cpu: no kernel for %s", op)
		}
		if err := reg.Register(op, target.Host, k); err != nil {
			return err
		}
	}
	return nil
}

// Register installs the host kernels into reg using parallel.DefaultConfig.
func Register(reg *framework.KernelRegistry) error {
	return New(parallel.DefaultConfig()).Register(reg)
}

func init() {
	if err := Register(framework.DefaultKernels()); err != nil {
		panic(err)
	}
}

// operands unwraps the tensors of a single-output kernel call. A negative
// nIn accepts any non-zero number of inputs.
func operands(op ir.OpType, args *framework.KernelArgs, nIn int) ([]*tensor.RawTensor, *tensor.RawTensor, error) {
	if (nIn >= 0 && len(args.Inputs) != nIn) || (nIn < 0 && len(args.Inputs) == 0) || len(args.Outputs) != 1 {
		return nil, nil, fmt.Errorf("%s: got %d inputs and %d outputs", op, len(args.Inputs), len(args.Outputs))
	}
	ins := make([]*tensor.RawTensor, len(args.Inputs))
	for i, t := range args.Inputs {
		ins[i] = t.Raw()
	}
	return ins, args.Outputs[0].Raw(), nil
}

// sameLayout checks that every input matches the output's dtype and shape.
func sameLayout(op ir.OpType, ins []*tensor.RawTensor, out *tensor.RawTensor) error {
	for i, in := range ins {
		if in.DType() != out.DType() || !in.Shape().Equal(out.Shape()) {
			return fmt.Errorf("%s: input %d is %s%v, output is %s%v",
				op, i, in.DType(), in.Shape(), out.DType(), out.Shape())
		}
	}
	return nil
}

func unsupported(op ir.OpType, dt tensor.DataType) error {
	return fmt.Errorf("%s: %w %s", op, ErrUnsupportedDType, dt)
}

// promoted runs arithmetic on Float16 operands in float32 and rounds the
// result back into out. Other dtypes run as they are.
func promoted(ins []*tensor.RawTensor, out *tensor.RawTensor, run func([]*tensor.RawTensor, *tensor.RawTensor) error) error {
	if out.DType() != tensor.Float16 {
		return run(ins, out)
	}
	wide := make([]*tensor.RawTensor, len(ins))
	for i, in := range ins {
		if in.DType() != tensor.Float16 {
			wide[i] = in
			continue
		}
		w, err := tensor.Float16ToFloat32(in)
		if err != nil {
			return err
		}
		wide[i] = w
	}
	tmp, err := tensor.NewRaw(out.Shape(), tensor.Float32, out.Device())
	if err != nil {
		return err
	}
	if err := run(wide, tmp); err != nil {
		return err
	}
	return tensor.StoreFloat32AsFloat16(out, tmp)
}
