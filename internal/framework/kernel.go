package framework

import (
	"fmt"
	"slices"
	"sync"

	"github.com/born-ml/kiln/internal/graph"
	"github.com/born-ml/kiln/internal/ir"
	"github.com/born-ml/kiln/internal/target"
)

// KernelArgs are the operands one kernel invocation sees.
type KernelArgs struct {
	Inputs  []*Tensor
	Outputs []*Tensor
	Attrs   ir.Attrs
	Fused   []graph.FusedStep
}

// Kernel computes one operator into preallocated outputs.
type Kernel func(args *KernelArgs) error

type kernelKey struct {
	op   ir.OpType
	kind target.Kind
}

// KernelRegistry maps (operator, target kind) to kernels.
type KernelRegistry struct {
	mu      sync.RWMutex
	kernels map[kernelKey]Kernel
}

// NewKernelRegistry returns an empty registry.
func NewKernelRegistry() *KernelRegistry {
	return &KernelRegistry{kernels: make(map[kernelKey]Kernel)}
}

// Register adds a kernel. Registering the same operator and kind twice fails.
func (r *KernelRegistry) Register(op ir.OpType, kind target.Kind, k Kernel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := kernelKey{op, kind}
	if _, ok := r.kernels[key]; ok {
		return fmt.Errorf("kernel %s/%s: %w", op, kind, ErrAlreadyExists)
	}
	r.kernels[key] = k
	return nil
}

// Lookup returns the kernel for op on kind.
func (r *KernelRegistry) Lookup(op ir.OpType, kind target.Kind) (Kernel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.kernels[kernelKey{op, kind}]
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s", ErrUnsupportedOperator, op, kind)
	}
	return k, nil
}

// Ops lists the operators with a kernel for kind, sorted.
func (r *KernelRegistry) Ops(kind target.Kind) []ir.OpType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ops []ir.OpType
	for key := range r.kernels {
		if key.kind == kind {
			ops = append(ops, key.op)
		}
	}
	slices.Sort(ops)
	return ops
}

var defaultKernels = NewKernelRegistry()

// DefaultKernels returns the process-wide registry kernel packages install
// themselves into.
func DefaultKernels() *KernelRegistry { return defaultKernels }

// RegisterKernel adds a kernel to the default registry. It panics on a
// duplicate so conflicting kernel packages fail at init.
func RegisterKernel(op ir.OpType, kind target.Kind, k Kernel) {
	if err := defaultKernels.Register(op, kind, k); err != nil {
		panic(err)
	}
}
