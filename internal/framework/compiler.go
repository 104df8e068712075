package framework

import (
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/born-ml/kiln/internal/envconfig"
	"github.com/born-ml/kiln/internal/graph"
	"github.com/born-ml/kiln/internal/ir"
	"github.com/born-ml/kiln/internal/target"
)

// CompilerOption configures a GraphCompiler.
type CompilerOption func(*GraphCompiler)

// WithKernels selects the kernel registry. The default is DefaultKernels().
func WithKernels(r *KernelRegistry) CompilerOption {
	return func(c *GraphCompiler) { c.kernels = r }
}

// WithWorkers bounds the goroutines checking nodes and resolving kernels.
// The default is KILN_COMPILE_WORKERS.
func WithWorkers(n int) CompilerOption {
	return func(c *GraphCompiler) { c.workers = n }
}

// GraphCompiler lowers a graph into a Program bound to a scope.
type GraphCompiler struct {
	target  target.Target
	scope   *Scope
	graph   *graph.Graph
	kernels *KernelRegistry
	workers int
}

// NewGraphCompiler returns a compiler for g. Tensors missing from scope
// are allocated during Build.
func NewGraphCompiler(t target.Target, scope *Scope, g *graph.Graph, opts ...CompilerOption) *GraphCompiler {
	c := &GraphCompiler{
		target:  t,
		scope:   scope,
		graph:   g,
		kernels: DefaultKernels(),
		workers: int(envconfig.CompileWorkers()),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Build orders the graph, checks every node's recorded output types
// against its shape rule, resolves one kernel per node and binds every
// operand to a scope tensor. Node checks run on up to WithWorkers
// goroutines; binding is serial.
func (c *GraphCompiler) Build() (*Program, error) {
	if klog.V(1).Enabled() {
		klog.Infof("compiling graph %s for %s:\n%s", c.graph.Name(), c.target, c.graph.Visualize())
	}
	order, err := c.graph.TopoOrder()
	if err != nil {
		return nil, err
	}

	kernels := make([]Kernel, len(order))
	var eg errgroup.Group
	eg.SetLimit(max(c.workers, 1))
	for i, n := range order {
		eg.Go(func() error {
			if err := c.check(n); err != nil {
				return fmt.Errorf("node %s: %w", n.ID, err)
			}
			k, err := c.kernels.Lookup(n.Op, c.target.Kind)
			if err != nil {
				return fmt.Errorf("node %s: %w", n.ID, err)
			}
			kernels[i] = k
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	p := &Program{
		id:      uuid.New(),
		scope:   c.scope,
		inputs:  c.graph.Inputs(),
		fetches: c.graph.Fetches(),
	}
	for _, id := range c.graph.Inputs() {
		if _, err := c.bind(id); err != nil {
			return nil, err
		}
	}
	for i, n := range order {
		in, err := c.bindAll(n.Inputs)
		if err != nil {
			return nil, err
		}
		out, err := c.bindAll(n.Outputs)
		if err != nil {
			return nil, err
		}
		instr := Instruction{
			NodeID:  n.ID,
			Op:      n.Op,
			Inputs:  n.Inputs,
			Outputs: n.Outputs,
			kernel:  kernels[i],
			args:    KernelArgs{Inputs: in, Outputs: out, Attrs: n.Attrs, Fused: n.Fused},
		}
		klog.V(2).Infof("program %s: [%d] %s", p.id, i, instr)
		p.instrs = append(p.instrs, instr)
	}
	klog.V(1).Infof("program %s: %d instructions, scope %s holds %d tensors (%d bytes)",
		p.id, len(p.instrs), c.scope.ID(), c.scope.Len(), c.scope.MemoryUsed())
	return p, nil
}

// check re-derives n's output types from its inputs. A mismatch means a
// rewrite left stale metadata and the kernels would see wrong buffers.
func (c *GraphCompiler) check(n graph.Node) error {
	in := make([]ir.Meta, len(n.Inputs))
	for i, id := range n.Inputs {
		m, ok := c.graph.Var(id)
		if !ok {
			return fmt.Errorf("%w: %q", graph.ErrUnknownVar, id)
		}
		in[i] = m
	}
	want, err := ir.InferOutputs(n.Op, in, n.Attrs)
	if err != nil {
		return err
	}
	if len(want) != len(n.Outputs) {
		return fmt.Errorf("%d outputs, shape rule gives %d", len(n.Outputs), len(want))
	}
	for i, id := range n.Outputs {
		got, ok := c.graph.Var(id)
		if !ok {
			return fmt.Errorf("%w: %q", graph.ErrUnknownVar, id)
		}
		if !got.Equal(want[i]) {
			return fmt.Errorf("output %s is %s%v, shape rule gives %s%v: %w",
				id, got.DType, got.Shape, want[i].DType, want[i].Shape, ir.ErrShapeMismatch)
		}
	}
	return nil
}

func (c *GraphCompiler) bind(id string) (*Tensor, error) {
	m, ok := c.graph.Var(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", graph.ErrUnknownVar, id)
	}
	return c.scope.ensure(id, m.Shape, m.DType)
}

func (c *GraphCompiler) bindAll(ids []string) ([]*Tensor, error) {
	out := make([]*Tensor, len(ids))
	for i, id := range ids {
		t, err := c.bind(id)
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}
