// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package framework turns frontend programs into runnable programs: the
// graph, the pass pipeline, scopes, kernel registries and the compiler.
//
// # Basic Usage
//
//	import (
//	    _ "github.com/born-ml/kiln/backend/cpu"
//	    "github.com/born-ml/kiln/framework"
//	)
//
//	prog, scope, err := framework.Compile(p, framework.DefaultHostTarget(), "InferShape", "OpFusion")
//	if err != nil {
//	    return err
//	}
//	a, _ := scope.GetTensor("A")
//	...
//	err = prog.Execute()
package framework

import (
	"github.com/born-ml/kiln/internal/framework"
	"github.com/born-ml/kiln/internal/graph"
	"github.com/born-ml/kiln/internal/ir"
	"github.com/born-ml/kiln/internal/pass"
	"github.com/born-ml/kiln/internal/target"
	"github.com/born-ml/kiln/internal/tensor"
)

// Target selects kernels and tensor placement.
type Target = target.Target

// TargetKind is the backend family of a Target.
type TargetKind = target.Kind

// Target kinds.
const (
	Host        TargetKind = target.Host
	Accelerator TargetKind = target.Accelerator
)

// DefaultHostTarget returns the CPU target.
func DefaultHostTarget() Target { return target.DefaultHostTarget() }

// DefaultAcceleratorTarget returns the GPU target. Its kernels come from
// backend/webgpu.
func DefaultAcceleratorTarget() Target { return target.DefaultAcceleratorTarget() }

// ParseTarget accepts "host", "accelerator" and their aliases.
func ParseTarget(s string) (Target, error) { return target.Parse(s) }

// Graph is the dataflow form of a program that passes rewrite.
type Graph = graph.Graph

// Node is one operator of a Graph.
type Node = graph.Node

// GraphOption configures NewGraph.
type GraphOption = graph.Option

// NewGraph builds the graph of a finalized program.
func NewGraph(p *ir.Program, t Target, opts ...GraphOption) (*Graph, error) {
	return graph.New(p, t, opts...)
}

// WithFetches pins the variables a caller reads after execution. Passes
// never remove them.
func WithFetches(ids ...string) GraphOption { return graph.WithFetches(ids...) }

// Pass rewrites a graph into a new graph.
type Pass = pass.Pass

// ApplyPasses runs the named passes in order. Unknown names fail before
// any pass runs.
func ApplyPasses(g *Graph, names ...string) (*Graph, error) { return pass.ApplyPasses(g, names) }

// PassNames lists the registered passes.
func PassNames() []string { return pass.Names() }

// DefaultOpFusionPasses returns the passes enabled by default.
func DefaultOpFusionPasses() []string { return pass.DefaultOpFusionPasses() }

// Scope owns the tensors of a program by name.
type Scope = framework.Scope

// Tensor is a named buffer owned by a Scope.
type Tensor = framework.Tensor

// ScopeOption configures NewScope.
type ScopeOption = framework.ScopeOption

// NewScope returns an empty scope for t.
func NewScope(t Target, opts ...ScopeOption) *Scope { return framework.NewScope(t, opts...) }

// WithMemoryLimit caps the bytes a scope may allocate. Zero is unlimited.
func WithMemoryLimit(bytes uint64) ScopeOption { return framework.WithMemoryLimit(bytes) }

// BuildScope returns a scope with a zeroed tensor for every variable of g.
func BuildScope(t Target, g *Graph, opts ...ScopeOption) (*Scope, error) {
	return framework.BuildScope(t, g, opts...)
}

// Var creates a zeroed tensor whose dtype is T.
func Var[T tensor.DType](s *Scope, name string, shape tensor.Shape) (*Tensor, error) {
	return framework.Var[T](s, name, shape)
}

// Data returns a zero-copy typed view of t.
func Data[T tensor.DType](t *Tensor) []T { return framework.Data[T](t) }

// Kernel computes one operator into preallocated outputs.
type Kernel = framework.Kernel

// KernelArgs are the operands of one kernel call.
type KernelArgs = framework.KernelArgs

// KernelRegistry maps (operator, target kind) to kernels.
type KernelRegistry = framework.KernelRegistry

// NewKernelRegistry returns an empty registry.
func NewKernelRegistry() *KernelRegistry { return framework.NewKernelRegistry() }

// DefaultKernels returns the registry kernel packages install into.
func DefaultKernels() *KernelRegistry { return framework.DefaultKernels() }

// GraphCompiler lowers a graph into a Program.
type GraphCompiler = framework.GraphCompiler

// CompilerOption configures a GraphCompiler.
type CompilerOption = framework.CompilerOption

// NewGraphCompiler returns a compiler binding g to scope.
func NewGraphCompiler(t Target, scope *Scope, g *Graph, opts ...CompilerOption) *GraphCompiler {
	return framework.NewGraphCompiler(t, scope, g, opts...)
}

// WithKernels selects the kernel registry.
func WithKernels(r *KernelRegistry) CompilerOption { return framework.WithKernels(r) }

// WithWorkers bounds the goroutines resolving kernels.
func WithWorkers(n int) CompilerOption { return framework.WithWorkers(n) }

// Program is a compiled, runnable graph.
type Program = framework.Program

// Instruction is one kernel call of a Program.
type Instruction = framework.Instruction

// Errors.
var (
	ErrUnsupportedOperator = framework.ErrUnsupportedOperator
	ErrNotFound            = framework.ErrNotFound
	ErrAlreadyExists       = framework.ErrAlreadyExists
	ErrOutOfMemory         = framework.ErrOutOfMemory
	ErrExecution           = framework.ErrExecution
	ErrUnknownPassName     = pass.ErrUnknownPassName
	ErrShapesNotInferred   = pass.ErrShapesNotInferred
	ErrFetchChanged        = pass.ErrFetchChanged
)

// Compile builds the graph of p, applies passes, and compiles it against
// DefaultKernels into a fresh scope.
func Compile(p *ir.Program, t Target, passes ...string) (*Program, *Scope, error) {
	g, err := graph.New(p, t)
	if err != nil {
		return nil, nil, err
	}
	g, err = pass.ApplyPasses(g, passes)
	if err != nil {
		return nil, nil, err
	}
	scope, err := framework.BuildScope(t, g)
	if err != nil {
		return nil, nil, err
	}
	prog, err := framework.NewGraphCompiler(t, scope, g).Build()
	if err != nil {
		return nil, nil, err
	}
	return prog, scope, nil
}
