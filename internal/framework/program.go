package framework

import (
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/born-ml/kiln/internal/ir"
	"github.com/born-ml/kiln/internal/tensor"
)

// Instruction is one kernel call of a compiled program.
type Instruction struct {
	NodeID  string
	Op      ir.OpType
	Inputs  []string
	Outputs []string

	kernel Kernel
	args   KernelArgs
}

// String renders "outs = op(ins)".
func (in Instruction) String() string {
	return fmt.Sprintf("%s = %s(%s)", strings.Join(in.Outputs, ", "), in.Op, strings.Join(in.Inputs, ", "))
}

// Program is a compiled graph: kernel calls in execution order bound to
// the tensors of one scope.
type Program struct {
	id      uuid.UUID
	scope   *Scope
	instrs  []Instruction
	inputs  []string
	fetches []string
}

// ID identifies the program in logs.
func (p *Program) ID() string { return p.id.String() }

// Scope returns the scope holding the program's tensors.
func (p *Program) Scope() *Scope { return p.scope }

// Size returns the number of instructions.
func (p *Program) Size() int { return len(p.instrs) }

// Instructions returns the instructions in execution order.
func (p *Program) Instructions() []Instruction {
	out := make([]Instruction, len(p.instrs))
	for i, in := range p.instrs {
		out[i] = Instruction{NodeID: in.NodeID, Op: in.Op, Inputs: slices.Clone(in.Inputs), Outputs: slices.Clone(in.Outputs)}
	}
	return out
}

// Inputs returns the names of the graph inputs.
func (p *Program) Inputs() []string { return slices.Clone(p.inputs) }

// Fetches returns the names of the fetched tensors.
func (p *Program) Fetches() []string { return slices.Clone(p.fetches) }

// Execute runs every instruction in order. The first kernel error stops
// the run.
func (p *Program) Execute() error {
	for i := range p.instrs {
		in := &p.instrs[i]
		if err := in.kernel(&in.args); err != nil {
			return fmt.Errorf("%w: instruction %d (%s): %w", ErrExecution, i, in, err)
		}
	}
	klog.V(3).Infof("program %s: executed %d instructions", p.id, len(p.instrs))
	return nil
}

// ExecuteWith copies feeds into the named input tensors, then executes.
func (p *Program) ExecuteWith(feeds map[string]*tensor.RawTensor) error {
	for name, raw := range feeds {
		t, err := p.scope.GetTensor(name)
		if err != nil {
			return err
		}
		if err := t.Set(raw); err != nil {
			return err
		}
	}
	return p.Execute()
}

// String lists the instructions, one per line.
func (p *Program) String() string {
	var sb strings.Builder
	for i, in := range p.instrs {
		fmt.Fprintf(&sb, "[%d] %s\n", i, in)
	}
	return sb.String()
}
