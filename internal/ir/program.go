// Package ir implements the frontend intermediate representation: SSA
// variables, instructions, the immutable Program and the builders that emit it.
package ir

import (
	"fmt"
	"slices"
	"strings"

	"github.com/born-ml/kiln/internal/tensor"
)

// Variable is an SSA handle to a tensor value. It is produced by exactly
// one instruction or declared as a program input.
type Variable struct {
	ID    string
	Shape tensor.Shape
	DType tensor.DataType
}

// Meta returns the variable's static type.
func (v Variable) Meta() Meta {
	return Meta{Shape: v.Shape.Clone(), DType: v.DType}
}

// String renders "id:dtype(shape)".
func (v Variable) String() string {
	return fmt.Sprintf("%s:%s%v", v.ID, v.DType, v.Shape)
}

// Instruction is one operator application.
type Instruction struct {
	Op      OpType
	Inputs  []string
	Outputs []string
	Attrs   Attrs
}

// String renders "out = op(in0, in1, attr=value)".
func (in Instruction) String() string {
	args := slices.Clone(in.Inputs)
	if len(in.Attrs) > 0 {
		args = append(args, in.Attrs.String())
	}
	return fmt.Sprintf("%s = %s(%s)", strings.Join(in.Outputs, ", "), in.Op, strings.Join(args, ", "))
}

func (in Instruction) clone() Instruction {
	return Instruction{
		Op:      in.Op,
		Inputs:  slices.Clone(in.Inputs),
		Outputs: slices.Clone(in.Outputs),
		Attrs:   in.Attrs.Clone(),
	}
}

// Program is a finalized, ordered instruction sequence plus its inputs.
// It is immutable: accessors return copies.
type Program struct {
	name   string
	inputs []Variable
	instrs []Instruction
	vars   map[string]Variable
}

// Name returns the name of the builder that produced the program.
func (p *Program) Name() string { return p.name }

// Size returns the number of instructions.
func (p *Program) Size() int { return len(p.instrs) }

// At returns instruction i.
func (p *Program) At(i int) Instruction { return p.instrs[i].clone() }

// Instructions returns a copy of all instructions in order.
func (p *Program) Instructions() []Instruction {
	out := make([]Instruction, len(p.instrs))
	for i, in := range p.instrs {
		out[i] = in.clone()
	}
	return out
}

// Inputs returns the declared inputs in declaration order.
func (p *Program) Inputs() []Variable {
	out := make([]Variable, len(p.inputs))
	for i, v := range p.inputs {
		out[i] = Variable{ID: v.ID, Shape: v.Shape.Clone(), DType: v.DType}
	}
	return out
}

// Variable looks up any input or instruction output by id.
func (p *Program) Variable(id string) (Variable, bool) {
	v, ok := p.vars[id]
	if !ok {
		return Variable{}, false
	}
	return Variable{ID: v.ID, Shape: v.Shape.Clone(), DType: v.DType}, true
}

// Validate checks the structural invariants: every input refers to an
// earlier definition and every output id is unique.
func (p *Program) Validate() error {
	defined := make(map[string]bool, len(p.vars))
	for _, v := range p.inputs {
		if defined[v.ID] {
			return opErr("program", ErrDuplicateName, "input %q declared twice", v.ID)
		}
		defined[v.ID] = true
	}
	for i, in := range p.instrs {
		for _, id := range in.Inputs {
			if !defined[id] {
				return opErr(in.Op, ErrUndefinedVariable, "instruction %d reads %q before it is defined", i, id)
			}
		}
		for _, id := range in.Outputs {
			if defined[id] {
				return opErr(in.Op, ErrDuplicateName, "instruction %d redefines %q", i, id)
			}
			defined[id] = true
		}
	}
	return nil
}

// String lists inputs and instructions, one per line.
func (p *Program) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "program %s {\n", p.name)
	for _, v := range p.inputs {
		fmt.Fprintf(&sb, "  input %s\n", v)
	}
	for i, in := range p.instrs {
		fmt.Fprintf(&sb, "  [%d] %s\n", i, in)
	}
	sb.WriteString("}\n")
	return sb.String()
}
