// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package frontend builds tensor programs, either directly through a
// Builder or by translating a model description with operator mappers.
//
// # Basic Usage
//
//	b := frontend.NewNetBuilder("net")
//	x, _ := b.CreateInput(tensor.Float32, tensor.Shape{32, 12}, "A")
//	y, _ := b.CreateInput(tensor.Float32, tensor.Shape{32, 12}, "B")
//	c, _ := b.Add(x, y)
//	prog, err := b.Build()
//
// Every operation infers its output shape eagerly and fails with an error
// wrapping one of the Err* sentinels when operands disagree.
package frontend

import (
	"github.com/born-ml/kiln/internal/ir"
	"github.com/born-ml/kiln/internal/modeldesc"
	"github.com/born-ml/kiln/internal/opmapper"
)

// Builder emits the base operator vocabulary.
type Builder = ir.Builder

// NetBuilder adds relu, scale, reshape and fill_constant to Builder.
type NetBuilder = ir.NetBuilder

// Checkpoint marks a builder position Rollback can return to.
type Checkpoint = ir.Checkpoint

// Variable is an SSA value of a program.
type Variable = ir.Variable

// Instruction is one operator application.
type Instruction = ir.Instruction

// Program is a finalized instruction list.
type Program = ir.Program

// OpType names an operator.
type OpType = ir.OpType

// Attr is a typed operator attribute.
type Attr = ir.Attr

// Attrs maps attribute names to values.
type Attrs = ir.Attrs

// OpError reports a failure building one operator.
type OpError = ir.OpError

// NewBuilder returns an empty builder.
func NewBuilder(name string) *Builder { return ir.NewBuilder(name) }

// NewNetBuilder returns an empty net builder.
func NewNetBuilder(name string) *NetBuilder { return ir.NewNetBuilder(name) }

// IntAttr returns an integer attribute.
func IntAttr(v int) Attr { return ir.IntAttr(v) }

// FloatAttr returns a float attribute.
func FloatAttr(v float64) Attr { return ir.FloatAttr(v) }

// BoolAttr returns a boolean attribute.
func BoolAttr(v bool) Attr { return ir.BoolAttr(v) }

// StringAttr returns a string attribute.
func StringAttr(v string) Attr { return ir.StringAttr(v) }

// IntsAttr returns an integer list attribute. v is copied.
func IntsAttr(v []int) Attr { return ir.IntsAttr(v) }

// FloatsAttr returns a float list attribute. v is copied.
func FloatsAttr(v []float64) Attr { return ir.FloatsAttr(v) }

// StringsAttr returns a string list attribute. v is copied.
func StringsAttr(v []string) Attr { return ir.StringsAttr(v) }

// KnownOps lists the operator vocabulary.
func KnownOps() []OpType { return ir.KnownOps() }

// Construction errors.
var (
	ErrShapeMismatch     = ir.ErrShapeMismatch
	ErrDtypeMismatch     = ir.ErrDtypeMismatch
	ErrMissingAttribute  = ir.ErrMissingAttribute
	ErrMissingOperand    = ir.ErrMissingOperand
	ErrUndefinedVariable = ir.ErrUndefinedVariable
	ErrDuplicateName     = ir.ErrDuplicateName
	ErrUnknownOpType     = ir.ErrUnknownOpType
	ErrTypeMismatch      = ir.ErrTypeMismatch
	ErrBuilderFinalized  = ir.ErrBuilderFinalized
)

// OpMapperRegistry translates source operator descriptions into builder
// calls.
type OpMapperRegistry = opmapper.Registry

// OpMapper translates one operator description.
type OpMapper = opmapper.Mapper

// OpDesc is a source operator description.
type OpDesc = opmapper.OpDesc

// OpMapperContext carries the name bindings of one translation.
type OpMapperContext = opmapper.Context

// NewOpMapperRegistry returns a registry holding the built-in mappers.
func NewOpMapperRegistry() *OpMapperRegistry { return opmapper.NewDefaultRegistry() }

// NewOpMapperContext starts a translation into b.
func NewOpMapperContext(b *NetBuilder) *OpMapperContext { return opmapper.NewContext(b) }

// Model is a YAML model description.
type Model = modeldesc.Model

// LoadModel reads a model description from path.
func LoadModel(path string) (*Model, error) { return modeldesc.Load(path) }

// ParseModel decodes a model description.
func ParseModel(data []byte) (*Model, error) { return modeldesc.Parse(data) }
