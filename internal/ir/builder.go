package ir

import (
	"fmt"
	"slices"

	"github.com/born-ml/kiln/internal/tensor"
)

// Ops is the base operator vocabulary every builder flavour exposes.
type Ops interface {
	CreateInput(dtype tensor.DataType, shape tensor.Shape, name string) (Variable, error)
	Add(x, y Variable) (Variable, error)
	Sub(x, y Variable) (Variable, error)
	Mul(x, y Variable) (Variable, error)
	Div(x, y Variable) (Variable, error)
	Max(x, y Variable) (Variable, error)
	Min(x, y Variable) (Variable, error)
	Concat(x, y Variable, axis int) (Variable, error)
	BroadcastTo(x Variable, outShape tensor.Shape, broadcastAxes []int) (Variable, error)
	Matmul(x, y Variable) (Variable, error)
	Transpose(x Variable, perm []int) (Variable, error)
	Slice(x Variable, axes, starts, ends, inferFlags, decreaseAxis []int) (Variable, error)
	Build() (*Program, error)
}

var _ Ops = (*Builder)(nil)

// Builder emits a Program one validated instruction at a time.
// It is not safe for concurrent use.
type Builder struct {
	name   string
	inputs []Variable
	instrs []Instruction
	vars   map[string]Variable
	order  []string // variable ids in definition order, for Rollback
	next   int
	built  bool
}

// NewBuilder returns an empty builder. The name labels the program.
func NewBuilder(name string) *Builder {
	return &Builder{
		name: name,
		vars: make(map[string]Variable),
	}
}

// Name returns the builder's name.
func (b *Builder) Name() string { return b.name }

// CreateInput declares a program input. The name becomes the variable id.
func (b *Builder) CreateInput(dtype tensor.DataType, shape tensor.Shape, name string) (Variable, error) {
	if err := b.usable("create_input"); err != nil {
		return Variable{}, err
	}
	if name == "" {
		return Variable{}, opErr("create_input", ErrMissingOperand, "input name is empty")
	}
	if _, ok := b.vars[name]; ok {
		return Variable{}, opErr("create_input", ErrDuplicateName, "%q already defined", name)
	}
	if err := shape.Validate(); err != nil {
		return Variable{}, opErr("create_input", ErrShapeMismatch, "%v", err)
	}
	v := Variable{ID: name, Shape: shape.Clone(), DType: dtype}
	b.define(v)
	b.inputs = append(b.inputs, v)
	return Variable{ID: name, Shape: shape.Clone(), DType: dtype}, nil
}

// Add emits x + y.
func (b *Builder) Add(x, y Variable) (Variable, error) { return b.binary(OpAdd, x, y) }

// Sub emits x - y.
func (b *Builder) Sub(x, y Variable) (Variable, error) { return b.binary(OpSub, x, y) }

// Mul emits x * y.
func (b *Builder) Mul(x, y Variable) (Variable, error) { return b.binary(OpMul, x, y) }

// Div emits x / y.
func (b *Builder) Div(x, y Variable) (Variable, error) { return b.binary(OpDiv, x, y) }

// Max emits the elementwise maximum.
func (b *Builder) Max(x, y Variable) (Variable, error) { return b.binary(OpMax, x, y) }

// Min emits the elementwise minimum.
func (b *Builder) Min(x, y Variable) (Variable, error) { return b.binary(OpMin, x, y) }

func (b *Builder) binary(op OpType, x, y Variable) (Variable, error) {
	return b.emitOne(op, []Variable{x, y}, nil)
}

// Concat joins x and y along axis.
func (b *Builder) Concat(x, y Variable, axis int) (Variable, error) {
	return b.emitOne(OpConcat, []Variable{x, y}, Attrs{AttrAxis: IntAttr(axis)})
}

// BroadcastTo expands x to outShape. broadcastAxes maps each axis of x,
// in order, to an axis of outShape.
func (b *Builder) BroadcastTo(x Variable, outShape tensor.Shape, broadcastAxes []int) (Variable, error) {
	return b.emitOne(OpBroadcastTo, []Variable{x}, Attrs{
		AttrOutShape:      IntsAttr(outShape),
		AttrBroadcastAxes: IntsAttr(broadcastAxes),
	})
}

// Matmul emits x @ y.
func (b *Builder) Matmul(x, y Variable) (Variable, error) {
	return b.MatmulT(x, y, false, false)
}

// MatmulT emits x @ y with the last two axes of either operand optionally transposed.
func (b *Builder) MatmulT(x, y Variable, transX, transY bool) (Variable, error) {
	return b.emitOne(OpMatmul, []Variable{x, y}, Attrs{
		AttrTransX: BoolAttr(transX),
		AttrTransY: BoolAttr(transY),
	})
}

// Transpose permutes the axes of x.
func (b *Builder) Transpose(x Variable, perm []int) (Variable, error) {
	return b.emitOne(OpTranspose, []Variable{x}, Attrs{AttrPerm: IntsAttr(perm)})
}

// Slice keeps [starts[i], ends[i]) on each listed axis and drops the axes
// listed in decreaseAxis, which must end up with extent 1.
func (b *Builder) Slice(x Variable, axes, starts, ends, inferFlags, decreaseAxis []int) (Variable, error) {
	attrs := Attrs{
		AttrAxes:   IntsAttr(axes),
		AttrStarts: IntsAttr(starts),
		AttrEnds:   IntsAttr(ends),
	}
	if len(inferFlags) > 0 {
		attrs[AttrInferFlags] = IntsAttr(inferFlags)
	}
	if len(decreaseAxis) > 0 {
		attrs[AttrDecreaseAxis] = IntsAttr(decreaseAxis)
	}
	return b.emitOne(OpSlice, []Variable{x}, attrs)
}

// Append emits an arbitrary operator after checking it against the shape
// rules. Builder flavours use it to add their own vocabulary.
func (b *Builder) Append(op OpType, inputs []Variable, attrs Attrs) ([]Variable, error) {
	if err := b.usable(op); err != nil {
		return nil, err
	}
	in := make([]Meta, len(inputs))
	ids := make([]string, len(inputs))
	for i, v := range inputs {
		def, ok := b.vars[v.ID]
		if !ok {
			return nil, opErr(op, ErrUndefinedVariable, "%q is not defined in builder %q", v.ID, b.name)
		}
		in[i] = def.Meta()
		ids[i] = v.ID
	}
	if attrs == nil {
		attrs = Attrs{}
	}
	metas, err := InferOutputs(op, in, attrs)
	if err != nil {
		return nil, err
	}

	outs := make([]Variable, len(metas))
	outIDs := make([]string, len(metas))
	for i, m := range metas {
		outs[i] = Variable{ID: b.newID(), Shape: m.Shape, DType: m.DType}
		outIDs[i] = outs[i].ID
		b.define(outs[i])
	}
	b.instrs = append(b.instrs, Instruction{Op: op, Inputs: ids, Outputs: outIDs, Attrs: attrs.Clone()})
	return outs, nil
}

func (b *Builder) emitOne(op OpType, inputs []Variable, attrs Attrs) (Variable, error) {
	outs, err := b.Append(op, inputs, attrs)
	if err != nil {
		return Variable{}, err
	}
	return outs[0], nil
}

// Build finalizes the builder and returns the immutable program.
// Every later builder call fails with ErrBuilderFinalized.
func (b *Builder) Build() (*Program, error) {
	if err := b.usable("build"); err != nil {
		return nil, err
	}
	b.built = true
	p := &Program{
		name:   b.name,
		inputs: slices.Clone(b.inputs),
		instrs: slices.Clone(b.instrs),
		vars:   make(map[string]Variable, len(b.vars)),
	}
	for k, v := range b.vars {
		p.vars[k] = v
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Checkpoint marks the current builder state.
type Checkpoint struct {
	inputs, instrs, vars, next int
}

// Checkpoint returns a mark that Rollback can return to.
func (b *Builder) Checkpoint() Checkpoint {
	return Checkpoint{inputs: len(b.inputs), instrs: len(b.instrs), vars: len(b.order), next: b.next}
}

// Rollback discards everything emitted after cp.
func (b *Builder) Rollback(cp Checkpoint) error {
	if err := b.usable("rollback"); err != nil {
		return err
	}
	if cp.vars > len(b.order) || cp.instrs > len(b.instrs) || cp.inputs > len(b.inputs) {
		return fmt.Errorf("rollback: checkpoint is ahead of builder %q", b.name)
	}
	for _, id := range b.order[cp.vars:] {
		delete(b.vars, id)
	}
	b.order = b.order[:cp.vars]
	b.instrs = b.instrs[:cp.instrs]
	b.inputs = b.inputs[:cp.inputs]
	b.next = cp.next
	return nil
}

// Lookup returns a variable defined in this builder.
func (b *Builder) Lookup(id string) (Variable, bool) {
	v, ok := b.vars[id]
	return v, ok
}

// Size returns the number of instructions emitted so far.
func (b *Builder) Size() int { return len(b.instrs) }

func (b *Builder) usable(op OpType) error {
	if b.built {
		return opErr(op, ErrBuilderFinalized, "builder %q", b.name)
	}
	return nil
}

func (b *Builder) define(v Variable) {
	b.vars[v.ID] = Variable{ID: v.ID, Shape: v.Shape.Clone(), DType: v.DType}
	b.order = append(b.order, v.ID)
}

// newID returns the next free "var_N" id, skipping names taken by inputs.
func (b *Builder) newID() string {
	for {
		id := fmt.Sprintf("var_%d", b.next)
		b.next++
		if _, taken := b.vars[id]; !taken {
			return id
		}
	}
}
