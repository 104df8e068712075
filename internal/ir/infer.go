package ir

import (
	"slices"

	"github.com/born-ml/kiln/internal/tensor"
)

// Meta is the static type of a value: its shape and element type.
type Meta struct {
	Shape tensor.Shape
	DType tensor.DataType
}

// Equal reports whether two metas describe the same type.
func (m Meta) Equal(o Meta) bool {
	return m.DType == o.DType && m.Shape.Equal(o.Shape)
}

// InferOutputs computes the output metas of one operator from its input
// metas and attributes. The builder and the InferShape pass share it.
func InferOutputs(op OpType, in []Meta, attrs Attrs) ([]Meta, error) {
	switch {
	case IsBinaryElementwise(op):
		return inferBinary(op, in)
	case IsUnaryElementwise(op):
		if err := arity(op, in, 1); err != nil {
			return nil, err
		}
		return []Meta{clone(in[0])}, nil
	}

	switch op {
	case OpFusedElementwise:
		return inferFused(op, in)
	case OpConcat:
		return inferConcat(op, in, attrs)
	case OpBroadcastTo:
		return inferBroadcastTo(op, in, attrs)
	case OpMatmul:
		return inferMatmul(op, in, attrs, AttrTransX, AttrTransY)
	case OpGemm:
		return inferGemm(op, in, attrs)
	case OpTranspose:
		return inferTranspose(op, in, attrs)
	case OpSlice:
		return inferSlice(op, in, attrs)
	case OpReshape:
		return inferReshape(op, in, attrs)
	case OpFillConstant:
		return inferFillConstant(op, in, attrs)
	}
	return nil, opErr(op, ErrUnknownOpType, "no shape rule")
}

func clone(m Meta) Meta {
	return Meta{Shape: m.Shape.Clone(), DType: m.DType}
}

func arity(op OpType, in []Meta, n int) error {
	if len(in) != n {
		return opErr(op, ErrMissingOperand, "expected %d operands, got %d", n, len(in))
	}
	return nil
}

func inferBinary(op OpType, in []Meta) ([]Meta, error) {
	if err := arity(op, in, 2); err != nil {
		return nil, err
	}
	x, y := in[0], in[1]
	if x.DType != y.DType {
		return nil, opErr(op, ErrDtypeMismatch, "%s vs %s", x.DType, y.DType)
	}
	if !x.Shape.Equal(y.Shape) {
		return nil, opErr(op, ErrShapeMismatch, "%v vs %v", x.Shape, y.Shape)
	}
	return []Meta{clone(x)}, nil
}

func inferFused(op OpType, in []Meta) ([]Meta, error) {
	if len(in) == 0 {
		return nil, opErr(op, ErrMissingOperand, "fused group has no operands")
	}
	for _, m := range in[1:] {
		if !m.Shape.Equal(in[0].Shape) {
			return nil, opErr(op, ErrShapeMismatch, "%v vs %v", in[0].Shape, m.Shape)
		}
		if m.DType != in[0].DType {
			return nil, opErr(op, ErrDtypeMismatch, "%s vs %s", in[0].DType, m.DType)
		}
	}
	return []Meta{clone(in[0])}, nil
}

// normalizeAxis maps a possibly negative axis into [0, rank).
func normalizeAxis(op OpType, axis, rank int) (int, error) {
	if axis < 0 {
		axis += rank
	}
	if axis < 0 || axis >= rank {
		return 0, opErr(op, ErrShapeMismatch, "axis %d out of range for rank %d", axis, rank)
	}
	return axis, nil
}

func inferConcat(op OpType, in []Meta, attrs Attrs) ([]Meta, error) {
	if len(in) < 2 {
		return nil, opErr(op, ErrMissingOperand, "expected at least 2 operands, got %d", len(in))
	}
	axis, err := attrs.Int(AttrAxis, 0)
	if err != nil {
		return nil, err
	}
	first := in[0]
	axis, err = normalizeAxis(op, axis, first.Shape.Rank())
	if err != nil {
		return nil, err
	}

	out := first.Shape.Clone()
	for _, m := range in[1:] {
		if m.DType != first.DType {
			return nil, opErr(op, ErrDtypeMismatch, "%s vs %s", first.DType, m.DType)
		}
		if m.Shape.Rank() != first.Shape.Rank() {
			return nil, opErr(op, ErrShapeMismatch, "rank %d vs %d", first.Shape.Rank(), m.Shape.Rank())
		}
		for d := range m.Shape {
			if d == axis {
				continue
			}
			if m.Shape[d] != first.Shape[d] {
				return nil, opErr(op, ErrShapeMismatch, "%v vs %v at dimension %d", first.Shape, m.Shape, d)
			}
		}
		out[axis] += m.Shape[axis]
	}
	return []Meta{{Shape: out, DType: first.DType}}, nil
}

func inferBroadcastTo(op OpType, in []Meta, attrs Attrs) ([]Meta, error) {
	if err := arity(op, in, 1); err != nil {
		return nil, err
	}
	outShape, err := attrs.RequireInts(op, AttrOutShape)
	if err != nil {
		return nil, err
	}
	axes, err := attrs.RequireInts(op, AttrBroadcastAxes)
	if err != nil {
		return nil, err
	}
	x := in[0]
	if len(axes) != x.Shape.Rank() {
		return nil, opErr(op, ErrShapeMismatch, "broadcast_axes has %d entries, input rank is %d",
			len(axes), x.Shape.Rank())
	}
	if err := tensor.Shape(outShape).Validate(); err != nil {
		return nil, opErr(op, ErrShapeMismatch, "%v", err)
	}
	seen := make(map[int]bool, len(axes))
	for i, a := range axes {
		if a < 0 || a >= len(outShape) {
			return nil, opErr(op, ErrShapeMismatch, "broadcast axis %d out of range for rank %d", a, len(outShape))
		}
		if seen[a] {
			return nil, opErr(op, ErrShapeMismatch, "broadcast axis %d repeated", a)
		}
		seen[a] = true
		if x.Shape[i] != outShape[a] && x.Shape[i] != 1 {
			return nil, opErr(op, ErrShapeMismatch, "input dimension %d (%d) cannot broadcast to %d",
				i, x.Shape[i], outShape[a])
		}
	}
	return []Meta{{Shape: tensor.Shape(outShape).Clone(), DType: x.DType}}, nil
}

// MatmulShape returns the output shape of x @ y with optional transposes
// of the last two axes of each operand. Rank-1 operands follow numpy rules.
func MatmulShape(op OpType, x, y tensor.Shape, transX, transY bool) (tensor.Shape, error) {
	if x.Rank() == 0 || y.Rank() == 0 {
		return nil, opErr(op, ErrShapeMismatch, "matmul operands must have rank >= 1, got %v and %v", x, y)
	}
	xs, ys := x.Clone(), y.Clone()
	dropM, dropN := false, false
	if xs.Rank() == 1 {
		xs, dropM = tensor.Shape{1, xs[0]}, true
	} else if transX {
		swapLast(xs)
	}
	if ys.Rank() == 1 {
		ys, dropN = tensor.Shape{ys[0], 1}, true
	} else if transY {
		swapLast(ys)
	}

	m, k := xs[len(xs)-2], xs[len(xs)-1]
	k2, n := ys[len(ys)-2], ys[len(ys)-1]
	if k != k2 {
		return nil, opErr(op, ErrShapeMismatch, "contracted dimensions differ: %v @ %v", x, y)
	}

	bx, by := xs[:len(xs)-2], ys[:len(ys)-2]
	var batch tensor.Shape
	switch {
	case len(bx) == 0:
		batch = by
	case len(by) == 0:
		batch = bx
	case bx.Equal(by):
		batch = bx
	default:
		return nil, opErr(op, ErrShapeMismatch, "batch dimensions differ: %v @ %v", x, y)
	}

	out := append(batch.Clone(), m, n)
	if dropN {
		out = out[:len(out)-1]
	}
	if dropM {
		out = append(out[:len(batch)], out[len(batch)+1:]...)
	}
	return out, nil
}

func swapLast(s tensor.Shape) {
	r := len(s)
	s[r-1], s[r-2] = s[r-2], s[r-1]
}

func inferMatmul(op OpType, in []Meta, attrs Attrs, transXName, transYName string) ([]Meta, error) {
	if len(in) < 2 {
		return nil, opErr(op, ErrMissingOperand, "expected 2 operands, got %d", len(in))
	}
	x, y := in[0], in[1]
	if x.DType != y.DType {
		return nil, opErr(op, ErrDtypeMismatch, "%s vs %s", x.DType, y.DType)
	}
	transX, err := attrs.Bool(transXName, false)
	if err != nil {
		return nil, err
	}
	transY, err := attrs.Bool(transYName, false)
	if err != nil {
		return nil, err
	}
	out, err := MatmulShape(op, x.Shape, y.Shape, transX, transY)
	if err != nil {
		return nil, err
	}
	return []Meta{{Shape: out, DType: x.DType}}, nil
}

func inferGemm(op OpType, in []Meta, attrs Attrs) ([]Meta, error) {
	if err := arity(op, in, 3); err != nil {
		return nil, err
	}
	outs, err := inferMatmul(op, in[:2], attrs, AttrTransA, AttrTransB)
	if err != nil {
		return nil, err
	}
	out, bias := outs[0], in[2]
	if bias.DType != out.DType {
		return nil, opErr(op, ErrDtypeMismatch, "bias %s vs %s", bias.DType, out.DType)
	}
	if !GemmBiasCompatible(out.Shape, bias.Shape) {
		return nil, opErr(op, ErrShapeMismatch, "bias %v does not fit output %v", bias.Shape, out.Shape)
	}
	return outs, nil
}

// GemmBiasCompatible reports whether bias can be added to a gemm output:
// either the same shape, or a row vector matching the last dimension.
func GemmBiasCompatible(out, bias tensor.Shape) bool {
	if bias.Equal(out) {
		return true
	}
	return bias.Rank() == 1 && out.Rank() >= 1 && bias[0] == out[out.Rank()-1]
}

// IsPermutation reports whether perm is a permutation of 0..rank-1.
func IsPermutation(perm []int, rank int) bool {
	if len(perm) != rank {
		return false
	}
	seen := make([]bool, rank)
	for _, p := range perm {
		if p < 0 || p >= rank || seen[p] {
			return false
		}
		seen[p] = true
	}
	return true
}

// SwapsLastTwo reports whether perm is the identity except for exchanging
// its last two axes.
func SwapsLastTwo(perm []int) bool {
	r := len(perm)
	if r < 2 {
		return false
	}
	for i := 0; i < r-2; i++ {
		if perm[i] != i {
			return false
		}
	}
	return perm[r-2] == r-1 && perm[r-1] == r-2
}

func inferTranspose(op OpType, in []Meta, attrs Attrs) ([]Meta, error) {
	if err := arity(op, in, 1); err != nil {
		return nil, err
	}
	perm, err := attrs.RequireInts(op, AttrPerm)
	if err != nil {
		return nil, err
	}
	x := in[0]
	if !IsPermutation(perm, x.Shape.Rank()) {
		return nil, opErr(op, ErrShapeMismatch, "perm %v is not a permutation of rank %d", perm, x.Shape.Rank())
	}
	out := make(tensor.Shape, len(perm))
	for i, p := range perm {
		out[i] = x.Shape[p]
	}
	return []Meta{{Shape: out, DType: x.DType}}, nil
}

// SliceSpec is a resolved slice: per input axis, the half-open range kept,
// plus the output shape after dropping decreased axes.
type SliceSpec struct {
	Starts   []int // one per input axis
	Ends     []int // one per input axis
	Shape    tensor.Shape
	Squeezed tensor.Shape
}

// ResolveSlice resolves slice attributes against a concrete input shape.
// Negative bounds count from the end of the dimension and bounds clamp to
// [0, dim]. Axes flagged -1 in infer_flags get the same treatment; the
// kernel calls ResolveSlice again on the runtime input shape, so their
// bounds always follow the actual extent.
func ResolveSlice(op OpType, in tensor.Shape, attrs Attrs) (SliceSpec, error) {
	axes, err := attrs.RequireInts(op, AttrAxes)
	if err != nil {
		return SliceSpec{}, err
	}
	starts, err := attrs.RequireInts(op, AttrStarts)
	if err != nil {
		return SliceSpec{}, err
	}
	ends, err := attrs.RequireInts(op, AttrEnds)
	if err != nil {
		return SliceSpec{}, err
	}
	inferFlags, err := attrs.Ints(AttrInferFlags)
	if err != nil {
		return SliceSpec{}, err
	}
	decrease, err := attrs.Ints(AttrDecreaseAxis)
	if err != nil {
		return SliceSpec{}, err
	}

	if len(starts) != len(axes) || len(ends) != len(axes) {
		return SliceSpec{}, opErr(op, ErrShapeMismatch, "axes/starts/ends lengths %d/%d/%d differ",
			len(axes), len(starts), len(ends))
	}
	if len(inferFlags) != 0 && len(inferFlags) != len(axes) {
		return SliceSpec{}, opErr(op, ErrShapeMismatch, "infer_flags has %d entries, axes has %d",
			len(inferFlags), len(axes))
	}
	for _, f := range inferFlags {
		if f != -1 && f != 1 {
			return SliceSpec{}, opErr(op, ErrShapeMismatch, "infer_flags entries must be 1 or -1, got %d", f)
		}
	}

	rank := in.Rank()
	spec := SliceSpec{
		Starts: make([]int, rank),
		Ends:   slices.Clone([]int(in)),
		Shape:  in.Clone(),
	}
	sliced := make(map[int]bool, len(axes))
	for i, a := range axes {
		axis, err := normalizeAxis(op, a, rank)
		if err != nil {
			return SliceSpec{}, err
		}
		if sliced[axis] {
			return SliceSpec{}, opErr(op, ErrShapeMismatch, "axis %d sliced twice", axis)
		}
		sliced[axis] = true

		dim := in[axis]
		start := clampBound(starts[i], dim)
		end := clampBound(ends[i], dim)
		if end <= start {
			return SliceSpec{}, opErr(op, ErrShapeMismatch, "empty range [%d, %d) on axis %d of extent %d",
				starts[i], ends[i], axis, dim)
		}
		spec.Starts[axis], spec.Ends[axis] = start, end
		spec.Shape[axis] = end - start
	}

	drop := make(map[int]bool, len(decrease))
	for _, a := range decrease {
		axis, err := normalizeAxis(op, a, rank)
		if err != nil {
			return SliceSpec{}, err
		}
		if !sliced[axis] {
			return SliceSpec{}, opErr(op, ErrShapeMismatch, "decrease axis %d is not sliced", axis)
		}
		if spec.Shape[axis] != 1 {
			return SliceSpec{}, opErr(op, ErrShapeMismatch, "decrease axis %d has extent %d, want 1",
				axis, spec.Shape[axis])
		}
		drop[axis] = true
	}
	for d, n := range spec.Shape {
		if !drop[d] {
			spec.Squeezed = append(spec.Squeezed, n)
		}
	}
	if len(spec.Squeezed) == 0 {
		// Decreasing every axis leaves a one-element vector, not a scalar.
		spec.Squeezed = tensor.Shape{1}
	}
	return spec, nil
}

func clampBound(v, dim int) int {
	if v < 0 {
		v += dim
	}
	return max(0, min(v, dim))
}

func inferSlice(op OpType, in []Meta, attrs Attrs) ([]Meta, error) {
	if err := arity(op, in, 1); err != nil {
		return nil, err
	}
	spec, err := ResolveSlice(op, in[0].Shape, attrs)
	if err != nil {
		return nil, err
	}
	return []Meta{{Shape: spec.Squeezed, DType: in[0].DType}}, nil
}

func inferReshape(op OpType, in []Meta, attrs Attrs) ([]Meta, error) {
	if err := arity(op, in, 1); err != nil {
		return nil, err
	}
	target, err := attrs.RequireInts(op, AttrShape)
	if err != nil {
		return nil, err
	}
	x := in[0]
	out := make(tensor.Shape, len(target))
	infer := -1
	known := 1
	for i, d := range target {
		switch {
		case d == -1:
			if infer >= 0 {
				return nil, opErr(op, ErrShapeMismatch, "more than one -1 in %v", target)
			}
			infer = i
			continue
		case d == 0:
			if i >= x.Shape.Rank() {
				return nil, opErr(op, ErrShapeMismatch, "0 at index %d exceeds input rank %d", i, x.Shape.Rank())
			}
			d = x.Shape[i]
		case d < 0:
			return nil, opErr(op, ErrShapeMismatch, "invalid dimension %d", d)
		}
		out[i] = d
		known *= d
	}
	total := x.Shape.NumElements()
	if infer >= 0 {
		if known == 0 || total%known != 0 {
			return nil, opErr(op, ErrShapeMismatch, "cannot infer -1 reshaping %v to %v", x.Shape, target)
		}
		out[infer] = total / known
	}
	if out.NumElements() != total {
		return nil, opErr(op, ErrShapeMismatch, "cannot reshape %v (%d elements) to %v", x.Shape, total, out)
	}
	return []Meta{{Shape: out, DType: x.DType}}, nil
}

func inferFillConstant(op OpType, in []Meta, attrs Attrs) ([]Meta, error) {
	if err := arity(op, in, 0); err != nil {
		return nil, err
	}
	shape, err := attrs.RequireInts(op, AttrShape)
	if err != nil {
		return nil, err
	}
	if err := tensor.Shape(shape).Validate(); err != nil {
		return nil, opErr(op, ErrShapeMismatch, "%v", err)
	}
	name, err := attrs.Str(AttrDType, "float32")
	if err != nil {
		return nil, err
	}
	dt, err := tensor.ParseDataType(name)
	if err != nil {
		return nil, opErr(op, ErrDtypeMismatch, "%v", err)
	}
	if _, ok := attrs[AttrValue]; !ok {
		return nil, opErr(op, ErrMissingAttribute, "%q", AttrValue)
	}
	return []Meta{{Shape: tensor.Shape(shape), DType: dt}}, nil
}
