package ir

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/kiln/internal/tensor"
)

func inputs2(t *testing.T, b *Builder, shape tensor.Shape) (Variable, Variable) {
	t.Helper()
	x, err := b.CreateInput(tensor.Float32, shape, "A")
	require.NoError(t, err)
	y, err := b.CreateInput(tensor.Float32, shape, "B")
	require.NoError(t, err)
	return x, y
}

func TestElementwiseOps(t *testing.T) {
	b := NewBuilder("elementwise")
	x, y := inputs2(t, b, tensor.Shape{32, 12})

	ops := []func(Variable, Variable) (Variable, error){b.Add, b.Sub, b.Mul, b.Div, b.Max, b.Min}
	seen := map[string]bool{}
	for _, op := range ops {
		out, err := op(x, y)
		require.NoError(t, err)
		assert.Equal(t, tensor.Shape{32, 12}, out.Shape)
		assert.Equal(t, tensor.Float32, out.DType)
		assert.False(t, seen[out.ID], "output id %s reused", out.ID)
		seen[out.ID] = true
	}
	assert.Equal(t, len(ops), b.Size())
}

func TestElementwiseMismatch(t *testing.T) {
	b := NewBuilder("mismatch")
	x, err := b.CreateInput(tensor.Float32, tensor.Shape{4, 4}, "X")
	require.NoError(t, err)
	y, err := b.CreateInput(tensor.Float32, tensor.Shape{4, 5}, "Y")
	require.NoError(t, err)
	z, err := b.CreateInput(tensor.Float64, tensor.Shape{4, 4}, "Z")
	require.NoError(t, err)

	_, err = b.Add(x, y)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = b.Mul(x, z)
	assert.ErrorIs(t, err, ErrDtypeMismatch)
	assert.Equal(t, 0, b.Size(), "failed calls must not emit instructions")
}

func TestConcat(t *testing.T) {
	b := NewBuilder("concat")
	x, y := inputs2(t, b, tensor.Shape{32, 12})

	out, err := b.Concat(x, y, 1)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{32, 24}, out.Shape)

	out, err = b.Concat(x, y, -2)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{64, 12}, out.Shape)

	z, err := b.CreateInput(tensor.Float32, tensor.Shape{30, 12}, "Z")
	require.NoError(t, err)
	_, err = b.Concat(x, z, 1)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = b.Concat(x, y, 2)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestBroadcastTo(t *testing.T) {
	b := NewBuilder("broadcast")
	x, err := b.CreateInput(tensor.Float32, tensor.Shape{32, 12}, "X")
	require.NoError(t, err)
	one, err := b.CreateInput(tensor.Float32, tensor.Shape{1, 24}, "One")
	require.NoError(t, err)
	x24, err := b.Concat(x, x, 1)
	require.NoError(t, err)

	out, err := b.BroadcastTo(x24, tensor.Shape{8, 32, 24}, []int{1, 2})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{8, 32, 24}, out.Shape)

	out, err = b.BroadcastTo(one, tensor.Shape{8, 32, 24}, []int{1, 2})
	require.NoError(t, err, "singleton dimensions broadcast")
	assert.Equal(t, tensor.Shape{8, 32, 24}, out.Shape)

	_, err = b.BroadcastTo(x, tensor.Shape{8, 32, 24}, []int{1})
	assert.ErrorIs(t, err, ErrShapeMismatch, "axes length must equal input rank")

	_, err = b.BroadcastTo(x, tensor.Shape{8, 32, 24}, []int{1, 2})
	assert.ErrorIs(t, err, ErrShapeMismatch, "12 cannot broadcast to 24")

	_, err = b.BroadcastTo(x, tensor.Shape{8, 32, 24}, []int{1, 5})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestMatmul(t *testing.T) {
	tests := []struct {
		name           string
		x, y           tensor.Shape
		transX, transY bool
		want           tensor.Shape
		wantErr        bool
	}{
		{name: "2d", x: tensor.Shape{4, 3}, y: tensor.Shape{3, 5}, want: tensor.Shape{4, 5}},
		{name: "trans_y", x: tensor.Shape{4, 3}, y: tensor.Shape{5, 3}, transY: true, want: tensor.Shape{4, 5}},
		{name: "trans_x", x: tensor.Shape{3, 4}, y: tensor.Shape{3, 5}, transX: true, want: tensor.Shape{4, 5}},
		{name: "batched", x: tensor.Shape{2, 4, 3}, y: tensor.Shape{2, 3, 5}, want: tensor.Shape{2, 4, 5}},
		{name: "batched_rhs_2d", x: tensor.Shape{2, 4, 3}, y: tensor.Shape{3, 5}, want: tensor.Shape{2, 4, 5}},
		{name: "vector_lhs", x: tensor.Shape{3}, y: tensor.Shape{3, 5}, want: tensor.Shape{5}},
		{name: "vector_rhs", x: tensor.Shape{4, 3}, y: tensor.Shape{3}, want: tensor.Shape{4}},
		{name: "contract_mismatch", x: tensor.Shape{4, 3}, y: tensor.Shape{4, 5}, wantErr: true},
		{name: "batch_mismatch", x: tensor.Shape{2, 4, 3}, y: tensor.Shape{3, 3, 5}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder(tt.name)
			x, err := b.CreateInput(tensor.Float32, tt.x, "X")
			require.NoError(t, err)
			y, err := b.CreateInput(tensor.Float32, tt.y, "Y")
			require.NoError(t, err)

			out, err := b.MatmulT(x, y, tt.transX, tt.transY)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrShapeMismatch)
				return
			}
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, out.Shape); diff != "" {
				t.Errorf("matmul shape mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTranspose(t *testing.T) {
	b := NewBuilder("transpose")
	x, err := b.CreateInput(tensor.Float32, tensor.Shape{2, 3, 4}, "X")
	require.NoError(t, err)

	out, err := b.Transpose(x, []int{2, 0, 1})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{4, 2, 3}, out.Shape)

	for _, perm := range [][]int{{0, 1}, {0, 1, 1}, {0, 1, 3}, {-1, 0, 1}} {
		_, err = b.Transpose(x, perm)
		assert.ErrorIs(t, err, ErrShapeMismatch, "perm %v", perm)
	}
}

func TestSlice(t *testing.T) {
	b := NewBuilder("slice")
	x, err := b.CreateInput(tensor.Float32, tensor.Shape{4, 5}, "X")
	require.NoError(t, err)

	tests := []struct {
		name                 string
		axes, starts, ends   []int
		inferFlags, decrease []int
		want                 tensor.Shape
	}{
		{name: "decrease", axes: []int{1}, starts: []int{0}, ends: []int{1}, decrease: []int{1}, want: tensor.Shape{4}},
		{name: "keep", axes: []int{1}, starts: []int{1}, ends: []int{4}, want: tensor.Shape{4, 3}},
		{name: "negative", axes: []int{0}, starts: []int{-3}, ends: []int{-1}, want: tensor.Shape{2, 5}},
		{name: "clamped", axes: []int{1}, starts: []int{2}, ends: []int{1 << 30}, want: tensor.Shape{4, 3}},
		{name: "inferred", axes: []int{0, 1}, starts: []int{0, 0}, ends: []int{2, -1}, inferFlags: []int{1, -1}, want: tensor.Shape{2, 4}},
		{name: "decrease_all", axes: []int{0, 1}, starts: []int{1, 2}, ends: []int{2, 3}, decrease: []int{0, 1}, want: tensor.Shape{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := b.Slice(x, tt.axes, tt.starts, tt.ends, tt.inferFlags, tt.decrease)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Shape)
		})
	}

	_, err = b.Slice(x, []int{1}, []int{0}, []int{2}, nil, []int{1})
	assert.ErrorIs(t, err, ErrShapeMismatch, "decreased axis must have extent 1")

	_, err = b.Slice(x, []int{1}, []int{3}, []int{3}, nil, nil)
	assert.ErrorIs(t, err, ErrShapeMismatch, "empty range")

	_, err = b.Slice(x, []int{1}, []int{0, 1}, []int{1}, nil, nil)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = b.Slice(x, []int{1}, []int{0}, []int{1}, []int{1, 1}, nil)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestCreateInputDuplicate(t *testing.T) {
	b := NewBuilder("dup")
	_, err := b.CreateInput(tensor.Float32, tensor.Shape{2}, "A")
	require.NoError(t, err)
	_, err = b.CreateInput(tensor.Float32, tensor.Shape{2}, "A")
	assert.ErrorIs(t, err, ErrDuplicateName)
}

func TestGeneratedIDsSkipInputNames(t *testing.T) {
	b := NewBuilder("ids")
	x, err := b.CreateInput(tensor.Float32, tensor.Shape{2}, "var_0")
	require.NoError(t, err)
	out, err := b.Add(x, x)
	require.NoError(t, err)
	assert.Equal(t, "var_1", out.ID)
}

func TestForeignVariable(t *testing.T) {
	other := NewBuilder("other")
	x, err := other.CreateInput(tensor.Float32, tensor.Shape{2}, "X")
	require.NoError(t, err)

	b := NewBuilder("mine")
	_, err = b.Add(x, x)
	assert.ErrorIs(t, err, ErrUndefinedVariable)
}

func TestBuildFinalizes(t *testing.T) {
	b := NewBuilder("final")
	x, y := inputs2(t, b, tensor.Shape{2, 2})
	_, err := b.Add(x, y)
	require.NoError(t, err)

	prog, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, 1, prog.Size())
	require.NoError(t, prog.Validate())

	_, err = b.Add(x, y)
	assert.ErrorIs(t, err, ErrBuilderFinalized)
	_, err = b.CreateInput(tensor.Float32, tensor.Shape{1}, "C")
	assert.ErrorIs(t, err, ErrBuilderFinalized)
	_, err = b.Build()
	assert.ErrorIs(t, err, ErrBuilderFinalized)
}

func TestProgramIsImmutable(t *testing.T) {
	b := NewBuilder("immutable")
	x, y := inputs2(t, b, tensor.Shape{2, 2})
	_, err := b.Add(x, y)
	require.NoError(t, err)
	prog, err := b.Build()
	require.NoError(t, err)

	in := prog.At(0)
	in.Inputs[0] = "tampered"
	assert.Equal(t, "A", prog.At(0).Inputs[0])

	v, ok := prog.Variable("A")
	require.True(t, ok)
	v.Shape[0] = 99
	v2, _ := prog.Variable("A")
	assert.Equal(t, tensor.Shape{2, 2}, v2.Shape)
}

func TestCheckpointRollback(t *testing.T) {
	b := NewBuilder("rollback")
	x, y := inputs2(t, b, tensor.Shape{2, 2})
	cp := b.Checkpoint()

	sum, err := b.Add(x, y)
	require.NoError(t, err)
	_, err = b.CreateInput(tensor.Float32, tensor.Shape{2}, "C")
	require.NoError(t, err)

	require.NoError(t, b.Rollback(cp))
	assert.Equal(t, 0, b.Size())
	_, ok := b.Lookup(sum.ID)
	assert.False(t, ok)
	_, ok = b.Lookup("C")
	assert.False(t, ok)

	again, err := b.Add(x, y)
	require.NoError(t, err)
	assert.Equal(t, sum.ID, again.ID, "ids are reissued after rollback")
}

func TestNetBuilder(t *testing.T) {
	b := NewNetBuilder("net")
	x, err := b.CreateInput(tensor.Float32, tensor.Shape{2, 6}, "X")
	require.NoError(t, err)

	r, err := b.Relu(x)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 6}, r.Shape)

	s, err := b.Scale(r, 2, 1, true)
	require.NoError(t, err)

	rs, err := b.Reshape(s, []int{0, -1, 3})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 2, 3}, rs.Shape)

	_, err = b.Reshape(s, []int{5, -1})
	assert.ErrorIs(t, err, ErrShapeMismatch)

	c, err := b.FillConstant(tensor.Shape{3}, 0.5, tensor.Float64)
	require.NoError(t, err)
	assert.Equal(t, tensor.Float64, c.DType)
}

// TestProgramListing covers the human readable listing used for diagnostics.
func TestProgramListing(t *testing.T) {
	const B, M, N = 8, 32, 24

	b := NewBuilder("cinn_builder")
	a, err := b.CreateInput(tensor.Float32, tensor.Shape{M, N / 2}, "A")
	require.NoError(t, err)
	bb, err := b.CreateInput(tensor.Float32, tensor.Shape{M, N / 2}, "B")
	require.NoError(t, err)

	c := must(b.Add(a, bb))
	x := must(b.Div(a, bb))
	d := must(b.Concat(c, x, 1))
	e := must(b.BroadcastTo(d, tensor.Shape{B, M, N}, []int{1, 2}))
	f := must(b.Concat(a, bb, 1))
	g := must(b.BroadcastTo(f, tensor.Shape{B, M, N}, []int{1, 2}))
	h := must(b.Sub(e, g))
	i := must(b.Max(e, h))
	j := must(b.Min(e, h))
	k := must(b.Mul(i, j))
	assert.Equal(t, tensor.Shape{B, M, N}, k.Shape)

	prog, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, 10, prog.Size())

	gold := goldie.New(t)
	gold.Assert(t, "program_listing", []byte(prog.String()))
}

func must(v Variable, err error) Variable {
	if err != nil {
		panic(err)
	}
	return v
}
