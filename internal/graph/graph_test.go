package graph

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/kiln/internal/ir"
	"github.com/born-ml/kiln/internal/target"
	"github.com/born-ml/kiln/internal/tensor"
)

// diamond builds A, B -> add -> {relu, scale} -> mul.
func diamond(t *testing.T) *ir.Program {
	t.Helper()
	b := ir.NewNetBuilder("diamond")
	x, err := b.CreateInput(tensor.Float32, tensor.Shape{2, 3}, "A")
	require.NoError(t, err)
	y, err := b.CreateInput(tensor.Float32, tensor.Shape{2, 3}, "B")
	require.NoError(t, err)
	s, err := b.Add(x, y)
	require.NoError(t, err)
	r, err := b.Relu(s)
	require.NoError(t, err)
	c, err := b.Scale(s, 2, 0, true)
	require.NoError(t, err)
	_, err = b.Mul(r, c)
	require.NoError(t, err)
	prog, err := b.Build()
	require.NoError(t, err)
	return prog
}

func ids(nodes []Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}

func TestNew(t *testing.T) {
	g, err := New(diamond(t), target.DefaultHostTarget())
	require.NoError(t, err)

	assert.Equal(t, "diamond", g.Name())
	assert.Equal(t, 4, g.Len())
	assert.Equal(t, []string{"add_0", "relu_1", "scale_2", "mul_3"}, ids(g.Nodes()))
	assert.Equal(t, []string{"A", "B"}, g.Inputs())
	assert.Equal(t, []string{"var_3"}, g.Fetches())
	assert.False(t, g.ShapesInferred())

	p, ok := g.Producer("var_0")
	require.True(t, ok)
	assert.Equal(t, ir.OpAdd, p.Op)
	_, ok = g.Producer("A")
	assert.False(t, ok)

	assert.Equal(t, []string{"relu_1", "scale_2"}, ids(g.Consumers("var_0")))

	m, ok := g.Var("var_2")
	require.True(t, ok)
	assert.Equal(t, tensor.Shape{2, 3}, m.Shape)

	want := []Edge{
		{From: "add_0", To: "relu_1", Var: "var_0"},
		{From: "add_0", To: "scale_2", Var: "var_0"},
		{From: "relu_1", To: "mul_3", Var: "var_1"},
		{From: "scale_2", To: "mul_3", Var: "var_2"},
	}
	if diff := cmp.Diff(want, g.Edges()); diff != "" {
		t.Errorf("Edges() mismatch (-want +got):\n%s", diff)
	}
}

func TestWithFetches(t *testing.T) {
	g, err := New(diamond(t), target.DefaultHostTarget(), WithFetches("var_0", "var_3", "var_0"))
	require.NoError(t, err)
	assert.Equal(t, []string{"var_0", "var_3"}, g.Fetches())
	assert.True(t, g.IsFetch("var_0"))
	assert.False(t, g.IsFetch("var_1"))

	_, err = New(diamond(t), target.DefaultHostTarget(), WithFetches("nope"))
	assert.ErrorIs(t, err, ErrUnknownVar)
}

func TestTopoOrderTieBreak(t *testing.T) {
	g, err := New(diamond(t), target.DefaultHostTarget())
	require.NoError(t, err)
	order, err := g.TopoOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"add_0", "relu_1", "scale_2", "mul_3"}, ids(order))
}

func TestTopoOrderAfterAppend(t *testing.T) {
	g, err := New(diamond(t), target.DefaultHostTarget())
	require.NoError(t, err)

	// A node appended last but feeding an existing node must move ahead of it.
	c := g.Clone()
	tmp := c.NewVar(ir.Meta{Shape: tensor.Shape{2, 3}, DType: tensor.Float32})
	id, err := c.AddNode(Node{Op: ir.OpRelu, Inputs: []string{"A"}, Outputs: []string{tmp}})
	require.NoError(t, err)
	require.NoError(t, c.ReplaceInput("add_0", "A", tmp))
	require.NoError(t, c.Validate())

	order, err := c.TopoOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{id, "add_0", "relu_1", "scale_2", "mul_3"}, ids(order))

	// The original is untouched.
	n, _ := g.Node("add_0")
	assert.Equal(t, []string{"A", "B"}, n.Inputs)
	assert.Equal(t, 4, g.Len())
}

func TestCycleDetected(t *testing.T) {
	g, err := New(diamond(t), target.DefaultHostTarget())
	require.NoError(t, err)
	c := g.Clone()
	require.NoError(t, c.ReplaceInput("add_0", "A", "var_3"))
	assert.ErrorIs(t, c.Validate(), ErrCycle)
}

func TestRemoveNodeDropsDeadVars(t *testing.T) {
	g, err := New(diamond(t), target.DefaultHostTarget())
	require.NoError(t, err)
	c := g.Clone()

	// Route mul through relu twice, leaving scale dead.
	require.NoError(t, c.ReplaceInput("mul_3", "var_2", "var_1"))
	require.NoError(t, c.RemoveNode("scale_2"))
	_, ok := c.Var("var_2")
	assert.False(t, ok)
	_, ok = c.Var("var_0")
	assert.True(t, ok, "var_0 still feeds relu")
	require.NoError(t, c.Validate())

	assert.ErrorIs(t, c.RemoveNode("scale_2"), ErrUnknownNode)
}

func TestAddNodeErrors(t *testing.T) {
	g, err := New(diamond(t), target.DefaultHostTarget())
	require.NoError(t, err)

	_, err = g.AddNode(Node{Op: ir.OpRelu, Inputs: []string{"nope"}, Outputs: []string{"var_0"}})
	assert.ErrorIs(t, err, ErrUnknownVar)

	_, err = g.AddNode(Node{Op: ir.OpRelu, Inputs: []string{"A"}, Outputs: []string{"var_0"}})
	assert.ErrorIs(t, err, ErrMultipleDef)

	_, err = g.AddNode(Node{Op: ir.OpRelu, Inputs: []string{"var_0"}, Outputs: []string{"B"}})
	assert.ErrorIs(t, err, ErrMultipleDef)

	_, err = g.AddNode(Node{ID: "add_0", Op: ir.OpRelu, Inputs: []string{"A"}, Outputs: []string{g.NewVar(ir.Meta{})}})
	assert.ErrorIs(t, err, ir.ErrDuplicateName)
}

func TestQueriesReturnCopies(t *testing.T) {
	g, err := New(diamond(t), target.DefaultHostTarget())
	require.NoError(t, err)

	n, _ := g.Node("add_0")
	n.Inputs[0] = "mutated"
	n.Attrs["x"] = ir.IntAttr(1)

	again, _ := g.Node("add_0")
	assert.Equal(t, "A", again.Inputs[0])
	assert.Empty(t, again.Attrs)
}

func TestVisualize(t *testing.T) {
	b := ir.NewNetBuilder("viz")
	x, err := b.CreateInput(tensor.Float32, tensor.Shape{2, 3}, "A")
	require.NoError(t, err)
	y, err := b.CreateInput(tensor.Float32, tensor.Shape{2, 3}, "B")
	require.NoError(t, err)
	s, err := b.Add(x, y)
	require.NoError(t, err)
	_, err = b.Relu(s)
	require.NoError(t, err)
	prog, err := b.Build()
	require.NoError(t, err)

	g, err := New(prog, target.DefaultHostTarget())
	require.NoError(t, err)

	gold := goldie.New(t)
	gold.Assert(t, "visualize", []byte(g.Visualize()))
}
