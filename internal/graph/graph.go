// Package graph holds the dataflow view of a program that passes rewrite
// and the compiler lowers: one node per operator, a variable table and
// producer/consumer edges.
package graph

import (
	"errors"
	"fmt"
	"slices"

	"github.com/born-ml/kiln/internal/ir"
	"github.com/born-ml/kiln/internal/target"
)

// Graph errors.
var (
	ErrCycle       = errors.New("graph contains a cycle")
	ErrUnknownNode = errors.New("unknown node")
	ErrUnknownVar  = errors.New("unknown variable")
	ErrMultipleDef = errors.New("variable has more than one producer")
)

// FusedArg names an operand of a fused step: an input of the fused node,
// or the result of an earlier step.
type FusedArg struct {
	FromStep bool
	Index    int
}

// FusedStep is one elementwise operation inside a fused node. The result
// of the last step is the node's output.
type FusedStep struct {
	Op    ir.OpType
	Args  []FusedArg
	Attrs ir.Attrs
}

func (s FusedStep) clone() FusedStep {
	return FusedStep{Op: s.Op, Args: slices.Clone(s.Args), Attrs: s.Attrs.Clone()}
}

// Node is one operator in the graph.
type Node struct {
	ID      string
	Op      ir.OpType
	Inputs  []string
	Outputs []string
	Attrs   ir.Attrs
	Fused   []FusedStep
}

// Clone returns a deep copy of n.
func (n Node) Clone() Node {
	c := Node{
		ID:      n.ID,
		Op:      n.Op,
		Inputs:  slices.Clone(n.Inputs),
		Outputs: slices.Clone(n.Outputs),
		Attrs:   n.Attrs.Clone(),
	}
	if n.Fused != nil {
		c.Fused = make([]FusedStep, len(n.Fused))
		for i, s := range n.Fused {
			c.Fused[i] = s.clone()
		}
	}
	if c.Attrs == nil {
		c.Attrs = ir.Attrs{}
	}
	return c
}

// Option configures New.
type Option func(*options)

type options struct {
	fetches []string
}

// WithFetches pins the externally observable variables. Without it every
// operator output that nothing consumes is fetched.
func WithFetches(ids ...string) Option {
	return func(o *options) { o.fetches = append(o.fetches, ids...) }
}

// Graph is a DAG of operator nodes over SSA variables.
//
// Query methods return copies. A Graph is mutated only through its
// mutation methods, which passes call on a Clone.
type Graph struct {
	name   string
	target target.Target

	nodes  []*Node
	byID   map[string]*Node
	nextID int

	vars     map[string]ir.Meta
	varOrder []string
	inputs   []string
	producer map[string]string

	fetches        []string
	shapesInferred bool
}

// New builds the graph of prog for target t.
func New(prog *ir.Program, t target.Target, opts ...Option) (*Graph, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	g := &Graph{
		name:     prog.Name(),
		target:   t,
		byID:     make(map[string]*Node),
		vars:     make(map[string]ir.Meta),
		producer: make(map[string]string),
	}
	for _, v := range prog.Inputs() {
		g.defineVar(v.ID, v.Meta())
		g.inputs = append(g.inputs, v.ID)
	}
	for _, in := range prog.Instructions() {
		for _, id := range in.Outputs {
			v, ok := prog.Variable(id)
			if !ok {
				return nil, fmt.Errorf("%w: %q", ErrUnknownVar, id)
			}
			g.defineVar(id, v.Meta())
		}
		if _, err := g.AddNode(Node{Op: in.Op, Inputs: in.Inputs, Outputs: in.Outputs, Attrs: in.Attrs}); err != nil {
			return nil, err
		}
	}

	if len(o.fetches) > 0 {
		for _, id := range o.fetches {
			if _, ok := g.vars[id]; !ok {
				return nil, fmt.Errorf("fetch %q: %w", id, ErrUnknownVar)
			}
			if !slices.Contains(g.fetches, id) {
				g.fetches = append(g.fetches, id)
			}
		}
	} else {
		for _, n := range g.nodes {
			for _, id := range n.Outputs {
				if len(g.consumers(id)) == 0 {
					g.fetches = append(g.fetches, id)
				}
			}
		}
	}
	return g, g.Validate()
}

// Name returns the name of the program the graph was built from.
func (g *Graph) Name() string { return g.name }

// Target returns the compilation target.
func (g *Graph) Target() target.Target { return g.target }

// ShapesInferred reports whether the shape inference pass has run.
func (g *Graph) ShapesInferred() bool { return g.shapesInferred }

// MarkShapesInferred records that every variable's metadata is current.
func (g *Graph) MarkShapesInferred() { g.shapesInferred = true }

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []Node {
	out := make([]Node, len(g.nodes))
	for i, n := range g.nodes {
		out[i] = n.Clone()
	}
	return out
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (Node, bool) {
	n, ok := g.byID[id]
	if !ok {
		return Node{}, false
	}
	return n.Clone(), true
}

// Producer returns the node that writes variable id. Graph inputs have none.
func (g *Graph) Producer(id string) (Node, bool) {
	nid, ok := g.producer[id]
	if !ok {
		return Node{}, false
	}
	return g.byID[nid].Clone(), true
}

// Consumers returns the nodes that read variable id, in insertion order.
// A node reading id twice is listed once.
func (g *Graph) Consumers(id string) []Node {
	cs := g.consumers(id)
	out := make([]Node, len(cs))
	for i, n := range cs {
		out[i] = n.Clone()
	}
	return out
}

func (g *Graph) consumers(id string) []*Node {
	var out []*Node
	for _, n := range g.nodes {
		if slices.Contains(n.Inputs, id) {
			out = append(out, n)
		}
	}
	return out
}

// Var returns the metadata of variable id.
func (g *Graph) Var(id string) (ir.Meta, bool) {
	m, ok := g.vars[id]
	if !ok {
		return ir.Meta{}, false
	}
	return ir.Meta{Shape: m.Shape.Clone(), DType: m.DType}, true
}

// Vars returns every variable id in definition order.
func (g *Graph) Vars() []string { return slices.Clone(g.varOrder) }

// Inputs returns the graph input ids in declaration order.
func (g *Graph) Inputs() []string { return slices.Clone(g.inputs) }

// IsInput reports whether id is a graph input.
func (g *Graph) IsInput(id string) bool { return slices.Contains(g.inputs, id) }

// Fetches returns the fetched variable ids.
func (g *Graph) Fetches() []string { return slices.Clone(g.fetches) }

// IsFetch reports whether id is fetched.
func (g *Graph) IsFetch(id string) bool { return slices.Contains(g.fetches, id) }

// Edge is a dataflow edge between two nodes through a variable.
type Edge struct {
	From, To string
	Var      string
}

// Edges returns every producer to consumer edge, ordered by consumer
// then operand position.
func (g *Graph) Edges() []Edge {
	var out []Edge
	for _, n := range g.nodes {
		for _, in := range n.Inputs {
			if p, ok := g.producer[in]; ok {
				e := Edge{From: p, To: n.ID, Var: in}
				if !slices.Contains(out, e) {
					out = append(out, e)
				}
			}
		}
	}
	return out
}

// Clone returns a deep copy that can be mutated independently.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		name:           g.name,
		target:         g.target,
		nodes:          make([]*Node, len(g.nodes)),
		byID:           make(map[string]*Node, len(g.byID)),
		nextID:         g.nextID,
		vars:           make(map[string]ir.Meta, len(g.vars)),
		varOrder:       slices.Clone(g.varOrder),
		inputs:         slices.Clone(g.inputs),
		producer:       make(map[string]string, len(g.producer)),
		fetches:        slices.Clone(g.fetches),
		shapesInferred: g.shapesInferred,
	}
	for i, n := range g.nodes {
		cn := n.Clone()
		c.nodes[i] = &cn
		c.byID[cn.ID] = &cn
	}
	for k, m := range g.vars {
		c.vars[k] = ir.Meta{Shape: m.Shape.Clone(), DType: m.DType}
	}
	for k, v := range g.producer {
		c.producer[k] = v
	}
	return c
}

func (g *Graph) defineVar(id string, m ir.Meta) {
	if _, ok := g.vars[id]; !ok {
		g.varOrder = append(g.varOrder, id)
	}
	g.vars[id] = ir.Meta{Shape: m.Shape.Clone(), DType: m.DType}
}
