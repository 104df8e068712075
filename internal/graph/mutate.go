package graph

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/emirpasic/gods/v2/queues/priorityqueue"

	"github.com/born-ml/kiln/internal/ir"
)

// AddNode appends n and returns its id. An empty n.ID is assigned. Every
// input and output must already be a known variable and no output may
// have a producer yet.
func (g *Graph) AddNode(n Node) (string, error) {
	for _, id := range n.Inputs {
		if _, ok := g.vars[id]; !ok {
			return "", fmt.Errorf("node %s input %q: %w", n.Op, id, ErrUnknownVar)
		}
	}
	for _, id := range n.Outputs {
		if _, ok := g.vars[id]; !ok {
			return "", fmt.Errorf("node %s output %q: %w", n.Op, id, ErrUnknownVar)
		}
		if p, ok := g.producer[id]; ok {
			return "", fmt.Errorf("node %s output %q already written by %s: %w", n.Op, id, p, ErrMultipleDef)
		}
		if g.IsInput(id) {
			return "", fmt.Errorf("node %s writes graph input %q: %w", n.Op, id, ErrMultipleDef)
		}
	}
	c := n.Clone()
	if c.ID == "" {
		c.ID = g.newNodeID(c.Op)
	} else if _, taken := g.byID[c.ID]; taken {
		return "", fmt.Errorf("node id %q: %w", c.ID, ir.ErrDuplicateName)
	}
	g.nodes = append(g.nodes, &c)
	g.byID[c.ID] = &c
	for _, id := range c.Outputs {
		g.producer[id] = c.ID
	}
	return c.ID, nil
}

func (g *Graph) newNodeID(op ir.OpType) string {
	for {
		id := fmt.Sprintf("%s_%d", op, g.nextID)
		g.nextID++
		if _, taken := g.byID[id]; !taken {
			return id
		}
	}
}

// RemoveNode deletes a node. Variables it touched that are left with no
// producer and no consumer, and are neither inputs nor fetched, are
// dropped from the variable table.
func (g *Graph) RemoveNode(id string) error {
	n, ok := g.byID[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownNode, id)
	}
	g.nodes = slices.DeleteFunc(g.nodes, func(m *Node) bool { return m.ID == id })
	delete(g.byID, id)
	for _, v := range n.Outputs {
		delete(g.producer, v)
	}
	for _, v := range slices.Concat(n.Inputs, n.Outputs) {
		g.dropIfDead(v)
	}
	return nil
}

func (g *Graph) dropIfDead(id string) {
	if _, ok := g.vars[id]; !ok || g.IsInput(id) || g.IsFetch(id) {
		return
	}
	if _, ok := g.producer[id]; ok {
		return
	}
	if len(g.consumers(id)) > 0 {
		return
	}
	delete(g.vars, id)
	g.varOrder = slices.DeleteFunc(g.varOrder, func(v string) bool { return v == id })
}

// ReplaceInput rewires every operand of node nodeID reading from to read to.
func (g *Graph) ReplaceInput(nodeID, from, to string) error {
	n, ok := g.byID[nodeID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownNode, nodeID)
	}
	if _, ok := g.vars[to]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownVar, to)
	}
	found := false
	for i, in := range n.Inputs {
		if in == from {
			n.Inputs[i] = to
			found = true
		}
	}
	if !found {
		return fmt.Errorf("node %s does not read %q", nodeID, from)
	}
	g.dropIfDead(from)
	return nil
}

// SetAttr sets one attribute of a node.
func (g *Graph) SetAttr(nodeID, name string, a ir.Attr) error {
	n, ok := g.byID[nodeID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownNode, nodeID)
	}
	n.Attrs[name] = a
	return nil
}

// SetVar defines or updates the metadata of variable id.
func (g *Graph) SetVar(id string, m ir.Meta) {
	g.defineVar(id, m)
}

// NewVar defines a fresh variable with a generated id and returns the id.
func (g *Graph) NewVar(m ir.Meta) string {
	for i := len(g.varOrder); ; i++ {
		id := fmt.Sprintf("tmp_%d", i)
		if _, taken := g.vars[id]; !taken {
			g.defineVar(id, m)
			return id
		}
	}
}

// TopoOrder returns the nodes in a topological order. Among ready nodes the
// one inserted first comes first, so the order is deterministic.
func (g *Graph) TopoOrder() ([]Node, error) {
	pos := make(map[string]int, len(g.nodes))
	for i, n := range g.nodes {
		pos[n.ID] = i
	}
	indeg := make([]int, len(g.nodes))
	succ := make([][]int, len(g.nodes))
	for _, e := range g.Edges() {
		from, to := pos[e.From], pos[e.To]
		if slices.Contains(succ[from], to) {
			continue
		}
		succ[from] = append(succ[from], to)
		indeg[to]++
	}

	ready := priorityqueue.NewWith[int](cmp.Compare[int])
	for i, d := range indeg {
		if d == 0 {
			ready.Enqueue(i)
		}
	}
	order := make([]Node, 0, len(g.nodes))
	for !ready.Empty() {
		i, _ := ready.Dequeue()
		order = append(order, g.nodes[i].Clone())
		for _, j := range succ[i] {
			indeg[j]--
			if indeg[j] == 0 {
				ready.Enqueue(j)
			}
		}
	}
	if len(order) != len(g.nodes) {
		return nil, fmt.Errorf("%w: %d of %d nodes ordered", ErrCycle, len(order), len(g.nodes))
	}
	return order, nil
}

// Validate checks that every operand is defined, every variable has at
// most one producer, every fetch is reachable and the graph is acyclic.
func (g *Graph) Validate() error {
	written := make(map[string]string)
	for _, n := range g.nodes {
		for _, in := range n.Inputs {
			if _, ok := g.vars[in]; !ok {
				return fmt.Errorf("node %s reads %q: %w", n.ID, in, ErrUnknownVar)
			}
			if _, ok := g.producer[in]; !ok && !g.IsInput(in) {
				return fmt.Errorf("node %s reads %q which nothing produces: %w", n.ID, in, ErrUnknownVar)
			}
		}
		for _, out := range n.Outputs {
			if prev, ok := written[out]; ok {
				return fmt.Errorf("%q written by %s and %s: %w", out, prev, n.ID, ErrMultipleDef)
			}
			written[out] = n.ID
		}
	}
	for _, id := range g.fetches {
		if _, ok := g.vars[id]; !ok {
			return fmt.Errorf("fetch %q: %w", id, ErrUnknownVar)
		}
		if _, ok := written[id]; !ok && !g.IsInput(id) {
			return fmt.Errorf("fetch %q has no producer: %w", id, ErrUnknownVar)
		}
	}
	_, err := g.TopoOrder()
	return err
}
