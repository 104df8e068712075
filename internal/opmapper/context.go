package opmapper

import (
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/born-ml/kiln/internal/ir"
)

// Context carries translation state across operators: the builder being
// driven, external names bound to IR variables, the external-name to
// program-id map and the requested fetches.
//
// Bindings made while an operator is being translated are staged and only
// become visible to later operators once the operator commits.
type Context struct {
	builder  *ir.NetBuilder
	vars     *orderedmap.OrderedMap[string, ir.Variable]
	programs *orderedmap.OrderedMap[string, string]
	fetches  []string

	staged        map[string]ir.Variable
	stagedOrder   []string
	stagedProgram map[string]string
	stagedFetch   []string
}

// NewContext returns a context driving b.
func NewContext(b *ir.NetBuilder) *Context {
	return &Context{
		builder:  b,
		vars:     orderedmap.New[string, ir.Variable](),
		programs: orderedmap.New[string, string](),
	}
}

// Builder returns the builder mappers emit into.
func (c *Context) Builder() *ir.NetBuilder { return c.builder }

// AddVar binds an external name to an IR variable. Rebinding a name is an
// error.
func (c *Context) AddVar(name string, v ir.Variable) error {
	if name == "" {
		return &ir.OpError{Op: "add_var", Err: ir.ErrMissingOperand, Details: "empty name"}
	}
	if c.has(name) {
		return &ir.OpError{Op: "add_var", Err: ir.ErrDuplicateName, Details: fmt.Sprintf("%q is already bound", name)}
	}
	if c.staged == nil {
		c.staged = make(map[string]ir.Variable)
	}
	c.staged[name] = v
	c.stagedOrder = append(c.stagedOrder, name)
	return nil
}

// GetVar resolves an external name.
func (c *Context) GetVar(name string) (ir.Variable, error) {
	if v, ok := c.staged[name]; ok {
		return v, nil
	}
	if v, ok := c.vars.Get(name); ok {
		return v, nil
	}
	return ir.Variable{}, &ir.OpError{Op: "get_var", Err: ir.ErrUndefinedVariable, Details: fmt.Sprintf("%q", name)}
}

func (c *Context) has(name string) bool {
	if _, ok := c.staged[name]; ok {
		return true
	}
	_, ok := c.vars.Get(name)
	return ok
}

// AddVarModelToProgram records that external name maps to program variable id.
func (c *Context) AddVarModelToProgram(name, id string) {
	if c.stagedProgram == nil {
		c.stagedProgram = make(map[string]string)
	}
	c.stagedProgram[name] = id
}

// ProgramID returns the program variable id recorded for an external name.
func (c *Context) ProgramID(name string) (string, bool) {
	if id, ok := c.stagedProgram[name]; ok {
		return id, true
	}
	return c.programs.Get(name)
}

// VarModelToProgram returns the committed name to id map in binding order.
func (c *Context) VarModelToProgram() *orderedmap.OrderedMap[string, string] {
	out := orderedmap.New[string, string]()
	for p := c.programs.Oldest(); p != nil; p = p.Next() {
		out.Set(p.Key, p.Value)
	}
	return out
}

// VarNames returns committed external names in binding order.
func (c *Context) VarNames() []string {
	names := make([]string, 0, c.vars.Len())
	for p := c.vars.Oldest(); p != nil; p = p.Next() {
		names = append(names, p.Key)
	}
	return names
}

// MarkFetch requests the variable bound to name as a program result.
func (c *Context) MarkFetch(name string) error {
	if !c.has(name) {
		return &ir.OpError{Op: "fetch", Err: ir.ErrUndefinedVariable, Details: fmt.Sprintf("%q", name)}
	}
	c.stagedFetch = append(c.stagedFetch, name)
	return nil
}

// Fetches returns the program ids of every committed fetch, in request order.
func (c *Context) Fetches() []string {
	ids := make([]string, 0, len(c.fetches))
	for _, name := range c.fetches {
		v, _ := c.vars.Get(name)
		ids = append(ids, v.ID)
	}
	return ids
}

func (c *Context) commit() {
	for _, name := range c.stagedOrder {
		c.vars.Set(name, c.staged[name])
	}
	for name, id := range c.stagedProgram {
		c.programs.Set(name, id)
	}
	c.fetches = append(c.fetches, c.stagedFetch...)
	c.discard()
}

func (c *Context) discard() {
	c.staged = nil
	c.stagedOrder = nil
	c.stagedProgram = nil
	c.stagedFetch = nil
}
