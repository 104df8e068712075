package framework

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"k8s.io/klog/v2"

	"github.com/born-ml/kiln/internal/envconfig"
	"github.com/born-ml/kiln/internal/graph"
	"github.com/born-ml/kiln/internal/target"
	"github.com/born-ml/kiln/internal/tensor"
)

// Scope owns the tensors of one program by name. Names are kept in
// creation order. Methods are safe for concurrent use, but kernels write
// tensor contents without locking, so a scope backs one running program
// at a time.
type Scope struct {
	id     uuid.UUID
	target target.Target

	mu    sync.Mutex
	vars  *orderedmap.OrderedMap[string, *Tensor]
	limit uint64
	used  uint64
}

// ScopeOption configures NewScope.
type ScopeOption func(*Scope)

// WithMemoryLimit caps the bytes a scope may allocate. Zero is unlimited.
func WithMemoryLimit(bytes uint64) ScopeOption {
	return func(s *Scope) { s.limit = bytes }
}

// NewScope returns an empty scope placing tensors on t's device. The
// memory limit defaults to KILN_MEMORY_LIMIT.
func NewScope(t target.Target, opts ...ScopeOption) *Scope {
	s := &Scope{
		id:     uuid.New(),
		target: t,
		vars:   orderedmap.New[string, *Tensor](),
		limit:  envconfig.MemoryLimit(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID identifies the scope in logs.
func (s *Scope) ID() string { return s.id.String() }

// Target returns the target the scope allocates for.
func (s *Scope) Target() target.Target { return s.target }

// Var creates a zeroed tensor. Creating a name twice is an error.
func (s *Scope) Var(name string, shape tensor.Shape, dtype tensor.DataType) (*Tensor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.vars.Get(name); ok {
		return nil, fmt.Errorf("scope var %q: %w", name, ErrAlreadyExists)
	}
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("scope var %q: %w", name, err)
	}
	need := uint64(shape.NumElements() * dtype.Size())
	if s.limit > 0 && s.used+need > s.limit {
		return nil, fmt.Errorf("scope var %q needs %d bytes, %d of %d in use: %w", name, need, s.used, s.limit, ErrOutOfMemory)
	}
	raw, err := tensor.NewRaw(shape, dtype, s.target.Device())
	if err != nil {
		return nil, fmt.Errorf("scope var %q: %w", name, err)
	}
	t := &Tensor{name: name, raw: raw}
	s.vars.Set(name, t)
	s.used += need
	klog.V(4).Infof("scope %s: allocated %s (%d bytes)", s.id, t, need)
	return t, nil
}

// Var creates a zeroed tensor whose dtype is T.
func Var[T tensor.DType](s *Scope, name string, shape tensor.Shape) (*Tensor, error) {
	return s.Var(name, shape, tensor.DataTypeOf[T]())
}

// GetTensor returns the tensor named name.
func (s *Scope) GetTensor(name string) (*Tensor, error) {
	if t, ok := s.FindVar(name); ok {
		return t, nil
	}
	return nil, fmt.Errorf("scope var %q: %w", name, ErrNotFound)
}

// FindVar looks up a tensor without failing.
func (s *Scope) FindVar(name string) (*Tensor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vars.Get(name)
}

// Names returns every tensor name in creation order.
func (s *Scope) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, s.vars.Len())
	for p := s.vars.Oldest(); p != nil; p = p.Next() {
		names = append(names, p.Key)
	}
	return names
}

// Len returns the number of tensors.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vars.Len()
}

// MemoryUsed returns the bytes allocated so far.
func (s *Scope) MemoryUsed() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used
}

// ensure returns the tensor named id, allocating it with the given metadata
// if missing. An existing tensor must already match.
func (s *Scope) ensure(id string, shape tensor.Shape, dtype tensor.DataType) (*Tensor, error) {
	if t, ok := s.FindVar(id); ok {
		if t.DType() != dtype || !t.Shape().Equal(shape) {
			return nil, fmt.Errorf("scope var %s exists, graph wants %s%v", t, dtype, shape)
		}
		return t, nil
	}
	return s.Var(id, shape, dtype)
}

// BuildScope returns a scope holding a zeroed tensor for every variable of g.
func BuildScope(t target.Target, g *graph.Graph, opts ...ScopeOption) (*Scope, error) {
	s := NewScope(t, opts...)
	for _, id := range g.Vars() {
		m, _ := g.Var(id)
		if _, err := s.ensure(id, m.Shape, m.DType); err != nil {
			return nil, err
		}
	}
	return s, nil
}
