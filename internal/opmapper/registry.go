package opmapper

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"k8s.io/klog/v2"

	"github.com/born-ml/kiln/internal/ir"
)

// Mapper translates one external operator.
type Mapper func(desc OpDesc, ctx *Context) error

// Registry maps external operator types to mappers.
type Registry struct {
	mu      sync.RWMutex
	mappers map[string]Mapper
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{mappers: make(map[string]Mapper)}
}

// NewDefaultRegistry returns a registry with every built-in mapper.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	RegisterDefaults(r)
	return r
}

// Register adds a mapper. A second registration of the same type fails.
func (r *Registry) Register(opType string, m Mapper) error {
	if opType == "" || m == nil {
		return errors.New("opmapper: register requires an op type and a mapper")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.mappers[opType]; ok {
		return &ir.OpError{Op: opType, Err: ir.ErrDuplicateName, Details: "mapper already registered"}
	}
	r.mappers[opType] = m
	return nil
}

// MustRegister is Register that panics on error, for init-time tables.
func (r *Registry) MustRegister(opType string, m Mapper) {
	if err := r.Register(opType, m); err != nil {
		panic(err)
	}
}

// Lookup returns the mapper for opType.
func (r *Registry) Lookup(opType string) (Mapper, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.mappers[opType]
	return m, ok
}

// IsSupported reports whether opType has a mapper.
func (r *Registry) IsSupported(opType string) bool {
	_, ok := r.Lookup(opType)
	return ok
}

// SupportedOps returns the registered op types, sorted.
func (r *Registry) SupportedOps() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ops := make([]string, 0, len(r.mappers))
	for op := range r.mappers {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

// Translate runs the mapper for desc. On failure the builder and the
// context are restored to their state before the call.
func (r *Registry) Translate(desc OpDesc, ctx *Context) error {
	m, ok := r.Lookup(desc.Type())
	if !ok {
		return &ir.OpError{Op: desc.Type(), Err: ir.ErrUnknownOpType, Details: "no mapper registered"}
	}
	cp := ctx.builder.Checkpoint()
	before := ctx.builder.Size()
	if err := m(desc, ctx); err != nil {
		ctx.discard()
		if rbErr := ctx.builder.Rollback(cp); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	ctx.commit()
	klog.V(4).Infof("translated %s (%d instructions)", desc.Type(), ctx.builder.Size()-before)
	return nil
}

// TranslateAll translates descs in order and stops at the first failure.
func (r *Registry) TranslateAll(descs []OpDesc, ctx *Context) error {
	for i, d := range descs {
		if err := r.Translate(d, ctx); err != nil {
			return fmt.Errorf("operator %d (%s): %w", i, d.Type(), err)
		}
	}
	return nil
}

// Unsupported returns the distinct op types in descs with no mapper, in
// first-seen order.
func (r *Registry) Unsupported(descs []OpDesc) []string {
	var missing []string
	for _, d := range descs {
		if !r.IsSupported(d.Type()) && !slices.Contains(missing, d.Type()) {
			missing = append(missing, d.Type())
		}
	}
	return missing
}
