// Package pass implements the graph rewrite passes and the pipeline that
// runs them by name.
//
// Passes are copy-on-write: Apply never mutates its argument and returns a
// new graph. The set of passes is closed; names are resolved against it
// before anything runs.
package pass

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"k8s.io/klog/v2"

	"github.com/born-ml/kiln/internal/graph"
)

// Pipeline errors.
var (
	ErrUnknownPassName   = errors.New("unknown pass name")
	ErrShapesNotInferred = errors.New("shapes not inferred, run InferShape first")
	ErrFetchChanged      = errors.New("pass changed the fetch set")
)

// Pass is one graph rewrite.
type Pass interface {
	Name() string
	Apply(g *graph.Graph) (*graph.Graph, error)
}

// Pass names.
const (
	InferShapeName             = "InferShape"
	OpFusionName               = "OpFusion"
	TransposeFoldingInputName  = "TransposeFoldingInput"
	TransposeFoldingOutputName = "TransposeFoldingOutput"
	GemmRewriterName           = "GemmRewriter"
	DecomposerName             = "Decomposer"
)

var registry = map[string]func() Pass{
	InferShapeName:             func() Pass { return InferShape{} },
	OpFusionName:               func() Pass { return OpFusion{} },
	TransposeFoldingInputName:  func() Pass { return TransposeFoldingInput{} },
	TransposeFoldingOutputName: func() Pass { return TransposeFoldingOutput{} },
	GemmRewriterName:           func() Pass { return GemmRewriter{} },
	DecomposerName:             func() Pass { return Decomposer{} },
}

// Names lists every registered pass, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the pass registered under name.
func Lookup(name string) (Pass, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPassName, name)
	}
	return ctor(), nil
}

// DefaultOpFusionPasses returns the pass list used when the caller asks
// for the default fusion pipeline.
func DefaultOpFusionPasses() []string {
	return []string{OpFusionName}
}

// ApplyPasses runs the named passes in order. Every name is checked before
// the first pass runs. After each pass the graph invariants are rechecked
// and the fetch set must be unchanged.
func ApplyPasses(g *graph.Graph, names []string) (*graph.Graph, error) {
	passes := make([]Pass, len(names))
	for i, name := range names {
		p, err := Lookup(name)
		if err != nil {
			return nil, err
		}
		passes[i] = p
	}

	fetches := g.Fetches()
	cur := g
	for _, p := range passes {
		next, err := p.Apply(cur)
		if err != nil {
			return nil, fmt.Errorf("pass %s: %w", p.Name(), err)
		}
		if err := next.Validate(); err != nil {
			return nil, fmt.Errorf("pass %s left an invalid graph: %w", p.Name(), err)
		}
		if !slices.Equal(fetches, next.Fetches()) {
			return nil, fmt.Errorf("pass %s: %w: %v -> %v", p.Name(), ErrFetchChanged, fetches, next.Fetches())
		}
		klog.V(1).Infof("pass %s: %d -> %d nodes", p.Name(), cur.Len(), next.Len())
		if klog.V(3).Enabled() {
			klog.Infof("graph after %s:\n%s", p.Name(), next.Visualize())
		}
		cur = next
	}
	return cur, nil
}

func requireShapes(g *graph.Graph) error {
	if !g.ShapesInferred() {
		return ErrShapesNotInferred
	}
	return nil
}
