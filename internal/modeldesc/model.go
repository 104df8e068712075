// Package modeldesc loads external model descriptions from YAML and feeds
// them through an operator-mapper registry.
//
// An attribute's kind comes from the YAML value as written and is never
// converted afterwards. `2` is an int, `2.0` a float, `true` a bool and
// anything else a string; a sequence takes the kind of its first element
// and an empty sequence is ints. Mappers read attributes with a fixed
// kind, so a float attribute written as `scale: 2` fails translation with
// ir.ErrTypeMismatch. Write `scale: 2.0`, or use the tagged form with
// exactly one kind key:
//
//	attrs:
//	  scale: {float: 2}
//	  axis: {ints: [1, 0]}
//
// The kind keys are int, float, bool, string, ints, floats and strings.
package modeldesc

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/born-ml/kiln/internal/ir"
	"github.com/born-ml/kiln/internal/opmapper"
)

// Model is a parsed model description.
type Model struct {
	// Name labels the program built from the model.
	Name string `yaml:"name"`

	// Ops lists the operators in execution order.
	Operators []Operator `yaml:"ops"`
}

// Operator is one external operator as written in the model file.
type Operator struct {
	Type    string               `yaml:"type"`
	Inputs  map[string][]string  `yaml:"inputs,omitempty"`
	Outputs map[string][]string  `yaml:"outputs,omitempty"`
	Attrs   map[string]yaml.Node `yaml:"attrs,omitempty"`
}

// Load reads and parses a model file.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse decodes a model description. Unknown fields are rejected.
func Parse(data []byte) (*Model, error) {
	var m Model
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("invalid model: %w", err)
	}
	return &m, nil
}

func (m *Model) validate() error {
	if m.Name == "" {
		return errors.New("name is required")
	}
	if len(m.Operators) == 0 {
		return errors.New("ops list is required and must be non-empty")
	}
	for i, op := range m.Operators {
		if op.Type == "" {
			return fmt.Errorf("op %d: type is required", i)
		}
		for name, node := range op.Attrs {
			if _, err := attrFromNode(&node); err != nil {
				return fmt.Errorf("op %d (%s): attribute %q: %w", i, op.Type, name, err)
			}
		}
	}
	return nil
}

// Ops returns the operators as mapper descriptions.
func (m *Model) Ops() []opmapper.OpDesc {
	out := make([]opmapper.OpDesc, len(m.Operators))
	for i, op := range m.Operators {
		attrs := make(ir.Attrs, len(op.Attrs))
		for name, node := range op.Attrs {
			// Attributes were checked by validate.
			attrs[name], _ = attrFromNode(&node)
		}
		out[i] = &opmapper.Desc{
			OpType:  op.Type,
			Inputs:  op.Inputs,
			Outputs: op.Outputs,
			Attrs:   attrs,
		}
	}
	return out
}

// Translate runs every operator through reg into a fresh NetBuilder named
// after the model and returns the resulting context.
func (m *Model) Translate(reg *opmapper.Registry) (*opmapper.Context, error) {
	ctx := opmapper.NewContext(ir.NewNetBuilder(m.Name))
	if err := reg.TranslateAll(m.Ops(), ctx); err != nil {
		return nil, fmt.Errorf("model %s: %w", m.Name, err)
	}
	return ctx, nil
}

// Build translates the model and finalizes the program. It also returns the
// program ids of the fetched variables.
func (m *Model) Build(reg *opmapper.Registry) (*ir.Program, []string, error) {
	ctx, err := m.Translate(reg)
	if err != nil {
		return nil, nil, err
	}
	prog, err := ctx.Builder().Build()
	if err != nil {
		return nil, nil, err
	}
	return prog, ctx.Fetches(), nil
}
