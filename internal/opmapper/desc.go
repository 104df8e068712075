package opmapper

import (
	"fmt"

	"github.com/born-ml/kiln/internal/ir"
)

// OpDesc is the read-only view of one external operator.
type OpDesc interface {
	Type() string
	Input(slot string) ([]string, error)
	Output(slot string) ([]string, error)
	HasAttr(name string) bool
	Attr(name string) (ir.Attr, error)
}

// AttrValue is the set of Go types an attribute can be read as.
type AttrValue interface {
	int | float64 | bool | string | []int | []float64 | []string
}

// GetAttr reads a required attribute as T. It fails with
// ir.ErrMissingAttribute when absent and ir.ErrTypeMismatch when the
// stored kind is not T.
func GetAttr[T AttrValue](desc OpDesc, name string) (T, error) {
	var zero T
	a, err := desc.Attr(name)
	if err != nil {
		return zero, err
	}
	var v any
	switch any(zero).(type) {
	case int:
		v, err = a.AsInt()
	case float64:
		v, err = a.AsFloat()
	case bool:
		v, err = a.AsBool()
	case string:
		v, err = a.AsString()
	case []int:
		v, err = a.AsInts()
	case []float64:
		v, err = a.AsFloats()
	case []string:
		v, err = a.AsStrings()
	}
	if err != nil {
		return zero, fmt.Errorf("%s attribute %q: %w", desc.Type(), name, err)
	}
	return v.(T), nil
}

// GetAttrOrDefault reads an optional attribute, returning def when absent.
// A present attribute of the wrong kind is still an error.
func GetAttrOrDefault[T AttrValue](desc OpDesc, name string, def T) (T, error) {
	if !desc.HasAttr(name) {
		return def, nil
	}
	return GetAttr[T](desc, name)
}

// Desc is a plain in-memory OpDesc.
type Desc struct {
	OpType  string
	Inputs  map[string][]string
	Outputs map[string][]string
	Attrs   ir.Attrs
}

var _ OpDesc = (*Desc)(nil)

// Type returns the operator type name.
func (d *Desc) Type() string { return d.OpType }

// Input returns the names bound to an input slot.
func (d *Desc) Input(slot string) ([]string, error) {
	names, ok := d.Inputs[slot]
	if !ok {
		return nil, &ir.OpError{Op: d.OpType, Err: ir.ErrMissingOperand, Details: fmt.Sprintf("no input slot %q", slot)}
	}
	return append([]string(nil), names...), nil
}

// Output returns the names bound to an output slot.
func (d *Desc) Output(slot string) ([]string, error) {
	names, ok := d.Outputs[slot]
	if !ok {
		return nil, &ir.OpError{Op: d.OpType, Err: ir.ErrMissingOperand, Details: fmt.Sprintf("no output slot %q", slot)}
	}
	return append([]string(nil), names...), nil
}

// HasAttr reports whether the attribute is present.
func (d *Desc) HasAttr(name string) bool {
	_, ok := d.Attrs[name]
	return ok
}

// Attr returns the named attribute.
func (d *Desc) Attr(name string) (ir.Attr, error) {
	a, ok := d.Attrs[name]
	if !ok {
		return ir.Attr{}, &ir.OpError{Op: d.OpType, Err: ir.ErrMissingAttribute, Details: fmt.Sprintf("%q", name)}
	}
	return a, nil
}

func singleInput(desc OpDesc, slot string) (string, error) {
	names, err := desc.Input(slot)
	if err != nil {
		return "", err
	}
	return single(desc, "input", slot, names)
}

func singleOutput(desc OpDesc, slot string) (string, error) {
	names, err := desc.Output(slot)
	if err != nil {
		return "", err
	}
	return single(desc, "output", slot, names)
}

func single(desc OpDesc, dir, slot string, names []string) (string, error) {
	if len(names) != 1 {
		return "", &ir.OpError{
			Op:      desc.Type(),
			Err:     ir.ErrMissingOperand,
			Details: fmt.Sprintf("%s slot %q holds %d names, want exactly 1", dir, slot, len(names)),
		}
	}
	return names[0], nil
}
