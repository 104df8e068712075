// Package framework lowers graphs into runnable programs: scopes that own
// tensors, the kernel registry, the graph compiler and the runtime program.
package framework

import (
	"fmt"

	"github.com/born-ml/kiln/internal/tensor"
)

// Tensor is a named buffer owned by a Scope.
type Tensor struct {
	name string
	raw  *tensor.RawTensor
}

// Name returns the tensor's name in its scope.
func (t *Tensor) Name() string { return t.name }

// Shape returns the tensor's shape.
func (t *Tensor) Shape() tensor.Shape { return t.raw.Shape() }

// DType returns the element type.
func (t *Tensor) DType() tensor.DataType { return t.raw.DType() }

// Raw returns the underlying storage.
func (t *Tensor) Raw() *tensor.RawTensor { return t.raw }

// Set copies src into the tensor. Shape and dtype must match.
func (t *Tensor) Set(src *tensor.RawTensor) error {
	if err := t.raw.CopyFrom(src); err != nil {
		return fmt.Errorf("tensor %s: %w", t.name, err)
	}
	return nil
}

// Float64s returns a copy of the contents widened to float64.
func (t *Tensor) Float64s() []float64 { return tensor.Float64s(t.raw) }

// String renders "name:dtype(shape)".
func (t *Tensor) String() string {
	return fmt.Sprintf("%s:%s%v", t.name, t.DType(), t.Shape())
}

// Data returns a zero-copy typed view of t. Panics on a dtype mismatch.
func Data[T tensor.DType](t *Tensor) []T { return tensor.View[T](t.raw) }
