// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/kiln/internal/tensor"
)

// RawTensor is the low-level tensor representation.
//
// RawTensor provides:
//   - Shape and type information via Shape(), DType(), Device()
//   - Zero-copy typed access via AsFloat32(), AsInt64(), etc.
//   - CopyFrom for moving data between tensors of the same layout
//
// Example:
//
//	raw, _ := tensor.NewRaw(tensor.Shape{2, 3}, tensor.Float32, tensor.Host)
//	data := raw.AsFloat32()
type RawTensor = tensor.RawTensor

// NewRaw creates a zeroed tensor.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	return tensor.NewRaw(shape, dtype, device)
}

// FromSlice creates a host tensor holding a copy of data.
func FromSlice[T DType](data []T, shape Shape) (*RawTensor, error) {
	return tensor.FromSlice(data, shape)
}

// View returns a zero-copy typed slice over r. It panics if T does not
// match r's dtype.
func View[T DType](r *RawTensor) []T {
	return tensor.View[T](r)
}
