// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"math/rand"

	"github.com/born-ml/kiln/internal/tensor"
)

// DType is a constraint for tensor element types.
type DType = tensor.DType

// DataType is the runtime element type of a tensor or IR variable.
type DataType = tensor.DataType

// Data type constants.
const (
	Float16 DataType = tensor.Float16
	Float32 DataType = tensor.Float32
	Float64 DataType = tensor.Float64
	Int32   DataType = tensor.Int32
	Int64   DataType = tensor.Int64
	Uint8   DataType = tensor.Uint8
	Bool    DataType = tensor.Bool
)

// Device represents where tensor memory lives.
type Device = tensor.Device

// Device constants.
const (
	Host        Device = tensor.Host
	Accelerator Device = tensor.Accelerator
)

// Shape represents the dimensions of a tensor.
// Example: Shape{32, 12} is a 32×12 matrix.
type Shape = tensor.Shape

// ParseDataType accepts "float32", "fp16", "i64" and the other names
// model files use.
func ParseDataType(s string) (DataType, error) {
	return tensor.ParseDataType(s)
}

// DataTypeOf returns the DataType matching the Go type T.
func DataTypeOf[T DType]() DataType {
	return tensor.DataTypeOf[T]()
}

// Fill sets every element of r to value, converted to r's dtype.
func Fill(r *RawTensor, value float64) {
	tensor.Fill(r, value)
}

// FillUniform sets every element of r to a sample from [lo, hi).
func FillUniform(r *RawTensor, rng *rand.Rand, lo, hi float64) {
	tensor.FillUniform(r, rng, lo, hi)
}

// Float64s returns a copy of r widened to float64.
func Float64s(r *RawTensor) []float64 {
	return tensor.Float64s(r)
}
