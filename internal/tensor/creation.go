package tensor

import (
	"fmt"
	"math/rand"

	"github.com/x448/float16"
)

// FromSlice creates a host tensor holding a copy of data.
//
// Example:
//
//	t, err := tensor.FromSlice([]float32{1, 2, 3, 4}, Shape{2, 2})
func FromSlice[T DType](data []T, shape Shape) (*RawTensor, error) {
	if len(data) != shape.NumElements() {
		return nil, fmt.Errorf("data length %d does not match shape %v (%d elements)",
			len(data), shape, shape.NumElements())
	}
	raw, err := NewRaw(shape, DataTypeOf[T](), Host)
	if err != nil {
		return nil, err
	}
	copy(View[T](raw), data)
	return raw, nil
}

// Fill sets every element to value, converted to the tensor's dtype.
func Fill(r *RawTensor, value float64) {
	switch r.dtype {
	case Float16:
		h := float16.Fromfloat32(float32(value))
		for i, d := 0, r.AsFloat16(); i < len(d); i++ {
			d[i] = h
		}
	case Float32:
		fill(r.AsFloat32(), float32(value))
	case Float64:
		fill(r.AsFloat64(), value)
	case Int32:
		fill(r.AsInt32(), int32(value))
	case Int64:
		fill(r.AsInt64(), int64(value))
	case Uint8:
		fill(r.AsUint8(), uint8(value))
	case Bool:
		fill(r.AsBool(), value != 0)
	}
}

// FillUniform sets every floating point element to a uniform sample in [lo, hi).
// Integer tensors receive the truncated sample.
// Note: Uses math/rand (not crypto/rand) - appropriate for test data.
func FillUniform(r *RawTensor, rng *rand.Rand, lo, hi float64) {
	n := r.NumElements()
	switch r.dtype {
	case Float16:
		d := r.AsFloat16()
		for i := 0; i < n; i++ {
			d[i] = float16.Fromfloat32(float32(lo + rng.Float64()*(hi-lo)))
		}
	case Float32:
		d := r.AsFloat32()
		for i := 0; i < n; i++ {
			d[i] = float32(lo + rng.Float64()*(hi-lo))
		}
	case Float64:
		d := r.AsFloat64()
		for i := 0; i < n; i++ {
			d[i] = lo + rng.Float64()*(hi-lo)
		}
	case Int32:
		d := r.AsInt32()
		for i := 0; i < n; i++ {
			d[i] = int32(lo + rng.Float64()*(hi-lo))
		}
	case Int64:
		d := r.AsInt64()
		for i := 0; i < n; i++ {
			d[i] = int64(lo + rng.Float64()*(hi-lo))
		}
	default:
		Fill(r, lo)
	}
}

// Float64s returns the elements widened to float64, for printing and comparisons.
func Float64s(r *RawTensor) []float64 {
	out := make([]float64, r.NumElements())
	switch r.dtype {
	case Float16:
		for i, v := range r.AsFloat16() {
			out[i] = float64(v.Float32())
		}
	case Float32:
		widen(out, r.AsFloat32())
	case Float64:
		copy(out, r.AsFloat64())
	case Int32:
		widen(out, r.AsInt32())
	case Int64:
		widen(out, r.AsInt64())
	case Uint8:
		widen(out, r.AsUint8())
	case Bool:
		for i, v := range r.AsBool() {
			if v {
				out[i] = 1
			}
		}
	}
	return out
}

func fill[T any](d []T, v T) {
	for i := range d {
		d[i] = v
	}
}

func widen[T float32 | int32 | int64 | uint8](dst []float64, src []T) {
	for i, v := range src {
		dst[i] = float64(v)
	}
}

// Float16ToFloat32 returns a Float32 copy of a Float16 tensor.
func Float16ToFloat32(r *RawTensor) (*RawTensor, error) {
	out, err := NewRaw(r.shape, Float32, r.device)
	if err != nil {
		return nil, err
	}
	dst := out.AsFloat32()
	for i, v := range r.AsFloat16() {
		dst[i] = v.Float32()
	}
	return out, nil
}

// StoreFloat32AsFloat16 rounds src into the Float16 tensor dst. Shapes must match.
func StoreFloat32AsFloat16(dst, src *RawTensor) error {
	if !dst.shape.Equal(src.shape) {
		return fmt.Errorf("store %v into %v: shape mismatch", src.shape, dst.shape)
	}
	d := dst.AsFloat16()
	for i, v := range src.AsFloat32() {
		d[i] = float16.Fromfloat32(v)
	}
	return nil
}
