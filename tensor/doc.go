// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor exposes the element types, shapes and device buffers
// that kiln programs read and write.
//
// # Overview
//
// A RawTensor is a byte buffer sized for a Shape and a DataType and placed
// on a Device. Typed access is zero-copy:
//
//	raw, _ := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2})
//	data := raw.AsFloat32()
//
// # Supported Data Types
//
//   - float16 (github.com/x448/float16), float32, float64
//   - int32, int64
//   - uint8
//   - bool
//
// Model files may use the short names accepted by ParseDataType, such as
// f32, fp16 or i64.
package tensor
