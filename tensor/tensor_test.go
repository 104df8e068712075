// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor_test

import (
	"testing"

	"github.com/born-ml/kiln/tensor"
)

// TestRawTensorAPI verifies the RawTensor alias exposes the expected API.
func TestRawTensorAPI(t *testing.T) {
	raw, err := tensor.NewRaw(tensor.Shape{2, 3}, tensor.Float32, tensor.Host)
	if err != nil {
		t.Fatalf("NewRaw failed: %v", err)
	}
	if !raw.Shape().Equal(tensor.Shape{2, 3}) {
		t.Errorf("Shape() = %v, want (2,3)", raw.Shape())
	}
	if raw.DType() != tensor.Float32 {
		t.Errorf("DType() = %v, want float32", raw.DType())
	}
	if raw.Device() != tensor.Host {
		t.Errorf("Device() = %v, want Host", raw.Device())
	}

	tensor.Fill(raw, 2)
	if got := tensor.View[float32](raw); got[5] != 2 {
		t.Errorf("View after Fill = %v", got)
	}
}

func TestFromSlice(t *testing.T) {
	raw, err := tensor.FromSlice([]int64{1, 2, 3}, tensor.Shape{3})
	if err != nil {
		t.Fatalf("FromSlice failed: %v", err)
	}
	if got := tensor.Float64s(raw); got[2] != 3 {
		t.Errorf("Float64s = %v", got)
	}
	if dt := tensor.DataTypeOf[int64](); dt != raw.DType() {
		t.Errorf("DataTypeOf[int64] = %v, tensor is %v", dt, raw.DType())
	}
}

func TestParseDataType(t *testing.T) {
	dt, err := tensor.ParseDataType("fp16")
	if err != nil || dt != tensor.Float16 {
		t.Errorf("ParseDataType(fp16) = %v, %v", dt, err)
	}
}
