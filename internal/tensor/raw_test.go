package tensor

import (
	"testing"

	"github.com/x448/float16"
)

// RawTensor Tests

func TestNewRawAllTypes(t *testing.T) {
	for _, dt := range []DataType{Float16, Float32, Float64, Int32, Int64, Uint8, Bool} {
		raw, err := NewRaw(Shape{3, 2}, dt, Host)
		if err != nil {
			t.Fatalf("NewRaw(%s): %v", dt, err)
		}
		if raw.ByteSize() != 6*dt.Size() {
			t.Errorf("NewRaw(%s).ByteSize() = %d, want %d", dt, raw.ByteSize(), 6*dt.Size())
		}
		if raw.DType() != dt || raw.Device() != Host {
			t.Errorf("NewRaw(%s) = %s on %s", dt, raw.DType(), raw.Device())
		}
	}
}

func TestNewRawInvalidShape(t *testing.T) {
	if _, err := NewRaw(Shape{2, -1}, Float32, Host); err == nil {
		t.Error("NewRaw with negative dimension should fail")
	}
}

func TestNewRawFromBuffer(t *testing.T) {
	buf := make([]byte, 16)
	raw, err := NewRawFromBuffer(buf, Shape{2, 2}, Float32, Accelerator)
	if err != nil {
		t.Fatalf("NewRawFromBuffer: %v", err)
	}
	raw.AsFloat32()[3] = 1
	if buf[15] == 0 && buf[12] == 0 {
		t.Error("NewRawFromBuffer should wrap the buffer without copying")
	}
	if raw.Device() != Accelerator {
		t.Errorf("Device() = %s, want Accelerator", raw.Device())
	}

	if _, err := NewRawFromBuffer(make([]byte, 15), Shape{2, 2}, Float32, Host); err == nil {
		t.Error("NewRawFromBuffer with a short buffer should fail")
	}
}

func TestRawTensorViewsAreZeroCopy(t *testing.T) {
	raw, _ := NewRaw(Shape{3, 2}, Int64, Host)
	data := raw.AsInt64()
	if len(data) != 6 {
		t.Fatalf("AsInt64 length = %d, want 6", len(data))
	}
	data[0] = 42
	if View[int64](raw)[0] != 42 {
		t.Error("AsInt64 should return zero-copy slice")
	}

	half, _ := NewRaw(Shape{2}, Float16, Host)
	half.AsFloat16()[1] = float16.Fromfloat32(0.5)
	if got := Float64s(half); got[1] != 0.5 {
		t.Errorf("Float64s(half) = %v", got)
	}
}

func TestRawTensorAsWrongTypePanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("AsFloat64 on a float32 tensor should panic")
		}
	}()
	raw, _ := NewRaw(Shape{2}, Float32, Host)
	_ = raw.AsFloat64()
}

func TestRawTensorEmpty(t *testing.T) {
	raw, err := NewRaw(Shape{0, 3}, Float32, Host)
	if err != nil {
		t.Fatalf("NewRaw: %v", err)
	}
	if raw.AsFloat32() != nil || raw.ByteSize() != 0 {
		t.Errorf("empty tensor has %d bytes", raw.ByteSize())
	}
}

func TestRawTensorScalar(t *testing.T) {
	raw, _ := NewRaw(Shape{}, Float64, Host)
	if raw.NumElements() != 1 {
		t.Fatalf("scalar NumElements() = %d, want 1", raw.NumElements())
	}
	raw.AsFloat64()[0] = 2.5
	if raw.AsFloat64()[0] != 2.5 {
		t.Error("scalar write lost")
	}
}

func TestRawTensorCopyFrom(t *testing.T) {
	src, _ := FromSlice([]int32{1, 2, 3, 4}, Shape{2, 2})
	dst, _ := NewRaw(Shape{2, 2}, Int32, Host)
	if err := dst.CopyFrom(src); err != nil {
		t.Fatalf("CopyFrom: %v", err)
	}
	src.AsInt32()[0] = 9
	if dst.AsInt32()[0] != 1 {
		t.Error("CopyFrom should copy, not alias")
	}

	other, _ := NewRaw(Shape{2, 2}, Int64, Host)
	if err := other.CopyFrom(src); err == nil {
		t.Error("CopyFrom across dtypes should fail")
	}
	flat, _ := NewRaw(Shape{4}, Int32, Host)
	if err := flat.CopyFrom(src); err == nil {
		t.Error("CopyFrom across shapes should fail")
	}
}
