package tensor

import (
	"math/rand"
	"testing"
)

func TestFromSlice(t *testing.T) {
	raw, err := FromSlice([]float32{1, 2, 3, 4, 5, 6}, Shape{2, 3})
	if err != nil {
		t.Fatalf("FromSlice: %v", err)
	}
	assertEqualShape(t, Shape{2, 3}, raw.Shape(), "FromSlice shape")
	if raw.DType() != Float32 || raw.AsFloat32()[5] != 6 {
		t.Errorf("FromSlice = %s %v", raw.DType(), raw.AsFloat32())
	}

	if _, err := FromSlice([]int64{1, 2, 3}, Shape{2, 2}); err == nil {
		t.Error("FromSlice with a length mismatch should fail")
	}
}

func TestFill(t *testing.T) {
	for _, dt := range []DataType{Float16, Float32, Float64, Int32, Int64, Uint8} {
		raw, _ := NewRaw(Shape{3}, dt, Host)
		Fill(raw, 3)
		for i, v := range Float64s(raw) {
			if v != 3 {
				t.Errorf("Fill(%s)[%d] = %v, want 3", dt, i, v)
			}
		}
	}

	b, _ := NewRaw(Shape{2}, Bool, Host)
	Fill(b, 1)
	if !b.AsBool()[0] || !b.AsBool()[1] {
		t.Error("Fill(bool, 1) should set true")
	}
}

func TestFillUniform(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	raw, _ := NewRaw(Shape{1000}, Float32, Host)
	FillUniform(raw, rng, -1, 1)

	distinct := make(map[float32]bool)
	for _, v := range raw.AsFloat32() {
		if v < -1 || v >= 1 {
			t.Fatalf("FillUniform produced %v outside [-1, 1)", v)
		}
		distinct[v] = true
	}
	if len(distinct) < 900 {
		t.Errorf("FillUniform produced only %d distinct values", len(distinct))
	}
}

func TestFloat16Promotion(t *testing.T) {
	half, _ := NewRaw(Shape{2, 2}, Float16, Host)
	Fill(half, 0.75)

	wide, err := Float16ToFloat32(half)
	if err != nil {
		t.Fatalf("Float16ToFloat32: %v", err)
	}
	for i, v := range wide.AsFloat32() {
		if v != 0.75 {
			t.Errorf("wide[%d] = %v, want 0.75", i, v)
		}
		wide.AsFloat32()[i] = v * 2
	}
	if err := StoreFloat32AsFloat16(half, wide); err != nil {
		t.Fatalf("StoreFloat32AsFloat16: %v", err)
	}
	if got := Float64s(half); got[3] != 1.5 {
		t.Errorf("stored half = %v", got)
	}

	flat, _ := NewRaw(Shape{4}, Float32, Host)
	if err := StoreFloat32AsFloat16(half, flat); err == nil {
		t.Error("StoreFloat32AsFloat16 with a shape mismatch should fail")
	}
}
