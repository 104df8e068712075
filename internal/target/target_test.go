package target

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/kiln/internal/tensor"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		kind Kind
		arch string
	}{
		{"host", Host, "generic"},
		{"CPU", Host, "generic"},
		{"gpu", Accelerator, "gpu"},
		{"cuda/sm_80", Accelerator, "sm_80"},
		{" host/arm64 ", Host, "arm64"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, got.Kind)
			assert.Equal(t, tt.arch, got.Arch)
		})
	}

	_, err := Parse("tpu")
	assert.Error(t, err)
}

func TestDevicePlacement(t *testing.T) {
	assert.Equal(t, tensor.Host, DefaultHostTarget().Device())
	assert.Equal(t, tensor.Accelerator, DefaultAcceleratorTarget().Device())
	assert.Equal(t, "accelerator/gpu", DefaultAcceleratorTarget().String())
}
