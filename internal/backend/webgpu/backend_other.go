//go:build !windows

package webgpu

import (
	"github.com/born-ml/kiln/internal/framework"
	"github.com/born-ml/kiln/internal/ir"
)

// Backend is empty where the WebGPU bindings are not built.
type Backend struct{}

// New always fails with ErrUnavailable on this platform.
func New() (*Backend, error) {
	return nil, ErrUnavailable
}

// Release is a no-op.
func (b *Backend) Release() {}

// Name returns the backend name.
func (b *Backend) Name() string { return "WebGPU (unavailable)" }

// Kernels returns no kernels.
func (b *Backend) Kernels() map[ir.OpType]framework.Kernel { return nil }
