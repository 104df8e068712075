// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu runs a float32 subset of the operators on a WebGPU
// adapter: add, sub, mul, div, 2D matmul and 2D transpose.
//
// Example:
//
//	reg := framework.NewKernelRegistry()
//	b, err := webgpu.Register(reg)
//	if err != nil {
//	    return err // webgpu.ErrUnavailable without an adapter
//	}
//	defer b.Release()
package webgpu

import (
	"github.com/born-ml/kiln/framework"
	"github.com/born-ml/kiln/frontend"
	internalwebgpu "github.com/born-ml/kiln/internal/backend/webgpu"
)

// Backend owns one WebGPU device.
type Backend = internalwebgpu.Backend

// Backend errors.
var (
	ErrUnavailable        = internalwebgpu.ErrUnavailable
	ErrUnsupportedOperand = internalwebgpu.ErrUnsupportedOperand
)

// New opens the default high-performance adapter.
func New() (*Backend, error) {
	return internalwebgpu.New()
}

// Register opens the default adapter and installs its kernels into reg
// under the accelerator target kind.
func Register(reg *framework.KernelRegistry) (*Backend, error) {
	return internalwebgpu.Register(reg)
}

// Ops lists the operators with a device kernel.
func Ops() []frontend.OpType {
	return internalwebgpu.Ops()
}
