// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package cpu

import (
	"github.com/born-ml/kiln/framework"
	internalcpu "github.com/born-ml/kiln/internal/backend/cpu"
	"github.com/born-ml/kiln/internal/parallel"
)

// Backend holds the host kernels.
type Backend = internalcpu.Backend

// Kernel errors.
var (
	ErrDivisionByZero   = internalcpu.ErrDivisionByZero
	ErrUnsupportedDType = internalcpu.ErrUnsupportedDType
)

// New creates a CPU backend configured from KILN_NUM_THREADS and
// KILN_NO_PARALLEL.
//
// Example:
//
//	reg := framework.NewKernelRegistry()
//	if err := cpu.New().Register(reg); err != nil {
//	    return err
//	}
func New() *Backend {
	return internalcpu.New(parallel.DefaultConfig())
}

// Register installs the host kernels into reg. Importing this package
// already installs them into framework.DefaultKernels.
func Register(reg *framework.KernelRegistry) error {
	return internalcpu.Register(reg)
}
