// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the pure Go host kernels for compiled kiln programs.
//
// # Overview
//
// Importing the package registers a kernel for every operator of the IR
// vocabulary on the host target:
//   - Elementwise arithmetic and the fused elementwise interpreter
//   - concat, broadcast_to, transpose, slice, reshape, fill_constant
//   - matmul and gemm on gonum BLAS for float32 and float64
//
// float16 arithmetic runs in float32 and rounds back. Integer division
// by zero fails with ErrDivisionByZero.
//
// # Basic Usage
//
//	import (
//	    _ "github.com/born-ml/kiln/backend/cpu"
//	    "github.com/born-ml/kiln/framework"
//	)
//
//	func main() {
//	    prog, scope, err := framework.Compile(p, framework.DefaultHostTarget())
//	    ...
//	}
//
// # Thread Safety
//
// Kernels keep no state between calls. Loops are split across goroutines
// according to KILN_NUM_THREADS.
package cpu
