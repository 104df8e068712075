package cpu

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/gonum/blas/blas64"

	"github.com/born-ml/kiln/internal/framework"
	"github.com/born-ml/kiln/internal/ir"
	"github.com/born-ml/kiln/internal/parallel"
	"github.com/born-ml/kiln/internal/tensor"
)

// matmulPlan describes a (batched) product of an m×k and a k×n matrix.
// transX/transY mean the operand is stored with its last two axes swapped.
// An operand without batch axes is shared by every batch.
type matmulPlan struct {
	batch              int
	m, k, n            int
	transX, transY     bool
	xBatched, yBatched bool
}

// planMatmul follows ir.MatmulShape: a rank-1 x is a row vector and a
// rank-1 y a column vector, and transposes only apply from rank 2.
func planMatmul(op ir.OpType, x, y, out tensor.Shape, transX, transY bool) (matmulPlan, error) {
	want, err := ir.MatmulShape(op, x, y, transX, transY)
	if err != nil {
		return matmulPlan{}, err
	}
	if !want.Equal(out) {
		return matmulPlan{}, fmt.Errorf("%s: output is %v, want %v", op, out, want)
	}

	xs, ys := x, y
	if x.Rank() == 1 {
		xs, transX = tensor.Shape{1, x[0]}, false
	}
	if y.Rank() == 1 {
		ys, transY = tensor.Shape{y[0], 1}, false
	}
	rx, ry := xs.Rank(), ys.Rank()

	p := matmulPlan{batch: 1, transX: transX, transY: transY, xBatched: rx > 2, yBatched: ry > 2}
	p.m, p.k = xs[rx-2], xs[rx-1]
	if transX {
		p.m, p.k = p.k, p.m
	}
	p.n = ys[ry-1]
	if transY {
		p.n = ys[ry-2]
	}
	switch {
	case p.xBatched:
		p.batch = tensor.Shape(xs[:rx-2]).NumElements()
	case p.yBatched:
		p.batch = tensor.Shape(ys[:ry-2]).NumElements()
	}
	return p, nil
}

// offsets returns where batch b starts in x, y and the output.
func (p matmulPlan) offsets(b int) (x, y, c int) {
	if p.xBatched {
		x = b * p.m * p.k
	}
	if p.yBatched {
		y = b * p.k * p.n
	}
	return x, y, b * p.m * p.n
}

func (p matmulPlan) empty() bool {
	return p.batch == 0 || p.m == 0 || p.n == 0
}

func blasTrans(t bool) blas.Transpose {
	if t {
		return blas.Trans
	}
	return blas.NoTrans
}

func (cpu *Backend) matmul(args *framework.KernelArgs) error {
	ins, out, err := operands(ir.OpMatmul, args, 2)
	if err != nil {
		return err
	}
	transX, err := args.Attrs.Bool(ir.AttrTransX, false)
	if err != nil {
		return err
	}
	transY, err := args.Attrs.Bool(ir.AttrTransY, false)
	if err != nil {
		return err
	}
	p, err := planMatmul(ir.OpMatmul, ins[0].Shape(), ins[1].Shape(), out.Shape(), transX, transY)
	if err != nil {
		return err
	}
	return promoted(ins, out, func(ins []*tensor.RawTensor, out *tensor.RawTensor) error {
		return cpu.runGemm(ir.OpMatmul, p, 1, 0, ins[0], ins[1], out)
	})
}

// gemm computes alpha*(a@b) + beta*bias. The bias is either shaped like
// the output or a row repeated over it.
func (cpu *Backend) gemm(args *framework.KernelArgs) error {
	ins, out, err := operands(ir.OpGemm, args, 3)
	if err != nil {
		return err
	}
	transA, err := args.Attrs.Bool(ir.AttrTransA, false)
	if err != nil {
		return err
	}
	transB, err := args.Attrs.Bool(ir.AttrTransB, false)
	if err != nil {
		return err
	}
	alpha, err := args.Attrs.Float(ir.AttrAlpha, 1)
	if err != nil {
		return err
	}
	beta, err := args.Attrs.Float(ir.AttrBeta, 1)
	if err != nil {
		return err
	}
	p, err := planMatmul(ir.OpGemm, ins[0].Shape(), ins[1].Shape(), out.Shape(), transA, transB)
	if err != nil {
		return err
	}
	bias := ins[2]
	if bias.DType() != out.DType() || !ir.GemmBiasCompatible(out.Shape(), bias.Shape()) {
		return fmt.Errorf("gemm: bias %s%v does not fit output %s%v", bias.DType(), bias.Shape(), out.DType(), out.Shape())
	}
	return promoted(ins, out, func(ins []*tensor.RawTensor, out *tensor.RawTensor) error {
		repeatRows(out.Data(), ins[2].Data())
		return cpu.runGemm(ir.OpGemm, p, alpha, beta, ins[0], ins[1], out)
	})
}

// repeatRows tiles src over dst.
func repeatRows(dst, src []byte) {
	if len(src) == 0 {
		return
	}
	for off := 0; off < len(dst); off += len(src) {
		copy(dst[off:], src)
	}
}

// runGemm computes out = alpha*(x@y) + beta*out.
func (cpu *Backend) runGemm(op ir.OpType, p matmulPlan, alpha, beta float64, x, y, out *tensor.RawTensor) error {
	if x.DType() != out.DType() || y.DType() != out.DType() {
		return fmt.Errorf("%s: operands are %s and %s, output is %s", op, x.DType(), y.DType(), out.DType())
	}
	switch out.DType() {
	case tensor.Float32:
		gemmFloat32(cpu.cfg, p, float32(alpha), float32(beta), out.AsFloat32(), x.AsFloat32(), y.AsFloat32())
	case tensor.Float64:
		gemmFloat64(cpu.cfg, p, alpha, beta, out.AsFloat64(), x.AsFloat64(), y.AsFloat64())
	case tensor.Int32:
		gemmNaive(cpu.cfg, p, alpha, beta, out.AsInt32(), x.AsInt32(), y.AsInt32())
	case tensor.Int64:
		gemmNaive(cpu.cfg, p, alpha, beta, out.AsInt64(), x.AsInt64(), y.AsInt64())
	case tensor.Uint8:
		gemmNaive(cpu.cfg, p, alpha, beta, out.AsUint8(), x.AsUint8(), y.AsUint8())
	default:
		return unsupported(op, out.DType())
	}
	return nil
}

// general32 views rows×cols of data, stored transposed when trans is set.
func general32(data []float32, rows, cols int, trans bool) blas32.General {
	if trans {
		rows, cols = cols, rows
	}
	return blas32.General{Rows: rows, Cols: cols, Stride: cols, Data: data[:rows*cols]}
}

func general64(data []float64, rows, cols int, trans bool) blas64.General {
	if trans {
		rows, cols = cols, rows
	}
	return blas64.General{Rows: rows, Cols: cols, Stride: cols, Data: data[:rows*cols]}
}

func gemmFloat32(cfg parallel.Config, p matmulPlan, alpha, beta float32, c, x, y []float32) {
	if p.empty() {
		return
	}
	if p.k == 0 {
		scaleOutput(c, float64(beta))
		return
	}
	parallel.ForBatch(p.batch, func(b int) {
		xo, yo, co := p.offsets(b)
		blas32.Gemm(blasTrans(p.transX), blasTrans(p.transY), alpha,
			general32(x[xo:], p.m, p.k, p.transX),
			general32(y[yo:], p.k, p.n, p.transY),
			beta,
			blas32.General{Rows: p.m, Cols: p.n, Stride: p.n, Data: c[co : co+p.m*p.n]})
	}, cfg)
}

func gemmFloat64(cfg parallel.Config, p matmulPlan, alpha, beta float64, c, x, y []float64) {
	if p.empty() {
		return
	}
	if p.k == 0 {
		scaleOutput(c, beta)
		return
	}
	parallel.ForBatch(p.batch, func(b int) {
		xo, yo, co := p.offsets(b)
		blas64.Gemm(blasTrans(p.transX), blasTrans(p.transY), alpha,
			general64(x[xo:], p.m, p.k, p.transX),
			general64(y[yo:], p.k, p.n, p.transY),
			beta,
			blas64.General{Rows: p.m, Cols: p.n, Stride: p.n, Data: c[co : co+p.m*p.n]})
	}, cfg)
}

// gemmNaive is the integer path. Accumulation happens in T, so it wraps
// like the element type does.
func gemmNaive[T number](cfg parallel.Config, p matmulPlan, alpha, beta float64, c, x, y []T) {
	if p.empty() {
		return
	}
	exact := alpha == 1 && beta == 0
	parallel.ForBatch(p.batch, func(b int) {
		xo, yo, co := p.offsets(b)
		xm, ym, cm := x[xo:], y[yo:], c[co:co+p.m*p.n]
		for i := 0; i < p.m; i++ {
			for j := 0; j < p.n; j++ {
				var acc T
				for l := 0; l < p.k; l++ {
					acc += at(xm, i, l, p.m, p.k, p.transX) * at(ym, l, j, p.k, p.n, p.transY)
				}
				if exact {
					cm[i*p.n+j] = acc
				} else {
					cm[i*p.n+j] = T(alpha*float64(acc) + beta*float64(cm[i*p.n+j]))
				}
			}
		}
	}, cfg)
}

// at reads element (r, c) of a rows×cols matrix, stored transposed when trans is set.
func at[T number](d []T, r, c, rows, cols int, trans bool) T {
	if trans {
		return d[c*rows+r]
	}
	return d[r*cols+c]
}

func scaleOutput[T number](c []T, beta float64) {
	for i, v := range c {
		if beta == 0 {
			c[i] = 0
		} else {
			c[i] = T(beta * float64(v))
		}
	}
}
