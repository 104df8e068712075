package cpu

import (
	"github.com/born-ml/kiln/internal/parallel"
	"github.com/born-ml/kiln/internal/tensor"
)

// computeFlatIndex computes the flat index in the source array for a given output index.
// outStrides: strides of the output shape.
// inStrides: source strides, one per output axis (0 on broadcast axes).
func computeFlatIndex(outIdx int, outStrides, inStrides []int) int {
	flatIdx := 0
	for i := range outStrides {
		coord := outIdx / outStrides[i]
		outIdx %= outStrides[i]
		flatIdx += coord * inStrides[i]
	}
	return flatIdx
}

// gather fills dst, laid out row-major as shape, with elements of src. The
// output element at coordinate c reads src element base + sum(c[d]*strides[d]).
// Transpose, slice and broadcast_to are all gathers with different strides.
func gather(cfg parallel.Config, dst, src []byte, elem int, shape tensor.Shape, strides []int, base int) {
	outStrides := shape.ComputeStrides()
	parallel.ForRange(shape.NumElements(), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			off := (base + computeFlatIndex(i, outStrides, strides)) * elem
			copy(dst[i*elem:(i+1)*elem], src[off:off+elem])
		}
	}, cfg)
}
