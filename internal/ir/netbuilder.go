package ir

import "github.com/born-ml/kiln/internal/tensor"

// NetOps is the capability set NetBuilder adds on top of Ops.
type NetOps interface {
	Relu(x Variable) (Variable, error)
	Scale(x Variable, scale, bias float64, biasAfterScale bool) (Variable, error)
	Reshape(x Variable, shape []int) (Variable, error)
	FillConstant(shape tensor.Shape, value float64, dtype tensor.DataType) (Variable, error)
}

// NetBuilder is the network-level builder flavour: the base vocabulary
// plus activation and constant helpers used by model translators.
type NetBuilder struct {
	*Builder
}

var (
	_ Ops    = (*NetBuilder)(nil)
	_ NetOps = (*NetBuilder)(nil)
)

// NewNetBuilder returns an empty network builder.
func NewNetBuilder(name string) *NetBuilder {
	return &NetBuilder{Builder: NewBuilder(name)}
}

// Relu emits max(x, 0).
func (b *NetBuilder) Relu(x Variable) (Variable, error) {
	return b.emitOne(OpRelu, []Variable{x}, nil)
}

// Scale emits x*scale + bias, or (x+bias)*scale when biasAfterScale is false.
func (b *NetBuilder) Scale(x Variable, scale, bias float64, biasAfterScale bool) (Variable, error) {
	return b.emitOne(OpScale, []Variable{x}, Attrs{
		AttrScale:          FloatAttr(scale),
		AttrBias:           FloatAttr(bias),
		AttrBiasAfterScale: BoolAttr(biasAfterScale),
	})
}

// Reshape changes the shape of x. One -1 entry is inferred and 0 copies
// the input dimension at that index.
func (b *NetBuilder) Reshape(x Variable, shape []int) (Variable, error) {
	return b.emitOne(OpReshape, []Variable{x}, Attrs{AttrShape: IntsAttr(shape)})
}

// FillConstant emits a tensor of the given shape filled with value.
func (b *NetBuilder) FillConstant(shape tensor.Shape, value float64, dtype tensor.DataType) (Variable, error) {
	return b.emitOne(OpFillConstant, nil, Attrs{
		AttrShape: IntsAttr(shape),
		AttrValue: FloatAttr(value),
		AttrDType: StringAttr(dtype.String()),
	})
}
