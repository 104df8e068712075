package ir

// OpType tags an instruction with its operator.
type OpType string

// Operator vocabulary. The first group is the base builder vocabulary, the
// second the NetBuilder extras, the last group only appears after graph passes.
const (
	OpAdd         OpType = "add"
	OpSub         OpType = "sub"
	OpMul         OpType = "mul"
	OpDiv         OpType = "div"
	OpMax         OpType = "max"
	OpMin         OpType = "min"
	OpConcat      OpType = "concat"
	OpBroadcastTo OpType = "broadcast_to"
	OpMatmul      OpType = "matmul"
	OpTranspose   OpType = "transpose"
	OpSlice       OpType = "slice"

	OpRelu         OpType = "relu"
	OpScale        OpType = "scale"
	OpReshape      OpType = "reshape"
	OpFillConstant OpType = "fill_constant"

	OpGemm             OpType = "gemm"
	OpFusedElementwise OpType = "fused_elementwise"
)

// Attribute names shared by the builder, the passes and the kernels.
const (
	AttrAxis           = "axis"
	AttrOutShape       = "out_shape"
	AttrBroadcastAxes  = "broadcast_axes"
	AttrPerm           = "perm"
	AttrAxes           = "axes"
	AttrStarts         = "starts"
	AttrEnds           = "ends"
	AttrInferFlags     = "infer_flags"
	AttrDecreaseAxis   = "decrease_axis"
	AttrTransX         = "trans_x"
	AttrTransY         = "trans_y"
	AttrTransA         = "trans_a"
	AttrTransB         = "trans_b"
	AttrAlpha          = "alpha"
	AttrBeta           = "beta"
	AttrShape          = "shape"
	AttrValue          = "value"
	AttrDType          = "dtype"
	AttrScale          = "scale"
	AttrBias           = "bias"
	AttrBiasAfterScale = "bias_after_scale"
)

var binaryElementwise = map[OpType]bool{
	OpAdd: true, OpSub: true, OpMul: true, OpDiv: true, OpMax: true, OpMin: true,
}

var unaryElementwise = map[OpType]bool{
	OpRelu: true, OpScale: true,
}

// IsBinaryElementwise reports whether op combines two same-shaped operands element by element.
func IsBinaryElementwise(op OpType) bool { return binaryElementwise[op] }

// IsUnaryElementwise reports whether op maps one operand element by element.
func IsUnaryElementwise(op OpType) bool { return unaryElementwise[op] }

// IsElementwise reports whether op is fusible into a fused_elementwise group.
func IsElementwise(op OpType) bool {
	return binaryElementwise[op] || unaryElementwise[op] || op == OpFusedElementwise
}

// KnownOps lists every operator the shape rules understand.
func KnownOps() []OpType {
	return []OpType{
		OpAdd, OpSub, OpMul, OpDiv, OpMax, OpMin, OpConcat, OpBroadcastTo, OpMatmul,
		OpTranspose, OpSlice, OpRelu, OpScale, OpReshape, OpFillConstant, OpGemm,
		OpFusedElementwise,
	}
}
