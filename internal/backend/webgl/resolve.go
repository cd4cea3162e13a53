package webgl

import (
	"github.com/born-ml/onnxgl/internal/onnx"
	"github.com/born-ml/onnxgl/internal/tensor"
)

// resolveRule maps an operator type of a domain and opset range to the
// factory of its implementation. maxOpset 0 leaves the range open.
type resolveRule struct {
	opType   string
	domain   string
	minOpset int
	maxOpset int
	factory  func(node *onnx.Node, opset int) onnx.Operator
}

func (r resolveRule) matches(opType, domain string, opset int) bool {
	if r.opType != opType {
		return false
	}
	if r.domain != domain && !(isDefaultDomain(r.domain) && isDefaultDomain(domain)) {
		return false
	}
	if opset == 0 {
		return true
	}
	return opset >= r.minOpset && (r.maxOpset == 0 || opset <= r.maxOpset)
}

func unary(name string, types []tensor.DataType) func(*onnx.Node, int) onnx.Operator {
	return func(*onnx.Node, int) onnx.Operator { return newUnaryOp(name, types) }
}

func binary(name string) func(*onnx.Node, int) onnx.Operator {
	return func(*onnx.Node, int) onnx.Operator { return newBinaryOp(name) }
}

func reduce(name string) func(*onnx.Node, int) onnx.Operator {
	return func(*onnx.Node, int) onnx.Operator { return newReduceOp(name) }
}

func pool(name string, average, global bool) func(*onnx.Node, int) onnx.Operator {
	return func(*onnx.Node, int) onnx.Operator { return newPoolOp(name, average, global) }
}

func simple[T onnx.Operator](ctor func() T) func(*onnx.Node, int) onnx.Operator {
	return func(*onnx.Node, int) onnx.Operator { return ctor() }
}

func versioned[T onnx.Operator](ctor func(opset int) T) func(*onnx.Node, int) onnx.Operator {
	return func(_ *onnx.Node, opset int) onnx.Operator { return ctor(opset) }
}

// resolveRules is the operator set of the backend.
var resolveRules = []resolveRule{
	{"Abs", "", 6, 0, unary("Abs", numberTypes)},
	{"Acos", "", 7, 0, unary("Acos", floatTypes)},
	{"Add", "", 7, 0, binary("Add")},
	{"And", "", 7, 0, binary("And")},
	{"Asin", "", 7, 0, unary("Asin", floatTypes)},
	{"Atan", "", 7, 0, unary("Atan", floatTypes)},
	{"AveragePool", "", 7, 0, pool("AveragePool", true, false)},
	{"BatchNormalization", "", 7, 0, simple(newBatchNormOp)},
	{"Ceil", "", 6, 0, unary("Ceil", floatTypes)},
	{"Clip", "", 6, 0, simple(newClipOp)},
	{"Concat", "", 4, 0, simple(newConcatOp)},
	{"Conv", "", 1, 0, simple(newConvOp)},
	{"Cos", "", 7, 0, unary("Cos", floatTypes)},
	{"CumSum", "", 11, 0, simple(newCumSumOp)},
	{"DepthToSpace", "", 1, 0, simple(newDepthToSpaceOp)},
	{"Div", "", 7, 0, binary("Div")},
	{"Dropout", "", 7, 0, func(node *onnx.Node, _ int) onnx.Operator { return newDropoutOp(len(node.Outputs)) }},
	{"Einsum", "", 12, 0, simple(newEinsumOp)},
	{"Elu", "", 6, 0, simple(newEluOp)},
	{"Equal", "", 7, 0, binary("Equal")},
	{"Exp", "", 6, 0, unary("Exp", floatTypes)},
	{"Flatten", "", 1, 0, versioned(newFlattenOp)},
	{"Floor", "", 6, 0, unary("Floor", floatTypes)},
	{"Gather", "", 1, 0, simple(newGatherOp)},
	{"Gemm", "", 7, 0, simple(newGemmOp)},
	{"GlobalAveragePool", "", 1, 0, pool("GlobalAveragePool", true, true)},
	{"GlobalMaxPool", "", 1, 0, pool("GlobalMaxPool", false, true)},
	{"Greater", "", 7, 0, binary("Greater")},
	{"Identity", "", 1, 0, unary("Identity", numericTypes)},
	{"ImageScaler", "", 1, 0, simple(newImageScalerOp)},
	{"LeakyRelu", "", 6, 0, simple(newLeakyReluOp)},
	{"Less", "", 7, 0, binary("Less")},
	{"Log", "", 6, 0, unary("Log", floatTypes)},
	{"LogSoftmax", "", 1, 0, versioned(func(opset int) *softmaxOp { return newSoftmaxOp("LogSoftmax", opset) })},
	{"MatMul", "", 1, 0, simple(newMatMulOp)},
	{"MaxPool", "", 1, 0, pool("MaxPool", false, false)},
	{"Mul", "", 7, 0, binary("Mul")},
	{"Neg", "", 6, 0, unary("Neg", numberTypes)},
	{"Not", "", 1, 0, unary("Not", boolTypes)},
	{"Or", "", 7, 0, binary("Or")},
	{"Pad", "", 2, 0, versioned(newPadOp)},
	{"Pow", "", 7, 0, binary("Pow")},
	{"PRelu", "", 7, 0, binary("PRelu")},
	{"ReduceLogSum", "", 1, 17, reduce("ReduceLogSum")},
	{"ReduceMax", "", 1, 17, reduce("ReduceMax")},
	{"ReduceMean", "", 1, 17, reduce("ReduceMean")},
	{"ReduceMin", "", 1, 17, reduce("ReduceMin")},
	{"ReduceProd", "", 1, 17, reduce("ReduceProd")},
	{"ReduceSum", "", 1, 12, reduce("ReduceSum")},
	{"ReduceSumSquare", "", 1, 17, reduce("ReduceSumSquare")},
	{"Relu", "", 6, 0, unary("Relu", floatTypes)},
	{"Reshape", "", 1, 0, versioned(newReshapeOp)},
	{"Resize", "", 10, 17, versioned(newResizeOp)},
	{"Scatter", "", 9, 10, func(*onnx.Node, int) onnx.Operator { return newScatterOp("Scatter") }},
	{"ScatterElements", "", 11, 0, func(*onnx.Node, int) onnx.Operator { return newScatterOp("ScatterElements") }},
	{"Sigmoid", "", 6, 0, unary("Sigmoid", floatTypes)},
	{"Sin", "", 7, 0, unary("Sin", floatTypes)},
	{"Slice", "", 1, 0, versioned(newSliceOp)},
	{"Softmax", "", 1, 0, versioned(func(opset int) *softmaxOp { return newSoftmaxOp("Softmax", opset) })},
	{"Split", "", 2, 0, func(node *onnx.Node, opset int) onnx.Operator { return newSplitOp(len(node.Outputs), opset) }},
	{"Sqrt", "", 6, 0, unary("Sqrt", floatTypes)},
	{"Squeeze", "", 1, 0, versioned(newSqueezeOp)},
	{"Sub", "", 7, 0, binary("Sub")},
	{"Sum", "", 6, 0, simple(newSumOp)},
	{"Tan", "", 7, 0, unary("Tan", floatTypes)},
	{"Tanh", "", 6, 0, unary("Tanh", floatTypes)},
	{"Tile", "", 6, 0, simple(newTileOp)},
	{"Transpose", "", 1, 0, simple(newTransposeOp)},
	{"Unsqueeze", "", 1, 0, versioned(newUnsqueezeOp)},
	{"Upsample", "", 7, 9, versioned(newUpsampleOp)},
	{"Xor", "", 7, 0, binary("Xor")},
}

// lookupRule returns the first rule implementing opType at opset. An opset
// of zero matches any range.
func lookupRule(opType, domain string, opset int) (resolveRule, bool) {
	for _, r := range resolveRules {
		if r.matches(opType, domain, opset) {
			return r, true
		}
	}
	return resolveRule{}, false
}

// SupportedOperators lists the operator types the backend resolves, in
// table order, with their opset ranges.
func SupportedOperators() []OperatorSupport {
	out := make([]OperatorSupport, len(resolveRules))
	for i, r := range resolveRules {
		out[i] = OperatorSupport{OpType: r.opType, Domain: r.domain, MinOpset: r.minOpset, MaxOpset: r.maxOpset}
	}
	return out
}

// OperatorSupport describes one resolve rule.
type OperatorSupport struct {
	OpType   string
	Domain   string
	MinOpset int
	MaxOpset int // 0 when open ended
}
