package webgl

import (
	"fmt"
	"strings"

	"github.com/born-ml/onnxgl/internal/onnx"
	"github.com/born-ml/onnxgl/internal/tensor"
)

type binaryKernel struct {
	types []tensor.DataType
	// body computes the result from floats a and b.
	body string
	// logical kernels produce Bool results; others keep the input type.
	logical bool
}

var binaryKernels = map[string]binaryKernel{
	"Add": {types: numberTypes, body: "return a + b;"},
	"Sub": {types: numberTypes, body: "return a - b;"},
	"Mul": {types: numberTypes, body: "return a * b;"},
	"Div": {types: numberTypes, body: "return a / b;"},
	"Pow": {types: floatTypes, body: "if (a < 0.0 && floor(b) == b) {\n" +
		"    float r = pow(-a, b);\n" +
		"    return mod(b, 2.0) == 0.0 ? r : -r;\n" +
		"  }\n" +
		"  return pow(a, b);"},
	"PRelu":   {types: floatTypes, body: "return a < 0.0 ? a * b : a;"},
	"Equal":   {types: numericTypes, body: "return float(a == b);", logical: true},
	"Greater": {types: numberTypes, body: "return float(a > b);", logical: true},
	"Less":    {types: numberTypes, body: "return float(a < b);", logical: true},
	"And":     {types: boolTypes, body: "return float(a > 0.5 && b > 0.5);", logical: true},
	"Or":      {types: boolTypes, body: "return float(a > 0.5 || b > 0.5);", logical: true},
	"Xor":     {types: boolTypes, body: "return float((a > 0.5) ^^ (b > 0.5));", logical: true},
}

// intDivBody truncates the quotient toward zero.
const intDivBody = "float q = a / b;\n  return q < 0.0 ? ceil(q) : floor(q);"

// binaryOp combines two tensors element-wise with numpy broadcasting.
type binaryOp struct {
	opBase
	kernel binaryKernel
}

func newBinaryOp(name string) *binaryOp {
	return &binaryOp{opBase: newOpBase(name), kernel: binaryKernels[name]}
}

func (o *binaryOp) Initialize(onnx.Attributes) error { return nil }

func (o *binaryOp) CheckInputs(inputs []*tensor.Tensor) error {
	if err := checkArity(o.name, inputs, 2, 2); err != nil {
		return err
	}
	for i := range inputs {
		if err := checkType(o.name, inputs, i, o.kernel.types); err != nil {
			return err
		}
	}
	return checkSameType(o.name, inputs)
}

func (o *binaryOp) Run(h onnx.InferenceHandler, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	return runShader(o, h, inputs)
}

func broadcastShape(op string, inputs []*tensor.Tensor) (tensor.Shape, error) {
	out := inputs[0].Dims().Clone()
	for _, t := range inputs[1:] {
		s, _, err := tensor.BroadcastShapes(out, t.Dims())
		if err != nil {
			return nil, &ShapeMismatchError{Op: op, Shapes: []tensor.Shape{out, t.Dims()}, Reason: err.Error()}
		}
		out = s
	}
	return out, nil
}

// broadcastFetch renders the statements reading each input at the
// broadcast position of the output indices into float variables.
func broadcastFetch(b *strings.Builder, inputs []*tensor.Tensor, vars []string) {
	for i, t := range inputs {
		s := samplerName(i)
		fmt.Fprintf(b, "  int i%s[%d];\n  bcastIndices_%s(indices, i%s);\n  float %s = _%s(i%s);\n",
			s, shaderRank(t.Dims()), s, s, vars[i], s, s)
	}
}

func (o *binaryOp) CreateProgramInfos(h *InferenceHandler, inputs []*tensor.Tensor) ([]*ProgramInfo, error) {
	out, err := broadcastShape(o.name, inputs)
	if err != nil {
		return nil, err
	}
	body := o.kernel.body
	if o.name == "Div" && inputs[0].DType() == tensor.Int32 {
		body = intDivBody
	}

	var b strings.Builder
	fmt.Fprintf(&b, "float process(int indices[%d]) {\n", shaderRank(out))
	broadcastFetch(&b, inputs, []string{"a", "b"})
	fmt.Fprintf(&b, "  %s\n}\n", body)

	info, err := h.elementwiseInfo(o.name, inputs, out, b.String())
	if err != nil {
		return nil, err
	}
	return []*ProgramInfo{info}, nil
}

func (o *binaryOp) CreateRunData(h *InferenceHandler, infos []*ProgramInfo, inputs []*tensor.Tensor) ([]*RunData, error) {
	dtype := inputs[0].DType()
	if o.kernel.logical {
		dtype = tensor.Bool
	}
	return h.singlePass(infos[0], inputs, dtype, nil)
}

// sumOp adds any number of broadcast inputs.
type sumOp struct {
	opBase
}

func newSumOp() *sumOp { return &sumOp{opBase: newOpBase("Sum")} }

func (o *sumOp) Initialize(onnx.Attributes) error { return nil }

func (o *sumOp) CheckInputs(inputs []*tensor.Tensor) error {
	if err := checkArity(o.name, inputs, 1, -1); err != nil {
		return err
	}
	for i, t := range inputs {
		if t == nil {
			return fmt.Errorf("%s: input %d is missing", o.name, i)
		}
		if err := checkType(o.name, inputs, i, floatTypes); err != nil {
			return err
		}
	}
	return nil
}

func (o *sumOp) Run(h onnx.InferenceHandler, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	return runShader(o, h, inputs)
}

func (o *sumOp) CreateProgramInfos(h *InferenceHandler, inputs []*tensor.Tensor) ([]*ProgramInfo, error) {
	out, err := broadcastShape(o.name, inputs)
	if err != nil {
		return nil, err
	}
	vars := make([]string, len(inputs))
	for i := range vars {
		vars[i] = fmt.Sprintf("v%d", i)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "float process(int indices[%d]) {\n", shaderRank(out))
	broadcastFetch(&b, inputs, vars)
	fmt.Fprintf(&b, "  return %s;\n}\n", strings.Join(vars, " + "))

	info, err := h.elementwiseInfo(o.name, inputs, out, b.String())
	if err != nil {
		return nil, err
	}
	return []*ProgramInfo{info}, nil
}

func (o *sumOp) CreateRunData(h *InferenceHandler, infos []*ProgramInfo, inputs []*tensor.Tensor) ([]*RunData, error) {
	return h.singlePass(infos[0], inputs, tensor.Float32, nil)
}
