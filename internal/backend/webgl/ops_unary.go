package webgl

import (
	"fmt"
	"math"
	"strings"

	"github.com/born-ml/onnxgl/internal/onnx"
	"github.com/born-ml/onnxgl/internal/tensor"
)

// unaryBodies are the statements computing the result from float x.
var unaryBodies = map[string]string{
	"Abs":      "return abs(x);",
	"Neg":      "return -x;",
	"Acos":     "return acos(x);",
	"Asin":     "return asin(x);",
	"Atan":     "return atan(x);",
	"Ceil":     "return ceil(x);",
	"Cos":      "return cos(x);",
	"Exp":      "return exp(x);",
	"Floor":    "return floor(x);",
	"Log":      "return log(x);",
	"Not":      "return 1.0 - step(0.5, x);",
	"Relu":     "return max(x, 0.0);",
	"Sigmoid":  "return 1.0 / (1.0 + exp(-x));",
	"Sin":      "return sin(x);",
	"Sqrt":     "return sqrt(x);",
	"Tan":      "return tan(x);",
	"Tanh":     "float e = exp(-2.0 * abs(x));\n  return sign(x) * (1.0 - e) / (1.0 + e);",
	"Identity": "return x;",
}

// unaryOp applies a function to every element.
type unaryOp struct {
	opBase
	types []tensor.DataType
	body  string

	uniforms func(inputs []*tensor.Tensor) (map[string]any, error)
	decls    string
}

func newUnaryOp(name string, types []tensor.DataType) *unaryOp {
	return &unaryOp{opBase: newOpBase(name), types: types, body: unaryBodies[name]}
}

func (o *unaryOp) Initialize(onnx.Attributes) error { return nil }

func (o *unaryOp) CheckInputs(inputs []*tensor.Tensor) error {
	if err := checkArity(o.name, inputs, 1, 1); err != nil {
		return err
	}
	return checkType(o.name, inputs, 0, o.types)
}

func (o *unaryOp) Run(h onnx.InferenceHandler, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	return runShader(o, h, inputs)
}

func (o *unaryOp) source(rank int) string {
	return fmt.Sprintf("%s\nfloat process(int indices[%d]) {\n  float x = _A(indices);\n  %s\n}\n", o.decls, rank, o.body)
}

func (o *unaryOp) CreateProgramInfos(h *InferenceHandler, inputs []*tensor.Tensor) ([]*ProgramInfo, error) {
	x := inputs[0]
	info, err := h.elementwiseInfo(o.name, inputs[:1], x.Dims(), o.source(shaderRank(x.Dims())))
	if err != nil {
		return nil, err
	}
	return []*ProgramInfo{info}, nil
}

func (o *unaryOp) CreateRunData(h *InferenceHandler, infos []*ProgramInfo, inputs []*tensor.Tensor) ([]*RunData, error) {
	var uniforms map[string]any
	if o.uniforms != nil {
		var err error
		if uniforms, err = o.uniforms(inputs); err != nil {
			return nil, err
		}
	}
	return h.singlePass(infos[0], inputs[:1], inputs[0].DType(), uniforms)
}

// eluOp is Elu with its alpha attribute.
type eluOp struct{ *unaryOp }

func newEluOp() *eluOp { return &eluOp{newUnaryOp("Elu", floatTypes)} }

func (o *eluOp) Initialize(attrs onnx.Attributes) error {
	alpha := glslFloat(attrs.Float("alpha", 1.0))
	o.body = "return x >= 0.0 ? x : " + alpha + " * (exp(x) - 1.0);"
	return nil
}

// leakyReluOp is LeakyRelu with its alpha attribute.
type leakyReluOp struct{ *unaryOp }

func newLeakyReluOp() *leakyReluOp { return &leakyReluOp{newUnaryOp("LeakyRelu", floatTypes)} }

func (o *leakyReluOp) Initialize(attrs onnx.Attributes) error {
	o.body = "return x < 0.0 ? " + glslFloat(attrs.Float("alpha", 0.01)) + " * x : x;"
	return nil
}

// clipOp clamps to [min, max]. Before opset 11 the bounds are attributes,
// later they are optional scalar inputs.
type clipOp struct {
	*unaryOp
	min, max float32
}

func newClipOp() *clipOp {
	o := &clipOp{unaryOp: newUnaryOp("Clip", floatTypes)}
	o.decls = "uniform float clipMin;\nuniform float clipMax;"
	o.body = "return clamp(x, clipMin, clipMax);"
	o.uniforms = o.bounds
	return o
}

func (o *clipOp) Initialize(attrs onnx.Attributes) error {
	o.min = attrs.Float("min", -math.MaxFloat32)
	o.max = attrs.Float("max", math.MaxFloat32)
	return nil
}

func (o *clipOp) CheckInputs(inputs []*tensor.Tensor) error {
	if err := checkArity(o.name, inputs, 1, 3); err != nil {
		return err
	}
	for i := range inputs {
		if err := checkType(o.name, inputs, i, floatTypes); err != nil {
			return err
		}
	}
	return nil
}

func (o *clipOp) bounds(inputs []*tensor.Tensor) (map[string]any, error) {
	lo, hi := o.min, o.max
	for i, dst := range []*float32{&lo, &hi} {
		t := optional(inputs, i+1)
		if t == nil {
			continue
		}
		v, err := t.Float32s()
		if err != nil {
			return nil, err
		}
		if len(v) != 1 {
			return nil, &ShapeMismatchError{Op: o.name, Shapes: []tensor.Shape{t.Dims()}, Reason: "bound must be a scalar"}
		}
		*dst = v[0]
	}
	return map[string]any{"clipMin": lo, "clipMax": hi}, nil
}

// imageScalerOp computes scale * x + bias[channel] on NCHW input.
type imageScalerOp struct {
	*unaryOp
	scale float32
	bias  []float32
}

func newImageScalerOp() *imageScalerOp {
	return &imageScalerOp{unaryOp: newUnaryOp("ImageScaler", floatTypes)}
}

func (o *imageScalerOp) Initialize(attrs onnx.Attributes) error {
	o.scale = attrs.Float("scale", 1.0)
	o.bias = attrs.Floats("bias", nil)
	if len(o.bias) == 0 {
		return &UnsupportedAttributeError{Op: o.name, Attribute: "bias", Value: o.bias}
	}
	return nil
}

func (o *imageScalerOp) CheckInputs(inputs []*tensor.Tensor) error {
	if err := o.unaryOp.CheckInputs(inputs); err != nil {
		return err
	}
	x := inputs[0].Dims()
	if len(x) != 4 || x[1] != len(o.bias) {
		return &ShapeMismatchError{Op: o.name, Shapes: []tensor.Shape{x}, Reason: fmt.Sprintf("want NCHW input with %d channels", len(o.bias))}
	}
	return nil
}

func (o *imageScalerOp) Run(h onnx.InferenceHandler, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	return runShader(o, h, inputs)
}

func (o *imageScalerOp) CreateProgramInfos(h *InferenceHandler, inputs []*tensor.Tensor) ([]*ProgramInfo, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "uniform float bias[%d];\n\n", len(o.bias))
	fmt.Fprintf(&b, "float getBias(int channel) {\n  for (int i = 0; i < %d; i++) {\n    if (i == channel) {\n      return bias[i];\n    }\n  }\n  return 0.0;\n}\n\n", len(o.bias))
	fmt.Fprintf(&b, "float process(int indices[4]) {\n  return _A(indices) * %s + getBias(indices[1]);\n}\n", glslFloat(o.scale))

	info, err := h.elementwiseInfo(o.name, inputs[:1], inputs[0].Dims(), b.String())
	if err != nil {
		return nil, err
	}
	return []*ProgramInfo{info}, nil
}

func (o *imageScalerOp) CreateRunData(h *InferenceHandler, infos []*ProgramInfo, inputs []*tensor.Tensor) ([]*RunData, error) {
	return h.singlePass(infos[0], inputs[:1], tensor.Float32, map[string]any{"bias": o.bias})
}
