package webgl

import (
	"fmt"
	"strings"

	"github.com/born-ml/onnxgl/internal/onnx"
	"github.com/born-ml/onnxgl/internal/tensor"
)

// softmaxOp computes Softmax or LogSoftmax over the input coerced to a
// matrix at axis. It runs three passes: row maximum, row sum of shifted
// exponentials, then the normalized output.
//
// From opset 13 the axis is a single dimension. Any axis but the last one is
// swapped to the last position, normalized there and swapped back.
type softmaxOp struct {
	opBase
	log   bool
	opset int
	axis  int

	swapIn, swapOut *transposeOp
	inner           *softmaxOp
}

func newSoftmaxOp(name string, opset int) *softmaxOp {
	return &softmaxOp{opBase: newOpBase(name), log: name == "LogSoftmax", opset: opset}
}

func (o *softmaxOp) Initialize(attrs onnx.Attributes) error {
	def := int64(1)
	if o.opset >= 13 {
		def = -1
	}
	o.axis = int(attrs.Int("axis", def))
	return nil
}

func (o *softmaxOp) CheckInputs(inputs []*tensor.Tensor) error {
	if err := checkArity(o.name, inputs, 1, 1); err != nil {
		return err
	}
	return checkType(o.name, inputs, 0, floatTypes)
}

func (o *softmaxOp) Run(h onnx.InferenceHandler, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	rank := inputs[0].Rank()
	if o.opset < 13 || rank == 0 {
		return runShader(o, h, inputs)
	}
	axis, err := normalizeAxis(o.axis, rank)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", o.name, err)
	}
	if axis == rank-1 {
		return runShader(o, h, inputs)
	}
	return o.runSwapped(h, inputs[0], axis)
}

func (o *softmaxOp) runSwapped(h onnx.InferenceHandler, x *tensor.Tensor, axis int) ([]*tensor.Tensor, error) {
	if o.inner == nil {
		o.swapIn, o.swapOut = newTransposeOp(), newTransposeOp()
		o.inner = newSoftmaxOp(o.name, o.opset)
		o.inner.axis = -1
	}
	rank := x.Rank()
	perm := make([]int, rank)
	for i := range perm {
		perm[i] = i
	}
	perm[axis], perm[rank-1] = rank-1, axis
	o.swapIn.perm, o.swapOut.perm = perm, perm

	outs, err := runShader(o.swapIn, h, []*tensor.Tensor{x})
	if err != nil {
		return nil, err
	}
	if outs, err = runShader(o.inner, h, outs); err != nil {
		return nil, err
	}
	return runShader(o.swapOut, h, outs)
}

// rows splits shape into N rows of D elements at the operator axis.
func (o *softmaxOp) rows(shape tensor.Shape) (n, d int, err error) {
	rank := len(shape)
	if rank == 0 {
		return 1, 1, nil
	}
	axis, err := normalizeAxis(o.axis, rank)
	if err != nil {
		return 0, 0, fmt.Errorf("%s: %w", o.name, err)
	}
	if o.opset >= 13 && axis != rank-1 {
		return 0, 0, &UnsupportedAttributeError{Op: o.name, Attribute: "axis", Value: o.axis}
	}
	return product(shape[:axis]), product(shape[axis:]), nil
}

func (o *softmaxOp) CreateProgramInfos(h *InferenceHandler, inputs []*tensor.Tensor) ([]*ProgramInfo, error) {
	shape := inputs[0].Dims()
	n, d, err := o.rows(shape)
	if err != nil {
		return nil, err
	}
	xl, err := h.inputLayouts(inputs)
	if err != nil {
		return nil, err
	}
	rowLayout, err := h.CreateTextureLayout(tensor.Shape{n}, 1, nil)
	if err != nil {
		return nil, err
	}
	outLayout, err := h.CreateTextureLayout(shape, 1, nil)
	if err != nil {
		return nil, err
	}
	rank := shaderRank(shape)

	var rowMax strings.Builder
	fmt.Fprintf(&rowMax, "float process(int indices[1]) {\n  int x[%d];\n  float m = -%s;\n", rank, flt32Max)
	fmt.Fprintf(&rowMax, "  for (int i = 0; i < %d; i++) {\n    offsetToIndices_A(indices[0] * %d + i, x);\n", d, d)
	rowMax.WriteString("    m = max(m, _A(x));\n  }\n  return m;\n}\n")

	var sum strings.Builder
	fmt.Fprintf(&sum, "float process(int indices[1]) {\n  int x[%d];\n  float m = _B(indices);\n  float s = 0.0;\n", rank)
	fmt.Fprintf(&sum, "  for (int i = 0; i < %d; i++) {\n    offsetToIndices_A(indices[0] * %d + i, x);\n", d, d)
	sum.WriteString("    s += exp(_A(x) - m);\n  }\n  return s;\n}\n")

	var norm strings.Builder
	fmt.Fprintf(&norm, "float process(int indices[%d]) {\n  int row[1];\n  row[0] = indicesToOffset_A(indices) / %d;\n", rank, d)
	norm.WriteString("  float m = _B(row);\n  float s = _C(row);\n")
	if o.log {
		norm.WriteString("  return _A(indices) - m - log(s);\n}\n")
	} else {
		norm.WriteString("  return exp(_A(indices) - m) / s;\n}\n")
	}

	return []*ProgramInfo{
		{Name: o.name + " (max)", InputLayouts: xl, Samplers: []string{"A"}, OutputLayout: rowLayout, Source: rowMax.String()},
		{Name: o.name + " (sum)", InputLayouts: []*TextureLayout{xl[0], rowLayout}, Samplers: []string{"A", "B"}, OutputLayout: rowLayout, Source: sum.String()},
		{Name: o.name, InputLayouts: []*TextureLayout{xl[0], rowLayout, rowLayout}, Samplers: []string{"A", "B", "C"}, OutputLayout: outLayout, Source: norm.String()},
	}, nil
}

func (o *softmaxOp) CreateRunData(h *InferenceHandler, infos []*ProgramInfo, inputs []*tensor.Tensor) ([]*RunData, error) {
	x, err := h.bindInputs(infos[0], inputs)
	if err != nil {
		return nil, err
	}
	rowMax, err := h.NewScratch(infos[0].OutputLayout)
	if err != nil {
		return nil, err
	}
	rowSum, err := h.NewScratch(infos[1].OutputLayout)
	if err != nil {
		return nil, err
	}
	out, result, err := h.NewOutput(infos[2].OutputLayout, tensor.Float32)
	if err != nil {
		return nil, err
	}
	return []*RunData{
		{Inputs: x, Output: rowMax},
		{Inputs: []*TextureData{x[0], rowMax}, Output: rowSum},
		{Inputs: []*TextureData{x[0], rowMax, rowSum}, Output: out, Result: result},
	}, nil
}
