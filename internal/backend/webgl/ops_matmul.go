package webgl

import (
	"fmt"
	"strings"

	"github.com/born-ml/onnxgl/internal/onnx"
	"github.com/born-ml/onnxgl/internal/tensor"
)

// matmulShape returns the numpy matmul result shape of two operands of rank
// at least 2, and the shared inner dimension.
func matmulShape(op string, a, b tensor.Shape) (tensor.Shape, int, error) {
	if len(a) < 2 || len(b) < 2 {
		return nil, 0, &ShapeMismatchError{Op: op, Shapes: []tensor.Shape{a, b}, Reason: "operands must have rank 2 or more"}
	}
	k := a[len(a)-1]
	if b[len(b)-2] != k {
		return nil, 0, &ShapeMismatchError{Op: op, Shapes: []tensor.Shape{a, b}, Reason: "inner dimensions differ"}
	}
	batch, _, err := tensor.BroadcastShapes(a[:len(a)-2], b[:len(b)-2])
	if err != nil {
		return nil, 0, &ShapeMismatchError{Op: op, Shapes: []tensor.Shape{a, b}, Reason: err.Error()}
	}
	out := append(batch.Clone(), a[len(a)-2], b[len(b)-1])
	return out, k, nil
}

// matmulSource generates process() for A x B with batch broadcasting.
// The packed variant consumes four values of A per texel fetch along K.
func matmulSource(rankA, rankB, rankOut, k int, packed bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "float process(int indices[%d]) {\n", rankOut)
	fmt.Fprintf(&b, "  int a[%d];\n  int b[%d];\n", rankA, rankB)
	b.WriteString("  bcastMatmulIndices_A(indices, a);\n  bcastMatmulIndices_B(indices, b);\n")
	fmt.Fprintf(&b, "  a[%d] = indices[%d];\n  b[%d] = indices[%d];\n", rankA-2, rankOut-2, rankB-1, rankOut-1)
	b.WriteString("  float value = 0.0;\n")

	if !packed {
		fmt.Fprintf(&b, "  for (int k = 0; k < %d; k++) {\n", k)
		fmt.Fprintf(&b, "    a[%d] = k;\n    b[%d] = k;\n", rankA-1, rankB-2)
		b.WriteString("    value += _A(a) * _B(b);\n  }\n  return value;\n}\n")
		return b.String()
	}

	fmt.Fprintf(&b, "  for (int k = 0; k < %d; k++) {\n", (k+3)/4)
	fmt.Fprintf(&b, "    a[%d] = k * 4;\n    vec4 av = _A_texel(a);\n    vec4 bv = vec4(0.0);\n", rankA-1)
	for lane, ch := range []string{"r", "g", "b", "a"} {
		if lane == 0 {
			fmt.Fprintf(&b, "    b[%d] = k * 4;\n    bv.r = _B(b);\n", rankB-2)
			continue
		}
		fmt.Fprintf(&b, "    if (k * 4 + %d < %d) {\n      b[%d] = k * 4 + %d;\n      bv.%s = _B(b);\n    }\n", lane, k, rankB-2, lane, ch)
	}
	b.WriteString("    value += dot(av, bv);\n  }\n  return value;\n}\n")
	return b.String()
}

// matmulOp multiplies matrices with numpy semantics. One-dimensional
// operands are promoted to matrices through views.
type matmulOp struct {
	opBase
}

func newMatMulOp() *matmulOp { return &matmulOp{opBase: newOpBase("MatMul")} }

func (o *matmulOp) Initialize(onnx.Attributes) error { return nil }

func (o *matmulOp) CheckInputs(inputs []*tensor.Tensor) error {
	if err := checkArity(o.name, inputs, 2, 2); err != nil {
		return err
	}
	for i := range inputs {
		if err := checkType(o.name, inputs, i, floatTypes); err != nil {
			return err
		}
		if inputs[i].Rank() == 0 {
			return &ShapeMismatchError{Op: o.name, Shapes: []tensor.Shape{inputs[0].Dims(), inputs[1].Dims()}, Reason: "scalar operand"}
		}
	}
	return nil
}

func (o *matmulOp) Run(h onnx.InferenceHandler, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	ih, err := handlerOf(h)
	if err != nil {
		return nil, err
	}
	a, b := inputs[0], inputs[1]
	squeezeA, squeezeB := a.Rank() == 1, b.Rank() == 1
	if squeezeA {
		if a, err = ih.View(a, tensor.Shape{1, a.Size()}); err != nil {
			return nil, err
		}
	}
	if squeezeB {
		if b, err = ih.View(b, tensor.Shape{b.Size(), 1}); err != nil {
			return nil, err
		}
	}

	outs, err := ih.Run(o, []*tensor.Tensor{a, b})
	if err != nil || (!squeezeA && !squeezeB) {
		return outs, err
	}

	shape := outs[0].Shape()
	r := len(shape)
	switch {
	case squeezeA && squeezeB:
		shape = shape[:r-2]
	case squeezeA:
		shape = append(shape[:r-2], shape[r-1])
	default:
		shape = shape[:r-1]
	}
	view, err := ih.View(outs[0], shape)
	if err != nil {
		return nil, err
	}
	return []*tensor.Tensor{view}, nil
}

func (o *matmulOp) CreateProgramInfos(h *InferenceHandler, inputs []*tensor.Tensor) ([]*ProgramInfo, error) {
	a, b := inputs[0].Dims(), inputs[1].Dims()
	out, k, err := matmulShape(o.name, a, b)
	if err != nil {
		return nil, err
	}
	packed := h.Packed()

	var layouts []*TextureLayout
	channels := 1
	if packed {
		channels = 4
		layouts = make([]*TextureLayout, 2)
		for i, t := range inputs {
			td, err := h.TextureData(t, true)
			if err != nil {
				return nil, err
			}
			layouts[i] = td.TextureLayout
		}
	} else if layouts, err = h.inputLayouts(inputs); err != nil {
		return nil, err
	}

	outLayout, err := h.CreateTextureLayout(out, channels, nil)
	if err != nil {
		return nil, err
	}
	name := o.name
	if packed {
		name += " (packed)"
	}
	return []*ProgramInfo{{
		Name:         name,
		InputLayouts: layouts,
		Samplers:     []string{"A", "B"},
		OutputLayout: outLayout,
		Source:       matmulSource(len(a), len(b), len(out), k, packed),
	}}, nil
}

func (o *matmulOp) CreateRunData(h *InferenceHandler, infos []*ProgramInfo, inputs []*tensor.Tensor) ([]*RunData, error) {
	return h.singlePass(infos[0], inputs, tensor.Float32, nil)
}

// gemmOp computes alpha * A' * B' + beta * C on matrices.
type gemmOp struct {
	opBase
	alpha, beta    float32
	transA, transB bool
}

func newGemmOp() *gemmOp { return &gemmOp{opBase: newOpBase("Gemm")} }

func (o *gemmOp) Initialize(attrs onnx.Attributes) error {
	o.alpha = attrs.Float("alpha", 1.0)
	o.beta = attrs.Float("beta", 1.0)
	o.transA = attrs.Int("transA", 0) != 0
	o.transB = attrs.Int("transB", 0) != 0
	return nil
}

func (o *gemmOp) CheckInputs(inputs []*tensor.Tensor) error {
	if err := checkArity(o.name, inputs, 2, 3); err != nil {
		return err
	}
	for i := range inputs {
		if err := checkType(o.name, inputs, i, floatTypes); err != nil {
			return err
		}
	}
	if inputs[0].Rank() != 2 || inputs[1].Rank() != 2 {
		return &ShapeMismatchError{Op: o.name, Shapes: []tensor.Shape{inputs[0].Dims(), inputs[1].Dims()}, Reason: "A and B must be matrices"}
	}
	return nil
}

func (o *gemmOp) Run(h onnx.InferenceHandler, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	return runShader(o, h, operands(inputs))
}

// operands drops trailing omitted optional inputs.
func operands(inputs []*tensor.Tensor) []*tensor.Tensor {
	n := len(inputs)
	for n > 0 && inputs[n-1] == nil {
		n--
	}
	return inputs[:n]
}

func (o *gemmOp) dims(a, b tensor.Shape) (m, k, n int, err error) {
	m, k = a[0], a[1]
	if o.transA {
		m, k = k, m
	}
	kb, n := b[0], b[1]
	if o.transB {
		kb, n = n, kb
	}
	if k != kb {
		return 0, 0, 0, &ShapeMismatchError{Op: o.name, Shapes: []tensor.Shape{a, b}, Reason: "inner dimensions differ"}
	}
	return m, k, n, nil
}

func (o *gemmOp) CreateProgramInfos(h *InferenceHandler, inputs []*tensor.Tensor) ([]*ProgramInfo, error) {
	m, k, n, err := o.dims(inputs[0].Dims(), inputs[1].Dims())
	if err != nil {
		return nil, err
	}
	out := tensor.Shape{m, n}
	if len(inputs) == 3 {
		if _, _, err := tensor.BroadcastShapes(out, inputs[2].Dims()); err != nil {
			return nil, &ShapeMismatchError{Op: o.name, Shapes: []tensor.Shape{out, inputs[2].Dims()}, Reason: "C does not broadcast to the result"}
		}
	}

	fetchA, fetchB := "_A", "_B"
	if o.transA {
		fetchA = "_A_T"
	}
	if o.transB {
		fetchB = "_B_T"
	}

	var b strings.Builder
	b.WriteString("float process(int indices[2]) {\n  int a[2];\n  int b[2];\n")
	b.WriteString("  a[0] = indices[0];\n  b[1] = indices[1];\n  float value = 0.0;\n")
	fmt.Fprintf(&b, "  for (int k = 0; k < %d; k++) {\n    a[1] = k;\n    b[0] = k;\n    value += %s(a) * %s(b);\n  }\n", k, fetchA, fetchB)
	fmt.Fprintf(&b, "  value *= %s;\n", glslFloat(o.alpha))
	if len(inputs) == 3 {
		fmt.Fprintf(&b, "  int c[%d];\n  bcastIndices_C(indices, c);\n  value += %s * _C(c);\n", shaderRank(inputs[2].Dims()), glslFloat(o.beta))
	}
	b.WriteString("  return value;\n}\n")

	info, err := h.elementwiseInfo(o.name, inputs, out, b.String())
	if err != nil {
		return nil, err
	}
	return []*ProgramInfo{info}, nil
}

func (o *gemmOp) CreateRunData(h *InferenceHandler, infos []*ProgramInfo, inputs []*tensor.Tensor) ([]*RunData, error) {
	return h.singlePass(infos[0], inputs, tensor.Float32, nil)
}
