package webgl

import (
	"fmt"
	"strings"

	"github.com/born-ml/onnxgl/internal/onnx"
	"github.com/born-ml/onnxgl/internal/tensor"
)

// readIndex renders the statements turning the float index read by fetch
// into a non-negative position along an axis of size dim.
func readIndex(b *strings.Builder, dst, fetch string, dim int) {
	fmt.Fprintf(b, "  int %s = int(floor(%s + 0.5));\n  if (%s < 0) {\n    %s += %d;\n  }\n", dst, fetch, dst, dst, dim)
}

// gatherOp selects slices of the data along axis by index.
type gatherOp struct {
	opBase
	axis int
}

func newGatherOp() *gatherOp { return &gatherOp{opBase: newOpBase("Gather")} }

func (o *gatherOp) Initialize(attrs onnx.Attributes) error {
	o.axis = int(attrs.Int("axis", 0))
	return nil
}

func (o *gatherOp) CheckInputs(inputs []*tensor.Tensor) error {
	if err := checkArity(o.name, inputs, 2, 2); err != nil {
		return err
	}
	if err := checkType(o.name, inputs, 0, numericTypes); err != nil {
		return err
	}
	return checkType(o.name, inputs, 1, indexTypes)
}

func (o *gatherOp) Run(h onnx.InferenceHandler, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	return runShader(o, h, inputs)
}

func (o *gatherOp) CreateProgramInfos(h *InferenceHandler, inputs []*tensor.Tensor) ([]*ProgramInfo, error) {
	data, idx := inputs[0].Dims(), inputs[1].Dims()
	axis, err := normalizeAxis(o.axis, len(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", o.name, err)
	}
	out := make(tensor.Shape, 0, len(data)+len(idx)-1)
	out = append(out, data[:axis]...)
	out = append(out, idx...)
	out = append(out, data[axis+1:]...)

	var b strings.Builder
	fmt.Fprintf(&b, "float process(int indices[%d]) {\n  int x[%d];\n  int i[%d];\n", shaderRank(out), len(data), shaderRank(idx))
	indexCopy(&b, "x", "indices", 0, axis)
	if len(idx) == 0 {
		b.WriteString("  i[0] = 0;\n")
	}
	for k := range idx {
		fmt.Fprintf(&b, "  i[%d] = indices[%d];\n", k, axis+k)
	}
	readIndex(&b, "k", "_B(i)", data[axis])
	fmt.Fprintf(&b, "  x[%d] = k;\n", axis)
	for k := axis + 1; k < len(data); k++ {
		fmt.Fprintf(&b, "  x[%d] = indices[%d];\n", k, k+len(idx)-1)
	}
	b.WriteString("  return _A(x);\n}\n")

	info, err := h.elementwiseInfo(o.name, inputs, out, b.String())
	if err != nil {
		return nil, err
	}
	return []*ProgramInfo{info}, nil
}

func (o *gatherOp) CreateRunData(h *InferenceHandler, infos []*ProgramInfo, inputs []*tensor.Tensor) ([]*RunData, error) {
	return h.singlePass(infos[0], inputs, inputs[0].DType(), nil)
}

// scatterOp writes updates into a copy of the data at the positions named
// by indices along axis. When two updates hit the same element the later
// one in index order wins.
type scatterOp struct {
	opBase
	axis int
}

func newScatterOp(name string) *scatterOp { return &scatterOp{opBase: newOpBase(name)} }

func (o *scatterOp) Initialize(attrs onnx.Attributes) error {
	o.axis = int(attrs.Int("axis", 0))
	if r := attrs.String("reduction", "none"); r != "none" {
		return &UnsupportedAttributeError{Op: o.name, Attribute: "reduction", Value: r}
	}
	return nil
}

func (o *scatterOp) CheckInputs(inputs []*tensor.Tensor) error {
	if err := checkArity(o.name, inputs, 3, 3); err != nil {
		return err
	}
	if err := checkType(o.name, inputs, 0, numericTypes); err != nil {
		return err
	}
	if err := checkType(o.name, inputs, 1, indexTypes); err != nil {
		return err
	}
	if inputs[0].DType() != inputs[2].DType() {
		return &TypeMismatchError{Op: o.name, Input: 2, Got: inputs[2].DType(), Want: []tensor.DataType{inputs[0].DType()}}
	}
	return nil
}

func (o *scatterOp) Run(h onnx.InferenceHandler, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	return runShader(o, h, inputs)
}

func (o *scatterOp) CreateProgramInfos(h *InferenceHandler, inputs []*tensor.Tensor) ([]*ProgramInfo, error) {
	data, idx := inputs[0].Dims(), inputs[1].Dims()
	if len(idx) != len(data) || !idx.Equal(inputs[2].Dims()) {
		return nil, &ShapeMismatchError{Op: o.name, Shapes: []tensor.Shape{data, idx, inputs[2].Dims()}, Reason: "indices and updates must match and share the data rank"}
	}
	axis, err := normalizeAxis(o.axis, len(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", o.name, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "float process(int indices[%d]) {\n  float value = _A(indices);\n", len(data))
	for i, d := range idx {
		if i != axis && d < data[i] {
			fmt.Fprintf(&b, "  if (indices[%d] >= %d) {\n    return value;\n  }\n", i, d)
		}
	}
	fmt.Fprintf(&b, "  int j[%d];\n", len(data))
	indexCopy(&b, "j", "indices", 0, len(data))
	fmt.Fprintf(&b, "  for (int t = 0; t < %d; t++) {\n    j[%d] = t;\n", idx[axis], axis)
	readIndex(&b, "k", "_B(j)", data[axis])
	fmt.Fprintf(&b, "  if (k == indices[%d]) {\n    value = _C(j);\n  }\n  }\n  return value;\n}\n", axis)

	info, err := h.elementwiseInfo(o.name, inputs, data, b.String())
	if err != nil {
		return nil, err
	}
	return []*ProgramInfo{info}, nil
}

func (o *scatterOp) CreateRunData(h *InferenceHandler, infos []*ProgramInfo, inputs []*tensor.Tensor) ([]*RunData, error) {
	return h.singlePass(infos[0], inputs, inputs[0].DType(), nil)
}

// cumSumOp is the running sum along an axis given as a scalar input.
type cumSumOp struct {
	opBase
	exclusive bool
	reverse   bool
}

func newCumSumOp() *cumSumOp { return &cumSumOp{opBase: newOpBase("CumSum")} }

func (o *cumSumOp) Initialize(attrs onnx.Attributes) error {
	o.exclusive = attrs.Int("exclusive", 0) != 0
	o.reverse = attrs.Int("reverse", 0) != 0
	return nil
}

func (o *cumSumOp) CheckInputs(inputs []*tensor.Tensor) error {
	if err := checkArity(o.name, inputs, 2, 2); err != nil {
		return err
	}
	if err := checkType(o.name, inputs, 0, numberTypes); err != nil {
		return err
	}
	return checkType(o.name, inputs, 1, indexTypes)
}

func (o *cumSumOp) Run(h onnx.InferenceHandler, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	return runShader(o, h, inputs)
}

func (o *cumSumOp) hostInputs([]*tensor.Tensor) []int { return []int{1} }

func (o *cumSumOp) CreateProgramInfos(h *InferenceHandler, inputs []*tensor.Tensor) ([]*ProgramInfo, error) {
	x := inputs[0].Dims()
	v, err := inputs[1].IntegerData()
	if err != nil {
		return nil, err
	}
	if len(v) != 1 {
		return nil, &ShapeMismatchError{Op: o.name, Shapes: []tensor.Shape{inputs[1].Dims()}, Reason: "axis must be a scalar"}
	}
	axis, err := normalizeAxis(v[0], len(x))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", o.name, err)
	}

	cmp := "<="
	switch {
	case o.reverse && o.exclusive:
		cmp = ">"
	case o.reverse:
		cmp = ">="
	case o.exclusive:
		cmp = "<"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "float process(int indices[%d]) {\n  int x[%d];\n", len(x), len(x))
	indexCopy(&b, "x", "indices", 0, len(x))
	fmt.Fprintf(&b, "  float sum = 0.0;\n  for (int t = 0; t < %d; t++) {\n", x[axis])
	fmt.Fprintf(&b, "    if (t %s indices[%d]) {\n      x[%d] = t;\n      sum += _A(x);\n    }\n  }\n  return sum;\n}\n", cmp, axis, axis)

	info, err := h.elementwiseInfo(o.name, inputs[:1], x, b.String())
	if err != nil {
		return nil, err
	}
	return []*ProgramInfo{info}, nil
}

func (o *cumSumOp) CreateRunData(h *InferenceHandler, infos []*ProgramInfo, inputs []*tensor.Tensor) ([]*RunData, error) {
	return h.singlePass(infos[0], inputs[:1], inputs[0].DType(), nil)
}
