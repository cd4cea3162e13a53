package webgl

import (
	"fmt"
	"strings"

	"github.com/born-ml/onnxgl/internal/onnx"
	"github.com/born-ml/onnxgl/internal/tensor"
)

// transposeOp permutes the axes; the default permutation reverses them.
type transposeOp struct {
	opBase
	perm []int
}

func newTransposeOp() *transposeOp { return &transposeOp{opBase: newOpBase("Transpose")} }

func (o *transposeOp) Initialize(attrs onnx.Attributes) error {
	o.perm = attrs.IntsAsInts("perm", nil)
	return nil
}

func (o *transposeOp) CheckInputs(inputs []*tensor.Tensor) error {
	if err := checkArity(o.name, inputs, 1, 1); err != nil {
		return err
	}
	return checkType(o.name, inputs, 0, numericTypes)
}

func (o *transposeOp) Run(h onnx.InferenceHandler, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	return runShader(o, h, inputs)
}

func (o *transposeOp) permutation(rank int) ([]int, error) {
	if o.perm == nil {
		perm := make([]int, rank)
		for i := range perm {
			perm[i] = rank - 1 - i
		}
		return perm, nil
	}
	if len(o.perm) != rank {
		return nil, &UnsupportedAttributeError{Op: o.name, Attribute: "perm", Value: o.perm}
	}
	seen := make([]bool, rank)
	for _, p := range o.perm {
		if p < 0 || p >= rank || seen[p] {
			return nil, &UnsupportedAttributeError{Op: o.name, Attribute: "perm", Value: o.perm}
		}
		seen[p] = true
	}
	return o.perm, nil
}

func (o *transposeOp) CreateProgramInfos(h *InferenceHandler, inputs []*tensor.Tensor) ([]*ProgramInfo, error) {
	in := inputs[0].Dims()
	perm, err := o.permutation(len(in))
	if err != nil {
		return nil, err
	}
	out := make(tensor.Shape, len(in))
	var b strings.Builder
	fmt.Fprintf(&b, "float process(int indices[%d]) {\n  int x[%d];\n", shaderRank(in), shaderRank(in))
	for i, p := range perm {
		out[i] = in[p]
		fmt.Fprintf(&b, "  x[%d] = indices[%d];\n", p, i)
	}
	if len(in) == 0 {
		b.WriteString("  x[0] = 0;\n")
	}
	b.WriteString("  return _A(x);\n}\n")

	info, err := h.elementwiseInfo(o.name, inputs, out, b.String())
	if err != nil {
		return nil, err
	}
	return []*ProgramInfo{info}, nil
}

func (o *transposeOp) CreateRunData(h *InferenceHandler, infos []*ProgramInfo, inputs []*tensor.Tensor) ([]*RunData, error) {
	return h.singlePass(infos[0], inputs, inputs[0].DType(), nil)
}

// concatOp joins its inputs along axis.
type concatOp struct {
	opBase
	axis int
}

func newConcatOp() *concatOp { return &concatOp{opBase: newOpBase("Concat")} }

func (o *concatOp) Initialize(attrs onnx.Attributes) error {
	if !attrs.Has("axis") {
		return &UnsupportedAttributeError{Op: o.name, Attribute: "axis", Value: "missing"}
	}
	o.axis = int(attrs.Int("axis", 0))
	return nil
}

func (o *concatOp) CheckInputs(inputs []*tensor.Tensor) error {
	if err := checkArity(o.name, inputs, 1, -1); err != nil {
		return err
	}
	for i, t := range inputs {
		if t == nil {
			return fmt.Errorf("%s: input %d is missing", o.name, i)
		}
		if err := checkType(o.name, inputs, i, numericTypes); err != nil {
			return err
		}
	}
	return checkSameType(o.name, inputs)
}

func (o *concatOp) Run(h onnx.InferenceHandler, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	return runShader(o, h, inputs)
}

func (o *concatOp) CreateProgramInfos(h *InferenceHandler, inputs []*tensor.Tensor) ([]*ProgramInfo, error) {
	first := inputs[0].Dims()
	axis, err := normalizeAxis(o.axis, len(first))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", o.name, err)
	}
	out := first.Clone()
	out[axis] = 0
	for _, t := range inputs {
		d := t.Dims()
		if len(d) != len(first) {
			return nil, &ShapeMismatchError{Op: o.name, Shapes: []tensor.Shape{first, d}, Reason: "ranks differ"}
		}
		for i := range d {
			if i != axis && d[i] != first[i] {
				return nil, &ShapeMismatchError{Op: o.name, Shapes: []tensor.Shape{first, d}, Reason: fmt.Sprintf("axis %d differs", i)}
			}
		}
		out[axis] += d[axis]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "float process(int indices[%d]) {\n  int x[%d];\n", len(out), len(out))
	indexCopy(&b, "x", "indices", 0, len(out))
	offset := 0
	for i, t := range inputs {
		end := offset + t.Dims()[axis]
		if i == len(inputs)-1 {
			fmt.Fprintf(&b, "  x[%d] = indices[%d] - %d;\n  return _%s(x);\n}\n", axis, axis, offset, samplerName(i))
			break
		}
		fmt.Fprintf(&b, "  if (indices[%d] < %d) {\n    x[%d] = indices[%d] - %d;\n    return _%s(x);\n  }\n",
			axis, end, axis, axis, offset, samplerName(i))
		offset = end
	}

	info, err := h.elementwiseInfo(o.name, inputs, out, b.String())
	if err != nil {
		return nil, err
	}
	return []*ProgramInfo{info}, nil
}

func (o *concatOp) CreateRunData(h *InferenceHandler, infos []*ProgramInfo, inputs []*tensor.Tensor) ([]*RunData, error) {
	return h.singlePass(infos[0], inputs, inputs[0].DType(), nil)
}

// splitOp cuts its input along axis into one output per node output. The
// sizes come from the split attribute, the split input from opset 13, or an
// equal division.
type splitOp struct {
	opBase
	outputs int
	opset   int
	axis    int
	split   []int
}

func newSplitOp(outputs, opset int) *splitOp {
	return &splitOp{opBase: newOpBase("Split"), outputs: outputs, opset: opset}
}

func (o *splitOp) Initialize(attrs onnx.Attributes) error {
	o.axis = int(attrs.Int("axis", 0))
	o.split = attrs.IntsAsInts("split", nil)
	if o.outputs < 1 {
		return &UnsupportedAttributeError{Op: o.name, Attribute: "outputs", Value: o.outputs}
	}
	return nil
}

func (o *splitOp) CheckInputs(inputs []*tensor.Tensor) error {
	if err := checkArity(o.name, inputs, 1, 2); err != nil {
		return err
	}
	if err := checkType(o.name, inputs, 0, numericTypes); err != nil {
		return err
	}
	return checkType(o.name, inputs, 1, indexTypes)
}

func (o *splitOp) Run(h onnx.InferenceHandler, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	return runShader(o, h, operands(inputs))
}

func (o *splitOp) hostInputs(inputs []*tensor.Tensor) []int {
	if o.opset < 13 {
		return nil
	}
	return presentFrom(inputs, 1)
}

func (o *splitOp) sizes(inputs []*tensor.Tensor, dim int) ([]int, error) {
	sizes := o.split
	if t := optional(inputs, 1); t != nil && o.opset >= 13 {
		var err error
		if sizes, err = t.IntegerData(); err != nil {
			return nil, err
		}
	}
	if sizes == nil {
		if dim%o.outputs != 0 {
			return nil, &ShapeMismatchError{Op: o.name, Shapes: []tensor.Shape{inputs[0].Dims()}, Reason: fmt.Sprintf("axis of %d does not split into %d parts", dim, o.outputs)}
		}
		sizes = make([]int, o.outputs)
		for i := range sizes {
			sizes[i] = dim / o.outputs
		}
	}
	if len(sizes) != o.outputs {
		return nil, &UnsupportedAttributeError{Op: o.name, Attribute: "split", Value: sizes}
	}
	total := 0
	for _, s := range sizes {
		if s < 0 {
			return nil, &UnsupportedAttributeError{Op: o.name, Attribute: "split", Value: sizes}
		}
		total += s
	}
	if total != dim {
		return nil, &ShapeMismatchError{Op: o.name, Shapes: []tensor.Shape{inputs[0].Dims()}, Reason: fmt.Sprintf("split %v does not sum to %d", sizes, dim)}
	}
	return sizes, nil
}

func (o *splitOp) CreateProgramInfos(h *InferenceHandler, inputs []*tensor.Tensor) ([]*ProgramInfo, error) {
	in := inputs[0].Dims()
	axis, err := normalizeAxis(o.axis, len(in))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", o.name, err)
	}
	sizes, err := o.sizes(inputs, in[axis])
	if err != nil {
		return nil, err
	}

	infos := make([]*ProgramInfo, len(sizes))
	offset := 0
	for i, size := range sizes {
		out := in.Clone()
		out[axis] = size
		var b strings.Builder
		fmt.Fprintf(&b, "float process(int indices[%d]) {\n  int x[%d];\n", len(in), len(in))
		indexCopy(&b, "x", "indices", 0, len(in))
		fmt.Fprintf(&b, "  x[%d] += %d;\n  return _A(x);\n}\n", axis, offset)
		offset += size

		info, err := h.elementwiseInfo(fmt.Sprintf("%s (%d)", o.name, i), inputs[:1], out, b.String())
		if err != nil {
			return nil, err
		}
		infos[i] = info
	}
	return infos, nil
}

func (o *splitOp) CreateRunData(h *InferenceHandler, infos []*ProgramInfo, inputs []*tensor.Tensor) ([]*RunData, error) {
	tds, err := h.bindInputs(infos[0], inputs[:1])
	if err != nil {
		return nil, err
	}
	runData := make([]*RunData, len(infos))
	for i, info := range infos {
		out, result, err := h.NewOutput(info.OutputLayout, inputs[0].DType())
		if err != nil {
			return nil, err
		}
		runData[i] = &RunData{Inputs: tds, Output: out, Result: result}
	}
	return runData, nil
}

// sliceOp extracts a strided window. Before opset 10 starts, ends and axes
// are attributes; later they and the steps are inputs.
type sliceOp struct {
	opBase
	opset              int
	starts, ends, axes []int
}

func newSliceOp(opset int) *sliceOp { return &sliceOp{opBase: newOpBase("Slice"), opset: opset} }

func (o *sliceOp) Initialize(attrs onnx.Attributes) error {
	if o.opset >= 10 {
		return nil
	}
	o.starts = attrs.IntsAsInts("starts", nil)
	o.ends = attrs.IntsAsInts("ends", nil)
	o.axes = attrs.IntsAsInts("axes", nil)
	if len(o.starts) != len(o.ends) {
		return &UnsupportedAttributeError{Op: o.name, Attribute: "starts/ends", Value: "lengths differ"}
	}
	return nil
}

func (o *sliceOp) CheckInputs(inputs []*tensor.Tensor) error {
	required, limit := 1, 1
	if o.opset >= 10 {
		required, limit = 3, 5
	}
	if err := checkArity(o.name, inputs, required, limit); err != nil {
		return err
	}
	if err := checkType(o.name, inputs, 0, numericTypes); err != nil {
		return err
	}
	for i := 1; i < len(inputs); i++ {
		if err := checkType(o.name, inputs, i, indexTypes); err != nil {
			return err
		}
	}
	return nil
}

// sliceParams holds the resolved first element and step of every axis.
type sliceParams struct {
	out   tensor.Shape
	start []int
	step  []int
}

func (o *sliceOp) params(inputs []*tensor.Tensor) (sliceParams, error) {
	in := inputs[0].Dims()
	starts, ends, axes := o.starts, o.ends, o.axes
	var steps []int
	if o.opset >= 10 {
		ints := make([][]int, 5)
		for i := 1; i < 5; i++ {
			t := optional(inputs, i)
			if t == nil {
				continue
			}
			v, err := t.IntegerData()
			if err != nil {
				return sliceParams{}, err
			}
			ints[i] = v
		}
		starts, ends, axes, steps = ints[1], ints[2], ints[3], ints[4]
	}
	if len(starts) != len(ends) {
		return sliceParams{}, &ShapeMismatchError{Op: o.name, Shapes: []tensor.Shape{in}, Reason: "starts and ends differ in length"}
	}
	if axes == nil {
		axes = make([]int, len(starts))
		for i := range axes {
			axes[i] = i
		}
	}

	p := sliceParams{out: in.Clone(), start: make([]int, len(in)), step: make([]int, len(in))}
	for i := range p.step {
		p.step[i] = 1
	}
	for i, a := range axes {
		axis, err := normalizeAxis(a, len(in))
		if err != nil {
			return sliceParams{}, fmt.Errorf("%s: %w", o.name, err)
		}
		step := 1
		if steps != nil {
			step = steps[i]
		}
		if step == 0 {
			return sliceParams{}, &UnsupportedAttributeError{Op: o.name, Attribute: "steps", Value: steps}
		}
		d := in[axis]
		start, end := starts[i], ends[i]
		if start < 0 {
			start += d
		}
		if end < 0 {
			end += d
		}
		if step > 0 {
			start, end = clampInt(start, 0, d), clampInt(end, 0, d)
		} else {
			start, end = clampInt(start, 0, d-1), clampInt(end, -1, d-1)
		}
		size := 0
		if step > 0 && end > start {
			size = (end - start + step - 1) / step
		} else if step < 0 && start > end {
			size = (start - end - step - 1) / -step
		}
		p.out[axis], p.start[axis], p.step[axis] = size, start, step
	}
	return p, nil
}

func (o *sliceOp) hostInputs(inputs []*tensor.Tensor) []int {
	if o.opset < 10 {
		return nil
	}
	return presentFrom(inputs, 1)
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

func (o *sliceOp) Run(h onnx.InferenceHandler, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	inputs = operands(inputs)
	p, err := o.params(inputs)
	if err != nil {
		return nil, err
	}
	if p.out.NumElements() == 0 {
		empty, err := tensor.New(p.out, inputs[0].DType())
		if err != nil {
			return nil, err
		}
		return []*tensor.Tensor{empty}, nil
	}
	return runShader(o, h, inputs)
}

func (o *sliceOp) CreateProgramInfos(h *InferenceHandler, inputs []*tensor.Tensor) ([]*ProgramInfo, error) {
	p, err := o.params(inputs)
	if err != nil {
		return nil, err
	}
	rank := shaderRank(p.out)
	var b strings.Builder
	fmt.Fprintf(&b, "float process(int indices[%d]) {\n  int x[%d];\n", rank, rank)
	if len(p.out) == 0 {
		b.WriteString("  x[0] = 0;\n")
	}
	for i := range p.out {
		fmt.Fprintf(&b, "  x[%d] = %d + indices[%d] * %d;\n", i, p.start[i], i, p.step[i])
	}
	b.WriteString("  return _A(x);\n}\n")

	info, err := h.elementwiseInfo(o.name, inputs[:1], p.out, b.String())
	if err != nil {
		return nil, err
	}
	return []*ProgramInfo{info}, nil
}

func (o *sliceOp) CreateRunData(h *InferenceHandler, infos []*ProgramInfo, inputs []*tensor.Tensor) ([]*RunData, error) {
	return h.singlePass(infos[0], inputs[:1], inputs[0].DType(), nil)
}

// tileOp repeats the input along every axis.
type tileOp struct {
	opBase
}

func newTileOp() *tileOp { return &tileOp{opBase: newOpBase("Tile")} }

func (o *tileOp) Initialize(onnx.Attributes) error { return nil }

func (o *tileOp) CheckInputs(inputs []*tensor.Tensor) error {
	if err := checkArity(o.name, inputs, 2, 2); err != nil {
		return err
	}
	if err := checkType(o.name, inputs, 0, numericTypes); err != nil {
		return err
	}
	return checkType(o.name, inputs, 1, indexTypes)
}

func (o *tileOp) Run(h onnx.InferenceHandler, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	return runShader(o, h, inputs)
}

func (o *tileOp) hostInputs([]*tensor.Tensor) []int { return []int{1} }

func (o *tileOp) CreateProgramInfos(h *InferenceHandler, inputs []*tensor.Tensor) ([]*ProgramInfo, error) {
	in := inputs[0].Dims()
	repeats, err := inputs[1].IntegerData()
	if err != nil {
		return nil, err
	}
	if len(repeats) != len(in) {
		return nil, &ShapeMismatchError{Op: o.name, Shapes: []tensor.Shape{in, inputs[1].Dims()}, Reason: "one repeat count per axis is required"}
	}
	out := make(tensor.Shape, len(in))
	var b strings.Builder
	fmt.Fprintf(&b, "float process(int indices[%d]) {\n  int x[%d];\n", shaderRank(in), shaderRank(in))
	for i, d := range in {
		if repeats[i] < 0 {
			return nil, &UnsupportedAttributeError{Op: o.name, Attribute: "repeats", Value: repeats}
		}
		out[i] = d * repeats[i]
		fmt.Fprintf(&b, "  x[%d] = indices[%d] - (indices[%d] / %d) * %d;\n", i, i, i, d, d)
	}
	if len(in) == 0 {
		b.WriteString("  x[0] = 0;\n")
	}
	b.WriteString("  return _A(x);\n}\n")

	info, err := h.elementwiseInfo(o.name, inputs[:1], out, b.String())
	if err != nil {
		return nil, err
	}
	return []*ProgramInfo{info}, nil
}

func (o *tileOp) CreateRunData(h *InferenceHandler, infos []*ProgramInfo, inputs []*tensor.Tensor) ([]*RunData, error) {
	return h.singlePass(infos[0], inputs[:1], inputs[0].DType(), nil)
}

// padOp pads with a constant, by repeating the edge, or by reflection.
// Before opset 11 pads and value are attributes.
type padOp struct {
	opBase
	opset int
	mode  string
	pads  []int
	value float32
}

func newPadOp(opset int) *padOp { return &padOp{opBase: newOpBase("Pad"), opset: opset} }

func (o *padOp) Initialize(attrs onnx.Attributes) error {
	o.mode = attrs.String("mode", "constant")
	switch o.mode {
	case "constant", "edge", "reflect":
	default:
		return &UnsupportedAttributeError{Op: o.name, Attribute: "mode", Value: o.mode}
	}
	if o.opset < 11 {
		o.pads = attrs.IntsAsInts("pads", nil)
		o.value = attrs.Float("value", 0)
	}
	return nil
}

func (o *padOp) CheckInputs(inputs []*tensor.Tensor) error {
	required, limit := 1, 1
	if o.opset >= 11 {
		required, limit = 2, 3
	}
	if err := checkArity(o.name, inputs, required, limit); err != nil {
		return err
	}
	if err := checkType(o.name, inputs, 0, numberTypes); err != nil {
		return err
	}
	return checkType(o.name, inputs, 1, indexTypes)
}

func (o *padOp) Run(h onnx.InferenceHandler, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	return runShader(o, h, operands(inputs))
}

// hostInputs covers the pads; the constant value is a uniform.
func (o *padOp) hostInputs([]*tensor.Tensor) []int {
	if o.opset < 11 {
		return nil
	}
	return []int{1}
}

func (o *padOp) params(inputs []*tensor.Tensor) ([]int, float32, error) {
	if o.opset < 11 {
		return o.pads, o.value, nil
	}
	pads, err := inputs[1].IntegerData()
	if err != nil {
		return nil, 0, err
	}
	value := float32(0)
	if t := optional(inputs, 2); t != nil {
		v, err := t.NumericData()
		if err != nil {
			return nil, 0, err
		}
		if len(v) > 0 {
			value = v[0]
		}
	}
	return pads, value, nil
}

func (o *padOp) CreateProgramInfos(h *InferenceHandler, inputs []*tensor.Tensor) ([]*ProgramInfo, error) {
	in := inputs[0].Dims()
	pads, _, err := o.params(inputs)
	if err != nil {
		return nil, err
	}
	if len(pads) != 2*len(in) {
		return nil, &ShapeMismatchError{Op: o.name, Shapes: []tensor.Shape{in}, Reason: fmt.Sprintf("want %d pads, got %d", 2*len(in), len(pads))}
	}

	out := make(tensor.Shape, len(in))
	var b strings.Builder
	fmt.Fprintf(&b, "uniform float padValue;\n\nfloat process(int indices[%d]) {\n  int x[%d];\n  int k;\n", shaderRank(in), shaderRank(in))
	if len(in) == 0 {
		b.WriteString("  x[0] = 0;\n")
	}
	for i, d := range in {
		begin := pads[i]
		out[i] = d + begin + pads[i+len(in)]
		if out[i] < 0 {
			return nil, &ShapeMismatchError{Op: o.name, Shapes: []tensor.Shape{in}, Reason: "pads crop below zero"}
		}
		fmt.Fprintf(&b, "  k = indices[%d] - %d;\n", i, begin)
		switch o.mode {
		case "constant":
			fmt.Fprintf(&b, "  if (k < 0 || k >= %d) {\n    return padValue;\n  }\n", d)
		case "reflect":
			fmt.Fprintf(&b, "  if (k < 0) {\n    k = -k;\n  }\n  if (k >= %d) {\n    k = %d - k;\n  }\n", d, 2*(d-1))
		}
		fmt.Fprintf(&b, "  if (k < 0) {\n    k = 0;\n  }\n  if (k > %d) {\n    k = %d;\n  }\n  x[%d] = k;\n", d-1, d-1, i)
	}
	b.WriteString("  return _A(x);\n}\n")

	info, err := h.elementwiseInfo(o.name, inputs[:1], out, b.String())
	if err != nil {
		return nil, err
	}
	return []*ProgramInfo{info}, nil
}

func (o *padOp) CreateRunData(h *InferenceHandler, infos []*ProgramInfo, inputs []*tensor.Tensor) ([]*RunData, error) {
	_, value, err := o.params(inputs)
	if err != nil {
		return nil, err
	}
	return h.singlePass(infos[0], inputs[:1], inputs[0].DType(), map[string]any{"padValue": value})
}

// depthToSpaceOp moves channel blocks into spatial blocks, in DCR or CRD
// order.
type depthToSpaceOp struct {
	opBase
	blockSize int
	mode      string
}

func newDepthToSpaceOp() *depthToSpaceOp {
	return &depthToSpaceOp{opBase: newOpBase("DepthToSpace")}
}

func (o *depthToSpaceOp) Initialize(attrs onnx.Attributes) error {
	o.blockSize = int(attrs.Int("blocksize", 0))
	o.mode = attrs.String("mode", "DCR")
	if o.blockSize < 1 {
		return &UnsupportedAttributeError{Op: o.name, Attribute: "blocksize", Value: o.blockSize}
	}
	if o.mode != "DCR" && o.mode != "CRD" {
		return &UnsupportedAttributeError{Op: o.name, Attribute: "mode", Value: o.mode}
	}
	return nil
}

func (o *depthToSpaceOp) CheckInputs(inputs []*tensor.Tensor) error {
	if err := checkArity(o.name, inputs, 1, 1); err != nil {
		return err
	}
	if err := checkType(o.name, inputs, 0, numberTypes); err != nil {
		return err
	}
	x := inputs[0].Dims()
	if len(x) != 4 || x[1]%(o.blockSize*o.blockSize) != 0 {
		return &ShapeMismatchError{Op: o.name, Shapes: []tensor.Shape{x}, Reason: fmt.Sprintf("want NCHW with channels divisible by %d", o.blockSize*o.blockSize)}
	}
	return nil
}

func (o *depthToSpaceOp) Run(h onnx.InferenceHandler, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	return runShader(o, h, inputs)
}

func (o *depthToSpaceOp) CreateProgramInfos(h *InferenceHandler, inputs []*tensor.Tensor) ([]*ProgramInfo, error) {
	x := inputs[0].Dims()
	bs := o.blockSize
	c := x[1] / (bs * bs)
	out := tensor.Shape{x[0], c, x[2] * bs, x[3] * bs}

	var b strings.Builder
	b.WriteString("float process(int indices[4]) {\n  int x[4];\n  x[0] = indices[0];\n")
	fmt.Fprintf(&b, "  x[2] = indices[2] / %d;\n  x[3] = indices[3] / %d;\n", bs, bs)
	fmt.Fprintf(&b, "  int bh = indices[2] - x[2] * %d;\n  int bw = indices[3] - x[3] * %d;\n", bs, bs)
	if o.mode == "DCR" {
		fmt.Fprintf(&b, "  x[1] = (bh * %d + bw) * %d + indices[1];\n", bs, c)
	} else {
		fmt.Fprintf(&b, "  x[1] = indices[1] * %d + bh * %d + bw;\n", bs*bs, bs)
	}
	b.WriteString("  return _A(x);\n}\n")

	info, err := h.elementwiseInfo(o.name, inputs, out, b.String())
	if err != nil {
		return nil, err
	}
	return []*ProgramInfo{info}, nil
}

func (o *depthToSpaceOp) CreateRunData(h *InferenceHandler, infos []*ProgramInfo, inputs []*tensor.Tensor) ([]*RunData, error) {
	return h.singlePass(infos[0], inputs, inputs[0].DType(), nil)
}
