package webgl

import (
	"fmt"
	"slices"
	"strings"

	"github.com/born-ml/onnxgl/internal/onnx"
	"github.com/born-ml/onnxgl/internal/tensor"
)

type reducer struct {
	init   string
	update string // combines acc and v
	final  string // may use acc and n, the reduced element count
}

var reducers = map[string]reducer{
	"ReduceSum":       {init: "0.0", update: "acc + v", final: "acc"},
	"ReduceMean":      {init: "0.0", update: "acc + v", final: "acc / n"},
	"ReduceMax":       {init: "-" + flt32Max, update: "max(acc, v)", final: "acc"},
	"ReduceMin":       {init: flt32Max, update: "min(acc, v)", final: "acc"},
	"ReduceProd":      {init: "1.0", update: "acc * v", final: "acc"},
	"ReduceLogSum":    {init: "0.0", update: "acc + v", final: "log(acc)"},
	"ReduceSumSquare": {init: "0.0", update: "acc + v * v", final: "acc"},
}

// reduceOp folds the listed axes with one of the reducers.
type reduceOp struct {
	opBase
	reducer  reducer
	axes     []int
	keepDims bool
}

func newReduceOp(name string) *reduceOp {
	return &reduceOp{opBase: newOpBase(name), reducer: reducers[name]}
}

func (o *reduceOp) Initialize(attrs onnx.Attributes) error {
	o.axes = attrs.IntsAsInts("axes", nil)
	o.keepDims = attrs.Int("keepdims", 1) != 0
	return nil
}

func (o *reduceOp) CheckInputs(inputs []*tensor.Tensor) error {
	if err := checkArity(o.name, inputs, 1, 1); err != nil {
		return err
	}
	return checkType(o.name, inputs, 0, numberTypes)
}

func (o *reduceOp) Run(h onnx.InferenceHandler, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	return runShader(o, h, inputs)
}

// reducedAxes returns the sorted, normalized axes to fold.
func (o *reduceOp) reducedAxes(rank int) ([]int, error) {
	if len(o.axes) == 0 {
		all := make([]int, rank)
		for i := range all {
			all[i] = i
		}
		return all, nil
	}
	axes := make([]int, 0, len(o.axes))
	for _, a := range o.axes {
		n, err := normalizeAxis(a, rank)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", o.name, err)
		}
		if !slices.Contains(axes, n) {
			axes = append(axes, n)
		}
	}
	slices.Sort(axes)
	return axes, nil
}

func (o *reduceOp) CreateProgramInfos(h *InferenceHandler, inputs []*tensor.Tensor) ([]*ProgramInfo, error) {
	in := inputs[0].Dims()
	axes, err := o.reducedAxes(len(in))
	if err != nil {
		return nil, err
	}

	var (
		out    tensor.Shape
		assign strings.Builder
	)
	for i, d := range in {
		if slices.Contains(axes, i) {
			if o.keepDims {
				out = append(out, 1)
			}
			continue
		}
		fmt.Fprintf(&assign, "  x[%d] = indices[%d];\n", i, len(out))
		out = append(out, d)
	}
	if out == nil {
		out = tensor.Shape{}
	}
	if len(in) == 0 {
		assign.WriteString("  x[0] = 0;\n")
	}

	count := 1
	for _, a := range axes {
		count *= in[a]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "float process(int indices[%d]) {\n  int x[%d];\n", shaderRank(out), shaderRank(in))
	b.WriteString(assign.String())
	fmt.Fprintf(&b, "  float acc = %s;\n  float n = %s;\n", o.reducer.init, glslFloat(float32(count)))
	fmt.Fprintf(&b, "  for (int r = 0; r < %d; r++) {\n    int rem = r;\n", count)
	stride := count
	for _, a := range axes {
		stride /= in[a]
		fmt.Fprintf(&b, "    x[%d] = rem / %d;\n    rem -= x[%d] * %d;\n", a, stride, a, stride)
	}
	fmt.Fprintf(&b, "    float v = _A(x);\n    acc = %s;\n  }\n  return %s;\n}\n", o.reducer.update, o.reducer.final)

	info, err := h.elementwiseInfo(o.name, inputs, out, b.String())
	if err != nil {
		return nil, err
	}
	return []*ProgramInfo{info}, nil
}

func (o *reduceOp) CreateRunData(h *InferenceHandler, infos []*ProgramInfo, inputs []*tensor.Tensor) ([]*RunData, error) {
	return h.singlePass(infos[0], inputs, inputs[0].DType(), nil)
}
