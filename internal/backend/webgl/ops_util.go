package webgl

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/born-ml/onnxgl/internal/onnx"
	"github.com/born-ml/onnxgl/internal/tensor"
)

// Element type sets accepted by kernels.
var (
	floatTypes   = []tensor.DataType{tensor.Float32}
	numberTypes  = []tensor.DataType{tensor.Float32, tensor.Int32}
	boolTypes    = []tensor.DataType{tensor.Bool}
	numericTypes = []tensor.DataType{tensor.Float32, tensor.Int32, tensor.Bool}
	indexTypes   = []tensor.DataType{tensor.Int32, tensor.Float32}
)

// opBase carries the identity shared by every shader operator.
type opBase struct {
	id   OperatorID
	name string
}

func newOpBase(name string) opBase {
	return opBase{id: nextOperatorID(), name: name}
}

// ID returns the program cache key of the operator.
func (o *opBase) ID() OperatorID { return o.id }

// Name returns the ONNX operator type.
func (o *opBase) Name() string { return o.name }

func runShader(op ShaderOperator, h onnx.InferenceHandler, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	ih, err := handlerOf(h)
	if err != nil {
		return nil, err
	}
	return ih.Run(op, inputs)
}

func checkArity(op string, inputs []*tensor.Tensor, required, limit int) error {
	if len(inputs) < required || (limit >= 0 && len(inputs) > limit) {
		return fmt.Errorf("%s: got %d inputs, want %d..%d", op, len(inputs), required, limit)
	}
	for i := 0; i < required; i++ {
		if inputs[i] == nil {
			return fmt.Errorf("%s: required input %d is missing", op, i)
		}
	}
	return nil
}

func checkType(op string, inputs []*tensor.Tensor, i int, want []tensor.DataType) error {
	if i >= len(inputs) || inputs[i] == nil {
		return nil
	}
	got := inputs[i].DType()
	for _, w := range want {
		if got == w {
			return nil
		}
	}
	return &TypeMismatchError{Op: op, Input: i, Got: got, Want: want}
}

func checkSameType(op string, inputs []*tensor.Tensor) error {
	var first *tensor.Tensor
	for i, t := range inputs {
		if t == nil {
			continue
		}
		if first == nil {
			first = t
			continue
		}
		if t.DType() != first.DType() {
			return &TypeMismatchError{Op: op, Input: i, Got: t.DType(), Want: []tensor.DataType{first.DType()}}
		}
	}
	return nil
}

// presentFrom returns the positions of the non-nil inputs from index i on.
func presentFrom(inputs []*tensor.Tensor, i int) []int {
	var out []int
	for ; i < len(inputs); i++ {
		if inputs[i] != nil {
			out = append(out, i)
		}
	}
	return out
}

// optional returns inputs[i] or nil.
func optional(inputs []*tensor.Tensor, i int) *tensor.Tensor {
	if i >= 0 && i < len(inputs) {
		return inputs[i]
	}
	return nil
}

func samplerName(i int) string {
	if i < 26 {
		return string(rune('A' + i))
	}
	return "X" + strconv.Itoa(i)
}

func samplerNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = samplerName(i)
	}
	return names
}

// glslFloat renders v as a GLSL float literal.
func glslFloat(v float32) string {
	s := strconv.FormatFloat(float64(v), 'g', -1, 32)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// flt32Max is the largest finite float, used as the identity of min/max.
const flt32Max = "3.402823466e+38"

// shaderRank is the length of the index array of a tensor of shape s.
func shaderRank(s tensor.Shape) int {
	if len(s) == 0 {
		return 1
	}
	return len(s)
}

func normalizeAxis(axis, rank int) (int, error) {
	if axis < -rank || axis >= rank || (rank == 0 && axis != 0) {
		return 0, fmt.Errorf("axis %d out of range for rank %d", axis, rank)
	}
	if axis < 0 {
		axis += rank
	}
	return axis, nil
}

func toInts(v []int64) []int {
	out := make([]int, len(v))
	for i, x := range v {
		out[i] = int(x)
	}
	return out
}

func product(dims []int) int {
	p := 1
	for _, d := range dims {
		p *= d
	}
	return p
}

// inputLayouts returns the layouts the inputs currently have on the device,
// uploading unpacked textures for host tensors.
func (h *InferenceHandler) inputLayouts(inputs []*tensor.Tensor) ([]*TextureLayout, error) {
	layouts := make([]*TextureLayout, len(inputs))
	for i, t := range inputs {
		td, err := h.anyTextureData(t)
		if err != nil {
			return nil, err
		}
		layouts[i] = td.TextureLayout
	}
	return layouts, nil
}

// anyTextureData returns t's texture in whichever packing exists, preferring
// unpacked, and uploads an unpacked texture otherwise.
func (h *InferenceHandler) anyTextureData(t *tensor.Tensor) (*TextureData, error) {
	c := h.cacheFor(t)
	if td, ok := c.Get(t, false); ok {
		return td, nil
	}
	if td, ok := c.Get(t, true); ok {
		return td, nil
	}
	return c.GetOrCreate(t, nil)
}

// bindInputs fetches the textures of inputs with the packing info expects.
func (h *InferenceHandler) bindInputs(info *ProgramInfo, inputs []*tensor.Tensor) ([]*TextureData, error) {
	if len(inputs) != len(info.InputLayouts) {
		return nil, fmt.Errorf("%s: %d inputs for %d input layouts", info.Name, len(inputs), len(info.InputLayouts))
	}
	tds := make([]*TextureData, len(inputs))
	for i, t := range inputs {
		td, err := h.TextureData(t, info.InputLayouts[i].IsPacked())
		if err != nil {
			return nil, err
		}
		tds[i] = td
	}
	return tds, nil
}

// singlePass binds the RunData of a one-pass operator producing one result.
func (h *InferenceHandler) singlePass(info *ProgramInfo, inputs []*tensor.Tensor, dtype tensor.DataType, uniforms map[string]any) ([]*RunData, error) {
	tds, err := h.bindInputs(info, inputs)
	if err != nil {
		return nil, err
	}
	out, result, err := h.NewOutput(info.OutputLayout, dtype)
	if err != nil {
		return nil, err
	}
	return []*RunData{{Inputs: tds, Output: out, Uniforms: uniforms, Result: result}}, nil
}

// elementwiseInfo describes a single pass over inputs producing an unpacked
// tensor of shape out.
func (h *InferenceHandler) elementwiseInfo(name string, inputs []*tensor.Tensor, out tensor.Shape, source string) (*ProgramInfo, error) {
	layouts, err := h.inputLayouts(inputs)
	if err != nil {
		return nil, err
	}
	outLayout, err := h.CreateTextureLayout(out, 1, nil)
	if err != nil {
		return nil, err
	}
	return &ProgramInfo{
		Name:         name,
		InputLayouts: layouts,
		Samplers:     samplerNames(len(inputs)),
		OutputLayout: outLayout,
		Source:       source,
	}, nil
}

// indexCopy renders dst[i] = src[i] for i in [from, to).
func indexCopy(b *strings.Builder, dst, src string, from, to int) {
	for i := from; i < to; i++ {
		fmt.Fprintf(b, "  %s[%d] = %s[%d];\n", dst, i, src, i)
	}
}
