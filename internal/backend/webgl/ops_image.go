package webgl

import (
	"fmt"
	"math"
	"strings"

	"github.com/born-ml/onnxgl/internal/onnx"
	"github.com/born-ml/onnxgl/internal/tensor"
)

// upsampleOp scales every axis by a factor. Nearest mode replicates source
// elements; linear mode interpolates the two innermost axes with asymmetric
// coordinates. Scales are an attribute before opset 9, an input after.
type upsampleOp struct {
	opBase
	opset  int
	mode   string
	scales []float32
}

func newUpsampleOp(opset int) *upsampleOp {
	return &upsampleOp{opBase: newOpBase("Upsample"), opset: opset}
}

func (o *upsampleOp) Initialize(attrs onnx.Attributes) error {
	o.mode = attrs.String("mode", "nearest")
	switch o.mode {
	case "nearest", "linear":
	case "bilinear":
		o.mode = "linear"
	default:
		return &UnsupportedAttributeError{Op: o.name, Attribute: "mode", Value: o.mode}
	}
	if o.opset < 9 {
		o.scales = attrs.Floats("scales", nil)
		if len(o.scales) == 0 {
			return &UnsupportedAttributeError{Op: o.name, Attribute: "scales", Value: "missing"}
		}
	}
	return nil
}

func (o *upsampleOp) CheckInputs(inputs []*tensor.Tensor) error {
	required := 1
	if o.opset >= 9 {
		required = 2
	}
	if err := checkArity(o.name, inputs, required, required); err != nil {
		return err
	}
	if err := checkType(o.name, inputs, 0, numberTypes); err != nil {
		return err
	}
	return checkType(o.name, inputs, 1, floatTypes)
}

func (o *upsampleOp) Run(h onnx.InferenceHandler, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	return runShader(o, h, inputs)
}

func (o *upsampleOp) factors(inputs []*tensor.Tensor) ([]float32, error) {
	scales := o.scales
	if o.opset >= 9 {
		var err error
		if scales, err = inputs[1].Float32s(); err != nil {
			return nil, err
		}
	}
	x := inputs[0].Dims()
	if len(scales) != len(x) {
		return nil, &ShapeMismatchError{Op: o.name, Shapes: []tensor.Shape{x}, Reason: fmt.Sprintf("want %d scales, got %d", len(x), len(scales))}
	}
	for i, s := range scales {
		if s < 1 {
			return nil, &UnsupportedAttributeError{Op: o.name, Attribute: "scales", Value: scales}
		}
		if o.mode == "linear" && i < len(x)-2 && s != 1 {
			return nil, &UnsupportedAttributeError{Op: o.name, Attribute: "scales", Value: "linear mode scales the two innermost axes only"}
		}
	}
	return scales, nil
}

func (o *upsampleOp) hostInputs(inputs []*tensor.Tensor) []int {
	if o.opset < 9 {
		return nil
	}
	return presentFrom(inputs, 1)
}

func (o *upsampleOp) CreateProgramInfos(h *InferenceHandler, inputs []*tensor.Tensor) ([]*ProgramInfo, error) {
	x := inputs[0].Dims()
	scales, err := o.factors(inputs)
	if err != nil {
		return nil, err
	}
	out := make(tensor.Shape, len(x))
	for i, d := range x {
		out[i] = int(math.Floor(float64(float32(d) * scales[i])))
	}

	rank := shaderRank(x)
	var b strings.Builder
	fmt.Fprintf(&b, "float process(int indices[%d]) {\n  int x[%d];\n", rank, rank)
	if len(x) == 0 {
		b.WriteString("  x[0] = 0;\n  return _A(x);\n}\n")
	}
	linearFrom := len(x)
	if o.mode == "linear" && len(x) >= 2 {
		linearFrom = len(x) - 2
	}
	for i := 0; i < linearFrom; i++ {
		fmt.Fprintf(&b, "  x[%d] = int(min(floor(float(indices[%d]) / %s), %s));\n", i, i, glslFloat(scales[i]), glslFloat(float32(x[i]-1)))
	}
	if linearFrom < len(x) {
		hi, wi := linearFrom, linearFrom+1
		fmt.Fprintf(&b, "  float cy = float(indices[%d]) / %s;\n  float cx = float(indices[%d]) / %s;\n", hi, glslFloat(scales[hi]), wi, glslFloat(scales[wi]))
		writeBilinear(&b, x, hi, wi)
	} else if len(x) > 0 {
		b.WriteString("  return _A(x);\n}\n")
	}

	info, err := h.elementwiseInfo(o.name, inputs[:1], out, b.String())
	if err != nil {
		return nil, err
	}
	return []*ProgramInfo{info}, nil
}

func (o *upsampleOp) CreateRunData(h *InferenceHandler, infos []*ProgramInfo, inputs []*tensor.Tensor) ([]*RunData, error) {
	return h.singlePass(infos[0], inputs[:1], inputs[0].DType(), nil)
}

// writeBilinear emits the interpolation of input A along the axes hi and wi
// at the source coordinates cy and cx, which are clamped to the input. The
// other axes of x must already be set.
func writeBilinear(b *strings.Builder, x tensor.Shape, hi, wi int) {
	fmt.Fprintf(b, "  float sy = clamp(cy, 0.0, %s);\n  float sx = clamp(cx, 0.0, %s);\n", glslFloat(float32(x[hi]-1)), glslFloat(float32(x[wi]-1)))
	b.WriteString("  int y0 = int(floor(sy));\n  int x0 = int(floor(sx));\n")
	fmt.Fprintf(b, "  int y1 = y0 + 1 < %d ? y0 + 1 : y0;\n  int x1 = x0 + 1 < %d ? x0 + 1 : x0;\n", x[hi], x[wi])
	b.WriteString("  float dy = sy - float(y0);\n  float dx = sx - float(x0);\n")
	fmt.Fprintf(b, "  x[%d] = y0;\n  x[%d] = x0;\n  float v00 = _A(x);\n", hi, wi)
	fmt.Fprintf(b, "  x[%d] = x1;\n  float v01 = _A(x);\n", wi)
	fmt.Fprintf(b, "  x[%d] = y1;\n  float v11 = _A(x);\n", hi)
	fmt.Fprintf(b, "  x[%d] = x0;\n  float v10 = _A(x);\n", wi)
	b.WriteString("  return mix(mix(v00, v01, dx), mix(v10, v11, dx), dy);\n}\n")
}

// resizeOp resamples the input to the sizes given directly or as scales.
// Nearest mode addresses every axis; linear mode interpolates the two
// innermost axes and requires the outer ones unchanged. Source coordinates
// follow coordinate_transformation_mode; tf_crop_and_resize samples the roi
// and returns extrapolation_value outside the input.
type resizeOp struct {
	opBase
	opset         int
	mode          string
	transform     string
	nearest       string
	extrapolation float32
}

func newResizeOp(opset int) *resizeOp {
	return &resizeOp{opBase: newOpBase("Resize"), opset: opset}
}

func (o *resizeOp) Initialize(attrs onnx.Attributes) error {
	o.mode = attrs.String("mode", "nearest")
	if o.mode != "nearest" && o.mode != "linear" {
		return &UnsupportedAttributeError{Op: o.name, Attribute: "mode", Value: o.mode}
	}
	o.transform = "asymmetric"
	if o.opset >= 11 {
		o.transform = attrs.String("coordinate_transformation_mode", "half_pixel")
	}
	switch o.transform {
	case "asymmetric", "half_pixel", "pytorch_half_pixel", "tf_half_pixel_for_nn", "align_corners", "tf_crop_and_resize":
	default:
		return &UnsupportedAttributeError{Op: o.name, Attribute: "coordinate_transformation_mode", Value: o.transform}
	}
	if o.mode == "nearest" && o.opset >= 11 {
		o.nearest = attrs.String("nearest_mode", "round_prefer_floor")
	}
	switch o.nearest {
	case "", "round_prefer_floor", "round_prefer_ceil", "floor", "ceil":
	default:
		return &UnsupportedAttributeError{Op: o.name, Attribute: "nearest_mode", Value: o.nearest}
	}
	o.extrapolation = attrs.Float("extrapolation_value", 0)
	if attrs.Int("exclude_outside", 0) != 0 {
		return &UnsupportedAttributeError{Op: o.name, Attribute: "exclude_outside", Value: 1}
	}
	return nil
}

func (o *resizeOp) CheckInputs(inputs []*tensor.Tensor) error {
	required, limit := 2, 2
	switch {
	case o.opset >= 13:
		required, limit = 1, 4
	case o.opset >= 11:
		required, limit = 3, 4
	}
	if err := checkArity(o.name, inputs, required, limit); err != nil {
		return err
	}
	if err := checkType(o.name, inputs, 0, numberTypes); err != nil {
		return err
	}
	if o.opset < 11 {
		return checkType(o.name, inputs, 1, floatTypes)
	}
	if err := checkType(o.name, inputs, 1, floatTypes); err != nil {
		return err
	}
	if err := checkType(o.name, inputs, 2, floatTypes); err != nil {
		return err
	}
	return checkType(o.name, inputs, 3, indexTypes)
}

func (o *resizeOp) Run(h onnx.InferenceHandler, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	return runShader(o, h, operands(inputs))
}

func (o *resizeOp) hostInputs(inputs []*tensor.Tensor) []int { return presentFrom(inputs, 1) }

// resizeGeometry is the resolved mapping of a Resize call.
type resizeGeometry struct {
	in, out tensor.Shape
	scales  []float32
	// roi holds the start of every axis followed by the end of every axis,
	// as fractions of the input.
	roi []float32
}

func (o *resizeOp) geometry(inputs []*tensor.Tensor) (resizeGeometry, error) {
	x := inputs[0].Dims()
	g := resizeGeometry{in: x, out: make(tensor.Shape, len(x))}

	roiIdx, scalesIdx, sizesIdx := -1, 1, -1
	if o.opset >= 11 {
		roiIdx, scalesIdx, sizesIdx = 1, 2, 3
	}
	if o.transform == "tf_crop_and_resize" {
		t := optional(inputs, roiIdx)
		if t == nil || t.Size() != 2*len(x) {
			return g, &ShapeMismatchError{Op: o.name, Shapes: []tensor.Shape{x}, Reason: "tf_crop_and_resize needs a start and an end per axis in roi"}
		}
		roi, err := t.Float32s()
		if err != nil {
			return g, err
		}
		g.roi = roi
	}

	scales := optional(inputs, scalesIdx)
	sizes := optional(inputs, sizesIdx)
	if scales != nil && scales.Size() == 0 {
		scales = nil
	}
	if sizes != nil && sizes.Size() == 0 {
		sizes = nil
	}
	switch {
	case scales != nil && sizes != nil:
		return g, &ShapeMismatchError{Op: o.name, Shapes: []tensor.Shape{x}, Reason: "only one of scales and sizes may be given"}
	case scales != nil:
		v, err := scales.Float32s()
		if err != nil {
			return g, err
		}
		if len(v) != len(x) {
			return g, &ShapeMismatchError{Op: o.name, Shapes: []tensor.Shape{x}, Reason: fmt.Sprintf("want %d scales, got %d", len(x), len(v))}
		}
		g.scales = v
		for i, d := range x {
			g.out[i] = int(math.Floor(float64(d) * float64(v[i])))
		}
	case sizes != nil:
		v, err := sizes.IntegerData()
		if err != nil {
			return g, err
		}
		if len(v) != len(x) {
			return g, &ShapeMismatchError{Op: o.name, Shapes: []tensor.Shape{x}, Reason: fmt.Sprintf("want %d sizes, got %d", len(x), len(v))}
		}
		g.scales = make([]float32, len(x))
		for i, d := range x {
			g.out[i] = v[i]
			g.scales[i] = float32(v[i]) / float32(d)
		}
	default:
		return g, &ShapeMismatchError{Op: o.name, Shapes: []tensor.Shape{x}, Reason: "scales or sizes must be given"}
	}

	for i, s := range g.scales {
		if !(s > 0) || g.out[i] < 1 {
			return g, &UnsupportedAttributeError{Op: o.name, Attribute: "scales", Value: g.scales}
		}
		if o.mode == "linear" && i < len(x)-2 && (g.out[i] != x[i] || g.roi != nil && (g.roi[i] != 0 || g.roi[i+len(x)] != 1)) {
			return g, &UnsupportedAttributeError{Op: o.name, Attribute: "scales", Value: "linear mode resizes the two innermost axes only"}
		}
	}
	if o.mode == "linear" && len(x) < 2 {
		return g, &ShapeMismatchError{Op: o.name, Shapes: []tensor.Shape{x}, Reason: "linear mode needs at least two axes"}
	}
	return g, nil
}

// sourceCoord renders the input coordinate of output index i along axis i.
func (o *resizeOp) sourceCoord(g resizeGeometry, i int) string {
	xr := fmt.Sprintf("float(indices[%d])", i)
	s := glslFloat(g.scales[i])
	in, out := g.in[i], g.out[i]
	switch o.transform {
	case "asymmetric":
		return fmt.Sprintf("%s / %s", xr, s)
	case "pytorch_half_pixel":
		if out == 1 {
			return "0.0"
		}
		return fmt.Sprintf("(%s + 0.5) / %s - 0.5", xr, s)
	case "tf_half_pixel_for_nn":
		return fmt.Sprintf("(%s + 0.5) / %s", xr, s)
	case "align_corners":
		if out == 1 {
			return "0.0"
		}
		return fmt.Sprintf("%s * %s", xr, glslFloat(float32(in-1)/float32(out-1)))
	case "tf_crop_and_resize":
		start, end := g.roi[i], g.roi[i+len(g.in)]
		if out == 1 {
			return glslFloat(0.5 * (start + end) * float32(in-1))
		}
		return fmt.Sprintf("%s + %s * %s", glslFloat(start*float32(in-1)), xr, glslFloat((end-start)*float32(in-1)/float32(out-1)))
	default:
		return fmt.Sprintf("(%s + 0.5) / %s - 0.5", xr, s)
	}
}

// nearestPixel renders the rounding of the source coordinate c.
func (o *resizeOp) nearestPixel(scale float32) string {
	switch o.nearest {
	case "":
		if scale < 1 {
			return "ceil(c)"
		}
		return "floor(c)"
	case "round_prefer_ceil":
		return "floor(c + 0.5)"
	case "floor":
		return "floor(c)"
	case "ceil":
		return "ceil(c)"
	default:
		return "(c == floor(c) + 0.5 ? floor(c) : floor(c + 0.5))"
	}
}

func (o *resizeOp) CreateProgramInfos(h *InferenceHandler, inputs []*tensor.Tensor) ([]*ProgramInfo, error) {
	g, err := o.geometry(inputs)
	if err != nil {
		return nil, err
	}
	x := g.in
	extrapolate := o.transform == "tf_crop_and_resize"

	rank := shaderRank(x)
	var b strings.Builder
	if extrapolate {
		b.WriteString("uniform float extrapolationValue;\n\n")
	}
	fmt.Fprintf(&b, "float process(int indices[%d]) {\n  int x[%d];\n", rank, rank)
	if len(x) == 0 {
		b.WriteString("  x[0] = 0;\n  return _A(x);\n}\n")
	}
	outside := func(c string, d int) string {
		return fmt.Sprintf("  if (%s < 0.0 || %s > %s) {\n    return extrapolationValue;\n  }\n", c, c, glslFloat(float32(d-1)))
	}

	if o.mode == "linear" {
		hi, wi := len(x)-2, len(x)-1
		indexCopy(&b, "x", "indices", 0, hi)
		fmt.Fprintf(&b, "  float cy = %s;\n  float cx = %s;\n", o.sourceCoord(g, hi), o.sourceCoord(g, wi))
		if extrapolate {
			b.WriteString(outside("cy", x[hi]))
			b.WriteString(outside("cx", x[wi]))
		}
		writeBilinear(&b, x, hi, wi)
	} else if len(x) > 0 {
		b.WriteString("  float c;\n")
		for i, d := range x {
			fmt.Fprintf(&b, "  c = %s;\n", o.sourceCoord(g, i))
			if extrapolate {
				b.WriteString(outside("c", d))
			}
			fmt.Fprintf(&b, "  x[%d] = int(clamp(%s, 0.0, %s));\n", i, o.nearestPixel(g.scales[i]), glslFloat(float32(d-1)))
		}
		b.WriteString("  return _A(x);\n}\n")
	}

	info, err := h.elementwiseInfo(o.name, inputs[:1], g.out, b.String())
	if err != nil {
		return nil, err
	}
	return []*ProgramInfo{info}, nil
}

func (o *resizeOp) CreateRunData(h *InferenceHandler, infos []*ProgramInfo, inputs []*tensor.Tensor) ([]*RunData, error) {
	return h.singlePass(infos[0], inputs[:1], inputs[0].DType(), map[string]any{"extrapolationValue": o.extrapolation})
}

// batchNormOp normalizes channel 1 with running statistics.
type batchNormOp struct {
	opBase
	epsilon float32
}

func newBatchNormOp() *batchNormOp {
	return &batchNormOp{opBase: newOpBase("BatchNormalization")}
}

func (o *batchNormOp) Initialize(attrs onnx.Attributes) error {
	o.epsilon = attrs.Float("epsilon", 1e-5)
	if attrs.Int("training_mode", 0) != 0 {
		return &UnsupportedAttributeError{Op: o.name, Attribute: "training_mode", Value: 1}
	}
	return nil
}

func (o *batchNormOp) CheckInputs(inputs []*tensor.Tensor) error {
	if err := checkArity(o.name, inputs, 5, 5); err != nil {
		return err
	}
	for i := range inputs {
		if err := checkType(o.name, inputs, i, floatTypes); err != nil {
			return err
		}
	}
	x := inputs[0].Dims()
	if len(x) < 2 {
		return &ShapeMismatchError{Op: o.name, Shapes: []tensor.Shape{x}, Reason: "input needs a channel axis"}
	}
	for _, t := range inputs[1:] {
		if t.Rank() != 1 || t.Size() != x[1] {
			return &ShapeMismatchError{Op: o.name, Shapes: []tensor.Shape{x, t.Dims()}, Reason: "statistics need one value per channel"}
		}
	}
	return nil
}

func (o *batchNormOp) Run(h onnx.InferenceHandler, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	return runShader(o, h, inputs)
}

func (o *batchNormOp) CreateProgramInfos(h *InferenceHandler, inputs []*tensor.Tensor) ([]*ProgramInfo, error) {
	x := inputs[0].Dims()
	var b strings.Builder
	fmt.Fprintf(&b, "float process(int indices[%d]) {\n  int c[1];\n  c[0] = indices[1];\n", len(x))
	fmt.Fprintf(&b, "  return _B(c) * (_A(indices) - _D(c)) / sqrt(_E(c) + %s) + _C(c);\n}\n", glslFloat(o.epsilon))

	info, err := h.elementwiseInfo(o.name, inputs, x, b.String())
	if err != nil {
		return nil, err
	}
	return []*ProgramInfo{info}, nil
}

func (o *batchNormOp) CreateRunData(h *InferenceHandler, infos []*ProgramInfo, inputs []*tensor.Tensor) ([]*RunData, error) {
	return h.singlePass(infos[0], inputs, tensor.Float32, nil)
}
