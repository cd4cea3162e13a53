package webgl

import (
	"fmt"
	"strings"

	"github.com/born-ml/onnxgl/internal/onnx"
	"github.com/born-ml/onnxgl/internal/tensor"
)

// windowAttrs are the sliding window attributes shared by Conv and the
// pooling operators, for two spatial axes.
type windowAttrs struct {
	autoPad   string
	kernel    []int
	strides   []int
	dilations []int
	pads      []int // begin0, begin1, end0, end1
	ceilMode  bool
}

func readWindowAttrs(op string, attrs onnx.Attributes) (windowAttrs, error) {
	w := windowAttrs{
		autoPad:   attrs.String("auto_pad", "NOTSET"),
		kernel:    attrs.IntsAsInts("kernel_shape", nil),
		strides:   attrs.IntsAsInts("strides", []int{1, 1}),
		dilations: attrs.IntsAsInts("dilations", []int{1, 1}),
		pads:      attrs.IntsAsInts("pads", []int{0, 0, 0, 0}),
		ceilMode:  attrs.Int("ceil_mode", 0) != 0,
	}
	switch w.autoPad {
	case "NOTSET", "SAME_UPPER", "SAME_LOWER", "VALID":
	default:
		return w, &UnsupportedAttributeError{Op: op, Attribute: "auto_pad", Value: w.autoPad}
	}
	if len(w.strides) != 2 || len(w.dilations) != 2 || len(w.pads) != 4 {
		return w, &UnsupportedAttributeError{Op: op, Attribute: "strides/dilations/pads", Value: "only two spatial axes are supported"}
	}
	if w.kernel != nil && len(w.kernel) != 2 {
		return w, &UnsupportedAttributeError{Op: op, Attribute: "kernel_shape", Value: w.kernel}
	}
	return w, nil
}

// window is the resolved geometry of one sliding window application.
type window struct {
	in      [2]int
	kernel  [2]int
	strides [2]int
	dilate  [2]int
	begin   [2]int
	out     [2]int
}

// resolve computes padding and output extent for a spatial input size.
func (w windowAttrs) resolve(op string, in, kernel [2]int) (window, error) {
	g := window{in: in, kernel: kernel}
	for i := 0; i < 2; i++ {
		g.strides[i] = w.strides[i]
		g.dilate[i] = w.dilations[i]
		extent := (kernel[i]-1)*g.dilate[i] + 1
		switch w.autoPad {
		case "SAME_UPPER", "SAME_LOWER":
			g.out[i] = (in[i] + g.strides[i] - 1) / g.strides[i]
			total := max(0, (g.out[i]-1)*g.strides[i]+extent-in[i])
			g.begin[i] = total / 2
			if w.autoPad == "SAME_LOWER" {
				g.begin[i] = (total + 1) / 2
			}
		case "VALID":
			g.out[i] = (in[i]-extent)/g.strides[i] + 1
		default:
			g.begin[i] = w.pads[i]
			span := in[i] + w.pads[i] + w.pads[i+2] - extent
			if w.ceilMode {
				g.out[i] = (span+g.strides[i]-1)/g.strides[i] + 1
			} else {
				g.out[i] = span/g.strides[i] + 1
			}
		}
		if g.out[i] <= 0 {
			return g, &ShapeMismatchError{Op: op, Shapes: []tensor.Shape{{in[0], in[1]}}, Reason: fmt.Sprintf("window %v leaves no output", kernel)}
		}
	}
	return g, nil
}

// convOp is a 2-D convolution over NCHW input with grouped channels.
type convOp struct {
	opBase
	attrs windowAttrs
	group int

	// weights reshaped to [M, C*KH*KW] for the packed path.
	weightSrc tensor.ID
	weight2D  *tensor.Tensor
}

func newConvOp() *convOp { return &convOp{opBase: newOpBase("Conv")} }

func (o *convOp) Initialize(attrs onnx.Attributes) error {
	w, err := readWindowAttrs(o.name, attrs)
	if err != nil {
		return err
	}
	o.attrs = w
	o.group = int(attrs.Int("group", 1))
	if o.group < 1 {
		return &UnsupportedAttributeError{Op: o.name, Attribute: "group", Value: o.group}
	}
	return nil
}

func (o *convOp) CheckInputs(inputs []*tensor.Tensor) error {
	if err := checkArity(o.name, inputs, 2, 3); err != nil {
		return err
	}
	for i := range inputs {
		if err := checkType(o.name, inputs, i, floatTypes); err != nil {
			return err
		}
	}
	x, w := inputs[0].Dims(), inputs[1].Dims()
	if len(x) != 4 || len(w) != 4 {
		return &ShapeMismatchError{Op: o.name, Shapes: []tensor.Shape{x, w}, Reason: "only 2-D convolution is supported"}
	}
	if x[1] != w[1]*o.group || w[0]%o.group != 0 {
		return &ShapeMismatchError{Op: o.name, Shapes: []tensor.Shape{x, w}, Reason: fmt.Sprintf("channels do not split into %d groups", o.group)}
	}
	if b := optional(inputs, 2); b != nil && (b.Rank() != 1 || b.Size() != w[0]) {
		return &ShapeMismatchError{Op: o.name, Shapes: []tensor.Shape{w, b.Dims()}, Reason: "bias must have one value per output channel"}
	}
	return nil
}

func (o *convOp) Run(h onnx.InferenceHandler, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	return runShader(o, h, operands(inputs))
}

func (o *convOp) geometry(inputs []*tensor.Tensor) (window, error) {
	x, w := inputs[0].Dims(), inputs[1].Dims()
	kernel := [2]int{w[2], w[3]}
	if o.attrs.kernel != nil && (o.attrs.kernel[0] != w[2] || o.attrs.kernel[1] != w[3]) {
		return window{}, &ShapeMismatchError{Op: o.name, Shapes: []tensor.Shape{w}, Reason: "kernel_shape disagrees with the weights"}
	}
	return o.attrs.resolve(o.name, [2]int{x[2], x[3]}, kernel)
}

// usesIm2col reports whether the packed im2col and matmul path applies.
func (o *convOp) usesIm2col(h *InferenceHandler, inputs []*tensor.Tensor) bool {
	return h.Packed() && o.group == 1 && inputs[0].Dims()[0] == 1
}

func (o *convOp) CreateProgramInfos(h *InferenceHandler, inputs []*tensor.Tensor) ([]*ProgramInfo, error) {
	g, err := o.geometry(inputs)
	if err != nil {
		return nil, err
	}
	if o.usesIm2col(h, inputs) {
		return o.im2colInfos(h, inputs, g)
	}

	x, w := inputs[0].Dims(), inputs[1].Dims()
	out := tensor.Shape{x[0], w[0], g.out[0], g.out[1]}
	info, err := h.elementwiseInfo(o.name, inputs, out, convSource(g, x[1]/o.group, w[0]/o.group, len(inputs) == 3))
	if err != nil {
		return nil, err
	}
	return []*ProgramInfo{info}, nil
}

// convSource renders the direct convolution: A is X, B the weights, C the
// optional bias.
func convSource(g window, channelsPerGroup, featuresPerGroup int, bias bool) string {
	var b strings.Builder
	b.WriteString("float process(int indices[4]) {\n")
	fmt.Fprintf(&b, "  int group = indices[1] / %d;\n", featuresPerGroup)
	b.WriteString("  int x[4];\n  int w[4];\n  x[0] = indices[0];\n  w[0] = indices[1];\n  float value = 0.0;\n")
	fmt.Fprintf(&b, "  for (int c = 0; c < %d; c++) {\n", channelsPerGroup)
	fmt.Fprintf(&b, "    x[1] = group * %d + c;\n    w[1] = c;\n", channelsPerGroup)
	fmt.Fprintf(&b, "    for (int kh = 0; kh < %d; kh++) {\n", g.kernel[0])
	fmt.Fprintf(&b, "      int ih = indices[2] * %d - %d + kh * %d;\n", g.strides[0], g.begin[0], g.dilate[0])
	fmt.Fprintf(&b, "      if (ih < 0 || ih >= %d) {\n        continue;\n      }\n", g.in[0])
	b.WriteString("      x[2] = ih;\n      w[2] = kh;\n")
	fmt.Fprintf(&b, "      for (int kw = 0; kw < %d; kw++) {\n", g.kernel[1])
	fmt.Fprintf(&b, "        int iw = indices[3] * %d - %d + kw * %d;\n", g.strides[1], g.begin[1], g.dilate[1])
	fmt.Fprintf(&b, "        if (iw < 0 || iw >= %d) {\n          continue;\n        }\n", g.in[1])
	b.WriteString("        x[3] = iw;\n        w[3] = kw;\n        value += _A(x) * _B(w);\n      }\n    }\n  }\n")
	if bias {
		b.WriteString("  int c[1];\n  c[0] = indices[1];\n  value += _C(c);\n")
	}
	b.WriteString("  return value;\n}\n")
	return b.String()
}

// weightMatrix returns the weights viewed as [M, C*KH*KW]. Initializer
// weights are reshaped once and stay on the device for the session.
func (o *convOp) weightMatrix(h *InferenceHandler, w *tensor.Tensor) (*tensor.Tensor, error) {
	d := w.Dims()
	shape := tensor.Shape{d[0], d[1] * d[2] * d[3]}
	if !h.session.IsInitializer(w.ID()) {
		return h.View(w, shape)
	}
	if o.weight2D != nil && o.weightSrc == w.ID() {
		return o.weight2D, nil
	}
	w2, err := w.Reshape(shape)
	if err != nil {
		return nil, err
	}
	h.session.MarkInitializer(w2)
	o.weightSrc, o.weight2D = w.ID(), w2
	return w2, nil
}

// im2colInfos lowers the convolution to three passes: unfold X into packed
// columns, multiply by the weight matrix, then fold the product into NCHW
// adding the bias.
func (o *convOp) im2colInfos(h *InferenceHandler, inputs []*tensor.Tensor, g window) ([]*ProgramInfo, error) {
	x, w := inputs[0].Dims(), inputs[1].Dims()
	m, k, p := w[0], w[1]*w[2]*w[3], g.out[0]*g.out[1]

	xl, err := h.inputLayouts(inputs[:1])
	if err != nil {
		return nil, err
	}
	colLayout, err := h.CreateTextureLayout(tensor.Shape{k, p}, 4, nil)
	if err != nil {
		return nil, err
	}
	var col strings.Builder
	col.WriteString("float process(int indices[2]) {\n")
	fmt.Fprintf(&col, "  int c = indices[0] / %d;\n  int r = indices[0] - c * %d;\n", w[2]*w[3], w[2]*w[3])
	fmt.Fprintf(&col, "  int kh = r / %d;\n  int kw = r - kh * %d;\n", w[3], w[3])
	fmt.Fprintf(&col, "  int oh = indices[1] / %d;\n  int ow = indices[1] - oh * %d;\n", g.out[1], g.out[1])
	fmt.Fprintf(&col, "  int ih = oh * %d - %d + kh * %d;\n", g.strides[0], g.begin[0], g.dilate[0])
	fmt.Fprintf(&col, "  int iw = ow * %d - %d + kw * %d;\n", g.strides[1], g.begin[1], g.dilate[1])
	fmt.Fprintf(&col, "  if (ih < 0 || ih >= %d || iw < 0 || iw >= %d) {\n    return 0.0;\n  }\n", x[2], x[3])
	col.WriteString("  int xi[4];\n  xi[0] = 0;\n  xi[1] = c;\n  xi[2] = ih;\n  xi[3] = iw;\n  return _A(xi);\n}\n")

	w2, err := o.weightMatrix(h, inputs[1])
	if err != nil {
		return nil, err
	}
	wtd, err := h.TextureData(w2, true)
	if err != nil {
		return nil, err
	}
	prodLayout, err := h.CreateTextureLayout(tensor.Shape{m, p}, 4, nil)
	if err != nil {
		return nil, err
	}

	outLayout, err := h.CreateTextureLayout(tensor.Shape{1, m, g.out[0], g.out[1]}, 1, nil)
	if err != nil {
		return nil, err
	}
	epilogueLayouts := []*TextureLayout{prodLayout}
	var epi strings.Builder
	epi.WriteString("float process(int indices[4]) {\n  int a[2];\n  a[0] = indices[1];\n")
	fmt.Fprintf(&epi, "  a[1] = indices[2] * %d + indices[3];\n  float value = _A(a);\n", g.out[1])
	if len(inputs) == 3 {
		bl, err := h.inputLayouts(inputs[2:])
		if err != nil {
			return nil, err
		}
		epilogueLayouts = append(epilogueLayouts, bl[0])
		epi.WriteString("  int b[1];\n  b[0] = indices[1];\n  value += _B(b);\n")
	}
	epi.WriteString("  return value;\n}\n")

	return []*ProgramInfo{
		{Name: "Conv (im2col)", InputLayouts: xl, Samplers: []string{"A"}, OutputLayout: colLayout, Source: col.String()},
		{Name: "Conv (matmul)", InputLayouts: []*TextureLayout{wtd.TextureLayout, colLayout}, Samplers: []string{"A", "B"}, OutputLayout: prodLayout, Source: matmulSource(2, 2, 2, k, true)},
		{Name: "Conv (epilogue)", InputLayouts: epilogueLayouts, Samplers: samplerNames(len(epilogueLayouts)), OutputLayout: outLayout, Source: epi.String()},
	}, nil
}

func (o *convOp) CreateRunData(h *InferenceHandler, infos []*ProgramInfo, inputs []*tensor.Tensor) ([]*RunData, error) {
	if len(infos) == 1 {
		return h.singlePass(infos[0], inputs, tensor.Float32, nil)
	}

	xtd, err := h.bindInputs(infos[0], inputs[:1])
	if err != nil {
		return nil, err
	}
	col, err := h.NewScratch(infos[0].OutputLayout)
	if err != nil {
		return nil, err
	}
	w2, err := o.weightMatrix(h, inputs[1])
	if err != nil {
		return nil, err
	}
	wtd, err := h.TextureData(w2, true)
	if err != nil {
		return nil, err
	}
	prod, err := h.NewScratch(infos[1].OutputLayout)
	if err != nil {
		return nil, err
	}
	epilogueInputs := []*TextureData{prod}
	if len(inputs) == 3 {
		btd, err := h.bindInputs(&ProgramInfo{Name: o.name, InputLayouts: infos[2].InputLayouts[1:]}, inputs[2:])
		if err != nil {
			return nil, err
		}
		epilogueInputs = append(epilogueInputs, btd[0])
	}
	out, result, err := h.NewOutput(infos[2].OutputLayout, tensor.Float32)
	if err != nil {
		return nil, err
	}
	return []*RunData{
		{Inputs: xtd, Output: col},
		{Inputs: []*TextureData{wtd, col}, Output: prod},
		{Inputs: epilogueInputs, Output: out, Result: result},
	}, nil
}
