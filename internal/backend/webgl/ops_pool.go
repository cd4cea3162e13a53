package webgl

import (
	"fmt"
	"strings"

	"github.com/born-ml/onnxgl/internal/onnx"
	"github.com/born-ml/onnxgl/internal/tensor"
)

// poolOp is MaxPool, AveragePool and their global variants on NCHW input.
type poolOp struct {
	opBase
	average bool
	global  bool

	attrs           windowAttrs
	countIncludePad bool
}

func newPoolOp(name string, average, global bool) *poolOp {
	return &poolOp{opBase: newOpBase(name), average: average, global: global}
}

func (o *poolOp) Initialize(attrs onnx.Attributes) error {
	if o.global {
		return nil
	}
	w, err := readWindowAttrs(o.name, attrs)
	if err != nil {
		return err
	}
	if w.kernel == nil {
		return &UnsupportedAttributeError{Op: o.name, Attribute: "kernel_shape", Value: "missing"}
	}
	if attrs.Int("storage_order", 0) != 0 {
		return &UnsupportedAttributeError{Op: o.name, Attribute: "storage_order", Value: attrs.Int("storage_order", 0)}
	}
	o.attrs = w
	o.countIncludePad = attrs.Int("count_include_pad", 0) != 0
	return nil
}

func (o *poolOp) CheckInputs(inputs []*tensor.Tensor) error {
	if err := checkArity(o.name, inputs, 1, 1); err != nil {
		return err
	}
	if err := checkType(o.name, inputs, 0, floatTypes); err != nil {
		return err
	}
	if inputs[0].Rank() != 4 {
		return &ShapeMismatchError{Op: o.name, Shapes: []tensor.Shape{inputs[0].Dims()}, Reason: "only 2-D pooling is supported"}
	}
	return nil
}

func (o *poolOp) Run(h onnx.InferenceHandler, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	return runShader(o, h, inputs)
}

func (o *poolOp) CreateProgramInfos(h *InferenceHandler, inputs []*tensor.Tensor) ([]*ProgramInfo, error) {
	x := inputs[0].Dims()
	var (
		out    tensor.Shape
		source string
	)
	if o.global {
		out = tensor.Shape{x[0], x[1], 1, 1}
		source = o.globalSource(x[2], x[3])
	} else {
		g, err := o.attrs.resolve(o.name, [2]int{x[2], x[3]}, [2]int{o.attrs.kernel[0], o.attrs.kernel[1]})
		if err != nil {
			return nil, err
		}
		out = tensor.Shape{x[0], x[1], g.out[0], g.out[1]}
		source = o.windowSource(g)
	}
	info, err := h.elementwiseInfo(o.name, inputs, out, source)
	if err != nil {
		return nil, err
	}
	return []*ProgramInfo{info}, nil
}

func (o *poolOp) accumulate(b *strings.Builder, indent string) {
	if o.average {
		fmt.Fprintf(b, "%svalue += _A(x);\n%scount++;\n", indent, indent)
		return
	}
	fmt.Fprintf(b, "%svalue = max(value, _A(x));\n", indent)
}

func (o *poolOp) start(b *strings.Builder) {
	b.WriteString("float process(int indices[4]) {\n  int x[4];\n  x[0] = indices[0];\n  x[1] = indices[1];\n  int count = 0;\n")
	if o.average {
		b.WriteString("  float value = 0.0;\n")
	} else {
		fmt.Fprintf(b, "  float value = -%s;\n", flt32Max)
	}
}

func (o *poolOp) windowSource(g window) string {
	var b strings.Builder
	o.start(&b)
	fmt.Fprintf(&b, "  for (int kh = 0; kh < %d; kh++) {\n", g.kernel[0])
	fmt.Fprintf(&b, "    int ih = indices[2] * %d - %d + kh * %d;\n", g.strides[0], g.begin[0], g.dilate[0])
	fmt.Fprintf(&b, "    if (ih < 0 || ih >= %d) {\n      continue;\n    }\n    x[2] = ih;\n", g.in[0])
	fmt.Fprintf(&b, "    for (int kw = 0; kw < %d; kw++) {\n", g.kernel[1])
	fmt.Fprintf(&b, "      int iw = indices[3] * %d - %d + kw * %d;\n", g.strides[1], g.begin[1], g.dilate[1])
	fmt.Fprintf(&b, "      if (iw < 0 || iw >= %d) {\n        continue;\n      }\n      x[3] = iw;\n", g.in[1])
	o.accumulate(&b, "      ")
	b.WriteString("    }\n  }\n")
	if o.average {
		if o.countIncludePad {
			fmt.Fprintf(&b, "  value /= %s;\n", glslFloat(float32(g.kernel[0]*g.kernel[1])))
		} else {
			b.WriteString("  value /= float(count);\n")
		}
	}
	b.WriteString("  return value;\n}\n")
	return b.String()
}

func (o *poolOp) globalSource(height, width int) string {
	var b strings.Builder
	o.start(&b)
	fmt.Fprintf(&b, "  for (int i = 0; i < %d; i++) {\n", height*width)
	fmt.Fprintf(&b, "    x[2] = i / %d;\n    x[3] = i - x[2] * %d;\n", width, width)
	o.accumulate(&b, "    ")
	b.WriteString("  }\n")
	if o.average {
		b.WriteString("  value /= float(count);\n")
	}
	b.WriteString("  return value;\n}\n")
	return b.String()
}

func (o *poolOp) CreateRunData(h *InferenceHandler, infos []*ProgramInfo, inputs []*tensor.Tensor) ([]*RunData, error) {
	return h.singlePass(infos[0], inputs, tensor.Float32, nil)
}
