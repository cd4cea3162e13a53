package webgl

import (
	"fmt"
	"slices"

	"github.com/born-ml/onnxgl/internal/onnx"
	"github.com/born-ml/onnxgl/internal/tensor"
)

// viewOp changes only the shape of its first input. The result addresses
// the input texture when there is one and shares the host buffer otherwise.
type viewOp struct {
	name  string
	opset int
	// shape computes the result shape from the inputs.
	shape func(inputs []*tensor.Tensor) (tensor.Shape, error)

	attrs onnx.Attributes
}

func (o *viewOp) Initialize(attrs onnx.Attributes) error {
	o.attrs = attrs
	return nil
}

func (o *viewOp) CheckInputs(inputs []*tensor.Tensor) error {
	if err := checkArity(o.name, inputs, 1, 2); err != nil {
		return err
	}
	return checkType(o.name, inputs, 1, indexTypes)
}

func (o *viewOp) Run(h onnx.InferenceHandler, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	ih, err := handlerOf(h)
	if err != nil {
		return nil, err
	}
	shape, err := o.shape(inputs)
	if err != nil {
		return nil, err
	}
	out, err := ih.View(inputs[0], shape)
	if err != nil {
		return nil, err
	}
	return []*tensor.Tensor{out}, nil
}

// axesArg returns the axes attribute, or the axes input from opset 13.
func (o *viewOp) axesArg(inputs []*tensor.Tensor) ([]int, error) {
	if o.opset >= 13 {
		if t := optional(inputs, 1); t != nil {
			return t.IntegerData()
		}
		return nil, nil
	}
	return o.attrs.IntsAsInts("axes", nil), nil
}

func newReshapeOp(opset int) *viewOp {
	o := &viewOp{name: "Reshape", opset: opset}
	o.shape = func(inputs []*tensor.Tensor) (tensor.Shape, error) {
		var target []int
		if o.opset < 5 {
			target = o.attrs.IntsAsInts("shape", nil)
		} else {
			t := optional(inputs, 1)
			if t == nil {
				return nil, fmt.Errorf("%s: shape input is missing", o.name)
			}
			var err error
			if target, err = t.IntegerData(); err != nil {
				return nil, err
			}
		}
		return reshapeTarget(inputs[0].Dims(), target)
	}
	return o
}

// reshapeTarget resolves 0 (copy the input dimension) and -1 (infer).
func reshapeTarget(in tensor.Shape, target []int) (tensor.Shape, error) {
	out := make(tensor.Shape, len(target))
	infer := -1
	known := 1
	for i, d := range target {
		switch {
		case d == 0 && i < len(in):
			out[i] = in[i]
		case d == -1 && infer < 0:
			infer = i
			continue
		case d < 0:
			return nil, &ShapeMismatchError{Op: "Reshape", Shapes: []tensor.Shape{in}, Reason: fmt.Sprintf("invalid target %v", target)}
		default:
			out[i] = d
		}
		known *= out[i]
	}
	if infer >= 0 {
		if known == 0 || in.NumElements()%known != 0 {
			return nil, &ShapeMismatchError{Op: "Reshape", Shapes: []tensor.Shape{in}, Reason: fmt.Sprintf("cannot infer a dimension of %v", target)}
		}
		out[infer] = in.NumElements() / known
	}
	if out.NumElements() != in.NumElements() {
		return nil, &ShapeMismatchError{Op: "Reshape", Shapes: []tensor.Shape{in, out}, Reason: "element count differs"}
	}
	return out, nil
}

func newFlattenOp(opset int) *viewOp {
	o := &viewOp{name: "Flatten", opset: opset}
	o.shape = func(inputs []*tensor.Tensor) (tensor.Shape, error) {
		in := inputs[0].Dims()
		axis := int(o.attrs.Int("axis", 1))
		if axis < 0 {
			axis += len(in)
		}
		if axis < 0 || axis > len(in) {
			return nil, &UnsupportedAttributeError{Op: o.name, Attribute: "axis", Value: o.attrs.Int("axis", 1)}
		}
		return tensor.Shape{product(in[:axis]), product(in[axis:])}, nil
	}
	return o
}

func newSqueezeOp(opset int) *viewOp {
	o := &viewOp{name: "Squeeze", opset: opset}
	o.shape = func(inputs []*tensor.Tensor) (tensor.Shape, error) {
		in := inputs[0].Dims()
		axes, err := o.axesArg(inputs)
		if err != nil {
			return nil, err
		}
		drop := make([]bool, len(in))
		for _, a := range axes {
			n, err := normalizeAxis(a, len(in))
			if err != nil {
				return nil, fmt.Errorf("%s: %w", o.name, err)
			}
			if in[n] != 1 {
				return nil, &ShapeMismatchError{Op: o.name, Shapes: []tensor.Shape{in}, Reason: fmt.Sprintf("axis %d has size %d", n, in[n])}
			}
			drop[n] = true
		}
		out := tensor.Shape{}
		for i, d := range in {
			if drop[i] || (len(axes) == 0 && d == 1) {
				continue
			}
			out = append(out, d)
		}
		return out, nil
	}
	return o
}

func newUnsqueezeOp(opset int) *viewOp {
	o := &viewOp{name: "Unsqueeze", opset: opset}
	o.shape = func(inputs []*tensor.Tensor) (tensor.Shape, error) {
		in := inputs[0].Dims()
		axes, err := o.axesArg(inputs)
		if err != nil {
			return nil, err
		}
		rank := len(in) + len(axes)
		inserted := make([]int, 0, len(axes))
		for _, a := range axes {
			n, err := normalizeAxis(a, rank)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", o.name, err)
			}
			if slices.Contains(inserted, n) {
				return nil, &UnsupportedAttributeError{Op: o.name, Attribute: "axes", Value: axes}
			}
			inserted = append(inserted, n)
		}
		out := make(tensor.Shape, 0, rank)
		next := 0
		for i := 0; i < rank; i++ {
			if slices.Contains(inserted, i) {
				out = append(out, 1)
				continue
			}
			out = append(out, in[next])
			next++
		}
		return out, nil
	}
	return o
}

// dropoutOp is the identity at inference. A requested mask output is all
// true.
type dropoutOp struct {
	outputs int
}

func newDropoutOp(outputs int) *dropoutOp { return &dropoutOp{outputs: outputs} }

func (o *dropoutOp) Initialize(onnx.Attributes) error { return nil }

func (o *dropoutOp) CheckInputs(inputs []*tensor.Tensor) error {
	if err := checkArity("Dropout", inputs, 1, 3); err != nil {
		return err
	}
	return checkType("Dropout", inputs, 0, floatTypes)
}

func (o *dropoutOp) Run(_ onnx.InferenceHandler, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	outs := []*tensor.Tensor{inputs[0]}
	if o.outputs > 1 {
		mask := make([]bool, inputs[0].Size())
		for i := range mask {
			mask[i] = true
		}
		t, err := tensor.FromBool(inputs[0].Shape(), mask)
		if err != nil {
			return nil, err
		}
		outs = append(outs, t)
	}
	return outs, nil
}
