package webgl

import (
	"fmt"
	"slices"
	"strings"

	"github.com/born-ml/onnxgl/internal/onnx"
	"github.com/born-ml/onnxgl/internal/tensor"
)

// einsumOp evaluates an Einstein summation over any number of operands.
// Every subscript letter is one loop variable: output letters are read from
// the output index and the remaining letters are summed over. Without an
// explicit output the letters used exactly once form it, in alphabetical
// order. Ellipsis is not supported.
type einsumOp struct {
	opBase
	terms  []string
	output string
}

func newEinsumOp() *einsumOp { return &einsumOp{opBase: newOpBase("Einsum")} }

func isSubscript(r rune) bool {
	return ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z')
}

func (o *einsumOp) Initialize(attrs onnx.Attributes) error {
	eq := strings.ReplaceAll(attrs.String("equation", ""), " ", "")
	if eq == "" || strings.Contains(eq, ".") {
		return &UnsupportedAttributeError{Op: o.name, Attribute: "equation", Value: eq}
	}
	lhs, rhs, explicit := strings.Cut(eq, "->")
	o.terms = strings.Split(lhs, ",")

	counts := make(map[rune]int)
	for _, term := range o.terms {
		for _, r := range term {
			if !isSubscript(r) {
				return &UnsupportedAttributeError{Op: o.name, Attribute: "equation", Value: eq}
			}
			counts[r]++
		}
	}

	if explicit {
		for i, r := range rhs {
			if counts[r] == 0 || strings.ContainsRune(rhs[:i], r) {
				return &UnsupportedAttributeError{Op: o.name, Attribute: "equation", Value: eq}
			}
		}
		o.output = rhs
		return nil
	}
	var once []rune
	for r, n := range counts {
		if n == 1 {
			once = append(once, r)
		}
	}
	slices.Sort(once)
	o.output = string(once)
	return nil
}

func (o *einsumOp) CheckInputs(inputs []*tensor.Tensor) error {
	if err := checkArity(o.name, inputs, len(o.terms), len(o.terms)); err != nil {
		return err
	}
	for i := range inputs {
		if err := checkType(o.name, inputs, i, floatTypes); err != nil {
			return err
		}
	}
	_, err := o.dims(inputs)
	return err
}

func (o *einsumOp) Run(h onnx.InferenceHandler, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	return runShader(o, h, inputs)
}

// dims returns the extent of every subscript letter.
func (o *einsumOp) dims(inputs []*tensor.Tensor) (map[rune]int, error) {
	dims := make(map[rune]int)
	for i, term := range o.terms {
		shape := inputs[i].Dims()
		if len(term) != len(shape) {
			return nil, &ShapeMismatchError{Op: o.name, Shapes: []tensor.Shape{shape}, Reason: fmt.Sprintf("subscripts %q for rank %d", term, len(shape))}
		}
		for j, r := range term {
			if d, ok := dims[r]; ok && d != shape[j] {
				return nil, &ShapeMismatchError{Op: o.name, Shapes: []tensor.Shape{shape}, Reason: fmt.Sprintf("subscript %c is %d and %d", r, d, shape[j])}
			}
			dims[r] = shape[j]
		}
	}
	return dims, nil
}

func (o *einsumOp) CreateProgramInfos(h *InferenceHandler, inputs []*tensor.Tensor) ([]*ProgramInfo, error) {
	dims, err := o.dims(inputs)
	if err != nil {
		return nil, err
	}

	var letters []rune
	for _, term := range o.terms {
		for _, r := range term {
			if !slices.Contains(letters, r) {
				letters = append(letters, r)
			}
		}
	}
	pos := func(r rune) int { return slices.Index(letters, r) }

	out := make(tensor.Shape, 0, len(o.output))
	for _, r := range o.output {
		out = append(out, dims[r])
	}
	var summed []rune
	sumSize := 1
	for _, r := range letters {
		if !strings.ContainsRune(o.output, r) {
			summed = append(summed, r)
			sumSize *= dims[r]
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "float process(int indices[%d]) {\n  int idx[%d];\n", shaderRank(out), len(letters))
	for i, r := range o.output {
		fmt.Fprintf(&b, "  idx[%d] = indices[%d];\n", pos(r), i)
	}
	for _, r := range summed {
		fmt.Fprintf(&b, "  idx[%d] = 0;\n", pos(r))
	}
	for i, term := range o.terms {
		fmt.Fprintf(&b, "  int a%d[%d];\n", i, max(len(term), 1))
		if term == "" {
			fmt.Fprintf(&b, "  a%d[0] = 0;\n", i)
		}
	}

	fmt.Fprintf(&b, "  float value = 0.0;\n  for (int i = 0; i < %d; i++) {\n", sumSize)
	factors := make([]string, len(o.terms))
	for i, term := range o.terms {
		for j, r := range term {
			fmt.Fprintf(&b, "    a%d[%d] = idx[%d];\n", i, j, pos(r))
		}
		factors[i] = fmt.Sprintf("_%s(a%d)", samplerName(i), i)
	}
	fmt.Fprintf(&b, "    value += %s;\n", strings.Join(factors, " * "))

	indent := "    "
	for _, r := range summed {
		p := pos(r)
		fmt.Fprintf(&b, "%sidx[%d] += 1;\n%sif (idx[%d] >= %d) {\n%s  idx[%d] = 0;\n", indent, p, indent, p, dims[r], indent, p)
		indent += "  "
	}
	for range summed {
		indent = indent[:len(indent)-2]
		fmt.Fprintf(&b, "%s}\n", indent)
	}
	b.WriteString("  }\n  return value;\n}\n")

	info, err := h.elementwiseInfo(o.name, inputs, out, b.String())
	if err != nil {
		return nil, err
	}
	return []*ProgramInfo{info}, nil
}

func (o *einsumOp) CreateRunData(h *InferenceHandler, infos []*ProgramInfo, inputs []*tensor.Tensor) ([]*RunData, error) {
	return h.singlePass(infos[0], inputs, tensor.Float32, nil)
}
