package webgl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/onnxgl/internal/onnx"
	"github.com/born-ml/onnxgl/internal/tensor"
)

func TestLookupRuleOpsetRanges(t *testing.T) {
	tests := []struct {
		op     string
		domain string
		opset  int
		found  bool
	}{
		{"ReduceSum", "", 12, true},
		{"ReduceSum", "", 13, false},
		{"ReduceMean", "", 17, true},
		{"ReduceMean", "", 18, false},
		{"Upsample", "", 9, true},
		{"Upsample", "", 10, false},
		{"Resize", "", 9, false},
		{"Resize", "", 10, true},
		{"Resize", "", 18, false},
		{"Einsum", "", 11, false},
		{"Einsum", "", 12, true},
		{"Scatter", "", 11, false},
		{"ScatterElements", "", 11, true},
		{"CumSum", "", 10, false},
		{"Relu", "ai.onnx", 13, true},
		{"Relu", "com.microsoft", 13, false},
		{"Relu", "", 0, true},
		{"NonZero", "", 13, false},
	}
	for _, tt := range tests {
		_, ok := lookupRule(tt.op, tt.domain, tt.opset)
		assert.Equal(t, tt.found, ok, "%s %q opset %d", tt.op, tt.domain, tt.opset)
	}
}

func TestOpsetVersionDefaultDomain(t *testing.T) {
	opsets := []onnx.OpsetImport{{Domain: "ai.onnx", Version: 11}, {Domain: "ai.onnx.ml", Version: 2}}
	assert.Equal(t, 11, opsetVersion(opsets, ""))
	assert.Equal(t, 2, opsetVersion(opsets, "ai.onnx.ml"))
	assert.Equal(t, 0, opsetVersion(opsets, "com.example"))
}

func TestSupportedOperators(t *testing.T) {
	ops := SupportedOperators()
	require.Len(t, ops, len(resolveRules))

	seen := make(map[string]bool)
	for _, op := range ops {
		seen[op.OpType] = true
		if op.MaxOpset != 0 {
			assert.LessOrEqual(t, op.MinOpset, op.MaxOpset, op.OpType)
		}
	}
	for _, name := range []string{"Conv", "MatMul", "Softmax", "Upsample", "Reshape", "Concat"} {
		assert.True(t, seen[name], name)
	}
}

func TestResolveBindsAttributes(t *testing.T) {
	hs := newHarness(t, false)
	op := hs.resolve(t, "Gemm", 13, 1, onnx.Attributes{"transA": onnx.Int(1), "beta": onnx.Float(0)})
	g, ok := op.(*gemmOp)
	require.True(t, ok)
	assert.True(t, g.transA)
	assert.False(t, g.transB)
	assert.Equal(t, float32(0), g.beta)
	assert.Equal(t, float32(1), g.alpha)

	a := hs.resolve(t, "Relu", 13, 1, nil).(ShaderOperator)
	b := hs.resolve(t, "Relu", 13, 1, nil).(ShaderOperator)
	assert.NotEqual(t, a.ID(), b.ID(), "every node gets its own program slot")
}

func TestReshapeTarget(t *testing.T) {
	tests := []struct {
		in     tensor.Shape
		target []int
		want   tensor.Shape
		ok     bool
	}{
		{tensor.Shape{2, 3, 4}, []int{4, -1}, tensor.Shape{4, 6}, true},
		{tensor.Shape{2, 3, 4}, []int{0, -1}, tensor.Shape{2, 12}, true},
		{tensor.Shape{2, 3, 4}, []int{0, 0, 0}, tensor.Shape{2, 3, 4}, true},
		{tensor.Shape{2, 3, 4}, []int{-1}, tensor.Shape{24}, true},
		{tensor.Shape{}, []int{1, 1}, tensor.Shape{1, 1}, true},
		{tensor.Shape{2, 3}, []int{-1, -1}, nil, false},
		{tensor.Shape{2, 3}, []int{4, -1}, nil, false},
		{tensor.Shape{2, 3}, []int{5}, nil, false},
		{tensor.Shape{2, 3}, []int{-2, 3}, nil, false},
	}
	for _, tt := range tests {
		got, err := reshapeTarget(tt.in, tt.target)
		if !tt.ok {
			assert.ErrorIs(t, err, ErrShapeMismatch, "%v -> %v", tt.in, tt.target)
			continue
		}
		require.NoError(t, err, "%v -> %v", tt.in, tt.target)
		assert.Equal(t, tt.want, got)
	}
}

func TestWindowResolve(t *testing.T) {
	tests := []struct {
		name   string
		attrs  onnx.Attributes
		in     [2]int
		kernel [2]int
		begin  [2]int
		out    [2]int
	}{
		{
			name: "explicit pads", attrs: onnx.Attributes{"pads": onnx.Ints(1, 2, 1, 2)},
			in: [2]int{5, 5}, kernel: [2]int{3, 3}, begin: [2]int{1, 2}, out: [2]int{5, 7},
		},
		{
			name: "same upper", attrs: onnx.Attributes{"auto_pad": onnx.String("SAME_UPPER"), "strides": onnx.Ints(2, 2)},
			in: [2]int{6, 6}, kernel: [2]int{3, 3}, begin: [2]int{0, 0}, out: [2]int{3, 3},
		},
		{
			name: "same lower", attrs: onnx.Attributes{"auto_pad": onnx.String("SAME_LOWER"), "strides": onnx.Ints(2, 2)},
			in: [2]int{6, 6}, kernel: [2]int{3, 3}, begin: [2]int{1, 1}, out: [2]int{3, 3},
		},
		{
			name: "valid", attrs: onnx.Attributes{"auto_pad": onnx.String("VALID")},
			in: [2]int{7, 5}, kernel: [2]int{3, 3}, out: [2]int{5, 3},
		},
		{
			name: "dilated", attrs: onnx.Attributes{"dilations": onnx.Ints(2, 2)},
			in: [2]int{7, 7}, kernel: [2]int{3, 3}, out: [2]int{3, 3},
		},
		{
			name: "ceil mode", attrs: onnx.Attributes{"strides": onnx.Ints(2, 2), "ceil_mode": onnx.Int(1)},
			in: [2]int{6, 6}, kernel: [2]int{3, 3}, out: [2]int{3, 3},
		},
		{
			name: "floor mode", attrs: onnx.Attributes{"strides": onnx.Ints(2, 2)},
			in: [2]int{6, 6}, kernel: [2]int{3, 3}, out: [2]int{2, 2},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := readWindowAttrs("Conv", tt.attrs)
			require.NoError(t, err)
			g, err := w.resolve("Conv", tt.in, tt.kernel)
			require.NoError(t, err)
			assert.Equal(t, tt.begin, g.begin)
			assert.Equal(t, tt.out, g.out)
		})
	}
}

func TestWindowResolveRejects(t *testing.T) {
	_, err := readWindowAttrs("MaxPool", onnx.Attributes{"strides": onnx.Ints(1, 1, 1)})
	assert.ErrorIs(t, err, ErrUnsupportedAttribute)

	w, err := readWindowAttrs("MaxPool", nil)
	require.NoError(t, err)
	_, err = w.resolve("MaxPool", [2]int{2, 2}, [2]int{3, 3})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}
