package webgl

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/onnxgl/internal/backend/webgl/glsl"
	"github.com/born-ml/onnxgl/internal/onnx"
	"github.com/born-ml/onnxgl/internal/tensor"
)

// harness runs operators on an offline context. Results carry the right
// shapes and types but no values.
type harness struct {
	ctx *OfflineContext
	s   *SessionHandler
}

func newHarness(t *testing.T, packed bool) *harness {
	t.Helper()
	ctx := NewOfflineContext(glsl.WebGL2, 4096)
	b := New(WithContext(ctx), WithPacked(packed))
	s, err := b.NewSessionHandler()
	require.NoError(t, err)
	t.Cleanup(func() {
		s.Dispose()
		b.Dispose()
	})
	return &harness{ctx: ctx, s: s}
}

func (hs *harness) resolve(t *testing.T, opType string, opset, outputs int, attrs onnx.Attributes) onnx.Operator {
	t.Helper()
	node := &onnx.Node{OpType: opType, Attributes: attrs, Outputs: make([]int, outputs)}
	op, err := hs.s.Resolve(node, []onnx.OpsetImport{{Version: opset}})
	require.NoError(t, err)
	return op
}

func (hs *harness) run(t *testing.T, op onnx.Operator, inputs ...*tensor.Tensor) []*tensor.Tensor {
	t.Helper()
	require.NoError(t, op.CheckInputs(inputs))
	h := hs.s.NewInferenceHandler()
	t.Cleanup(h.Dispose)
	outs, err := op.Run(h, inputs)
	require.NoError(t, err)
	return outs
}

func (hs *harness) passes(t *testing.T, op onnx.Operator) int {
	t.Helper()
	so, ok := op.(ShaderOperator)
	require.True(t, ok, "%T is not a shader operator", op)
	artifacts, ok := hs.s.Programs().Get(so.ID())
	require.True(t, ok)
	return len(artifacts)
}

func floats(t *testing.T, shape ...int) *tensor.Tensor {
	t.Helper()
	return mustFloat32(t, tensor.Shape(shape), seq(tensor.Shape(shape).NumElements()))
}

func ints(t *testing.T, shape tensor.Shape, v ...int32) *tensor.Tensor {
	t.Helper()
	x, err := tensor.FromInt32(shape, v)
	require.NoError(t, err)
	return x
}

func vec(t *testing.T, v ...int32) *tensor.Tensor {
	t.Helper()
	return ints(t, tensor.Shape{len(v)}, v...)
}

func TestOperatorOutputShapes(t *testing.T) {
	tests := []struct {
		name    string
		op      string
		opset   int
		outputs int
		attrs   onnx.Attributes
		inputs  func(t *testing.T) []*tensor.Tensor
		want    []tensor.Shape
		passes  int
		packed  bool
	}{
		{
			name: "add broadcast", op: "Add", opset: 13,
			inputs: func(t *testing.T) []*tensor.Tensor { return []*tensor.Tensor{floats(t, 2, 1, 3), floats(t, 4, 1)} },
			want:   []tensor.Shape{{2, 4, 3}}, passes: 1,
		},
		{
			name: "sum", op: "Sum", opset: 13,
			inputs: func(t *testing.T) []*tensor.Tensor { return []*tensor.Tensor{floats(t, 3), floats(t, 2, 1), floats(t)} },
			want:   []tensor.Shape{{2, 3}}, passes: 1,
		},
		{
			name: "transpose default", op: "Transpose", opset: 13,
			inputs: func(t *testing.T) []*tensor.Tensor { return []*tensor.Tensor{floats(t, 2, 3, 4)} },
			want:   []tensor.Shape{{4, 3, 2}}, passes: 1,
		},
		{
			name: "transpose perm", op: "Transpose", opset: 13, attrs: onnx.Attributes{"perm": onnx.Ints(1, 0, 2)},
			inputs: func(t *testing.T) []*tensor.Tensor { return []*tensor.Tensor{floats(t, 2, 3, 4)} },
			want:   []tensor.Shape{{3, 2, 4}}, passes: 1,
		},
		{
			name: "concat", op: "Concat", opset: 13, attrs: onnx.Attributes{"axis": onnx.Int(-1)},
			inputs: func(t *testing.T) []*tensor.Tensor { return []*tensor.Tensor{floats(t, 2, 3), floats(t, 2, 5)} },
			want:   []tensor.Shape{{2, 8}}, passes: 1,
		},
		{
			name: "split equal", op: "Split", opset: 13, outputs: 3,
			inputs: func(t *testing.T) []*tensor.Tensor { return []*tensor.Tensor{floats(t, 6, 2)} },
			want:   []tensor.Shape{{2, 2}, {2, 2}, {2, 2}}, passes: 3,
		},
		{
			name: "split sizes", op: "Split", opset: 13, outputs: 2, attrs: onnx.Attributes{"axis": onnx.Int(1)},
			inputs: func(t *testing.T) []*tensor.Tensor { return []*tensor.Tensor{floats(t, 2, 6), vec(t, 1, 5)} },
			want:   []tensor.Shape{{2, 1}, {2, 5}}, passes: 2,
		},
		{
			name: "slice", op: "Slice", opset: 13,
			inputs: func(t *testing.T) []*tensor.Tensor {
				return []*tensor.Tensor{floats(t, 4, 6), vec(t, 1, -3), vec(t, 3, 1000)}
			},
			want: []tensor.Shape{{2, 3}}, passes: 1,
		},
		{
			name: "slice reversed", op: "Slice", opset: 13,
			inputs: func(t *testing.T) []*tensor.Tensor {
				return []*tensor.Tensor{floats(t, 4, 6), vec(t, -1), vec(t, -1000), vec(t, 1), vec(t, -2)}
			},
			want: []tensor.Shape{{4, 3}}, passes: 1,
		},
		{
			name: "slice attributes", op: "Slice", opset: 9,
			attrs:  onnx.Attributes{"starts": onnx.Ints(0), "ends": onnx.Ints(2), "axes": onnx.Ints(1)},
			inputs: func(t *testing.T) []*tensor.Tensor { return []*tensor.Tensor{floats(t, 3, 4)} },
			want:   []tensor.Shape{{3, 2}}, passes: 1,
		},
		{
			name: "tile", op: "Tile", opset: 13,
			inputs: func(t *testing.T) []*tensor.Tensor { return []*tensor.Tensor{floats(t, 2, 3), vec(t, 2, 1)} },
			want:   []tensor.Shape{{4, 3}}, passes: 1,
		},
		{
			name: "pad", op: "Pad", opset: 13, attrs: onnx.Attributes{"mode": onnx.String("reflect")},
			inputs: func(t *testing.T) []*tensor.Tensor { return []*tensor.Tensor{floats(t, 3, 3), vec(t, 1, 0, 1, 2)} },
			want:   []tensor.Shape{{5, 5}}, passes: 1,
		},
		{
			name: "pad attributes", op: "Pad", opset: 2, attrs: onnx.Attributes{"pads": onnx.Ints(0, 1, 0, 1), "value": onnx.Float(2)},
			inputs: func(t *testing.T) []*tensor.Tensor { return []*tensor.Tensor{floats(t, 2, 2)} },
			want:   []tensor.Shape{{2, 4}}, passes: 1,
		},
		{
			name: "depth to space", op: "DepthToSpace", opset: 13, attrs: onnx.Attributes{"blocksize": onnx.Int(2), "mode": onnx.String("CRD")},
			inputs: func(t *testing.T) []*tensor.Tensor { return []*tensor.Tensor{floats(t, 1, 8, 2, 3)} },
			want:   []tensor.Shape{{1, 2, 4, 6}}, passes: 1,
		},
		{
			name: "gather", op: "Gather", opset: 13,
			inputs: func(t *testing.T) []*tensor.Tensor {
				return []*tensor.Tensor{floats(t, 5, 4), ints(t, tensor.Shape{2, 3}, 0, 1, 2, -1, -2, 4)}
			},
			want: []tensor.Shape{{2, 3, 4}}, passes: 1,
		},
		{
			name: "gather axis 1", op: "Gather", opset: 13, attrs: onnx.Attributes{"axis": onnx.Int(1)},
			inputs: func(t *testing.T) []*tensor.Tensor { return []*tensor.Tensor{floats(t, 5, 4), ints(t, tensor.Shape{}, 3)} },
			want:   []tensor.Shape{{5}}, passes: 1,
		},
		{
			name: "scatter elements", op: "ScatterElements", opset: 13,
			inputs: func(t *testing.T) []*tensor.Tensor {
				return []*tensor.Tensor{floats(t, 3, 3), ints(t, tensor.Shape{2, 3}, 1, 0, 2, 0, 2, 1), floats(t, 2, 3)}
			},
			want: []tensor.Shape{{3, 3}}, passes: 1,
		},
		{
			name: "cumsum", op: "CumSum", opset: 14, attrs: onnx.Attributes{"reverse": onnx.Int(1)},
			inputs: func(t *testing.T) []*tensor.Tensor { return []*tensor.Tensor{floats(t, 3, 4), ints(t, tensor.Shape{}, 1)} },
			want:   []tensor.Shape{{3, 4}}, passes: 1,
		},
		{
			name: "matmul", op: "MatMul", opset: 13,
			inputs: func(t *testing.T) []*tensor.Tensor { return []*tensor.Tensor{floats(t, 2, 3), floats(t, 3, 4)} },
			want:   []tensor.Shape{{2, 4}}, passes: 1,
		},
		{
			name: "matmul vector", op: "MatMul", opset: 13,
			inputs: func(t *testing.T) []*tensor.Tensor { return []*tensor.Tensor{floats(t, 3), floats(t, 3, 4)} },
			want:   []tensor.Shape{{4}}, passes: 1,
		},
		{
			name: "matmul batched", op: "MatMul", opset: 13,
			inputs: func(t *testing.T) []*tensor.Tensor { return []*tensor.Tensor{floats(t, 2, 1, 2, 3), floats(t, 3, 5)} },
			want:   []tensor.Shape{{2, 1, 2, 5}}, passes: 1,
		},
		{
			name: "gemm", op: "Gemm", opset: 13, attrs: onnx.Attributes{"transB": onnx.Int(1), "alpha": onnx.Float(0.5)},
			inputs: func(t *testing.T) []*tensor.Tensor { return []*tensor.Tensor{floats(t, 2, 3), floats(t, 4, 3), floats(t, 4)} },
			want:   []tensor.Shape{{2, 4}}, passes: 1,
		},
		{
			name: "conv im2col", op: "Conv", opset: 13, attrs: onnx.Attributes{"pads": onnx.Ints(1, 1, 1, 1)},
			inputs: func(t *testing.T) []*tensor.Tensor {
				return []*tensor.Tensor{floats(t, 1, 3, 5, 5), floats(t, 4, 3, 3, 3), floats(t, 4)}
			},
			want: []tensor.Shape{{1, 4, 5, 5}}, passes: 3, packed: true,
		},
		{
			name: "conv grouped", op: "Conv", opset: 13, attrs: onnx.Attributes{"group": onnx.Int(2), "strides": onnx.Ints(2, 2)},
			inputs: func(t *testing.T) []*tensor.Tensor { return []*tensor.Tensor{floats(t, 1, 4, 6, 6), floats(t, 2, 2, 3, 3)} },
			want:   []tensor.Shape{{1, 2, 2, 2}}, passes: 1,
		},
		{
			name: "conv same upper", op: "Conv", opset: 13, attrs: onnx.Attributes{"auto_pad": onnx.String("SAME_UPPER"), "strides": onnx.Ints(2, 2)},
			inputs: func(t *testing.T) []*tensor.Tensor { return []*tensor.Tensor{floats(t, 2, 1, 5, 5), floats(t, 1, 1, 3, 3)} },
			want:   []tensor.Shape{{2, 1, 3, 3}}, passes: 1,
		},
		{
			name: "max pool", op: "MaxPool", opset: 12, attrs: onnx.Attributes{"kernel_shape": onnx.Ints(2, 2), "strides": onnx.Ints(2, 2)},
			inputs: func(t *testing.T) []*tensor.Tensor { return []*tensor.Tensor{floats(t, 1, 1, 4, 4)} },
			want:   []tensor.Shape{{1, 1, 2, 2}}, passes: 1,
		},
		{
			name: "average pool ceil", op: "AveragePool", opset: 12,
			attrs:  onnx.Attributes{"kernel_shape": onnx.Ints(2, 2), "strides": onnx.Ints(2, 2), "ceil_mode": onnx.Int(1)},
			inputs: func(t *testing.T) []*tensor.Tensor { return []*tensor.Tensor{floats(t, 1, 2, 5, 5)} },
			want:   []tensor.Shape{{1, 2, 3, 3}}, passes: 1,
		},
		{
			name: "global average pool", op: "GlobalAveragePool", opset: 12,
			inputs: func(t *testing.T) []*tensor.Tensor { return []*tensor.Tensor{floats(t, 1, 3, 4, 4)} },
			want:   []tensor.Shape{{1, 3, 1, 1}}, passes: 1,
		},
		{
			name: "reduce mean keepdims", op: "ReduceMean", opset: 13, attrs: onnx.Attributes{"axes": onnx.Ints(1)},
			inputs: func(t *testing.T) []*tensor.Tensor { return []*tensor.Tensor{floats(t, 2, 3, 4)} },
			want:   []tensor.Shape{{2, 1, 4}}, passes: 1,
		},
		{
			name: "reduce max drop", op: "ReduceMax", opset: 13, attrs: onnx.Attributes{"axes": onnx.Ints(-1, 0), "keepdims": onnx.Int(0)},
			inputs: func(t *testing.T) []*tensor.Tensor { return []*tensor.Tensor{floats(t, 2, 3, 4)} },
			want:   []tensor.Shape{{3}}, passes: 1,
		},
		{
			name: "reduce sum all", op: "ReduceSum", opset: 11, attrs: onnx.Attributes{"keepdims": onnx.Int(0)},
			inputs: func(t *testing.T) []*tensor.Tensor { return []*tensor.Tensor{floats(t, 2, 3)} },
			want:   []tensor.Shape{{}}, passes: 1,
		},
		{
			name: "softmax", op: "Softmax", opset: 13,
			inputs: func(t *testing.T) []*tensor.Tensor { return []*tensor.Tensor{floats(t, 2, 5)} },
			want:   []tensor.Shape{{2, 5}}, passes: 3,
		},
		{
			name: "log softmax legacy axis", op: "LogSoftmax", opset: 11,
			inputs: func(t *testing.T) []*tensor.Tensor { return []*tensor.Tensor{floats(t, 2, 3, 4)} },
			want:   []tensor.Shape{{2, 3, 4}}, passes: 3,
		},
		{
			name: "upsample nearest", op: "Upsample", opset: 9,
			inputs: func(t *testing.T) []*tensor.Tensor {
				return []*tensor.Tensor{floats(t, 1, 1, 2, 2), mustFloat32(t, tensor.Shape{4}, []float32{1, 1, 2, 2})}
			},
			want: []tensor.Shape{{1, 1, 4, 4}}, passes: 1,
		},
		{
			name: "upsample linear", op: "Upsample", opset: 7,
			attrs:  onnx.Attributes{"mode": onnx.String("linear"), "scales": onnx.Floats(1, 1, 2, 3)},
			inputs: func(t *testing.T) []*tensor.Tensor { return []*tensor.Tensor{floats(t, 1, 2, 2, 2)} },
			want:   []tensor.Shape{{1, 2, 4, 6}}, passes: 1,
		},
		{
			name: "resize scales", op: "Resize", opset: 11,
			inputs: func(t *testing.T) []*tensor.Tensor {
				return []*tensor.Tensor{floats(t, 1, 1, 2, 2), mustFloat32(t, tensor.Shape{0}, nil), mustFloat32(t, tensor.Shape{4}, []float32{1, 1, 2, 2})}
			},
			want: []tensor.Shape{{1, 1, 4, 4}}, passes: 1,
		},
		{
			name: "resize sizes", op: "Resize", opset: 13, attrs: onnx.Attributes{"mode": onnx.String("linear")},
			inputs: func(t *testing.T) []*tensor.Tensor {
				return []*tensor.Tensor{floats(t, 1, 2, 2, 2), nil, nil, vec(t, 1, 2, 3, 5)}
			},
			want: []tensor.Shape{{1, 2, 3, 5}}, passes: 1,
		},
		{
			name: "einsum matmul", op: "Einsum", opset: 12, attrs: onnx.Attributes{"equation": onnx.String("ij,jk->ik")},
			inputs: func(t *testing.T) []*tensor.Tensor { return []*tensor.Tensor{floats(t, 2, 3), floats(t, 3, 4)} },
			want:   []tensor.Shape{{2, 4}}, passes: 1,
		},
		{
			name: "einsum implicit", op: "Einsum", opset: 12, attrs: onnx.Attributes{"equation": onnx.String("kj, ji")},
			inputs: func(t *testing.T) []*tensor.Tensor { return []*tensor.Tensor{floats(t, 2, 3), floats(t, 3, 4)} },
			want:   []tensor.Shape{{4, 2}}, passes: 1,
		},
		{
			name: "einsum trace", op: "Einsum", opset: 12, attrs: onnx.Attributes{"equation": onnx.String("ii->")},
			inputs: func(t *testing.T) []*tensor.Tensor { return []*tensor.Tensor{floats(t, 3, 3)} },
			want:   []tensor.Shape{{}}, passes: 1,
		},
		{
			name: "batch norm", op: "BatchNormalization", opset: 9,
			inputs: func(t *testing.T) []*tensor.Tensor {
				return []*tensor.Tensor{floats(t, 1, 2, 3, 3), floats(t, 2), floats(t, 2), floats(t, 2), floats(t, 2)}
			},
			want: []tensor.Shape{{1, 2, 3, 3}}, passes: 1,
		},
		{
			name: "clip inputs", op: "Clip", opset: 13,
			inputs: func(t *testing.T) []*tensor.Tensor {
				return []*tensor.Tensor{floats(t, 2, 2), tensor.Scalar(0), tensor.Scalar(6)}
			},
			want: []tensor.Shape{{2, 2}}, passes: 1,
		},
		{
			name: "image scaler", op: "ImageScaler", opset: 1, attrs: onnx.Attributes{"scale": onnx.Float(2), "bias": onnx.Floats(1, 2, 3)},
			inputs: func(t *testing.T) []*tensor.Tensor { return []*tensor.Tensor{floats(t, 1, 3, 2, 2)} },
			want:   []tensor.Shape{{1, 3, 2, 2}}, passes: 1,
		},
		{
			name: "equal", op: "Equal", opset: 13,
			inputs: func(t *testing.T) []*tensor.Tensor { return []*tensor.Tensor{vec(t, 1, 2, 3), vec(t, 2)} },
			want:   []tensor.Shape{{3}}, passes: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hs := newHarness(t, tt.packed)
			outputs := tt.outputs
			if outputs == 0 {
				outputs = 1
			}
			op := hs.resolve(t, tt.op, tt.opset, outputs, tt.attrs)
			outs := hs.run(t, op, tt.inputs(t)...)
			require.Len(t, outs, len(tt.want))
			for i, want := range tt.want {
				assert.Equal(t, want, outs[i].Shape(), "output %d", i)
			}
			assert.Equal(t, tt.passes, hs.passes(t, op))
			assert.Equal(t, tt.passes, hs.ctx.Stats().Draws)
		})
	}
}

func TestLogicalOperatorsProduceBool(t *testing.T) {
	hs := newHarness(t, false)
	op := hs.resolve(t, "Greater", 13, 1, nil)
	outs := hs.run(t, op, floats(t, 3), floats(t, 1))
	assert.Equal(t, tensor.Bool, outs[0].DType())

	not := hs.resolve(t, "Not", 13, 1, nil)
	outs = hs.run(t, not, outs[0])
	assert.Equal(t, tensor.Bool, outs[0].DType())
}

func TestConvUnpackedUsesDirectKernel(t *testing.T) {
	hs := newHarness(t, false)
	op := hs.resolve(t, "Conv", 13, 1, onnx.Attributes{"pads": onnx.Ints(1, 1, 1, 1)})
	outs := hs.run(t, op, floats(t, 1, 3, 5, 5), floats(t, 4, 3, 3, 3))
	assert.Equal(t, tensor.Shape{1, 4, 5, 5}, outs[0].Shape())
	assert.Equal(t, 1, hs.passes(t, op))
}

func TestConvInitializerWeightsStayOnDevice(t *testing.T) {
	hs := newHarness(t, true)
	w := floats(t, 2, 1, 3, 3)
	hs.s.MarkInitializer(w)
	op := hs.resolve(t, "Conv", 13, 1, nil)

	hs.run(t, op, floats(t, 1, 1, 4, 4), w)
	cached := hs.s.Cache().Len()
	require.Equal(t, 1, cached, "the packed weight matrix lives in the session cache")

	hs.run(t, op, floats(t, 1, 1, 4, 4), w)
	assert.Equal(t, cached, hs.s.Cache().Len())
	assert.Equal(t, 3, hs.ctx.Stats().Links, "programs are reused across calls")
}

func TestUpsampleRebuildsWhenScalesChange(t *testing.T) {
	hs := newHarness(t, false)
	op := hs.resolve(t, "Upsample", 9, 1, nil)
	x := floats(t, 1, 1, 2, 2)

	outs := hs.run(t, op, x, mustFloat32(t, tensor.Shape{4}, []float32{1, 1, 2, 2}))
	assert.Equal(t, tensor.Shape{1, 1, 4, 4}, outs[0].Shape())
	outs = hs.run(t, op, x, mustFloat32(t, tensor.Shape{4}, []float32{1, 1, 3, 3}))
	assert.Equal(t, tensor.Shape{1, 1, 6, 6}, outs[0].Shape())
	outs = hs.run(t, op, x, mustFloat32(t, tensor.Shape{4}, []float32{1, 1, 3, 3}))
	assert.Equal(t, tensor.Shape{1, 1, 6, 6}, outs[0].Shape())

	assert.Equal(t, 2, hs.ctx.Stats().Links)
}

func TestResizeCoordinateTransforms(t *testing.T) {
	empty := func(t *testing.T) *tensor.Tensor { return mustFloat32(t, tensor.Shape{0}, nil) }
	doubled := func(t *testing.T) *tensor.Tensor { return mustFloat32(t, tensor.Shape{4}, []float32{1, 1, 2, 2}) }
	tests := []struct {
		name   string
		opset  int
		attrs  onnx.Attributes
		inputs func(t *testing.T) []*tensor.Tensor
		want   tensor.Shape
		source []string
	}{
		{
			name: "asymmetric floor", opset: 10,
			inputs: func(t *testing.T) []*tensor.Tensor { return []*tensor.Tensor{floats(t, 1, 1, 2, 2), doubled(t)} },
			want:   tensor.Shape{1, 1, 4, 4},
			source: []string{"c = float(indices[3]) / 2.0;", "x[3] = int(clamp(floor(c), 0.0, 1.0));"},
		},
		{
			name: "half pixel round prefer floor", opset: 11,
			inputs: func(t *testing.T) []*tensor.Tensor {
				return []*tensor.Tensor{floats(t, 1, 1, 2, 2), empty(t), doubled(t)}
			},
			want: tensor.Shape{1, 1, 4, 4},
			source: []string{
				"c = (float(indices[2]) + 0.5) / 2.0 - 0.5;",
				"x[2] = int(clamp((c == floor(c) + 0.5 ? floor(c) : floor(c + 0.5)), 0.0, 1.0));",
			},
		},
		{
			name: "align corners linear", opset: 11,
			attrs: onnx.Attributes{"mode": onnx.String("linear"), "coordinate_transformation_mode": onnx.String("align_corners")},
			inputs: func(t *testing.T) []*tensor.Tensor {
				return []*tensor.Tensor{floats(t, 1, 1, 2, 3), empty(t), empty(t), vec(t, 1, 1, 3, 5)}
			},
			want:   tensor.Shape{1, 1, 3, 5},
			source: []string{"float cy = float(indices[2]) * 0.5;", "float cx = float(indices[3]) * 0.5;"},
		},
		{
			name: "crop and resize", opset: 11,
			attrs: onnx.Attributes{"coordinate_transformation_mode": onnx.String("tf_crop_and_resize"), "extrapolation_value": onnx.Float(-1)},
			inputs: func(t *testing.T) []*tensor.Tensor {
				roi := mustFloat32(t, tensor.Shape{8}, []float32{0, 0, 0, 0, 1, 1, 1, 1})
				return []*tensor.Tensor{floats(t, 1, 1, 2, 2), roi, doubled(t)}
			},
			want:   tensor.Shape{1, 1, 4, 4},
			source: []string{"uniform float extrapolationValue;", "return extrapolationValue;", "c = 0.0 + float(indices[3]) * 0.33333334;"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hs := newHarness(t, false)
			op := hs.resolve(t, "Resize", tt.opset, 1, tt.attrs)
			outs := hs.run(t, op, tt.inputs(t)...)
			assert.Equal(t, tt.want, outs[0].Shape())

			artifacts, ok := hs.s.Programs().Get(op.(ShaderOperator).ID())
			require.True(t, ok)
			for _, want := range tt.source {
				assert.Contains(t, artifacts[0].Text, want)
			}
		})
	}
}

func TestResizeRejectsScalesAndSizes(t *testing.T) {
	hs := newHarness(t, false)
	op := hs.resolve(t, "Resize", 13, 1, nil)
	h := hs.s.NewInferenceHandler()
	defer h.Dispose()

	scales := mustFloat32(t, tensor.Shape{2}, []float32{2, 2})
	_, err := op.Run(h, []*tensor.Tensor{floats(t, 2, 2), nil, scales, vec(t, 4, 4)})
	assert.True(t, errors.Is(err, ErrShapeMismatch))

	_, err = op.Run(h, []*tensor.Tensor{floats(t, 2, 2)})
	assert.True(t, errors.Is(err, ErrShapeMismatch))

	linear := hs.resolve(t, "Resize", 13, 1, onnx.Attributes{"mode": onnx.String("linear")})
	_, err = linear.Run(h, []*tensor.Tensor{floats(t, 2, 2, 2), nil, mustFloat32(t, tensor.Shape{3}, []float32{2, 1, 1})})
	assert.True(t, errors.Is(err, ErrUnsupportedAttribute))

	_, err = hs.s.Resolve(&onnx.Node{OpType: "Resize", Attributes: onnx.Attributes{"mode": onnx.String("cubic")}}, []onnx.OpsetImport{{Version: 13}})
	assert.True(t, errors.Is(err, ErrUnsupportedAttribute))
}

func TestEinsumPrograms(t *testing.T) {
	tests := []struct {
		equation string
		inputs   [][]int
		want     tensor.Shape
		source   []string
	}{
		{
			equation: "ij,jk->ik", inputs: [][]int{{2, 3}, {3, 4}}, want: tensor.Shape{2, 4},
			source: []string{"idx[2] = indices[1];", "idx[1] = 0;", "for (int i = 0; i < 3; i++)", "value += _A(a0) * _B(a1);"},
		},
		{
			equation: "ij->ji", inputs: [][]int{{2, 3}}, want: tensor.Shape{3, 2},
			source: []string{"idx[1] = indices[0];", "idx[0] = indices[1];", "for (int i = 0; i < 1; i++)"},
		},
		{
			equation: "ii->", inputs: [][]int{{3, 3}}, want: tensor.Shape{},
			source: []string{"a0[0] = idx[0];", "a0[1] = idx[0];", "if (idx[0] >= 3) {"},
		},
		{
			equation: "bij,bjk->bik", inputs: [][]int{{2, 3, 4}, {2, 4, 5}}, want: tensor.Shape{2, 3, 5},
			source: []string{"for (int i = 0; i < 4; i++)"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.equation, func(t *testing.T) {
			hs := newHarness(t, false)
			op := hs.resolve(t, "Einsum", 12, 1, onnx.Attributes{"equation": onnx.String(tt.equation)})
			var inputs []*tensor.Tensor
			for _, shape := range tt.inputs {
				inputs = append(inputs, floats(t, shape...))
			}
			outs := hs.run(t, op, inputs...)
			assert.Equal(t, tt.want, outs[0].Shape())

			artifacts, ok := hs.s.Programs().Get(op.(ShaderOperator).ID())
			require.True(t, ok)
			for _, want := range tt.source {
				assert.Contains(t, artifacts[0].Text, want)
			}
		})
	}
}

func TestEinsumErrors(t *testing.T) {
	hs := newHarness(t, false)
	for _, eq := range []string{"...ij->ij", "ij->ik", "ij->ii", "i1->i"} {
		_, err := hs.s.Resolve(&onnx.Node{OpType: "Einsum", Attributes: onnx.Attributes{"equation": onnx.String(eq)}}, []onnx.OpsetImport{{Version: 12}})
		assert.True(t, errors.Is(err, ErrUnsupportedAttribute), eq)
	}

	op := hs.resolve(t, "Einsum", 12, 1, onnx.Attributes{"equation": onnx.String("ij,jk->ik")})
	err := op.CheckInputs([]*tensor.Tensor{floats(t, 2, 3), floats(t, 4, 4)})
	assert.True(t, errors.Is(err, ErrShapeMismatch))
	err = op.CheckInputs([]*tensor.Tensor{floats(t, 2, 3, 1), floats(t, 3, 4)})
	assert.True(t, errors.Is(err, ErrShapeMismatch))
	err = op.CheckInputs([]*tensor.Tensor{floats(t, 2, 3)})
	assert.Error(t, err)
}

func TestSoftmaxInnerAxisSwapsToLast(t *testing.T) {
	hs := newHarness(t, false)
	op := hs.resolve(t, "LogSoftmax", 13, 1, onnx.Attributes{"axis": onnx.Int(1)})
	outs := hs.run(t, op, floats(t, 2, 3, 4))
	assert.Equal(t, tensor.Shape{2, 3, 4}, outs[0].Shape())
	// Transpose, the three softmax passes and the transpose back.
	assert.Equal(t, 5, hs.ctx.Stats().Draws)

	sm := op.(*softmaxOp)
	swap, ok := hs.s.Programs().Get(sm.swapIn.ID())
	require.True(t, ok)
	assert.Contains(t, swap[0].Text, "x[1] = indices[2];")
	norm, ok := hs.s.Programs().Get(sm.inner.ID())
	require.True(t, ok)
	assert.Contains(t, norm[0].Text, "for (int i = 0; i < 3; i++)", "rows run along the swapped axis")

	hs.run(t, op, floats(t, 2, 3, 4))
	assert.Equal(t, 5, hs.ctx.Stats().Links, "the swapped programs are reused")

	_, err := op.Run(hs.s.NewInferenceHandler(), []*tensor.Tensor{floats(t, 2)})
	assert.ErrorContains(t, err, "axis 1 out of range")
}

func TestDataMovementSources(t *testing.T) {
	tests := []struct {
		name   string
		op     string
		opset  int
		attrs  onnx.Attributes
		inputs func(t *testing.T) []*tensor.Tensor
		source []string
	}{
		{
			name: "slice negative step", op: "Slice", opset: 13,
			inputs: func(t *testing.T) []*tensor.Tensor {
				return []*tensor.Tensor{floats(t, 2, 6), vec(t, -1), vec(t, -1000), vec(t, 1), vec(t, -2)}
			},
			source: []string{"x[0] = 0 + indices[0] * 1;", "x[1] = 5 + indices[1] * -2;"},
		},
		{
			name: "pad reflect", op: "Pad", opset: 11, attrs: onnx.Attributes{"mode": onnx.String("reflect")},
			inputs: func(t *testing.T) []*tensor.Tensor { return []*tensor.Tensor{floats(t, 3), vec(t, 2, 2)} },
			source: []string{"k = indices[0] - 2;", "k = -k;", "if (k >= 3) {\n    k = 4 - k;"},
		},
		{
			name: "pad edge", op: "Pad", opset: 11, attrs: onnx.Attributes{"mode": onnx.String("edge")},
			inputs: func(t *testing.T) []*tensor.Tensor { return []*tensor.Tensor{floats(t, 3), vec(t, 1, 0)} },
			source: []string{"k = indices[0] - 1;", "if (k > 2) {\n    k = 2;"},
		},
		{
			name: "gather negative index", op: "Gather", opset: 13,
			inputs: func(t *testing.T) []*tensor.Tensor { return []*tensor.Tensor{floats(t, 3, 2), vec(t, 2, -3)} },
			source: []string{"if (k < 0) {\n    k += 3;"},
		},
		{
			name: "cumsum exclusive reverse", op: "CumSum", opset: 11,
			attrs:  onnx.Attributes{"exclusive": onnx.Int(1), "reverse": onnx.Int(1)},
			inputs: func(t *testing.T) []*tensor.Tensor { return []*tensor.Tensor{floats(t, 4), ints(t, tensor.Shape{}, 0)} },
			source: []string{"for (int t = 0; t < 4; t++)", "if (t > indices[0])"},
		},
		{
			name: "scatter later update wins", op: "ScatterElements", opset: 11, attrs: onnx.Attributes{"axis": onnx.Int(1)},
			inputs: func(t *testing.T) []*tensor.Tensor {
				return []*tensor.Tensor{floats(t, 1, 5), ints(t, tensor.Shape{1, 3}, 1, 3, 1), floats(t, 1, 3)}
			},
			source: []string{"for (int t = 0; t < 3; t++)", "if (k == indices[1]) {\n    value = _C(j);"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hs := newHarness(t, false)
			op := hs.resolve(t, tt.op, tt.opset, 1, tt.attrs)
			hs.run(t, op, tt.inputs(t)...)

			artifacts, ok := hs.s.Programs().Get(op.(ShaderOperator).ID())
			require.True(t, ok)
			text := artifacts[0].Text
			for _, want := range tt.source {
				assert.Contains(t, text, want)
			}
			assert.NotContains(t, text, "while", "GLSL ES 1.00 loops are for loops")
		})
	}
}

func TestSliceEmptyResult(t *testing.T) {
	hs := newHarness(t, false)
	op := hs.resolve(t, "Slice", 13, 1, nil)
	outs := hs.run(t, op, floats(t, 3, 4), vec(t, 2), vec(t, 2))
	assert.Equal(t, tensor.Shape{0, 4}, outs[0].Shape())
	assert.False(t, outs[0].IsDeferred())
	assert.Equal(t, 0, hs.ctx.Stats().Draws)
}

func TestShapeViewsShareTextures(t *testing.T) {
	hs := newHarness(t, false)
	relu := hs.resolve(t, "Relu", 13, 1, nil)
	h := hs.s.NewInferenceHandler()
	defer h.Dispose()

	outs, err := relu.Run(h, []*tensor.Tensor{floats(t, 2, 3, 4)})
	require.NoError(t, err)
	y := outs[0]
	base, ok := h.cache.Get(y, false)
	require.True(t, ok)

	views := []struct {
		op     string
		opset  int
		attrs  onnx.Attributes
		extra  []*tensor.Tensor
		expect tensor.Shape
	}{
		{"Reshape", 13, nil, []*tensor.Tensor{vec(t, 4, -1)}, tensor.Shape{4, 6}},
		{"Reshape", 13, nil, []*tensor.Tensor{vec(t, 0, 0, 2, 2)}, tensor.Shape{2, 3, 2, 2}},
		{"Flatten", 13, onnx.Attributes{"axis": onnx.Int(2)}, nil, tensor.Shape{6, 4}},
		{"Unsqueeze", 13, nil, []*tensor.Tensor{vec(t, 0, 4)}, tensor.Shape{1, 2, 3, 4, 1}},
		{"Squeeze", 11, nil, nil, tensor.Shape{2, 3, 4}},
	}
	for _, v := range views {
		op := hs.resolve(t, v.op, v.opset, 1, v.attrs)
		inputs := append([]*tensor.Tensor{y}, v.extra...)
		require.NoError(t, op.CheckInputs(inputs))
		res, err := op.Run(h, inputs)
		require.NoError(t, err, v.op)
		assert.Equal(t, v.expect, res[0].Shape(), v.op)

		td, ok := h.cache.Get(res[0], false)
		require.True(t, ok, v.op)
		assert.True(t, td.IsView(), v.op)
		assert.Equal(t, base.Texture, td.Texture, "%s must not copy", v.op)
	}
	assert.Equal(t, 1, hs.ctx.Stats().Draws, "views never draw")
}

func TestHostTensorsReshapeOnCPU(t *testing.T) {
	hs := newHarness(t, false)
	op := hs.resolve(t, "Squeeze", 13, 1, nil)
	outs := hs.run(t, op, floats(t, 1, 3, 1), vec(t, 0))
	assert.Equal(t, tensor.Shape{3, 1}, outs[0].Shape())
	assert.False(t, outs[0].IsDeferred())
	assert.Equal(t, 0, hs.ctx.Stats().Uploads)
}

func TestDropoutMask(t *testing.T) {
	hs := newHarness(t, false)
	op := hs.resolve(t, "Dropout", 12, 2, nil)
	x := floats(t, 2, 2)
	outs := hs.run(t, op, x)
	require.Len(t, outs, 2)
	assert.Same(t, x, outs[0])
	mask, err := outs[1].Bools()
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, true, true}, mask)
}

func TestPackedMatMulConvertsInputs(t *testing.T) {
	hs := newHarness(t, true)
	relu := hs.resolve(t, "Relu", 13, 1, nil)
	matmul := hs.resolve(t, "MatMul", 13, 1, nil)
	h := hs.s.NewInferenceHandler()
	defer h.Dispose()

	a, err := relu.Run(h, []*tensor.Tensor{floats(t, 3, 5)})
	require.NoError(t, err)
	outs, err := matmul.Run(h, []*tensor.Tensor{a[0], floats(t, 5, 2)})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{3, 2}, outs[0].Shape())

	_, packed := h.cache.Get(a[0], true)
	assert.True(t, packed, "the device-resident operand is packed by a shader pass")
	// Relu, the pack pass and MatMul; the packed result is decoded on read.
	assert.Equal(t, 3, hs.ctx.Stats().Draws)
}

func TestOperatorErrors(t *testing.T) {
	hs := newHarness(t, false)

	relu := hs.resolve(t, "Relu", 13, 1, nil)
	err := relu.CheckInputs([]*tensor.Tensor{vec(t, 1, 2)})
	assert.True(t, errors.Is(err, ErrTypeMismatch))

	_, err = hs.s.Resolve(&onnx.Node{OpType: "Conv", Attributes: onnx.Attributes{"auto_pad": onnx.String("BOGUS")}}, nil)
	assert.True(t, errors.Is(err, ErrUnsupportedAttribute))

	add := hs.resolve(t, "Add", 13, 1, nil)
	h := hs.s.NewInferenceHandler()
	defer h.Dispose()
	_, err = add.Run(h, []*tensor.Tensor{floats(t, 2, 3), floats(t, 4)})
	assert.True(t, errors.Is(err, ErrShapeMismatch))

	scatter := onnx.Attributes{"reduction": onnx.String("add")}
	_, err = hs.s.Resolve(&onnx.Node{OpType: "ScatterElements", Attributes: scatter}, []onnx.OpsetImport{{Version: 16}})
	assert.True(t, errors.Is(err, ErrUnsupportedAttribute))

	_, err = hs.s.Resolve(&onnx.Node{OpType: "NonMaxSuppression"}, nil)
	assert.True(t, errors.Is(err, onnx.ErrUnsupportedOperator))
}
