package webgl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/onnxgl/internal/onnx"
	"github.com/born-ml/onnxgl/internal/tensor"
)

// hostValues is the source of a deferred operand.
type hostValues []float32

func (v hostValues) ReadFloat32() ([]float32, error) { return v, nil }

func deferredInts(t *testing.T, v ...int32) *tensor.Tensor {
	t.Helper()
	vals := make(hostValues, len(v))
	for i, x := range v {
		vals[i] = float32(x)
	}
	d, err := tensor.NewDeferred(tensor.Shape{len(v)}, tensor.Int32, vals)
	require.NoError(t, err)
	return d
}

// swappedLayoutOp copies its input. Its first program expects the input
// texture with width and height swapped, so the first run has to rebuild.
type swappedLayoutOp struct {
	opBase
	builds int
}

func (o *swappedLayoutOp) Initialize(onnx.Attributes) error  { return nil }
func (o *swappedLayoutOp) CheckInputs([]*tensor.Tensor) error { return nil }

func (o *swappedLayoutOp) Run(h onnx.InferenceHandler, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	return runShader(o, h, inputs)
}

func (o *swappedLayoutOp) CreateProgramInfos(h *InferenceHandler, inputs []*tensor.Tensor) ([]*ProgramInfo, error) {
	info, err := h.elementwiseInfo(o.name, inputs, inputs[0].Dims(), copySource)
	if err != nil {
		return nil, err
	}
	o.builds++
	if o.builds == 1 {
		swapped := *info.InputLayouts[0]
		swapped.Width, swapped.Height = swapped.Height, swapped.Width
		info.InputLayouts = []*TextureLayout{&swapped}
	}
	return []*ProgramInfo{info}, nil
}

func (o *swappedLayoutOp) CreateRunData(h *InferenceHandler, infos []*ProgramInfo, inputs []*tensor.Tensor) ([]*RunData, error) {
	return h.singlePass(infos[0], inputs, tensor.Float32, nil)
}

func TestRunRebuildReleasesDiscardedOutputs(t *testing.T) {
	hs := newHarness(t, false)
	op := &swappedLayoutOp{opBase: newOpBase("Copy")}
	h := hs.s.NewInferenceHandler()
	defer h.Dispose()

	outs, err := h.Run(op, []*tensor.Tensor{floats(t, 2, 3)})
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.Equal(t, tensor.Shape{2, 3}, outs[0].Shape())

	assert.Equal(t, 2, op.builds)
	assert.Equal(t, 2, hs.ctx.Stats().Links)
	assert.Equal(t, 1, hs.ctx.Stats().Draws)
	assert.Equal(t, 2, h.cache.Len(), "the input and the single result")
	assert.Equal(t, 2, hs.ctx.Stats().TexturesCreated, "the discarded render target is reused from the pool")
}

func TestHostOperandsKeyPrograms(t *testing.T) {
	tests := []struct {
		name    string
		op      string
		outputs int
		attrs   onnx.Attributes
		x       []int
		first   []int32
		second  []int32
		want    [2][]tensor.Shape
		links   int
		source  string
	}{
		{
			name: "tile", op: "Tile", x: []int{2, 2},
			first: []int32{1, 2}, second: []int32{1, 3},
			want:  [2][]tensor.Shape{{{2, 4}}, {{2, 6}}},
			links: 2, source: "indices[1] - (indices[1] / 2) * 2",
		},
		{
			name: "pad", op: "Pad", x: []int{2, 2},
			first: []int32{0, 1, 0, 1}, second: []int32{1, 0, 1, 0},
			want:  [2][]tensor.Shape{{{2, 4}}, {{4, 2}}},
			links: 2, source: "k = indices[0] - 1;",
		},
		{
			name: "split", op: "Split", outputs: 2, x: []int{4, 2},
			first: []int32{1, 3}, second: []int32{2, 2},
			want:  [2][]tensor.Shape{{{1, 2}, {3, 2}}, {{2, 2}, {2, 2}}},
			links: 4, source: "x[0] += 2;",
		},
		{
			name: "cumsum", op: "CumSum", x: []int{2, 3},
			first: []int32{0}, second: []int32{1},
			want:  [2][]tensor.Shape{{{2, 3}}, {{2, 3}}},
			links: 2, source: "x[1] = t;",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hs := newHarness(t, false)
			outputs := max(tt.outputs, 1)
			op := hs.resolve(t, tt.op, 13, outputs, tt.attrs)
			x := floats(t, tt.x...)

			for i, operand := range [][]int32{tt.first, tt.second, tt.second} {
				outs := hs.run(t, op, x, deferredInts(t, operand...))
				want := tt.want[min(i, 1)]
				require.Len(t, outs, len(want))
				for j, w := range want {
					assert.Equal(t, w, outs[j].Shape(), "run %d output %d", i, j)
				}
			}
			assert.Equal(t, tt.links, hs.ctx.Stats().Links, "equal operands reuse the programs")

			artifacts, ok := hs.s.Programs().Get(op.(ShaderOperator).ID())
			require.True(t, ok)
			assert.Contains(t, artifacts[len(artifacts)-1].Text, tt.source)
		})
	}
}

func TestInputSignatureReadsEveryHostValue(t *testing.T) {
	long := make([]int32, 40)
	long[39] = 7
	a, err := inputSignature([]*tensor.Tensor{floats(t, 2), deferredInts(t, long...)}, []int{1})
	require.NoError(t, err)
	long[39] = 8
	b, err := inputSignature([]*tensor.Tensor{floats(t, 2), deferredInts(t, long...)}, []int{1})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	c, err := inputSignature([]*tensor.Tensor{floats(t, 2), vec(t, 1, 2)}, nil)
	require.NoError(t, err)
	d, err := inputSignature([]*tensor.Tensor{floats(t, 2), vec(t, 3, 4)}, nil)
	require.NoError(t, err)
	assert.Equal(t, c, d, "device operands are keyed by shape only")
}
