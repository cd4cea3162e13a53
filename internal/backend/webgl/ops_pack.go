package webgl

import (
	"fmt"

	"github.com/born-ml/onnxgl/internal/onnx"
	"github.com/born-ml/onnxgl/internal/tensor"
)

// packingOp converts a device tensor between the one and four channel
// layouts. Operators never see it; the handler runs it when a kernel needs
// the other packing of a texture that is already on the device.
type packingOp struct {
	opBase
	// toPacked is the packing of the result.
	toPacked bool
}

func newPackOp() *packingOp { return &packingOp{opBase: newOpBase("Pack"), toPacked: true} }

func newUnpackOp() *packingOp { return &packingOp{opBase: newOpBase("Unpack")} }

func (o *packingOp) Initialize(onnx.Attributes) error { return nil }

func (o *packingOp) CheckInputs(inputs []*tensor.Tensor) error {
	if err := checkArity(o.name, inputs, 1, 1); err != nil {
		return err
	}
	return checkType(o.name, inputs, 0, numericTypes)
}

func (o *packingOp) Run(h onnx.InferenceHandler, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	return runShader(o, h, inputs)
}

func (o *packingOp) CreateProgramInfos(h *InferenceHandler, inputs []*tensor.Tensor) ([]*ProgramInfo, error) {
	t := inputs[0]
	in, err := h.TextureData(t, !o.toPacked)
	if err != nil {
		return nil, err
	}
	channels := 1
	if o.toPacked {
		channels = 4
	}
	out, err := h.CreateTextureLayout(t.Dims(), channels, nil)
	if err != nil {
		return nil, err
	}
	return []*ProgramInfo{{
		Name:         o.name,
		InputLayouts: []*TextureLayout{in.TextureLayout},
		Samplers:     []string{"A"},
		OutputLayout: out,
		Source:       fmt.Sprintf("float process(int indices[%d]) {\n  return _A(indices);\n}\n", shaderRank(t.Dims())),
	}}, nil
}

func (o *packingOp) CreateRunData(h *InferenceHandler, infos []*ProgramInfo, inputs []*tensor.Tensor) ([]*RunData, error) {
	return h.singlePass(infos[0], inputs, inputs[0].DType(), nil)
}
