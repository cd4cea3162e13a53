package webgl

import (
	"fmt"

	"github.com/born-ml/onnxgl/internal/backend/webgl/glsl"
	"github.com/born-ml/onnxgl/internal/onnx"
	"github.com/born-ml/onnxgl/internal/tensor"
)

// InspectOptions configures Inspect.
type InspectOptions struct {
	Dialect        glsl.Dialect
	MaxTextureSize int
	Packed         bool
	Opset          int
}

// Inspection is the result of running one node on an OfflineContext.
type Inspection struct {
	// Passes are the programs built for the node, in run order.
	Passes []*Artifact
	// Outputs are the shapes of the node results.
	Outputs []tensor.Shape
	Stats   OfflineStats
}

// Inspect resolves node, runs it once on an OfflineContext and returns the
// assembled shaders. Inputs only need the right shapes and types; the
// values are uploaded but never computed with.
func Inspect(node *onnx.Node, inputs []*tensor.Tensor, opts InspectOptions) (*Inspection, error) {
	if opts.MaxTextureSize <= 0 {
		opts.MaxTextureSize = DefaultMaxTextureSize()
	}
	if len(node.Outputs) == 0 {
		node.Outputs = []int{0}
	}
	ctx := NewOfflineContext(opts.Dialect, opts.MaxTextureSize)
	b := New(WithContext(ctx), WithPacked(opts.Packed))
	defer b.Dispose()

	s, err := b.NewSessionHandler()
	if err != nil {
		return nil, err
	}
	defer s.Dispose()

	op, err := s.Resolve(node, []onnx.OpsetImport{{Version: opts.Opset}})
	if err != nil {
		return nil, err
	}
	if err := op.CheckInputs(inputs); err != nil {
		return nil, err
	}

	h := s.NewInferenceHandler()
	defer h.Dispose()
	outs, err := op.Run(h, inputs)
	if err != nil {
		return nil, err
	}

	res := &Inspection{Outputs: make([]tensor.Shape, len(outs))}
	for i, o := range outs {
		res.Outputs[i] = o.Shape()
	}
	if so, ok := op.(ShaderOperator); ok {
		res.Passes, _ = s.Programs().Get(so.ID())
	}
	res.Stats = ctx.Stats()
	return res, nil
}

// String summarizes the inspection for logs.
func (in *Inspection) String() string {
	return fmt.Sprintf("%d passes, outputs %v, %d draws", len(in.Passes), in.Outputs, in.Stats.Draws)
}
