package webgl

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/born-ml/onnxgl/internal/onnx"
	"github.com/born-ml/onnxgl/internal/tensor"
)

// ShaderOperator is an operator lowered to one or more shader passes.
type ShaderOperator interface {
	onnx.Operator

	// ID identifies the operator's cached programs.
	ID() OperatorID

	// CreateProgramInfos describes every pass for the given inputs.
	CreateProgramInfos(h *InferenceHandler, inputs []*tensor.Tensor) ([]*ProgramInfo, error)

	// CreateRunData binds textures and uniforms for every pass. Passes whose
	// RunData carries a Result produce the operator outputs, in order.
	CreateRunData(h *InferenceHandler, infos []*ProgramInfo, inputs []*tensor.Tensor) ([]*RunData, error)
}

// InferenceHandler executes operators for one inference call. It owns the
// call-scoped texture cache and every scratch texture of the call.
type InferenceHandler struct {
	session *SessionHandler
	cache   *TextureCache
	scratch []*TextureData
}

var _ onnx.InferenceHandler = (*InferenceHandler)(nil)

func handlerOf(h onnx.InferenceHandler) (*InferenceHandler, error) {
	ih, ok := h.(*InferenceHandler)
	if !ok {
		return nil, fmt.Errorf("webgl operator run with %T", h)
	}
	return ih, nil
}

// Session returns the session handler that created h.
func (h *InferenceHandler) Session() *SessionHandler { return h.session }

// Packed reports whether packed kernels are enabled.
func (h *InferenceHandler) Packed() bool { return h.session.opts.packed }

// Run builds op's programs on first use, binds the inputs and runs every
// pass. It returns the Deferred result tensors.
func (h *InferenceHandler) Run(op ShaderOperator, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	s := h.session
	var host []int
	if ho, ok := op.(hostOperator); ok {
		host = ho.hostInputs(inputs)
	}
	sig, err := inputSignature(inputs, host)
	if err != nil {
		return nil, err
	}

	var (
		artifacts []*Artifact
		runData   []*RunData
	)
	for attempt := 0; ; attempt++ {
		var ok bool
		artifacts, ok = s.programs.Get(op.ID())
		if !ok || attempt > 0 || s.signatures[op.ID()] != sig {
			infos, err := op.CreateProgramInfos(h, inputs)
			if err != nil {
				return nil, err
			}
			if artifacts, err = s.programs.BuildAll(op.ID(), infos); err != nil {
				return nil, err
			}
			s.signatures[op.ID()] = sig
		}

		infos := make([]*ProgramInfo, len(artifacts))
		for i, a := range artifacts {
			infos[i] = a.Info
		}
		if runData, err = op.CreateRunData(h, infos, inputs); err != nil {
			return nil, err
		}
		if len(runData) != len(artifacts) {
			return nil, fmt.Errorf("%d run data for %d passes", len(runData), len(artifacts))
		}
		if attempt > 0 || layoutsMatch(infos, runData) {
			break
		}
		onnx.Logger().Debug("input textures changed layout, rebuilding programs", "op", op.ID())
		h.discard(runData)
	}

	var results []*tensor.Tensor
	for i, rd := range runData {
		if err := s.programs.Run(artifacts[i], rd); err != nil {
			return nil, err
		}
		if rd.Result != nil {
			results = append(results, rd.Result)
		}
	}
	return results, nil
}

// hostOperator is implemented by operators that read some inputs on the CPU
// and generate code from their values. hostInputs returns their positions.
type hostOperator interface {
	hostInputs(inputs []*tensor.Tensor) []int
}

// discard releases the render targets of passes that will not run.
func (h *InferenceHandler) discard(runData []*RunData) {
	for _, rd := range runData {
		if rd.Result != nil {
			_ = h.cache.Release(rd.Result)
			continue
		}
		for i, td := range h.scratch {
			if td == rd.Output {
				h.session.textures.ReleaseTexture(td)
				h.scratch = append(h.scratch[:i], h.scratch[i+1:]...)
				break
			}
		}
	}
}

// layoutsMatch reports whether the bound textures have the layouts the
// programs were generated for.
func layoutsMatch(infos []*ProgramInfo, runData []*RunData) bool {
	for i, rd := range runData {
		want := infos[i].InputLayouts
		if len(rd.Inputs) != len(want) {
			return false
		}
		for j, td := range rd.Inputs {
			l := want[j]
			if td.Width != l.Width || td.Height != l.Height || td.Channels != l.Channels || !td.Shape.Equal(l.Shape) {
				return false
			}
		}
	}
	return true
}

// inputSignature identifies the inputs a program was generated for: element
// types and shapes, plus every value of the host inputs. Deferred host
// inputs are materialized.
func inputSignature(inputs []*tensor.Tensor, host []int) (string, error) {
	var b strings.Builder
	for i, t := range inputs {
		if t == nil {
			b.WriteString("-;")
			continue
		}
		b.WriteString(t.DType().String())
		b.WriteString(t.Dims().String())
		if slices.Contains(host, i) {
			vals, err := t.NumericData()
			if err != nil {
				return "", fmt.Errorf("read input %d: %w", i, err)
			}
			for _, v := range vals {
				b.WriteByte(' ')
				b.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
			}
		}
		b.WriteByte(';')
	}
	return b.String(), nil
}

// cacheFor returns the cache that owns t's textures: initializers live for
// the session, everything else for the call.
func (h *InferenceHandler) cacheFor(t *tensor.Tensor) *TextureCache {
	if h.session.IsInitializer(t.ID()) {
		return h.session.cache
	}
	return h.cache
}

// CreateTextureLayout computes a layout with the session's strategy.
func (h *InferenceHandler) CreateTextureLayout(shape tensor.Shape, channels int, prefs *WidthHeightPrefs) (*TextureLayout, error) {
	return NewTextureLayout(h.session.strategy, shape, channels, prefs)
}

// GetOrCreateTextureData returns a texture holding t with the packing of
// layout (unpacked when layout is nil). A tensor already on the device with
// the other packing is converted by a shader pass instead of being read back.
func (h *InferenceHandler) GetOrCreateTextureData(t *tensor.Tensor, layout *TextureLayout) (*TextureData, error) {
	packed := layout != nil && layout.IsPacked()
	c := h.cacheFor(t)
	if td, ok := c.Get(t, packed); ok {
		return td, nil
	}
	if _, onDevice := c.Get(t, !packed); onDevice {
		return h.convert(t, packed)
	}
	return c.GetOrCreate(t, layout)
}

// TextureData returns t's texture with the requested packing, uploading or
// converting as needed.
func (h *InferenceHandler) TextureData(t *tensor.Tensor, packed bool) (*TextureData, error) {
	c := h.cacheFor(t)
	if td, ok := c.Get(t, packed); ok {
		return td, nil
	}
	if !packed {
		return h.GetOrCreateTextureData(t, nil)
	}
	layout, err := h.CreateTextureLayout(t.Dims(), 4, nil)
	if err != nil {
		return nil, err
	}
	return h.GetOrCreateTextureData(t, layout)
}

// convert produces the other packing of a device-resident tensor and
// registers it with t's cache.
func (h *InferenceHandler) convert(t *tensor.Tensor, packed bool) (*TextureData, error) {
	op := h.session.converter(t.Dims(), packed)
	outs, err := h.Run(op, []*tensor.Tensor{t})
	if err != nil {
		return nil, fmt.Errorf("convert tensor %d (packed=%v): %w", t.ID(), packed, err)
	}
	key := cacheKey{outs[0].ID(), packed}
	td := h.cache.entries[key]
	delete(h.cache.entries, key)
	h.cacheFor(t).Register(t, td)
	onnx.Logger().Debug("texture converted", "tensor", t.ID(), "packed", packed)
	return td, nil
}

// NewOutput allocates the render target of a result and returns it with the
// Deferred tensor reading it. The texture is registered with the call cache.
func (h *InferenceHandler) NewOutput(layout *TextureLayout, dtype tensor.DataType) (*TextureData, *tensor.Tensor, error) {
	td, err := h.session.textures.CreateTexture(layout, dtype, nil)
	if err != nil {
		return nil, nil, err
	}
	t, err := tensor.NewDeferred(layout.UnpackedShape, dtype, &textureSource{manager: h.session.textures, td: td})
	if err != nil {
		h.session.textures.ReleaseTexture(td)
		return nil, nil, err
	}
	h.cache.Register(t, td)
	return td, t, nil
}

// NewScratch allocates an intermediate texture released with the handler.
func (h *InferenceHandler) NewScratch(layout *TextureLayout) (*TextureData, error) {
	td, err := h.session.textures.CreateTexture(layout, tensor.Float32, nil)
	if err != nil {
		return nil, err
	}
	h.scratch = append(h.scratch, td)
	return td, nil
}

// View returns a tensor of the given shape addressing t's texture without a
// copy. Tensors without an unpacked device texture are reshaped on the CPU.
func (h *InferenceHandler) View(t *tensor.Tensor, shape tensor.Shape) (*tensor.Tensor, error) {
	if shape.NumElements() != t.Size() {
		return nil, &ShapeMismatchError{Op: "reshape", Shapes: []tensor.Shape{t.Dims(), shape}, Reason: "element count differs"}
	}
	c := h.cacheFor(t)
	base, ok := c.Get(t, false)
	if !ok {
		if _, packed := c.Get(t, true); !packed {
			return t.Reshape(shape)
		}
		var err error
		if base, err = h.convert(t, false); err != nil {
			return nil, err
		}
	}

	view := &TextureData{
		TextureLayout: base.WithShape(shape),
		Texture:       base.Texture,
		Format:        base.Format,
		DType:         base.DType,
		view:          true,
	}
	out, err := tensor.NewDeferred(shape, t.DType(), &textureSource{manager: h.session.textures, td: view})
	if err != nil {
		return nil, err
	}
	h.cache.Register(out, view)
	return out, nil
}

// Dispose releases the scratch textures and the call cache.
func (h *InferenceHandler) Dispose() {
	for _, td := range h.scratch {
		h.session.textures.ReleaseTexture(td)
	}
	h.scratch = nil
	h.cache.Dispose()
}
