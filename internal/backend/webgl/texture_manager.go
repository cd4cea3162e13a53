package webgl

import (
	"fmt"

	"github.com/born-ml/onnxgl/internal/backend/webgl/glsl"
	"github.com/born-ml/onnxgl/internal/onnx"
	"github.com/born-ml/onnxgl/internal/tensor"
)

// TextureManager allocates, uploads, reads back and recycles textures.
type TextureManager struct {
	ctx     Context
	dialect glsl.Dialect
	pool    *TexturePool
}

// NewTextureManager creates a manager over ctx.
func NewTextureManager(ctx Context, poolSize int) *TextureManager {
	return &TextureManager{
		ctx:     ctx,
		dialect: ctx.Dialect(),
		pool:    NewTexturePool(ctx, poolSize),
	}
}

// Pool returns the texture pool.
func (m *TextureManager) Pool() *TexturePool { return m.pool }

// CreateTexture allocates a texture for layout and uploads data, given in
// logical row-major order, when it is non-nil.
func (m *TextureManager) CreateTexture(layout *TextureLayout, dtype tensor.DataType, data []float32) (*TextureData, error) {
	enc := EncoderFor(m.dialect, layout.Channels)

	var buf []float32
	if data != nil {
		if layout.IsPacked() {
			data = PackData(data, layout.UnpackedShape)
		}
		buf = enc.Encode(data, layout.Texels())
	}

	tex, err := m.pool.Acquire(layout.Width, layout.Height, enc.Format, buf)
	if err != nil {
		return nil, fmt.Errorf("allocate %dx%d texture for %v: %w", layout.Width, layout.Height, layout.UnpackedShape, err)
	}
	onnx.Logger().Debug("texture created",
		"texture", tex, "width", layout.Width, "height", layout.Height,
		"channels", layout.Channels, "shape", layout.UnpackedShape, "upload", data != nil)

	return &TextureData{TextureLayout: layout, Texture: tex, Format: enc.Format, DType: dtype}, nil
}

// ReadTexture reads td back in logical row-major order.
func (m *TextureManager) ReadTexture(td *TextureData) ([]float32, error) {
	if td.released {
		return nil, ErrReleased
	}
	rgba, err := m.ctx.ReadTexture(td.Texture, td.Width, td.Height)
	if err != nil {
		return nil, fmt.Errorf("read texture %d: %w", td.Texture, err)
	}
	values := EncoderFor(m.dialect, td.Channels).Decode(rgba, td.Texels())
	if td.IsPacked() {
		return UnpackData(values, td.UnpackedShape), nil
	}
	return values[:td.UnpackedShape.NumElements()], nil
}

// ReleaseTexture returns td's texture to the pool. Views only mark themselves
// released.
func (m *TextureManager) ReleaseTexture(td *TextureData) {
	if td.released {
		return
	}
	td.released = true
	if td.view {
		return
	}
	m.pool.Release(td.Texture, td.Width, td.Height, td.Format)
}

// Dispose deletes every pooled texture.
func (m *TextureManager) Dispose() {
	m.pool.Clear()
}

// textureSource reads a texture on behalf of a deferred tensor.
type textureSource struct {
	manager *TextureManager
	td      *TextureData
}

func (s *textureSource) ReadFloat32() ([]float32, error) {
	return s.manager.ReadTexture(s.td)
}
