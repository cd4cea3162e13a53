package webgl

import (
	"github.com/gogpu/gputypes"

	"github.com/born-ml/onnxgl/internal/backend/webgl/glsl"
	"github.com/born-ml/onnxgl/internal/tensor"
)

// TextureData is a texture holding one tensor, together with its layout.
// It is owned by the cache that created it.
type TextureData struct {
	*TextureLayout
	Texture Texture
	Format  gputypes.TextureFormat
	DType   tensor.DataType

	// view marks a TextureData that addresses another one's texture with a
	// different logical shape. Views never release the texture.
	view     bool
	released bool
}

// IsView reports whether td borrows another TextureData's texture.
func (td *TextureData) IsView() bool { return td.view }

// Encoder converts between logical texel values and the component layout of
// a texture format.
type Encoder struct {
	Format gputypes.TextureFormat
	// Channels is the number of logical values per texel (1 or 4).
	Channels int
	// Components is the number of floats stored per texel by Format.
	Components int
}

// EncoderFor returns the encoder used for a layout with the given channel
// count. WebGL2 stores single-channel textures as R32F; WebGL1 has no
// single-channel float format and stores the value in the red lane of RGBA32F.
func EncoderFor(d glsl.Dialect, channels int) Encoder {
	if channels == 4 {
		return Encoder{Format: gputypes.TextureFormatRGBA32Float, Channels: 4, Components: 4}
	}
	if d == glsl.WebGL2 {
		return Encoder{Format: gputypes.TextureFormatR32Float, Channels: 1, Components: 1}
	}
	return Encoder{Format: gputypes.TextureFormatRGBA32Float, Channels: 1, Components: 4}
}

// Encode lays values out for upload into a texture of the given texel count.
// Missing trailing values are zero.
func (e Encoder) Encode(values []float32, texels int) []float32 {
	buf := make([]float32, texels*e.Components)
	if e.Channels == e.Components {
		copy(buf, values)
		return buf
	}
	for i := 0; i < texels && i < len(values); i++ {
		buf[i*e.Components] = values[i]
	}
	return buf
}

// Decode extracts the logical values from RGBA texel data as returned by a
// texture read.
func (e Encoder) Decode(rgba []float32, texels int) []float32 {
	if e.Channels == 4 {
		out := make([]float32, texels*4)
		copy(out, rgba)
		return out
	}
	out := make([]float32, texels)
	for i := range out {
		out[i] = rgba[i*4]
	}
	return out
}

// PackData lays out data of the given shape four elements per texel along
// the last axis. Lanes past the end of the axis are zero.
func PackData(data []float32, shape tensor.Shape) []float32 {
	inner := 1
	if len(shape) > 0 {
		inner = shape[len(shape)-1]
	}
	if inner == 0 {
		return nil
	}
	outer := len(data) / inner
	texelsPerRow := (inner + 3) / 4

	out := make([]float32, outer*texelsPerRow*4)
	for o := 0; o < outer; o++ {
		row := data[o*inner : (o+1)*inner]
		copy(out[o*texelsPerRow*4:], row)
	}
	return out
}

// UnpackData reverses PackData.
func UnpackData(lanes []float32, shape tensor.Shape) []float32 {
	inner := 1
	if len(shape) > 0 {
		inner = shape[len(shape)-1]
	}
	n := shape.NumElements()
	if inner == 0 || n == 0 {
		return []float32{}
	}
	outer := n / inner
	texelsPerRow := (inner + 3) / 4

	out := make([]float32, n)
	for o := 0; o < outer; o++ {
		copy(out[o*inner:(o+1)*inner], lanes[o*texelsPerRow*4:])
	}
	return out
}
