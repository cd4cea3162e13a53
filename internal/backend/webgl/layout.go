package webgl

import (
	"math"

	"github.com/born-ml/onnxgl/internal/onnx"
	"github.com/born-ml/onnxgl/internal/tensor"
)

// WidthHeightPrefs steer the 2-D split of a shape.
type WidthHeightPrefs struct {
	// BreakAxis splits the shape into rows shape[:BreakAxis] and
	// columns shape[BreakAxis:].
	BreakAxis int
}

// LayoutStrategy maps tensor shapes to texture dimensions.
// ComputeTextureWH is a pure function of its arguments.
type LayoutStrategy struct {
	MaxTextureSize int
}

// ComputeTextureWH returns the texture width and height for shape.
//
// Scalars take a single texel. Otherwise width is the smallest divisor of
// the element count that is at least ceil(sqrt(count)) and below
// MaxTextureSize. When prefs are given and both sides of the split stay
// below MaxTextureSize, the split is used instead.
func (s LayoutStrategy) ComputeTextureWH(shape tensor.Shape, prefs *WidthHeightPrefs) (int, int, error) {
	if len(shape) == 0 {
		return 1, 1, nil
	}
	total := shape.NumElements()
	if total == 0 {
		return 0, 0, &LayoutError{Shape: shape, MaxTextureSize: s.MaxTextureSize, Reason: "zero-size tensor"}
	}

	if prefs != nil {
		w, h := splitAt(shape, prefs.BreakAxis)
		if w < s.MaxTextureSize && h < s.MaxTextureSize {
			return w, h, nil
		}
		onnx.Logger().Debug("layout prefs rejected, using default split",
			"shape", shape, "breakAxis", prefs.BreakAxis, "width", w, "height", h)
	}

	start := int(math.Ceil(math.Sqrt(float64(total))))
	for w := start; w < s.MaxTextureSize && w <= total; w++ {
		if total%w == 0 {
			return w, total / w, nil
		}
	}
	return 0, 0, &LayoutError{Shape: shape, MaxTextureSize: s.MaxTextureSize, Reason: "no divisor of the element count fits"}
}

func splitAt(shape tensor.Shape, axis int) (w, h int) {
	w, h = 1, 1
	for i, d := range shape {
		if i >= axis {
			w *= d
		} else {
			h *= d
		}
	}
	return w, h
}

// TextureLayout describes how a tensor is stored in a texture.
//
// For Channels == 4 the last axis is packed four elements per texel: Shape is
// UnpackedShape with its last dimension replaced by ceil(last/4).
// Strides are always the row-major strides of Shape.
type TextureLayout struct {
	Width         int
	Height        int
	Channels      int
	Shape         tensor.Shape
	Strides       []int
	UnpackedShape tensor.Shape
}

// NewTextureLayout computes the layout of a tensor with the given logical
// shape. channels must be 1 or 4.
func NewTextureLayout(s LayoutStrategy, shape tensor.Shape, channels int, prefs *WidthHeightPrefs) (*TextureLayout, error) {
	stored := shape.Clone()
	if channels == 4 {
		stored = PackedShape(shape)
	} else {
		channels = 1
	}

	w, h, err := s.ComputeTextureWH(stored, prefs)
	if err != nil {
		if le, ok := err.(*LayoutError); ok {
			le.Shape = shape.Clone()
		}
		return nil, err
	}
	return &TextureLayout{
		Width:         w,
		Height:        h,
		Channels:      channels,
		Shape:         stored,
		Strides:       stored.ComputeStrides(),
		UnpackedShape: shape.Clone(),
	}, nil
}

// PackedShape returns shape with the last axis divided by four, rounded up.
// Scalars pack into a single texel.
func PackedShape(shape tensor.Shape) tensor.Shape {
	if len(shape) == 0 {
		return tensor.Shape{1}
	}
	packed := shape.Clone()
	last := len(packed) - 1
	packed[last] = (packed[last] + 3) / 4
	return packed
}

// IsPacked reports whether four elements share a texel.
func (l *TextureLayout) IsPacked() bool { return l.Channels == 4 }

// Texels returns the number of texels in the texture.
func (l *TextureLayout) Texels() int { return l.Width * l.Height }

// ShaderShape is the index space seen by generated code. Scalars are
// addressed as a one-element vector because GLSL has no zero-length arrays.
func (l *TextureLayout) ShaderShape() tensor.Shape {
	if len(l.Shape) == 0 {
		return tensor.Shape{1}
	}
	return l.Shape
}

// ShaderStrides are the strides matching ShaderShape.
func (l *TextureLayout) ShaderStrides() []int {
	if len(l.Shape) == 0 {
		return []int{1}
	}
	return l.Strides
}

// PackedExtent is the true size of the packed axis, zero when unpacked.
func (l *TextureLayout) PackedExtent() int {
	if !l.IsPacked() {
		return 0
	}
	if len(l.UnpackedShape) == 0 {
		return 1
	}
	return l.UnpackedShape[len(l.UnpackedShape)-1]
}

// WithShape returns a layout over the same texture addressing a different
// logical shape. Only valid for unpacked layouts with an equal element count.
func (l *TextureLayout) WithShape(shape tensor.Shape) *TextureLayout {
	return &TextureLayout{
		Width:         l.Width,
		Height:        l.Height,
		Channels:      l.Channels,
		Shape:         shape.Clone(),
		Strides:       shape.ComputeStrides(),
		UnpackedShape: shape.Clone(),
	}
}
