package webgl

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/onnxgl/internal/tensor"
)

func TestComputeTextureWH(t *testing.T) {
	s := LayoutStrategy{MaxTextureSize: 4096}
	tests := []struct {
		name  string
		shape tensor.Shape
		w, h  int
	}{
		{"scalar", tensor.Shape{}, 1, 1},
		{"one", tensor.Shape{1}, 1, 1},
		{"square", tensor.Shape{4, 4}, 4, 4},
		{"prime", tensor.Shape{7}, 7, 1},
		{"rect", tensor.Shape{2, 3, 4}, 6, 4},
		{"wide", tensor.Shape{1, 3, 224, 224}, 392, 384},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h, err := s.ComputeTextureWH(tt.shape, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.w, w)
			assert.Equal(t, tt.h, h)
		})
	}
}

func TestComputeTextureWHCoversEveryElement(t *testing.T) {
	s := LayoutStrategy{MaxTextureSize: 16384}
	shapes := []tensor.Shape{
		{5}, {3, 5}, {2, 3, 5}, {17, 19}, {1, 1, 1, 1}, {6, 10, 12}, {1000}, {64, 3, 3, 3},
	}
	for _, shape := range shapes {
		w, h, err := s.ComputeTextureWH(shape, nil)
		require.NoError(t, err, "%v", shape)
		assert.Equal(t, shape.NumElements(), w*h, "%v", shape)

		w2, h2, err := s.ComputeTextureWH(shape.Clone(), nil)
		require.NoError(t, err)
		assert.Equal(t, []int{w, h}, []int{w2, h2}, "layout of %v is not deterministic", shape)
	}
}

func TestComputeTextureWHErrors(t *testing.T) {
	s := LayoutStrategy{MaxTextureSize: 16}

	_, _, err := s.ComputeTextureWH(tensor.Shape{2, 0, 3}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLayout))

	// 17 is prime and not below the limit.
	_, _, err = s.ComputeTextureWH(tensor.Shape{17}, nil)
	var le *LayoutError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, 16, le.MaxTextureSize)
}

func TestComputeTextureWHPrefs(t *testing.T) {
	s := LayoutStrategy{MaxTextureSize: 64}

	w, h, err := s.ComputeTextureWH(tensor.Shape{2, 3, 4}, &WidthHeightPrefs{BreakAxis: 2})
	require.NoError(t, err)
	assert.Equal(t, 4, w)
	assert.Equal(t, 6, h)

	// 100 columns do not fit: fall back to the default split.
	w, h, err = s.ComputeTextureWH(tensor.Shape{2, 100}, &WidthHeightPrefs{BreakAxis: 1})
	require.NoError(t, err)
	assert.Equal(t, 20, w)
	assert.Equal(t, 10, h)
}

func TestNewTextureLayoutPacked(t *testing.T) {
	s := LayoutStrategy{MaxTextureSize: 4096}

	l, err := NewTextureLayout(s, tensor.Shape{3, 5}, 4, nil)
	require.NoError(t, err)
	assert.True(t, l.IsPacked())
	assert.Equal(t, tensor.Shape{3, 2}, l.Shape)
	assert.Equal(t, tensor.Shape{3, 5}, l.UnpackedShape)
	assert.Equal(t, []int{2, 1}, l.Strides)
	assert.Equal(t, 6, l.Texels())
	assert.Equal(t, 5, l.PackedExtent())

	scalar, err := NewTextureLayout(s, tensor.Shape{}, 4, nil)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1}, scalar.Shape)
	assert.Equal(t, 1, scalar.PackedExtent())

	unpacked, err := NewTextureLayout(s, tensor.Shape{}, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1}, unpacked.ShaderShape())
	assert.Equal(t, []int{1}, unpacked.ShaderStrides())
	assert.Equal(t, 0, unpacked.PackedExtent())
}

func TestNewTextureLayoutErrorReportsLogicalShape(t *testing.T) {
	_, err := NewTextureLayout(LayoutStrategy{MaxTextureSize: 4}, tensor.Shape{5, 7}, 4, nil)
	var le *LayoutError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, tensor.Shape{5, 7}, le.Shape)
}

func TestWithShape(t *testing.T) {
	l, err := NewTextureLayout(LayoutStrategy{MaxTextureSize: 64}, tensor.Shape{2, 6}, 1, nil)
	require.NoError(t, err)

	v := l.WithShape(tensor.Shape{3, 4})
	assert.Equal(t, l.Width, v.Width)
	assert.Equal(t, l.Height, v.Height)
	assert.Equal(t, []int{4, 1}, v.Strides)
	assert.Equal(t, tensor.Shape{2, 6}, l.Shape, "original layout must not change")
}
