// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/onnxgl/tensor"
)

type constSource []float32

func (s constSource) ReadFloat32() ([]float32, error) { return s, nil }

func TestPublicConstructors(t *testing.T) {
	x, err := tensor.FromFloat32(tensor.Shape{2, 2}, []float32{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, tensor.Float32, x.DType())
	assert.Equal(t, tensor.Shape{2, 2}, x.Shape())

	_, err = tensor.FromInt32(tensor.Shape{3}, []int32{1, 2})
	assert.Error(t, err, "length must match the shape")

	s, err := tensor.ParseShape("1,3,224,224")
	require.NoError(t, err)
	assert.Equal(t, 150528, s.NumElements())
}

func TestDeferredMaterializesOnce(t *testing.T) {
	d, err := tensor.NewDeferred(tensor.Shape{3}, tensor.Int32, constSource{1, 2, 3})
	require.NoError(t, err)
	assert.True(t, d.IsDeferred())

	vals, err := d.Int32s()
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2, 3}, vals)
	assert.False(t, d.IsDeferred())
}
