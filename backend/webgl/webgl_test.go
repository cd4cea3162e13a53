// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package webgl_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/onnxgl/backend/webgl"
	"github.com/born-ml/onnxgl/onnx"
	"github.com/born-ml/onnxgl/tensor"
)

func TestSessionOnOfflineContext(t *testing.T) {
	ctx := webgl.NewOfflineContext(webgl.WebGL2, 1024)
	b := webgl.New(webgl.WithContext(ctx), webgl.WithPacked(false))
	defer b.Dispose()

	var g onnx.Graph
	x := g.AddValue("x")
	w := g.AddInitializer("w", mustTensor(t, tensor.Shape{3, 2}))
	h := g.AddValue("h")
	y := g.AddValue("y")
	g.Inputs, g.Outputs = []int{x}, []int{y}
	g.AddNode(&onnx.Node{OpType: "MatMul", Inputs: []int{x, w}, Outputs: []int{h}})
	g.AddNode(&onnx.Node{OpType: "Relu", Inputs: []int{h}, Outputs: []int{y}})
	g.Opsets = []onnx.OpsetImport{{Version: 13}}

	sess, err := onnx.NewSession(&g, onnx.WithBackend(b))
	require.NoError(t, err)
	defer sess.Close()

	out, err := sess.Run(map[string]*tensor.Tensor{"x": mustTensor(t, tensor.Shape{4, 3})})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{4, 2}, out["y"].Shape())
	assert.False(t, out["y"].IsDeferred(), "outputs are read back before Run returns")
	assert.Equal(t, 2, ctx.Stats().Draws)
}

func TestSupportedOperators(t *testing.T) {
	var names []string
	for _, op := range webgl.SupportedOperators() {
		names = append(names, op.OpType)
	}
	assert.Contains(t, names, "Conv")
	assert.Contains(t, names, "Softmax")
	assert.Contains(t, onnx.RegisteredBackends(), webgl.Name)
}

func TestParseDialect(t *testing.T) {
	d, err := webgl.ParseDialect("webgl")
	require.NoError(t, err)
	assert.Equal(t, webgl.WebGL1, d)

	_, err = webgl.ParseDialect("vulkan")
	assert.Error(t, err)
}

func mustTensor(t *testing.T, shape tensor.Shape) *tensor.Tensor {
	t.Helper()
	x, err := tensor.New(shape, tensor.Float32)
	require.NoError(t, err)
	return x
}
