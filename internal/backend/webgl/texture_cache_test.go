package webgl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/onnxgl/internal/backend/webgl/glsl"
	"github.com/born-ml/onnxgl/internal/onnx"
	"github.com/born-ml/onnxgl/internal/tensor"
)

func newTestCache(t *testing.T, scope CacheScope) (*TextureCache, *OfflineContext) {
	t.Helper()
	ctx := NewOfflineContext(glsl.WebGL2, 256)
	return NewTextureCache(scope, NewTextureManager(ctx, 4), LayoutStrategy{MaxTextureSize: 256}), ctx
}

func mustFloat32(t *testing.T, shape tensor.Shape, data []float32) *tensor.Tensor {
	t.Helper()
	x, err := tensor.FromFloat32(shape, data)
	require.NoError(t, err)
	return x
}

func TestTextureCacheGetOrCreate(t *testing.T) {
	c, ctx := newTestCache(t, CallScope)
	x := mustFloat32(t, tensor.Shape{2, 3}, seq(6))

	td, err := c.GetOrCreate(x, nil)
	require.NoError(t, err)
	again, err := c.GetOrCreate(x, nil)
	require.NoError(t, err)
	assert.Same(t, td, again)
	assert.Equal(t, 1, ctx.Stats().Uploads)

	packed, err := NewTextureLayout(c.strategy, x.Dims(), 4, nil)
	require.NoError(t, err)
	ptd, err := c.GetOrCreate(x, packed)
	require.NoError(t, err)
	assert.NotEqual(t, td.Texture, ptd.Texture, "packed and unpacked textures are distinct entries")
	assert.Equal(t, 2, c.Len())

	// A reshape is a different tensor.
	y, err := x.Reshape(tensor.Shape{6})
	require.NoError(t, err)
	_, ok := c.Get(y, false)
	assert.False(t, ok)
}

func TestTextureCacheRejectsStrings(t *testing.T) {
	c, _ := newTestCache(t, CallScope)
	s, err := tensor.FromStrings(tensor.Shape{1}, []string{"a"})
	require.NoError(t, err)

	_, err = c.GetOrCreate(s, nil)
	assert.ErrorIs(t, err, ErrTypeMismatch)
	assert.Equal(t, 0, c.Len())
}

func TestTextureCacheRelease(t *testing.T) {
	c, _ := newTestCache(t, CallScope)
	x := mustFloat32(t, tensor.Shape{4}, seq(4))
	td, err := c.GetOrCreate(x, nil)
	require.NoError(t, err)

	require.NoError(t, c.Release(x))
	assert.Equal(t, 0, c.Len())
	assert.True(t, td.released)
	assert.Equal(t, 1, getPoolStats(c.manager.Pool()).pooledCount)

	s, _ := newTestCache(t, SessionScope)
	_, err = s.GetOrCreate(x, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, s.Release(x), ErrSessionScoped)
	assert.Equal(t, 1, s.Len())
}

func TestTextureCacheRegisterReplaces(t *testing.T) {
	c, _ := newTestCache(t, CallScope)
	x := mustFloat32(t, tensor.Shape{4}, seq(4))
	old, err := c.GetOrCreate(x, nil)
	require.NoError(t, err)

	fresh, err := c.manager.CreateTexture(old.TextureLayout, tensor.Float32, nil)
	require.NoError(t, err)
	c.Register(x, fresh)

	got, ok := c.Get(x, false)
	require.True(t, ok)
	assert.Same(t, fresh, got)
	assert.True(t, old.released)
}

func TestTextureCacheDisposeKeepsViewBacking(t *testing.T) {
	c, ctx := newTestCache(t, CallScope)
	x := mustFloat32(t, tensor.Shape{2, 2}, seq(4))
	base, err := c.GetOrCreate(x, nil)
	require.NoError(t, err)

	y, err := x.Reshape(tensor.Shape{4})
	require.NoError(t, err)
	c.Register(y, &TextureData{TextureLayout: base.WithShape(y.Dims()), Texture: base.Texture, Format: base.Format, view: true})

	c.Dispose()
	assert.Equal(t, 0, c.Len())
	_, released, _, _, pooled := c.manager.Pool().Stats()
	assert.Equal(t, uint64(1), released, "only the backing texture returns to the pool")
	assert.Equal(t, 1, pooled)
	assert.Equal(t, 1, ctx.LiveTextures())
}

// addGraph builds y = x + w with w an initializer.
func addGraph(t *testing.T, w *tensor.Tensor) *onnx.Graph {
	t.Helper()
	g := &onnx.Graph{Opsets: []onnx.OpsetImport{{Version: 13}}}
	x := g.AddValue("x")
	wi := g.AddInitializer("w", w)
	y := g.AddValue("y")
	g.AddNode(&onnx.Node{Name: "add", OpType: "Add", Inputs: []int{x, wi}, Outputs: []int{y}})
	g.Inputs = []int{x}
	g.Outputs = []int{y}
	return g
}

func TestInitializerTextureSharedAcrossCalls(t *testing.T) {
	ctx := NewOfflineContext(glsl.WebGL2, 256)
	b := New(WithContext(ctx), WithPacked(false))
	require.True(t, b.Initialize())
	defer b.Dispose()

	w := mustFloat32(t, tensor.Shape{2}, []float32{10, 20})
	g := addGraph(t, w)
	s, err := b.NewSessionHandler()
	require.NoError(t, err)
	defer s.Dispose()
	s.OnGraphInitialized(g)

	op, err := s.Resolve(g.Nodes[0], g.Opsets)
	require.NoError(t, err)

	var handles []Texture
	for call := 0; call < 2; call++ {
		x := mustFloat32(t, tensor.Shape{2, 2}, []float32{1, 2, 3, 4})
		h := s.NewInferenceHandler()
		require.NoError(t, op.CheckInputs([]*tensor.Tensor{x, w}))
		outs, err := op.Run(h, []*tensor.Tensor{x, w})
		require.NoError(t, err)
		require.Len(t, outs, 1)
		assert.Equal(t, tensor.Shape{2, 2}, outs[0].Shape())
		require.NoError(t, outs[0].Materialize())

		td, ok := s.Cache().Get(w, false)
		require.True(t, ok, "initializer texture must live in the session cache")
		handles = append(handles, td.Texture)
		_, inCall := h.cache.Get(w, false)
		assert.False(t, inCall)
		h.Dispose()
	}

	assert.Equal(t, handles[0], handles[1])
	assert.Equal(t, 1, s.Cache().Len())
	// x is uploaded on every call, w once.
	assert.Equal(t, 3, ctx.Stats().Uploads)
	assert.Equal(t, 1, ctx.Stats().Links, "the program is built once")
	assert.Equal(t, 2, ctx.Stats().Draws)
}

func TestDeferredResultAfterDispose(t *testing.T) {
	ctx := NewOfflineContext(glsl.WebGL2, 256)
	b := New(WithContext(ctx))
	s, err := b.NewSessionHandler()
	require.NoError(t, err)
	defer s.Dispose()

	op, err := s.Resolve(&onnx.Node{OpType: "Relu"}, []onnx.OpsetImport{{Version: 13}})
	require.NoError(t, err)
	h := s.NewInferenceHandler()
	outs, err := op.Run(h, []*tensor.Tensor{mustFloat32(t, tensor.Shape{3}, seq(3))})
	require.NoError(t, err)
	require.True(t, outs[0].IsDeferred())
	h.Dispose()

	assert.ErrorIs(t, outs[0].Materialize(), ErrReleased)
}

func TestSessionRunWithOfflineContext(t *testing.T) {
	ctx := NewOfflineContext(glsl.WebGL1, 256)
	b := New(WithContext(ctx))
	sess, err := onnx.NewSession(addGraph(t, mustFloat32(t, tensor.Shape{2}, []float32{10, 20})), onnx.WithBackend(b))
	require.NoError(t, err)

	out, err := sess.Run(map[string]*tensor.Tensor{"x": mustFloat32(t, tensor.Shape{2, 2}, seq(4))})
	require.NoError(t, err)
	y := out["y"]
	require.NotNil(t, y)
	assert.False(t, y.IsDeferred())
	assert.Equal(t, tensor.Shape{2, 2}, y.Shape())
	assert.Equal(t, 1, ctx.Stats().Draws)

	sess.Close()
	assert.Equal(t, 0, ctx.LiveTextures(), "closing the session frees every texture")
	assert.Equal(t, 0, ctx.LivePrograms())
}
