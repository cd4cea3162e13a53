package webgl

import (
	"fmt"

	"github.com/born-ml/onnxgl/internal/onnx"
	"github.com/born-ml/onnxgl/internal/tensor"
)

// CacheScope is the lifetime of the textures held by a TextureCache.
type CacheScope int

// Cache scopes.
const (
	// SessionScope caches live until the session handler is disposed.
	SessionScope CacheScope = iota
	// CallScope caches live for a single inference call.
	CallScope
)

func (s CacheScope) String() string {
	if s == SessionScope {
		return "session"
	}
	return "call"
}

type cacheKey struct {
	id     tensor.ID
	packed bool
}

// TextureCache maps tensors to their device textures. A tensor may have one
// unpacked and one packed texture.
type TextureCache struct {
	scope    CacheScope
	manager  *TextureManager
	strategy LayoutStrategy
	entries  map[cacheKey]*TextureData
}

// NewTextureCache creates an empty cache.
func NewTextureCache(scope CacheScope, manager *TextureManager, strategy LayoutStrategy) *TextureCache {
	return &TextureCache{
		scope:    scope,
		manager:  manager,
		strategy: strategy,
		entries:  make(map[cacheKey]*TextureData),
	}
}

// Scope returns the lifetime of the cached textures.
func (c *TextureCache) Scope() CacheScope { return c.scope }

// Len returns the number of cached textures.
func (c *TextureCache) Len() int { return len(c.entries) }

// Get returns the texture of t with the given packing.
func (c *TextureCache) Get(t *tensor.Tensor, packed bool) (*TextureData, bool) {
	td, ok := c.entries[cacheKey{t.ID(), packed}]
	return td, ok
}

// GetOrCreate returns the texture of t with the packing of layout, uploading
// the tensor's data on a miss. A nil layout selects the default unpacked
// layout.
func (c *TextureCache) GetOrCreate(t *tensor.Tensor, layout *TextureLayout) (*TextureData, error) {
	packed := layout != nil && layout.IsPacked()
	if td, ok := c.Get(t, packed); ok {
		onnx.Logger().Debug("texture cache hit", "scope", c.scope, "tensor", t.ID(), "packed", packed)
		return td, nil
	}

	if layout == nil {
		var err error
		layout, err = NewTextureLayout(c.strategy, t.Dims(), 1, nil)
		if err != nil {
			return nil, err
		}
	}
	if !t.DType().IsNumeric() {
		return nil, &TypeMismatchError{Op: "upload", Got: t.DType(), Want: []tensor.DataType{tensor.Float32, tensor.Int32, tensor.Bool}}
	}
	data, err := t.NumericData()
	if err != nil {
		return nil, fmt.Errorf("upload tensor %d: %w", t.ID(), err)
	}

	onnx.Logger().Debug("texture cache miss", "scope", c.scope, "tensor", t.ID(), "packed", packed)
	td, err := c.manager.CreateTexture(layout, t.DType(), data)
	if err != nil {
		return nil, err
	}
	c.entries[cacheKey{t.ID(), packed}] = td
	return td, nil
}

// Register records td as the texture of t. An existing entry with the same
// packing is released.
func (c *TextureCache) Register(t *tensor.Tensor, td *TextureData) {
	key := cacheKey{t.ID(), td.IsPacked()}
	if old, ok := c.entries[key]; ok && old != td {
		c.manager.ReleaseTexture(old)
	}
	c.entries[key] = td
}

// Release drops the textures of t. Session-scoped textures are only released
// by Dispose.
func (c *TextureCache) Release(t *tensor.Tensor) error {
	if c.scope == SessionScope {
		return ErrSessionScoped
	}
	for _, packed := range []bool{false, true} {
		key := cacheKey{t.ID(), packed}
		if td, ok := c.entries[key]; ok {
			c.manager.ReleaseTexture(td)
			delete(c.entries, key)
		}
	}
	return nil
}

// Dispose releases every cached texture. Views are released before the
// textures they borrow.
func (c *TextureCache) Dispose() {
	for key, td := range c.entries {
		if td.view {
			c.manager.ReleaseTexture(td)
			delete(c.entries, key)
		}
	}
	for key, td := range c.entries {
		c.manager.ReleaseTexture(td)
		delete(c.entries, key)
	}
}
