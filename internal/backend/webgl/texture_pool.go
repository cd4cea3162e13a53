package webgl

import (
	"sync"

	"github.com/gogpu/gputypes"
)

// DefaultTexturePoolSize is the number of idle textures kept per texture key.
const DefaultTexturePoolSize = 16

// textureKey identifies interchangeable textures.
type textureKey struct {
	width, height int
	format        gputypes.TextureFormat
}

// TexturePool manages texture reuse to reduce allocation overhead.
// Textures are interchangeable only when width, height and format match.
type TexturePool struct {
	ctx     Context
	maxIdle int

	idle map[textureKey][]Texture

	mu sync.Mutex

	// Statistics
	totalAllocated uint64
	totalReleased  uint64
	poolHits       uint64
	poolMisses     uint64
}

// NewTexturePool creates a pool that keeps up to maxIdle idle textures per key.
func NewTexturePool(ctx Context, maxIdle int) *TexturePool {
	if maxIdle < 0 {
		maxIdle = 0
	}
	return &TexturePool{
		ctx:     ctx,
		maxIdle: maxIdle,
		idle:    make(map[textureKey][]Texture),
	}
}

// Acquire returns an idle texture of the given size and format or creates
// one. data, if non-nil, is uploaded in both cases.
func (p *TexturePool) Acquire(width, height int, format gputypes.TextureFormat, data []float32) (Texture, error) {
	p.mu.Lock()
	key := textureKey{width, height, format}
	if pool := p.idle[key]; len(pool) > 0 {
		tex := pool[len(pool)-1]
		p.idle[key] = pool[:len(pool)-1]
		p.poolHits++
		p.mu.Unlock()

		if data != nil {
			if err := p.ctx.UploadTexture(tex, width, height, format, data); err != nil {
				p.Release(tex, width, height, format)
				return 0, err
			}
		}
		return tex, nil
	}
	p.poolMisses++
	p.mu.Unlock()

	tex, err := p.ctx.CreateTexture(width, height, format, data)
	if err != nil {
		return 0, err
	}

	p.mu.Lock()
	p.totalAllocated++
	p.mu.Unlock()
	return tex, nil
}

// Release returns a texture to the pool for reuse.
// If the pool for its key is full, the texture is deleted immediately.
func (p *TexturePool) Release(tex Texture, width, height int, format gputypes.TextureFormat) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.totalReleased++

	key := textureKey{width, height, format}
	if len(p.idle[key]) >= p.maxIdle {
		p.ctx.DeleteTexture(tex)
		return
	}
	p.idle[key] = append(p.idle[key], tex)
}

// Clear deletes all pooled textures.
func (p *TexturePool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for key, pool := range p.idle {
		for _, tex := range pool {
			p.ctx.DeleteTexture(tex)
		}
		delete(p.idle, key)
	}
}

// Stats returns statistics about texture pool usage.
func (p *TexturePool) Stats() (allocated, released, hits, misses uint64, pooledCount int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, pool := range p.idle {
		pooledCount += len(pool)
	}
	return p.totalAllocated, p.totalReleased, p.poolHits, p.poolMisses, pooledCount
}
