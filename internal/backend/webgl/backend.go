package webgl

import (
	"github.com/born-ml/onnxgl/internal/backend/webgl/glsl"
	"github.com/born-ml/onnxgl/internal/envconfig"
	"github.com/born-ml/onnxgl/internal/onnx"
)

// Name is the registry name of the backend.
const Name = "webgl"

func init() {
	onnx.RegisterBackend(Name, func() onnx.Backend { return New() })
}

type options struct {
	ctx            Context
	dialect        glsl.Dialect
	maxTextureSize int
	packed         bool
	poolSize       int
}

func defaultOptions() options {
	d, err := glsl.ParseDialect(envconfig.WebGLContext())
	if err != nil {
		onnx.Logger().Warn("invalid ONNXGL_WEBGL_CONTEXT, using webgl2", "error", err)
		d = glsl.WebGL2
	}
	return options{
		dialect:        d,
		maxTextureSize: int(envconfig.MaxTextureSize()),
		packed:         envconfig.Packed(true),
		poolSize:       int(envconfig.TexturePoolSize()),
	}
}

// Option configures a Backend.
type Option func(*options)

// WithContext runs the backend on ctx instead of creating a platform context.
func WithContext(ctx Context) Option {
	return func(o *options) { o.ctx = ctx }
}

// WithDialect selects the WebGL version of the platform context.
func WithDialect(d glsl.Dialect) Option {
	return func(o *options) { o.dialect = d }
}

// WithMaxTextureSize caps the texture dimension below the device limit.
func WithMaxTextureSize(n int) Option {
	return func(o *options) { o.maxTextureSize = n }
}

// WithPacked enables or disables the packed MatMul and Conv kernels.
func WithPacked(packed bool) Option {
	return func(o *options) { o.packed = packed }
}

// WithTexturePoolSize sets the number of idle textures kept per size and format.
func WithTexturePoolSize(n int) Option {
	return func(o *options) { o.poolSize = n }
}

// Backend runs ONNX graphs as WebGL fragment shader passes.
type Backend struct {
	opts options
	ctx  Context
}

var _ onnx.Backend = (*Backend)(nil)

// New creates an uninitialized backend. Unset options default from the
// environment.
func New(opts ...Option) *Backend {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Backend{opts: o}
}

// Initialize acquires the rendering context and reports whether the backend
// is usable.
func (b *Backend) Initialize() bool {
	if b.ctx != nil {
		return true
	}
	ctx := b.opts.ctx
	if ctx == nil {
		var err error
		if ctx, err = newPlatformContext(b.opts.dialect); err != nil {
			onnx.Logger().Warn("webgl context unavailable", "dialect", b.opts.dialect, "error", err)
			return false
		}
	}
	b.ctx = ctx

	limit := ctx.MaxTextureSize()
	if b.opts.maxTextureSize <= 0 || b.opts.maxTextureSize > limit {
		b.opts.maxTextureSize = limit
	}
	onnx.Logger().Info("webgl backend initialized",
		"dialect", ctx.Dialect(), "maxTextureSize", b.opts.maxTextureSize, "packed", b.opts.packed)
	return true
}

// Context returns the rendering context, nil before Initialize.
func (b *Backend) Context() Context { return b.ctx }

// MaxTextureSize returns the effective texture size limit.
func (b *Backend) MaxTextureSize() int { return b.opts.maxTextureSize }

// CreateSessionHandler creates the per-session caches.
func (b *Backend) CreateSessionHandler(_ *onnx.SessionContext) (onnx.SessionHandler, error) {
	return b.NewSessionHandler()
}

// NewSessionHandler is CreateSessionHandler with the concrete result type.
func (b *Backend) NewSessionHandler() (*SessionHandler, error) {
	if b.ctx == nil && !b.Initialize() {
		return nil, ErrNoContext
	}
	return newSessionHandler(b), nil
}

// Dispose releases the rendering context.
func (b *Backend) Dispose() {
	if b.ctx != nil {
		b.ctx.Dispose()
		b.ctx = nil
	}
}
