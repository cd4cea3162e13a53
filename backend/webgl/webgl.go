// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgl provides the WebGL backend for onnxgl sessions.
//
// Importing the package registers the backend under the name "webgl".
// Tensors live in floating point textures and every operator runs as one or
// more fragment shader passes over a full-screen quad. In a browser
// (GOOS=js, GOARCH=wasm) the backend creates its own canvas context; on
// other platforms it needs a Context supplied with WithContext.
//
// Example:
//
//	b := webgl.New(webgl.WithPacked(false))
//	sess, err := onnx.NewSession(g, onnx.WithBackend(b))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sess.Close()
//
// Configuration can also come from the environment:
//
//	ONNXGL_WEBGL_CONTEXT      webgl2 or webgl
//	ONNXGL_MAX_TEXTURE_SIZE   cap below the device limit
//	ONNXGL_PACKED             packed MatMul and Conv kernels
//	ONNXGL_TEXTURE_POOL_SIZE  idle textures kept per size and format
package webgl

import (
	"log/slog"

	"github.com/born-ml/onnxgl/internal/backend/webgl"
	"github.com/born-ml/onnxgl/internal/backend/webgl/glsl"
	"github.com/born-ml/onnxgl/internal/onnx"
)

// Name is the registry name of the backend.
const Name = webgl.Name

// Backend runs ONNX graphs as WebGL fragment shader passes.
type Backend = webgl.Backend

// Option configures a Backend.
type Option = webgl.Option

// Context is the subset of a WebGL rendering context the backend uses.
type Context = webgl.Context

// Dialect selects the shading language version.
type Dialect = glsl.Dialect

// Supported dialects.
const (
	WebGL1 Dialect = glsl.WebGL1
	WebGL2 Dialect = glsl.WebGL2
)

// OfflineContext is a Context without a GPU. It records shaders and
// textures but never computes.
type OfflineContext = webgl.OfflineContext

// OfflineStats counts the calls made on an OfflineContext.
type OfflineStats = webgl.OfflineStats

// OperatorSupport describes one supported operator and its opset range.
type OperatorSupport = webgl.OperatorSupport

// Errors.
var (
	ErrNoContext            = webgl.ErrNoContext
	ErrCompile              = webgl.ErrCompile
	ErrTypeMismatch         = webgl.ErrTypeMismatch
	ErrShapeMismatch        = webgl.ErrShapeMismatch
	ErrUnsupportedAttribute = webgl.ErrUnsupportedAttribute
)

// New creates an uninitialized backend.
func New(opts ...Option) *Backend {
	return webgl.New(opts...)
}

// WithContext runs the backend on ctx instead of a platform context.
func WithContext(ctx Context) Option {
	return webgl.WithContext(ctx)
}

// WithDialect selects the WebGL version of the platform context.
func WithDialect(d Dialect) Option {
	return webgl.WithDialect(d)
}

// WithMaxTextureSize caps the texture dimension below the device limit.
func WithMaxTextureSize(n int) Option {
	return webgl.WithMaxTextureSize(n)
}

// WithPacked enables or disables the packed MatMul and Conv kernels.
func WithPacked(packed bool) Option {
	return webgl.WithPacked(packed)
}

// WithTexturePoolSize sets the number of idle textures kept per size and
// format.
func WithTexturePoolSize(n int) Option {
	return webgl.WithTexturePoolSize(n)
}

// NewOfflineContext returns an OfflineContext for d.
func NewOfflineContext(d Dialect, maxTextureSize int) *OfflineContext {
	return webgl.NewOfflineContext(d, maxTextureSize)
}

// ParseDialect accepts "webgl" and "webgl2".
func ParseDialect(s string) (Dialect, error) {
	return glsl.ParseDialect(s)
}

// SupportedOperators lists the operators the backend resolves.
func SupportedOperators() []OperatorSupport {
	return webgl.SupportedOperators()
}

// SetLogger sets the logger used by the backend. A nil logger silences it.
func SetLogger(l *slog.Logger) {
	onnx.SetLogger(l)
}
