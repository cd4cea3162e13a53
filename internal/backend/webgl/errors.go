package webgl

import (
	"errors"
	"fmt"

	"github.com/born-ml/onnxgl/internal/backend/webgl/glsl"
	"github.com/born-ml/onnxgl/internal/tensor"
)

// Common errors.
var (
	ErrLayout               = errors.New("texture layout failed")
	ErrAssembly             = glsl.ErrAssembly
	ErrCompile              = errors.New("shader compilation failed")
	ErrTypeMismatch         = errors.New("element type mismatch")
	ErrUnsupportedAttribute = errors.New("unsupported attribute")
	ErrShapeMismatch        = errors.New("shape mismatch")
	ErrReleased             = errors.New("texture already released")
	ErrNoContext            = errors.New("no WebGL context available")
	ErrSessionScoped        = errors.New("session-scoped textures are released with the session")
)

// AssemblyError is raised by the shader preprocessor.
type AssemblyError = glsl.AssemblyError

// LayoutError reports a shape that cannot be mapped to a texture within the
// device limits.
type LayoutError struct {
	Shape          tensor.Shape
	MaxTextureSize int
	Reason         string
}

// Error implements the error interface.
func (e *LayoutError) Error() string {
	return fmt.Sprintf("%v: shape %v (max texture size %d): %s", ErrLayout, e.Shape, e.MaxTextureSize, e.Reason)
}

// Unwrap returns ErrLayout.
func (e *LayoutError) Unwrap() error { return ErrLayout }

// CompileError reports a shader that failed to compile or a program that
// failed to link. Source holds the offending shader text.
type CompileError struct {
	Stage  string // "vertex", "fragment" or "link"
	Log    string
	Source string
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	return fmt.Sprintf("%v: %s: %s\n--- source ---\n%s", ErrCompile, e.Stage, e.Log, e.Source)
}

// Unwrap returns ErrCompile.
func (e *CompileError) Unwrap() error { return ErrCompile }

// TypeMismatchError reports an input whose element type a kernel rejects.
type TypeMismatchError struct {
	Op    string
	Input int
	Got   tensor.DataType
	Want  []tensor.DataType
}

// Error implements the error interface.
func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("%v: %s input %d is %v, want one of %v", ErrTypeMismatch, e.Op, e.Input, e.Got, e.Want)
}

// Unwrap returns ErrTypeMismatch.
func (e *TypeMismatchError) Unwrap() error { return ErrTypeMismatch }

// UnsupportedAttributeError reports an attribute value a kernel cannot generate code for.
type UnsupportedAttributeError struct {
	Op        string
	Attribute string
	Value     any
}

// Error implements the error interface.
func (e *UnsupportedAttributeError) Error() string {
	return fmt.Sprintf("%v: %s %s=%v", ErrUnsupportedAttribute, e.Op, e.Attribute, e.Value)
}

// Unwrap returns ErrUnsupportedAttribute.
func (e *UnsupportedAttributeError) Unwrap() error { return ErrUnsupportedAttribute }

// ShapeMismatchError reports incompatible input shapes.
type ShapeMismatchError struct {
	Op     string
	Shapes []tensor.Shape
	Reason string
}

// Error implements the error interface.
func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("%v: %s %v: %s", ErrShapeMismatch, e.Op, e.Shapes, e.Reason)
}

// Unwrap returns ErrShapeMismatch.
func (e *ShapeMismatchError) Unwrap() error { return ErrShapeMismatch }
