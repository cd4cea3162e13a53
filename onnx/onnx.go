// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package onnx runs static ONNX graphs on a registered backend.
//
// Graph parsing is outside this package: callers build a Graph from an
// already decoded model and hand it to NewSession. Backends register
// themselves by name; importing the WebGL backend is enough to make it
// available.
//
// Example:
//
//	import (
//	    "github.com/born-ml/onnxgl/onnx"
//	    _ "github.com/born-ml/onnxgl/backend/webgl"
//	)
//
//	var g onnx.Graph
//	x := g.AddValue("x")
//	y := g.AddValue("y")
//	g.Inputs, g.Outputs = []int{x}, []int{y}
//	g.AddNode(&onnx.Node{OpType: "Relu", Inputs: []int{x}, Outputs: []int{y}})
//	g.Opsets = []onnx.OpsetImport{{Version: 13}}
//
//	sess, err := onnx.NewSession(&g, onnx.WithBackendHints("webgl"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sess.Close()
//	out, err := sess.Run(map[string]*tensor.Tensor{"x": input})
package onnx

import (
	"log/slog"

	"github.com/born-ml/onnxgl/internal/onnx"
	"github.com/born-ml/onnxgl/tensor"
)

// Graph is a static computation graph.
type Graph = onnx.Graph

// Node is one operator invocation in a Graph.
type Node = onnx.Node

// Value is a named edge of a Graph.
type Value = onnx.Value

// OpsetImport pins the operator set version of one domain.
type OpsetImport = onnx.OpsetImport

// NoInput marks an omitted optional node input.
const NoInput = onnx.NoInput

// Attribute is a typed node attribute value.
type Attribute = onnx.Attribute

// Attributes maps attribute names to values.
type Attributes = onnx.Attributes

// Operator is a resolved, backend-specific node implementation.
type Operator = onnx.Operator

// Backend executes graphs on one kind of device.
type Backend = onnx.Backend

// SessionHandler holds the per-session state of a Backend.
type SessionHandler = onnx.SessionHandler

// InferenceHandler holds the per-run state of a SessionHandler.
type InferenceHandler = onnx.InferenceHandler

// SessionContext is what a Backend sees of the session it serves.
type SessionContext = onnx.SessionContext

// Session executes one Graph on one Backend.
type Session = onnx.Session

// SessionOption configures NewSession.
type SessionOption = onnx.SessionOption

// Errors.
var (
	ErrUnsupportedOperator = onnx.ErrUnsupportedOperator
	ErrBackendUnavailable  = onnx.ErrBackendUnavailable
)

// NewSession resolves every node of g on a backend and returns a session
// ready to run.
func NewSession(g *Graph, opts ...SessionOption) (*Session, error) {
	return onnx.NewSession(g, opts...)
}

// WithBackendHints lists backend names in order of preference.
func WithBackendHints(names ...string) SessionOption {
	return onnx.WithBackendHints(names...)
}

// WithBackend runs the session on b instead of a registered backend.
func WithBackend(b Backend) SessionOption {
	return onnx.WithBackend(b)
}

// RegisterBackend makes a backend factory available under name.
func RegisterBackend(name string, factory func() Backend) {
	onnx.RegisterBackend(name, factory)
}

// RegisteredBackends returns the registered backend names in sorted order.
func RegisteredBackends() []string {
	return onnx.RegisteredBackends()
}

// ResolveBackend returns the first backend in hints that initializes.
func ResolveBackend(hints ...string) (Backend, error) {
	return onnx.ResolveBackend(hints...)
}

// DisposeBackends releases every initialized backend.
func DisposeBackends() {
	onnx.DisposeBackends()
}

// SetLogger sets the logger used by sessions and backends.
func SetLogger(l *slog.Logger) {
	onnx.SetLogger(l)
}

// Float returns a FLOAT attribute.
func Float(v float32) Attribute { return onnx.Float(v) }

// Int returns an INT attribute.
func Int(v int64) Attribute { return onnx.Int(v) }

// String returns a STRING attribute.
func String(v string) Attribute { return onnx.String(v) }

// Floats returns a FLOATS attribute.
func Floats(v ...float32) Attribute { return onnx.Floats(v...) }

// Ints returns an INTS attribute.
func Ints(v ...int64) Attribute { return onnx.Ints(v...) }

// Strings returns a STRINGS attribute.
func Strings(v ...string) Attribute { return onnx.Strings(v...) }

// TensorAttr returns a TENSOR attribute.
func TensorAttr(t *tensor.Tensor) Attribute { return onnx.TensorAttr(t) }

// ParseAttribute parses "name=value" into an attribute. Comma separated
// values become lists; numbers with a decimal point become floats.
func ParseAttribute(text string) (string, Attribute, error) {
	return onnx.ParseAttribute(text)
}
