// Package onnx holds the backend-neutral execution core of onnxgl.
//
// A Graph arrives already parsed: values, nodes, initializers and the
// opset imports of the model. NewSession picks a Backend from the
// registry, lets its SessionHandler resolve every node into an Operator,
// and Session.Run evaluates the nodes in order through a fresh
// InferenceHandler per call.
//
// Key components:
//   - Graph, Node, Value, OpsetImport: the static graph
//   - Attribute, Attributes: typed node attributes
//   - Backend, SessionHandler, InferenceHandler, Operator: the backend contract
//   - Session: graph execution over one backend
package onnx
