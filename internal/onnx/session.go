package onnx

import (
	"fmt"
	"sync"

	"github.com/born-ml/onnxgl/internal/tensor"
)

// SessionOption configures a Session.
type SessionOption func(*sessionConfig)

type sessionConfig struct {
	hints   []string
	backend Backend
}

// WithBackendHints lists backends to try, in order of preference.
func WithBackendHints(names ...string) SessionOption {
	return func(c *sessionConfig) { c.hints = names }
}

// WithBackend uses b directly instead of resolving a registered backend.
// b must already be initialized.
func WithBackend(b Backend) SessionOption {
	return func(c *sessionConfig) { c.backend = b }
}

// Session runs a static graph on one backend. Each graph node is resolved to
// one operator instance when the session is created and reused by every call.
//
// Run calls are serialized: the backends keep per-session mutable caches.
type Session struct {
	graph   *Graph
	handler SessionHandler
	ops     []Operator

	mu sync.Mutex
}

// NewSession resolves a backend and every graph node.
func NewSession(g *Graph, opts ...SessionOption) (*Session, error) {
	cfg := &sessionConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid graph: %w", err)
	}
	if err := g.TopoSort(); err != nil {
		return nil, err
	}

	backend := cfg.backend
	if backend == nil {
		b, err := ResolveBackend(cfg.hints...)
		if err != nil {
			return nil, err
		}
		backend = b
	}

	handler, err := backend.CreateSessionHandler(&SessionContext{Graph: g})
	if err != nil {
		return nil, fmt.Errorf("create session handler: %w", err)
	}
	handler.OnGraphInitialized(g)

	ops := make([]Operator, len(g.Nodes))
	for i, node := range g.Nodes {
		op, err := handler.Resolve(node, g.Opsets)
		if err != nil {
			handler.Dispose()
			return nil, fmt.Errorf("node %s (%s): %w", node.Name, node.OpType, err)
		}
		ops[i] = op
	}

	return &Session{graph: g, handler: handler, ops: ops}, nil
}

// Run executes the graph for one set of named inputs and returns the graph
// outputs by name. Outputs are materialized before the call ends.
func (s *Session) Run(feeds map[string]*tensor.Tensor) (map[string]*tensor.Tensor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values := make([]*tensor.Tensor, len(s.graph.Values))
	for idx, t := range s.graph.Initializers {
		values[idx] = t
	}
	for _, idx := range s.graph.Inputs {
		name := s.graph.Values[idx].Name
		t, ok := feeds[name]
		if !ok {
			return nil, fmt.Errorf("missing input: %s", name)
		}
		values[idx] = t
	}

	h := s.handler.CreateInferenceHandler()
	defer h.Dispose()

	for i, node := range s.graph.Nodes {
		inputs := make([]*tensor.Tensor, len(node.Inputs))
		for j, idx := range node.Inputs {
			if idx == NoInput {
				continue
			}
			if values[idx] == nil {
				return nil, fmt.Errorf("node %s (%s): input %s not computed", node.Name, node.OpType, s.graph.Values[idx].Name)
			}
			inputs[j] = values[idx]
		}

		op := s.ops[i]
		if err := op.CheckInputs(inputs); err != nil {
			return nil, fmt.Errorf("node %s (%s): %w", node.Name, node.OpType, err)
		}
		outputs, err := op.Run(h, inputs)
		if err != nil {
			return nil, fmt.Errorf("node %s (%s): %w", node.Name, node.OpType, err)
		}
		for j, idx := range node.Outputs {
			if j < len(outputs) {
				values[idx] = outputs[j]
			}
		}
	}

	result := make(map[string]*tensor.Tensor, len(s.graph.Outputs))
	for _, idx := range s.graph.Outputs {
		name := s.graph.Values[idx].Name
		t := values[idx]
		if t == nil {
			return nil, fmt.Errorf("missing output: %s", name)
		}
		// Call-scoped device memory is released by h.Dispose.
		if err := t.Materialize(); err != nil {
			return nil, fmt.Errorf("output %s: %w", name, err)
		}
		result[name] = t
	}
	return result, nil
}

// Close releases the session resources held by the backend.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler.Dispose()
}
