package onnx

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/born-ml/onnxgl/internal/tensor"
)

var (
	// ErrUnsupportedOperator is returned when no backend rule matches a node.
	ErrUnsupportedOperator = errors.New("unsupported operator")

	// ErrBackendUnavailable is returned when no requested backend initializes.
	ErrBackendUnavailable = errors.New("no backend available")
)

// Operator is one resolved, attribute-initialized graph node.
type Operator interface {
	// Initialize reads the node attributes. It is called once, at resolve time.
	Initialize(attrs Attributes) error

	// CheckInputs validates arity and element types before any device work.
	CheckInputs(inputs []*tensor.Tensor) error

	// Run computes the node outputs.
	Run(h InferenceHandler, inputs []*tensor.Tensor) ([]*tensor.Tensor, error)
}

// InferenceHandler holds the state of one inference call.
type InferenceHandler interface {
	// Dispose releases every resource scoped to the call.
	Dispose()
}

// SessionHandler holds the per-session state of a backend.
type SessionHandler interface {
	// Resolve returns the operator implementing node for the given opsets.
	Resolve(node *Node, opsets []OpsetImport) (Operator, error)

	// CreateInferenceHandler starts an inference call.
	CreateInferenceHandler() InferenceHandler

	// OnGraphInitialized is called once the session graph is known.
	OnGraphInitialized(g *Graph)

	// Dispose releases every resource scoped to the session.
	Dispose()
}

// SessionContext carries session level information to a backend.
type SessionContext struct {
	Graph *Graph
}

// Backend is the backend selection contract.
type Backend interface {
	// Initialize prepares the backend and reports whether it is usable.
	Initialize() bool

	// CreateSessionHandler creates the per-session state.
	CreateSessionHandler(ctx *SessionContext) (SessionHandler, error)

	// Dispose releases backend-wide resources.
	Dispose()
}

var (
	backendsMu sync.Mutex
	factories  = make(map[string]func() Backend)
	ready      = make(map[string]Backend)
)

// RegisterBackend makes a backend available by name.
// It panics if name is registered twice.
func RegisterBackend(name string, factory func() Backend) {
	backendsMu.Lock()
	defer backendsMu.Unlock()

	if _, ok := factories[name]; ok {
		panic("onnx: backend already registered: " + name)
	}
	factories[name] = factory
}

// RegisteredBackends returns the registered backend names in sorted order.
func RegisteredBackends() []string {
	backendsMu.Lock()
	defer backendsMu.Unlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveBackend returns the first backend among hints that initializes.
// Without hints every registered backend is tried in name order.
// Initialized backends are cached and shared across sessions.
func ResolveBackend(hints ...string) (Backend, error) {
	if len(hints) == 0 {
		hints = RegisteredBackends()
	}

	backendsMu.Lock()
	defer backendsMu.Unlock()

	for _, name := range hints {
		if b, ok := ready[name]; ok {
			return b, nil
		}
		factory, ok := factories[name]
		if !ok {
			Logger().Warn("unknown backend hint", "backend", name)
			continue
		}
		b := factory()
		if !b.Initialize() {
			Logger().Warn("backend failed to initialize", "backend", name)
			continue
		}
		Logger().Info("backend initialized", "backend", name)
		ready[name] = b
		return b, nil
	}
	return nil, fmt.Errorf("%w (tried %v)", ErrBackendUnavailable, hints)
}

// DisposeBackends disposes every initialized backend.
func DisposeBackends() {
	backendsMu.Lock()
	defer backendsMu.Unlock()

	for name, b := range ready {
		b.Dispose()
		delete(ready, name)
	}
}
