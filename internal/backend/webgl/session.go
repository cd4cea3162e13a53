package webgl

import (
	"fmt"

	"github.com/born-ml/onnxgl/internal/onnx"
	"github.com/born-ml/onnxgl/internal/tensor"
)

// SessionHandler owns the device state of one session: programs, the
// session-scoped texture cache and the set of initializer tensors.
type SessionHandler struct {
	backend  *Backend
	ctx      Context
	opts     options
	strategy LayoutStrategy

	textures *TextureManager
	programs *ProgramManager
	cache    *TextureCache

	initializers map[tensor.ID]struct{}
	signatures   map[OperatorID]string
	converters   map[string]ShaderOperator
}

var _ onnx.SessionHandler = (*SessionHandler)(nil)

func newSessionHandler(b *Backend) *SessionHandler {
	strategy := LayoutStrategy{MaxTextureSize: b.opts.maxTextureSize}
	textures := NewTextureManager(b.ctx, b.opts.poolSize)
	return &SessionHandler{
		backend:      b,
		ctx:          b.ctx,
		opts:         b.opts,
		strategy:     strategy,
		textures:     textures,
		programs:     NewProgramManager(b.ctx),
		cache:        NewTextureCache(SessionScope, textures, strategy),
		initializers: make(map[tensor.ID]struct{}),
		signatures:   make(map[OperatorID]string),
		converters:   make(map[string]ShaderOperator),
	}
}

// Programs returns the program manager.
func (s *SessionHandler) Programs() *ProgramManager { return s.programs }

// Textures returns the texture manager.
func (s *SessionHandler) Textures() *TextureManager { return s.textures }

// Cache returns the session-scoped texture cache.
func (s *SessionHandler) Cache() *TextureCache { return s.cache }

// Strategy returns the layout strategy of the session.
func (s *SessionHandler) Strategy() LayoutStrategy { return s.strategy }

// OnGraphInitialized records the graph's initializers. Their textures are
// uploaded once and kept for the session.
func (s *SessionHandler) OnGraphInitialized(g *onnx.Graph) {
	for _, id := range g.InitializerIDs() {
		s.initializers[id] = struct{}{}
	}
	onnx.Logger().Debug("graph initialized", "nodes", len(g.Nodes), "initializers", len(s.initializers))
}

// MarkInitializer keeps t's textures for the session.
func (s *SessionHandler) MarkInitializer(t *tensor.Tensor) {
	s.initializers[t.ID()] = struct{}{}
}

// IsInitializer reports whether id belongs to a session-lifetime tensor.
func (s *SessionHandler) IsInitializer(id tensor.ID) bool {
	_, ok := s.initializers[id]
	return ok
}

// Resolve returns the initialized operator implementing node.
func (s *SessionHandler) Resolve(node *onnx.Node, opsets []onnx.OpsetImport) (onnx.Operator, error) {
	version := opsetVersion(opsets, node.Domain)
	rule, ok := lookupRule(node.OpType, node.Domain, version)
	if !ok {
		return nil, fmt.Errorf("%w: %s (domain %q, opset %d)", onnx.ErrUnsupportedOperator, node.OpType, node.Domain, version)
	}
	op := rule.factory(node, version)
	if err := op.Initialize(node.Attributes); err != nil {
		return nil, err
	}
	return op, nil
}

func opsetVersion(opsets []onnx.OpsetImport, domain string) int {
	for _, o := range opsets {
		if o.Domain == domain || (isDefaultDomain(o.Domain) && isDefaultDomain(domain)) {
			return o.Version
		}
	}
	return 0
}

func isDefaultDomain(d string) bool { return d == "" || d == "ai.onnx" }

// CreateInferenceHandler returns a handler for one inference call.
func (s *SessionHandler) CreateInferenceHandler() onnx.InferenceHandler {
	return s.NewInferenceHandler()
}

// NewInferenceHandler is CreateInferenceHandler with the concrete result type.
func (s *SessionHandler) NewInferenceHandler() *InferenceHandler {
	return &InferenceHandler{
		session: s,
		cache:   NewTextureCache(CallScope, s.textures, s.strategy),
	}
}

// converter returns the pack or unpack operator for tensors of shape.
func (s *SessionHandler) converter(shape tensor.Shape, packed bool) ShaderOperator {
	key := fmt.Sprintf("%v/%v", shape, packed)
	if op, ok := s.converters[key]; ok {
		return op
	}
	var op ShaderOperator
	if packed {
		op = newPackOp()
	} else {
		op = newUnpackOp()
	}
	s.converters[key] = op
	return op
}

// Dispose deletes every program and session texture.
func (s *SessionHandler) Dispose() {
	s.programs.Dispose()
	s.cache.Dispose()
	allocated, released, hits, misses, pooled := s.textures.Pool().Stats()
	onnx.Logger().Debug("session disposed",
		"allocated", allocated, "released", released, "hits", hits, "misses", misses, "pooled", pooled)
	s.textures.Dispose()
}
