package interpreter

import (
	"slices"
	"sync"

	"github.com/openkcm/bot-flow/internal/flow"
)

// Registry maps node types to handlers. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[flow.NodeType]Handler
}

func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[flow.NodeType]Handler),
	}
}

// Register sets the handler of a node type, replacing any previous one.
func (r *Registry) Register(nodeType flow.NodeType, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[nodeType] = h
}

func (r *Registry) RegisterFunc(nodeType flow.NodeType, f HandlerFunc) {
	r.Register(nodeType, f)
}

func (r *Registry) Lookup(nodeType flow.NodeType) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[nodeType]
	return h, ok
}

// Types lists the registered node types in lexical order.
func (r *Registry) Types() []flow.NodeType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]flow.NodeType, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}
