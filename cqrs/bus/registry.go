package bus

import (
	"errors"
	"sort"
	"sync"
)

var (
	// ErrEmptyCommandType indicates that Register received an empty command type.
	ErrEmptyCommandType = errors.New("cqrs/bus: command type is empty")
	// ErrNilHandler indicates that Register received a nil handler.
	ErrNilHandler = errors.New("cqrs/bus: handler is nil")
)

// Registry maps command types to handlers. One handler per type; registering
// again replaces the previous binding.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register binds handler to commandType.
func (r *Registry) Register(commandType string, handler Handler) error {
	if commandType == "" {
		return ErrEmptyCommandType
	}
	if handler == nil {
		return ErrNilHandler
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[commandType] = handler
	return nil
}

// Unregister removes the binding for commandType, if any.
func (r *Registry) Unregister(commandType string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.handlers, commandType)
}

// Resolve returns the handler bound to commandType.
func (r *Registry) Resolve(commandType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[commandType]
	return h, ok
}

// Types lists bound command types in lexical order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)

	return types
}
