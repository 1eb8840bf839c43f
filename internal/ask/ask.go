// Package ask provides an internal request/response dispatcher: exactly one
// handler may be registered per named operation, and callers invoke
// operations by name with a single request argument.
package ask

import (
	"context"
	"fmt"
	"sync"
)

// Handler processes one request and returns a response.
type Handler func(ctx context.Context, req any) (any, error)

// Bus maps operation names to their single registered handler.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// New creates an empty dispatcher.
func New() *Bus {
	return &Bus{handlers: make(map[string]Handler)}
}

// Register binds the handler to the operation name. Registering a name twice
// is a wiring bug and fails.
func (b *Bus) Register(name string, handler Handler) error {
	if handler == nil {
		return fmt.Errorf("nil handler for operation %q", name)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.handlers[name]; exists {
		return fmt.Errorf("operation %q already registered", name)
	}
	b.handlers[name] = handler
	return nil
}

// Ask dispatches the request to the operation's handler.
func (b *Bus) Ask(ctx context.Context, name string, req any) (any, error) {
	b.mu.RLock()
	handler, ok := b.handlers[name]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown operation %q", name)
	}
	return handler(ctx, req)
}
