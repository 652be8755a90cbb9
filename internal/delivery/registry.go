// Package delivery routes unsolicited notices, such as session expiry, to
// the front end that owns a session.
package delivery

import (
	"errors"
	"fmt"
	"sync"

	"github.com/user/medseek/internal/types"
)

// ErrNoHandler is returned when no front end is registered for a session key.
var ErrNoHandler = errors.New("no delivery handler")

// Handler delivers a message to the session identified by key.
type Handler func(key types.SessionKey, message string) error

// Registry maps a front-end name (the session key prefix, e.g. "telegram")
// to its delivery handler.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty delivery registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register adds the handler for sessions whose key starts with source.
func (r *Registry) Register(source string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[source] = handler
}

// Deliver sends message through the handler owning key.
func (r *Registry) Deliver(key types.SessionKey, message string) error {
	r.mu.RLock()
	handler, ok := r.handlers[key.Prefix()]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w for session key: %s", ErrNoHandler, key)
	}
	return handler(key, message)
}
