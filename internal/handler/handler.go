// Package handler defines the node handler contract workers dispatch tasks
// to, plus a small set of built-in handlers exercised by the reference
// deployment and its tests.
package handler

import (
	"context"
	"encoding/json"
)

// Handler executes one node's work given its resolved config and returns
// the output object the orchestrator stores against the node. Handlers must
// be effectively idempotent under replay: a worker crash between a
// successful Process and the completion publish means Process can run
// twice for the same task id.
type Handler interface {
	Name() string
	Process(ctx context.Context, config map[string]interface{}) (json.RawMessage, error)
}

// Registry maps handler names to implementations.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds h under its own Name(), overwriting any previous handler of
// the same name.
func (r *Registry) Register(h Handler) {
	r.handlers[h.Name()] = h
}

// Get returns the handler registered for name, or false if none is.
func (r *Registry) Get(name string) (Handler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}
