package task

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// HandlerFunc is a type-erased task handler that accepts the raw payload
// and returns the serialized output on success. The typed Definition[T] is
// converted to a HandlerFunc at registration time by closing over JSON
// unmarshal + the typed handler.
type HandlerFunc func(ctx context.Context, payload []byte) ([]byte, error)

// Definition is a typed task definition with a handler function.
// T is the payload type (must be JSON-serializable).
type Definition[T any] struct {
	// Type is the unique task-type identifier.
	Type string

	// Handler is the function that processes the task payload. A non-nil
	// output is JSON-serialized and carried on the success result, where
	// completion hooks can consume it. Return nil when there is nothing
	// to report.
	Handler func(ctx context.Context, payload T) (any, error)

	// Opts configures the queue, attempt budget, and timeout used when
	// tasks of this type are enqueued through the engine.
	Opts Options
}

// NewDefinition creates a typed task definition.
func NewDefinition[T any](taskType string, handler func(ctx context.Context, payload T) (any, error), opts ...Option) *Definition[T] {
	def := &Definition[T]{
		Type:    taskType,
		Handler: handler,
		Opts:    DefaultOptions(),
	}
	for _, opt := range opts {
		opt(&def.Opts)
	}
	return def
}

// Registry maps task-type identifiers to type-erased handler functions.
// It is safe for concurrent use. The engine resolves handlers through the
// registry at execution time; it does not define individual handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	opts     map[string]Options
}

// NewRegistry creates an empty task registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]HandlerFunc),
		opts:     make(map[string]Options),
	}
}

// RegisterDefinition registers a typed task definition. The generic handler
// is wrapped in a closure that JSON-unmarshals the payload into T before
// calling the typed handler.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func RegisterDefinition[T any](r *Registry, def *Definition[T]) {
	handler := func(ctx context.Context, payload []byte) ([]byte, error) {
		var t T
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &t); err != nil {
				return nil, fmt.Errorf("unmarshal payload for task %q: %w", def.Type, err)
			}
		}
		out, err := def.Handler(ctx, t)
		if err != nil || out == nil {
			return nil, err
		}
		raw, merr := json.Marshal(out)
		if merr != nil {
			return nil, fmt.Errorf("marshal output for task %q: %w", def.Type, merr)
		}
		return raw, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[def.Type] = handler
	r.opts[def.Type] = def.Opts
}

// Get returns the handler for the given task type.
// Returns false if no handler is registered.
func (r *Registry) Get(taskType string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[taskType]
	return h, ok
}

// OptionsFor returns the registered definition options for the task type,
// or the package defaults if the type is unknown.
func (r *Registry) OptionsFor(taskType string) Options {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if o, ok := r.opts[taskType]; ok {
		return o
	}
	return DefaultOptions()
}

// Types returns all registered task types.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	return types
}
