package backend

import (
	"fmt"
	"sync"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/model"
)

// Factory builds a Backend for a given Runtime row. One Factory is
// registered per model.RuntimeType at daemon boot (see internal/daemon).
type Factory func(rt model.Runtime) (Backend, error)

// Registry maps live Runtime rows to constructed Backend instances,
// grounded on the teacher's internal/connection.MachineRegistry (a
// mutex-protected map keyed by name, populated from persisted config).
type Registry struct {
	mu        sync.RWMutex
	factories map[model.RuntimeType]Factory
	backends  map[string]Backend // runtime id -> live Backend
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[model.RuntimeType]Factory),
		backends:  make(map[string]Backend),
	}
}

// RegisterFactory installs the constructor used for a runtime type.
func (r *Registry) RegisterFactory(t model.RuntimeType, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[t] = f
}

// Ensure returns the live Backend for rt, constructing and caching it via
// the registered factory on first use.
func (r *Registry) Ensure(rt model.Runtime) (Backend, error) {
	r.mu.RLock()
	if b, ok := r.backends[rt.ID]; ok {
		r.mu.RUnlock()
		return b, nil
	}
	factory, ok := r.factories[rt.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no backend factory registered for runtime type %q", rt.Type)
	}

	b, err := factory(rt)
	if err != nil {
		return nil, fmt.Errorf("constructing backend for runtime %s: %w", rt.ID, err)
	}

	r.mu.Lock()
	r.backends[rt.ID] = b
	r.mu.Unlock()
	return b, nil
}

// Get returns the already-constructed Backend for a runtime id, if any.
func (r *Registry) Get(runtimeID string) (Backend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[runtimeID]
	return b, ok
}

// Forget drops a cached Backend, e.g. after runtime.remove.
func (r *Registry) Forget(runtimeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.backends, runtimeID)
}

// All returns every currently-constructed Backend, keyed by runtime id.
func (r *Registry) All() map[string]Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Backend, len(r.backends))
	for k, v := range r.backends {
		out[k] = v
	}
	return out
}
