package adapter

import (
	"fmt"
	"sort"
	"sync"

	gerrors "github.com/gavel-sh/gavel/internal/errors"
)

// Registration pairs an adapter instance with its manifest.
type Registration struct {
	Adapter  DispatchAdapter
	Manifest Manifest
}

// Registry holds the adapters available for dispatch, keyed by adapter id.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Registration
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]Registration),
	}
}

// Register adds an adapter to the registry. Registering a second adapter
// under the same id is a conflict.
func (r *Registry) Register(a DispatchAdapter, m Manifest) error {
	const op = "adapter.Register"

	r.mu.Lock()
	defer r.mu.Unlock()

	id := a.AdapterID()
	if id == "" {
		return gerrors.Validation(op, "adapter id cannot be empty")
	}
	if _, exists := r.adapters[id]; exists {
		return gerrors.Conflict(op, fmt.Sprintf("adapter already registered: %s", id))
	}

	r.adapters[id] = Registration{Adapter: a, Manifest: m}
	return nil
}

// Resolve returns the adapter registered under the given id.
func (r *Registry) Resolve(id string) (DispatchAdapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.adapters[id]
	if !ok {
		return nil, gerrors.NotFound("adapter.Resolve", fmt.Sprintf("adapter not found: %s", id))
	}
	return reg.Adapter, nil
}

// ManifestFor returns the manifest for a registered adapter.
func (r *Registry) ManifestFor(id string) (Manifest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.adapters[id]
	if !ok {
		return Manifest{}, gerrors.NotFound("adapter.ManifestFor", fmt.Sprintf("adapter not found: %s", id))
	}
	return reg.Manifest, nil
}

// IDs returns the registered adapter ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
