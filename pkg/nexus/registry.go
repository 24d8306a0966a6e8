package nexus

import (
	"context"
	"sort"
	"sync"

	cerrors "github.com/nexusd/nexuscore/pkg/child/errors"
)

// Registry is the process-wide name -> *Nexus mapping backing ListNexus.
// In this single-process Go port it plays the role §9 assigns to global
// state mutated only by the RPC-owning reactor: every mutation here goes
// through CreateNexus/DestroyNexus, which themselves call straight into
// the reconfiguration engine's single-writer protocol.
type Registry struct {
	mu    sync.RWMutex
	byName map[string]*Nexus
}

// NewRegistry returns an empty process-wide Nexus registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Nexus)}
}

// Create constructs a new Nexus and registers it under cfg.Name.
func (r *Registry) Create(cfg Config) (*Nexus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[cfg.Name]; exists {
		return nil, cerrors.NewAlreadyExistsError("nexus", cfg.Name)
	}

	n, err := New(cfg)
	if err != nil {
		return nil, err
	}
	r.byName[cfg.Name] = n
	return n, nil
}

// Get returns the Nexus registered under name.
func (r *Registry) Get(name string) (*Nexus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.byName[name]
	if !ok {
		return nil, cerrors.NewNotFoundError("nexus", name)
	}
	return n, nil
}

// List returns every registered Nexus, sorted by name for stable RPC output.
func (r *Registry) List() []*Nexus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Nexus, 0, len(r.byName))
	for _, n := range r.byName {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Destroy removes name from the registry and destroys its Nexus.
func (r *Registry) Destroy(ctx context.Context, name string) error {
	r.mu.Lock()
	n, ok := r.byName[name]
	if !ok {
		r.mu.Unlock()
		return cerrors.NewNotFoundError("nexus", name)
	}
	delete(r.byName, name)
	r.mu.Unlock()

	return n.Destroy(ctx)
}
