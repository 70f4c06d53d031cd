package repository

import (
	"sort"
	"sync"

	appErrors "github.com/gloodan17/Course-Enrollment-Database/pkg/errors"
)

// Registry maps collection names to their engines so references can be resolved
// across variants. It is built once at startup and handed to every collection.
type Registry struct {
	mu          sync.RWMutex
	collections map[string]*EntityCollection
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{collections: make(map[string]*EntityCollection)}
}

// Register binds name to c, replacing any earlier binding.
func (r *Registry) Register(name string, c *EntityCollection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collections[name] = c
}

// Resolve returns the collection registered under name.
func (r *Registry) Resolve(name string) (*EntityCollection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.collections[name]
	if !ok {
		return nil, appErrors.Clonef(appErrors.ErrNotFound, "collection %q is not registered", name)
	}
	return c, nil
}

// Names lists registered collection names alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.collections))
	for name := range r.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
