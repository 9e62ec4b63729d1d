package filter

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrUnknownFilter is returned when no core is registered under a name.
	ErrUnknownFilter = errors.New("filter: unknown filter")

	// ErrDuplicateFilter is returned when a short name is registered twice.
	ErrDuplicateFilter = errors.New("filter: duplicate filter")
)

// Registry maps short names to filter cores and holds the ordered catalog of
// adapters available to automatic insertion.
//
// Registry is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	cores    map[string]*Core
	order    []string
	adapters []*Core
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{cores: make(map[string]*Core)}
}

// Register adds a core under its short name.
func (r *Registry) Register(c *Core) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.cores[c.ShortName]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateFilter, c.ShortName)
	}
	r.cores[c.ShortName] = c
	r.order = append(r.order, c.ShortName)
	return nil
}

// Lookup returns the core registered under name.
func (r *Registry) Lookup(name string) (*Core, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.cores[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFilter, name)
	}
	return c, nil
}

// Cores returns every core in registration order.
func (r *Registry) Cores() []*Core {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Core, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.cores[name])
	}
	return out
}

// SetAdapters replaces the adapter catalog. The order of names is the order
// in which automatic insertion tries them.
func (r *Registry) SetAdapters(names ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	adapters := make([]*Core, 0, len(names))
	for _, name := range names {
		c, ok := r.cores[name]
		if !ok {
			return fmt.Errorf("%w: adapter %q", ErrUnknownFilter, name)
		}
		adapters = append(adapters, c)
	}
	r.adapters = adapters
	return nil
}

// Adapters returns a copy of the adapter catalog.
func (r *Registry) Adapters() []*Core {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]*Core(nil), r.adapters...)
}
