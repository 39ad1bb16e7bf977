package shutdown

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// CleanupFunc releases one resource during shutdown.
type CleanupFunc func(ctx context.Context) error

// registryEntry is one registered cleanup handler.
type registryEntry struct {
	name     string
	priority int
	fn       CleanupFunc
	order    int // registration order, tiebreak for equal priorities
}

// Registry holds cleanup functions and runs them in priority order.
// Lower priority values run first.
type Registry struct {
	mu      sync.Mutex
	entries []registryEntry
}

// NewRegistry creates an empty cleanup registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a cleanup function under the given name and priority.
func (r *Registry) Register(name string, priority int, fn CleanupFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, registryEntry{
		name:     name,
		priority: priority,
		fn:       fn,
		order:    len(r.entries),
	})
}

// Count returns the number of registered handlers.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Names returns handler names in execution order.
func (r *Registry) Names() []string {
	entries := r.sorted()
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.name
	}
	return names
}

// Shutdown runs all handlers in priority order, continuing past failures.
// Returns one error per failed handler.
func (r *Registry) Shutdown(ctx context.Context) []error {
	var errs []error
	for _, e := range r.sorted() {
		if ctx.Err() != nil {
			errs = append(errs, fmt.Errorf("shutdown: context expired before %s ran: %w", e.name, ctx.Err()))
			continue
		}
		if err := e.fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown: %s failed: %w", e.name, err))
		}
	}
	return errs
}

func (r *Registry) sorted() []registryEntry {
	r.mu.Lock()
	entries := make([]registryEntry, len(r.entries))
	copy(entries, r.entries)
	r.mu.Unlock()

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].priority != entries[j].priority {
			return entries[i].priority < entries[j].priority
		}
		return entries[i].order < entries[j].order
	})
	return entries
}
