// registry.go implements the provider lookup table, including the alias
// mapping that lets retired provider names keep working.
package providers

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Registry maps provider names and aliases to backends.
//
// Lookups are case-insensitive. An alias resolves to the same backend as its
// canonical name, but results keep the name the caller asked for, so clients
// sending a legacy alias see it echoed back unchanged.
//
// Thread Safety: Registry is safe for concurrent use after construction.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Provider // canonical name -> backend
	aliases  map[string]string   // alias -> canonical name
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Provider),
		aliases:  make(map[string]string),
	}
}

// Register adds a backend under its canonical name plus any aliases.
// Returns an error if a name or alias is already taken.
func (r *Registry) Register(provider Provider, aliases ...string) error {
	if provider == nil {
		return fmt.Errorf("providers: cannot register nil provider")
	}

	name := strings.ToLower(provider.Name())
	if name == "" {
		return fmt.Errorf("providers: provider name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("providers: provider %q already registered", name)
	}
	if canonical, exists := r.aliases[name]; exists {
		return fmt.Errorf("providers: name %q already aliased to %q", name, canonical)
	}
	r.handlers[name] = provider

	for _, alias := range aliases {
		alias = strings.ToLower(strings.TrimSpace(alias))
		if alias == "" || alias == name {
			continue
		}
		if _, exists := r.handlers[alias]; exists {
			return fmt.Errorf("providers: alias %q collides with registered provider", alias)
		}
		if canonical, exists := r.aliases[alias]; exists {
			return fmt.Errorf("providers: alias %q already mapped to %q", alias, canonical)
		}
		r.aliases[alias] = name
	}

	return nil
}

// Resolve returns the backend for a requested name or alias.
func (r *Registry) Resolve(name string) (Provider, error) {
	key := strings.ToLower(strings.TrimSpace(name))

	r.mu.RLock()
	defer r.mu.RUnlock()

	if canonical, ok := r.aliases[key]; ok {
		key = canonical
	}
	provider, ok := r.handlers[key]
	if !ok {
		return nil, fmt.Errorf("providers: unknown provider %q", name)
	}
	return provider, nil
}

// Known reports whether a name or alias resolves to a registered backend.
func (r *Registry) Known(name string) bool {
	_, err := r.Resolve(name)
	return err == nil
}

// Names returns all canonical provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Aliases returns a copy of the alias table.
func (r *Registry) Aliases() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]string, len(r.aliases))
	for alias, canonical := range r.aliases {
		out[alias] = canonical
	}
	return out
}

// RegistryFile is the YAML shape of the provider registry config.
type RegistryFile struct {
	Providers []RegistryEntry `yaml:"providers"`
}

type RegistryEntry struct {
	// Name is the canonical provider name; must match a known backend
	Name string `yaml:"name"`
	// Aliases are additional request names routed to this backend
	Aliases []string `yaml:"aliases"`
	// Enabled defaults to true when omitted
	Enabled *bool `yaml:"enabled"`
}

// LoadRegistryFile parses a providers YAML file.
func LoadRegistryFile(path string) (RegistryFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RegistryFile{}, fmt.Errorf("providers: failed to read registry config: %w", err)
	}

	var file RegistryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return RegistryFile{}, fmt.Errorf("providers: failed to parse registry config: %w", err)
	}
	if len(file.Providers) == 0 {
		return RegistryFile{}, fmt.Errorf("providers: registry config %s defines no providers", path)
	}
	return file, nil
}

// BuildRegistry constructs a Registry from a YAML config and a set of
// available backends keyed by canonical name. Entries referencing a backend
// that was not constructed (e.g. missing API key) return an error unless the
// entry is disabled.
func BuildRegistry(file RegistryFile, backends map[string]Provider) (*Registry, error) {
	registry := NewRegistry()

	for _, entry := range file.Providers {
		name := strings.ToLower(strings.TrimSpace(entry.Name))
		if name == "" {
			return nil, fmt.Errorf("providers: registry entry missing name")
		}
		if entry.Enabled != nil && !*entry.Enabled {
			continue
		}

		backend, ok := backends[name]
		if !ok {
			return nil, fmt.Errorf("providers: registry references unavailable provider %q", name)
		}
		if err := registry.Register(backend, entry.Aliases...); err != nil {
			return nil, err
		}
	}

	if len(registry.Names()) == 0 {
		return nil, fmt.Errorf("providers: no providers enabled")
	}
	return registry, nil
}
