package providers

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

type stubProvider struct {
	name string
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Generate(ctx context.Context, params Params) (Output, error) {
	return Output{Data: []byte(s.name), Model: s.name, Guidance: params.Guidance}, nil
}

func TestRegistry_ResolveByName(t *testing.T) {
	registry := NewRegistry()
	openai := &stubProvider{name: "openai"}
	if err := registry.Register(openai); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	got, err := registry.Resolve("openai")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got != Provider(openai) {
		t.Error("Resolve() returned a different provider")
	}
}

func TestRegistry_AliasRoutesToBackend(t *testing.T) {
	registry := NewRegistry()
	dezgo := &stubProvider{name: "dezgo"}
	if err := registry.Register(dezgo, "stability", "flux"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	for _, name := range []string{"stability", "flux", "dezgo", "STABILITY", " Stability "} {
		got, err := registry.Resolve(name)
		if err != nil {
			t.Errorf("Resolve(%q) error = %v", name, err)
			continue
		}
		if got.Name() != "dezgo" {
			t.Errorf("Resolve(%q).Name() = %s, want dezgo", name, got.Name())
		}
	}
}

func TestRegistry_UnknownName(t *testing.T) {
	registry := NewRegistry()
	if _, err := registry.Resolve("nonsense"); err == nil {
		t.Error("Resolve(nonsense) error = nil, want error")
	}
	if registry.Known("nonsense") {
		t.Error("Known(nonsense) = true, want false")
	}
}

func TestRegistry_DuplicateRegistration(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(&stubProvider{name: "openai"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := registry.Register(&stubProvider{name: "openai"}); err == nil {
		t.Error("duplicate Register() error = nil, want error")
	}
	if err := registry.Register(&stubProvider{name: "dezgo"}, "openai"); err == nil {
		t.Error("Register() with colliding alias error = nil, want error")
	}
}

func TestLoadRegistryFile_ParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "providers.yaml")
	content := `providers:
  - name: openai
    aliases: [dalle]
  - name: dezgo
    aliases: [stability, flux]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	file, err := LoadRegistryFile(path)
	if err != nil {
		t.Fatalf("LoadRegistryFile() error = %v", err)
	}
	if len(file.Providers) != 2 {
		t.Fatalf("Providers = %d entries, want 2", len(file.Providers))
	}
	if file.Providers[1].Name != "dezgo" || len(file.Providers[1].Aliases) != 2 {
		t.Errorf("second entry = %+v, want dezgo with 2 aliases", file.Providers[1])
	}
}

func TestBuildRegistry_WiresAliases(t *testing.T) {
	file := RegistryFile{Providers: []RegistryEntry{
		{Name: "openai", Aliases: []string{"dalle"}},
		{Name: "dezgo", Aliases: []string{"stability"}},
	}}
	backends := map[string]Provider{
		"openai": &stubProvider{name: "openai"},
		"dezgo":  &stubProvider{name: "dezgo"},
	}

	registry, err := BuildRegistry(file, backends)
	if err != nil {
		t.Fatalf("BuildRegistry() error = %v", err)
	}

	got, err := registry.Resolve("stability")
	if err != nil {
		t.Fatalf("Resolve(stability) error = %v", err)
	}
	if got.Name() != "dezgo" {
		t.Errorf("Resolve(stability).Name() = %s, want dezgo", got.Name())
	}
}

func TestBuildRegistry_SkipsDisabled(t *testing.T) {
	disabled := false
	file := RegistryFile{Providers: []RegistryEntry{
		{Name: "openai"},
		{Name: "dezgo", Enabled: &disabled},
	}}
	backends := map[string]Provider{
		"openai": &stubProvider{name: "openai"},
	}

	registry, err := BuildRegistry(file, backends)
	if err != nil {
		t.Fatalf("BuildRegistry() error = %v", err)
	}
	if registry.Known("dezgo") {
		t.Error("disabled provider resolvable")
	}
}

func TestBuildRegistry_MissingBackendFails(t *testing.T) {
	file := RegistryFile{Providers: []RegistryEntry{{Name: "dezgo"}}}
	if _, err := BuildRegistry(file, map[string]Provider{}); err == nil {
		t.Error("BuildRegistry() error = nil, want error for missing backend")
	}
}
