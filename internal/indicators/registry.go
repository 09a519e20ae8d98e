package indicators

import (
	"fmt"
	"sort"
	"sync"
)

// Factory instantiates an indicator from a configuration map. A nil map
// yields default configuration.
type Factory func(cfg map[string]any) (Indicator, error)

// Registry maps indicator names to factories. It is constructed explicitly
// and injected where needed; there is no package-level instance.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// NewDefaultRegistry creates a registry pre-loaded with the built-in
// indicators.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, factory := range []Factory{NewMCDX, NewXTrender, NewSMA} {
		if err := r.Register(factory, false); err != nil {
			// Built-ins have distinct names and default-construct cleanly.
			panic(fmt.Sprintf("registering built-in indicator: %v", err))
		}
	}
	return r
}

// Register instantiates the factory with defaults to discover its name and
// stores it. Duplicate names are rejected unless override is set.
func (r *Registry) Register(factory Factory, override bool) error {
	probe, err := factory(nil)
	if err != nil {
		return fmt.Errorf("probing indicator factory: %w", err)
	}
	name := probe.Name()
	if name == "" {
		return fmt.Errorf("indicator factory produced an empty name: %w", ErrBadConfig)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists && !override {
		return fmt.Errorf("%s: %w", name, ErrDuplicateIndicator)
	}
	r.factories[name] = factory
	return nil
}

// Get instantiates the named indicator with the supplied configuration.
func (r *Registry) Get(name string, cfg map[string]any) (Indicator, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrUnknownIndicator)
	}
	indicator, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return indicator, nil
}

// List returns all registered names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
