package scrapers

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"lootscout/pkg/config"
)

var ErrUnknownSource = errors.New("unknown source")

// Factory builds an adapter from its configuration entry.
type Factory func(cfg config.SourceConfig) (Adapter, error)

// Registry maps configured source names to adapter factories.
type Registry struct {
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

func (r *Registry) Register(name string, f Factory) {
	r.factories[strings.ToLower(name)] = f
}

// Names lists registered sources alphabetically.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Build creates adapters for cfgs in the given order.
func (r *Registry) Build(cfgs []config.SourceConfig) ([]Adapter, error) {
	adapters := make([]Adapter, 0, len(cfgs))
	for _, cfg := range cfgs {
		f, ok := r.factories[strings.ToLower(strings.TrimSpace(cfg.Name))]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownSource, cfg.Name)
		}
		a, err := f(cfg)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", cfg.Name, err)
		}
		adapters = append(adapters, a)
	}
	return adapters, nil
}
