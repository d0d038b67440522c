// Package adapters routes provider codes to gateway adapter factories.
// Pure dispatch; no business logic lives here.
package adapters

import (
	"fmt"

	"github.com/coresolution/billinghub/internal/billing/domain"
)

type Registry struct {
	factories map[domain.Provider]domain.AdapterFactory
}

func NewRegistry(factories ...domain.AdapterFactory) *Registry {
	r := &Registry{factories: make(map[domain.Provider]domain.AdapterFactory, len(factories))}
	for _, f := range factories {
		r.factories[f.Provider()] = f
	}
	return r
}

// NewAdapter builds an adapter for the given provider code, delegating
// the config verbatim to the factory. Unknown codes fail with
// ErrUnsupportedProvider.
func (r *Registry) NewAdapter(provider domain.Provider, cfg domain.AdapterConfig) (domain.GatewayAdapter, error) {
	factory, ok := r.factories[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedProvider, provider)
	}
	return factory.NewAdapter(cfg)
}

func (r *Registry) Supports(provider domain.Provider) bool {
	_, ok := r.factories[provider]
	return ok
}
