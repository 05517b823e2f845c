// Package ai is the boundary to the external generation service. The core
// consumes it through Provider and StreamProvider and never performs
// inference itself.
package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

type ProviderFactory func(ctx context.Context, model string) (Provider, error)

// Registry routes a (provider, model) selection to a Provider instance.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]ProviderFactory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]ProviderFactory)}
}

func (r *Registry) Register(name string, f ProviderFactory) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

func (r *Registry) Get(ctx context.Context, name string, model string) (Provider, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown ai provider: %s", name)
	}
	return f(ctx, model)
}

// GetStream resolves a provider and requires streaming support.
func (r *Registry) GetStream(ctx context.Context, name string, model string) (StreamProvider, error) {
	p, err := r.Get(ctx, name, model)
	if err != nil {
		return nil, err
	}
	sp, ok := p.(StreamProvider)
	if !ok {
		return nil, fmt.Errorf("ai provider %s does not support streaming", name)
	}
	return sp, nil
}
