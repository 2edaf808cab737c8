package mediaprovider

import (
	"fmt"
	"sort"
	"sync"

	"github.com/canvasflow/server/internal/model"
	"github.com/canvasflow/server/internal/port/outbound"
)

// Registry manages media vendor adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[model.ProviderKind]outbound.MediaVendorAdapterPort
}

// NewRegistry creates a new adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[model.ProviderKind]outbound.MediaVendorAdapterPort),
	}
}

// Register registers an adapter, replacing any adapter of the same provider.
func (r *Registry) Register(adapter outbound.MediaVendorAdapterPort) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[adapter.Provider()] = adapter
}

// Get returns an adapter by provider kind.
func (r *Registry) Get(provider model.ProviderKind) (outbound.MediaVendorAdapterPort, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[provider]
	if !ok {
		return nil, fmt.Errorf("%w: no adapter registered for %s", model.ErrUnsupportedProvider, provider)
	}
	return a, nil
}

// All returns all registered adapters ordered by provider.
func (r *Registry) All() []outbound.MediaVendorAdapterPort {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]outbound.MediaVendorAdapterPort, 0, len(r.adapters))
	for _, a := range r.adapters {
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Provider() < result[j].Provider()
	})
	return result
}

// Compile-time interface check
var _ outbound.MediaVendorRegistryPort = (*Registry)(nil)
