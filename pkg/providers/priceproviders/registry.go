package priceproviders

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hoteliq/ratewatch/internal/keypool"
)

// Factory builds a provider instance from runtime configuration and its
// credential pool. Adapters register a factory from init().
type Factory func(cfg Config, pool *keypool.Pool) PriceProvider

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a provider factory available under the given key. It
// panics if the factory is nil or the key is already taken; both are
// programmer errors caught at startup.
func Register(key string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if f == nil {
		panic("priceproviders: Register factory is nil")
	}
	if _, dup := registry[key]; dup {
		panic(fmt.Sprintf("priceproviders: Register called twice for %s", key))
	}
	registry[key] = f
}

// Get returns the factory for a provider key.
func Get(key string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[key]
	return f, ok
}

// List returns the registered provider keys in sorted order.
func List() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	keys := make([]string, 0, len(registry))
	for k := range registry {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Build instantiates a provider by key, or errors if no factory is
// registered for it.
func Build(key string, cfg Config, pool *keypool.Pool) (PriceProvider, error) {
	f, ok := Get(key)
	if !ok {
		return nil, fmt.Errorf("priceproviders: unknown provider %q (registered: %v)", key, List())
	}
	return f(cfg, pool), nil
}
