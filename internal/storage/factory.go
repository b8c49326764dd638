// factory.go implements the storage driver registry, mapping driver names
// (postgres, sqlite) to constructor functions and dispatching Open calls.
package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sso-registry/sso/internal/config"
)

// FactoryFunc creates a storage driver from configuration.
type FactoryFunc func(ctx context.Context, cfg *config.Config) (Driver, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]FactoryFunc)
)

// Register registers a storage driver factory
func Register(name string, factory FactoryFunc) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = factory
}

// Registered returns the sorted names of all registered drivers.
func Registered() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open creates the storage driver named by cfg.Database.Driver.
func Open(ctx context.Context, cfg *config.Config) (Driver, error) {
	factoriesMu.RLock()
	factory, ok := factories[cfg.Database.Driver]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported storage driver: %s (registered: %s)",
			cfg.Database.Driver, strings.Join(Registered(), ", "))
	}

	return factory(ctx, cfg)
}
