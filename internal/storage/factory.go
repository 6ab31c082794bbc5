package storage

import (
	"fmt"
	"sort"
	"sync"

	"github.com/policytracker/policy-tracker/internal/config"
)

// FactoryFunc builds a backend from the application config.
type FactoryFunc func(*config.Config) (Storage, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]FactoryFunc)
)

// Register makes a backend available under name. Later registrations replace
// earlier ones.
func Register(name string, factory FactoryFunc) {
	mu.Lock()
	defer mu.Unlock()
	factories[name] = factory
}

// Backends lists the registered backend names.
func Backends() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewStorage builds the backend named by storage.default_backend.
func NewStorage(cfg *config.Config) (Storage, error) {
	mu.RLock()
	factory, ok := factories[cfg.Storage.DefaultBackend]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported storage backend %q (registered: %v)", cfg.Storage.DefaultBackend, Backends())
	}
	return factory(cfg)
}
