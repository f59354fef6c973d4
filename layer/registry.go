package layer

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"
)

// Factory builds a backend from its backend specific configuration.
type Factory func(ctx context.Context, lg *zap.Logger, config map[string]any) (Backend, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[string]Factory{}
)

// Register makes a backend available under identifier. Drivers call it from
// init; registering the same identifier twice panics.
func Register(identifier string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	if factory == nil {
		panic("layer: Register factory is nil")
	}
	if _, dup := factories[identifier]; dup {
		panic(fmt.Sprintf("layer: Register called twice for backend %q", identifier))
	}
	factories[identifier] = factory
}

// Backends lists the registered backend identifiers.
func Backends() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func lookupFactory(identifier string) (Factory, bool) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	f, ok := factories[identifier]
	return f, ok
}
