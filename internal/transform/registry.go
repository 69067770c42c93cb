// Package transform implements the field/record transformation engine: a
// process-wide registry of named transforms and a chaining evaluator.
// All built-ins are pure; LOOKUP is the only transform that touches the
// entity store.
package transform

import (
	"context"
	"fmt"
	"sync"

	"github.com/sluicehq/sluice/internal/entity"
	"github.com/sluicehq/sluice/internal/logger"
	"github.com/sluicehq/sluice/internal/model"
	sluiceerrors "github.com/sluicehq/sluice/pkg/errors"
)

// Env carries the collaborators a transform may need. Only LOOKUP uses
// Entities; everything else must stay pure.
type Env struct {
	Entities entity.Service
	Logger   *logger.Logger
}

// Func is a single transform implementation.
type Func func(ctx context.Context, env *Env, value any, args Args, record *model.Envelope) (any, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Func)
)

// Register adds a transform implementation for the provided type. The
// registry is populated at startup (built-ins via RegisterBuiltins,
// plugin-supplied transforms after) and read-only from then on.
func Register(transformType string, fn Func) error {
	if fn == nil {
		return sluiceerrors.NewAdapterError(transformType, fmt.Errorf("transform is nil"))
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[transformType]; exists {
		return sluiceerrors.NewAdapterError(transformType, fmt.Errorf("transform already registered"))
	}

	registry[transformType] = fn
	return nil
}

// Get retrieves a transform by type.
func Get(transformType string) (Func, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	fn, ok := registry[transformType]
	if !ok {
		return nil, sluiceerrors.NewAdapterError(transformType, fmt.Errorf("no transform registered"))
	}
	return fn, nil
}

// Has reports whether a transform type is registered.
func Has(transformType string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[transformType]
	return ok
}

// Types returns the registered transform type names.
func Types() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	out := make([]string, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	return out
}

// Reset clears all registrations (for tests).
func Reset() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]Func)
}

// RegisterBuiltins installs every built-in transform. Idempotent per
// process start; duplicate registration errors surface immediately.
func RegisterBuiltins() error {
	groups := []map[string]Func{
		stringTransforms(),
		numericTransforms(),
		dateTransforms(),
		booleanTransforms(),
		coercionTransforms(),
		recordTransforms(),
		lookupTransforms(),
	}
	for _, group := range groups {
		for name, fn := range group {
			if err := Register(name, fn); err != nil {
				return err
			}
		}
	}
	return nil
}
