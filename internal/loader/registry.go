package loader

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sluicehq/sluice/internal/model"
	sluiceerrors "github.com/sluicehq/sluice/pkg/errors"
)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]*Spec)
)

// Register adds a loader spec for its entity type. Called at startup;
// read-only after init.
func Register(spec *Spec) error {
	if spec == nil || spec.EntityType == "" {
		return sluiceerrors.NewAdapterError("", fmt.Errorf("loader spec is nil or unnamed"))
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[spec.EntityType]; exists {
		return sluiceerrors.NewAdapterError(spec.EntityType, fmt.Errorf("loader already registered"))
	}

	registry[spec.EntityType] = spec
	return nil
}

// Get retrieves a loader spec by entity type.
func Get(entityType string) (*Spec, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	spec, ok := registry[entityType]
	if !ok {
		return nil, sluiceerrors.NewAdapterError(entityType, fmt.Errorf("no loader registered"))
	}
	return spec, nil
}

// Has reports whether a loader exists for the entity type.
func Has(entityType string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[entityType]
	return ok
}

// All returns every registered loader spec, ordered by entity type.
func All() []*Spec {
	registryMu.RLock()
	defer registryMu.RUnlock()

	out := make([]*Spec, 0, len(registry))
	for _, spec := range registry {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityType < out[j].EntityType })
	return out
}

// SupportsOperation reports whether the loader for entityType declares op.
func SupportsOperation(entityType string, op model.Operation) bool {
	spec, err := Get(entityType)
	if err != nil {
		return false
	}
	return spec.SupportsOperation(op)
}

// FieldSchema returns the record schema for the loader, or nil.
func FieldSchema(entityType string) map[string]FieldSpec {
	spec, err := Get(entityType)
	if err != nil {
		return nil
	}
	return spec.FieldSchema
}

// ByCategory groups registered loaders into their display categories.
func ByCategory() map[Category][]*Spec {
	out := make(map[Category][]*Spec)
	for _, spec := range All() {
		category := spec.Category
		if category == "" {
			category = CategoryOther
		}
		out[category] = append(out[category], spec)
	}
	return out
}

// Reset clears loader registrations (for tests).
func Reset() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]*Spec)
}
