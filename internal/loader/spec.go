// Package loader implements the entity loader framework: a generic batch
// engine parameterized by per-entity Spec value objects, a process-wide
// registry, and the batch rollback journal.
package loader

import (
	"context"

	"github.com/sluicehq/sluice/internal/entity"
	"github.com/sluicehq/sluice/internal/logger"
	"github.com/sluicehq/sluice/internal/model"
)

// Category groups loaders for human-visible listings.
type Category string

const (
	CategoryProducts      Category = "Products"
	CategoryCustomers     Category = "Customers"
	CategoryCatalog       Category = "Catalog"
	CategoryCommerce      Category = "Commerce"
	CategoryInventory     Category = "Inventory"
	CategoryMedia         Category = "Media"
	CategoryConfiguration Category = "Configuration"
	CategoryOther         Category = "Other"
)

// FieldSpec describes one field of a loader's record schema.
type FieldSpec struct {
	Type        string `json:"type"`
	Required    bool   `json:"required,omitempty"`
	Description string `json:"description,omitempty"`
}

// Context carries the collaborators a loader behaviour may use.
type Context struct {
	Entities entity.Service
	Logger   *logger.Logger
	DryRun   bool
}

// Spec is the value object describing one entity loader. Loaders are
// expressed as composition over this spec rather than inheritance: the
// generic engine drives the batch loop, the spec supplies the four
// entity-specific behaviours.
type Spec struct {
	EntityType          string
	Name                string
	Category            Category
	SupportedOperations []model.Operation
	LookupFields        []string
	RequiredFields      []string
	FieldSchema         map[string]FieldSpec

	// UpdateOnlyFields, when non-empty, restricts which record fields an
	// UPDATE writes.
	UpdateOnlyFields []string

	// Validate checks one record for the given operation. Must not mutate
	// the store.
	Validate func(ctx context.Context, lc *Context, record model.Envelope, op model.Operation) model.ValidationResult

	// FindExisting tries the declared lookup strategies in priority order
	// and returns the first match, or nil. Multi-match lookups resolve by
	// entity id ascending so selection is stable.
	FindExisting func(ctx context.Context, lc *Context, record model.Envelope) (*entity.Record, error)

	// Create inserts a new entity and returns its id. Returning an empty
	// id with a nil error signals a handled failure (e.g. an asset
	// download that failed); the engine counts it failed-recoverable
	// without aborting the batch.
	Create func(ctx context.Context, lc *Context, record model.Envelope) (string, error)

	// Update applies the record to an existing entity.
	Update func(ctx context.Context, lc *Context, id string, record model.Envelope) error

	// ClassifyRecoverable, when set, overrides the default transient-error
	// classification for uncaught errors.
	ClassifyRecoverable func(err error) bool
}

// SupportsOperation reports whether op is one of the declared operations.
func (s *Spec) SupportsOperation(op model.Operation) bool {
	for _, candidate := range s.SupportedOperations {
		if candidate == op {
			return true
		}
	}
	return false
}

// UpdateFields filters a record's data down to UpdateOnlyFields when the
// gate is configured; otherwise the full record passes through.
func (s *Spec) UpdateFields(data map[string]any) map[string]any {
	if len(s.UpdateOnlyFields) == 0 {
		return data
	}
	out := make(map[string]any, len(s.UpdateOnlyFields))
	for _, f := range s.UpdateOnlyFields {
		if v, ok := data[f]; ok {
			out[f] = v
		}
	}
	return out
}
