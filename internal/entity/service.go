// Package entity defines the narrow contract the runtime holds against the
// commerce platform's entity store. Loaders and the LOOKUP transform depend
// only on Service; the platform supplies the real implementation.
package entity

import "context"

// Record is one stored entity: an id plus its tracked fields.
type Record struct {
	ID     string
	Fields map[string]any
}

// Filter selects entities by exact field match. A zero Filter matches all.
type Filter struct {
	Field string
	Value any
}

// ContainsFilter selects entities whose string field contains a substring.
// Used by best-effort lookups such as asset source matching.
type ContainsFilter struct {
	Field     string
	Substring string
}

// Service is the abstract entity store capability.
//
// FindAll and FindContaining return entities ordered by id ascending, so
// first-match selection is stable across calls.
type Service interface {
	Get(ctx context.Context, entityType, id string) (*Record, error)
	FindOne(ctx context.Context, entityType string, filter Filter) (*Record, error)
	FindAll(ctx context.Context, entityType string, filter Filter) ([]Record, error)
	FindContaining(ctx context.Context, entityType string, filter ContainsFilter) ([]Record, error)
	Create(ctx context.Context, entityType string, fields map[string]any) (string, error)
	Update(ctx context.Context, entityType, id string, fields map[string]any) error
	Delete(ctx context.Context, entityType, id string) error

	// Restore writes an entity's full state under a known id: used by
	// rollback to undo an UPDATE (restore previous state as-is) or a
	// DELETE (re-insert). Relation integrity is not re-validated.
	Restore(ctx context.Context, entityType, id string, fields map[string]any) error
}
