package entity

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryService is an in-process Service used by tests and the LOOKUP
// transform's fixtures. Safe for concurrent use.
type MemoryService struct {
	mu     sync.RWMutex
	nextID int
	tables map[string]map[string]map[string]any
}

// NewMemoryService returns an empty in-memory store.
func NewMemoryService() *MemoryService {
	return &MemoryService{tables: make(map[string]map[string]map[string]any)}
}

// table returns the entity type's table, creating it when absent.
// Callers must hold the write lock.
func (m *MemoryService) table(entityType string) map[string]map[string]any {
	t, ok := m.tables[entityType]
	if !ok {
		t = make(map[string]map[string]any)
		m.tables[entityType] = t
	}
	return t
}

// lookup returns the table without creating it, so read paths stay
// safe under the read lock. Reads of the nil map are fine.
func (m *MemoryService) lookup(entityType string) map[string]map[string]any {
	return m.tables[entityType]
}

func cloneFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// Seed inserts an entity with a caller-chosen id. Test helper.
func (m *MemoryService) Seed(entityType, id string, fields map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.table(entityType)[id] = cloneFields(fields)
}

// Get returns the entity with the given id, or nil when absent.
func (m *MemoryService) Get(_ context.Context, entityType, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	fields, ok := m.lookup(entityType)[id]
	if !ok {
		return nil, nil
	}
	return &Record{ID: id, Fields: cloneFields(fields)}, nil
}

// FindOne returns the first match in id order, or nil when absent.
func (m *MemoryService) FindOne(ctx context.Context, entityType string, filter Filter) (*Record, error) {
	all, err := m.FindAll(ctx, entityType, filter)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, nil
	}
	return &all[0], nil
}

// FindAll returns matches ordered by id ascending.
func (m *MemoryService) FindAll(_ context.Context, entityType string, filter Filter) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Record
	for id, fields := range m.lookup(entityType) {
		if filter.Field != "" {
			v, ok := fields[filter.Field]
			if !ok || fmt.Sprint(v) != fmt.Sprint(filter.Value) {
				continue
			}
		}
		out = append(out, Record{ID: id, Fields: cloneFields(fields)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// FindContaining returns substring matches ordered by id ascending.
func (m *MemoryService) FindContaining(_ context.Context, entityType string, filter ContainsFilter) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Record
	for id, fields := range m.lookup(entityType) {
		v, ok := fields[filter.Field]
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok || !strings.Contains(s, filter.Substring) {
			continue
		}
		out = append(out, Record{ID: id, Fields: cloneFields(fields)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Create inserts a new entity and returns its generated id. Generated
// ids skip over ids already taken by Seed.
func (m *MemoryService) Create(_ context.Context, entityType string, fields map[string]any) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.table(entityType)
	for {
		m.nextID++
		id := fmt.Sprintf("%d", m.nextID)
		if _, taken := t[id]; taken {
			continue
		}
		t[id] = cloneFields(fields)
		return id, nil
	}
}

// Update merges fields into an existing entity.
func (m *MemoryService) Update(_ context.Context, entityType, id string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.table(entityType)[id]
	if !ok {
		return fmt.Errorf("entity %s/%s not found", entityType, id)
	}
	for k, v := range fields {
		existing[k] = v
	}
	return nil
}

// Restore overwrites an entity's fields wholesale under a known id.
// Rollback uses this to restore a previous state snapshot exactly.
func (m *MemoryService) Restore(_ context.Context, entityType, id string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.table(entityType)[id] = cloneFields(fields)
	return nil
}

// Delete removes an entity. Deleting an absent entity is a no-op.
func (m *MemoryService) Delete(_ context.Context, entityType, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.lookup(entityType), id)
	return nil
}
