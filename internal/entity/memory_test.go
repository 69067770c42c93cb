package entity

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryServiceCRUD(t *testing.T) {
	t.Parallel()
	svc := NewMemoryService()
	ctx := context.Background()

	id, err := svc.Create(ctx, "product", map[string]any{"sku": "A", "name": "Alpha"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := svc.Get(ctx, "product", id)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "Alpha", got.Fields["name"])

	require.NoError(t, svc.Update(ctx, "product", id, map[string]any{"name": "Renamed"}))
	got, err = svc.Get(ctx, "product", id)
	require.NoError(t, err)
	require.Equal(t, "Renamed", got.Fields["name"])
	require.Equal(t, "A", got.Fields["sku"], "update merges, never replaces")

	require.NoError(t, svc.Delete(ctx, "product", id))
	got, err = svc.Get(ctx, "product", id)
	require.NoError(t, err)
	require.Nil(t, got)

	// Deleting an absent entity is a no-op.
	require.NoError(t, svc.Delete(ctx, "product", "ghost"))

	// Updating an absent entity is not.
	require.Error(t, svc.Update(ctx, "product", "ghost", map[string]any{"name": "x"}))
}

func TestMemoryServiceFindOrdering(t *testing.T) {
	t.Parallel()
	svc := NewMemoryService()
	ctx := context.Background()

	svc.Seed("zone", "9", map[string]any{"code": "europe"})
	svc.Seed("zone", "2", map[string]any{"code": "europe"})
	svc.Seed("zone", "5", map[string]any{"code": "americas"})

	// First match is the lowest id, stable across calls.
	one, err := svc.FindOne(ctx, "zone", Filter{Field: "code", Value: "europe"})
	require.NoError(t, err)
	require.NotNil(t, one)
	require.Equal(t, "2", one.ID)

	all, err := svc.FindAll(ctx, "zone", Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "2", all[0].ID)

	none, err := svc.FindOne(ctx, "zone", Filter{Field: "code", Value: "atlantis"})
	require.NoError(t, err)
	require.Nil(t, none)
}

func TestMemoryServiceFindContaining(t *testing.T) {
	t.Parallel()
	svc := NewMemoryService()
	ctx := context.Background()

	svc.Seed("asset", "1", map[string]any{"source": "https://cdn.example.com/img/shoe.png"})
	svc.Seed("asset", "2", map[string]any{"source": "https://cdn.example.com/img/hat.png"})
	svc.Seed("asset", "3", map[string]any{"source": 42})

	matches, err := svc.FindContaining(ctx, "asset", ContainsFilter{Field: "source", Substring: "shoe.png"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, "1", matches[0].ID)
}

func TestMemoryServiceRestore(t *testing.T) {
	t.Parallel()
	svc := NewMemoryService()
	ctx := context.Background()

	svc.Seed("product", "1", map[string]any{"sku": "A", "n": 99, "extra": "keep"})
	require.NoError(t, svc.Update(ctx, "product", "1", map[string]any{"n": 0, "added": true}))

	// Restore replaces the whole field set, not a merge.
	require.NoError(t, svc.Restore(ctx, "product", "1", map[string]any{"sku": "A", "n": 99, "extra": "keep"}))

	got, err := svc.Get(ctx, "product", "1")
	require.NoError(t, err)
	require.Equal(t, 99, got.Fields["n"])
	require.NotContains(t, got.Fields, "added")
}

func TestMemoryServiceCreateSkipsSeededIDs(t *testing.T) {
	t.Parallel()
	svc := NewMemoryService()
	ctx := context.Background()

	svc.Seed("widget", "1", map[string]any{"name": "seeded"})

	id, err := svc.Create(ctx, "widget", map[string]any{"name": "generated"})
	require.NoError(t, err)
	require.NotEqual(t, "1", id)

	seeded, err := svc.Get(ctx, "widget", "1")
	require.NoError(t, err)
	require.NotNil(t, seeded)
	require.Equal(t, "seeded", seeded.Fields["name"])
}

func TestMemoryServiceConcurrentReadsOfMissingType(t *testing.T) {
	t.Parallel()
	svc := NewMemoryService()
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Get(ctx, "ghost", "1")
			_, _ = svc.FindAll(ctx, "ghost", Filter{Field: "code", Value: "x"})
			_, _ = svc.FindContaining(ctx, "ghost", ContainsFilter{Field: "source", Substring: "x"})
		}()
	}
	wg.Wait()

	all, err := svc.FindAll(ctx, "ghost", Filter{})
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestMemoryServiceClonesOnRead(t *testing.T) {
	t.Parallel()
	svc := NewMemoryService()
	ctx := context.Background()

	svc.Seed("product", "1", map[string]any{"sku": "A"})
	got, err := svc.Get(ctx, "product", "1")
	require.NoError(t, err)

	got.Fields["sku"] = "MUTATED"
	again, err := svc.Get(ctx, "product", "1")
	require.NoError(t, err)
	require.Equal(t, "A", again.Fields["sku"])
}
