package loaders

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sluicehq/sluice/internal/entity"
	"github.com/sluicehq/sluice/internal/loader"
	"github.com/sluicehq/sluice/internal/logger"
	"github.com/sluicehq/sluice/internal/model"
	sluiceerrors "github.com/sluicehq/sluice/pkg/errors"
)

func newContext() (*loader.Context, *entity.MemoryService) {
	entities := entity.NewMemoryService()
	return &loader.Context{Entities: entities, Logger: logger.NewNop()}, entities
}

func record(data map[string]any) model.Envelope {
	return model.NewEnvelope(data, 0)
}

func TestProductLoader(t *testing.T) {
	t.Parallel()
	spec := productSpec()
	lc, entities := newContext()
	engine := loader.NewEngine(lc)

	t.Run("upsert creates with derived slug", func(t *testing.T) {
		result, err := engine.LoadBatch(context.Background(), spec,
			[]model.Envelope{record(map[string]any{"sku": "SHOE-1", "name": "Blue Suede Shoes"})},
			loader.Options{Operation: model.OpUpsert})
		require.NoError(t, err)
		require.Equal(t, 1, result.Created)
		require.Equal(t, 1, result.Succeeded)
		require.Zero(t, result.Failed)

		created, err := entities.FindOne(context.Background(), TypeProduct,
			entity.Filter{Field: "sku", Value: "SHOE-1"})
		require.NoError(t, err)
		require.NotNil(t, created)
		require.Equal(t, "blue-suede-shoes", created.Fields["slug"])
	})

	t.Run("upsert updates on second pass", func(t *testing.T) {
		result, err := engine.LoadBatch(context.Background(), spec,
			[]model.Envelope{record(map[string]any{"sku": "SHOE-1", "name": "Renamed"})},
			loader.Options{Operation: model.OpUpsert})
		require.NoError(t, err)
		require.Equal(t, 1, result.Updated)
		require.Zero(t, result.Created)
	})

	t.Run("missing sku fails validation", func(t *testing.T) {
		result, err := engine.LoadBatch(context.Background(), spec,
			[]model.Envelope{record(map[string]any{"name": "No SKU"})},
			loader.Options{Operation: model.OpCreate})
		require.NoError(t, err)
		require.Equal(t, 1, result.Failed)
		require.Equal(t, sluiceerrors.CodeMissingField, result.Errors[0].Code)
	})
}

func TestVariantLoaderResolvesParent(t *testing.T) {
	t.Parallel()
	spec := variantSpec()
	lc, entities := newContext()
	entities.Seed(TypeProduct, "10", map[string]any{"sku": "SHOE-1", "name": "Shoes"})
	engine := loader.NewEngine(lc)

	result, err := engine.LoadBatch(context.Background(), spec,
		[]model.Envelope{record(map[string]any{"sku": "SHOE-1-42", "productSku": "SHOE-1", "name": "Size 42"})},
		loader.Options{Operation: model.OpCreate})
	require.NoError(t, err)
	require.Equal(t, 1, result.Created, "errors: %v", result.Errors)

	created, err := entities.FindOne(context.Background(), TypeVariant,
		entity.Filter{Field: "sku", Value: "SHOE-1-42"})
	require.NoError(t, err)
	require.NotNil(t, created)
	require.Equal(t, "10", created.Fields["productId"])
}

func TestCustomerLoaderEmailValidation(t *testing.T) {
	t.Parallel()
	spec := customerSpec()
	lc, _ := newContext()
	engine := loader.NewEngine(lc)

	result, err := engine.LoadBatch(context.Background(), spec,
		[]model.Envelope{
			record(map[string]any{"emailAddress": "ok@example.com", "firstName": "A", "lastName": "B"}),
			record(map[string]any{"emailAddress": "not-an-email", "firstName": "C", "lastName": "D"}),
		},
		loader.Options{Operation: model.OpCreate})
	require.NoError(t, err)
	require.Equal(t, 1, result.Created)
	require.Equal(t, 1, result.Failed)
	require.Equal(t, sluiceerrors.CodeInvalidFormat, result.Errors[0].Code)
}

func TestPromotionLoaderDateRange(t *testing.T) {
	t.Parallel()
	spec := promotionSpec()
	lc, _ := newContext()
	engine := loader.NewEngine(lc)

	result, err := engine.LoadBatch(context.Background(), spec,
		[]model.Envelope{record(map[string]any{
			"name":     "Spring Sale",
			"startsAt": "2025-06-01",
			"endsAt":   "2025-05-01",
		})},
		loader.Options{Operation: model.OpCreate})
	require.NoError(t, err)
	require.Equal(t, 1, result.Failed)
	require.Equal(t, sluiceerrors.CodeInvalidDateRange, result.Errors[0].Code)
	require.False(t, result.Errors[0].Recoverable)
}

func TestTaxRateLoaderReferenceResolution(t *testing.T) {
	t.Parallel()
	spec := taxRateSpec()
	lc, entities := newContext()
	entities.Seed(TypeTaxCategory, "3", map[string]any{"code": "standard"})
	entities.Seed(TypeZone, "7", map[string]any{"code": "europe"})
	engine := loader.NewEngine(lc)

	t.Run("unknown zone fails with code", func(t *testing.T) {
		result, err := engine.LoadBatch(context.Background(), spec,
			[]model.Envelope{record(map[string]any{
				"name": "EU VAT", "value": 20, "taxCategoryCode": "standard", "zoneCode": "atlantis",
			})},
			loader.Options{Operation: model.OpCreate})
		require.NoError(t, err)
		require.Equal(t, 1, result.Failed)
		require.Equal(t, sluiceerrors.CodeZoneNotFound, result.Errors[0].Code)
	})

	t.Run("unknown category fails with code", func(t *testing.T) {
		result, err := engine.LoadBatch(context.Background(), spec,
			[]model.Envelope{record(map[string]any{
				"name": "EU VAT", "value": 20, "taxCategoryCode": "luxury", "zoneCode": "europe",
			})},
			loader.Options{Operation: model.OpCreate})
		require.NoError(t, err)
		require.Equal(t, sluiceerrors.CodeTaxCategoryNotFound, result.Errors[0].Code)
	})

	t.Run("codes resolve to ids on create", func(t *testing.T) {
		result, err := engine.LoadBatch(context.Background(), spec,
			[]model.Envelope{record(map[string]any{
				"name": "EU VAT", "value": 20, "taxCategoryCode": "standard", "zoneCode": "europe",
			})},
			loader.Options{Operation: model.OpCreate})
		require.NoError(t, err)
		require.Equal(t, 1, result.Created, "errors: %v", result.Errors)

		created, err := entities.FindOne(context.Background(), TypeTaxRate,
			entity.Filter{Field: "name", Value: "EU VAT"})
		require.NoError(t, err)
		require.NotNil(t, created)
		require.Equal(t, "3", created.Fields["taxCategoryId"])
		require.Equal(t, "7", created.Fields["zoneId"])
		require.NotContains(t, created.Fields, "taxCategoryCode")
	})
}

func TestAssetLoader(t *testing.T) {
	t.Parallel()
	spec := assetSpec()
	lc, entities := newContext()
	engine := loader.NewEngine(lc)

	t.Run("invalid url fails with format code", func(t *testing.T) {
		result, err := engine.LoadBatch(context.Background(), spec,
			[]model.Envelope{record(map[string]any{"sourceUrl": "not a url"})},
			loader.Options{Operation: model.OpCreate})
		require.NoError(t, err)
		require.Equal(t, 1, result.Failed)
		require.Equal(t, sluiceerrors.CodeInvalidFormat, result.Errors[0].Code)
		require.Equal(t, "Invalid URL format", result.Errors[0].Message)
	})

	t.Run("create stores filename as name", func(t *testing.T) {
		result, err := engine.LoadBatch(context.Background(), spec,
			[]model.Envelope{record(map[string]any{"sourceUrl": "https://cdn.example.com/img/shoe.png"})},
			loader.Options{Operation: model.OpCreate})
		require.NoError(t, err)
		require.Equal(t, 1, result.Created)

		created, err := entities.FindOne(context.Background(), TypeAsset,
			entity.Filter{Field: "name", Value: "shoe.png"})
		require.NoError(t, err)
		require.NotNil(t, created)
	})

	t.Run("same filename dedups on second create", func(t *testing.T) {
		result, err := engine.LoadBatch(context.Background(), spec,
			[]model.Envelope{record(map[string]any{"sourceUrl": "https://mirror.example.com/assets/shoe.png"})},
			loader.Options{Operation: model.OpCreate, SkipDuplicates: true})
		require.NoError(t, err)
		require.Equal(t, 1, result.Skipped)
	})

	t.Run("url without filename is a handled recoverable failure", func(t *testing.T) {
		result, err := engine.LoadBatch(context.Background(), spec,
			[]model.Envelope{record(map[string]any{"sourceUrl": "https://example.com/"})},
			loader.Options{Operation: model.OpCreate})
		require.NoError(t, err)
		require.Equal(t, 1, result.Failed)
		require.True(t, result.Errors[0].Recoverable)
	})
}

func TestOrderLoaderUpdateOnlyFields(t *testing.T) {
	t.Parallel()
	spec := orderSpec()
	lc, entities := newContext()
	entities.Seed(TypeOrder, "1", map[string]any{"code": "ORD-1", "state": "PaymentSettled", "total": 5000})
	engine := loader.NewEngine(lc)

	result, err := engine.LoadBatch(context.Background(), spec,
		[]model.Envelope{record(map[string]any{
			"code":         "ORD-1",
			"state":        "Shipped",
			"trackingCode": "TRACK-9",
			"total":        1, // not an updatable field
		})},
		loader.Options{Operation: model.OpUpdate})
	require.NoError(t, err)
	require.Equal(t, 1, result.Updated, "errors: %v", result.Errors)

	updated, err := entities.Get(context.Background(), TypeOrder, "1")
	require.NoError(t, err)
	require.Equal(t, "Shipped", updated.Fields["state"])
	require.Equal(t, "TRACK-9", updated.Fields["trackingCode"])
	require.Equal(t, 5000, updated.Fields["total"])
}

func TestRegisterAll(t *testing.T) {
	loader.Reset()
	t.Cleanup(loader.Reset)

	require.NoError(t, RegisterAll())
	require.True(t, loader.Has(TypeProduct))
	require.True(t, loader.Has(TypeAsset))
	require.True(t, loader.SupportsOperation(TypeProduct, model.OpUpsert))
	require.False(t, loader.SupportsOperation(TypeAsset, model.OpDelete))

	byCategory := loader.ByCategory()
	require.NotEmpty(t, byCategory[loader.CategoryProducts])
}
