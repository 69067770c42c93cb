package loaders

import (
	"context"
	"fmt"

	"github.com/sluicehq/sluice/internal/entity"
	"github.com/sluicehq/sluice/internal/loader"
	"github.com/sluicehq/sluice/internal/model"
)

func variantSpec() *loader.Spec {
	return &loader.Spec{
		EntityType:          TypeVariant,
		Name:                "Product Variants",
		Category:            loader.CategoryProducts,
		SupportedOperations: []model.Operation{model.OpCreate, model.OpUpdate, model.OpUpsert},
		LookupFields:        []string{"sku", "id"},
		RequiredFields:      []string{"sku", "productSku"},
		FieldSchema: map[string]loader.FieldSpec{
			"sku":        {Type: "string", Required: true},
			"productSku": {Type: "string", Required: true, Description: "SKU of the parent product"},
			"price":      {Type: "number", Description: "Minor units (cents)"},
			"stockLevel": {Type: "number"},
		},

		Validate: func(_ context.Context, _ *loader.Context, record model.Envelope, op model.Operation) model.ValidationResult {
			if op == model.OpUpdate {
				return requireFields(record, "sku")
			}
			return requireFields(record, "sku", "productSku")
		},

		FindExisting: func(ctx context.Context, lc *loader.Context, record model.Envelope) (*entity.Record, error) {
			return findByLookupFields(ctx, lc, TypeVariant, []string{"sku", "id"}, record)
		},

		Create: func(ctx context.Context, lc *loader.Context, record model.Envelope) (string, error) {
			productSku := asStr(record.Data["productSku"])
			parent, err := lc.Entities.FindOne(ctx, TypeProduct, entity.Filter{Field: "sku", Value: productSku})
			if err != nil {
				return "", err
			}
			if parent == nil {
				return "", fmt.Errorf("parent product %q not found", productSku)
			}
			fields := record.Clone().Data
			fields["productId"] = parent.ID
			delete(fields, "productSku")
			return lc.Entities.Create(ctx, TypeVariant, fields)
		},

		Update: func(ctx context.Context, lc *loader.Context, id string, record model.Envelope) error {
			fields := record.Clone().Data
			delete(fields, "productSku")
			return lc.Entities.Update(ctx, TypeVariant, id, fields)
		},
	}
}
