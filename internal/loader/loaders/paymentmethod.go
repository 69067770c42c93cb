package loaders

import (
	"context"

	"github.com/sluicehq/sluice/internal/entity"
	"github.com/sluicehq/sluice/internal/loader"
	"github.com/sluicehq/sluice/internal/model"
)

func paymentMethodSpec() *loader.Spec {
	return &loader.Spec{
		EntityType:          TypePaymentMethod,
		Name:                "Payment Methods",
		Category:            loader.CategoryConfiguration,
		SupportedOperations: []model.Operation{model.OpCreate, model.OpUpdate, model.OpUpsert},
		LookupFields:        []string{"code", "id"},
		RequiredFields:      []string{"code", "name"},
		FieldSchema: map[string]loader.FieldSpec{
			"code":    {Type: "string", Required: true},
			"name":    {Type: "string", Required: true},
			"handler": {Type: "string", Description: "Payment handler code"},
			"enabled": {Type: "boolean"},
		},

		Validate: func(_ context.Context, _ *loader.Context, record model.Envelope, op model.Operation) model.ValidationResult {
			if op == model.OpUpdate {
				return requireFields(record, "code")
			}
			return requireFields(record, "code", "name")
		},

		FindExisting: func(ctx context.Context, lc *loader.Context, record model.Envelope) (*entity.Record, error) {
			return findByLookupFields(ctx, lc, TypePaymentMethod, []string{"code", "id"}, record)
		},

		Create: func(ctx context.Context, lc *loader.Context, record model.Envelope) (string, error) {
			return lc.Entities.Create(ctx, TypePaymentMethod, record.Data)
		},

		Update: func(ctx context.Context, lc *loader.Context, id string, record model.Envelope) error {
			return lc.Entities.Update(ctx, TypePaymentMethod, id, record.Data)
		},
	}
}
