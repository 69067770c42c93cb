package loaders

import (
	"context"

	"github.com/sluicehq/sluice/internal/entity"
	"github.com/sluicehq/sluice/internal/loader"
	"github.com/sluicehq/sluice/internal/model"
)

func orderSpec() *loader.Spec {
	spec := &loader.Spec{
		EntityType:          TypeOrder,
		Name:                "Orders",
		Category:            loader.CategoryCommerce,
		SupportedOperations: []model.Operation{model.OpCreate, model.OpUpdate, model.OpUpsert},
		LookupFields:        []string{"code", "id"},
		RequiredFields:      []string{"code"},
		// Imported orders only ever receive state and note updates;
		// monetary fields stay owned by the platform.
		UpdateOnlyFields: []string{"state", "customerNote", "trackingCode"},
		FieldSchema: map[string]loader.FieldSpec{
			"code":         {Type: "string", Required: true},
			"state":        {Type: "string"},
			"customerNote": {Type: "string"},
			"trackingCode": {Type: "string"},
		},

		Validate: func(_ context.Context, _ *loader.Context, record model.Envelope, _ model.Operation) model.ValidationResult {
			return requireFields(record, "code")
		},

		FindExisting: func(ctx context.Context, lc *loader.Context, record model.Envelope) (*entity.Record, error) {
			return findByLookupFields(ctx, lc, TypeOrder, []string{"code", "id"}, record)
		},

		Create: func(ctx context.Context, lc *loader.Context, record model.Envelope) (string, error) {
			return lc.Entities.Create(ctx, TypeOrder, record.Data)
		},

	}
	spec.Update = func(ctx context.Context, lc *loader.Context, id string, record model.Envelope) error {
		return lc.Entities.Update(ctx, TypeOrder, id, spec.UpdateFields(record.Data))
	}
	return spec
}
