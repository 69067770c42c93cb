package loaders

import (
	"context"
	"time"

	"github.com/sluicehq/sluice/internal/entity"
	"github.com/sluicehq/sluice/internal/loader"
	"github.com/sluicehq/sluice/internal/model"
	sluiceerrors "github.com/sluicehq/sluice/pkg/errors"
)

func promotionSpec() *loader.Spec {
	return &loader.Spec{
		EntityType:          TypePromotion,
		Name:                "Promotions",
		Category:            loader.CategoryCommerce,
		SupportedOperations: []model.Operation{model.OpCreate, model.OpUpdate, model.OpUpsert, model.OpDelete},
		LookupFields:        []string{"couponCode", "name", "id"},
		RequiredFields:      []string{"name"},
		FieldSchema: map[string]loader.FieldSpec{
			"name":       {Type: "string", Required: true},
			"couponCode": {Type: "string"},
			"startsAt":   {Type: "string", Description: "RFC3339 or date-only"},
			"endsAt":     {Type: "string", Description: "Must be after startsAt"},
			"enabled":    {Type: "boolean"},
		},

		Validate: func(_ context.Context, _ *loader.Context, record model.Envelope, _ model.Operation) model.ValidationResult {
			if result := requireFields(record, "name"); !result.Valid {
				return result
			}
			starts, okStart := parsePromotionDate(record.Data["startsAt"])
			ends, okEnd := parsePromotionDate(record.Data["endsAt"])
			if okStart && okEnd && !ends.After(starts) {
				return model.Invalid("endsAt", "end date must be after start date", sluiceerrors.CodeInvalidDateRange)
			}
			return model.ValidOK()
		},

		FindExisting: func(ctx context.Context, lc *loader.Context, record model.Envelope) (*entity.Record, error) {
			return findByLookupFields(ctx, lc, TypePromotion, []string{"couponCode", "name", "id"}, record)
		},

		Create: func(ctx context.Context, lc *loader.Context, record model.Envelope) (string, error) {
			return lc.Entities.Create(ctx, TypePromotion, record.Data)
		},

		Update: func(ctx context.Context, lc *loader.Context, id string, record model.Envelope) error {
			return lc.Entities.Update(ctx, TypePromotion, id, record.Data)
		},
	}
}

func parsePromotionDate(v any) (time.Time, bool) {
	if t, ok := v.(time.Time); ok {
		return t, true
	}
	s := asStr(v)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
