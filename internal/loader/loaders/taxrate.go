package loaders

import (
	"context"
	"fmt"

	"github.com/sluicehq/sluice/internal/entity"
	"github.com/sluicehq/sluice/internal/loader"
	"github.com/sluicehq/sluice/internal/model"
	sluiceerrors "github.com/sluicehq/sluice/pkg/errors"
)

func taxRateSpec() *loader.Spec {
	return &loader.Spec{
		EntityType:          TypeTaxRate,
		Name:                "Tax Rates",
		Category:            loader.CategoryConfiguration,
		SupportedOperations: []model.Operation{model.OpCreate, model.OpUpdate, model.OpUpsert},
		LookupFields:        []string{"name", "id"},
		RequiredFields:      []string{"name", "value", "taxCategoryCode", "zoneCode"},
		FieldSchema: map[string]loader.FieldSpec{
			"name":            {Type: "string", Required: true},
			"value":           {Type: "number", Required: true, Description: "Percentage, e.g. 20"},
			"taxCategoryCode": {Type: "string", Required: true},
			"zoneCode":        {Type: "string", Required: true},
		},

		// Cross-entity resolution happens here so a dangling reference
		// fails the record before any write is attempted.
		Validate: func(ctx context.Context, lc *loader.Context, record model.Envelope, _ model.Operation) model.ValidationResult {
			if result := requireFields(record, "name", "value", "taxCategoryCode", "zoneCode"); !result.Valid {
				return result
			}

			categoryCode := asStr(record.Data["taxCategoryCode"])
			category, err := lc.Entities.FindOne(ctx, TypeTaxCategory, entity.Filter{Field: "code", Value: categoryCode})
			if err != nil {
				return model.Invalid("taxCategoryCode", err.Error(), "")
			}
			if category == nil {
				return model.Invalid("taxCategoryCode",
					fmt.Sprintf("tax category %q not found", categoryCode), sluiceerrors.CodeTaxCategoryNotFound)
			}

			zoneCode := asStr(record.Data["zoneCode"])
			zone, err := lc.Entities.FindOne(ctx, TypeZone, entity.Filter{Field: "code", Value: zoneCode})
			if err != nil {
				return model.Invalid("zoneCode", err.Error(), "")
			}
			if zone == nil {
				return model.Invalid("zoneCode",
					fmt.Sprintf("zone %q not found", zoneCode), sluiceerrors.CodeZoneNotFound)
			}

			return model.ValidOK()
		},

		FindExisting: func(ctx context.Context, lc *loader.Context, record model.Envelope) (*entity.Record, error) {
			return findByLookupFields(ctx, lc, TypeTaxRate, []string{"name", "id"}, record)
		},

		Create: func(ctx context.Context, lc *loader.Context, record model.Envelope) (string, error) {
			fields, err := resolveTaxRefs(ctx, lc, record)
			if err != nil {
				return "", err
			}
			return lc.Entities.Create(ctx, TypeTaxRate, fields)
		},

		Update: func(ctx context.Context, lc *loader.Context, id string, record model.Envelope) error {
			fields, err := resolveTaxRefs(ctx, lc, record)
			if err != nil {
				return err
			}
			return lc.Entities.Update(ctx, TypeTaxRate, id, fields)
		},
	}
}

// resolveTaxRefs swaps the code references for store ids. Validation has
// already established both entities exist.
func resolveTaxRefs(ctx context.Context, lc *loader.Context, record model.Envelope) (map[string]any, error) {
	fields := record.Clone().Data

	category, err := lc.Entities.FindOne(ctx, TypeTaxCategory, entity.Filter{Field: "code", Value: asStr(fields["taxCategoryCode"])})
	if err != nil {
		return nil, err
	}
	zone, err := lc.Entities.FindOne(ctx, TypeZone, entity.Filter{Field: "code", Value: asStr(fields["zoneCode"])})
	if err != nil {
		return nil, err
	}
	if category == nil || zone == nil {
		return nil, fmt.Errorf("tax rate references resolved during validation are gone")
	}

	fields["taxCategoryId"] = category.ID
	fields["zoneId"] = zone.ID
	delete(fields, "taxCategoryCode")
	delete(fields, "zoneCode")
	return fields, nil
}
