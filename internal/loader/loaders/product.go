package loaders

import (
	"context"
	"regexp"
	"strings"

	"github.com/sluicehq/sluice/internal/entity"
	"github.com/sluicehq/sluice/internal/loader"
	"github.com/sluicehq/sluice/internal/model"
)

var productSlugStrip = regexp.MustCompile(`[^a-z0-9]+`)

func productSpec() *loader.Spec {
	return &loader.Spec{
		EntityType:          TypeProduct,
		Name:                "Products",
		Category:            loader.CategoryProducts,
		SupportedOperations: []model.Operation{model.OpCreate, model.OpUpdate, model.OpUpsert, model.OpDelete},
		LookupFields:        []string{"sku", "slug", "id"},
		RequiredFields:      []string{"sku", "name"},
		FieldSchema: map[string]loader.FieldSpec{
			"sku":         {Type: "string", Required: true, Description: "Unique stock keeping unit"},
			"name":        {Type: "string", Required: true},
			"slug":        {Type: "string", Description: "Derived from name when absent"},
			"description": {Type: "string"},
			"enabled":     {Type: "boolean"},
		},

		Validate: func(_ context.Context, _ *loader.Context, record model.Envelope, op model.Operation) model.ValidationResult {
			if op == model.OpDelete || op == model.OpUpdate {
				return requireFields(record, "sku")
			}
			return requireFields(record, "sku", "name")
		},

		FindExisting: func(ctx context.Context, lc *loader.Context, record model.Envelope) (*entity.Record, error) {
			return findByLookupFields(ctx, lc, TypeProduct, []string{"sku", "slug", "id"}, record)
		},

		Create: func(ctx context.Context, lc *loader.Context, record model.Envelope) (string, error) {
			fields := record.Clone().Data
			if asStr(fields["slug"]) == "" {
				fields["slug"] = slugifyName(asStr(fields["name"]))
			}
			return lc.Entities.Create(ctx, TypeProduct, fields)
		},

		Update: func(ctx context.Context, lc *loader.Context, id string, record model.Envelope) error {
			return lc.Entities.Update(ctx, TypeProduct, id, record.Data)
		},
	}
}

func slugifyName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = productSlugStrip.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
