package loaders

import (
	"context"
	"regexp"

	"github.com/sluicehq/sluice/internal/entity"
	"github.com/sluicehq/sluice/internal/loader"
	"github.com/sluicehq/sluice/internal/model"
	sluiceerrors "github.com/sluicehq/sluice/pkg/errors"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

func customerSpec() *loader.Spec {
	return &loader.Spec{
		EntityType:          TypeCustomer,
		Name:                "Customers",
		Category:            loader.CategoryCustomers,
		SupportedOperations: []model.Operation{model.OpCreate, model.OpUpdate, model.OpUpsert},
		LookupFields:        []string{"emailAddress", "id"},
		RequiredFields:      []string{"emailAddress"},
		FieldSchema: map[string]loader.FieldSpec{
			"emailAddress": {Type: "string", Required: true},
			"firstName":    {Type: "string"},
			"lastName":     {Type: "string"},
			"phoneNumber":  {Type: "string"},
		},

		Validate: func(_ context.Context, _ *loader.Context, record model.Envelope, _ model.Operation) model.ValidationResult {
			if result := requireFields(record, "emailAddress"); !result.Valid {
				return result
			}
			if !emailPattern.MatchString(asStr(record.Data["emailAddress"])) {
				return model.Invalid("emailAddress", "Invalid email format", sluiceerrors.CodeInvalidFormat)
			}
			return model.ValidOK()
		},

		FindExisting: func(ctx context.Context, lc *loader.Context, record model.Envelope) (*entity.Record, error) {
			return findByLookupFields(ctx, lc, TypeCustomer, []string{"emailAddress", "id"}, record)
		},

		Create: func(ctx context.Context, lc *loader.Context, record model.Envelope) (string, error) {
			return lc.Entities.Create(ctx, TypeCustomer, record.Data)
		},

		Update: func(ctx context.Context, lc *loader.Context, id string, record model.Envelope) error {
			return lc.Entities.Update(ctx, TypeCustomer, id, record.Data)
		},
	}
}
