// Package loaders provides the built-in entity loader specs. Each file
// registers one loader against the abstract entity store; RegisterAll
// wires the whole set at startup.
package loaders

import (
	"context"
	"fmt"

	"github.com/sluicehq/sluice/internal/entity"
	"github.com/sluicehq/sluice/internal/loader"
	"github.com/sluicehq/sluice/internal/model"
	sluiceerrors "github.com/sluicehq/sluice/pkg/errors"
)

// Entity type names shared with the platform's store.
const (
	TypeProduct       = "product"
	TypeVariant       = "product-variant"
	TypeCustomer      = "customer"
	TypeOrder         = "order"
	TypePromotion     = "promotion"
	TypeTaxRate       = "tax-rate"
	TypeTaxCategory   = "tax-category"
	TypeZone          = "zone"
	TypePaymentMethod = "payment-method"
	TypeAsset         = "asset"
)

// RegisterAll registers every built-in loader. Called once at startup.
func RegisterAll() error {
	specs := []*loader.Spec{
		productSpec(),
		variantSpec(),
		customerSpec(),
		orderSpec(),
		promotionSpec(),
		taxRateSpec(),
		paymentMethodSpec(),
		assetSpec(),
	}
	for _, spec := range specs {
		if err := loader.Register(spec); err != nil {
			return err
		}
	}
	return nil
}

// requireFields checks presence and non-emptiness of the named fields.
func requireFields(record model.Envelope, fields ...string) model.ValidationResult {
	var errs []model.FieldError
	for _, f := range fields {
		v, ok := record.Field(f)
		if !ok || v == nil || fmt.Sprint(v) == "" {
			errs = append(errs, model.FieldError{
				Field:   f,
				Message: fmt.Sprintf("missing required field %q", f),
				Code:    sluiceerrors.CodeMissingField,
			})
		}
	}
	if len(errs) > 0 {
		return model.ValidationResult{Errors: errs}
	}
	return model.ValidOK()
}

// findByLookupFields tries each declared lookup field in priority order.
// "id" resolves directly; everything else is an exact field match with
// stable first-match selection.
func findByLookupFields(ctx context.Context, lc *loader.Context, entityType string, lookupFields []string, record model.Envelope) (*entity.Record, error) {
	for _, field := range lookupFields {
		value, ok := record.Field(field)
		if !ok || value == nil || fmt.Sprint(value) == "" {
			continue
		}
		if field == "id" {
			found, err := lc.Entities.Get(ctx, entityType, fmt.Sprint(value))
			if err != nil {
				return nil, err
			}
			if found != nil {
				return found, nil
			}
			continue
		}
		found, err := lc.Entities.FindOne(ctx, entityType, entity.Filter{Field: field, Value: value})
		if err != nil {
			return nil, err
		}
		if found != nil {
			return found, nil
		}
	}
	return nil, nil
}

func asStr(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
