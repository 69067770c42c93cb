package transform

import (
	"context"
	"fmt"
	"strings"

	"github.com/sluicehq/sluice/internal/entity"
	"github.com/sluicehq/sluice/internal/model"
)

// LookupTypeEntity queries the entity store; the only async transform.
const LookupTypeEntity = "ENTITY"

func lookupTransforms() map[string]Func {
	return map[string]Func{
		"LOOKUP": lookupTransform,
		"MAP":    pure(mapTransform),
	}
}

// lookupTransform resolves a value to an entity attribute: find the first
// entity (stable id order) whose fromField equals the value and return its
// toField. Misses yield nil so downstream DEFAULT/validation can react.
func lookupTransform(ctx context.Context, env *Env, v any, args Args, _ *model.Envelope) (any, error) {
	if env == nil || env.Entities == nil {
		return nil, fmt.Errorf("lookup requires an entity service")
	}
	if lookupType := args.Str("lookupType", LookupTypeEntity); lookupType != LookupTypeEntity {
		return nil, fmt.Errorf("unknown lookup type %q", lookupType)
	}

	entityType := args.Str("entityType", "")
	if entityType == "" {
		return nil, fmt.Errorf("lookup requires entityType")
	}
	fromField := args.Str("fromField", "code")
	toField := args.Str("toField", "id")

	match, err := env.Entities.FindOne(ctx, entityType, entity.Filter{Field: fromField, Value: v})
	if err != nil {
		return nil, err
	}
	if match == nil {
		return nil, nil
	}
	if toField == "id" {
		return match.ID, nil
	}
	return match.Fields[toField], nil
}

// mapTransform is the static form of LOOKUP: a value table with optional
// default and case-insensitive matching.
func mapTransform(v any, args Args) (any, error) {
	values := args.Map("values")
	if values == nil {
		return nil, fmt.Errorf("map requires values")
	}

	key := asString(v)
	if mapped, ok := values[key]; ok {
		return mapped, nil
	}

	if !args.Bool("caseSensitive", true) {
		for k, mapped := range values {
			if strings.EqualFold(k, key) {
				return mapped, nil
			}
		}
	}

	if def, ok := args["defaultValue"]; ok {
		return def, nil
	}
	return nil, nil
}
