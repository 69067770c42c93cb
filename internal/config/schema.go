package config

import (
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v6"

	sluiceerrors "github.com/sluicehq/sluice/pkg/errors"
)

// ValidateAdapterConfig checks a step's config map against the JSON
// schema its adapter declares. Values are normalized through JSON first
// so YAML-decoded configs validate identically to wire-form ones.
func ValidateAdapterConfig(adapterCode string, schema map[string]any, cfg map[string]any) error {
	if schema == nil {
		return nil
	}
	if cfg == nil {
		cfg = map[string]any{}
	}

	normalizedSchema, err := normalizeJSON(schema)
	if err != nil {
		return sluiceerrors.NewAdapterError(adapterCode, err)
	}
	normalizedCfg, err := normalizeJSON(cfg)
	if err != nil {
		return sluiceerrors.NewAdapterError(adapterCode, err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("config.schema.json", normalizedSchema); err != nil {
		return sluiceerrors.NewAdapterError(adapterCode, err)
	}
	compiled, err := compiler.Compile("config.schema.json")
	if err != nil {
		return sluiceerrors.NewAdapterError(adapterCode, err)
	}

	if err := compiled.Validate(normalizedCfg); err != nil {
		return sluiceerrors.NewValidationError(adapterCode, err.Error(), err)
	}
	return nil
}

func normalizeJSON(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
