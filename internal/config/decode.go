package config

import (
	"fmt"

	"gopkg.in/yaml.v3"

	sluiceerrors "github.com/sluicehq/sluice/pkg/errors"
)

// DecodeTyped populates the type-specific view of a step from its config
// map. EXTRACT steps keep the raw map only: their schema is owned by the
// extractor adapter. Callers that decode steps outside the YAML path
// (JSON documents, rows loaded from the store) must invoke it themselves.
func (s *Step) DecodeTyped() error {
	s.Transform = nil
	s.Load = nil
	s.Gate = nil
	s.Branch = nil
	s.Merge = nil

	switch s.Type {
	case StepExtract, "":
		return nil
	case StepTransform:
		var block TransformStep
		if err := decodeConfig(s.Config, &block); err != nil {
			return err
		}
		s.Transform = &block
	case StepLoad:
		var block LoadStep
		if err := decodeConfig(s.Config, &block); err != nil {
			return err
		}
		s.Load = &block
	case StepGate:
		var block GateStep
		if err := decodeConfig(s.Config, &block); err != nil {
			return err
		}
		s.Gate = &block
	case StepBranch:
		var block BranchStep
		if err := decodeConfig(s.Config, &block); err != nil {
			return err
		}
		s.Branch = &block
	case StepMerge:
		var block MergeStep
		if err := decodeConfig(s.Config, &block); err != nil {
			return err
		}
		s.Merge = &block
	default:
		return sluiceerrors.NewValidationError("steps", fmt.Sprintf("unknown step type %q", s.Type), nil)
	}
	return nil
}

// decodeConfig round-trips a config map into a typed struct through YAML,
// so the typed blocks share tags with the document format.
func decodeConfig(cfg map[string]any, out any) error {
	if cfg == nil {
		return nil
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, out)
}
