package config

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/go-playground/validator/v10"

	sluiceerrors "github.com/sluicehq/sluice/pkg/errors"
)

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate

	stepKeyPattern     = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
	adapterCodePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]*$`)
)

func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()

		_ = v.RegisterValidation("step_key", func(fl validator.FieldLevel) bool {
			return stepKeyPattern.MatchString(fl.Field().String())
		})

		_ = v.RegisterValidation("adapter_code", func(fl validator.FieldLevel) bool {
			return adapterCodePattern.MatchString(fl.Field().String())
		})

		validateInst = v
	})

	return validateInst
}

// ValidatePipeline performs schema and cross-field validation on a
// pipeline definition. It rejects duplicate step keys and dangling
// branch/merge references before any execution starts.
func ValidatePipeline(p *Pipeline) error {
	if p == nil {
		return sluiceerrors.NewValidationError("pipeline", "pipeline is nil", nil)
	}

	v := validatorInstance()
	if err := v.Struct(p); err != nil {
		return convertValidationError(err)
	}

	steps := p.Definition.Steps
	keyIndex := make(map[string]int, len(steps))

	for i, step := range steps {
		if _, exists := keyIndex[step.Key]; exists {
			return sluiceerrors.NewValidationError(fieldForStep(i, "key"),
				fmt.Sprintf("duplicate step key %q", step.Key), nil)
		}
		keyIndex[step.Key] = i

		if err := validateStep(i, step); err != nil {
			return err
		}
	}

	// Referenced keys must resolve, and only forward so the sequential
	// flow cannot loop.
	for i, step := range steps {
		if step.Branch != nil {
			target, ok := keyIndex[step.Branch.Target]
			if !ok {
				return sluiceerrors.NewValidationError(fieldForStep(i, "config.target"),
					fmt.Sprintf("branch references unknown step %q", step.Branch.Target), nil)
			}
			if target <= i {
				return sluiceerrors.NewValidationError(fieldForStep(i, "config.target"),
					fmt.Sprintf("branch target %q must come after the branch", step.Branch.Target), nil)
			}
		}
		if step.Merge != nil {
			for _, from := range step.Merge.From {
				if _, ok := keyIndex[from]; !ok {
					return sluiceerrors.NewValidationError(fieldForStep(i, "config.from"),
						fmt.Sprintf("merge references unknown step %q", from), nil)
				}
			}
		}
	}

	return nil
}

func validateStep(i int, step Step) error {
	switch step.Type {
	case StepExtract:
		if step.AdapterCode == "" {
			return sluiceerrors.NewValidationError(fieldForStep(i, "adapterCode"),
				"extract steps require an adapterCode", nil)
		}
	case StepTransform:
		if step.Transform == nil || len(step.Transform.Mappings) == 0 {
			return sluiceerrors.NewValidationError(fieldForStep(i, "config.mappings"),
				"transform steps require at least one mapping", nil)
		}
		for j, m := range step.Transform.Mappings {
			if m.To == "" {
				return sluiceerrors.NewValidationError(
					fmt.Sprintf("%s[%d].to", fieldForStep(i, "config.mappings"), j),
					"mapping requires a target field", nil)
			}
		}
	case StepLoad:
		if step.Load == nil || step.Load.EntityType == "" {
			return sluiceerrors.NewValidationError(fieldForStep(i, "config.entityType"),
				"load steps require an entityType", nil)
		}
		switch step.Load.Operation {
		case "CREATE", "UPDATE", "UPSERT", "DELETE":
		case "":
			return sluiceerrors.NewValidationError(fieldForStep(i, "config.operation"),
				"load steps require an operation", nil)
		default:
			return sluiceerrors.NewValidationError(fieldForStep(i, "config.operation"),
				fmt.Sprintf("unknown operation %q", step.Load.Operation), nil)
		}
	case StepBranch:
		if step.Branch == nil || step.Branch.Predicate == "" || step.Branch.Target == "" {
			return sluiceerrors.NewValidationError(fieldForStep(i, "config"),
				"branch steps require a predicate and a target", nil)
		}
	case StepGate, StepMerge:
		// Config optional.
	}
	return nil
}

func fieldForStep(i int, field string) string {
	return fmt.Sprintf("definition.steps[%d].%s", i, field)
}

func convertValidationError(err error) error {
	if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
		first := errs[0]
		return sluiceerrors.NewValidationError(first.Namespace(),
			fmt.Sprintf("failed %q constraint", first.Tag()), err)
	}
	return sluiceerrors.NewValidationError("", err.Error(), err)
}
