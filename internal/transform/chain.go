package transform

import (
	"context"
	"fmt"

	"github.com/sluicehq/sluice/internal/model"
	sluiceerrors "github.com/sluicehq/sluice/pkg/errors"
)

// ChainStep is one element of a transform chain.
type ChainStep struct {
	Type string `yaml:"type" json:"type"`
	Args Args   `yaml:"args,omitempty" json:"args,omitempty"`
}

// Evaluator applies transform chains. Strict controls whether a failing
// chain element aborts the chain; the default keeps mapping resilient by
// logging the failure and propagating the value unchanged, leaving loader
// validation to catch any out-of-spec result.
type Evaluator struct {
	Env    *Env
	Strict bool
}

// NewEvaluator builds an evaluator over the given environment.
func NewEvaluator(env *Env) *Evaluator {
	if env == nil {
		env = &Env{}
	}
	return &Evaluator{Env: env}
}

// Apply evaluates the chain left to right over value. Each element applies
// independently; record provides whole-record context for transforms that
// need it (IF_ELSE, EXPRESSION, …).
func (e *Evaluator) Apply(ctx context.Context, value any, chain []ChainStep, record *model.Envelope) (any, error) {
	current := value
	for i, step := range chain {
		fn, err := Get(step.Type)
		if err != nil {
			if e.Strict {
				return current, err
			}
			e.Env.Logger.Error(err, fmt.Sprintf("transform chain element %d skipped", i))
			continue
		}

		next, err := fn(ctx, e.Env, current, step.Args, record)
		if err != nil {
			if e.Strict {
				return current, sluiceerrors.NewAdapterError(step.Type, err)
			}
			e.Env.Logger.Error(err, fmt.Sprintf("transform %s failed, value passed through", step.Type))
			continue
		}
		current = next
	}
	return current, nil
}

// FieldMapping maps one target field from a source field through a chain.
type FieldMapping struct {
	From  string      `yaml:"from,omitempty" json:"from,omitempty"`
	To    string      `yaml:"to" json:"to"`
	Chain []ChainStep `yaml:"chain,omitempty" json:"chain,omitempty"`
}

// MapRecord applies a set of field mappings to an envelope and returns the
// transformed copy. A mapping with an empty From reads the To field in
// place. Transform failures follow the evaluator's strictness.
func (e *Evaluator) MapRecord(ctx context.Context, env model.Envelope, mappings []FieldMapping) (model.Envelope, error) {
	out := env.Clone()
	for _, m := range mappings {
		from := m.From
		if from == "" {
			from = m.To
		}
		value, _ := out.Field(from)
		next, err := e.Apply(ctx, value, m.Chain, &out)
		if err != nil {
			return out, err
		}
		out.Data[m.To] = next
	}
	return out, nil
}
