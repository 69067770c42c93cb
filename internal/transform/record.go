package transform

import (
	"context"
	"fmt"

	"github.com/sluicehq/sluice/internal/model"
)

func recordTransforms() map[string]Func {
	return map[string]Func{
		"IF_ELSE": func(_ context.Context, _ *Env, v any, args Args, record *model.Envelope) (any, error) {
			ok, err := EvalPredicate(args.Str("condition", ""), v, record)
			if err != nil {
				return nil, err
			}
			if ok {
				return resolveArgValue(args["then"], v, record), nil
			}
			return resolveArgValue(args["else"], v, record), nil
		},
		"COALESCE": func(_ context.Context, _ *Env, v any, args Args, record *model.Envelope) (any, error) {
			if v != nil && asString(v) != "" {
				return v, nil
			}
			for _, name := range args.Slice("fields") {
				if record == nil {
					break
				}
				if fv, ok := record.Field(asString(name)); ok && fv != nil && asString(fv) != "" {
					return fv, nil
				}
			}
			return args["defaultValue"], nil
		},
		"DEFAULT": pure(func(v any, args Args) (any, error) {
			if v == nil || asString(v) == "" {
				return args["value"], nil
			}
			return v, nil
		}),
		"FIRST": pure(func(v any, _ Args) (any, error) {
			arr, err := requireArray(v)
			if err != nil {
				return nil, err
			}
			if len(arr) == 0 {
				return nil, nil
			}
			return arr[0], nil
		}),
		"LAST": pure(func(v any, _ Args) (any, error) {
			arr, err := requireArray(v)
			if err != nil {
				return nil, err
			}
			if len(arr) == 0 {
				return nil, nil
			}
			return arr[len(arr)-1], nil
		}),
		"NTH": pure(func(v any, args Args) (any, error) {
			arr, err := requireArray(v)
			if err != nil {
				return nil, err
			}
			n := args.Int("index", 0)
			if n < 0 || n >= len(arr) {
				return nil, nil
			}
			return arr[n], nil
		}),
		"FILTER": func(_ context.Context, _ *Env, v any, args Args, _ *model.Envelope) (any, error) {
			arr, err := requireArray(v)
			if err != nil {
				return nil, err
			}
			condition := args.Str("condition", "")
			out := make([]any, 0, len(arr))
			for _, item := range arr {
				itemRecord := recordForItem(item)
				keep, err := EvalPredicate(condition, item, itemRecord)
				if err != nil {
					return nil, err
				}
				if keep {
					out = append(out, item)
				}
			}
			return out, nil
		},
		"MAP_ARRAY": func(ctx context.Context, env *Env, v any, args Args, record *model.Envelope) (any, error) {
			arr, err := requireArray(v)
			if err != nil {
				return nil, err
			}
			chain, err := chainFromArg(args.Slice("chain"))
			if err != nil {
				return nil, err
			}
			eval := &Evaluator{Env: env, Strict: true}
			out := make([]any, len(arr))
			for i, item := range arr {
				mapped, err := eval.Apply(ctx, item, chain, record)
				if err != nil {
					return nil, err
				}
				out[i] = mapped
			}
			return out, nil
		},
		"FLATTEN": pure(func(v any, _ Args) (any, error) {
			arr, err := requireArray(v)
			if err != nil {
				return nil, err
			}
			var out []any
			for _, item := range arr {
				if nested, ok := item.([]any); ok {
					out = append(out, nested...)
					continue
				}
				out = append(out, item)
			}
			return out, nil
		}),
		"EXPRESSION": func(_ context.Context, _ *Env, v any, args Args, record *model.Envelope) (any, error) {
			expr := args.Str("expression", "")
			if tpl := args.Str("template", ""); tpl != "" {
				return renderTemplate(tpl, v, record), nil
			}
			ok, err := EvalPredicate(expr, v, record)
			if err != nil {
				return nil, err
			}
			return ok, nil
		},
	}
}

func requireArray(v any) ([]any, error) {
	if v == nil {
		return nil, nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected array, got %T", v)
	}
	return arr, nil
}

// recordForItem lets FILTER conditions address fields of object items.
func recordForItem(item any) *model.Envelope {
	if m, ok := item.(map[string]any); ok {
		env := model.NewEnvelope(m, 0)
		return &env
	}
	return nil
}

// resolveArgValue resolves "then"/"else" argument values, honouring
// {{field}} and {{value}} templates.
func resolveArgValue(raw, value any, record *model.Envelope) any {
	s, ok := raw.(string)
	if !ok {
		return raw
	}
	if templateRef.MatchString(s) {
		return renderTemplate(s, value, record)
	}
	return s
}

func chainFromArg(raw []any) ([]ChainStep, error) {
	out := make([]ChainStep, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("chain element must be an object, got %T", item)
		}
		step := ChainStep{Type: asString(m["type"])}
		if args, ok := m["args"].(map[string]any); ok {
			step.Args = Args(args)
		}
		if step.Type == "" {
			return nil, fmt.Errorf("chain element missing type")
		}
		out = append(out, step)
	}
	return out, nil
}
