package transform

import "encoding/json"

func coercionTransforms() map[string]Func {
	return map[string]Func{
		"TO_STRING": pure(func(v any, _ Args) (any, error) {
			if v == nil {
				return nil, nil
			}
			return asString(v), nil
		}),
		"TO_NUMBER": pure(func(v any, _ Args) (any, error) {
			return asFloat(v)
		}),
		"TO_BOOLEAN": pure(func(v any, _ Args) (any, error) {
			return asBool(v)
		}),
		"TO_ARRAY": pure(func(v any, _ Args) (any, error) {
			if v == nil {
				return []any{}, nil
			}
			if arr, ok := v.([]any); ok {
				return arr, nil
			}
			return []any{v}, nil
		}),
		"TO_JSON": pure(func(v any, _ Args) (any, error) {
			data, err := json.Marshal(v)
			if err != nil {
				return nil, err
			}
			return string(data), nil
		}),
		"PARSE_JSON": pure(func(v any, _ Args) (any, error) {
			var out any
			if err := json.Unmarshal([]byte(asString(v)), &out); err != nil {
				return nil, err
			}
			return out, nil
		}),
	}
}
