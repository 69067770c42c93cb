package transform

func booleanTransforms() map[string]Func {
	return map[string]Func{
		"PARSE_BOOLEAN": pure(func(v any, _ Args) (any, error) {
			return asBool(v)
		}),
		"NEGATE": pure(func(v any, _ Args) (any, error) {
			b, err := asBool(v)
			if err != nil {
				return nil, err
			}
			return !b, nil
		}),
	}
}
