package transform

import (
	"fmt"
	"math"
	"strconv"
)

// asString coerces a value to its string form; nil becomes "".
func asString(v any) string {
	if v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case float64:
		// Render integral floats without the trailing .0 that fmt would add.
		if s == math.Trunc(s) && math.Abs(s) < 1e15 {
			return strconv.FormatInt(int64(s), 10)
		}
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// asFloat coerces a value to float64.
func asFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(n, 64)
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	case nil:
		return 0, fmt.Errorf("cannot convert nil to number")
	default:
		return 0, fmt.Errorf("cannot convert %T to number", v)
	}
}

// asBool coerces a value to bool using the usual truthy string forms.
func asBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		switch b {
		case "true", "TRUE", "True", "yes", "YES", "y", "Y", "1", "on":
			return true, nil
		case "false", "FALSE", "False", "no", "NO", "n", "N", "0", "off", "":
			return false, nil
		}
		return false, fmt.Errorf("cannot parse %q as boolean", b)
	case float64:
		return b != 0, nil
	case int:
		return b != 0, nil
	case nil:
		return false, nil
	default:
		return false, fmt.Errorf("cannot convert %T to boolean", v)
	}
}

// truthy reports the loose truthiness used by predicates: nil, false, 0,
// "" and empty collections are false.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case int:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}
