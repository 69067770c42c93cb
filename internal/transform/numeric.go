package transform

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var numberCleanup = regexp.MustCompile(`[^\d.,+-]`)

func numericTransforms() map[string]Func {
	return map[string]Func{
		"PARSE_NUMBER": pure(func(v any, args Args) (any, error) {
			return parseLooseNumber(v, args.Str("decimalSeparator", "."))
		}),
		"PARSE_INT": pure(func(v any, _ Args) (any, error) {
			f, err := asFloat(v)
			if err != nil {
				s := strings.TrimSpace(asString(v))
				parsed, perr := strconv.ParseInt(s, 10, 64)
				if perr != nil {
					return nil, err
				}
				return float64(parsed), nil
			}
			return math.Trunc(f), nil
		}),
		"PARSE_FLOAT": pure(func(v any, _ Args) (any, error) {
			return asFloat(v)
		}),
		"ROUND": pure(func(v any, args Args) (any, error) {
			f, err := asFloat(v)
			if err != nil {
				return nil, err
			}
			return roundTo(f, args.Int("precision", 0)), nil
		}),
		"FLOOR": pure(func(v any, _ Args) (any, error) {
			f, err := asFloat(v)
			if err != nil {
				return nil, err
			}
			return math.Floor(f), nil
		}),
		"CEIL": pure(func(v any, _ Args) (any, error) {
			f, err := asFloat(v)
			if err != nil {
				return nil, err
			}
			return math.Ceil(f), nil
		}),
		"ABS": pure(func(v any, _ Args) (any, error) {
			f, err := asFloat(v)
			if err != nil {
				return nil, err
			}
			return math.Abs(f), nil
		}),
		"TO_CENTS": pure(func(v any, args Args) (any, error) {
			f, err := asFloat(v)
			if err != nil {
				return nil, err
			}
			decimals := args.Int("decimals", 2)
			// Minor units are integral.
			return int64(math.Round(f * math.Pow10(decimals))), nil
		}),
		"FROM_CENTS": pure(func(v any, args Args) (any, error) {
			f, err := asFloat(v)
			if err != nil {
				return nil, err
			}
			decimals := args.Int("decimals", 2)
			return f / math.Pow10(decimals), nil
		}),
		"MATH": pure(mathTransform),
	}
}

func mathTransform(v any, args Args) (any, error) {
	f, err := asFloat(v)
	if err != nil {
		return nil, err
	}
	operand := args.Float("operand", 0)

	var result float64
	switch op := args.Str("operation", ""); op {
	case "add":
		result = f + operand
	case "sub":
		result = f - operand
	case "mul":
		result = f * operand
	case "div":
		if operand == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		result = f / operand
	default:
		return nil, fmt.Errorf("unknown math operation %q", op)
	}

	if precision, ok := args["precision"]; ok && precision != nil {
		result = roundTo(result, args.Int("precision", 0))
	}
	return result, nil
}

func roundTo(f float64, precision int) float64 {
	scale := math.Pow10(precision)
	return math.Round(f*scale) / scale
}

// parseLooseNumber tolerates currency symbols, spaces and thousand
// separators, honouring the declared decimal separator.
func parseLooseNumber(v any, decimalSeparator string) (any, error) {
	if f, err := asFloat(v); err == nil {
		return f, nil
	}

	s := numberCleanup.ReplaceAllString(asString(v), "")
	if decimalSeparator == "," {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	} else {
		s = strings.ReplaceAll(s, ",", "")
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("cannot parse %q as number", asString(v))
	}
	return f, nil
}
