package transform

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sluicehq/sluice/internal/model"
)

// EvalPredicate evaluates a small predicate expression over a record.
// Supported forms:
//
//	field == literal     (also != > >= < <=)
//	field contains "x"
//	exists field
//	!expr
//	field                (bare reference, loose truthiness)
//
// The identifier "value" resolves to the supplied current value rather
// than a record field. Branch/merge step predicates and the IF_ELSE and
// FILTER transforms share this evaluator.
func EvalPredicate(expr string, value any, record *model.Envelope) (bool, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return false, fmt.Errorf("empty expression")
	}

	if strings.HasPrefix(expr, "!") {
		inner, err := EvalPredicate(expr[1:], value, record)
		if err != nil {
			return false, err
		}
		return !inner, nil
	}

	if rest, ok := strings.CutPrefix(expr, "exists "); ok {
		name := strings.TrimSpace(rest)
		if record == nil {
			return false, nil
		}
		_, found := record.Field(name)
		return found, nil
	}

	for _, op := range []string{"==", "!=", ">=", "<=", ">", "<", " contains "} {
		idx := strings.Index(expr, op)
		if idx < 0 {
			continue
		}
		lhs := resolveOperand(strings.TrimSpace(expr[:idx]), value, record)
		rhs := resolveOperand(strings.TrimSpace(expr[idx+len(op):]), value, record)
		return compare(strings.TrimSpace(op), lhs, rhs)
	}

	return truthy(resolveOperand(expr, value, record)), nil
}

func resolveOperand(token string, value any, record *model.Envelope) any {
	if token == "" {
		return nil
	}
	if token == "value" {
		return value
	}
	if token == "null" {
		return nil
	}
	if token == "true" {
		return true
	}
	if token == "false" {
		return false
	}
	if len(token) >= 2 && (token[0] == '"' || token[0] == '\'') && token[len(token)-1] == token[0] {
		return token[1 : len(token)-1]
	}
	if f, err := strconv.ParseFloat(token, 64); err == nil {
		return f
	}
	if record != nil {
		if v, ok := record.Field(token); ok {
			return v
		}
	}
	return nil
}

func compare(op string, lhs, rhs any) (bool, error) {
	switch op {
	case "==":
		return equalValues(lhs, rhs), nil
	case "!=":
		return !equalValues(lhs, rhs), nil
	case "contains":
		return strings.Contains(asString(lhs), asString(rhs)), nil
	}

	lf, lerr := asFloat(lhs)
	rf, rerr := asFloat(rhs)
	if lerr != nil || rerr != nil {
		// Fall back to lexicographic comparison for non-numeric operands.
		ls, rs := asString(lhs), asString(rhs)
		switch op {
		case ">":
			return ls > rs, nil
		case ">=":
			return ls >= rs, nil
		case "<":
			return ls < rs, nil
		case "<=":
			return ls <= rs, nil
		}
		return false, fmt.Errorf("unsupported operator %q", op)
	}

	switch op {
	case ">":
		return lf > rf, nil
	case ">=":
		return lf >= rf, nil
	case "<":
		return lf < rf, nil
	case "<=":
		return lf <= rf, nil
	}
	return false, fmt.Errorf("unsupported operator %q", op)
}

func equalValues(lhs, rhs any) bool {
	if lhs == nil && rhs == nil {
		return true
	}
	if lf, err := asFloat(lhs); err == nil {
		if rf, err := asFloat(rhs); err == nil {
			return lf == rf
		}
	}
	return asString(lhs) == asString(rhs)
}
