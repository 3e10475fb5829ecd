// Package conditions evaluates flat condition lists against entity snapshots.
package conditions

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/magnusmagz/crm-k-sub002/pkg/models"
)

// Evaluate folds a condition list left-to-right against a snapshot.
//
// The first clause seeds the result; every following clause is combined
// with its own Logic (AND/OR). There is no grouping or precedence — the
// flat left-associative fold is the defined semantics. An empty list is
// vacuously true.
//
// Unknown fields resolve to nil and make every operator false except
// is_empty (true) and is_not_empty (false). An unknown operator is an
// error; callers are expected to fail closed on it.
func Evaluate(list []models.Condition, snapshot map[string]any) (bool, error) {
	result := true

	for i, condition := range list {
		clause, err := applyOperator(lookup(snapshot, condition.Field), condition.Operator, condition.Value)
		if err != nil {
			return false, fmt.Errorf("condition %d (%s): %w", i, condition.Field, err)
		}

		if i == 0 {
			result = clause

			continue
		}

		switch condition.Logic {
		case models.LogicOr:
			result = result || clause
		default:
			result = result && clause
		}
	}

	return result, nil
}

// lookup resolves a dotted attribute path into nested maps. A missing
// segment resolves to nil.
func lookup(snapshot map[string]any, path string) any {
	if snapshot == nil {
		return nil
	}

	segments := strings.Split(path, ".")
	var current any = snapshot

	for _, segment := range segments {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}

		current, ok = m[segment]
		if !ok {
			return nil
		}
	}

	return current
}

func applyOperator(actual any, operator models.Operator, expected any) (bool, error) {
	switch operator {
	case models.OperatorEquals:
		return equals(actual, expected), nil
	case models.OperatorNotEquals:
		return actual != nil && !equals(actual, expected), nil
	case models.OperatorContains:
		return contains(actual, expected), nil
	case models.OperatorNotContains:
		return actual != nil && !contains(actual, expected), nil
	case models.OperatorGreaterThan:
		return compareNumeric(actual, expected, func(a, b float64) bool { return a > b }), nil
	case models.OperatorLessThan:
		return compareNumeric(actual, expected, func(a, b float64) bool { return a < b }), nil
	case models.OperatorIsEmpty:
		return isEmpty(actual), nil
	case models.OperatorIsNotEmpty:
		return !isEmpty(actual), nil
	default:
		return false, fmt.Errorf("unknown operator %q", operator)
	}
}

// equals compares numbers numerically (JSON decoding yields float64 for
// every number) and everything else by case-sensitive string form.
func equals(actual, expected any) bool {
	if actual == nil {
		return false
	}

	if a, ok := toFloat(actual); ok {
		if b, ok := toFloat(expected); ok {
			return a == b
		}
	}

	return fmt.Sprintf("%v", actual) == fmt.Sprintf("%v", expected)
}

// contains is a case-sensitive substring match on strings; on slices it
// checks element membership by equality.
func contains(actual, expected any) bool {
	switch v := actual.(type) {
	case string:
		return strings.Contains(v, fmt.Sprintf("%v", expected))
	case []any:
		for _, item := range v {
			if equals(item, expected) {
				return true
			}
		}

		return false
	case []string:
		for _, item := range v {
			if equals(item, expected) {
				return true
			}
		}

		return false
	default:
		return false
	}
}

// compareNumeric coerces both sides to float64; non-numeric values make
// the clause false rather than erroring.
func compareNumeric(actual, expected any, cmp func(a, b float64) bool) bool {
	a, ok := toFloat(actual)
	if !ok {
		return false
	}

	b, ok := toFloat(expected)
	if !ok {
		return false
	}

	return cmp(a, b)
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)

		return f, err == nil
	default:
		return 0, false
	}
}

// isEmpty is true for nil, empty strings, and empty slices or maps.
func isEmpty(value any) bool {
	if value == nil {
		return true
	}

	switch v := value.(type) {
	case string:
		return v == ""
	default:
		rv := reflect.ValueOf(value)
		if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Map {
			return rv.Len() == 0
		}

		return false
	}
}
