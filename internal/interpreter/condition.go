package interpreter

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/openkcm/bot-flow/internal/flow"
)

// evaluate applies a comparison operator to the session variable (actual,
// set) and the configured value.
func evaluate(op flow.Operator, actual any, set bool, expected any) (bool, error) {
	switch op {
	case flow.OperatorEquals:
		return looseEqual(actual, set, expected), nil
	case flow.OperatorNotEquals:
		return !looseEqual(actual, set, expected), nil
	case flow.OperatorContains:
		if !set || actual == nil || expected == nil {
			return false, nil
		}
		return strings.Contains(stringify(actual), stringify(expected)), nil
	case flow.OperatorGreaterThan, flow.OperatorLessThan:
		if !set {
			return false, nil
		}
		a, aok := toNumber(actual)
		b, bok := toNumber(expected)
		if !aok || !bok {
			return false, nil
		}
		if op == flow.OperatorGreaterThan {
			return a > b, nil
		}
		return a < b, nil
	default:
		return false, fmt.Errorf("unsupported operator %q", op)
	}
}

// looseEqual treats numeric strings as numbers and compares everything else
// by its string form. An unset variable equals only an absent value.
func looseEqual(actual any, set bool, expected any) bool {
	if !set || actual == nil {
		return expected == nil
	}
	if expected == nil {
		return false
	}

	a, aok := toNumber(actual)
	b, bok := toNumber(expected)
	if aok && bok {
		return a == b
	}

	return stringify(actual) == stringify(expected)
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil && !math.IsNaN(f)
	default:
		return 0, false
	}
}

func stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case bool:
		return strconv.FormatBool(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(s), 'f', -1, 32)
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprint(v)
	}
}
