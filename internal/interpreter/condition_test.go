package interpreter

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/bot-flow/internal/flow"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name     string
		op       flow.Operator
		actual   any
		unset    bool
		expected any
		want     bool
	}{
		{name: "equals strings", op: flow.OperatorEquals, actual: "yes", expected: "yes", want: true},
		{name: "equals numeric string and number", op: flow.OperatorEquals, actual: "42", expected: float64(42), want: true},
		{name: "equals number formats", op: flow.OperatorEquals, actual: "1.0", expected: 1, want: true},
		{name: "equals json number", op: flow.OperatorEquals, actual: json.Number("7"), expected: "7", want: true},
		{name: "equals bool and string", op: flow.OperatorEquals, actual: true, expected: "true", want: true},
		{name: "equals bool is not numeric", op: flow.OperatorEquals, actual: true, expected: 1, want: false},
		{name: "equals zero is not false", op: flow.OperatorEquals, actual: 0, expected: false, want: false},
		{name: "equals unset against value", op: flow.OperatorEquals, unset: true, expected: "yes", want: false},
		{name: "equals unset against nil", op: flow.OperatorEquals, unset: true, expected: nil, want: true},
		{name: "equals set against nil", op: flow.OperatorEquals, actual: "x", expected: nil, want: false},
		{name: "equals is case sensitive", op: flow.OperatorEquals, actual: "Yes", expected: "yes", want: false},
		{name: "not equals", op: flow.OperatorNotEquals, actual: "a", expected: "b", want: true},
		{name: "not equals unset", op: flow.OperatorNotEquals, unset: true, expected: "b", want: true},
		{name: "contains", op: flow.OperatorContains, actual: "hello world", expected: "world", want: true},
		{name: "contains number form", op: flow.OperatorContains, actual: float64(12345), expected: 234, want: true},
		{name: "contains missing", op: flow.OperatorContains, actual: "hello", expected: "bye", want: false},
		{name: "contains unset", op: flow.OperatorContains, unset: true, expected: "", want: false},
		{name: "greater than", op: flow.OperatorGreaterThan, actual: "21", expected: 18, want: true},
		{name: "greater than equal values", op: flow.OperatorGreaterThan, actual: 18, expected: "18", want: false},
		{name: "greater than non numeric", op: flow.OperatorGreaterThan, actual: "old", expected: 18, want: false},
		{name: "greater than unset", op: flow.OperatorGreaterThan, unset: true, expected: 0, want: false},
		{name: "less than", op: flow.OperatorLessThan, actual: 3.5, expected: " 4 ", want: true},
		{name: "less than empty string", op: flow.OperatorLessThan, actual: "", expected: 4, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := evaluate(tt.op, tt.actual, !tt.unset, tt.expected)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate_UnknownOperator(t *testing.T) {
	_, err := evaluate("between", 1, true, 2)
	assert.Error(t, err)
}

func TestConditionHandler_Expression(t *testing.T) {
	h := &conditionHandler{}

	tests := []struct {
		name      string
		value     any
		vars      map[string]any
		want      bool
		assertErr assert.ErrorAssertionFunc
	}{
		{
			name:      "True",
			value:     `plan in ["pro", "team"] && seats > 3`,
			vars:      map[string]any{"plan": "pro", "seats": 5},
			want:      true,
			assertErr: assert.NoError,
		},
		{
			name:      "False",
			value:     `len(name) > 10`,
			vars:      map[string]any{"name": "Ada"},
			assertErr: assert.NoError,
		},
		{
			name:      "Undefined variable is nil",
			value:     `missing == nil`,
			vars:      map[string]any{},
			want:      true,
			assertErr: assert.NoError,
		},
		{
			name:      "Syntax error",
			value:     `age >>> 1`,
			vars:      map[string]any{},
			assertErr: assert.Error,
		},
		{
			name:      "Not a string",
			value:     42,
			vars:      map[string]any{},
			assertErr: assert.Error,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := h.evaluateExpression(tt.value, tt.vars)
			if !tt.assertErr(t, err) || err != nil {
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}

	// compiled programs are reused
	_, ok := h.programs.Load(`missing == nil`)
	assert.True(t, ok)
}
