package conditions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magnusmagz/crm-k-sub002/pkg/models"
)

func TestEvaluate_LeftAssociativeFold(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		list     []models.Condition
		snapshot map[string]any
		expected bool
	}{
		{
			name: "AND of two true clauses",
			list: []models.Condition{
				{Field: "value", Operator: models.OperatorGreaterThan, Value: 1000},
				{Field: "status", Operator: models.OperatorEquals, Value: "open", Logic: models.LogicAnd},
			},
			snapshot: map[string]any{"value": 1500.0, "status": "open"},
			expected: true,
		},
		{
			name: "false first clause rescued by OR",
			list: []models.Condition{
				{Field: "value", Operator: models.OperatorGreaterThan, Value: 1000},
				{Field: "status", Operator: models.OperatorEquals, Value: "open", Logic: models.LogicOr},
			},
			snapshot: map[string]any{"value": 500.0, "status": "open"},
			expected: true,
		},
		{
			name: "AND short-circuits nothing, fold continues through OR",
			list: []models.Condition{
				{Field: "value", Operator: models.OperatorGreaterThan, Value: 1000},
				{Field: "status", Operator: models.OperatorEquals, Value: "lost", Logic: models.LogicAnd},
				{Field: "owner", Operator: models.OperatorIsNotEmpty, Logic: models.LogicOr},
			},
			snapshot: map[string]any{"value": 2000.0, "status": "open", "owner": "ana"},
			expected: true,
		},
		{
			name:     "empty list is vacuously true",
			list:     nil,
			snapshot: map[string]any{},
			expected: true,
		},
		{
			name: "missing logic defaults to AND",
			list: []models.Condition{
				{Field: "status", Operator: models.OperatorEquals, Value: "open"},
				{Field: "value", Operator: models.OperatorLessThan, Value: 10},
			},
			snapshot: map[string]any{"status": "open", "value": 50.0},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result, err := Evaluate(tt.list, tt.snapshot)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestEvaluate_Operators(t *testing.T) {
	t.Parallel()

	snapshot := map[string]any{
		"name":   "Big Deal Q3",
		"value":  1500.0,
		"stage":  "qualified",
		"tags":   []any{"lead", "inbound"},
		"owner":  "",
		"nested": map[string]any{"city": "Lisbon"},
	}

	tests := []struct {
		name      string
		condition models.Condition
		expected  bool
	}{
		{"equals string", models.Condition{Field: "stage", Operator: models.OperatorEquals, Value: "qualified"}, true},
		{"equals numeric coercion", models.Condition{Field: "value", Operator: models.OperatorEquals, Value: "1500"}, true},
		{"not_equals", models.Condition{Field: "stage", Operator: models.OperatorNotEquals, Value: "won"}, true},
		{"not_equals on missing field is false", models.Condition{Field: "ghost", Operator: models.OperatorNotEquals, Value: "x"}, false},
		{"contains substring", models.Condition{Field: "name", Operator: models.OperatorContains, Value: "Deal"}, true},
		{"contains slice membership", models.Condition{Field: "tags", Operator: models.OperatorContains, Value: "lead"}, true},
		{"not_contains", models.Condition{Field: "tags", Operator: models.OperatorNotContains, Value: "outbound"}, true},
		{"greater_than", models.Condition{Field: "value", Operator: models.OperatorGreaterThan, Value: 1000}, true},
		{"greater_than non-numeric is false", models.Condition{Field: "stage", Operator: models.OperatorGreaterThan, Value: 10}, false},
		{"less_than", models.Condition{Field: "value", Operator: models.OperatorLessThan, Value: 1000}, false},
		{"is_empty on empty string", models.Condition{Field: "owner", Operator: models.OperatorIsEmpty}, true},
		{"is_empty on missing field", models.Condition{Field: "ghost", Operator: models.OperatorIsEmpty}, true},
		{"is_not_empty", models.Condition{Field: "tags", Operator: models.OperatorIsNotEmpty}, true},
		{"dotted path lookup", models.Condition{Field: "nested.city", Operator: models.OperatorEquals, Value: "Lisbon"}, true},
		{"dotted path missing segment", models.Condition{Field: "nested.country", Operator: models.OperatorIsEmpty}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result, err := Evaluate([]models.Condition{tt.condition}, snapshot)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestEvaluate_UnknownOperatorErrors(t *testing.T) {
	t.Parallel()

	_, err := Evaluate([]models.Condition{
		{Field: "stage", Operator: "matches_regex", Value: ".*"},
	}, map[string]any{"stage": "open"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown operator")
}

func TestEvaluate_NilSnapshot(t *testing.T) {
	t.Parallel()

	result, err := Evaluate([]models.Condition{
		{Field: "anything", Operator: models.OperatorEquals, Value: "x"},
	}, nil)

	require.NoError(t, err)
	assert.False(t, result)
}
