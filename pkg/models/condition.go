package models

// Operator is a comparison applied to one snapshot attribute.
type Operator string

const (
	OperatorEquals      Operator = "equals"
	OperatorNotEquals   Operator = "not_equals"
	OperatorContains    Operator = "contains"
	OperatorNotContains Operator = "not_contains"
	OperatorGreaterThan Operator = "greater_than"
	OperatorLessThan    Operator = "less_than"
	OperatorIsEmpty     Operator = "is_empty"
	OperatorIsNotEmpty  Operator = "is_not_empty"
)

// KnownOperators lists every operator the evaluator implements.
var KnownOperators = []Operator{
	OperatorEquals,
	OperatorNotEquals,
	OperatorContains,
	OperatorNotContains,
	OperatorGreaterThan,
	OperatorLessThan,
	OperatorIsEmpty,
	OperatorIsNotEmpty,
}

// ConditionLogic joins a condition with the running result of the
// conditions before it. The first condition in a list carries no logic.
type ConditionLogic string

const (
	LogicAnd ConditionLogic = "AND"
	LogicOr  ConditionLogic = "OR"
)

// Condition is a single field/operator/value clause. Lists of conditions
// are folded left-to-right with each condition's own Logic; there is no
// grouping or precedence.
type Condition struct {
	Field    string         `json:"field"           validate:"required"`
	Operator Operator       `json:"operator"        validate:"required"`
	Value    any            `json:"value,omitempty"`
	Logic    ConditionLogic `json:"logic,omitempty"`
}
