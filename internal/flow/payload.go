package flow

// Payload is the type-specific data of a node.
type Payload interface {
	payload()
}

type Operator string

const (
	OperatorEquals      Operator = "equals"
	OperatorNotEquals   Operator = "not_equals"
	OperatorContains    Operator = "contains"
	OperatorGreaterThan Operator = "greater_than"
	OperatorLessThan    Operator = "less_than"
	OperatorExpression  Operator = "expression"
)

type StartData struct{}

type MessageData struct {
	Content string `json:"content" validate:"required"`
	NextID  string `json:"nextId,omitempty"`
}

// ConditionData compares the session variable named Variable with Value.
// With OperatorExpression, Value holds an expression over all variables.
type ConditionData struct {
	Variable  string   `json:"variable" validate:"required_unless=Operator expression"`
	Operator  Operator `json:"operator" validate:"required,oneof=equals not_equals contains greater_than less_than expression"`
	Value     any      `json:"value"`
	TrueNext  string   `json:"trueNext,omitempty"`
	FalseNext string   `json:"falseNext,omitempty"`
}

// InputData stores the text supplied on resumption under Variable, if set.
type InputData struct {
	Variable string `json:"variable,omitempty"`
	NextID   string `json:"nextId,omitempty"`
}

// RawData is the undecoded payload of node types the service has no typed
// payload for.
type RawData map[string]any

func (StartData) payload()     {}
func (MessageData) payload()   {}
func (ConditionData) payload() {}
func (InputData) payload()     {}
func (RawData) payload()       {}
