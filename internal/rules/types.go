package rules

import (
	"errors"
	"fmt"
	"sort"
)

// Record maps attribute ids to values.
type Record map[string]any

// Clone returns a shallow copy of r. A nil record clones to an empty one.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// with returns a copy of r with id set to v.
func (r Record) with(id string, v any) Record {
	out := r.Clone()
	out[id] = v
	return out
}

type Operator string

const (
	Equals      Operator = "EQUALS"
	NotEquals   Operator = "NOT_EQUALS"
	GreaterThan Operator = "GREATER_THAN"
	LessThan    Operator = "LESS_THAN"
	Contains    Operator = "CONTAINS"
	IsEmpty     Operator = "IS_EMPTY"
	IsNotEmpty  Operator = "IS_NOT_EMPTY"
)

type Connector string

const (
	And Connector = "AND"
	Or  Connector = "OR"
)

type Condition struct {
	AttributeID string    `json:"attributeId"`
	Operator    Operator  `json:"operator"`
	Value       any       `json:"value,omitempty"`
	Connector   Connector `json:"logicalConnector,omitempty"`
	Order       int       `json:"order"`
}

type ActionKind string

const (
	SetLiteral ActionKind = "SET_LITERAL"
	Calculate  ActionKind = "CALCULATE"
	CopyFrom   ActionKind = "COPY_FROM"
)

type Action struct {
	TargetAttributeID string     `json:"targetAttributeId"`
	Kind              ActionKind `json:"kind"`
	Value             any        `json:"value,omitempty"`
	Formula           string     `json:"formula,omitempty"`
	SourceAttributeID string     `json:"sourceAttributeId,omitempty"`
	Order             int        `json:"order"`
}

var (
	ErrUnknownOperator   = errors.New("unknown operator")
	ErrUnknownConnector  = errors.New("unknown logical connector")
	ErrUnknownActionKind = errors.New("unknown action kind")
	ErrFormula           = errors.New("formula evaluation error")
	ErrMissingSource     = errors.New("source attribute missing")
	ErrInvalidAction     = errors.New("invalid action")
)

// ItemError reports the failure of a single condition or action. Kind is
// "condition" or "action"; Index is the position after sorting by Order.
type ItemError struct {
	Kind  string
	Index int
	Order int
	Err   error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("%s[%d] (order=%d): %v", e.Kind, e.Index, e.Order, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

func sortedConditions(in []Condition) []Condition {
	out := append([]Condition(nil), in...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

func sortedActions(in []Action) []Action {
	out := append([]Action(nil), in...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}
