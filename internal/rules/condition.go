package rules

import (
	"fmt"
	"strings"
)

// Evaluate folds conditions left to right against rec. An empty list is true.
func Evaluate(conditions []Condition, rec Record) bool {
	ok, _ := EvaluateDetailed(conditions, rec)
	return ok
}

// EvaluateDetailed is Evaluate plus the per-item errors. A failing item
// evaluates to false and the fold continues.
func EvaluateDetailed(conditions []Condition, rec Record) (bool, []error) {
	if len(conditions) == 0 {
		return true, nil
	}
	var errs []error
	var result bool
	for i, c := range sortedConditions(conditions) {
		v, err := evalCondition(c, rec)
		if err != nil {
			errs = append(errs, &ItemError{Kind: "condition", Index: i, Order: c.Order, Err: err})
		}
		if i == 0 {
			result = v
			continue
		}
		conn, err := parseConnector(c.Connector)
		if err != nil {
			errs = append(errs, &ItemError{Kind: "condition", Index: i, Order: c.Order, Err: err})
		}
		if conn == Or {
			result = result || v
		} else {
			result = result && v
		}
	}
	return result, errs
}

func evalCondition(c Condition, rec Record) (bool, error) {
	got := rec[c.AttributeID] // missing => nil => empty
	switch Operator(strings.ToUpper(strings.TrimSpace(string(c.Operator)))) {
	case Equals:
		return equal(got, c.Value), nil
	case NotEquals:
		return !equal(got, c.Value), nil
	case GreaterThan:
		n, ok := compare(got, c.Value)
		return ok && n > 0, nil
	case LessThan:
		n, ok := compare(got, c.Value)
		return ok && n < 0, nil
	case Contains:
		return contains(got, c.Value), nil
	case IsEmpty:
		return empty(got), nil
	case IsNotEmpty:
		return !empty(got), nil
	}
	return false, fmt.Errorf("%w %q", ErrUnknownOperator, c.Operator)
}

// parseConnector defaults a blank connector to AND. Unknown connectors are
// reported and treated as AND.
func parseConnector(c Connector) (Connector, error) {
	switch Connector(strings.ToUpper(strings.TrimSpace(string(c)))) {
	case "", And:
		return And, nil
	case Or:
		return Or, nil
	}
	return And, fmt.Errorf("%w %q", ErrUnknownConnector, c)
}
