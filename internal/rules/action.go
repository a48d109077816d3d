package rules

import (
	"fmt"
	"reflect"
	"strings"
)

// FormulaEvaluator computes a CALCULATE action's value against the current
// working record.
type FormulaEvaluator interface {
	Eval(formula string, rec Record) (any, error)
}

// Result is the outcome of running an action list.
type Result struct {
	// Updated is the full attribute map after all actions.
	Updated Record
	// Changed lists attribute ids whose value differs from the input, in
	// first-write order.
	Changed  []string
	Attempts int
	Applied  int
	Failures []*ItemError
}

// AllFailed reports whether at least one action ran and none succeeded.
func (r Result) AllFailed() bool { return r.Attempts > 0 && r.Applied == 0 }

type Executor struct {
	formula FormulaEvaluator
}

// NewExecutor returns an executor using f for CALCULATE actions. A nil f
// uses the built-in arithmetic evaluator.
func NewExecutor(f FormulaEvaluator) *Executor {
	if f == nil {
		f = NewExprEvaluator()
	}
	return &Executor{formula: f}
}

// Execute applies actions in Order to a copy of rec. The input is never
// mutated.
func (e *Executor) Execute(actions []Action, rec Record) Result {
	acc := rec.Clone()
	res := Result{}
	var written []string
	for i, a := range sortedActions(actions) {
		res.Attempts++
		next, err := e.apply(acc, a)
		if err != nil {
			res.Failures = append(res.Failures, &ItemError{Kind: "action", Index: i, Order: a.Order, Err: err})
			continue
		}
		acc = next
		res.Applied++
		written = append(written, a.TargetAttributeID)
	}
	res.Updated = acc

	seen := map[string]bool{}
	for _, id := range written {
		if seen[id] {
			continue
		}
		seen[id] = true
		old, had := rec[id]
		if !had || !reflect.DeepEqual(old, acc[id]) {
			res.Changed = append(res.Changed, id)
		}
	}
	return res
}

func (e *Executor) apply(acc Record, a Action) (Record, error) {
	if strings.TrimSpace(a.TargetAttributeID) == "" {
		return nil, fmt.Errorf("%w: target attribute required", ErrInvalidAction)
	}
	switch ActionKind(strings.ToUpper(strings.TrimSpace(string(a.Kind)))) {
	case SetLiteral:
		return acc.with(a.TargetAttributeID, a.Value), nil

	case CopyFrom:
		v, ok := acc[a.SourceAttributeID]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingSource, a.SourceAttributeID)
		}
		return acc.with(a.TargetAttributeID, v), nil

	case Calculate:
		if e.formula == nil {
			return nil, fmt.Errorf("%w: no evaluator configured", ErrFormula)
		}
		v, err := e.formula.Eval(a.Formula, acc)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFormula, err)
		}
		return acc.with(a.TargetAttributeID, v), nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownActionKind, a.Kind)
}
