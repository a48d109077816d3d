package rules

import (
	"errors"
	"testing"
)

func TestEvaluateEmptyIsTrue(t *testing.T) {
	t.Parallel()
	if !Evaluate(nil, Record{}) {
		t.Fatal("empty condition list must be true")
	}
}

func TestEvaluateLeftToRightFold(t *testing.T) {
	t.Parallel()
	// [A, AND B, OR C] => (A && B) || C
	cond := func(attr string, order int, conn Connector) Condition {
		return Condition{AttributeID: attr, Operator: Equals, Value: true, Connector: conn, Order: order}
	}
	list := []Condition{cond("c", 2, Or), cond("a", 0, ""), cond("b", 1, And)}
	for _, a := range []bool{false, true} {
		for _, b := range []bool{false, true} {
			for _, c := range []bool{false, true} {
				rec := Record{"a": a, "b": b, "c": c}
				want := (a && b) || c
				if got := Evaluate(list, rec); got != want {
					t.Fatalf("a=%v b=%v c=%v: got %v want %v", a, b, c, got, want)
				}
			}
		}
	}
}

func TestEvaluateOperators(t *testing.T) {
	t.Parallel()
	rec := Record{
		"status": "open",
		"amount": 42,
		"score":  "7.5",
		"title":  "Quarterly report",
		"tags":   []any{"red", "blue"},
		"blank":  "  ",
		"due":    "2024-03-01T00:00:00Z",
	}
	tests := []struct {
		name string
		c    Condition
		want bool
	}{
		{name: "equals string", c: Condition{AttributeID: "status", Operator: Equals, Value: "open"}, want: true},
		{name: "equals number across types", c: Condition{AttributeID: "amount", Operator: Equals, Value: "42"}, want: true},
		{name: "not equals", c: Condition{AttributeID: "status", Operator: NotEquals, Value: "closed"}, want: true},
		{name: "greater numeric", c: Condition{AttributeID: "amount", Operator: GreaterThan, Value: 10}, want: true},
		{name: "greater numeric string", c: Condition{AttributeID: "score", Operator: GreaterThan, Value: 10}, want: false},
		{name: "less numeric string", c: Condition{AttributeID: "score", Operator: LessThan, Value: 10}, want: true},
		{name: "less dates", c: Condition{AttributeID: "due", Operator: LessThan, Value: "2024-04-01"}, want: true},
		{name: "contains substring", c: Condition{AttributeID: "title", Operator: Contains, Value: "report"}, want: true},
		{name: "contains list member", c: Condition{AttributeID: "tags", Operator: Contains, Value: "blue"}, want: true},
		{name: "contains missing", c: Condition{AttributeID: "nope", Operator: Contains, Value: "x"}, want: false},
		{name: "contains empty needle", c: Condition{AttributeID: "title", Operator: Contains, Value: ""}, want: false},
		{name: "contains nil needle", c: Condition{AttributeID: "title", Operator: Contains}, want: false},
		{name: "is empty blank", c: Condition{AttributeID: "blank", Operator: IsEmpty}, want: true},
		{name: "is empty missing", c: Condition{AttributeID: "nope", Operator: IsEmpty}, want: true},
		{name: "is not empty", c: Condition{AttributeID: "tags", Operator: IsNotEmpty}, want: true},
		{name: "greater than missing", c: Condition{AttributeID: "nope", Operator: GreaterThan, Value: 0}, want: false},
		{name: "lowercase operator", c: Condition{AttributeID: "status", Operator: "equals", Value: "open"}, want: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, errs := EvaluateDetailed([]Condition{tt.c}, rec)
			if len(errs) != 0 {
				t.Fatalf("unexpected errors: %v", errs)
			}
			if got != tt.want {
				t.Fatalf("got %v want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluateUnknownOperatorIsItemFailure(t *testing.T) {
	t.Parallel()
	list := []Condition{
		{AttributeID: "x", Operator: "MATCHES_REGEX", Value: "a.*", Order: 0},
		{AttributeID: "y", Operator: Equals, Value: 1, Connector: Or, Order: 1},
	}
	got, errs := EvaluateDetailed(list, Record{"x": "abc", "y": 1})
	if !got {
		t.Fatal("OR with a true item should still be true")
	}
	if len(errs) != 1 || !errors.Is(errs[0], ErrUnknownOperator) {
		t.Fatalf("errs = %v, want one ErrUnknownOperator", errs)
	}
	var ie *ItemError
	if !errors.As(errs[0], &ie) || ie.Index != 0 {
		t.Fatalf("expected ItemError at index 0, got %v", errs[0])
	}
}
