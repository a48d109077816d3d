package rules

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"
	gocache "github.com/patrickmn/go-cache"
)

// RecordRef names the identifier bound to the whole record, so attribute ids
// that are not valid identifiers can be read as $["attr-id"].
const RecordRef = "$"

// ExprEvaluator evaluates arithmetic formulas: attribute references, number
// and string literals, + - * / and unary minus, with parentheses. "+" joins
// strings when either side is a string. Numeric results are float64.
//
// Parsed formulas are cached.
type ExprEvaluator struct {
	compiled *gocache.Cache
}

func NewExprEvaluator() *ExprEvaluator {
	return &ExprEvaluator{compiled: gocache.New(30*time.Minute, 10*time.Minute)}
}

func (x *ExprEvaluator) Eval(formula string, rec Record) (any, error) {
	node, err := x.parse(formula)
	if err != nil {
		return nil, err
	}
	return evalNode(node, rec)
}

// Check parses formula without evaluating it.
func (x *ExprEvaluator) Check(formula string) error {
	_, err := x.parse(formula)
	return err
}

func (x *ExprEvaluator) parse(formula string) (ast.Expression, error) {
	formula = strings.TrimSpace(formula)
	if formula == "" {
		return nil, errors.New("empty formula")
	}
	if x.compiled != nil {
		if v, ok := x.compiled.Get(formula); ok {
			return v.(ast.Expression), nil
		}
	}
	program, err := parser.ParseFile(nil, "", "("+formula+")", 0)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", formula, err)
	}
	if len(program.Body) != 1 {
		return nil, fmt.Errorf("parse %q: expected a single expression", formula)
	}
	stmt, ok := program.Body[0].(*ast.ExpressionStatement)
	if !ok {
		return nil, fmt.Errorf("parse %q: expected an expression", formula)
	}
	if x.compiled != nil {
		x.compiled.SetDefault(formula, stmt.Expression)
	}
	return stmt.Expression, nil
}

// recordValue marks the value of the $ identifier.
type recordValue Record

func evalNode(node ast.Expression, rec Record) (any, error) {
	switch n := node.(type) {
	case *ast.NumberLiteral:
		f, ok := toNumber(n.Value)
		if !ok {
			return nil, fmt.Errorf("invalid number %q", n.Literal)
		}
		return f, nil

	case *ast.StringLiteral:
		return n.Value.String(), nil

	case *ast.Identifier:
		name := n.Name.String()
		if name == RecordRef {
			return recordValue(rec), nil
		}
		return lookup(rec, name)

	case *ast.BracketExpression:
		return member(n.Left, n.Member, rec)

	case *ast.DotExpression:
		return member(n.Left, &n.Identifier, rec)

	case *ast.UnaryExpression:
		v, err := evalNode(n.Operand, rec)
		if err != nil {
			return nil, err
		}
		f, ok := toNumber(v)
		if !ok {
			return nil, fmt.Errorf("operand of unary %s is not a number: %v", n.Operator.String(), v)
		}
		switch n.Operator.String() {
		case "-":
			return -f, nil
		case "+":
			return f, nil
		}
		return nil, fmt.Errorf("unsupported unary operator %s", n.Operator.String())

	case *ast.BinaryExpression:
		return binary(n, rec)
	}
	return nil, fmt.Errorf("unsupported expression %T", node)
}

func member(left, key ast.Expression, rec Record) (any, error) {
	base, err := evalNode(left, rec)
	if err != nil {
		return nil, err
	}
	r, ok := base.(recordValue)
	if !ok {
		return nil, errors.New("member access is only supported on $")
	}
	var name string
	switch k := key.(type) {
	case *ast.StringLiteral:
		name = k.Value.String()
	case *ast.Identifier:
		name = k.Name.String()
	default:
		return nil, fmt.Errorf("attribute key must be a string, got %T", key)
	}
	return lookup(Record(r), name)
}

func lookup(rec Record, id string) (any, error) {
	v, ok := rec[id]
	if !ok {
		return nil, fmt.Errorf("unknown attribute %q", id)
	}
	return v, nil
}

func binary(n *ast.BinaryExpression, rec Record) (any, error) {
	l, err := evalNode(n.Left, rec)
	if err != nil {
		return nil, err
	}
	r, err := evalNode(n.Right, rec)
	if err != nil {
		return nil, err
	}
	op := n.Operator.String()
	if op == "+" {
		_, ls := l.(string)
		_, rs := r.(string)
		if ls || rs {
			return toString(l) + toString(r), nil
		}
	}
	a, ok := toNumber(l)
	if !ok {
		return nil, fmt.Errorf("left operand of %s is not a number: %v", op, l)
	}
	b, ok := toNumber(r)
	if !ok {
		return nil, fmt.Errorf("right operand of %s is not a number: %v", op, r)
	}
	switch op {
	case "+":
		return a + b, nil
	case "-":
		return a - b, nil
	case "*":
		return a * b, nil
	case "/":
		if b == 0 {
			return nil, errors.New("division by zero")
		}
		return a / b, nil
	}
	return nil, fmt.Errorf("unsupported operator %s", op)
}
