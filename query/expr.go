package query

import (
	"fmt"
	"strings"

	"github.com/joe-ervin05/litetable/tools"
)

// Expr is a parsed filter expression: a Comparison, a Conjunction of
// expressions, or a Logical composition.
type Expr interface {
	expr()
}

// Value is a bound operand.
type Value struct {
	V any
}

// Comparison is `(Field Op value)`.
type Comparison struct {
	Field string
	Op    string
	Right Value
}

// Conjunction is the implicit AND between the keys of one document.
type Conjunction []Expr

// Logical is an explicit $and / $or over a list of documents.
type Logical struct {
	Op    string // AND or OR
	Terms []Expr
}

func (Comparison) expr()  {}
func (Conjunction) expr() {}
func (Logical) expr()     {}

// Comparison operators. Keep in sync with tools.DescribeError's hint.
var binaryOps = map[string]string{
	"$eq": "=",
	"$gt": ">",
	"$lt": "<",
	"$ge": ">=",
	"$le": "<=",
}

var logicalOps = map[string]string{
	"$and": "AND",
	"$or":  "OR",
}

// Parse turns a filter document into an expression tree. filter may be an
// M, a map[string]any (read in sorted key order) or a []KV. An empty filter
// is rejected.
func Parse(filter any) (Expr, error) {
	doc, ok := asDoc(filter)
	if !ok {
		return nil, tools.ExpressionSyntaxErr(filter)
	}
	if len(doc) == 0 {
		return nil, fmt.Errorf("%w: filter must have at least one key", tools.ErrInvalidExpressionSyntax)
	}
	return parseDoc(doc)
}

func parseDoc(doc M) (Expr, error) {
	switch len(doc) {
	case 0:
		return nil, tools.ExpressionSyntaxErr(doc)
	case 1:
		return parsePair(doc[0])
	}

	terms := make(Conjunction, 0, len(doc))
	for _, kv := range doc {
		e, err := parsePair(kv)
		if err != nil {
			return nil, err
		}
		terms = append(terms, e)
	}
	return terms, nil
}

func parsePair(kv KV) (Expr, error) {
	left, right := kv.Key, kv.Value

	// {field: value}
	if v, ok := parseUnary(right); ok {
		if isOperator(left) {
			return nil, tools.ExpressionSyntaxErr(M{kv})
		}
		if err := validateField(left); err != nil {
			return nil, err
		}
		return Comparison{Field: left, Op: "=", Right: v}, nil
	}

	// {$and: [...]} / {$or: [...]}
	if op, ok := logicalOps[left]; ok {
		list, ok := asList(right)
		if !ok || len(list) == 0 {
			return nil, tools.ExpressionSyntaxErr(M{kv})
		}
		terms := make([]Expr, 0, len(list))
		for _, item := range list {
			doc, ok := asDoc(item)
			if !ok || len(doc) == 0 {
				return nil, tools.ExpressionSyntaxErr(item)
			}
			e, err := parseDoc(doc)
			if err != nil {
				return nil, err
			}
			terms = append(terms, e)
		}
		return Logical{Op: op, Terms: terms}, nil
	}

	// {field: {$op: value}}
	if inner, ok := asDoc(right); ok && len(inner) == 1 && !isOperator(left) {
		if op, ok := binaryOps[inner[0].Key]; ok {
			if v, ok := parseUnary(inner[0].Value); ok {
				if err := validateField(left); err != nil {
					return nil, err
				}
				return Comparison{Field: left, Op: op, Right: v}, nil
			}
		}
	}

	return nil, tools.ExpressionSyntaxErr(M{kv})
}

// parseUnary accepts anything that can stand alone as an operand: scalars,
// times, byte slices and nil. Documents, lists and $-prefixed strings are not
// operands. Values the binder cannot store are rejected when bound.
func parseUnary(v any) (Value, bool) {
	if s, ok := v.(string); ok {
		if isOperator(s) {
			return Value{}, false
		}
		return Value{V: s}, true
	}
	if _, ok := asDoc(v); ok {
		return Value{}, false
	}
	if _, ok := asList(v); ok {
		return Value{}, false
	}
	return Value{V: v}, true
}

func validateField(name string) error {
	if err := tools.ValidateIdentifier(name); err != nil {
		return fmt.Errorf("invalid column name %q: %w", name, err)
	}
	return nil
}

func isOperator(s string) bool {
	return strings.HasPrefix(s, "$")
}
