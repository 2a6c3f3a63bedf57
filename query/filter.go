package query

import (
	"fmt"
	"strings"
)

// Compile renders an expression as SQL, allocating its operands on b.
func Compile(e Expr, b *Binder) (string, error) {
	switch e := e.(type) {
	case Comparison:
		ph, err := b.Add(e.Right.V)
		if err != nil {
			return "", fmt.Errorf("%s: %w", e.Field, err)
		}
		op := e.Op
		if op == "=" && b.values[ph] == nil {
			op = "IS"
		}
		return "(" + e.Field + " " + op + " " + ph + ")", nil

	case Conjunction:
		parts, err := compileAll(e, b)
		if err != nil {
			return "", err
		}
		return strings.Join(parts, " AND "), nil

	case Logical:
		parts, err := compileAll(e.Terms, b)
		if err != nil {
			return "", err
		}
		return "(" + strings.Join(parts, " "+e.Op+" ") + ")", nil
	}

	return "", fmt.Errorf("unknown expression %T", e)
}

func compileAll(terms []Expr, b *Binder) ([]string, error) {
	parts := make([]string, len(terms))
	for i, t := range terms {
		sql, err := Compile(t, b)
		if err != nil {
			return nil, err
		}
		parts[i] = sql
	}
	return parts, nil
}

// CompileFilter parses and compiles a filter document in one step.
func CompileFilter(filter any, b *Binder) (string, error) {
	e, err := Parse(filter)
	if err != nil {
		return "", err
	}
	return Compile(e, b)
}
