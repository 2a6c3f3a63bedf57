// Package query compiles Mongo-style filter documents into parameterised
// SQLite statements and runs them through a database.Executor.
package query

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/joe-ervin05/litetable/database"
	"github.com/joe-ervin05/litetable/tools"
)

// Query is an immutable statement builder. Every clause method returns a
// new Query; the receiver is never modified, so a partially built Query can
// be reused as a template. Clauses are validated when a terminal method runs.
type Query struct {
	db      database.Executor
	columns []string
	table   string
	filter  M
	groupBy []string
	orderBy []any
	limit   *int
	offset  *int
	err     error
}

// New returns an empty Query that runs on db.
func New(db database.Executor) Query {
	return Query{db: db}
}

// Select sets the result columns. No columns means "*".
func (q Query) Select(columns ...string) Query {
	q.columns = slices.Clone(columns)
	return q
}

// From sets the table.
func (q Query) From(table string) Query {
	q.table = table
	return q
}

// Find merges filter into the accumulated filter. A key already present
// is overwritten in place.
func (q Query) Find(filter any) Query {
	doc, ok := asDoc(filter)
	if !ok {
		if q.err == nil {
			q.err = tools.ExpressionSyntaxErr(filter)
		}
		return q
	}
	if len(doc) == 0 && q.err == nil {
		q.err = fmt.Errorf("%w: filter must have at least one key", tools.ErrInvalidExpressionSyntax)
	}
	q.filter = q.filter.Merge(doc)
	return q
}

// GroupBy appends grouping columns.
func (q Query) GroupBy(columns ...string) Query {
	q.groupBy = append(slices.Clip(q.groupBy), columns...)
	return q
}

// OrderBy appends ordering terms. A term is a column name (ascending) or a
// single-key document {column: direction} where direction is one of
// asc, ascending, 1, desc, descending or -1.
func (q Query) OrderBy(terms ...any) Query {
	q.orderBy = append(slices.Clip(q.orderBy), terms...)
	return q
}

// Limit caps the number of rows. n must be at least 1.
func (q Query) Limit(n int) Query {
	q.limit = &n
	return q
}

// Offset skips n rows. n must not be negative.
func (q Query) Offset(n int) Query {
	q.offset = &n
	return q
}

type statementKind int

const (
	kindSelect statementKind = iota
	kindCount
	kindRemove
	kindUpdate
)

func (k statementKind) String() string {
	switch k {
	case kindCount:
		return "count"
	case kindRemove:
		return "remove"
	case kindUpdate:
		return "update"
	}
	return "select"
}

// compiled is the validated form of a Query for one statement kind.
type compiled struct {
	columns []string
	from    string
	where   string
	groupBy []string
	orderBy []string
	limit   *int
	offset  *int
	binder  *Binder
}

// compile validates q for kind and compiles its WHERE clause on b.
func (q Query) compile(kind statementKind, b *Binder) (*compiled, error) {
	if q.err != nil {
		return nil, q.err
	}
	if err := tools.ValidateTableName(q.table); err != nil {
		return nil, err
	}

	switch kind {
	case kindRemove, kindUpdate:
		if len(q.groupBy) > 0 {
			return nil, tools.QueryShapeErr(kind.String(), "groupBy")
		}
		fallthrough
	case kindCount:
		switch {
		case q.limit != nil:
			return nil, tools.QueryShapeErr(kind.String(), "limit")
		case q.offset != nil:
			return nil, tools.QueryShapeErr(kind.String(), "offset")
		case len(q.orderBy) > 0:
			return nil, tools.QueryShapeErr(kind.String(), "orderBy")
		}
	}

	if q.limit != nil && *q.limit <= 0 {
		return nil, fmt.Errorf("%w: got %d", tools.ErrInvalidLimit, *q.limit)
	}
	if q.offset != nil && *q.offset < 0 {
		return nil, fmt.Errorf("%w: got %d", tools.ErrInvalidOffset, *q.offset)
	}

	c := &compiled{
		from:   q.table,
		limit:  q.limit,
		offset: q.offset,
		binder: b,
	}

	for _, col := range q.columns {
		if err := validateSelectColumn(col); err != nil {
			return nil, err
		}
	}
	c.columns = q.columns

	for _, col := range q.groupBy {
		if err := validateField(col); err != nil {
			return nil, err
		}
	}
	c.groupBy = q.groupBy

	for _, term := range q.orderBy {
		terms, err := orderTerm(term)
		if err != nil {
			return nil, err
		}
		c.orderBy = append(c.orderBy, terms)
	}

	if len(q.filter) > 0 {
		where, err := CompileFilter(q.filter, b)
		if err != nil {
			return nil, err
		}
		c.where = where
	}

	return c, nil
}

var aggregates = map[string]bool{"COUNT": true, "SUM": true, "AVG": true, "MIN": true, "MAX": true}

// validateSelectColumn accepts "*", a column name, or an aggregate over a
// column or "*" such as COUNT(*), each optionally followed by "AS alias".
func validateSelectColumn(col string) error {
	expr, alias, hasAlias := strings.Cut(col, " AS ")
	if hasAlias {
		if err := validateField(strings.TrimSpace(alias)); err != nil {
			return err
		}
		expr = strings.TrimSpace(expr)
	}

	fn, rest, isCall := strings.Cut(expr, "(")
	if !isCall {
		return tools.ValidateColumnName(expr)
	}
	arg, ok := strings.CutSuffix(rest, ")")
	if !ok || !aggregates[strings.ToUpper(fn)] {
		return fmt.Errorf("invalid column name %q: %w", col, tools.ErrInvalidCharacter)
	}
	return tools.ValidateColumnName(arg)
}

// orderTerm renders one OrderBy argument.
func orderTerm(term any) (string, error) {
	if col, ok := term.(string); ok {
		if err := validateField(col); err != nil {
			return "", err
		}
		return col + " ASC", nil
	}

	doc, ok := asDoc(term)
	if !ok || len(doc) != 1 {
		return "", fmt.Errorf("%w: %v", tools.ErrInvalidOrderDirection, term)
	}
	col, dir := doc[0].Key, doc[0].Value
	if err := validateField(col); err != nil {
		return "", err
	}

	switch d := dir.(type) {
	case string:
		switch strings.ToLower(d) {
		case "asc", "ascending", "1":
			return col + " ASC", nil
		case "desc", "descending", "-1":
			return col + " DESC", nil
		}
	default:
		switch numericDirection(dir) {
		case 1:
			return col + " ASC", nil
		case -1:
			return col + " DESC", nil
		}
	}
	return "", fmt.Errorf("%w: %v for column %s", tools.ErrInvalidOrderDirection, dir, col)
}

// numericDirection returns the value of any integer or float kind, or 0.
func numericDirection(v any) float64 {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	}
	return 0
}

func (c *compiled) selectSQL() string {
	var sb strings.Builder

	sb.WriteString("SELECT ")
	if len(c.columns) == 0 {
		sb.WriteString("*")
	} else {
		sb.WriteString(strings.Join(c.columns, ", "))
	}
	sb.WriteString(" FROM ")
	sb.WriteString(c.from)
	if c.where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(c.where)
	}
	if len(c.groupBy) > 0 {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(c.groupBy, ", "))
	}
	if len(c.orderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(c.orderBy, ", "))
	}
	if c.limit != nil {
		sb.WriteString(" LIMIT ")
		sb.WriteString(strconv.Itoa(*c.limit))
	} else if c.offset != nil {
		// SQLite only accepts OFFSET after a LIMIT.
		sb.WriteString(" LIMIT -1")
	}
	if c.offset != nil {
		sb.WriteString(" OFFSET ")
		sb.WriteString(strconv.Itoa(*c.offset))
	}

	return sb.String()
}

func (c *compiled) countSQL() string {
	if len(c.groupBy) > 0 {
		inner := *c
		inner.columns = c.groupBy
		return "SELECT COUNT(*) AS count FROM (" + inner.selectSQL() + ")"
	}
	sql := "SELECT COUNT(*) AS count FROM " + c.from
	if c.where != "" {
		sql += " WHERE " + c.where
	}
	return sql
}

func (c *compiled) deleteSQL() string {
	sql := "DELETE FROM " + c.from
	if c.where != "" {
		sql += " WHERE " + c.where
	}
	return sql
}

// SQL returns the SELECT statement and its parameters without running it.
func (q Query) SQL() (string, map[string]any, error) {
	b := NewBinder()
	c, err := q.compile(kindSelect, b)
	if err != nil {
		return "", nil, err
	}
	return c.selectSQL(), b.Params(), nil
}

// All returns every matching row.
func (q Query) All(ctx context.Context) ([]database.Row, error) {
	b := NewBinder()
	c, err := q.compile(kindSelect, b)
	if err != nil {
		return nil, err
	}
	return q.db.All(ctx, c.selectSQL(), b.Args()...)
}

// Get returns the first matching row, or nil when nothing matches.
func (q Query) Get(ctx context.Context) (database.Row, error) {
	b := NewBinder()
	c, err := q.compile(kindSelect, b)
	if err != nil {
		return nil, err
	}
	return q.db.Get(ctx, c.selectSQL(), b.Args()...)
}

// Each calls fn for every matching row and returns the number of rows seen.
func (q Query) Each(ctx context.Context, fn func(database.Row) error) (int, error) {
	b := NewBinder()
	c, err := q.compile(kindSelect, b)
	if err != nil {
		return 0, err
	}
	return q.db.Each(ctx, c.selectSQL(), b.Args(), fn)
}

// Count returns the number of matching rows, or the number of groups when
// the query is grouped.
func (q Query) Count(ctx context.Context) (int64, error) {
	b := NewBinder()
	c, err := q.compile(kindCount, b)
	if err != nil {
		return 0, err
	}
	row, err := q.db.Get(ctx, c.countSQL(), b.Args()...)
	if err != nil {
		return 0, err
	}
	n, _ := row["count"].(int64)
	return n, nil
}

// Remove deletes the matching rows and returns how many were deleted.
// Without a filter every row of the table is deleted.
func (q Query) Remove(ctx context.Context) (int64, error) {
	b := NewBinder()
	c, err := q.compile(kindRemove, b)
	if err != nil {
		return 0, err
	}
	res, err := q.db.Run(ctx, c.deleteSQL(), b.Args()...)
	if err != nil {
		return 0, err
	}
	return res.Changes, nil
}

// Update sets values on the matching rows and returns how many changed.
// SET placeholders are allocated before the WHERE clause's.
func (q Query) Update(ctx context.Context, values any) (int64, error) {
	sql, b, err := q.updateSQL(values)
	if err != nil {
		return 0, err
	}
	res, err := q.db.Run(ctx, sql, b.Args()...)
	if err != nil {
		return 0, err
	}
	return res.Changes, nil
}

func (q Query) updateSQL(values any) (string, *Binder, error) {
	doc, ok := asDoc(values)
	if !ok || len(doc) == 0 {
		return "", nil, fmt.Errorf("%w: update requires at least one value", tools.ErrInvalidQueryShape)
	}

	b := NewBinder()
	sets := make([]string, len(doc))
	for i, kv := range doc {
		if err := validateField(kv.Key); err != nil {
			return "", nil, err
		}
		ph, err := b.Add(kv.Value)
		if err != nil {
			return "", nil, fmt.Errorf("%s: %w", kv.Key, err)
		}
		sets[i] = kv.Key + " = " + ph
	}

	c, err := q.compile(kindUpdate, b)
	if err != nil {
		return "", nil, err
	}

	sql := "UPDATE " + c.from + " SET " + strings.Join(sets, ", ")
	if c.where != "" {
		sql += " WHERE " + c.where
	}
	return sql, b, nil
}
