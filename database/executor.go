package database

import (
	"context"
	"database/sql"
	"strings"

	"github.com/joe-ervin05/litetable/tools"
)

// executor implements Executor over a runner.
type executor struct {
	runner  runner
	retries int
}

func (e executor) Run(ctx context.Context, query string, args ...any) (Result, error) {
	logStatement(query, args)

	var res sql.Result
	err := execWithRetry(ctx, e.retries, func() error {
		var err error
		res, err = e.runner.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		return Result{}, wrapEngineErr(err, query, args)
	}
	return toResult(res), nil
}

func (e executor) Get(ctx context.Context, query string, args ...any) (Row, error) {
	var first Row
	_, err := e.Each(ctx, query, args, func(r Row) error {
		first = r
		return ErrStop
	})
	if err != nil {
		return nil, err
	}
	return first, nil
}

func (e executor) All(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows := []Row{}
	_, err := e.Each(ctx, query, args, func(r Row) error {
		rows = append(rows, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (e executor) Each(ctx context.Context, query string, args []any, fn func(Row) error) (int, error) {
	logStatement(query, args)

	rows, err := e.runner.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, wrapEngineErr(err, query, args)
	}
	n, err := scanRows(rows, fn)
	if err != nil {
		return n, wrapEngineErr(err, query, args)
	}
	return n, nil
}

func (e executor) Exec(ctx context.Context, script string) error {
	logStatement(script, nil)

	err := execWithRetry(ctx, e.retries, func() error {
		_, err := e.runner.ExecContext(ctx, script)
		return err
	})
	return wrapEngineErr(err, script, nil)
}

func (e executor) Prepare(ctx context.Context, query string) (*Stmt, error) {
	logStatement(query, nil)

	var stmt *sql.Stmt
	err := execWithRetry(ctx, e.retries, func() error {
		var err error
		stmt, err = e.runner.PrepareContext(ctx, query)
		return err
	})
	if err != nil {
		return nil, wrapEngineErr(err, query, nil)
	}
	return newStmt(query, stmt, e.retries), nil
}

func toResult(res sql.Result) Result {
	var out Result
	// Drivers that cannot report these return an error; zero is the right answer then.
	out.LastInsertID, _ = res.LastInsertId()
	out.Changes, _ = res.RowsAffected()
	return out
}

func logStatement(query string, args []any) {
	tools.Logger.Debug("sql", "sql", query, "params", formatParams(args))
}

// scanRows visits every row of rows and closes it. ErrStop returned by fn
// ends the iteration without an error.
func scanRows(rows *sql.Rows, fn func(Row) error) (int, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return 0, err
	}
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return 0, err
	}
	textual := make([]bool, len(cols))
	for i, ct := range colTypes {
		textual[i] = isTextDecl(ct.DatabaseTypeName())
	}

	n := 0
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for rows.Next() {
		for i := range vals {
			vals[i] = nil
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return n, err
		}

		row := make(Row, len(cols))
		for i, col := range cols {
			v := vals[i]
			if b, ok := v.([]byte); ok && textual[i] {
				v = string(b)
			}
			row[col] = v
		}
		n++

		if err := fn(row); err != nil {
			if err == ErrStop {
				return n, nil
			}
			return n, err
		}
	}
	return n, rows.Err()
}

// isTextDecl applies SQLite's affinity rule for TEXT.
func isTextDecl(decl string) bool {
	decl = strings.ToUpper(decl)
	return strings.Contains(decl, "CHAR") || strings.Contains(decl, "CLOB") || strings.Contains(decl, "TEXT")
}
