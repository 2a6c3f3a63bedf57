package database

import (
	"context"
	"database/sql"
)

// Row is one result row keyed by column name. SQL NULL is nil, TEXT is
// string, INTEGER is int64, REAL is float64 and BLOB is []byte.
type Row map[string]any

// Result is what a write statement reports back.
type Result struct {
	LastInsertID int64 `json:"lastInsertId"`
	Changes      int64 `json:"changes"`
}

// Executor is implemented by both *DB and *Tx.
// This allows query and schema code to work with either a direct connection or a transaction.
type Executor interface {
	// Run executes a single write statement.
	Run(ctx context.Context, query string, args ...any) (Result, error)
	// Get returns the first row, or nil when the query produced none.
	Get(ctx context.Context, query string, args ...any) (Row, error)
	// All returns every row.
	All(ctx context.Context, query string, args ...any) ([]Row, error)
	// Each calls fn per row and returns the number of rows visited.
	// A non-nil error from fn stops the iteration and is returned.
	Each(ctx context.Context, query string, args []any, fn func(Row) error) (int, error)
	// Exec runs a script of one or more statements without parameters.
	Exec(ctx context.Context, script string) error
	// Prepare compiles a statement for repeated use. The caller must Finalize it.
	Prepare(ctx context.Context, query string) (*Stmt, error)
}

// runner is the subset of *sql.DB and *sql.Tx used by the executor.
type runner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}
