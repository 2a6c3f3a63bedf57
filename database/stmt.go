package database

import (
	"context"
	"database/sql"
	"sync"
)

// Stmt is a prepared statement. It must be released with Finalize, which is
// safe to call any number of times and closes the statement exactly once.
type Stmt struct {
	SQL string

	stmt    *sql.Stmt
	retries int

	once     sync.Once
	closeErr error
	closed   bool
	mu       sync.Mutex
}

func newStmt(query string, stmt *sql.Stmt, retries int) *Stmt {
	return &Stmt{SQL: query, stmt: stmt, retries: retries}
}

// Run executes the statement as a write.
func (s *Stmt) Run(ctx context.Context, args ...any) (Result, error) {
	logStatement(s.SQL, args)

	var res sql.Result
	err := execWithRetry(ctx, s.retries, func() error {
		var err error
		res, err = s.stmt.ExecContext(ctx, args...)
		return err
	})
	if err != nil {
		return Result{}, wrapEngineErr(err, s.SQL, args)
	}
	return toResult(res), nil
}

// Each calls fn for every row the statement returns.
func (s *Stmt) Each(ctx context.Context, args []any, fn func(Row) error) (int, error) {
	logStatement(s.SQL, args)

	rows, err := s.stmt.QueryContext(ctx, args...)
	if err != nil {
		return 0, wrapEngineErr(err, s.SQL, args)
	}
	n, err := scanRows(rows, fn)
	if err != nil {
		return n, wrapEngineErr(err, s.SQL, args)
	}
	return n, nil
}

// All returns every row the statement produces.
func (s *Stmt) All(ctx context.Context, args ...any) ([]Row, error) {
	rows := []Row{}
	_, err := s.Each(ctx, args, func(r Row) error {
		rows = append(rows, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Finalize releases the statement.
func (s *Stmt) Finalize() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.closeErr = s.stmt.Close()
	})
	return s.closeErr
}

// Finalized reports whether Finalize has been called.
func (s *Stmt) Finalized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
