package query

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/joe-ervin05/litetable/database"
	"github.com/joe-ervin05/litetable/tools"
)

// WriterOptions configures a RowWriter.
type WriterOptions struct {
	// Replace writes with INSERT OR REPLACE instead of INSERT.
	Replace bool
}

// RowWriter inserts batches of rows into one table. Each Write call runs in
// its own transaction. The INSERT statement is built from the first row's
// columns and reused until Close; every later row must have the same columns.
type RowWriter struct {
	db    *database.DB
	table string
	opts  WriterOptions

	mu      sync.Mutex
	columns []string
	stmt    *database.Stmt
	written int64
}

// NewRowWriter returns a writer for table.
func NewRowWriter(db *database.DB, table string, opts WriterOptions) *RowWriter {
	return &RowWriter{db: db, table: table, opts: opts}
}

// Write inserts rows in a single transaction and returns how many were written.
// If any row fails, none of the batch is kept.
func (w *RowWriter) Write(ctx context.Context, rows ...M) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(rows) == 0 {
		return 0, nil
	}
	if w.stmt == nil {
		if err := w.prepare(ctx, rows[0]); err != nil {
			return 0, err
		}
	}

	batch := make([][]any, len(rows))
	for i, row := range rows {
		args, err := w.args(row)
		if err != nil {
			return 0, fmt.Errorf("row %d: %w", i, err)
		}
		batch[i] = args
	}

	err := w.db.Transaction(ctx, func(tx *database.Tx) error {
		stmt := tx.Stmt(ctx, w.stmt)
		for _, args := range batch {
			if _, err := stmt.Run(ctx, args...); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	w.written += int64(len(rows))
	tools.Logger.Debug("rows written", "table", w.table, "batch", len(rows), "total", w.written)
	return len(rows), nil
}

// Columns returns the column set fixed by the first row, or nil before the
// first Write.
func (w *RowWriter) Columns() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.columns
}

// Close releases the prepared statement.
func (w *RowWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stmt == nil {
		return nil
	}
	return w.stmt.Finalize()
}

func (w *RowWriter) prepare(ctx context.Context, first M) error {
	if err := tools.ValidateTableName(w.table); err != nil {
		return err
	}
	if len(first) == 0 {
		return fmt.Errorf("%w: row has no columns", tools.ErrRowShapeMismatch)
	}

	columns := first.Keys()
	for _, col := range columns {
		if err := validateField(col); err != nil {
			return err
		}
	}

	verb := "INSERT"
	if w.opts.Replace {
		verb = "INSERT OR REPLACE"
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	sql := fmt.Sprintf("%s INTO %s (%s) VALUES (%s)", verb, w.table, strings.Join(columns, ", "), placeholders)

	stmt, err := w.db.Prepare(ctx, sql)
	if err != nil {
		return err
	}
	w.columns = columns
	w.stmt = stmt
	return nil
}

// args orders row's values by the writer's columns.
func (w *RowWriter) args(row M) ([]any, error) {
	if len(row) != len(w.columns) {
		return nil, fmt.Errorf("%w: got columns %v, want %v", tools.ErrRowShapeMismatch, row.Keys(), w.columns)
	}
	args := make([]any, len(w.columns))
	for i, col := range w.columns {
		v, ok := row.Get(col)
		if !ok {
			return nil, fmt.Errorf("%w: got columns %v, want %v", tools.ErrRowShapeMismatch, row.Keys(), w.columns)
		}
		converted, err := ConvertValue(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", col, err)
		}
		args[i] = converted
	}
	return args, nil
}
