package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// EngineError wraps a failure reported by the database engine with the
// statement and parameters that caused it.
type EngineError struct {
	SQL    string
	Params []any
	Err    error
}

func (e *EngineError) Error() string {
	if len(e.Params) == 0 {
		return fmt.Sprintf("%v\nSQL: %s", e.Err, e.SQL)
	}
	return fmt.Sprintf("%v\nSQL: %s\nparams: %s", e.Err, e.SQL, formatParams(e.Params))
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

func wrapEngineErr(err error, query string, args []any) error {
	if err == nil {
		return nil
	}
	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return err
	}
	return &EngineError{SQL: query, Params: args, Err: err}
}

func formatParams(args []any) string {
	parts := make([]string, len(args))
	for i, arg := range args {
		if named, ok := arg.(sql.NamedArg); ok {
			parts[i] = fmt.Sprintf("$%s=%#v", named.Name, named.Value)
			continue
		}
		parts[i] = fmt.Sprintf("%#v", arg)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// IsUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY
// constraint failure.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	// libsql reports constraint failures as plain text.
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
