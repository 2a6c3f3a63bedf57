// Package tools provides shared utilities for litetable: logging, the error
// taxonomy and identifier validation.
package tools

import (
	"errors"
	"fmt"
)

// Error codes for programmatic error handling.
// These codes are stable and are printed by the CLI.
const (
	CodeInvalidExpressionSyntax      = "INVALID_EXPRESSION_SYNTAX"
	CodeInvalidQueryShape            = "INVALID_QUERY_SHAPE"
	CodeInvalidOrderDirection        = "INVALID_ORDER_DIRECTION"
	CodeInvalidLimit                 = "INVALID_LIMIT"
	CodeInvalidOffset                = "INVALID_OFFSET"
	CodeInvalidDefaultValueType      = "INVALID_DEFAULT_VALUE_TYPE"
	CodeInvalidForeignKeyDescription = "INVALID_FOREIGN_KEY_DESCRIPTION"
	CodeUnknownIndexColumn           = "UNKNOWN_INDEX_COLUMN"
	CodeNoUniqueColumn               = "NO_UNIQUE_COLUMN"
	CodeInvalidParameterType         = "INVALID_PARAMETER_TYPE"
	CodeRowShapeMismatch             = "ROW_SHAPE_MISMATCH"
	CodeInvalidColumnType            = "INVALID_COLUMN_TYPE"
	CodeInvalidSchema                = "INVALID_SCHEMA"
	CodeInvalidIdentifier            = "INVALID_IDENTIFIER"
	CodeSchemaMismatch               = "SCHEMA_MISMATCH"
	CodeForeignKeysMustBeDisabled    = "FOREIGN_KEYS_MUST_BE_DISABLED"
	CodeTableNotFound                = "TABLE_NOT_FOUND"
	CodeColumnNotFound               = "COLUMN_NOT_FOUND"
	CodeUniqueViolation              = "UNIQUE_VIOLATION"
	CodeForeignKeyViolation          = "FOREIGN_KEY_VIOLATION"
	CodeNotNullViolation             = "NOT_NULL_VIOLATION"
	CodeDatabaseBusy                 = "DATABASE_BUSY"
	CodeInternalError                = "INTERNAL_ERROR"
)

// ErrorInfo is the structured description of an error.
// Code is a stable identifier.
// Message describes what went wrong.
// Hint provides actionable guidance to resolve the issue.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// Syntax errors. These are raised before anything reaches the database.
var (
	ErrInvalidExpressionSyntax      = errors.New("invalid expression syntax")
	ErrInvalidQueryShape            = errors.New("invalid query shape")
	ErrInvalidOrderDirection        = errors.New("invalid order direction")
	ErrInvalidLimit                 = errors.New("limit must be greater than zero")
	ErrInvalidOffset                = errors.New("offset cannot be negative")
	ErrInvalidDefaultValueType      = errors.New("default value must be a number or a string")
	ErrInvalidForeignKeyDescription = errors.New("invalid foreign key description")
	ErrUnknownIndexColumn           = errors.New("index references unknown column")
	ErrNoUniqueColumn               = errors.New("no unique column")
	ErrInvalidParameterType         = errors.New("invalid parameter type")
	ErrRowShapeMismatch             = errors.New("row columns do not match the first row")
	ErrInvalidColumnType            = errors.New("invalid column type")
	ErrInvalidSchema                = errors.New("invalid schema")
	ErrInvalidIdentifier            = errors.New("invalid identifier")
	ErrEmptyIdentifier              = errors.New("identifier cannot be empty")
	ErrIdentifierTooLong            = errors.New("identifier exceeds maximum length")
	ErrInvalidCharacter             = errors.New("identifier contains invalid characters")
)

// Schema errors.
var (
	ErrSchemaMismatch            = errors.New("table schema does not match the declared schema")
	ErrForeignKeysMustBeDisabled = errors.New("foreign keys must be disabled to migrate a table")
	ErrTableNotFound             = errors.New("table not found")
	ErrColumnNotFound            = errors.New("column not found in table")
)

// ExpressionSyntaxErr returns an error naming the filter fragment that could not be parsed.
func ExpressionSyntaxErr(fragment any) error {
	return fmt.Errorf("%w: %s", ErrInvalidExpressionSyntax, describeFragment(fragment))
}

// QueryShapeErr returns an error naming the statement kind and the clause it cannot carry.
func QueryShapeErr(statement, clause string) error {
	return fmt.Errorf("%w: %s cannot be used with %s", ErrInvalidQueryShape, statement, clause)
}

// InvalidTypeErr returns an error indicating an invalid column type was specified.
func InvalidTypeErr(column, typeName string) error {
	return fmt.Errorf("%w: type %s for column %s", ErrInvalidColumnType, typeName, column)
}

// UnknownIndexColumnErr returns an error for an index that names a missing column.
func UnknownIndexColumnErr(index, column string) error {
	return fmt.Errorf("%w: %s in index %s", ErrUnknownIndexColumn, column, index)
}

// TableNotFoundErr returns an error indicating a table was not found.
func TableNotFoundErr(table string) error {
	return fmt.Errorf("%w: %s", ErrTableNotFound, table)
}

// ColumnNotFoundErr returns an error indicating a column was not found.
func ColumnNotFoundErr(table, column string) error {
	return fmt.Errorf("%w: %s in table %s", ErrColumnNotFound, column, table)
}

// SchemaMismatchErr returns an error listing how the live table differs.
func SchemaMismatchErr(table string, differences []string) error {
	return fmt.Errorf("%w: %s (%d differences: %v)", ErrSchemaMismatch, table, len(differences), differences)
}

// InvalidSchemaErr returns an error for a declaration that cannot be rendered.
func InvalidSchemaErr(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidSchema, msg)
}
