package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DescribeError maps an error to a structured ErrorInfo with a stable code
// and a diagnostic hint.
func DescribeError(err error) ErrorInfo {
	if err == nil {
		return ErrorInfo{}
	}

	switch {
	case errors.Is(err, ErrInvalidExpressionSyntax):
		return ErrorInfo{
			Code:    CodeInvalidExpressionSyntax,
			Message: err.Error(),
			Hint:    `Filters look like {"col": value}, {"col": {"$gt": value}} or {"$or": [{...}, {...}]}. Operators: $eq, $gt, $lt, $ge, $le.`,
		}
	case errors.Is(err, ErrInvalidQueryShape):
		return ErrorInfo{
			Code:    CodeInvalidQueryShape,
			Message: err.Error(),
			Hint:    "remove and update cannot carry groupBy, orderBy, limit or offset. count cannot carry orderBy, limit or offset.",
		}
	case errors.Is(err, ErrInvalidOrderDirection):
		return ErrorInfo{
			Code:    CodeInvalidOrderDirection,
			Message: err.Error(),
			Hint:    "Valid directions: asc, ascending, 1, desc, descending, -1.",
		}
	case errors.Is(err, ErrInvalidLimit):
		return ErrorInfo{
			Code:    CodeInvalidLimit,
			Message: err.Error(),
			Hint:    "Use a limit of at least 1, or omit it to return every row.",
		}
	case errors.Is(err, ErrInvalidOffset):
		return ErrorInfo{
			Code:    CodeInvalidOffset,
			Message: err.Error(),
			Hint:    "Offsets start at 0.",
		}
	case errors.Is(err, ErrInvalidDefaultValueType):
		return ErrorInfo{
			Code:    CodeInvalidDefaultValueType,
			Message: err.Error(),
			Hint:    "Column defaults must be JSON numbers or strings.",
		}
	case errors.Is(err, ErrInvalidForeignKeyDescription):
		return ErrorInfo{
			Code:    CodeInvalidForeignKeyDescription,
			Message: err.Error(),
			Hint:    `A foreign key references exactly one table: {"from": "author_id", "references": {"users": "id"}}.`,
		}
	case errors.Is(err, ErrUnknownIndexColumn):
		return ErrorInfo{
			Code:    CodeUnknownIndexColumn,
			Message: err.Error(),
			Hint:    "Every indexed column must be declared in the table's columns.",
		}
	case errors.Is(err, ErrNoUniqueColumn):
		return ErrorInfo{
			Code:    CodeNoUniqueColumn,
			Message: err.Error(),
			Hint:    "Upserts need the row to carry a primary key or unique column declared in the schema.",
		}
	case errors.Is(err, ErrInvalidParameterType):
		return ErrorInfo{
			Code:    CodeInvalidParameterType,
			Message: err.Error(),
			Hint:    "Bound values must be strings, numbers, booleans, timestamps, byte slices or null.",
		}
	case errors.Is(err, ErrRowShapeMismatch):
		return ErrorInfo{
			Code:    CodeRowShapeMismatch,
			Message: err.Error(),
			Hint:    "Every row written through one writer must have the same columns.",
		}
	case errors.Is(err, ErrInvalidColumnType):
		return ErrorInfo{
			Code:    CodeInvalidColumnType,
			Message: err.Error(),
			Hint:    "Valid column types: INTEGER, TEXT, REAL, FLOAT, NUMERIC, BLOB, BOOLEAN, DATE.",
		}
	case errors.Is(err, ErrInvalidSchema):
		return ErrorInfo{
			Code:    CodeInvalidSchema,
			Message: err.Error(),
		}
	case errors.Is(err, ErrInvalidIdentifier),
		errors.Is(err, ErrEmptyIdentifier),
		errors.Is(err, ErrIdentifierTooLong),
		errors.Is(err, ErrInvalidCharacter):
		return ErrorInfo{
			Code:    CodeInvalidIdentifier,
			Message: err.Error(),
			Hint:    fmt.Sprintf("Identifiers must start with a letter or underscore, contain only letters, digits, and underscores, and be at most %d characters.", MaxIdentifierLength),
		}
	case errors.Is(err, ErrSchemaMismatch):
		return ErrorInfo{
			Code:    CodeSchemaMismatch,
			Message: err.Error(),
			Hint:    "Run reconcile without --strict to migrate the table to the declared schema.",
		}
	case errors.Is(err, ErrForeignKeysMustBeDisabled):
		return ErrorInfo{
			Code:    CodeForeignKeysMustBeDisabled,
			Message: err.Error(),
			Hint:    "Run PRAGMA foreign_keys = OFF on the connection before migrating.",
		}
	case errors.Is(err, ErrTableNotFound):
		return ErrorInfo{
			Code:    CodeTableNotFound,
			Message: err.Error(),
			Hint:    "Create the table with reconcile before querying it.",
		}
	case errors.Is(err, ErrColumnNotFound):
		return ErrorInfo{
			Code:    CodeColumnNotFound,
			Message: err.Error(),
			Hint:    "Check the column name against the table schema.",
		}

	case strings.Contains(err.Error(), "UNIQUE constraint failed"):
		return ErrorInfo{
			Code:    CodeUniqueViolation,
			Message: "record already exists",
			Hint:    "A record with this unique value already exists. Use upsert to update existing records.",
		}
	case strings.Contains(err.Error(), "FOREIGN KEY constraint failed"):
		return ErrorInfo{
			Code:    CodeForeignKeyViolation,
			Message: "foreign key constraint violation",
			Hint:    "The referenced record does not exist.",
		}
	case strings.Contains(err.Error(), "NOT NULL constraint failed"):
		return ErrorInfo{
			Code:    CodeNotNullViolation,
			Message: "required field is missing",
			Hint:    "One or more NOT NULL columns were not provided.",
		}
	case strings.Contains(err.Error(), "no such table"):
		return ErrorInfo{
			Code:    CodeTableNotFound,
			Message: "table not found",
			Hint:    "Create the table with reconcile before querying it.",
		}
	case strings.Contains(err.Error(), "database is locked"):
		return ErrorInfo{
			Code:    CodeDatabaseBusy,
			Message: "database is locked",
			Hint:    "Another connection holds a write lock. Retry later or raise LITETABLE_LOCK_RETRIES.",
		}
	}

	return ErrorInfo{
		Code:    CodeInternalError,
		Message: err.Error(),
	}
}

// describeFragment renders a filter fragment for error messages.
func describeFragment(fragment any) string {
	if s, ok := fragment.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	b, err := json.Marshal(fragment)
	if err != nil {
		return fmt.Sprintf("%v", fragment)
	}
	return string(b)
}
