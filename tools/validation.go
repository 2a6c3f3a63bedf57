package tools

import (
	"fmt"
	"strings"
	"unicode"
)

// MaxIdentifierLength bounds table, column and index names.
const MaxIdentifierLength = 128

// reservedPrefix marks SQLite's internal tables; CREATE TABLE rejects it.
const reservedPrefix = "sqlite_"

func identRune(r rune, first bool) bool {
	if r == '_' || unicode.IsLetter(r) {
		return true
	}
	return !first && unicode.IsDigit(r)
}

// ValidateIdentifier checks that name can be interpolated into SQL text
// unquoted: a letter or underscore followed by letters, digits and
// underscores.
func ValidateIdentifier(name string) error {
	switch {
	case name == "":
		return ErrEmptyIdentifier
	case len(name) > MaxIdentifierLength:
		return fmt.Errorf("%w: %d characters (max %d)", ErrIdentifierTooLong, len(name), MaxIdentifierLength)
	}

	pos := 0
	for _, r := range name {
		if !identRune(r, pos == 0) {
			if pos == 0 {
				return fmt.Errorf("%w: %q cannot start an identifier", ErrInvalidCharacter, r)
			}
			return fmt.Errorf("%w: %q at position %d", ErrInvalidCharacter, r, pos)
		}
		pos++
	}
	return nil
}

// ValidateTableName is ValidateIdentifier plus the reserved sqlite_ prefix.
func ValidateTableName(name string) error {
	err := ValidateIdentifier(name)
	if err == nil && strings.HasPrefix(strings.ToLower(name), reservedPrefix) {
		err = fmt.Errorf("%w: the %s prefix is reserved", ErrInvalidIdentifier, reservedPrefix)
	}
	if err != nil {
		return fmt.Errorf("invalid table name %q: %w", name, err)
	}
	return nil
}

// ValidateColumnName accepts "*" as the all-columns selector.
func ValidateColumnName(name string) error {
	if name == "*" {
		return nil
	}
	if err := ValidateIdentifier(name); err != nil {
		return fmt.Errorf("invalid column name %q: %w", name, err)
	}
	return nil
}
