package schema

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/joe-ervin05/litetable/tools"
)

// RenderCreateStatements returns the CREATE TABLE statement for s followed
// by one CREATE INDEX statement per index, in index name order.
func RenderCreateStatements(s Schema) ([]string, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	create, err := createTableSQL(s)
	if err != nil {
		return nil, err
	}
	stmts := []string{create}

	indices := s.effectiveIndices()
	for _, name := range sortedKeys(indices) {
		stmts = append(stmts, createIndexSQL(s.Name, name, indices[name]))
	}
	return stmts, nil
}

func createTableSQL(s Schema) (string, error) {
	defs := make([]string, 0, len(s.Columns)+len(s.ForeignKeys)+1)
	for _, c := range s.Columns {
		def, err := columnDef(c)
		if err != nil {
			return "", err
		}
		defs = append(defs, def)
	}

	if len(s.PrimaryKey) > 0 {
		defs = append(defs, "PRIMARY KEY ("+strings.Join(s.PrimaryKey, ", ")+")")
	}

	for _, fk := range s.ForeignKeys {
		table, cols, _ := fk.Target()
		defs = append(defs, fmt.Sprintf("FOREIGN KEY(%s) REFERENCES %s(%s)",
			strings.Join(fk.From, ", "), table, strings.Join(cols, ", ")))
	}

	return "CREATE TABLE " + s.Name + " (" + strings.Join(defs, ", ") + ")", nil
}

func columnDef(c Column) (string, error) {
	storage, ok := c.Type.Storage()
	if !ok {
		return "", tools.InvalidTypeErr(c.Name, string(c.Type))
	}

	var sb strings.Builder
	sb.WriteString(c.Name)
	sb.WriteString(" ")
	sb.WriteString(string(storage))

	// A primary key is already unique and not null.
	if c.PrimaryKey {
		sb.WriteString(" PRIMARY KEY")
	} else {
		if c.Unique {
			sb.WriteString(" UNIQUE")
		}
		if c.NotNull {
			sb.WriteString(" NOT NULL")
		}
	}

	if c.Default != nil {
		dflt, err := formatDefault(c.Default)
		if err != nil {
			return "", fmt.Errorf("column %s: %w", c.Name, err)
		}
		sb.WriteString(" DEFAULT ")
		sb.WriteString(dflt)
	}

	if c.Collate != "" {
		sb.WriteString(" COLLATE ")
		sb.WriteString(c.Collate)
	}

	return sb.String(), nil
}

func createIndexSQL(table, name string, idx Index) string {
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)",
		unique, indexName(table, name), table, strings.Join(idx.Columns, ", "))
}

// formatDefault renders a default as an SQL literal. Strings are quoted,
// numbers are written bare. nil renders as "".
func formatDefault(val any) (string, error) {
	switch v := val.(type) {
	case nil:
		return "", nil
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'", nil
	case RawDefault:
		return string(v), nil
	}

	rv := reflect.ValueOf(val)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return "", fmt.Errorf("%w: %v", tools.ErrInvalidDefaultValueType, val)
		}
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	}
	return "", fmt.Errorf("%w: got %T", tools.ErrInvalidDefaultValueType, val)
}

func validateForeignKey(fk ForeignKey, columns map[string]bool) error {
	table, cols, ok := fk.Target()
	if !ok {
		return fmt.Errorf("%w: references %d tables, want exactly one", tools.ErrInvalidForeignKeyDescription, len(fk.References))
	}
	if len(fk.From) == 0 {
		return fmt.Errorf("%w: no from column", tools.ErrInvalidForeignKeyDescription)
	}
	if len(cols) != len(fk.From) {
		return fmt.Errorf("%w: %d from columns but %d columns of %s", tools.ErrInvalidForeignKeyDescription, len(fk.From), len(cols), table)
	}
	if err := tools.ValidateTableName(table); err != nil {
		return fmt.Errorf("%w: %w", tools.ErrInvalidForeignKeyDescription, err)
	}
	for _, col := range fk.From {
		if !columns[col] {
			return fmt.Errorf("%w: unknown column %s", tools.ErrInvalidForeignKeyDescription, col)
		}
	}
	for _, col := range cols {
		if err := tools.ValidateIdentifier(col); err != nil {
			return fmt.Errorf("%w: %w", tools.ErrInvalidForeignKeyDescription, err)
		}
	}
	return nil
}
