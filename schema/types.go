// Package schema declares SQLite tables, renders their CREATE statements
// and reconciles a declaration with the table that exists in the database.
package schema

import (
	"strings"

	"github.com/joe-ervin05/litetable/tools"
)

// DataType is a declared column type.
type DataType string

// Declared column types. FLOAT, BOOLEAN and DATE are aliases that are
// stored under another storage type.
const (
	Integer DataType = "INTEGER"
	Text    DataType = "TEXT"
	Real    DataType = "REAL"
	Float   DataType = "FLOAT"
	Numeric DataType = "NUMERIC"
	Blob    DataType = "BLOB"
	Boolean DataType = "BOOLEAN"
	Date    DataType = "DATE"
)

var storageTypes = map[DataType]DataType{
	Integer: Integer,
	Text:    Text,
	Real:    Real,
	Float:   Real,
	Numeric: Numeric,
	Blob:    Blob,
	Boolean: Integer,
	Date:    Integer,
}

// Storage returns the type the column is created with.
func (t DataType) Storage() (DataType, bool) {
	s, ok := storageTypes[DataType(strings.ToUpper(string(t)))]
	return s, ok
}

// RawDefault is a default that is an SQL expression rather than a literal,
// such as CURRENT_TIMESTAMP. It is produced by introspection and rendered
// verbatim.
type RawDefault string

// Column is one column of a table.
type Column struct {
	Name       string   `json:"-"`
	Type       DataType `json:"type"`
	PrimaryKey bool     `json:"primaryKey,omitempty"`
	Unique     bool     `json:"unique,omitempty"`
	NotNull    bool     `json:"notNull,omitempty"`
	Default    any      `json:"default,omitempty"` // number or string, nil if none
	Collate    string   `json:"collate,omitempty"` // BINARY, NOCASE, RTRIM
	Index      bool     `json:"index,omitempty"`
}

// Index is a named index over one or more columns.
type Index struct {
	Columns Names `json:"columns"`
	Unique  bool  `json:"unique,omitempty"`
}

// ForeignKey links From columns to the columns of exactly one referenced
// table: References maps that table's name to its columns.
type ForeignKey struct {
	From       Names            `json:"from"`
	References map[string]Names `json:"references"`
}

// Target returns the referenced table and columns. ok is false unless
// exactly one table is referenced.
func (fk ForeignKey) Target() (table string, columns Names, ok bool) {
	if len(fk.References) != 1 {
		return "", nil, false
	}
	for t, cols := range fk.References {
		table, columns = t, cols
	}
	return table, columns, true
}

// Schema is the declaration of one table. Columns keep their declared order.
type Schema struct {
	Name        string           `json:"name"`
	Columns     []Column         `json:"columns"`
	Indices     map[string]Index `json:"indices,omitempty"`
	ForeignKeys []ForeignKey     `json:"foreignKeys,omitempty"`
	// PrimaryKey declares a composite key. It cannot be combined with a
	// column-level PrimaryKey flag.
	PrimaryKey Names `json:"primaryKey,omitempty"`
}

// Column returns the named column.
func (s Schema) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnNames returns the column names in declaration order.
func (s Schema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// PrimaryKeyColumns returns the primary key columns, whether declared on a
// column or as a composite key.
func (s Schema) PrimaryKeyColumns() []string {
	if len(s.PrimaryKey) > 0 {
		return s.PrimaryKey
	}
	for _, c := range s.Columns {
		if c.PrimaryKey {
			return []string{c.Name}
		}
	}
	return nil
}

// indexName is the name an index is created under.
func indexName(table, index string) string {
	return "ix_" + table + "_" + index
}

// effectiveIndices merges the declared indices with the single-column
// indices requested through Column.Index. A declared index wins over a
// column flag of the same name.
func (s Schema) effectiveIndices() map[string]Index {
	out := make(map[string]Index, len(s.Indices))
	for _, c := range s.Columns {
		if c.Index {
			out[c.Name] = Index{Columns: Names{c.Name}}
		}
	}
	for name, idx := range s.Indices {
		out[name] = idx
	}
	return out
}

// Validate checks names, types and references without touching a database.
func (s Schema) Validate() error {
	if err := tools.ValidateTableName(s.Name); err != nil {
		return err
	}
	if len(s.Columns) == 0 {
		return tools.InvalidSchemaErr("table " + s.Name + " has no columns")
	}

	seen := make(map[string]bool, len(s.Columns))
	pkFlags := 0
	for _, c := range s.Columns {
		if err := tools.ValidateIdentifier(c.Name); err != nil {
			return err
		}
		if seen[c.Name] {
			return tools.InvalidSchemaErr("duplicate column " + c.Name)
		}
		seen[c.Name] = true

		if _, ok := c.Type.Storage(); !ok {
			return tools.InvalidTypeErr(c.Name, string(c.Type))
		}
		if c.PrimaryKey {
			pkFlags++
		}
		if c.Collate != "" {
			if err := tools.ValidateIdentifier(c.Collate); err != nil {
				return err
			}
		}
		if _, err := formatDefault(c.Default); err != nil {
			return err
		}
	}

	switch {
	case pkFlags > 1:
		return tools.InvalidSchemaErr("more than one column declares primaryKey; use the table primaryKey list for a composite key")
	case pkFlags == 1 && len(s.PrimaryKey) > 0:
		return tools.InvalidSchemaErr("primary key declared on both a column and the table")
	}
	for _, col := range s.PrimaryKey {
		if !seen[col] {
			return tools.InvalidSchemaErr("primary key references unknown column " + col)
		}
	}

	for name, idx := range s.effectiveIndices() {
		if err := tools.ValidateIdentifier(name); err != nil {
			return err
		}
		if len(idx.Columns) == 0 {
			return tools.InvalidSchemaErr("index " + name + " has no columns")
		}
		for _, col := range idx.Columns {
			if !seen[col] {
				return tools.UnknownIndexColumnErr(name, col)
			}
		}
	}

	for _, fk := range s.ForeignKeys {
		if err := validateForeignKey(fk, seen); err != nil {
			return err
		}
	}
	return nil
}
