package schema

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/joe-ervin05/litetable/database"
)

// TableExists reports whether a table with the given name exists.
func TableExists(ctx context.Context, db database.Executor, table string) (bool, error) {
	row, err := db.Get(ctx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table)
	if err != nil {
		return false, err
	}
	return row != nil, nil
}

// SchemaFromDatabase rebuilds the schema of an existing table. ok is false
// when the table does not exist.
func SchemaFromDatabase(ctx context.Context, db database.Executor, table string) (s Schema, ok bool, err error) {
	exists, err := TableExists(ctx, db, table)
	if err != nil || !exists {
		return Schema{}, false, err
	}

	s = Schema{Name: table}
	if err := introspectColumns(ctx, db, &s); err != nil {
		return Schema{}, false, err
	}
	if err := introspectCollations(ctx, db, &s); err != nil {
		return Schema{}, false, err
	}
	if err := introspectForeignKeys(ctx, db, &s); err != nil {
		return Schema{}, false, err
	}
	if err := introspectIndices(ctx, db, &s); err != nil {
		return Schema{}, false, err
	}
	return s, true, nil
}

func introspectColumns(ctx context.Context, db database.Executor, s *Schema) error {
	rows, err := db.All(ctx, `
		SELECT name, type, "notnull", dflt_value, pk
		FROM pragma_table_info(?)
		ORDER BY cid`, s.Name)
	if err != nil {
		return err
	}

	type pkCol struct {
		name string
		pos  int64
	}
	var pks []pkCol

	for _, r := range rows {
		name, _ := r["name"].(string)
		declType, _ := r["type"].(string)
		notNull, _ := r["notnull"].(int64)
		pk, _ := r["pk"].(int64)

		c := Column{
			Name:    name,
			Type:    typeFromDecl(declType),
			NotNull: notNull == 1,
		}
		if dflt, ok := r["dflt_value"].(string); ok {
			c.Default = parseDefault(dflt)
		}
		if pk > 0 {
			pks = append(pks, pkCol{name, pk})
		}
		s.Columns = append(s.Columns, c)
	}

	switch len(pks) {
	case 0:
	case 1:
		for i := range s.Columns {
			if s.Columns[i].Name == pks[0].name {
				s.Columns[i].PrimaryKey = true
			}
		}
	default:
		sort.Slice(pks, func(i, j int) bool { return pks[i].pos < pks[j].pos })
		for _, pk := range pks {
			s.PrimaryKey = append(s.PrimaryKey, pk.name)
		}
	}
	return nil
}

func introspectForeignKeys(ctx context.Context, db database.Executor, s *Schema) error {
	rows, err := db.All(ctx, `
		SELECT id, "table", "from", "to"
		FROM pragma_foreign_key_list(?)
		ORDER BY id, seq`, s.Name)
	if err != nil {
		return err
	}

	byID := make(map[int64]int)
	for _, r := range rows {
		id, _ := r["id"].(int64)
		table, _ := r["table"].(string)
		from, _ := r["from"].(string)
		to, _ := r["to"].(string)

		i, ok := byID[id]
		if !ok {
			i = len(s.ForeignKeys)
			byID[id] = i
			s.ForeignKeys = append(s.ForeignKeys, ForeignKey{References: map[string]Names{table: nil}})
		}
		fk := &s.ForeignKeys[i]
		fk.From = append(fk.From, from)
		fk.References[table] = append(fk.References[table], to)
	}
	return nil
}

// introspectIndices reads single-column UNIQUE constraints into the column
// flags and the indices created under the ix_<table>_ prefix into Indices.
// Other indices are not part of a declaration and are ignored.
func introspectIndices(ctx context.Context, db database.Executor, s *Schema) error {
	list, err := db.All(ctx, `SELECT name, "unique", origin FROM pragma_index_list(?)`, s.Name)
	if err != nil {
		return err
	}

	prefix := indexName(s.Name, "")
	for _, r := range list {
		name, _ := r["name"].(string)
		origin, _ := r["origin"].(string)
		unique, _ := r["unique"].(int64)

		cols, err := indexColumns(ctx, db, name)
		if err != nil {
			return err
		}

		switch {
		case origin == "u" && len(cols) == 1:
			for i := range s.Columns {
				if s.Columns[i].Name == cols[0] && !s.Columns[i].PrimaryKey {
					s.Columns[i].Unique = true
				}
			}
		case origin == "c" && strings.HasPrefix(name, prefix):
			if s.Indices == nil {
				s.Indices = make(map[string]Index)
			}
			s.Indices[strings.TrimPrefix(name, prefix)] = Index{Columns: cols, Unique: unique == 1}
		}
	}
	return nil
}

func indexColumns(ctx context.Context, db database.Executor, index string) (Names, error) {
	rows, err := db.All(ctx, "SELECT name FROM pragma_index_info(?) ORDER BY seqno", index)
	if err != nil {
		return nil, err
	}
	cols := make(Names, 0, len(rows))
	for _, r := range rows {
		name, _ := r["name"].(string)
		cols = append(cols, name)
	}
	return cols, nil
}

// typeFromDecl maps a declared column type back to a storage type using
// SQLite's type affinity rules.
func typeFromDecl(decl string) DataType {
	upper := strings.ToUpper(strings.TrimSpace(decl))
	if t, ok := DataType(upper).Storage(); ok {
		return t
	}
	switch {
	case strings.Contains(upper, "INT"):
		return Integer
	case strings.Contains(upper, "CHAR"), strings.Contains(upper, "CLOB"), strings.Contains(upper, "TEXT"):
		return Text
	case upper == "", strings.Contains(upper, "BLOB"):
		return Blob
	case strings.Contains(upper, "REAL"), strings.Contains(upper, "FLOA"), strings.Contains(upper, "DOUB"):
		return Real
	}
	return Numeric
}

// parseDefault turns the dflt_value text reported by SQLite back into the
// value it was declared with.
func parseDefault(val string) any {
	if len(val) >= 2 && val[0] == '\'' && val[len(val)-1] == '\'' {
		return strings.ReplaceAll(val[1:len(val)-1], "''", "'")
	}
	if strings.EqualFold(val, "NULL") {
		return nil
	}
	if n, err := strconv.ParseInt(val, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(val, 64); err == nil {
		return f
	}
	// An expression such as CURRENT_TIMESTAMP.
	return RawDefault(val)
}
