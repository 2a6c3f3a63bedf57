// Package table binds a declared schema to a database and offers the
// row-level operations built on it: insert, find, and insert-or-update by a
// unique column.
package table

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/joe-ervin05/litetable/database"
	"github.com/joe-ervin05/litetable/query"
	"github.com/joe-ervin05/litetable/schema"
	"github.com/joe-ervin05/litetable/tools"
)

// Table is a declared table on a database.
type Table struct {
	db         *database.DB
	schema     schema.Schema
	reconciler *schema.Reconciler

	// afterLookup runs between the lookup and the write of
	// InsertUpdateUnique.
	afterLookup func()
}

// New binds s to db. The table is not created; call CreateTableIfNotExists
// or CreateOrUpdateTable first.
func New(db *database.DB, s schema.Schema) *Table {
	return &Table{db: db, schema: s, reconciler: schema.NewReconciler(db, s)}
}

// Name returns the table name.
func (t *Table) Name() string {
	return t.schema.Name
}

// Schema returns the declared schema.
func (t *Table) Schema() schema.Schema {
	return t.schema
}

// CreateTableIfNotExists creates the table if it is absent.
func (t *Table) CreateTableIfNotExists(ctx context.Context) (schema.Result, error) {
	return t.reconciler.CreateTableIfNotExists(ctx)
}

// CreateOrUpdateTable creates the table or migrates it to the declaration.
func (t *Table) CreateOrUpdateTable(ctx context.Context) (schema.Result, error) {
	return t.reconciler.CreateOrUpdateTable(ctx)
}

// Find returns a query over the table with every filter merged in.
func (t *Table) Find(filters ...any) query.Query {
	q := query.New(t.db).From(t.schema.Name)
	for _, f := range filters {
		q = q.Find(f)
	}
	return q
}

// Writer returns a batch writer for the table.
func (t *Table) Writer(opts query.WriterOptions) *query.RowWriter {
	return query.NewRowWriter(t.db, t.schema.Name, opts)
}

// PrimaryKey returns the single primary key column. ok is false when the
// table has no primary key or a composite one.
func (t *Table) PrimaryKey() (string, bool) {
	pk := t.schema.PrimaryKeyColumns()
	if len(pk) != 1 {
		return "", false
	}
	return pk[0], true
}

// UniqueColumns returns, in declaration order, the columns whose value
// identifies a row on its own: a single-column primary key, UNIQUE
// columns, and columns covered by a single-column unique index.
func (t *Table) UniqueColumns() []string {
	indexed := make(map[string]bool)
	for _, idx := range t.schema.Indices {
		if idx.Unique && len(idx.Columns) == 1 {
			indexed[idx.Columns[0]] = true
		}
	}
	pk, hasPK := t.PrimaryKey()

	var cols []string
	for _, c := range t.schema.Columns {
		if c.Unique || (hasPK && c.Name == pk) || indexed[c.Name] {
			cols = append(cols, c.Name)
		}
	}
	return cols
}

// Insert inserts one row. Its keys must be declared columns.
func (t *Table) Insert(ctx context.Context, row query.M) (database.Result, error) {
	if len(row) == 0 {
		return database.Result{}, fmt.Errorf("%w: insert requires at least one column", tools.ErrInvalidQueryShape)
	}

	columns := make([]string, len(row))
	placeholders := make([]string, len(row))
	args := make([]any, len(row))
	for i, kv := range row {
		if _, ok := t.schema.Column(kv.Key); !ok {
			return database.Result{}, tools.ColumnNotFoundErr(t.schema.Name, kv.Key)
		}
		v, err := query.ConvertValue(kv.Value)
		if err != nil {
			return database.Result{}, fmt.Errorf("%s: %w", kv.Key, err)
		}
		columns[i] = kv.Key
		placeholders[i] = "?"
		args[i] = v
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		t.schema.Name, strings.Join(columns, ", "), strings.Join(placeholders, ", "))
	return t.db.Run(ctx, sql, args...)
}

// InsertUpdateUnique inserts row, or updates the row that already holds the
// same value in the row's first unique column. The lookup column is the
// first column in declaration order that is unique or the primary key and
// is present in row.
//
// On insert the returned row carries the generated primary key. On update
// it is the stored row with row's values applied.
func (t *Table) InsertUpdateUnique(ctx context.Context, row query.M) (query.M, error) {
	col, ok := t.lookupColumn(row)
	if !ok {
		return nil, fmt.Errorf("%w: row has none of %v", tools.ErrNoUniqueColumn, t.UniqueColumns())
	}
	return t.upsert(ctx, row, col, true)
}

func (t *Table) lookupColumn(row query.M) (string, bool) {
	for _, col := range t.UniqueColumns() {
		if v, ok := row.Get(col); ok && v != nil {
			return col, true
		}
	}
	return "", false
}

func (t *Table) upsert(ctx context.Context, row query.M, col string, retry bool) (query.M, error) {
	val, _ := row.Get(col)

	existing, err := t.Find(query.M{{Key: col, Value: val}}).Get(ctx)
	if err != nil {
		return nil, err
	}
	if t.afterLookup != nil {
		t.afterLookup()
	}

	if existing == nil {
		res, err := t.Insert(ctx, row)
		if err != nil {
			// Another writer inserted the same value between the lookup
			// and the insert.
			if retry && database.IsUniqueViolation(err) {
				tools.Logger.Debug("unique value inserted concurrently, updating instead",
					"table", t.schema.Name,
					"column", col)
				return t.upsert(ctx, row, col, false)
			}
			return nil, err
		}
		return t.withGeneratedKey(row, res), nil
	}

	key, keyVal := col, val
	if pk, ok := t.PrimaryKey(); ok {
		key, keyVal = pk, existing[pk]
		// A nil key in the row means "not chosen yet"; keep the stored one.
		if v, has := row.Get(pk); has && v == nil {
			row = withoutKey(row, pk)
		}
	}
	if _, err := t.Find(query.M{{Key: key, Value: keyVal}}).Update(ctx, row); err != nil {
		return nil, err
	}
	return t.orderRow(existing).Merge(row), nil
}

// withGeneratedKey adds the rowid assigned by SQLite when the primary key
// is an INTEGER column the row left out or set to nil.
func (t *Table) withGeneratedKey(row query.M, res database.Result) query.M {
	pk, ok := t.PrimaryKey()
	if !ok {
		return row
	}
	if v, has := row.Get(pk); has && v != nil {
		return row
	}
	c, _ := t.schema.Column(pk)
	if st, _ := c.Type.Storage(); st != schema.Integer {
		return row
	}
	return row.Set(pk, res.LastInsertID)
}

func withoutKey(row query.M, key string) query.M {
	out := make(query.M, 0, len(row))
	for _, kv := range row {
		if kv.Key != key {
			out = append(out, kv)
		}
	}
	return out
}

// orderRow converts a result row to a document in column declaration
// order. Columns the schema does not know follow in name order.
func (t *Table) orderRow(r database.Row) query.M {
	out := make(query.M, 0, len(r))
	seen := make(map[string]bool, len(r))
	for _, c := range t.schema.Columns {
		if v, ok := r[c.Name]; ok {
			out = append(out, query.KV{Key: c.Name, Value: v})
			seen[c.Name] = true
		}
	}

	var extra []string
	for k := range r {
		if !seen[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		out = append(out, query.KV{Key: k, Value: r[k]})
	}
	return out
}
