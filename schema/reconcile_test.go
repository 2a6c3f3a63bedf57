package schema

import (
	"context"
	"testing"
	"time"

	"github.com/joe-ervin05/litetable/config"
	"github.com/joe-ervin05/litetable/database"
	"github.com/joe-ervin05/litetable/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()
	cfg := config.Defaults()
	cfg.DatabaseURL = ":memory:"

	db, err := database.Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func usersSchema() Schema {
	return Schema{
		Name: "users",
		Columns: []Column{
			{Name: "id", Type: Integer, PrimaryKey: true},
			{Name: "email", Type: Text, Unique: true, NotNull: true},
			{Name: "name", Type: Text, Index: true},
			{Name: "karma", Type: Integer, Default: 0},
			{Name: "bio", Type: Text, Default: ""},
			{Name: "ratio", Type: Real, Default: 3.0},
			{Name: "active", Type: Boolean, Default: 1},
		},
		Indices: map[string]Index{
			"email_name": {Columns: Names{"email", "name"}, Unique: true},
		},
	}
}

// =============================================================================
// Reconciler Tests
// =============================================================================

func TestReconciler_CreateTableIfNotExistsIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	r := NewReconciler(db, usersSchema())

	exists, err := r.TableExists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	res, err := r.CreateTableIfNotExists(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{WasCreated: true}, res)

	exists, err = r.TableExists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)

	// Defaults 0, '' and 3.0 read back equal to their declaration.
	res, err = r.CreateTableIfNotExists(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)

	res, err = r.CreateOrUpdateTable(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
}

func TestSchemaFromDatabase(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := NewReconciler(db, usersSchema()).CreateTableIfNotExists(ctx)
	require.NoError(t, err)

	live, ok, err := SchemaFromDatabase(ctx, db, "users")
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, []string{"id", "email", "name", "karma", "bio", "ratio", "active"}, live.ColumnNames())
	assert.Equal(t, []string{"id"}, live.PrimaryKeyColumns())

	email, _ := live.Column("email")
	assert.True(t, email.Unique)
	assert.True(t, email.NotNull)

	karma, _ := live.Column("karma")
	assert.Equal(t, int64(0), karma.Default)
	bio, _ := live.Column("bio")
	assert.Equal(t, "", bio.Default)
	active, _ := live.Column("active")
	assert.Equal(t, Integer, active.Type)

	assert.Equal(t, map[string]Index{
		"name":       {Columns: Names{"name"}},
		"email_name": {Columns: Names{"email", "name"}, Unique: true},
	}, live.Indices)

	_, ok, err = SchemaFromDatabase(ctx, db, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSchemaFromDatabase_CompositeKeyAndForeignKeys(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Exec(ctx, `
		CREATE TABLE teams (id INTEGER PRIMARY KEY, a TEXT, b TEXT, UNIQUE (a, b));
		CREATE TABLE members (
			user_id INTEGER,
			group_id INTEGER,
			ga TEXT,
			gb TEXT,
			PRIMARY KEY (group_id, user_id),
			FOREIGN KEY(group_id) REFERENCES teams(id),
			FOREIGN KEY(ga, gb) REFERENCES teams(a, b)
		);
	`))

	live, ok, err := SchemaFromDatabase(ctx, db, "members")
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, Names{"group_id", "user_id"}, live.PrimaryKey)
	require.Len(t, live.ForeignKeys, 2)

	byFrom := map[string]ForeignKey{}
	for _, fk := range live.ForeignKeys {
		byFrom[fk.From[0]] = fk
	}
	assert.Equal(t, map[string]Names{"teams": {"id"}}, byFrom["group_id"].References)
	assert.Equal(t, Names{"ga", "gb"}, byFrom["ga"].From)
	assert.Equal(t, map[string]Names{"teams": {"a", "b"}}, byFrom["ga"].References)

	declared := Schema{
		Name: "members",
		Columns: []Column{
			{Name: "user_id", Type: Integer},
			{Name: "group_id", Type: Integer},
			{Name: "ga", Type: Text},
			{Name: "gb", Type: Text},
		},
		PrimaryKey: Names{"group_id", "user_id"},
		ForeignKeys: []ForeignKey{
			{From: Names{"ga", "gb"}, References: map[string]Names{"teams": {"a", "b"}}},
			{From: Names{"group_id"}, References: map[string]Names{"teams": {"id"}}},
		},
	}
	assert.Empty(t, Diff(declared, live))
}

func TestReconciler_MismatchIsAnError(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Exec(ctx, `CREATE TABLE users (id INTEGER PRIMARY KEY, email TEXT)`))

	_, err := NewReconciler(db, usersSchema()).CreateTableIfNotExists(ctx)
	require.ErrorIs(t, err, tools.ErrSchemaMismatch)
	assert.Contains(t, err.Error(), "column_added name")
}

func TestReconciler_MigrationDropsColumn(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Exec(ctx, `
		CREATE TABLE t (id INTEGER PRIMARY KEY, name TEXT, value INTEGER);
		CREATE INDEX ix_t_value ON t (value);
		INSERT INTO t (id, name, value) VALUES (1, 'a', 5);
	`))

	declared := Schema{Name: "t", Columns: []Column{
		{Name: "id", Type: Integer, PrimaryKey: true},
		{Name: "name", Type: Text},
	}}

	r := NewReconciler(db, declared)
	r.now = func() time.Time { return time.UnixMilli(1700000000000) }

	state, _, diffs, err := r.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, Divergent, state)
	assert.NotEmpty(t, diffs)

	res, err := r.CreateOrUpdateTable(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{WasUpdated: true}, res)

	rows, err := db.All(ctx, "SELECT * FROM t")
	require.NoError(t, err)
	assert.Equal(t, []database.Row{{"id": int64(1), "name": "a"}}, rows)

	exists, err := TableExists(ctx, db, "t_backup_1700000000000")
	require.NoError(t, err)
	assert.False(t, exists, "backup is dropped")

	index, err := db.Get(ctx, "SELECT name FROM sqlite_master WHERE type = 'index' AND name = 'ix_t_value'")
	require.NoError(t, err)
	assert.Nil(t, index, "old index is dropped with the backup")

	state, _, _, err = r.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, Equal, state)

	row, err := db.Get(ctx, "PRAGMA legacy_alter_table")
	require.NoError(t, err)
	assert.Equal(t, int64(0), row["legacy_alter_table"])
}

func TestReconciler_CollationChangeMigrates(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	declared := Schema{Name: "tags", Columns: []Column{
		{Name: "id", Type: Integer, PrimaryKey: true},
		{Name: "label", Type: Text, Unique: true, Collate: "NOCASE"},
	}}
	_, err := NewReconciler(db, declared).CreateTableIfNotExists(ctx)
	require.NoError(t, err)

	live, _, err := SchemaFromDatabase(ctx, db, "tags")
	require.NoError(t, err)
	label, _ := live.Column("label")
	assert.Equal(t, "NOCASE", label.Collate)

	declared.Columns[1].Collate = ""
	r := NewReconciler(db, declared)
	state, _, diffs, err := r.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, Divergent, state)
	require.Len(t, diffs, 1)
	assert.Equal(t, "collate label: NOCASE, want BINARY", diffs[0].String())

	res, err := r.CreateOrUpdateTable(ctx)
	require.NoError(t, err)
	assert.True(t, res.WasUpdated)

	state, _, _, err = r.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, Equal, state)
}

func TestReconciler_MigrationAddsColumnWithDefault(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Exec(ctx, `
		CREATE TABLE t (id INTEGER PRIMARY KEY, name TEXT);
		INSERT INTO t (id, name) VALUES (1, 'a'), (2, 'b');
	`))

	r := NewReconciler(db, Schema{Name: "t", Columns: []Column{
		{Name: "id", Type: Integer, PrimaryKey: true},
		{Name: "name", Type: Text, Unique: true},
		{Name: "level", Type: Integer, NotNull: true, Default: 1},
	}})

	res, err := r.CreateOrUpdateTable(ctx)
	require.NoError(t, err)
	assert.True(t, res.WasUpdated)

	rows, err := db.All(ctx, "SELECT id, name, level FROM t ORDER BY id")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1), rows[1]["level"])
}

func TestReconciler_MigrationKeepsReferencesFromOtherTables(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Exec(ctx, `
		CREATE TABLE parents (id INTEGER PRIMARY KEY, old TEXT);
		CREATE TABLE children (id INTEGER PRIMARY KEY, parent_id INTEGER REFERENCES parents(id));
	`))

	_, err := NewReconciler(db, Schema{Name: "parents", Columns: []Column{
		{Name: "id", Type: Integer, PrimaryKey: true},
	}}).CreateOrUpdateTable(ctx)
	require.NoError(t, err)

	live, _, err := SchemaFromDatabase(ctx, db, "children")
	require.NoError(t, err)
	require.Len(t, live.ForeignKeys, 1)
	assert.Equal(t, map[string]Names{"parents": {"id"}}, live.ForeignKeys[0].References)
}

func TestReconciler_RefusesWhileForeignKeysOn(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Exec(ctx, `
		CREATE TABLE t (id INTEGER PRIMARY KEY, value INTEGER);
		PRAGMA foreign_keys = ON;
	`))

	r := NewReconciler(db, Schema{Name: "t", Columns: []Column{{Name: "id", Type: Integer, PrimaryKey: true}}})
	_, err := r.CreateOrUpdateTable(ctx)
	require.ErrorIs(t, err, tools.ErrForeignKeysMustBeDisabled)

	live, _, err := SchemaFromDatabase(ctx, db, "t")
	require.NoError(t, err)
	assert.Len(t, live.Columns, 2, "table is untouched")
}

func TestReconciler_FailedStepRollsBack(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Exec(ctx, `
		CREATE TABLE t (id INTEGER PRIMARY KEY, name TEXT);
		INSERT INTO t (id, name) VALUES (1, 'same'), (2, 'same');
	`))

	r := NewReconciler(db, Schema{Name: "t", Columns: []Column{
		{Name: "id", Type: Integer, PrimaryKey: true},
		{Name: "name", Type: Text, Unique: true},
	}})
	_, err := r.CreateOrUpdateTable(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migration step")
	assert.Contains(t, err.Error(), "SQL: INSERT INTO t")

	live, ok, err := SchemaFromDatabase(ctx, db, "t")
	require.NoError(t, err)
	require.True(t, ok)
	name, _ := live.Column("name")
	assert.False(t, name.Unique, "original table restored")

	n, err := db.Get(ctx, "SELECT COUNT(*) AS n FROM t")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n["n"])
}

func TestReconciler_InvalidSchema(t *testing.T) {
	db := setupTestDB(t)

	_, err := NewReconciler(db, Schema{Name: "t"}).CreateOrUpdateTable(context.Background())
	assert.ErrorIs(t, err, tools.ErrInvalidSchema)
}
