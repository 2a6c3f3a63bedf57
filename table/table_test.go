package table

import (
	"context"
	"testing"

	"github.com/joe-ervin05/litetable/config"
	"github.com/joe-ervin05/litetable/database"
	"github.com/joe-ervin05/litetable/query"
	"github.com/joe-ervin05/litetable/schema"
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

func usersTable(t *testing.T, db *database.DB) *Table {
	t.Helper()
	users := New(db, schema.Schema{
		Name: "users",
		Columns: []schema.Column{
			{Name: "id", Type: schema.Integer, PrimaryKey: true},
			{Name: "email", Type: schema.Text, Unique: true},
			{Name: "name", Type: schema.Text},
			{Name: "visits", Type: schema.Integer, Default: 0},
		},
	})
	res, err := users.CreateTableIfNotExists(context.Background())
	require.NoError(t, err)
	require.True(t, res.WasCreated)
	return users
}

// =============================================================================
// Helper Tests
// =============================================================================

func TestTable_KeyHelpers(t *testing.T) {
	tests := []struct {
		name       string
		schema     schema.Schema
		wantPK     string
		wantHasPK  bool
		wantUnique []string
	}{
		{
			name: "single primary key and unique column",
			schema: schema.Schema{Name: "t", Columns: []schema.Column{
				{Name: "code", Type: schema.Text, Unique: true},
				{Name: "id", Type: schema.Integer, PrimaryKey: true},
			}},
			wantPK:     "id",
			wantHasPK:  true,
			wantUnique: []string{"code", "id"},
		},
		{
			name: "composite key",
			schema: schema.Schema{
				Name: "t",
				Columns: []schema.Column{
					{Name: "a", Type: schema.Integer},
					{Name: "b", Type: schema.Integer},
					{Name: "slug", Type: schema.Text},
				},
				PrimaryKey: schema.Names{"a", "b"},
				Indices:    map[string]schema.Index{"slug": {Columns: schema.Names{"slug"}, Unique: true}},
			},
			wantUnique: []string{"slug"},
		},
		{
			name:   "no keys",
			schema: schema.Schema{Name: "t", Columns: []schema.Column{{Name: "a", Type: schema.Text}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := New(nil, tt.schema)
			pk, ok := tbl.PrimaryKey()
			if pk != tt.wantPK || ok != tt.wantHasPK {
				t.Errorf("PrimaryKey() = %q, %t, want %q, %t", pk, ok, tt.wantPK, tt.wantHasPK)
			}
			assert.Equal(t, tt.wantUnique, tbl.UniqueColumns())
		})
	}
}

// =============================================================================
// Insert and Find Tests
// =============================================================================

func TestTable_InsertAndFind(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	users := usersTable(t, db)

	res, err := users.Insert(ctx, query.M{{Key: "email", Value: "a@x.io"}, {Key: "name", Value: "ann"}})
	require.NoError(t, err)
	assert.Equal(t, database.Result{LastInsertID: 1, Changes: 1}, res)

	row, err := users.Find(query.M{{Key: "email", Value: "a@x.io"}}).Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, database.Row{"id": int64(1), "email": "a@x.io", "name": "ann", "visits": int64(0)}, row)

	n, err := users.Find(query.M{{Key: "name", Value: "ann"}}, query.M{{Key: "visits", Value: 0}}).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = users.Insert(ctx, query.M{{Key: "nickname", Value: "x"}})
	assert.ErrorIs(t, err, tools.ErrColumnNotFound)

	_, err = users.Insert(ctx, query.M{})
	assert.ErrorIs(t, err, tools.ErrInvalidQueryShape)

	_, err = users.Insert(ctx, query.M{{Key: "email", Value: "a@x.io"}})
	require.Error(t, err)
	assert.True(t, database.IsUniqueViolation(err))
}

func TestTable_Writer(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	users := usersTable(t, db)

	w := users.Writer(query.WriterOptions{})
	defer w.Close()

	n, err := w.Write(ctx,
		query.M{{Key: "email", Value: "a@x.io"}},
		query.M{{Key: "email", Value: "b@x.io"}},
	)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	count, err := users.Find().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

// =============================================================================
// InsertUpdateUnique Tests
// =============================================================================

func TestTable_InsertUpdateUnique(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	users := usersTable(t, db)

	created, err := users.InsertUpdateUnique(ctx, query.M{{Key: "email", Value: "a@x.io"}, {Key: "name", Value: "ann"}})
	require.NoError(t, err)
	assert.Equal(t, query.M{{Key: "email", Value: "a@x.io"}, {Key: "name", Value: "ann"}, {Key: "id", Value: int64(1)}}, created)

	updated, err := users.InsertUpdateUnique(ctx, query.M{{Key: "email", Value: "a@x.io"}, {Key: "name", Value: "anna"}})
	require.NoError(t, err)
	assert.Equal(t, query.M{
		{Key: "id", Value: int64(1)},
		{Key: "email", Value: "a@x.io"},
		{Key: "name", Value: "anna"},
		{Key: "visits", Value: int64(0)},
	}, updated)

	rows, err := users.Find().All(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "anna", rows[0]["name"])
	assert.Equal(t, int64(1), rows[0]["id"])
}

func TestTable_InsertUpdateUniqueByPrimaryKey(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	users := usersTable(t, db)

	_, err := users.InsertUpdateUnique(ctx, query.M{{Key: "id", Value: 7}, {Key: "email", Value: "a@x.io"}})
	require.NoError(t, err)

	// id comes first in declaration order, so it is the lookup column and
	// the email may change.
	_, err = users.InsertUpdateUnique(ctx, query.M{{Key: "email", Value: "new@x.io"}, {Key: "id", Value: 7}})
	require.NoError(t, err)

	row, err := users.Find(query.M{{Key: "id", Value: 7}}).Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new@x.io", row["email"])
}

func TestTable_InsertUpdateUniqueNilPrimaryKey(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	users := usersTable(t, db)

	created, err := users.InsertUpdateUnique(ctx, query.M{{Key: "id", Value: nil}, {Key: "email", Value: "a@x.io"}})
	require.NoError(t, err)
	assert.Equal(t, query.M{{Key: "id", Value: int64(1)}, {Key: "email", Value: "a@x.io"}}, created)

	updated, err := users.InsertUpdateUnique(ctx, query.M{{Key: "id", Value: nil}, {Key: "email", Value: "a@x.io"}, {Key: "name", Value: "ann"}})
	require.NoError(t, err)
	id, _ := updated.Get("id")
	assert.Equal(t, int64(1), id)

	row, err := users.Find(query.M{{Key: "email", Value: "a@x.io"}}).Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), row["id"])
	assert.Equal(t, "ann", row["name"])
}

func TestTable_InsertUpdateUniqueRace(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	users := usersTable(t, db)

	lookups := 0
	users.afterLookup = func() {
		lookups++
		if lookups == 1 {
			// A concurrent writer claims the email after the lookup missed.
			_, err := db.Run(ctx, "INSERT INTO users (email, name) VALUES ('a@x.io', 'other')")
			require.NoError(t, err)
		}
	}

	got, err := users.InsertUpdateUnique(ctx, query.M{{Key: "email", Value: "a@x.io"}, {Key: "name", Value: "ann"}})
	require.NoError(t, err)
	assert.Equal(t, 2, lookups, "re-queried exactly once")

	name, _ := got.Get("name")
	assert.Equal(t, "ann", name)

	rows, err := users.Find().All(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "ann", rows[0]["name"])
}

func TestTable_InsertUpdateUniqueNoUniqueColumn(t *testing.T) {
	db := setupTestDB(t)
	users := usersTable(t, db)

	_, err := users.InsertUpdateUnique(context.Background(), query.M{{Key: "name", Value: "ann"}})
	assert.ErrorIs(t, err, tools.ErrNoUniqueColumn)
}

func TestTable_InsertUpdateUniqueWithoutPrimaryKey(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	tags := New(db, schema.Schema{Name: "tags", Columns: []schema.Column{
		{Name: "slug", Type: schema.Text, Unique: true},
		{Name: "uses", Type: schema.Integer},
	}})
	_, err := tags.CreateTableIfNotExists(ctx)
	require.NoError(t, err)

	_, err = tags.InsertUpdateUnique(ctx, query.M{{Key: "slug", Value: "go"}, {Key: "uses", Value: 1}})
	require.NoError(t, err)
	got, err := tags.InsertUpdateUnique(ctx, query.M{{Key: "slug", Value: "go"}, {Key: "uses", Value: 2}})
	require.NoError(t, err)
	assert.Equal(t, query.M{{Key: "slug", Value: "go"}, {Key: "uses", Value: 2}}, got)

	n, err := tags.Find().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

// =============================================================================
// Reconciliation Through the Table
// =============================================================================

func TestTable_MigrateThenFind(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Exec(ctx, `
		CREATE TABLE t (id INTEGER PRIMARY KEY, name TEXT, value INTEGER);
		INSERT INTO t (id, name, value) VALUES (1, 'a', 5);
	`))

	tbl := New(db, schema.Schema{Name: "t", Columns: []schema.Column{
		{Name: "id", Type: schema.Integer, PrimaryKey: true},
		{Name: "name", Type: schema.Text},
	}})

	_, err := tbl.CreateTableIfNotExists(ctx)
	require.ErrorIs(t, err, tools.ErrSchemaMismatch)

	res, err := tbl.CreateOrUpdateTable(ctx)
	require.NoError(t, err)
	assert.True(t, res.WasUpdated)

	rows, err := tbl.Find().All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []database.Row{{"id": int64(1), "name": "a"}}, rows)
}
