package query

import (
	"context"
	"errors"
	"fmt"
	"testing"

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

	require.NoError(t, db.Exec(context.Background(), `
		CREATE TABLE players (id INTEGER PRIMARY KEY, name TEXT UNIQUE, team TEXT, score INTEGER, active INTEGER);
		INSERT INTO players (name, team, score, active) VALUES
			('ann', 'red', 10, 1),
			('bob', 'red', 20, 0),
			('cid', 'blue', 30, 1),
			('dee', 'blue', 40, 1),
			('eve', NULL, 50, 0);
	`))
	return db
}

// =============================================================================
// Terminal Tests
// =============================================================================

func TestQuery_AllAndGet(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	players := New(db).From("players")

	rows, err := players.Find(M{{"team", "blue"}}).OrderBy(M{{"score", "desc"}}).All(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "dee", rows[0]["name"])
	assert.Equal(t, "cid", rows[1]["name"])

	row, err := players.Select("name").Find(M{{"active", true}, {"score", M{{"$ge", 30}}}}).OrderBy("id").Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, database.Row{"name": "cid"}, row)

	row, err = players.Find(M{{"name", "nobody"}}).Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, row)

	rows, err = players.Find(M{{"team", nil}}).All(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "eve", rows[0]["name"])

	rows, err = players.OrderBy("id").Limit(2).Offset(1).All(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "bob", rows[0]["name"])

	rows, err = players.OrderBy("id").Offset(4).All(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "eve", rows[0]["name"])
}

func TestQuery_LogicalFilters(t *testing.T) {
	db := setupTestDB(t)

	rows, err := New(db).From("players").
		Find(M{{"$or", []any{M{{"score", M{{"$lt", 15}}}}, M{{"score", M{{"$gt", 45}}}}}}}).
		OrderBy("id").
		All(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "ann", rows[0]["name"])
	assert.Equal(t, "eve", rows[1]["name"])
}

func TestQuery_Each(t *testing.T) {
	db := setupTestDB(t)

	var names []string
	n, err := New(db).From("players").OrderBy("id").Each(context.Background(), func(r database.Row) error {
		names = append(names, r["name"].(string))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, []string{"ann", "bob", "cid", "dee", "eve"}, names)
}

func TestQuery_Count(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	players := New(db).From("players")

	n, err := players.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	n, err = players.Find(M{{"active", 1}}).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = players.GroupBy("team").Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n, "red, blue and NULL groups")

	_, err = players.Limit(1).Count(ctx)
	assert.ErrorIs(t, err, tools.ErrInvalidQueryShape)
}

func TestQuery_Update(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	players := New(db).From("players")

	changed, err := players.Find(M{{"team", "red"}}).Update(ctx, M{{"score", 0}, {"active", false}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), changed)

	row, err := players.Find(M{{"name", "ann"}}).Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), row["score"])
	assert.Equal(t, int64(0), row["active"])

	_, err = players.OrderBy("id").Update(ctx, M{{"score", 1}})
	assert.ErrorIs(t, err, tools.ErrInvalidQueryShape)
}

func TestQuery_Remove(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	players := New(db).From("players")

	_, err := players.Find(M{{"team", "red"}}).OrderBy("id").Remove(ctx)
	require.ErrorIs(t, err, tools.ErrInvalidQueryShape)

	removed, err := players.Find(M{{"team", "red"}}).Remove(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	removed, err = players.Remove(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)
}

func TestQuery_EngineErrorWrapsSQL(t *testing.T) {
	db := setupTestDB(t)

	_, err := New(db).From("missing").Find(M{{"a", 1}}).All(context.Background())
	require.Error(t, err)

	var engineErr *database.EngineError
	require.True(t, errors.As(err, &engineErr))
	assert.Equal(t, "SELECT * FROM missing WHERE (a = $p1)", engineErr.SQL)
	assert.Equal(t, tools.CodeTableNotFound, tools.DescribeError(err).Code)
}

// =============================================================================
// Stream Tests
// =============================================================================

func TestStream_ReadsAllRows(t *testing.T) {
	db := setupTestDB(t)

	s, err := New(db).From("players").OrderBy("id").Stream(context.Background(), StreamOptions{Prefetch: 2})
	require.NoError(t, err)

	var names []string
	for s.Next() {
		names = append(names, s.Row()["name"].(string))
	}
	require.NoError(t, s.Err())
	require.NoError(t, s.Close())
	assert.Equal(t, []string{"ann", "bob", "cid", "dee", "eve"}, names)
	assert.True(t, s.Statement().Finalized())
	assert.False(t, s.Next())
}

func TestStream_CloseEarlyReleasesConnection(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	s, err := New(db).From("players").OrderBy("id").Stream(ctx, StreamOptions{Prefetch: 1})
	require.NoError(t, err)

	require.True(t, s.Next())
	assert.Equal(t, "ann", s.Row()["name"])
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.NoError(t, s.Err())
	assert.True(t, s.Statement().Finalized())

	// The single connection must be free again.
	n, err := New(db).From("players").Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}

func TestStream_CallerCancelIsReported(t *testing.T) {
	db := setupTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := New(db).From("players").OrderBy("id").Stream(ctx, StreamOptions{Prefetch: 1})
	require.NoError(t, err)

	require.True(t, s.Next())
	cancel()
	<-s.done

	rows := 1
	for s.Next() {
		rows++
	}
	assert.Less(t, rows, 5)
	assert.ErrorIs(t, s.Err(), context.Canceled)

	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Err(), context.Canceled, "Close keeps the caller's error")
	assert.True(t, s.Statement().Finalized())
}

func TestStream_KeepStatement(t *testing.T) {
	db := setupTestDB(t)

	s, err := New(db).From("players").Stream(context.Background(), StreamOptions{KeepStatement: true})
	require.NoError(t, err)
	for s.Next() {
	}
	require.NoError(t, s.Close())

	stmt := s.Statement()
	assert.False(t, stmt.Finalized())
	require.NoError(t, stmt.Finalize())
}

func TestStream_ValidationError(t *testing.T) {
	db := setupTestDB(t)

	_, err := New(db).From("players").Limit(0).Stream(context.Background(), StreamOptions{})
	assert.ErrorIs(t, err, tools.ErrInvalidLimit)
}

// =============================================================================
// Writer Tests
// =============================================================================

func TestRowWriter_Batches(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	w := NewRowWriter(db, "players", WriterOptions{})
	defer w.Close()

	batch := make([]M, 0, 10)
	for i := 0; i < 10; i++ {
		batch = append(batch, M{{"name", fmt.Sprintf("p%d", i)}, {"score", i}})
	}
	n, err := w.Write(ctx, batch...)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, []string{"name", "score"}, w.Columns())

	// Same columns in a different order are accepted.
	n, err = w.Write(ctx, M{{"score", 99}, {"name", "late"}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	count, err := New(db).From("players").Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(16), count)
}

func TestRowWriter_ShapeMismatch(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	w := NewRowWriter(db, "players", WriterOptions{})
	defer w.Close()

	_, err := w.Write(ctx, M{{"name", "x"}, {"score", 1}}, M{{"name", "y"}, {"team", "red"}})
	require.ErrorIs(t, err, tools.ErrRowShapeMismatch)

	count, err := New(db).From("players").Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), count, "failed batch writes nothing")
}

func TestRowWriter_BatchIsAtomic(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	w := NewRowWriter(db, "players", WriterOptions{})
	defer w.Close()

	_, err := w.Write(ctx, M{{"name", "new"}}, M{{"name", "ann"}})
	require.Error(t, err)
	assert.True(t, database.IsUniqueViolation(err))

	row, err := New(db).From("players").Find(M{{"name", "new"}}).Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestRowWriter_Replace(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	w := NewRowWriter(db, "players", WriterOptions{Replace: true})
	_, err := w.Write(ctx, M{{"id", 1}, {"name", "ann"}, {"score", 1000}})
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	row, err := New(db).From("players").Find(M{{"id", 1}}).Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), row["score"])
	assert.Nil(t, row["team"], "replace rewrites the whole row")
}
