package store

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studiospace/plankit/internal/editor"
)

type execCall struct {
	sql  string
	args []any
}

// fakeDB records Exec calls and answers QueryRow with a fixed error.
type fakeDB struct {
	execs   []execCall
	tag     pgconn.CommandTag
	execErr error
	rowErr  error
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, execCall{sql: sql, args: args})
	return f.tag, f.execErr
}

func (f *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not supported")
}

func (f *fakeDB) QueryRow(context.Context, string, ...any) pgx.Row {
	return errRow{f.rowErr}
}

func (f *fakeDB) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("not supported")
}

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }

func TestLoadFloorNotFound(t *testing.T) {
	s := New(&fakeDB{rowErr: pgx.ErrNoRows})
	_, err := s.LoadFloor(context.Background(), "floor-x")
	assert.ErrorIs(t, err, ErrNotFound)

	s = New(&fakeDB{rowErr: errors.New("conn reset")})
	_, err = s.LoadFloor(context.Background(), "floor-x")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestPolygonCommittedWritesOrderedPairs(t *testing.T) {
	db := &fakeDB{tag: pgconn.NewCommandTag("UPDATE 1")}
	s := New(db)

	err := s.PolygonCommitted(context.Background(), editor.Commit{
		FloorID:  "f1",
		SpaceID:  "s1",
		Polygon:  [][2]float64{{0, 0}, {10, 0}, {10, 10}},
		Revision: 7,
	})
	require.NoError(t, err)
	require.Len(t, db.execs, 1)
	args := db.execs[0].args
	assert.JSONEq(t, `[[0,0],[10,0],[10,10]]`, string(args[0].([]byte)))
	assert.Equal(t, int64(7), args[1])
	assert.Equal(t, "f1", args[2])
	assert.Equal(t, "s1", args[3])
}

func TestSavePolygonUnknownSpace(t *testing.T) {
	s := New(&fakeDB{tag: pgconn.NewCommandTag("UPDATE 0")})
	err := s.SavePolygon(context.Background(), "f1", "nope", [][2]float64{{0, 0}, {1, 0}, {0, 1}}, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEnsureSchema(t *testing.T) {
	db := &fakeDB{}
	require.NoError(t, New(db).EnsureSchema(context.Background()))
	require.Len(t, db.execs, 1)
	assert.Contains(t, db.execs[0].sql, "CREATE TABLE IF NOT EXISTS spaces")
}
