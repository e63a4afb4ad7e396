// Package store persists floors and their space polygons in Postgres. It is
// both a floor source for the loader and a commit sink for the editor.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studiospace/plankit/internal/editor"
	"github.com/studiospace/plankit/internal/plan"
)

// ErrNotFound is returned when a floor or space does not exist.
var ErrNotFound = plan.ErrFloorNotFound

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Store struct {
	db DB
}

func New(db DB) *Store {
	return &Store{db: db}
}

// Connect opens a pool and checks connectivity.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS floors (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	width      DOUBLE PRECISION NOT NULL DEFAULT 0,
	height     DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS spaces (
	id         TEXT NOT NULL,
	floor_id   TEXT NOT NULL REFERENCES floors(id) ON DELETE CASCADE,
	label      TEXT NOT NULL DEFAULT '',
	department TEXT NOT NULL DEFAULT '',
	polygon    JSONB NOT NULL,
	revision   BIGINT NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (floor_id, id)
);`

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// LoadFloor returns a floor with its spaces in revision order.
func (s *Store) LoadFloor(ctx context.Context, floorID string) (*plan.Floor, error) {
	f := plan.Floor{ID: floorID}
	err := s.db.QueryRow(ctx,
		`SELECT name, width, height FROM floors WHERE id = $1`, floorID,
	).Scan(&f.Name, &f.Width, &f.Height)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("floor %s: %w", floorID, ErrNotFound)
		}
		return nil, fmt.Errorf("get floor: %w", err)
	}

	rows, err := s.db.Query(ctx,
		`SELECT id, label, department, polygon, revision FROM spaces
		 WHERE floor_id = $1 ORDER BY revision, id`, floorID)
	if err != nil {
		return nil, fmt.Errorf("list spaces: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			sp  plan.Space
			raw []byte
			rev int64
		)
		if err := rows.Scan(&sp.ID, &sp.Label, &sp.Department, &raw, &rev); err != nil {
			return nil, fmt.Errorf("scan space: %w", err)
		}
		if err := json.Unmarshal(raw, &sp.Vertices); err != nil {
			return nil, fmt.Errorf("decode polygon of space %s: %w", sp.ID, err)
		}
		sp.Revision = uint64(max(rev, 0))
		f.Spaces = append(f.Spaces, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list spaces: %w", err)
	}
	return &f, nil
}

// SaveFloor upserts a floor and replaces all of its spaces.
func (s *Store) SaveFloor(ctx context.Context, f *plan.Floor) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO floors (id, name, width, height) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, width = EXCLUDED.width,
		 height = EXCLUDED.height, updated_at = now()`,
		f.ID, f.Name, f.Width, f.Height)
	if err != nil {
		return fmt.Errorf("upsert floor: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM spaces WHERE floor_id = $1`, f.ID); err != nil {
		return fmt.Errorf("clear spaces: %w", err)
	}

	for i, sp := range f.Spaces {
		poly, err := json.Marshal(sp.Vertices)
		if err != nil {
			return fmt.Errorf("encode polygon of space %s: %w", sp.ID, err)
		}
		rev := sp.Revision
		if rev == 0 {
			rev = uint64(i + 1)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO spaces (id, floor_id, label, department, polygon, revision)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			sp.ID, f.ID, sp.Label, sp.Department, poly, int64(rev))
		if err != nil {
			return fmt.Errorf("insert space %s: %w", sp.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// SavePolygon stores a committed polygon as an ordered [x, y] array.
func (s *Store) SavePolygon(ctx context.Context, floorID, spaceID string, polygon [][2]float64, revision uint64) error {
	poly, err := json.Marshal(polygon)
	if err != nil {
		return fmt.Errorf("encode polygon: %w", err)
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE spaces SET polygon = $1, revision = $2, updated_at = now()
		 WHERE floor_id = $3 AND id = $4`,
		poly, int64(revision), floorID, spaceID)
	if err != nil {
		return fmt.Errorf("update polygon: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("space %s on floor %s: %w", spaceID, floorID, ErrNotFound)
	}
	return nil
}

// PolygonCommitted implements editor.CommitSink.
func (s *Store) PolygonCommitted(ctx context.Context, c editor.Commit) error {
	return s.SavePolygon(ctx, c.FloorID, c.SpaceID, c.Polygon, c.Revision)
}
