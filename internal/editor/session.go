package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/studiospace/plankit/internal/engine"
	"github.com/studiospace/plankit/internal/geometry"
	"github.com/studiospace/plankit/internal/plan"
)

// Session is an in-progress edit of one space. Mutations apply to a private
// copy of the polygon; hit tests keep seeing the published polygon until
// Commit.
type Session struct {
	ed   *Editor
	eng  *engine.Engine
	id   string
	base *engine.Snapshot

	mu     sync.Mutex
	space  plan.Space
	poly   geometry.Polygon
	moved  int
	closed bool
}

// Result is the outcome of a successful commit. SinkErr holds sink failures;
// the edit is published regardless.
type Result struct {
	Snapshot *engine.Snapshot
	Commit   Commit
	SinkErr  error
}

// ID returns the session's edit id.
func (s *Session) ID() string { return s.id }

// SpaceID returns the id of the space under edit.
func (s *Session) SpaceID() string { return s.space.ID }

// Vertices returns a copy of the working polygon.
func (s *Session) Vertices() geometry.Polygon {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.poly.Clone()
}

func (s *Session) check(i, n int) error {
	if s.closed {
		return ErrNoSession
	}
	if i < 0 || i >= n {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrVertexIndex, i, n)
	}
	return nil
}

// AddVertex inserts p before index i; i == len appends.
func (s *Session) AddVertex(i int, p geometry.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(i, len(s.poly)+1); err != nil {
		return err
	}
	if err := validateVertex(p); err != nil {
		return err
	}
	s.poly = append(s.poly[:i], append(geometry.Polygon{p}, s.poly[i:]...)...)
	s.moved = i
	return nil
}

// RemoveVertex deletes vertex i. It fails with geometry.ErrInvalidPolygon,
// leaving the polygon unchanged, if fewer than three vertices would remain.
func (s *Session) RemoveVertex(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(i, len(s.poly)); err != nil {
		return err
	}
	if len(s.poly)-1 < geometry.MinVertices {
		return fmt.Errorf("%w: removing vertex %d leaves %d vertices", geometry.ErrInvalidPolygon, i, len(s.poly)-1)
	}
	s.poly = append(s.poly[:i:i], s.poly[i+1:]...)
	s.moved = -1
	return nil
}

// MoveVertex sets vertex i to p.
func (s *Session) MoveVertex(i int, p geometry.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(i, len(s.poly)); err != nil {
		return err
	}
	if err := validateVertex(p); err != nil {
		return err
	}
	s.poly[i] = p
	s.moved = i
	return nil
}

// Snap rotates the most recently moved or added vertex about its previous
// neighbour to the nearest angle in angles (the configured set when empty).
// It reports whether the vertex was changed.
func (s *Session) Snap(angles []float64) (bool, error) {
	s.mu.Lock()
	i := s.moved
	s.mu.Unlock()
	return s.SnapVertex(i, angles)
}

// SnapVertex is Snap for an explicit vertex.
func (s *Session) SnapVertex(i int, angles []float64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(i, len(s.poly)); err != nil {
		return false, err
	}
	anchor := s.poly[(i-1+len(s.poly))%len(s.poly)]
	p, ok := SnapPoint(anchor, s.poly[i], s.ed.snapAngles(angles), s.ed.cfg.SnapToleranceDeg)
	if ok {
		s.poly[i] = p
	}
	return ok, nil
}

// Replace swaps the whole working polygon.
func (s *Session) Replace(poly geometry.Polygon) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrNoSession
	}
	if err := geometry.Validate(poly, 0); err != nil {
		return err
	}
	s.poly = poly.Clone()
	s.moved = -1
	return nil
}

// Cancel discards the session.
func (s *Session) Cancel() {
	s.mu.Lock()
	wasOpen := !s.closed
	s.closed = true
	s.mu.Unlock()
	if wasOpen {
		s.ed.release(s)
	}
}

// Commit simplifies and validates the working polygon, rebuilds the index
// with the full updated polygon set and publishes it. If validation fails
// the session stays open and the published state is untouched. Sinks run
// after publishing.
func (s *Session) Commit(ctx context.Context) (*Result, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrNoSession
	}

	simplified := geometry.Simplify(s.poly, s.ed.cfg.SimplifyTolerance)
	if err := geometry.Validate(simplified, s.ed.cfg.MinPolygonArea); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("commit %s: %w", s.space.ID, err)
	}

	sp := s.space
	sp.Vertices = simplified.Pairs()
	set, err := s.base.Set.Replace(sp)
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("commit %s: %w", s.space.ID, err)
	}
	next, err := engine.BuildSnapshot(s.base.Floor, set, s.eng.Config().Index)
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("commit %s: %w", s.space.ID, err)
	}
	if err := s.eng.CompareAndPublish(s.base, next); err != nil {
		s.closed = true
		s.mu.Unlock()
		s.ed.release(s)
		return nil, fmt.Errorf("commit %s: %w", s.space.ID, err)
	}
	s.closed = true
	s.mu.Unlock()
	s.ed.release(s)

	committed, _ := set.Get(sp.ID)
	c := Commit{
		EditID:      s.id,
		FloorID:     s.eng.FloorID(),
		SpaceID:     sp.ID,
		Polygon:     committed.Space.Vertices,
		Revision:    committed.Space.Revision,
		CommittedAt: time.Now().UTC(),
	}
	slog.Info("polygon committed",
		"floor", c.FloorID, "space", c.SpaceID, "edit", c.EditID,
		"vertices", len(c.Polygon), "revision", c.Revision, "version", next.Version)

	res := &Result{Snapshot: next, Commit: c}
	res.SinkErr = s.ed.deliver(ctx, c)
	return res, nil
}

// IsStale reports whether err means the floor was reloaded during the edit.
func IsStale(err error) bool { return errors.Is(err, engine.ErrStaleSnapshot) }
