package editor

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studiospace/plankit/internal/engine"
	"github.com/studiospace/plankit/internal/geometry"
	"github.com/studiospace/plankit/internal/plan"
)

type captureSink struct {
	mu      sync.Mutex
	commits []Commit
	err     error
}

func (c *captureSink) PolygonCommitted(_ context.Context, cm Commit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commits = append(c.commits, cm)
	return c.err
}

func newEngine(t *testing.T, spaces ...plan.Space) *engine.Engine {
	t.Helper()
	e := engine.New("floor-1", engine.DefaultConfig(), nil)
	_, err := e.LoadFloor(&plan.Floor{ID: "floor-1", Width: 1000, Height: 1000, Spaces: spaces})
	require.NoError(t, err)
	return e
}

func triangle(id string) plan.Space {
	return plan.Space{ID: id, Vertices: [][2]float64{{0, 0}, {100, 0}, {0, 100}}}
}

func square(id string, x, y, size float64) plan.Space {
	return plan.Space{ID: id, Vertices: [][2]float64{{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}}}
}

func hit(e *engine.Engine, x, y float64) string {
	return e.HitTest(engine.Sample{X: x, Y: y}).SpaceID
}

func TestRemoveVertexOnTriangleFails(t *testing.T) {
	eng := newEngine(t, triangle("T"))
	ed := New(DefaultConfig())

	s, err := ed.Begin(eng, "T")
	require.NoError(t, err)
	before := s.Vertices()

	err = s.RemoveVertex(1)
	require.Error(t, err)
	assert.ErrorIs(t, err, geometry.ErrInvalidPolygon)
	assert.Equal(t, before, s.Vertices())
}

func TestEditsInvisibleUntilCommit(t *testing.T) {
	eng := newEngine(t, square("S", 0, 0, 100))
	sink := &captureSink{}
	ed := New(DefaultConfig(), sink)

	s, err := ed.Begin(eng, "S")
	require.NoError(t, err)
	require.NoError(t, s.MoveVertex(2, geometry.Pt(200, 200)))
	assert.Empty(t, hit(eng, 140, 140))

	res, err := s.Commit(context.Background())
	require.NoError(t, err)
	require.NoError(t, res.SinkErr)
	assert.Same(t, res.Snapshot, eng.Snapshot())
	assert.Equal(t, "S", hit(eng, 140, 140))

	require.Len(t, sink.commits, 1)
	c := sink.commits[0]
	assert.Equal(t, "S", c.SpaceID)
	assert.Equal(t, "floor-1", c.FloorID)
	assert.Equal(t, [][2]float64{{0, 0}, {100, 0}, {200, 200}, {0, 100}}, c.Polygon)
	assert.Equal(t, uint64(2), c.Revision)

	_, ok := ed.Active("floor-1")
	assert.False(t, ok)
	_, err = s.Commit(context.Background())
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestCommitSimplifies(t *testing.T) {
	eng := newEngine(t, square("S", 0, 0, 100))
	ed := New(DefaultConfig())

	s, err := ed.Begin(eng, "S")
	require.NoError(t, err)
	require.NoError(t, s.AddVertex(1, geometry.Pt(50, 0.1)))
	require.Len(t, s.Vertices(), 5)

	res, err := s.Commit(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Commit.Polygon, 4)
}

func TestOneSessionPerFloor(t *testing.T) {
	eng := newEngine(t, square("A", 0, 0, 10), square("B", 20, 0, 10))
	other := engine.New("floor-2", engine.DefaultConfig(), nil)
	_, err := other.LoadFloor(&plan.Floor{ID: "floor-2", Spaces: []plan.Space{square("C", 0, 0, 10)}})
	require.NoError(t, err)
	ed := New(DefaultConfig())

	s, err := ed.Begin(eng, "A")
	require.NoError(t, err)

	_, err = ed.Begin(eng, "B")
	assert.ErrorIs(t, err, ErrSessionActive)

	_, err = ed.Begin(other, "C")
	assert.NoError(t, err)

	s.Cancel()
	_, err = ed.Begin(eng, "B")
	assert.NoError(t, err)
}

func TestBeginUnknownSpace(t *testing.T) {
	eng := newEngine(t, square("A", 0, 0, 10))
	_, err := New(DefaultConfig()).Begin(eng, "nope")
	assert.ErrorIs(t, err, ErrUnknownSpace)
}

func TestInvalidCommitKeepsPublishedState(t *testing.T) {
	eng := newEngine(t, square("S", 0, 0, 100))
	ed := New(DefaultConfig())
	before := eng.Snapshot()

	s, err := ed.Begin(eng, "S")
	require.NoError(t, err)
	// Collapse the square onto a line.
	require.NoError(t, s.MoveVertex(2, geometry.Pt(100, 0)))
	require.NoError(t, s.MoveVertex(3, geometry.Pt(50, 0)))

	_, err = s.Commit(context.Background())
	assert.ErrorIs(t, err, geometry.ErrInvalidPolygon)
	assert.Same(t, before, eng.Snapshot())
	assert.Equal(t, "S", hit(eng, 50, 50))

	// Still open: fix and retry.
	require.NoError(t, s.MoveVertex(2, geometry.Pt(100, 100)))
	require.NoError(t, s.MoveVertex(3, geometry.Pt(0, 100)))
	_, err = s.Commit(context.Background())
	assert.NoError(t, err)
}

func TestSinkFailureDoesNotUnpublish(t *testing.T) {
	eng := newEngine(t, square("S", 0, 0, 100))
	failing := &captureSink{err: errors.New("db down")}
	after := &captureSink{}
	ed := New(DefaultConfig(), failing, after)

	s, err := ed.Begin(eng, "S")
	require.NoError(t, err)
	require.NoError(t, s.MoveVertex(2, geometry.Pt(150, 150)))

	res, err := s.Commit(context.Background())
	require.NoError(t, err)
	assert.EqualError(t, res.SinkErr, "db down")
	assert.Len(t, after.commits, 1)
	assert.Equal(t, "S", hit(eng, 120, 120))
}

func TestCommitAfterReloadIsStale(t *testing.T) {
	eng := newEngine(t, square("S", 0, 0, 100))
	ed := New(DefaultConfig())

	s, err := ed.Begin(eng, "S")
	require.NoError(t, err)
	_, err = eng.LoadFloor(&plan.Floor{ID: "floor-1", Spaces: []plan.Space{square("S", 500, 500, 10)}})
	require.NoError(t, err)

	_, err = s.Commit(context.Background())
	assert.True(t, IsStale(err))
	assert.Equal(t, "S", hit(eng, 505, 505))

	_, ok := ed.Active("floor-1")
	assert.False(t, ok)
}

func TestVertexIndexBounds(t *testing.T) {
	eng := newEngine(t, square("S", 0, 0, 100))
	s, err := New(DefaultConfig()).Begin(eng, "S")
	require.NoError(t, err)

	assert.ErrorIs(t, s.MoveVertex(4, geometry.Pt(1, 1)), ErrVertexIndex)
	assert.ErrorIs(t, s.RemoveVertex(-1), ErrVertexIndex)
	assert.ErrorIs(t, s.AddVertex(6, geometry.Pt(1, 1)), ErrVertexIndex)
	assert.NoError(t, s.AddVertex(4, geometry.Pt(-10, 50)))
	assert.Len(t, s.Vertices(), 5)
}

func TestSnapPoint(t *testing.T) {
	angles := []float64{0, 45, 90}
	anchor := geometry.Pt(0, 0)

	tests := []struct {
		name   string
		v      geometry.Point
		want   geometry.Point
		snaped bool
	}{
		{"near horizontal", geometry.Pt(10, 0.5), geometry.Pt(10.012492, 0), true},
		{"near vertical", geometry.Pt(0.3, 10), geometry.Pt(0, 10.004499), true},
		{"near diagonal", geometry.Pt(-7, 7.5), geometry.Pt(-7.254309, 7.254309), true},
		{"near reversed horizontal", geometry.Pt(-10, -0.5), geometry.Pt(-10.012492, 0), true},
		{"between", geometry.Pt(10, 5), geometry.Pt(10, 5), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SnapPoint(anchor, tt.v, angles, 7)
			assert.Equal(t, tt.snaped, ok)
			assert.InDelta(t, tt.want.X, got.X, 1e-5)
			assert.InDelta(t, tt.want.Y, got.Y, 1e-5)
		})
	}

	_, ok := SnapPoint(anchor, anchor, angles, 7)
	assert.False(t, ok)
}

func TestSessionSnapUsesMovedVertex(t *testing.T) {
	eng := newEngine(t, square("S", 0, 0, 100))
	s, err := New(DefaultConfig()).Begin(eng, "S")
	require.NoError(t, err)

	// Vertex 1's anchor is vertex 0 at the origin.
	require.NoError(t, s.MoveVertex(1, geometry.Pt(100, 4)))
	ok, err := s.Snap(nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.InDelta(t, 0, s.Vertices()[1].Y, 1e-9)

	require.NoError(t, s.MoveVertex(1, geometry.Pt(100, 30)))
	ok, err = s.Snap(nil)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, geometry.Pt(100, 30), s.Vertices()[1])
}

func TestApplyAndCommit(t *testing.T) {
	eng := newEngine(t, square("S", 0, 0, 100))
	ed := New(DefaultConfig())
	pt := geometry.Pt(200, 50)

	res, err := ed.ApplyAndCommit(context.Background(), eng, "S", []Op{
		{Type: OpVertexAdd, Index: 2, Point: &pt},
		{Type: OpVertexSnap, Index: 2},
	})
	require.NoError(t, err)
	assert.Len(t, res.Commit.Polygon, 5)
	assert.Equal(t, "S", hit(eng, 150, 50))

	_, err = ed.ApplyAndCommit(context.Background(), eng, "S", []Op{{Type: OpVertexRemove, Index: 0}, {Type: "bogus"}})
	assert.ErrorIs(t, err, ErrInvalidOp)
	_, ok := ed.Active("floor-1")
	assert.False(t, ok)

	_, err = ed.ApplyAndCommit(context.Background(), eng, "S", []Op{
		{Type: OpPolygonReplace, Polygon: [][2]float64{{0, 0}, {10, 0}, {0, 10}}},
	})
	require.NoError(t, err)
	assert.Empty(t, hit(eng, 150, 50))
}
