// Package editor implements interactive polygon editing. An Editor allows
// one active session per floor; committing a session is the only way edits
// reach the hit-test index.
package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/studiospace/plankit/internal/engine"
	"github.com/studiospace/plankit/internal/geometry"
	"github.com/studiospace/plankit/internal/typeid"
)

var (
	ErrSessionActive = errors.New("an edit session is already active for this floor")
	ErrNoSession     = errors.New("edit session is closed")
	ErrVertexIndex   = errors.New("vertex index out of range")
	ErrUnknownSpace  = errors.New("unknown space")
)

// Config controls commit-time simplification and snapping.
type Config struct {
	SimplifyTolerance float64
	SnapToleranceDeg  float64
	SnapAngles        []float64
	MinPolygonArea    float64
}

// DefaultConfig returns the default editor configuration.
func DefaultConfig() Config {
	return Config{
		SimplifyTolerance: 0.5,
		SnapToleranceDeg:  7,
		SnapAngles:        []float64{0, 45, 90},
		MinPolygonArea:    1,
	}
}

// Commit describes a committed polygon. Polygon is the ordered [x, y] array
// in winding order.
type Commit struct {
	EditID      string       `json:"editId"`
	FloorID     string       `json:"floorId"`
	SpaceID     string       `json:"spaceId"`
	Polygon     [][2]float64 `json:"polygon"`
	Revision    uint64       `json:"revision"`
	CommittedAt time.Time    `json:"committedAt"`
}

// CommitSink receives committed polygons after they are published to the
// index.
type CommitSink interface {
	PolygonCommitted(ctx context.Context, c Commit) error
}

// SinkFunc adapts a function to CommitSink.
type SinkFunc func(ctx context.Context, c Commit) error

func (f SinkFunc) PolygonCommitted(ctx context.Context, c Commit) error { return f(ctx, c) }

// Editor hands out edit sessions and delivers commits to sinks.
type Editor struct {
	cfg   Config
	sinks []CommitSink

	mu     sync.Mutex
	active map[string]*Session // by floor id
}

// New creates an editor.
func New(cfg Config, sinks ...CommitSink) *Editor {
	return &Editor{cfg: cfg, sinks: sinks, active: make(map[string]*Session)}
}

// Begin opens an edit session on a space of eng's current snapshot.
func (ed *Editor) Begin(eng *engine.Engine, spaceID string) (*Session, error) {
	base := eng.Snapshot()
	entry, ok := base.Set.Get(spaceID)
	if !ok {
		return nil, fmt.Errorf("begin edit of %s: %w", spaceID, ErrUnknownSpace)
	}

	ed.mu.Lock()
	defer ed.mu.Unlock()
	if cur, busy := ed.active[eng.FloorID()]; busy {
		return nil, fmt.Errorf("begin edit of %s (active: %s): %w", spaceID, cur.space.ID, ErrSessionActive)
	}

	s := &Session{
		ed:     ed,
		eng:    eng,
		id:     typeid.NewEditID(),
		base:   base,
		space:  entry.Space,
		poly:   entry.Polygon.Clone(),
		moved:  -1,
	}
	ed.active[eng.FloorID()] = s
	slog.Debug("edit session started", "floor", eng.FloorID(), "space", spaceID, "edit", s.id)
	return s, nil
}

// Active returns the active session for a floor, if any.
func (ed *Editor) Active(floorID string) (*Session, bool) {
	ed.mu.Lock()
	defer ed.mu.Unlock()
	s, ok := ed.active[floorID]
	return s, ok
}

func (ed *Editor) release(s *Session) {
	ed.mu.Lock()
	defer ed.mu.Unlock()
	if ed.active[s.eng.FloorID()] == s {
		delete(ed.active, s.eng.FloorID())
	}
}

// deliver hands c to every sink. Failures do not stop later sinks.
func (ed *Editor) deliver(ctx context.Context, c Commit) error {
	var errs []error
	for _, sink := range ed.sinks {
		if err := sink.PolygonCommitted(ctx, c); err != nil {
			slog.Error("commit sink failed", "floor", c.FloorID, "space", c.SpaceID, "edit", c.EditID, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// snapAngles falls back to the configured angle set.
func (ed *Editor) snapAngles(angles []float64) []float64 {
	if len(angles) == 0 {
		return ed.cfg.SnapAngles
	}
	return angles
}

func validateVertex(p geometry.Point) error {
	if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
		return fmt.Errorf("%w: vertex (%g, %g) is not finite", geometry.ErrInvalidPolygon, p.X, p.Y)
	}
	return nil
}
