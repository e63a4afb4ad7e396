package editor

import (
	"context"
	"errors"
	"fmt"

	"github.com/studiospace/plankit/internal/engine"
	"github.com/studiospace/plankit/internal/geometry"
)

// ErrInvalidOp is returned for a malformed edit operation.
var ErrInvalidOp = errors.New("invalid edit operation")

// Edit operation types accepted by Apply.
const (
	OpVertexAdd      = "vertex.add"
	OpVertexRemove   = "vertex.remove"
	OpVertexMove     = "vertex.move"
	OpVertexSnap     = "vertex.snap"
	OpPolygonReplace = "polygon.replace"
)

// Op is one edit step, as received from the HTTP or websocket surface.
type Op struct {
	Type    string          `json:"type"`
	Index   int             `json:"index"`
	Point   *geometry.Point `json:"point,omitempty"`
	Angles  []float64       `json:"angles,omitempty"`
	Polygon [][2]float64    `json:"polygon,omitempty"`
}

// Apply runs one operation against the session.
func (s *Session) Apply(op Op) error {
	switch op.Type {
	case OpVertexAdd:
		if op.Point == nil {
			return fmt.Errorf("%w: %s requires a point", ErrInvalidOp, op.Type)
		}
		return s.AddVertex(op.Index, *op.Point)
	case OpVertexRemove:
		return s.RemoveVertex(op.Index)
	case OpVertexMove:
		if op.Point == nil {
			return fmt.Errorf("%w: %s requires a point", ErrInvalidOp, op.Type)
		}
		return s.MoveVertex(op.Index, *op.Point)
	case OpVertexSnap:
		_, err := s.SnapVertex(op.Index, op.Angles)
		return err
	case OpPolygonReplace:
		return s.Replace(geometry.FromPairs(op.Polygon))
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidOp, op.Type)
	}
}

// ApplyAndCommit opens a session on spaceID, applies ops in order and
// commits. Any failure cancels the session and leaves the published state
// unchanged.
func (ed *Editor) ApplyAndCommit(ctx context.Context, eng *engine.Engine, spaceID string, ops []Op) (*Result, error) {
	s, err := ed.Begin(eng, spaceID)
	if err != nil {
		return nil, err
	}
	defer s.Cancel()

	for i, op := range ops {
		if err := s.Apply(op); err != nil {
			return nil, fmt.Errorf("op %d (%s): %w", i, op.Type, err)
		}
	}
	return s.Commit(ctx)
}
