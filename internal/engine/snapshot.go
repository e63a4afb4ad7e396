package engine

import (
	"github.com/studiospace/plankit/internal/geometry"
	"github.com/studiospace/plankit/internal/plan"
	"github.com/studiospace/plankit/internal/quadtree"
)

// Snapshot is an immutable (index, polygon set) pair. Readers obtain it from
// Engine.Snapshot and never see a partially built one.
type Snapshot struct {
	Floor   FloorMeta
	Set     *plan.PolygonSet
	Index   *quadtree.Tree
	Version uint64
}

// FloorMeta is the floor metadata carried alongside a snapshot.
type FloorMeta struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Empty reports whether the snapshot has nothing to hit.
func (s *Snapshot) Empty() bool {
	return s == nil || s.Index == nil || s.Index.Len() == 0
}

// Candidates returns the index candidates for a plan point in resolution
// order.
func (s *Snapshot) Candidates(p geometry.Point) []quadtree.Ref {
	if s.Empty() {
		return nil
	}
	return s.Index.Query(p)
}

// Resolve tests candidates in index order and returns the first space that
// contains p, or "" when none does. It also returns the candidate count.
func (s *Snapshot) Resolve(p geometry.Point) (string, int) {
	cands := s.Candidates(p)
	for _, c := range cands {
		e, ok := s.Set.Get(c.ID)
		if !ok {
			continue
		}
		if geometry.PointInPolygon(p, e.Polygon) {
			return c.ID, len(cands)
		}
	}
	return "", len(cands)
}

// PlanFloor returns the floor metadata with its current spaces.
func (s *Snapshot) PlanFloor() *plan.Floor {
	return &plan.Floor{
		ID:     s.Floor.ID,
		Name:   s.Floor.Name,
		Width:  s.Floor.Width,
		Height: s.Floor.Height,
		Spaces: s.Set.Spaces(),
	}
}

// Outline is a space outline in plan coordinates for overlay drawing.
type Outline struct {
	SpaceID  string       `json:"spaceId"`
	Label    string       `json:"label,omitempty"`
	Polygon  [][2]float64 `json:"polygon"`
	Revision uint64       `json:"revision"`
}

// Outlines returns every space outline in set order. Canvas clients draw
// them with the view matrix from Transform.Matrix.
func (s *Snapshot) Outlines() []Outline {
	if s == nil || s.Set == nil {
		return nil
	}
	spaces := s.Set.Spaces()
	out := make([]Outline, len(spaces))
	for i, sp := range spaces {
		out[i] = Outline{SpaceID: sp.ID, Label: sp.Label, Polygon: sp.Vertices, Revision: sp.Revision}
	}
	return out
}
