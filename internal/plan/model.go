// Package plan holds the floor-plan data model shared by the loader, the
// engine and the editor: floors, their spaces and the immutable polygon set
// the spatial index is built from.
package plan

import (
	"errors"
	"fmt"

	"github.com/studiospace/plankit/internal/geometry"
)

// ErrFloorNotFound is returned by floor sources that have no such floor.
var ErrFloorNotFound = errors.New("floor not found")

// Floor is one plan document's worth of spaces. Width and Height are the
// plan's pixel dimensions as reported by the document loader.
type Floor struct {
	ID     string  `json:"id" yaml:"id"`
	Name   string  `json:"name" yaml:"name"`
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
	Spaces []Space `json:"spaces" yaml:"spaces"`
}

// Space is a polygon-delimited area on a floor. Vertices are plan-space
// [x, y] pairs in winding order.
type Space struct {
	ID         string       `json:"id" yaml:"id"`
	Label      string       `json:"label,omitempty" yaml:"label"`
	Department string       `json:"department,omitempty" yaml:"department"`
	Vertices   [][2]float64 `json:"polygon" yaml:"polygon"`
	Revision   uint64       `json:"revision,omitempty" yaml:"-"`
}

// Polygon returns the space's vertices as a geometry.Polygon.
func (s Space) Polygon() geometry.Polygon {
	return geometry.FromPairs(s.Vertices)
}

// Bounds returns the plan rectangle from the floor's pixel dimensions.
func (f *Floor) Bounds() geometry.BoundingBox {
	return geometry.Rect(0, 0, f.Width, f.Height)
}

// Validate checks floor metadata and every space polygon. It stops at the
// first problem.
func (f *Floor) Validate(minArea float64) error {
	if f.ID == "" {
		return fmt.Errorf("floor id is required")
	}
	if f.Width < 0 || f.Height < 0 {
		return fmt.Errorf("floor %s: negative dimensions %gx%g", f.ID, f.Width, f.Height)
	}
	seen := make(map[string]struct{}, len(f.Spaces))
	for _, s := range f.Spaces {
		if s.ID == "" {
			return fmt.Errorf("floor %s: space without id", f.ID)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("floor %s: duplicate space %s", f.ID, s.ID)
		}
		seen[s.ID] = struct{}{}
		if err := geometry.Validate(s.Polygon(), minArea); err != nil {
			return fmt.Errorf("space %s: %w", s.ID, err)
		}
	}
	return nil
}
