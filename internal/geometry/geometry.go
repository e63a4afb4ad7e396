// Package geometry provides the plan-space primitives used by the hit-test
// path: points, axis-aligned bounding boxes, point-in-polygon containment and
// polygon simplification.
package geometry

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidPolygon is returned when a polygon cannot describe an area:
// fewer than 3 vertices, non-finite coordinates, or an area below the
// configured minimum.
var ErrInvalidPolygon = errors.New("invalid polygon")

// MinVertices is the smallest vertex count of a valid polygon.
const MinVertices = 3

// boundaryEpsilon is the relative tolerance used to decide that a point lies
// on a polygon edge.
const boundaryEpsilon = 1e-9

// Point is a 2D point in plan or screen space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pt is shorthand for Point{X: x, Y: y}.
func Pt(x, y float64) Point { return Point{X: x, Y: y} }

func (p Point) Add(q Point) Point     { return Point{p.X + q.X, p.Y + q.Y} }
func (p Point) Sub(q Point) Point     { return Point{p.X - q.X, p.Y - q.Y} }
func (p Point) Scale(s float64) Point { return Point{p.X * s, p.Y * s} }

// Dist returns the Euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Polygon is an ordered ring of vertices. The closing edge from the last
// vertex back to the first is implicit. Winding order is preserved by every
// operation in this package.
type Polygon []Point

// FromPairs converts the wire form [[x, y], ...] into a Polygon.
func FromPairs(pairs [][2]float64) Polygon {
	poly := make(Polygon, len(pairs))
	for i, p := range pairs {
		poly[i] = Point{X: p[0], Y: p[1]}
	}
	return poly
}

// Pairs converts the polygon into the wire form [[x, y], ...], in winding order.
func (poly Polygon) Pairs() [][2]float64 {
	out := make([][2]float64, len(poly))
	for i, p := range poly {
		out[i] = [2]float64{p.X, p.Y}
	}
	return out
}

// Clone returns a copy of the polygon that shares no memory with it.
func (poly Polygon) Clone() Polygon {
	out := make(Polygon, len(poly))
	copy(out, poly)
	return out
}

// BoundingBoxOf computes the axis-aligned bounding box of a polygon.
func BoundingBoxOf(poly Polygon) (BoundingBox, error) {
	if len(poly) < MinVertices {
		return BoundingBox{}, fmt.Errorf("%w: %d vertices", ErrInvalidPolygon, len(poly))
	}

	b := BoundingBox{MinX: poly[0].X, MinY: poly[0].Y, MaxX: poly[0].X, MaxY: poly[0].Y}
	for _, p := range poly[1:] {
		b.MinX = min(b.MinX, p.X)
		b.MinY = min(b.MinY, p.Y)
		b.MaxX = max(b.MaxX, p.X)
		b.MaxY = max(b.MaxY, p.Y)
	}
	return b, nil
}

// PointInPolygon reports whether p lies strictly inside poly, using the
// crossing-number (even-odd) rule.
//
// A point on an edge or vertex is outside. Two spaces that share a wall can
// therefore never both claim a point on it.
func PointInPolygon(p Point, poly Polygon) bool {
	n := len(poly)
	if n < MinVertices {
		return false
	}

	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := poly[j], poly[i]
		if onSegment(p, a, b) {
			return false
		}
		if (a.Y > p.Y) != (b.Y > p.Y) &&
			p.X < (b.X-a.X)*(p.Y-a.Y)/(b.Y-a.Y)+a.X {
			inside = !inside
		}
	}
	return inside
}

// onSegment reports whether p lies on the closed segment ab.
func onSegment(p, a, b Point) bool {
	if p.X < min(a.X, b.X)-boundaryEpsilon || p.X > max(a.X, b.X)+boundaryEpsilon ||
		p.Y < min(a.Y, b.Y)-boundaryEpsilon || p.Y > max(a.Y, b.Y)+boundaryEpsilon {
		return false
	}
	cross := (b.X-a.X)*(p.Y-a.Y) - (b.Y-a.Y)*(p.X-a.X)
	return math.Abs(cross) <= boundaryEpsilon*max(1, a.Dist(b))
}

// segmentDistance returns the distance from p to the closed segment ab.
func segmentDistance(p, a, b Point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return p.Dist(a)
	}
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / lenSq
	t = math.Max(0, math.Min(1, t))
	return p.Dist(Point{a.X + t*dx, a.Y + t*dy})
}
