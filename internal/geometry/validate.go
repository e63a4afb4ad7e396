package geometry

import (
	"fmt"
	"math"

	"github.com/rclancey/earcut"
)

// Area returns the polygon's area as the sum of its ear-clipped triangles.
// Self-overlapping rings count each covered triangle once per triangle, so
// the value is an upper bound for non-simple input.
func Area(poly Polygon) (float64, error) {
	if len(poly) < MinVertices {
		return 0, fmt.Errorf("%w: %d vertices", ErrInvalidPolygon, len(poly))
	}

	coords := make([]float64, len(poly)*2)
	for i, p := range poly {
		coords[i*2] = p.X
		coords[i*2+1] = p.Y
	}

	indices, err := earcut.Earcut(coords, nil /* holeIndices */, 2 /* dim */)
	if err != nil {
		return 0, fmt.Errorf("triangulate polygon: %w", err)
	}

	var area float64
	for t := 0; t+2 < len(indices); t += 3 {
		a, b, c := poly[indices[t]], poly[indices[t+1]], poly[indices[t+2]]
		area += math.Abs((b.X-a.X)*(c.Y-a.Y)-(c.X-a.X)*(b.Y-a.Y)) / 2
	}
	return area, nil
}

// Validate checks that poly can be indexed and hit-tested: at least 3
// finite vertices enclosing at least minArea.
func Validate(poly Polygon, minArea float64) error {
	if len(poly) < MinVertices {
		return fmt.Errorf("%w: %d vertices", ErrInvalidPolygon, len(poly))
	}
	for i, p := range poly {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
			return fmt.Errorf("%w: vertex %d is not finite", ErrInvalidPolygon, i)
		}
	}
	if minArea <= 0 {
		return nil
	}

	area, err := Area(poly)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPolygon, err)
	}
	if area < minArea {
		return fmt.Errorf("%w: area %.3f below minimum %.3f", ErrInvalidPolygon, area, minArea)
	}
	return nil
}

// Centroid returns the area-weighted centroid of a simple polygon. For
// degenerate rings with no signed area it falls back to the vertex average.
func Centroid(poly Polygon) (Point, error) {
	if len(poly) < MinVertices {
		return Point{}, fmt.Errorf("%w: %d vertices", ErrInvalidPolygon, len(poly))
	}

	var a, cx, cy float64
	for i := range poly {
		p, q := poly[i], poly[(i+1)%len(poly)]
		cross := p.X*q.Y - q.X*p.Y
		a += cross
		cx += (p.X + q.X) * cross
		cy += (p.Y + q.Y) * cross
	}
	if math.Abs(a) < boundaryEpsilon {
		var sum Point
		for _, p := range poly {
			sum = sum.Add(p)
		}
		return sum.Scale(1 / float64(len(poly))), nil
	}
	a *= 0.5
	return Point{X: cx / (6 * a), Y: cy / (6 * a)}, nil
}
