package engine

import (
	"gonum.org/v1/gonum/floats/scalar"

	"github.com/studiospace/plankit/internal/geometry"
)

// Matrix2D represents a 2D affine transformation matrix.
// Layout: [a, b, c, d, e, f] representing:
// | a  c  e |
// | b  d  f |
// | 0  0  1 |
//
// The view transform only ever produces uniform scale plus translation
// (b = c = 0), but the full layout is kept so the matrix can be handed to a
// Canvas2D setTransform call unchanged.
type Matrix2D [6]float64

const matrixEpsilon = 1e-10

// Identity returns the identity matrix.
func Identity() Matrix2D {
	return Matrix2D{1, 0, 0, 1, 0, 0}
}

// Translate returns a translation matrix.
func Translate(tx, ty float64) Matrix2D {
	return Matrix2D{1, 0, 0, 1, tx, ty}
}

// Scale returns a scale matrix.
func Scale(sx, sy float64) Matrix2D {
	return Matrix2D{sx, 0, 0, sy, 0, 0}
}

// Multiply multiplies this matrix by another: result = m * other
// This applies 'other' first, then 'm'.
func (m Matrix2D) Multiply(other Matrix2D) Matrix2D {
	return Matrix2D{
		m[0]*other[0] + m[2]*other[1],        // a
		m[1]*other[0] + m[3]*other[1],        // b
		m[0]*other[2] + m[2]*other[3],        // c
		m[1]*other[2] + m[3]*other[3],        // d
		m[0]*other[4] + m[2]*other[5] + m[4], // e
		m[1]*other[4] + m[3]*other[5] + m[5], // f
	}
}

// TransformPoint applies the matrix to a point.
func (m Matrix2D) TransformPoint(p geometry.Point) geometry.Point {
	return geometry.Point{X: m[0]*p.X + m[2]*p.Y + m[4], Y: m[1]*p.X + m[3]*p.Y + m[5]}
}

// TransformBox transforms a box and returns the axis-aligned box around the
// four transformed corners.
func (m Matrix2D) TransformBox(b geometry.BoundingBox) geometry.BoundingBox {
	p0 := m.TransformPoint(geometry.Pt(b.MinX, b.MinY))
	p1 := m.TransformPoint(geometry.Pt(b.MaxX, b.MinY))
	p2 := m.TransformPoint(geometry.Pt(b.MaxX, b.MaxY))
	p3 := m.TransformPoint(geometry.Pt(b.MinX, b.MaxY))

	return geometry.BoundingBox{
		MinX: min(p0.X, p1.X, p2.X, p3.X),
		MinY: min(p0.Y, p1.Y, p2.Y, p3.Y),
		MaxX: max(p0.X, p1.X, p2.X, p3.X),
		MaxY: max(p0.Y, p1.Y, p2.Y, p3.Y),
	}
}

// Determinant returns the determinant of the matrix.
func (m Matrix2D) Determinant() float64 {
	return m[0]*m[3] - m[1]*m[2]
}

// Invert returns the inverse of the matrix. ok is false when the matrix is
// singular, in which case the identity is returned.
func (m Matrix2D) Invert() (inv Matrix2D, ok bool) {
	det := m.Determinant()
	if scalar.EqualWithinAbs(det, 0, matrixEpsilon) {
		return Identity(), false
	}

	invDet := 1.0 / det
	return Matrix2D{
		m[3] * invDet,
		-m[1] * invDet,
		-m[2] * invDet,
		m[0] * invDet,
		(m[2]*m[5] - m[3]*m[4]) * invDet,
		(m[1]*m[4] - m[0]*m[5]) * invDet,
	}, true
}

// ToSlice returns the matrix as a float64 slice for JSON serialization.
func (m Matrix2D) ToSlice() []float64 {
	return []float64{m[0], m[1], m[2], m[3], m[4], m[5]}
}

// IsIdentity checks if this is the identity matrix (within epsilon).
func (m Matrix2D) IsIdentity() bool {
	id := Identity()
	for i := range m {
		if !scalar.EqualWithinAbs(m[i], id[i], matrixEpsilon) {
			return false
		}
	}
	return true
}
