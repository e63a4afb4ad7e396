package geometry

// BoundingBox is an axis-aligned rectangle in plan space. All comparisons
// treat it as closed: points on its border are contained.
type BoundingBox struct {
	MinX float64 `json:"minX"`
	MinY float64 `json:"minY"`
	MaxX float64 `json:"maxX"`
	MaxY float64 `json:"maxY"`
}

// Rect builds a box from an origin and a size.
func Rect(x, y, width, height float64) BoundingBox {
	return BoundingBox{MinX: x, MinY: y, MaxX: x + width, MaxY: y + height}
}

func (b BoundingBox) Width() float64  { return b.MaxX - b.MinX }
func (b BoundingBox) Height() float64 { return b.MaxY - b.MinY }

// IsEmpty checks if the box has zero or negative area.
func (b BoundingBox) IsEmpty() bool {
	return b.Width() <= 0 || b.Height() <= 0
}

// Center returns the center point of the box.
func (b BoundingBox) Center() Point {
	return Point{X: (b.MinX + b.MaxX) / 2, Y: (b.MinY + b.MaxY) / 2}
}

// Contains checks if a point is inside the box or on its border.
func (b BoundingBox) Contains(p Point) bool {
	return p.X >= b.MinX && p.X <= b.MaxX && p.Y >= b.MinY && p.Y <= b.MaxY
}

// Intersects checks if two boxes overlap or touch.
func (b BoundingBox) Intersects(o BoundingBox) bool {
	return !(o.MaxX < b.MinX || o.MinX > b.MaxX || o.MaxY < b.MinY || o.MinY > b.MaxY)
}

// Union returns the smallest box containing both boxes. An empty receiver
// yields the other box unchanged.
func (b BoundingBox) Union(o BoundingBox) BoundingBox {
	if b == (BoundingBox{}) {
		return o
	}
	return BoundingBox{
		MinX: min(b.MinX, o.MinX),
		MinY: min(b.MinY, o.MinY),
		MaxX: max(b.MaxX, o.MaxX),
		MaxY: max(b.MaxY, o.MaxY),
	}
}

// Quadrants splits the box into four equally sized children, ordered
// north-west, north-east, south-west, south-east (with Y growing downward
// as in screen and plan-document coordinates).
func (b BoundingBox) Quadrants() [4]BoundingBox {
	c := b.Center()
	return [4]BoundingBox{
		{MinX: b.MinX, MinY: b.MinY, MaxX: c.X, MaxY: c.Y},
		{MinX: c.X, MinY: b.MinY, MaxX: b.MaxX, MaxY: c.Y},
		{MinX: b.MinX, MinY: c.Y, MaxX: c.X, MaxY: b.MaxY},
		{MinX: c.X, MinY: c.Y, MaxX: b.MaxX, MaxY: b.MaxY},
	}
}

// Expand grows the box by d on every side.
func (b BoundingBox) Expand(d float64) BoundingBox {
	return BoundingBox{MinX: b.MinX - d, MinY: b.MinY - d, MaxX: b.MaxX + d, MaxY: b.MaxY + d}
}
