package editor

import (
	"math"

	"github.com/studiospace/plankit/internal/geometry"
)

// SnapPoint rotates v about anchor so that the edge anchor->v lies on the
// nearest direction allowed by angles (degrees, each also allowed mirrored
// and reversed). The edge length is kept. ok is false, and v returned as
// is, when no direction is within toleranceDeg or the edge has no length.
func SnapPoint(anchor, v geometry.Point, angles []float64, toleranceDeg float64) (geometry.Point, bool) {
	d := v.Sub(anchor)
	length := math.Hypot(d.X, d.Y)
	if length == 0 || len(angles) == 0 {
		return v, false
	}

	current := math.Atan2(d.Y, d.X) * 180 / math.Pi
	best, bestDiff := 0.0, math.Inf(1)
	for _, a := range angles {
		for _, cand := range [...]float64{a, -a, 180 - a, 180 + a} {
			if diff := math.Abs(angleDiff(current, cand)); diff < bestDiff {
				best, bestDiff = cand, diff
			}
		}
	}
	if bestDiff > toleranceDeg {
		return v, false
	}

	rad := best * math.Pi / 180
	return geometry.Point{X: anchor.X + length*math.Cos(rad), Y: anchor.Y + length*math.Sin(rad)}, true
}

// angleDiff returns a-b normalized into (-180, 180].
func angleDiff(a, b float64) float64 {
	d := math.Mod(a-b, 360)
	switch {
	case d > 180:
		d -= 360
	case d <= -180:
		d += 360
	}
	return d
}
