package geometry

// Simplify reduces a closed polygon with the Douglas-Peucker algorithm.
// Vertices closer than tolerance to the simplified outline are dropped;
// exactly collinear vertices are dropped even at tolerance 0. The first
// vertex and winding order are kept. If simplification would leave fewer
// than 3 vertices the input is returned unchanged (as a copy).
func Simplify(poly Polygon, tolerance float64) Polygon {
	n := len(poly)
	if n <= MinVertices || tolerance < 0 {
		return poly.Clone()
	}

	// Split the ring at the vertex farthest from the first one and simplify
	// both chains. ring[n] closes back onto ring[0].
	ring := make([]Point, n+1)
	copy(ring, poly)
	ring[n] = poly[0]

	far, best := 1, -1.0
	for i := 1; i < n; i++ {
		if d := poly[0].Dist(poly[i]); d > best {
			far, best = i, d
		}
	}

	keep := make([]bool, n+1)
	keep[0], keep[far], keep[n] = true, true, true
	douglasPeucker(ring, 0, far, tolerance, keep)
	douglasPeucker(ring, far, n, tolerance, keep)

	out := make(Polygon, 0, n)
	for i := 0; i < n; i++ {
		if keep[i] {
			out = append(out, poly[i])
		}
	}
	if len(out) < MinVertices {
		return poly.Clone()
	}
	return out
}

func douglasPeucker(pts []Point, first, last int, tolerance float64, keep []bool) {
	if last <= first+1 {
		return
	}

	idx, dmax := -1, -1.0
	for i := first + 1; i < last; i++ {
		if d := segmentDistance(pts[i], pts[first], pts[last]); d > dmax {
			idx, dmax = i, d
		}
	}
	if dmax > tolerance {
		keep[idx] = true
		douglasPeucker(pts, first, idx, tolerance, keep)
		douglasPeucker(pts, idx, last, tolerance, keep)
	}
}
