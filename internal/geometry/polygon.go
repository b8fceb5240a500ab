package geometry

import "math"

// SignedArea returns the shoelace area of a closed ring. Counter-clockwise
// rings (in a y-up frame) are positive.
func SignedArea(ring []Point) float64 {
	if len(ring) < 3 {
		return 0
	}
	var s float64
	for i := range ring {
		a := ring[i]
		b := ring[(i+1)%len(ring)]
		s += a.X*b.Y - b.X*a.Y
	}
	return s / 2
}

// Area returns the absolute area of a closed ring.
func Area(ring []Point) float64 {
	return math.Abs(SignedArea(ring))
}

// IsValid reports whether ring describes a simple polygon with positive
// area: no repeated closing point required, no self-intersections, no
// spikes folding back onto an edge.
func IsValid(ring []Point) bool {
	r := dropDuplicates(ring)
	if len(r) < 3 || SignedArea(r) == 0 {
		return false
	}
	for i := range r {
		prev := r[(i+len(r)-1)%len(r)]
		cur := r[i]
		next := r[(i+1)%len(r)]
		if cross(prev, cur, next) == 0 && dot(prev, cur, next) > 0 {
			return false
		}
	}
	_, _, _, found := findSelfIntersection(r)
	return !found
}

// MakeValid repairs ring into a set of simple, counter-clockwise loops with
// positive area. Repeated and collinear vertices are dropped and
// self-intersecting rings are split at their crossings; loops that collapse
// to zero area are discarded. A bow-tie quadrilateral becomes its two
// triangles. The result is empty when nothing of positive area remains.
func MakeValid(ring []Point) [][]Point {
	r := cleanRing(ring)
	if len(r) < 3 {
		return nil
	}

	i, j, p, found := findSelfIntersection(r)
	if !found {
		if Area(r) == 0 {
			return nil
		}
		return [][]Point{counterClockwise(r)}
	}

	first := make([]Point, 0, j-i+1)
	first = append(first, p)
	first = append(first, r[i+1:j+1]...)

	second := make([]Point, 0, len(r)-j+i+1)
	second = append(second, p)
	second = append(second, r[j+1:]...)
	second = append(second, r[:i+1]...)

	return append(MakeValid(first), MakeValid(second)...)
}

// ConvexHull computes the convex hull of a set of points using the
// monotone chain algorithm. Returns the hull in CCW order without
// duplicating the first point at the end.
func ConvexHull(pts []Point) []Point {
	n := len(pts)
	if n <= 1 {
		return append([]Point(nil), pts...)
	}
	p := make([]Point, n)
	copy(p, pts)
	sortPoints(p)
	p = removeDuplicatePoints(p)
	if len(p) <= 1 {
		return append([]Point(nil), p...)
	}
	lower := buildLowerHull(p)
	upper := buildUpperHull(p)
	hull := make([]Point, 0, len(lower)+len(upper)-2)
	hull = append(hull, lower[:len(lower)-1]...)
	hull = append(hull, upper[:len(upper)-1]...)
	return hull
}

func removeDuplicatePoints(p []Point) []Point {
	q := p[:0]
	for i, pt := range p {
		if i == 0 || !samePoint(pt, q[len(q)-1]) {
			q = append(q, pt)
		}
	}
	return q
}

func buildLowerHull(p []Point) []Point {
	lower := make([]Point, 0, len(p))
	for _, pt := range p {
		for len(lower) >= 2 && cross(lower[len(lower)-2], lower[len(lower)-1], pt) <= 0 {
			lower = lower[:len(lower)-1]
		}
		lower = append(lower, pt)
	}
	return lower
}

func buildUpperHull(p []Point) []Point {
	upper := make([]Point, 0, len(p))
	for i := len(p) - 1; i >= 0; i-- {
		pt := p[i]
		for len(upper) >= 2 && cross(upper[len(upper)-2], upper[len(upper)-1], pt) <= 0 {
			upper = upper[:len(upper)-1]
		}
		upper = append(upper, pt)
	}
	return upper
}

func sortPoints(p []Point) {
	// insertion sort, rings are short
	for i := 1; i < len(p); i++ {
		v := p[i]
		j := i - 1
		for j >= 0 && (p[j].X > v.X || (p[j].X == v.X && p[j].Y > v.Y)) {
			p[j+1] = p[j]
			j--
		}
		p[j+1] = v
	}
}

func dot(prev, cur, next Point) float64 {
	return (prev.X-cur.X)*(next.X-cur.X) + (prev.Y-cur.Y)*(next.Y-cur.Y)
}

// dropDuplicates removes consecutive repeated points, including a closing
// point equal to the first one.
func dropDuplicates(ring []Point) []Point {
	out := make([]Point, 0, len(ring))
	for _, p := range ring {
		if len(out) > 0 && samePoint(out[len(out)-1], p) {
			continue
		}
		out = append(out, p)
	}
	for len(out) > 1 && samePoint(out[0], out[len(out)-1]) {
		out = out[:len(out)-1]
	}
	return out
}

// cleanRing drops duplicates and every vertex collinear with its neighbours
// until the ring is stable.
func cleanRing(ring []Point) []Point {
	r := dropDuplicates(ring)
	for len(r) >= 3 {
		out := make([]Point, 0, len(r))
		for i := range r {
			prev := r[(i+len(r)-1)%len(r)]
			next := r[(i+1)%len(r)]
			if cross(prev, r[i], next) != 0 {
				out = append(out, r[i])
			}
		}
		out = dropDuplicates(out)
		if len(out) == len(r) {
			return out
		}
		r = out
	}
	return r
}

func counterClockwise(ring []Point) []Point {
	out := append([]Point(nil), ring...)
	if SignedArea(out) < 0 {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

// findSelfIntersection returns the first pair of non-adjacent edges (i, j)
// with i < j that share a point, and that point.
func findSelfIntersection(ring []Point) (int, int, Point, bool) {
	n := len(ring)
	for i := 0; i < n; i++ {
		a, b := ring[i], ring[(i+1)%n]
		for j := i + 2; j < n; j++ {
			if i == 0 && j == n-1 {
				continue
			}
			c, d := ring[j], ring[(j+1)%n]
			if p, ok := segmentIntersection(a, b, c, d); ok {
				return i, j, p, true
			}
		}
	}
	return 0, 0, Point{}, false
}

// segmentIntersection reports whether segments ab and cd share a point and
// returns one such point.
func segmentIntersection(a, b, c, d Point) (Point, bool) {
	d1 := cross(c, d, a)
	d2 := cross(c, d, b)
	d3 := cross(a, b, c)
	d4 := cross(a, b, d)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) && ((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		t := d1 / (d1 - d2)
		return Point{X: a.X + t*(b.X-a.X), Y: a.Y + t*(b.Y-a.Y)}, true
	}

	switch {
	case d1 == 0 && onSegment(c, d, a):
		return a, true
	case d2 == 0 && onSegment(c, d, b):
		return b, true
	case d3 == 0 && onSegment(a, b, c):
		return c, true
	case d4 == 0 && onSegment(a, b, d):
		return d, true
	}
	return Point{}, false
}

// onSegment reports whether r, known to be collinear with pq, lies on pq.
func onSegment(p, q, r Point) bool {
	return r.X >= math.Min(p.X, q.X) && r.X <= math.Max(p.X, q.X) &&
		r.Y >= math.Min(p.Y, q.Y) && r.Y <= math.Max(p.Y, q.Y)
}

func isConvex(ring []Point) bool {
	for i := range ring {
		prev := ring[(i+len(ring)-1)%len(ring)]
		next := ring[(i+1)%len(ring)]
		if cross(prev, ring[i], next) <= 0 {
			return false
		}
	}
	return true
}

// triangulate splits a simple CCW ring into triangles by ear clipping.
// Returns nil if no ear can be found, which only happens on numerically
// degenerate input.
func triangulate(ring []Point) [][]Point {
	idx := make([]int, len(ring))
	for i := range idx {
		idx[i] = i
	}

	tris := make([][]Point, 0, len(ring)-2)
	for len(idx) > 3 {
		ear := -1
		for k := range idx {
			a := ring[idx[(k+len(idx)-1)%len(idx)]]
			b := ring[idx[k]]
			c := ring[idx[(k+1)%len(idx)]]
			if cross(a, b, c) <= 0 || anyInside(ring, idx, a, b, c) {
				continue
			}
			ear = k
			tris = append(tris, []Point{a, b, c})
			break
		}
		if ear < 0 {
			return nil
		}
		idx = append(idx[:ear], idx[ear+1:]...)
	}
	return append(tris, []Point{ring[idx[0]], ring[idx[1]], ring[idx[2]]})
}

func anyInside(ring []Point, idx []int, a, b, c Point) bool {
	for _, m := range idx {
		p := ring[m]
		if samePoint(p, a) || samePoint(p, b) || samePoint(p, c) {
			continue
		}
		if cross(a, b, p) >= 0 && cross(b, c, p) >= 0 && cross(c, a, p) >= 0 {
			return true
		}
	}
	return false
}

// convexPieces decomposes a simple CCW ring into convex rings.
func convexPieces(ring []Point) [][]Point {
	if isConvex(ring) {
		return [][]Point{ring}
	}
	if tris := triangulate(ring); tris != nil {
		return tris
	}
	return [][]Point{ConvexHull(ring)}
}
