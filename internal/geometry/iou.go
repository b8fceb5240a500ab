package geometry

import "cmp"

// Region is a planar area built from a ring, stored as disjoint convex
// counter-clockwise pieces.
type Region struct {
	pieces [][]Point
	bounds []Rect
	area   float64
}

// NewRegion builds a Region from ring. Rings that fail IsValid are repaired
// with MakeValid first.
func NewRegion(ring []Point) Region {
	var loops [][]Point
	if IsValid(ring) {
		loops = [][]Point{counterClockwise(cleanRing(ring))}
	} else {
		loops = MakeValid(ring)
	}

	var r Region
	for _, loop := range loops {
		r.area += Area(loop)
		for _, piece := range convexPieces(loop) {
			r.pieces = append(r.pieces, piece)
			r.bounds = append(r.bounds, Bounds(piece))
		}
	}
	return r
}

// Area returns the region area.
func (r Region) Area() float64 { return r.area }

// Empty reports whether the region has no area.
func (r Region) Empty() bool { return r.area == 0 }

// IntersectionArea returns the area shared by a and b. The result does not
// depend on argument order.
func IntersectionArea(a, b Region) float64 {
	if compareRegions(b, a) < 0 {
		a, b = b, a
	}
	var total float64
	for i, pa := range a.pieces {
		for j, pb := range b.pieces {
			if !boundsOverlap(a.bounds[i], b.bounds[j]) {
				continue
			}
			total += Area(clipConvex(pa, pb))
		}
	}
	return total
}

// IoU returns intersection over union of r and o in [0, 1]. Two empty
// regions have a zero union and score 0.
func (r Region) IoU(o Region) float64 {
	inter := IntersectionArea(r, o)
	union := r.area + o.area - inter
	if union <= 0 {
		return 0
	}
	return clamp01(inter / union)
}

// IoU computes Intersection over Union of two polygons given as rings.
// Invalid rings are repaired before scoring.
func IoU(a, b []Point) float64 {
	if ringsEqual(a, b) {
		if NewRegion(a).Empty() {
			return 0
		}
		return 1
	}
	return NewRegion(a).IoU(NewRegion(b))
}

// clipConvex clips the convex CCW subject by the convex CCW clip ring
// (Sutherland–Hodgman).
func clipConvex(subject, clip []Point) []Point {
	out := subject
	for i := range clip {
		if len(out) == 0 {
			return nil
		}
		c1, c2 := clip[i], clip[(i+1)%len(clip)]
		in := out
		out = make([]Point, 0, len(in)+1)
		for k := range in {
			s := in[(k+len(in)-1)%len(in)]
			e := in[k]
			ss, es := cross(c1, c2, s), cross(c1, c2, e)
			switch {
			case es >= 0:
				if ss < 0 && es > 0 {
					out = append(out, lerp(s, e, ss/(ss-es)))
				}
				out = append(out, e)
			case ss > 0:
				out = append(out, lerp(s, e, ss/(ss-es)))
			}
		}
	}
	return out
}

func lerp(a, b Point, t float64) Point {
	return Point{X: a.X + t*(b.X-a.X), Y: a.Y + t*(b.Y-a.Y)}
}

func boundsOverlap(a, b Rect) bool {
	return a.MinX < b.MaxX && b.MinX < a.MaxX && a.MinY < b.MaxY && b.MinY < a.MaxY
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func ringsEqual(a, b []Point) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !samePoint(a[i], b[i]) {
			return false
		}
	}
	return true
}

// compareRegions orders regions by their piece coordinates so pairwise
// computations can be performed in a canonical order.
func compareRegions(a, b Region) int {
	if len(a.pieces) != len(b.pieces) {
		return cmp.Compare(len(a.pieces), len(b.pieces))
	}
	for i := range a.pieces {
		pa, pb := a.pieces[i], b.pieces[i]
		if len(pa) != len(pb) {
			return cmp.Compare(len(pa), len(pb))
		}
		for k := range pa {
			if c := cmp.Compare(pa[k].X, pb[k].X); c != 0 {
				return c
			}
			if c := cmp.Compare(pa[k].Y, pb[k].Y); c != 0 {
				return c
			}
		}
	}
	return 0
}
