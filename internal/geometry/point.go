// Package geometry implements the planar primitives used to score box
// overlap: polygon area, validity checks and repair, convex clipping, and
// Intersection over Union.
package geometry

import "math"

// Point represents a 2D coordinate in float space.
type Point struct {
	X float64
	Y float64
}

// Rect represents an axis-aligned rectangle in float coordinates.
type Rect struct {
	MinX float64
	MinY float64
	MaxX float64
	MaxY float64
}

// NewRect constructs a Rect from two corners ensuring ordering.
func NewRect(x1, y1, x2, y2 float64) Rect {
	if x1 > x2 {
		x1, x2 = x2, x1
	}
	if y1 > y2 {
		y1, y2 = y2, y1
	}
	return Rect{MinX: x1, MinY: y1, MaxX: x2, MaxY: y2}
}

// Width returns the rect width.
func (r Rect) Width() float64 { return r.MaxX - r.MinX }

// Height returns the rect height.
func (r Rect) Height() float64 { return r.MaxY - r.MinY }

// Area returns the rect area.
func (r Rect) Area() float64 { return r.Width() * r.Height() }

// RectIoU computes IoU for two axis-aligned rectangles.
func RectIoU(a, b Rect) float64 {
	left := math.Max(a.MinX, b.MinX)
	top := math.Max(a.MinY, b.MinY)
	right := math.Min(a.MaxX, b.MaxX)
	bottom := math.Min(a.MaxY, b.MaxY)

	if left >= right || top >= bottom {
		return 0.0
	}

	inter := (right - left) * (bottom - top)
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0.0
	}
	return inter / union
}

// Bounds returns the axis-aligned bounding rect of pts.
func Bounds(pts []Point) Rect {
	if len(pts) == 0 {
		return Rect{}
	}
	r := Rect{MinX: pts[0].X, MinY: pts[0].Y, MaxX: pts[0].X, MaxY: pts[0].Y}
	for _, p := range pts[1:] {
		r.MinX = math.Min(r.MinX, p.X)
		r.MinY = math.Min(r.MinY, p.Y)
		r.MaxX = math.Max(r.MaxX, p.X)
		r.MaxY = math.Max(r.MaxY, p.Y)
	}
	return r
}

func cross(o, a, b Point) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

func samePoint(a, b Point) bool {
	return a.X == b.X && a.Y == b.Y
}
