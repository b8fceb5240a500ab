// Package annotation loads labeled bounding boxes from Pascal-VOC files and
// pairs ground-truth files with prediction files.
package annotation

import (
	"fmt"

	"github.com/MeKo-Tech/deteval/internal/geometry"
)

// Box is a labeled axis-aligned bounding box. Coordinates are kept as read,
// without clamping or reordering.
type Box struct {
	Label string `json:"label" yaml:"label"`
	XMin  int    `json:"xmin"  yaml:"xmin"`
	YMin  int    `json:"ymin"  yaml:"ymin"`
	XMax  int    `json:"xmax"  yaml:"xmax"`
	YMax  int    `json:"ymax"  yaml:"ymax"`
}

// NewBox creates a Box.
func NewBox(label string, xmin, ymin, xmax, ymax int) Box {
	return Box{Label: label, XMin: xmin, YMin: ymin, XMax: xmax, YMax: ymax}
}

// Points returns the box corners in the order top-left, bottom-left,
// bottom-right, top-right.
func (b Box) Points() [4]geometry.Point {
	x1, y1 := float64(b.XMin), float64(b.YMin)
	x2, y2 := float64(b.XMax), float64(b.YMax)
	return [4]geometry.Point{{X: x1, Y: y1}, {X: x1, Y: y2}, {X: x2, Y: y2}, {X: x2, Y: y1}}
}

// Ring returns Points as a slice.
func (b Box) Ring() []geometry.Point {
	p := b.Points()
	return p[:]
}

// Rect returns the axis-aligned rectangle spanned by the box.
func (b Box) Rect() geometry.Rect {
	return geometry.NewRect(float64(b.XMin), float64(b.YMin), float64(b.XMax), float64(b.YMax))
}

func (b Box) String() string {
	return fmt.Sprintf("%s[%d,%d,%d,%d]", b.Label, b.XMin, b.YMin, b.XMax, b.YMax)
}

// Image holds the ground-truth and predicted boxes of one image.
type Image struct {
	File        string `json:"file"         yaml:"file"`
	GroundTruth []Box  `json:"ground_truth" yaml:"ground_truth"`
	Predictions []Box  `json:"predictions"  yaml:"predictions"`
}

// ImageSet is an in-memory list of images.
type ImageSet []Image

// Len returns the number of images.
func (s ImageSet) Len() int { return len(s) }

// Image returns the i-th image.
func (s ImageSet) Image(i int) (Image, error) { return s[i], nil }
