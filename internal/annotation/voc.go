package annotation

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	// ErrMissingLabel is returned for an object without a name.
	ErrMissingLabel = errors.New("object has no name")
	// ErrMissingBox is returned for an object without a complete bndbox.
	ErrMissingBox = errors.New("object has no complete bndbox")
	// ErrInvalidCoordinate is returned when a bndbox value is not an integer.
	ErrInvalidCoordinate = errors.New("invalid coordinate")
)

// vocDocument mirrors the parts of a Pascal-VOC annotation that are read.
// The root element name is not checked.
type vocDocument struct {
	Objects []vocObject `xml:"object"`
}

type vocObject struct {
	Name   *string    `xml:"name"`
	BndBox *vocBndBox `xml:"bndbox"`
}

type vocBndBox struct {
	XMin *string `xml:"xmin"`
	YMin *string `xml:"ymin"`
	XMax *string `xml:"xmax"`
	YMax *string `xml:"ymax"`
}

// NormalizeLabel trims surrounding whitespace and applies Unicode NFC so
// visually identical labels compare equal.
func NormalizeLabel(label string) string {
	return norm.NFC.String(strings.TrimSpace(label))
}

// Parse reads the boxes of a Pascal-VOC document in document order.
func Parse(r io.Reader) ([]Box, error) {
	var doc vocDocument
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode annotation: %w", err)
	}

	boxes := make([]Box, 0, len(doc.Objects))
	for i, obj := range doc.Objects {
		box, err := obj.box()
		if err != nil {
			return nil, fmt.Errorf("object %d: %w", i, err)
		}
		boxes = append(boxes, box)
	}
	return boxes, nil
}

// LoadFile reads the boxes of the Pascal-VOC file at path.
func LoadFile(path string) ([]Box, error) {
	f, err := os.Open(path) //nolint:gosec // G304: annotation paths come from the command line
	if err != nil {
		return nil, fmt.Errorf("failed to open annotation %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	boxes, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return boxes, nil
}

func (o vocObject) box() (Box, error) {
	if o.Name == nil || NormalizeLabel(*o.Name) == "" {
		return Box{}, ErrMissingLabel
	}
	b := o.BndBox
	if b == nil || b.XMin == nil || b.YMin == nil || b.XMax == nil || b.YMax == nil {
		return Box{}, ErrMissingBox
	}

	var coords [4]int
	for i, f := range []struct {
		name  string
		value string
	}{
		{"xmin", *b.XMin}, {"ymin", *b.YMin}, {"xmax", *b.XMax}, {"ymax", *b.YMax},
	} {
		v, err := strconv.Atoi(strings.TrimSpace(f.value))
		if err != nil {
			return Box{}, fmt.Errorf("%w: %s=%q", ErrInvalidCoordinate, f.name, f.value)
		}
		coords[i] = v
	}
	return NewBox(NormalizeLabel(*o.Name), coords[0], coords[1], coords[2], coords[3]), nil
}
