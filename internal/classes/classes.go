// Package classes holds the closed set of traffic-sign and traffic-light
// labels known to the evaluator.
package classes

import (
	"errors"
	"fmt"
)

// ErrUnknownClass is returned when a label is not part of the registry.
var ErrUnknownClass = errors.New("unknown class label")

// CeyRo lists the class labels of the CeyRo traffic sign and traffic light
// dataset in their canonical reporting order.
var CeyRo = []string{
	"DWS-01", "DWS-02", "DWS-03", "DWS-04", "DWS-09", "DWS-10", "DWS-11",
	"DWS-12", "DWS-13", "DWS-14", "DWS-15", "DWS-16", "DWS-17", "DWS-18",
	"DWS-19", "DWS-20", "DWS-21", "DWS-25", "DWS-26", "DWS-27", "DWS-28",
	"DWS-29", "DWS-32", "DWS-33", "DWS-35", "DWS-36", "DWS-40", "DWS-41",
	"DWS-42", "DWS-44", "DWS-46", "MNS-01", "MNS-02", "MNS-03", "MNS-04",
	"MNS-05", "MNS-06", "MNS-07", "MNS-09", "OSD-01", "OSD-02", "OSD-03",
	"OSD-04", "OSD-06", "OSD-07", "OSD-16", "OSD-17", "OSD-26", "PHS-01",
	"PHS-02", "PHS-03", "PHS-04", "PHS-09", "PHS-23", "PHS-24", "PRS-01",
	"PRS-02", "RSS-02", "SLS-100", "SLS-15", "SLS-40", "SLS-50", "SLS-60",
	"SLS-70", "SLS-80", "APR-09", "APR-10", "APR-11", "APR-12", "APR-14",
	"TLS-C", "TLS-E", "TLS-G", "TLS-R", "TLS-Y",
}

// Registry is an immutable, ordered set of class labels.
type Registry struct {
	labels []string
	index  map[string]int
}

// NewRegistry builds a registry from labels. Duplicate or empty labels are rejected.
func NewRegistry(labels []string) (*Registry, error) {
	r := &Registry{
		labels: make([]string, 0, len(labels)),
		index:  make(map[string]int, len(labels)),
	}
	for _, l := range labels {
		if l == "" {
			return nil, errors.New("empty class label")
		}
		if _, dup := r.index[l]; dup {
			return nil, fmt.Errorf("duplicate class label: %s", l)
		}
		r.index[l] = len(r.labels)
		r.labels = append(r.labels, l)
	}
	return r, nil
}

// Default returns the CeyRo registry.
func Default() *Registry {
	r, err := NewRegistry(CeyRo)
	if err != nil {
		panic(err) // CeyRo is a static list
	}
	return r
}

// Lookup returns the position of label in the registry.
func (r *Registry) Lookup(label string) (int, error) {
	i, ok := r.index[label]
	if !ok {
		return -1, fmt.Errorf("%w: %q", ErrUnknownClass, label)
	}
	return i, nil
}

// Contains reports whether label is registered.
func (r *Registry) Contains(label string) bool {
	_, ok := r.index[label]
	return ok
}

// Len returns the number of registered labels.
func (r *Registry) Len() int { return len(r.labels) }

// Label returns the label at position i.
func (r *Registry) Label(i int) string { return r.labels[i] }

// Labels returns a copy of the labels in registry order.
func (r *Registry) Labels() []string {
	return append([]string(nil), r.labels...)
}
