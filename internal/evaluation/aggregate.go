package evaluation

import (
	"errors"
	"fmt"

	"github.com/MeKo-Tech/deteval/internal/annotation"
	"github.com/MeKo-Tech/deteval/internal/classes"
)

// ErrRegistryMismatch is returned when merging aggregators built on
// different class registries.
var ErrRegistryMismatch = errors.New("aggregators use different class registries")

// Counts are true positive, false positive and false negative totals.
type Counts struct {
	TruePositives  int `json:"tp" yaml:"tp"`
	FalsePositives int `json:"fp" yaml:"fp"`
	FalseNegatives int `json:"fn" yaml:"fn"`
}

// Add returns the element-wise sum of c and o.
func (c Counts) Add(o Counts) Counts {
	return Counts{
		TruePositives:  c.TruePositives + o.TruePositives,
		FalsePositives: c.FalsePositives + o.FalsePositives,
		FalseNegatives: c.FalseNegatives + o.FalseNegatives,
	}
}

// Metrics are the scores derived from Counts.
type Metrics struct {
	Precision float64 `json:"precision" yaml:"precision"`
	Recall    float64 `json:"recall"    yaml:"recall"`
	F1        float64 `json:"f1"        yaml:"f1"`
}

// ComputeMetrics derives precision, recall and F1. Any ratio whose
// denominator is zero is 0.
func ComputeMetrics(c Counts) Metrics {
	var m Metrics
	if d := c.TruePositives + c.FalsePositives; d != 0 {
		m.Precision = float64(c.TruePositives) / float64(d)
	}
	if d := c.TruePositives + c.FalseNegatives; d != 0 {
		m.Recall = float64(c.TruePositives) / float64(d)
	}
	if s := m.Precision + m.Recall; s != 0 {
		m.F1 = 2 * m.Precision * m.Recall / s
	}
	return m
}

// ClassResult holds the counters and scores of one class.
type ClassResult struct {
	Class       string `json:"class"        yaml:"class"`
	GroundTruth int    `json:"ground_truth" yaml:"ground_truth"`
	Predictions int    `json:"predictions"  yaml:"predictions"`
	Counts      `yaml:",inline"`
	Metrics     `yaml:",inline"`
}

// OverallResult holds the dataset-wide counters and scores.
type OverallResult struct {
	Counts  `yaml:",inline"`
	Metrics `yaml:",inline"`
}

// ImageOutcome is the per-image contribution to the totals.
type ImageOutcome struct {
	File    string        `json:"file"              yaml:"file"`
	Counts  `yaml:",inline"`
	Matches []MatchResult `json:"matches,omitempty" yaml:"matches,omitempty"`
}

// Summary is the result of an evaluation. Classes lists, in registry order,
// the classes with at least one ground-truth box; AllClasses lists every
// registry class.
type Summary struct {
	Files      int            `json:"files"            yaml:"files"`
	Threshold  float64        `json:"iou_threshold"    yaml:"iou_threshold"`
	Overall    OverallResult  `json:"overall"          yaml:"overall"`
	Classes    []ClassResult  `json:"classes"          yaml:"classes"`
	AllClasses []ClassResult  `json:"-"                yaml:"-"`
	Images     []ImageOutcome `json:"images,omitempty" yaml:"images,omitempty"`
}

// Aggregator accumulates match counts over images. It is not safe for
// concurrent use; parallel evaluation gives each worker its own Aggregator
// and merges them.
type Aggregator struct {
	registry      *classes.Registry
	files         int
	total         Counts
	groundTruth   []int
	predictions   []int
	truePositives []int
}

// NewAggregator creates an Aggregator with a zero counter for every class
// in registry.
func NewAggregator(registry *classes.Registry) *Aggregator {
	n := registry.Len()
	return &Aggregator{
		registry:      registry,
		groundTruth:   make([]int, n),
		predictions:   make([]int, n),
		truePositives: make([]int, n),
	}
}

// AddImage records one image. matches must come from matching img's ground
// truths against its predictions. If any label is not in the registry
// nothing is recorded and the error wraps classes.ErrUnknownClass.
func (a *Aggregator) AddImage(img annotation.Image, matches []MatchResult) (ImageOutcome, error) {
	if len(matches) != len(img.GroundTruth) {
		return ImageOutcome{}, fmt.Errorf("%s: %d match results for %d ground truth boxes",
			img.File, len(matches), len(img.GroundTruth))
	}

	gtIdx, err := a.lookupAll(img.GroundTruth)
	if err != nil {
		return ImageOutcome{}, fmt.Errorf("%s: ground truth: %w", img.File, err)
	}
	predIdx, err := a.lookupAll(img.Predictions)
	if err != nil {
		return ImageOutcome{}, fmt.Errorf("%s: predictions: %w", img.File, err)
	}

	for _, k := range gtIdx {
		a.groundTruth[k]++
	}
	for _, k := range predIdx {
		a.predictions[k]++
	}
	tp := 0
	for i, m := range matches {
		if m.Matched {
			a.truePositives[gtIdx[i]]++
			tp++
		}
	}

	out := ImageOutcome{
		File: img.File,
		Counts: Counts{
			TruePositives:  tp,
			FalsePositives: len(img.Predictions) - tp,
			FalseNegatives: len(img.GroundTruth) - tp,
		},
		Matches: matches,
	}
	a.total = a.total.Add(out.Counts)
	a.files++
	return out, nil
}

func (a *Aggregator) lookupAll(boxes []annotation.Box) ([]int, error) {
	idx := make([]int, len(boxes))
	for i, b := range boxes {
		k, err := a.registry.Lookup(b.Label)
		if err != nil {
			return nil, err
		}
		idx[i] = k
	}
	return idx, nil
}

// Merge adds the counters of o into a.
func (a *Aggregator) Merge(o *Aggregator) error {
	if a.registry != o.registry {
		return ErrRegistryMismatch
	}
	a.files += o.files
	a.total = a.total.Add(o.total)
	for k := range a.groundTruth {
		a.groundTruth[k] += o.groundTruth[k]
		a.predictions[k] += o.predictions[k]
		a.truePositives[k] += o.truePositives[k]
	}
	return nil
}

// Files returns the number of images recorded.
func (a *Aggregator) Files() int { return a.files }

// Totals returns the global counters.
func (a *Aggregator) Totals() Counts { return a.total }

// Class returns the counters of one class.
func (a *Aggregator) Class(label string) (ClassResult, error) {
	k, err := a.registry.Lookup(label)
	if err != nil {
		return ClassResult{}, err
	}
	return a.classResult(k), nil
}

func (a *Aggregator) classResult(k int) ClassResult {
	tp := a.truePositives[k]
	c := Counts{
		TruePositives:  tp,
		FalsePositives: a.predictions[k] - tp,
		FalseNegatives: a.groundTruth[k] - tp,
	}
	return ClassResult{
		Class:       a.registry.Label(k),
		GroundTruth: a.groundTruth[k],
		Predictions: a.predictions[k],
		Counts:      c,
		Metrics:     ComputeMetrics(c),
	}
}

// Result derives the metrics of everything recorded so far.
func (a *Aggregator) Result(threshold float64) *Summary {
	s := &Summary{
		Files:      a.files,
		Threshold:  threshold,
		Overall:    OverallResult{Counts: a.total, Metrics: ComputeMetrics(a.total)},
		Classes:    []ClassResult{},
		AllClasses: make([]ClassResult, 0, a.registry.Len()),
	}
	for k := 0; k < a.registry.Len(); k++ {
		cr := a.classResult(k)
		s.AllClasses = append(s.AllClasses, cr)
		if cr.GroundTruth > 0 {
			s.Classes = append(s.Classes, cr)
		}
	}
	return s
}
