package evaluation

import (
	"testing"

	"github.com/MeKo-Tech/deteval/internal/annotation"
	"github.com/MeKo-Tech/deteval/internal/classes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addImage(t *testing.T, agg *Aggregator, img annotation.Image, threshold float64) ImageOutcome {
	t.Helper()

	out, err := agg.AddImage(img, Match(img.GroundTruth, img.Predictions, threshold))
	require.NoError(t, err)
	return out
}

func TestComputeMetrics(t *testing.T) {
	tests := []struct {
		name     string
		counts   Counts
		expected Metrics
	}{
		{name: "all zero", counts: Counts{}, expected: Metrics{}},
		{name: "perfect", counts: Counts{TruePositives: 4}, expected: Metrics{Precision: 1, Recall: 1, F1: 1}},
		{name: "only false positives", counts: Counts{FalsePositives: 3}, expected: Metrics{}},
		{name: "only false negatives", counts: Counts{FalseNegatives: 2}, expected: Metrics{}},
		{
			name:     "mixed",
			counts:   Counts{TruePositives: 2, FalsePositives: 2, FalseNegatives: 1},
			expected: Metrics{Precision: 0.5, Recall: 2.0 / 3.0, F1: 4.0 / 7.0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := ComputeMetrics(tt.counts)
			assert.InDelta(t, tt.expected.Precision, m.Precision, 1e-12)
			assert.InDelta(t, tt.expected.Recall, m.Recall, 1e-12)
			assert.InDelta(t, tt.expected.F1, m.F1, 1e-12)
		})
	}
}

func TestAggregator_PerImageCounts(t *testing.T) {
	agg := NewAggregator(classes.Default())

	out := addImage(t, agg, annotation.Image{
		File: "001.xml",
		GroundTruth: []annotation.Box{
			box("TLS-R", 100, 40, 120, 90),
			box("SLS-40", 300, 200, 340, 240),
		},
		Predictions: []annotation.Box{
			box("TLS-R", 101, 41, 121, 91),
			box("DWS-01", 10, 10, 30, 30),
			box("DWS-01", 40, 10, 60, 30),
		},
	}, 0.5)

	assert.Equal(t, "001.xml", out.File)
	assert.Equal(t, Counts{TruePositives: 1, FalsePositives: 2, FalseNegatives: 1}, out.Counts)
	assert.Len(t, out.Matches, 2)
	assert.Equal(t, 1, agg.Files())
	assert.Equal(t, out.Counts, agg.Totals())

	dws, err := agg.Class("DWS-01")
	require.NoError(t, err)
	assert.Equal(t, 0, dws.GroundTruth)
	assert.Equal(t, 2, dws.Predictions)
	assert.Equal(t, Counts{FalsePositives: 2}, dws.Counts)

	sls, err := agg.Class("SLS-40")
	require.NoError(t, err)
	assert.Equal(t, Counts{FalseNegatives: 1}, sls.Counts)
}

func TestAggregator_UnknownClassIsAllOrNothing(t *testing.T) {
	agg := NewAggregator(classes.Default())
	img := annotation.Image{
		File:        "bad.xml",
		GroundTruth: []annotation.Box{box("SLS-60", 0, 0, 10, 10)},
		Predictions: []annotation.Box{box("SLS-60", 0, 0, 10, 10), box("STOP", 0, 0, 5, 5)},
	}

	_, err := agg.AddImage(img, Match(img.GroundTruth, img.Predictions, 0.3))
	require.ErrorIs(t, err, classes.ErrUnknownClass)
	assert.Contains(t, err.Error(), "bad.xml")
	assert.Contains(t, err.Error(), "STOP")

	assert.Equal(t, 0, agg.Files())
	assert.Equal(t, Counts{}, agg.Totals())
	sls, err := agg.Class("SLS-60")
	require.NoError(t, err)
	assert.Equal(t, 0, sls.GroundTruth)
	assert.Equal(t, 0, sls.Predictions)

	_, err = agg.Class("STOP")
	assert.ErrorIs(t, err, classes.ErrUnknownClass)
}

func TestAggregator_MatchCountMismatch(t *testing.T) {
	agg := NewAggregator(classes.Default())
	_, err := agg.AddImage(annotation.Image{GroundTruth: []annotation.Box{box("SLS-60", 0, 0, 1, 1)}}, nil)
	assert.Error(t, err)
}

func TestAggregator_Result(t *testing.T) {
	reg := classes.Default()
	agg := NewAggregator(reg)

	addImage(t, agg, annotation.Image{
		File:        "001.xml",
		GroundTruth: []annotation.Box{box("TLS-Y", 0, 0, 10, 10), box("DWS-02", 20, 20, 30, 30)},
		Predictions: []annotation.Box{box("TLS-Y", 0, 0, 10, 10), box("MNS-01", 50, 50, 60, 60)},
	}, 0.3)

	s := agg.Result(0.3)
	assert.Equal(t, 1, s.Files)
	assert.Equal(t, 0.3, s.Threshold)
	assert.Equal(t, Counts{TruePositives: 1, FalsePositives: 1, FalseNegatives: 1}, s.Overall.Counts)
	assert.InDelta(t, 0.5, s.Overall.Precision, 1e-12)
	assert.InDelta(t, 0.5, s.Overall.Recall, 1e-12)
	assert.InDelta(t, 0.5, s.Overall.F1, 1e-12)

	require.Len(t, s.Classes, 2, "classes without ground truth are not reported")
	assert.Equal(t, "DWS-02", s.Classes[0].Class, "registry order")
	assert.Equal(t, "TLS-Y", s.Classes[1].Class)
	assert.Equal(t, Metrics{}, s.Classes[0].Metrics)
	assert.Equal(t, Metrics{Precision: 1, Recall: 1, F1: 1}, s.Classes[1].Metrics)

	assert.Len(t, s.AllClasses, reg.Len())
	for _, cr := range s.AllClasses {
		if cr.Class == "MNS-01" {
			assert.Equal(t, 1, cr.FalsePositives)
		}
	}
}

func TestAggregator_EmptyResult(t *testing.T) {
	s := NewAggregator(classes.Default()).Result(0.3)
	assert.Equal(t, 0, s.Files)
	assert.Empty(t, s.Classes)
	assert.NotNil(t, s.Classes)
	assert.Equal(t, Metrics{}, s.Overall.Metrics)
}

func TestAggregator_Merge(t *testing.T) {
	reg := classes.Default()
	images := []annotation.Image{
		{File: "a", GroundTruth: []annotation.Box{box("SLS-60", 0, 0, 10, 10)}, Predictions: []annotation.Box{box("SLS-60", 1, 1, 10, 10)}},
		{File: "b", GroundTruth: []annotation.Box{box("SLS-60", 0, 0, 10, 10)}},
		{File: "c", Predictions: []annotation.Box{box("TLS-E", 0, 0, 10, 10)}},
	}

	whole := NewAggregator(reg)
	left, right := NewAggregator(reg), NewAggregator(reg)
	for i, img := range images {
		addImage(t, whole, img, 0.3)
		if i%2 == 0 {
			addImage(t, left, img, 0.3)
		} else {
			addImage(t, right, img, 0.3)
		}
	}

	require.NoError(t, left.Merge(right))
	assert.Equal(t, whole.Result(0.3), left.Result(0.3))

	other := NewAggregator(classes.Default())
	assert.ErrorIs(t, left.Merge(other), ErrRegistryMismatch)
}
