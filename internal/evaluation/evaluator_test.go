package evaluation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/MeKo-Tech/deteval/internal/annotation"
	"github.com/MeKo-Tech/deteval/internal/classes"
	"github.com/MeKo-Tech/deteval/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func toBoxes(objects []testutil.Object) []annotation.Box {
	boxes := make([]annotation.Box, 0, len(objects))
	for _, o := range objects {
		boxes = append(boxes, annotation.NewBox(o.Label, o.XMin, o.YMin, o.XMax, o.YMax))
	}
	return boxes
}

func scenarioImages(s testutil.Scenario) annotation.ImageSet {
	set := make(annotation.ImageSet, 0, len(s.Images))
	for _, img := range s.Images {
		set = append(set, annotation.Image{File: img.File, GroundTruth: toBoxes(img.GroundTruth), Predictions: toBoxes(img.Predictions)})
	}
	return set
}

func expectedCounts(s testutil.Scenario) Counts {
	return Counts{
		TruePositives:  s.Expected.TruePositives,
		FalsePositives: s.Expected.FalsePositives,
		FalseNegatives: s.Expected.FalseNegatives,
	}
}

func TestEvaluate_Scenarios(t *testing.T) {
	for _, s := range testutil.Scenarios() {
		t.Run(s.Name, func(t *testing.T) {
			for _, workers := range []int{1, 4} {
				e := &Evaluator{Threshold: s.Threshold, Workers: workers}
				summary, err := e.Evaluate(context.Background(), scenarioImages(s))
				require.NoError(t, err)
				assert.Equal(t, expectedCounts(s), summary.Overall.Counts, "workers=%d", workers)
				assert.Equal(t, len(s.Images), summary.Files)
			}
		})
	}
}

func TestEvaluate_ScenarioFiles(t *testing.T) {
	for _, s := range testutil.Scenarios() {
		t.Run(s.Name, func(t *testing.T) {
			gtDir, predDir := testutil.WriteScenario(t, s)
			pairs, err := annotation.PairDirs(gtDir, predDir, nil, nil)
			require.NoError(t, err)

			summary, err := NewEvaluator(s.Threshold).Evaluate(context.Background(), pairs)
			require.NoError(t, err)
			assert.Equal(t, expectedCounts(s), summary.Overall.Counts)
		})
	}
}

func TestEvaluate_PerfectMatchMetrics(t *testing.T) {
	s, err := testutil.ScenarioByName("perfect_match")
	require.NoError(t, err)

	summary, err := NewEvaluator(0.3).Evaluate(context.Background(), scenarioImages(s))
	require.NoError(t, err)
	assert.Equal(t, Metrics{Precision: 1, Recall: 1, F1: 1}, summary.Overall.Metrics)
	require.Len(t, summary.Classes, 1)
	assert.Equal(t, "SLS-60", summary.Classes[0].Class)
	assert.Equal(t, Metrics{Precision: 1, Recall: 1, F1: 1}, summary.Classes[0].Metrics)
}

func TestEvaluate_LabelMismatchMetrics(t *testing.T) {
	s, err := testutil.ScenarioByName("label_mismatch")
	require.NoError(t, err)

	summary, err := NewEvaluator(0.3).Evaluate(context.Background(), scenarioImages(s))
	require.NoError(t, err)
	assert.Equal(t, Metrics{}, summary.Overall.Metrics)
	require.Len(t, summary.Classes, 1, "SLS-80 has no ground truth")
	assert.Equal(t, "SLS-60", summary.Classes[0].Class)
}

func TestEvaluate_KeepImagesAndCallbacks(t *testing.T) {
	s, err := testutil.ScenarioByName("mixed_images")
	require.NoError(t, err)

	var mu sync.Mutex
	seen := map[int]string{}
	var logs bytes.Buffer
	e := &Evaluator{
		Threshold:  s.Threshold,
		Workers:    2,
		KeepImages: true,
		Progress:   NewLogProgress(slog.New(slog.NewJSONHandler(&logs, nil)), slog.LevelInfo).Every(0),
		OnImage: func(i int, out ImageOutcome) {
			mu.Lock()
			defer mu.Unlock()
			seen[i] = out.File
		},
	}

	summary, err := e.Evaluate(context.Background(), scenarioImages(s))
	require.NoError(t, err)
	require.Len(t, summary.Images, 3)
	assert.Equal(t, "001.xml", summary.Images[0].File, "images keep input order")
	assert.Equal(t, Counts{TruePositives: 2, FalsePositives: 1}, summary.Images[0].Counts)
	assert.Equal(t, Counts{FalseNegatives: 1}, summary.Images[1].Counts)
	assert.Equal(t, Counts{FalsePositives: 1}, summary.Images[2].Counts)
	assert.Equal(t, map[int]string{0: "001.xml", 1: "002.xml", 2: "003.xml"}, seen)

	assert.Contains(t, logs.String(), "Evaluation started")
	assert.Contains(t, logs.String(), "Evaluation done")
}

func TestEvaluate_UnknownClassFails(t *testing.T) {
	set := annotation.ImageSet{
		{File: "001.xml", GroundTruth: []annotation.Box{box("SLS-60", 0, 0, 10, 10)}},
		{File: "002.xml", GroundTruth: []annotation.Box{box("NOT-A-SIGN", 0, 0, 10, 10)}},
	}

	for _, workers := range []int{1, 2} {
		_, err := (&Evaluator{Threshold: 0.3, Workers: workers}).Evaluate(context.Background(), set)
		require.ErrorIs(t, err, classes.ErrUnknownClass)
		assert.Contains(t, err.Error(), "image 1")
	}
}

type failingSource struct {
	annotation.ImageSet
	failAt int
}

func (f failingSource) Image(i int) (annotation.Image, error) {
	if i == f.failAt {
		return annotation.Image{}, errors.New("boom")
	}
	return f.ImageSet.Image(i)
}

func TestEvaluate_SourceError(t *testing.T) {
	src := failingSource{ImageSet: make(annotation.ImageSet, 5), failAt: 3}

	var buf bytes.Buffer
	e := &Evaluator{Threshold: 0.3, Progress: NewConsoleProgress(&buf, "eval: ")}
	_, err := e.Evaluate(context.Background(), src)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "image 3: boom")
	assert.Contains(t, buf.String(), "eval: file 4 failed")

	e.Workers = 3
	_, err = e.Evaluate(context.Background(), src)
	assert.ErrorContains(t, err, "boom")
}

// failingFrom fails every image from index from on.
type failingFrom struct {
	annotation.ImageSet
	from int
}

func (f failingFrom) Image(i int) (annotation.Image, error) {
	if i >= f.from {
		return annotation.Image{}, fmt.Errorf("bad image %d", i)
	}
	return f.ImageSet.Image(i)
}

func TestEvaluate_ParallelReportsLowestFailure(t *testing.T) {
	src := failingFrom{ImageSet: make(annotation.ImageSet, 64), from: 5}
	e := &Evaluator{Threshold: 0.3, Workers: 8}

	for range 50 {
		_, err := e.Evaluate(context.Background(), src)
		require.Error(t, err)
		assert.Equal(t, "image 5: bad image 5", err.Error())
	}
}

func TestEvaluate_ParallelErrorWithKeepImages(t *testing.T) {
	s, err := testutil.ScenarioByName("mixed_images")
	require.NoError(t, err)
	set := scenarioImages(s)

	var mu sync.Mutex
	var seen []int
	e := &Evaluator{
		Threshold:  s.Threshold,
		Workers:    3,
		KeepImages: true,
		OnImage: func(i int, _ ImageOutcome) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, i)
		},
	}

	summary, err := e.Evaluate(context.Background(), failingSource{ImageSet: set, failAt: 1})
	require.ErrorContains(t, err, "image 1: boom")
	assert.Nil(t, summary)
	assert.NotContains(t, seen, 1)

	summary, err = e.Evaluate(context.Background(), set)
	require.NoError(t, err, "the evaluator is reusable after a failure")
	require.Len(t, summary.Images, len(set))
	assert.Equal(t, "002.xml", summary.Images[1].File)
}

func TestEvaluate_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	set := make(annotation.ImageSet, 4)
	for _, workers := range []int{1, 2} {
		_, err := (&Evaluator{Threshold: 0.3, Workers: workers}).Evaluate(ctx, set)
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestEvaluate_InvalidThreshold(t *testing.T) {
	for _, th := range []float64{-0.1, 1.5} {
		_, err := NewEvaluator(th).Evaluate(context.Background(), annotation.ImageSet{})
		assert.ErrorIs(t, err, ErrInvalidThreshold)
	}
}

func TestEvaluate_Empty(t *testing.T) {
	summary, err := (&Evaluator{Threshold: 0.3, Workers: 8}).Evaluate(context.Background(), annotation.ImageSet{})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Files)
	assert.Empty(t, summary.Classes)
}

func TestEvaluate_CustomRegistryAndIoU(t *testing.T) {
	reg, err := classes.NewRegistry([]string{"car", "bike"})
	require.NoError(t, err)

	set := annotation.ImageSet{{
		File:        "x",
		GroundTruth: []annotation.Box{box("bike", 0, 0, 1, 1)},
		Predictions: []annotation.Box{box("bike", 50, 50, 60, 60)},
	}}
	always := func(_, _ annotation.Box) float64 { return 1 }

	summary, err := (&Evaluator{Threshold: 0.5, Registry: reg, IoU: always}).Evaluate(context.Background(), set)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Overall.TruePositives)
	require.Len(t, summary.AllClasses, 2)
	assert.Equal(t, "bike", summary.Classes[0].Class)
}
