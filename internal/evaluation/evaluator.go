package evaluation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/MeKo-Tech/deteval/internal/annotation"
	"github.com/MeKo-Tech/deteval/internal/classes"
	"github.com/MeKo-Tech/deteval/internal/common"
)

// ErrInvalidThreshold is returned for an IoU threshold outside [0, 1].
var ErrInvalidThreshold = errors.New("iou threshold must be within [0, 1]")

// Source provides the images to evaluate by index. Image may be called from
// several goroutines when evaluating in parallel.
type Source interface {
	Len() int
	Image(i int) (annotation.Image, error)
}

// ImageFunc receives the outcome of each evaluated image. Calls come from a
// single goroutine; with several workers they follow completion order.
type ImageFunc func(index int, outcome ImageOutcome)

// Evaluator runs matching and aggregation over a set of images.
type Evaluator struct {
	Threshold  float64
	Workers    int               // <= 1 evaluates sequentially
	Registry   *classes.Registry // nil uses classes.Default()
	IoU        IoUFunc           // nil uses BoxIoU
	Progress   ProgressCallback
	OnImage    ImageFunc
	KeepImages bool // attach per-image outcomes to the Summary
}

// NewEvaluator creates a sequential Evaluator over the default registry.
func NewEvaluator(threshold float64) *Evaluator {
	return &Evaluator{Threshold: threshold, Workers: 1}
}

// Validate checks the evaluator settings.
func (e *Evaluator) Validate() error {
	if math.IsNaN(e.Threshold) || e.Threshold < 0 || e.Threshold > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidThreshold, e.Threshold)
	}
	return nil
}

// Evaluate matches and aggregates every image of src. The first failing
// image aborts the evaluation; no partial summary is returned.
func (e *Evaluator) Evaluate(ctx context.Context, src Source) (*Summary, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	registry := e.Registry
	if registry == nil {
		registry = classes.Default()
	}
	progress := e.Progress
	if progress == nil {
		progress = NoOpProgressCallback{}
	}

	n := src.Len()
	workers := min(e.Workers, n)
	sw := common.NewStopwatch()

	progress.OnStart(n)
	defer progress.OnComplete()

	var (
		agg    *Aggregator
		images []ImageOutcome
		err    error
	)
	if workers <= 1 {
		agg = NewAggregator(registry)
		images, err = e.runSequential(ctx, src, agg, progress)
	} else {
		agg, images, err = e.runParallel(ctx, src, registry, progress, workers)
	}
	if err != nil {
		return nil, err
	}
	sw.Lap("match")

	summary := agg.Result(e.Threshold)
	if e.KeepImages {
		summary.Images = images
	}
	slog.Debug("Evaluation completed",
		"files", summary.Files,
		"workers", max(workers, 1),
		"tp", summary.Overall.TruePositives,
		"fp", summary.Overall.FalsePositives,
		"fn", summary.Overall.FalseNegatives,
		"timing", sw,
	)
	return summary, nil
}

func (e *Evaluator) evaluateImage(agg *Aggregator, src Source, i int) (ImageOutcome, error) {
	img, err := src.Image(i)
	if err != nil {
		return ImageOutcome{}, err
	}
	iou := e.IoU
	if iou == nil {
		iou = BoxIoU
	}
	return agg.AddImage(img, MatchWith(img.GroundTruth, img.Predictions, e.Threshold, iou))
}

func (e *Evaluator) runSequential(ctx context.Context, src Source, agg *Aggregator, progress ProgressCallback) ([]ImageOutcome, error) {
	n := src.Len()
	var images []ImageOutcome
	if e.KeepImages {
		images = make([]ImageOutcome, 0, n)
	}

	for i := range n {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := e.evaluateImage(agg, src, i)
		if err != nil {
			progress.OnError(i+1, err)
			return nil, fmt.Errorf("image %d: %w", i, err)
		}
		if e.KeepImages {
			images = append(images, out)
		}
		if e.OnImage != nil {
			e.OnImage(i, out)
		}
		progress.OnProgress(i+1, n)
	}
	return images, nil
}

// imageResult is the outcome of one image evaluated by a worker.
type imageResult struct {
	index   int
	outcome ImageOutcome
	err     error
}

// runParallel evaluates images with a worker pool. Each worker owns an
// Aggregator; the partial aggregators are merged once all workers are done.
func (e *Evaluator) runParallel(
	ctx context.Context,
	src Source,
	registry *classes.Registry,
	progress ProgressCallback,
	workers int,
) (*Aggregator, []ImageOutcome, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	n := src.Len()
	jobs := make(chan int, n)
	results := make(chan imageResult, n)
	for i := range n {
		jobs <- i
	}
	close(jobs)

	partials := make([]*Aggregator, workers)
	var wg sync.WaitGroup
	for w := range workers {
		partials[w] = NewAggregator(registry)
		wg.Add(1)
		go e.worker(ctx, src, partials[w], jobs, results, &wg)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var images []ImageOutcome
	if e.KeepImages {
		images = make([]ImageOutcome, n)
	}
	firstIdx := n
	var firstErr error
	done := 0
	for r := range results {
		if r.err != nil {
			if r.index < firstIdx {
				firstIdx, firstErr = r.index, r.err
			}
			progress.OnError(r.index+1, r.err)
			cancel()
			continue
		}
		done++
		if e.KeepImages {
			images[r.index] = r.outcome
		}
		if e.OnImage != nil {
			e.OnImage(r.index, r.outcome)
		}
		progress.OnProgress(done, n)
	}

	if firstErr != nil {
		return nil, nil, fmt.Errorf("image %d: %w", firstIdx, firstErr)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	agg := NewAggregator(registry)
	for _, p := range partials {
		if err := agg.Merge(p); err != nil {
			return nil, nil, err
		}
	}
	return agg, images, nil
}

// worker evaluates images from the jobs channel into its own aggregator.
func (e *Evaluator) worker(
	ctx context.Context,
	src Source,
	agg *Aggregator,
	jobs <-chan int,
	results chan<- imageResult,
	wg *sync.WaitGroup,
) {
	defer wg.Done()

	// A dequeued job is always evaluated. Jobs leave the channel in index
	// order, so every image below a failing one is evaluated as well.
	for ctx.Err() == nil {
		i, ok := <-jobs
		if !ok {
			return
		}
		out, err := e.evaluateImage(agg, src, i)
		results <- imageResult{index: i, outcome: out, err: err}
	}
}
