// Package evaluation matches predicted boxes to ground-truth boxes and
// aggregates the matches into precision, recall and F1.
package evaluation

import (
	"github.com/MeKo-Tech/deteval/internal/annotation"
	"github.com/MeKo-Tech/deteval/internal/geometry"
)

// DefaultThreshold is the IoU a prediction has to exceed to match.
const DefaultThreshold = 0.3

// IoUFunc scores the overlap of two boxes in [0, 1].
type IoUFunc func(a, b annotation.Box) float64

// BoxIoU is the polygon IoU of the two box rings.
func BoxIoU(a, b annotation.Box) float64 {
	return geometry.IoU(a.Ring(), b.Ring())
}

// MatchResult is the outcome for one ground-truth box.
type MatchResult struct {
	Matched    bool    `json:"matched"    yaml:"matched"`
	Prediction int     `json:"prediction" yaml:"prediction"` // index into the predictions, -1 when unmatched
	IoU        float64 `json:"iou"        yaml:"iou"`
}

// Match assigns predictions to ground truths greedily using BoxIoU.
func Match(gt, pred []annotation.Box, threshold float64) []MatchResult {
	return MatchWith(gt, pred, threshold, BoxIoU)
}

// MatchWith assigns predictions to ground truths greedily. Ground truths are
// visited in order and each claims the unassigned prediction with the same
// label and the highest IoU strictly above threshold; on equal IoU the
// earlier prediction is kept. A claimed prediction is unavailable to later
// ground truths even if they overlap it more. The result has one entry per
// ground truth, in order.
func MatchWith(gt, pred []annotation.Box, threshold float64, iou IoUFunc) []MatchResult {
	results := make([]MatchResult, len(gt))
	assigned := make([]bool, len(pred))

	for i, g := range gt {
		best := -1
		bestIoU := 0.0
		for j, p := range pred {
			if assigned[j] || p.Label != g.Label {
				continue
			}
			v := iou(p, g)
			if v > threshold && v > bestIoU {
				best = j
				bestIoU = v
			}
		}

		if best < 0 {
			results[i] = MatchResult{Prediction: -1}
			continue
		}
		assigned[best] = true
		results[i] = MatchResult{Matched: true, Prediction: best, IoU: bestIoU}
	}
	return results
}

// MatchedCount returns the number of matched ground truths.
func MatchedCount(results []MatchResult) int {
	n := 0
	for _, r := range results {
		if r.Matched {
			n++
		}
	}
	return n
}
