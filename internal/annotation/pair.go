package annotation

import (
	"errors"
	"fmt"
	"path/filepath"
)

var (
	// ErrCountMismatch is returned when the ground-truth and prediction
	// directories hold a different number of annotation files.
	ErrCountMismatch = errors.New("ground truth file count does not match prediction file count")
	// ErrMissingPrediction is returned when a ground-truth file has no
	// prediction file of the same name.
	ErrMissingPrediction = errors.New("no prediction file for ground truth file")
)

// Pair is a ground-truth file and the prediction file with the same name.
type Pair struct {
	Name        string `json:"name"`
	GroundTruth string `json:"ground_truth"`
	Prediction  string `json:"prediction"`
}

// Load reads both files of the pair.
func (p Pair) Load() (Image, error) {
	gt, err := LoadFile(p.GroundTruth)
	if err != nil {
		return Image{}, fmt.Errorf("failed to load ground truth: %w", err)
	}
	pred, err := LoadFile(p.Prediction)
	if err != nil {
		return Image{}, fmt.Errorf("failed to load predictions: %w", err)
	}
	return Image{File: p.Name, GroundTruth: gt, Predictions: pred}, nil
}

// Pairs is a list of file pairs loaded lazily, one image at a time.
type Pairs []Pair

// Len returns the number of pairs.
func (ps Pairs) Len() int { return len(ps) }

// Image loads the i-th pair.
func (ps Pairs) Image(i int) (Image, error) { return ps[i].Load() }

// PairDirs discovers annotation files in gtDir and predDir and pairs them
// by file name. The file counts are compared before anything else so a
// mismatch fails with ErrCountMismatch. Pairs follow the sorted order of
// the ground-truth names.
func PairDirs(gtDir, predDir string, includePatterns, excludePatterns []string) (Pairs, error) {
	gtNames, err := Discover(gtDir, includePatterns, excludePatterns)
	if err != nil {
		return nil, fmt.Errorf("ground truth: %w", err)
	}
	predNames, err := Discover(predDir, includePatterns, excludePatterns)
	if err != nil {
		return nil, fmt.Errorf("predictions: %w", err)
	}

	if len(gtNames) != len(predNames) {
		return nil, fmt.Errorf("%w: %d ground truth, %d prediction", ErrCountMismatch, len(gtNames), len(predNames))
	}

	have := make(map[string]struct{}, len(predNames))
	for _, name := range predNames {
		have[name] = struct{}{}
	}

	pairs := make(Pairs, 0, len(gtNames))
	for _, name := range gtNames {
		if _, ok := have[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingPrediction, name)
		}
		pairs = append(pairs, Pair{
			Name:        name,
			GroundTruth: filepath.Join(gtDir, name),
			Prediction:  filepath.Join(predDir, name),
		})
	}
	return pairs, nil
}
