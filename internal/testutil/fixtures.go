package testutil

import (
	"fmt"
	"testing"
)

// ImageFixture is one image of a scenario.
type ImageFixture struct {
	File        string   `json:"file"`
	GroundTruth []Object `json:"ground_truth"`
	Predictions []Object `json:"predictions"`
}

// ExpectedCounts are the global counters a scenario must produce.
type ExpectedCounts struct {
	TruePositives  int `json:"tp"`
	FalsePositives int `json:"fp"`
	FalseNegatives int `json:"fn"`
}

// Scenario is an evaluation fixture with its expected outcome.
type Scenario struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Threshold   float64        `json:"iou_threshold"`
	Images      []ImageFixture `json:"images"`
	Expected    ExpectedCounts `json:"expected"`
}

// Scenarios returns the reference evaluation scenarios.
func Scenarios() []Scenario {
	return []Scenario{
		{
			Name:        "perfect_match",
			Description: "Prediction identical to the ground truth",
			Threshold:   0.3,
			Images: []ImageFixture{{
				File:        "001.xml",
				GroundTruth: []Object{Obj("SLS-60", 0, 0, 10, 10)},
				Predictions: []Object{Obj("SLS-60", 0, 0, 10, 10)},
			}},
			Expected: ExpectedCounts{TruePositives: 1},
		},
		{
			Name:        "label_mismatch",
			Description: "Full overlap with a different label does not match",
			Threshold:   0.3,
			Images: []ImageFixture{{
				File:        "001.xml",
				GroundTruth: []Object{Obj("SLS-60", 0, 0, 10, 10)},
				Predictions: []Object{Obj("SLS-80", 0, 0, 10, 10)},
			}},
			Expected: ExpectedCounts{FalsePositives: 1, FalseNegatives: 1},
		},
		{
			Name:        "below_threshold",
			Description: "Corner overlap scores far below the threshold",
			Threshold:   0.3,
			Images: []ImageFixture{{
				File:        "001.xml",
				GroundTruth: []Object{Obj("SLS-60", 0, 0, 10, 10)},
				Predictions: []Object{Obj("SLS-60", 9, 9, 19, 19)},
			}},
			Expected: ExpectedCounts{FalsePositives: 1, FalseNegatives: 1},
		},
		{
			Name:        "greedy_stealing",
			Description: "The first ground truth claims the prediction the second overlaps better",
			Threshold:   0.3,
			Images: []ImageFixture{{
				File: "001.xml",
				GroundTruth: []Object{
					Obj("PHS-01", 0, 0, 10, 10),
					Obj("PHS-01", 2, 0, 12, 10),
				},
				Predictions: []Object{Obj("PHS-01", 3, 0, 13, 10)},
			}},
			Expected: ExpectedCounts{TruePositives: 1, FalseNegatives: 1},
		},
		{
			Name:        "mixed_images",
			Description: "Several images with matches, misses and extra predictions",
			Threshold:   0.5,
			Images: []ImageFixture{
				{
					File: "001.xml",
					GroundTruth: []Object{
						Obj("TLS-R", 100, 40, 120, 90),
						Obj("SLS-40", 300, 200, 340, 240),
					},
					Predictions: []Object{
						Obj("TLS-R", 101, 41, 121, 91),
						Obj("SLS-40", 302, 198, 341, 239),
						Obj("DWS-01", 10, 10, 30, 30),
					},
				},
				{
					File:        "002.xml",
					GroundTruth: []Object{Obj("PRS-01", 50, 50, 90, 90)},
				},
				{
					File:        "003.xml",
					Predictions: []Object{Obj("TLS-G", 5, 5, 15, 25)},
				},
			},
			Expected: ExpectedCounts{TruePositives: 2, FalsePositives: 2, FalseNegatives: 1},
		},
	}
}

// ScenarioByName returns the named reference scenario.
func ScenarioByName(name string) (Scenario, error) {
	for _, s := range Scenarios() {
		if s.Name == name {
			return s, nil
		}
	}
	return Scenario{}, fmt.Errorf("unknown scenario %q", name)
}

// WriteScenario materialises the scenario as ground-truth and prediction
// VOC directories and returns them.
func WriteScenario(t *testing.T, s Scenario) (gtDir, predDir string) {
	t.Helper()

	gtDir, predDir = EvalDirs(t)
	for _, img := range s.Images {
		WriteVOC(t, gtDir, img.File, img.GroundTruth...)
		WriteVOC(t, predDir, img.File, img.Predictions...)
	}
	return gtDir, predDir
}
