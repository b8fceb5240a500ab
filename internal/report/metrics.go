package report

import (
	"fmt"

	"github.com/MeKo-Tech/deteval/internal/evaluation"
	"github.com/prometheus/client_golang/prometheus"
)

// summaryGauges are the gauges describing one evaluation run.
type summaryGauges struct {
	precision      *prometheus.GaugeVec
	recall         *prometheus.GaugeVec
	f1             *prometheus.GaugeVec
	truePositives  *prometheus.GaugeVec
	falsePositives *prometheus.GaugeVec
	falseNegatives *prometheus.GaugeVec
	files          prometheus.Gauge
	threshold      prometheus.Gauge
}

func newSummaryGauges(reg prometheus.Registerer) *summaryGauges {
	vec := func(name, help string) *prometheus.GaugeVec {
		g := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, []string{"class"})
		reg.MustRegister(g)
		return g
	}
	single := func(name, help string) prometheus.Gauge {
		g := prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
		reg.MustRegister(g)
		return g
	}
	return &summaryGauges{
		precision:      vec("deteval_precision", "Detection precision per class"),
		recall:         vec("deteval_recall", "Detection recall per class"),
		f1:             vec("deteval_f1", "Detection F1 score per class"),
		truePositives:  vec("deteval_true_positives", "Matched ground truth boxes per class"),
		falsePositives: vec("deteval_false_positives", "Unmatched predictions per class"),
		falseNegatives: vec("deteval_false_negatives", "Unmatched ground truth boxes per class"),
		files:          single("deteval_files", "Number of evaluated annotation files"),
		threshold:      single("deteval_iou_threshold", "IoU threshold used for matching"),
	}
}

func (g *summaryGauges) set(label string, m evaluation.Metrics, c evaluation.Counts) {
	g.precision.WithLabelValues(label).Set(m.Precision)
	g.recall.WithLabelValues(label).Set(m.Recall)
	g.f1.WithLabelValues(label).Set(m.F1)
	g.truePositives.WithLabelValues(label).Set(float64(c.TruePositives))
	g.falsePositives.WithLabelValues(label).Set(float64(c.FalsePositives))
	g.falseNegatives.WithLabelValues(label).Set(float64(c.FalseNegatives))
}

// NewRegistry returns a registry holding the gauges of s. Global values use
// the class label OverallLabel.
func NewRegistry(s *evaluation.Summary) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	g := newSummaryGauges(reg)
	for _, c := range s.Classes {
		g.set(c.Class, c.Metrics, c.Counts)
	}
	g.set(OverallLabel, s.Overall.Metrics, s.Overall.Counts)
	g.files.Set(float64(s.Files))
	g.threshold.Set(s.Threshold)
	return reg
}

// WriteTextfile writes the gauges of s to path in the Prometheus text
// format, for the node_exporter textfile collector.
func WriteTextfile(path string, s *evaluation.Summary) error {
	if err := prometheus.WriteToTextfile(path, NewRegistry(s)); err != nil {
		return fmt.Errorf("failed to write metrics file %s: %w", path, err)
	}
	return nil
}
