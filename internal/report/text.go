package report

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/deteval/internal/evaluation"
)

// Header is the first line of the text report.
func Header(files int) string {
	return fmt.Sprintf("Evaluating traffic sign and traffic light detection performance on %d files", files)
}

func formatText(s *evaluation.Summary, opts Options) string {
	var out strings.Builder
	out.WriteString(Header(s.Files))
	out.WriteString("\n\n")

	classes := newGridTable("Class", "Precision", "Recall", "F1_Score").numericColumns(1, 2, 3)
	for _, c := range s.Classes {
		classes.addRow(c.Class, formatNumber(c.Precision), formatNumber(c.Recall), formatNumber(c.F1))
	}
	out.WriteString("Class-wise traffic sign and traffic light detection results\n")
	out.WriteString(classes.String())
	out.WriteString("\n")

	fmt.Fprintf(&out, "Overall Precision : %s\n", formatScore(s.Overall.Precision))
	fmt.Fprintf(&out, "Overall Recall    : %s\n", formatScore(s.Overall.Recall))
	fmt.Fprintf(&out, "Overall F1-Score  : %s\n", formatScore(s.Overall.F1))

	if opts.PerImage && len(s.Images) > 0 {
		images := newGridTable("File", "TP", "FP", "FN").numericColumns(1, 2, 3)
		for _, img := range s.Images {
			images.addRow(img.File,
				strconv.Itoa(img.TruePositives),
				strconv.Itoa(img.FalsePositives),
				strconv.Itoa(img.FalseNegatives))
		}
		out.WriteString("\nPer-image results\n")
		out.WriteString(images.String())
	}
	return out.String()
}

// formatScore prints v with at least one decimal, e.g. "1.0" or "0.6667".
func formatScore(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
