// Package report renders evaluation summaries as text, JSON, CSV, YAML and
// Prometheus textfiles.
package report

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/deteval/internal/evaluation"
	"gopkg.in/yaml.v3"
)

// Supported output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatYAML = "yaml"
)

// OverallLabel names the dataset-wide row in CSV and metrics output.
const OverallLabel = "__overall__"

// DefaultPrecision is the number of decimals metrics are rounded to.
const DefaultPrecision = 4

// ErrUnknownFormat is returned for an unsupported output format.
var ErrUnknownFormat = errors.New("unknown output format")

// Formats lists the supported output formats.
func Formats() []string {
	return []string{FormatText, FormatJSON, FormatCSV, FormatYAML}
}

// ValidateFormat checks that format is supported.
func ValidateFormat(format string) error {
	switch format {
	case FormatText, FormatJSON, FormatCSV, FormatYAML:
		return nil
	}
	return fmt.Errorf("%w: %q (supported: %s)", ErrUnknownFormat, format, strings.Join(Formats(), ", "))
}

// Options control rendering.
type Options struct {
	Precision int  // decimals for metrics; negative disables rounding
	PerImage  bool // include per-image counts
}

// DefaultOptions returns the options of the command line defaults.
func DefaultOptions() Options {
	return Options{Precision: DefaultPrecision}
}

// Format renders s in the given format.
func Format(s *evaluation.Summary, format string, opts Options) (string, error) {
	r := rounded(s, opts)
	switch format {
	case FormatText:
		return formatText(r, opts), nil
	case FormatJSON:
		return formatJSON(r)
	case FormatCSV:
		return formatCSV(r)
	case FormatYAML:
		return formatYAML(r)
	}
	return "", ValidateFormat(format)
}

// Write renders s to w.
func Write(w io.Writer, s *evaluation.Summary, format string, opts Options) error {
	out, err := Format(s, format, opts)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

// Round rounds the exact binary value of v to the given number of
// decimals. Exact ties go to the even digit, so 0.03125 becomes 0.0312.
func Round(v float64, decimals int) float64 {
	if decimals < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', decimals, 64), 64)
	if err != nil {
		return v
	}
	return r
}

func roundMetrics(m evaluation.Metrics, decimals int) evaluation.Metrics {
	return evaluation.Metrics{
		Precision: Round(m.Precision, decimals),
		Recall:    Round(m.Recall, decimals),
		F1:        Round(m.F1, decimals),
	}
}

// rounded returns a copy of s with rounded metrics and without the parts
// opts leaves out.
func rounded(s *evaluation.Summary, opts Options) *evaluation.Summary {
	r := *s
	r.Overall.Metrics = roundMetrics(s.Overall.Metrics, opts.Precision)
	r.Classes = make([]evaluation.ClassResult, len(s.Classes))
	for i, c := range s.Classes {
		c.Metrics = roundMetrics(c.Metrics, opts.Precision)
		r.Classes[i] = c
	}
	r.AllClasses = nil
	if !opts.PerImage {
		r.Images = nil
	}
	return &r
}

func formatJSON(s *evaluation.Summary) (string, error) {
	bts, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode JSON report: %w", err)
	}
	return string(bts) + "\n", nil
}

func formatYAML(s *evaluation.Summary) (string, error) {
	var b strings.Builder
	enc := yaml.NewEncoder(&b)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return "", fmt.Errorf("failed to encode YAML report: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return b.String(), nil
}

func formatCSV(s *evaluation.Summary) (string, error) {
	rows := [][]string{{"class", "precision", "recall", "f1", "tp", "fp", "fn"}}
	row := func(label string, m evaluation.Metrics, c evaluation.Counts) []string {
		return []string{
			label,
			formatNumber(m.Precision),
			formatNumber(m.Recall),
			formatNumber(m.F1),
			strconv.Itoa(c.TruePositives),
			strconv.Itoa(c.FalsePositives),
			strconv.Itoa(c.FalseNegatives),
		}
	}
	for _, c := range s.Classes {
		rows = append(rows, row(c.Class, c.Metrics, c.Counts))
	}
	rows = append(rows, row(OverallLabel, s.Overall.Metrics, s.Overall.Counts))

	var output strings.Builder
	writer := csv.NewWriter(&output)
	if err := writer.WriteAll(rows); err != nil {
		return "", fmt.Errorf("failed to write CSV report: %w", err)
	}
	return output.String(), nil
}

// formatNumber prints the shortest representation of v.
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
