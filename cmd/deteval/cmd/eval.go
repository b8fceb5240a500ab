package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/MeKo-Tech/deteval/internal/annotation"
	"github.com/MeKo-Tech/deteval/internal/common"
	"github.com/MeKo-Tech/deteval/internal/evaluation"
	"github.com/MeKo-Tech/deteval/internal/report"
	"github.com/spf13/cobra"
)

// errMissingDirs is returned when --gt-dir or --pred-dir is not given.
var errMissingDirs = errors.New("both --gt-dir and --pred-dir are required")

func newEvalCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate predictions against ground truth annotations",
		Long: `Evaluate predicted bounding boxes against ground truth annotations.

The ground truth and prediction directories must contain the same number of
Pascal-VOC XML files with matching names. Files are processed in sorted name
order. A prediction matches a ground truth box of the same class when their
IoU is strictly greater than the threshold; each prediction is used at most
once.

Examples:
  deteval eval --gt-dir gt/ --pred-dir pred/
  deteval eval --gt-dir gt/ --pred-dir pred/ --iou-threshold 0.5 --workers 4
  deteval eval --gt-dir gt/ --pred-dir pred/ --format csv --output results.csv
  deteval eval --gt-dir gt/ --pred-dir pred/ --metrics-file /var/lib/node_exporter/deteval.prom`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runEval(cmd)
		},
	}

	f := cmd.Flags()
	f.String("gt-dir", "", "directory with ground truth annotation files")
	f.String("pred-dir", "", "directory with prediction annotation files")
	f.StringSlice("exclude", nil, "glob patterns of files to skip")
	f.Bool("progress", false, "show a progress bar on stderr")

	f.Float64("iou-threshold", evaluation.DefaultThreshold, "minimum IoU (exclusive) for a match, in [0,1]")
	f.IntP("workers", "w", 1, "number of parallel workers")
	f.String("pattern", annotation.DefaultPattern, "glob pattern of annotation files")
	f.StringP("format", "f", report.FormatText, "output format (text, json, csv, yaml)")
	f.StringP("output", "o", "", "write the report to this file instead of stdout")
	f.Int("precision", report.DefaultPrecision, "decimals metrics are rounded to")
	f.Bool("per-image", false, "include per-image counts in the report")
	f.String("metrics-file", "", "write Prometheus gauges to this textfile")

	bindFlag(f, "iou-threshold", "evaluation.iou_threshold")
	bindFlag(f, "workers", "evaluation.workers")
	bindFlag(f, "pattern", "evaluation.pattern")
	bindFlag(f, "format", "output.format")
	bindFlag(f, "output", "output.file")
	bindFlag(f, "precision", "output.precision")
	bindFlag(f, "per-image", "output.per_image")
	bindFlag(f, "metrics-file", "output.metrics_file")

	return cmd
}

func (a *app) runEval(cmd *cobra.Command) error {
	cfg := a.cfg
	gtDir, _ := cmd.Flags().GetString("gt-dir")
	predDir, _ := cmd.Flags().GetString("pred-dir")
	if gtDir == "" || predDir == "" {
		return errMissingDirs
	}
	exclude, _ := cmd.Flags().GetStringSlice("exclude")
	showProgress, _ := cmd.Flags().GetBool("progress")

	sw := common.NewStopwatch()
	pairs, err := annotation.PairDirs(gtDir, predDir, []string{cfg.Evaluation.Pattern}, exclude)
	if err != nil {
		return err
	}
	sw.Lap("discover")

	e := cfg.ToEvaluator()
	if showProgress {
		e.Progress = evaluation.NewConsoleProgress(cmd.ErrOrStderr(), "Evaluating ")
	} else {
		e.Progress = evaluation.NewLogProgress(slog.Default(), slog.LevelDebug)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := e.Evaluate(ctx, pairs)
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}
	sw.Lap("evaluate")

	if err := writeReport(cmd.OutOrStdout(), cfg.Output.File, func(w io.Writer) error {
		return report.Write(w, summary, cfg.Output.Format, cfg.ReportOptions())
	}); err != nil {
		return err
	}

	if cfg.Output.MetricsFile != "" {
		if err := report.WriteTextfile(cfg.Output.MetricsFile, summary); err != nil {
			return err
		}
	}
	sw.Lap("report")

	slog.Info("Evaluation finished",
		"files", summary.Files,
		"iou_threshold", summary.Threshold,
		"precision", summary.Overall.Precision,
		"recall", summary.Overall.Recall,
		"f1", summary.Overall.F1,
		"timing", sw,
	)
	slog.Debug("Memory usage", "memory", common.ReadMemStats())
	return nil
}

// writeReport writes to path, or to stdout when path is empty.
func writeReport(stdout io.Writer, path string, write func(io.Writer) error) error {
	if path == "" {
		return write(stdout)
	}

	f, err := os.Create(path) //nolint:gosec // G304: output path comes from the command line
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close output file: %w", err)
	}
	return nil
}
