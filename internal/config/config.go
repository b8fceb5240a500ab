//nolint:lll
package config

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/MeKo-Tech/deteval/internal/annotation"
	"github.com/MeKo-Tech/deteval/internal/evaluation"
	"github.com/MeKo-Tech/deteval/internal/report"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config represents the complete configuration for deteval.
// It covers the eval and serve commands and is loaded from configuration
// files, environment variables and command-line flags.
type Config struct {
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	Evaluation EvaluationConfig `mapstructure:"evaluation" yaml:"evaluation" json:"evaluation"`
	Output     OutputConfig     `mapstructure:"output" yaml:"output" json:"output"`

	// Server configuration (for serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`
}

// EvaluationConfig contains matching settings.
type EvaluationConfig struct {
	IoUThreshold float64 `mapstructure:"iou_threshold" yaml:"iou_threshold" json:"iou_threshold"`
	Workers      int     `mapstructure:"workers" yaml:"workers" json:"workers"`
	Pattern      string  `mapstructure:"pattern" yaml:"pattern" json:"pattern"`
}

// OutputConfig contains report settings.
type OutputConfig struct {
	Format      string `mapstructure:"format" yaml:"format" json:"format"`
	File        string `mapstructure:"file" yaml:"file" json:"file"`
	Precision   int    `mapstructure:"precision" yaml:"precision" json:"precision"`
	PerImage    bool   `mapstructure:"per_image" yaml:"per_image" json:"per_image"`
	MetricsFile string `mapstructure:"metrics_file" yaml:"metrics_file" json:"metrics_file"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string `mapstructure:"host" yaml:"host" json:"host"`
	Port            int    `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB     int64  `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec      int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`

	// Rate limiting
	RateLimitEnabled  bool  `mapstructure:"rate_limit_enabled" yaml:"rate_limit_enabled" json:"rate_limit_enabled"`
	RequestsPerMinute int   `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int   `mapstructure:"requests_per_hour" yaml:"requests_per_hour" json:"requests_per_hour"`
	MaxRequestsPerDay int   `mapstructure:"max_requests_per_day" yaml:"max_requests_per_day" json:"max_requests_per_day"`
	MaxDataPerDay     int64 `mapstructure:"max_data_per_day" yaml:"max_data_per_day" json:"max_data_per_day"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Verbose:  false,
		Evaluation: EvaluationConfig{
			IoUThreshold: evaluation.DefaultThreshold,
			Workers:      1,
			Pattern:      annotation.DefaultPattern,
		},
		Output: OutputConfig{
			Format:    report.FormatText,
			Precision: report.DefaultPrecision,
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			MaxUploadMB:     20,
			TimeoutSec:      30,
			ShutdownTimeout: 10,

			RateLimitEnabled:  false,
			RequestsPerMinute: 60,
			RequestsPerHour:   1000,
			MaxRequestsPerDay: 5000,
			MaxDataPerDay:     100 * 1024 * 1024,
		},
	}
}

var validLogLevels = []string{"debug", "info", "warn", "error"}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("%w: log level %q (must be one of: %s)", ErrInvalidConfig, c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	if err := validateThreshold(c.Evaluation.IoUThreshold, "evaluation.iou_threshold"); err != nil {
		return err
	}
	if c.Evaluation.Workers <= 0 {
		return fmt.Errorf("%w: evaluation workers %d (must be positive)", ErrInvalidConfig, c.Evaluation.Workers)
	}

	if c.Output.Format != "" {
		if err := report.ValidateFormat(c.Output.Format); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	if c.Output.Precision < 0 {
		return fmt.Errorf("%w: output precision %d (must not be negative)", ErrInvalidConfig, c.Output.Precision)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server port %d (must be between 1 and 65535)", ErrInvalidConfig, c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("%w: max upload size %d (must be positive)", ErrInvalidConfig, c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("%w: timeout %d (must be positive)", ErrInvalidConfig, c.Server.TimeoutSec)
	}
	if c.Server.RequestsPerMinute < 0 || c.Server.RequestsPerHour < 0 || c.Server.MaxRequestsPerDay < 0 || c.Server.MaxDataPerDay < 0 {
		return fmt.Errorf("%w: rate limits must not be negative", ErrInvalidConfig)
	}

	return nil
}

// ToEvaluator converts the evaluation settings into an Evaluator over the
// default class registry.
func (c *Config) ToEvaluator() *evaluation.Evaluator {
	e := evaluation.NewEvaluator(c.Evaluation.IoUThreshold)
	e.Workers = c.Evaluation.Workers
	e.KeepImages = c.Output.PerImage
	return e
}

// ReportOptions converts the output settings into report options.
func (c *Config) ReportOptions() report.Options {
	return report.Options{
		Precision: c.Output.Precision,
		PerImage:  c.Output.PerImage,
	}
}

// validateThreshold validates that a value is between 0.0 and 1.0.
func validateThreshold(value float64, name string) error {
	if math.IsNaN(value) || value < 0.0 || value > 1.0 {
		return fmt.Errorf("%w: %s %.2f (must be between 0.0 and 1.0)", ErrInvalidConfig, name, value)
	}
	return nil
}
