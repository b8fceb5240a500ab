package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/MeKo-Tech/deteval/internal/config"
	"github.com/MeKo-Tech/deteval/internal/evaluation"
	"github.com/MeKo-Tech/deteval/internal/server"
	"github.com/spf13/cobra"
)

func newServeCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP server for the evaluation API",
		Long: `Start an HTTP server that evaluates annotation sets sent as JSON.

The server provides the following endpoints:
  POST /evaluate     - Evaluate images, returns the summary (?format=json|text|csv|yaml)
  GET  /ws/evaluate  - WebSocket, streams per-image results then the summary
  GET  /classes      - List known class labels
  GET  /health       - Health check endpoint
  GET  /metrics      - Prometheus metrics

Examples:
  deteval serve
  deteval serve --port 8080
  deteval serve --host 0.0.0.0 --port 3000 --rate-limit-enabled`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runServe(cmd)
		},
	}

	f := cmd.Flags()
	f.StringP("host", "H", "localhost", "server host")
	f.IntP("port", "p", 8080, "server port")
	f.String("cors-origin", "*", "CORS allowed origins")
	f.Int64("max-upload-size", 20, "maximum request body size in MB")
	f.Int("timeout", 30, "request timeout in seconds")
	f.Int("shutdown-timeout", 10, "shutdown timeout in seconds")
	f.Float64("iou-threshold", evaluation.DefaultThreshold, "default IoU threshold for requests that do not set one")
	f.IntP("workers", "w", 1, "evaluation workers per request")
	f.Bool("rate-limit-enabled", false, "enable rate limiting")
	f.Int("requests-per-minute", 60, "maximum requests per minute per client")
	f.Int("requests-per-hour", 1000, "maximum requests per hour per client")
	f.Int("max-requests-per-day", 5000, "maximum requests per day per client")
	f.Int64("max-data-per-day", 100*1024*1024, "maximum request bytes per day per client")

	for flag, key := range map[string]string{
		"host":                 "server.host",
		"port":                 "server.port",
		"cors-origin":          "server.cors_origin",
		"max-upload-size":      "server.max_upload_mb",
		"timeout":              "server.timeout_sec",
		"shutdown-timeout":     "server.shutdown_timeout",
		"iou-threshold":        "evaluation.iou_threshold",
		"workers":              "evaluation.workers",
		"rate-limit-enabled":   "server.rate_limit_enabled",
		"requests-per-minute":  "server.requests_per_minute",
		"requests-per-hour":    "server.requests_per_hour",
		"max-requests-per-day": "server.max_requests_per_day",
		"max-data-per-day":     "server.max_data_per_day",
	} {
		bindFlag(f, flag, key)
	}

	return cmd
}

// serverConfig maps the loaded configuration onto the server settings.
func serverConfig(cfg *config.Config) server.Config {
	return server.Config{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		CORSOrigin:   cfg.Server.CORSOrigin,
		MaxUploadMB:  cfg.Server.MaxUploadMB,
		TimeoutSec:   cfg.Server.TimeoutSec,
		IoUThreshold: cfg.Evaluation.IoUThreshold,
		Workers:      cfg.Evaluation.Workers,
		RateLimit: server.RateLimitConfig{
			Enabled:           cfg.Server.RateLimitEnabled,
			RequestsPerMinute: cfg.Server.RequestsPerMinute,
			RequestsPerHour:   cfg.Server.RequestsPerHour,
			MaxRequestsPerDay: cfg.Server.MaxRequestsPerDay,
			MaxDataPerDay:     cfg.Server.MaxDataPerDay,
		},
	}
}

func (a *app) runServe(cmd *cobra.Command) error {
	cfg := a.cfg
	sc := serverConfig(cfg)

	evalServer, err := server.NewServer(sc)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	timeout := time.Duration(sc.TimeoutSec) * time.Second
	httpServer := &http.Server{
		Addr:              net.JoinHostPort(sc.Host, strconv.Itoa(sc.Port)),
		Handler:           evalServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       timeout,
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("Starting evaluation server", "host", sc.Host, "port", sc.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err, ok := <-serveErr:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		slog.Info("Received shutdown signal")
	}

	shutdownTimeout := time.Duration(cfg.Server.ShutdownTimeout) * time.Second
	slog.Info("Starting graceful shutdown", "timeout", shutdownTimeout.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	slog.Info("Graceful shutdown completed")
	return nil
}
