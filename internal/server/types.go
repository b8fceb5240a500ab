// Package server exposes detection evaluation over HTTP and WebSocket.
package server

import (
	"fmt"
	"net/http"

	"github.com/MeKo-Tech/deteval/internal/annotation"
	"github.com/MeKo-Tech/deteval/internal/classes"
	"github.com/MeKo-Tech/deteval/internal/evaluation"
)

// Server holds the HTTP server state and dependencies.
type Server struct {
	registry    *classes.Registry
	threshold   float64
	workers     int
	corsOrigin  string
	maxUploadMB int64
	timeoutSec  int
	rateLimiter *RateLimiter
	metrics     *serverMetrics
}

// Config holds server configuration.
type Config struct {
	Host         string
	Port         int
	CORSOrigin   string
	MaxUploadMB  int64
	TimeoutSec   int
	IoUThreshold float64           // used when a request does not set one
	Workers      int               // evaluation workers per request
	Registry     *classes.Registry // nil uses classes.Default()
	RateLimit    RateLimitConfig
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time"`
}

// ClassesResponse is returned by GET /classes.
type ClassesResponse struct {
	Classes []string `json:"classes"`
	Count   int      `json:"count"`
}

// EvaluateRequest is the body of POST /evaluate and the message a WebSocket
// client sends.
type EvaluateRequest struct {
	IoUThreshold *float64           `json:"iou_threshold,omitempty"`
	PerImage     bool               `json:"per_image,omitempty"`
	Images       []annotation.Image `json:"images"`
}

// EvaluateResponse is returned by POST /evaluate.
type EvaluateResponse struct {
	Success   bool                `json:"success"`
	Summary   *evaluation.Summary `json:"summary,omitempty"`
	Error     string              `json:"error,omitempty"`
	ErrorType string              `json:"error_type,omitempty"`
}

// NewServer creates a new evaluation server.
func NewServer(config Config) (*Server, error) {
	if err := evaluation.NewEvaluator(config.IoUThreshold).Validate(); err != nil {
		return nil, err
	}
	if config.MaxUploadMB <= 0 {
		return nil, fmt.Errorf("invalid max upload size: %d", config.MaxUploadMB)
	}

	registry := config.Registry
	if registry == nil {
		registry = classes.Default()
	}

	s := &Server{
		registry:    registry,
		threshold:   config.IoUThreshold,
		workers:     max(config.Workers, 1),
		corsOrigin:  config.CORSOrigin,
		maxUploadMB: config.MaxUploadMB,
		timeoutSec:  config.TimeoutSec,
		metrics:     newServerMetrics(),
	}
	if config.RateLimit.Enabled {
		s.rateLimiter = NewRateLimiter(config.RateLimit)
	}
	return s, nil
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	s.handle(mux, "/health", s.healthHandler, false)
	s.handle(mux, "/classes", s.classesHandler, false)
	s.handle(mux, "/evaluate", s.evaluateHandler, true)
	s.handle(mux, "/ws/evaluate", s.evaluateWebSocketHandler, false)
	mux.Handle("/metrics", s.metrics.handler())
}

// Handler returns a mux with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return mux
}

// evaluator builds the evaluator for one request.
func (s *Server) evaluator(req *EvaluateRequest) *evaluation.Evaluator {
	threshold := s.threshold
	if req.IoUThreshold != nil {
		threshold = *req.IoUThreshold
	}
	e := evaluation.NewEvaluator(threshold)
	e.Workers = s.workers
	e.Registry = s.registry
	e.KeepImages = req.PerImage
	return e
}

// normalize applies the label normalization used for annotation files.
func (req *EvaluateRequest) normalize() {
	for i := range req.Images {
		img := &req.Images[i]
		for j := range img.GroundTruth {
			img.GroundTruth[j].Label = annotation.NormalizeLabel(img.GroundTruth[j].Label)
		}
		for j := range img.Predictions {
			img.Predictions[j].Label = annotation.NormalizeLabel(img.Predictions[j].Label)
		}
	}
}
