package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/MeKo-Tech/deteval/internal/annotation"
	"github.com/MeKo-Tech/deteval/internal/classes"
	"github.com/MeKo-Tech/deteval/internal/evaluation"
	"github.com/MeKo-Tech/deteval/internal/report"
	"github.com/MeKo-Tech/deteval/internal/version"
)

// Error types reported in error responses and WebSocket error messages.
const (
	errTypeInvalidRequest = "invalid_request"
	errTypeUnknownClass   = "unknown_class"
	errTypeTimeout        = "timeout"
	errTypeInternal       = "internal_error"
	errTypeRateLimited    = "rate_limited"
)

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: version.Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	})
}

// classesHandler lists the class registry.
func (s *Server) classesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	labels := s.registry.Labels()
	writeJSON(w, http.StatusOK, ClassesResponse{Classes: labels, Count: len(labels)})
}

// evaluateHandler evaluates the images of a JSON EvaluateRequest. The
// optional query parameter format selects text, csv or yaml instead of the
// JSON response.
func (s *Server) evaluateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	format := r.URL.Query().Get("format")
	if format != "" && format != report.FormatJSON {
		if err := report.ValidateFormat(format); err != nil {
			s.writeErrorResponse(w, err.Error(), errTypeInvalidRequest, http.StatusBadRequest)
			return
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadMB*1024*1024)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeErrorResponse(w, "Request body too large", errTypeInvalidRequest, http.StatusRequestEntityTooLarge)
			return
		}
		s.writeErrorResponse(w, "Failed to read request body", errTypeInvalidRequest, http.StatusBadRequest)
		return
	}
	s.metrics.body(len(body))

	req, err := decodeEvaluateRequest(body)
	if err != nil {
		s.writeErrorResponse(w, err.Error(), errTypeInvalidRequest, http.StatusBadRequest)
		return
	}

	ctx, cancel := s.requestContext(r.Context())
	defer cancel()

	start := time.Now()
	summary, err := s.evaluator(req).Evaluate(ctx, annotation.ImageSet(req.Images))
	s.metrics.evaluation("http", len(req.Images), time.Since(start), summary, err)
	if err != nil {
		status, errType := errorStatus(err)
		s.writeErrorResponse(w, err.Error(), errType, status)
		return
	}

	if format == "" || format == report.FormatJSON {
		writeJSON(w, http.StatusOK, EvaluateResponse{Success: true, Summary: summary})
		return
	}

	opts := report.DefaultOptions()
	opts.PerImage = req.PerImage
	out, err := report.Format(summary, format, opts)
	if err != nil {
		s.writeErrorResponse(w, err.Error(), errTypeInternal, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType(format))
	if _, err := io.WriteString(w, out); err != nil {
		slog.Error("Failed to write evaluation report", "error", err)
	}
}

func decodeEvaluateRequest(data []byte) (*EvaluateRequest, error) {
	var req EvaluateRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	req.normalize()
	return &req, nil
}

// requestContext bounds an evaluation by the configured timeout.
func (s *Server) requestContext(parent context.Context) (context.Context, context.CancelFunc) {
	if s.timeoutSec <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, time.Duration(s.timeoutSec)*time.Second)
}

// errorStatus maps an evaluation error to an HTTP status and error type.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, classes.ErrUnknownClass):
		return http.StatusUnprocessableEntity, errTypeUnknownClass
	case errors.Is(err, evaluation.ErrInvalidThreshold):
		return http.StatusBadRequest, errTypeInvalidRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, errTypeTimeout
	default:
		return http.StatusInternalServerError, errTypeInternal
	}
}

func contentType(format string) string {
	switch format {
	case report.FormatCSV:
		return "text/csv"
	case report.FormatYAML:
		return "application/yaml"
	default:
		return "text/plain; charset=utf-8"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeErrorResponse writes a JSON error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, message, errType string, statusCode int) {
	writeJSON(w, statusCode, EvaluateResponse{
		Success:   false,
		Error:     message,
		ErrorType: errType,
	})
}
