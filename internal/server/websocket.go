package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MeKo-Tech/deteval/internal/annotation"
	"github.com/MeKo-Tech/deteval/internal/evaluation"
	"github.com/gorilla/websocket"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
)

// WebSocket message types.
const (
	MessageImage   = "image"
	MessageSummary = "summary"
	MessageError   = "error"
)

// WebSocketMessage is a message sent by the server. An evaluation streams
// one image message per evaluated image, then a summary message.
type WebSocketMessage struct {
	Type      string                   `json:"type"`
	Index     *int                     `json:"index,omitempty"`
	Progress  float64                  `json:"progress,omitempty"`
	Image     *evaluation.ImageOutcome `json:"image,omitempty"`
	Summary   *evaluation.Summary      `json:"summary,omitempty"`
	Error     string                   `json:"error,omitempty"`
	ErrorType string                   `json:"error_type,omitempty"`
}

// WebSocketConnWriter is an interface for writing WebSocket messages.
type WebSocketConnWriter interface {
	WriteMessage(messageType int, data []byte) error
}

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
}

// checkOrigin accepts any origin when CORS is open, otherwise only the
// configured one.
func (s *Server) checkOrigin(r *http.Request) bool {
	if s.corsOrigin == "" || s.corsOrigin == "*" {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || origin == s.corsOrigin
}

// evaluateWebSocketHandler upgrades the connection and evaluates every
// EvaluateRequest the client sends.
func (s *Server) evaluateWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()
	conn.SetReadLimit(s.maxUploadMB * 1024 * 1024)

	s.metrics.wsOpened()
	defer s.metrics.wsClosed()

	slog.Info("WebSocket connection established", "remote_addr", r.RemoteAddr)
	s.handleWebSocketConnection(conn, getClientIP(r))
}

// handleWebSocketConnection reads requests until the client goes away.
// Every text message is charged to client like one POST /evaluate.
func (s *Server) handleWebSocketConnection(conn *websocket.Conn, client string) {
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			}
		}
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Error("WebSocket error", "error", err)
			}
			return
		}
		s.metrics.wsMessage("received")

		if messageType == websocket.TextMessage && s.admitWebSocketMessage(conn, client, data) {
			s.handleWebSocketMessage(conn, data)
		}
	}
}

// admitWebSocketMessage charges data to client and answers with a
// rate_limited error when a limit or quota is used up.
func (s *Server) admitWebSocketMessage(conn WebSocketConnWriter, client string, data []byte) bool {
	if s.rateLimiter == nil {
		return true
	}
	err := s.rateLimiter.Allow(client, int64(len(data)))
	if err == nil {
		return true
	}

	var (
		rateErr  *RateLimitError
		quotaErr *QuotaExceededError
	)
	switch {
	case errors.As(err, &rateErr):
		s.metrics.rateLimited(rateErr.Type)
	case errors.As(err, &quotaErr):
		s.metrics.rateLimited(quotaErr.Type)
	}
	s.sendWebSocketError(conn, errTypeRateLimited, err.Error())
	return false
}

// handleWebSocketMessage evaluates one request and streams the results.
func (s *Server) handleWebSocketMessage(conn WebSocketConnWriter, data []byte) {
	req, err := decodeEvaluateRequest(data)
	if err != nil {
		s.sendWebSocketError(conn, errTypeInvalidRequest, err.Error())
		return
	}

	ctx, cancel := s.requestContext(context.Background())
	defer cancel()

	total := len(req.Images)
	done := 0
	e := s.evaluator(req)
	e.OnImage = func(index int, outcome evaluation.ImageOutcome) {
		done++
		s.sendWebSocketMessage(conn, WebSocketMessage{
			Type:     MessageImage,
			Index:    &index,
			Progress: float64(done) / float64(total),
			Image:    &outcome,
		})
	}

	start := time.Now()
	summary, err := e.Evaluate(ctx, annotation.ImageSet(req.Images))
	s.metrics.evaluation("websocket", total, time.Since(start), summary, err)
	if err != nil {
		_, errType := errorStatus(err)
		s.sendWebSocketError(conn, errType, fmt.Sprintf("evaluation failed: %v", err))
		return
	}

	s.sendWebSocketMessage(conn, WebSocketMessage{Type: MessageSummary, Progress: 1, Summary: summary})
}

// sendWebSocketMessage sends a message over WebSocket.
func (s *Server) sendWebSocketMessage(conn WebSocketConnWriter, msg WebSocketMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Failed to marshal WebSocket message", "error", err)
		return
	}

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Error("Failed to send WebSocket message", "error", err)
		return
	}

	s.metrics.wsMessage("sent")
}

// sendWebSocketError sends an error message over WebSocket.
func (s *Server) sendWebSocketError(conn WebSocketConnWriter, errorType, message string) {
	s.sendWebSocketMessage(conn, WebSocketMessage{
		Type:      MessageError,
		Error:     message,
		ErrorType: errorType,
	})
}
