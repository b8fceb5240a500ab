package server

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// responseWriter remembers the status code written through it.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack passes WebSocket upgrades through to the wrapped writer.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return http.NewResponseController(rw.ResponseWriter).Hijack()
}

// handle registers h on mux behind CORS and request metrics. limited
// routes also pass the rate limiter.
func (s *Server) handle(mux *http.ServeMux, route string, h http.HandlerFunc, limited bool) {
	if limited {
		h = s.rateLimitMiddleware(h)
	}
	mux.HandleFunc(route, s.corsMiddleware(s.instrument(route, h)))
}

// corsMiddleware sets the CORS headers and answers preflight requests.
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", s.corsOrigin)
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		h.Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next(w, r)
	}
}

// instrument counts requests and their latency under route.
func (s *Server) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		start := time.Now()
		next(rw, r)
		s.metrics.request(r.Method, route, rw.statusCode, time.Since(start))
	}
}

// rateLimitMiddleware charges the client one request and its declared body
// size, answering 429 once a limit or quota is used up.
func (s *Server) rateLimitMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.rateLimiter != nil {
			if err := s.rateLimiter.Allow(getClientIP(r), max(r.ContentLength, 0)); err != nil {
				s.rejectRequest(w, err)
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) rejectRequest(w http.ResponseWriter, err error) {
	var (
		rateErr  *RateLimitError
		quotaErr *QuotaExceededError
		h        = w.Header()
	)

	if errors.As(err, &rateErr) {
		s.metrics.rateLimited(rateErr.Type)
		h.Set("X-RateLimit-Type", rateErr.Type)
		h.Set("X-RateLimit-Limit", strconv.Itoa(rateErr.Limit))
		h.Set("Retry-After", strconv.Itoa(int(rateErr.RetryAfter.Round(time.Second).Seconds())))
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":       "rate_limit_exceeded",
			"type":        rateErr.Type,
			"limit":       rateErr.Limit,
			"retry_after": rateErr.RetryAfter.Seconds(),
			"message":     rateErr.Error(),
		})
		return
	}

	if errors.As(err, &quotaErr) {
		s.metrics.rateLimited(quotaErr.Type)
		h.Set("X-Quota-Type", quotaErr.Type)
		h.Set("X-Quota-Limit", strconv.FormatInt(quotaErr.Limit, 10))
		h.Set("X-Quota-Used", strconv.FormatInt(quotaErr.Used, 10))
		h.Set("X-Quota-Resets", quotaErr.Resets.UTC().Format(http.TimeFormat))
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":   "quota_exceeded",
			"type":    quotaErr.Type,
			"limit":   quotaErr.Limit,
			"used":    quotaErr.Used,
			"resets":  quotaErr.Resets.Format(time.RFC3339),
			"message": quotaErr.Error(),
		})
		return
	}

	slog.Error("Rate limiting check failed", "error", err)
	s.writeErrorResponse(w, "Rate limiting check failed", errTypeInternal, http.StatusInternalServerError)
}

// getClientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then
// the connection's address.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return ip
	}
	return r.RemoteAddr
}
