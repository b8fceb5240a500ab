package server

import (
	"fmt"
	"sync"
	"time"
)

// RateLimitConfig holds per-client limits. Zero disables a limit.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	RequestsPerHour   int
	MaxRequestsPerDay int
	MaxDataPerDay     int64 // bytes
}

// RateLimiter tracks request counts and uploaded bytes per client in fixed
// windows.
type RateLimiter struct {
	mu      sync.Mutex
	limits  RateLimitConfig
	clients map[string]*clientUsage
	now     func() time.Time
}

// window counts events since start.
type window struct {
	start time.Time
	count int
}

func (w *window) roll(now time.Time, length time.Duration) {
	if now.Sub(w.start) >= length {
		w.start = now
		w.count = 0
	}
}

type clientUsage struct {
	minute   window
	hour     window
	day      time.Time
	requests int
	bytes    int64
}

// Usage is a snapshot of one client's consumption.
type Usage struct {
	RequestsLastMinute int
	RequestsLastHour   int
	RequestsToday      int
	BytesToday         int64
}

// NewRateLimiter creates a rate limiter with the given limits.
func NewRateLimiter(limits RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		limits:  limits,
		clients: make(map[string]*clientUsage),
		now:     time.Now,
	}
}

// Allow records one request of size bytes for client, or returns a
// *RateLimitError or *QuotaExceededError if it is over a limit. Rejected
// requests are not counted.
func (rl *RateLimiter) Allow(client string, size int64) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	u, ok := rl.clients[client]
	if !ok {
		u = &clientUsage{minute: window{start: now}, hour: window{start: now}, day: startOfDay(now)}
		rl.clients[client] = u
	}
	u.minute.roll(now, time.Minute)
	u.hour.roll(now, time.Hour)
	if today := startOfDay(now); !today.Equal(u.day) {
		u.day, u.requests, u.bytes = today, 0, 0
	}

	if rl.limits.RequestsPerMinute > 0 && u.minute.count >= rl.limits.RequestsPerMinute {
		return &RateLimitError{Type: "minute", Limit: rl.limits.RequestsPerMinute, RetryAfter: u.minute.start.Add(time.Minute).Sub(now)}
	}
	if rl.limits.RequestsPerHour > 0 && u.hour.count >= rl.limits.RequestsPerHour {
		return &RateLimitError{Type: "hour", Limit: rl.limits.RequestsPerHour, RetryAfter: u.hour.start.Add(time.Hour).Sub(now)}
	}
	resets := u.day.AddDate(0, 0, 1)
	if rl.limits.MaxRequestsPerDay > 0 && u.requests >= rl.limits.MaxRequestsPerDay {
		return &QuotaExceededError{Type: "requests", Limit: int64(rl.limits.MaxRequestsPerDay), Used: int64(u.requests), Resets: resets}
	}
	if rl.limits.MaxDataPerDay > 0 && u.bytes+size > rl.limits.MaxDataPerDay {
		return &QuotaExceededError{Type: "data", Limit: rl.limits.MaxDataPerDay, Used: u.bytes, Resets: resets}
	}

	u.minute.count++
	u.hour.count++
	u.requests++
	u.bytes += size
	return nil
}

// Usage returns the recorded consumption of client.
func (rl *RateLimiter) Usage(client string) Usage {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	u, ok := rl.clients[client]
	if !ok {
		return Usage{}
	}
	return Usage{
		RequestsLastMinute: u.minute.count,
		RequestsLastHour:   u.hour.count,
		RequestsToday:      u.requests,
		BytesToday:         u.bytes,
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// RateLimitError is returned when a client exceeds a request rate.
type RateLimitError struct {
	Type       string // "minute" or "hour"
	Limit      int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (limit: %d, retry after: %v)", e.Type, e.Limit, e.RetryAfter)
}

// QuotaExceededError is returned when a client exceeds a daily quota.
type QuotaExceededError struct {
	Type   string // "requests" or "data"
	Limit  int64
	Used   int64
	Resets time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s (used: %d, limit: %d, resets: %s)",
		e.Type, e.Used, e.Limit, e.Resets.Format(time.RFC3339))
}
