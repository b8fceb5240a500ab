package server

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a settable time source.
type fakeClock struct{ t time.Time }

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func limiterAt(c *fakeClock, l RateLimitConfig) *RateLimiter {
	rl := NewRateLimiter(l)
	rl.now = c.now
	return rl
}

func TestRateLimiter_NoLimits(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{})

	for range 100 {
		require.NoError(t, rl.Allow("client", 100))
	}
	usage := rl.Usage("client")
	assert.Equal(t, 100, usage.RequestsToday)
	assert.Equal(t, int64(100*100), usage.BytesToday)
	assert.Equal(t, Usage{}, rl.Usage("other"))
}

func TestRateLimiter_PerMinute(t *testing.T) {
	clock := newFakeClock()
	rl := limiterAt(clock, RateLimitConfig{RequestsPerMinute: 2})

	require.NoError(t, rl.Allow("client", 0))
	clock.advance(10 * time.Second)
	require.NoError(t, rl.Allow("client", 0))

	err := rl.Allow("client", 0)
	var rateErr *RateLimitError
	require.ErrorAs(t, err, &rateErr)
	assert.Equal(t, "minute", rateErr.Type)
	assert.Equal(t, 2, rateErr.Limit)
	assert.Equal(t, 50*time.Second, rateErr.RetryAfter)

	require.NoError(t, rl.Allow("other", 0), "limits are per client")

	clock.advance(50 * time.Second)
	require.NoError(t, rl.Allow("client", 0))
	assert.Equal(t, 1, rl.Usage("client").RequestsLastMinute)
	assert.Equal(t, 3, rl.Usage("client").RequestsToday)
}

func TestRateLimiter_PerHour(t *testing.T) {
	clock := newFakeClock()
	rl := limiterAt(clock, RateLimitConfig{RequestsPerHour: 3})

	for range 3 {
		require.NoError(t, rl.Allow("client", 0))
		clock.advance(2 * time.Minute)
	}

	var rateErr *RateLimitError
	require.ErrorAs(t, rl.Allow("client", 0), &rateErr)
	assert.Equal(t, "hour", rateErr.Type)
	assert.Equal(t, 54*time.Minute, rateErr.RetryAfter)
}

func TestRateLimiter_DailyQuotas(t *testing.T) {
	clock := newFakeClock()
	rl := limiterAt(clock, RateLimitConfig{MaxRequestsPerDay: 2, MaxDataPerDay: 1000})

	require.NoError(t, rl.Allow("client", 600))

	var quotaErr *QuotaExceededError
	require.ErrorAs(t, rl.Allow("client", 500), &quotaErr)
	assert.Equal(t, "data", quotaErr.Type)
	assert.Equal(t, int64(600), quotaErr.Used)
	assert.Equal(t, time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC), quotaErr.Resets)

	require.NoError(t, rl.Allow("client", 400), "rejected requests are not counted")

	require.ErrorAs(t, rl.Allow("client", 0), &quotaErr)
	assert.Equal(t, "requests", quotaErr.Type)
	assert.Equal(t, int64(2), quotaErr.Limit)

	clock.advance(14 * time.Hour)
	require.NoError(t, rl.Allow("client", 1000), "quotas reset at midnight")
}

func TestRateLimitErrors_Messages(t *testing.T) {
	err := error(&RateLimitError{Type: "minute", Limit: 5, RetryAfter: time.Second})
	assert.Contains(t, err.Error(), "rate limit exceeded for minute")

	err = &QuotaExceededError{Type: "data", Limit: 10, Used: 9, Resets: time.Unix(0, 0).UTC()}
	assert.Contains(t, err.Error(), "quota exceeded for data (used: 9, limit: 10")

	var quotaErr *QuotaExceededError
	assert.True(t, errors.As(err, &quotaErr))
}
