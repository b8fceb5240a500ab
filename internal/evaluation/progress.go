package evaluation

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// ProgressCallback receives progress updates while images are evaluated.
// Calls are made from a single goroutine.
type ProgressCallback interface {
	// OnStart is called once with the number of images.
	OnStart(total int)

	// OnProgress is called after each evaluated image.
	OnProgress(done, total int)

	// OnComplete is called when evaluation ends, also after a failure.
	OnComplete()

	// OnError is called with the 1-based position of a failing image.
	OnError(position int, err error)
}

// NoOpProgressCallback discards all updates.
type NoOpProgressCallback struct{}

func (NoOpProgressCallback) OnStart(int)         {}
func (NoOpProgressCallback) OnProgress(int, int) {}
func (NoOpProgressCallback) OnComplete()         {}
func (NoOpProgressCallback) OnError(int, error)  {}

// ConsoleProgress redraws a one-line progress bar in place.
type ConsoleProgress struct {
	mu       sync.Mutex
	w        io.Writer
	prefix   string
	width    int
	throttle time.Duration
	started  time.Time
	drawn    time.Time
	failures int
}

// NewConsoleProgress writes to w, or stderr when w is nil.
func NewConsoleProgress(w io.Writer, prefix string) *ConsoleProgress {
	if w == nil {
		w = os.Stderr
	}
	return &ConsoleProgress{w: w, prefix: prefix, width: 30, throttle: 100 * time.Millisecond}
}

// Width sets the bar width in characters.
func (c *ConsoleProgress) Width(n int) *ConsoleProgress {
	c.width = max(n, 1)
	return c
}

// Throttle sets the minimum time between redraws. The final update is
// always drawn.
func (c *ConsoleProgress) Throttle(d time.Duration) *ConsoleProgress {
	c.throttle = d
	return c
}

func (c *ConsoleProgress) OnStart(total int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.started = time.Now()
	c.drawn = time.Time{}
	c.failures = 0
	_, _ = fmt.Fprintf(c.w, "%s%d files\n", c.prefix, total)
}

func (c *ConsoleProgress) OnProgress(done, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if total <= 0 {
		return
	}
	now := time.Now()
	if done < total && now.Sub(c.drawn) < c.throttle {
		return
	}
	c.drawn = now

	_, _ = fmt.Fprintf(c.w, "\r%s[%s] %d/%d %3.0f%%", c.prefix, bar(done, total, c.width), done, total,
		100*float64(done)/float64(total))
}

func (c *ConsoleProgress) OnComplete() {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := time.Since(c.started).Round(time.Millisecond)
	if c.failures > 0 {
		_, _ = fmt.Fprintf(c.w, "\n%sstopped after %v\n", c.prefix, elapsed)
		return
	}
	_, _ = fmt.Fprintf(c.w, "\n%sdone in %v\n", c.prefix, elapsed)
}

func (c *ConsoleProgress) OnError(position int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failures++
	_, _ = fmt.Fprintf(c.w, "\n%sfile %d failed: %v", c.prefix, position, err)
}

// bar renders done/total as "====>     " of the given width.
func bar(done, total, width int) string {
	filled := min(width*done/total, width)
	if filled == width {
		return strings.Repeat("=", width)
	}
	if filled == 0 {
		return strings.Repeat(" ", width)
	}
	return strings.Repeat("=", filled-1) + ">" + strings.Repeat(" ", width-filled)
}

// LogProgress logs through slog each time another share of the images,
// in percent, is done.
type LogProgress struct {
	logger  *slog.Logger
	level   slog.Level
	every   int
	last    int
	started time.Time
}

// NewLogProgress logs at level every 10% of the images. A nil logger uses
// slog.Default().
func NewLogProgress(logger *slog.Logger, level slog.Level) *LogProgress {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogProgress{logger: logger, level: level, every: 10}
}

// Every sets the logged share in percent. Zero or less logs every image.
func (l *LogProgress) Every(percent int) *LogProgress {
	l.every = percent
	return l
}

func (l *LogProgress) log(msg string, args ...any) {
	l.logger.Log(context.Background(), l.level, msg, args...)
}

func (l *LogProgress) OnStart(total int) {
	l.started = time.Now()
	l.last = 0
	l.log("Evaluation started", "images", total)
}

func (l *LogProgress) OnProgress(done, total int) {
	if total <= 0 {
		return
	}
	if l.every > 0 {
		bucket := done * 100 / total / l.every
		if bucket <= l.last && done < total {
			return
		}
		l.last = bucket
	}
	l.log("Evaluation progress", "done", done, "total", total, "elapsed", time.Since(l.started).Round(time.Millisecond))
}

func (l *LogProgress) OnComplete() {
	l.log("Evaluation done", "elapsed", time.Since(l.started).Round(time.Millisecond))
}

func (l *LogProgress) OnError(position int, err error) {
	l.logger.Error("Evaluation failed", "image", position, "error", err)
}
