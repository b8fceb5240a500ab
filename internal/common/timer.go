// Package common holds small helpers shared by the commands.
package common

import (
	"log/slog"
	"time"
)

// Lap is the duration of one named stage.
type Lap struct {
	Name     string
	Duration time.Duration
}

// Stopwatch records the durations of consecutive named stages.
type Stopwatch struct {
	now   func() time.Time
	start time.Time
	last  time.Time
	laps  []Lap
}

// NewStopwatch starts a stopwatch.
func NewStopwatch() *Stopwatch {
	return newStopwatch(time.Now)
}

func newStopwatch(now func() time.Time) *Stopwatch {
	t := now()
	return &Stopwatch{now: now, start: t, last: t}
}

// Lap ends the current stage under name and returns its duration.
func (s *Stopwatch) Lap(name string) time.Duration {
	t := s.now()
	d := t.Sub(s.last)
	s.last = t
	s.laps = append(s.laps, Lap{Name: name, Duration: d})
	return d
}

// Laps returns the recorded stages in order.
func (s *Stopwatch) Laps() []Lap {
	return append([]Lap(nil), s.laps...)
}

// Total is the time from start to the last lap.
func (s *Stopwatch) Total() time.Duration {
	return s.last.Sub(s.start)
}

// LogValue groups the stage durations, e.g. timing.evaluate=12ms.
func (s *Stopwatch) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, len(s.laps)+1)
	for _, l := range s.laps {
		attrs = append(attrs, slog.Duration(l.Name, l.Duration))
	}
	attrs = append(attrs, slog.Duration("total", s.Total()))
	return slog.GroupValue(attrs...)
}
