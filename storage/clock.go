package storage

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Clock supplies the timestamps handed to a Replacer. Successive calls to Now
// must never go backwards.
type Clock interface {
	Now() Timestamp
}

// LogicalClock is a counter that ticks once per call
type LogicalClock struct {
	ticks atomic.Uint64
}

// NewLogicalClock creates a logical clock starting at 0; the first Now is 1
func NewLogicalClock() *LogicalClock {
	return &LogicalClock{}
}

// Now advances the clock and returns the new value
func (c *LogicalClock) Now() Timestamp {
	return Timestamp(c.ticks.Add(1))
}

// Current returns the last value handed out without advancing
func (c *LogicalClock) Current() Timestamp {
	return Timestamp(c.ticks.Load())
}

// MonotonicClock reports nanoseconds elapsed since it was created.
// It reads Go's monotonic clock, so wall-clock steps do not affect it.
type MonotonicClock struct {
	start time.Time
}

// NewMonotonicClock creates a clock anchored at the current instant
func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{start: time.Now()}
}

// Now returns the elapsed nanoseconds
func (c *MonotonicClock) Now() Timestamp {
	return Timestamp(time.Since(c.start).Nanoseconds())
}

const (
	ClockLogical   = "logical"
	ClockMonotonic = "monotonic"
)

// NewClock creates a clock by name
func NewClock(kind string) (Clock, error) {
	switch kind {
	case ClockLogical, "":
		return NewLogicalClock(), nil
	case ClockMonotonic:
		return NewMonotonicClock(), nil
	default:
		return nil, fmt.Errorf("unknown clock %q", kind)
	}
}
