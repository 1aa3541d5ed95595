// Package tick aligns timestamps with the host clock's seconds boundary.
package tick

import (
	"context"
	"errors"
	"runtime"
	"time"
)

// DefaultLimit is how long Boundary waits for the seconds field to change
// before giving up.
const DefaultLimit = 3 * time.Second

// ErrNoTick is returned when the clock's seconds field did not change within
// the wait limit.
var ErrNoTick = errors.New("clock did not tick")

// Clock is a source of wall-clock time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// System is the host's wall clock.
var System Clock = ClockFunc(time.Now)

// Boundary busy-waits until the seconds field of c differs from the first
// sample and returns the sample that crossed the boundary. The wait gives up
// after limit has passed on the monotonic clock, so a clock that never ticks
// cannot hang the caller. A non-positive limit means DefaultLimit.
func Boundary(ctx context.Context, c Clock, limit time.Duration) (time.Time, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	start := time.Now()
	last := c.Now()

	for {
		now := c.Now()
		if now.Second() != last.Second() {
			return now, nil
		}

		if err := ctx.Err(); err != nil {
			return time.Time{}, err
		}
		if time.Since(start) > limit {
			return time.Time{}, ErrNoTick
		}

		runtime.Gosched()
	}
}

// Align waits for the next tick boundary and returns the boundary sample
// advanced by offset. The offset covers the time the value spends in
// transmission and in the device before it takes effect.
func Align(ctx context.Context, c Clock, offset, limit time.Duration) (time.Time, error) {
	now, err := Boundary(ctx, c, limit)
	if err != nil {
		return time.Time{}, err
	}
	return now.Add(offset), nil
}
