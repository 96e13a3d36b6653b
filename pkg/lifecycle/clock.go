package lifecycle

import (
	"context"
	"time"
)

// Clock abstracts time for the retry loop so tests can drive it without
// real timers.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Sleep blocks for the given duration or until the context is done,
	// in which case it returns the context's error.
	Sleep(ctx context.Context, d time.Duration) error
}

// RealClock is the wall-clock implementation used outside of tests.
type RealClock struct{}

// Now implements Clock.
func (RealClock) Now() time.Time { return time.Now() }

// Sleep implements Clock.
func (RealClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
