package lifecycle

import (
	"context"
	"fmt"
	"time"
)

// State is the position of a check in its retry state machine.
type State string

const (
	// StatePending indicates the check has not attempted its probe yet.
	StatePending State = "pending"

	// StateAttempting indicates a probe attempt is in flight.
	StateAttempting State = "attempting"

	// StatePassed indicates a probe attempt succeeded.
	StatePassed State = "passed"

	// StateFailed indicates all attempts were exhausted without success.
	StateFailed State = "failed"
)

// Result records the outcome of driving one check to a terminal state.
type Result struct {
	// State is StatePassed or StateFailed.
	State State

	// Attempts is the number of probe attempts actually performed.
	Attempts int

	// LastErr is the reason reported by the final unsuccessful attempt.
	// Nil when the check passed.
	LastErr error

	// Elapsed is the total time spent in the retry loop.
	Elapsed time.Duration
}

// Passed reports whether the check reached StatePassed.
func (r Result) Passed() bool { return r.State == StatePassed }

// Runner drives a probe through the bounded retry loop. The zero value
// is not usable; construct with NewRunner.
type Runner struct {
	attempts int
	interval time.Duration
	clock    Clock
}

// NewRunner builds a runner for the given spec's retry policy. A nil
// clock selects the wall clock.
func NewRunner(spec Spec, clock Clock) *Runner {
	attempts, interval := spec.RetryPolicy()
	if clock == nil {
		clock = RealClock{}
	}
	return &Runner{
		attempts: attempts,
		interval: interval,
		clock:    clock,
	}
}

// Run executes the retry loop: probe, and on failure wait the interval
// and re-attempt, up to the attempt limit. The first successful probe
// ends the loop. Context cancellation counts as the current attempt's
// failure and ends the loop early.
func (r *Runner) Run(ctx context.Context, probe Probe) Result {
	start := r.clock.Now()

	var lastErr error
	attempted := 0

	for attempt := 1; attempt <= r.attempts; attempt++ {
		attempted = attempt

		err := probe.Probe(ctx)
		if err == nil {
			return Result{
				State:    StatePassed,
				Attempts: attempted,
				Elapsed:  r.clock.Now().Sub(start),
			}
		}
		lastErr = fmt.Errorf("%s: %w", probe.Describe(), err)

		if ctx.Err() != nil {
			break
		}
		if attempt < r.attempts {
			if err := r.clock.Sleep(ctx, r.interval); err != nil {
				break
			}
		}
	}

	return Result{
		State:    StateFailed,
		Attempts: attempted,
		LastErr:  lastErr,
		Elapsed:  r.clock.Now().Sub(start),
	}
}
