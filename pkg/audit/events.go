// Package audit records what plays did: which play ran, which
// transitions were applied to which instances, and how each ended.
// Sinks receive events as they happen; recording failures never fail
// the play itself.
package audit

import "time"

// Kind classifies an audit event.
type Kind string

const (
	// KindPlayStarted marks the beginning of a play.
	KindPlayStarted Kind = "play_started"

	// KindPlayFinished marks the end of a play.
	KindPlayFinished Kind = "play_finished"

	// KindTransition records one instance transition outcome.
	KindTransition Kind = "transition"
)

// Event is one audit record.
type Event struct {
	Kind        Kind          `json:"kind"`
	Time        time.Time     `json:"time"`
	PlayID      string        `json:"play_id"`
	Environment string        `json:"environment"`
	Op          string        `json:"op"`
	Instance    string        `json:"instance,omitempty"`
	Service     string        `json:"service,omitempty"`
	Ship        string        `json:"ship,omitempty"`
	Outcome     string        `json:"outcome,omitempty"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
}
