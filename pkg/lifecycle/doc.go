// Package lifecycle implements the readiness checks that gate an
// instance's transition to the "up" state after it has been started.
//
// A check is described by a Spec (parsed from the environment file),
// realized as a Probe, and driven by a Runner. The Runner is an explicit
// bounded-retry state machine (Pending -> Attempting -> Passed/Failed)
// so that it can be exercised deterministically in tests with a fake
// clock and fake probes instead of real timers and sockets.
package lifecycle
