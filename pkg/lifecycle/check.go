package lifecycle

import (
	"fmt"
	"time"
)

// Kind identifies a readiness check variant.
type Kind string

const (
	// KindTCP passes once a TCP connection to the target port succeeds.
	KindTCP Kind = "tcp"

	// KindHTTP passes once an HTTP request returns a 2xx status.
	KindHTTP Kind = "http"

	// KindExec passes once the configured command exits zero.
	KindExec Kind = "exec"

	// KindSleep passes unconditionally after a fixed delay.
	KindSleep Kind = "sleep"
)

// Default retry policy applied when a spec leaves the fields unset.
const (
	DefaultAttempts = 30
	DefaultInterval = time.Second
)

// Spec describes one readiness check as declared on an instance.
// Which fields are meaningful depends on Kind.
type Spec struct {
	// Kind selects the check variant.
	Kind Kind `yaml:"type" json:"type"`

	// Port is the name of the instance port to ping (tcp checks).
	Port string `yaml:"port,omitempty" json:"port,omitempty"`

	// Host overrides the ship address as the probe target (tcp checks).
	Host string `yaml:"host,omitempty" json:"host,omitempty"`

	// URL is the request target for http checks.
	URL string `yaml:"url,omitempty" json:"url,omitempty"`

	// Command is the script to run for exec checks. It is executed with
	// the instance's fully resolved environment.
	Command string `yaml:"command,omitempty" json:"command,omitempty"`

	// Delay is the fixed wait for sleep checks.
	Delay time.Duration `yaml:"delay,omitempty" json:"delay,omitempty"`

	// Attempts is the maximum number of probe attempts before the check
	// is declared failed. Zero means DefaultAttempts.
	Attempts int `yaml:"attempts,omitempty" json:"attempts,omitempty"`

	// Interval is the wait between attempts. Zero means DefaultInterval.
	Interval time.Duration `yaml:"interval,omitempty" json:"interval,omitempty"`
}

// Validate checks that the spec names a known kind and carries the
// fields that kind needs.
func (s Spec) Validate() error {
	switch s.Kind {
	case KindTCP:
		if s.Port == "" {
			return fmt.Errorf("tcp check requires a port name")
		}
	case KindHTTP:
		if s.URL == "" {
			return fmt.Errorf("http check requires a url")
		}
	case KindExec:
		if s.Command == "" {
			return fmt.Errorf("exec check requires a command")
		}
	case KindSleep:
		if s.Delay <= 0 {
			return fmt.Errorf("sleep check requires a positive delay")
		}
	default:
		return fmt.Errorf("unknown lifecycle check type: %q", s.Kind)
	}
	if s.Attempts < 0 {
		return fmt.Errorf("check attempts must not be negative")
	}
	return nil
}

// RetryPolicy returns the effective attempt count and interval,
// substituting defaults for unset fields. Sleep checks always run a
// single attempt; the delay itself is the probe.
func (s Spec) RetryPolicy() (attempts int, interval time.Duration) {
	attempts, interval = s.Attempts, s.Interval
	if attempts == 0 {
		attempts = DefaultAttempts
	}
	if interval == 0 {
		interval = DefaultInterval
	}
	if s.Kind == KindSleep {
		attempts = 1
	}
	return attempts, interval
}
