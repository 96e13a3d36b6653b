package lifecycle

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"sort"
	"time"
)

// Probe is a single readiness test. A nil error means the probed
// condition holds; any error carries the reason it does not.
type Probe interface {
	// Probe performs one attempt.
	Probe(ctx context.Context) error

	// Describe returns a short human-readable summary for logs and
	// failure reasons.
	Describe() string
}

// TCPProbe checks that a TCP endpoint accepts connections.
type TCPProbe struct {
	Host string
	Port int

	// DialTimeout bounds one connection attempt. Zero means 1s.
	DialTimeout time.Duration
}

// Probe implements Probe.
func (p *TCPProbe) Probe(ctx context.Context) error {
	timeout := p.DialTimeout
	if timeout == 0 {
		timeout = time.Second
	}

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(p.Host, fmt.Sprint(p.Port)))
	if err != nil {
		return fmt.Errorf("port not reachable: %w", err)
	}
	return conn.Close()
}

// Describe implements Probe.
func (p *TCPProbe) Describe() string {
	return fmt.Sprintf("tcp %s:%d", p.Host, p.Port)
}

// HTTPProbe checks that an HTTP request returns a 2xx status within its
// timeout.
type HTTPProbe struct {
	URL string

	// RequestTimeout bounds one request. Zero means 5s.
	RequestTimeout time.Duration
}

// Probe implements Probe.
func (p *HTTPProbe) Probe(ctx context.Context) error {
	timeout := p.RequestTimeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, p.URL, nil)
	if err != nil {
		return fmt.Errorf("invalid probe url: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// Describe implements Probe.
func (p *HTTPProbe) Describe() string {
	return fmt.Sprintf("http %s", p.URL)
}

// ExecProbe runs a command through the shell and passes when it exits
// zero. Env must already be normalized to strings; the probe never
// stringifies values itself.
type ExecProbe struct {
	Command string
	Env     map[string]string
}

// Probe implements Probe.
func (p *ExecProbe) Probe(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", p.Command)
	cmd.Env = flattenEnv(p.Env)

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("command failed: %w", err)
	}
	return nil
}

// Describe implements Probe.
func (p *ExecProbe) Describe() string {
	return fmt.Sprintf("exec %q", p.Command)
}

// SleepProbe passes unconditionally after a fixed delay.
type SleepProbe struct {
	Delay time.Duration
	Clock Clock
}

// Probe implements Probe.
func (p *SleepProbe) Probe(ctx context.Context) error {
	clock := p.Clock
	if clock == nil {
		clock = RealClock{}
	}
	return clock.Sleep(ctx, p.Delay)
}

// Describe implements Probe.
func (p *SleepProbe) Describe() string {
	return fmt.Sprintf("sleep %s", p.Delay)
}

// flattenEnv converts an environment map into the KEY=VALUE slice form
// expected by os/exec, in stable order.
func flattenEnv(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}
