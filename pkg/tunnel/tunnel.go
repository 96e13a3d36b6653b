// Package tunnel forwards Docker daemon traffic for ships that are
// only reachable over SSH. A Tunnel exposes a DialContext compatible
// with the Docker client so daemon connections transparently ride the
// SSH channel.
package tunnel

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// DefaultPort is the SSH port used when none is configured.
const DefaultPort = 22

// Config holds the SSH connection settings for one ship.
type Config struct {
	// Host is the ship's SSH endpoint.
	Host string

	// Port is the SSH port. Zero means DefaultPort.
	Port int

	// User is the SSH login name.
	User string

	// KeyPath is the private key used to authenticate.
	KeyPath string

	// KnownHostsPath locates the known_hosts file used for host key
	// verification. Empty falls back to ~/.ssh/known_hosts.
	KnownHostsPath string

	// StrictHostKeyChecking rejects hosts missing from known_hosts.
	// When false, host keys are not verified.
	StrictHostKeyChecking bool

	// ConnectTimeout bounds connection establishment.
	ConnectTimeout time.Duration
}

// Address returns the host:port the tunnel connects to.
func (c *Config) Address() string {
	port := c.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(c.Host, fmt.Sprint(port))
}

// BuildClientConfig assembles the ssh.ClientConfig from the settings.
func (c *Config) BuildClientConfig() (*ssh.ClientConfig, error) {
	keyBytes, err := os.ReadFile(c.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key %s: %w", c.KeyPath, err)
	}
	signer, err := ssh.ParsePrivateKey(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key %s: %w", c.KeyPath, err)
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey() //nolint:gosec // opt-in via StrictHostKeyChecking
	if c.StrictHostKeyChecking {
		path := c.KnownHostsPath
		if path == "" {
			path = filepath.Join(os.Getenv("HOME"), ".ssh", "known_hosts")
		}
		hostKeyCallback, err = knownhosts.New(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load known_hosts %s: %w", path, err)
		}
	}

	timeout := c.ConnectTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &ssh.ClientConfig{
		User:            c.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}, nil
}

// Tunnel is a lazy SSH connection that forwards TCP dials through the
// remote host. Safe for concurrent use.
type Tunnel struct {
	config *Config

	mu     sync.Mutex
	client *ssh.Client
}

// New creates a tunnel. No connection is made until the first dial.
func New(config *Config) *Tunnel {
	return &Tunnel{config: config}
}

// DialContext opens a forwarded connection to addr through the SSH
// host. It satisfies the dialer contract of the Docker client.
func (t *Tunnel) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	if network != "tcp" {
		return nil, fmt.Errorf("ssh tunnel forwards tcp only, got %s", network)
	}

	client, err := t.connect(ctx)
	if err != nil {
		return nil, err
	}

	type dialResult struct {
		conn net.Conn
		err  error
	}
	done := make(chan dialResult, 1)
	go func() {
		conn, err := client.Dial("tcp", addr)
		done <- dialResult{conn, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("forward to %s via %s failed: %w", addr, t.config.Address(), res.err)
		}
		return res.conn, nil
	}
}

// connect establishes the SSH connection on first use and reuses it
// afterwards.
func (t *Tunnel) connect(ctx context.Context) (*ssh.Client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client != nil {
		return t.client, nil
	}

	clientConfig, err := t.config.BuildClientConfig()
	if err != nil {
		return nil, err
	}

	dialer := net.Dialer{Timeout: clientConfig.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", t.config.Address())
	if err != nil {
		return nil, fmt.Errorf("ssh dial %s failed: %w", t.config.Address(), err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, t.config.Address(), clientConfig)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s failed: %w", t.config.Address(), err)
	}

	t.client = ssh.NewClient(sshConn, chans, reqs)
	return t.client, nil
}

// Close tears down the SSH connection if one was established.
func (t *Tunnel) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client == nil {
		return nil
	}
	err := t.client.Close()
	t.client = nil
	return err
}
