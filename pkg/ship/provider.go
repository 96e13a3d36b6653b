// Package ship manages daemon connections to the hosts of an
// environment. A Provider hands out one connector per ship, creating
// SSH tunnels where a ship requires them and reusing connections for
// the lifetime of a play.
package ship

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/flotilla-io/flotilla/pkg/daemon"
	"github.com/flotilla-io/flotilla/pkg/entity"
	"github.com/flotilla-io/flotilla/pkg/telemetry"
	"github.com/flotilla-io/flotilla/pkg/tunnel"
)

// Connector is the daemon surface plays operate through.
type Connector interface {
	Ping(ctx context.Context) error
	ImageID(ctx context.Context, ref string) (string, error)
	PullImage(ctx context.Context, ref string) error
	Inspect(ctx context.Context, name string) (*daemon.Status, error)
	Create(ctx context.Context, inst *entity.Instance, env map[string]string) (string, error)
	Start(ctx context.Context, id string) error
	Stop(ctx context.Context, id string, grace time.Duration) error
	Remove(ctx context.Context, id string) error
}

// Provider resolves ships to connectors.
type Provider interface {
	Connect(ctx context.Context, s *entity.Ship) (Connector, error)
	Close() error
}

// DockerProvider connects to ships' Docker daemons, caching one client
// and at most one tunnel per ship. Safe for concurrent use.
type DockerProvider struct {
	log     zerolog.Logger
	auth    func(ref string) *entity.Registry
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer

	mu      sync.Mutex
	clients map[string]*daemon.Docker
	tunnels map[string]*tunnel.Tunnel
}

// NewDockerProvider creates an empty provider.
func NewDockerProvider(log zerolog.Logger) *DockerProvider {
	return &DockerProvider{
		log:     log,
		clients: make(map[string]*daemon.Docker),
		tunnels: make(map[string]*tunnel.Tunnel),
	}
}

// WithRegistryAuth installs a credential lookup handed to every client
// this provider creates. Typically (*entity.Model).RegistryFor.
func (p *DockerProvider) WithRegistryAuth(lookup func(ref string) *entity.Registry) *DockerProvider {
	p.auth = lookup
	return p
}

// WithTelemetry installs the metrics and tracer handed to every client
// this provider creates.
func (p *DockerProvider) WithTelemetry(metrics *telemetry.Metrics, tracer *telemetry.Tracer) *DockerProvider {
	p.metrics = metrics
	p.tracer = tracer
	return p
}

// Connect returns the connector for a ship, creating it on first use.
func (p *DockerProvider) Connect(ctx context.Context, s *entity.Ship) (Connector, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cli, ok := p.clients[s.Name]; ok {
		return cli, nil
	}

	var dialer daemon.Dialer
	if s.Tunnel != nil {
		tun := tunnel.New(&tunnel.Config{
			Host:    s.Address,
			Port:    s.Tunnel.Port,
			User:    s.Tunnel.User,
			KeyPath: s.Tunnel.KeyPath,
		})
		p.tunnels[s.Name] = tun
		dialer = tun
	}

	cli, err := daemon.New(s, dialer, p.log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ship %s: %w", s.Name, err)
	}
	if p.auth != nil {
		cli.WithRegistryAuth(p.auth)
	}
	if p.metrics != nil || p.tracer != nil {
		cli.WithTelemetry(p.metrics, p.tracer)
	}
	p.clients[s.Name] = cli
	return cli, nil
}

// Close tears down every cached client and tunnel. The first error is
// returned; teardown continues regardless.
func (p *DockerProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for name, cli := range p.clients {
		if err := cli.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.clients, name)
	}
	for name, tun := range p.tunnels {
		if err := tun.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.tunnels, name)
	}
	return firstErr
}
