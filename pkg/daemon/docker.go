// Package daemon wraps the Docker Engine API client for one ship. It
// translates instance definitions into container create requests and
// exposes the small set of daemon operations plays need.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/go-connections/nat"
	"github.com/rs/zerolog"

	"github.com/flotilla-io/flotilla/pkg/entity"
	"github.com/flotilla-io/flotilla/pkg/telemetry"
)

// Status is the observed state of an instance's container on its ship.
type Status struct {
	// ID is the container ID, empty when no container exists.
	ID string

	// Running reports whether the container is currently up.
	Running bool

	// ExitCode is the last exit code of a stopped container.
	ExitCode int

	// ImageID identifies the image the container was created from.
	ImageID string

	// StartedAt is when the container last started.
	StartedAt time.Time
}

// Exists reports whether a container was found at all.
func (s *Status) Exists() bool {
	return s != nil && s.ID != ""
}

// Dialer produces the network connections the Docker client rides on.
// Tunnels implement it to route daemon traffic over SSH.
type Dialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// Docker is a Docker Engine API client bound to one ship.
type Docker struct {
	ship    *entity.Ship
	cli     *client.Client
	log     zerolog.Logger
	auth    func(ref string) *entity.Registry
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
}

// WithRegistryAuth installs a credential lookup consulted on image
// pulls. A nil lookup, or a lookup returning nil, means anonymous
// pulls.
func (d *Docker) WithRegistryAuth(lookup func(ref string) *entity.Registry) *Docker {
	d.auth = lookup
	return d
}

// WithTelemetry installs the metrics and tracer every daemon call
// reports to. Either may be nil to keep the disabled default.
func (d *Docker) WithTelemetry(metrics *telemetry.Metrics, tracer *telemetry.Tracer) *Docker {
	if metrics != nil {
		d.metrics = metrics
	}
	if tracer != nil {
		d.tracer = tracer
	}
	return d
}

// New connects a client to the ship's daemon. A non-nil dialer routes
// all daemon traffic through it.
func New(ship *entity.Ship, dialer Dialer, log zerolog.Logger) (*Docker, error) {
	opts := []client.Opt{
		client.WithHost("tcp://" + ship.DaemonAddr()),
		client.WithAPIVersionNegotiation(),
	}
	if dialer != nil {
		opts = append(opts, client.WithDialContext(dialer.DialContext))
	}
	if ship.Timeout > 0 {
		opts = append(opts, client.WithTimeout(ship.Timeout))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client for ship %s: %w", ship.Name, err)
	}

	metrics, _ := telemetry.NewMetrics(telemetry.MetricsConfig{})
	tracer, _ := telemetry.NewTracer(telemetry.TracingConfig{}, "flotilla", "", "")
	return &Docker{
		ship:    ship,
		cli:     cli,
		log:     log.With().Str("ship", ship.Name).Logger(),
		metrics: metrics,
		tracer:  tracer,
	}, nil
}

// observe wraps one daemon call in its counters and span. The returned
// finish func must be called with the call's outcome.
func (d *Docker) observe(ctx context.Context, operation string) (context.Context, func(error)) {
	d.metrics.RecordDaemonCall(d.ship.Name, operation)
	ctx, span := d.tracer.StartDaemonSpan(ctx, d.ship.Name, operation)
	return ctx, func(err error) {
		if err != nil {
			d.metrics.RecordDaemonError(d.ship.Name, operation)
			telemetry.RecordError(span, err)
		} else {
			telemetry.RecordSuccess(span)
		}
		span.End()
	}
}

// Ping verifies the daemon is reachable.
func (d *Docker) Ping(ctx context.Context) error {
	ctx, finish := d.observe(ctx, "ping")
	_, err := d.cli.Ping(ctx)
	finish(err)
	if err != nil {
		return fmt.Errorf("ship %s is unreachable: %w", d.ship.Name, err)
	}
	return nil
}

// ImageID returns the local ID of an image reference, or empty when
// the ship has no such image.
func (d *Docker) ImageID(ctx context.Context, ref string) (string, error) {
	ctx, finish := d.observe(ctx, "image_inspect")
	inspect, err := d.cli.ImageInspect(ctx, ref)
	if client.IsErrNotFound(err) {
		finish(nil)
		return "", nil
	}
	finish(err)
	if err != nil {
		return "", fmt.Errorf("failed to inspect image %s on ship %s: %w", ref, d.ship.Name, err)
	}
	return inspect.ID, nil
}

// PullImage pulls an image onto the ship, draining the progress stream
// and surfacing any error the registry reports mid-stream.
func (d *Docker) PullImage(ctx context.Context, ref string) (err error) {
	d.log.Debug().Str("image", ref).Msg("pulling image")
	ctx, finish := d.observe(ctx, "pull")
	defer func() { finish(err) }()

	var opts image.PullOptions
	if d.auth != nil {
		if reg := d.auth(ref); reg != nil {
			encoded, err := registry.EncodeAuthConfig(registry.AuthConfig{
				Username:      reg.Username,
				Password:      reg.Password,
				Email:         reg.Email,
				ServerAddress: reg.Host(),
			})
			if err != nil {
				return fmt.Errorf("failed to encode registry credentials for %s: %w", ref, err)
			}
			opts.RegistryAuth = encoded
		}
	}

	reader, err := d.cli.ImagePull(ctx, ref, opts)
	if err != nil {
		return fmt.Errorf("failed to pull %s on ship %s: %w", ref, d.ship.Name, err)
	}
	defer reader.Close()

	dec := json.NewDecoder(reader)
	for {
		var msg jsonmessage.JSONMessage
		if err := dec.Decode(&msg); errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return fmt.Errorf("pull of %s on ship %s interrupted: %w", ref, d.ship.Name, err)
		}
		if msg.Error != nil {
			return fmt.Errorf("pull of %s on ship %s failed: %w", ref, d.ship.Name, msg.Error)
		}
	}
	return nil
}

// Inspect looks the instance's container up by name. A missing
// container is reported as a nil-ID status, not an error.
func (d *Docker) Inspect(ctx context.Context, name string) (*Status, error) {
	ctx, finish := d.observe(ctx, "inspect")
	info, err := d.cli.ContainerInspect(ctx, name)
	if client.IsErrNotFound(err) {
		finish(nil)
		return &Status{}, nil
	}
	finish(err)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect container %s on ship %s: %w", name, d.ship.Name, err)
	}

	status := &Status{
		ID:      info.ID,
		ImageID: info.Image,
	}
	if info.State != nil {
		status.Running = info.State.Running
		status.ExitCode = info.State.ExitCode
		if started, err := time.Parse(time.RFC3339Nano, info.State.StartedAt); err == nil {
			status.StartedAt = started
		}
	}
	return status, nil
}

// Create creates the instance's container with its resolved
// environment. The container is named after the instance.
func (d *Docker) Create(ctx context.Context, inst *entity.Instance, env map[string]string) (string, error) {
	config, hostConfig, err := containerConfig(inst, env)
	if err != nil {
		return "", err
	}

	ctx, finish := d.observe(ctx, "create")
	resp, err := d.cli.ContainerCreate(ctx, config, hostConfig, nil, nil, inst.Name)
	finish(err)
	if err != nil {
		return "", fmt.Errorf("failed to create container %s on ship %s: %w", inst.Name, d.ship.Name, err)
	}
	d.log.Debug().Str("instance", inst.Name).Str("container", resp.ID).Msg("container created")
	return resp.ID, nil
}

// Start starts a created container.
func (d *Docker) Start(ctx context.Context, id string) error {
	ctx, finish := d.observe(ctx, "start")
	err := d.cli.ContainerStart(ctx, id, container.StartOptions{})
	finish(err)
	if err != nil {
		return fmt.Errorf("failed to start container %s on ship %s: %w", id, d.ship.Name, err)
	}
	return nil
}

// Stop stops a container, allowing it the given grace period before
// the daemon escalates to a kill. Escalation is not an error.
func (d *Docker) Stop(ctx context.Context, id string, grace time.Duration) error {
	ctx, finish := d.observe(ctx, "stop")
	seconds := int(grace.Seconds())
	err := d.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &seconds})
	if client.IsErrNotFound(err) {
		err = nil
	}
	finish(err)
	if err != nil {
		return fmt.Errorf("failed to stop container %s on ship %s: %w", id, d.ship.Name, err)
	}
	return nil
}

// Remove deletes a container and its anonymous volumes.
func (d *Docker) Remove(ctx context.Context, id string) error {
	ctx, finish := d.observe(ctx, "remove")
	err := d.cli.ContainerRemove(ctx, id, container.RemoveOptions{RemoveVolumes: true})
	if client.IsErrNotFound(err) {
		err = nil
	}
	finish(err)
	if err != nil {
		return fmt.Errorf("failed to remove container %s on ship %s: %w", id, d.ship.Name, err)
	}
	return nil
}

// Close releases the underlying client.
func (d *Docker) Close() error {
	return d.cli.Close()
}

// containerConfig maps an instance onto Docker create parameters.
func containerConfig(inst *entity.Instance, env map[string]string) (*container.Config, *container.HostConfig, error) {
	exposed := make(nat.PortSet, len(inst.Ports))
	bindings := make(nat.PortMap, len(inst.Ports))
	for _, spec := range inst.Ports {
		port, err := nat.NewPort(spec.Protocol, strconv.Itoa(spec.Exposed))
		if err != nil {
			return nil, nil, fmt.Errorf("instance %s: port %s: %w", inst.Name, spec.Name, err)
		}
		exposed[port] = struct{}{}
		bindings[port] = append(bindings[port], nat.PortBinding{
			HostIP:   spec.Interface,
			HostPort: strconv.Itoa(spec.External),
		})
	}

	var volumes map[string]struct{}
	if len(inst.ContainerVolumes) > 0 {
		volumes = make(map[string]struct{}, len(inst.ContainerVolumes))
		for _, target := range inst.ContainerVolumes {
			volumes[target] = struct{}{}
		}
	}

	cmd, err := splitCommand(inst.Command)
	if err != nil {
		return nil, nil, fmt.Errorf("instance %s: %w", inst.Name, err)
	}

	config := &container.Config{
		Image:        inst.Image(),
		Env:          entity.FlattenEnv(env),
		ExposedPorts: exposed,
		Volumes:      volumes,
		WorkingDir:   inst.WorkDir,
		Cmd:          cmd,
	}

	binds := make([]string, 0, len(inst.Volumes))
	for _, bind := range inst.Volumes {
		binds = append(binds, bind.BindSpec())
	}

	hostConfig := &container.HostConfig{
		PortBindings: bindings,
		Binds:        binds,
		VolumesFrom:  inst.VolumesFrom,
		Privileged:   inst.Privileged,
		NetworkMode:  container.NetworkMode(inst.NetworkMode),
		PidMode:      container.PidMode(inst.PidMode),
		DNS:          inst.DNS,
		RestartPolicy: container.RestartPolicy{
			Name:              restartPolicyMode(inst.RestartPolicy.Name),
			MaximumRetryCount: inst.RestartPolicy.MaxRetries,
		},
		Resources: container.Resources{
			CPUShares:  inst.CPUShares,
			Memory:     inst.MemLimit,
			MemorySwap: inst.MemSwapLimit,
		},
	}

	return config, hostConfig, nil
}

func restartPolicyMode(name string) container.RestartPolicyMode {
	switch name {
	case "always":
		return container.RestartPolicyAlways
	case "on-failure":
		return container.RestartPolicyOnFailure
	default:
		return container.RestartPolicyDisabled
	}
}

// splitCommand tokenizes a command string, honoring single and double
// quotes.
func splitCommand(command string) ([]string, error) {
	if command == "" {
		return nil, nil
	}

	var args []string
	var current []rune
	var quote rune
	pending := false

	for _, r := range command {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current = append(current, r)
			}
		case r == '\'' || r == '"':
			quote = r
			pending = true
		case r == ' ' || r == '\t':
			if len(current) > 0 || pending {
				args = append(args, string(current))
				current = current[:0]
				pending = false
			}
		default:
			current = append(current, r)
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated quote in command %q", command)
	}
	if len(current) > 0 || pending {
		args = append(args, string(current))
	}
	return args, nil
}
