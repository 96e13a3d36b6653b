package entity

import (
	"fmt"
	"net"
	"sort"
	"time"

	"github.com/flotilla-io/flotilla/pkg/lifecycle"
)

// Default connection parameters for ships that do not override them.
const (
	DefaultDaemonPort = 2375
	DefaultTLSPort    = 2376
	DefaultTimeout    = 5 * time.Second
	DefaultStopGrace  = 10 * time.Second
)

// TunnelSpec configures an SSH tunnel to a ship's Docker daemon.
type TunnelSpec struct {
	// User is the SSH login name.
	User string `yaml:"user" json:"user"`

	// KeyPath is the private key used to authenticate.
	KeyPath string `yaml:"key" json:"key"`

	// Port is the SSH port on the ship. Zero means 22.
	Port int `yaml:"port,omitempty" json:"port,omitempty"`
}

// Validate checks the tunnel carries the required credentials.
func (t *TunnelSpec) Validate(ship string) error {
	if t.User == "" {
		return fmt.Errorf("ship %s: ssh tunnel is missing a user", ship)
	}
	if t.KeyPath == "" {
		return fmt.Errorf("ship %s: ssh tunnel is missing a key", ship)
	}
	return nil
}

// Ship is a host exposing a Docker daemon that the engine controls.
// Ships are immutable after the model is built; one ship may host many
// instances.
type Ship struct {
	// Name uniquely identifies the ship within the environment.
	Name string

	// Address is the ship's reachable IP address or host name. It is
	// what instances advertise to their dependents.
	Address string

	// Endpoint is the address the Docker daemon listens on, when it
	// differs from Address. Empty means Address.
	Endpoint string

	// DaemonPort is the Docker daemon's TCP port.
	DaemonPort int

	// TLS selects https transport to the daemon.
	TLS bool

	// Timeout is the per-ship default for daemon operations.
	Timeout time.Duration

	// Tunnel, when set, routes daemon traffic through an SSH forward.
	Tunnel *TunnelSpec
}

// DaemonEndpoint returns the Docker endpoint host for this ship.
func (s *Ship) DaemonEndpoint() string {
	if s.Endpoint != "" {
		return s.Endpoint
	}
	return s.Address
}

// DaemonAddr returns the host:port the daemon listens on.
func (s *Ship) DaemonAddr() string {
	return net.JoinHostPort(s.DaemonEndpoint(), fmt.Sprint(s.DaemonPort))
}

// Validate checks the ship is well formed.
func (s *Ship) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("ship has no name")
	}
	if s.Address == "" {
		return fmt.Errorf("ship %s has no address", s.Name)
	}
	if s.DaemonPort <= 0 || s.DaemonPort > 65535 {
		return fmt.Errorf("ship %s: invalid daemon port %d", s.Name, s.DaemonPort)
	}
	if s.Tunnel != nil {
		return s.Tunnel.Validate(s.Name)
	}
	return nil
}

// Service is a named logical group of instances sharing an image,
// environment defaults, and dependency declarations.
type Service struct {
	// Name uniquely identifies the service within the environment.
	Name string

	// Image is the Docker image reference instances run by default.
	Image string

	// Env holds environment defaults applied to every instance. Values
	// may be of any scalar or list type; normalization to text happens
	// once, in ResolveEnv.
	Env map[string]any

	// Omit excludes the service from wildcard selections unless it is
	// pulled in through another entity's dependency closure.
	Omit bool

	// Requires names services that must be up before this one starts
	// (hard, order-affecting edges).
	Requires []string

	// WantsInfo names services whose connection info this one wants in
	// its environment without any ordering constraint (soft edges).
	WantsInfo []string

	instances map[string]*Instance
}

// RegisterInstance attaches an instance to this service.
func (s *Service) RegisterInstance(inst *Instance) {
	if s.instances == nil {
		s.instances = make(map[string]*Instance)
	}
	s.instances[inst.Name] = inst
}

// Instances returns the service's instances ordered by name.
func (s *Service) Instances() []*Instance {
	names := make([]string, 0, len(s.instances))
	for name := range s.instances {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*Instance, 0, len(names))
	for _, name := range names {
		out = append(out, s.instances[name])
	}
	return out
}

// Instance is one deployable container: an instance of a service,
// placed on exactly one ship.
type Instance struct {
	// Name uniquely identifies the instance across the environment; it
	// doubles as the container name on the ship.
	Name string

	// Service is the service this instance belongs to.
	Service *Service

	// Ship is the host this instance runs on.
	Ship *Ship

	// ImageOverride replaces the service image for this instance only.
	ImageOverride string

	// Env holds instance-level environment overrides.
	Env map[string]any

	// Ports maps port names to their specs.
	Ports map[string]PortSpec

	// Volumes are host-path to container-path bindings.
	Volumes []VolumeBinding

	// ContainerVolumes are container-only volume targets.
	ContainerVolumes []string

	// VolumesFrom names containers whose volumes are mounted here.
	VolumesFrom []string

	// Privileged runs the container with extended privileges.
	Privileged bool

	// NetworkMode and PidMode select the container's namespaces.
	NetworkMode string
	PidMode     string

	// DNS lists nameservers for the container.
	DNS []string

	// RestartPolicy is the daemon-side restart policy.
	RestartPolicy RestartPolicy

	// StopTimeout is the grace period given to the container on stop
	// before the engine escalates to a kill.
	StopTimeout time.Duration

	// CPUShares and memory limits bound the container's resources.
	CPUShares    int64
	MemLimit     int64
	MemSwapLimit int64

	// WorkDir is the container's working directory.
	WorkDir string

	// Command overrides the image's default command.
	Command string

	// Checks gate the instance's start transition, in declared order.
	Checks []lifecycle.Spec

	// StopChecks run after the instance's stop transition, in declared
	// order.
	StopChecks []lifecycle.Spec

	// Omit mirrors (or overrides) the service-level flag.
	Omit bool
}

// Image returns the effective image reference for this instance.
func (i *Instance) Image() string {
	if i.ImageOverride != "" {
		return i.ImageOverride
	}
	return i.Service.Image
}

// ImageRef returns the parsed repository and tag of the effective
// image.
func (i *Instance) ImageRef() ImageRef {
	return ParseImageRef(i.Image())
}

// StopGrace returns the stop timeout, defaulting when unset.
func (i *Instance) StopGrace() time.Duration {
	if i.StopTimeout > 0 {
		return i.StopTimeout
	}
	return DefaultStopGrace
}

// Validate checks the instance is internally consistent.
func (i *Instance) Validate() error {
	if i.Name == "" {
		return fmt.Errorf("instance has no name")
	}
	if i.Service == nil {
		return fmt.Errorf("instance %s belongs to no service", i.Name)
	}
	if i.Ship == nil {
		return fmt.Errorf("instance %s is bound to no ship", i.Name)
	}
	if i.Image() == "" {
		return fmt.Errorf("instance %s has no image", i.Name)
	}

	containerOnly := make(map[string]bool, len(i.ContainerVolumes))
	for _, target := range i.ContainerVolumes {
		containerOnly[target] = true
	}
	for _, bind := range i.Volumes {
		if containerOnly[bind.ContainerPath] {
			return fmt.Errorf(
				"instance %s: %s is both a bind-mounted volume and a container-only volume",
				i.Name, bind.ContainerPath)
		}
	}

	for _, checks := range [][]lifecycle.Spec{i.Checks, i.StopChecks} {
		for idx, check := range checks {
			if err := check.Validate(); err != nil {
				return fmt.Errorf("instance %s: lifecycle check %d: %w", i.Name, idx, err)
			}
			if check.Kind == lifecycle.KindTCP {
				if _, ok := i.Ports[check.Port]; !ok {
					return fmt.Errorf("instance %s: tcp check references unknown port %q", i.Name, check.Port)
				}
			}
		}
	}
	return nil
}

// Model is the resolved entity model for one environment.
type Model struct {
	// Name is the environment's name as declared in its description.
	Name string

	// Schema is the description's schema version; it selects parsing
	// conventions (volume binding direction in particular).
	Schema int

	// Ships maps ship names to ships.
	Ships map[string]*Ship

	// Services maps service names to services.
	Services map[string]*Service

	// Registries maps registry names to pull credentials.
	Registries map[string]*Registry
}

// Validate checks cross-entity references: every requires/wants_info
// target must name a known service, every instance a known ship, and
// instance names must be unique environment-wide.
func (m *Model) Validate() error {
	for _, ship := range m.Ships {
		if err := ship.Validate(); err != nil {
			return err
		}
	}

	seen := make(map[string]string)
	for name, svc := range m.Services {
		for _, dep := range svc.Requires {
			if _, ok := m.Services[dep]; !ok {
				return fmt.Errorf("service %s requires unknown service %s", name, dep)
			}
		}
		for _, dep := range svc.WantsInfo {
			if _, ok := m.Services[dep]; !ok {
				return fmt.Errorf("service %s wants_info of unknown service %s", name, dep)
			}
		}
		for _, inst := range svc.Instances() {
			if err := inst.Validate(); err != nil {
				return err
			}
			if other, dup := seen[inst.Name]; dup {
				return fmt.Errorf("instance name %s is used by both %s and %s", inst.Name, other, name)
			}
			seen[inst.Name] = name
			if _, ok := m.Ships[inst.Ship.Name]; !ok {
				return fmt.Errorf("instance %s is placed on unknown ship %s", inst.Name, inst.Ship.Name)
			}
		}
	}
	return nil
}

// Instance looks an instance up by name across all services.
func (m *Model) Instance(name string) (*Instance, bool) {
	for _, svc := range m.Services {
		for _, inst := range svc.Instances() {
			if inst.Name == name {
				return inst, true
			}
		}
	}
	return nil, false
}
