package config

// File is the raw shape of an environment description document.
type File struct {
	// Name is the environment's name.
	Name string `yaml:"name" validate:"required"`

	// Schema selects parsing conventions. Schema 1 reads volume
	// bindings as host-path keys; schema 2 and above read them as
	// container-path keys.
	Schema int `yaml:"schema"`

	// Registries holds pull credentials keyed by registry name.
	Registries map[string]RegistryConfig `yaml:"registries" validate:"dive"`

	// ShipDefaults is merged into every ship that leaves a field unset.
	ShipDefaults ShipConfig `yaml:"ship_defaults"`

	// Ships declares the environment's Docker hosts.
	Ships map[string]ShipConfig `yaml:"ships" validate:"required,min=1,dive"`

	// Services declares the environment's services and instances.
	Services map[string]ServiceConfig `yaml:"services" validate:"required,min=1,dive"`

	// Audit configures the sinks play events are delivered to.
	Audit []AuditConfig `yaml:"audit" validate:"omitempty,dive"`
}

// RegistryConfig holds one registry's pull credentials.
type RegistryConfig struct {
	// Registry is the registry address, with or without a scheme.
	Registry string `yaml:"registry" validate:"required"`

	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Email    string `yaml:"email"`
}

// ShipConfig describes one Docker host, or the ship_defaults block.
type ShipConfig struct {
	// IP is the ship's reachable address. Required on ships, ignored
	// in ship_defaults.
	IP string `yaml:"ip"`

	// Endpoint overrides the address the daemon listens on.
	Endpoint string `yaml:"endpoint"`

	// DockerPort is the daemon's TCP port. Zero selects the standard
	// port for the transport (2375 plain, 2376 with TLS).
	DockerPort int `yaml:"docker_port" validate:"gte=0,lte=65535"`

	// Timeout is the per-ship daemon operation timeout, in seconds.
	Timeout int `yaml:"timeout" validate:"gte=0"`

	// TLS selects https transport to the daemon.
	TLS bool `yaml:"tls"`

	// SSHTunnel routes daemon traffic through an SSH forward.
	SSHTunnel *TunnelConfig `yaml:"ssh_tunnel"`
}

// TunnelConfig configures a ship's SSH tunnel.
type TunnelConfig struct {
	User string `yaml:"user" validate:"required"`
	Key  string `yaml:"key" validate:"required"`
	Port int    `yaml:"port" validate:"gte=0,lte=65535"`
}

// ServiceConfig describes one service and its instances.
type ServiceConfig struct {
	// Image is the Docker image instances run by default.
	Image string `yaml:"image" validate:"required"`

	// Env holds environment defaults for every instance.
	Env map[string]any `yaml:"env"`

	// Omit excludes the service from wildcard selections.
	Omit bool `yaml:"omit"`

	// Requires and WantsInfo declare hard and soft dependencies.
	Requires  []string `yaml:"requires"`
	WantsInfo []string `yaml:"wants_info"`

	// Instances maps instance names to their specs.
	Instances map[string]InstanceConfig `yaml:"instances" validate:"required,min=1,dive"`
}

// InstanceConfig describes one container of a service.
type InstanceConfig struct {
	// Ship names the host the instance runs on.
	Ship string `yaml:"ship" validate:"required"`

	// Image overrides the service image for this instance.
	Image string `yaml:"image"`

	// Env holds instance-level environment overrides.
	Env map[string]any `yaml:"env"`

	// Ports maps port names to specs: a number, an
	// "external:exposed" string, or an {exposed, external} map.
	Ports map[string]any `yaml:"ports"`

	// Volumes maps bind mounts. Direction depends on the schema.
	Volumes map[string]any `yaml:"volumes"`

	// ContainerVolumes lists container-only volume targets.
	ContainerVolumes []string `yaml:"container_volumes"`

	// VolumesFrom names containers whose volumes are mounted here.
	VolumesFrom []string `yaml:"volumes_from"`

	Privileged bool     `yaml:"privileged"`
	Net        string   `yaml:"net"`
	Pid        string   `yaml:"pid"`
	DNS        []string `yaml:"dns"`

	// Restart is the daemon restart policy, "name" or "name:retries".
	Restart string `yaml:"restart"`

	// StopTimeout is the stop grace period, in seconds.
	StopTimeout int `yaml:"stop_timeout" validate:"gte=0"`

	// Limits bounds the container's resources.
	Limits LimitsConfig `yaml:"limits"`

	// Workdir is the container's working directory.
	Workdir string `yaml:"workdir"`

	// Command overrides the image's default command.
	Command string `yaml:"command"`

	// Lifecycle maps lifecycle states to their checks. Only the
	// "running" state carries checks today.
	Lifecycle map[string][]CheckConfig `yaml:"lifecycle" validate:"dive,dive"`

	// Omit overrides the service-level flag for this instance.
	Omit *bool `yaml:"omit"`
}

// LimitsConfig bounds an instance's resources. Memory values accept
// k/m/g suffixes.
type LimitsConfig struct {
	CPU    int64 `yaml:"cpu" validate:"gte=0"`
	Memory any   `yaml:"memory"`
	Swap   any   `yaml:"swap"`
}

// CheckConfig is the raw form of a lifecycle readiness check. Waits
// and intervals are in seconds.
type CheckConfig struct {
	// Type is one of tcp, http, exec, sleep.
	Type string `yaml:"type" validate:"required,oneof=tcp http exec sleep"`

	// Port names the instance port a tcp check probes.
	Port string `yaml:"port"`

	// Host overrides the probed host for a tcp check.
	Host string `yaml:"host"`

	// URL is the endpoint an http check requests.
	URL string `yaml:"url"`

	// Command is the script an exec check runs.
	Command string `yaml:"command"`

	// Wait is a sleep check's delay, in seconds.
	Wait int `yaml:"wait" validate:"gte=0"`

	// Attempts caps the probe attempts before the check fails.
	Attempts int `yaml:"attempts" validate:"gte=0"`

	// Interval is the pause between attempts, in seconds.
	Interval int `yaml:"interval" validate:"gte=0"`
}

// AuditConfig configures one audit sink.
type AuditConfig struct {
	// Type is one of log, webhook, history.
	Type string `yaml:"type" validate:"required,oneof=log webhook history"`

	// URL is the webhook sink's endpoint.
	URL string `yaml:"url" validate:"omitempty,url"`

	// Headers are added to every webhook request.
	Headers map[string]string `yaml:"headers"`

	// Timeout bounds a webhook delivery, in seconds.
	Timeout int `yaml:"timeout" validate:"gte=0"`

	// Path is the history sink's SQLite database file.
	Path string `yaml:"path"`
}
