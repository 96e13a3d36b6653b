package config

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/flotilla-io/flotilla/pkg/entity"
	"github.com/flotilla-io/flotilla/pkg/lifecycle"
)

var varPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads, templates, decodes, and validates an environment
// description file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read environment description: %w", err)
	}
	return Parse(data)
}

// Parse decodes an environment description. ${VAR} references are
// expanded from the process environment first; referencing an unset
// variable is an error, not an empty substitution.
func Parse(data []byte) (*File, error) {
	expanded, err := expandVars(data)
	if err != nil {
		return nil, err
	}

	dec := yaml.NewDecoder(bytes.NewReader(expanded))
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to decode environment description: %w", err)
	}
	if err := validator.New().Struct(&f); err != nil {
		return nil, fmt.Errorf("invalid environment description: %w", err)
	}
	return &f, nil
}

func expandVars(data []byte) ([]byte, error) {
	var missing []string
	expanded := varPattern.ReplaceAllFunc(data, func(ref []byte) []byte {
		name := string(varPattern.FindSubmatch(ref)[1])
		value, ok := os.LookupEnv(name)
		if !ok {
			missing = append(missing, name)
			return ref
		}
		return []byte(value)
	})
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("environment description references unset variables: %s",
			strings.Join(missing, ", "))
	}
	return expanded, nil
}

// Resolve builds the entity model from the raw document.
func (f *File) Resolve() (*entity.Model, error) {
	m := &entity.Model{
		Name:       f.Name,
		Schema:     f.schema(),
		Ships:      make(map[string]*entity.Ship, len(f.Ships)),
		Services:   make(map[string]*entity.Service, len(f.Services)),
		Registries: make(map[string]*entity.Registry, len(f.Registries)),
	}

	for name, cfg := range f.Registries {
		m.Registries[name] = &entity.Registry{
			Name:     name,
			Registry: cfg.Registry,
			Username: cfg.Username,
			Password: cfg.Password,
			Email:    cfg.Email,
		}
	}

	for name, cfg := range f.Ships {
		ship, err := f.resolveShip(name, cfg)
		if err != nil {
			return nil, err
		}
		m.Ships[name] = ship
	}

	for name, cfg := range f.Services {
		svc := &entity.Service{
			Name:      name,
			Image:     cfg.Image,
			Env:       cfg.Env,
			Omit:      cfg.Omit,
			Requires:  cfg.Requires,
			WantsInfo: cfg.WantsInfo,
		}
		for instName, instCfg := range cfg.Instances {
			inst, err := f.resolveInstance(instName, instCfg, svc, m)
			if err != nil {
				return nil, fmt.Errorf("service %s: %w", name, err)
			}
			svc.RegisterInstance(inst)
		}
		m.Services[name] = svc
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// schema returns the document's schema version, defaulting to the
// legacy version 1 when the field is absent.
func (f *File) schema() int {
	if f.Schema == 0 {
		return 1
	}
	return f.Schema
}

func (f *File) resolveShip(name string, cfg ShipConfig) (*entity.Ship, error) {
	def := f.ShipDefaults

	if cfg.IP == "" {
		return nil, fmt.Errorf("ship %s has no ip", name)
	}

	port := cfg.DockerPort
	if port == 0 {
		port = def.DockerPort
	}
	tls := cfg.TLS || def.TLS
	if port == 0 {
		if tls {
			port = entity.DefaultTLSPort
		} else {
			port = entity.DefaultDaemonPort
		}
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = def.Timeout
	}
	duration := entity.DefaultTimeout
	if timeout > 0 {
		duration = time.Duration(timeout) * time.Second
	}

	ship := &entity.Ship{
		Name:       name,
		Address:    cfg.IP,
		Endpoint:   cfg.Endpoint,
		DaemonPort: port,
		TLS:        tls,
		Timeout:    duration,
	}

	tun := cfg.SSHTunnel
	if tun == nil {
		tun = def.SSHTunnel
	}
	if tun != nil {
		ship.Tunnel = &entity.TunnelSpec{
			User:    tun.User,
			KeyPath: tun.Key,
			Port:    tun.Port,
		}
	}
	return ship, nil
}

func (f *File) resolveInstance(name string, cfg InstanceConfig, svc *entity.Service, m *entity.Model) (*entity.Instance, error) {
	ship, ok := m.Ships[cfg.Ship]
	if !ok {
		return nil, fmt.Errorf("instance %s is placed on unknown ship %s", name, cfg.Ship)
	}

	ports, err := entity.ParsePorts(cfg.Ports)
	if err != nil {
		return nil, fmt.Errorf("instance %s: %w", name, err)
	}
	volumes, err := entity.ParseVolumes(cfg.Volumes, f.schema())
	if err != nil {
		return nil, fmt.Errorf("instance %s: %w", name, err)
	}

	memLimit, err := entity.ParseBytes(cfg.Limits.Memory)
	if err != nil {
		return nil, fmt.Errorf("instance %s: memory limit: %w", name, err)
	}
	swapLimit, err := entity.ParseBytes(cfg.Limits.Swap)
	if err != nil {
		return nil, fmt.Errorf("instance %s: swap limit: %w", name, err)
	}

	var restart entity.RestartPolicy
	if cfg.Restart != "" {
		restart, err = entity.ParseRestartPolicy(cfg.Restart)
		if err != nil {
			return nil, fmt.Errorf("instance %s: %w", name, err)
		}
	}

	checks, stopChecks, err := resolveChecks(name, cfg.Lifecycle)
	if err != nil {
		return nil, err
	}

	omit := svc.Omit
	if cfg.Omit != nil {
		omit = *cfg.Omit
	}

	inst := &entity.Instance{
		Name:             name,
		Service:          svc,
		Ship:             ship,
		ImageOverride:    cfg.Image,
		Env:              cfg.Env,
		Ports:            ports,
		Volumes:          volumes,
		ContainerVolumes: cfg.ContainerVolumes,
		VolumesFrom:      cfg.VolumesFrom,
		Privileged:       cfg.Privileged,
		NetworkMode:      cfg.Net,
		PidMode:          cfg.Pid,
		DNS:              cfg.DNS,
		RestartPolicy:    restart,
		StopTimeout:      time.Duration(cfg.StopTimeout) * time.Second,
		CPUShares:        cfg.Limits.CPU,
		MemLimit:         memLimit,
		MemSwapLimit:     swapLimit,
		WorkDir:          cfg.Workdir,
		Command:          cfg.Command,
		Checks:           checks,
		StopChecks:       stopChecks,
		Omit:             omit,
	}
	return inst, nil
}

// resolveChecks converts the lifecycle block. The "running" state
// gates starts and the "stopped" state confirms stops; any other
// state name is rejected to catch typos early.
func resolveChecks(instance string, states map[string][]CheckConfig) (running, stopped []lifecycle.Spec, err error) {
	for state := range states {
		if state != "running" && state != "stopped" {
			return nil, nil, fmt.Errorf("instance %s: unsupported lifecycle state %q", instance, state)
		}
	}
	return convertChecks(states["running"]), convertChecks(states["stopped"]), nil
}

func convertChecks(raw []CheckConfig) []lifecycle.Spec {
	if len(raw) == 0 {
		return nil
	}
	checks := make([]lifecycle.Spec, 0, len(raw))
	for _, c := range raw {
		checks = append(checks, lifecycle.Spec{
			Kind:     lifecycle.Kind(c.Type),
			Port:     c.Port,
			Host:     c.Host,
			URL:      c.URL,
			Command:  c.Command,
			Delay:    time.Duration(c.Wait) * time.Second,
			Attempts: c.Attempts,
			Interval: time.Duration(c.Interval) * time.Second,
		})
	}
	return checks
}
