package entity

import (
	"sort"
	"strings"
)

// Registry holds pull credentials for a Docker registry.
type Registry struct {
	// Name identifies the registry within the environment description.
	Name string

	// Registry is the registry's address, with or without a scheme.
	Registry string

	// Username and Password authenticate pulls from this registry.
	Username string
	Password string

	// Email is carried for registries that still require one.
	Email string
}

// Host returns the registry address stripped of any scheme.
func (r *Registry) Host() string {
	host := r.Registry
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+len("://"):]
	}
	return strings.TrimSuffix(host, "/")
}

// RegistryFor returns the credentials matching an image reference, or
// nil when the image's registry is not configured. A registry matches
// when the image repository starts with its host.
func (m *Model) RegistryFor(image string) *Registry {
	repo := ParseImageRef(image).Repository

	names := make([]string, 0, len(m.Registries))
	for name := range m.Registries {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		reg := m.Registries[name]
		if host := reg.Host(); host != "" && strings.HasPrefix(repo, host) {
			return reg
		}
	}
	return nil
}
