package entity

import (
	"fmt"
	"sort"
)

// VolumeBinding mounts a host path into the container.
type VolumeBinding struct {
	HostPath      string
	ContainerPath string
	ReadOnly      bool
}

// BindSpec renders the binding in Docker host:container[:ro] form.
func (v VolumeBinding) BindSpec() string {
	spec := v.HostPath + ":" + v.ContainerPath
	if v.ReadOnly {
		spec += ":ro"
	}
	return spec
}

// ParseVolumes parses an instance's volume map. Under schema 1 the map
// runs host path to container path; schema 2 and later reverse the
// direction and allow a map value carrying the host target and an
// access mode.
func ParseVolumes(values map[string]any, schema int) ([]VolumeBinding, error) {
	if len(values) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]VolumeBinding, 0, len(keys))
	for _, key := range keys {
		value := values[key]

		if schema < 2 {
			target, ok := value.(string)
			if !ok {
				return nil, fmt.Errorf("volume %s: schema 1 expects a container path string, got %T", key, value)
			}
			out = append(out, VolumeBinding{HostPath: key, ContainerPath: target})
			continue
		}

		switch v := value.(type) {
		case string:
			out = append(out, VolumeBinding{HostPath: v, ContainerPath: key})
		case map[string]any:
			target, ok := v["target"].(string)
			if !ok || target == "" {
				return nil, fmt.Errorf("volume %s: map form needs a target host path", key)
			}
			bind := VolumeBinding{HostPath: target, ContainerPath: key}
			if mode, ok := v["mode"]; ok {
				m, ok := mode.(string)
				if !ok || (m != "ro" && m != "rw") {
					return nil, fmt.Errorf("volume %s: mode must be ro or rw", key)
				}
				bind.ReadOnly = m == "ro"
			}
			out = append(out, bind)
		default:
			return nil, fmt.Errorf("volume %s: unsupported value of type %T", key, value)
		}
	}
	return out, nil
}
