package entity

import (
	"fmt"
	"strconv"
	"strings"
)

// PortSpec describes one named port mapping of an instance. Exposed is
// the container-side port, External the host-side binding.
type PortSpec struct {
	// Name is the port's name within the instance, referenced by
	// lifecycle checks and advertised in link variables.
	Name string

	// Exposed is the container-side port number.
	Exposed int

	// External is the host-side port number.
	External int

	// Protocol is tcp or udp.
	Protocol string

	// Interface restricts the host-side binding to one address. Empty
	// binds on all interfaces.
	Interface string
}

// ExposedSpec returns the container port in Docker port/proto form.
func (p PortSpec) ExposedSpec() string {
	return fmt.Sprintf("%d/%s", p.Exposed, p.Protocol)
}

// ParsePortSpec parses the three accepted shapes of a port value: a
// bare number mapping the same port inside and out, an
// "external:exposed" string, or a map with explicit exposed and
// external entries. Either side may carry a /tcp or /udp suffix; when
// both do, they must agree.
func ParsePortSpec(name string, value any) (PortSpec, error) {
	spec := PortSpec{Name: name, Protocol: "tcp"}

	switch v := value.(type) {
	case int:
		spec.Exposed = v
		spec.External = v
		return spec, nil

	case string:
		if !strings.Contains(v, ":") {
			port, proto, err := splitPortProto(v)
			if err != nil {
				return spec, fmt.Errorf("port %s: %w", name, err)
			}
			spec.Exposed = port
			spec.External = port
			if proto != "" {
				spec.Protocol = proto
			}
			return spec, nil
		}

		parts := strings.SplitN(v, ":", 2)
		extPort, extProto, err := splitPortProto(parts[0])
		if err != nil {
			return spec, fmt.Errorf("port %s: external side: %w", name, err)
		}
		expPort, expProto, err := splitPortProto(parts[1])
		if err != nil {
			return spec, fmt.Errorf("port %s: exposed side: %w", name, err)
		}
		if extProto != "" && expProto != "" && extProto != expProto {
			return spec, fmt.Errorf("port %s: mismatched protocols %s and %s", name, extProto, expProto)
		}
		spec.External = extPort
		spec.Exposed = expPort
		if extProto != "" {
			spec.Protocol = extProto
		} else if expProto != "" {
			spec.Protocol = expProto
		}
		return spec, nil

	case map[string]any:
		exposed, ok := v["exposed"]
		if !ok {
			return spec, fmt.Errorf("port %s: map form is missing exposed", name)
		}
		external, ok := v["external"]
		if !ok {
			return spec, fmt.Errorf("port %s: map form is missing external", name)
		}

		expPort, expProto, err := anyPort(exposed)
		if err != nil {
			return spec, fmt.Errorf("port %s: exposed: %w", name, err)
		}
		spec.Exposed = expPort

		// The external side may be [interface, port] to bind on one
		// address only.
		var extProto string
		switch ext := external.(type) {
		case []any:
			if len(ext) != 2 {
				return spec, fmt.Errorf("port %s: external list must be [interface, port]", name)
			}
			iface, ok := ext[0].(string)
			if !ok {
				return spec, fmt.Errorf("port %s: external interface must be a string", name)
			}
			spec.Interface = iface
			spec.External, extProto, err = anyPort(ext[1])
			if err != nil {
				return spec, fmt.Errorf("port %s: external: %w", name, err)
			}
		default:
			spec.External, extProto, err = anyPort(external)
			if err != nil {
				return spec, fmt.Errorf("port %s: external: %w", name, err)
			}
		}

		if expProto != "" && extProto != "" && expProto != extProto {
			return spec, fmt.Errorf("port %s: mismatched protocols %s and %s", name, extProto, expProto)
		}
		if expProto != "" {
			spec.Protocol = expProto
		} else if extProto != "" {
			spec.Protocol = extProto
		}
		return spec, nil

	default:
		return spec, fmt.Errorf("port %s: unsupported value of type %T", name, value)
	}
}

// ParsePorts parses a full port map.
func ParsePorts(values map[string]any) (map[string]PortSpec, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make(map[string]PortSpec, len(values))
	for name, value := range values {
		spec, err := ParsePortSpec(name, value)
		if err != nil {
			return nil, err
		}
		out[name] = spec
	}
	return out, nil
}

func anyPort(value any) (int, string, error) {
	switch v := value.(type) {
	case int:
		return v, "", nil
	case string:
		return splitPortProto(v)
	default:
		return 0, "", fmt.Errorf("unsupported port value of type %T", value)
	}
}

func splitPortProto(s string) (int, string, error) {
	proto := ""
	if idx := strings.Index(s, "/"); idx >= 0 {
		proto = strings.ToLower(s[idx+1:])
		s = s[:idx]
		if proto != "tcp" && proto != "udp" {
			return 0, "", fmt.Errorf("unknown protocol %q", proto)
		}
	}
	port, err := strconv.Atoi(s)
	if err != nil {
		return 0, "", fmt.Errorf("invalid port %q", s)
	}
	if port <= 0 || port > 65535 {
		return 0, "", fmt.Errorf("port %d out of range", port)
	}
	return port, proto, nil
}
