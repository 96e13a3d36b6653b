package entity

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ResolveEnv builds the full environment an instance's container is
// started with. Service defaults are applied first, then instance
// overrides, then the derived identity variables, then link variables
// for every service the instance's service requires or wants info
// about.
func (i *Instance) ResolveEnv(envName string, m *Model) map[string]string {
	env := make(map[string]string)

	for key, value := range i.Service.Env {
		env[key] = NormalizeEnvValue(value)
	}
	for key, value := range i.Env {
		env[key] = NormalizeEnvValue(value)
	}

	ref := i.ImageRef()
	env["FLOTILLA_ENVIRONMENT_NAME"] = envName
	env["SERVICE_NAME"] = i.Service.Name
	env["CONTAINER_NAME"] = i.Name
	env["CONTAINER_HOST_ADDRESS"] = i.Ship.Address
	env["DOCKER_IMAGE"] = ref.Repository
	env["DOCKER_TAG"] = ref.Tag

	linked := make([]string, 0, len(i.Service.Requires)+len(i.Service.WantsInfo))
	linked = append(linked, i.Service.Requires...)
	linked = append(linked, i.Service.WantsInfo...)
	sort.Strings(linked)
	for _, name := range linked {
		svc, ok := m.Services[name]
		if !ok {
			continue
		}
		for key, value := range linkVariables(svc) {
			env[key] = value
		}
	}
	return env
}

// linkVariables advertises a service's instances to its dependents:
// per instance a HOST variable and per named port an external PORT and
// an INTERNAL_PORT, every variable prefixed with the service basename,
// plus a service-wide INSTANCES list.
func linkVariables(svc *Service) map[string]string {
	vars := make(map[string]string)
	instances := svc.Instances()
	svcBase := envBasename(svc.Name)

	names := make([]string, 0, len(instances))
	for _, inst := range instances {
		names = append(names, inst.Name)
		base := svcBase + "_" + envBasename(inst.Name)
		vars[base+"_HOST"] = inst.Ship.Address
		for portName, port := range inst.Ports {
			prefix := base + "_" + envBasename(portName)
			vars[prefix+"_PORT"] = strconv.Itoa(port.External)
			vars[prefix+"_INTERNAL_PORT"] = strconv.Itoa(port.Exposed)
		}
	}
	vars[svcBase+"_INSTANCES"] = strings.Join(names, ",")
	return vars
}

// envBasename maps an entity name onto an environment variable prefix:
// uppercased, with every non-alphanumeric run replaced by an
// underscore.
func envBasename(name string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(name) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// NormalizeEnvValue renders any configured environment value as the
// text the container will see. Lists are space-joined after
// normalizing each element.
func NormalizeEnvValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case []any:
		parts := make([]string, len(v))
		for idx, elem := range v {
			parts[idx] = NormalizeEnvValue(elem)
		}
		return strings.Join(parts, " ")
	default:
		return fmt.Sprint(v)
	}
}

// FlattenEnv renders an environment map as a sorted KEY=VALUE slice,
// the form Docker's container config expects.
func FlattenEnv(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for key, value := range env {
		out = append(out, key+"="+value)
	}
	sort.Strings(out)
	return out
}
