package entity

import (
	"fmt"
	"strconv"
	"strings"
)

// RestartPolicy mirrors Docker's container restart policy.
type RestartPolicy struct {
	Name       string
	MaxRetries int
}

// ParseRestartPolicy parses "no", "always", or "on-failure" with an
// optional ":retries" suffix on the on-failure form.
func ParseRestartPolicy(s string) (RestartPolicy, error) {
	if s == "" {
		return RestartPolicy{Name: "no"}, nil
	}

	name, retries, hasRetries := strings.Cut(s, ":")
	policy := RestartPolicy{Name: name}

	switch name {
	case "no", "always":
		if hasRetries {
			return policy, fmt.Errorf("restart policy %s takes no retry count", name)
		}
	case "on-failure":
		if hasRetries {
			n, err := strconv.Atoi(retries)
			if err != nil || n < 0 {
				return policy, fmt.Errorf("invalid retry count %q in restart policy", retries)
			}
			policy.MaxRetries = n
		}
	default:
		return policy, fmt.Errorf("unknown restart policy %q", name)
	}
	return policy, nil
}

// ParseBytes parses a byte quantity with an optional k, m, or g suffix
// (case insensitive, powers of 1024). A bare number is taken as bytes.
func ParseBytes(value any) (int64, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case string:
		if v == "" {
			return 0, nil
		}
		mult := int64(1)
		s := strings.ToLower(strings.TrimSpace(v))
		switch s[len(s)-1] {
		case 'k':
			mult = 1 << 10
			s = s[:len(s)-1]
		case 'm':
			mult = 1 << 20
			s = s[:len(s)-1]
		case 'g':
			mult = 1 << 30
			s = s[:len(s)-1]
		}
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid byte quantity %q", v)
		}
		return n * mult, nil
	default:
		return 0, fmt.Errorf("unsupported byte quantity of type %T", value)
	}
}
