package entity

import (
	"strings"
	"testing"
	"time"

	"github.com/flotilla-io/flotilla/pkg/lifecycle"
)

func TestParseImageRef(t *testing.T) {
	tests := []struct {
		image string
		repo  string
		tag   string
	}{
		{"nginx", "nginx", "latest"},
		{"nginx:1.27", "nginx", "1.27"},
		{"quay.io/acme/api:v2", "quay.io/acme/api", "v2"},
		{"registry.local:5000/acme/api", "registry.local:5000/acme/api", "latest"},
		{"registry.local:5000/acme/api:v2", "registry.local:5000/acme/api", "v2"},
	}

	for _, tt := range tests {
		ref := ParseImageRef(tt.image)
		if ref.Repository != tt.repo || ref.Tag != tt.tag {
			t.Errorf("ParseImageRef(%q) = %q:%q, want %q:%q",
				tt.image, ref.Repository, ref.Tag, tt.repo, tt.tag)
		}
	}
}

func TestParsePortSpec(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  PortSpec
	}{
		{
			name:  "bare number",
			value: 8080,
			want:  PortSpec{Name: "http", Exposed: 8080, External: 8080, Protocol: "tcp"},
		},
		{
			name:  "string with protocol",
			value: "53/udp",
			want:  PortSpec{Name: "http", Exposed: 53, External: 53, Protocol: "udp"},
		},
		{
			name:  "external colon exposed",
			value: "80:8080",
			want:  PortSpec{Name: "http", Exposed: 8080, External: 80, Protocol: "tcp"},
		},
		{
			name:  "colon form with one protocol",
			value: "5353:53/udp",
			want:  PortSpec{Name: "http", Exposed: 53, External: 5353, Protocol: "udp"},
		},
		{
			name:  "map form",
			value: map[string]any{"exposed": "8080/tcp", "external": 80},
			want:  PortSpec{Name: "http", Exposed: 8080, External: 80, Protocol: "tcp"},
		},
		{
			name:  "map form with interface",
			value: map[string]any{"exposed": 6379, "external": []any{"127.0.0.1", 6379}},
			want:  PortSpec{Name: "http", Exposed: 6379, External: 6379, Protocol: "tcp", Interface: "127.0.0.1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePortSpec("http", tt.value)
			if err != nil {
				t.Fatalf("ParsePortSpec: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParsePortSpecErrors(t *testing.T) {
	bad := []any{
		"80/tcp:53/udp",
		"notaport",
		"0",
		"70000",
		map[string]any{"exposed": 80},
		map[string]any{"exposed": "80/udp", "external": "80/tcp"},
		3.14,
	}
	for _, value := range bad {
		if _, err := ParsePortSpec("p", value); err == nil {
			t.Errorf("ParsePortSpec(%v): expected error", value)
		}
	}
}

func TestParseVolumesSchemaDirection(t *testing.T) {
	v1, err := ParseVolumes(map[string]any{"/host/data": "/var/lib/data"}, 1)
	if err != nil {
		t.Fatalf("schema 1: %v", err)
	}
	if v1[0].HostPath != "/host/data" || v1[0].ContainerPath != "/var/lib/data" {
		t.Errorf("schema 1 binding reversed: %+v", v1[0])
	}

	v2, err := ParseVolumes(map[string]any{"/var/lib/data": "/host/data"}, 2)
	if err != nil {
		t.Fatalf("schema 2: %v", err)
	}
	if v2[0].HostPath != "/host/data" || v2[0].ContainerPath != "/var/lib/data" {
		t.Errorf("schema 2 binding reversed: %+v", v2[0])
	}

	v3, err := ParseVolumes(map[string]any{
		"/etc/conf": map[string]any{"target": "/host/conf", "mode": "ro"},
	}, 2)
	if err != nil {
		t.Fatalf("schema 2 map form: %v", err)
	}
	if !v3[0].ReadOnly {
		t.Error("mode ro not applied")
	}
	if v3[0].BindSpec() != "/host/conf:/etc/conf:ro" {
		t.Errorf("BindSpec = %q", v3[0].BindSpec())
	}

	if _, err := ParseVolumes(map[string]any{"/etc/conf": map[string]any{"mode": "ro"}}, 2); err == nil {
		t.Error("missing target: expected error")
	}
}

func TestParseRestartPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    RestartPolicy
		wantErr bool
	}{
		{in: "", want: RestartPolicy{Name: "no"}},
		{in: "always", want: RestartPolicy{Name: "always"}},
		{in: "on-failure", want: RestartPolicy{Name: "on-failure"}},
		{in: "on-failure:5", want: RestartPolicy{Name: "on-failure", MaxRetries: 5}},
		{in: "always:3", wantErr: true},
		{in: "on-failure:x", wantErr: true},
		{in: "sometimes", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseRestartPolicy(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseRestartPolicy(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseRestartPolicy(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseRestartPolicy(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestParseBytes(t *testing.T) {
	tests := []struct {
		in   any
		want int64
	}{
		{nil, 0},
		{1024, 1024},
		{"512", 512},
		{"64k", 64 << 10},
		{"128M", 128 << 20},
		{"2g", 2 << 30},
	}
	for _, tt := range tests {
		got, err := ParseBytes(tt.in)
		if err != nil {
			t.Errorf("ParseBytes(%v): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseBytes(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}

	if _, err := ParseBytes("12q"); err == nil {
		t.Error("ParseBytes(12q): expected error")
	}
}

func testModel(t *testing.T) *Model {
	t.Helper()

	ship := &Ship{Name: "alpha", Address: "10.0.0.1", DaemonPort: DefaultDaemonPort}

	db := &Service{Name: "db", Image: "postgres:16"}
	dbInst := &Instance{
		Name:    "db-1",
		Service: db,
		Ship:    ship,
		Ports: map[string]PortSpec{
			"postgres": {Name: "postgres", Exposed: 5432, External: 15432, Protocol: "tcp"},
		},
	}
	db.RegisterInstance(dbInst)

	web := &Service{
		Name:     "web",
		Image:    "acme/web:v3",
		Requires: []string{"db"},
		Env:      map[string]any{"WORKERS": 4, "DEBUG": false},
	}
	webInst := &Instance{
		Name:    "web-1",
		Service: web,
		Ship:    ship,
		Env:     map[string]any{"WORKERS": 8},
	}
	web.RegisterInstance(webInst)

	return &Model{
		Name:     "staging",
		Schema:   2,
		Ships:    map[string]*Ship{"alpha": ship},
		Services: map[string]*Service{"db": db, "web": web},
	}
}

func TestResolveEnv(t *testing.T) {
	m := testModel(t)
	inst, _ := m.Instance("web-1")
	env := inst.ResolveEnv(m.Name, m)

	want := map[string]string{
		"WORKERS":                        "8",
		"DEBUG":                          "false",
		"FLOTILLA_ENVIRONMENT_NAME":      "staging",
		"SERVICE_NAME":                   "web",
		"CONTAINER_NAME":                 "web-1",
		"CONTAINER_HOST_ADDRESS":         "10.0.0.1",
		"DOCKER_IMAGE":                   "acme/web",
		"DOCKER_TAG":                     "v3",
		"DB_DB_1_HOST":                   "10.0.0.1",
		"DB_DB_1_POSTGRES_PORT":          "15432",
		"DB_DB_1_POSTGRES_INTERNAL_PORT": "5432",
		"DB_INSTANCES":                   "db-1",
	}
	for key, value := range want {
		if env[key] != value {
			t.Errorf("env[%s] = %q, want %q", key, env[key], value)
		}
	}

	flat := FlattenEnv(env)
	for i := 1; i < len(flat); i++ {
		if flat[i-1] > flat[i] {
			t.Fatalf("FlattenEnv not sorted: %q after %q", flat[i], flat[i-1])
		}
	}
}

func TestLinkVariablesCarryServicePrefix(t *testing.T) {
	ship := &Ship{Name: "alpha", Address: "10.0.0.1", DaemonPort: DefaultDaemonPort}

	db := &Service{Name: "db", Image: "postgres:16"}
	master := &Instance{
		Name:    "master",
		Service: db,
		Ship:    ship,
		Ports: map[string]PortSpec{
			"postgres": {Name: "postgres", Exposed: 5432, External: 15432, Protocol: "tcp"},
		},
	}
	db.RegisterInstance(master)

	app := &Service{Name: "app", Image: "acme/app:v1", Requires: []string{"db"}}
	appInst := &Instance{Name: "app-1", Service: app, Ship: ship}
	app.RegisterInstance(appInst)

	m := &Model{
		Name:     "staging",
		Schema:   2,
		Ships:    map[string]*Ship{"alpha": ship},
		Services: map[string]*Service{"db": db, "app": app},
	}

	env := appInst.ResolveEnv(m.Name, m)
	want := map[string]string{
		"DB_MASTER_HOST":                   "10.0.0.1",
		"DB_MASTER_POSTGRES_PORT":          "15432",
		"DB_MASTER_POSTGRES_INTERNAL_PORT": "5432",
		"DB_INSTANCES":                     "master",
	}
	for key, value := range want {
		if env[key] != value {
			t.Errorf("env[%s] = %q, want %q", key, env[key], value)
		}
	}
	if _, ok := env["MASTER_HOST"]; ok {
		t.Error("link variables must not be emitted without the service prefix")
	}
}

func TestNormalizeEnvValue(t *testing.T) {
	got := NormalizeEnvValue([]any{"a", 2, true})
	if got != "a 2 true" {
		t.Errorf("list normalization = %q", got)
	}
	if NormalizeEnvValue(nil) != "" {
		t.Error("nil should normalize to empty string")
	}
	if NormalizeEnvValue(1.5) != "1.5" {
		t.Errorf("float normalization = %q", NormalizeEnvValue(1.5))
	}
}

func TestModelValidate(t *testing.T) {
	m := testModel(t)
	if err := m.Validate(); err != nil {
		t.Fatalf("valid model rejected: %v", err)
	}

	m.Services["web"].Requires = append(m.Services["web"].Requires, "cache")
	if err := m.Validate(); err == nil {
		t.Error("unknown requires target not rejected")
	}
	m.Services["web"].Requires = []string{"db"}

	dup := &Instance{Name: "db-1", Service: m.Services["web"], Ship: m.Ships["alpha"]}
	m.Services["web"].RegisterInstance(dup)
	if err := m.Validate(); err == nil || !strings.Contains(err.Error(), "db-1") {
		t.Errorf("duplicate instance name not rejected: %v", err)
	}
}

func TestInstanceValidate(t *testing.T) {
	m := testModel(t)
	inst, _ := m.Instance("db-1")

	inst.Checks = []lifecycle.Spec{{Kind: lifecycle.KindTCP, Port: "postgres"}}
	if err := inst.Validate(); err != nil {
		t.Fatalf("tcp check on known port rejected: %v", err)
	}

	inst.Checks = []lifecycle.Spec{{Kind: lifecycle.KindTCP, Port: "nope"}}
	if err := inst.Validate(); err == nil {
		t.Error("tcp check on unknown port not rejected")
	}
	inst.Checks = nil

	inst.Volumes = []VolumeBinding{{HostPath: "/h", ContainerPath: "/data"}}
	inst.ContainerVolumes = []string{"/data"}
	if err := inst.Validate(); err == nil {
		t.Error("overlapping bind and container-only volume not rejected")
	}
}

func TestInstanceDefaults(t *testing.T) {
	m := testModel(t)
	inst, _ := m.Instance("db-1")

	if inst.StopGrace() != DefaultStopGrace {
		t.Errorf("StopGrace default = %v", inst.StopGrace())
	}
	inst.StopTimeout = 30 * time.Second
	if inst.StopGrace() != 30*time.Second {
		t.Errorf("StopGrace override = %v", inst.StopGrace())
	}

	if inst.Image() != "postgres:16" {
		t.Errorf("Image = %q", inst.Image())
	}
	inst.ImageOverride = "postgres:17"
	if inst.Image() != "postgres:17" {
		t.Errorf("Image override = %q", inst.Image())
	}
}
