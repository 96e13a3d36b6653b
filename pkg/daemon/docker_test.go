package daemon

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/rs/zerolog"

	"github.com/flotilla-io/flotilla/pkg/entity"
	"github.com/flotilla-io/flotilla/pkg/telemetry"
)

func testInstance() *entity.Instance {
	svc := &entity.Service{Name: "web", Image: "acme/web:v3"}
	inst := &entity.Instance{
		Name:    "web-1",
		Service: svc,
		Ship:    &entity.Ship{Name: "alpha", Address: "10.0.0.1", DaemonPort: entity.DefaultDaemonPort},
		Ports: map[string]entity.PortSpec{
			"http": {Name: "http", Exposed: 8080, External: 80, Protocol: "tcp", Interface: "127.0.0.1"},
		},
		Volumes:          []entity.VolumeBinding{{HostPath: "/srv/web", ContainerPath: "/data", ReadOnly: true}},
		ContainerVolumes: []string{"/scratch"},
		VolumesFrom:      []string{"web-data"},
		DNS:              []string{"10.0.0.53"},
		Privileged:       true,
		NetworkMode:      "bridge",
		RestartPolicy:    entity.RestartPolicy{Name: "on-failure", MaxRetries: 3},
		CPUShares:        512,
		MemLimit:         256 << 20,
		WorkDir:          "/app",
		Command:          `serve --listen ":8080" -v`,
	}
	svc.RegisterInstance(inst)
	return inst
}

func TestContainerConfig(t *testing.T) {
	inst := testInstance()
	env := map[string]string{"A": "1", "B": "two"}

	config, hostConfig, err := containerConfig(inst, env)
	if err != nil {
		t.Fatalf("containerConfig: %v", err)
	}

	if config.Image != "acme/web:v3" {
		t.Errorf("Image = %q", config.Image)
	}
	if !reflect.DeepEqual(config.Env, []string{"A=1", "B=two"}) {
		t.Errorf("Env = %v", config.Env)
	}
	if !reflect.DeepEqual([]string(config.Cmd), []string{"serve", "--listen", ":8080", "-v"}) {
		t.Errorf("Cmd = %v", config.Cmd)
	}
	if config.WorkingDir != "/app" {
		t.Errorf("WorkingDir = %q", config.WorkingDir)
	}
	if _, ok := config.Volumes["/scratch"]; !ok {
		t.Error("container-only volume missing")
	}

	port := nat.Port("8080/tcp")
	if _, ok := config.ExposedPorts[port]; !ok {
		t.Errorf("ExposedPorts = %v", config.ExposedPorts)
	}
	bindings := hostConfig.PortBindings[port]
	if len(bindings) != 1 || bindings[0].HostIP != "127.0.0.1" || bindings[0].HostPort != "80" {
		t.Errorf("PortBindings = %v", bindings)
	}

	if !reflect.DeepEqual(hostConfig.Binds, []string{"/srv/web:/data:ro"}) {
		t.Errorf("Binds = %v", hostConfig.Binds)
	}
	if !hostConfig.Privileged {
		t.Error("Privileged not applied")
	}
	if hostConfig.RestartPolicy.MaximumRetryCount != 3 {
		t.Errorf("RestartPolicy = %+v", hostConfig.RestartPolicy)
	}
	if hostConfig.Resources.Memory != 256<<20 || hostConfig.Resources.CPUShares != 512 {
		t.Errorf("Resources = %+v", hostConfig.Resources)
	}
}

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		in      string
		want    []string
		wantErr bool
	}{
		{in: "", want: nil},
		{in: "run", want: []string{"run"}},
		{in: "run  --flag value", want: []string{"run", "--flag", "value"}},
		{in: `echo "hello world"`, want: []string{"echo", "hello world"}},
		{in: `echo 'a b' c`, want: []string{"echo", "a b", "c"}},
		{in: `echo ""`, want: []string{"echo", ""}},
		{in: `echo "unterminated`, wantErr: true},
	}

	for _, tt := range tests {
		got, err := splitCommand(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("splitCommand(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("splitCommand(%q): %v", tt.in, err)
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitCommand(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestStatusExists(t *testing.T) {
	var s *Status
	if s.Exists() {
		t.Error("nil status should not exist")
	}
	if (&Status{}).Exists() {
		t.Error("empty status should not exist")
	}
	if !(&Status{ID: "abc"}).Exists() {
		t.Error("status with ID should exist")
	}
}

func TestDaemonCallsRecordMetrics(t *testing.T) {
	m, err := telemetry.NewMetrics(telemetry.MetricsConfig{Enabled: true, Namespace: "flotilla"})
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	// Port 1 is closed, so the call fails fast after counting.
	s := &entity.Ship{Name: "alpha", Address: "127.0.0.1", DaemonPort: 1, Timeout: time.Second}
	cli, err := New(s, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer cli.Close()
	cli.WithTelemetry(m, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := cli.Ping(ctx); err == nil {
		t.Fatal("expected ping to an unreachable daemon to fail")
	}

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	counts := make(map[string]float64)
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			counts[family.GetName()] += metric.GetCounter().GetValue()
		}
	}
	if counts["flotilla_daemon_calls_total"] != 1 {
		t.Errorf("daemon_calls_total = %v, want 1", counts["flotilla_daemon_calls_total"])
	}
	if counts["flotilla_daemon_errors_total"] != 1 {
		t.Errorf("daemon_errors_total = %v, want 1", counts["flotilla_daemon_errors_total"])
	}
}
