package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/flotilla-io/flotilla/pkg/entity"
	"github.com/flotilla-io/flotilla/pkg/lifecycle"
)

const sampleDescription = `
name: staging
schema: 2

registries:
  internal:
    registry: registry.acme.dev
    username: deploy
    password: ${FLOTILLA_TEST_REGISTRY_PASSWORD}

ship_defaults:
  docker_port: 4243
  timeout: 10

ships:
  alpha:
    ip: 10.0.0.1
  beta:
    ip: 10.0.0.2
    endpoint: beta.internal
    ssh_tunnel:
      user: deploy
      key: /etc/flotilla/deploy.key
      port: 2222

audit:
  - type: log
  - type: webhook
    url: https://hooks.acme.dev/flotilla
    timeout: 3

services:
  db:
    image: registry.acme.dev/infra/postgres:16
    env:
      POSTGRES_DB: app
    instances:
      db-1:
        ship: alpha
        ports:
          postgres: 5432
        volumes:
          /var/lib/postgresql/data:
            target: /srv/pgdata
            mode: rw
        limits:
          cpu: 512
          memory: 2g
        restart: on-failure:3
        stop_timeout: 30
        lifecycle:
          running:
            - type: tcp
              port: postgres
              attempts: 5
              interval: 2
          stopped:
            - type: exec
              command: test ! -S /var/run/postgresql/.s.PGSQL.5432

  web:
    image: acme/web:v3
    requires: [db]
    instances:
      web-1:
        ship: beta
        ports:
          http: "80:8080"
        command: ./serve --listen :8080
`

func resolveSample(t *testing.T) *entity.Model {
	t.Helper()
	t.Setenv("FLOTILLA_TEST_REGISTRY_PASSWORD", "hunter2")

	f, err := Parse([]byte(sampleDescription))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	m, err := f.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return m
}

func TestResolveFullDescription(t *testing.T) {
	m := resolveSample(t)

	if m.Name != "staging" || m.Schema != 2 {
		t.Errorf("model header = %s schema %d", m.Name, m.Schema)
	}

	alpha := m.Ships["alpha"]
	if alpha.DaemonPort != 4243 {
		t.Errorf("alpha port = %d, ship_defaults not applied", alpha.DaemonPort)
	}
	if alpha.Timeout != 10*time.Second {
		t.Errorf("alpha timeout = %v", alpha.Timeout)
	}

	beta := m.Ships["beta"]
	if beta.Tunnel == nil {
		t.Fatal("beta should have an SSH tunnel")
	}
	if beta.Tunnel.User != "deploy" || beta.Tunnel.Port != 2222 {
		t.Errorf("tunnel = %+v", beta.Tunnel)
	}
	if beta.DaemonEndpoint() != "beta.internal" {
		t.Errorf("beta endpoint = %s", beta.DaemonEndpoint())
	}

	db, ok := m.Instance("db-1")
	if !ok {
		t.Fatal("db-1 not resolved")
	}
	if db.Ports["postgres"].Exposed != 5432 || db.Ports["postgres"].External != 5432 {
		t.Errorf("postgres port = %+v", db.Ports["postgres"])
	}
	if len(db.Volumes) != 1 || db.Volumes[0].ContainerPath != "/var/lib/postgresql/data" ||
		db.Volumes[0].HostPath != "/srv/pgdata" {
		t.Errorf("volumes = %+v", db.Volumes)
	}
	if db.MemLimit != 2*1024*1024*1024 {
		t.Errorf("mem limit = %d", db.MemLimit)
	}
	if db.RestartPolicy.Name != "on-failure" || db.RestartPolicy.MaxRetries != 3 {
		t.Errorf("restart = %+v", db.RestartPolicy)
	}
	if db.StopTimeout != 30*time.Second {
		t.Errorf("stop timeout = %v", db.StopTimeout)
	}
	if len(db.Checks) != 1 {
		t.Fatalf("checks = %+v", db.Checks)
	}
	check := db.Checks[0]
	if check.Kind != lifecycle.KindTCP || check.Port != "postgres" ||
		check.Attempts != 5 || check.Interval != 2*time.Second {
		t.Errorf("check = %+v", check)
	}
	if len(db.StopChecks) != 1 || db.StopChecks[0].Kind != lifecycle.KindExec {
		t.Errorf("stop checks = %+v", db.StopChecks)
	}

	web, _ := m.Instance("web-1")
	if web.Ports["http"].External != 80 || web.Ports["http"].Exposed != 8080 {
		t.Errorf("http port = %+v", web.Ports["http"])
	}

	if reg := m.RegistryFor(db.Image()); reg == nil || reg.Password != "hunter2" {
		t.Errorf("registry lookup = %+v", reg)
	}
	if reg := m.RegistryFor(web.Image()); reg != nil {
		t.Errorf("acme/web should pull anonymously, got %+v", reg)
	}
}

func TestParseRejectsUnsetVariables(t *testing.T) {
	_, err := Parse([]byte("name: ${FLOTILLA_TEST_NO_SUCH_VARIABLE}\nships: {a: {ip: 10.0.0.1}}\nservices: {s: {image: i, instances: {s-1: {ship: a}}}}\n"))
	if err == nil || !strings.Contains(err.Error(), "FLOTILLA_TEST_NO_SUCH_VARIABLE") {
		t.Errorf("err = %v", err)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("name: x\nbogus_key: true\nships: {a: {ip: 10.0.0.1}}\nservices: {s: {image: i, instances: {s-1: {ship: a}}}}\n"))
	if err == nil {
		t.Error("unknown top-level key should be rejected")
	}
}

func TestParseRequiresServiceImage(t *testing.T) {
	_, err := Parse([]byte("name: x\nships: {a: {ip: 10.0.0.1}}\nservices: {s: {instances: {s-1: {ship: a}}}}\n"))
	if err == nil {
		t.Error("missing image should be rejected")
	}
}

func TestResolveSchemaOneReversesVolumes(t *testing.T) {
	doc := `
name: legacy
ships:
  alpha: {ip: 10.0.0.1}
services:
  db:
    image: postgres:16
    instances:
      db-1:
        ship: alpha
        volumes:
          /srv/pgdata: /var/lib/postgresql/data
`
	f, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.schema() != 1 {
		t.Errorf("schema = %d, absent field should mean 1", f.schema())
	}
	m, err := f.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	inst, _ := m.Instance("db-1")
	if inst.Volumes[0].HostPath != "/srv/pgdata" || inst.Volumes[0].ContainerPath != "/var/lib/postgresql/data" {
		t.Errorf("volumes = %+v", inst.Volumes)
	}
	// Without ship_defaults or tls, the plain daemon port applies.
	if m.Ships["alpha"].DaemonPort != entity.DefaultDaemonPort {
		t.Errorf("port = %d", m.Ships["alpha"].DaemonPort)
	}
}

func TestResolveRejectsUnknownLifecycleState(t *testing.T) {
	doc := `
name: x
schema: 2
ships:
  alpha: {ip: 10.0.0.1}
services:
  s:
    image: i
    instances:
      s-1:
        ship: alpha
        lifecycle:
          runnign:
            - type: sleep
              wait: 1
`
	f, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := f.Resolve(); err == nil || !strings.Contains(err.Error(), "runnign") {
		t.Errorf("err = %v", err)
	}
}

func TestResolveRejectsUnknownShipReference(t *testing.T) {
	doc := `
name: x
schema: 2
ships:
  alpha: {ip: 10.0.0.1}
services:
  s:
    image: i
    instances:
      s-1:
        ship: omega
`
	f, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := f.Resolve(); err == nil {
		t.Error("unknown ship should be rejected")
	}
}

func TestInstanceOmitOverridesService(t *testing.T) {
	doc := `
name: x
schema: 2
ships:
  alpha: {ip: 10.0.0.1}
services:
  s:
    image: i
    omit: true
    instances:
      s-1: {ship: alpha}
      s-2: {ship: alpha, omit: false}
`
	f, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	m, err := f.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	s1, _ := m.Instance("s-1")
	s2, _ := m.Instance("s-2")
	if !s1.Omit || s2.Omit {
		t.Errorf("omit: s-1=%v s-2=%v", s1.Omit, s2.Omit)
	}
}

func TestLoadReadsFromDisk(t *testing.T) {
	t.Setenv("FLOTILLA_TEST_REGISTRY_PASSWORD", "hunter2")

	path := filepath.Join(t.TempDir(), "staging.yaml")
	if err := os.WriteFile(path, []byte(sampleDescription), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if f.Name != "staging" {
		t.Errorf("name = %s", f.Name)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file should be an error")
	}
}
