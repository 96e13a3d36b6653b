package tunnel

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestConfigAddress(t *testing.T) {
	c := &Config{Host: "10.0.0.5"}
	if c.Address() != "10.0.0.5:22" {
		t.Errorf("default port address = %q", c.Address())
	}
	c.Port = 2222
	if c.Address() != "10.0.0.5:2222" {
		t.Errorf("custom port address = %q", c.Address())
	}
}

func TestBuildClientConfigMissingKey(t *testing.T) {
	c := &Config{Host: "h", User: "deploy", KeyPath: "/nonexistent/id_ed25519"}
	if _, err := c.BuildClientConfig(); err == nil {
		t.Fatal("expected error for missing key file")
	} else if !strings.Contains(err.Error(), "read private key") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDialContextRejectsNonTCP(t *testing.T) {
	tun := New(&Config{Host: "h", User: "deploy", KeyPath: "/nonexistent"})
	if _, err := tun.DialContext(context.Background(), "udp", "127.0.0.1:2375"); err == nil {
		t.Fatal("expected error for udp network")
	}
}

func TestCloseWithoutConnect(t *testing.T) {
	tun := New(&Config{Host: "h", ConnectTimeout: time.Second})
	if err := tun.Close(); err != nil {
		t.Errorf("Close before connect: %v", err)
	}
}
