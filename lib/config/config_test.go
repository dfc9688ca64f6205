// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Tunnel.InitialBuffer != 4096 {
		t.Errorf("expected initial_buffer=4096, got %d", cfg.Tunnel.InitialBuffer)
	}
	if !cfg.Tunnel.Autosize {
		t.Error("expected autosize=true")
	}
	if !cfg.TLS.Generate {
		t.Error("expected generate=true")
	}
	if cfg.Forward.Shell != "/bin/sh" {
		t.Errorf("expected shell=/bin/sh, got %s", cfg.Forward.Shell)
	}
}

func TestLoad_RequiresBurrowConfig(t *testing.T) {
	t.Setenv("BURROW_CONFIG", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when BURROW_CONFIG not set, got nil")
	}
	if !strings.HasPrefix(err.Error(), "BURROW_CONFIG environment variable not set") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_WithBurrowConfig(t *testing.T) {
	path := writeConfig(t, "burrow.yaml", `
node:
  name: workstation
signaling:
  broker: broker.example:7400
`)
	t.Setenv("BURROW_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Node.Name != "workstation" {
		t.Errorf("expected name=workstation, got %s", cfg.Node.Name)
	}
	if cfg.Signaling.Broker != "broker.example:7400" {
		t.Errorf("expected broker=broker.example:7400, got %s", cfg.Signaling.Broker)
	}
	// Unset fields keep their defaults.
	if cfg.Signaling.AnnounceInterval != "30s" {
		t.Errorf("expected default announce_interval, got %s", cfg.Signaling.AnnounceInterval)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, "burrow.yaml", `
node:
  name: gateway
  state_dir: /var/lib/burrow

tls:
  certificate: ${BURROW_STATE}/custom.pem
  private_key: ${BURROW_STATE}/custom.key
  generate: false

transport:
  listen: 127.0.0.1:9000
  webrtc: true
  stun_servers: ["stun.example:3478"]
  turn_servers:
    - urls: ["turn:turn.example:3478"]
      username: user
      credential: secret

tunnel:
  initial_buffer: 16384
  autosize: false
  tls_poll_interval: 250ms

forward:
  allow: ["127.0.0.1:22", "db.internal:5432"]
  shell: /bin/bash
  shell_args: [--login]
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	certificate, key := cfg.CertificatePaths()
	if certificate != "/var/lib/burrow/custom.pem" || key != "/var/lib/burrow/custom.key" {
		t.Errorf("certificate paths = %s, %s", certificate, key)
	}
	if cfg.TLS.Generate {
		t.Error("expected generate=false")
	}
	if !cfg.Transport.WebRTC || len(cfg.Transport.TURNServers) != 1 || cfg.Transport.TURNServers[0].Username != "user" {
		t.Errorf("transport = %+v", cfg.Transport)
	}
	if cfg.Tunnel.InitialBuffer != 16384 || cfg.Tunnel.Autosize {
		t.Errorf("tunnel = %+v", cfg.Tunnel)
	}
	if cfg.TLSPollInterval() != 250*time.Millisecond {
		t.Errorf("tls poll interval = %v", cfg.TLSPollInterval())
	}
	if len(cfg.Forward.Allow) != 2 || cfg.Forward.ShellArgs[0] != "--login" {
		t.Errorf("forward = %+v", cfg.Forward)
	}
}

func TestLoadFile_JSONC(t *testing.T) {
	path := writeConfig(t, "burrow.jsonc", `{
  // Comments and trailing commas are allowed.
  "node": {"name": "laptop", "state_dir": "/tmp/burrow-state"},
  "signaling": {
    "broker": "127.0.0.1:7400", /* local broker */
    "announce_interval": "5s",
  },
}`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Node.Name != "laptop" || cfg.Signaling.Broker != "127.0.0.1:7400" {
		t.Errorf("config = %+v", cfg)
	}
	if cfg.AnnounceInterval() != 5*time.Second {
		t.Errorf("announce interval = %v", cfg.AnnounceInterval())
	}
	if cfg.PeerTTL() != 90*time.Second {
		t.Errorf("peer ttl = %v, want default 90s", cfg.PeerTTL())
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestExpandVariables(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	t.Setenv("BURROW_TEST_SHELL", "")

	cfg := Default()
	cfg.Forward.Shell = "${BURROW_TEST_SHELL:-/usr/bin/fish}"
	cfg.expandVariables()

	if cfg.Node.StateDir != "/home/tester/.local/state/burrow" {
		t.Errorf("state_dir = %s", cfg.Node.StateDir)
	}
	if cfg.Forward.Shell != "/usr/bin/fish" {
		t.Errorf("shell = %s", cfg.Forward.Shell)
	}
	certificate, _ := cfg.CertificatePaths()
	if certificate != "/home/tester/.local/state/burrow/node.pem" {
		t.Errorf("default certificate = %s", certificate)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Node.Name = "node"
		cfg.Node.StateDir = "/state"
		return cfg
	}
	if err := valid().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing name", func(c *Config) { c.Node.Name = "" }, "node.name"},
		{"half TLS material", func(c *Config) { c.TLS.Certificate = "/c.pem" }, "tls.certificate"},
		{"bad broker", func(c *Config) { c.Signaling.Broker = "no-port" }, "signaling.broker"},
		{"bad interval", func(c *Config) { c.Signaling.AnnounceInterval = "soon" }, "announce_interval"},
		{"ttl below interval", func(c *Config) { c.Signaling.PeerTTL = "10s" }, "peer_ttl must exceed"},
		{"buffer too small", func(c *Config) { c.Tunnel.InitialBuffer = 8 }, "initial_buffer"},
		{"buffer too large", func(c *Config) { c.Tunnel.InitialBuffer = 1 << 20 }, "initial_buffer"},
		{"negative poll", func(c *Config) { c.Tunnel.TLSPollInterval = "-1s" }, "tls_poll_interval"},
		{"bad stun", func(c *Config) { c.Transport.STUNServers = []string{"stun"} }, "stun_servers[0]"},
		{"turn without urls", func(c *Config) { c.Transport.TURNServers = []TURNServer{{}} }, "turn_servers[0]"},
		{"bad allow", func(c *Config) { c.Forward.Allow = []string{"*", "nowhere"} }, "forward.allow[1]"},
		{"empty peer", func(c *Config) { c.Forward.Peers = []string{"abc", ""} }, "forward.peers[1]"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := valid()
			test.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), test.want) {
				t.Errorf("error %q does not mention %q", err, test.want)
			}
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Node.Name = ""
	cfg.Tunnel.InitialBuffer = 0
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"node.name", "initial_buffer"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestEnsureStateDir(t *testing.T) {
	cfg := Default()
	cfg.Node.StateDir = filepath.Join(t.TempDir(), "nested", "state")
	if err := cfg.EnsureStateDir(); err != nil {
		t.Fatalf("EnsureStateDir: %v", err)
	}
	info, err := os.Stat(cfg.Node.StateDir)
	if err != nil || !info.IsDir() {
		t.Fatalf("state dir not created: %v", err)
	}
}
