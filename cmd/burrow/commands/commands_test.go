// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRootCommandTree(t *testing.T) {
	root := Root()
	want := []string{"serve", "forward", "ssh", "shell", "peers", "broker", "stun", "identity", "version"}
	if len(root.Subcommands) != len(want) {
		t.Fatalf("root has %d subcommands, want %d", len(root.Subcommands), len(want))
	}
	for index, command := range root.Subcommands {
		if command.Name != want[index] {
			t.Errorf("subcommand %d = %q, want %q", index, command.Name, want[index])
		}
		if command.Summary == "" {
			t.Errorf("%s has no summary", command.Name)
		}
		if command.Run == nil {
			t.Errorf("%s has no Run", command.Name)
		}
	}
}

func TestCommandsRejectWrongArgumentCounts(t *testing.T) {
	tests := [][]string{
		{"forward", "alpha"},
		{"forward", "alpha", "127.0.0.1:1", "no-port"},
		{"ssh", "alpha"},
		{"shell"},
		{"serve", "extra"},
		{"peers", "extra"},
		{"identity", "extra"},
	}
	for _, args := range tests {
		t.Run(strings.Join(args, "_"), func(t *testing.T) {
			if err := Root().Execute(context.Background(), args); err == nil {
				t.Errorf("Execute(%v) succeeded", args)
			}
		})
	}
}

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "burrow.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestIdentityCommandGeneratesCertificate(t *testing.T) {
	stateDir := t.TempDir()
	path := writeTestConfig(t, "node:\n  name: alpha\n  state_dir: \""+stateDir+"\"\n")

	if err := Root().Execute(context.Background(), []string{"identity", "--config", path}); err != nil {
		t.Fatalf("identity: %v", err)
	}
	for _, name := range []string{"node.pem", "node.key"} {
		if _, err := os.Stat(filepath.Join(stateDir, name)); err != nil {
			t.Errorf("%s not generated: %v", name, err)
		}
	}

	// A second run loads the same identity.
	if err := Root().Execute(context.Background(), []string{"identity", "-c", path, "--json"}); err != nil {
		t.Fatalf("identity --json: %v", err)
	}
}

func TestIdentityCommandInvalidConfig(t *testing.T) {
	path := writeTestConfig(t, "node:\n  state_dir: \""+t.TempDir()+"\"\n")
	err := Root().Execute(context.Background(), []string{"identity", "--config", path})
	if err == nil || !strings.Contains(err.Error(), "node.name") {
		t.Fatalf("identity error = %v, want a node.name validation error", err)
	}
}

func TestWritePeers(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entries := []peerEntry{
		{Name: "alpha", NodeID: "id-a", Addresses: []string{"10.0.0.1:7420"}, Services: []string{"tcp", "ssh"}, Announced: now.Add(-5 * time.Second)},
		{Name: "beta", NodeID: "id-b", WebRTC: true, Announced: now.Add(-90 * time.Second)},
	}
	var buffer bytes.Buffer
	writePeers(&buffer, entries, now)
	output := buffer.String()

	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header plus 2:\n%s", len(lines), output)
	}
	if !strings.HasPrefix(lines[0], "NAME") {
		t.Errorf("header = %q", lines[0])
	}
	for _, want := range []string{"10.0.0.1:7420", "tcp,ssh", "5s"} {
		if !strings.Contains(lines[1], want) {
			t.Errorf("alpha row %q missing %q", lines[1], want)
		}
	}
	for _, want := range []string{"yes", "1m30s"} {
		if !strings.Contains(lines[2], want) {
			t.Errorf("beta row %q missing %q", lines[2], want)
		}
	}
}

func TestWritePeersEmpty(t *testing.T) {
	var buffer bytes.Buffer
	writePeers(&buffer, nil, time.Now())
	if !strings.Contains(buffer.String(), "no peers") {
		t.Errorf("output = %q", buffer.String())
	}
}

func TestWriteIdentity(t *testing.T) {
	var buffer bytes.Buffer
	writeIdentity(&buffer, identityResult{Name: "alpha", NodeID: "abc123", Certificate: "/state/node.pem"})
	for _, want := range []string{"alpha", "abc123", "/state/node.pem", "pinned by node ID"} {
		if !strings.Contains(buffer.String(), want) {
			t.Errorf("output missing %q:\n%s", want, buffer.String())
		}
	}
}
