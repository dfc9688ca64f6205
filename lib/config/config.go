// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Config is the complete configuration of a burrow node.
type Config struct {
	// Node identifies this machine.
	Node NodeConfig `yaml:"node"`

	// TLS locates the node's certificate material.
	TLS TLSConfig `yaml:"tls"`

	// Signaling configures the pub/sub bus peers announce themselves on.
	Signaling SignalingConfig `yaml:"signaling"`

	// Transport configures how peer connections are carried.
	Transport TransportConfig `yaml:"transport"`

	// Tunnel configures the relay engine.
	Tunnel TunnelConfig `yaml:"tunnel"`

	// Forward configures what remote peers may reach through this node.
	Forward ForwardConfig `yaml:"forward"`
}

// NodeConfig identifies this machine.
type NodeConfig struct {
	// Name is the human-readable node name announced to peers. Required.
	Name string `yaml:"name"`

	// StateDir holds generated identity material.
	// Default: ${HOME}/.local/state/burrow
	StateDir string `yaml:"state_dir"`
}

// TLSConfig locates certificate material. Certificate and PrivateKey are
// both set or both empty; when empty they default to files in StateDir.
type TLSConfig struct {
	Certificate string `yaml:"certificate"`
	PrivateKey  string `yaml:"private_key"`

	// CA is an optional PEM bundle. When set, peers are accepted if
	// their certificate chains to it; otherwise peers are pinned by
	// node ID.
	CA string `yaml:"ca"`

	// Generate creates a self-signed pair on first start when the
	// files do not exist. Default: true
	Generate bool `yaml:"generate"`
}

// SignalingConfig configures peer discovery.
type SignalingConfig struct {
	// Broker is the host:port of the signaling broker. Required for
	// every command that talks to peers.
	Broker string `yaml:"broker"`

	// AnnounceInterval is how often the node re-announces itself.
	// Default: 30s
	AnnounceInterval string `yaml:"announce_interval"`

	// PeerTTL is how long an announcement stays valid without being
	// refreshed. Default: 90s
	PeerTTL string `yaml:"peer_ttl"`
}

// TransportConfig configures the carriers for peer connections.
type TransportConfig struct {
	// Listen is the TCP address the forwarding server accepts peers on.
	// Empty disables the TCP listener. Default: 0.0.0.0:7420
	Listen string `yaml:"listen"`

	// WebRTC enables NAT traversal over WebRTC data channels.
	WebRTC bool `yaml:"webrtc"`

	// STUNServers are "host:port" addresses used for ICE and public
	// address discovery.
	STUNServers []string `yaml:"stun_servers"`

	// TURNServers relay traffic when no direct path exists.
	TURNServers []TURNServer `yaml:"turn_servers"`
}

// TURNServer is one TURN relay with its credentials.
type TURNServer struct {
	URLs       []string `yaml:"urls"`
	Username   string   `yaml:"username"`
	Credential string   `yaml:"credential"`
}

// TunnelConfig configures the relay engine.
type TunnelConfig struct {
	// InitialBuffer is the capacity both directions start with.
	// Default: 4096
	InitialBuffer int `yaml:"initial_buffer"`

	// Autosize enables statistics-driven buffer resizing. Default: true
	Autosize bool `yaml:"autosize"`

	// TLSPollInterval bounds each TLS read. Empty or "0" blocks until
	// a record arrives.
	TLSPollInterval string `yaml:"tls_poll_interval"`
}

// ForwardConfig configures what this node serves to remote peers.
type ForwardConfig struct {
	// Allow lists host:port targets a remote peer may ask this node to
	// connect to. SSH requests always target 127.0.0.1:22 and are
	// allowed when that address is listed. A "*" entry allows any
	// target.
	Allow []string `yaml:"allow"`

	// Shell is the program started for remote shell sessions. Empty
	// disables remote shells.
	Shell string `yaml:"shell"`

	// ShellArgs are passed to Shell.
	ShellArgs []string `yaml:"shell_args"`

	// Peers lists the node IDs allowed to open sessions when no CA is
	// configured. Empty accepts any authenticated peer.
	Peers []string `yaml:"peers"`
}

// Default returns the default configuration. The defaults ensure every
// field has a sensible value; they are not a fallback for a missing file.
func Default() *Config {
	return &Config{
		Node: NodeConfig{
			StateDir: "${HOME}/.local/state/burrow",
		},
		TLS: TLSConfig{
			Generate: true,
		},
		Signaling: SignalingConfig{
			AnnounceInterval: "30s",
			PeerTTL:          "90s",
		},
		Transport: TransportConfig{
			Listen: "0.0.0.0:7420",
		},
		Tunnel: TunnelConfig{
			InitialBuffer: 4096,
			Autosize:      true,
		},
		Forward: ForwardConfig{
			Shell: "/bin/sh",
		},
	}
}

// Load loads configuration from the file named by BURROW_CONFIG.
// There are no fallbacks: if BURROW_CONFIG is not set, this fails.
func Load() (*Config, error) {
	configPath := os.Getenv("BURROW_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("BURROW_CONFIG environment variable not set; " +
			"set it to the path of your burrow.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path over the
// defaults and expands variables in path fields.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
	}
	return yaml.Unmarshal(data, c)
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Node.StateDir = expandVars(c.Node.StateDir, vars)
	vars["BURROW_STATE"] = c.Node.StateDir

	c.TLS.Certificate = expandVars(c.TLS.Certificate, vars)
	c.TLS.PrivateKey = expandVars(c.TLS.PrivateKey, vars)
	c.TLS.CA = expandVars(c.TLS.CA, vars)
	c.Forward.Shell = expandVars(c.Forward.Shell, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns. Provided vars
// take precedence over the environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	if c.Node.Name == "" {
		errs = append(errs, errors.New("node.name is required"))
	}
	if c.Node.StateDir == "" {
		errs = append(errs, errors.New("node.state_dir is required"))
	}

	if (c.TLS.Certificate == "") != (c.TLS.PrivateKey == "") {
		errs = append(errs, errors.New("tls.certificate and tls.private_key must be set together"))
	}

	if c.Signaling.Broker != "" {
		if _, _, err := net.SplitHostPort(c.Signaling.Broker); err != nil {
			errs = append(errs, fmt.Errorf("signaling.broker: %w", err))
		}
	}
	announce, err := parseDuration(c.Signaling.AnnounceInterval)
	if err != nil || announce <= 0 {
		errs = append(errs, fmt.Errorf("signaling.announce_interval must be a positive duration, got %q", c.Signaling.AnnounceInterval))
	}
	ttl, err := parseDuration(c.Signaling.PeerTTL)
	if err != nil || ttl <= 0 {
		errs = append(errs, fmt.Errorf("signaling.peer_ttl must be a positive duration, got %q", c.Signaling.PeerTTL))
	} else if announce > 0 && ttl <= announce {
		errs = append(errs, errors.New("signaling.peer_ttl must exceed signaling.announce_interval"))
	}

	if c.Transport.Listen != "" {
		if _, _, err := net.SplitHostPort(c.Transport.Listen); err != nil {
			errs = append(errs, fmt.Errorf("transport.listen: %w", err))
		}
	}
	for index, server := range c.Transport.STUNServers {
		if _, _, err := net.SplitHostPort(server); err != nil {
			errs = append(errs, fmt.Errorf("transport.stun_servers[%d]: %w", index, err))
		}
	}
	for index, server := range c.Transport.TURNServers {
		if len(server.URLs) == 0 {
			errs = append(errs, fmt.Errorf("transport.turn_servers[%d].urls is required", index))
		}
	}

	// Buffer bounds mirror the tunnel engine's MinBuffer and MaxBuffer.
	if c.Tunnel.InitialBuffer < 16 || c.Tunnel.InitialBuffer > 4096*128 {
		errs = append(errs, fmt.Errorf("tunnel.initial_buffer must be between 16 and 524288, got %d", c.Tunnel.InitialBuffer))
	}
	if poll, err := parseDuration(c.Tunnel.TLSPollInterval); err != nil || poll < 0 {
		errs = append(errs, fmt.Errorf("tunnel.tls_poll_interval must be a non-negative duration, got %q", c.Tunnel.TLSPollInterval))
	}

	for index, target := range c.Forward.Allow {
		if target == "*" {
			continue
		}
		if _, _, err := net.SplitHostPort(target); err != nil {
			errs = append(errs, fmt.Errorf("forward.allow[%d]: %w", index, err))
		}
	}

	for index, peer := range c.Forward.Peers {
		if peer == "" {
			errs = append(errs, fmt.Errorf("forward.peers[%d] is empty", index))
		}
	}

	return errors.Join(errs...)
}

// AnnounceInterval returns signaling.announce_interval. Call after a
// successful Validate.
func (c *Config) AnnounceInterval() time.Duration {
	duration, _ := parseDuration(c.Signaling.AnnounceInterval)
	return duration
}

// PeerTTL returns signaling.peer_ttl. Call after a successful Validate.
func (c *Config) PeerTTL() time.Duration {
	duration, _ := parseDuration(c.Signaling.PeerTTL)
	return duration
}

// TLSPollInterval returns tunnel.tls_poll_interval, zero when unset.
func (c *Config) TLSPollInterval() time.Duration {
	duration, _ := parseDuration(c.Tunnel.TLSPollInterval)
	return duration
}

// CertificatePaths returns the certificate and key paths, defaulting to
// node.pem and node.key in the state directory.
func (c *Config) CertificatePaths() (certificate, privateKey string) {
	if c.TLS.Certificate != "" {
		return c.TLS.Certificate, c.TLS.PrivateKey
	}
	return filepath.Join(c.Node.StateDir, "node.pem"), filepath.Join(c.Node.StateDir, "node.key")
}

// EnsureStateDir creates the state directory if it does not exist.
func (c *Config) EnsureStateDir() error {
	if err := os.MkdirAll(c.Node.StateDir, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", c.Node.StateDir, err)
	}
	return nil
}

func parseDuration(value string) (time.Duration, error) {
	if value == "" || value == "0" {
		return 0, nil
	}
	return time.ParseDuration(value)
}
