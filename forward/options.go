// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package forward

import (
	"log/slog"
	"time"

	"github.com/burrow-net/burrow/lib/config"
	"github.com/burrow-net/burrow/tunnel"
)

// TunnelOptions tune the tunnels a session runs. The zero value uses
// the engine defaults with autosizing on.
type TunnelOptions struct {
	// InitialBuffer is the starting capacity of both directions. Zero
	// means tunnel.DefaultBuffer.
	InitialBuffer int

	// DisableAutosize pins both buffers at InitialBuffer.
	DisableAutosize bool

	// PollInterval bounds each read on the TLS side.
	PollInterval time.Duration
}

// TunnelOptionsFromConfig maps the tunnel section of the node
// configuration.
func TunnelOptionsFromConfig(c *config.Config) TunnelOptions {
	return TunnelOptions{
		InitialBuffer:   c.Tunnel.InitialBuffer,
		DisableAutosize: !c.Tunnel.Autosize,
		PollInterval:    c.TLSPollInterval(),
	}
}

func (o TunnelOptions) endpoint() []tunnel.EndpointOption {
	return []tunnel.EndpointOption{tunnel.WithAutosize(!o.DisableAutosize)}
}

func (o TunnelOptions) peer(role tunnel.Role) []tunnel.EndpointOption {
	return append(o.endpoint(), tunnel.WithRole(role), tunnel.WithPollInterval(o.PollInterval))
}

func (o TunnelOptions) tunnel(logger *slog.Logger, sessionID string) []tunnel.Option {
	options := []tunnel.Option{tunnel.WithLogger(logger), tunnel.WithID(sessionID)}
	if o.InitialBuffer > 0 {
		options = append(options, tunnel.WithInitialBuffer(o.InitialBuffer))
	}
	return options
}
