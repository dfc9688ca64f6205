// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the burrow command tree.
package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/burrow-net/burrow/cmd/burrow/cli"
	"github.com/burrow-net/burrow/lib/version"
)

// Root builds and returns the complete burrow command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "burrow",
		Description: `burrow: reach services behind NAT through your own peers.

Nodes announce themselves on a signaling broker. A node can expose
allowed targets, its sshd, or a shell to authenticated peers over TCP
or WebRTC data channels.`,
		Subcommands: []*cli.Command{
			serveCommand(),
			forwardCommand(),
			sshCommand(),
			shellCommand(),
			peersCommand(),
			brokerCommand(),
			stunCommand(),
			identityCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(_ context.Context, args []string, _ *slog.Logger) error {
					fmt.Printf("burrow %s\n", version.Full())
					return nil
				},
			},
		},
	}
}
