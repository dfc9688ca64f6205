// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"log/slog"
	"net"

	"github.com/burrow-net/burrow/cmd/burrow/cli"
	"github.com/burrow-net/burrow/forward"
)

func forwardCommand() *cli.Command {
	var params PeerParams
	return &cli.Command{
		Name:    "forward",
		Summary: "Expose a target behind a peer as a local port",
		Description: `Listen on a local address and relay every connection to it through
the peer to target. The peer must list target in its forward.allow.

<peer> is the name or node ID of an announced peer, or host:port of a
peer's TCP listener (use --pin to require its node ID).`,
		Usage:  "burrow forward <peer> <local-address> <target> [flags]",
		Params: func() any { return &params },
		Examples: []cli.Example{
			{
				Description: "Reach the database next to peer alpha on local port 5432",
				Command:     "burrow forward alpha 127.0.0.1:5432 db.internal:5432",
			},
			{
				Description: "Force the WebRTC route",
				Command:     "burrow forward alpha 127.0.0.1:8080 127.0.0.1:80 --via webrtc",
			},
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 3 {
				return cli.Validation("usage: burrow forward <peer> <local-address> <target>")
			}
			if _, _, err := net.SplitHostPort(args[2]); err != nil {
				return cli.Validation("target %q: %w", args[2], err)
			}
			return runForwarder(ctx, &params, logger, args[0], args[1], forward.KindTCP, args[2])
		},
	}
}

type sshParams struct {
	PeerParams
	Target string `flag:"target" desc:"sshd address as seen from the peer (default: 127.0.0.1:22)"`
}

func sshCommand() *cli.Command {
	var params sshParams
	return &cli.Command{
		Name:    "ssh",
		Summary: "Expose a peer's sshd as a local port",
		Description: `Listen on a local address and relay every connection to the peer's
sshd. The SSH protocol passes through untouched, so any SSH client
works against the local port.`,
		Usage:  "burrow ssh <peer> <local-address> [flags]",
		Params: func() any { return &params },
		Examples: []cli.Example{
			{
				Description: "Expose alpha's sshd on port 2222, then: ssh -p 2222 user@127.0.0.1",
				Command:     "burrow ssh alpha 127.0.0.1:2222",
			},
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 2 {
				return cli.Validation("usage: burrow ssh <peer> <local-address>")
			}
			return runForwarder(ctx, &params.PeerParams, logger, args[0], args[1], forward.KindSSH, params.Target)
		},
	}
}

// runForwarder forwards local to target through peer until ctx ends.
func runForwarder(ctx context.Context, params *PeerParams, logger *slog.Logger, peerName, local string, kind forward.Kind, target string) error {
	if _, _, err := net.SplitHostPort(local); err != nil {
		return cli.Validation("local address %q: %w", local, err)
	}
	n, err := loadNode(&params.Common, logger)
	if err != nil {
		return err
	}
	peer, release, err := n.resolvePeer(ctx, peerName, params)
	if err != nil {
		return err
	}
	defer release()

	forwarder := &forward.Forwarder{
		ListenAddr: local,
		Peer:       peer,
		Kind:       kind,
		Target:     target,
		Tunnel:     n.tunnelOptions(),
		Logger:     logger,
	}
	if err := forwarder.Start(ctx); err != nil {
		return cli.Transient("%w", err)
	}
	<-ctx.Done()
	forwarder.Stop()
	return nil
}
