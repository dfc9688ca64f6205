// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/burrow-net/burrow/cmd/burrow/cli"
	"github.com/burrow-net/burrow/transport"
)

type stunParams struct {
	cli.Common
}

func stunCommand() *cli.Command {
	var params stunParams
	return &cli.Command{
		Name:    "stun",
		Summary: "Print this machine's public address as seen by STUN servers",
		Description: `Send a STUN binding request to each server and print the mapped
address it reports. Servers default to transport.stun_servers. Differing
answers from different servers indicate a symmetric NAT, which usually
needs a TURN relay for WebRTC.`,
		Usage:  "burrow stun [server...] [flags]",
		Params: func() any { return &params },
		Examples: []cli.Example{
			{Description: "Query a public STUN server", Command: "burrow stun stun.l.google.com:19302"},
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			servers := args
			if len(servers) == 0 {
				cfg, err := params.LoadConfig()
				if err != nil {
					return err
				}
				servers = cfg.Transport.STUNServers
			}
			if len(servers) == 0 {
				return cli.Validation("no STUN servers given and none configured")
			}

			answered := 0
			for _, server := range servers {
				attemptCtx, cancel := context.WithTimeout(ctx, stunTimeout)
				address, err := transport.DiscoverPublicAddress(attemptCtx, server)
				cancel()
				if err != nil {
					logger.Warn("STUN query failed", "server", server, "error", err)
					continue
				}
				answered++
				fmt.Printf("%s\t%s\n", server, address)
			}
			if answered == 0 {
				return cli.Transient("no STUN server answered")
			}
			return nil
		},
	}
}
