// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"log/slog"

	"github.com/burrow-net/burrow/cmd/burrow/cli"
	"github.com/burrow-net/burrow/signaling"
)

type brokerParams struct {
	cli.Common
	Listen string `flag:"listen" desc:"address to accept signaling clients on" default:"0.0.0.0:7421"`
}

func brokerCommand() *cli.Command {
	var params brokerParams
	return &cli.Command{
		Name:    "broker",
		Summary: "Run a signaling broker",
		Description: `Run the pub/sub broker nodes announce themselves and exchange WebRTC
offers through. The broker only relays small control messages; session
traffic never passes through it. It needs no node configuration.`,
		Usage:  "burrow broker [flags]",
		Params: func() any { return &params },
		Examples: []cli.Example{
			{Description: "Run a broker on the default port", Command: "burrow broker"},
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 0 {
				return cli.Validation("usage: burrow broker [flags]")
			}
			broker := &signaling.Broker{Logger: logger}
			if err := broker.ListenAndServe(ctx, params.Listen); err != nil {
				return cli.Transient("%w", err)
			}
			return nil
		},
	}
}
