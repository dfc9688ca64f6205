// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/burrow-net/burrow/cmd/burrow/cli"
)

type identityParams struct {
	cli.Common
	cli.JSONOutput
}

type identityResult struct {
	Name        string    `json:"name"`
	NodeID      string    `json:"node_id"`
	Certificate string    `json:"certificate"`
	NotAfter    time.Time `json:"not_after"`
	CA          bool      `json:"ca"`
}

func identityCommand() *cli.Command {
	var params identityParams
	return &cli.Command{
		Name:    "identity",
		Summary: "Print this node's ID, generating its certificate if needed",
		Description: `Load the node certificate, creating a self-signed one on first use
when tls.generate is set, and print the node ID peers pin. Give the
node ID to the operators of peers that list allowed nodes in
forward.peers.`,
		Usage:  "burrow identity [flags]",
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 0 {
				return cli.Validation("usage: burrow identity [flags]")
			}
			n, err := loadNode(&params.Common, logger)
			if err != nil {
				return err
			}
			certificate, _ := n.config.CertificatePaths()
			result := identityResult{
				Name:        n.config.Node.Name,
				NodeID:      n.identity.ID,
				Certificate: certificate,
				NotAfter:    n.identity.Certificate.Leaf.NotAfter,
				CA:          n.identity.CA != nil,
			}
			if done, err := params.EmitJSON(result); done {
				return err
			}
			writeIdentity(os.Stdout, result)
			return nil
		},
	}
}

func writeIdentity(w io.Writer, result identityResult) {
	fmt.Fprintf(w, "name:        %s\n", result.Name)
	fmt.Fprintf(w, "node id:     %s\n", result.NodeID)
	fmt.Fprintf(w, "certificate: %s\n", result.Certificate)
	fmt.Fprintf(w, "expires:     %s\n", result.NotAfter.Format(time.RFC3339))
	if result.CA {
		fmt.Fprintln(w, "peers:       verified against the configured CA")
	} else {
		fmt.Fprintln(w, "peers:       pinned by node ID")
	}
}
