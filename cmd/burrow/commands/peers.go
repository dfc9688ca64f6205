// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/burrow-net/burrow/cmd/burrow/cli"
	"github.com/burrow-net/burrow/signaling"
)

type peersParams struct {
	cli.Common
	cli.JSONOutput
	Wait time.Duration `flag:"wait" desc:"how long to collect announcements" default:"2s"`
}

// peerEntry is one row of the peers listing.
type peerEntry struct {
	Name          string    `json:"name"`
	NodeID        string    `json:"node_id"`
	Addresses     []string  `json:"addresses"`
	PublicAddress string    `json:"public_address,omitempty"`
	WebRTC        bool      `json:"webrtc"`
	Services      []string  `json:"services"`
	Announced     time.Time `json:"announced"`
}

func peersCommand() *cli.Command {
	var params peersParams
	return &cli.Command{
		Name:    "peers",
		Summary: "List the peers announced on the signaling broker",
		Description: `Ask every node on the signaling broker to announce itself and list
the ones that answer within --wait.`,
		Usage:  "burrow peers [flags]",
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 0 {
				return cli.Validation("usage: burrow peers [flags]")
			}
			n, err := loadNode(&params.Common, logger)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()
			client, err := n.connectBroker(ctx)
			if err != nil {
				return err
			}
			directory := signaling.NewDirectory(n.config.PeerTTL())
			if err := signaling.Discover(ctx, client, directory, params.Wait); err != nil {
				return cli.Transient("discovering peers: %w", err)
			}

			var entries []peerEntry
			for _, announce := range directory.Peers() {
				if announce.NodeID == n.identity.ID {
					continue
				}
				entries = append(entries, peerEntry{
					Name:          announce.Name,
					NodeID:        announce.NodeID,
					Addresses:     announce.Addresses,
					PublicAddress: announce.PublicAddress,
					WebRTC:        announce.WebRTC,
					Services:      announce.Services,
					Announced:     announce.Timestamp,
				})
			}
			if done, err := params.EmitJSON(entries); done {
				return err
			}
			writePeers(os.Stdout, entries, time.Now())
			return nil
		},
	}
}

func writePeers(w io.Writer, entries []peerEntry, now time.Time) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "no peers answered")
		return
	}
	tw := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "NAME\tNODE ID\tADDRESSES\tWEBRTC\tSERVICES\tAGE")
	for _, entry := range entries {
		addresses := strings.Join(entry.Addresses, ",")
		if addresses == "" {
			addresses = "-"
		}
		services := strings.Join(entry.Services, ",")
		if services == "" {
			services = "-"
		}
		webrtc := "no"
		if entry.WebRTC {
			webrtc = "yes"
		}
		age := now.Sub(entry.Announced).Truncate(time.Second)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", entry.Name, entry.NodeID, addresses, webrtc, services, age)
	}
	tw.Flush()
}
