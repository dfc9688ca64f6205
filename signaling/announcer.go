// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package signaling

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Announcer publishes the local node's announcement on a fixed
// interval, and immediately whenever another node queries, and records
// every peer announcement it hears.
type Announcer struct {
	// Bus carries the announcements. Required.
	Bus Bus

	// Directory receives peer announcements. Required.
	Directory *Directory

	// Self builds the local announcement. It is called before every
	// publish so changing state (a fresh STUN mapping, say) is picked
	// up. Timestamp is filled in by the announcer.
	Self func() Announce

	// Interval between announcements. Required.
	Interval time.Duration

	// Logger; nil means slog.Default().
	Logger *slog.Logger
}

// Run announces immediately and then every Interval, until ctx is
// cancelled. It returns nil on cancellation and an error only when the
// subscription cannot be established.
func (a *Announcer) Run(ctx context.Context) error {
	if a.Bus == nil || a.Directory == nil || a.Self == nil || a.Interval <= 0 {
		return fmt.Errorf("announcer requires Bus, Directory, Self and a positive Interval")
	}
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}

	announcements, err := a.Bus.Subscribe(ctx, TopicAnnounce)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", TopicAnnounce, err)
	}
	queries, err := a.Bus.Subscribe(ctx, TopicQuery)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", TopicQuery, err)
	}

	self := a.Self()
	logger = logger.With("node_id", self.NodeID)
	a.publish(ctx, logger)

	ticker := time.NewTicker(a.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.publish(ctx, logger)
		case query, ok := <-queries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("query subscription closed")
			}
			logger.Debug("answering query", "from", query.From)
			a.publish(ctx, logger)
		case envelope, ok := <-announcements:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("announcement subscription closed")
			}
			var announce Announce
			if err := envelope.Decode(&announce); err != nil {
				logger.Debug("discarding malformed announcement", "from", envelope.From, "error", err)
				continue
			}
			if announce.NodeID == self.NodeID {
				continue
			}
			a.Directory.Observe(announce)
			logger.Debug("peer announced",
				"peer", announce.Name,
				"peer_id", announce.NodeID,
				"addresses", announce.Addresses,
			)
		}
	}
}

func (a *Announcer) publish(ctx context.Context, logger *slog.Logger) {
	announce := a.Self()
	announce.Timestamp = time.Now().UTC()
	if err := a.Bus.Publish(ctx, TopicAnnounce, KindAnnounce, announce); err != nil {
		if ctx.Err() == nil {
			logger.Warn("announcement failed", "error", err)
		}
		return
	}
	logger.Debug("announced", "addresses", announce.Addresses, "public_address", announce.PublicAddress)
}
