// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package signaling

import (
	"context"
	"fmt"
	"time"
)

// Discover asks every node on bus to announce itself and records the
// answers that arrive within window in directory. It is how short-lived
// commands learn about peers without waiting a full announce interval.
func Discover(ctx context.Context, bus Bus, directory *Directory, window time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	announcements, err := bus.Subscribe(ctx, TopicAnnounce)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", TopicAnnounce, err)
	}
	if err := bus.Publish(ctx, TopicQuery, KindQuery, nil); err != nil {
		return fmt.Errorf("publishing query: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case envelope, ok := <-announcements:
			if !ok {
				return nil
			}
			var announce Announce
			if err := envelope.Decode(&announce); err != nil {
				continue
			}
			directory.Observe(announce)
		}
	}
}
