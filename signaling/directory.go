// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package signaling

import (
	"slices"
	"strings"
	"sync"
	"time"
)

// Directory holds the most recent announcement from every peer and
// forgets peers that stop announcing. Safe for concurrent use.
type Directory struct {
	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	peers map[string]peerEntry
}

type peerEntry struct {
	announce Announce
	seen     time.Time
}

// NewDirectory creates a directory whose entries expire ttl after they
// were last refreshed.
func NewDirectory(ttl time.Duration) *Directory {
	return &Directory{
		ttl:   ttl,
		now:   time.Now,
		peers: make(map[string]peerEntry),
	}
}

// Observe records an announcement. Announcements without a node ID
// are ignored, as are ones older than what the directory already holds
// for that node.
func (d *Directory) Observe(announce Announce) {
	if announce.NodeID == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if existing, ok := d.peers[announce.NodeID]; ok && announce.Timestamp.Before(existing.announce.Timestamp) {
		return
	}
	d.peers[announce.NodeID] = peerEntry{announce: announce, seen: d.now()}
}

// Forget removes a peer immediately.
func (d *Directory) Forget(nodeID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.peers, nodeID)
}

// Peers returns the live announcements sorted by name, then node ID.
// Expired entries are pruned as a side effect.
func (d *Directory) Peers() []Announce {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pruneLocked()

	peers := make([]Announce, 0, len(d.peers))
	for _, entry := range d.peers {
		peers = append(peers, entry.announce)
	}
	slices.SortFunc(peers, func(a, b Announce) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.NodeID, b.NodeID)
	})
	return peers
}

// Lookup finds a live peer by node ID, then by name. When several
// peers share a name the most recently announced one wins.
func (d *Directory) Lookup(nameOrID string) (Announce, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pruneLocked()

	if entry, ok := d.peers[nameOrID]; ok {
		return entry.announce, true
	}
	var (
		found Announce
		ok    bool
	)
	for _, entry := range d.peers {
		if entry.announce.Name != nameOrID {
			continue
		}
		if !ok || entry.announce.Timestamp.After(found.Timestamp) {
			found, ok = entry.announce, true
		}
	}
	return found, ok
}

func (d *Directory) pruneLocked() {
	if d.ttl <= 0 {
		return
	}
	cutoff := d.now().Add(-d.ttl)
	for id, entry := range d.peers {
		if entry.seen.Before(cutoff) {
			delete(d.peers, id)
		}
	}
}
