// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package tunnel

import "sync"

// SessionStats counts the hops drained from an endpoint's buffer since
// the buffer was last resized. These are the inputs to [Decide].
type SessionStats struct {
	// Writes is the number of completed transfer steps.
	Writes uint64

	// Bytes is the number of bytes those steps delivered.
	Bytes uint64

	// MaxCapacityHits is the number of steps whose read filled the
	// buffer completely.
	MaxCapacityHits uint64
}

// Average returns the mean bytes per hop, or zero before the first hop.
func (s SessionStats) Average() uint64 {
	if s.Writes == 0 {
		return 0
	}
	return s.Bytes / s.Writes
}

// Stats is a copy of one endpoint's counters.
type Stats struct {
	// Name and Kind identify the endpoint.
	Name string
	Kind TransportKind

	// Capacity is the current buffer size; zero before Run allocates
	// and after teardown frees it.
	Capacity int

	// WritesTotal and BytesTotal count writes delivered into this
	// endpoint over its lifetime. TLSWritesTotal counts the subset
	// that went through a TLS session.
	WritesTotal    uint64
	BytesTotal     uint64
	TLSWritesTotal uint64

	// ReadsTotal and BytesReadTotal are the lifetime hops drained from
	// this endpoint's buffer, folded in from Session at every resize
	// decision. Add Session to get an up-to-the-moment figure.
	ReadsTotal     uint64
	BytesReadTotal uint64

	// Resizes counts reallocations; ResizeFailures counts decisions
	// whose allocation failed and kept the previous buffer.
	Resizes        uint64
	ResizeFailures uint64

	// Session holds the counters accumulated since the last resize
	// decision.
	Session SessionStats
}

// counters is the mutable, lock-protected form of Stats. Its mutex is
// separate from the buffer lock: pumps hold the buffer lock across
// blocking reads, and snapshots must not wait for traffic.
type counters struct {
	mu             sync.Mutex
	writesTotal    uint64
	bytesTotal     uint64
	tlsWritesTotal uint64
	readsTotal     uint64
	bytesReadTotal uint64
	resizes        uint64
	resizeFailures uint64
	session        SessionStats
}

// recordDelivery accounts for bytes written into this endpoint.
func (c *counters) recordDelivery(bytes int, viaTLS bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writesTotal++
	c.bytesTotal += uint64(bytes)
	if viaTLS {
		c.tlsWritesTotal++
	}
}

// recordHop accounts for a hop drained from this endpoint's buffer.
func (c *counters) recordHop(bytes int, saturated bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.Writes++
	c.session.Bytes += uint64(bytes)
	if saturated {
		c.session.MaxCapacityHits++
	}
}

func (c *counters) currentSession() SessionStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// fold moves the session counters into the lifetime totals and starts a
// new session. outcome records what the resize decision did.
func (c *counters) fold(outcome resizeOutcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readsTotal += c.session.Writes
	c.bytesReadTotal += c.session.Bytes
	c.session = SessionStats{}
	switch outcome {
	case resizeApplied:
		c.resizes++
	case resizeFailed:
		c.resizeFailures++
	}
}

func (c *counters) snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		WritesTotal:    c.writesTotal,
		BytesTotal:     c.bytesTotal,
		TLSWritesTotal: c.tlsWritesTotal,
		ReadsTotal:     c.readsTotal,
		BytesReadTotal: c.bytesReadTotal,
		Resizes:        c.resizes,
		ResizeFailures: c.resizeFailures,
		Session:        c.session,
	}
}
