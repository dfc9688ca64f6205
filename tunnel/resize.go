// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package tunnel

const (
	// MinBuffer is the smallest buffer the resize policy will choose.
	MinBuffer = 16

	// MaxBuffer is the largest buffer the resize policy will choose.
	MaxBuffer = 4096 * 128

	// DefaultBuffer is the capacity both buffers start with.
	DefaultBuffer = 4096

	// ResizeInterval is the number of hops a buffer must carry before
	// the policy looks at it again.
	ResizeInterval = 64
)

// Decide returns the buffer capacity the resize policy picks for a
// buffer of the given capacity after the given session. Reads that fill
// the buffer on more than 80% of hops triple it, more than 50% double
// it; otherwise the buffer is sized at 1.2x the average hop, which may
// shrink it. The result is always within [MinBuffer, MaxBuffer].
func Decide(session SessionStats, capacity int) int {
	if session.Writes == 0 {
		return clampCapacity(capacity)
	}
	hits, writes := session.MaxCapacityHits, session.Writes
	switch {
	case hits*10 > writes*8:
		return clampCapacity(capacity * 3)
	case hits*2 > writes:
		return clampCapacity(capacity * 2)
	default:
		return clampCapacity(int(session.Average() * 6 / 5))
	}
}

func clampCapacity(capacity int) int {
	return min(max(capacity, MinBuffer), MaxBuffer)
}

type resizeOutcome int

const (
	resizeSkipped resizeOutcome = iota
	resizeApplied
	resizeFailed
)

// maybeResize runs the resize policy for one endpoint's buffer. It is
// called by the endpoint's own pump between transfer steps, so it never
// overlaps a read into the same buffer; it still takes the buffer lock
// for the swap.
func (t *Tunnel) maybeResize(direction Direction) {
	endpoint := t.endpoints[direction]
	if !endpoint.autosize {
		return
	}
	session := endpoint.counters.currentSession()
	if session.Writes < ResizeInterval {
		return
	}
	// A buffer at MaxBuffer is left alone and keeps its session.
	current := endpoint.buffer.size()
	if current >= MaxBuffer {
		return
	}

	next := Decide(session, current)
	outcome := resizeSkipped
	if next != current {
		if err := endpoint.buffer.allocate(next, t.allocate); err != nil {
			outcome = resizeFailed
			t.logger.Warn("buffer resize failed, keeping current buffer",
				"tunnel_id", t.id,
				"endpoint", endpoint.name,
				"capacity", current,
				"requested", next,
				"error", &Error{Kind: KindAllocation, Endpoint: endpoint.name, Op: "resize", Err: err},
			)
		} else {
			outcome = resizeApplied
			t.logger.Debug("buffer resized",
				"tunnel_id", t.id,
				"endpoint", endpoint.name,
				"from", current,
				"to", next,
				"writes", session.Writes,
				"average", session.Average(),
				"saturated", session.MaxCapacityHits,
			)
		}
	}
	endpoint.counters.fold(outcome)
}
