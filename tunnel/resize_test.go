// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package tunnel

import (
	"errors"
	"math/rand/v2"
	"net"
	"testing"
)

func TestDecide(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		session  SessionStats
		capacity int
		want     int
	}{
		{
			name:     "saturated on 90% of reads triples",
			session:  SessionStats{Writes: 100, Bytes: 100 * 4096, MaxCapacityHits: 90},
			capacity: 4096,
			want:     12288,
		},
		{
			name:     "saturated on 60% of reads doubles",
			session:  SessionStats{Writes: 100, Bytes: 80 * 4096, MaxCapacityHits: 60},
			capacity: 4096,
			want:     8192,
		},
		{
			name:     "saturated on 20% of reads sizes to 1.2x average",
			session:  SessionStats{Writes: 100, Bytes: 100 * 100, MaxCapacityHits: 20},
			capacity: 4096,
			want:     120,
		},
		{
			name:     "exactly 80% doubles",
			session:  SessionStats{Writes: 100, Bytes: 100 * 4096, MaxCapacityHits: 80},
			capacity: 4096,
			want:     8192,
		},
		{
			name:     "exactly 50% sizes to average",
			session:  SessionStats{Writes: 100, Bytes: 100 * 1000, MaxCapacityHits: 50},
			capacity: 4096,
			want:     1200,
		},
		{
			name:     "tripling clamps to maximum",
			session:  SessionStats{Writes: 64, Bytes: 64 * 262144, MaxCapacityHits: 64},
			capacity: 262144,
			want:     MaxBuffer,
		},
		{
			name:     "tiny hops clamp to minimum",
			session:  SessionStats{Writes: 64, Bytes: 64},
			capacity: 4096,
			want:     MinBuffer,
		},
		{
			name:     "maximum buffer shrinks when underused",
			session:  SessionStats{Writes: 64, Bytes: 64 * 1000},
			capacity: MaxBuffer,
			want:     1200,
		},
		{
			name:     "no hops keeps capacity",
			session:  SessionStats{},
			capacity: 4096,
			want:     4096,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := Decide(test.session, test.capacity); got != test.want {
				t.Errorf("Decide(%+v, %d) = %d, want %d", test.session, test.capacity, got, test.want)
			}
		})
	}
}

func TestDecideStaysWithinBounds(t *testing.T) {
	t.Parallel()

	random := rand.New(rand.NewPCG(1, 2))
	capacity := DefaultBuffer
	for step := range 10000 {
		writes := uint64(ResizeInterval + random.IntN(200))
		hits := uint64(random.IntN(int(writes) + 1))
		// Average hop never exceeds the capacity it was read into.
		bytes := writes * uint64(random.IntN(capacity)+1)
		session := SessionStats{Writes: writes, Bytes: bytes, MaxCapacityHits: hits}

		next := Decide(session, capacity)
		if next < MinBuffer || next > MaxBuffer {
			t.Fatalf("step %d: Decide(%+v, %d) = %d, outside [%d, %d]",
				step, session, capacity, next, MinBuffer, MaxBuffer)
		}
		capacity = next
	}
}

// idleTunnel returns a tunnel that has not run, with both buffers
// allocated at capacity.
func idleTunnel(t *testing.T, capacity int, options ...EndpointOption) *Tunnel {
	t.Helper()
	leftConn, leftPeer := net.Pipe()
	rightConn, rightPeer := net.Pipe()
	t.Cleanup(func() {
		leftPeer.Close()
		rightPeer.Close()
	})
	tun, err := New(Socket("left", leftConn, options...), Socket("right", rightConn, options...), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { tun.Close() })
	for _, direction := range directions {
		if err := tun.endpoints[direction].buffer.allocate(capacity, makeBuffer); err != nil {
			t.Fatalf("allocate: %v", err)
		}
	}
	return tun
}

func setSession(tun *Tunnel, direction Direction, session SessionStats) {
	counters := &tun.endpoints[direction].counters
	counters.mu.Lock()
	counters.session = session
	counters.mu.Unlock()
}

func TestMaybeResizeWaitsForInterval(t *testing.T) {
	t.Parallel()

	tun := idleTunnel(t, 4096)
	session := SessionStats{Writes: ResizeInterval - 1, Bytes: (ResizeInterval - 1) * 4096, MaxCapacityHits: ResizeInterval - 1}
	setSession(tun, Left, session)

	tun.maybeResize(Left)

	stats := tun.Stats(Left)
	if stats.Capacity != 4096 {
		t.Errorf("capacity = %d, want 4096", stats.Capacity)
	}
	if stats.Session != session {
		t.Errorf("session = %+v, want untouched %+v", stats.Session, session)
	}
}

func TestMaybeResizeLeavesMaxBufferAlone(t *testing.T) {
	t.Parallel()

	tun := idleTunnel(t, MaxBuffer)
	session := SessionStats{Writes: ResizeInterval, Bytes: ResizeInterval * 100}
	setSession(tun, Left, session)

	tun.maybeResize(Left)

	stats := tun.Stats(Left)
	if stats.Capacity != MaxBuffer {
		t.Errorf("capacity = %d, want %d", stats.Capacity, MaxBuffer)
	}
	if stats.Resizes != 0 {
		t.Errorf("resizes = %d, want 0", stats.Resizes)
	}
	if stats.Session != session {
		t.Errorf("session = %+v, want untouched %+v", stats.Session, session)
	}
}

func TestMaybeResizeFoldsSession(t *testing.T) {
	t.Parallel()

	tun := idleTunnel(t, 4096)
	setSession(tun, Left, SessionStats{Writes: 64, Bytes: 64 * 4096, MaxCapacityHits: 60})

	tun.maybeResize(Left)

	stats := tun.Stats(Left)
	if stats.Capacity != 12288 {
		t.Errorf("capacity = %d, want 12288", stats.Capacity)
	}
	if len(tun.endpoints[Left].buffer.data) != 12288 {
		t.Errorf("buffer length = %d, want 12288", len(tun.endpoints[Left].buffer.data))
	}
	if stats.Resizes != 1 {
		t.Errorf("resizes = %d, want 1", stats.Resizes)
	}
	if stats.ReadsTotal != 64 || stats.BytesReadTotal != 64*4096 {
		t.Errorf("lifetime reads = %d / %d bytes, want 64 / %d", stats.ReadsTotal, stats.BytesReadTotal, 64*4096)
	}
	if stats.Session != (SessionStats{}) {
		t.Errorf("session = %+v, want reset", stats.Session)
	}
	if right := tun.Stats(Right); right.Capacity != 4096 || right.Resizes != 0 {
		t.Errorf("right endpoint changed: capacity %d, resizes %d", right.Capacity, right.Resizes)
	}
}

func TestMaybeResizeUnchangedCapacityResetsSession(t *testing.T) {
	t.Parallel()

	tun := idleTunnel(t, 120)
	region := &tun.endpoints[Left].buffer.data[0]
	setSession(tun, Left, SessionStats{Writes: 100, Bytes: 100 * 100, MaxCapacityHits: 20})

	tun.maybeResize(Left)

	stats := tun.Stats(Left)
	if stats.Capacity != 120 {
		t.Errorf("capacity = %d, want 120", stats.Capacity)
	}
	if &tun.endpoints[Left].buffer.data[0] != region {
		t.Error("buffer was reallocated for an unchanged capacity")
	}
	if stats.Resizes != 0 {
		t.Errorf("resizes = %d, want 0", stats.Resizes)
	}
	if stats.Session != (SessionStats{}) || stats.ReadsTotal != 100 {
		t.Errorf("session = %+v, reads total = %d; want reset and folded", stats.Session, stats.ReadsTotal)
	}
}

func TestMaybeResizeAllocationFailureKeepsBuffer(t *testing.T) {
	t.Parallel()

	tun := idleTunnel(t, 4096)
	tun.allocate = func(int) ([]byte, error) { return nil, errors.New("out of memory") }
	setSession(tun, Left, SessionStats{Writes: 64, Bytes: 64 * 4096, MaxCapacityHits: 64})

	tun.maybeResize(Left)

	stats := tun.Stats(Left)
	if stats.Capacity != 4096 || len(tun.endpoints[Left].buffer.data) != 4096 {
		t.Errorf("capacity = %d, want previous 4096", stats.Capacity)
	}
	if stats.ResizeFailures != 1 || stats.Resizes != 0 {
		t.Errorf("resize failures = %d, resizes = %d; want 1, 0", stats.ResizeFailures, stats.Resizes)
	}
	if stats.Session != (SessionStats{}) {
		t.Errorf("session = %+v, want reset after a failed decision", stats.Session)
	}
}

func TestMaybeResizeAutosizeDisabled(t *testing.T) {
	t.Parallel()

	tun := idleTunnel(t, 4096, WithAutosize(false))
	session := SessionStats{Writes: 200, Bytes: 200 * 4096, MaxCapacityHits: 200}
	setSession(tun, Left, session)

	tun.maybeResize(Left)

	stats := tun.Stats(Left)
	if stats.Capacity != 4096 || stats.Session != session {
		t.Errorf("capacity = %d, session = %+v; want policy skipped", stats.Capacity, stats.Session)
	}
}

func TestSessionAverage(t *testing.T) {
	t.Parallel()

	if got := (SessionStats{}).Average(); got != 0 {
		t.Errorf("empty session average = %d, want 0", got)
	}
	if got := (SessionStats{Writes: 4, Bytes: 1000}).Average(); got != 250 {
		t.Errorf("average = %d, want 250", got)
	}
}
