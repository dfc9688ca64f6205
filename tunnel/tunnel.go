// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package tunnel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jpillora/sizestr"
	"github.com/rs/xid"
)

// State is a tunnel's lifecycle position.
type State int

const (
	// Idle tunnels have been created but not run.
	Idle State = iota
	// Running tunnels are relaying.
	Running
	// Terminated tunnels have released their endpoints and buffers.
	Terminated
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// errClosed is the termination reason of a tunnel stopped by Close.
var errClosed = errors.New("tunnel closed")

// Tunnel relays bytes between two endpoints until either side fails.
type Tunnel struct {
	id            string
	logger        *slog.Logger
	initialBuffer int
	allocate      allocator
	endpoints     [2]*Endpoint

	mu     sync.Mutex
	state  State
	reason error
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Tunnel.
type Option func(*Tunnel)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tunnel) { t.logger = logger }
}

// WithInitialBuffer sets the capacity both buffers are allocated with.
// It must lie within [MinBuffer, MaxBuffer]. Defaults to DefaultBuffer.
func WithInitialBuffer(capacity int) Option {
	return func(t *Tunnel) { t.initialBuffer = capacity }
}

// WithID sets the identifier used in log lines. Defaults to a fresh xid.
func WithID(id string) Option {
	return func(t *Tunnel) { t.id = id }
}

// New pairs two endpoints into an idle tunnel. Endpoint construction
// problems and invalid options are returned as KindConfig errors.
func New(left, right *Endpoint, options ...Option) (*Tunnel, error) {
	t := &Tunnel{
		initialBuffer: DefaultBuffer,
		allocate:      makeBuffer,
		endpoints:     [2]*Endpoint{left, right},
		done:          make(chan struct{}),
	}
	for _, option := range options {
		option(t)
	}
	if t.id == "" {
		t.id = xid.New().String()
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}

	for _, direction := range directions {
		endpoint := t.endpoints[direction]
		if endpoint == nil {
			return nil, configError("", "%s endpoint is nil", direction)
		}
		if endpoint.err != nil {
			return nil, endpoint.err
		}
	}
	if left == right {
		return nil, configError(left.name, "the same endpoint cannot be both sides of a tunnel")
	}
	if t.initialBuffer < MinBuffer || t.initialBuffer > MaxBuffer {
		return nil, configError("", "initial buffer %d outside [%d, %d]", t.initialBuffer, MinBuffer, MaxBuffer)
	}
	return t, nil
}

// ID returns the tunnel's identifier.
func (t *Tunnel) ID() string { return t.id }

// Endpoint returns the endpoint on the given side.
func (t *Tunnel) Endpoint(direction Direction) *Endpoint { return t.endpoints[direction] }

// Run relays until the first terminal event: a failure on either side,
// cancellation of ctx, or Close. It then closes both endpoints, waits for
// in-flight steps to unwind, and releases the buffers. Run may be called
// once.
//
// A tunnel ended by a closed peer, ctx or Close returns nil. Any other
// termination returns the *Error that caused it.
func (t *Tunnel) Run(ctx context.Context) error {
	t.mu.Lock()
	if t.state != Idle {
		state := t.state
		t.mu.Unlock()
		return configError("", "tunnel is %s", state)
	}
	t.state = Running
	ctx, t.cancel = context.WithCancel(ctx)
	t.mu.Unlock()
	defer close(t.done)
	defer t.cancel()

	if err := t.prepare(ctx); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		t.terminate(err)
		return runError(err)
	}

	t.logger.Info("tunnel started",
		"tunnel_id", t.id,
		"left", t.endpoints[Left].name,
		"left_kind", t.endpoints[Left].kind.String(),
		"right", t.endpoints[Right].name,
		"right_kind", t.endpoints[Right].kind.String(),
		"capacity", t.initialBuffer,
	)

	results := make(chan error, len(directions))
	for _, direction := range directions {
		go func() { results <- t.pump(direction) }()
	}

	var reason error
	pending := len(directions)
	select {
	case reason = <-results:
		pending--
	case <-ctx.Done():
		reason = ctx.Err()
	}

	// Closing the endpoints is what unblocks the surviving pump.
	t.closeEndpoints()
	for ; pending > 0; pending-- {
		<-results
	}

	t.terminate(reason)
	return runError(reason)
}

// prepare dials, handshakes and allocates the initial buffers.
func (t *Tunnel) prepare(ctx context.Context) error {
	for _, direction := range directions {
		if err := t.endpoints[direction].prepare(ctx); err != nil {
			return err
		}
	}
	for _, direction := range directions {
		endpoint := t.endpoints[direction]
		if err := endpoint.buffer.allocate(t.initialBuffer, t.allocate); err != nil {
			return &Error{Kind: KindAllocation, Endpoint: endpoint.name, Op: "start", Err: err}
		}
	}
	return nil
}

// pump runs transfer steps for one direction, consulting the resize
// policy after each, until a step fails.
func (t *Tunnel) pump(direction Direction) error {
	for {
		if _, err := t.transfer(direction); err != nil {
			return err
		}
		t.maybeResize(direction)
	}
}

func (t *Tunnel) closeEndpoints() {
	for _, direction := range directions {
		endpoint := t.endpoints[direction]
		if err := endpoint.close(); err != nil {
			t.logger.Debug("closing endpoint",
				"tunnel_id", t.id,
				"endpoint", endpoint.name,
				"error", err,
			)
		}
	}
}

// terminate closes the endpoints, frees the buffers and records the
// reason. It runs exactly once per tunnel, from Run or from Close on a
// tunnel that never ran.
func (t *Tunnel) terminate(reason error) {
	t.closeEndpoints()
	for _, direction := range directions {
		t.endpoints[direction].buffer.free()
	}

	t.mu.Lock()
	t.state = Terminated
	if !errors.Is(t.reason, errClosed) {
		t.reason = reason
	}
	reason = t.reason
	t.mu.Unlock()

	left := t.endpoints[Left].counters.snapshot()
	right := t.endpoints[Right].counters.snapshot()
	attributes := []any{
		"tunnel_id", t.id,
		"reason", describeReason(reason),
		"left_to_right", sizestr.ToString(int64(right.BytesTotal)),
		"right_to_left", sizestr.ToString(int64(left.BytesTotal)),
		"left_writes_total", left.WritesTotal,
		"right_writes_total", right.WritesTotal,
		"left_resizes", left.Resizes,
		"right_resizes", right.Resizes,
	}
	if runError(reason) != nil {
		t.logger.Error("tunnel failed", attributes...)
	} else {
		t.logger.Info("tunnel terminated", attributes...)
	}
}

// Close stops the tunnel and releases its endpoints. On a running tunnel
// it waits for Run to finish tearing down. Close is idempotent and safe
// on a tunnel that was never run.
func (t *Tunnel) Close() error {
	t.mu.Lock()
	switch t.state {
	case Idle:
		t.state = Terminated
		t.mu.Unlock()
		t.terminate(errClosed)
		close(t.done)
		return nil
	case Running:
		t.reason = errClosed
		cancel := t.cancel
		t.mu.Unlock()
		cancel()
		<-t.done
		return nil
	default:
		t.mu.Unlock()
		return nil
	}
}

// Done is closed once the tunnel has terminated.
func (t *Tunnel) Done() <-chan struct{} { return t.done }

// State returns the lifecycle state.
func (t *Tunnel) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Reason returns what terminated the tunnel: the first failure, the
// context error, or an error describing Close. Nil until terminated.
func (t *Tunnel) Reason() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Terminated {
		return nil
	}
	return t.reason
}

// Stats returns a copy of one endpoint's counters. Safe to call at any
// time, including while the tunnel is running.
func (t *Tunnel) Stats(direction Direction) Stats {
	endpoint := t.endpoints[direction]
	stats := endpoint.counters.snapshot()
	stats.Name = endpoint.name
	stats.Kind = endpoint.kind
	stats.Capacity = endpoint.buffer.size()
	return stats
}

// Snapshot is a point-in-time copy of a whole tunnel's statistics.
type Snapshot struct {
	ID    string
	State State
	Left  Stats
	Right Stats
}

// Snapshot returns statistics for both endpoints.
func (t *Tunnel) Snapshot() Snapshot {
	return Snapshot{
		ID:    t.id,
		State: t.State(),
		Left:  t.Stats(Left),
		Right: t.Stats(Right),
	}
}

// runError maps a termination reason onto Run's return value.
func runError(reason error) error {
	switch {
	case reason == nil,
		errors.Is(reason, errClosed),
		errors.Is(reason, context.Canceled),
		errors.Is(reason, context.DeadlineExceeded),
		IsKind(reason, KindPeerClosed):
		return nil
	}
	return reason
}

func describeReason(reason error) string {
	var tunnelErr *Error
	switch {
	case reason == nil:
		return "none"
	case errors.As(reason, &tunnelErr):
		return fmt.Sprintf("%s: %s %s", tunnelErr.Kind, tunnelErr.Endpoint, tunnelErr.Op)
	default:
		return reason.Error()
	}
}
