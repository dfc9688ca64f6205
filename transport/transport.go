// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"net"
)

// Listener yields inbound peer connections.
type Listener interface {
	// Accept blocks until a peer connects, ctx is done, or the listener
	// is closed. A closed listener returns net.ErrClosed.
	Accept(ctx context.Context) (net.Conn, error)

	// Address is the address peers use to reach this listener: a
	// host:port for TCP, the node name for WebRTC.
	Address() string

	// Close stops accepting. Connections already returned stay open.
	Close() error
}

// Dialer opens outbound peer connections.
type Dialer interface {
	// DialContext connects to address, which has the form returned by
	// the remote side's Listener.Address.
	DialContext(ctx context.Context, address string) (net.Conn, error)
}
