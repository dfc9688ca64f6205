// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package signaling

import (
	"net"
	"sync"
	"time"

	"github.com/burrow-net/burrow/lib/codec"
)

// op names a broker protocol frame.
type op string

const (
	// opHello is the first frame a client sends, naming its node.
	opHello op = "hello"

	opSubscribe   op = "subscribe"
	opUnsubscribe op = "unsubscribe"
	opPublish     op = "publish"

	// opDeliver carries an envelope from the broker to a subscriber.
	opDeliver op = "deliver"
)

// frame is one item of the CBOR stream exchanged with a broker. CBOR
// items are self-delimiting, so frames need no length prefix.
type frame struct {
	Op       op        `cbor:"op"`
	Node     string    `cbor:"node,omitempty"`
	Pattern  string    `cbor:"pattern,omitempty"`
	Envelope *Envelope `cbor:"envelope,omitempty"`
}

// frameWriteTimeout bounds a single frame write.
const frameWriteTimeout = 10 * time.Second

// frameConn serializes frame writes on a connection.
type frameConn struct {
	conn net.Conn

	mu      sync.Mutex
	encoder *codec.Encoder
}

func newFrameConn(conn net.Conn) *frameConn {
	return &frameConn{conn: conn, encoder: codec.NewEncoder(conn)}
}

func (c *frameConn) send(f frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(frameWriteTimeout))
	return c.encoder.Encode(f)
}
