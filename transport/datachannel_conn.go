// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"io"
	"net"
	"os"
	"sync"
	"time"
)

// Data channel messages are bounded by the SCTP max message size the
// peers negotiate. Writes are split into chunks well under the common
// 64 KiB limit, and reads use a buffer large enough for any message a
// peer may send.
const (
	dataChannelChunk      = 16 * 1024
	dataChannelReadBuffer = 64 * 1024
)

// DataChannelConn presents a detached pion data channel as a net.Conn.
// The stream is ordered and reliable, so it behaves like a TCP
// connection to TLS and the tunnel engine.
//
// Read deadlines are real: an expired deadline fails the pending Read
// with os.ErrDeadlineExceeded and leaves the connection usable, which
// the tunnel's TLS polling relies on. A background reader owns the
// underlying stream; Read hands out what it delivers.
type DataChannelConn struct {
	rwc    io.ReadWriteCloser
	local  dataChannelAddr
	remote dataChannelAddr

	reads chan chunk

	readMu  sync.Mutex
	pending []byte
	readErr error

	writeMu sync.Mutex

	readDeadline  deadline
	writeDeadline deadline

	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// chunk is one result from the background reader.
type chunk struct {
	data []byte
	err  error
}

var _ net.Conn = (*DataChannelConn)(nil)

// NewDataChannelConn wraps a detached data channel. The labels name
// the two ends in LocalAddr and RemoteAddr.
func NewDataChannelConn(rwc io.ReadWriteCloser, localLabel, peerLabel string) *DataChannelConn {
	c := &DataChannelConn{
		rwc:           rwc,
		local:         dataChannelAddr{label: localLabel},
		remote:        dataChannelAddr{label: peerLabel},
		reads:         make(chan chunk),
		readDeadline:  newDeadline(),
		writeDeadline: newDeadline(),
		closed:        make(chan struct{}),
	}
	go c.receive()
	return c
}

func (c *DataChannelConn) receive() {
	for {
		buffer := make([]byte, dataChannelReadBuffer)
		n, err := c.rwc.Read(buffer)
		select {
		case c.reads <- chunk{data: buffer[:n], err: err}:
		case <-c.closed:
			return
		}
		if err != nil {
			return
		}
	}
}

func (c *DataChannelConn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if len(c.pending) > 0 {
		n := copy(p, c.pending)
		c.pending = c.pending[n:]
		return n, nil
	}
	if c.readErr != nil {
		return 0, c.readErr
	}

	select {
	case <-c.closed:
		return 0, net.ErrClosed
	case <-c.readDeadline.wait():
		return 0, os.ErrDeadlineExceeded
	default:
	}

	select {
	case <-c.closed:
		return 0, net.ErrClosed
	case <-c.readDeadline.wait():
		return 0, os.ErrDeadlineExceeded
	case received := <-c.reads:
		n := copy(p, received.data)
		c.pending = received.data[n:]
		if received.err != nil {
			c.readErr = received.err
			if n == 0 {
				return 0, received.err
			}
		}
		return n, nil
	}
}

// Write sends p as one or more data channel messages. A write already
// handed to the channel is not interrupted by a deadline.
func (c *DataChannelConn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	written := 0
	for written < len(p) {
		select {
		case <-c.closed:
			return written, net.ErrClosed
		case <-c.writeDeadline.wait():
			return written, os.ErrDeadlineExceeded
		default:
		}
		end := min(written+dataChannelChunk, len(p))
		n, err := c.rwc.Write(p[written:end])
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// Close closes the data channel. Pending reads return net.ErrClosed.
func (c *DataChannelConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.closeErr = c.rwc.Close()
		c.readDeadline.set(time.Time{})
		c.writeDeadline.set(time.Time{})
	})
	return c.closeErr
}

// LocalAddr returns a synthetic address naming the local end.
func (c *DataChannelConn) LocalAddr() net.Addr { return &c.local }

// RemoteAddr returns a synthetic address naming the remote end.
func (c *DataChannelConn) RemoteAddr() net.Addr { return &c.remote }

func (c *DataChannelConn) SetDeadline(t time.Time) error {
	c.readDeadline.set(t)
	c.writeDeadline.set(t)
	return nil
}

func (c *DataChannelConn) SetReadDeadline(t time.Time) error {
	c.readDeadline.set(t)
	return nil
}

func (c *DataChannelConn) SetWriteDeadline(t time.Time) error {
	c.writeDeadline.set(t)
	return nil
}

// deadline is a resettable expiry signal. wait returns a channel that
// is closed once the deadline has passed.
type deadline struct {
	mu      sync.Mutex
	timer   *time.Timer
	expired chan struct{}
}

func newDeadline() deadline {
	return deadline{expired: make(chan struct{})}
}

func (d *deadline) set(t time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil && !d.timer.Stop() {
		// The timer fired; its close has run or is about to.
		<-d.expired
	}
	d.timer = nil

	fired := isClosed(d.expired)
	if t.IsZero() {
		if fired {
			d.expired = make(chan struct{})
		}
		return
	}

	if remaining := time.Until(t); remaining > 0 {
		if fired {
			d.expired = make(chan struct{})
		}
		expired := d.expired
		d.timer = time.AfterFunc(remaining, func() { close(expired) })
		return
	}

	if !fired {
		close(d.expired)
	}
}

func (d *deadline) wait() chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.expired
}

func isClosed(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// dataChannelAddr is the synthetic net.Addr of a data channel end.
type dataChannelAddr struct {
	label string
}

func (a *dataChannelAddr) Network() string { return "webrtc" }
func (a *dataChannelAddr) String() string  { return a.label }
