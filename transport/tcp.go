// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"net"
	"time"
)

// Compile-time interface checks.
var (
	_ Listener = (*TCPListener)(nil)
	_ Dialer   = (*TCPDialer)(nil)
)

// TCPListener accepts peer connections on a TCP socket.
type TCPListener struct {
	listener *net.TCPListener
}

// NewTCPListener binds address. Use "127.0.0.1:0" for an ephemeral
// port; Address reports the bound one.
func NewTCPListener(address string) (*TCPListener, error) {
	resolved, err := net.ResolveTCPAddr("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", address, err)
	}
	listener, err := net.ListenTCP("tcp", resolved)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", address, err)
	}
	return &TCPListener{listener: listener}, nil
}

// Accept waits for the next connection. Cancelling ctx interrupts the
// wait through the listener deadline and leaves the listener usable.
func (l *TCPListener) Accept(ctx context.Context) (net.Conn, error) {
	stop := context.AfterFunc(ctx, func() {
		l.listener.SetDeadline(time.Now())
	})
	conn, err := l.listener.Accept()
	if !stop() {
		l.listener.SetDeadline(time.Time{})
		if err != nil {
			return nil, ctx.Err()
		}
	}
	return conn, err
}

// Address returns the bound host:port.
func (l *TCPListener) Address() string {
	return l.listener.Addr().String()
}

// Close stops the listener.
func (l *TCPListener) Close() error {
	return l.listener.Close()
}

// TCPDialer dials peers over TCP.
type TCPDialer struct {
	// Timeout bounds connection establishment. Zero means 10 seconds.
	Timeout time.Duration

	// KeepAlive is the TCP keep-alive period. Zero uses the net
	// package default; negative disables keep-alives.
	KeepAlive time.Duration
}

// DialContext connects to address (host:port).
func (d *TCPDialer) DialContext(ctx context.Context, address string) (net.Conn, error) {
	timeout := d.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	dialer := net.Dialer{Timeout: timeout, KeepAlive: d.KeepAlive}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", address, err)
	}
	return conn, nil
}
