// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package forward

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/jpillora/backoff"
	"github.com/rs/xid"

	"github.com/burrow-net/burrow/lib/identity"
	"github.com/burrow-net/burrow/transport"
	"github.com/burrow-net/burrow/tunnel"
)

// RejectedError is returned when the serving node refuses a request.
type RejectedError struct {
	Peer   string
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s refused the session: %s", e.Peer, e.Reason)
}

// Peer names the node a client session connects to.
type Peer struct {
	// Dialer carries the connection. Required.
	Dialer transport.Dialer

	// Address is passed to Dialer: host:port for TCP, the node name
	// for WebRTC. Required.
	Address string

	// Identity authenticates this node. Required.
	Identity *identity.Identity

	// Pins restricts the remote node to these IDs when no CA is
	// configured.
	Pins []string

	// DialAttempts is how many times a failed dial is tried. Zero
	// means 5.
	DialAttempts int

	// MaxRetryInterval caps the backoff between attempts. Zero means
	// 5 seconds.
	MaxRetryInterval time.Duration
}

func (p *Peer) validate() error {
	if p.Dialer == nil {
		return fmt.Errorf("peer Dialer is required")
	}
	if p.Address == "" {
		return fmt.Errorf("peer Address is required")
	}
	if p.Identity == nil {
		return fmt.Errorf("peer Identity is required")
	}
	return nil
}

// dial connects to the peer, retrying with exponential backoff.
func (p *Peer) dial(ctx context.Context, logger *slog.Logger) (net.Conn, error) {
	attempts := p.DialAttempts
	if attempts <= 0 {
		attempts = 5
	}
	retry := &backoff.Backoff{Min: 200 * time.Millisecond, Max: p.MaxRetryInterval, Factor: 2, Jitter: true}
	if retry.Max <= 0 {
		retry.Max = 5 * time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		conn, err := p.Dialer.DialContext(ctx, p.Address)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if ctx.Err() != nil || attempt == attempts {
			break
		}
		delay := retry.Duration()
		logger.Debug("peer dial failed, retrying",
			"peer", p.Address,
			"attempt", attempt,
			"retry_in", delay.String(),
			"error", err,
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, fmt.Errorf("dialing %s: %w", p.Address, lastErr)
}

// open dials the peer, authenticates it, and has request accepted. The
// returned connection is ready to carry tunnel bytes.
func (p *Peer) open(ctx context.Context, request Request, logger *slog.Logger) (*tls.Conn, error) {
	conn, err := p.dial(ctx, logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	tlsConn := tls.Client(conn, p.Identity.ClientConfig(p.Pins...))
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("TLS handshake with %s: %w", p.Address, err)
	}

	deadline, _ := ctx.Deadline()
	tlsConn.SetDeadline(deadline)
	if err := writeMessage(tlsConn, request); err != nil {
		tlsConn.Close()
		return nil, fmt.Errorf("sending request: %w", err)
	}
	var response Response
	if err := readMessage(tlsConn, &response); err != nil {
		tlsConn.Close()
		return nil, fmt.Errorf("reading response: %w", err)
	}
	tlsConn.SetDeadline(time.Time{})

	if !response.OK {
		tlsConn.Close()
		return nil, &RejectedError{Peer: p.Address, Reason: response.Error}
	}
	return tlsConn, nil
}

// ShellSession configures an interactive remote shell.
type ShellSession struct {
	Peer Peer

	// Input and Output are the local terminal. Both are closed when
	// the session ends; Input must unblock a pending Read on Close.
	Input  io.ReadCloser
	Output io.WriteCloser

	// Columns, Rows and Term describe the local terminal.
	Columns uint16
	Rows    uint16
	Term    string

	Tunnel TunnelOptions
	Logger *slog.Logger
}

// Shell runs one remote shell session, relaying Input to the remote
// PTY and its output to Output, until either side ends. It returns nil
// when the remote shell exits or ctx is cancelled.
func Shell(ctx context.Context, session ShellSession) error {
	closeLocal := func() {
		if session.Input != nil {
			session.Input.Close()
		}
		if session.Output != nil {
			session.Output.Close()
		}
	}
	if err := session.Peer.validate(); err != nil {
		closeLocal()
		return err
	}
	logger := session.Logger
	if logger == nil {
		logger = slog.Default()
	}

	request := Request{
		Kind:      KindShell,
		Columns:   session.Columns,
		Rows:      session.Rows,
		Term:      session.Term,
		SessionID: xid.New().String(),
	}
	logger = logger.With("session_id", request.SessionID, "peer", session.Peer.Address)

	tlsConn, err := session.Peer.open(ctx, request, logger)
	if err != nil {
		closeLocal()
		return err
	}

	local := tunnel.Stdio("terminal", session.Input, session.Output, session.Tunnel.endpoint()...)
	remote := tunnel.TLS("peer", tlsConn, session.Tunnel.peer(tunnel.RoleClient)...)
	relay, err := tunnel.New(local, remote, session.Tunnel.tunnel(logger, request.SessionID)...)
	if err != nil {
		tlsConn.Close()
		closeLocal()
		return err
	}
	return relay.Run(ctx)
}
