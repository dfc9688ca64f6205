// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package forward

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/rs/xid"

	"github.com/burrow-net/burrow/tunnel"
)

// Forwarder exposes a target on a remote node as a local TCP port. Each
// local connection opens its own session to the peer.
type Forwarder struct {
	// ListenAddr is the local TCP address to listen on (e.g.
	// "127.0.0.1:2222").
	ListenAddr string

	// Peer is the node that reaches the target.
	Peer Peer

	// Kind is KindTCP or KindSSH.
	Kind Kind

	// Target is the host:port as seen from the peer. Optional for SSH.
	Target string

	// Tunnel tunes the per-connection relays.
	Tunnel TunnelOptions

	// Logger receives structured log output. If nil, slog.Default() is
	// used. Per-connection events are logged at Debug level; errors and
	// lifecycle events at Info/Error.
	Logger *slog.Logger

	listener    net.Listener
	cancel      context.CancelFunc
	done        chan struct{}
	connections sync.WaitGroup
}

func (f *Forwarder) logger() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.Default()
}

// Start begins listening for local connections and forwarding them to
// the peer. It returns once the listener is bound and accepting, or
// returns an error if the configuration is incomplete or binding
// fails. The forwarder runs in the background until Stop is called or
// the context is cancelled.
func (f *Forwarder) Start(ctx context.Context) error {
	if f.ListenAddr == "" {
		return fmt.Errorf("forwarder: ListenAddr is required")
	}
	if err := f.Peer.validate(); err != nil {
		return fmt.Errorf("forwarder: %w", err)
	}
	switch f.Kind {
	case KindTCP:
		if f.Target == "" {
			return fmt.Errorf("forwarder: Target is required for tcp forwards")
		}
	case KindSSH:
	default:
		return fmt.Errorf("forwarder: cannot forward kind %q", f.Kind)
	}

	listener, err := net.Listen("tcp", f.ListenAddr)
	if err != nil {
		return fmt.Errorf("forwarder: failed to listen on %s: %w", f.ListenAddr, err)
	}
	f.listener = listener

	ctx, f.cancel = context.WithCancel(ctx)
	f.done = make(chan struct{})

	go func() {
		defer close(f.done)
		f.acceptLoop(ctx)
	}()

	f.logger().Info("forwarder started",
		"listen_addr", listener.Addr().String(),
		"peer", f.Peer.Address,
		"kind", f.Kind,
		"target", f.Target,
	)
	return nil
}

// Addr returns the listener's address, useful when binding to port 0.
// Returns nil if the forwarder has not been started.
func (f *Forwarder) Addr() net.Addr {
	if f.listener == nil {
		return nil
	}
	return f.listener.Addr()
}

// Stop closes the listener, ends every live session, and waits for
// them to unwind.
func (f *Forwarder) Stop() {
	if f.cancel != nil {
		f.cancel()
	}
	if f.listener != nil {
		f.listener.Close()
	}
	f.Wait()
}

// Wait blocks until the forwarder has stopped.
func (f *Forwarder) Wait() {
	if f.done != nil {
		<-f.done
	}
}

func (f *Forwarder) acceptLoop(ctx context.Context) {
	stop := context.AfterFunc(ctx, func() { f.listener.Close() })
	defer stop()

	for {
		conn, err := f.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				f.connections.Wait()
				return
			}
			f.logger().Error("accept failed", "error", err)
			continue
		}

		f.connections.Add(1)
		go func() {
			defer f.connections.Done()
			f.handleConnection(ctx, conn)
		}()
	}
}

func (f *Forwarder) handleConnection(ctx context.Context, local net.Conn) {
	request := Request{Kind: f.Kind, Target: f.Target, SessionID: xid.New().String()}
	logger := f.logger().With(
		"session_id", request.SessionID,
		"local_addr", local.RemoteAddr().String(),
	)
	logger.Debug("connection accepted")

	remote, err := f.Peer.open(ctx, request, logger)
	if err != nil {
		local.Close()
		var rejected *RejectedError
		if errors.As(err, &rejected) {
			logger.Warn("peer refused forward", "reason", rejected.Reason)
			return
		}
		if ctx.Err() == nil {
			logger.Error("opening session failed", "error", err)
		}
		return
	}

	relay, err := tunnel.New(
		tunnel.Socket("local", local, f.Tunnel.endpoint()...),
		tunnel.TLS("peer", remote, f.Tunnel.peer(tunnel.RoleClient)...),
		f.Tunnel.tunnel(logger, request.SessionID)...,
	)
	if err != nil {
		logger.Error("creating tunnel failed", "error", err)
		local.Close()
		remote.Close()
		return
	}
	if err := relay.Run(ctx); err != nil {
		logger.Warn("forward ended with error", "error", err)
		return
	}
	logger.Debug("connection closed")
}
