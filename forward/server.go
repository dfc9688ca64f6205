// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package forward

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jpillora/sizestr"
	"github.com/rs/xid"

	"github.com/burrow-net/burrow/lib/identity"
	"github.com/burrow-net/burrow/lib/pty"
	"github.com/burrow-net/burrow/transport"
	"github.com/burrow-net/burrow/tunnel"
)

const (
	// handshakeTimeout bounds the TLS handshake plus request exchange.
	handshakeTimeout = 15 * time.Second

	// targetDialTimeout bounds the connection to a forward target.
	targetDialTimeout = 10 * time.Second
)

// Server accepts sessions from peers and relays them to local targets.
type Server struct {
	// Listener yields peer connections. Required.
	Listener transport.Listener

	// Identity authenticates this node. Required.
	Identity *identity.Identity

	// Pins restricts peers to these node IDs when no CA is configured.
	// Empty accepts any authenticated peer.
	Pins []string

	// Policy decides which requests are honored.
	Policy Policy

	// Tunnel tunes the per-session relays.
	Tunnel TunnelOptions

	// Logger receives structured log output. If nil, slog.Default() is
	// used. Per-session events are logged at Debug level; refusals at
	// Warn; lifecycle events at Info.
	Logger *slog.Logger

	cancel   context.CancelFunc
	done     chan struct{}
	sessions sync.WaitGroup

	mu     sync.Mutex
	active map[string]*tunnel.Tunnel
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Start begins accepting sessions in the background. It returns an
// error only for an incomplete configuration. The server runs until
// Stop is called or ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if s.Listener == nil {
		return fmt.Errorf("forward server: Listener is required")
	}
	if s.Identity == nil {
		return fmt.Errorf("forward server: Identity is required")
	}

	s.active = make(map[string]*tunnel.Tunnel)
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		s.acceptLoop(ctx)
	}()

	s.logger().Info("forward server started",
		"address", s.Listener.Address(),
		"node_id", s.Identity.ID,
		"services", s.Policy.Services(),
	)
	return nil
}

// Stop closes the listener, ends every live session, and waits for
// them to unwind.
func (s *Server) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.Listener.Close()
	s.Wait()
}

// Wait blocks until the server has stopped.
func (s *Server) Wait() {
	if s.done != nil {
		<-s.done
	}
}

// Sessions returns a snapshot of every live session's tunnel.
func (s *Server) Sessions() []tunnel.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshots := make([]tunnel.Snapshot, 0, len(s.active))
	for _, t := range s.active {
		snapshots = append(snapshots, t.Snapshot())
	}
	slices.SortFunc(snapshots, func(a, b tunnel.Snapshot) int { return strings.Compare(a.ID, b.ID) })
	return snapshots
}

// acceptLoop accepts peer connections until ctx ends, then waits for
// in-flight sessions so that closing done signals full quiescence.
func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.Listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.sessions.Wait()
				return
			}
			s.logger().Error("accept failed", "error", err)
			continue
		}

		s.sessions.Add(1)
		go func() {
			defer s.sessions.Done()
			s.handleConnection(ctx, conn)
		}()
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	logger := s.logger().With("remote", conn.RemoteAddr().String())

	tlsConn, request, err := s.accept(ctx, conn)
	if err != nil {
		logger.Warn("session setup failed", "error", err)
		conn.Close()
		return
	}
	// The peer's session ID only correlates logs across nodes; sessions
	// are tracked under an ID of our own.
	id := xid.New().String()
	logger = logger.With(
		"session_id", id,
		"peer_session_id", request.SessionID,
		"peer_id", identity.PeerID(tlsConn.ConnectionState()),
		"kind", request.Kind,
	)

	target, err := s.open(ctx, request)
	if err != nil {
		logger.Warn("session refused", "target", request.Target, "error", err)
		tlsConn.SetWriteDeadline(time.Now().Add(handshakeTimeout))
		writeMessage(tlsConn, Response{Error: err.Error()})
		tlsConn.Close()
		return
	}

	if err := writeMessage(tlsConn, Response{OK: true}); err != nil {
		logger.Warn("session acceptance not delivered", "error", err)
		tlsConn.Close()
		target.Close()
		return
	}

	peer := tunnel.TLS("peer", tlsConn, s.Tunnel.peer(tunnel.RoleServer)...)
	relay, err := tunnel.New(peer, target.endpoint, s.Tunnel.tunnel(logger, id)...)
	if err != nil {
		logger.Error("creating tunnel failed", "error", err)
		tlsConn.Close()
		target.Close()
		return
	}

	s.track(id, relay)
	defer s.untrack(id)
	defer target.release()

	logger.Info("session started", "target", target.name)
	if err := relay.Run(ctx); err != nil {
		logger.Warn("session ended with error", "error", err)
		return
	}
	left, right := relay.Stats(tunnel.Left), relay.Stats(tunnel.Right)
	logger.Info("session ended",
		"to_target", sizestr.ToString(int64(right.BytesTotal)),
		"to_peer", sizestr.ToString(int64(left.BytesTotal)),
	)
}

// accept runs the TLS handshake and reads the session request.
func (s *Server) accept(ctx context.Context, conn net.Conn) (*tls.Conn, Request, error) {
	ctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	tlsConn := tls.Server(conn, s.Identity.ServerConfig(s.Pins...))
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return nil, Request{}, fmt.Errorf("TLS handshake: %w", err)
	}

	deadline, _ := ctx.Deadline()
	tlsConn.SetReadDeadline(deadline)
	var request Request
	if err := readMessage(tlsConn, &request); err != nil {
		return nil, Request{}, fmt.Errorf("reading request: %w", err)
	}
	tlsConn.SetReadDeadline(time.Time{})

	if request.SessionID == "" {
		return nil, Request{}, fmt.Errorf("request without a session ID")
	}
	return tlsConn, request, nil
}

// sessionTarget is the local side of a session.
type sessionTarget struct {
	name     string
	endpoint *tunnel.Endpoint

	// close releases the underlying handle of a target whose tunnel
	// never ran; a running tunnel closes it itself.
	close func() error

	// release runs once the tunnel has ended.
	release func()
}

// Close releases a target whose tunnel never ran.
func (t *sessionTarget) Close() error {
	err := t.close()
	t.release()
	return err
}

// open authorizes request and connects its target.
func (s *Server) open(ctx context.Context, request Request) (*sessionTarget, error) {
	address, err := s.Policy.Authorize(request)
	if err != nil {
		return nil, err
	}

	if request.Kind == KindShell {
		return s.startShell(request)
	}

	dialer := transport.TCPDialer{Timeout: targetDialTimeout}
	conn, err := dialer.DialContext(ctx, address)
	if err != nil {
		return nil, err
	}
	return &sessionTarget{
		name:     address,
		endpoint: tunnel.Socket("target", conn, s.Tunnel.endpoint()...),
		close:    conn.Close,
		release:  func() {},
	}, nil
}

// shellExitGrace is how long a shell gets to exit after its terminal
// hangs up before it is killed.
const shellExitGrace = 5 * time.Second

func (s *Server) startShell(request Request) (*sessionTarget, error) {
	columns, rows := request.Columns, request.Rows
	if columns == 0 || rows == 0 {
		columns, rows = 80, 24
	}
	term := request.Term
	if term == "" {
		term = "xterm-256color"
	}

	cmd := exec.Command(s.Policy.Shell, s.Policy.ShellArgs...)
	cmd.Env = append(os.Environ(), "TERM="+term, "BURROW_SESSION="+request.SessionID)
	master, err := pty.Start(cmd, columns, rows)
	if err != nil {
		return nil, fmt.Errorf("starting shell: %w", err)
	}

	logger := s.logger().With("peer_session_id", request.SessionID, "pid", cmd.Process.Pid)
	release := func() {
		exited := make(chan error, 1)
		go func() { exited <- cmd.Wait() }()

		var err error
		select {
		case err = <-exited:
		case <-time.After(shellExitGrace):
			logger.Warn("shell ignored hangup, killing it")
			cmd.Process.Kill()
			err = <-exited
		}
		if err != nil && !pty.IsNormalExit(err) {
			logger.Warn("shell exited abnormally", "error", err)
			return
		}
		logger.Debug("shell exited")
	}
	return &sessionTarget{
		name:     s.Policy.Shell,
		endpoint: tunnel.PTY("shell", master, s.Tunnel.endpoint()...),
		close:    master.Close,
		release:  release,
	}, nil
}

func (s *Server) track(id string, relay *tunnel.Tunnel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[id] = relay
}

func (s *Server) untrack(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, id)
}
