// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package signaling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/burrow-net/burrow/lib/codec"
	"github.com/burrow-net/burrow/lib/netutil"
)

// sessionQueue is how many deliveries may wait for a slow client before
// the broker starts dropping messages addressed to it.
const sessionQueue = 256

// Broker relays envelopes between [Client] connections. Each client
// sends a hello frame naming its node, then any mix of subscribe,
// unsubscribe and publish frames. Every published envelope is delivered
// once to each connection holding at least one matching pattern,
// including the publisher's own.
type Broker struct {
	// Logger receives connection lifecycle events. Nil means
	// slog.Default().
	Logger *slog.Logger

	mu       sync.Mutex
	sessions map[*brokerSession]struct{}

	active sync.WaitGroup
}

type brokerSession struct {
	conn     *frameConn
	node     string
	outbound chan frame
	done     chan struct{}

	mu       sync.Mutex
	patterns map[string]int
}

func (b *Broker) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}

// ListenAndServe listens on address and calls [Broker.Serve].
func (b *Broker) ListenAndServe(ctx context.Context, address string) error {
	var config net.ListenConfig
	listener, err := config.Listen(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", address, err)
	}
	return b.Serve(ctx, listener)
}

// Serve accepts client connections until ctx is cancelled, then closes
// every session and waits for their goroutines to finish. The listener
// is closed on return.
func (b *Broker) Serve(ctx context.Context, listener net.Listener) error {
	defer listener.Close()

	stop := context.AfterFunc(ctx, func() { listener.Close() })
	defer stop()

	b.logger().Info("signaling broker listening", "address", listener.Addr().String())

	var acceptErr error
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
				acceptErr = fmt.Errorf("accepting broker connection: %w", err)
			}
			break
		}

		b.active.Add(1)
		go func() {
			defer b.active.Done()
			b.handle(ctx, conn)
		}()
	}

	b.mu.Lock()
	for session := range b.sessions {
		session.conn.conn.Close()
	}
	b.mu.Unlock()
	b.active.Wait()
	return acceptErr
}

func (b *Broker) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()
	decoder := codec.NewDecoder(conn)

	var hello frame
	if err := decoder.Decode(&hello); err != nil || hello.Op != opHello || hello.Node == "" {
		b.logger().Warn("signaling client did not say hello", "remote", remote, "error", err)
		return
	}

	session := &brokerSession{
		conn:     newFrameConn(conn),
		node:     hello.Node,
		outbound: make(chan frame, sessionQueue),
		done:     make(chan struct{}),
		patterns: make(map[string]int),
	}
	b.register(session)
	defer b.unregister(session)

	logger := b.logger().With("node", session.node, "remote", remote)
	logger.Info("signaling client connected")

	var writer sync.WaitGroup
	writer.Add(1)
	go func() {
		defer writer.Done()
		session.write(logger)
	}()
	defer writer.Wait()
	defer close(session.done)

	for {
		var incoming frame
		if err := decoder.Decode(&incoming); err != nil {
			if ctx.Err() != nil || netutil.IsExpectedCloseError(err) {
				logger.Info("signaling client disconnected")
			} else {
				logger.Warn("signaling client read failed", "error", err)
			}
			return
		}
		if err := b.dispatch(session, incoming); err != nil {
			logger.Warn("rejected signaling frame", "op", incoming.Op, "error", err)
		}
	}
}

func (b *Broker) dispatch(session *brokerSession, incoming frame) error {
	switch incoming.Op {
	case opSubscribe:
		if err := validPattern(incoming.Pattern); err != nil {
			return err
		}
		session.mu.Lock()
		session.patterns[incoming.Pattern]++
		session.mu.Unlock()
	case opUnsubscribe:
		session.mu.Lock()
		if session.patterns[incoming.Pattern] <= 1 {
			delete(session.patterns, incoming.Pattern)
		} else {
			session.patterns[incoming.Pattern]--
		}
		session.mu.Unlock()
	case opPublish:
		if incoming.Envelope == nil {
			return fmt.Errorf("publish frame without envelope")
		}
		envelope := *incoming.Envelope
		if err := validTopic(envelope.Topic); err != nil {
			return err
		}
		envelope.From = session.node
		b.route(envelope)
	default:
		return fmt.Errorf("unknown op %q", incoming.Op)
	}
	return nil
}

// route queues envelope for every session subscribed to its topic.
func (b *Broker) route(envelope Envelope) {
	b.mu.Lock()
	targets := make([]*brokerSession, 0, len(b.sessions))
	for session := range b.sessions {
		if session.matches(envelope.Topic) {
			targets = append(targets, session)
		}
	}
	b.mu.Unlock()

	for _, session := range targets {
		select {
		case session.outbound <- frame{Op: opDeliver, Envelope: &envelope}:
		case <-session.done:
		default:
			b.logger().Warn("dropping envelope for slow signaling client",
				"node", session.node,
				"topic", envelope.Topic,
			)
		}
	}
}

func (b *Broker) register(session *brokerSession) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sessions == nil {
		b.sessions = make(map[*brokerSession]struct{})
	}
	b.sessions[session] = struct{}{}
}

func (b *Broker) unregister(session *brokerSession) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, session)
}

func (s *brokerSession) matches(topic string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for pattern := range s.patterns {
		if Match(pattern, topic) {
			return true
		}
	}
	return false
}

// write drains the outbound queue until the session ends. A failed
// write closes the connection so the read loop ends too.
func (s *brokerSession) write(logger *slog.Logger) {
	for {
		select {
		case <-s.done:
			return
		case outgoing := <-s.outbound:
			if err := s.conn.send(outgoing); err != nil {
				logger.Debug("signaling delivery failed", "error", err)
				s.conn.conn.Close()
				return
			}
		}
	}
}
