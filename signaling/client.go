// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package signaling

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/jpillora/backoff"

	"github.com/burrow-net/burrow/lib/codec"
	"github.com/burrow-net/burrow/lib/netutil"
)

// Default reconnect bounds for [Client].
const (
	DefaultMinRetryInterval = 250 * time.Millisecond
	DefaultMaxRetryInterval = 30 * time.Second
)

// Client is a [Bus] backed by a connection to a [Broker]. Run owns the
// connection: it dials, restores every live subscription, and redials
// with exponential backoff whenever the broker goes away. Publish
// waits for a connection when none is up.
type Client struct {
	address string
	node    string
	logger  *slog.Logger

	// MinRetryInterval and MaxRetryInterval bound the reconnect
	// backoff. Zero means the package defaults.
	MinRetryInterval time.Duration
	MaxRetryInterval time.Duration

	mu          sync.Mutex
	conn        *frameConn
	connected   chan struct{}
	closed      bool
	nextID      uint64
	subscribers map[uint64]*subscriber
	patterns    map[string]int
}

// NewClient creates a client for the broker at address that publishes
// as node. Nothing is dialed until [Client.Run].
func NewClient(address, node string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		address:     address,
		node:        node,
		logger:      logger.With("broker", address),
		connected:   make(chan struct{}),
		subscribers: make(map[uint64]*subscriber),
		patterns:    make(map[string]int),
	}
}

// Connected returns a channel that is closed once a broker connection
// is up, or once Run has returned. A fresh channel is armed each time
// the connection drops.
func (c *Client) Connected() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Run maintains the broker connection until ctx is cancelled. On
// return every subscription channel is closed and the client rejects
// further use with [ErrBusClosed].
func (c *Client) Run(ctx context.Context) error {
	defer c.shutdown()

	retry := &backoff.Backoff{
		Min:    c.MinRetryInterval,
		Max:    c.MaxRetryInterval,
		Factor: 2,
		Jitter: true,
	}
	if retry.Min <= 0 {
		retry.Min = DefaultMinRetryInterval
	}
	if retry.Max <= 0 {
		retry.Max = DefaultMaxRetryInterval
	}

	for {
		established, err := c.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if established {
			retry.Reset()
		}
		delay := retry.Duration()
		c.logger.Warn("signaling broker unavailable",
			"error", err,
			"attempt", int(retry.Attempt()),
			"retry_in", delay.String(),
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// session runs one broker connection from dial to disconnect.
// established reports whether the hello and resubscription succeeded.
func (c *Client) session(ctx context.Context) (established bool, err error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", c.address)
	if err != nil {
		return false, fmt.Errorf("dialing signaling broker: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	framed := newFrameConn(conn)
	if err := c.attach(framed); err != nil {
		return false, err
	}
	defer c.detach(framed)

	c.logger.Info("connected to signaling broker")

	decoder := codec.NewDecoder(conn)
	for {
		var incoming frame
		if err := decoder.Decode(&incoming); err != nil {
			if netutil.IsExpectedCloseError(err) {
				return true, fmt.Errorf("signaling broker closed the connection: %w", err)
			}
			return true, fmt.Errorf("reading from signaling broker: %w", err)
		}
		if incoming.Op != opDeliver || incoming.Envelope == nil {
			c.logger.Debug("ignoring unexpected broker frame", "op", incoming.Op)
			continue
		}
		if err := c.fanOut(ctx, *incoming.Envelope); err != nil {
			return true, err
		}
	}
}

// attach says hello, restores subscriptions, and publishes the
// connection. Holding mu across the resubscription keeps a concurrent
// Subscribe from being sent twice or lost.
func (c *Client) attach(framed *frameConn) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrBusClosed
	}
	if err := framed.send(frame{Op: opHello, Node: c.node}); err != nil {
		return fmt.Errorf("sending hello: %w", err)
	}
	for pattern := range c.patterns {
		if err := framed.send(frame{Op: opSubscribe, Pattern: pattern}); err != nil {
			return fmt.Errorf("restoring subscription %s: %w", pattern, err)
		}
	}
	c.conn = framed
	close(c.connected)
	return nil
}

func (c *Client) detach(framed *frameConn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == framed {
		c.conn = nil
		c.connected = make(chan struct{})
	}
}

func (c *Client) fanOut(ctx context.Context, envelope Envelope) error {
	c.mu.Lock()
	var targets []*subscriber
	for _, sub := range c.subscribers {
		if Match(sub.pattern, envelope.Topic) {
			targets = append(targets, sub)
		}
	}
	c.mu.Unlock()

	for _, sub := range targets {
		if err := sub.deliver(ctx, envelope); err != nil {
			return err
		}
	}
	return nil
}

// Publish sends an envelope through the broker, waiting for a
// connection if the client is between reconnects.
func (c *Client) Publish(ctx context.Context, topic string, kind Kind, body any) error {
	envelope, err := newEnvelope(topic, c.node, kind, body)
	if err != nil {
		return err
	}
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return ErrBusClosed
		}
		framed, connected := c.conn, c.connected
		c.mu.Unlock()

		if framed == nil {
			select {
			case <-connected:
				continue
			case <-ctx.Done():
				return fmt.Errorf("publishing to %s: waiting for broker: %w", topic, ctx.Err())
			}
		}
		if err := framed.send(frame{Op: opPublish, Envelope: &envelope}); err != nil {
			return fmt.Errorf("publishing to %s: %w", topic, err)
		}
		return nil
	}
}

// Subscribe registers pattern with the broker (immediately when
// connected, otherwise on the next connect) and returns the delivery
// channel. The channel closes when ctx is done or Run returns.
func (c *Client) Subscribe(ctx context.Context, pattern string) (<-chan Envelope, error) {
	if err := validPattern(pattern); err != nil {
		return nil, err
	}
	sub := newSubscriber(ctx, pattern)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrBusClosed
	}
	id := c.nextID
	c.nextID++
	c.subscribers[id] = sub
	c.patterns[pattern]++
	if c.patterns[pattern] == 1 && c.conn != nil {
		// A failed send surfaces as a read error on the same
		// connection; the reconnect restores the pattern.
		if err := c.conn.send(frame{Op: opSubscribe, Pattern: pattern}); err != nil {
			c.logger.Debug("subscribe frame failed", "pattern", pattern, "error", err)
		}
	}
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		c.unsubscribe(id, sub)
	}()
	return sub.ch, nil
}

func (c *Client) unsubscribe(id uint64, sub *subscriber) {
	c.mu.Lock()
	if _, ok := c.subscribers[id]; ok {
		delete(c.subscribers, id)
		c.patterns[sub.pattern]--
		if c.patterns[sub.pattern] <= 0 {
			delete(c.patterns, sub.pattern)
			if c.conn != nil {
				if err := c.conn.send(frame{Op: opUnsubscribe, Pattern: sub.pattern}); err != nil {
					c.logger.Debug("unsubscribe frame failed", "pattern", sub.pattern, "error", err)
				}
			}
		}
	}
	c.mu.Unlock()
	sub.close()
}

func (c *Client) shutdown() {
	c.mu.Lock()
	c.closed = true
	if c.conn == nil {
		close(c.connected)
	}
	subscribers := c.subscribers
	c.subscribers = make(map[uint64]*subscriber)
	c.patterns = make(map[string]int)
	c.mu.Unlock()

	for _, sub := range subscribers {
		sub.close()
	}
}

var _ Bus = (*Client)(nil)
var _ Bus = (*MemoryBus)(nil)
