// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package signaling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Bus is a topic-addressed publish/subscribe channel between nodes.
type Bus interface {
	// Publish encodes body and delivers it to every subscription whose
	// pattern matches topic. Topics never contain wildcards.
	Publish(ctx context.Context, topic string, kind Kind, body any) error

	// Subscribe returns a channel of envelopes whose topic matches
	// pattern. The channel is closed when ctx is done or the bus shuts
	// down.
	Subscribe(ctx context.Context, pattern string) (<-chan Envelope, error)
}

// ErrBusClosed is returned by operations on a bus that has shut down.
var ErrBusClosed = errors.New("signaling bus closed")

// subscriptionBuffer is the per-subscription channel depth. Delivery
// blocks once it fills, so a stalled reader slows its publishers rather
// than losing messages.
const subscriptionBuffer = 64

func validPattern(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("empty subscription pattern")
	}
	if index := strings.Index(pattern, "#"); index >= 0 {
		if index != len(pattern)-1 || (index > 0 && pattern[index-1] != '/') {
			return fmt.Errorf("pattern %q: wildcard must be the final segment", pattern)
		}
	}
	return nil
}

// subscriber is one live subscription. Delivery and close are
// serialized by mu so a closed channel is never written.
type subscriber struct {
	pattern string
	done    <-chan struct{}

	stop     chan struct{}
	stopOnce sync.Once

	mu     sync.Mutex
	ch     chan Envelope
	closed bool
}

func newSubscriber(ctx context.Context, pattern string) *subscriber {
	return &subscriber{
		pattern: pattern,
		done:    ctx.Done(),
		stop:    make(chan struct{}),
		ch:      make(chan Envelope, subscriptionBuffer),
	}
}

func (s *subscriber) deliver(ctx context.Context, envelope Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	select {
	case s.ch <- envelope:
		return nil
	case <-s.done:
		return nil
	case <-s.stop:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *subscriber) close() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// MemoryBus is a [Bus] that fans messages out within one process.
// Every node sharing a MemoryBus sees every other node's messages,
// which makes it the bus of choice for tests that run several nodes
// side by side.
type MemoryBus struct {
	mu          sync.Mutex
	nextID      uint64
	subscribers map[uint64]*subscriber
	closed      bool
}

// NewMemoryBus creates an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subscribers: make(map[uint64]*subscriber)}
}

// As returns a view of the bus that stamps envelopes published through
// it with from.
func (b *MemoryBus) As(from string) Bus {
	return &memoryNode{bus: b, from: from}
}

// Publish delivers an envelope with no sender.
func (b *MemoryBus) Publish(ctx context.Context, topic string, kind Kind, body any) error {
	return b.publish(ctx, "", topic, kind, body)
}

func (b *MemoryBus) publish(ctx context.Context, from, topic string, kind Kind, body any) error {
	envelope, err := newEnvelope(topic, from, kind, body)
	if err != nil {
		return err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBusClosed
	}
	var targets []*subscriber
	for _, sub := range b.subscribers {
		if Match(sub.pattern, topic) {
			targets = append(targets, sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range targets {
		if err := sub.deliver(ctx, envelope); err != nil {
			return fmt.Errorf("publishing to %s: %w", topic, err)
		}
	}
	return nil
}

// Subscribe registers a subscription that lasts until ctx is done or
// the bus is closed.
func (b *MemoryBus) Subscribe(ctx context.Context, pattern string) (<-chan Envelope, error) {
	if err := validPattern(pattern); err != nil {
		return nil, err
	}
	sub := newSubscriber(ctx, pattern)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBusClosed
	}
	id := b.nextID
	b.nextID++
	b.subscribers[id] = sub
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subscribers, id)
		b.mu.Unlock()
		sub.close()
	}()
	return sub.ch, nil
}

// Close ends every subscription. Later calls to Publish and Subscribe
// return [ErrBusClosed].
func (b *MemoryBus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subscribers := b.subscribers
	b.subscribers = make(map[uint64]*subscriber)
	b.mu.Unlock()

	for _, sub := range subscribers {
		sub.close()
	}
}

type memoryNode struct {
	bus  *MemoryBus
	from string
}

func (n *memoryNode) Publish(ctx context.Context, topic string, kind Kind, body any) error {
	return n.bus.publish(ctx, n.from, topic, kind, body)
}

func (n *memoryNode) Subscribe(ctx context.Context, pattern string) (<-chan Envelope, error) {
	return n.bus.Subscribe(ctx, pattern)
}
