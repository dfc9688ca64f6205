// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/burrow-net/burrow/signaling"
)

// Signal is one SDP message exchanged while establishing a
// PeerConnection.
type Signal struct {
	// Kind is signaling.KindOffer or signaling.KindAnswer.
	Kind signaling.Kind

	// From is the sending node's name.
	From string

	// SDP is the complete session description, candidates included.
	SDP string
}

// Signaler exchanges SDP offers and answers between nodes.
type Signaler interface {
	// Send delivers signal to node to. The From field is filled in by
	// the signaler.
	Send(ctx context.Context, to string, signal Signal) error

	// Receive returns the signals addressed to this node. The channel
	// closes when ctx is done.
	Receive(ctx context.Context) (<-chan Signal, error)
}

// BusSignaler is a [Signaler] over a signaling bus. Each node listens
// on its own WebRTC topic; offers and answers are published on the
// recipient's.
type BusSignaler struct {
	bus    signaling.Bus
	node   string
	logger *slog.Logger
}

// NewBusSignaler creates a signaler for node on bus.
func NewBusSignaler(bus signaling.Bus, node string, logger *slog.Logger) *BusSignaler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BusSignaler{bus: bus, node: node, logger: logger}
}

// Send publishes an offer or answer on the recipient's topic.
func (s *BusSignaler) Send(ctx context.Context, to string, signal Signal) error {
	now := time.Now().UTC()
	var body any
	switch signal.Kind {
	case signaling.KindOffer:
		body = signaling.Offer{From: s.node, To: to, SDP: signal.SDP, Timestamp: now}
	case signaling.KindAnswer:
		body = signaling.Answer{From: s.node, To: to, SDP: signal.SDP, Timestamp: now}
	default:
		return fmt.Errorf("cannot send %q as a WebRTC signal", signal.Kind)
	}
	return s.bus.Publish(ctx, signaling.WebRTCTopic(to), signal.Kind, body)
}

// Receive subscribes to this node's topic and converts envelopes to
// signals. Malformed or misaddressed envelopes are dropped.
func (s *BusSignaler) Receive(ctx context.Context) (<-chan Signal, error) {
	envelopes, err := s.bus.Subscribe(ctx, signaling.WebRTCTopic(s.node))
	if err != nil {
		return nil, fmt.Errorf("subscribing to WebRTC signals: %w", err)
	}

	signals := make(chan Signal)
	go func() {
		defer close(signals)
		for envelope := range envelopes {
			signal, ok := s.decode(envelope)
			if !ok {
				continue
			}
			select {
			case signals <- signal:
			case <-ctx.Done():
				return
			}
		}
	}()
	return signals, nil
}

func (s *BusSignaler) decode(envelope signaling.Envelope) (Signal, bool) {
	// Offer and Answer share a layout.
	var message signaling.Offer
	switch envelope.Kind {
	case signaling.KindOffer, signaling.KindAnswer:
	default:
		s.logger.Debug("ignoring non-WebRTC envelope", "kind", envelope.Kind, "from", envelope.From)
		return Signal{}, false
	}
	if err := envelope.Decode(&message); err != nil {
		s.logger.Debug("discarding malformed WebRTC signal", "from", envelope.From, "error", err)
		return Signal{}, false
	}
	if message.To != s.node || message.From == "" {
		return Signal{}, false
	}
	return Signal{Kind: envelope.Kind, From: message.From, SDP: message.SDP}, true
}
