// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package signaling

import (
	"fmt"
	"strings"
	"time"

	"github.com/burrow-net/burrow/lib/codec"
)

// Topics used by burrow nodes.
const (
	// TopicAnnounce carries [Announce] messages from every node.
	TopicAnnounce = "burrow/announce"

	// TopicQuery asks every node to announce itself now.
	TopicQuery = "burrow/query"

	// topicWebRTCPrefix prefixes the per-node WebRTC signaling topic.
	topicWebRTCPrefix = "burrow/webrtc/"
)

// WebRTCTopic returns the topic on which offers and answers addressed
// to node are published.
func WebRTCTopic(node string) string {
	return topicWebRTCPrefix + node
}

// Kind identifies the type of an envelope's body.
type Kind string

const (
	KindAnnounce Kind = "announce"
	KindOffer    Kind = "offer"
	KindAnswer   Kind = "answer"
	KindQuery    Kind = "query"
)

// Envelope is the unit the bus delivers. Body holds the CBOR encoding
// of the message named by Kind and is decoded by the receiver.
type Envelope struct {
	Topic string           `cbor:"topic"`
	From  string           `cbor:"from,omitempty"`
	Kind  Kind             `cbor:"kind"`
	Body  codec.RawMessage `cbor:"body,omitempty"`
}

// Decode unmarshals the envelope body into v.
func (e Envelope) Decode(v any) error {
	if len(e.Body) == 0 {
		return fmt.Errorf("%s envelope on %s has no body", e.Kind, e.Topic)
	}
	if err := codec.Unmarshal(e.Body, v); err != nil {
		return fmt.Errorf("decoding %s envelope on %s: %w", e.Kind, e.Topic, err)
	}
	return nil
}

// newEnvelope encodes body and wraps it for topic.
func newEnvelope(topic, from string, kind Kind, body any) (Envelope, error) {
	if err := validTopic(topic); err != nil {
		return Envelope{}, err
	}
	envelope := Envelope{Topic: topic, From: from, Kind: kind}
	if body != nil {
		data, err := codec.Marshal(body)
		if err != nil {
			return Envelope{}, fmt.Errorf("encoding %s body: %w", kind, err)
		}
		envelope.Body = data
	}
	return envelope, nil
}

// Announce advertises a node to its peers.
type Announce struct {
	// NodeID is derived from the node's certificate and is what peers
	// pin when no CA is configured.
	NodeID string `cbor:"node_id"`

	// Name is the configured human-readable node name.
	Name string `cbor:"name"`

	// Addresses are host:port pairs the forwarding server listens on.
	Addresses []string `cbor:"addresses,omitempty"`

	// PublicAddress is the STUN-discovered mapping of this node, if any.
	PublicAddress string `cbor:"public_address,omitempty"`

	// WebRTC is true when the node accepts WebRTC data channels.
	WebRTC bool `cbor:"webrtc,omitempty"`

	// Services lists the forward kinds the node serves ("tcp", "ssh",
	// "shell").
	Services []string `cbor:"services,omitempty"`

	Timestamp time.Time `cbor:"timestamp"`
}

// Offer is an SDP offer from one node to another.
type Offer struct {
	From      string    `cbor:"from"`
	To        string    `cbor:"to"`
	SDP       string    `cbor:"sdp"`
	Timestamp time.Time `cbor:"timestamp"`
}

// Answer is the SDP answer to an [Offer].
type Answer struct {
	From      string    `cbor:"from"`
	To        string    `cbor:"to"`
	SDP       string    `cbor:"sdp"`
	Timestamp time.Time `cbor:"timestamp"`
}

// Match reports whether topic is selected by pattern. A pattern ending
// in "/#" matches every topic below its prefix; any other pattern
// matches only itself.
func Match(pattern, topic string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/#"); ok {
		return topic == prefix || strings.HasPrefix(topic, prefix+"/")
	}
	if pattern == "#" {
		return true
	}
	return pattern == topic
}

func validTopic(topic string) error {
	if topic == "" {
		return fmt.Errorf("empty topic")
	}
	if strings.Contains(topic, "#") {
		return fmt.Errorf("topic %q contains a wildcard", topic)
	}
	return nil
}
