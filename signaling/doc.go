// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

// Package signaling carries the control messages burrow nodes exchange
// before any tunnel exists: periodic announcements that let peers find
// each other, and the WebRTC offers and answers that open a data
// channel through NAT.
//
// Messages travel on a topic-addressed publish/subscribe [Bus]. Two
// implementations are provided. [MemoryBus] fans messages out inside a
// single process and backs the tests. [Client] speaks to a [Broker]
// over TCP using a stream of CBOR frames, reconnecting with backoff and
// restoring its subscriptions when the broker connection drops.
//
// [Directory] keeps the announcements a node has heard, expiring them
// after a TTL, and [Announcer] ties the two together: it publishes the
// local node's [Announce] on a fixed interval and feeds every
// announcement it receives into a Directory.
package signaling
