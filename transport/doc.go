// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport carries raw byte streams between burrow nodes.
//
// A [Listener] yields inbound connections and a [Dialer] opens outbound
// ones; the forwarding layer runs TLS and the tunnel engine on top of
// whatever net.Conn they produce. Two carriers implement them:
//
//   - [TCPListener] and [TCPDialer] for peers that can reach each other
//     directly.
//   - [WebRTCTransport] for peers behind NAT. Each remote node gets one
//     pion PeerConnection; every dial opens a fresh ordered, reliable
//     data channel on it, exposed as a [DataChannelConn]. Offers and
//     answers travel through a [Signaler], normally a [BusSignaler] on
//     the signaling bus. ICE is vanilla: candidates are gathered in full
//     before the SDP is sent, so establishment costs one signaling round
//     trip.
//
// [DiscoverPublicAddress] asks a STUN server for this node's public
// mapping so it can be advertised in announcements.
package transport
