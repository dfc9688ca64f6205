// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

// Package tunnel relays bytes between two connected endpoints until one
// of them fails, retuning each direction's buffer from the traffic it
// observes.
//
// A [Tunnel] owns exactly two [Endpoint] values, addressed by [Direction]
// ([Left] and [Right]). Endpoints are built with one constructor per
// transport kind: [Socket] for plain stream sockets, [TLSServer],
// [TLSClient] and [TLS] for TLS sessions, [PTY] and [Stdio] for
// terminals and standard streams, [FD] for an arbitrary descriptor, and
// [Dial] for an endpoint that is connected when the tunnel starts;
// [FromTransport] adapts any other read/write/close implementation. The
// relay never branches on the kind: every endpoint is reached through
// the [Transport] interface, and the TLS transport classifies its
// outcomes (data, would-block, graceful close, fatal) into the same
// error taxonomy ([ErrorKind]) the plain transports use.
//
// [Tunnel.Run] drives one pump goroutine per direction. Each pump
// repeats a transfer step (read from its source endpoint into the
// source's buffer, write everything read to the opposite endpoint,
// update statistics) and, when the endpoint has autosize enabled,
// evaluates the resize policy for its buffer. The policy is the pure
// function [Decide]: after [ResizeInterval] hops it triples a buffer
// that is saturated on more than 80% of reads, doubles one saturated on
// more than 50%, and otherwise sizes it to 1.2x the observed average
// hop, always within [MinBuffer] and [MaxBuffer]. Buffer access and
// resizing share a per-endpoint mutex.
//
// The first failure on either side terminates the whole tunnel: Run
// closes both endpoints (which unblocks the surviving pump), waits for
// both pumps, releases the buffers and logs final statistics. There is
// no cancel API besides closing a descriptor, cancelling the context
// passed to Run, or calling [Tunnel.Close]. A tunnel ended by its peer
// or by cancellation returns nil; I/O, TLS, and configuration failures
// are returned as [*Error].
//
// [Tunnel.Stats] and [Tunnel.Snapshot] return copies of the per-endpoint
// counters and are safe to call at any time, including while Run blocks
// in a read.
package tunnel
