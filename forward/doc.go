// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

// Package forward provides remote access between burrow nodes on top
// of the tunnel engine.
//
// Every forwarded session is one peer connection carrying mutual TLS.
// The dialing side sends a single [Request] naming what it wants (a TCP
// target, the remote sshd, or a shell); the serving side checks it
// against its [Policy], answers with a [Response], and from then on the
// connection carries raw tunnel bytes in both directions.
//
// [Server] is the serving side. [Forwarder] exposes a remote target on
// a local TCP port, opening one session per local connection. [Shell]
// runs one interactive session over a local input/output pair.
package forward
