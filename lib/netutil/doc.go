// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil classifies errors that occur when a relayed connection
// ends normally.
//
// A relay that closes both of its connections as soon as one side
// finishes makes the surviving side fail with whatever its transport
// reports for a closed peer: EOF, "use of closed connection", a closed
// pipe, EPIPE, ECONNRESET, or EIO from a PTY master whose slave hung up.
// [IsExpectedCloseError] recognizes all of them so callers can tell a
// finished session from a broken one.
package netutil
