// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package tunnel

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a tunnel operation failed so callers can decide
// between re-accepting, redialing and reporting without parsing messages.
type ErrorKind string

const (
	// KindIO is a read or write failure on a plain transport.
	KindIO ErrorKind = "io"

	// KindPeerClosed means the other party ended the stream: a zero-byte
	// read, EOF, a TLS close_notify, or a descriptor closed during
	// teardown. A tunnel that ends this way is not in error.
	KindPeerClosed ErrorKind = "peer_closed"

	// KindTLSFatal is a protocol, handshake or record error surfaced by
	// the TLS layer.
	KindTLSFatal ErrorKind = "tls_fatal"

	// KindAllocation is a failed buffer allocation. The resize policy
	// recovers from it locally by keeping the previous buffer.
	KindAllocation ErrorKind = "allocation"

	// KindConfig is an endpoint or tunnel that cannot run as configured:
	// a missing connection or descriptor, incomplete TLS material, or a
	// tunnel started twice. Reported by New and Run, never mid-run.
	KindConfig ErrorKind = "config"
)

// ErrWouldBlock is returned by a Transport read that found no application
// data yet. The transfer step treats it as "nothing to relay this time".
var ErrWouldBlock = errors.New("tunnel: would block")

// errZeroRead stands in for the cause of a zero-byte read.
var errZeroRead = errors.New("zero-byte read")

// Error is a categorized tunnel failure. Use errors.As to recover it:
//
//	var tunnelErr *tunnel.Error
//	if errors.As(err, &tunnelErr) && tunnelErr.Kind == tunnel.KindTLSFatal { ... }
type Error struct {
	// Kind classifies the failure.
	Kind ErrorKind

	// Endpoint is the name of the endpoint the failure happened on.
	// Empty for tunnel-level failures.
	Endpoint string

	// Op is the operation that failed ("read", "write", "dial",
	// "handshake", "resize", "start").
	Op string

	// Err is the underlying cause.
	Err error
}

func (e *Error) Error() string {
	switch {
	case e.Endpoint != "" && e.Op != "":
		return fmt.Sprintf("tunnel: %s %s (%s): %v", e.Endpoint, e.Op, e.Kind, e.Err)
	case e.Endpoint != "":
		return fmt.Sprintf("tunnel: %s (%s): %v", e.Endpoint, e.Kind, e.Err)
	default:
		return fmt.Sprintf("tunnel (%s): %v", e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var tunnelErr *Error
	if errors.As(err, &tunnelErr) {
		return tunnelErr.Kind == kind
	}
	return false
}

// configError builds a KindConfig error for the named endpoint.
func configError(endpoint, format string, args ...any) *Error {
	return &Error{Kind: KindConfig, Endpoint: endpoint, Op: "start", Err: fmt.Errorf(format, args...)}
}
