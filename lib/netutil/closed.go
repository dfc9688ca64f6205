// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"errors"
	"io"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// IsExpectedCloseError reports whether err is a normal stream termination:
// EOF, a closed connection, file or pipe, a broken pipe, a connection
// reset or abort, or EIO from a PTY master after the child exited.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	var errno unix.Errno
	if errors.As(err, &errno) {
		switch errno {
		case unix.EPIPE, unix.ECONNRESET, unix.ECONNABORTED, unix.EIO:
			return true
		}
	}
	return false
}
