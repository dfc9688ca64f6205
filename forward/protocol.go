// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package forward

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/burrow-net/burrow/lib/codec"
)

// Kind selects what a session connects to on the serving node.
type Kind string

const (
	// KindTCP connects to an arbitrary allowed host:port.
	KindTCP Kind = "tcp"

	// KindSSH connects to the serving node's sshd. The SSH protocol
	// itself passes through untouched.
	KindSSH Kind = "ssh"

	// KindShell starts the configured shell on a PTY.
	KindShell Kind = "shell"
)

// DefaultSSHTarget is the target of an SSH request that names none.
const DefaultSSHTarget = "127.0.0.1:22"

// Request opens a session. It is the first message on a connection.
type Request struct {
	Kind Kind `cbor:"kind"`

	// Target is the host:port to connect to. Required for KindTCP,
	// optional for KindSSH, ignored for KindShell.
	Target string `cbor:"target,omitempty"`

	// Columns and Rows size the remote PTY of a shell session.
	Columns uint16 `cbor:"columns,omitempty"`
	Rows    uint16 `cbor:"rows,omitempty"`

	// Term is the TERM value for a shell session.
	Term string `cbor:"term,omitempty"`

	// SessionID correlates both nodes' log lines for one session.
	SessionID string `cbor:"session_id"`
}

// Response accepts or refuses a Request.
type Response struct {
	OK    bool   `cbor:"ok"`
	Error string `cbor:"error,omitempty"`
}

// maxMessageSize bounds a protocol message. Requests and responses are
// a few dozen bytes.
const maxMessageSize = 64 * 1024

// writeMessage sends v as a 4-byte big-endian length followed by its
// CBOR encoding. The explicit length keeps the reader from consuming
// any of the tunnel bytes that follow.
func writeMessage(w io.Writer, v any) error {
	data, err := codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	if len(data) > maxMessageSize {
		return fmt.Errorf("message of %d bytes exceeds %d", len(data), maxMessageSize)
	}
	frame := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(frame, uint32(len(data)))
	copy(frame[4:], data)
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	return nil
}

// readMessage reads exactly one message written by writeMessage.
func readMessage(r io.Reader, v any) error {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return fmt.Errorf("reading message header: %w", err)
	}
	size := binary.BigEndian.Uint32(header[:])
	if size > maxMessageSize {
		return fmt.Errorf("message of %d bytes exceeds %d", size, maxMessageSize)
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return fmt.Errorf("reading message body: %w", err)
	}
	if err := codec.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding message: %w", err)
	}
	return nil
}
