// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package tunnel

import (
	"crypto/tls"
	"errors"
	"io"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/burrow-net/burrow/lib/netutil"
)

// Transport is the read/write/close triple an endpoint relays through.
//
// Read returns the number of bytes placed in p; zero bytes with a nil
// error means the peer closed. It returns ErrWouldBlock when no data is
// available yet, and otherwise reports failures as *Error
// values classified by kind. Write writes from p and reports failures the
// same way. Close releases the underlying descriptor and, for TLS, sends
// close_notify first.
//
// Implementations outside this package may return plain errors; the
// tunnel treats those as KindIO, and a (0, nil) read as a closed peer.
type Transport interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// TransportKind is the variant an endpoint was constructed as. It is
// reported in statistics and logs; the relay itself never branches on it.
type TransportKind int

const (
	// TransportSocket is a plain stream socket.
	TransportSocket TransportKind = iota
	// TransportTLS is a TLS session over a stream socket.
	TransportTLS
	// TransportStream is a PTY master or a pair of standard streams.
	TransportStream
	// TransportFD is an arbitrary adopted file descriptor.
	TransportFD
)

func (k TransportKind) String() string {
	switch k {
	case TransportSocket:
		return "socket"
	case TransportTLS:
		return "tls"
	case TransportStream:
		return "stream"
	case TransportFD:
		return "fd"
	default:
		return "unknown"
	}
}

// plainTransport delegates to a reader and writer bound at construction:
// the two halves of one socket or file, or two separate standard streams.
type plainTransport struct {
	reader  io.Reader
	writer  io.Writer
	closers []io.Closer
}

func (p *plainTransport) Read(buffer []byte) (int, error) {
	n, err := p.reader.Read(buffer)
	if n > 0 {
		// A short read that also carried an error is replayed by the
		// next call for every reader this transport wraps.
		return n, nil
	}
	if err == nil {
		// Zero bytes without an error is reported as is; the transfer
		// step treats it as the peer closing.
		return 0, nil
	}
	return 0, classifyPlain(err)
}

func (p *plainTransport) Write(buffer []byte) (int, error) {
	n, err := p.writer.Write(buffer)
	if err != nil {
		return n, classifyPlain(err)
	}
	return n, nil
}

func (p *plainTransport) Close() error {
	var first error
	for _, closer := range p.closers {
		if err := closer.Close(); err != nil && first == nil && !netutil.IsExpectedCloseError(err) {
			first = err
		}
	}
	return first
}

func classifyPlain(err error) error {
	if netutil.IsExpectedCloseError(err) {
		return &Error{Kind: KindPeerClosed, Err: err}
	}
	return &Error{Kind: KindIO, Err: err}
}

// tlsTransport relays through an established (or lazily handshaking) TLS
// session. The session's config carries the certificate and private key
// it was created with.
type tlsTransport struct {
	conn   *tls.Conn
	config *tls.Config

	// pollInterval bounds each read. An expired read deadline is the Go
	// equivalent of a TLS want-read: no complete record yet, try again.
	pollInterval time.Duration
}

func (t *tlsTransport) Read(buffer []byte) (int, error) {
	if t.pollInterval > 0 {
		if err := t.conn.SetReadDeadline(time.Now().Add(t.pollInterval)); err != nil {
			return 0, classifyTLS(err)
		}
	}
	n, err := t.conn.Read(buffer)
	if n > 0 {
		return n, nil
	}
	if err == nil {
		return 0, ErrWouldBlock
	}
	return 0, classifyTLS(err)
}

func (t *tlsTransport) Write(buffer []byte) (int, error) {
	n, err := t.conn.Write(buffer)
	if err != nil {
		return n, classifyTLS(err)
	}
	return n, nil
}

// Close sends close_notify (unless a write is in flight, in which case
// crypto/tls only closes the socket) and closes the connection.
func (t *tlsTransport) Close() error {
	err := t.conn.Close()
	if err != nil && netutil.IsExpectedCloseError(err) {
		return nil
	}
	return err
}

// classifyTLS maps a crypto/tls outcome onto the tunnel's taxonomy. A
// read-deadline timeout is recoverable in crypto/tls and means "no record
// yet"; EOF is a graceful shutdown; a connection closed locally during
// teardown is a closed peer; everything else (alerts, malformed records,
// handshake failures, socket errors under the record layer) is fatal.
func classifyTLS(err error) error {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return ErrWouldBlock
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return &Error{Kind: KindPeerClosed, Err: err}
	}
	return &Error{Kind: KindTLSFatal, Err: err}
}

// descriptorOf returns the OS descriptor behind v without switching it to
// blocking mode (os.File.Fd would). Returns -1 when v has none.
func descriptorOf(v any) int {
	if tlsConn, ok := v.(*tls.Conn); ok {
		v = tlsConn.NetConn()
	}
	syscallConn, ok := v.(syscall.Conn)
	if !ok {
		return -1
	}
	rawConn, err := syscallConn.SyscallConn()
	if err != nil {
		return -1
	}
	descriptor := -1
	if err := rawConn.Control(func(fd uintptr) { descriptor = int(fd) }); err != nil {
		return -1
	}
	return descriptor
}
