// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package tunnel

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// Role is the side an endpoint plays in a TLS handshake. For plain
// endpoints it is informational.
type Role int

const (
	RoleServer Role = iota
	RoleClient
)

func (r Role) String() string {
	if r == RoleServer {
		return "server"
	}
	return "client"
}

// Endpoint is one side of a tunnel: a transport, the buffer that reads
// from it fill, and the counters that describe its traffic. Endpoints are
// built with the constructors in this file and handed to [New]; a
// construction problem is held and reported as a KindConfig error by New.
type Endpoint struct {
	name         string
	kind         TransportKind
	role         Role
	autosize     bool
	pollInterval time.Duration

	transport  Transport
	descriptor atomic.Int64

	// handshake is set for TLS endpoints whose session Run must
	// establish before relaying.
	handshake *tls.Conn

	// server, port and dialConfig describe an endpoint that Run dials.
	server     string
	port       int
	dialConfig *tls.Config

	buffer   buffer
	counters counters

	err       error
	closeOnce sync.Once
	closeErr  error
}

// EndpointOption configures an Endpoint.
type EndpointOption func(*Endpoint)

// WithAutosize enables or disables the resize policy for the endpoint's
// buffer. Enabled by default.
func WithAutosize(enabled bool) EndpointOption {
	return func(e *Endpoint) { e.autosize = enabled }
}

// WithRole overrides the endpoint's role.
func WithRole(role Role) EndpointOption {
	return func(e *Endpoint) { e.role = role }
}

// WithPollInterval bounds each TLS read so the pump periodically returns
// to the loop without data. Zero (the default) blocks until a record
// arrives. Ignored by plain endpoints.
func WithPollInterval(interval time.Duration) EndpointOption {
	return func(e *Endpoint) { e.pollInterval = interval }
}

func newEndpoint(name string, kind TransportKind, role Role, options []EndpointOption) *Endpoint {
	endpoint := &Endpoint{
		name:     name,
		kind:     kind,
		role:     role,
		autosize: true,
	}
	endpoint.descriptor.Store(-1)
	for _, option := range options {
		option(endpoint)
	}
	return endpoint
}

func (e *Endpoint) fail(format string, args ...any) *Endpoint {
	e.err = configError(e.name, format, args...)
	return e
}

// Socket wraps a connected stream socket.
func Socket(name string, conn net.Conn, options ...EndpointOption) *Endpoint {
	endpoint := newEndpoint(name, TransportSocket, RoleServer, options)
	if conn == nil {
		return endpoint.fail("socket endpoint requires a connection")
	}
	endpoint.transport = &plainTransport{reader: conn, writer: conn, closers: []io.Closer{conn}}
	endpoint.descriptor.Store(int64(descriptorOf(conn)))
	return endpoint
}

// TLSServer wraps conn in a server-side TLS session that Run handshakes
// before relaying. config must carry a complete certificate and key.
func TLSServer(name string, conn net.Conn, config *tls.Config, options ...EndpointOption) *Endpoint {
	endpoint := newEndpoint(name, TransportTLS, RoleServer, options)
	if conn == nil {
		return endpoint.fail("TLS endpoint requires a connection")
	}
	if err := checkTLSMaterial(config, true); err != nil {
		return endpoint.fail("%w", err)
	}
	endpoint.bindTLS(tls.Server(conn, config), config)
	return endpoint
}

// TLSClient wraps conn in a client-side TLS session that Run handshakes
// before relaying. A client certificate is optional but, when present,
// must be complete.
func TLSClient(name string, conn net.Conn, config *tls.Config, options ...EndpointOption) *Endpoint {
	endpoint := newEndpoint(name, TransportTLS, RoleClient, options)
	if conn == nil {
		return endpoint.fail("TLS endpoint requires a connection")
	}
	if err := checkTLSMaterial(config, false); err != nil {
		return endpoint.fail("%w", err)
	}
	endpoint.bindTLS(tls.Client(conn, config), config)
	return endpoint
}

// TLS wraps a session the caller has already established (or will let
// Run establish). The role defaults to client; use WithRole to change it.
func TLS(name string, conn *tls.Conn, options ...EndpointOption) *Endpoint {
	endpoint := newEndpoint(name, TransportTLS, RoleClient, options)
	if conn == nil {
		return endpoint.fail("TLS endpoint requires a connection")
	}
	endpoint.bindTLS(conn, nil)
	return endpoint
}

func (e *Endpoint) bindTLS(conn *tls.Conn, config *tls.Config) {
	e.transport = &tlsTransport{conn: conn, config: config, pollInterval: e.pollInterval}
	e.handshake = conn
	e.descriptor.Store(int64(descriptorOf(conn)))
}

// checkTLSMaterial enforces that certificate and private key come
// together. Servers must have at least one.
func checkTLSMaterial(config *tls.Config, server bool) error {
	if config == nil {
		return errors.New("TLS endpoint requires a tls.Config")
	}
	for index, certificate := range config.Certificates {
		if len(certificate.Certificate) == 0 {
			return fmt.Errorf("certificate %d has no certificate chain", index)
		}
		if certificate.PrivateKey == nil {
			return fmt.Errorf("certificate %d has no private key", index)
		}
	}
	if server && len(config.Certificates) == 0 && config.GetCertificate == nil && config.GetConfigForClient == nil {
		return errors.New("TLS server endpoint requires a certificate and private key")
	}
	return nil
}

// PTY wraps the master side of a pseudo-terminal.
func PTY(name string, master *os.File, options ...EndpointOption) *Endpoint {
	endpoint := newEndpoint(name, TransportStream, RoleServer, options)
	if master == nil {
		return endpoint.fail("PTY endpoint requires a master file")
	}
	endpoint.transport = &plainTransport{reader: master, writer: master, closers: []io.Closer{master}}
	endpoint.descriptor.Store(int64(descriptorOf(master)))
	return endpoint
}

// Stdio pairs a reader and a writer, typically a process's standard
// input and output, into one endpoint. Both are closed at teardown.
func Stdio(name string, input io.ReadCloser, output io.WriteCloser, options ...EndpointOption) *Endpoint {
	endpoint := newEndpoint(name, TransportStream, RoleClient, options)
	if input == nil || output == nil {
		return endpoint.fail("stdio endpoint requires both an input and an output")
	}
	closers := []io.Closer{input}
	if any(output) != any(input) {
		closers = append(closers, output)
	}
	endpoint.transport = &plainTransport{reader: input, writer: output, closers: closers}
	endpoint.descriptor.Store(int64(descriptorOf(input)))
	return endpoint
}

// FD adopts an open file descriptor. The descriptor is switched to
// non-blocking mode so closing the endpoint interrupts a pending read,
// and is owned (and eventually closed) by the endpoint.
func FD(name string, fd int, options ...EndpointOption) *Endpoint {
	endpoint := newEndpoint(name, TransportFD, RoleServer, options)
	if fd < 0 {
		return endpoint.fail("invalid file descriptor %d", fd)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		return endpoint.fail("set descriptor %d non-blocking: %w", fd, err)
	}
	file := os.NewFile(uintptr(fd), name)
	endpoint.transport = &plainTransport{reader: file, writer: file, closers: []io.Closer{file}}
	endpoint.descriptor.Store(int64(fd))
	return endpoint
}

// Dial describes an endpoint that Run connects to server:port over TCP
// before relaying. With a non-nil config the connection is a TLS client
// session; otherwise it is a plain socket.
func Dial(name, server string, port int, config *tls.Config, options ...EndpointOption) *Endpoint {
	kind := TransportSocket
	if config != nil {
		kind = TransportTLS
	}
	endpoint := newEndpoint(name, kind, RoleClient, options)
	if server == "" {
		return endpoint.fail("dial endpoint requires a server")
	}
	if port <= 0 || port > 65535 {
		return endpoint.fail("dial endpoint port %d out of range", port)
	}
	if config != nil {
		if err := checkTLSMaterial(config, false); err != nil {
			return endpoint.fail("%w", err)
		}
	}
	endpoint.server = server
	endpoint.port = port
	endpoint.dialConfig = config
	return endpoint
}

// FromTransport wraps a caller-supplied Transport. Its errors are
// classified as described on [Transport].
func FromTransport(name string, transport Transport, options ...EndpointOption) *Endpoint {
	endpoint := newEndpoint(name, TransportStream, RoleServer, options)
	if transport == nil {
		return endpoint.fail("endpoint requires a transport")
	}
	endpoint.transport = transport
	endpoint.descriptor.Store(int64(descriptorOf(transport)))
	return endpoint
}

// Name returns the endpoint's diagnostic label.
func (e *Endpoint) Name() string { return e.name }

// Kind returns the transport variant.
func (e *Endpoint) Kind() TransportKind { return e.kind }

// Role returns the endpoint's role.
func (e *Endpoint) Role() Role { return e.role }

// Descriptor returns the OS descriptor behind the endpoint, or -1 when it
// has none or has been closed.
func (e *Endpoint) Descriptor() int { return int(e.descriptor.Load()) }

// prepare dials and handshakes as the endpoint requires.
func (e *Endpoint) prepare(ctx context.Context) error {
	if e.server != "" && e.transport == nil {
		address := net.JoinHostPort(e.server, strconv.Itoa(e.port))
		var dialer net.Dialer
		conn, err := dialer.DialContext(ctx, "tcp", address)
		if err != nil {
			return &Error{Kind: KindIO, Endpoint: e.name, Op: "dial", Err: err}
		}
		if e.dialConfig == nil {
			e.transport = &plainTransport{reader: conn, writer: conn, closers: []io.Closer{conn}}
			e.descriptor.Store(int64(descriptorOf(conn)))
		} else {
			config := e.dialConfig.Clone()
			if config.ServerName == "" {
				config.ServerName = e.server
			}
			e.bindTLS(tls.Client(conn, config), config)
		}
	}
	if e.handshake != nil {
		if err := e.handshake.HandshakeContext(ctx); err != nil {
			return &Error{Kind: KindTLSFatal, Endpoint: e.name, Op: "handshake", Err: err}
		}
	}
	return nil
}

// annotate attaches the endpoint name and operation to a transport error.
func (e *Endpoint) annotate(op string, err error) error {
	var tunnelErr *Error
	if errors.As(err, &tunnelErr) {
		annotated := *tunnelErr
		if annotated.Endpoint == "" {
			annotated.Endpoint = e.name
		}
		if annotated.Op == "" {
			annotated.Op = op
		}
		return &annotated
	}
	return &Error{Kind: KindIO, Endpoint: e.name, Op: op, Err: err}
}

// close releases the transport once. For TLS this sends close_notify
// before closing the socket.
func (e *Endpoint) close() error {
	e.closeOnce.Do(func() {
		if e.transport != nil {
			e.closeErr = e.transport.Close()
		}
		e.descriptor.Store(-1)
	})
	return e.closeErr
}
