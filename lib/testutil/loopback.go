// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"net"
	"testing"
)

// LoopbackPair returns the two ends of a TCP connection over 127.0.0.1.
// Both ends are closed when the test completes.
func LoopbackPair(t *testing.T) (client, server *net.TCPConn) {
	t.Helper()
	listener, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listening on loopback: %v", err)
	}
	defer listener.Close()

	accepted := make(chan *net.TCPConn, 1)
	failed := make(chan error, 1)
	go func() {
		conn, err := listener.AcceptTCP()
		if err != nil {
			failed <- err
			return
		}
		accepted <- conn
	}()

	client, err = net.DialTCP("tcp", nil, listener.Addr().(*net.TCPAddr))
	if err != nil {
		t.Fatalf("dialing loopback listener: %v", err)
	}
	select {
	case server = <-accepted:
	case err := <-failed:
		client.Close()
		t.Fatalf("accepting loopback connection: %v", err)
	}

	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}
