// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/burrow-net/burrow/cmd/burrow/cli"
	"github.com/burrow-net/burrow/forward"
	"github.com/burrow-net/burrow/lib/config"
	"github.com/burrow-net/burrow/lib/testutil"
	"github.com/burrow-net/burrow/signaling"
	"github.com/burrow-net/burrow/transport"
)

const testTimeout = 10 * time.Second

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestNode builds a node with a fresh identity in a temporary state
// directory.
func newTestNode(t *testing.T, name, broker string, mutate func(*config.Config)) *node {
	t.Helper()
	cfg := config.Default()
	cfg.Node.Name = name
	cfg.Node.StateDir = t.TempDir()
	cfg.Signaling.Broker = broker
	cfg.Transport.Listen = ""
	if mutate != nil {
		mutate(cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}
	id, err := loadIdentity(cfg, quietLogger())
	if err != nil {
		t.Fatalf("loadIdentity: %v", err)
	}
	return &node{config: cfg, identity: id, logger: quietLogger()}
}

func startBroker(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	broker := &signaling.Broker{Logger: quietLogger()}
	go func() { done <- broker.Serve(ctx, listener) }()
	t.Cleanup(func() {
		cancel()
		testutil.RequireReceive(t, done, testTimeout, "broker shutdown")
	})
	return listener.Addr().String()
}

func echoTarget(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { listener.Close() })
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				io.Copy(conn, conn)
			}()
		}
	}()
	return listener.Addr().String()
}

func TestLoadIdentityIsStable(t *testing.T) {
	n := newTestNode(t, "alpha", "", nil)
	again, err := loadIdentity(n.config, quietLogger())
	if err != nil {
		t.Fatalf("loadIdentity: %v", err)
	}
	if again.ID != n.identity.ID {
		t.Errorf("reloaded ID %s, want %s", again.ID, n.identity.ID)
	}
}

func TestLoadIdentityWithoutGenerate(t *testing.T) {
	cfg := config.Default()
	cfg.Node.Name = "alpha"
	cfg.Node.StateDir = t.TempDir()
	cfg.TLS.Generate = false
	_, err := loadIdentity(cfg, quietLogger())
	var commandErr *cli.Error
	if !errors.As(err, &commandErr) || commandErr.Category != cli.CategoryNotFound {
		t.Fatalf("loadIdentity error = %v, want a not-found error", err)
	}
}

func TestResolvePeerDirectAddress(t *testing.T) {
	n := newTestNode(t, "beta", "", nil)
	params := &PeerParams{Via: "auto", Pins: []string{"abc"}}
	peer, release, err := n.resolvePeer(context.Background(), "192.0.2.1:7420", params)
	if err != nil {
		t.Fatalf("resolvePeer: %v", err)
	}
	defer release()
	if _, ok := peer.Dialer.(*transport.TCPDialer); !ok {
		t.Errorf("Dialer = %T, want *transport.TCPDialer", peer.Dialer)
	}
	if peer.Address != "192.0.2.1:7420" || len(peer.Pins) != 1 || peer.Pins[0] != "abc" {
		t.Errorf("peer = %+v", peer)
	}
}

func TestResolvePeerErrors(t *testing.T) {
	n := newTestNode(t, "beta", "", nil)
	if _, _, err := n.resolvePeer(context.Background(), "alpha", &PeerParams{Via: "carrier-pigeon"}); err == nil {
		t.Error("resolvePeer accepted an unknown --via")
	}
	_, _, err := n.resolvePeer(context.Background(), "alpha", &PeerParams{Via: "auto", Wait: time.Millisecond})
	var commandErr *cli.Error
	if !errors.As(err, &commandErr) || commandErr.Category != cli.CategoryValidation {
		t.Errorf("resolvePeer without a broker = %v, want a validation error", err)
	}
}

func TestResolvePeerUnknownName(t *testing.T) {
	broker := startBroker(t)
	n := newTestNode(t, "beta", broker, nil)
	_, _, err := n.resolvePeer(context.Background(), "nobody", &PeerParams{Via: "auto", Wait: 100 * time.Millisecond})
	var commandErr *cli.Error
	if !errors.As(err, &commandErr) || commandErr.Category != cli.CategoryNotFound {
		t.Fatalf("resolvePeer = %v, want a not-found error", err)
	}
}

func TestServeAndForwardByName(t *testing.T) {
	broker := startBroker(t)
	target := echoTarget(t)

	server := newTestNode(t, "alpha", broker, func(c *config.Config) {
		c.Transport.Listen = "127.0.0.1:0"
		c.Forward.Allow = []string{target}
	})
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- server.serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := testutil.RequireReceive(t, served, testTimeout, "serve shutdown"); err != nil {
			t.Errorf("serve: %v", err)
		}
	})

	client := newTestNode(t, "beta", broker, nil)
	params := &PeerParams{Via: "auto", Wait: 200 * time.Millisecond}
	var (
		peer    forward.Peer
		release func()
	)
	testutil.Eventually(t, testTimeout, 50*time.Millisecond, func() bool {
		resolved, free, err := client.resolvePeer(context.Background(), "alpha", params)
		if err != nil {
			return false
		}
		peer, release = resolved, free
		return true
	}, "alpha never became resolvable")
	defer release()

	if len(peer.Pins) != 1 || peer.Pins[0] != server.identity.ID {
		t.Errorf("pins = %v, want [%s]", peer.Pins, server.identity.ID)
	}

	forwarder := &forward.Forwarder{
		ListenAddr: "127.0.0.1:0",
		Peer:       peer,
		Kind:       forward.KindTCP,
		Target:     target,
		Logger:     quietLogger(),
	}
	if err := forwarder.Start(context.Background()); err != nil {
		t.Fatalf("Forwarder.Start: %v", err)
	}
	defer forwarder.Stop()

	conn, err := net.Dial("tcp", forwarder.Addr().String())
	if err != nil {
		t.Fatalf("dial forwarder: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(testTimeout))
	if _, err := conn.Write([]byte("through the burrow")); err != nil {
		t.Fatalf("write: %v", err)
	}
	echoed := make([]byte, len("through the burrow"))
	if _, err := io.ReadFull(conn, echoed); err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(echoed) != "through the burrow" {
		t.Errorf("echoed %q", echoed)
	}
}

func TestServeRequiresSomethingToServe(t *testing.T) {
	n := newTestNode(t, "alpha", "", nil)
	if err := n.serve(context.Background()); err == nil {
		t.Fatal("serve with no listener succeeded")
	}
	webrtcOnly := newTestNode(t, "alpha", "", func(c *config.Config) { c.Transport.WebRTC = true })
	if err := webrtcOnly.serve(context.Background()); err == nil {
		t.Fatal("serve with WebRTC but no broker succeeded")
	}
}
