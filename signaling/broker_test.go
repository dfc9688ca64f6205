// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package signaling

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/burrow-net/burrow/lib/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startBroker serves a broker on a loopback port and returns its
// address. The broker stops when the test ends or stop is called.
func startBroker(t *testing.T, address string) (string, func()) {
	t.Helper()
	listener, err := net.Listen("tcp", address)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	broker := &Broker{Logger: quietLogger()}
	done := make(chan error, 1)
	go func() { done <- broker.Serve(ctx, listener) }()

	stopped := false
	stop := func() {
		if stopped {
			return
		}
		stopped = true
		cancel()
		if err := testutil.RequireReceive(t, done, testTimeout, "broker shutdown"); err != nil {
			t.Errorf("Serve: %v", err)
		}
	}
	t.Cleanup(stop)
	return listener.Addr().String(), stop
}

// startClient runs a client until the test ends and waits for its
// first connection.
func startClient(t *testing.T, address, node string) *Client {
	t.Helper()
	client := NewClient(address, node, quietLogger())
	client.MinRetryInterval = 10 * time.Millisecond
	client.MaxRetryInterval = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		testutil.RequireReceive(t, done, testTimeout, "client shutdown")
	})
	testutil.RequireClosed(t, client.Connected(), testTimeout, "client %s never connected", node)
	return client
}

// waitForDelivery publishes until the subscriber sees a message or the
// timeout passes. Subscribe frames are asynchronous with respect to
// another client's publish, so the first publish can race them, and a
// publish can land on a connection that is about to be replaced.
func waitForDelivery(t *testing.T, publisher Bus, topic string, kind Kind, body any, ch <-chan Envelope) Envelope {
	t.Helper()
	deadline := time.After(testTimeout)
	for {
		if err := publisher.Publish(context.Background(), topic, kind, body); err != nil {
			t.Logf("Publish: %v (retrying)", err)
		}
		select {
		case envelope := <-ch:
			return envelope
		case <-time.After(50 * time.Millisecond):
		case <-deadline:
			t.Fatalf("no delivery on %s", topic)
		}
	}
}

func TestBrokerRelaysBetweenClients(t *testing.T) {
	address, _ := startBroker(t, "127.0.0.1:0")
	alpha := startClient(t, address, "alpha")
	beta := startClient(t, address, "beta")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	offers, err := beta.Subscribe(ctx, "burrow/webrtc/#")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	sent := Offer{From: "alpha", To: "beta", SDP: "v=0"}
	envelope := waitForDelivery(t, alpha, WebRTCTopic("beta"), KindOffer, sent, offers)
	if envelope.From != "alpha" {
		t.Errorf("From = %q, want broker-stamped alpha", envelope.From)
	}
	if envelope.Kind != KindOffer {
		t.Errorf("Kind = %q, want offer", envelope.Kind)
	}
	var offer Offer
	if err := envelope.Decode(&offer); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if offer.SDP != "v=0" {
		t.Errorf("SDP = %q", offer.SDP)
	}
}

func TestBrokerDeliversOncePerClient(t *testing.T) {
	address, _ := startBroker(t, "127.0.0.1:0")
	alpha := startClient(t, address, "alpha")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wide, err := alpha.Subscribe(ctx, "burrow/#")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	narrow, err := alpha.Subscribe(ctx, TopicAnnounce)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	waitForDelivery(t, alpha, TopicAnnounce, KindAnnounce, Announce{NodeID: "a"}, narrow)
	// The wide subscription sees the same envelope; the broker sends it
	// once and the client fans it out locally.
	testutil.RequireReceive(t, wide, testTimeout, "wildcard delivery")
}

func TestClientResubscribesAfterReconnect(t *testing.T) {
	address, stop := startBroker(t, "127.0.0.1:0")
	alpha := startClient(t, address, "alpha")
	beta := startClient(t, address, "beta")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	announcements, err := beta.Subscribe(ctx, TopicAnnounce)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	waitForDelivery(t, alpha, TopicAnnounce, KindAnnounce, Announce{NodeID: "a"}, announcements)

	stop()
	testutil.Eventually(t, testTimeout, 10*time.Millisecond, func() bool {
		select {
		case <-beta.Connected():
			return false
		default:
			return true
		}
	}, "client did not notice the broker going away")

	startBroker(t, address)
	testutil.RequireClosed(t, alpha.Connected(), testTimeout, "alpha did not reconnect")
	testutil.RequireClosed(t, beta.Connected(), testTimeout, "beta did not reconnect")

	waitForDelivery(t, alpha, TopicAnnounce, KindAnnounce, Announce{NodeID: "a"}, announcements)
}

func TestClientClosedAfterRun(t *testing.T) {
	client := NewClient("127.0.0.1:1", "alpha", quietLogger())
	client.MinRetryInterval = time.Millisecond
	client.MaxRetryInterval = time.Millisecond

	sub, err := client.Subscribe(context.Background(), TopicAnnounce)
	if err != nil {
		t.Fatalf("Subscribe before Run: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()
	cancel()
	if err := testutil.RequireReceive(t, done, testTimeout, "Run return"); err != nil {
		t.Fatalf("Run = %v, want nil", err)
	}

	if _, ok := <-sub; ok {
		t.Fatal("subscription still open after Run returned")
	}
	if err := client.Publish(context.Background(), TopicAnnounce, KindAnnounce, nil); !errors.Is(err, ErrBusClosed) {
		t.Errorf("Publish after Run = %v, want ErrBusClosed", err)
	}
}

func TestClientPublishWaitsForConnection(t *testing.T) {
	client := NewClient("127.0.0.1:1", "alpha", quietLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := client.Publish(ctx, TopicAnnounce, KindAnnounce, nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Publish without connection = %v, want DeadlineExceeded", err)
	}
}

func TestBrokerRejectsClientWithoutHello(t *testing.T) {
	address, _ := startBroker(t, "127.0.0.1:0")
	conn, err := net.Dial("tcp", address)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := newFrameConn(conn).send(frame{Op: opSubscribe, Pattern: "#"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(testTimeout))
	if _, err := conn.Read(make([]byte, 1)); err == nil {
		t.Fatal("broker kept a connection that skipped hello")
	}
}
