// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package tunnel

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"io"
	"log/slog"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/burrow-net/burrow/lib/testutil"
)

const testTimeout = 10 * time.Second

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// pipeTunnel is a running tunnel between two net.Pipe connections. The
// test drives traffic through leftPeer and rightPeer.
type pipeTunnel struct {
	tunnel    *Tunnel
	leftPeer  net.Conn
	rightPeer net.Conn
	result    chan error
}

func startPipeTunnel(t *testing.T, options ...Option) *pipeTunnel {
	t.Helper()
	leftPeer, leftConn := net.Pipe()
	rightConn, rightPeer := net.Pipe()

	options = append([]Option{WithLogger(quietLogger())}, options...)
	tun, err := New(Socket("left", leftConn), Socket("right", rightConn), options...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return runTunnel(t, tun, leftPeer, rightPeer)
}

func runTunnel(t *testing.T, tun *Tunnel, leftPeer, rightPeer net.Conn) *pipeTunnel {
	t.Helper()
	result := make(chan error, 1)
	go func() { result <- tun.Run(context.Background()) }()
	t.Cleanup(func() {
		if leftPeer != nil {
			leftPeer.Close()
		}
		if rightPeer != nil {
			rightPeer.Close()
		}
		tun.Close()
	})
	return &pipeTunnel{tunnel: tun, leftPeer: leftPeer, rightPeer: rightPeer, result: result}
}

// wait returns Run's result.
func (p *pipeTunnel) wait(t *testing.T) error {
	t.Helper()
	return testutil.RequireReceive(t, p.result, testTimeout, "waiting for Run to return")
}

// send writes chunk into one peer and reads it back from the other.
func send(t *testing.T, from, to net.Conn, chunk []byte) {
	t.Helper()
	written := make(chan error, 1)
	go func() {
		_, err := from.Write(chunk)
		written <- err
	}()
	received := make([]byte, len(chunk))
	if _, err := io.ReadFull(to, received); err != nil {
		t.Fatalf("reading relayed chunk: %v", err)
	}
	if err := testutil.RequireReceive(t, written, testTimeout, "writing chunk"); err != nil {
		t.Fatalf("writing chunk: %v", err)
	}
	if string(received) != string(chunk) {
		t.Fatalf("relayed chunk differs from the one sent")
	}
}

func pattern(size int, seed byte) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i*7+i/251) ^ seed
	}
	return data
}

// testCertificate returns a self-signed certificate for "localhost" and
// a pool that trusts it.
func testCertificate(t *testing.T) (tls.Certificate, *x509.CertPool) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "localhost"},
		DNSNames:              []string{"localhost"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("creating certificate: %v", err)
	}
	parsed, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parsing certificate: %v", err)
	}
	pool := x509.NewCertPool()
	pool.AddCert(parsed)
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: parsed}, pool
}
