// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"slices"
	"time"
)

// ServerConfig returns a TLS 1.3 server configuration that requires a
// client certificate and accepts the peers described on the package.
func (id *Identity) ServerConfig(pins ...string) *tls.Config {
	return &tls.Config{
		MinVersion:       tls.VersionTLS13,
		Certificates:     []tls.Certificate{id.Certificate},
		ClientAuth:       tls.RequireAnyClientCert,
		VerifyConnection: id.verifier(x509.ExtKeyUsageClientAuth, pins),
	}
}

// ClientConfig returns a TLS 1.3 client configuration presenting this
// identity. Standard hostname verification is replaced by the peer
// check described on the package: peers are nodes, not hostnames.
func (id *Identity) ClientConfig(pins ...string) *tls.Config {
	return &tls.Config{
		MinVersion:   tls.VersionTLS13,
		Certificates: []tls.Certificate{id.Certificate},
		// Verification happens in VerifyConnection, which crypto/tls
		// runs regardless of this flag.
		InsecureSkipVerify: true,
		VerifyConnection:   id.verifier(x509.ExtKeyUsageServerAuth, pins),
	}
}

func (id *Identity) verifier(usage x509.ExtKeyUsage, pins []string) func(tls.ConnectionState) error {
	return func(state tls.ConnectionState) error {
		if len(state.PeerCertificates) == 0 {
			return errors.New("identity: peer presented no certificate")
		}
		leaf := state.PeerCertificates[0]

		if id.CA != nil {
			intermediates := x509.NewCertPool()
			for _, certificate := range state.PeerCertificates[1:] {
				intermediates.AddCert(certificate)
			}
			_, err := leaf.Verify(x509.VerifyOptions{
				Roots:         id.CA,
				Intermediates: intermediates,
				KeyUsages:     []x509.ExtKeyUsage{usage},
			})
			if err != nil {
				return fmt.Errorf("identity: peer certificate: %w", err)
			}
			return nil
		}

		now := time.Now()
		if now.Before(leaf.NotBefore) || now.After(leaf.NotAfter) {
			return fmt.Errorf("identity: peer certificate valid %s to %s",
				leaf.NotBefore.Format(time.RFC3339), leaf.NotAfter.Format(time.RFC3339))
		}
		peer := NodeID(leaf)
		if len(pins) > 0 && !slices.Contains(pins, peer) {
			return fmt.Errorf("identity: peer %s is not pinned", peer)
		}
		return nil
	}
}

// PeerID returns the node ID of the peer in an established session, or
// "" when the peer presented no certificate.
func PeerID(state tls.ConnectionState) string {
	if len(state.PeerCertificates) == 0 {
		return ""
	}
	return NodeID(state.PeerCertificates[0])
}
