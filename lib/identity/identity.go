// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
)

// Validity is how long a generated certificate is valid.
const Validity = 365 * 24 * time.Hour

// Identity is a node's certificate, key and derived ID.
type Identity struct {
	// Certificate carries the chain and private key. Leaf is always
	// populated.
	Certificate tls.Certificate

	// ID is the node ID derived from the certificate's public key.
	ID string

	// CA, when set, replaces node-ID pinning with chain verification.
	CA *x509.CertPool
}

// NodeID returns the node ID of a certificate.
func NodeID(certificate *x509.Certificate) string {
	sum := blake3.Sum256(certificate.RawSubjectPublicKeyInfo)
	return hex.EncodeToString(sum[:16])
}

// Generate creates a self-signed ECDSA P-256 identity for name, valid
// for both server and client authentication.
func Generate(name string) (*Identity, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating P-256 key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("generating serial number: %w", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: name, Organization: []string{"burrow"}},
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.Add(Validity),
		// Self-signed: the certificate is its own issuer, so it must be
		// allowed to sign certificates for chain checks to pass.
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("creating certificate: %w", err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parsing generated certificate: %w", err)
	}
	return &Identity{
		Certificate: tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: leaf},
		ID:          NodeID(leaf),
	}, nil
}

// Load reads a PEM certificate chain and private key.
func Load(certificatePath, keyPath string) (*Identity, error) {
	certificate, err := tls.LoadX509KeyPair(certificatePath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("loading key pair: %w", err)
	}
	if certificate.Leaf == nil {
		leaf, err := x509.ParseCertificate(certificate.Certificate[0])
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", certificatePath, err)
		}
		certificate.Leaf = leaf
	}
	return &Identity{Certificate: certificate, ID: NodeID(certificate.Leaf)}, nil
}

// Save writes the certificate chain (0644) and private key (0600) as
// PEM, creating parent directories.
func (id *Identity) Save(certificatePath, keyPath string) error {
	keyDER, err := x509.MarshalPKCS8PrivateKey(id.Certificate.PrivateKey)
	if err != nil {
		return fmt.Errorf("encoding private key: %w", err)
	}
	var chain []byte
	for _, der := range id.Certificate.Certificate {
		chain = append(chain, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})...)
	}

	for _, path := range []string{certificatePath, keyPath} {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
		}
	}
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		return fmt.Errorf("writing private key: %w", err)
	}
	if err := os.WriteFile(certificatePath, chain, 0o644); err != nil {
		return fmt.Errorf("writing certificate: %w", err)
	}
	return nil
}

// LoadOrGenerate loads the pair at the given paths, or generates and
// saves a new one for name when neither file exists. Returns whether
// the identity was newly generated. A half-present pair is an error
// rather than something to overwrite.
func LoadOrGenerate(name, certificatePath, keyPath string) (*Identity, bool, error) {
	_, certificateErr := os.Stat(certificatePath)
	_, keyErr := os.Stat(keyPath)
	certificateMissing := errors.Is(certificateErr, os.ErrNotExist)
	keyMissing := errors.Is(keyErr, os.ErrNotExist)

	switch {
	case !certificateMissing && !keyMissing:
		id, err := Load(certificatePath, keyPath)
		return id, false, err
	case certificateMissing != keyMissing:
		return nil, false, fmt.Errorf("only one of %s and %s exists; remove it or restore the other", certificatePath, keyPath)
	}

	id, err := Generate(name)
	if err != nil {
		return nil, false, err
	}
	if err := id.Save(certificatePath, keyPath); err != nil {
		return nil, false, err
	}
	return id, true, nil
}

// LoadCA reads a PEM bundle of trusted CA certificates.
func LoadCA(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading CA bundle: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("no certificates found in %s", path)
	}
	return pool, nil
}
