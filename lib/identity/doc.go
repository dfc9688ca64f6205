// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity manages a node's TLS material and derives node IDs.
//
// Every burrow node holds one certificate and private key. By default
// the pair is self-signed and generated on first start ([LoadOrGenerate]);
// operators who run their own CA point the configuration at a signed pair
// and a CA bundle instead.
//
// A node ID is the hex encoding of the first 16 bytes of the BLAKE3 hash
// of the certificate's SubjectPublicKeyInfo ([NodeID]). It is stable
// across certificate renewals that keep the key, and it is what peers
// pin when no CA is configured.
//
// [Identity.ServerConfig] and [Identity.ClientConfig] build TLS 1.3
// configurations with mutual authentication. Peers are accepted when
// they chain to the CA pool if one is configured, otherwise when their
// node ID is in the pin list; an empty pin list accepts any peer that
// proves possession of its key, and the caller reads its ID with
// [PeerID].
package identity
