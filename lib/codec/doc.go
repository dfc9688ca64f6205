// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides burrow's CBOR encoding configuration.
//
// Every structured message burrow puts on the wire is CBOR: signaling
// envelopes between nodes and the broker, announcements, WebRTC
// offers and answers, and the request/response header at the start of
// a forwarded connection. Configuration files are YAML and never pass
// through this package.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2), so the
// same logical message always produces identical bytes. The decoder
// bounds string, array and map sizes so a malformed or hostile peer
// cannot make a node allocate without limit.
//
// For buffer-oriented operations:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For streams:
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// Wire types use `cbor` struct tags with short snake_case keys.
package codec
