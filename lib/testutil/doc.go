// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for burrow packages.
//
// [RequireReceive], [RequireSend], and [RequireClosed] wrap every wait
// that could hang a test in a timeout, so individual tests never call
// time.After directly.
//
// [LoopbackPair] returns two ends of a real TCP connection on the
// loopback interface, for tests that need OS descriptors, deadlines and
// kernel buffering (net.Pipe has none of these). [UniqueID] generates
// distinguishable identifiers for topics and node names.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
