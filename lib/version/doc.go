// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build version information for the burrow
// binary.
//
// Four package-level variables are injected at build time via
// -ldflags -X: [GitCommit], [GitDirty], [BuildTime] and [Version]. They
// default to "unknown" / "0.1.0-dev" in development builds and tests.
//
// [Info] formats them for --version output, [Full] adds the Go version
// and platform, and [Wire] is the compact form a node sends in its
// signaling announcements.
package version
