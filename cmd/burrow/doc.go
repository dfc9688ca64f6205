// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

// Burrow connects machines behind NAT. Run "burrow serve" on every node
// and "burrow broker" somewhere all of them can reach, then open
// sessions by peer name:
//
//	burrow peers
//	burrow ssh alpha 127.0.0.1:2222
//	burrow forward alpha 127.0.0.1:5432 db.internal:5432
//	burrow shell alpha
//
// The configuration file is named by --config or BURROW_CONFIG.
package main
