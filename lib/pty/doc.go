// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

// Package pty allocates Linux pseudo-terminals through the devpts
// interface and starts processes on them.
//
// [Open] returns an unlocked master and the path of its slave. [Start]
// runs a command as the session leader of a fresh PTY, with the slave as
// its controlling terminal and standard streams, and hands back the
// master. [SetSize] and [Size] read and write the window dimensions.
//
// The master is opened through os.OpenFile so it is registered with the
// runtime poller: closing it interrupts a pending Read, which the tunnel
// relies on for teardown. Reads from the master fail with EIO once every
// slave descriptor is closed, which callers treat as end of stream.
package pty
