// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides the binary entrypoint error handler. main()
// calls [Fatal] with the error from run() when the structured logger
// may not exist yet.
package process
