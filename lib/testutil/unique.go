// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"sync/atomic"
)

var uniqueCounter atomic.Uint64

// UniqueID returns a string of the form "prefix-N" where N increases
// monotonically across the test binary. Use it for node names and
// topics that must not collide between parallel tests sharing a bus.
//
//	name := testutil.UniqueID("node") // "node-1", "node-2", ...
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, uniqueCounter.Add(1))
}
