// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package tunnel

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// allocator returns a zeroed region of the requested size.
type allocator func(size int) ([]byte, error)

// makeBuffer is the production allocator. The Go runtime aborts rather
// than returning an error when memory is exhausted, so it never fails;
// tests substitute allocators that do.
func makeBuffer(size int) ([]byte, error) {
	return make([]byte, size), nil
}

// buffer is an endpoint's scratch region. Every access to data goes
// through acquire/release; capacity mirrors len(data) so statistics can
// report it without waiting for a pump blocked in a read.
type buffer struct {
	mu       sync.Mutex
	data     []byte
	capacity atomic.Int64
}

func (b *buffer) acquire() { b.mu.Lock() }

func (b *buffer) release() { b.mu.Unlock() }

// allocate installs a fresh region of size bytes, dropping the previous
// one. On failure the previous region stays in place.
func (b *buffer) allocate(size int, allocate allocator) error {
	b.acquire()
	defer b.release()
	return b.replaceLocked(size, allocate)
}

func (b *buffer) replaceLocked(size int, allocate allocator) error {
	region, err := allocate(size)
	if err != nil {
		return err
	}
	if len(region) != size {
		return fmt.Errorf("allocator returned %d bytes, want %d", len(region), size)
	}
	b.data = region
	b.capacity.Store(int64(size))
	return nil
}

// free drops the region.
func (b *buffer) free() {
	b.acquire()
	defer b.release()
	b.data = nil
	b.capacity.Store(0)
}

// size returns the current capacity without taking the lock.
func (b *buffer) size() int {
	return int(b.capacity.Load())
}
