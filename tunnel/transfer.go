// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package tunnel

import (
	"errors"
	"io"
)

// transfer performs one relay step from the endpoint on side src to the
// endpoint on the other side: one read into the source buffer, then
// writes to the destination until everything read has been delivered.
// The source buffer lock is held across both. A would-block read is a
// successful step that moved nothing. Returns the bytes delivered.
func (t *Tunnel) transfer(src Direction) (int, error) {
	source := t.endpoints[src]
	destination := t.endpoints[src.Other()]

	source.buffer.acquire()
	defer source.buffer.release()

	data := source.buffer.data
	n, err := source.transport.Read(data)
	if err != nil {
		if errors.Is(err, ErrWouldBlock) {
			return 0, nil
		}
		return 0, source.annotate("read", err)
	}
	if n == 0 {
		return 0, &Error{Kind: KindPeerClosed, Endpoint: source.name, Op: "read", Err: errZeroRead}
	}

	written, err := writeAll(destination.transport, data[:n])
	if err != nil {
		return written, destination.annotate("write", err)
	}

	destination.counters.recordDelivery(written, destination.kind == TransportTLS)
	source.counters.recordHop(written, n == len(data))
	return written, nil
}

// writeAll writes p to w, retrying short writes. A write that makes no
// progress without reporting an error fails with io.ErrShortWrite.
func writeAll(w Transport, p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n, err := w.Write(p[written:])
		written += n
		if err != nil {
			return written, err
		}
		if n == 0 {
			return written, &Error{Kind: KindIO, Err: io.ErrShortWrite}
		}
	}
	return written, nil
}
