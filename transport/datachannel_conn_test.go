// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bytes"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"testing"
	"time"
)

// streamPair returns two DataChannelConns joined by io.Pipes, standing
// in for the two ends of a detached data channel.
func streamPair(t *testing.T) (*DataChannelConn, *DataChannelConn) {
	t.Helper()
	clientReader, serverWriter := io.Pipe()
	serverReader, clientWriter := io.Pipe()

	client := NewDataChannelConn(&pipeStream{clientReader, clientWriter}, "client/tunnel-1", "server/tunnel-1")
	server := NewDataChannelConn(&pipeStream{serverReader, serverWriter}, "server/tunnel-1", "client/tunnel-1")
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}

func TestDataChannelConn_ReadWrite(t *testing.T) {
	client, server := streamPair(t)

	message := []byte("hello from client")
	go func() {
		if _, err := client.Write(message); err != nil {
			t.Errorf("Write error: %v", err)
		}
	}()

	buffer := make([]byte, len(message))
	if _, err := io.ReadFull(server, buffer); err != nil {
		t.Fatalf("ReadFull error: %v", err)
	}
	if !bytes.Equal(buffer, message) {
		t.Errorf("read = %q, want %q", buffer, message)
	}
}

func TestDataChannelConn_LargeWriteIsChunked(t *testing.T) {
	recorder := &recordingStream{}
	conn := NewDataChannelConn(recorder, "local", "remote")
	defer conn.Close()

	payload := bytes.Repeat([]byte{0xAB}, 3*dataChannelChunk+100)
	n, err := conn.Write(payload)
	if err != nil || n != len(payload) {
		t.Fatalf("Write = %d, %v", n, err)
	}

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	if len(recorder.writes) != 4 {
		t.Fatalf("%d messages sent, want 4", len(recorder.writes))
	}
	for i, size := range recorder.writes {
		if size > dataChannelChunk {
			t.Errorf("message %d is %d bytes, limit %d", i, size, dataChannelChunk)
		}
	}
}

func TestDataChannelConn_PartialReadsKeepRemainder(t *testing.T) {
	client, server := streamPair(t)

	go client.Write([]byte("abcdef"))

	first := make([]byte, 2)
	if _, err := io.ReadFull(server, first); err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	rest := make([]byte, 4)
	if _, err := io.ReadFull(server, rest); err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	if string(first)+string(rest) != "abcdef" {
		t.Errorf("read %q + %q", first, rest)
	}
}

func TestDataChannelConn_Addresses(t *testing.T) {
	conn := NewDataChannelConn(&recordingStream{}, "local/tunnel-1", "remote/tunnel-1")
	defer conn.Close()

	if conn.LocalAddr().Network() != "webrtc" {
		t.Errorf("LocalAddr().Network() = %q, want webrtc", conn.LocalAddr().Network())
	}
	if conn.LocalAddr().String() != "local/tunnel-1" {
		t.Errorf("LocalAddr().String() = %q", conn.LocalAddr().String())
	}
	if conn.RemoteAddr().String() != "remote/tunnel-1" {
		t.Errorf("RemoteAddr().String() = %q", conn.RemoteAddr().String())
	}
}

func TestDataChannelConn_ReadDeadlineIsRecoverable(t *testing.T) {
	client, server := streamPair(t)

	server.SetReadDeadline(time.Now().Add(20 * time.Millisecond))
	_, err := server.Read(make([]byte, 8))
	if !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Fatalf("Read past deadline = %v, want os.ErrDeadlineExceeded", err)
	}
	var netErr net.Error
	if !errors.As(err, &netErr) || !netErr.Timeout() {
		t.Errorf("deadline error %v is not a net.Error timeout", err)
	}

	// Clearing the deadline makes the connection usable again.
	server.SetReadDeadline(time.Time{})
	go client.Write([]byte("still alive"))

	buffer := make([]byte, len("still alive"))
	if _, err := io.ReadFull(server, buffer); err != nil {
		t.Fatalf("Read after clearing deadline: %v", err)
	}
	if string(buffer) != "still alive" {
		t.Errorf("read = %q", buffer)
	}
}

func TestDataChannelConn_ExpiredDeadlineFailsImmediately(t *testing.T) {
	_, server := streamPair(t)
	server.SetDeadline(time.Now().Add(-time.Second))

	if _, err := server.Read(make([]byte, 1)); !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Errorf("Read = %v, want os.ErrDeadlineExceeded", err)
	}
	if _, err := server.Write([]byte("x")); !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Errorf("Write = %v, want os.ErrDeadlineExceeded", err)
	}
}

func TestDataChannelConn_CloseUnblocksRead(t *testing.T) {
	_, server := streamPair(t)

	result := make(chan error, 1)
	go func() {
		_, err := server.Read(make([]byte, 1))
		result <- err
	}()
	time.Sleep(20 * time.Millisecond)
	server.Close()

	select {
	case err := <-result:
		if !errors.Is(err, net.ErrClosed) {
			t.Errorf("Read after Close = %v, want net.ErrClosed", err)
		}
	case <-time.After(testTimeout):
		t.Fatal("Read did not return after Close")
	}
}

func TestDataChannelConn_PeerCloseIsEOF(t *testing.T) {
	client, server := streamPair(t)
	client.Close()

	if _, err := io.ReadAll(server); err != nil {
		t.Errorf("ReadAll after peer close = %v, want clean EOF", err)
	}
}

// pipeStream joins a reader and writer into the ReadWriteCloser a
// detached data channel provides.
type pipeStream struct {
	*io.PipeReader
	*io.PipeWriter
}

func (p *pipeStream) Read(b []byte) (int, error)  { return p.PipeReader.Read(b) }
func (p *pipeStream) Write(b []byte) (int, error) { return p.PipeWriter.Write(b) }

func (p *pipeStream) Close() error {
	p.PipeReader.Close()
	return p.PipeWriter.Close()
}

// recordingStream records write sizes and blocks reads until closed.
type recordingStream struct {
	mu     sync.Mutex
	writes []int
	once   sync.Once
	done   chan struct{}
}

func (r *recordingStream) Read([]byte) (int, error) {
	r.init()
	<-r.done
	return 0, io.EOF
}

func (r *recordingStream) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes = append(r.writes, len(p))
	return len(p), nil
}

func (r *recordingStream) Close() error {
	r.init()
	select {
	case <-r.done:
	default:
		close(r.done)
	}
	return nil
}

func (r *recordingStream) init() {
	r.once.Do(func() { r.done = make(chan struct{}) })
}
