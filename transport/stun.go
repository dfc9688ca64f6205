// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/pion/stun/v3"
)

// DiscoverPublicAddress sends a STUN binding request to server
// (host:port, optionally prefixed "stun:") and returns the
// XOR-mapped address the server observed, as host:port.
func DiscoverPublicAddress(ctx context.Context, server string) (string, error) {
	server = strings.TrimPrefix(server, "stun:")

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "udp", server)
	if err != nil {
		return "", fmt.Errorf("dialing STUN server %s: %w", server, err)
	}
	defer conn.Close()

	client, err := stun.NewClient(conn)
	if err != nil {
		return "", fmt.Errorf("creating STUN client: %w", err)
	}
	defer client.Close()

	// Closing the client aborts an in-flight transaction.
	stop := context.AfterFunc(ctx, func() { client.Close() })
	defer stop()

	var (
		mapped      stun.XORMappedAddress
		responseErr error
	)
	request := stun.MustBuild(stun.TransactionID, stun.BindingRequest, stun.Fingerprint)
	err = client.Do(request, func(event stun.Event) {
		if event.Error != nil {
			responseErr = event.Error
			return
		}
		responseErr = mapped.GetFrom(event.Message)
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", fmt.Errorf("STUN binding request to %s: %w", server, ctxErr)
	}
	if err = errors.Join(err, responseErr); err != nil {
		return "", fmt.Errorf("STUN binding request to %s: %w", server, err)
	}
	return net.JoinHostPort(mapped.IP.String(), strconv.Itoa(mapped.Port)), nil
}
