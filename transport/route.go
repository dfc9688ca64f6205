// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"
)

// Route is one way of reaching a peer: a dialer and the address it
// understands.
type Route struct {
	Dialer  Dialer
	Address string
}

func (r Route) String() string {
	return fmt.Sprintf("%T %s", r.Dialer, r.Address)
}

// RouteDialer reaches a peer over the first of several routes that
// connects, typically its announced TCP addresses followed by WebRTC.
// The address passed to DialContext is only used in errors; each route
// carries its own.
type RouteDialer struct {
	Routes []Route

	// AttemptTimeout bounds each route except the last. Zero means 5
	// seconds.
	AttemptTimeout time.Duration

	Logger *slog.Logger
}

// DialContext tries every route in order.
func (d *RouteDialer) DialContext(ctx context.Context, address string) (net.Conn, error) {
	if len(d.Routes) == 0 {
		return nil, fmt.Errorf("no route to %s", address)
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := d.AttemptTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	var errs []error
	for index, route := range d.Routes {
		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if index < len(d.Routes)-1 {
			attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		conn, err := route.Dialer.DialContext(attemptCtx, route.Address)
		cancel()
		if err == nil {
			logger.Debug("route connected", "peer", address, "route", route.String())
			return conn, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", route.Address, err))
		if ctx.Err() != nil {
			break
		}
		logger.Debug("route failed", "peer", address, "route", route.String(), "error", err)
	}
	return nil, fmt.Errorf("no route to %s: %w", address, errors.Join(errs...))
}
