// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package forward

import (
	"errors"
	"fmt"
	"net"
	"slices"
)

var (
	// ErrNotAllowed is returned for a target missing from the allow list.
	ErrNotAllowed = errors.New("target not allowed")

	// ErrShellDisabled is returned for shell requests when no shell is
	// configured.
	ErrShellDisabled = errors.New("remote shells are disabled")

	// ErrUnknownKind is returned for a request kind this node does not
	// serve.
	ErrUnknownKind = errors.New("unknown request kind")
)

// Policy decides which requests a [Server] honors.
type Policy struct {
	// Allow lists host:port targets TCP and SSH requests may reach. A
	// "*" entry allows any target.
	Allow []string

	// Shell is the program started for shell sessions. Empty refuses
	// them.
	Shell string

	// ShellArgs are passed to Shell.
	ShellArgs []string
}

// Authorize checks request and returns the target to dial. Shell
// requests return an empty target.
func (p Policy) Authorize(request Request) (string, error) {
	switch request.Kind {
	case KindShell:
		if p.Shell == "" {
			return "", ErrShellDisabled
		}
		return "", nil
	case KindSSH:
		target := request.Target
		if target == "" {
			target = DefaultSSHTarget
		}
		return p.allow(target)
	case KindTCP:
		if request.Target == "" {
			return "", fmt.Errorf("tcp request without a target")
		}
		return p.allow(request.Target)
	default:
		return "", fmt.Errorf("%w %q", ErrUnknownKind, request.Kind)
	}
}

func (p Policy) allow(target string) (string, error) {
	if _, _, err := net.SplitHostPort(target); err != nil {
		return "", fmt.Errorf("target %q: %w", target, err)
	}
	if slices.Contains(p.Allow, "*") || slices.Contains(p.Allow, target) {
		return target, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNotAllowed, target)
}

// Services lists the request kinds the policy can serve, for
// announcements.
func (p Policy) Services() []string {
	var services []string
	if len(p.Allow) > 0 {
		services = append(services, string(KindTCP))
	}
	if slices.Contains(p.Allow, "*") || slices.Contains(p.Allow, DefaultSSHTarget) {
		services = append(services, string(KindSSH))
	}
	if p.Shell != "" {
		services = append(services, string(KindShell))
	}
	return services
}
