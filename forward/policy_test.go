// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package forward

import (
	"errors"
	"slices"
	"testing"
)

func TestPolicyAuthorize(t *testing.T) {
	policy := Policy{
		Allow: []string{"127.0.0.1:22", "db.internal:5432"},
		Shell: "/bin/sh",
	}
	tests := []struct {
		name    string
		request Request
		want    string
		wantErr error
	}{
		{"tcp allowed", Request{Kind: KindTCP, Target: "db.internal:5432"}, "db.internal:5432", nil},
		{"tcp not listed", Request{Kind: KindTCP, Target: "db.internal:5433"}, "", ErrNotAllowed},
		{"ssh default target", Request{Kind: KindSSH}, "127.0.0.1:22", nil},
		{"ssh explicit target", Request{Kind: KindSSH, Target: "10.0.0.5:22"}, "", ErrNotAllowed},
		{"shell", Request{Kind: KindShell}, "", nil},
		{"unknown kind", Request{Kind: "vnc"}, "", ErrUnknownKind},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := policy.Authorize(test.request)
			if test.wantErr != nil {
				if !errors.Is(err, test.wantErr) {
					t.Fatalf("Authorize() error = %v, want %v", err, test.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Authorize() error = %v", err)
			}
			if got != test.want {
				t.Errorf("Authorize() = %q, want %q", got, test.want)
			}
		})
	}
}

func TestPolicyAuthorizeMalformed(t *testing.T) {
	policy := Policy{Allow: []string{"*"}}
	if _, err := policy.Authorize(Request{Kind: KindTCP}); err == nil {
		t.Error("tcp request without a target was authorized")
	}
	if _, err := policy.Authorize(Request{Kind: KindTCP, Target: "no-port"}); err == nil {
		t.Error("target without a port was authorized")
	}
	if got, err := policy.Authorize(Request{Kind: KindTCP, Target: "anything:80"}); err != nil || got != "anything:80" {
		t.Errorf("wildcard Authorize() = %q, %v", got, err)
	}
}

func TestPolicyShellDisabled(t *testing.T) {
	if _, err := (Policy{}).Authorize(Request{Kind: KindShell}); !errors.Is(err, ErrShellDisabled) {
		t.Errorf("Authorize() error = %v, want ErrShellDisabled", err)
	}
}

func TestPolicyServices(t *testing.T) {
	tests := []struct {
		policy Policy
		want   []string
	}{
		{Policy{}, nil},
		{Policy{Allow: []string{"db:5432"}}, []string{"tcp"}},
		{Policy{Allow: []string{"127.0.0.1:22"}, Shell: "/bin/sh"}, []string{"tcp", "ssh", "shell"}},
		{Policy{Allow: []string{"*"}}, []string{"tcp", "ssh"}},
	}
	for _, test := range tests {
		if got := test.policy.Services(); !slices.Equal(got, test.want) {
			t.Errorf("Services(%+v) = %v, want %v", test.policy, got, test.want)
		}
	}
}
