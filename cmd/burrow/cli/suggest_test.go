// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"testing"

	"github.com/spf13/pflag"
)

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"serve", "serve", 0},
		{"serve", "sever", 2},
		{"peers", "peer", 1},
		{"kitten", "sitting", 3},
	}
	for _, test := range tests {
		if got := levenshtein(test.a, test.b); got != test.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", test.a, test.b, got, test.want)
		}
	}
}

func TestSuggestCommand(t *testing.T) {
	commands := []*Command{{Name: "serve"}, {Name: "shell"}, {Name: "identity"}}
	tests := []struct {
		input, want string
	}{
		{"serv", "serve"},
		{"shel", "shell"},
		{"identiy", "identity"},
		{"completely-different", ""},
	}
	for _, test := range tests {
		if got := suggestCommand(test.input, commands); got != test.want {
			t.Errorf("suggestCommand(%q) = %q, want %q", test.input, got, test.want)
		}
	}
}

func TestSuggestFlag(t *testing.T) {
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flagSet.String("listen", "", "")
	flagSet.BoolP("verbose", "v", false, "")

	if got := suggestFlag([]string{"-v", "--lisen=:1"}, flagSet); got != "--listen" {
		t.Errorf("suggestFlag = %q, want --listen", got)
	}
	if got := suggestFlag([]string{"--zzzzzzzzzz"}, flagSet); got != "" {
		t.Errorf("suggestFlag = %q, want no suggestion", got)
	}
}
