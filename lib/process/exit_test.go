// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

type usageError struct{}

func (usageError) Error() string { return "bad flag" }
func (usageError) ExitCode() int { return 2 }

func TestReport(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		text string
	}{
		{"plain", errors.New("boom"), 1, "error: boom\n"},
		{"wrapped exit code", fmt.Errorf("parsing: %w", usageError{}), 2, "error: parsing: bad flag\n"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var output bytes.Buffer
			if code := report(&output, test.err); code != test.code {
				t.Errorf("code = %d, want %d", code, test.code)
			}
			if output.String() != test.text {
				t.Errorf("output = %q, want %q", output.String(), test.text)
			}
		})
	}
}
