// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// ErrorCategory classifies command errors so that scripts can tell bad
// input from a peer that could not be reached without parsing text.
type ErrorCategory string

const (
	// CategoryValidation indicates invalid input: wrong argument count,
	// unknown flags, an invalid configuration file.
	CategoryValidation ErrorCategory = "validation"

	// CategoryNotFound indicates a referenced peer or file does not exist.
	CategoryNotFound ErrorCategory = "not_found"

	// CategoryTransient indicates a failure that may succeed on retry:
	// an unreachable broker or peer, a timeout.
	CategoryTransient ErrorCategory = "transient"

	// CategoryInternal indicates an unexpected failure.
	CategoryInternal ErrorCategory = "internal"
)

// Exit codes by category. Scripts wrapping burrow rely on these.
var exitCodes = map[ErrorCategory]int{
	CategoryValidation: 2,
	CategoryNotFound:   3,
	CategoryTransient:  4,
	CategoryInternal:   1,
}

// Error is a categorized command error. Use the category constructors
// rather than building one directly.
type Error struct {
	Category ErrorCategory
	Err      error
}

func (e *Error) Error() string { return e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// ExitCode returns the process exit code for the error's category.
func (e *Error) ExitCode() int {
	if code, ok := exitCodes[e.Category]; ok {
		return code
	}
	return 1
}

// Validation creates a validation error: the caller provided bad input.
func Validation(format string, args ...any) *Error {
	return &Error{Category: CategoryValidation, Err: fmt.Errorf(format, args...)}
}

// NotFound creates a not-found error.
func NotFound(format string, args ...any) *Error {
	return &Error{Category: CategoryNotFound, Err: fmt.Errorf(format, args...)}
}

// Transient creates a transient error.
func Transient(format string, args ...any) *Error {
	return &Error{Category: CategoryTransient, Err: fmt.Errorf(format, args...)}
}

// Internal creates an internal error.
func Internal(format string, args ...any) *Error {
	return &Error{Category: CategoryInternal, Err: fmt.Errorf(format, args...)}
}
