// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package exitcode

import (
	"errors"
)

// Process exit codes reported by skillctl.
const (
	OK                 = 0
	Generic            = 1
	InvalidSource      = 2
	Fetch              = 3
	SubdirNotFound     = 4
	Install            = 5
	RegistryCorruption = 6
	AuditFailed        = 7
)

// CodedError wraps an error with the exit code the process should return.
type CodedError struct {
	err  error
	code int
}

// Error implements the error interface.
func (e *CodedError) Error() string {
	return e.err.Error()
}

// Unwrap returns the underlying error for errors.Is() and errors.As() compatibility.
func (e *CodedError) Unwrap() error {
	return e.err
}

// ExitCode returns the exit code associated with this error.
func (e *CodedError) ExitCode() int {
	return e.code
}

// WithCode wraps an error with an exit code.
// If err is nil, WithCode returns nil.
func WithCode(err error, code int) error {
	if err == nil {
		return nil
	}
	return &CodedError{err: err, code: code}
}

// Code extracts the exit code from an error chain.
// It returns OK for a nil error and Generic when no CodedError is found.
func Code(err error) int {
	if err == nil {
		return OK
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.code
	}

	return Generic
}

// New creates a new error with the given message and exit code.
func New(message string, code int) error {
	return &CodedError{err: errors.New(message), code: code}
}
