// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package fetch

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

// Class is the retry classification of a fetch error.
type Class int

const (
	// Permanent errors are not retried.
	Permanent Class = iota
	// Transient errors are retried with backoff.
	Transient
)

// String implements fmt.Stringer.
func (c Class) String() string {
	if c == Transient {
		return "transient"
	}
	return "permanent"
}

var permanentErrors = []error{
	transport.ErrAuthenticationRequired,
	transport.ErrAuthorizationFailed,
	transport.ErrRepositoryNotFound,
	transport.ErrEmptyRemoteRepository,
	transport.ErrInvalidAuthMethod,
	plumbing.ErrReferenceNotFound,
	context.Canceled,
	context.DeadlineExceeded,
}

var transientErrnos = []syscall.Errno{
	syscall.ECONNRESET,
	syscall.ECONNREFUSED,
	syscall.ECONNABORTED,
	syscall.ETIMEDOUT,
	syscall.EPIPE,
	syscall.ENETUNREACH,
	syscall.EHOSTUNREACH,
}

var transientPatterns = []string{
	"connection reset",
	"connection refused",
	"broken pipe",
	"timeout",
	"timed out",
	"temporary failure",
	"could not resolve host",
	"no such host",
	"unexpected eof",
	"tls handshake",
	"502 bad gateway",
	"503 service unavailable",
	"504 gateway timeout",
}

// Classify decides whether err is worth retrying. Anything it does not
// recognise as a network hiccup is permanent.
func Classify(err error) Class {
	if err == nil {
		return Permanent
	}
	for _, target := range permanentErrors {
		if errors.Is(err, target) {
			return Permanent
		}
	}

	for _, errno := range transientErrnos {
		if errors.Is(err, errno) {
			return Transient
		}
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return Transient
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return Transient
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Transient
	}

	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return Transient
		}
	}
	return Permanent
}
