// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package registry

import "fmt"

// CorruptionError reports a registry or skill map document that cannot be
// parsed or does not match its schema.
type CorruptionError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *CorruptionError) Error() string {
	return fmt.Sprintf("registry corrupted at %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying parse or validation error.
func (e *CorruptionError) Unwrap() error {
	return e.Err
}
