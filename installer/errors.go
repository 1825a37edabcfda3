// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package installer

import (
	"errors"
	"fmt"
)

// ErrNotInstalled is returned when an operation names a skill that has
// neither a directory nor a registry entry.
var ErrNotInstalled = errors.New("skill is not installed")

// ErrInvalidManifest marks bundles whose SKILL.md fails validation.
var ErrInvalidManifest = errors.New("invalid manifest")

// InstallError reports a failed install or uninstall.
type InstallError struct {
	Skill string
	// State is the last state the operation reached.
	State State
	// RolledBack is true when every change was undone.
	RolledBack bool
	Err        error
}

// Error implements the error interface.
func (e *InstallError) Error() string {
	msg := fmt.Sprintf("installing %s failed after %s: %v", e.Skill, e.State, e.Err)
	if e.RolledBack {
		msg += " (rolled back)"
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *InstallError) Unwrap() error {
	return e.Err
}
