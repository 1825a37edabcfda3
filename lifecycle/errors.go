// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import "errors"

var (
	// ErrLocalSkill is returned when updating a skill that has no remote source.
	ErrLocalSkill = errors.New("skill was installed locally and has no source to update from")
	// ErrUpToDate is returned when the remote commit equals the installed version.
	ErrUpToDate = errors.New("skill is already up to date")
	// ErrNothingToBackup is returned when no listed skill exists on disk.
	ErrNothingToBackup = errors.New("nothing to back up")
)
