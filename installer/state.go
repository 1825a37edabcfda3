// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package installer

import (
	"context"
	"fmt"
)

// State is a step of the install protocol.
type State int

const (
	// StateStart is entered once the skill lock is held.
	StateStart State = iota
	// StateBackupTaken follows a snapshot of the existing skill.
	StateBackupTaken
	// StateStaged follows the copy of the bundle into the staging directory.
	StateStaged
	// StateSwapped follows the rename of the staged directory into place.
	StateSwapped
	// StateRegistered follows the registry and skill map update.
	StateRegistered
	// StateDone ends a successful install.
	StateDone
	// StateRolledBack follows a completed rollback.
	StateRolledBack
	// StateFailed ends a failed install.
	StateFailed
)

var stateNames = map[State]string{
	StateStart:       "START",
	StateBackupTaken: "BACKUP_TAKEN",
	StateStaged:      "STAGED",
	StateSwapped:     "SWAPPED",
	StateRegistered:  "REGISTERED",
	StateDone:        "DONE",
	StateRolledBack:  "ROLLED_BACK",
	StateFailed:      "FAILED",
}

// String returns the protocol name of the state.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// TransitionHook observes every state change. An error returned while the
// operation is still progressing aborts it at that state.
type TransitionHook func(ctx context.Context, skill string, state State) error
