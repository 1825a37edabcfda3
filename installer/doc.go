// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package installer activates a fetched skill bundle in a skills root as one
// transaction: snapshot, stage, validate, swap and register. A failure at any
// step after the live directory may have changed rolls the skill directory,
// the registry and the skill map back to their previous contents.
package installer
