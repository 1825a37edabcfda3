// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package recovery converts panics raised inside a unit of work into errors.
//
// The installer runs each mutating step under [Guard] so that a panic in a
// copy or a registry write still reaches the rollback path instead of
// unwinding past it.
//
// # Basic Usage
//
//	err := recovery.Guard(func() error {
//		return stage(ctx, req)
//	})
//	var p *recovery.PanicError
//	if errors.As(err, &p) {
//		logger.Error("panic during staging", "value", p.Value, "stack", string(p.Stack))
//	}
//
// # Stability
//
// This package is Beta stability.
package recovery
