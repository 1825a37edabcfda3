// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

/*
Package logging provides the [log/slog.Logger] factory used by skillctl.

Every component receives its logger through a constructor option; nothing
in the module reads a package-level logger. This package fixes the shared
choices: timestamp format, default handler and where the output goes.

# Defaults

  - Format: text ([FormatText]) via [log/slog.TextHandler]
  - Level: INFO ([log/slog.LevelInfo])
  - Output: [os.Stderr]
  - Timestamps: [time.RFC3339]

# Basic Usage

	logger := logging.New(
		logging.WithFormat(logging.FormatJSON),
		logging.WithLevel(slog.LevelDebug),
	)
	logger.Info("skill installed", "skill", "pdf", "version", commit)

# Log File

The update commands keep a persistent log next to the skills root. Attach
it with [WithTee]; records go to both stderr and the file:

	f, _ := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	logger := logging.New(logging.WithTee(f))

# Testing

Inject a buffer to capture output, or use [Discard]:

	var buf bytes.Buffer
	logger := logging.New(logging.WithOutput(&buf))

# Stability

This package is Alpha stability. The API may change without notice.
*/
package logging
