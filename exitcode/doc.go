// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

/*
Package exitcode provides error types that carry a process exit code.

Commands wrap the error they return with the code the process should exit
with, and the entry point extracts it once, after the error has been
printed. CodedError implements Unwrap, so errors.Is and errors.As keep
working through the wrapper.

# Basic Usage

	err := exitcode.WithCode(err, exitcode.Fetch)

	os.Exit(exitcode.Code(err))

Code returns [OK] for a nil error and [Generic] when the chain holds no
CodedError.
*/
package exitcode
