// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

/*
Package fetch retrieves repository trees into scoped temporary directories.

The version control client is an interface ([VCS]); [GitVCS] implements it
with go-git and tests substitute the generated mock in the mocks
sub-package.

# Scoped Trees

[Fetcher.Fetch] clones into a fresh temporary directory, hands the tree to a
callback and removes the directory on every exit path, including a panic in
the callback. Nothing fetched outlives the call.

	err := fetcher.Fetch(ctx, spec, func(tree *fetch.Tree) error {
		loc, err := extract.Locate(tree.Root, spec.Subdir, spec.CandidatePrefixes)
		...
	})

# Retries

Failures are classified by [Classify]. Transient failures (resets, timeouts,
DNS errors) are retried with exponential backoff up to [Policy.MaxAttempts]
attempts; permanent failures (authentication, missing repository) and
unrecognised errors fail after one attempt. The final error is a
[*FetchError] that records the attempt count.
*/
package fetch
