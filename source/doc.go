// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

/*
Package source turns user-supplied skill source strings into a canonical
repository URL plus an optional path inside that repository.

Resolution is pure: no network or filesystem access happens here.

# Accepted Forms

	owner/repo                                  -> <github>/owner/repo.git
	owner/repo/skills/pdf                       -> <github>/owner/repo.git, subdir skills/pdf
	https://github.com/owner/repo               -> unchanged, no subdir
	https://github.com/owner/repo/tree/dev/pdf  -> https://github.com/owner/repo, ref dev, subdir pdf
	https://host/group/repo.git/tools/pdf       -> https://host/group/repo.git, subdir tools/pdf
	git@github.com:owner/repo.git/pdf           -> git@github.com:owner/repo.git, subdir pdf

The GitHub base for the short form defaults to https://github.com and can be
pointed at a mirror through [Options].

# Basic Usage

	spec, err := source.Resolve("anthropics/skills/document-skills/pdf", source.Options{})
	if err != nil {
		var invalid *source.InvalidSourceError
		if errors.As(err, &invalid) { ... }
	}
	fmt.Println(spec.RepositoryURL, spec.Subdir, spec.SkillName())
*/
package source
