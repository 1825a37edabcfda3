// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

/*
Package registry persists the installed-skill registry (skills.json) and the
skill detection map (skill_map.json) that live in a skills root.

A [Registry] is a plain value. Callers load it, change it and hand it back to
[Store.Save]; nothing caches it between commands. Saves go through a temp
file and a rename, so readers see either the previous or the new document.

# Document Format

	{
	  "skills": {
	    "pdf": {
	      "source": "https://github.com/anthropics/skills.git",
	      "subdir": "document-skills/pdf",
	      "version": "4f1c0de...",
	      "updated_at": "2026-03-01T10:00:00Z"
	    }
	  }
	}

Every value field may be absent or null. Documents are checked against an
embedded JSON Schema when loaded; a document that fails to parse or validate
is reported as a [*CorruptionError].

# Reconciliation

[Store.Sync] brings the registry in line with the directories on disk:
directories with a valid SKILL.md that the registry does not know are added
as local skills, entries whose directory is gone are dropped, and existing
entries are left alone. Running it twice changes nothing the second time.

# Concurrency

Read-modify-write cycles go through [Store.Update], which holds an exclusive
file lock for the duration so two processes cannot interleave writes.
*/
package registry
