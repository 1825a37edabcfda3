// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

/*
Package archive builds and reads the reproducible tar.gz archives used for
whole-registry backups and backup exports.

Archives are deterministic: entries are sorted, timestamps are pinned to an
epoch, ownership is cleared and the gzip header carries no name or OS. The
same set of skills therefore always yields the same digest, which lets the
backup store deduplicate identical snapshots.

Reading is strict. Absolute paths, traversal sequences, links and device
entries are rejected, and both decompressed size and per-file size are
bounded.

# Basic Usage

	entries, err := archive.ReadDir(skillDir, "pdf", nil)
	data, err := archive.Pack(entries, archive.DefaultOptions())

	files, err := archive.Unpack(data)
	err = archive.WriteDir(restoreDir, files)
*/
package archive
