// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

/*
Package backup keeps restorable snapshots of installed skills.

Two kinds of snapshot exist. A skill snapshot is a plain directory copy at

	<backups>/skills/<name>/<id>/

written as <id>.partial and renamed once complete. A registry archive is a
reproducible tar.gz of every installed skill plus the skills.json document,
stored as an OCI artifact in an OCI image layout at <backups>/registry and
tagged with its id.

Snapshot ids are UTC timestamps whose lexical order is their time order.
Handles are written as name@id for skill snapshots and all_skills@id for
registry archives. Omitting @id selects the newest snapshot.

Backups never imply registry membership: restoring a single skill leaves
skills.json alone.
*/
package backup
