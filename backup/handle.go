// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package backup

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stacklok/skillctl/manifest"
)

// IDLayout formats snapshot ids.
const IDLayout = "20060102T150405.000000000Z"

// ArchiveName addresses registry archives in handles and export file names.
// It cannot collide with a skill name because skill names never contain an
// underscore.
const ArchiveName = "all_skills"

// ExportSuffix is the file extension of exported snapshots.
const ExportSuffix = ".tar.gz"

// Kind distinguishes snapshot flavours.
type Kind int

const (
	// KindSkill is a single-skill directory snapshot.
	KindSkill Kind = iota
	// KindArchive is a whole-registry archive in the OCI layout.
	KindArchive
	// KindExport is an exported tar.gz file on disk.
	KindExport
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindSkill:
		return "skill"
	case KindArchive:
		return "archive"
	case KindExport:
		return "export"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ErrNoSnapshot is returned when a handle does not name an existing snapshot.
var ErrNoSnapshot = errors.New("no such snapshot")

// Handle identifies one snapshot.
type Handle struct {
	Kind      Kind
	Skill     string
	ID        string
	Timestamp time.Time
	// Path is the snapshot directory for skill snapshots and the file for
	// exports. It is empty for registry archives.
	Path string
}

// String renders the handle in the form ParseHandle accepts.
func (h Handle) String() string {
	switch h.Kind {
	case KindExport:
		return h.Path
	case KindArchive:
		return joinHandle(ArchiveName, h.ID)
	default:
		return joinHandle(h.Skill, h.ID)
	}
}

// Group returns the retention group the snapshot belongs to.
func (h Handle) Group() string {
	if h.Kind == KindArchive {
		return ArchiveName
	}
	return h.Skill
}

func joinHandle(name, id string) string {
	if id == "" {
		return name
	}
	return name + "@" + id
}

// NewID renders t as a snapshot id.
func NewID(t time.Time) string {
	return t.UTC().Format(IDLayout)
}

// ParseID parses a snapshot id.
func ParseID(id string) (time.Time, error) {
	t, err := time.Parse(IDLayout, id)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid snapshot id %q", id)
	}
	return t, nil
}

// ParseHandle parses name@id, all_skills@id, a bare name (newest snapshot)
// or the path of an exported .tar.gz.
func ParseHandle(s string) (Handle, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Handle{}, errors.New("empty backup handle")
	}
	if strings.HasSuffix(s, ExportSuffix) {
		return Handle{Kind: KindExport, Path: s}, nil
	}

	name, id, hasID := strings.Cut(s, "@")
	h := Handle{Kind: KindSkill, Skill: name}
	if name == ArchiveName {
		h = Handle{Kind: KindArchive}
	} else if err := manifest.CheckDirName(name); err != nil {
		return Handle{}, fmt.Errorf("invalid backup handle %q: %w", s, err)
	}
	if hasID {
		ts, err := ParseID(id)
		if err != nil {
			return Handle{}, fmt.Errorf("invalid backup handle %q: %w", s, err)
		}
		h.ID = id
		h.Timestamp = ts
	}
	return h, nil
}
