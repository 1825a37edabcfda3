// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/stacklok/skillctl/fsutil"
	"github.com/stacklok/skillctl/manifest"
)

// Diff describes what Sync changed.
type Diff struct {
	Added   []string
	Removed []string
}

// Empty reports whether Sync found nothing to change.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

// Sync reconciles r with the skill directories under the store root and
// returns the reconciled registry. r itself is not modified. Directories with
// a valid SKILL.md are added as local skills. Entries are removed only when
// their directory is gone, so a registered skill with a broken manifest
// keeps its provenance.
func (s *Store) Sync(r Registry) (Registry, Diff, error) {
	present, err := s.ScanSkillDirs()
	if err != nil {
		return r, Diff{}, err
	}

	out := r.Clone()
	var diff Diff

	for _, name := range present {
		if _, ok := out.Skills[name]; ok {
			continue
		}
		out.Skills[name] = Entry{
			Source:    SourceLocal,
			Version:   VersionUnknown,
			UpdatedAt: s.Now(),
		}
		diff.Added = append(diff.Added, name)
	}

	for _, name := range out.Names() {
		if !manifest.SafeDirName(name) || !fsutil.IsDir(filepath.Join(s.root, name)) {
			delete(out.Skills, name)
			diff.Removed = append(diff.Removed, name)
		}
	}

	return out, diff, nil
}

// ScanSkillDirs lists the directories of the skills root that hold a valid
// SKILL.md, sorted by name. Hidden directories and ignored names are skipped.
func (s *Store) ScanSkillDirs() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("scanning skills root: %w", err)
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || fsutil.IsHidden(name) || slices.Contains(s.ignore, name) {
			continue
		}
		m, err := manifest.Load(filepath.Join(s.root, name))
		if err != nil {
			continue
		}
		if err := m.Validate(""); err != nil {
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}
