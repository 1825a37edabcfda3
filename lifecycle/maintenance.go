// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/google/uuid"

	"github.com/stacklok/skillctl/audit"
	"github.com/stacklok/skillctl/backup"
	"github.com/stacklok/skillctl/fsutil"
	"github.com/stacklok/skillctl/installer"
	"github.com/stacklok/skillctl/manifest"
	"github.com/stacklok/skillctl/registry"
	"github.com/stacklok/skillctl/scaffold"
)

// Skill is one row of List.
type Skill struct {
	Name  string
	Entry registry.Entry
	// Present is false when the registry lists a skill whose directory is gone.
	Present bool
}

// List returns the registered skills sorted by name.
func (m *Manager) List(ctx context.Context) ([]Skill, error) {
	reg, err := m.loadRegistry(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Skill, 0, reg.Len())
	for _, name := range reg.Names() {
		entry, _ := reg.Get(name)
		out = append(out, Skill{
			Name:    name,
			Entry:   entry,
			Present: fsutil.IsDir(filepath.Join(m.Root(), name)),
		})
	}
	return out, nil
}

// Uninstall snapshots and removes name.
func (m *Manager) Uninstall(ctx context.Context, name string) (*backup.Handle, error) {
	if _, err := m.loadRegistry(ctx); err != nil {
		return nil, err
	}
	return m.installer.Uninstall(ctx, name)
}

// Sync reconciles skills.json and skill_map.json with the directories in the
// skills root. With dryRun nothing is written.
func (m *Manager) Sync(ctx context.Context, dryRun bool) (registry.Diff, error) {
	if _, err := m.loadRegistry(ctx); err != nil {
		return registry.Diff{}, err
	}

	unlock, err := m.registry.Lock(ctx)
	if err != nil {
		return registry.Diff{}, err
	}
	defer unlock()

	reg, err := m.registry.Load()
	if err != nil {
		return registry.Diff{}, err
	}
	next, diff, err := m.registry.Sync(reg)
	if err != nil {
		return registry.Diff{}, err
	}
	if dryRun || diff.Empty() {
		return diff, nil
	}

	if err := m.registry.Save(next); err != nil {
		return diff, err
	}
	err = m.registry.UpdateSkillMap(func(sm *registry.SkillMap) {
		for _, name := range diff.Added {
			man, _ := manifest.Load(filepath.Join(m.Root(), name))
			sm.Upsert(name, man)
		}
		for _, name := range diff.Removed {
			sm.Remove(name)
		}
	})
	if err != nil {
		return diff, err
	}
	m.logger.InfoContext(ctx, "registry synchronized", "added", diff.Added, "removed", diff.Removed)
	return diff, nil
}

// Init scaffolds a new local skill, registers it and adds it to the skill map.
func (m *Manager) Init(ctx context.Context, name string) (string, error) {
	if err := manifest.ValidateName(name); err != nil {
		return "", err
	}
	if _, err := m.loadRegistry(ctx); err != nil {
		return "", err
	}

	unlock, err := m.registry.LockSkill(name)
	if err != nil {
		return "", err
	}
	defer unlock()

	dir := filepath.Join(m.Root(), name)
	if fsutil.Exists(dir) {
		return "", fmt.Errorf("%s: %w", dir, scaffold.ErrExists)
	}

	staged := filepath.Join(m.Root(), ".init-"+name+"-"+uuid.NewString())
	defer func() { _ = os.RemoveAll(staged) }()
	if _, err := scaffold.Write(staged, name); err != nil {
		return "", err
	}
	if err := os.Rename(staged, dir); err != nil {
		return "", fmt.Errorf("moving new skill into place: %w", err)
	}

	man, err := manifest.Load(dir)
	if err == nil {
		err = m.register(ctx, name, man)
	}
	if err != nil {
		_ = os.RemoveAll(dir)
		return "", err
	}
	m.logger.InfoContext(ctx, "skill initialized", "skill", name, "path", dir)
	return dir, nil
}

func (m *Manager) register(ctx context.Context, name string, man *manifest.Manifest) error {
	unlock, err := m.registry.Lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	reg, err := m.registry.Load()
	if err != nil {
		return err
	}
	next := reg.With(name, registry.Entry{
		Source:    registry.SourceLocal,
		Version:   registry.VersionUnknown,
		UpdatedAt: m.registry.Now(),
	})
	if err := m.registry.Save(next); err != nil {
		return err
	}
	return m.registry.UpdateSkillMap(func(sm *registry.SkillMap) { sm.Upsert(name, man) })
}

// BackupResult describes a snapshot taken by Backup.
type BackupResult struct {
	Handle backup.Handle
	// ExportPath is set when an output directory was given.
	ExportPath string
}

// Backup snapshots one skill, or every registered skill when skill is
// empty, and optionally exports the snapshot into outputDir.
func (m *Manager) Backup(ctx context.Context, skill, outputDir string) (*BackupResult, error) {
	var (
		h   backup.Handle
		ok  bool
		err error
	)
	if skill != "" {
		if err := manifest.CheckDirName(skill); err != nil {
			return nil, err
		}
		unlock, lockErr := m.registry.LockSkill(skill)
		if lockErr != nil {
			return nil, lockErr
		}
		h, ok, err = m.backups.SnapshotSkill(ctx, skill)
		unlock()
		if err == nil && !ok {
			err = fmt.Errorf("%s: %w", skill, installer.ErrNotInstalled)
		}
	} else {
		reg, loadErr := m.loadRegistry(ctx)
		if loadErr != nil {
			return nil, loadErr
		}
		h, ok, err = m.backups.SnapshotAll(ctx, reg.Names())
		if err == nil && !ok {
			err = ErrNothingToBackup
		}
	}
	if err != nil {
		return nil, err
	}

	out := &BackupResult{Handle: h}
	if outputDir != "" {
		p, err := m.backups.Export(ctx, h, outputDir)
		if err != nil {
			return out, err
		}
		out.ExportPath = p
	}
	return out, nil
}

// Backups lists every snapshot, newest first.
func (m *Manager) Backups(ctx context.Context) ([]backup.Handle, error) {
	return m.backups.List(ctx)
}

// Restore puts the snapshot named by ref back into the skills root. ref is
// a handle string or an exported archive path. skill limits an archive
// restore to one skill.
func (m *Manager) Restore(ctx context.Context, ref, skill string) ([]string, error) {
	h, err := backup.ParseHandle(ref)
	if err != nil {
		return nil, err
	}
	if skill != "" {
		if err := manifest.CheckDirName(skill); err != nil {
			return nil, err
		}
	}

	var locked []string
	switch {
	case h.Kind == backup.KindSkill:
		locked = []string{h.Skill}
	case skill != "":
		locked = []string{skill}
	default:
		reg, err := m.loadRegistry(ctx)
		if err != nil {
			return nil, err
		}
		locked = reg.Names()
		onDisk, err := m.registry.ScanSkillDirs()
		if err != nil {
			return nil, err
		}
		for _, name := range onDisk {
			if !slices.Contains(locked, name) {
				locked = append(locked, name)
			}
		}
		slices.Sort(locked)
	}

	for _, name := range locked {
		unlock, err := m.registry.LockSkill(name)
		if err != nil {
			return nil, err
		}
		defer unlock()
	}

	return m.backups.Restore(ctx, h, skill)
}

// Cleanup trims every backup group to the newest keep snapshots.
func (m *Manager) Cleanup(ctx context.Context, keep int) ([]backup.Handle, error) {
	return m.backups.Cleanup(ctx, keep)
}

// Audit runs the rule table against the bundle at path. registryRoot may
// be empty to skip the consistency rules.
func (m *Manager) Audit(ctx context.Context, path, registryRoot string) (*audit.Report, error) {
	if m.auditor == nil {
		return nil, errors.New("auditor not configured")
	}
	return m.auditor.Audit(ctx, path, registryRoot)
}
