// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package backup

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/stacklok/skillctl/archive"
	"github.com/stacklok/skillctl/fsutil"
	"github.com/stacklok/skillctl/logging"
	"github.com/stacklok/skillctl/registry"
)

// DefaultKeep is the number of snapshots per group Cleanup keeps by default.
const DefaultKeep = 5

const (
	skillsDirName  = "skills"
	archiveDirName = "registry"
	partialSuffix  = ".partial"
	restorePrefix  = ".restore-"
	exportFileMode = 0o644
)

// Manager creates, lists, restores and prunes snapshots for one skills root.
type Manager struct {
	registry       *registry.Store
	root           string
	retentionFloor bool
	logger         *slog.Logger
	now            func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithRetentionFloor controls whether Cleanup always keeps the newest
// snapshot of each group, even when asked to keep none. It is on by default.
func WithRetentionFloor(enabled bool) Option {
	return func(m *Manager) {
		m.retentionFloor = enabled
	}
}

// NewManager returns a manager storing snapshots of reg's skills root under
// root.
func NewManager(reg *registry.Store, root string, opts ...Option) *Manager {
	m := &Manager{
		registry:       reg,
		root:           root,
		retentionFloor: true,
		logger:         logging.Discard(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Root returns the backups root.
func (m *Manager) Root() string {
	return m.root
}

func (m *Manager) skillDir(name string) string {
	return filepath.Join(m.registry.Root(), name)
}

func (m *Manager) snapshotDir(name string) string {
	return filepath.Join(m.root, skillsDirName, name)
}

func (m *Manager) archiveRoot() string {
	return filepath.Join(m.root, archiveDirName)
}

// nextID returns an id for the current time that taken does not report as
// used. Ids only move forward within a group.
func (m *Manager) nextID(taken func(string) bool) (string, time.Time) {
	t := m.now().UTC()
	for taken(NewID(t)) {
		t = t.Add(time.Nanosecond)
	}
	return NewID(t), t
}

// SnapshotSkill copies the live directory of name into a new snapshot. ok is
// false, with a nil error, when the skill directory does not exist.
func (m *Manager) SnapshotSkill(ctx context.Context, name string) (h Handle, ok bool, err error) {
	src := m.skillDir(name)
	if !fsutil.IsDir(src) {
		return Handle{}, false, nil
	}
	if err := ctx.Err(); err != nil {
		return Handle{}, false, err
	}

	dir := m.snapshotDir(name)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return Handle{}, false, fmt.Errorf("creating backup directory: %w", err)
	}
	id, ts := m.nextID(func(id string) bool {
		return fsutil.Exists(filepath.Join(dir, id)) || fsutil.Exists(filepath.Join(dir, id+partialSuffix))
	})

	final := filepath.Join(dir, id)
	partial := final + partialSuffix
	if err := fsutil.CopyTree(src, partial, nil); err != nil {
		_ = os.RemoveAll(partial)
		return Handle{}, false, fmt.Errorf("backing up %s: %w", name, err)
	}
	if err := os.Rename(partial, final); err != nil {
		_ = os.RemoveAll(partial)
		return Handle{}, false, fmt.Errorf("finalizing backup of %s: %w", name, err)
	}

	h = Handle{Kind: KindSkill, Skill: name, ID: id, Timestamp: ts, Path: final}
	m.logger.DebugContext(ctx, "skill snapshot taken", "backup", h.String(), "path", final)
	return h, true, nil
}

// SnapshotAll archives the listed skills and the registry document into one
// registry archive. ok is false when none of the skills exists on disk.
func (m *Manager) SnapshotAll(ctx context.Context, names []string) (h Handle, ok bool, err error) {
	names = slices.Clone(names)
	slices.Sort(names)
	names = slices.Compact(names)

	var (
		entries  []archive.Entry
		included []string
	)
	for _, name := range names {
		src := m.skillDir(name)
		if !fsutil.IsDir(src) {
			m.logger.WarnContext(ctx, "skill directory missing, not archived", "skill", name)
			continue
		}
		files, err := archive.ReadDir(src, name, nil)
		if err != nil {
			return Handle{}, false, fmt.Errorf("archiving %s: %w", name, err)
		}
		entries = append(entries, files...)
		included = append(included, name)
	}
	if len(included) == 0 {
		return Handle{}, false, nil
	}

	doc, err := m.registry.Snapshot()
	if err != nil {
		return Handle{}, false, err
	}
	if doc != nil {
		entries = append(entries, archive.Entry{Path: registry.FileName, Content: doc, Mode: 0o644})
	}

	layer, err := archive.Pack(entries, archive.DefaultOptions())
	if err != nil {
		return Handle{}, false, fmt.Errorf("packing registry archive: %w", err)
	}

	store, err := openArchiveStore(ctx, m.archiveRoot())
	if err != nil {
		return Handle{}, false, err
	}
	id, ts := m.nextID(func(id string) bool { return store.hasTag(ctx, id) })

	skillsJSON, err := json.Marshal(included)
	if err != nil {
		return Handle{}, false, fmt.Errorf("encoding skill names: %w", err)
	}
	annotations := map[string]string{
		ocispec.AnnotationCreated: ts.Format(time.RFC3339Nano),
		AnnotationSkills:          string(skillsJSON),
	}
	if _, err := store.putArchive(ctx, id, layer, annotations); err != nil {
		return Handle{}, false, err
	}

	h = Handle{Kind: KindArchive, ID: id, Timestamp: ts}
	m.logger.InfoContext(ctx, "registry archive written", "backup", h.String(), "skills", len(included))
	return h, true, nil
}

// Resolve completes h: a handle without an id selects the newest snapshot of
// its group, and skill handles gain their directory path.
func (m *Manager) Resolve(ctx context.Context, h Handle) (Handle, error) {
	switch h.Kind {
	case KindExport:
		if !fsutil.Exists(h.Path) {
			return Handle{}, fmt.Errorf("%s: %w", h.Path, ErrNoSnapshot)
		}
		return h, nil
	case KindSkill, KindArchive:
	default:
		return Handle{}, fmt.Errorf("unknown snapshot kind %v", h.Kind)
	}

	if h.ID == "" {
		all, err := m.List(ctx)
		if err != nil {
			return Handle{}, err
		}
		for _, c := range all {
			if c.Kind == h.Kind && c.Group() == h.Group() {
				return c, nil
			}
		}
		return Handle{}, fmt.Errorf("%s: %w", h, ErrNoSnapshot)
	}

	if h.Kind == KindSkill {
		h.Path = filepath.Join(m.snapshotDir(h.Skill), h.ID)
		if !fsutil.IsDir(h.Path) {
			return Handle{}, fmt.Errorf("%s: %w", h, ErrNoSnapshot)
		}
		return h, nil
	}

	if !fsutil.Exists(m.archiveRoot()) {
		return Handle{}, fmt.Errorf("%s: %w", h, ErrNoSnapshot)
	}
	store, err := openArchiveStore(ctx, m.archiveRoot())
	if err != nil {
		return Handle{}, err
	}
	if !store.hasTag(ctx, h.ID) {
		return Handle{}, fmt.Errorf("%s: %w", h, ErrNoSnapshot)
	}
	return h, nil
}

// Restore puts a snapshot back into the skills root. For archives and
// exports, skill limits the restore to one skill; a full archive restore
// also rewrites the registry document. Callers hold the skill locks.
func (m *Manager) Restore(ctx context.Context, h Handle, skill string) (restored []string, err error) {
	h, err = m.Resolve(ctx, h)
	if err != nil {
		return nil, err
	}

	if h.Kind == KindSkill {
		if skill != "" && skill != h.Skill {
			return nil, fmt.Errorf("snapshot %s does not contain skill %s", h, skill)
		}
		if err := m.replaceSkill(h.Skill, func(staged string) error {
			return fsutil.CopyTree(h.Path, staged, nil)
		}); err != nil {
			return nil, err
		}
		m.logger.InfoContext(ctx, "skill restored", "skill", h.Skill, "backup", h.String())
		return []string{h.Skill}, nil
	}

	data, err := m.archiveBytes(ctx, h)
	if err != nil {
		return nil, err
	}
	entries, err := archive.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", h, err)
	}

	var (
		names []string
		doc   []byte
	)
	for _, top := range archive.TopLevel(entries) {
		if top == registry.FileName {
			for _, e := range entries {
				if e.Path == registry.FileName {
					doc = e.Content
				}
			}
			continue
		}
		if skill == "" || top == skill {
			names = append(names, top)
		}
	}
	if skill != "" && len(names) == 0 {
		return nil, fmt.Errorf("snapshot %s does not contain skill %s", h, skill)
	}

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return restored, err
		}
		files := archive.Select(entries, name)
		if err := m.replaceSkill(name, func(staged string) error {
			if err := os.MkdirAll(staged, 0o750); err != nil {
				return err
			}
			return archive.WriteDir(staged, files)
		}); err != nil {
			return restored, err
		}
		restored = append(restored, name)
	}

	if skill == "" && doc != nil {
		if _, err := registry.Decode(doc); err != nil {
			return restored, fmt.Errorf("archived registry document: %w", err)
		}
		unlock, err := m.registry.Lock(ctx)
		if err != nil {
			return restored, err
		}
		defer unlock()
		if err := m.registry.RestoreSnapshot(doc); err != nil {
			return restored, err
		}
	}

	m.logger.InfoContext(ctx, "archive restored", "backup", h.String(), "skills", restored)
	return restored, nil
}

// replaceSkill fills a staging directory beside the live one and swaps it in.
func (m *Manager) replaceSkill(name string, fill func(staged string) error) error {
	staged := filepath.Join(m.registry.Root(), restorePrefix+name+"-"+uuid.NewString())
	defer func() { _ = os.RemoveAll(staged) }()

	if err := os.MkdirAll(m.registry.Root(), 0o750); err != nil {
		return fmt.Errorf("creating skills root: %w", err)
	}
	if err := fill(staged); err != nil {
		return fmt.Errorf("staging %s: %w", name, err)
	}
	leftover, err := fsutil.Swap(staged, m.skillDir(name))
	if err != nil {
		return fmt.Errorf("restoring %s: %w", name, err)
	}
	if leftover != "" {
		m.logger.Warn("could not delete replaced skill directory", "skill", name, "path", leftover)
	}
	return nil
}

func (m *Manager) archiveBytes(ctx context.Context, h Handle) ([]byte, error) {
	if h.Kind == KindExport {
		data, err := os.ReadFile(h.Path) //#nosec G304 -- path supplied by the user on the command line
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", h.Path, err)
		}
		return data, nil
	}
	store, err := openArchiveStore(ctx, m.archiveRoot())
	if err != nil {
		return nil, err
	}
	return store.layer(ctx, h.ID)
}

// List returns every snapshot, newest first.
func (m *Manager) List(ctx context.Context) ([]Handle, error) {
	var out []Handle

	skillsRoot := filepath.Join(m.root, skillsDirName)
	groups, err := os.ReadDir(skillsRoot)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading %s: %w", skillsRoot, err)
	}
	for _, g := range groups {
		if !g.IsDir() {
			continue
		}
		dir := filepath.Join(skillsRoot, g.Name())
		snaps, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", dir, err)
		}
		for _, s := range snaps {
			if !s.IsDir() || strings.HasSuffix(s.Name(), partialSuffix) {
				continue
			}
			ts, err := ParseID(s.Name())
			if err != nil {
				continue
			}
			out = append(out, Handle{
				Kind:      KindSkill,
				Skill:     g.Name(),
				ID:        s.Name(),
				Timestamp: ts,
				Path:      filepath.Join(dir, s.Name()),
			})
		}
	}

	if fsutil.Exists(m.archiveRoot()) {
		store, err := openArchiveStore(ctx, m.archiveRoot())
		if err != nil {
			return nil, err
		}
		tags, err := store.tags(ctx)
		if err != nil {
			return nil, err
		}
		for _, tag := range tags {
			ts, err := ParseID(tag)
			if err != nil {
				continue
			}
			out = append(out, Handle{Kind: KindArchive, ID: tag, Timestamp: ts})
		}
	}

	slices.SortFunc(out, func(a, b Handle) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.String(), b.String())
	})
	return out, nil
}

// Cleanup deletes, per group, every snapshot beyond the newest keep and
// returns the deleted handles.
func (m *Manager) Cleanup(ctx context.Context, keep int) ([]Handle, error) {
	return m.cleanup(ctx, keep, func(Handle) bool { return true })
}

// CleanupGroup applies Cleanup to a single group: a skill name, or
// ArchiveName for whole-registry archives.
func (m *Manager) CleanupGroup(ctx context.Context, group string, keep int) ([]Handle, error) {
	return m.cleanup(ctx, keep, func(h Handle) bool { return h.Group() == group })
}

func (m *Manager) cleanup(ctx context.Context, keep int, match func(Handle) bool) ([]Handle, error) {
	if keep < 0 {
		return nil, fmt.Errorf("keep must not be negative, got %d", keep)
	}
	if m.retentionFloor && keep < 1 {
		keep = 1
	}

	all, err := m.List(ctx)
	if err != nil {
		return nil, err
	}

	seen := map[string]int{}
	var (
		removed     []Handle
		archiveTags []string
	)
	for _, h := range all {
		if !match(h) {
			continue
		}
		seen[h.Group()]++
		if seen[h.Group()] <= keep {
			continue
		}
		if h.Kind == KindArchive {
			archiveTags = append(archiveTags, h.ID)
		} else if err := os.RemoveAll(h.Path); err != nil {
			return removed, fmt.Errorf("removing %s: %w", h, err)
		}
		removed = append(removed, h)
	}

	if len(archiveTags) > 0 {
		store, err := openArchiveStore(ctx, m.archiveRoot())
		if err != nil {
			return removed, err
		}
		if err := store.remove(ctx, archiveTags...); err != nil {
			return removed, err
		}
	}

	if len(removed) > 0 {
		m.logger.InfoContext(ctx, "old backups removed", "count", len(removed), "keep", keep)
	}
	return removed, nil
}

// Export writes the snapshot as <skill>_<id>.tar.gz or all_skills_<id>.tar.gz
// into dir and returns the file path.
func (m *Manager) Export(ctx context.Context, h Handle, dir string) (string, error) {
	h, err := m.Resolve(ctx, h)
	if err != nil {
		return "", err
	}

	var (
		data []byte
		name string
	)
	switch h.Kind {
	case KindSkill:
		entries, err := archive.ReadDir(h.Path, h.Skill, nil)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", h, err)
		}
		data, err = archive.Pack(entries, archive.DefaultOptions())
		if err != nil {
			return "", fmt.Errorf("packing %s: %w", h, err)
		}
		name = h.Skill + "_" + h.ID + ExportSuffix
	case KindArchive:
		data, err = m.archiveBytes(ctx, h)
		if err != nil {
			return "", err
		}
		name = ArchiveName + "_" + h.ID + ExportSuffix
	default:
		return "", fmt.Errorf("%s is already an export", h)
	}

	out := filepath.Join(dir, name)
	if err := fsutil.WriteFileAtomic(out, data, exportFileMode); err != nil {
		return "", fmt.Errorf("exporting %s: %w", h, err)
	}
	return out, nil
}
