// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/stacklok/skillctl/fsutil"
	"github.com/stacklok/skillctl/logging"
)

const (
	// FileName is the registry document inside a skills root.
	FileName = "skills.json"
	// SkillMapFileName is the detection map document inside a skills root.
	SkillMapFileName = "skill_map.json"
	// LockDirName holds advisory lock files inside a skills root.
	LockDirName = ".locks"

	lockRetryDelay = 50 * time.Millisecond
)

// Store reads and writes the documents of one skills root.
type Store struct {
	root   string
	ignore []string
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for recovery warnings.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithIgnoredDirs excludes additional directory names from Sync, such as a
// backups root placed inside the skills root.
func WithIgnoredDirs(names ...string) Option {
	return func(s *Store) {
		s.ignore = append(s.ignore, names...)
	}
}

// NewStore creates a store for the given skills root.
func NewStore(root string, opts ...Option) *Store {
	s := &Store{
		root:   root,
		logger: logging.Discard(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Root returns the skills root.
func (s *Store) Root() string {
	return s.root
}

// Path returns the registry document path.
func (s *Store) Path() string {
	return filepath.Join(s.root, FileName)
}

// SkillMapPath returns the skill map document path.
func (s *Store) SkillMapPath() string {
	return filepath.Join(s.root, SkillMapFileName)
}

// Now returns the store clock reading as a registry timestamp.
func (s *Store) Now() *Timestamp {
	return NewTimestamp(s.now())
}

// Load reads the registry. A missing document yields an empty registry. A
// document that cannot be parsed or validated yields an empty registry and a
// *CorruptionError.
func (s *Store) Load() (Registry, error) {
	data, err := os.ReadFile(s.Path()) //#nosec G304 -- path constructed from the configured skills root
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return New(), nil
		}
		return New(), fmt.Errorf("reading registry: %w", err)
	}
	return decodeRegistry(s.Path(), data)
}

// Decode parses and validates a registry document held outside a skills
// root, such as the copy inside a backup archive.
func Decode(data []byte) (Registry, error) {
	return decodeRegistry("", data)
}

func decodeRegistry(path string, data []byte) (Registry, error) {
	if err := ValidateRegistryBytes(data); err != nil {
		return New(), &CorruptionError{Path: path, Err: err}
	}
	reg := New()
	if err := json.Unmarshal(data, &reg); err != nil {
		return New(), &CorruptionError{Path: path, Err: err}
	}
	if reg.Skills == nil {
		reg.Skills = map[string]Entry{}
	}
	return reg, nil
}

// Encode renders a registry document with two-space indentation and sorted keys.
func Encode(r Registry) ([]byte, error) {
	if r.Skills == nil {
		r.Skills = map[string]Entry{}
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding registry: %w", err)
	}
	return append(data, '\n'), nil
}

// Save writes the registry atomically.
func (s *Store) Save(r Registry) error {
	data, err := Encode(r)
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(s.Path(), data, 0o644); err != nil {
		return fmt.Errorf("saving registry: %w", err)
	}
	return nil
}

// Snapshot returns the raw registry document, or nil when none exists. It is
// used to put the document back byte for byte after a failed operation.
func (s *Store) Snapshot() ([]byte, error) {
	return snapshotFile(s.Path())
}

// RestoreSnapshot writes back a document returned by Snapshot. A nil
// snapshot removes the registry document.
func (s *Store) RestoreSnapshot(data []byte) error {
	return restoreFile(s.Path(), data)
}

// SnapshotSkillMap is Snapshot for the skill map document.
func (s *Store) SnapshotSkillMap() ([]byte, error) {
	return snapshotFile(s.SkillMapPath())
}

// RestoreSkillMapSnapshot is RestoreSnapshot for the skill map document.
func (s *Store) RestoreSkillMapSnapshot(data []byte) error {
	return restoreFile(s.SkillMapPath(), data)
}

func snapshotFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- path constructed from the configured skills root
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	return data, nil
}

func restoreFile(path string, data []byte) error {
	if data == nil {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing %s: %w", filepath.Base(path), err)
		}
		return nil
	}
	return fsutil.WriteFileAtomic(path, data, 0o644)
}

// Lock acquires the exclusive registry lock, waiting until ctx is done.
func (s *Store) Lock(ctx context.Context) (unlock func(), err error) {
	dir := filepath.Join(s.root, LockDirName)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	fl := flock.New(filepath.Join(dir, "registry.lock"))
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("acquiring registry lock: %w", err)
	}
	if !locked {
		return nil, errors.New("acquiring registry lock: lock not obtained")
	}
	return func() { _ = fl.Unlock() }, nil
}

// ErrSkillLocked is returned by LockSkill when another process holds the
// skill's lock.
var ErrSkillLocked = errors.New("skill is locked by another operation")

// LockSkill takes the exclusive per-skill lock without waiting.
func (s *Store) LockSkill(name string) (unlock func(), err error) {
	dir := filepath.Join(s.root, LockDirName)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	fl := flock.New(filepath.Join(dir, name+".skill.lock"))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking skill %s: %w", name, err)
	}
	if !locked {
		return nil, fmt.Errorf("locking skill %s: %w", name, ErrSkillLocked)
	}
	return func() { _ = fl.Unlock() }, nil
}

// Update runs fn on the current registry under the registry lock and saves
// the result when fn succeeds.
func (s *Store) Update(ctx context.Context, fn func(Registry) (Registry, error)) error {
	unlock, err := s.Lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	reg, err := s.Load()
	if err != nil {
		return err
	}
	next, err := fn(reg)
	if err != nil {
		return err
	}
	return s.Save(next)
}

// LoadOrRecover loads the registry. When the document is corrupt it is moved
// aside, the registry is rebuilt from the directories on disk and saved, and
// recovered is true.
func (s *Store) LoadOrRecover(ctx context.Context) (reg Registry, recovered bool, err error) {
	reg, err = s.Load()
	var corrupt *CorruptionError
	if err == nil || !errors.As(err, &corrupt) {
		return reg, false, err
	}

	aside := fmt.Sprintf("%s.corrupt-%s", s.Path(), s.now().UTC().Format("20060102T150405Z"))
	s.logger.WarnContext(ctx, "registry is corrupt, rebuilding from skills root",
		"path", s.Path(), "moved_to", aside, "error", corrupt.Err)

	if err := os.Rename(s.Path(), aside); err != nil {
		return New(), false, fmt.Errorf("moving corrupt registry aside: %w", err)
	}

	rebuilt, _, err := s.Sync(New())
	if err != nil {
		return New(), false, fmt.Errorf("rebuilding registry: %w", err)
	}
	if err := s.Save(rebuilt); err != nil {
		return New(), false, err
	}
	return rebuilt, true, nil
}
