// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package installer

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/skillctl/backup"
	"github.com/stacklok/skillctl/recovery"
	"github.com/stacklok/skillctl/registry"
)

type stateRecorder struct {
	mu     sync.Mutex
	states []State
	failAt State
	fail   func() error
}

func (r *stateRecorder) hook(_ context.Context, _ string, s State) error {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
	if r.fail != nil && s == r.failAt {
		return r.fail()
	}
	return nil
}

type fixture struct {
	reg       *registry.Store
	backups   *backup.Manager
	installer *Installer
	recorder  *stateRecorder
	srcRoot   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	reg := registry.NewStore(filepath.Join(root, "skills"))
	backups := backup.NewManager(reg, filepath.Join(root, "backups"))
	rec := &stateRecorder{}
	return &fixture{
		reg:       reg,
		backups:   backups,
		installer: New(reg, backups, WithTransitionHook(rec.hook)),
		recorder:  rec,
		srcRoot:   filepath.Join(root, "src"),
	}
}

// bundle writes a source bundle and returns its directory.
func (f *fixture) bundle(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(f.srcRoot, dir)
	require.NoError(t, os.MkdirAll(filepath.Join(path, "scripts"), 0o750))
	skillMD := "---\nname: " + name + "\ndescription: Converts things\nkeywords: [convert]\n---\n" + body
	require.NoError(t, os.WriteFile(filepath.Join(path, "SKILL.md"), []byte(skillMD), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(path, "scripts", "main.py"), []byte(body), 0o644))
	return path
}

func (f *fixture) request(bundle, version string) Request {
	return Request{
		Name:    "converter",
		Bundle:  bundle,
		Source:  "https://github.com/acme/skills.git",
		Subdir:  "skills/converter",
		Version: version,
	}
}

// tree captures every file under the skills root except lock files.
func tree(t *testing.T, root string) map[string]string {
	t.Helper()
	out := map[string]string{}
	if _, err := os.Stat(root); errors.Is(err, os.ErrNotExist) {
		return out
	}
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == registry.LockDirName {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		out[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	require.NoError(t, err)
	return out
}

func TestInstall_Fresh(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	res, err := f.installer.Install(context.Background(), f.request(f.bundle(t, "converter", "converter", "v1"), "abc123"))
	require.NoError(t, err)

	assert.Nil(t, res.Backup)
	assert.Equal(t, filepath.Join(f.reg.Root(), "converter"), res.Path)
	assert.Equal(t, "converter", res.Manifest.Name)
	assert.NotEmpty(t, res.OperationID)
	assert.Equal(t, []State{StateStart, StateStaged, StateSwapped, StateRegistered, StateDone}, f.recorder.states)

	reg, err := f.reg.Load()
	require.NoError(t, err)
	entry, ok := reg.Get("converter")
	require.True(t, ok)
	assert.Equal(t, "https://github.com/acme/skills.git", entry.Source)
	assert.Equal(t, "skills/converter", entry.Subdir)
	assert.Equal(t, "abc123", entry.Version)
	require.NotNil(t, entry.UpdatedAt)

	sm, err := f.reg.LoadSkillMap()
	require.NoError(t, err)
	assert.True(t, sm.Has("converter"))

	files := tree(t, f.reg.Root())
	assert.Equal(t, "v1", files["converter/scripts/main.py"])
	for name := range files {
		assert.NotContains(t, name, stagingPrefix)
	}
}

func TestInstall_ReplaceTakesBackup(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	_, err := f.installer.Install(ctx, f.request(f.bundle(t, "v1/converter", "converter", "v1"), "c1"))
	require.NoError(t, err)
	f.recorder.states = nil

	res, err := f.installer.Install(ctx, f.request(f.bundle(t, "v2/converter", "converter", "v2"), "c2"))
	require.NoError(t, err)
	require.NotNil(t, res.Backup)
	assert.Equal(t, "converter", res.Backup.Skill)
	assert.Equal(t, []State{StateStart, StateBackupTaken, StateStaged, StateSwapped, StateRegistered, StateDone}, f.recorder.states)

	assert.Equal(t, "v2", tree(t, f.reg.Root())["converter/scripts/main.py"])
	snap, err := os.ReadFile(filepath.Join(res.Backup.Path, "scripts", "main.py"))
	require.NoError(t, err)
	assert.Equal(t, "v1", string(snap))
}

func TestInstall_InvalidManifest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		bundle func(f *fixture, t *testing.T) string
	}{
		{
			name: "name mismatch",
			bundle: func(f *fixture, t *testing.T) string {
				return f.bundle(t, "converter", "other-name", "x")
			},
		},
		{
			name: "missing description",
			bundle: func(f *fixture, t *testing.T) string {
				dir := filepath.Join(f.srcRoot, "converter")
				require.NoError(t, os.MkdirAll(dir, 0o750))
				require.NoError(t, os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte("---\nname: converter\n---\n"), 0o644))
				return dir
			},
		},
		{
			name: "no manifest",
			bundle: func(f *fixture, t *testing.T) string {
				dir := filepath.Join(f.srcRoot, "converter")
				require.NoError(t, os.MkdirAll(dir, 0o750))
				require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hi"), 0o644))
				return dir
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			before := tree(t, f.reg.Root())

			_, err := f.installer.Install(context.Background(), f.request(tc.bundle(f, t), "c1"))

			var installErr *InstallError
			require.ErrorAs(t, err, &installErr)
			assert.ErrorIs(t, err, ErrInvalidManifest)
			assert.Equal(t, StateStaged, installErr.State)
			assert.False(t, installErr.RolledBack, "nothing live was touched")
			assert.Equal(t, before, tree(t, f.reg.Root()))
		})
	}
}

func TestInstall_RollbackRestoresEverything(t *testing.T) {
	t.Parallel()

	injected := errors.New("simulated crash")
	tests := []struct {
		name         string
		existing     bool
		failAt       State
		wantRollback bool
	}{
		{name: "fresh install fails after staging", failAt: StateStaged, wantRollback: false},
		{name: "fresh install fails after swap", failAt: StateSwapped, wantRollback: true},
		{name: "fresh install fails after register", failAt: StateRegistered, wantRollback: true},
		{name: "update fails after backup", existing: true, failAt: StateBackupTaken, wantRollback: false},
		{name: "update fails after swap", existing: true, failAt: StateSwapped, wantRollback: true},
		{name: "update fails after register", existing: true, failAt: StateRegistered, wantRollback: true},
		{name: "update fails at done", existing: true, failAt: StateDone, wantRollback: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			f := newFixture(t)
			if tc.existing {
				_, err := f.installer.Install(ctx, f.request(f.bundle(t, "v1/converter", "converter", "v1"), "c1"))
				require.NoError(t, err)
			}
			before := tree(t, f.reg.Root())

			f.recorder.failAt = tc.failAt
			f.recorder.fail = func() error { return injected }
			f.recorder.states = nil

			_, err := f.installer.Install(ctx, f.request(f.bundle(t, "v2/converter", "converter", "v2"), "c2"))

			var installErr *InstallError
			require.ErrorAs(t, err, &installErr)
			assert.ErrorIs(t, err, injected)
			assert.Equal(t, tc.failAt, installErr.State)
			assert.Equal(t, tc.wantRollback, installErr.RolledBack)
			assert.Equal(t, before, tree(t, f.reg.Root()), "skills root must be byte-identical after a failed install")
			assert.Equal(t, StateFailed, f.recorder.states[len(f.recorder.states)-1])
		})
	}
}

func TestInstall_RollbackKeepsIgnoredFiles(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	_, err := f.installer.Install(ctx, f.request(f.bundle(t, "v1/converter", "converter", "v1"), "c1"))
	require.NoError(t, err)

	live := filepath.Join(f.reg.Root(), "converter")
	require.NoError(t, os.MkdirAll(filepath.Join(live, "scripts", "__pycache__"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(live, "scripts", "__pycache__", "main.cpython-312.pyc"), []byte("bytecode"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(live, "notes.pyc"), []byte("bytecode"), 0o644))
	before := tree(t, f.reg.Root())

	f.recorder.failAt = StateRegistered
	f.recorder.fail = func() error { return errors.New("simulated crash") }
	_, err = f.installer.Install(ctx, f.request(f.bundle(t, "v2/converter", "converter", "v2"), "c2"))
	require.Error(t, err)

	assert.Equal(t, before, tree(t, f.reg.Root()))
	assert.FileExists(t, filepath.Join(live, "scripts", "__pycache__", "main.cpython-312.pyc"))
	assert.FileExists(t, filepath.Join(live, "notes.pyc"))
}

func TestInstall_ReplaceLeavesNoPreviousDirectory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	for _, v := range []string{"v1", "v2"} {
		_, err := f.installer.Install(ctx, f.request(f.bundle(t, v+"/converter", "converter", v), v))
		require.NoError(t, err)
	}

	entries, err := os.ReadDir(f.reg.Root())
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".old-")
		assert.NotContains(t, e.Name(), stagingPrefix)
	}
}

func TestInstall_UnconventionalName(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	req := f.request(f.bundle(t, "pdf_tools", "pdf_tools", "v1"), "c1")
	req.Name = "pdf_tools"

	res, err := f.installer.Install(ctx, req)
	require.NoError(t, err)
	assert.DirExists(t, res.Path)

	_, err = f.installer.Uninstall(ctx, "pdf_tools")
	require.NoError(t, err)
	assert.NoDirExists(t, res.Path)
}

func TestInstall_RollbackOnPanic(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	_, err := f.installer.Install(ctx, f.request(f.bundle(t, "v1/converter", "converter", "v1"), "c1"))
	require.NoError(t, err)
	before := tree(t, f.reg.Root())

	f.recorder.failAt = StateRegistered
	f.recorder.fail = func() error { panic("power loss") }

	_, err = f.installer.Install(ctx, f.request(f.bundle(t, "v2/converter", "converter", "v2"), "c2"))

	var panicErr *recovery.PanicError
	require.ErrorAs(t, err, &panicErr)
	assert.Equal(t, "power loss", panicErr.Value)

	var installErr *InstallError
	require.ErrorAs(t, err, &installErr)
	assert.True(t, installErr.RolledBack)
	assert.Equal(t, before, tree(t, f.reg.Root()))
}

func TestInstall_SkillLocked(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	unlock, err := f.reg.LockSkill("converter")
	require.NoError(t, err)
	defer unlock()

	_, err = f.installer.Install(context.Background(), f.request(f.bundle(t, "converter", "converter", "v1"), "c1"))
	var installErr *InstallError
	require.ErrorAs(t, err, &installErr)
	assert.ErrorIs(t, err, registry.ErrSkillLocked)
	assert.NoDirExists(t, filepath.Join(f.reg.Root(), "converter"))
}

func TestInstall_RejectsBadRequests(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	req := f.request(f.bundle(t, "converter", "converter", "v1"), "c1")

	bad := req
	bad.Name = "../escape"
	_, err := f.installer.Install(context.Background(), bad)
	require.Error(t, err)

	bad = req
	bad.Name = ".hidden"
	_, err = f.installer.Install(context.Background(), bad)
	require.Error(t, err)

	bad = req
	bad.Bundle = filepath.Join(f.srcRoot, "missing")
	_, err = f.installer.Install(context.Background(), bad)
	require.Error(t, err)
}

func TestInstall_CancelledBeforeStaging(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.installer.Install(ctx, f.request(f.bundle(t, "converter", "converter", "v1"), "c1"))
	require.ErrorIs(t, err, context.Canceled)
	assert.NoDirExists(t, filepath.Join(f.reg.Root(), "converter"))
}

func TestUninstall(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	_, err := f.installer.Install(ctx, f.request(f.bundle(t, "converter", "converter", "v1"), "c1"))
	require.NoError(t, err)

	snap, err := f.installer.Uninstall(ctx, "converter")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.DirExists(t, snap.Path)
	assert.NoDirExists(t, filepath.Join(f.reg.Root(), "converter"))

	reg, err := f.reg.Load()
	require.NoError(t, err)
	_, ok := reg.Get("converter")
	assert.False(t, ok)

	sm, err := f.reg.LoadSkillMap()
	require.NoError(t, err)
	assert.False(t, sm.Has("converter"))

	_, err = f.installer.Uninstall(ctx, "converter")
	require.ErrorIs(t, err, ErrNotInstalled)
}

func TestState_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "BACKUP_TAKEN", StateBackupTaken.String())
	assert.Equal(t, "ROLLED_BACK", StateRolledBack.String())
	assert.Equal(t, "State(42)", State(42).String())
}
