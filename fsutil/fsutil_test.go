// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func TestCopyTree(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	writeFiles(t, src, map[string]string{
		"SKILL.md":                    "---\nname: pdf\n---\n",
		"scripts/run.py":              "print('hi')\n",
		"scripts/__pycache__/run.pyc": "bytecode",
		"scripts/helper.pyc":          "bytecode",
		".git/HEAD":                   "ref: refs/heads/main",
		"references/api_reference.md": "# API\n",
	})
	require.NoError(t, os.Chmod(filepath.Join(src, "scripts/run.py"), 0o755))

	dst := filepath.Join(t.TempDir(), "pdf")
	require.NoError(t, CopyTree(src, dst, nil))

	content, err := os.ReadFile(filepath.Join(dst, "scripts/run.py"))
	require.NoError(t, err)
	assert.Equal(t, "print('hi')\n", string(content))

	info, err := os.Stat(filepath.Join(dst, "scripts/run.py"))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode().Perm()&0o100, "executable bit should be preserved")

	assert.FileExists(t, filepath.Join(dst, "references/api_reference.md"))
	assert.NoDirExists(t, filepath.Join(dst, "scripts/__pycache__"))
	assert.NoFileExists(t, filepath.Join(dst, "scripts/helper.pyc"))
	assert.NoDirExists(t, filepath.Join(dst, ".git"))
}

func TestCopyTree_RejectsSymlinks(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	writeFiles(t, src, map[string]string{"SKILL.md": "x"})
	require.NoError(t, os.Symlink("/etc/passwd", filepath.Join(src, "passwd")))

	err := CopyTree(src, filepath.Join(t.TempDir(), "out"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "symlinks not allowed")
}

func TestCopyTree_DestinationExists(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	err := CopyTree(src, t.TempDir(), nil)
	require.Error(t, err)
}

func TestFilter(t *testing.T) {
	t.Parallel()

	f, err := NewFilter("*.log", "node_modules")
	require.NoError(t, err)
	assert.True(t, f.Skip("debug.log"))
	assert.True(t, f.Skip("node_modules"))
	assert.False(t, f.Skip("main.py"))

	var nilFilter *Filter
	assert.False(t, nilFilter.Skip("anything"))

	_, err = NewFilter("[")
	require.Error(t, err)
}

func TestSwap(t *testing.T) {
	t.Parallel()

	t.Run("replaces existing directory", func(t *testing.T) {
		t.Parallel()

		root := t.TempDir()
		live := filepath.Join(root, "pdf")
		staged := filepath.Join(root, ".staging-pdf")
		writeFiles(t, live, map[string]string{"SKILL.md": "old"})
		writeFiles(t, staged, map[string]string{"SKILL.md": "new"})

		leftover, err := Swap(staged, live)
		require.NoError(t, err)
		assert.Empty(t, leftover)

		content, err := os.ReadFile(filepath.Join(live, "SKILL.md"))
		require.NoError(t, err)
		assert.Equal(t, "new", string(content))
		assert.NoDirExists(t, staged)

		entries, err := os.ReadDir(root)
		require.NoError(t, err)
		assert.Len(t, entries, 1, "no .old directory should be left behind")
	})

	t.Run("installs fresh directory", func(t *testing.T) {
		t.Parallel()

		root := t.TempDir()
		live := filepath.Join(root, "pdf")
		staged := filepath.Join(root, ".staging-pdf")
		writeFiles(t, staged, map[string]string{"SKILL.md": "new"})

		_, err := Swap(staged, live)
		require.NoError(t, err)
		assert.FileExists(t, filepath.Join(live, "SKILL.md"))
	})

	t.Run("restores live directory when staged is missing", func(t *testing.T) {
		t.Parallel()

		root := t.TempDir()
		live := filepath.Join(root, "pdf")
		writeFiles(t, live, map[string]string{"SKILL.md": "old"})

		_, err := Swap(filepath.Join(root, "missing"), live)
		require.Error(t, err)

		content, err := os.ReadFile(filepath.Join(live, "SKILL.md"))
		require.NoError(t, err)
		assert.Equal(t, "old", string(content))
	})
}

func TestExchangeRevert(t *testing.T) {
	t.Parallel()

	t.Run("puts previous contents back untouched", func(t *testing.T) {
		t.Parallel()

		root := t.TempDir()
		live := filepath.Join(root, "pdf")
		staged := filepath.Join(root, ".staging-pdf")
		writeFiles(t, live, map[string]string{"SKILL.md": "old", ".git/HEAD": "ref: refs/heads/main"})
		writeFiles(t, live, map[string]string{"scripts/__pycache__/main.cpython-312.pyc": "bytecode"})
		writeFiles(t, staged, map[string]string{"SKILL.md": "new"})

		aside, err := Exchange(staged, live)
		require.NoError(t, err)
		require.DirExists(t, aside)
		content, err := os.ReadFile(filepath.Join(live, "SKILL.md"))
		require.NoError(t, err)
		assert.Equal(t, "new", string(content))

		require.NoError(t, Revert(aside, live))
		assert.NoDirExists(t, aside)
		content, err = os.ReadFile(filepath.Join(live, "SKILL.md"))
		require.NoError(t, err)
		assert.Equal(t, "old", string(content))
		assert.FileExists(t, filepath.Join(live, "scripts", "__pycache__", "main.cpython-312.pyc"))
		assert.FileExists(t, filepath.Join(live, ".git", "HEAD"))
	})

	t.Run("revert of a fresh install removes it", func(t *testing.T) {
		t.Parallel()

		root := t.TempDir()
		live := filepath.Join(root, "pdf")
		staged := filepath.Join(root, ".staging-pdf")
		writeFiles(t, staged, map[string]string{"SKILL.md": "new"})

		aside, err := Exchange(staged, live)
		require.NoError(t, err)
		assert.Empty(t, aside)

		require.NoError(t, Revert(aside, live))
		assert.NoDirExists(t, live)
	})
}

func TestWriteFileAtomic(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	name := filepath.Join(dir, "nested", "skills.json")

	require.NoError(t, WriteFileAtomic(name, []byte(`{"skills":{}}`), 0o644))
	require.NoError(t, WriteFileAtomic(name, []byte(`{"skills":{"pdf":{}}}`), 0o644))

	content, err := os.ReadFile(name)
	require.NoError(t, err)
	assert.Equal(t, `{"skills":{"pdf":{}}}`, string(content))

	entries, err := os.ReadDir(filepath.Dir(name))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files should not be left behind")
}
