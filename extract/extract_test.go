// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package extract

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaultPrefixes = []string{"skills", "packages", "apps"}

func mkdirs(t *testing.T, root string, dirs ...string) {
	t.Helper()
	for _, d := range dirs {
		require.NoError(t, os.MkdirAll(filepath.Join(root, filepath.FromSlash(d)), 0o755))
	}
}

func TestLocate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		dirs         []string
		subdir       string
		wantSubdir   string
		wantFallback bool
	}{
		{
			name:       "empty subdir selects root",
			dirs:       []string{"skills/pdf"},
			subdir:     "",
			wantSubdir: "",
		},
		{
			name:       "direct match",
			dirs:       []string{"pdf"},
			subdir:     "pdf",
			wantSubdir: "pdf",
		},
		{
			name:         "prefix fallback",
			dirs:         []string{"skills/pdf"},
			subdir:       "pdf",
			wantSubdir:   "skills/pdf",
			wantFallback: true,
		},
		{
			name:         "prefix with basename",
			dirs:         []string{"packages/pdf"},
			subdir:       "document-skills/pdf",
			wantSubdir:   "packages/pdf",
			wantFallback: true,
		},
		{
			name:       "direct match wins over prefixes",
			dirs:       []string{"pdf", "skills/pdf"},
			subdir:     "pdf",
			wantSubdir: "pdf",
		},
		{
			name:         "first prefix wins",
			dirs:         []string{"apps/pdf", "skills/pdf", "packages/pdf"},
			subdir:       "pdf",
			wantSubdir:   "skills/pdf",
			wantFallback: true,
		},
		{
			name:         "prefix joined with full subdir before basename",
			dirs:         []string{"skills/a/pdf", "skills/pdf"},
			subdir:       "a/pdf",
			wantSubdir:   "skills/a/pdf",
			wantFallback: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			root := t.TempDir()
			mkdirs(t, root, tc.dirs...)

			loc, err := Locate(root, tc.subdir, defaultPrefixes)
			require.NoError(t, err)
			assert.Equal(t, tc.wantSubdir, loc.Subdir)
			assert.Equal(t, tc.wantFallback, loc.Fallback)
			assert.Equal(t, filepath.Join(root, filepath.FromSlash(tc.wantSubdir)), loc.Path)
		})
	}
}

func TestLocate_NotFound(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	mkdirs(t, root, "docs")
	require.NoError(t, os.WriteFile(filepath.Join(root, "pdf"), []byte("a file, not a dir"), 0o600))

	_, err := Locate(root, "pdf", defaultPrefixes)

	var notFound *SubdirNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "pdf", notFound.Subdir)
	assert.Equal(t, []string{"pdf", "skills/pdf", "packages/pdf", "apps/pdf"}, notFound.Probed)
}

func TestLocate_RejectsEscapes(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	for _, subdir := range []string{"../outside", "a/../../b", "/etc"} {
		_, err := Locate(root, subdir, defaultPrefixes)
		require.Error(t, err, subdir)
	}
}

func TestCandidates(t *testing.T) {
	t.Parallel()

	got := Candidates("document-skills/pdf", []string{"skills", "", "apps"})
	assert.Equal(t, []string{
		"document-skills/pdf",
		"skills/document-skills/pdf",
		"skills/pdf",
		"apps/document-skills/pdf",
		"apps/pdf",
	}, got)
}
