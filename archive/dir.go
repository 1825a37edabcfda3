// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/stacklok/skillctl/fsutil"
)

// ReadDir collects the regular files under dir as entries rooted at prefix.
// Entries matched by filter are skipped (nil means fsutil.DefaultIgnore).
func ReadDir(dir, prefix string, filter *fsutil.Filter) ([]Entry, error) {
	if filter == nil {
		filter = fsutil.MustFilter(fsutil.DefaultIgnore...)
	}
	var entries []Entry
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if p == dir {
			return nil
		}
		if filter.Skip(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return fmt.Errorf("getting relative path: %w", err)
		}
		rel = filepath.ToSlash(rel)

		if d.Type()&os.ModeSymlink != 0 {
			return fmt.Errorf("symlinks not allowed in skill directory: %s", rel)
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("checking file type for %s: %w", rel, err)
		}
		if !info.Mode().IsRegular() {
			return fmt.Errorf("non-regular file not allowed in skill directory: %s", rel)
		}

		content, err := os.ReadFile(p) //#nosec G304 -- path from WalkDir, symlink-checked
		if err != nil {
			return fmt.Errorf("reading %s: %w", rel, err)
		}
		entries = append(entries, Entry{
			Path:    path.Join(prefix, rel),
			Content: content,
			Mode:    int64(info.Mode().Perm()),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, err)
	}
	return entries, nil
}

// WriteDir materializes entries below dir, creating parent directories.
func WriteDir(dir string, entries []Entry) error {
	for _, e := range entries {
		if err := validatePath(e.Path); err != nil {
			return err
		}
		target := filepath.Join(dir, filepath.FromSlash(path.Clean(e.Path)))
		if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
			return fmt.Errorf("creating directory for %s: %w", e.Path, err)
		}
		mode := fs.FileMode(e.Mode).Perm()
		if mode == 0 {
			mode = 0o644
		}
		if err := os.WriteFile(target, e.Content, mode|0o600); err != nil {
			return fmt.Errorf("writing %s: %w", e.Path, err)
		}
	}
	return nil
}

// Select returns the entries under the top-level directory name, with that
// prefix stripped.
func Select(entries []Entry, name string) []Entry {
	prefix := name + "/"
	var out []Entry
	for _, e := range entries {
		if rest, ok := strings.CutPrefix(e.Path, prefix); ok {
			out = append(out, Entry{Path: rest, Content: e.Content, Mode: e.Mode})
		}
	}
	return out
}

// TopLevel returns the distinct first path segments, in order of appearance.
func TopLevel(entries []Entry) []string {
	seen := map[string]bool{}
	var out []string
	for _, e := range entries {
		first, _, _ := strings.Cut(e.Path, "/")
		if !seen[first] {
			seen[first] = true
			out = append(out, first)
		}
	}
	return out
}
