// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package fsutil holds the filesystem primitives the lifecycle relies on:
// filtered tree copies, directory swaps by rename, and atomic file writes.
package fsutil

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	"github.com/google/uuid"
)

// DefaultIgnore lists base-name patterns that are never copied into a skills
// root or a backup.
var DefaultIgnore = []string{".git", "__pycache__", "*.pyc", ".DS_Store"}

// Filter decides which entries CopyTree skips, by base name.
type Filter struct {
	patterns []glob.Glob
}

// NewFilter compiles base-name glob patterns.
func NewFilter(patterns ...string) (*Filter, error) {
	f := &Filter{}
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compiling ignore pattern %q: %w", p, err)
		}
		f.patterns = append(f.patterns, g)
	}
	return f, nil
}

// MustFilter is NewFilter for patterns known at compile time.
func MustFilter(patterns ...string) *Filter {
	f, err := NewFilter(patterns...)
	if err != nil {
		panic(err)
	}
	return f
}

// Skip reports whether an entry with the given base name is ignored.
func (f *Filter) Skip(name string) bool {
	if f == nil {
		return false
	}
	for _, g := range f.patterns {
		if g.Match(name) {
			return true
		}
	}
	return false
}

var defaultFilter = MustFilter(DefaultIgnore...)

// CopyTree copies the directory src to dst, which must not exist yet.
// Entries matched by filter are skipped; a nil filter uses DefaultIgnore.
// Symlinks and other non-regular files are rejected.
func CopyTree(src, dst string, filter *Filter) error {
	if filter == nil {
		filter = defaultFilter
	}
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("accessing %s: %w", src, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", src)
	}
	if _, err := os.Lstat(dst); err == nil {
		return fmt.Errorf("destination already exists: %s", dst)
	}
	if err := os.MkdirAll(dst, info.Mode().Perm()|0o700); err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}

	return filepath.WalkDir(src, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if p == src {
			return nil
		}
		if filter.Skip(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(src, p)
		if err != nil {
			return fmt.Errorf("getting relative path: %w", err)
		}
		target := filepath.Join(dst, rel)

		if d.Type()&os.ModeSymlink != 0 {
			return fmt.Errorf("symlinks not allowed in skill directory: %s", filepath.ToSlash(rel))
		}
		fi, err := d.Info()
		if err != nil {
			return fmt.Errorf("checking file type for %s: %w", rel, err)
		}
		switch {
		case d.IsDir():
			return os.MkdirAll(target, fi.Mode().Perm()|0o700)
		case fi.Mode().IsRegular():
			return copyFile(p, target, fi.Mode().Perm())
		default:
			return fmt.Errorf("non-regular file not allowed in skill directory: %s", filepath.ToSlash(rel))
		}
	})
}

func copyFile(src, dst string, perm fs.FileMode) error {
	in, err := os.Open(src) //#nosec G304 -- path from WalkDir, symlink-checked
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, perm|0o600) //#nosec G304 -- destination under a staging dir we created
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copying %s: %w", src, err)
	}
	return out.Close()
}

// Exists reports whether p exists (without following a final symlink).
func Exists(p string) bool {
	_, err := os.Lstat(p)
	return err == nil
}

// IsDir reports whether p is a directory.
func IsDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}

// Exchange renames staged to live within the same parent directory. When
// live exists it is first moved to a hidden sibling whose path is returned,
// empty otherwise. The caller owns that directory: Revert puts it back and
// os.RemoveAll discards it. If the second rename fails live is restored.
func Exchange(staged, live string) (aside string, err error) {
	if Exists(live) {
		aside = filepath.Join(filepath.Dir(live), ".old-"+filepath.Base(live)+"-"+uuid.NewString())
		if err := os.Rename(live, aside); err != nil {
			return "", fmt.Errorf("moving %s aside: %w", live, err)
		}
	}

	if err := os.Rename(staged, live); err != nil {
		if aside != "" {
			if rbErr := os.Rename(aside, live); rbErr != nil {
				return "", errors.Join(
					fmt.Errorf("activating %s: %w", staged, err),
					fmt.Errorf("restoring %s: %w", live, rbErr),
				)
			}
		}
		return "", fmt.Errorf("activating %s: %w", staged, err)
	}
	return aside, nil
}

// Revert undoes Exchange: live is removed and aside, when set, is renamed
// back into its place.
func Revert(aside, live string) error {
	if err := os.RemoveAll(live); err != nil {
		return fmt.Errorf("removing %s: %w", live, err)
	}
	if aside == "" {
		return nil
	}
	if err := os.Rename(aside, live); err != nil {
		return fmt.Errorf("restoring %s: %w", live, err)
	}
	return nil
}

// Swap is Exchange followed by deleting the previous contents. The new
// contents are live once err is nil; leftover names the previous directory
// when it could not be deleted.
func Swap(staged, live string) (leftover string, err error) {
	aside, err := Exchange(staged, live)
	if err != nil || aside == "" {
		return "", err
	}
	if err := os.RemoveAll(aside); err != nil {
		return aside, nil
	}
	return "", nil
}

// WriteFileAtomic writes data to a temporary file in the same directory,
// syncs it and renames it over name.
func WriteFileAtomic(name string, data []byte, perm fs.FileMode) (err error) {
	dir := filepath.Dir(name)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(name)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing %s: %w", tmp.Name(), err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("syncing %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmp.Name(), err)
	}
	if err := os.Chmod(tmp.Name(), perm); err != nil {
		return fmt.Errorf("setting mode on %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), name); err != nil {
		return fmt.Errorf("renaming into %s: %w", name, err)
	}
	return nil
}

// IsHidden reports whether a base name denotes a hidden entry.
func IsHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
