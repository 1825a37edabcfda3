// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package extract locates the skill directory inside a fetched repository tree.
//
// The search is bounded: the requested subdir at the root, then each
// candidate prefix joined with the subdir and with its last segment. No
// recursive scan is performed.
package extract

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Location is the directory chosen for installation.
type Location struct {
	// Path is the absolute path inside the fetched tree.
	Path string
	// Subdir is the repository-relative path actually used, in slash form.
	Subdir string
	// Fallback is true when a candidate prefix was needed.
	Fallback bool
}

// SubdirNotFoundError lists every path that was probed.
type SubdirNotFoundError struct {
	Subdir string
	Probed []string
}

// Error implements the error interface.
func (e *SubdirNotFoundError) Error() string {
	return fmt.Sprintf("subdirectory %q not found (tried: %s)", e.Subdir, strings.Join(e.Probed, ", "))
}

// Locate resolves subdir inside root. An empty subdir selects root itself.
func Locate(root, subdir string, prefixes []string) (Location, error) {
	subdir = strings.Trim(filepath.ToSlash(subdir), "/")
	if subdir == "" || subdir == "." {
		return Location{Path: root}, nil
	}
	if err := checkRelative(subdir); err != nil {
		return Location{}, err
	}

	candidates := Candidates(subdir, prefixes)
	for i, rel := range candidates {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if isDir(p) {
			return Location{Path: p, Subdir: rel, Fallback: i > 0}, nil
		}
	}

	return Location{}, &SubdirNotFoundError{Subdir: subdir, Probed: candidates}
}

// Candidates returns the repository-relative paths Locate probes, in order,
// without duplicates.
func Candidates(subdir string, prefixes []string) []string {
	seen := map[string]bool{}
	var out []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	add(subdir)
	base := path.Base(subdir)
	for _, prefix := range prefixes {
		prefix = strings.Trim(prefix, "/")
		if prefix == "" {
			continue
		}
		add(path.Join(prefix, subdir))
		add(path.Join(prefix, base))
	}
	return out
}

func checkRelative(subdir string) error {
	if path.IsAbs(subdir) || filepath.IsAbs(subdir) {
		return fmt.Errorf("subdirectory %q must be relative", subdir)
	}
	for _, seg := range strings.Split(subdir, "/") {
		if seg == ".." {
			return fmt.Errorf("subdirectory %q escapes the repository", subdir)
		}
	}
	return nil
}

func isDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}
