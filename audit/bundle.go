// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/stacklok/skillctl/manifest"
)

// maxScannedFileSize bounds how much of a single file the text rules read.
const maxScannedFileSize = 2 << 20

// File is one regular file of the audited bundle.
type File struct {
	// Path is slash separated and relative to the bundle root.
	Path string
	// Content is nil when the file exceeds the scan limit.
	Content []byte
	Size    int64
}

// Lines splits the content into lines without terminators.
func (f File) Lines() []string {
	if f.Content == nil {
		return nil
	}
	text := strings.ReplaceAll(string(f.Content), "\r\n", "\n")
	return strings.Split(text, "\n")
}

// Bundle is the audited skill directory, read once and shared by all rules.
type Bundle struct {
	Root    string
	DirName string
	Files   []File

	// Manifest is nil when SKILL.md is missing or its frontmatter is invalid.
	Manifest *manifest.Manifest
	// ManifestErr explains why Manifest is nil.
	ManifestErr    error
	SkillMDPresent bool

	// RegistryRoot is the skills root holding the registry documents, or "".
	RegistryRoot string
}

// File returns the file at the slash separated path rel.
func (b *Bundle) File(rel string) (File, bool) {
	for _, f := range b.Files {
		if f.Path == rel {
			return f, true
		}
	}
	return File{}, false
}

// HasPath reports whether rel names a file or directory inside the bundle.
func (b *Bundle) HasPath(rel string) bool {
	prefix := rel + "/"
	for _, f := range b.Files {
		if f.Path == rel || strings.HasPrefix(f.Path, prefix) {
			return true
		}
	}
	return false
}

// SkillName is the manifest name, falling back to the directory name.
func (b *Bundle) SkillName() string {
	if b.Manifest != nil && b.Manifest.Name != "" {
		return b.Manifest.Name
	}
	return b.DirName
}

func (b *Bundle) vars() map[string]any {
	fields := map[string]any{}
	if b.Manifest != nil {
		fields = b.Manifest.Fields
	}
	paths := make([]string, 0, len(b.Files))
	for _, f := range b.Files {
		paths = append(paths, f.Path)
	}
	return map[string]any{
		VarManifest:         fields,
		VarDirName:          b.DirName,
		VarFiles:            paths,
		VarSkillMDPresent:   b.SkillMDPresent,
		VarFrontmatterValid: b.Manifest != nil,
	}
}

// LoadBundle reads the skill directory at root. Only an unreadable root is
// an error; problems with individual files become findings.
func LoadBundle(root, registryRoot string) (*Bundle, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("reading skill path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("skill path %s is not a directory", root)
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving skill path: %w", err)
	}
	b := &Bundle{Root: abs, DirName: filepath.Base(abs), RegistryRoot: registryRoot}

	err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if p == abs {
				return walkErr
			}
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(abs, p)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		f := File{Path: filepath.ToSlash(rel), Size: info.Size()}
		if info.Size() <= maxScannedFileSize {
			if data, err := os.ReadFile(p); err == nil { //#nosec G304 -- path from WalkDir below the audited root
				f.Content = data
			}
		}
		b.Files = append(b.Files, f)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading skill path: %w", err)
	}

	skillMD, ok := b.File(manifest.FileName)
	b.SkillMDPresent = ok
	switch {
	case !ok:
		b.ManifestErr = manifest.ErrNotFound
	case skillMD.Content == nil:
		b.ManifestErr = errors.New("SKILL.md is too large to parse")
	default:
		b.Manifest, b.ManifestErr = manifest.Parse(bytes.Clone(skillMD.Content))
	}
	return b, nil
}
