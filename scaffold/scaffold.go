// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package scaffold renders the starter bundle for a new local skill.
package scaffold

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"unicode"

	"github.com/stacklok/skillctl/manifest"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

// File is one rendered file of the starter bundle.
type File struct {
	// Path is slash separated and relative to the skill directory.
	Path string
	Mode fs.FileMode
	Data []byte
}

var layout = []struct {
	path     string
	template string
	mode     fs.FileMode
}{
	{path: manifest.FileName, template: "SKILL.md.tmpl", mode: 0o644},
	{path: "scripts/example.py", template: "example.py.tmpl", mode: 0o755},
	{path: "scripts/requirements.txt", template: "requirements.txt.tmpl", mode: 0o644},
	{path: "references/api_reference.md", template: "api_reference.md.tmpl", mode: 0o644},
	{path: "assets/example_asset.txt", template: "example_asset.txt.tmpl", mode: 0o644},
}

// ErrExists is returned by Write when the target directory already exists.
var ErrExists = errors.New("skill directory already exists")

// Title turns a hyphenated skill name into title case.
func Title(name string) string {
	words := strings.Split(name, "-")
	for i, w := range words {
		if w == "" {
			continue
		}
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// Render returns the starter files for name in creation order.
func Render(name string) ([]File, error) {
	if err := manifest.ValidateName(name); err != nil {
		return nil, err
	}
	data := struct{ Name, Title string }{Name: name, Title: Title(name)}

	files := make([]File, 0, len(layout))
	for _, l := range layout {
		var buf bytes.Buffer
		if err := templates.ExecuteTemplate(&buf, l.template, data); err != nil {
			return nil, fmt.Errorf("rendering %s: %w", l.path, err)
		}
		files = append(files, File{Path: l.path, Mode: l.mode, Data: buf.Bytes()})
	}
	return files, nil
}

// Write renders the starter bundle for name into dir, which must not exist.
func Write(dir, name string) ([]File, error) {
	files, err := Render(name)
	if err != nil {
		return nil, err
	}
	if _, err := os.Lstat(dir); err == nil {
		return nil, fmt.Errorf("%s: %w", dir, ErrExists)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("checking %s: %w", dir, err)
	}

	for _, f := range files {
		p := filepath.Join(dir, filepath.FromSlash(f.Path))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", filepath.Dir(f.Path), err)
		}
		if err := os.WriteFile(p, f.Data, f.Mode); err != nil {
			return nil, fmt.Errorf("writing %s: %w", f.Path, err)
		}
		// WriteFile is subject to the umask.
		if err := os.Chmod(p, f.Mode); err != nil {
			return nil, fmt.Errorf("setting mode of %s: %w", f.Path, err)
		}
	}
	return files, nil
}
