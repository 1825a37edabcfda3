// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"
	"time"
)

// MaxFileSize bounds a single archive member (100MB).
const MaxFileSize = 100 * 1024 * 1024

// Entry is one regular file in an archive.
type Entry struct {
	Path    string // slash-separated, relative
	Content []byte
	Mode    int64 // defaults to 0644
}

// writeTar writes entries sorted by path with normalized headers.
func writeTar(entries []Entry, epoch time.Time) ([]byte, error) {
	sorted := slices.Clone(entries)
	slices.SortFunc(sorted, func(a, b Entry) int { return strings.Compare(a.Path, b.Path) })

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	for _, e := range sorted {
		if err := validatePath(e.Path); err != nil {
			return nil, err
		}
		mode := e.Mode
		if mode == 0 {
			mode = 0o644
		}

		hdr := &tar.Header{
			Name:     e.Path,
			Size:     int64(len(e.Content)),
			Mode:     mode,
			ModTime:  epoch,
			Typeflag: tar.TypeReg,
			Format:   tar.FormatPAX,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, fmt.Errorf("writing tar header for %s: %w", e.Path, err)
		}
		if _, err := tw.Write(e.Content); err != nil {
			return nil, fmt.Errorf("writing tar content for %s: %w", e.Path, err)
		}
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("closing tar writer: %w", err)
	}
	return buf.Bytes(), nil
}

// readTar extracts regular files, rejecting links, special files and unsafe paths.
func readTar(data []byte, maxFileSize int64) ([]Entry, error) {
	tr := tar.NewReader(bytes.NewReader(data))
	var entries []Entry

	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading tar header: %w", err)
		}

		if err := validatePath(hdr.Name); err != nil {
			return nil, err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			continue
		case tar.TypeSymlink, tar.TypeLink:
			return nil, fmt.Errorf("archive contains disallowed link type: %s", hdr.Name)
		case tar.TypeReg:
		default:
			return nil, fmt.Errorf("archive contains disallowed entry type %d: %s", hdr.Typeflag, hdr.Name)
		}

		if hdr.Size > maxFileSize {
			return nil, fmt.Errorf("file %s exceeds maximum size of %d bytes", hdr.Name, maxFileSize)
		}
		content, err := io.ReadAll(io.LimitReader(tr, maxFileSize+1))
		if err != nil {
			return nil, fmt.Errorf("reading tar content for %s: %w", hdr.Name, err)
		}
		if int64(len(content)) > maxFileSize {
			return nil, fmt.Errorf("file %s exceeds maximum size of %d bytes", hdr.Name, maxFileSize)
		}

		entries = append(entries, Entry{
			Path:    path.Clean(hdr.Name),
			Content: content,
			Mode:    hdr.Mode,
		})
	}

	return entries, nil
}

// validatePath checks that an archive path stays inside the archive root.
func validatePath(p string) error {
	if p == "" {
		return errors.New("empty path in archive")
	}
	cleaned := path.Clean(p)
	if path.IsAbs(cleaned) {
		return fmt.Errorf("absolute path not allowed in archive: %s", p)
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return fmt.Errorf("path traversal detected in archive: %s", p)
	}
	return nil
}
