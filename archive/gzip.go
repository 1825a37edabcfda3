// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"time"
)

// gzipOSUnknown is the RFC 1952 OS value for "unknown".
const gzipOSUnknown = 255

// MaxArchiveSize bounds the decompressed size of an archive (1GB).
const MaxArchiveSize = 1024 * 1024 * 1024

// Options configures Pack.
type Options struct {
	// Epoch is stamped on every entry and on the gzip header.
	Epoch time.Time
	// Level is the gzip compression level.
	Level int
}

// DefaultOptions returns options that produce reproducible output.
func DefaultOptions() Options {
	return Options{
		Epoch: time.Unix(0, 0).UTC(),
		Level: gzip.BestCompression,
	}
}

// Pack writes entries into a reproducible tar.gz.
func Pack(entries []Entry, opts Options) ([]byte, error) {
	if opts.Epoch.IsZero() {
		opts.Epoch = time.Unix(0, 0).UTC()
	}
	if opts.Level == 0 {
		opts.Level = gzip.BestCompression
	}

	tarData, err := writeTar(entries, opts.Epoch)
	if err != nil {
		return nil, fmt.Errorf("creating tar: %w", err)
	}

	var buf bytes.Buffer
	gw, err := gzip.NewWriterLevel(&buf, opts.Level)
	if err != nil {
		return nil, fmt.Errorf("creating gzip writer: %w", err)
	}
	gw.ModTime = opts.Epoch
	gw.Name = ""
	gw.Comment = ""
	gw.OS = gzipOSUnknown

	if _, err := gw.Write(tarData); err != nil {
		return nil, fmt.Errorf("writing gzip data: %w", err)
	}
	if err := gw.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip writer: %w", err)
	}
	return buf.Bytes(), nil
}

// Unpack reads a tar.gz produced by Pack (or any well-formed tar.gz).
func Unpack(data []byte) ([]Entry, error) {
	return UnpackWithLimit(data, MaxArchiveSize, MaxFileSize)
}

// UnpackWithLimit is Unpack with explicit bounds.
func UnpackWithLimit(data []byte, maxSize, maxFileSize int64) ([]Entry, error) {
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating gzip reader: %w", err)
	}
	defer func() { _ = gr.Close() }()

	tarData, err := io.ReadAll(io.LimitReader(gr, maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading gzip data: %w", err)
	}
	if int64(len(tarData)) > maxSize {
		return nil, fmt.Errorf("decompressed data exceeds maximum size of %d bytes", maxSize)
	}

	entries, err := readTar(tarData, maxFileSize)
	if err != nil {
		return nil, fmt.Errorf("extracting tar: %w", err)
	}
	return entries, nil
}
