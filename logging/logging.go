// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Format represents the log output format.
type Format int

const (
	// FormatText produces human-readable key=value output using [log/slog.TextHandler].
	// This is the default, since skillctl is mostly run from a terminal.
	FormatText Format = iota

	// FormatJSON produces JSON-formatted log output using [log/slog.JSONHandler].
	FormatJSON
)

// String returns the configuration name of the format.
func (f Format) String() string {
	if f == FormatJSON {
		return "json"
	}
	return "text"
}

// ParseFormat converts a configuration value ("text" or "json") into a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return FormatText, fmt.Errorf("unknown log format %q: expected text or json", s)
	}
}

// ParseLevel converts a configuration value such as "debug" or "WARN" into a level.
// An empty string yields INFO.
func ParseLevel(s string) (slog.Level, error) {
	if strings.TrimSpace(s) == "" {
		return slog.LevelInfo, nil
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q: %w", s, err)
	}
	return lvl, nil
}

// config holds the resolved configuration for creating a logger.
type config struct {
	format Format
	level  slog.Leveler
	output io.Writer
	extra  []io.Writer
}

// Option configures the logger created by [New] or the handler created by [NewHandler].
type Option func(*config)

// WithFormat sets the output format (Text or JSON).
// The default is [FormatText].
func WithFormat(f Format) Option {
	return func(c *config) {
		c.format = f
	}
}

// WithLevel sets the minimum log level.
// The default is [log/slog.LevelInfo].
//
// Accepts any [log/slog.Leveler], including [*log/slog.LevelVar] for
// dynamic level changes.
func WithLevel(l slog.Leveler) Option {
	return func(c *config) {
		c.level = l
	}
}

// WithOutput sets the destination writer for log output.
// The default is [os.Stderr].
func WithOutput(w io.Writer) Option {
	return func(c *config) {
		c.output = w
	}
}

// WithTee copies every record to w in addition to the primary output.
// The update log file is attached this way.
func WithTee(w io.Writer) Option {
	return func(c *config) {
		if w != nil {
			c.extra = append(c.extra, w)
		}
	}
}

// NewHandler creates the [log/slog.Handler] that [New] wraps. Use it when
// the handler needs to be decorated before building a logger.
func NewHandler(opts ...Option) slog.Handler {
	cfg := &config{
		format: FormatText,
		level:  slog.LevelInfo,
		output: os.Stderr,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	out := cfg.output
	if len(cfg.extra) > 0 {
		out = io.MultiWriter(append([]io.Writer{cfg.output}, cfg.extra...)...)
	}

	handlerOpts := &slog.HandlerOptions{
		Level:       cfg.level,
		ReplaceAttr: replaceAttr,
	}

	if cfg.format == FormatJSON {
		return slog.NewJSONHandler(out, handlerOpts)
	}
	return slog.NewTextHandler(out, handlerOpts)
}

// New creates a pre-configured [*log/slog.Logger].
//
// Defaults:
//   - Format: text ([FormatText])
//   - Level: INFO ([log/slog.LevelInfo])
//   - Output: [os.Stderr]
//   - Timestamps: [time.RFC3339]
func New(opts ...Option) *slog.Logger {
	return slog.New(NewHandler(opts...))
}

// Discard returns a logger that drops every record. Library constructors
// fall back to it when no logger is supplied.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// replaceAttr formats the time attribute to RFC3339.
func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey {
		if t, ok := a.Value.Any().(time.Time); ok {
			a.Value = slog.StringValue(t.Format(time.RFC3339))
		}
	}
	return a
}
