// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/stacklok/skillctl/logging"
	"github.com/stacklok/skillctl/source"
)

// Policy controls retries.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
}

// DefaultPolicy retries three times starting at one second.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		Multiplier:   2,
		MaxDelay:     10 * time.Second,
	}
}

// Delay returns the wait before attempt+1, where attempt is 1-based.
func (p Policy) Delay(attempt int) time.Duration {
	if p.InitialDelay <= 0 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.InitialDelay) * math.Pow(mult, float64(attempt-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	return time.Duration(d)
}

// FetchError is the terminal error of a fetch or remote lookup.
type FetchError struct {
	URL       string
	Attempts  int
	Transient bool
	Err       error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("fetching %s failed after %d attempt(s) (%s): %v", e.URL, e.Attempts, kind, e.Err)
}

// Unwrap returns the last underlying error.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Tree is a fetched repository checkout.
type Tree struct {
	Root   string
	Commit string
}

// Fetcher clones repositories with retries.
type Fetcher struct {
	vcs     VCS
	policy  Policy
	tempDir string
	logger  *slog.Logger
	sleep   func(context.Context, time.Duration) error
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithPolicy replaces DefaultPolicy.
func WithPolicy(p Policy) Option {
	return func(f *Fetcher) {
		f.policy = p
	}
}

// WithTempDir sets the parent directory for scoped checkouts.
func WithTempDir(dir string) Option {
	return func(f *Fetcher) {
		f.tempDir = dir
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = l
	}
}

// WithSleep replaces the backoff wait, for tests.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(f *Fetcher) {
		f.sleep = fn
	}
}

// New creates a Fetcher backed by vcs.
func New(vcs VCS, opts ...Option) *Fetcher {
	f := &Fetcher{
		vcs:    vcs,
		policy: DefaultPolicy(),
		logger: logging.Discard(),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.policy.MaxAttempts < 1 {
		f.policy.MaxAttempts = 1
	}
	return f
}

// Fetch clones spec into a scoped temporary directory and calls fn with the
// checkout. The directory is removed when Fetch returns.
func (f *Fetcher) Fetch(ctx context.Context, spec source.Spec, fn func(*Tree) error) error {
	base, err := os.MkdirTemp(f.tempDir, "skillctl-fetch-*")
	if err != nil {
		return fmt.Errorf("creating temporary directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(base) }()

	var tree *Tree
	err = f.retry(ctx, spec.RepositoryURL, func(attempt int) error {
		dir := filepath.Join(base, fmt.Sprintf("attempt-%d", attempt))
		commit, err := f.vcs.Clone(ctx, spec.RepositoryURL, spec.Ref, dir)
		if err != nil {
			_ = os.RemoveAll(dir)
			return err
		}
		if commit == "" {
			commit = UnknownCommit
		}
		tree = &Tree{Root: dir, Commit: commit}
		return nil
	})
	if err != nil {
		return err
	}

	f.logger.DebugContext(ctx, "repository fetched", "url", spec.RepositoryURL, "commit", tree.Commit)
	return fn(tree)
}

// RemoteHead returns the commit the remote currently points at.
func (f *Fetcher) RemoteHead(ctx context.Context, spec source.Spec) (string, error) {
	var head string
	err := f.retry(ctx, spec.RepositoryURL, func(int) error {
		h, err := f.vcs.RemoteHead(ctx, spec.RepositoryURL, spec.Ref)
		if err != nil {
			return err
		}
		head = h
		return nil
	})
	return head, err
}

func (f *Fetcher) retry(ctx context.Context, url string, op func(attempt int) error) error {
	var lastErr error
	attempt := 0
	for attempt < f.policy.MaxAttempts {
		attempt++
		if err := ctx.Err(); err != nil {
			return &FetchError{URL: url, Attempts: attempt - 1, Err: err}
		}

		lastErr = op(attempt)
		if lastErr == nil {
			return nil
		}

		class := Classify(lastErr)
		if class != Transient {
			return &FetchError{URL: url, Attempts: attempt, Err: lastErr}
		}
		if attempt == f.policy.MaxAttempts {
			break
		}

		delay := f.policy.Delay(attempt)
		f.logger.WarnContext(ctx, "fetch attempt failed, retrying",
			"url", url, "attempt", attempt, "max_attempts", f.policy.MaxAttempts,
			"delay", delay, "error", lastErr)
		if err := f.sleep(ctx, delay); err != nil {
			return &FetchError{URL: url, Attempts: attempt, Err: err}
		}
	}
	return &FetchError{URL: url, Attempts: attempt, Transient: true, Err: lastErr}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
