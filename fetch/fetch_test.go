// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/skillctl/fetch/mocks"
	"github.com/stacklok/skillctl/source"
)

const testURL = "https://github.com/owner/repo.git"

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

func testSpec() source.Spec {
	return source.FromRecord(testURL, "", "", source.Options{})
}

func writeCheckout(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte("---\nname: repo\n---\n"), 0o644)
}

func TestFetch_Success(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	vcs := mocks.NewMockVCS(ctrl)
	tmp := t.TempDir()

	vcs.EXPECT().Clone(gomock.Any(), testURL, "", gomock.Any()).
		DoAndReturn(func(_ context.Context, _, _, dir string) (string, error) {
			return "abc123", writeCheckout(dir)
		})

	f := New(vcs, WithTempDir(tmp))

	var seenRoot string
	err := f.Fetch(context.Background(), testSpec(), func(tree *Tree) error {
		seenRoot = tree.Root
		assert.Equal(t, "abc123", tree.Commit)
		assert.FileExists(t, filepath.Join(tree.Root, "SKILL.md"))
		return nil
	})
	require.NoError(t, err)

	assert.NoDirExists(t, seenRoot, "checkout must be removed after Fetch returns")
	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFetch_RetryCeiling(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	vcs := mocks.NewMockVCS(ctrl)
	rec := &sleepRecorder{}

	reset := fmt.Errorf("read tcp: %w", syscall.ECONNRESET)
	vcs.EXPECT().Clone(gomock.Any(), testURL, "", gomock.Any()).Return("", reset).Times(3)

	f := New(vcs, WithTempDir(t.TempDir()), WithSleep(rec.sleep))

	called := false
	err := f.Fetch(context.Background(), testSpec(), func(*Tree) error {
		called = true
		return nil
	})

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, 3, fetchErr.Attempts)
	assert.True(t, fetchErr.Transient)
	assert.ErrorIs(t, err, syscall.ECONNRESET)
	assert.False(t, called)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.delays)
}

func TestFetch_PermanentNotRetried(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	vcs := mocks.NewMockVCS(ctrl)
	rec := &sleepRecorder{}

	vcs.EXPECT().Clone(gomock.Any(), testURL, "", gomock.Any()).
		Return("", fmt.Errorf("cloning: %w", transport.ErrAuthenticationRequired)).Times(1)

	f := New(vcs, WithTempDir(t.TempDir()), WithSleep(rec.sleep))
	err := f.Fetch(context.Background(), testSpec(), func(*Tree) error { return nil })

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, 1, fetchErr.Attempts)
	assert.False(t, fetchErr.Transient)
	assert.Empty(t, rec.delays)
}

func TestFetch_RecoversAfterTransient(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	vcs := mocks.NewMockVCS(ctrl)
	rec := &sleepRecorder{}

	var dirs []string
	gomock.InOrder(
		vcs.EXPECT().Clone(gomock.Any(), testURL, "", gomock.Any()).
			DoAndReturn(func(_ context.Context, _, _, dir string) (string, error) {
				dirs = append(dirs, dir)
				// A partial checkout must not leak into the next attempt.
				_ = writeCheckout(dir)
				return "", errors.New("unexpected EOF while reading pack")
			}),
		vcs.EXPECT().Clone(gomock.Any(), testURL, "", gomock.Any()).
			DoAndReturn(func(_ context.Context, _, _, dir string) (string, error) {
				dirs = append(dirs, dir)
				return "def456", writeCheckout(dir)
			}),
	)

	f := New(vcs, WithTempDir(t.TempDir()), WithSleep(rec.sleep))
	err := f.Fetch(context.Background(), testSpec(), func(tree *Tree) error {
		assert.Equal(t, "def456", tree.Commit)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, dirs, 2)
	assert.NotEqual(t, dirs[0], dirs[1])
	assert.Len(t, rec.delays, 1)
}

func TestFetch_CleansUpOnCallbackError(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	vcs := mocks.NewMockVCS(ctrl)
	tmp := t.TempDir()

	vcs.EXPECT().Clone(gomock.Any(), testURL, "", gomock.Any()).
		DoAndReturn(func(_ context.Context, _, _, dir string) (string, error) {
			return "abc", writeCheckout(dir)
		})

	sentinel := errors.New("subdir missing")
	f := New(vcs, WithTempDir(tmp))
	err := f.Fetch(context.Background(), testSpec(), func(*Tree) error { return sentinel })
	require.ErrorIs(t, err, sentinel)

	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFetch_CleansUpOnPanic(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	vcs := mocks.NewMockVCS(ctrl)
	tmp := t.TempDir()

	vcs.EXPECT().Clone(gomock.Any(), testURL, "", gomock.Any()).
		DoAndReturn(func(_ context.Context, _, _, dir string) (string, error) {
			return "abc", writeCheckout(dir)
		})

	f := New(vcs, WithTempDir(tmp))
	assert.Panics(t, func() {
		_ = f.Fetch(context.Background(), testSpec(), func(*Tree) error { panic("boom") })
	})

	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFetch_ContextCancelledDuringBackoff(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	vcs := mocks.NewMockVCS(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	vcs.EXPECT().Clone(gomock.Any(), testURL, "", gomock.Any()).
		DoAndReturn(func(context.Context, string, string, string) (string, error) {
			cancel()
			return "", errors.New("connection reset by peer")
		}).Times(1)

	f := New(vcs, WithTempDir(t.TempDir()))
	err := f.Fetch(ctx, testSpec(), func(*Tree) error { return nil })

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetcher_RemoteHead(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	vcs := mocks.NewMockVCS(ctrl)
	rec := &sleepRecorder{}

	gomock.InOrder(
		vcs.EXPECT().RemoteHead(gomock.Any(), testURL, "").Return("", &net.DNSError{Err: "no such host", Name: "github.com"}),
		vcs.EXPECT().RemoteHead(gomock.Any(), testURL, "").Return("abc123", nil),
	)

	f := New(vcs, WithSleep(rec.sleep))
	head, err := f.RemoteHead(context.Background(), testSpec())
	require.NoError(t, err)
	assert.Equal(t, "abc123", head)
}

func TestPolicy_Delay(t *testing.T) {
	t.Parallel()

	p := Policy{MaxAttempts: 5, InitialDelay: time.Second, Multiplier: 2, MaxDelay: 5 * time.Second}
	assert.Equal(t, time.Second, p.Delay(1))
	assert.Equal(t, 2*time.Second, p.Delay(2))
	assert.Equal(t, 4*time.Second, p.Delay(3))
	assert.Equal(t, 5*time.Second, p.Delay(4))

	assert.Zero(t, Policy{}.Delay(3))
	assert.Equal(t, time.Second, Policy{InitialDelay: time.Second, Multiplier: 0.5}.Delay(3))
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want Class
	}{
		{name: "nil", err: nil, want: Permanent},
		{name: "connection reset errno", err: fmt.Errorf("read: %w", syscall.ECONNRESET), want: Transient},
		{name: "dns error", err: &net.DNSError{Err: "server misbehaving", Name: "github.com"}, want: Transient},
		{name: "timeout message", err: errors.New("dial tcp: i/o timeout"), want: Transient},
		{name: "could not resolve host", err: errors.New("fatal: could not resolve host: github.com"), want: Transient},
		{name: "authentication", err: fmt.Errorf("clone: %w", transport.ErrAuthenticationRequired), want: Permanent},
		{name: "repository not found", err: transport.ErrRepositoryNotFound, want: Permanent},
		{name: "cancelled", err: context.Canceled, want: Permanent},
		{name: "unknown", err: errors.New("something odd"), want: Permanent},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}
