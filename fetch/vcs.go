// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package fetch

//go:generate mockgen -copyright_file=../.github/license-header.txt -source=vcs.go -destination=mocks/mock_vcs.go -package=mocks VCS

import (
	"context"
	"errors"
	"fmt"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/memory"
)

// UnknownCommit is reported when the cloned HEAD cannot be read.
const UnknownCommit = "unknown"

// ErrNoRemoteHead is returned when a remote advertises no usable HEAD.
var ErrNoRemoteHead = errors.New("remote has no HEAD reference")

// VCS is the version control client used by the Fetcher.
type VCS interface {
	// Clone shallow-clones url into dir, which does not exist yet, and
	// returns the checked out commit id. An empty ref selects the default branch.
	Clone(ctx context.Context, url, ref, dir string) (commit string, err error)
	// RemoteHead returns the commit id the remote branch points at. An empty
	// ref selects the remote HEAD.
	RemoteHead(ctx context.Context, url, ref string) (string, error)
}

// GitVCS implements VCS with go-git.
type GitVCS struct{}

var _ VCS = (*GitVCS)(nil)

// Clone implements VCS.
func (*GitVCS) Clone(ctx context.Context, url, ref, dir string) (string, error) {
	opts := &gogit.CloneOptions{
		URL:          url,
		Depth:        1,
		SingleBranch: true,
		Tags:         gogit.NoTags,
	}
	if ref != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(ref)
	}

	repo, err := gogit.PlainCloneContext(ctx, dir, false, opts)
	if err != nil {
		return "", fmt.Errorf("cloning %s: %w", url, err)
	}

	head, err := repo.Head()
	if err != nil {
		return UnknownCommit, nil
	}
	return head.Hash().String(), nil
}

// RemoteHead implements VCS.
func (*GitVCS) RemoteHead(ctx context.Context, url, ref string) (string, error) {
	remote := gogit.NewRemote(memory.NewStorage(), &config.RemoteConfig{
		Name: "origin",
		URLs: []string{url},
	})
	refs, err := remote.ListContext(ctx, &gogit.ListOptions{})
	if err != nil {
		return "", fmt.Errorf("listing %s: %w", url, err)
	}
	return resolveHead(refs, ref)
}

// resolveHead finds the commit for ref (or HEAD) in an advertised reference list.
func resolveHead(refs []*plumbing.Reference, ref string) (string, error) {
	byName := make(map[plumbing.ReferenceName]*plumbing.Reference, len(refs))
	for _, r := range refs {
		byName[r.Name()] = r
	}

	name := plumbing.HEAD
	if ref != "" {
		name = plumbing.NewBranchReferenceName(ref)
	}

	// Follow symbolic references a bounded number of times.
	for range 5 {
		r, ok := byName[name]
		if !ok {
			break
		}
		if r.Type() == plumbing.HashReference {
			return r.Hash().String(), nil
		}
		name = r.Target()
	}

	if ref == "" {
		for _, fallback := range []plumbing.ReferenceName{
			plumbing.NewBranchReferenceName("main"),
			plumbing.NewBranchReferenceName("master"),
		} {
			if r, ok := byName[fallback]; ok && r.Type() == plumbing.HashReference {
				return r.Hash().String(), nil
			}
		}
	}
	return "", ErrNoRemoteHead
}
