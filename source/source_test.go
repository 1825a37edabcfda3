// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		opts    Options
		wantURL string
		wantSub string
		wantRef string
	}{
		{
			name:    "short form",
			raw:     "anthropics/skills",
			wantURL: "https://github.com/anthropics/skills.git",
		},
		{
			name:    "short form with subdir",
			raw:     "anthropics/skills/document-skills/pdf",
			wantURL: "https://github.com/anthropics/skills.git",
			wantSub: "document-skills/pdf",
		},
		{
			name:    "short form with mirror",
			raw:     "owner/repo",
			opts:    Options{GitHubBase: "https://mirror.example.com/"},
			wantURL: "https://mirror.example.com/owner/repo.git",
		},
		{
			name:    "short form already suffixed",
			raw:     "owner/repo.git/tools",
			wantURL: "https://github.com/owner/repo.git",
			wantSub: "tools",
		},
		{
			name:    "https repository",
			raw:     "https://github.com/owner/repo",
			wantURL: "https://github.com/owner/repo",
		},
		{
			name:    "https tree url",
			raw:     "https://github.com/owner/repo/tree/main/skills/pdf",
			wantURL: "https://github.com/owner/repo",
			wantSub: "skills/pdf",
			wantRef: "main",
		},
		{
			name:    "https tree url without subdir",
			raw:     "https://github.com/owner/repo/tree/dev",
			wantURL: "https://github.com/owner/repo",
			wantRef: "dev",
		},
		{
			name:    "gitlab style tree url",
			raw:     "https://gitlab.example.com/group/repo/-/tree/main/pdf",
			wantURL: "https://gitlab.example.com/group/repo",
			wantSub: "pdf",
			wantRef: "main",
		},
		{
			name:    "nested group without markers keeps whole path",
			raw:     "https://gitlab.example.com/group/sub/repo",
			wantURL: "https://gitlab.example.com/group/sub/repo",
		},
		{
			name:    "forge url with subpath",
			raw:     "https://github.com/owner/repo/skills/foo",
			wantURL: "https://github.com/owner/repo",
			wantSub: "skills/foo",
		},
		{
			name:    "mirror host is a forge",
			raw:     "https://mirror.example.com/owner/repo/skills/foo",
			opts:    Options{GitHubBase: "https://mirror.example.com"},
			wantURL: "https://mirror.example.com/owner/repo",
			wantSub: "skills/foo",
		},
		{
			name:    "configured forge host",
			raw:     "https://git.internal/team/repo/pdf",
			opts:    Options{ForgeHosts: []string{"git.internal"}},
			wantURL: "https://git.internal/team/repo",
			wantSub: "pdf",
		},
		{
			name:    "scp forge form with subpath",
			raw:     "git@github.com:owner/repo/skills/xlsx",
			wantURL: "git@github.com:owner/repo",
			wantSub: "skills/xlsx",
		},
		{
			name:    "git suffix splits subdir",
			raw:     "https://example.com/group/repo.git/tools/pdf",
			wantURL: "https://example.com/group/repo.git",
			wantSub: "tools/pdf",
		},
		{
			name:    "scp form",
			raw:     "git@github.com:owner/repo.git",
			wantURL: "git@github.com:owner/repo.git",
		},
		{
			name:    "scp form with subdir",
			raw:     "git@github.com:owner/repo.git/skills/xlsx",
			wantURL: "git@github.com:owner/repo.git",
			wantSub: "skills/xlsx",
		},
		{
			name:    "ssh url",
			raw:     "ssh://git@example.com/owner/repo.git",
			wantURL: "ssh://git@example.com/owner/repo.git",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			spec, err := Resolve(tc.raw, tc.opts)
			require.NoError(t, err)
			assert.Equal(t, tc.wantURL, spec.RepositoryURL)
			assert.Equal(t, tc.wantSub, spec.Subdir)
			assert.Equal(t, tc.wantRef, spec.Ref)
			assert.Equal(t, DefaultCandidatePrefixes, spec.CandidatePrefixes)
		})
	}
}

func TestResolve_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty", raw: ""},
		{name: "blank", raw: "   "},
		{name: "single segment", raw: "skills"},
		{name: "traversal in short form", raw: "owner/repo/../../etc"},
		{name: "traversal in url", raw: "https://github.com/owner/repo/tree/main/../x"},
		{name: "missing host", raw: "https:///owner/repo"},
		{name: "url without repo", raw: "https://github.com/owner"},
		{name: "unsupported scheme", raw: "ftp://example.com/owner/repo"},
		{name: "embedded whitespace", raw: "owner/re po"},
		{name: "tree without ref", raw: "https://github.com/owner/repo/tree"},
		{name: "scp without host", raw: "git@:owner/repo"},
		{name: "query string", raw: "https://github.com/owner/repo?x=1"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := Resolve(tc.raw, Options{})
			var invalidErr *InvalidSourceError
			require.ErrorAs(t, err, &invalidErr)
			assert.Equal(t, tc.raw, invalidErr.Source)
		})
	}
}

func TestResolve_CustomPrefixes(t *testing.T) {
	t.Parallel()

	spec, err := Resolve("owner/repo/pdf", Options{CandidatePrefixes: []string{"plugins"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"plugins"}, spec.CandidatePrefixes)
}

func TestSpec_SkillName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want string
	}{
		{raw: "owner/pdf-tools", want: "pdf-tools"},
		{raw: "owner/repo/skills/docx", want: "docx"},
		{raw: "https://github.com/owner/repo.git", want: "repo"},
		{raw: "git@github.com:owner/xlsx.git", want: "xlsx"},
		{raw: "https://github.com/owner/repo/tree/main/a/b/pptx", want: "pptx"},
	}

	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			t.Parallel()
			spec, err := Resolve(tc.raw, Options{})
			require.NoError(t, err)
			assert.Equal(t, tc.want, spec.SkillName())
		})
	}
}

func TestSpec_StringRoundTrip(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"owner/repo",
		"owner/repo/skills/pdf",
		"https://github.com/owner/repo/tree/dev/skills/pdf",
		"git@github.com:owner/repo.git/xlsx",
		"https://github.com/owner/repo/skills/foo",
	}

	for _, raw := range inputs {
		t.Run(raw, func(t *testing.T) {
			t.Parallel()

			first, err := Resolve(raw, Options{})
			require.NoError(t, err)
			second, err := Resolve(first.String(), Options{})
			require.NoError(t, err)
			assert.Equal(t, first, second)
		})
	}
}

func TestFromRecord(t *testing.T) {
	t.Parallel()

	spec := FromRecord("https://github.com/owner/repo.git", "skills/pdf", "", Options{})
	assert.Equal(t, "pdf", spec.SkillName())
	assert.Equal(t, DefaultCandidatePrefixes, spec.CandidatePrefixes)
}
