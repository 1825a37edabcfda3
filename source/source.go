// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package source

import (
	"fmt"
	"net/url"
	"path"
	"slices"
	"strings"
	"unicode"
)

// DefaultGitHubBase is used for owner/repo short forms when no mirror is configured.
const DefaultGitHubBase = "https://github.com"

// DefaultCandidatePrefixes are probed, in order, when a subdir is not found at
// the repository root.
var DefaultCandidatePrefixes = []string{"skills", "packages", "apps"}

// DefaultForgeHosts host repositories at exactly owner/repo, so URL path
// segments after the second one form the subdir.
var DefaultForgeHosts = []string{"github.com", "bitbucket.org", "codeberg.org"}

// Options controls resolution.
type Options struct {
	// GitHubBase replaces https://github.com for short forms. Its host is
	// treated as a forge host.
	GitHubBase string
	// CandidatePrefixes overrides DefaultCandidatePrefixes.
	CandidatePrefixes []string
	// ForgeHosts overrides DefaultForgeHosts.
	ForgeHosts []string
}

// forgeHost reports whether repositories on host live at owner/repo.
func (o Options) forgeHost(host string) bool {
	hosts := o.ForgeHosts
	if hosts == nil {
		hosts = DefaultForgeHosts
	}
	if slices.ContainsFunc(hosts, func(h string) bool { return strings.EqualFold(h, host) }) {
		return true
	}
	base := o.GitHubBase
	if base == "" {
		base = DefaultGitHubBase
	}
	u, err := url.Parse(base)
	return err == nil && strings.EqualFold(u.Hostname(), host)
}

// Spec is a resolved source.
type Spec struct {
	RepositoryURL     string
	Subdir            string
	Ref               string
	CandidatePrefixes []string
}

// InvalidSourceError reports a source string that cannot be resolved.
type InvalidSourceError struct {
	Source string
	Reason string
}

// Error implements the error interface.
func (e *InvalidSourceError) Error() string {
	return fmt.Sprintf("invalid source %q: %s", e.Source, e.Reason)
}

func invalid(raw, format string, args ...any) error {
	return &InvalidSourceError{Source: raw, Reason: fmt.Sprintf(format, args...)}
}

var urlSchemes = []string{"https", "http", "ssh", "git"}

// Resolve parses raw into a Spec.
func Resolve(raw string, opts Options) (Spec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Spec{}, invalid(raw, "empty source")
	}
	if i := strings.IndexFunc(s, func(r rune) bool { return unicode.IsSpace(r) || unicode.IsControl(r) }); i >= 0 {
		return Spec{}, invalid(raw, "contains whitespace or control characters")
	}

	var (
		spec Spec
		err  error
	)
	switch {
	case strings.HasPrefix(s, "git@"):
		spec, err = resolveSCP(raw, s, opts)
	case strings.Contains(s, "://"):
		spec, err = resolveURL(raw, s, opts)
	default:
		spec, err = resolveShort(raw, s, opts.GitHubBase)
	}
	if err != nil {
		return Spec{}, err
	}

	spec.CandidatePrefixes = opts.CandidatePrefixes
	if spec.CandidatePrefixes == nil {
		spec.CandidatePrefixes = slices.Clone(DefaultCandidatePrefixes)
	}
	return spec, nil
}

// FromRecord rebuilds a Spec from the fields the registry keeps for a skill.
func FromRecord(repositoryURL, subdir, ref string, opts Options) Spec {
	prefixes := opts.CandidatePrefixes
	if prefixes == nil {
		prefixes = slices.Clone(DefaultCandidatePrefixes)
	}
	return Spec{
		RepositoryURL:     repositoryURL,
		Subdir:            subdir,
		Ref:               ref,
		CandidatePrefixes: prefixes,
	}
}

func resolveShort(raw, s, base string) (Spec, error) {
	segs, err := splitSegments(raw, s)
	if err != nil {
		return Spec{}, err
	}
	if len(segs) < 2 {
		return Spec{}, invalid(raw, "expected owner/repo")
	}
	if base == "" {
		base = DefaultGitHubBase
	}
	base = strings.TrimRight(base, "/")
	repo := strings.TrimSuffix(segs[1], ".git")
	return Spec{
		RepositoryURL: fmt.Sprintf("%s/%s/%s.git", base, segs[0], repo),
		Subdir:        strings.Join(segs[2:], "/"),
	}, nil
}

func resolveURL(raw, s string, opts Options) (Spec, error) {
	u, err := url.Parse(s)
	if err != nil {
		return Spec{}, invalid(raw, "malformed URL: %v", err)
	}
	if !slices.Contains(urlSchemes, u.Scheme) {
		return Spec{}, invalid(raw, "unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return Spec{}, invalid(raw, "missing host")
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return Spec{}, invalid(raw, "query strings and fragments are not supported")
	}
	segs, err := splitSegments(raw, u.Path)
	if err != nil {
		return Spec{}, err
	}
	repo, ref, subdir, err := splitRepoPath(raw, segs, opts.forgeHost(u.Hostname()))
	if err != nil {
		return Spec{}, err
	}
	base := *u
	base.Path = "/" + strings.Join(repo, "/")
	base.RawPath = ""
	return Spec{RepositoryURL: base.String(), Subdir: subdir, Ref: ref}, nil
}

// resolveSCP handles the scp-like git@host:owner/repo form.
func resolveSCP(raw, s string, opts Options) (Spec, error) {
	hostPart, p, ok := strings.Cut(s, ":")
	if !ok || hostPart == "git@" {
		return Spec{}, invalid(raw, "missing host")
	}
	segs, err := splitSegments(raw, p)
	if err != nil {
		return Spec{}, err
	}
	host := strings.TrimPrefix(hostPart, "git@")
	repo, ref, subdir, err := splitRepoPath(raw, segs, opts.forgeHost(host))
	if err != nil {
		return Spec{}, err
	}
	return Spec{RepositoryURL: hostPart + ":" + strings.Join(repo, "/"), Subdir: subdir, Ref: ref}, nil
}

// splitRepoPath separates repository segments from an optional tree ref and
// subdir. A segment ending in ".git" closes the repository path; otherwise a
// "tree" segment (optionally preceded by "-") introduces a ref. Without either
// marker a forge repository is the first two segments, and on other hosts the
// whole path is the repository.
func splitRepoPath(raw string, segs []string, forge bool) (repo []string, ref, subdir string, err error) {
	if len(segs) < 2 {
		return nil, "", "", invalid(raw, "expected host/owner/repo")
	}

	for i := 1; i < len(segs); i++ {
		if strings.HasSuffix(segs[i], ".git") {
			return segs[:i+1], "", strings.Join(segs[i+1:], "/"), nil
		}
	}

	for i := 2; i < len(segs); i++ {
		if segs[i] != "tree" {
			continue
		}
		if i+1 >= len(segs) {
			return nil, "", "", invalid(raw, "tree path without a ref")
		}
		end := i
		if segs[end-1] == "-" {
			end--
		}
		if end < 2 {
			return nil, "", "", invalid(raw, "expected host/owner/repo")
		}
		return segs[:end], segs[i+1], strings.Join(segs[i+2:], "/"), nil
	}

	if forge {
		return segs[:2], "", strings.Join(segs[2:], "/"), nil
	}
	return segs, "", "", nil
}

func splitSegments(raw, p string) ([]string, error) {
	var segs []string
	for _, seg := range strings.Split(p, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			return nil, invalid(raw, "path traversal is not allowed")
		}
		segs = append(segs, seg)
	}
	return segs, nil
}

// SkillName is the installed directory name for s: the last subdir
// segment, or the repository name without its .git suffix.
func (s Spec) SkillName() string {
	if s.Subdir != "" {
		return path.Base(s.Subdir)
	}
	repo := s.RepositoryURL
	if i := strings.LastIndexAny(repo, "/:"); i >= 0 {
		repo = repo[i+1:]
	}
	return strings.TrimSuffix(repo, ".git")
}

// String renders a source string that resolves back to an equivalent Spec.
func (s Spec) String() string {
	base := strings.TrimRight(s.RepositoryURL, "/")
	switch {
	case s.Ref != "":
		out := strings.TrimSuffix(base, ".git") + "/tree/" + s.Ref
		if s.Subdir != "" {
			out += "/" + s.Subdir
		}
		return out
	case s.Subdir != "":
		if !strings.HasSuffix(base, ".git") {
			base += ".git"
		}
		return base + "/" + s.Subdir
	default:
		return base
	}
}
