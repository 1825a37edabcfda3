// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/skillctl/audit"
	"github.com/stacklok/skillctl/config"
	"github.com/stacklok/skillctl/exitcode"
	"github.com/stacklok/skillctl/fetch/mocks"
)

const mirror = "https://git.example.com"

type harness struct {
	root string
	cfg  string
	vcs  *mocks.MockVCS
	env  config.MapEnv
}

// newHarness writes a config file pointing at a fresh skills root. extra is
// appended verbatim and must start with a table header.
func newHarness(t *testing.T, extra string) *harness {
	t.Helper()

	dir := t.TempDir()
	root := filepath.Join(dir, "skills")
	cfgPath := filepath.Join(dir, "config.toml")
	content := fmt.Sprintf("skills_root = %q\ngithub_url = %q\n\n[fetch]\nmax_attempts = 1\ninitial_backoff = \"0s\"\n\n%s",
		root, mirror, extra)
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o600))

	return &harness{
		root: root,
		cfg:  cfgPath,
		vcs:  mocks.NewMockVCS(gomock.NewController(t)),
		env:  config.MapEnv{},
	}
}

type result struct {
	code   int
	stdout string
	stderr string
}

func (h *harness) run(args ...string) result {
	return h.runWith("", false, args...)
}

func (h *harness) runWith(stdin string, tty bool, args ...string) result {
	var out, errOut bytes.Buffer
	s := streams{
		in:       strings.NewReader(stdin),
		out:      &out,
		err:      &errOut,
		terminal: func() bool { return tty },
	}
	code := run(context.Background(), slices.Concat(args, []string{"--config", h.cfg}), s, h.vcs, h.env)
	return result{code: code, stdout: out.String(), stderr: errOut.String()}
}

func skillMD(name, body string) string {
	return "---\nname: " + name + "\ndescription: " + name + " test skill\n---\n\n" + body + "\n"
}

func cloneFiles(files map[string]string, commit string) func(context.Context, string, string, string) (string, error) {
	return func(_ context.Context, _, _, dir string) (string, error) {
		for rel, content := range files {
			p := filepath.Join(dir, filepath.FromSlash(rel))
			if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
				return "", err
			}
			if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
				return "", err
			}
		}
		return commit, nil
	}
}

func (h *harness) expectClone(url string, files map[string]string, commit string) {
	h.vcs.EXPECT().Clone(gomock.Any(), url, "", gomock.Any()).DoAndReturn(cloneFiles(files, commit))
}

func (h *harness) install(t *testing.T, name, commit string) {
	t.Helper()
	h.expectClone(mirror+"/acme/"+name+".git", map[string]string{"SKILL.md": skillMD(name, commit)}, commit)
	res := h.run("install", "acme/"+name, "--no-audit")
	require.Equal(t, exitcode.OK, res.code, res.stderr)
}

func TestRun_InstallListUninstall(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "")
	h.expectClone(mirror+"/acme/pdf-tools.git", map[string]string{
		"SKILL.md":         skillMD("pdf-tools", "PDF helpers."),
		"scripts/split.py": "print('split')\n",
	}, "0123456789abcdef0123")

	res := h.run("install", "acme/pdf-tools")
	require.Equal(t, exitcode.OK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Installed pdf-tools at 0123456789ab")
	assert.Contains(t, res.stdout, "Audit:")
	assert.FileExists(t, filepath.Join(h.root, "pdf-tools", "scripts", "split.py"))

	res = h.run("list")
	require.Equal(t, exitcode.OK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "NAME")
	assert.Contains(t, res.stdout, "pdf-tools")
	assert.Contains(t, res.stdout, mirror+"/acme/pdf-tools.git")

	res = h.run("uninstall", "pdf-tools")
	assert.Equal(t, exitcode.InvalidSource, res.code)
	assert.Contains(t, res.stderr, "pass --force")
	assert.DirExists(t, filepath.Join(h.root, "pdf-tools"))

	res = h.run("uninstall", "pdf-tools", "--force")
	require.Equal(t, exitcode.OK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Uninstalled pdf-tools")
	assert.NoDirExists(t, filepath.Join(h.root, "pdf-tools"))

	res = h.run("list")
	require.Equal(t, exitcode.OK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "No skills installed")
}

func TestRun_ExitCodes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		setup  func(t *testing.T, h *harness)
		args   []string
		want   int
		stderr string
	}{
		{
			name:   "invalid source",
			args:   []string{"install", "just-a-name"},
			want:   exitcode.InvalidSource,
			stderr: "invalid source",
		},
		{
			name:   "unknown command",
			args:   []string{"frobnicate"},
			want:   exitcode.InvalidSource,
			stderr: "unknown command",
		},
		{
			name:   "unknown flag",
			args:   []string{"list", "--bogus"},
			want:   exitcode.InvalidSource,
			stderr: "unknown flag",
		},
		{
			name:   "missing argument",
			args:   []string{"update"},
			want:   exitcode.InvalidSource,
			stderr: "usage error",
		},
		{
			name: "fetch failure",
			setup: func(_ *testing.T, h *harness) {
				h.vcs.EXPECT().Clone(gomock.Any(), mirror+"/acme/gone.git", "", gomock.Any()).
					Return("", errors.New("repository not found"))
			},
			args:   []string{"install", "acme/gone"},
			want:   exitcode.Fetch,
			stderr: "fetch error",
		},
		{
			name: "subdirectory not found",
			setup: func(_ *testing.T, h *harness) {
				h.expectClone(mirror+"/acme/mono.git", map[string]string{"README.md": "hi\n"}, "c1")
			},
			args:   []string{"install", "acme/mono/pdf"},
			want:   exitcode.SubdirNotFound,
			stderr: "skills/pdf",
		},
		{
			name: "invalid manifest",
			setup: func(_ *testing.T, h *harness) {
				h.expectClone(mirror+"/acme/pdf-tools.git", map[string]string{"SKILL.md": skillMD("other", "x")}, "c1")
			},
			args:   []string{"install", "acme/pdf-tools"},
			want:   exitcode.Install,
			stderr: "install error",
		},
		{
			name: "audit failure",
			setup: func(t *testing.T, h *harness) {
				require.NoError(t, os.MkdirAll(filepath.Join(h.root, "empty"), 0o750))
			},
			args:   []string{"audit", "SKILLS_ROOT/empty"},
			want:   exitcode.AuditFailed,
			stderr: "audit error",
		},
		{
			name:   "bad audit format",
			args:   []string{"audit", "somewhere", "--format", "yaml"},
			want:   exitcode.InvalidSource,
			stderr: "invalid format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, "")
			if tt.setup != nil {
				tt.setup(t, h)
			}
			args := make([]string, len(tt.args))
			for i, a := range tt.args {
				args[i] = strings.ReplaceAll(a, "SKILLS_ROOT", h.root)
			}

			res := h.run(args...)
			assert.Equal(t, tt.want, res.code, res.stderr)
			assert.Contains(t, res.stderr, tt.stderr)
		})
	}
}

func TestRun_InstallOverExistingNeedsConfirmation(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "")
	h.install(t, "pdf-tools", "c1")

	res := h.run("install", "acme/pdf-tools")
	assert.Equal(t, exitcode.InvalidSource, res.code)
	assert.Contains(t, res.stderr, "replace installed skill pdf-tools")

	res = h.runWith("n\n", true, "install", "acme/pdf-tools")
	require.Equal(t, exitcode.OK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "replace installed skill pdf-tools? [y/N]")
	assert.Contains(t, res.stdout, "Cancelled.")

	h.expectClone(mirror+"/acme/pdf-tools.git", map[string]string{"SKILL.md": skillMD("pdf-tools", "v2")}, "c2")
	res = h.runWith("y\n", true, "install", "acme/pdf-tools", "--no-audit")
	require.Equal(t, exitcode.OK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Installed pdf-tools at c2")
	assert.Contains(t, res.stdout, "Previous version saved as pdf-tools_")

	data, err := os.ReadFile(filepath.Join(h.root, "pdf-tools", "SKILL.md"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "v2")
}

func TestRun_UpdateAll(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "")
	h.install(t, "pdf-tools", "c1")
	url := mirror + "/acme/pdf-tools.git"

	h.vcs.EXPECT().RemoteHead(gomock.Any(), url, "").Return("c2", nil)
	res := h.run("update-all")
	require.Equal(t, exitcode.OK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "pdf-tools: update available (c1 -> c2)")
	assert.Contains(t, res.stdout, "Run with --force to apply.")

	h.vcs.EXPECT().RemoteHead(gomock.Any(), url, "").Return("c2", nil).Times(1)
	h.expectClone(url, map[string]string{"SKILL.md": skillMD("pdf-tools", "v2")}, "c2")
	res = h.run("update-all", "--force")
	require.Equal(t, exitcode.OK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Updated pdf-tools at c2")

	h.vcs.EXPECT().RemoteHead(gomock.Any(), url, "").Return("c2", nil)
	res = h.run("check", "--check-only")
	require.Equal(t, exitcode.OK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "pdf-tools: up to date")
	assert.Contains(t, res.stdout, "All skills are up to date.")
}

func TestRun_UpdateAllReportsFailures(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "")
	h.install(t, "pdf-tools", "c1")
	url := mirror + "/acme/pdf-tools.git"

	h.vcs.EXPECT().RemoteHead(gomock.Any(), url, "").Return("c2", nil).Times(1)
	h.vcs.EXPECT().Clone(gomock.Any(), url, "", gomock.Any()).Return("", errors.New("authentication required"))

	res := h.run("update-all", "--force")
	assert.Equal(t, exitcode.Fetch, res.code)
	assert.Contains(t, res.stderr, "1 of 1 update(s) failed")
}

func TestRun_CheckSurfacesLookupFailures(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "")
	h.install(t, "pdf-tools", "c1")
	url := mirror + "/acme/pdf-tools.git"
	lookupErr := errors.New("dial tcp: lookup git.example.com: no such host")

	h.vcs.EXPECT().RemoteHead(gomock.Any(), url, "").Return("", lookupErr)
	res := h.run("check", "--check-only")
	assert.Equal(t, exitcode.Fetch, res.code)
	assert.NotContains(t, res.stdout, "All skills are up to date.")
	assert.Contains(t, res.stderr, "1 of 1 update check(s) failed")
	assert.Contains(t, res.stderr, "no such host")

	h.vcs.EXPECT().RemoteHead(gomock.Any(), url, "").Return("", lookupErr)
	res = h.run("update-all", "--force")
	assert.Equal(t, exitcode.Fetch, res.code)
	assert.NotContains(t, res.stdout, "All skills are up to date.")
}

func TestRun_Update(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "")
	h.install(t, "pdf-tools", "c1")
	url := mirror + "/acme/pdf-tools.git"

	res := h.run("update", "pdf-tools")
	assert.Equal(t, exitcode.InvalidSource, res.code)

	h.expectClone(url, map[string]string{"SKILL.md": skillMD("pdf-tools", "v1")}, "c1")
	res = h.run("update", "pdf-tools", "--force")
	require.Equal(t, exitcode.OK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "pdf-tools is already up to date")

	h.expectClone(url, map[string]string{"SKILL.md": skillMD("pdf-tools", "v2")}, "c2")
	res = h.run("update", "pdf-tools", "--force")
	require.Equal(t, exitcode.OK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Updated pdf-tools at c2")
}

func TestRun_BackupAndRestore(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "")
	h.install(t, "pdf-tools", "c1")

	res := h.run("backup", "--skill", "pdf-tools")
	require.Equal(t, exitcode.OK, res.code, res.stderr)
	_, handle, ok := strings.Cut(strings.TrimSpace(res.stdout), "Created backup ")
	require.True(t, ok, res.stdout)
	assert.True(t, strings.HasPrefix(handle, "pdf-tools_"), handle)

	exportDir := filepath.Join(t.TempDir(), "exports")
	res = h.run("backup", "--output", exportDir)
	require.Equal(t, exitcode.OK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Created backup all_skills_")
	assert.Contains(t, res.stdout, "Exported to "+exportDir)

	res = h.run("uninstall", "pdf-tools", "--force")
	require.Equal(t, exitcode.OK, res.code, res.stderr)

	res = h.run("backups")
	require.Equal(t, exitcode.OK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "BACKUP")
	assert.Contains(t, res.stdout, handle)
	assert.Contains(t, res.stdout, "archive")

	res = h.run("restore", handle, "--force")
	require.Equal(t, exitcode.OK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Restored pdf-tools")
	assert.FileExists(t, filepath.Join(h.root, "pdf-tools", "SKILL.md"))

	res = h.run("cleanup")
	require.Equal(t, exitcode.OK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Nothing to clean up.")

	res = h.run("restore", "pdf-tools_20000101T000000.000000000Z", "--force")
	assert.Equal(t, exitcode.Generic, res.code)
}

func TestRun_SyncAndInit(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "")
	manual := filepath.Join(h.root, "manual-skill")
	require.NoError(t, os.MkdirAll(manual, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(manual, "SKILL.md"), []byte(skillMD("manual-skill", "by hand")), 0o644))

	res := h.run("sync", "--dry-run")
	require.Equal(t, exitcode.OK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Would add manual-skill")

	res = h.run("sync")
	require.Equal(t, exitcode.OK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Added manual-skill")

	res = h.run("sync")
	require.Equal(t, exitcode.OK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Registry is in sync.")

	res = h.run("init", "my-skill")
	require.Equal(t, exitcode.OK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Created skill my-skill")
	assert.FileExists(t, filepath.Join(h.root, "my-skill", "scripts", "example.py"))

	res = h.run("init", "my-skill")
	assert.Equal(t, exitcode.Generic, res.code)

	res = h.run("list")
	require.Equal(t, exitcode.OK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "manual-skill")
	assert.Contains(t, res.stdout, "my-skill")
}

func TestRun_AuditFormats(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "")
	res := h.run("init", "my-skill")
	require.Equal(t, exitcode.OK, res.code, res.stderr)
	dir := filepath.Join(h.root, "my-skill")

	res = h.run("audit", dir, h.root, "--format", "json")
	require.Equal(t, exitcode.OK, res.code, res.stderr)
	var report audit.Report
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &report))
	assert.Equal(t, "my-skill", report.Skill)
	assert.False(t, report.Failed())
	assert.NotEmpty(t, report.Results)

	res = h.run("audit", dir)
	require.Equal(t, exitcode.OK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Audit of my-skill")
	assert.Contains(t, res.stdout, "structure")
	assert.Contains(t, res.stdout, "0 failed")
}

func TestRun_LogFile(t *testing.T) {
	t.Parallel()

	logPath := filepath.Join(t.TempDir(), "logs", "skillctl.log")
	h := newHarness(t, fmt.Sprintf("[log]\nfile = %q\n", logPath))
	h.install(t, "pdf-tools", "c1")

	res := h.run("list", "--log-level", "debug")
	require.Equal(t, exitcode.OK, res.code, res.stderr)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "skill installed", "default level is warn")

	h.expectClone(mirror+"/acme/pdf-tools.git", map[string]string{"SKILL.md": skillMD("pdf-tools", "v2")}, "c2")
	res = h.run("update", "pdf-tools", "--force", "--log-level", "info", "--log-format", "json")
	require.Equal(t, exitcode.OK, res.code, res.stderr)

	data, err = os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"skill installed"`)
	assert.Contains(t, res.stderr, `"msg":"skill installed"`)
}

func TestRun_EnvOverridesSkillsRoot(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "")
	other := filepath.Join(t.TempDir(), "elsewhere")
	h.env = config.MapEnv{config.EnvSkillsRoot: other}

	res := h.run("init", "env-skill")
	require.Equal(t, exitcode.OK, res.code, res.stderr)
	assert.DirExists(t, filepath.Join(other, "env-skill"))

	flagRoot := filepath.Join(t.TempDir(), "flag")
	res = h.run("init", "flag-skill", "--path", flagRoot)
	require.Equal(t, exitcode.OK, res.code, res.stderr)
	assert.DirExists(t, filepath.Join(flagRoot, "flag-skill"))
}

func TestRun_Version(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "")
	res := h.run("version", "--short")
	require.Equal(t, exitcode.OK, res.code, res.stderr)
	assert.Equal(t, version+"\n", res.stdout)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	coded := exitcode.New("audit", exitcode.AuditFailed)
	assert.Same(t, coded, classify(coded))

	plain := errors.New("boom")
	assert.Equal(t, exitcode.Generic, exitcode.Code(classify(plain)))
	assert.Equal(t, "boom", describe(classify(plain)))
}
