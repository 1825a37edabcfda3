// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/stacklok/skillctl/audit"
	"github.com/stacklok/skillctl/extract"
	"github.com/stacklok/skillctl/fetch"
	"github.com/stacklok/skillctl/installer"
	"github.com/stacklok/skillctl/registry"
	"github.com/stacklok/skillctl/source"
)

// InstallOptions controls Install.
type InstallOptions struct {
	// NoAudit skips the post-install audit.
	NoAudit bool
}

// Installed is the outcome of an install or update.
type Installed struct {
	*installer.Result
	Spec     source.Spec
	Location extract.Location
	// Audit is nil when the audit was skipped or could not run.
	Audit *audit.Report
}

// Install resolves raw, fetches it and installs the located bundle.
func (m *Manager) Install(ctx context.Context, raw string, opts InstallOptions) (*Installed, error) {
	spec, err := m.ResolveSource(raw)
	if err != nil {
		return nil, err
	}
	if _, err := m.loadRegistry(ctx); err != nil {
		return nil, err
	}

	out, err := m.fetchAndInstall(ctx, spec, spec.SkillName(), "")
	if err != nil {
		return nil, err
	}
	if !opts.NoAudit {
		out.Audit = m.auditInstalled(ctx, out.Path)
	}
	return out, nil
}

// fetchAndInstall installs spec as name. When skipVersion is non-empty and
// the fetched commit equals it, nothing is installed and ErrUpToDate is
// returned.
func (m *Manager) fetchAndInstall(ctx context.Context, spec source.Spec, name, skipVersion string) (*Installed, error) {
	var out *Installed
	err := m.fetcher.Fetch(ctx, spec, func(tree *fetch.Tree) error {
		if skipVersion != "" && tree.Commit == skipVersion {
			return ErrUpToDate
		}
		loc, err := extract.Locate(tree.Root, spec.Subdir, spec.CandidatePrefixes)
		if err != nil {
			return err
		}
		if loc.Fallback {
			m.logger.InfoContext(ctx, "subdirectory found under candidate prefix",
				"requested", spec.Subdir, "used", loc.Subdir)
		}

		res, err := m.installer.Install(ctx, installer.Request{
			Name:    name,
			Bundle:  loc.Path,
			Source:  spec.RepositoryURL,
			Subdir:  loc.Subdir,
			Ref:     spec.Ref,
			Version: tree.Commit,
		})
		if err != nil {
			return err
		}
		out = &Installed{Result: res, Spec: spec, Location: loc}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Manager) auditInstalled(ctx context.Context, path string) *audit.Report {
	if m.auditor == nil {
		return nil
	}
	report, err := m.auditor.Audit(ctx, path, m.registry.Root())
	if err != nil {
		m.logger.WarnContext(ctx, "post-install audit did not run", "path", path, "error", err)
		return nil
	}
	if report.Failed() {
		m.logger.WarnContext(ctx, "installed skill has audit failures",
			"skill", report.Skill, "failures", report.Count(audit.StatusFail))
	}
	return report
}

// Update reinstalls name from its recorded source. It returns ErrLocalSkill
// for local skills and ErrUpToDate when the fetched commit is the installed
// version.
func (m *Manager) Update(ctx context.Context, name string) (*Installed, error) {
	reg, err := m.loadRegistry(ctx)
	if err != nil {
		return nil, err
	}
	entry, ok := reg.Get(name)
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, installer.ErrNotInstalled)
	}
	if entry.IsLocal() {
		return nil, fmt.Errorf("%s: %w", name, ErrLocalSkill)
	}

	spec := m.recordSpec(entry)
	skip := ""
	if entry.HasKnownVersion() {
		skip = entry.Version
	}
	out, err := m.fetchAndInstall(ctx, spec, name, skip)
	if err != nil {
		if errors.Is(err, ErrUpToDate) {
			return nil, fmt.Errorf("%s: %w", name, ErrUpToDate)
		}
		return nil, err
	}
	m.logger.InfoContext(ctx, "skill updated", "skill", name, "from", entry.Version, "to", out.Entry.Version)
	return out, nil
}

func (m *Manager) recordSpec(e registry.Entry) source.Spec {
	return source.FromRecord(e.Source, e.Subdir, e.Ref, m.sourceOpts)
}

// UpdateStatus is the result of checking one registered skill.
type UpdateStatus struct {
	Name  string
	Entry registry.Entry
	// Remote is the commit at the remote HEAD, empty for local skills or
	// when the lookup failed.
	Remote          string
	Local           bool
	UpdateAvailable bool
	Err             error
}

// Check looks up the remote HEAD of every registered skill. Lookup failures
// are reported per skill.
func (m *Manager) Check(ctx context.Context) ([]UpdateStatus, error) {
	reg, err := m.loadRegistry(ctx)
	if err != nil {
		return nil, err
	}

	var out []UpdateStatus
	for _, name := range reg.Names() {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		entry, _ := reg.Get(name)
		st := UpdateStatus{Name: name, Entry: entry, Local: entry.IsLocal()}
		if st.Local {
			out = append(out, st)
			continue
		}

		remote, err := m.fetcher.RemoteHead(ctx, m.recordSpec(entry))
		if err != nil {
			st.Err = err
			m.logger.WarnContext(ctx, "update check failed", "skill", name, "error", err)
		} else {
			st.Remote = remote
			st.UpdateAvailable = remote != entry.Version
		}
		out = append(out, st)
	}
	return out, nil
}

// UpdateOutcome reports one skill handled by UpdateAll.
type UpdateOutcome struct {
	Name      string
	Installed *Installed
	Err       error
}

// UpdateAll updates every skill with an available update, then trims the
// backups of each updated skill to the configured retention. A failure on
// one skill does not stop the others.
func (m *Manager) UpdateAll(ctx context.Context) ([]UpdateOutcome, error) {
	statuses, err := m.Check(ctx)
	if err != nil {
		return nil, err
	}
	return m.ApplyUpdates(ctx, statuses)
}

// ApplyUpdates is UpdateAll for statuses already returned by Check, so the
// remotes are not queried twice.
func (m *Manager) ApplyUpdates(ctx context.Context, statuses []UpdateStatus) ([]UpdateOutcome, error) {
	var out []UpdateOutcome
	for _, st := range statuses {
		if !st.UpdateAvailable {
			continue
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}
		inst, err := m.Update(ctx, st.Name)
		if errors.Is(err, ErrUpToDate) {
			continue
		}
		out = append(out, UpdateOutcome{Name: st.Name, Installed: inst, Err: err})
		if err != nil {
			continue
		}
		if _, err := m.backups.CleanupGroup(ctx, st.Name, m.keep); err != nil {
			m.logger.WarnContext(ctx, "backup cleanup failed", "skill", st.Name, "error", err)
		}
	}
	return out, nil
}
