// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stacklok/skillctl/lifecycle"
	"github.com/stacklok/skillctl/registry"
)

func (a *app) installCmd() *cobra.Command {
	var (
		force   bool
		noAudit bool
	)

	cmd := &cobra.Command{
		Use:   "install <source>",
		Short: "Install a skill from a git repository",
		Long: `Install a skill bundle from a git repository.

Sources may be short (owner/repo[/subdir]), full URLs including
/tree/<ref>/<subdir> forms, or scp-style git@host:owner/repo paths.
When the subdirectory is not found at the repository root, the
configured candidate prefixes are tried in order.`,
		Example: `  skillctl install acme/skills/pdf
  skillctl install https://github.com/acme/skills/tree/main/skills/pdf
  skillctl install git@github.com:acme/pdf-tools.git --force`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.manager()
			if err != nil {
				return err
			}
			spec, err := m.ResolveSource(args[0])
			if err != nil {
				return err
			}

			name := spec.SkillName()
			if m.Exists(name) {
				ok, err := a.confirm(force, fmt.Sprintf("replace installed skill %s", name))
				if err != nil || !ok {
					return err
				}
			}

			out, err := m.Install(cmd.Context(), args[0], lifecycle.InstallOptions{NoAudit: noAudit})
			if err != nil {
				return err
			}
			a.printInstalled("Installed", out)
			if out.Audit != nil {
				a.ui.reportSummary(out.Audit)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "replace an installed skill without asking")
	cmd.Flags().BoolVar(&noAudit, "no-audit", false, "skip the post-install audit")

	return cmd
}

func (a *app) printInstalled(verb string, out *lifecycle.Installed) {
	a.ui.success("%s %s at %s", verb, out.Name, shortVersion(out.Entry.Version))
	a.ui.info("Path: %s", out.Path)
	if out.Location.Fallback {
		a.ui.info("Found under %s", out.Location.Subdir)
	}
	if out.Backup != nil {
		a.ui.info("Previous version saved as %s", out.Backup)
	}
}

func (a *app) updateCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "update <name>",
		Short: "Update an installed skill from its recorded source",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.manager()
			if err != nil {
				return err
			}
			ok, err := a.confirm(force, fmt.Sprintf("update %s", args[0]))
			if err != nil || !ok {
				return err
			}

			out, err := m.Update(cmd.Context(), args[0])
			switch {
			case errors.Is(err, lifecycle.ErrUpToDate):
				a.ui.success("%s is already up to date", args[0])
				return nil
			case err != nil:
				return err
			}
			a.printInstalled("Updated", out)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "update without asking")

	return cmd
}

func (a *app) checkCmd() *cobra.Command {
	var checkOnly bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report skills with updates available",
		Long: `Compare each installed skill with the head of its source repository.

Unless --check-only is given, an interactive terminal is offered to
apply the available updates.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := a.manager()
			if err != nil {
				return err
			}
			statuses, available, lookupErr, err := a.reportUpdates(cmd.Context(), m)
			if err != nil {
				return err
			}
			if available == 0 || checkOnly || !a.interactive() {
				return lookupErr
			}

			ok, err := a.ask(fmt.Sprintf("apply %d update(s)", available))
			if err != nil {
				return err
			}
			if !ok {
				return lookupErr
			}
			return errors.Join(a.applyUpdates(cmd.Context(), m, statuses), lookupErr)
		},
	}

	cmd.Flags().BoolVar(&checkOnly, "check-only", false, "only report, never offer to update")

	return cmd
}

func (a *app) updateAllCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "update-all",
		Short: "Update every skill with an update available",
		Long: `Update every skill whose source has moved on, then trim the backups
of each updated skill to the configured retention.

Without --force on a non-interactive terminal, the available updates are
only listed.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := a.manager()
			if err != nil {
				return err
			}
			statuses, available, lookupErr, err := a.reportUpdates(cmd.Context(), m)
			if err != nil {
				return err
			}
			if available == 0 {
				return lookupErr
			}

			if !force {
				if !a.interactive() {
					a.ui.info("Run with --force to apply.")
					return lookupErr
				}
				ok, err := a.ask(fmt.Sprintf("apply %d update(s)", available))
				if err != nil {
					return err
				}
				if !ok {
					return lookupErr
				}
			}
			return errors.Join(a.applyUpdates(cmd.Context(), m, statuses), lookupErr)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "apply updates without asking")

	return cmd
}

// reportUpdates prints the check result for every skill and returns the
// statuses and how many have updates available. Failed remote lookups are
// joined into lookupErr; err is set only when the check could not run.
func (a *app) reportUpdates(ctx context.Context, m *lifecycle.Manager) (statuses []lifecycle.UpdateStatus, available int, lookupErr, err error) {
	statuses, err = m.Check(ctx)
	if err != nil {
		return nil, 0, nil, err
	}
	if len(statuses) == 0 {
		a.ui.info("No skills installed.")
		return nil, 0, nil, nil
	}

	var failed []error
	for _, st := range statuses {
		switch {
		case st.Local:
			a.ui.info("%s: local skill, skipped", st.Name)
		case st.Err != nil:
			failed = append(failed, fmt.Errorf("%s: %w", st.Name, st.Err))
			a.ui.warn("%s: %v", st.Name, st.Err)
		case st.UpdateAvailable:
			available++
			a.ui.warn("%s: update available (%s -> %s)", st.Name, shortVersion(st.Entry.Version), shortVersion(st.Remote))
		default:
			a.ui.success("%s: up to date", st.Name)
		}
	}
	if len(failed) > 0 {
		lookupErr = fmt.Errorf("%d of %d update check(s) failed: %w", len(failed), len(statuses), errors.Join(failed...))
	} else if available == 0 {
		a.ui.success("All skills are up to date.")
	}
	return statuses, available, lookupErr, nil
}

func (a *app) applyUpdates(ctx context.Context, m *lifecycle.Manager, statuses []lifecycle.UpdateStatus) error {
	outcomes, err := m.ApplyUpdates(ctx, statuses)
	if err != nil {
		return err
	}

	var failed []error
	for _, o := range outcomes {
		if o.Err != nil {
			a.ui.warn("%s: %v", o.Name, o.Err)
			failed = append(failed, o.Err)
			continue
		}
		a.printInstalled("Updated", o.Installed)
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d of %d update(s) failed: %w", len(failed), len(outcomes), errors.Join(failed...))
	}
	return nil
}

func (a *app) uninstallCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "uninstall <name>",
		Short: "Remove an installed skill",
		Long:  `Remove an installed skill. A snapshot is taken first so the removal can be undone with restore.`,
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.manager()
			if err != nil {
				return err
			}
			ok, err := a.confirm(force, fmt.Sprintf("uninstall %s", args[0]))
			if err != nil || !ok {
				return err
			}

			h, err := m.Uninstall(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.ui.success("Uninstalled %s", args[0])
			if h != nil {
				a.ui.info("Backup: %s", h)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "uninstall without asking")

	return cmd
}

func (a *app) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List installed skills",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := a.manager()
			if err != nil {
				return err
			}
			skills, err := m.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(skills) == 0 {
				a.ui.info("No skills installed in %s.", m.Root())
				return nil
			}

			rows := make([][]string, 0, len(skills))
			for _, s := range skills {
				rows = append(rows, []string{
					s.Name,
					shortVersion(s.Entry.Version),
					sourceLabel(s.Entry),
					updatedAt(s.Entry),
					presence(s.Present),
				})
			}
			return a.ui.table([]string{"NAME", "VERSION", "SOURCE", "UPDATED", "STATUS"}, rows)
		},
	}
}

func sourceLabel(e registry.Entry) string {
	if e.IsLocal() {
		return registry.SourceLocal
	}
	if e.Subdir != "" {
		return e.Source + " (" + e.Subdir + ")"
	}
	return e.Source
}

func updatedAt(e registry.Entry) string {
	if e.UpdatedAt == nil {
		return "-"
	}
	return formatTime(e.UpdatedAt.Time)
}

func presence(ok bool) string {
	if ok {
		return "ok"
	}
	return "missing"
}
