// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stacklok/skillctl/audit"
	"github.com/stacklok/skillctl/exitcode"
)

func (a *app) auditCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "audit <path> [registryRoot]",
		Short: "Check a skill bundle against the audit rules",
		Long: `Run the audit rule table against the skill bundle at <path>.

When registryRoot is given, the bundle is also checked for entries in
that root's skills.json and skill_map.json. The command exits with
status 7 when any rule fails.`,
		Args: usageArgs(cobra.RangeArgs(1, 2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "text" && format != "json" {
				return usageError(fmt.Errorf("invalid format %q (valid: text, json)", format))
			}
			m, err := a.manager()
			if err != nil {
				return err
			}

			registryRoot := ""
			if len(args) == 2 {
				registryRoot = args[1]
			}
			report, err := m.Audit(cmd.Context(), args[0], registryRoot)
			if err != nil {
				return err
			}

			if format == "json" {
				if err := writeJSON(a.out, report); err != nil {
					return err
				}
			} else {
				a.ui.report(report)
			}
			if report.Failed() {
				return exitcode.New(fmt.Sprintf("%s: %d rule(s) failed", report.Skill, report.Count(audit.StatusFail)), exitcode.AuditFailed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "output format (text, json)")

	return cmd
}
