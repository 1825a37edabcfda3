// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func (a *app) backupCmd() *cobra.Command {
	var (
		skill  string
		output string
	)

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Snapshot one skill or every installed skill",
		Long: `Snapshot one skill, or all registered skills into a single archive.

With --output the snapshot is also exported as a .tar.gz file into the
given directory.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := a.manager()
			if err != nil {
				return err
			}
			res, err := m.Backup(cmd.Context(), skill, output)
			if err != nil {
				return err
			}
			a.ui.success("Created backup %s", res.Handle)
			if res.ExportPath != "" {
				a.ui.info("Exported to %s", res.ExportPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&skill, "skill", "", "snapshot only this skill")
	cmd.Flags().StringVarP(&output, "output", "o", "", "also export the snapshot into this directory")

	return cmd
}

func (a *app) backupsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backups",
		Short: "List snapshots, newest first",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := a.manager()
			if err != nil {
				return err
			}
			handles, err := m.Backups(cmd.Context())
			if err != nil {
				return err
			}
			if len(handles) == 0 {
				a.ui.info("No backups.")
				return nil
			}

			rows := make([][]string, 0, len(handles))
			for _, h := range handles {
				rows = append(rows, []string{h.String(), h.Kind.String(), h.Group(), formatTime(h.Timestamp)})
			}
			return a.ui.table([]string{"BACKUP", "KIND", "SKILL", "CREATED"}, rows)
		},
	}
}

func (a *app) restoreCmd() *cobra.Command {
	var (
		skill string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "restore <backup>",
		Short: "Restore a snapshot into the skills root",
		Long: `Restore a snapshot listed by "skillctl backups", or an exported .tar.gz
file. Installed skills with the same name are replaced.`,
		Example: `  skillctl restore pdf@20260101T120000.000000000Z
  skillctl restore all_skills@20260101T120000.000000000Z --skill pdf
  skillctl restore ./exports/all_skills_20260101T120000.000000000Z.tar.gz`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.manager()
			if err != nil {
				return err
			}
			target := args[0]
			if skill != "" {
				target = fmt.Sprintf("%s from %s", skill, args[0])
			}
			ok, err := a.confirm(force, "restore "+target)
			if err != nil || !ok {
				return err
			}

			restored, err := m.Restore(cmd.Context(), args[0], skill)
			if err != nil {
				return err
			}
			a.ui.success("Restored %s", strings.Join(restored, ", "))
			return nil
		},
	}

	cmd.Flags().StringVar(&skill, "skill", "", "restore only this skill from an archive")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "replace installed skills without asking")

	return cmd
}

func (a *app) cleanupCmd() *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete old snapshots",
		Long: `Keep the newest snapshots of each skill and of the whole-registry
archive and delete the rest. The default count comes from backup.keep.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := a.manager()
			if err != nil {
				return err
			}
			if keep < 0 {
				keep = a.cfg.Backup.Keep
			}

			removed, err := m.Cleanup(cmd.Context(), keep)
			if err != nil {
				return err
			}
			if len(removed) == 0 {
				a.ui.success("Nothing to clean up.")
				return nil
			}
			for _, h := range removed {
				a.ui.info("Removed %s", h)
			}
			a.ui.success("Removed %d backup(s), kept up to %d per skill", len(removed), keep)
			return nil
		},
	}

	cmd.Flags().IntVar(&keep, "keep", -1, "snapshots to keep per skill (default from config)")

	return cmd
}
