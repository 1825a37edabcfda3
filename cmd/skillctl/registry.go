// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/spf13/cobra"
)

func (a *app) syncCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the registry with the skills root",
		Long: `Register skill directories that carry a valid SKILL.md but are missing
from skills.json, and drop entries whose directory is gone. Directories
added this way are recorded as local skills.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := a.manager()
			if err != nil {
				return err
			}
			diff, err := m.Sync(cmd.Context(), dryRun)
			if err != nil {
				return err
			}
			if diff.Empty() {
				a.ui.success("Registry is in sync.")
				return nil
			}

			add, remove := "Added", "Removed"
			if dryRun {
				add, remove = "Would add", "Would remove"
			}
			for _, name := range diff.Added {
				a.ui.info("%s %s", add, name)
			}
			for _, name := range diff.Removed {
				a.ui.info("%s %s", remove, name)
			}
			if !dryRun {
				a.ui.success("Registry synchronized.")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report changes without writing them")

	return cmd
}

func (a *app) initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init <name>",
		Short: "Scaffold a new local skill",
		Long: `Create a new skill directory with a SKILL.md template, an example
script, a requirements file, a reference document and an asset, then
register it as a local skill.`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.manager()
			if err != nil {
				return err
			}
			dir, err := m.Init(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.ui.success("Created skill %s", args[0])
			a.ui.info("Path: %s", dir)
			a.ui.info("Next: fill in the description in SKILL.md, then run `skillctl audit %s`", dir)
			return nil
		},
	}
}
