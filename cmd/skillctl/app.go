// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/stacklok/skillctl/config"
	"github.com/stacklok/skillctl/fetch"
	"github.com/stacklok/skillctl/lifecycle"
	"github.com/stacklok/skillctl/logging"
)

// streams are the process standard streams.
type streams struct {
	in  io.Reader
	out io.Writer
	err io.Writer
	// terminal reports whether prompts can be answered interactively.
	terminal func() bool
}

func osStreams() streams {
	return streams{
		in:  os.Stdin,
		out: os.Stdout,
		err: os.Stderr,
		terminal: func() bool {
			return term.IsTerminal(int(os.Stdin.Fd()))
		},
	}
}

type globalFlags struct {
	configPath string
	skillsRoot string
	logLevel   string
	logFormat  string
}

// app holds the state shared by every command of one invocation.
type app struct {
	streams
	vcs fetch.VCS
	env config.EnvReader
	ui  *ui

	flags globalFlags

	cfg     *config.Config
	mgr     *lifecycle.Manager
	input   *bufio.Reader
	closers []io.Closer
}

func newApp(s streams, vcs fetch.VCS, env config.EnvReader) *app {
	return &app{
		streams: s,
		vcs:     vcs,
		env:     env,
		ui:      newUI(s.out, s.err),
	}
}

func (a *app) close() {
	for _, c := range a.closers {
		_ = c.Close()
	}
	a.closers = nil
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "skillctl",
		Short: "Manage skill bundles installed from git repositories",
		Long: `skillctl installs skill bundles from git repositories into a local
skills root and keeps track of where each one came from.

Every install and update snapshots the previous version first and rolls
back on failure. Bundles can be audited against a table of structure,
dependency, encoding and portability rules.`,
		Args:          usageArgs(cobra.NoArgs),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configPath, "config", "", "configuration file (default $XDG_CONFIG_HOME/skillctl/config.toml)")
	pf.StringVar(&a.flags.skillsRoot, "path", "", "skills root directory")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&a.flags.logFormat, "log-format", "", "log format (text, json)")

	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})

	root.AddCommand(
		a.installCmd(),
		a.listCmd(),
		a.checkCmd(),
		a.updateCmd(),
		a.updateAllCmd(),
		a.uninstallCmd(),
		a.backupCmd(),
		a.backupsCmd(),
		a.restoreCmd(),
		a.cleanupCmd(),
		a.syncCmd(),
		a.auditCmd(),
		a.initCmd(),
		versionCmd(),
	)
	return root
}

// config loads the configuration file, then applies environment and flag
// overrides.
func (a *app) config() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}

	cfg, err := config.Load(a.flags.configPath, a.env)
	if err != nil {
		return nil, usageError(err)
	}
	if a.flags.skillsRoot != "" {
		root, err := config.ExpandPath(a.flags.skillsRoot)
		if err != nil {
			return nil, err
		}
		cfg.SkillsRoot = root
	}
	if a.flags.logLevel != "" {
		cfg.Log.Level = a.flags.logLevel
	}
	if a.flags.logFormat != "" {
		cfg.Log.Format = a.flags.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, usageError(err)
	}

	a.cfg = cfg
	return cfg, nil
}

func (a *app) logger(cfg *config.Config) (*slog.Logger, error) {
	opts, err := cfg.LoggingOptions()
	if err != nil {
		return nil, usageError(err)
	}
	opts = append(opts, logging.WithOutput(a.err))

	if cfg.Log.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0o750); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.Log.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		a.closers = append(a.closers, f)
		opts = append(opts, logging.WithTee(f))
	}
	return logging.New(opts...), nil
}

// manager builds the lifecycle manager on first use.
func (a *app) manager() (*lifecycle.Manager, error) {
	if a.mgr != nil {
		return a.mgr, nil
	}
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	logger, err := a.logger(cfg)
	if err != nil {
		return nil, err
	}
	m, err := lifecycle.FromConfig(cfg, a.vcs, logger, lifecycle.Overrides{})
	if err != nil {
		return nil, err
	}
	a.mgr = m
	return m, nil
}

func (a *app) interactive() bool {
	return a.terminal != nil && a.terminal()
}

// ask prompts for a yes/no answer. Anything but y or yes is a no.
func (a *app) ask(question string) (bool, error) {
	if a.input == nil {
		a.input = bufio.NewReader(a.in)
	}
	_, _ = fmt.Fprintf(a.out, "%s? [y/N] ", question)
	line, err := a.input.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("reading answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// confirm gates a destructive action. force approves without asking. On a
// non-interactive terminal the action is refused with a usage error.
func (a *app) confirm(force bool, action string) (bool, error) {
	if force {
		return true, nil
	}
	if !a.interactive() {
		return false, usageError(fmt.Errorf("%s: confirmation required, pass --force", action))
	}
	ok, err := a.ask(action)
	if err != nil {
		return false, err
	}
	if !ok {
		a.ui.info("Cancelled.")
	}
	return ok, nil
}
