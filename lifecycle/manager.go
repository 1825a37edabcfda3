// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/stacklok/skillctl/audit"
	"github.com/stacklok/skillctl/backup"
	"github.com/stacklok/skillctl/config"
	"github.com/stacklok/skillctl/fetch"
	"github.com/stacklok/skillctl/fsutil"
	"github.com/stacklok/skillctl/installer"
	"github.com/stacklok/skillctl/logging"
	"github.com/stacklok/skillctl/manifest"
	"github.com/stacklok/skillctl/registry"
	"github.com/stacklok/skillctl/source"
)

// Manager runs skill lifecycle operations against one skills root.
type Manager struct {
	registry  *registry.Store
	backups   *backup.Manager
	installer *installer.Installer
	fetcher   *fetch.Fetcher
	auditor   *audit.Auditor

	sourceOpts source.Options
	keep       int
	logger     *slog.Logger
}

// Components are the collaborators a Manager drives.
type Components struct {
	Registry  *registry.Store
	Backups   *backup.Manager
	Installer *installer.Installer
	Fetcher   *fetch.Fetcher
	// Auditor is optional. Without it installs are not audited.
	Auditor *audit.Auditor

	SourceOptions source.Options
	// Keep is the number of snapshots per skill retained after update-all.
	Keep   int
	Logger *slog.Logger
}

// New returns a Manager over explicit components.
func New(c Components) *Manager {
	logger := c.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Manager{
		registry:   c.Registry,
		backups:    c.Backups,
		installer:  c.Installer,
		fetcher:    c.Fetcher,
		auditor:    c.Auditor,
		sourceOpts: c.SourceOptions,
		keep:       c.Keep,
		logger:     logger,
	}
}

// Overrides adjusts components built by FromConfig.
type Overrides struct {
	Fetch     []fetch.Option
	Installer []installer.Option
	Backup    []backup.Option
	Registry  []registry.Option
}

// FromConfig builds every component from cfg. vcs is the repository client,
// normally a *fetch.GitVCS.
func FromConfig(cfg *config.Config, vcs fetch.VCS, logger *slog.Logger, o Overrides) (*Manager, error) {
	if logger == nil {
		logger = logging.Discard()
	}

	regOpts := []registry.Option{registry.WithLogger(logger)}
	if backupsDir := cfg.BackupsDir(); filepath.Dir(filepath.Clean(backupsDir)) == filepath.Clean(cfg.SkillsRoot) {
		regOpts = append(regOpts, registry.WithIgnoredDirs(filepath.Base(backupsDir)))
	}
	reg := registry.NewStore(cfg.SkillsRoot, append(regOpts, o.Registry...)...)

	backupOpts := []backup.Option{
		backup.WithLogger(logger),
		backup.WithRetentionFloor(cfg.Backup.RetentionFloor),
	}
	backups := backup.NewManager(reg, cfg.BackupsDir(), append(backupOpts, o.Backup...)...)

	inst := installer.New(reg, backups, append([]installer.Option{installer.WithLogger(logger)}, o.Installer...)...)

	fetchOpts := []fetch.Option{fetch.WithPolicy(cfg.FetchPolicy()), fetch.WithLogger(logger)}
	fetcher := fetch.New(vcs, append(fetchOpts, o.Fetch...)...)

	auditOpts, err := cfg.AuditOptions()
	if err != nil {
		return nil, err
	}
	auditor, err := audit.New(append(auditOpts, audit.WithLogger(logger))...)
	if err != nil {
		return nil, fmt.Errorf("building auditor: %w", err)
	}

	return New(Components{
		Registry:      reg,
		Backups:       backups,
		Installer:     inst,
		Fetcher:       fetcher,
		Auditor:       auditor,
		SourceOptions: cfg.SourceOptions(),
		Keep:          cfg.Backup.Keep,
		Logger:        logger,
	}), nil
}

// Root returns the skills root.
func (m *Manager) Root() string {
	return m.registry.Root()
}

// Registry returns the registry store.
func (m *Manager) Registry() *registry.Store {
	return m.registry
}

// loadRegistry loads skills.json, rebuilding it when it is corrupt.
func (m *Manager) loadRegistry(ctx context.Context) (registry.Registry, error) {
	reg, recovered, err := m.registry.LoadOrRecover(ctx)
	if err != nil {
		return registry.New(), err
	}
	if recovered {
		m.logger.WarnContext(ctx, "registry rebuilt from skills root", "skills", reg.Len())
	}
	return reg, nil
}

// ResolveSource parses raw with the configured source options.
func (m *Manager) ResolveSource(raw string) (source.Spec, error) {
	return source.Resolve(raw, m.sourceOpts)
}

// Exists reports whether a directory named name is in the skills root.
func (m *Manager) Exists(name string) bool {
	return manifest.SafeDirName(name) && fsutil.IsDir(filepath.Join(m.Root(), name))
}
