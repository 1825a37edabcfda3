// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package installer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/stacklok/skillctl/backup"
	"github.com/stacklok/skillctl/fsutil"
	"github.com/stacklok/skillctl/logging"
	"github.com/stacklok/skillctl/manifest"
	"github.com/stacklok/skillctl/recovery"
	"github.com/stacklok/skillctl/registry"
)

const stagingPrefix = ".staging-"

// Request describes one install or update.
type Request struct {
	// Name is the target directory name inside the skills root.
	Name string
	// Bundle is the directory to install from.
	Bundle string

	Source  string
	Subdir  string
	Ref     string
	Version string
}

// Result describes a completed install.
type Result struct {
	OperationID string
	Name        string
	Path        string
	// Backup is the snapshot of the replaced skill, nil for a first install.
	Backup   *backup.Handle
	Entry    registry.Entry
	Manifest *manifest.Manifest
}

// Installer applies bundles to one skills root.
type Installer struct {
	registry *registry.Store
	backups  *backup.Manager
	filter   *fsutil.Filter
	hook     TransitionHook
	logger   *slog.Logger
}

// Option configures an Installer.
type Option func(*Installer)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(i *Installer) {
		i.logger = l
	}
}

// WithTransitionHook registers a hook called on every state change.
func WithTransitionHook(h TransitionHook) Option {
	return func(i *Installer) {
		i.hook = h
	}
}

// WithFilter replaces the filter applied when staging a bundle.
func WithFilter(f *fsutil.Filter) Option {
	return func(i *Installer) {
		i.filter = f
	}
}

// New returns an installer for reg's skills root.
func New(reg *registry.Store, backups *backup.Manager, opts ...Option) *Installer {
	i := &Installer{
		registry: reg,
		backups:  backups,
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// operation carries what rollback needs to know.
type operation struct {
	id     string
	skill  string
	live   string
	staged string
	state  State
	logger *slog.Logger

	snapshot    *backup.Handle
	aside       string
	swapped     bool
	registryDoc []byte
	skillMapDoc []byte
	registered  bool
}

func (i *Installer) begin(name string) *operation {
	id := uuid.NewString()
	return &operation{
		id:     id,
		skill:  name,
		live:   filepath.Join(i.registry.Root(), name),
		staged: filepath.Join(i.registry.Root(), stagingPrefix+name+"-"+id),
		logger: i.logger.With("operation", id, "skill", name),
	}
}

// advance records a state change and consults the hook.
func (i *Installer) advance(ctx context.Context, op *operation, next State) error {
	op.state = next
	op.logger.DebugContext(ctx, "install state", "state", next.String())
	if i.hook == nil {
		return nil
	}
	if err := i.hook(ctx, op.skill, next); err != nil {
		return fmt.Errorf("aborted at %s: %w", next, err)
	}
	return nil
}

// notify reports a state on the failure path, where hook errors are ignored.
func (i *Installer) notify(ctx context.Context, op *operation, next State) {
	op.state = next
	op.logger.DebugContext(ctx, "install state", "state", next.String())
	if i.hook != nil {
		_ = i.hook(ctx, op.skill, next)
	}
}

// Install runs the install protocol for req. On failure the returned error
// is an *InstallError and the skills root is as it was before the call.
func (i *Installer) Install(ctx context.Context, req Request) (*Result, error) {
	if err := manifest.CheckDirName(req.Name); err != nil {
		return nil, &InstallError{Skill: req.Name, State: StateStart, Err: err}
	}
	if !fsutil.IsDir(req.Bundle) {
		return nil, &InstallError{Skill: req.Name, State: StateStart, Err: fmt.Errorf("bundle %s is not a directory", req.Bundle)}
	}

	op := i.begin(req.Name)
	unlock, err := i.registry.LockSkill(req.Name)
	if err != nil {
		return nil, &InstallError{Skill: req.Name, State: StateStart, Err: err}
	}
	defer unlock()
	defer func() { _ = os.RemoveAll(op.staged) }()

	// Before apply nothing in the skills root has changed.
	fail := func(err error) (*Result, error) {
		reached := op.state
		i.notify(ctx, op, StateFailed)
		op.logger.ErrorContext(ctx, "install failed", "state", reached.String(), "error", err)
		return nil, &InstallError{Skill: req.Name, State: reached, Err: err}
	}

	if err := i.advance(ctx, op, StateStart); err != nil {
		return fail(err)
	}

	if fsutil.IsDir(op.live) {
		h, ok, err := i.backups.SnapshotSkill(ctx, req.Name)
		if err != nil {
			return fail(err)
		}
		if ok {
			op.snapshot = &h
			op.logger.InfoContext(ctx, "existing skill backed up", "backup", h.String())
			if err := i.advance(ctx, op, StateBackupTaken); err != nil {
				return fail(err)
			}
		}
	}

	var res *Result
	err = recovery.Guard(func() error {
		var err error
		res, err = i.apply(ctx, op, req)
		return err
	})
	if err == nil {
		i.discardAside(ctx, op)
		op.logger.InfoContext(ctx, "skill installed", "version", req.Version)
		return res, nil
	}

	reached := op.state
	rbErr := i.rollback(ctx, op)
	if rbErr != nil {
		i.notify(ctx, op, StateFailed)
		op.logger.ErrorContext(ctx, "rollback failed", "error", rbErr)
		return nil, &InstallError{Skill: req.Name, State: reached, Err: errors.Join(err, rbErr)}
	}
	rolledBack := op.swapped || op.registered
	if rolledBack {
		i.notify(ctx, op, StateRolledBack)
	}
	i.notify(ctx, op, StateFailed)
	op.logger.WarnContext(ctx, "install failed", "state", reached.String(), "rolled_back", rolledBack, "error", err)
	return nil, &InstallError{Skill: req.Name, State: reached, RolledBack: rolledBack, Err: err}
}

// apply performs the steps that mutate the skills root.
func (i *Installer) apply(ctx context.Context, op *operation, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := fsutil.CopyTree(req.Bundle, op.staged, i.filter); err != nil {
		return nil, fmt.Errorf("staging bundle: %w", err)
	}
	if err := i.advance(ctx, op, StateStaged); err != nil {
		return nil, err
	}

	man, err := manifest.Load(op.staged)
	if err == nil {
		err = man.Validate(req.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	aside, err := fsutil.Exchange(op.staged, op.live)
	if err != nil {
		return nil, err
	}
	op.aside, op.swapped = aside, true
	if err := i.advance(ctx, op, StateSwapped); err != nil {
		return nil, err
	}

	entry, err := i.register(ctx, op, req, man)
	if err != nil {
		return nil, err
	}
	if err := i.advance(ctx, op, StateRegistered); err != nil {
		return nil, err
	}
	if err := i.advance(ctx, op, StateDone); err != nil {
		return nil, err
	}

	return &Result{
		OperationID: op.id,
		Name:        req.Name,
		Path:        op.live,
		Backup:      op.snapshot,
		Entry:       entry,
		Manifest:    man,
	}, nil
}

// register records the skill in the registry and skill map under the
// registry lock, keeping the previous documents for rollback.
func (i *Installer) register(ctx context.Context, op *operation, req Request, man *manifest.Manifest) (registry.Entry, error) {
	unlock, err := i.registry.Lock(ctx)
	if err != nil {
		return registry.Entry{}, err
	}
	defer unlock()

	if op.registryDoc, err = i.registry.Snapshot(); err != nil {
		return registry.Entry{}, err
	}
	if op.skillMapDoc, err = i.registry.SnapshotSkillMap(); err != nil {
		return registry.Entry{}, err
	}

	reg, err := i.registry.Load()
	if err != nil {
		return registry.Entry{}, err
	}
	entry := registry.Entry{
		Source:    req.Source,
		Subdir:    req.Subdir,
		Ref:       req.Ref,
		Version:   req.Version,
		UpdatedAt: i.registry.Now(),
	}
	op.registered = true
	if err := i.registry.Save(reg.With(req.Name, entry)); err != nil {
		return registry.Entry{}, err
	}
	if err := i.registry.UpdateSkillMap(func(m *registry.SkillMap) {
		m.Upsert(req.Name, man)
	}); err != nil {
		return registry.Entry{}, err
	}
	return entry, nil
}

// rollback undoes whatever apply changed. It runs detached from ctx
// cancellation so an interrupted install still restores the previous state.
func (i *Installer) rollback(ctx context.Context, op *operation) error {
	ctx = context.WithoutCancel(ctx)
	var errs []error

	if op.swapped {
		if err := fsutil.Revert(op.aside, op.live); err != nil {
			errs = append(errs, fmt.Errorf("restoring previous skill: %w", err))
		}
	}

	if op.registered {
		unlock, err := i.registry.Lock(ctx)
		if err != nil {
			errs = append(errs, err)
		} else {
			if err := i.registry.RestoreSnapshot(op.registryDoc); err != nil {
				errs = append(errs, err)
			}
			if err := i.registry.RestoreSkillMapSnapshot(op.skillMapDoc); err != nil {
				errs = append(errs, err)
			}
			unlock()
		}
	}

	if len(errs) == 0 && (op.swapped || op.registered) {
		op.logger.InfoContext(ctx, "install rolled back")
	}
	return errors.Join(errs...)
}

// discardAside deletes the directory the previous version was moved to. A
// failure leaves a hidden directory behind and is only logged.
func (i *Installer) discardAside(ctx context.Context, op *operation) {
	if op.aside == "" {
		return
	}
	if err := os.RemoveAll(op.aside); err != nil {
		op.logger.WarnContext(ctx, "could not delete previous skill directory", "path", op.aside, "error", err)
	}
}

// Uninstall snapshots the skill, removes its directory and drops its registry
// and skill map entries. It returns the snapshot handle when one was taken.
func (i *Installer) Uninstall(ctx context.Context, name string) (*backup.Handle, error) {
	if err := manifest.CheckDirName(name); err != nil {
		return nil, err
	}
	unlock, err := i.registry.LockSkill(name)
	if err != nil {
		return nil, err
	}
	defer unlock()

	op := i.begin(name)
	reg, err := i.registry.Load()
	if err != nil {
		return nil, err
	}
	_, registered := reg.Get(name)
	if !registered && !fsutil.IsDir(op.live) {
		return nil, fmt.Errorf("%s: %w", name, ErrNotInstalled)
	}

	var snapshot *backup.Handle
	if h, ok, err := i.backups.SnapshotSkill(ctx, name); err != nil {
		return nil, err
	} else if ok {
		snapshot = &h
	}

	if fsutil.IsDir(op.live) {
		aside := filepath.Join(i.registry.Root(), ".old-"+name+"-"+op.id)
		if err := os.Rename(op.live, aside); err != nil {
			return snapshot, fmt.Errorf("removing %s: %w", name, err)
		}
		if err := os.RemoveAll(aside); err != nil {
			op.logger.WarnContext(ctx, "could not delete removed skill", "path", aside, "error", err)
		}
	}

	if err := i.registry.Update(ctx, func(r registry.Registry) (registry.Registry, error) {
		return r.Without(name), nil
	}); err != nil {
		return snapshot, err
	}
	if err := i.registry.UpdateSkillMap(func(m *registry.SkillMap) { m.Remove(name) }); err != nil {
		return snapshot, err
	}

	op.logger.InfoContext(ctx, "skill uninstalled")
	return snapshot, nil
}
