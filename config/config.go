// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"

	"github.com/stacklok/skillctl/audit"
	"github.com/stacklok/skillctl/backup"
	"github.com/stacklok/skillctl/fetch"
	"github.com/stacklok/skillctl/logging"
	"github.com/stacklok/skillctl/source"
)

const (
	appName        = "skillctl"
	fileName       = "config.toml"
	backupsDirName = "backups"
)

// Duration is a time.Duration written as a Go duration string ("1s", "250ms").
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Fetch holds the retry policy for repository access.
type Fetch struct {
	MaxAttempts    int      `toml:"max_attempts"`
	InitialBackoff Duration `toml:"initial_backoff"`
	Multiplier     float64  `toml:"multiplier"`
	MaxBackoff     Duration `toml:"max_backoff"`
}

// Backup holds snapshot retention settings.
type Backup struct {
	Keep           int  `toml:"keep"`
	RetentionFloor bool `toml:"retention_floor"`
}

// AuditRule is a CEL rule added to the built-in audit table.
type AuditRule struct {
	ID          string `toml:"id"`
	Category    string `toml:"category"`
	Severity    string `toml:"severity"`
	Description string `toml:"description"`
	Expr        string `toml:"expr"`
	Message     string `toml:"message"`
}

// Audit holds auditor settings.
type Audit struct {
	// Severity overrides the severity of rules by id.
	Severity      map[string]string `toml:"severity"`
	LegacyMarkers []string          `toml:"legacy_markers"`
	Rules         []AuditRule       `toml:"rules"`
	// CostLimit bounds the evaluation cost of rule expressions; zero keeps
	// the built-in limit.
	CostLimit uint64 `toml:"cost_limit"`
}

// Log holds logger settings.
type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	// File, when set, receives a copy of every log line.
	File string `toml:"file"`
}

// Config is the resolved configuration.
type Config struct {
	SkillsRoot string `toml:"skills_root"`
	// BackupsRoot defaults to <skills_root>/backups when empty.
	BackupsRoot       string   `toml:"backups_root"`
	GitHubURL         string   `toml:"github_url"`
	CandidatePrefixes []string `toml:"candidate_prefixes"`
	// ForgeHosts lists hosts whose repositories live at owner/repo.
	ForgeHosts []string `toml:"forge_hosts"`

	Fetch  Fetch  `toml:"fetch"`
	Backup Backup `toml:"backup"`
	Audit  Audit  `toml:"audit"`
	Log    Log    `toml:"log"`
}

// SkillsRoot returns the skills root within the given data home directory.
// This is the injectable, testable form. For the standard XDG location, use DefaultSkillsRoot.
func SkillsRoot(dataHome string) string {
	return filepath.Join(dataHome, appName, "skills")
}

// DefaultSkillsRoot returns the default skills root using XDG base directory conventions.
func DefaultSkillsRoot() string {
	return SkillsRoot(xdg.DataHome)
}

// DefaultPath returns the configuration file read when no path is given.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, appName, fileName)
}

// Default returns the built-in configuration.
func Default() *Config {
	policy := fetch.DefaultPolicy()
	return &Config{
		SkillsRoot:        DefaultSkillsRoot(),
		GitHubURL:         source.DefaultGitHubBase,
		CandidatePrefixes: slices.Clone(source.DefaultCandidatePrefixes),
		ForgeHosts:        slices.Clone(source.DefaultForgeHosts),
		Fetch: Fetch{
			MaxAttempts:    policy.MaxAttempts,
			InitialBackoff: Duration{policy.InitialDelay},
			Multiplier:     policy.Multiplier,
			MaxBackoff:     Duration{policy.MaxDelay},
		},
		Backup: Backup{
			Keep:           backup.DefaultKeep,
			RetentionFloor: true,
		},
		Log: Log{
			Level:  "warn",
			Format: logging.FormatText.String(),
		},
	}
}

// Load reads the configuration at path and applies environment overrides.
// An empty path reads DefaultPath, which may be absent. An explicit path
// must exist.
func Load(path string, env EnvReader) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if err := cfg.decodeFile(path, explicit); err != nil {
		return nil, err
	}

	if env == nil {
		env = OSEnv{}
	}
	cfg.applyEnv(env)

	if err := cfg.resolvePaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decodeFile(path string, required bool) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("reading config %s: %w", path, err)
	}

	meta, err := toml.DecodeFile(path, c)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return fmt.Errorf("load config %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return nil
}

func (c *Config) applyEnv(env EnvReader) {
	if v := strings.TrimSpace(env.Getenv(EnvSkillsRoot)); v != "" {
		c.SkillsRoot = v
	}
	if v := strings.TrimSpace(env.Getenv(EnvLegacyGitHubURL)); v != "" {
		c.GitHubURL = v
	}
	if v := strings.TrimSpace(env.Getenv(EnvGitHubURL)); v != "" {
		c.GitHubURL = v
	}
	if v := strings.TrimSpace(env.Getenv(EnvLogLevel)); v != "" {
		c.Log.Level = v
	}
	if v := strings.TrimSpace(env.Getenv(EnvUnstructured)); v != "" {
		if unstructured, err := strconv.ParseBool(v); err == nil {
			if unstructured {
				c.Log.Format = logging.FormatText.String()
			} else {
				c.Log.Format = logging.FormatJSON.String()
			}
		}
	}
}

func (c *Config) resolvePaths() error {
	for _, p := range []*string{&c.SkillsRoot, &c.BackupsRoot, &c.Log.File} {
		expanded, err := ExpandPath(*p)
		if err != nil {
			return err
		}
		*p = expanded
	}
	c.GitHubURL = strings.TrimRight(c.GitHubURL, "/")
	return nil
}

// ExpandPath replaces a leading "~" with the user's home directory.
func ExpandPath(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expanding %s: %w", p, err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.SkillsRoot) == "" {
		return errors.New("skills_root must not be empty")
	}
	if c.Fetch.MaxAttempts < 1 {
		return fmt.Errorf("fetch.max_attempts must be at least 1, got %d", c.Fetch.MaxAttempts)
	}
	if c.Fetch.Multiplier < 1 {
		return fmt.Errorf("fetch.multiplier must be at least 1, got %g", c.Fetch.Multiplier)
	}
	if c.Fetch.InitialBackoff.Duration < 0 || c.Fetch.MaxBackoff.Duration < 0 {
		return errors.New("fetch backoff durations must not be negative")
	}
	if c.Backup.Keep < 0 {
		return fmt.Errorf("backup.keep must not be negative, got %d", c.Backup.Keep)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if _, err := logging.ParseFormat(c.Log.Format); err != nil {
		return fmt.Errorf("log.format: %w", err)
	}
	for id, sev := range c.Audit.Severity {
		if _, err := audit.ParseSeverity(sev); err != nil {
			return fmt.Errorf("audit.severity.%s: %w", id, err)
		}
	}
	for i, r := range c.Audit.Rules {
		if r.ID == "" || r.Expr == "" {
			return fmt.Errorf("audit.rules[%d]: id and expr are required", i)
		}
		if r.Severity != "" {
			if _, err := audit.ParseSeverity(r.Severity); err != nil {
				return fmt.Errorf("audit.rules[%d]: %w", i, err)
			}
		}
	}
	return nil
}

// BackupsDir returns the backups root, defaulting to a directory inside the
// skills root.
func (c *Config) BackupsDir() string {
	if c.BackupsRoot != "" {
		return c.BackupsRoot
	}
	return filepath.Join(c.SkillsRoot, backupsDirName)
}

// SourceOptions returns the source resolution settings.
func (c *Config) SourceOptions() source.Options {
	return source.Options{
		GitHubBase:        c.GitHubURL,
		CandidatePrefixes: slices.Clone(c.CandidatePrefixes),
		ForgeHosts:        slices.Clone(c.ForgeHosts),
	}
}

// FetchPolicy returns the retry policy.
func (c *Config) FetchPolicy() fetch.Policy {
	return fetch.Policy{
		MaxAttempts:  c.Fetch.MaxAttempts,
		InitialDelay: c.Fetch.InitialBackoff.Duration,
		Multiplier:   c.Fetch.Multiplier,
		MaxDelay:     c.Fetch.MaxBackoff.Duration,
	}
}

// AuditOptions converts the audit section into auditor options. Severity
// overrides are applied in rule id order.
func (c *Config) AuditOptions() ([]audit.Option, error) {
	opts := []audit.Option{audit.WithCostLimit(c.Audit.CostLimit)}

	ids := make([]string, 0, len(c.Audit.Severity))
	for id := range c.Audit.Severity {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		sev, err := audit.ParseSeverity(c.Audit.Severity[id])
		if err != nil {
			return nil, fmt.Errorf("audit.severity.%s: %w", id, err)
		}
		opts = append(opts, audit.WithSeverity(id, sev))
	}

	for _, r := range c.Audit.Rules {
		sev := audit.StatusWarn
		if r.Severity != "" {
			parsed, err := audit.ParseSeverity(r.Severity)
			if err != nil {
				return nil, fmt.Errorf("audit rule %s: %w", r.ID, err)
			}
			sev = parsed
		}
		opts = append(opts, audit.WithRule(audit.Rule{
			ID:          r.ID,
			Category:    r.Category,
			Severity:    sev,
			Description: r.Description,
			Expr:        r.Expr,
			Message:     r.Message,
		}))
	}

	if c.Audit.LegacyMarkers != nil {
		opts = append(opts, audit.WithLegacyMarkers(c.Audit.LegacyMarkers...))
	}
	return opts, nil
}

// LoggingOptions returns the level and format settings. The log file, if
// any, is opened by the caller.
func (c *Config) LoggingOptions() ([]logging.Option, error) {
	level, err := logging.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(c.Log.Format)
	if err != nil {
		return nil, err
	}
	return []logging.Option{logging.WithLevel(level), logging.WithFormat(format)}, nil
}
