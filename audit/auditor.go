// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gobwas/glob"

	"github.com/stacklok/skillctl/logging"
	"github.com/stacklok/skillctl/recovery"
)

// Result is the outcome of one rule.
type Result struct {
	Category string   `json:"category"`
	RuleID   string   `json:"rule_id"`
	Status   Status   `json:"status"`
	Message  string   `json:"message"`
	Findings []string `json:"findings,omitempty"`
}

// Report holds the results of one audit in rule table order.
type Report struct {
	Skill   string   `json:"skill"`
	Path    string   `json:"path"`
	Results []Result `json:"results"`
}

// Failed reports whether any rule failed.
func (r *Report) Failed() bool {
	return r.Count(StatusFail) > 0
}

// Count returns the number of results with status s.
func (r *Report) Count(s Status) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == s {
			n++
		}
	}
	return n
}

// compiledRule is a rule with its scope and expression prepared.
type compiledRule struct {
	Rule
	scope []glob.Glob
	expr  *CompiledExpression
}

// Auditor runs a rule table against skill bundles.
type Auditor struct {
	rules     []compiledRule
	overrides map[string]Severity
	markers   []string
	extra     []Rule
	engine    *Engine
	logger    *slog.Logger
}

// Option configures an Auditor.
type Option func(*Auditor)

// WithSeverity overrides the severity of the rule id.
func WithSeverity(id string, s Severity) Option {
	return func(a *Auditor) {
		a.overrides[id] = s
	}
}

// WithRule appends a rule to the table.
func WithRule(r Rule) Option {
	return func(a *Auditor) {
		a.extra = append(a.extra, r)
	}
}

// WithLegacyMarkers replaces the strings paths.legacy-tool-dir looks for.
func WithLegacyMarkers(markers ...string) Option {
	return func(a *Auditor) {
		a.markers = markers
	}
}

// WithCostLimit bounds the runtime cost of every rule expression. Zero keeps
// DefaultCostLimit.
func WithCostLimit(limit uint64) Option {
	return func(a *Auditor) {
		if limit > 0 {
			a.engine.WithCostLimit(limit)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Auditor) {
		a.logger = l
	}
}

// New compiles the built-in table plus any added rules. It fails on invalid
// expressions, unknown override ids and duplicate rule ids.
func New(opts ...Option) (*Auditor, error) {
	a := &Auditor{
		overrides: map[string]Severity{},
		engine:    NewEngine(),
		logger:    logging.Discard(),
	}
	for _, opt := range opts {
		opt(a)
	}

	table := BuiltinRules()
	if a.markers != nil {
		for i := range table {
			if table[i].ID == "paths.legacy-tool-dir" {
				table[i].Check = legacyMarkerCheck(a.markers)
			}
		}
	}
	table = append(table, a.extra...)

	seen := map[string]bool{}
	for _, r := range table {
		if r.ID == "" {
			return nil, errors.New("rule without id")
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("duplicate rule id %q", r.ID)
		}
		seen[r.ID] = true

		cr, err := a.compile(r)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", r.ID, err)
		}
		a.rules = append(a.rules, cr)
	}

	for id := range a.overrides {
		if !seen[id] {
			return nil, fmt.Errorf("severity override for unknown rule %q", id)
		}
	}
	return a, nil
}

func (a *Auditor) compile(r Rule) (compiledRule, error) {
	if (r.Expr == "") == (r.Check == nil) {
		return compiledRule{}, errors.New("exactly one of an expression and a check is required")
	}
	if _, err := ParseSeverity(string(r.Severity)); err != nil {
		return compiledRule{}, err
	}
	if r.Category == "" {
		r.Category, _, _ = strings.Cut(r.ID, ".")
	}
	if r.Expr != "" && r.Message == "" {
		r.Message = "not satisfied: " + r.Description
	}

	cr := compiledRule{Rule: r}
	for _, pattern := range r.Files {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return compiledRule{}, fmt.Errorf("compiling file scope %q: %w", pattern, err)
		}
		cr.scope = append(cr.scope, g)
	}
	if r.Expr != "" {
		expr, err := a.engine.Compile(r.Expr)
		if err != nil {
			return compiledRule{}, err
		}
		cr.expr = expr
	}
	return cr, nil
}

// Rules returns the effective rule table.
func (a *Auditor) Rules() []Rule {
	out := make([]Rule, 0, len(a.rules))
	for _, r := range a.rules {
		r.Severity = a.severity(r.Rule)
		out = append(out, r.Rule)
	}
	return out
}

func (a *Auditor) severity(r Rule) Severity {
	if s, ok := a.overrides[r.ID]; ok {
		return s
	}
	return r.Severity
}

// Audit runs every applicable rule against the skill at skillPath. Rules
// marked NeedsRegistry run only when registryRoot is set. The only error is
// an unreadable skillPath.
func (a *Auditor) Audit(ctx context.Context, skillPath, registryRoot string) (*Report, error) {
	b, err := LoadBundle(skillPath, registryRoot)
	if err != nil {
		return nil, err
	}

	report := &Report{Skill: b.SkillName(), Path: b.Root}
	vars := b.vars()
	for _, r := range a.rules {
		if r.NeedsRegistry && registryRoot == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		report.Results = append(report.Results, a.run(ctx, r, b, vars))
	}
	return report, nil
}

func (a *Auditor) run(ctx context.Context, r compiledRule, b *Bundle, vars map[string]any) Result {
	var findings []string
	err := recovery.Guard(func() error {
		if r.expr != nil {
			ok, err := r.expr.EvaluateBool(vars)
			if err != nil {
				return err
			}
			if !ok {
				findings = []string{r.Message}
			}
			return nil
		}
		findings = r.Check(b, r.filesInScope(b))
		return nil
	})
	if err != nil {
		a.logger.WarnContext(ctx, "audit rule errored", "rule", r.ID, "error", err)
		if r.expr != nil {
			findings = []string{fmt.Sprintf("rule could not be evaluated: %s: %v", r.expr.Source(), err)}
		} else {
			findings = []string{fmt.Sprintf("rule could not be evaluated: %v", err)}
		}
	}

	res := Result{Category: r.Category, RuleID: r.ID, Status: StatusPass, Message: r.Description}
	if len(findings) > 0 {
		res.Status = a.severity(r.Rule)
		res.Findings = findings
		res.Message = strings.Join(findings, "; ")
	}
	return res
}

func (r compiledRule) filesInScope(b *Bundle) []File {
	if len(r.scope) == 0 {
		return b.Files
	}
	var out []File
	for _, f := range b.Files {
		for _, g := range r.scope {
			if g.Match(f.Path) {
				out = append(out, f)
				break
			}
		}
	}
	return out
}
