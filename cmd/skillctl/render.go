// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/stacklok/skillctl/audit"
)

// ui writes styled messages. Colors are dropped when the writer is not a
// terminal.
type ui struct {
	out io.Writer
	err io.Writer

	okStyle     lipgloss.Style
	warnStyle   lipgloss.Style
	failStyle   lipgloss.Style
	dimStyle    lipgloss.Style
	headerStyle lipgloss.Style
	errStyle    lipgloss.Style
}

func newUI(out, errOut io.Writer) *ui {
	r := lipgloss.NewRenderer(out)
	er := lipgloss.NewRenderer(errOut)
	return &ui{
		out:         out,
		err:         errOut,
		okStyle:     r.NewStyle().Foreground(lipgloss.Color("#a6e3a1")),
		warnStyle:   r.NewStyle().Foreground(lipgloss.Color("#f9e2af")),
		failStyle:   r.NewStyle().Foreground(lipgloss.Color("#f38ba8")).Bold(true),
		dimStyle:    r.NewStyle().Foreground(lipgloss.Color("#6c7086")),
		headerStyle: r.NewStyle().Bold(true),
		errStyle:    er.NewStyle().Foreground(lipgloss.Color("#f38ba8")),
	}
}

// success prints a success message.
func (u *ui) success(format string, args ...any) {
	_, _ = fmt.Fprintf(u.out, "%s %s\n", u.okStyle.Render("✓"), fmt.Sprintf(format, args...))
}

// info prints an info message.
func (u *ui) info(format string, args ...any) {
	_, _ = fmt.Fprintf(u.out, "  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func (u *ui) warn(format string, args ...any) {
	_, _ = fmt.Fprintf(u.out, "%s %s\n", u.warnStyle.Render("⚠"), fmt.Sprintf(format, args...))
}

// errorMsg prints an error message.
func (u *ui) errorMsg(format string, args ...any) {
	_, _ = fmt.Fprintf(u.err, "%s %s\n", u.errStyle.Render("✗"), fmt.Sprintf(format, args...))
}

// table prints rows aligned in columns under a bold header line.
func (u *ui) table(header []string, rows [][]string) error {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, strings.Join(header, "\t"))
	for _, row := range rows {
		_, _ = fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	head, body, _ := strings.Cut(buf.String(), "\n")
	_, err := fmt.Fprintf(u.out, "%s\n%s", u.headerStyle.Render(strings.TrimRight(head, " ")), body)
	return err
}

func (u *ui) status(s audit.Status) string {
	label := fmt.Sprintf("%-4s", s)
	switch s {
	case audit.StatusPass:
		return u.okStyle.Render(label)
	case audit.StatusWarn:
		return u.warnStyle.Render(label)
	default:
		return u.failStyle.Render(label)
	}
}

// report prints an audit report grouped by category.
func (u *ui) report(r *audit.Report) {
	_, _ = fmt.Fprintf(u.out, "%s %s\n", u.headerStyle.Render("Audit of "+r.Skill), u.dimStyle.Render("("+r.Path+")"))

	category := ""
	for _, res := range r.Results {
		if res.Category != category {
			category = res.Category
			_, _ = fmt.Fprintf(u.out, "\n%s\n", u.headerStyle.Render(category))
		}
		_, _ = fmt.Fprintf(u.out, "  %s %s", u.status(res.Status), res.RuleID)
		if res.Status != audit.StatusPass && res.Message != "" {
			_, _ = fmt.Fprintf(u.out, ": %s", res.Message)
		}
		_, _ = fmt.Fprintln(u.out)
		for _, f := range res.Findings {
			_, _ = fmt.Fprintf(u.out, "       %s\n", u.dimStyle.Render("- "+f))
		}
	}

	_, _ = fmt.Fprintf(u.out, "\n%d passed, %d warnings, %d failed\n",
		r.Count(audit.StatusPass), r.Count(audit.StatusWarn), r.Count(audit.StatusFail))
}

// reportSummary prints the one-line outcome of a post-install audit.
func (u *ui) reportSummary(r *audit.Report) {
	fails, warns := r.Count(audit.StatusFail), r.Count(audit.StatusWarn)
	switch {
	case fails > 0:
		u.warn("Audit: %d failed, %d warnings (run `skillctl audit %s` for details)", fails, warns, r.Path)
	case warns > 0:
		u.info("Audit: passed with %d warnings", warns)
	default:
		u.info("Audit: passed")
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// shortVersion trims commit ids for display.
func shortVersion(v string) string {
	if len(v) > 12 {
		return v[:12]
	}
	if v == "" {
		return "-"
	}
	return v
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
