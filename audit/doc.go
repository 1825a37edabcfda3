// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

/*
Package audit checks a skill bundle against an ordered table of compliance
rules and reports PASS, FAIL or WARN per rule.

Rules are data. Each one is either a CEL expression over the bundle
variables

	manifest          map(string, dyn)  frontmatter keys
	dir_name          string            bundle directory name
	files             list(string)      slash separated relative paths
	skill_md_present  bool
	frontmatter_valid bool

that holds for a compliant bundle, or a Go CheckFunc returning findings.
Severities can be overridden and CEL rules added from configuration
without touching the engine:

	a, err := audit.New(
	    audit.WithSeverity("safety.os-system", audit.StatusFail),
	    audit.WithRule(audit.Rule{
	        ID:       "structure.license",
	        Severity: audit.StatusWarn,
	        Expr:     `files.exists(f, f == "LICENSE")`,
	    }),
	)

Every applicable rule runs even after earlier failures; a rule that panics
or fails to evaluate reports its severity with the error as the finding.
*/
package audit
