// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"fmt"
	"strings"
)

// Status is the outcome of one rule.
type Status string

// Rule outcomes.
const (
	StatusPass Status = "PASS"
	StatusFail Status = "FAIL"
	StatusWarn Status = "WARN"
)

// Severity is the status a rule reports when it has findings.
type Severity = Status

// ParseSeverity accepts FAIL or WARN in any case.
func ParseSeverity(s string) (Severity, error) {
	switch Status(strings.ToUpper(strings.TrimSpace(s))) {
	case StatusFail:
		return StatusFail, nil
	case StatusWarn:
		return StatusWarn, nil
	default:
		return "", fmt.Errorf("invalid severity %q (valid: FAIL, WARN)", s)
	}
}

// Rule categories.
const (
	CategoryStructure   = "structure"
	CategoryDependency  = "dependency"
	CategoryEncoding    = "encoding"
	CategoryPackaging   = "packaging"
	CategorySafety      = "safety"
	CategoryCompat      = "compat"
	CategoryI18n        = "i18n"
	CategoryPaths       = "paths"
	CategoryConsistency = "consistency"
)

// CheckFunc inspects a bundle and returns one finding per problem. files
// holds the bundle files matching the rule's scope.
type CheckFunc func(b *Bundle, files []File) []string

// Rule is one entry of the rule table. Exactly one of Expr and Check is set.
type Rule struct {
	ID          string
	Category    string
	Severity    Severity
	Description string
	// Files restricts Check to matching bundle paths (gobwas/glob syntax
	// with '/' as separator). Empty means every file.
	Files []string
	// Expr is a CEL expression that holds for a compliant bundle.
	Expr string
	// Message is the finding reported when Expr is false.
	Message string
	Check   CheckFunc
	// NeedsRegistry limits the rule to audits given a registry root.
	NeedsRegistry bool
}

// namePattern mirrors manifest.ValidateName for use inside expressions.
const namePattern = `^[a-z0-9]+(-[a-z0-9]+)*$`

// BuiltinRules returns the default rule table in evaluation order.
func BuiltinRules() []Rule {
	return []Rule{
		{
			ID: "structure.manifest-present", Category: CategoryStructure, Severity: StatusFail,
			Description: "SKILL.md exists at the bundle root",
			Check:       checkManifestPresent,
		},
		{
			ID: "structure.frontmatter-valid", Category: CategoryStructure, Severity: StatusFail,
			Description: "SKILL.md starts with a parseable YAML frontmatter block",
			Check:       checkFrontmatterValid,
		},
		{
			ID: "structure.name-present", Category: CategoryStructure, Severity: StatusFail,
			Description: "frontmatter declares a name",
			Expr:        `!frontmatter_valid || (has(manifest.name) && type(manifest.name) == string && manifest.name != "")`,
			Message:     "missing 'name' in SKILL.md frontmatter",
		},
		{
			ID: "structure.description-present", Category: CategoryStructure, Severity: StatusFail,
			Description: "frontmatter declares a description",
			Expr:        `!frontmatter_valid || (has(manifest.description) && type(manifest.description) == string && manifest.description != "")`,
			Message:     "missing 'description' in SKILL.md frontmatter",
		},
		{
			ID: "structure.name-matches-dir", Category: CategoryStructure, Severity: StatusFail,
			Description: "frontmatter name equals the directory name",
			Expr:        `!frontmatter_valid || !has(manifest.name) || manifest.name == "" || manifest.name == dir_name`,
			Message:     "frontmatter name does not match the directory name",
		},
		{
			ID: "structure.name-format", Category: CategoryStructure, Severity: StatusWarn,
			Description: "name is lowercase words separated by hyphens, at most 64 characters",
			Expr: `!frontmatter_valid || !has(manifest.name) || manifest.name == "" ||
				(type(manifest.name) == string && size(manifest.name) <= 64 && manifest.name.matches('` + namePattern + `'))`,
			Message: "name should be lowercase alphanumeric words separated by single hyphens",
		},
		{
			ID: "dependency.requirements-file", Category: CategoryDependency, Severity: StatusFail,
			Description: "Python scripts ship a scripts/requirements.txt",
			Files:       []string{"scripts/**.py"},
			Check:       checkRequirementsFile,
		},
		{
			ID: "dependency.imports-declared", Category: CategoryDependency, Severity: StatusFail,
			Description: "third-party imports are declared in scripts/requirements.txt",
			Files:       []string{"scripts/**.py"},
			Check:       checkImportsDeclared,
		},
		{
			ID: "encoding.explicit-file-encoding", Category: CategoryEncoding, Severity: StatusWarn,
			Description: "text file operations pass an explicit encoding",
			Files:       []string{"**.py"},
			Check:       checkExplicitEncoding,
		},
		{
			ID: "encoding.subprocess-decode-errors", Category: CategoryEncoding, Severity: StatusWarn,
			Description: "subprocess calls decoding text output set errors=",
			Files:       []string{"**.py"},
			Check:       checkSubprocessDecode,
		},
		{
			ID: "encoding.utf8-text", Category: CategoryEncoding, Severity: StatusWarn,
			Description: "text files are valid UTF-8",
			Files:       textFileGlobs,
			Check:       checkUTF8,
		},
		{
			ID: "packaging.flat-layout", Category: CategoryPackaging, Severity: StatusFail,
			Description: "package_skill.py archives paths relative to the skill directory",
			Files:       []string{"scripts/package_skill.py"},
			Check:       checkFlatLayout,
		},
		{
			ID: "packaging.cache-filtered", Category: CategoryPackaging, Severity: StatusWarn,
			Description: "bytecode caches are neither shipped nor packaged",
			Check:       checkCacheFiltered,
		},
		{
			ID: "packaging.template-description", Category: CategoryPackaging, Severity: StatusFail,
			Description: "init_skill.py templates the description as a string",
			Files:       []string{"scripts/init_skill.py"},
			Check:       checkTemplateDescription,
		},
		{
			ID: "safety.os-system", Category: CategorySafety, Severity: StatusWarn,
			Description: "scripts use subprocess instead of os.system",
			Files:       []string{"**.py"},
			Check:       checkOSSystem,
		},
		{
			ID: "safety.shell-syntax", Category: CategorySafety, Severity: StatusFail,
			Description: "shell scripts parse for their declared shell",
			Files:       shellGlobs,
			Check:       checkShellSyntax,
		},
		{
			ID: "compat.hardcoded-separator", Category: CategoryCompat, Severity: StatusWarn,
			Description: "scripts build paths without hardcoded separators",
			Files:       []string{"**.py"},
			Check:       checkHardcodedSeparator,
		},
		{
			ID: "compat.platform-command", Category: CategoryCompat, Severity: StatusWarn,
			Description: "scripts avoid platform specific commands and flags",
			Files:       append([]string{"**.py"}, shellGlobs...),
			Check:       checkPlatformCommand,
		},
		{
			ID: "i18n.emoji-in-output", Category: CategoryI18n, Severity: StatusFail,
			Description: "scripts print no emoji, which legacy consoles cannot encode",
			Files:       append([]string{"**.py"}, shellGlobs...),
			Check:       checkEmojiOutput,
		},
		{
			ID: "i18n.localized-description", Category: CategoryI18n, Severity: StatusWarn,
			Description: "a non-English description comes with an English entry in descriptions",
			Expr: `!frontmatter_valid || !has(manifest.description) || type(manifest.description) != string ||
				manifest.description.matches(r'^[\x00-\x7F]*$') ||
				(has(manifest.descriptions) && type(manifest.descriptions) == map && 'en' in manifest.descriptions)`,
			Message: "description is not ASCII; add descriptions.en",
		},
		{
			ID: "paths.absolute-home", Category: CategoryPaths, Severity: StatusFail,
			Description: "no absolute paths into a user home directory",
			Files:       textFileGlobs,
			Check:       checkAbsoluteHome,
		},
		{
			ID: "paths.legacy-tool-dir", Category: CategoryPaths, Severity: StatusFail,
			Description: "no references to legacy tool directories",
			Files:       textFileGlobs,
			Check:       legacyMarkerCheck(DefaultLegacyMarkers),
		},
		{
			ID: "consistency.registry-entry", Category: CategoryConsistency, Severity: StatusWarn,
			Description: "the skill is recorded in skills.json",
			Check:       checkRegistryEntry, NeedsRegistry: true,
		},
		{
			ID: "consistency.skillmap-entry", Category: CategoryConsistency, Severity: StatusWarn,
			Description: "the skill is recorded in skill_map.json",
			Check:       checkSkillMapEntry, NeedsRegistry: true,
		},
	}
}

// DefaultLegacyMarkers are directory names from older tool layouts.
var DefaultLegacyMarkers = []string{".codebuddy"}

var (
	textFileGlobs = []string{"**.md", "**.py", "**.txt", "**.sh", "**.bash", "**.json", "**.yaml", "**.yml", "**.toml"}
	shellGlobs    = []string{"**.sh", "**.bash"}
)
