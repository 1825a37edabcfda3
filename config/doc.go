// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config loads skillctl settings.
//
// Values are layered: built-in defaults, then the TOML file
// ($XDG_CONFIG_HOME/skillctl/config.toml unless a path is given), then
// environment variables. Command line flags are applied by the caller on
// top of the result.
//
// A complete file looks like:
//
//	skills_root = "~/.local/share/skillctl/skills"
//	github_url = "https://github.example.com"
//	candidate_prefixes = ["skills", "packages"]
//
//	[fetch]
//	max_attempts = 3
//	initial_backoff = "1s"
//	multiplier = 2.0
//	max_backoff = "10s"
//
//	[backup]
//	keep = 5
//	retention_floor = true
//
//	[audit]
//	legacy_markers = [".codebuddy"]
//
//	[audit.severity]
//	"compat.platform-command" = "FAIL"
//
//	[[audit.rules]]
//	id = "structure.has-version"
//	severity = "WARN"
//	description = "manifest declares a version"
//	expr = "has(manifest.version)"
//
//	[log]
//	level = "info"
//	format = "text"
//	file = "~/.local/state/skillctl/skillctl.log"
package config
