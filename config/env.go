// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import "os"

// Environment variables read by Load.
const (
	EnvSkillsRoot      = "SKILLCTL_SKILLS_ROOT"
	EnvGitHubURL       = "SKILLCTL_GITHUB_URL"
	EnvLegacyGitHubURL = "GITHUB_URL"
	EnvLogLevel        = "SKILLCTL_LOG_LEVEL"
	EnvUnstructured    = "UNSTRUCTURED_LOGS"
)

// EnvReader defines an interface for environment variable access
type EnvReader interface {
	Getenv(key string) string
}

// OSEnv implements EnvReader using the standard os package
type OSEnv struct{}

// Getenv returns the value of the environment variable named by the key
func (OSEnv) Getenv(key string) string {
	return os.Getenv(key)
}

// MapEnv is an EnvReader over a fixed set of values.
type MapEnv map[string]string

// Getenv returns the value stored for key.
func (m MapEnv) Getenv(key string) string {
	return m[key]
}
