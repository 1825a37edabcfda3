// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package manifest parses and validates the YAML frontmatter of SKILL.md.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileName is the entry document every skill bundle carries.
const FileName = "SKILL.md"

// MaxNameLength bounds skill names.
const MaxNameLength = 64

// maxFrontmatterSize limits frontmatter to prevent YAML parsing attacks.
const maxFrontmatterSize = 64 * 1024

// Sentinel errors returned by Parse and Validate.
var (
	ErrNotFound            = errors.New("SKILL.md not found")
	ErrNoFrontmatter       = errors.New("SKILL.md must start with YAML frontmatter (---)")
	ErrUnterminated        = errors.New("SKILL.md frontmatter missing closing delimiter (---)")
	ErrMissingName         = errors.New("name is required in SKILL.md frontmatter")
	ErrMissingDescription  = errors.New("description is required in SKILL.md frontmatter")
	ErrNameMismatch        = errors.New("skill name does not match directory name")
	ErrInvalidName         = errors.New("invalid skill name")
	ErrFrontmatterTooLarge = fmt.Errorf("frontmatter exceeds maximum size of %d bytes", maxFrontmatterSize)
)

// Manifest is the parsed frontmatter.
type Manifest struct {
	Name          string            `yaml:"name"`
	Description   string            `yaml:"description"`
	Descriptions  map[string]string `yaml:"descriptions,omitempty"`
	Keywords      StringOrSlice     `yaml:"keywords,omitempty"`
	Version       string            `yaml:"version,omitempty"`
	License       string            `yaml:"license,omitempty"`
	Compatibility string            `yaml:"compatibility,omitempty"`
	AllowedTools  StringOrSlice     `yaml:"allowed-tools,omitempty"`
	Metadata      map[string]string `yaml:"metadata,omitempty"`

	// Fields holds every frontmatter key as decoded YAML, including unknown ones.
	Fields map[string]any `yaml:"-"`
}

// StringOrSlice unmarshals from a comma or space separated string or a sequence.
type StringOrSlice []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *StringOrSlice) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		str := value.Value
		if str == "" {
			*s = nil
			return nil
		}
		var parts []string
		if strings.Contains(str, ",") {
			parts = strings.Split(str, ",")
		} else {
			parts = strings.Fields(str)
		}
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		*s = result
		return nil
	case yaml.SequenceNode:
		var arr []string
		if err := value.Decode(&arr); err != nil {
			return fmt.Errorf("decoding list: %w", err)
		}
		*s = arr
		return nil
	case yaml.DocumentNode, yaml.MappingNode, yaml.AliasNode:
		return fmt.Errorf("expected string or list, got unsupported YAML node type")
	}
	return fmt.Errorf("unexpected YAML node kind %d", value.Kind)
}

// Split separates the frontmatter block from the body of a SKILL.md document.
func Split(content []byte) (front, body []byte, err error) {
	content = bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	content = bytes.TrimPrefix(content, []byte("\ufeff"))
	content = bytes.TrimLeft(content, " \t\n")

	delimiter := []byte("---")
	if !bytes.HasPrefix(content, delimiter) {
		return nil, nil, ErrNoFrontmatter
	}
	rest := content[len(delimiter):]
	rest = bytes.TrimPrefix(rest, []byte("\n"))

	var end int
	if bytes.HasPrefix(rest, delimiter) {
		end = 0
	} else {
		idx := bytes.Index(rest, []byte("\n---"))
		if idx == -1 {
			return nil, nil, ErrUnterminated
		}
		end = idx + 1
	}

	front = rest[:end]
	if len(front) > maxFrontmatterSize {
		return nil, nil, ErrFrontmatterTooLarge
	}
	body = rest[end+len(delimiter):]
	body = bytes.TrimPrefix(body, []byte("\n"))
	return front, body, nil
}

// Parse decodes the frontmatter of a SKILL.md document. It does not check
// required fields; see Validate.
func Parse(content []byte) (*Manifest, error) {
	front, _, err := Split(content)
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := yaml.Unmarshal(front, &m); err != nil {
		return nil, fmt.Errorf("parsing frontmatter YAML: %w", err)
	}
	if err := yaml.Unmarshal(front, &m.Fields); err != nil {
		return nil, fmt.Errorf("parsing frontmatter YAML: %w", err)
	}
	if m.Fields == nil {
		m.Fields = map[string]any{}
	}
	m.Name = strings.TrimSpace(m.Name)
	m.Description = strings.TrimSpace(m.Description)
	return &m, nil
}

// Load reads and parses dir/SKILL.md.
func Load(dir string) (*Manifest, error) {
	content, err := os.ReadFile(filepath.Join(dir, FileName)) //#nosec G304 -- path constructed from the skill directory
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading %s: %w", FileName, err)
	}
	m, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", FileName, err)
	}
	return m, nil
}

// Validate checks the required fields. When dirName is non-empty the name
// must equal it.
func (m *Manifest) Validate(dirName string) error {
	if m.Name == "" {
		return ErrMissingName
	}
	if m.Description == "" {
		return ErrMissingDescription
	}
	if dirName != "" && m.Name != dirName {
		return fmt.Errorf("%w: name %q, directory %q", ErrNameMismatch, m.Name, dirName)
	}
	return nil
}

// LoadValid loads dir/SKILL.md and validates it against the directory name.
func LoadValid(dir string) (*Manifest, error) {
	m, err := Load(dir)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(filepath.Base(dir)); err != nil {
		return nil, err
	}
	return m, nil
}

var validNameRegex = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// ValidateName checks that a skill name is usable as a directory name and
// follows the lowercase hyphenated convention.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: name cannot contain null bytes", ErrInvalidName)
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("%w: %q exceeds %d characters", ErrInvalidName, name, MaxNameLength)
	}
	if !validNameRegex.MatchString(name) {
		return fmt.Errorf("%w: %q must be lowercase alphanumeric words separated by single hyphens", ErrInvalidName, name)
	}
	return nil
}

// CheckDirName checks that name can serve as a skill directory: it must be
// a single visible path element. The naming convention of ValidateName is
// not enforced.
func CheckDirName(name string) error {
	if !SafeDirName(name) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: %q is not a usable directory name", ErrInvalidName, name)
	}
	return nil
}

// SafeDirName reports whether name can be joined to a root without escaping it.
func SafeDirName(name string) bool {
	return name != "" && name != "." && name != ".." &&
		!strings.ContainsAny(name, `/\`) && !strings.ContainsRune(name, 0)
}
