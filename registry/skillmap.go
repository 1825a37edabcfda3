// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/stacklok/skillctl/fsutil"
	"github.com/stacklok/skillctl/manifest"
)

// SkillMap is the detection map consumed by skill selection tooling.
type SkillMap struct {
	Skills         map[string]SkillMapEntry `json:"skills"`
	DetectionRules DetectionRules           `json:"detection_rules"`
}

// SkillMapEntry describes how one skill can be referred to.
type SkillMapEntry struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
	Aliases     []string `json:"aliases"`
}

// DetectionRules hold lookup tables derived from the entries.
type DetectionRules struct {
	PriorityOrder []string                   `json:"priority_order"`
	ExactMatch    map[string]string          `json:"exact_match"`
	PartialMatch  map[string]json.RawMessage `json:"partial_match"`
}

// NewSkillMap returns an empty map with initialized tables.
func NewSkillMap() *SkillMap {
	m := &SkillMap{}
	m.normalize()
	return m
}

func (m *SkillMap) normalize() {
	if m.Skills == nil {
		m.Skills = map[string]SkillMapEntry{}
	}
	if m.DetectionRules.PriorityOrder == nil {
		m.DetectionRules.PriorityOrder = []string{}
	}
	if m.DetectionRules.ExactMatch == nil {
		m.DetectionRules.ExactMatch = map[string]string{}
	}
	if m.DetectionRules.PartialMatch == nil {
		m.DetectionRules.PartialMatch = map[string]json.RawMessage{}
	}
}

// spacedName turns "pdf-tools" into "pdf tools".
func spacedName(name string) string {
	return strings.ReplaceAll(name, "-", " ")
}

func appendUnique(list []string, values ...string) []string {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" && !slices.Contains(list, v) {
			list = append(list, v)
		}
	}
	return list
}

// Upsert adds or refreshes the entry for name from its manifest. Existing
// aliases and keywords are kept.
func (m *SkillMap) Upsert(name string, man *manifest.Manifest) {
	m.normalize()
	entry := m.Skills[name]
	entry.Name = name
	if man != nil && man.Description != "" {
		entry.Description = man.Description
	}
	var keywords []string
	if man != nil {
		keywords = man.Keywords
	}
	entry.Keywords = appendUnique(entry.Keywords, append([]string{spacedName(name)}, keywords...)...)
	entry.Aliases = appendUnique(entry.Aliases, name)
	m.Skills[name] = entry

	m.DetectionRules.ExactMatch[strings.ToLower(spacedName(name))] = name
	m.DetectionRules.PriorityOrder = appendUnique(m.DetectionRules.PriorityOrder, name)
}

// Remove drops name from the entries and from every detection table.
func (m *SkillMap) Remove(name string) {
	m.normalize()
	delete(m.Skills, name)
	for k, v := range m.DetectionRules.ExactMatch {
		if v == name {
			delete(m.DetectionRules.ExactMatch, k)
		}
	}
	delete(m.DetectionRules.PartialMatch, name)
	m.DetectionRules.PriorityOrder = slices.DeleteFunc(m.DetectionRules.PriorityOrder, func(s string) bool {
		return s == name
	})
}

// Has reports whether name has an entry.
func (m *SkillMap) Has(name string) bool {
	_, ok := m.Skills[name]
	return ok
}

// LoadSkillMap reads the skill map. A missing document yields an empty map.
func (s *Store) LoadSkillMap() (*SkillMap, error) {
	data, err := os.ReadFile(s.SkillMapPath()) //#nosec G304 -- path constructed from the configured skills root
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewSkillMap(), nil
		}
		return nil, fmt.Errorf("reading skill map: %w", err)
	}
	if err := ValidateSkillMapBytes(data); err != nil {
		return nil, &CorruptionError{Path: s.SkillMapPath(), Err: err}
	}
	m := &SkillMap{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, &CorruptionError{Path: s.SkillMapPath(), Err: err}
	}
	m.normalize()
	return m, nil
}

// SaveSkillMap writes the skill map atomically.
func (s *Store) SaveSkillMap(m *SkillMap) error {
	m.normalize()
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding skill map: %w", err)
	}
	if err := fsutil.WriteFileAtomic(s.SkillMapPath(), append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("saving skill map: %w", err)
	}
	return nil
}

// UpdateSkillMap loads the skill map, applies fn and saves it.
func (s *Store) UpdateSkillMap(fn func(*SkillMap)) error {
	m, err := s.LoadSkillMap()
	if err != nil {
		return err
	}
	fn(m)
	return s.SaveSkillMap(m)
}
