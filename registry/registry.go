// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"
)

const (
	// SourceLocal marks skills that were not installed from a repository.
	SourceLocal = "local"
	// VersionUnknown is recorded when no commit id is available.
	VersionUnknown = "unknown"
)

// legacyTimeLayouts are accepted when reading updated_at values written by
// older tooling, which stored naive ISO-8601 timestamps.
var legacyTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// Timestamp is a point in time serialized as RFC3339.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t in UTC.
func NewTimestamp(t time.Time) *Timestamp {
	return &Timestamp{Time: t.UTC()}
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(time.RFC3339))
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("updated_at: %w", err)
	}
	if s == "" {
		return nil
	}
	for _, layout := range legacyTimeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("updated_at: unrecognized timestamp %q", s)
}

// Entry records the provenance of one installed skill.
type Entry struct {
	Source    string     `json:"source"`
	Subdir    string     `json:"subdir"`
	Ref       string     `json:"ref,omitempty"`
	Version   string     `json:"version"`
	UpdatedAt *Timestamp `json:"updated_at"`
}

// IsLocal reports whether the skill has no remote source to update from.
func (e Entry) IsLocal() bool {
	return e.Source == "" || e.Source == SourceLocal
}

// HasKnownVersion reports whether Version is a concrete commit id.
func (e Entry) HasKnownVersion() bool {
	return e.Version != "" && e.Version != VersionUnknown
}

// Registry maps skill names to their entries.
type Registry struct {
	Skills map[string]Entry `json:"skills"`
}

// New returns an empty registry.
func New() Registry {
	return Registry{Skills: map[string]Entry{}}
}

// Clone returns a copy that shares no map with r.
func (r Registry) Clone() Registry {
	out := New()
	for name, e := range r.Skills {
		if e.UpdatedAt != nil {
			ts := *e.UpdatedAt
			e.UpdatedAt = &ts
		}
		out.Skills[name] = e
	}
	return out
}

// Get returns the entry for name.
func (r Registry) Get(name string) (Entry, bool) {
	e, ok := r.Skills[name]
	return e, ok
}

// With returns a copy of r with name set to e.
func (r Registry) With(name string, e Entry) Registry {
	out := r.Clone()
	out.Skills[name] = e
	return out
}

// Without returns a copy of r with name removed.
func (r Registry) Without(name string) Registry {
	out := r.Clone()
	delete(out.Skills, name)
	return out
}

// Names returns the skill names in sorted order.
func (r Registry) Names() []string {
	return slices.Sorted(maps.Keys(r.Skills))
}

// Len returns the number of skills.
func (r Registry) Len() int {
	return len(r.Skills)
}
