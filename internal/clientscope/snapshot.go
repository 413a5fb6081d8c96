// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package clientscope

import (
	"sort"
	"strings"

	"github.com/opentrusty/tokenscope/internal/authz"
)

// ScopeSnapshot is the frozen form of a ClientScope at authorization time.
type ScopeSnapshot struct {
	Name            string          `json:"name"`
	Position        int64           `json:"position"`
	ConsentRequired bool            `json:"consent_required,omitempty"`
	DisplayText     string          `json:"display_text,omitempty"`
	Mappings        []ClaimMapping  `json:"mappings,omitempty"`
	Roles           []authz.RoleRef `json:"roles,omitempty"`
}

// Snapshot is the effective scope set of one authorization. It is a value:
// codes and refresh tokens embed it, and nothing in it points back at
// mutable catalog entries.
type Snapshot struct {
	Scopes           []ScopeSnapshot `json:"scopes"`
	FullScopeAllowed bool            `json:"full_scope_allowed"`
}

// NewSnapshot freezes scopes, de-duplicated by name and ordered by Position.
func NewSnapshot(scopes []*ClientScope, fullScopeAllowed bool) Snapshot {
	seen := make(map[string]struct{}, len(scopes))
	out := make([]ScopeSnapshot, 0, len(scopes))
	for _, s := range scopes {
		if s == nil {
			continue
		}
		if _, ok := seen[s.Name]; ok {
			continue
		}
		seen[s.Name] = struct{}{}
		out = append(out, ScopeSnapshot{
			Name:            s.Name,
			Position:        s.Position,
			ConsentRequired: s.Attributes.ConsentRequired,
			DisplayText:     s.Attributes.DisplayText(s.Name),
			Mappings:        append([]ClaimMapping(nil), s.Mappings...),
			Roles:           append([]authz.RoleRef(nil), s.Roles...),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].Name < out[j].Name
	})
	return Snapshot{Scopes: out, FullScopeAllowed: fullScopeAllowed}
}

// Names returns the scope names sorted alphabetically.
func (s Snapshot) Names() []string {
	names := make([]string, 0, len(s.Scopes))
	for _, sc := range s.Scopes {
		names = append(names, sc.Name)
	}
	sort.Strings(names)
	return names
}

// String is the canonical scope string: alphabetical, space separated.
func (s Snapshot) String() string {
	return strings.Join(s.Names(), " ")
}

// Has reports whether name is part of the set.
func (s Snapshot) Has(name string) bool {
	for _, sc := range s.Scopes {
		if sc.Name == name {
			return true
		}
	}
	return false
}

// Roles returns the union of roles mapped to the scopes in the set.
func (s Snapshot) Roles() []authz.RoleRef {
	seen := make(map[authz.RoleRef]struct{})
	var out []authz.RoleRef
	for _, sc := range s.Scopes {
		for _, r := range sc.Roles {
			if _, ok := seen[r]; ok {
				continue
			}
			seen[r] = struct{}{}
			out = append(out, r)
		}
	}
	authz.SortRoles(out)
	return out
}

// CanonicalScope normalizes a space-delimited scope string to its canonical
// form. Duplicate tokens collapse.
func CanonicalScope(raw string) string {
	fields := strings.Fields(raw)
	sort.Strings(fields)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(out) > 0 && out[len(out)-1] == f {
			continue
		}
		out = append(out, f)
	}
	return strings.Join(out, " ")
}
