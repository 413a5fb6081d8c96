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

package authz

import (
	"sort"
	"strings"
)

// RoleRef identifies a role by value. Snapshots embed RoleRefs instead of role
// IDs so that deleting or renaming a role never rewrites an issued token.
type RoleRef struct {
	ClientID string `json:"client_id,omitempty" yaml:"client,omitempty"`
	Name     string `json:"name" yaml:"name"`
}

// RealmRole returns a reference to a realm-level role.
func RealmRole(name string) RoleRef {
	return RoleRef{Name: name}
}

// ClientRole returns a reference to a role owned by clientID.
func ClientRole(clientID, name string) RoleRef {
	return RoleRef{ClientID: clientID, Name: name}
}

// ParseRoleRef parses "name" or "client/name".
func ParseRoleRef(s string) RoleRef {
	if i := strings.Index(s, "/"); i > 0 {
		return RoleRef{ClientID: s[:i], Name: s[i+1:]}
	}
	return RoleRef{Name: s}
}

// IsRealm reports whether the role is realm-level.
func (r RoleRef) IsRealm() bool {
	return r.ClientID == ""
}

func (r RoleRef) String() string {
	if r.ClientID == "" {
		return r.Name
	}
	return r.ClientID + "/" + r.Name
}

// SortRoles orders roles realm-first, then by client and name.
func SortRoles(roles []RoleRef) {
	sort.Slice(roles, func(i, j int) bool {
		if roles[i].ClientID != roles[j].ClientID {
			return roles[i].ClientID < roles[j].ClientID
		}
		return roles[i].Name < roles[j].Name
	})
}

// ActorType identifies who performed an administrative change.
type ActorType string

const (
	// ActorUser represents a human user.
	ActorUser ActorType = "user"

	// ActorSystem represents internal operations such as seeding.
	ActorSystem ActorType = "system"
)
