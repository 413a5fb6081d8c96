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

package mapper

import (
	"github.com/opentrusty/tokenscope/internal/authz"
	"github.com/opentrusty/tokenscope/internal/clientscope"
)

// MapRoles computes the role grants of a token. With FullScopeAllowed the
// user's full role set is returned. Otherwise only roles mapped to a scope
// in snap, or owned by clientID, survive.
func MapRoles(userRoles []authz.RoleRef, clientID string, snap clientscope.Snapshot) []authz.RoleRef {
	out := make([]authz.RoleRef, 0, len(userRoles))
	if snap.FullScopeAllowed {
		out = append(out, userRoles...)
		authz.SortRoles(out)
		return out
	}

	allowed := make(map[authz.RoleRef]struct{})
	for _, r := range snap.Roles() {
		allowed[r] = struct{}{}
	}
	for _, r := range userRoles {
		_, mapped := allowed[r]
		if mapped || (clientID != "" && r.ClientID == clientID) {
			out = append(out, r)
		}
	}
	authz.SortRoles(out)
	return out
}

// RoleClaims renders roles as realm_access and resource_access claims.
// Empty groups are omitted.
func RoleClaims(roles []authz.RoleRef) map[string]any {
	claims := make(map[string]any)
	var realm []string
	resource := make(map[string]map[string]any)
	for _, r := range roles {
		if r.IsRealm() {
			realm = append(realm, r.Name)
			continue
		}
		entry, ok := resource[r.ClientID]
		if !ok {
			entry = map[string]any{"roles": []string{}}
			resource[r.ClientID] = entry
		}
		entry["roles"] = append(entry["roles"].([]string), r.Name)
	}
	if len(realm) > 0 {
		claims["realm_access"] = map[string]any{"roles": realm}
	}
	if len(resource) > 0 {
		ra := make(map[string]any, len(resource))
		for k, v := range resource {
			ra[k] = v
		}
		claims["resource_access"] = ra
	}
	return claims
}
