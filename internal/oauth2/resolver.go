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

package oauth2

import (
	"context"
	"strings"

	"github.com/opentrusty/tokenscope/internal/clientscope"
)

// ResolveScopeNames computes the effective scope names of a request: openid,
// every default scope of the client and each requested name bound as
// optional. openid is implied for every client whether bound or not. Other
// requested names the client has no binding for are returned as unknown.
// The result is sorted and free of duplicates.
func ResolveScopeNames(client *Client, requested string) (effective, unknown []string) {
	set := make(map[string]struct{}, len(client.DefaultScopes)+1)
	set[clientscope.ScopeOpenID] = struct{}{}
	for _, name := range client.DefaultScopes {
		set[name] = struct{}{}
	}
	for _, name := range strings.Fields(requested) {
		switch kind, bound := client.Binding(name); {
		case name == clientscope.ScopeOpenID:
		case !bound:
			if !contains(unknown, name) {
				unknown = append(unknown, name)
			}
		case kind == BindingOptional:
			set[name] = struct{}{}
		}
	}

	effective = make([]string, 0, len(set))
	for name := range set {
		effective = append(effective, name)
	}
	return strings.Fields(clientscope.CanonicalScope(strings.Join(effective, " "))), unknown
}

// ResolveScopes resolves a request against the client's bindings and freezes
// the matching catalog entries into a snapshot. Bound names that are no
// longer in the catalog are dropped.
func (s *Service) ResolveScopes(ctx context.Context, client *Client, requested string) (clientscope.Snapshot, error) {
	names, unknown := ResolveScopeNames(client, requested)
	if len(unknown) > 0 && s.unknownScopePolicy == UnknownScopeReject {
		return clientscope.Snapshot{}, NewError(ErrInvalidScope, "unknown scope: "+strings.Join(unknown, " "))
	}

	scopes, err := s.scopes.Lookup(ctx, names)
	if err != nil {
		return clientscope.Snapshot{}, NewError(ErrServerError, "failed to resolve scopes")
	}
	return clientscope.NewSnapshot(scopes, client.FullScopeAllowed), nil
}
