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

package memory

import (
	"context"
	"sort"

	"github.com/opentrusty/tokenscope/internal/authz"
	"github.com/opentrusty/tokenscope/internal/clientscope"
	"github.com/opentrusty/tokenscope/internal/oauth2"
)

// RoleRepository implements authz.RoleRepository
type RoleRepository struct{ s *Store }

func (r *RoleRepository) Create(ctx context.Context, role *authz.Role) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.roles[role.Ref()]; ok {
		return authz.ErrRoleAlreadyExists
	}
	cp := *role
	r.s.roles[role.Ref()] = &cp
	return nil
}

func (r *RoleRepository) Get(ctx context.Context, ref authz.RoleRef) (*authz.Role, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	role, ok := r.s.roles[ref]
	if !ok {
		return nil, authz.ErrRoleNotFound
	}
	cp := *role
	return &cp, nil
}

func (r *RoleRepository) List(ctx context.Context) ([]*authz.Role, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*authz.Role, 0, len(r.s.roles))
	for _, role := range r.s.roles {
		cp := *role
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref().String() < out[j].Ref().String() })
	return out, nil
}

// AssignmentRepository implements authz.AssignmentRepository
type AssignmentRepository struct{ s *Store }

func (r *AssignmentRepository) Grant(ctx context.Context, a *authz.Assignment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	byRole, ok := r.s.assignments[a.UserID]
	if !ok {
		byRole = make(map[authz.RoleRef]*authz.Assignment)
		r.s.assignments[a.UserID] = byRole
	}
	if _, ok := byRole[a.Role]; ok {
		return authz.ErrAssignmentAlreadyExists
	}
	cp := *a
	byRole[a.Role] = &cp
	return nil
}

func (r *AssignmentRepository) Revoke(ctx context.Context, userID string, ref authz.RoleRef) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	byRole := r.s.assignments[userID]
	if _, ok := byRole[ref]; !ok {
		return authz.ErrAssignmentNotFound
	}
	delete(byRole, ref)
	return nil
}

func (r *AssignmentRepository) ListForUser(ctx context.Context, userID string) ([]authz.RoleRef, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]authz.RoleRef, 0, len(r.s.assignments[userID]))
	for ref := range r.s.assignments[userID] {
		out = append(out, ref)
	}
	return out, nil
}

// ScopeRepository implements clientscope.Repository
type ScopeRepository struct{ s *Store }

func cloneScope(sc *clientscope.ClientScope) *clientscope.ClientScope {
	cp := *sc
	cp.Mappings = append([]clientscope.ClaimMapping(nil), sc.Mappings...)
	cp.Roles = append([]authz.RoleRef(nil), sc.Roles...)
	if sc.Attributes.Extra != nil {
		cp.Attributes.Extra = make(map[string]string, len(sc.Attributes.Extra))
		for k, v := range sc.Attributes.Extra {
			cp.Attributes.Extra[k] = v
		}
	}
	return &cp
}

func (r *ScopeRepository) Create(ctx context.Context, sc *clientscope.ClientScope) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.scopes[sc.Name]; ok {
		return clientscope.ErrScopeAlreadyExists
	}
	r.s.scopeSeq++
	sc.Position = r.s.scopeSeq
	r.s.scopes[sc.Name] = cloneScope(sc)
	return nil
}

func (r *ScopeRepository) GetByName(ctx context.Context, name string) (*clientscope.ClientScope, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	sc, ok := r.s.scopes[name]
	if !ok {
		return nil, clientscope.ErrScopeNotFound
	}
	return cloneScope(sc), nil
}

func (r *ScopeRepository) Update(ctx context.Context, sc *clientscope.ClientScope) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.scopes[sc.Name]; !ok {
		return clientscope.ErrScopeNotFound
	}
	r.s.scopes[sc.Name] = cloneScope(sc)
	return nil
}

func (r *ScopeRepository) Delete(ctx context.Context, name string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.scopes[name]; !ok {
		return clientscope.ErrScopeNotFound
	}
	delete(r.s.scopes, name)
	return nil
}

func (r *ScopeRepository) List(ctx context.Context) ([]*clientscope.ClientScope, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*clientscope.ClientScope, 0, len(r.s.scopes))
	for _, sc := range r.s.scopes {
		out = append(out, cloneScope(sc))
	}
	sortByPosition(out)
	return out, nil
}

func (r *ScopeRepository) ListByNames(ctx context.Context, names []string) ([]*clientscope.ClientScope, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	seen := make(map[string]struct{}, len(names))
	out := make([]*clientscope.ClientScope, 0, len(names))
	for _, name := range names {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		if sc, ok := r.s.scopes[name]; ok {
			out = append(out, cloneScope(sc))
		}
	}
	sortByPosition(out)
	return out, nil
}

func sortByPosition(scopes []*clientscope.ClientScope) {
	sort.Slice(scopes, func(i, j int) bool { return scopes[i].Position < scopes[j].Position })
}

// ClientRepository implements oauth2.ClientRepository
type ClientRepository struct{ s *Store }

func cloneClient(c *oauth2.Client) *oauth2.Client {
	cp := *c
	cp.RedirectURIs = append([]string(nil), c.RedirectURIs...)
	cp.GrantTypes = append([]string(nil), c.GrantTypes...)
	cp.DefaultScopes = append([]string(nil), c.DefaultScopes...)
	cp.OptionalScopes = append([]string(nil), c.OptionalScopes...)
	return &cp
}

func (r *ClientRepository) Create(ctx context.Context, c *oauth2.Client) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.clients[c.ClientID]; ok {
		return oauth2.ErrClientAlreadyExists
	}
	r.s.clients[c.ClientID] = cloneClient(c)
	return nil
}

func (r *ClientRepository) GetByClientID(ctx context.Context, clientID string) (*oauth2.Client, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.clients[clientID]
	if !ok {
		return nil, oauth2.ErrClientNotFound
	}
	return cloneClient(c), nil
}

func (r *ClientRepository) Update(ctx context.Context, c *oauth2.Client) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.clients[c.ClientID]; !ok {
		return oauth2.ErrClientNotFound
	}
	r.s.clients[c.ClientID] = cloneClient(c)
	return nil
}

func (r *ClientRepository) Delete(ctx context.Context, clientID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.clients[clientID]; !ok {
		return oauth2.ErrClientNotFound
	}
	delete(r.s.clients, clientID)
	return nil
}

func (r *ClientRepository) List(ctx context.Context) ([]*oauth2.Client, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*oauth2.Client, 0, len(r.s.clients))
	for _, c := range r.s.clients {
		out = append(out, cloneClient(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out, nil
}
