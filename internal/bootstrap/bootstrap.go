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

// Package bootstrap provisions scopes, roles, clients and users from a seed
// document. Applying a seed twice creates nothing new.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/opentrusty/tokenscope/internal/audit"
	"github.com/opentrusty/tokenscope/internal/authz"
	"github.com/opentrusty/tokenscope/internal/clientscope"
	"github.com/opentrusty/tokenscope/internal/identity"
	"github.com/opentrusty/tokenscope/internal/oauth2"
	"github.com/opentrusty/tokenscope/internal/observability/logger"
)

// Service applies seed documents through the domain services so that every
// validation and audit record of the normal write path applies.
type Service struct {
	catalog *clientscope.Catalog
	clients *oauth2.Service
	users   *identity.Service
	roles   *authz.Service
}

// NewService creates a new bootstrap service
func NewService(catalog *clientscope.Catalog, clients *oauth2.Service, users *identity.Service, roles *authz.Service) *Service {
	return &Service{catalog: catalog, clients: clients, users: users, roles: roles}
}

// Result counts the records created by Apply.
type Result struct {
	Scopes  int
	Roles   int
	Clients int
	Users   int
}

// Apply provisions everything in seed that does not exist yet. Existing
// scopes get their seeded attributes and role mappings; existing clients and
// users are left alone apart from missing role assignments.
func (s *Service) Apply(ctx context.Context, seed *Seed) (*Result, error) {
	res := &Result{}

	if seed.Builtins {
		if err := s.catalog.EnsureBuiltins(ctx); err != nil {
			return nil, err
		}
	}

	for _, r := range seed.Roles {
		_, err := s.roles.CreateRole(ctx, r.Client, r.Name, r.Description)
		switch {
		case err == nil:
			res.Roles++
		case errors.Is(err, authz.ErrRoleAlreadyExists):
		default:
			return nil, fmt.Errorf("role %s: %w", authz.ClientRole(r.Client, r.Name), err)
		}
	}

	for _, sc := range seed.Scopes {
		created, err := s.applyScope(ctx, sc)
		if err != nil {
			return nil, fmt.Errorf("scope %s: %w", sc.Name, err)
		}
		if created {
			res.Scopes++
		}
	}

	for _, c := range seed.Clients {
		created, err := s.applyClient(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("client %s: %w", c.ClientID, err)
		}
		if created {
			res.Clients++
		}
	}

	for _, u := range seed.Users {
		created, err := s.applyUser(ctx, u)
		if err != nil {
			return nil, fmt.Errorf("user %s: %w", u.Username, err)
		}
		if created {
			res.Users++
		}
	}

	slog.InfoContext(ctx, "seed applied",
		logger.Component("bootstrap"),
		slog.Int("scopes", res.Scopes),
		slog.Int("roles", res.Roles),
		slog.Int("clients", res.Clients),
		slog.Int("users", res.Users),
	)
	return res, nil
}

func (s *Service) applyScope(ctx context.Context, sc ScopeSeed) (bool, error) {
	existing, err := s.catalog.Get(ctx, sc.Name)
	created := false
	switch {
	case errors.Is(err, clientscope.ErrScopeNotFound):
		scope := &clientscope.ClientScope{
			Name:        sc.Name,
			Description: sc.Description,
			Attributes:  clientscope.AttributesFromMap(sc.Attributes),
			Mappings:    sc.Mappings,
		}
		overlayAttributes(&scope.Attributes, sc)
		if err := s.catalog.Register(ctx, scope); err != nil {
			return false, err
		}
		created = true
	case err != nil:
		return false, err
	default:
		changed := false
		if len(sc.Attributes) > 0 {
			m := existing.Attributes.Map()
			for k, v := range sc.Attributes {
				m[k] = v
			}
			existing.Attributes = clientscope.AttributesFromMap(m)
			changed = true
		}
		if sc.ConsentRequired != nil || sc.ConsentText != "" {
			overlayAttributes(&existing.Attributes, sc)
			changed = true
		}
		if sc.Description != "" {
			existing.Description = sc.Description
			changed = true
		}
		if len(sc.Mappings) > 0 {
			existing.Mappings = sc.Mappings
			changed = true
		}
		if changed {
			if err := s.catalog.Update(ctx, existing); err != nil {
				return false, err
			}
		}
	}

	for _, role := range sc.Roles {
		if err := s.catalog.AddRoleMapping(ctx, sc.Name, authz.ParseRoleRef(role)); err != nil {
			return false, err
		}
	}
	return created, nil
}

func overlayAttributes(a *clientscope.Attributes, sc ScopeSeed) {
	if sc.ConsentRequired != nil {
		a.ConsentRequired = *sc.ConsentRequired
	}
	if sc.ConsentText != "" {
		a.ConsentText = sc.ConsentText
	}
}

func (s *Service) applyClient(ctx context.Context, c ClientSeed) (bool, error) {
	if _, err := s.clients.GetClient(ctx, c.ClientID); err == nil {
		return false, nil
	} else if !errors.Is(err, oauth2.ErrClientNotFound) {
		return false, err
	}

	err := s.clients.CreateClient(ctx, &oauth2.Client{
		ClientID:               c.ClientID,
		ClientName:             c.Name,
		RedirectURIs:           c.RedirectURIs,
		GrantTypes:             c.GrantTypes,
		DefaultScopes:          c.DefaultScopes,
		OptionalScopes:         c.OptionalScopes,
		FullScopeAllowed:       c.FullScopeAllowed,
		ConsentRequired:        c.ConsentRequired,
		DisplayOnConsentScreen: c.DisplayOnConsentScreen,
		ConsentScreenText:      c.ConsentText,
		RefreshTokenLifetime:   c.RefreshTokenLifetime,
		IsActive:               true,
	}, c.Secret)
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) applyUser(ctx context.Context, u UserSeed) (bool, error) {
	user, err := s.users.GetByUsername(ctx, u.Username)
	created := false
	switch {
	case errors.Is(err, identity.ErrUserNotFound):
		user = &identity.User{
			Username:      u.Username,
			Email:         u.Email,
			EmailVerified: u.EmailVerified,
			Profile:       u.Profile,
			Attributes:    u.Attributes,
		}
		if err := s.users.CreateUser(ctx, user); err != nil {
			return false, err
		}
		if u.Password != "" {
			if err := s.users.AddPassword(ctx, user.ID, u.Password); err != nil {
				return false, err
			}
		}
		created = true
	case err != nil:
		return false, err
	}

	for _, role := range u.Roles {
		err := s.roles.AssignRole(ctx, user.ID, authz.ParseRoleRef(role), audit.ActorSystem)
		if err != nil && !errors.Is(err, authz.ErrAssignmentAlreadyExists) {
			return false, fmt.Errorf("role %s: %w", role, err)
		}
	}
	return created, nil
}
