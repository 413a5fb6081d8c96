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
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opentrusty/tokenscope/internal/audit"
	"github.com/opentrusty/tokenscope/internal/authz"
	"github.com/opentrusty/tokenscope/internal/id"
)

// Catalog is the administrable registry of client scopes.
type Catalog struct {
	repo        Repository
	auditLogger audit.Logger
}

// NewCatalog creates a new scope catalog
func NewCatalog(repo Repository, auditLogger audit.Logger) *Catalog {
	return &Catalog{repo: repo, auditLogger: auditLogger}
}

// Register validates and stores a new scope.
func (c *Catalog) Register(ctx context.Context, scope *ClientScope) error {
	if scope.Protocol == "" {
		scope.Protocol = ProtocolOIDC
	}
	if err := scope.Validate(); err != nil {
		return err
	}

	now := time.Now()
	scope.ID = id.NewUUIDv7()
	scope.CreatedAt = now
	scope.UpdatedAt = now
	if err := c.repo.Create(ctx, scope); err != nil {
		return err
	}

	c.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeScopeRegistered,
		ActorID:  audit.ActorSystem,
		Resource: audit.ResourceScope,
		Metadata: map[string]any{audit.AttrScope: scope.Name},
	})
	return nil
}

// Get retrieves a scope by name
func (c *Catalog) Get(ctx context.Context, name string) (*ClientScope, error) {
	return c.repo.GetByName(ctx, name)
}

// Update replaces the attributes and mappings of an existing scope. Tokens
// already issued keep the snapshot taken at their authorization.
func (c *Catalog) Update(ctx context.Context, scope *ClientScope) error {
	existing, err := c.repo.GetByName(ctx, scope.Name)
	if err != nil {
		return err
	}
	if scope.Protocol == "" {
		scope.Protocol = existing.Protocol
	}
	if err := scope.Validate(); err != nil {
		return err
	}
	scope.ID = existing.ID
	scope.Position = existing.Position
	scope.CreatedAt = existing.CreatedAt
	scope.UpdatedAt = time.Now()
	return c.repo.Update(ctx, scope)
}

// Delete removes a scope by name
func (c *Catalog) Delete(ctx context.Context, name string) error {
	return c.repo.Delete(ctx, name)
}

// List returns all scopes in registration order
func (c *Catalog) List(ctx context.Context) ([]*ClientScope, error) {
	return c.repo.List(ctx)
}

// Lookup returns the registered scopes among names in registration order.
// Names that are not registered are skipped.
func (c *Catalog) Lookup(ctx context.Context, names []string) ([]*ClientScope, error) {
	if len(names) == 0 {
		return nil, nil
	}
	scopes, err := c.repo.ListByNames(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("failed to look up scopes: %w", err)
	}
	return scopes, nil
}

// AddRoleMapping binds a role to a scope. Adding an existing mapping is a no-op.
func (c *Catalog) AddRoleMapping(ctx context.Context, scopeName string, ref authz.RoleRef) error {
	scope, err := c.repo.GetByName(ctx, scopeName)
	if err != nil {
		return err
	}
	if scope.HasRole(ref) {
		return nil
	}
	scope.Roles = append(scope.Roles, ref)
	authz.SortRoles(scope.Roles)
	scope.UpdatedAt = time.Now()
	return c.repo.Update(ctx, scope)
}

// RemoveRoleMapping unbinds a role from a scope.
func (c *Catalog) RemoveRoleMapping(ctx context.Context, scopeName string, ref authz.RoleRef) error {
	scope, err := c.repo.GetByName(ctx, scopeName)
	if err != nil {
		return err
	}
	kept := scope.Roles[:0]
	for _, r := range scope.Roles {
		if r != ref {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(scope.Roles) {
		return ErrRoleMappingNotFound
	}
	scope.Roles = kept
	scope.UpdatedAt = time.Now()
	return c.repo.Update(ctx, scope)
}

// EnsureBuiltins registers every built-in scope that is not yet present.
func (c *Catalog) EnsureBuiltins(ctx context.Context) error {
	for _, scope := range Builtins() {
		_, err := c.repo.GetByName(ctx, scope.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrScopeNotFound) {
			return err
		}
		if err := c.Register(ctx, scope); err != nil && !errors.Is(err, ErrScopeAlreadyExists) {
			return fmt.Errorf("failed to register built-in scope %s: %w", scope.Name, err)
		}
	}
	return nil
}
