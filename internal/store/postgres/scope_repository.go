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

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/opentrusty/tokenscope/internal/authz"
	"github.com/opentrusty/tokenscope/internal/clientscope"
)

// ScopeRepository implements clientscope.Repository
type ScopeRepository struct {
	db *DB
}

// NewScopeRepository creates a new client scope repository
func NewScopeRepository(db *DB) *ScopeRepository {
	return &ScopeRepository{db: db}
}

const scopeColumns = `id, name, protocol, description, attributes, mappings, roles, position, created_at, updated_at`

func scanScope(row pgx.Row) (*clientscope.ClientScope, error) {
	var sc clientscope.ClientScope
	err := row.Scan(
		&sc.ID, &sc.Name, &sc.Protocol, &sc.Description,
		&sc.Attributes, &sc.Mappings, &sc.Roles,
		&sc.Position, &sc.CreatedAt, &sc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sc, nil
}

func mappingsOrEmpty(m []clientscope.ClaimMapping) []clientscope.ClaimMapping {
	if m == nil {
		return []clientscope.ClaimMapping{}
	}
	return m
}

func rolesOrEmpty(r []authz.RoleRef) []authz.RoleRef {
	if r == nil {
		return []authz.RoleRef{}
	}
	return r
}

// Create stores a new scope and assigns its Position
func (r *ScopeRepository) Create(ctx context.Context, sc *clientscope.ClientScope) error {
	err := r.db.pool.QueryRow(ctx, `
		INSERT INTO client_scopes (id, name, protocol, description, attributes, mappings, roles, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING position
	`,
		sc.ID, sc.Name, sc.Protocol, sc.Description,
		sc.Attributes, mappingsOrEmpty(sc.Mappings), rolesOrEmpty(sc.Roles),
		sc.CreatedAt, sc.UpdatedAt,
	).Scan(&sc.Position)
	if err != nil {
		if isUniqueViolation(err) {
			return clientscope.ErrScopeAlreadyExists
		}
		return fmt.Errorf("failed to create client scope: %w", err)
	}
	return nil
}

// GetByName retrieves a scope by name
func (r *ScopeRepository) GetByName(ctx context.Context, name string) (*clientscope.ClientScope, error) {
	sc, err := scanScope(r.db.pool.QueryRow(ctx, `SELECT `+scopeColumns+` FROM client_scopes WHERE name = $1`, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, clientscope.ErrScopeNotFound
		}
		return nil, fmt.Errorf("failed to get client scope: %w", err)
	}
	return sc, nil
}

// Update replaces attributes, mappings and role mappings of a scope
func (r *ScopeRepository) Update(ctx context.Context, sc *clientscope.ClientScope) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE client_scopes SET
			protocol = $2, description = $3, attributes = $4, mappings = $5, roles = $6, updated_at = $7
		WHERE name = $1
	`,
		sc.Name, sc.Protocol, sc.Description,
		sc.Attributes, mappingsOrEmpty(sc.Mappings), rolesOrEmpty(sc.Roles), sc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update client scope: %w", err)
	}
	if result.RowsAffected() == 0 {
		return clientscope.ErrScopeNotFound
	}
	return nil
}

// Delete removes a scope
func (r *ScopeRepository) Delete(ctx context.Context, name string) error {
	result, err := r.db.pool.Exec(ctx, `DELETE FROM client_scopes WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("failed to delete client scope: %w", err)
	}
	if result.RowsAffected() == 0 {
		return clientscope.ErrScopeNotFound
	}
	return nil
}

// List returns all scopes ordered by Position
func (r *ScopeRepository) List(ctx context.Context) ([]*clientscope.ClientScope, error) {
	return r.query(ctx, `SELECT `+scopeColumns+` FROM client_scopes ORDER BY position`)
}

// ListByNames returns the scopes that exist among names, ordered by Position
func (r *ScopeRepository) ListByNames(ctx context.Context, names []string) ([]*clientscope.ClientScope, error) {
	if len(names) == 0 {
		return nil, nil
	}
	return r.query(ctx, `SELECT `+scopeColumns+` FROM client_scopes WHERE name = ANY($1) ORDER BY position`, names)
}

func (r *ScopeRepository) query(ctx context.Context, sql string, args ...any) ([]*clientscope.ClientScope, error) {
	rows, err := r.db.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list client scopes: %w", err)
	}
	defer rows.Close()

	var scopes []*clientscope.ClientScope
	for rows.Next() {
		sc, err := scanScope(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan client scope: %w", err)
		}
		scopes = append(scopes, sc)
	}
	return scopes, rows.Err()
}
