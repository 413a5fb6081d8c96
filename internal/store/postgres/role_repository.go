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
)

// RoleRepository implements authz.RoleRepository
type RoleRepository struct {
	db *DB
}

// NewRoleRepository creates a new role repository
func NewRoleRepository(db *DB) *RoleRepository {
	return &RoleRepository{db: db}
}

// Create creates a new role
func (r *RoleRepository) Create(ctx context.Context, role *authz.Role) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO roles (id, client_id, name, description, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, role.ID, role.ClientID, role.Name, role.Description, role.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return authz.ErrRoleAlreadyExists
		}
		return fmt.Errorf("failed to create role: %w", err)
	}
	return nil
}

// Get retrieves a role by reference
func (r *RoleRepository) Get(ctx context.Context, ref authz.RoleRef) (*authz.Role, error) {
	var role authz.Role
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, client_id, name, description, created_at
		FROM roles WHERE client_id = $1 AND name = $2
	`, ref.ClientID, ref.Name).Scan(&role.ID, &role.ClientID, &role.Name, &role.Description, &role.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, authz.ErrRoleNotFound
		}
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return &role, nil
}

// List retrieves all roles
func (r *RoleRepository) List(ctx context.Context) ([]*authz.Role, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, client_id, name, description, created_at
		FROM roles ORDER BY client_id, name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []*authz.Role
	for rows.Next() {
		var role authz.Role
		if err := rows.Scan(&role.ID, &role.ClientID, &role.Name, &role.Description, &role.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, &role)
	}
	return roles, rows.Err()
}

// AssignmentRepository implements authz.AssignmentRepository
type AssignmentRepository struct {
	db *DB
}

// NewAssignmentRepository creates a new assignment repository
func NewAssignmentRepository(db *DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// Grant assigns a role to a user
func (r *AssignmentRepository) Grant(ctx context.Context, a *authz.Assignment) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO user_roles (user_id, role_client_id, role_name, granted_at, granted_by)
		VALUES ($1, $2, $3, $4, $5)
	`, a.UserID, a.Role.ClientID, a.Role.Name, a.GrantedAt, a.GrantedBy)
	if err != nil {
		if isUniqueViolation(err) {
			return authz.ErrAssignmentAlreadyExists
		}
		return fmt.Errorf("failed to grant role: %w", err)
	}
	return nil
}

// Revoke removes a role assignment
func (r *AssignmentRepository) Revoke(ctx context.Context, userID string, ref authz.RoleRef) error {
	result, err := r.db.pool.Exec(ctx, `
		DELETE FROM user_roles WHERE user_id = $1 AND role_client_id = $2 AND role_name = $3
	`, userID, ref.ClientID, ref.Name)
	if err != nil {
		return fmt.Errorf("failed to revoke role: %w", err)
	}
	if result.RowsAffected() == 0 {
		return authz.ErrAssignmentNotFound
	}
	return nil
}

// ListForUser retrieves every role assigned to a user
func (r *AssignmentRepository) ListForUser(ctx context.Context, userID string) ([]authz.RoleRef, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT role_client_id, role_name FROM user_roles WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user roles: %w", err)
	}
	defer rows.Close()

	var refs []authz.RoleRef
	for rows.Next() {
		var ref authz.RoleRef
		if err := rows.Scan(&ref.ClientID, &ref.Name); err != nil {
			return nil, fmt.Errorf("failed to scan user role: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}
