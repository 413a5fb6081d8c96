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
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/opentrusty/tokenscope/internal/audit"
	"github.com/opentrusty/tokenscope/internal/id"
)

// Service manages roles and their assignment to users
type Service struct {
	roleRepo       RoleRepository
	assignmentRepo AssignmentRepository
	auditLogger    audit.Logger
}

// NewService creates a new authorization service
func NewService(roleRepo RoleRepository, assignmentRepo AssignmentRepository, auditLogger audit.Logger) *Service {
	return &Service{
		roleRepo:       roleRepo,
		assignmentRepo: assignmentRepo,
		auditLogger:    auditLogger,
	}
}

// CreateRole registers a realm role or, when clientID is set, a client role.
func (s *Service) CreateRole(ctx context.Context, clientID, name, description string) (*Role, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, "/ ") {
		return nil, ErrInvalidRoleName
	}

	role := &Role{
		ID:          id.NewUUIDv7(),
		ClientID:    clientID,
		Name:        name,
		Description: description,
		CreatedAt:   time.Now(),
	}
	if err := s.roleRepo.Create(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// GetRole retrieves a role by reference
func (s *Service) GetRole(ctx context.Context, ref RoleRef) (*Role, error) {
	return s.roleRepo.Get(ctx, ref)
}

// AssignRole grants an existing role to a user
func (s *Service) AssignRole(ctx context.Context, userID string, ref RoleRef, grantedBy string) error {
	if _, err := s.roleRepo.Get(ctx, ref); err != nil {
		return err
	}

	err := s.assignmentRepo.Grant(ctx, &Assignment{
		UserID:    userID,
		Role:      ref,
		GrantedAt: time.Now(),
		GrantedBy: grantedBy,
	})
	if err != nil {
		return err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeRoleAssigned,
		ActorID:  grantedBy,
		Resource: userID,
		Metadata: map[string]any{audit.AttrRole: ref.String()},
	})
	return nil
}

// RevokeRole removes a role from a user
func (s *Service) RevokeRole(ctx context.Context, userID string, ref RoleRef, revokedBy string) error {
	if err := s.assignmentRepo.Revoke(ctx, userID, ref); err != nil {
		return err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeRoleRevoked,
		ActorID:  revokedBy,
		Resource: userID,
		Metadata: map[string]any{audit.AttrRole: ref.String()},
	})
	return nil
}

// UserRoles returns the full realm and client role set of a user, sorted.
func (s *Service) UserRoles(ctx context.Context, userID string) ([]RoleRef, error) {
	roles, err := s.assignmentRepo.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user roles: %w", err)
	}
	SortRoles(roles)
	return roles, nil
}
