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

package authz_test

import (
	"context"
	"testing"

	"github.com/opentrusty/tokenscope/internal/audit"
	"github.com/opentrusty/tokenscope/internal/authz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockRoleRepository implements authz.RoleRepository for testing
type MockRoleRepository struct {
	roles map[string]*authz.Role
}

func NewMockRoleRepository() *MockRoleRepository {
	return &MockRoleRepository{roles: make(map[string]*authz.Role)}
}

func (m *MockRoleRepository) Create(ctx context.Context, role *authz.Role) error {
	key := role.Ref().String()
	if _, ok := m.roles[key]; ok {
		return authz.ErrRoleAlreadyExists
	}
	m.roles[key] = role
	return nil
}

func (m *MockRoleRepository) Get(ctx context.Context, ref authz.RoleRef) (*authz.Role, error) {
	r, ok := m.roles[ref.String()]
	if !ok {
		return nil, authz.ErrRoleNotFound
	}
	return r, nil
}

func (m *MockRoleRepository) List(ctx context.Context) ([]*authz.Role, error) {
	out := make([]*authz.Role, 0, len(m.roles))
	for _, r := range m.roles {
		out = append(out, r)
	}
	return out, nil
}

// MockAssignmentRepository implements authz.AssignmentRepository for testing
type MockAssignmentRepository struct {
	byUser map[string][]authz.RoleRef
}

func (m *MockAssignmentRepository) Grant(ctx context.Context, a *authz.Assignment) error {
	for _, r := range m.byUser[a.UserID] {
		if r == a.Role {
			return authz.ErrAssignmentAlreadyExists
		}
	}
	m.byUser[a.UserID] = append(m.byUser[a.UserID], a.Role)
	return nil
}

func (m *MockAssignmentRepository) Revoke(ctx context.Context, userID string, ref authz.RoleRef) error {
	roles := m.byUser[userID]
	for i, r := range roles {
		if r == ref {
			m.byUser[userID] = append(roles[:i], roles[i+1:]...)
			return nil
		}
	}
	return authz.ErrAssignmentNotFound
}

func (m *MockAssignmentRepository) ListForUser(ctx context.Context, userID string) ([]authz.RoleRef, error) {
	return append([]authz.RoleRef(nil), m.byUser[userID]...), nil
}

func newService() *authz.Service {
	return authz.NewService(
		NewMockRoleRepository(),
		&MockAssignmentRepository{byUser: make(map[string][]authz.RoleRef)},
		audit.NewSlogLogger(),
	)
}

// TestPurpose: Validates that role references round-trip between their string and value forms.
// Scope: Unit Test
// Security: Role identity stability inside token snapshots
// Expected: "role-1" is a realm role; "account/view-profile" is a client role of "account".
func TestAuthz_ParseRoleRef(t *testing.T) {
	realm := authz.ParseRoleRef("role-1")
	assert.True(t, realm.IsRealm())
	assert.Equal(t, "role-1", realm.String())

	client := authz.ParseRoleRef("account/view-profile")
	assert.Equal(t, authz.ClientRole("account", "view-profile"), client)
	assert.Equal(t, "account/view-profile", client.String())
}

// TestPurpose: Ensures roles can only be assigned once they exist.
// Scope: Unit Test
// Security: Prevents granting phantom roles that later appear in tokens
// Expected: ErrRoleNotFound for an unknown role; success after creation.
func TestAuthz_AssignRole_RequiresExistingRole(t *testing.T) {
	ctx := context.Background()
	svc := newService()

	err := svc.AssignRole(ctx, "user-1", authz.RealmRole("role-1"), "admin")
	assert.ErrorIs(t, err, authz.ErrRoleNotFound)

	_, err = svc.CreateRole(ctx, "", "role-1", "")
	require.NoError(t, err)
	require.NoError(t, svc.AssignRole(ctx, "user-1", authz.RealmRole("role-1"), "admin"))

	roles, err := svc.UserRoles(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, []authz.RoleRef{authz.RealmRole("role-1")}, roles)
}

// TestPurpose: Verifies that role names containing separators are rejected.
// Scope: Unit Test
// Security: Role reference parsing must be unambiguous
// Expected: ErrInvalidRoleName for "a/b" and empty names.
func TestAuthz_CreateRole_RejectsInvalidNames(t *testing.T) {
	svc := newService()
	for _, name := range []string{"", "  ", "a/b", "two words"} {
		_, err := svc.CreateRole(context.Background(), "", name, "")
		assert.ErrorIs(t, err, authz.ErrInvalidRoleName, name)
	}
}

// TestPurpose: Confirms user roles are returned in a stable order with realm roles first.
// Scope: Unit Test
// Expected: realm roles precede client roles; each group sorted by name.
func TestAuthz_UserRoles_Sorted(t *testing.T) {
	ctx := context.Background()
	svc := newService()

	for _, ref := range []authz.RoleRef{
		authz.ClientRole("account", "view-profile"),
		authz.RealmRole("role-2"),
		authz.RealmRole("role-1"),
	} {
		_, err := svc.CreateRole(ctx, ref.ClientID, ref.Name, "")
		require.NoError(t, err)
		require.NoError(t, svc.AssignRole(ctx, "john", ref, "seed"))
	}

	roles, err := svc.UserRoles(ctx, "john")
	require.NoError(t, err)
	assert.Equal(t, []authz.RoleRef{
		authz.RealmRole("role-1"),
		authz.RealmRole("role-2"),
		authz.ClientRole("account", "view-profile"),
	}, roles)

	require.NoError(t, svc.RevokeRole(ctx, "john", authz.RealmRole("role-2"), "admin"))
	roles, err = svc.UserRoles(ctx, "john")
	require.NoError(t, err)
	assert.Len(t, roles, 2)
}
