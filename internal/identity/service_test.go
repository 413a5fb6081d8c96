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

package identity

import (
	"context"
	"testing"
	"time"

	"github.com/opentrusty/tokenscope/internal/audit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockUserRepository is a simple in-memory implementation of UserRepository
type MockUserRepository struct {
	users       map[string]*User
	credentials map[string]*Credentials
}

func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{
		users:       make(map[string]*User),
		credentials: make(map[string]*Credentials),
	}
}

func (m *MockUserRepository) Create(ctx context.Context, user *User) error {
	m.users[user.ID] = user
	return nil
}

func (m *MockUserRepository) AddCredentials(ctx context.Context, credentials *Credentials) error {
	m.credentials[credentials.UserID] = credentials
	return nil
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*User, error) {
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *MockUserRepository) Update(ctx context.Context, user *User) error {
	m.users[user.ID] = user
	return nil
}

func (m *MockUserRepository) UpdateLockout(ctx context.Context, userID string, failedAttempts int, lockedUntil *time.Time) error {
	u, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.FailedLoginAttempts = failedAttempts
	u.LockedUntil = lockedUntil
	return nil
}

func (m *MockUserRepository) GetCredentials(ctx context.Context, userID string) (*Credentials, error) {
	c, ok := m.credentials[userID]
	if !ok {
		return nil, ErrInvalidCredentials
	}
	return c, nil
}

func newTestService(repo UserRepository) *Service {
	hasher := NewPasswordHasher(1024, 1, 1, 16, 32)
	return NewService(repo, hasher, audit.NopLogger{}, 3, time.Minute)
}

// TestPurpose: Validates that Argon2id hashes verify only for the original password.
// Scope: Unit Test
// Security: Credential storage (CWE-916)
// Expected: Verify returns true for the right password and false otherwise.
func TestIdentity_PasswordHasher_HashAndVerify(t *testing.T) {
	h := NewPasswordHasher(1024, 1, 1, 16, 32)

	encoded, err := h.Hash("password")
	require.NoError(t, err)
	assert.Contains(t, encoded, "$argon2id$v=19$")

	ok, err := h.Verify("password", encoded)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("wrong-password", encoded)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = h.Verify("password", "$bcrypt$garbage")
	assert.Error(t, err)
}

// TestPurpose: Verifies username/password authentication and lockout after repeated failures.
// Scope: Unit Test
// Security: Brute-force protection (CWE-307)
// Expected: Third wrong password locks the account; correct password is then refused with ErrAccountLocked.
func TestIdentity_Authenticate_Lockout(t *testing.T) {
	ctx := context.Background()
	repo := NewMockUserRepository()
	svc := newTestService(repo)

	user := &User{Username: "John", Email: "john@email.cz"}
	require.NoError(t, svc.CreateUser(ctx, user))
	assert.Equal(t, "john", user.Username)
	require.NoError(t, svc.AddPassword(ctx, user.ID, "password"))

	got, err := svc.Authenticate(ctx, "john", "password")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	for i := 0; i < 3; i++ {
		_, err = svc.Authenticate(ctx, "john", "bad-password")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}

	_, err = svc.Authenticate(ctx, "john", "password")
	assert.ErrorIs(t, err, ErrAccountLocked)
}

// TestPurpose: Ensures duplicate usernames and weak passwords are rejected.
// Scope: Unit Test
// Expected: ErrUserAlreadyExists and ErrWeakPassword respectively.
func TestIdentity_CreateUser_Validation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(NewMockUserRepository())

	require.NoError(t, svc.CreateUser(ctx, &User{Username: "john"}))
	assert.ErrorIs(t, svc.CreateUser(ctx, &User{Username: "JOHN"}), ErrUserAlreadyExists)
	assert.ErrorIs(t, svc.CreateUser(ctx, &User{Username: "  "}), ErrInvalidUsername)

	u, err := svc.GetByUsername(ctx, "john")
	require.NoError(t, err)
	assert.ErrorIs(t, svc.AddPassword(ctx, u.ID, "short"), ErrWeakPassword)
}

// TestPurpose: Verifies property and attribute lookups used by claim mappings.
// Scope: Unit Test
// Expected: Built-in properties resolve; empty values and unknown names report absence.
func TestIdentity_User_PropertiesAndAttributes(t *testing.T) {
	ctx := context.Background()
	repo := NewMockUserRepository()
	svc := newTestService(repo)

	user := &User{
		Username:      "john",
		Email:         "john@email.cz",
		EmailVerified: true,
		Profile:       Profile{GivenName: "John", FamilyName: "Doe"},
	}
	require.NoError(t, svc.CreateUser(ctx, user))
	require.NoError(t, svc.SetAttribute(ctx, user.ID, "street", "Elm 5"))

	v, ok := user.Property(PropertyUsername)
	assert.True(t, ok)
	assert.Equal(t, "john", v)

	v, ok = user.Property(PropertyEmailVerified)
	assert.True(t, ok)
	assert.Equal(t, true, v)

	_, ok = user.Property(PropertyLocale)
	assert.False(t, ok)
	_, ok = user.Property("shoeSize")
	assert.False(t, ok)

	assert.Equal(t, "John Doe", user.FullName())

	street, ok := user.Attribute("street")
	assert.True(t, ok)
	assert.Equal(t, "Elm 5", street)

	require.NoError(t, svc.SetAttribute(ctx, user.ID, "street"))
	_, ok = user.Attribute("street")
	assert.False(t, ok)
}
