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
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opentrusty/tokenscope/internal/audit"
	"github.com/opentrusty/tokenscope/internal/id"
)

// Service provides identity-related business logic
type Service struct {
	repo               UserRepository
	hasher             *PasswordHasher
	auditLogger        audit.Logger
	lockoutMaxAttempts int
	lockoutDuration    time.Duration
}

// NewService creates a new identity service
func NewService(
	repo UserRepository,
	hasher *PasswordHasher,
	auditLogger audit.Logger,
	lockoutMaxAttempts int,
	lockoutDuration time.Duration,
) *Service {
	return &Service{
		repo:               repo,
		hasher:             hasher,
		auditLogger:        auditLogger,
		lockoutMaxAttempts: lockoutMaxAttempts,
		lockoutDuration:    lockoutDuration,
	}
}

// CreateUser provisions a user without credentials.
func (s *Service) CreateUser(ctx context.Context, user *User) error {
	user.Username = normalizeUsername(user.Username)
	if user.Username == "" || len(user.Username) > 255 {
		return ErrInvalidUsername
	}

	if _, err := s.repo.GetByUsername(ctx, user.Username); err == nil {
		return ErrUserAlreadyExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return fmt.Errorf("failed to check username: %w", err)
	}

	if user.ID == "" {
		user.ID = id.NewUUIDv7()
	}
	if user.Attributes == nil {
		user.Attributes = make(map[string][]string)
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	if err := s.repo.Create(ctx, user); err != nil {
		return fmt.Errorf("failed to create identity: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeUserCreated,
		ActorID:  user.ID,
		Resource: user.Username,
	})
	return nil
}

// AddPassword adds a password credential to an existing user
func (s *Service) AddPassword(ctx context.Context, userID, password string) error {
	if !isStrongPassword(password) {
		return ErrWeakPassword
	}

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	credentials := &Credentials{
		UserID:       userID,
		PasswordHash: passwordHash,
		UpdatedAt:    time.Now(),
	}
	if err := s.repo.AddCredentials(ctx, credentials); err != nil {
		return fmt.Errorf("failed to add credentials: %w", err)
	}
	return nil
}

// Authenticate checks a username and password. Every failure is reported
// as ErrInvalidCredentials except a locked account.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*User, error) {
	user, err := s.repo.GetByUsername(ctx, normalizeUsername(username))
	if err != nil {
		s.loginFailed(ctx, "", "user_not_found", 0)
		return nil, ErrInvalidCredentials
	}
	if user.IsLocked() {
		s.loginFailed(ctx, user.ID, "locked_out", user.FailedLoginAttempts)
		return nil, ErrAccountLocked
	}

	credentials, err := s.repo.GetCredentials(ctx, user.ID)
	if err != nil {
		s.loginFailed(ctx, user.ID, "no_credentials", user.FailedLoginAttempts)
		return nil, ErrInvalidCredentials
	}
	if valid, err := s.hasher.Verify(password, credentials.PasswordHash); err != nil || !valid {
		s.recordBadPassword(ctx, user)
		return nil, ErrInvalidCredentials
	}

	if user.FailedLoginAttempts > 0 || user.LockedUntil != nil {
		_ = s.repo.UpdateLockout(ctx, user.ID, 0, nil)
		user.FailedLoginAttempts = 0
		user.LockedUntil = nil
	}
	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeLoginSuccess,
		ActorID:  user.ID,
		Resource: audit.ResourceLogin,
	})
	return user, nil
}

// recordBadPassword counts a failed attempt and locks the account once the
// configured threshold is reached.
func (s *Service) recordBadPassword(ctx context.Context, user *User) {
	attempts := user.FailedLoginAttempts + 1
	var lockedUntil *time.Time
	if s.lockoutMaxAttempts > 0 && attempts >= s.lockoutMaxAttempts {
		until := time.Now().Add(s.lockoutDuration)
		lockedUntil = &until
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeUserLocked,
			ActorID:  user.ID,
			Resource: audit.ResourceLogin,
			Metadata: map[string]any{audit.AttrAttempts: attempts},
		})
	}
	_ = s.repo.UpdateLockout(ctx, user.ID, attempts, lockedUntil)
	s.loginFailed(ctx, user.ID, "invalid_password", attempts)
}

func (s *Service) loginFailed(ctx context.Context, userID, reason string, attempts int) {
	meta := map[string]any{audit.AttrReason: reason}
	if attempts > 0 {
		meta[audit.AttrAttempts] = attempts
	}
	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeLoginFailed,
		ActorID:  userID,
		Resource: audit.ResourceLogin,
		Metadata: meta,
	})
}

// GetUser retrieves a user by ID
func (s *Service) GetUser(ctx context.Context, userID string) (*User, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetByUsername retrieves a user by login name
func (s *Service) GetByUsername(ctx context.Context, username string) (*User, error) {
	return s.repo.GetByUsername(ctx, normalizeUsername(username))
}

// UpdateProfile updates user profile information
func (s *Service) UpdateProfile(ctx context.Context, userID string, profile Profile) error {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return ErrUserNotFound
	}

	user.Profile = profile
	user.UpdatedAt = time.Now()
	return s.repo.Update(ctx, user)
}

// SetAttribute replaces the values of one custom attribute. No values removes it.
func (s *Service) SetAttribute(ctx context.Context, userID, name string, values ...string) error {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return ErrUserNotFound
	}

	if user.Attributes == nil {
		user.Attributes = make(map[string][]string)
	}
	if len(values) == 0 {
		delete(user.Attributes, name)
	} else {
		user.Attributes[name] = append([]string(nil), values...)
	}
	user.UpdatedAt = time.Now()
	return s.repo.Update(ctx, user)
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
