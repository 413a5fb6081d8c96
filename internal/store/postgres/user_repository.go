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
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/opentrusty/tokenscope/internal/identity"
)

// UserRepository implements identity.UserRepository
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `
	id, username, email, email_verified,
	given_name, family_name, nickname, picture, locale,
	attributes, failed_login_attempts, locked_until, created_at, updated_at`

func scanUser(row pgx.Row) (*identity.User, error) {
	var user identity.User
	err := row.Scan(
		&user.ID, &user.Username, &user.Email, &user.EmailVerified,
		&user.Profile.GivenName, &user.Profile.FamilyName, &user.Profile.Nickname,
		&user.Profile.Picture, &user.Profile.Locale,
		&user.Attributes, &user.FailedLoginAttempts, &user.LockedUntil, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, identity.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func attributesOrEmpty(attrs map[string][]string) map[string][]string {
	if attrs == nil {
		return map[string][]string{}
	}
	return attrs
}

// Create creates a new user identity
func (r *UserRepository) Create(ctx context.Context, user *identity.User) error {
	now := time.Now()
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO users (
			id, username, email, email_verified,
			given_name, family_name, nickname, picture, locale,
			attributes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		user.ID, user.Username, user.Email, user.EmailVerified,
		user.Profile.GivenName, user.Profile.FamilyName, user.Profile.Nickname,
		user.Profile.Picture, user.Profile.Locale,
		attributesOrEmpty(user.Attributes), now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return identity.ErrUserAlreadyExists
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}

	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

// AddCredentials adds or replaces the credentials of a user
func (r *UserRepository) AddCredentials(ctx context.Context, credentials *identity.Credentials) error {
	now := time.Now()
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO credentials (user_id, password_hash, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET password_hash = EXCLUDED.password_hash, updated_at = EXCLUDED.updated_at
	`, credentials.UserID, credentials.PasswordHash, now)
	if err != nil {
		return fmt.Errorf("failed to insert credentials: %w", err)
	}

	credentials.UpdatedAt = now
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*identity.User, error) {
	return scanUser(r.db.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetByUsername retrieves a user by login name
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*identity.User, error) {
	return scanUser(r.db.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
}

// Update updates user information
func (r *UserRepository) Update(ctx context.Context, user *identity.User) error {
	now := time.Now()
	result, err := r.db.pool.Exec(ctx, `
		UPDATE users SET
			email = $2, email_verified = $3,
			given_name = $4, family_name = $5, nickname = $6, picture = $7, locale = $8,
			attributes = $9, updated_at = $10
		WHERE id = $1
	`,
		user.ID, user.Email, user.EmailVerified,
		user.Profile.GivenName, user.Profile.FamilyName, user.Profile.Nickname,
		user.Profile.Picture, user.Profile.Locale,
		attributesOrEmpty(user.Attributes), now,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return identity.ErrUserNotFound
	}

	user.UpdatedAt = now
	return nil
}

// UpdateLockout updates user lockout status
func (r *UserRepository) UpdateLockout(ctx context.Context, userID string, failedAttempts int, lockedUntil *time.Time) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE users SET failed_login_attempts = $2, locked_until = $3, updated_at = $4
		WHERE id = $1
	`, userID, failedAttempts, lockedUntil, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update lockout: %w", err)
	}
	if result.RowsAffected() == 0 {
		return identity.ErrUserNotFound
	}
	return nil
}

// GetCredentials retrieves user credentials
func (r *UserRepository) GetCredentials(ctx context.Context, userID string) (*identity.Credentials, error) {
	var c identity.Credentials
	err := r.db.pool.QueryRow(ctx, `
		SELECT user_id, password_hash, updated_at FROM credentials WHERE user_id = $1
	`, userID).Scan(&c.UserID, &c.PasswordHash, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, identity.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get credentials: %w", err)
	}
	return &c, nil
}
