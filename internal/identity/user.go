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
	"strings"
	"time"
)

// Domain errors
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidUsername    = errors.New("invalid username")
	ErrWeakPassword       = errors.New("password does not meet security requirements")
	ErrAccountLocked      = errors.New("account is locked")
)

// User properties addressable by claim mappings.
const (
	PropertyID            = "id"
	PropertyUsername      = "username"
	PropertyEmail         = "email"
	PropertyEmailVerified = "emailVerified"
	PropertyFirstName     = "firstName"
	PropertyLastName      = "lastName"
	PropertyLocale        = "locale"
)

// User represents a user identity in the system
type User struct {
	ID                  string
	Username            string
	Email               string
	EmailVerified       bool
	Profile             Profile
	Attributes          map[string][]string
	FailedLoginAttempts int
	LockedUntil         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Profile represents user profile information
type Profile struct {
	GivenName  string `json:"given_name,omitempty" yaml:"given_name"`
	FamilyName string `json:"family_name,omitempty" yaml:"family_name"`
	Nickname   string `json:"nickname,omitempty" yaml:"nickname"`
	Picture    string `json:"picture,omitempty" yaml:"picture"`
	Locale     string `json:"locale,omitempty" yaml:"locale"`
}

// FullName joins given and family name, skipping empty parts.
func (u *User) FullName() string {
	return strings.TrimSpace(strings.Join([]string{u.Profile.GivenName, u.Profile.FamilyName}, " "))
}

// Attribute returns the first value of a custom attribute.
func (u *User) Attribute(name string) (string, bool) {
	values, ok := u.Attributes[name]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// Property resolves a built-in user property. Empty strings count as absent.
func (u *User) Property(name string) (any, bool) {
	var v string
	switch name {
	case PropertyID:
		v = u.ID
	case PropertyUsername:
		v = u.Username
	case PropertyEmail:
		v = u.Email
	case PropertyEmailVerified:
		return u.EmailVerified, true
	case PropertyFirstName:
		v = u.Profile.GivenName
	case PropertyLastName:
		v = u.Profile.FamilyName
	case PropertyLocale:
		v = u.Profile.Locale
	default:
		return nil, false
	}
	return v, v != ""
}

// IsLocked reports whether the account is in a lockout window.
func (u *User) IsLocked() bool {
	return u.LockedUntil != nil && u.LockedUntil.After(time.Now())
}

// Credentials represents user authentication credentials
type Credentials struct {
	UserID       string
	PasswordHash string
	UpdatedAt    time.Time
}

// UserRepository defines the interface for user persistence
type UserRepository interface {
	// Create creates a new user identity
	Create(ctx context.Context, user *User) error

	// AddCredentials adds credentials for a user
	AddCredentials(ctx context.Context, credentials *Credentials) error

	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id string) (*User, error)

	// GetByUsername retrieves a user by login name
	GetByUsername(ctx context.Context, username string) (*User, error)

	// Update updates user information
	Update(ctx context.Context, user *User) error

	// UpdateLockout updates user lockout status
	UpdateLockout(ctx context.Context, userID string, failedAttempts int, lockedUntil *time.Time) error

	// GetCredentials retrieves user credentials
	GetCredentials(ctx context.Context, userID string) (*Credentials, error)
}
